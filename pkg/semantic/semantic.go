// Package semantic resolves names and checks types over a parsed
// ast.Statement against a pkg/catalog.Catalog, producing SEMANTIC_ERROR
// diagnostics. Grounded on the teacher's pkg/schema TypeChecker/Validator
// pair (accumulate []*ValidationError across statement-kind-specific
// checkers) generalized to canonical ast.ColumnRef identity and to the
// fuller statement set SPEC_FULL.md adds (DDL, views, triggers, cursors).
package semantic

import (
	"strings"

	"github.com/aodsql/aodsql/pkg/ast"
	"github.com/aodsql/aodsql/pkg/catalog"
	"github.com/aodsql/aodsql/pkg/dbfmt"
)

// scope tracks the tables visible to name resolution at one nesting level,
// with an optional parent for subquery scoping. Grounded on
// original_source's symbol_table.py nested-scope shape (§10): a scope
// chain, not a single flat namespace, so nested SELECTs don't leak sibling
// aliases — but per Open Question 2, a child scope is never consulted for
// resolving columns in sibling expressions, which is how correlated
// subqueries are rejected rather than silently supported.
type scope struct {
	parent *scope
	tables map[string]*catalog.TableInfo // alias/name -> table
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, tables: make(map[string]*catalog.TableInfo)}
}

func (s *scope) add(alias string, t *catalog.TableInfo) {
	s.tables[strings.ToLower(alias)] = t
}

func (s *scope) lookup(alias string) (*catalog.TableInfo, bool) {
	t, ok := s.tables[strings.ToLower(alias)]
	return t, ok
}

// Analyzer checks ast.Statement trees against a Catalog.
type Analyzer struct {
	cat *catalog.Catalog
}

func New(cat *catalog.Catalog) *Analyzer {
	return &Analyzer{cat: cat}
}

// Check validates stmt, returning a single SEMANTIC_ERROR aggregating every
// problem found, or nil if the statement is well-formed. Matches the
// teacher's "collect all problems, report together" convention rather than
// failing fast on the first issue.
func (a *Analyzer) Check(stmt ast.Statement) *dbfmt.Error {
	var messages []string
	switch s := stmt.(type) {
	case *ast.SelectStatement:
		messages = a.checkSelect(s, newScope(nil))
	case *ast.InsertStatement:
		messages = a.checkInsert(s)
	case *ast.UpdateStatement:
		messages = a.checkUpdate(s)
	case *ast.DeleteStatement:
		messages = a.checkDelete(s)
	case *ast.CreateTableStatement:
		messages = a.checkCreateTable(s)
	case *ast.DropTableStatement:
		messages = a.checkTableExists(s.Name, s.IfExists)
	case *ast.AlterTableStatement:
		messages = a.checkAlterTable(s)
	case *ast.CreateIndexStatement:
		messages = a.checkCreateIndex(s)
	case *ast.DropIndexStatement:
		messages = a.checkTableExists(s.Table, s.IfExists)
	case *ast.CreateViewStatement:
		messages = a.checkSelect(s.Definition, newScope(nil))
	case *ast.AlterViewStatement:
		messages = a.checkSelect(s.Definition, newScope(nil))
	case *ast.CreateTriggerStatement:
		messages = a.checkCreateTrigger(s)
	case *ast.ExplainStatement:
		return a.Check(s.Statement)
	case *ast.DeclareCursorStatement:
		messages = a.checkSelect(s.Select, newScope(nil))
	}
	if len(messages) == 0 {
		return nil
	}
	return dbfmt.Semantic(messages)
}

func (a *Analyzer) checkTableExists(name string, ifOk bool) []string {
	if ifOk {
		return nil
	}
	if !a.cat.HasTable(name) {
		return []string{"table " + quote(name) + " does not exist"}
	}
	return nil
}

func quote(s string) string { return "'" + s + "'" }

// ---------------------------------------------------------------------
// SELECT
// ---------------------------------------------------------------------

func (a *Analyzer) checkSelect(stmt *ast.SelectStatement, parent *scope) []string {
	var msgs []string
	sc := newScope(parent)

	if stmt.From != nil {
		for _, tr := range stmt.From.Tables {
			msgs = append(msgs, a.bindTableRef(tr, sc)...)
		}
		for _, j := range stmt.From.Joins {
			msgs = append(msgs, a.bindTableRef(j.Table, sc)...)
			msgs = append(msgs, a.checkExpr(j.On, sc)...)
		}
	}

	for _, col := range stmt.Columns {
		msgs = append(msgs, a.checkExpr(col, sc)...)
	}
	if stmt.Where != nil {
		msgs = append(msgs, a.checkExpr(stmt.Where, sc)...)
	}
	if stmt.Having != nil {
		msgs = append(msgs, a.checkExpr(stmt.Having, sc)...)
	}
	for _, g := range stmt.GroupBy {
		msgs = append(msgs, a.checkExpr(g, sc)...)
	}
	for _, o := range stmt.OrderBy {
		msgs = append(msgs, a.checkExpr(o.Expr, sc)...)
	}

	msgs = append(msgs, a.checkGroupByShape(stmt)...)
	return msgs
}

func (a *Analyzer) bindTableRef(tr *ast.TableRef, sc *scope) []string {
	if tr.Subquery != nil {
		msgs := a.checkSelect(tr.Subquery, sc.parent)
		if tr.Alias == "" {
			msgs = append(msgs, "derived table requires an alias")
		} else {
			sc.add(tr.Alias, &catalog.TableInfo{Name: tr.Alias})
		}
		return msgs
	}
	t, ok := a.cat.Table(tr.Name)
	if !ok {
		return []string{"table " + quote(tr.Name) + " does not exist"}
	}
	alias := tr.Alias
	if alias == "" {
		alias = tr.Name
	}
	sc.add(alias, t)
	sc.add(tr.Name, t)
	return nil
}

// checkGroupByShape enforces that every non-aggregate select-list column
// reference appears in GROUP BY when the query has any aggregate or any
// GROUP BY at all — the spec's explicit/planner-derived GROUP BY rule (§9).
func (a *Analyzer) checkGroupByShape(stmt *ast.SelectStatement) []string {
	hasAgg := false
	for _, c := range stmt.Columns {
		if containsAggregate(c) {
			hasAgg = true
		}
	}
	if !hasAgg && len(stmt.GroupBy) == 0 {
		return nil
	}
	grouped := make(map[string]bool)
	for _, g := range stmt.GroupBy {
		grouped[exprIdentity(g)] = true
	}
	var msgs []string
	for _, c := range stmt.Columns {
		expr := c
		if al, ok := c.(*ast.AliasedExpr); ok {
			expr = al.Expr
		}
		if containsAggregate(expr) {
			continue
		}
		if _, isStar := expr.(*ast.StarExpr); isStar {
			continue
		}
		if !grouped[exprIdentity(expr)] {
			msgs = append(msgs, "column "+expr.String()+" must appear in the GROUP BY clause or be used in an aggregate function")
		}
	}
	return msgs
}

func containsAggregate(e ast.Expression) bool {
	switch v := e.(type) {
	case *ast.AggregateExpr:
		return true
	case *ast.AliasedExpr:
		return containsAggregate(v.Expr)
	case *ast.BinaryExpr:
		return containsAggregate(v.Left) || containsAggregate(v.Right)
	case *ast.UnaryExpr:
		return containsAggregate(v.Operand)
	default:
		return false
	}
}

func exprIdentity(e ast.Expression) string { return e.String() }

// ---------------------------------------------------------------------
// Expression-level checks: column resolution and subquery correlation
// ---------------------------------------------------------------------

func (a *Analyzer) checkExpr(e ast.Expression, sc *scope) []string {
	switch v := e.(type) {
	case *ast.ColumnRef:
		return a.resolveColumn(v, sc)
	case *ast.BinaryExpr:
		return append(a.checkExpr(v.Left, sc), a.checkExpr(v.Right, sc)...)
	case *ast.UnaryExpr:
		return a.checkExpr(v.Operand, sc)
	case *ast.BetweenExpr:
		msgs := a.checkExpr(v.Expr, sc)
		msgs = append(msgs, a.checkExpr(v.Low, sc)...)
		msgs = append(msgs, a.checkExpr(v.High, sc)...)
		return msgs
	case *ast.InListExpr:
		msgs := a.checkExpr(v.Expr, sc)
		for _, item := range v.List {
			msgs = append(msgs, a.checkExpr(item, sc)...)
		}
		return msgs
	case *ast.InSubqueryExpr:
		msgs := a.checkExpr(v.Expr, sc)
		msgs = append(msgs, a.checkUncorrelatedSubquery(v.Subquery)...)
		return msgs
	case *ast.ExistsExpr:
		return a.checkUncorrelatedSubquery(v.Subquery)
	case *ast.SubqueryExpr:
		return a.checkUncorrelatedSubquery(v.Subquery)
	case *ast.AggregateExpr:
		if v.Star {
			return nil
		}
		return a.checkExpr(v.Arg, sc)
	case *ast.CaseExpr:
		var msgs []string
		for _, w := range v.Whens {
			msgs = append(msgs, a.checkExpr(w.Cond, sc)...)
			msgs = append(msgs, a.checkExpr(w.Result, sc)...)
		}
		if v.Else != nil {
			msgs = append(msgs, a.checkExpr(v.Else, sc)...)
		}
		return msgs
	case *ast.AliasedExpr:
		return a.checkExpr(v.Expr, sc)
	default:
		return nil
	}
}

func (a *Analyzer) resolveColumn(c *ast.ColumnRef, sc *scope) []string {
	if c.Table != "" {
		t, ok := sc.lookup(c.Table)
		if !ok {
			return []string{"unknown table alias " + quote(c.Table) + " referenced by column " + quote(c.Column)}
		}
		if len(t.Columns) == 0 {
			return nil // derived-table/alias-only scope, columns not tracked here
		}
		if _, ok := t.Column(c.Column); !ok {
			return []string{"column " + quote(c.Column) + " does not exist on table " + quote(c.Table)}
		}
		return nil
	}
	// Unqualified: must resolve unambiguously against exactly one table in
	// the current scope (not the parent — that is what makes a correlated
	// outer reference surface as an error rather than silently resolving).
	// A table bound under several names (its own name and an alias, or
	// NEW/OLD in a trigger) counts once; two aliases of the same table in a
	// self-join also count once.
	matches := 0
	seen := map[*catalog.TableInfo]bool{}
	for _, t := range sc.tables {
		if len(t.Columns) == 0 || seen[t] {
			continue
		}
		seen[t] = true
		if _, ok := t.Column(c.Column); ok {
			matches++
		}
	}
	if matches == 0 {
		return []string{"unknown column " + quote(c.Column)}
	}
	if matches > 1 {
		return []string{"ambiguous column reference " + quote(c.Column)}
	}
	return nil
}

// checkUncorrelatedSubquery analyzes a nested SELECT using a scope whose
// parent is nil, per Open Question 2's resolution: only uncorrelated
// scalar/IN/EXISTS subqueries are supported. A reference to an outer-query
// column inside the subquery resolves against nothing and surfaces as
// "unknown column", which is how correlation gets rejected without a
// separate correlation-detection pass.
func (a *Analyzer) checkUncorrelatedSubquery(sub *ast.SelectStatement) []string {
	return a.checkSelect(sub, nil)
}

// ---------------------------------------------------------------------
// DML
// ---------------------------------------------------------------------

func (a *Analyzer) checkInsert(stmt *ast.InsertStatement) []string {
	t, ok := a.cat.Table(stmt.Table)
	if !ok {
		return []string{"table " + quote(stmt.Table) + " does not exist"}
	}
	var msgs []string
	if stmt.Select != nil {
		msgs = append(msgs, a.checkSelect(stmt.Select, nil)...)
		return msgs
	}
	cols := stmt.Columns
	if len(cols) == 0 {
		for _, c := range t.Columns {
			cols = append(cols, c.Name)
		}
	} else {
		for _, name := range cols {
			if _, ok := t.Column(name); !ok {
				msgs = append(msgs, "column "+quote(name)+" does not exist on table "+quote(stmt.Table))
			}
		}
	}
	for _, row := range stmt.Values {
		if len(row) != len(cols) {
			msgs = append(msgs, "column count does not match value count in INSERT")
		}
	}
	for _, col := range t.Columns {
		if col.NotNull && !col.AutoIncrement && !containsColumnName(cols, col.Name) && !col.HasDefault {
			msgs = append(msgs, "column "+quote(col.Name)+" is NOT NULL and has no default, but was not supplied")
		}
	}
	return msgs
}

func containsColumnName(cols []string, name string) bool {
	for _, c := range cols {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

func (a *Analyzer) checkUpdate(stmt *ast.UpdateStatement) []string {
	t, ok := a.cat.Table(stmt.Table)
	if !ok {
		return []string{"table " + quote(stmt.Table) + " does not exist"}
	}
	sc := newScope(nil)
	sc.add(stmt.Table, t)
	var msgs []string
	for _, asn := range stmt.Assignments {
		if _, ok := t.Column(asn.Column); !ok {
			msgs = append(msgs, "column "+quote(asn.Column)+" does not exist on table "+quote(stmt.Table))
		}
		msgs = append(msgs, a.checkExpr(asn.Value, sc)...)
	}
	if stmt.Where != nil {
		msgs = append(msgs, a.checkExpr(stmt.Where, sc)...)
	}
	return msgs
}

func (a *Analyzer) checkDelete(stmt *ast.DeleteStatement) []string {
	t, ok := a.cat.Table(stmt.Table)
	if !ok {
		return []string{"table " + quote(stmt.Table) + " does not exist"}
	}
	sc := newScope(nil)
	sc.add(stmt.Table, t)
	if stmt.Where != nil {
		return a.checkExpr(stmt.Where, sc)
	}
	return nil
}

// ---------------------------------------------------------------------
// DDL
// ---------------------------------------------------------------------

func (a *Analyzer) checkCreateTable(stmt *ast.CreateTableStatement) []string {
	if !stmt.IfNotExists && a.cat.HasTable(stmt.Name) {
		return []string{"table " + quote(stmt.Name) + " already exists"}
	}
	seen := make(map[string]bool)
	var msgs []string
	pkCount := 0
	for _, c := range stmt.Columns {
		lc := strings.ToLower(c.Name)
		if seen[lc] {
			msgs = append(msgs, "duplicate column "+quote(c.Name)+" in CREATE TABLE")
		}
		seen[lc] = true
		if c.PrimaryKey {
			pkCount++
		}
	}
	if pkCount > 1 {
		msgs = append(msgs, "table "+quote(stmt.Name)+" declares more than one PRIMARY KEY column")
	}
	return msgs
}

func (a *Analyzer) checkAlterTable(stmt *ast.AlterTableStatement) []string {
	t, ok := a.cat.Table(stmt.Table)
	if !ok {
		return []string{"table " + quote(stmt.Table) + " does not exist"}
	}
	switch stmt.Action {
	case ast.AlterAddColumn:
		if _, exists := t.Column(stmt.ColumnDef.Name); exists {
			return []string{"column " + quote(stmt.ColumnDef.Name) + " already exists on table " + quote(stmt.Table)}
		}
	case ast.AlterDropColumn:
		if _, exists := t.Column(stmt.DropName); !exists {
			return []string{"column " + quote(stmt.DropName) + " does not exist on table " + quote(stmt.Table)}
		}
	case ast.AlterModifyColumn:
		if _, exists := t.Column(stmt.ColumnDef.Name); !exists {
			return []string{"column " + quote(stmt.ColumnDef.Name) + " does not exist on table " + quote(stmt.Table)}
		}
	}
	return nil
}

func (a *Analyzer) checkCreateIndex(stmt *ast.CreateIndexStatement) []string {
	t, ok := a.cat.Table(stmt.Table)
	if !ok {
		return []string{"table " + quote(stmt.Table) + " does not exist"}
	}
	var msgs []string
	for _, col := range stmt.Columns {
		if _, exists := t.Column(col); !exists {
			msgs = append(msgs, "column "+quote(col)+" does not exist on table "+quote(stmt.Table))
		}
	}
	if !stmt.IfNotExists {
		if _, exists := t.Indexes[strings.ToLower(stmt.Name)]; exists {
			msgs = append(msgs, "index "+quote(stmt.Name)+" already exists")
		}
	}
	return msgs
}

func (a *Analyzer) checkCreateTrigger(stmt *ast.CreateTriggerStatement) []string {
	if !a.cat.HasTable(stmt.Table) {
		return []string{"table " + quote(stmt.Table) + " does not exist"}
	}
	var msgs []string
	if stmt.When != nil {
		sc := newScope(nil)
		if t, ok := a.cat.Table(stmt.Table); ok {
			sc.add(stmt.Table, t)
			sc.add("new", t)
			sc.add("old", t)
		}
		msgs = append(msgs, a.checkExpr(stmt.When, sc)...)
	}
	if stmt.Body != nil {
		if bodyCheck := a.Check(stmt.Body); bodyCheck != nil {
			msgs = append(msgs, bodyCheck.Messages...)
		}
	}
	return msgs
}
