// Package ast defines the discriminated statement/expression tree produced
// by pkg/parser and consumed by pkg/semantic and pkg/logplan. Column
// identity is canonicalized as (table?, column, alias?) throughout — no
// stage re-parses a stringified node, per the engine's anti-string-AST
// design note.
package ast

import (
	"fmt"
	"strings"

	"github.com/aodsql/aodsql/pkg/dbfmt"
)

// Node is the root interface implemented by every AST node.
type Node interface {
	Pos() dbfmt.Position
	String() string
}

// Statement is a top-level, independently executable AST node.
type Statement interface {
	Node
	statementNode()
}

// Expression is any value-producing AST node.
type Expression interface {
	Node
	expressionNode()
}

// BaseNode carries the source position shared by every concrete node and
// provides the Pos() accessor; concrete types embed it.
type BaseNode struct {
	Position dbfmt.Position
}

func (b BaseNode) Pos() dbfmt.Position { return b.Position }

// ---------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------

// Literal is a constant value: integer, float, string, boolean, or NULL.
type Literal struct {
	BaseNode
	Kind  LiteralKind
	Value interface{} // int64, float64, string, bool, or nil for NULL
}

type LiteralKind int

const (
	IntLiteral LiteralKind = iota
	FloatLiteral
	StringLiteral
	BoolLiteral
	NullLiteral
)

func (l *Literal) expressionNode() {}
func (l *Literal) String() string {
	if l.Kind == NullLiteral {
		return "NULL"
	}
	if l.Kind == StringLiteral {
		return fmt.Sprintf("'%v'", l.Value)
	}
	return fmt.Sprintf("%v", l.Value)
}

// ColumnRef is the canonical column identity: optional table qualifier,
// column name, optional result alias. Never round-tripped through a
// string — every stage compares Table/Column/Alias fields directly.
type ColumnRef struct {
	BaseNode
	Table  string // empty if unqualified
	Column string
	Alias  string // empty if not aliased
}

func (c *ColumnRef) expressionNode() {}
func (c *ColumnRef) String() string {
	s := c.Column
	if c.Table != "" {
		s = c.Table + "." + s
	}
	if c.Alias != "" {
		s += " AS " + c.Alias
	}
	return s
}

// StarExpr represents `*` or `table.*` in a select list.
type StarExpr struct {
	BaseNode
	Table string // empty for bare '*'
}

func (s *StarExpr) expressionNode() {}
func (s *StarExpr) String() string {
	if s.Table != "" {
		return s.Table + ".*"
	}
	return "*"
}

type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNotEq
	OpLt
	OpLte
	OpGt
	OpGte
	OpAnd
	OpOr
	OpLike
)

func (o BinaryOp) String() string {
	switch o {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	case OpEq:
		return "="
	case OpNotEq:
		return "!="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	case OpLike:
		return "LIKE"
	default:
		return "?"
	}
}

// BinaryExpr is a binary operator application.
type BinaryExpr struct {
	BaseNode
	Op          BinaryOp
	Left, Right Expression
}

func (b *BinaryExpr) expressionNode() {}
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

// UnaryExpr covers NOT and unary minus.
type UnaryExpr struct {
	BaseNode
	Op      string // "NOT" | "-"
	Operand Expression
}

func (u *UnaryExpr) expressionNode() {}
func (u *UnaryExpr) String() string  { return fmt.Sprintf("%s %s", u.Op, u.Operand) }

// BetweenExpr is `expr [NOT] BETWEEN low AND high`.
type BetweenExpr struct {
	BaseNode
	Expr       Expression
	Low, High  Expression
	Negated    bool
}

func (b *BetweenExpr) expressionNode() {}
func (b *BetweenExpr) String() string {
	neg := ""
	if b.Negated {
		neg = "NOT "
	}
	return fmt.Sprintf("%s %sBETWEEN %s AND %s", b.Expr, neg, b.Low, b.High)
}

// InListExpr is `expr [NOT] IN (v1, v2, ...)`.
type InListExpr struct {
	BaseNode
	Expr    Expression
	List    []Expression
	Negated bool
}

func (i *InListExpr) expressionNode() {}
func (i *InListExpr) String() string {
	parts := make([]string, len(i.List))
	for idx, e := range i.List {
		parts[idx] = e.String()
	}
	neg := ""
	if i.Negated {
		neg = "NOT "
	}
	return fmt.Sprintf("%s %sIN (%s)", i.Expr, neg, strings.Join(parts, ", "))
}

// InSubqueryExpr is `expr [NOT] IN (SELECT ...)`.
type InSubqueryExpr struct {
	BaseNode
	Expr     Expression
	Subquery *SelectStatement
	Negated  bool
}

func (i *InSubqueryExpr) expressionNode() {}
func (i *InSubqueryExpr) String() string {
	neg := ""
	if i.Negated {
		neg = "NOT "
	}
	return fmt.Sprintf("%s %sIN (%s)", i.Expr, neg, i.Subquery)
}

// ExistsExpr is `[NOT] EXISTS (SELECT ...)`.
type ExistsExpr struct {
	BaseNode
	Subquery *SelectStatement
	Negated  bool
}

func (e *ExistsExpr) expressionNode() {}
func (e *ExistsExpr) String() string {
	neg := ""
	if e.Negated {
		neg = "NOT "
	}
	return fmt.Sprintf("%sEXISTS (%s)", neg, e.Subquery)
}

// SubqueryExpr is a scalar subquery used as a value expression.
type SubqueryExpr struct {
	BaseNode
	Subquery *SelectStatement
}

func (s *SubqueryExpr) expressionNode() {}
func (s *SubqueryExpr) String() string  { return fmt.Sprintf("(%s)", s.Subquery) }

type AggFunc int

const (
	AggCount AggFunc = iota
	AggSum
	AggAvg
	AggMin
	AggMax
)

func (f AggFunc) String() string {
	switch f {
	case AggCount:
		return "COUNT"
	case AggSum:
		return "SUM"
	case AggAvg:
		return "AVG"
	case AggMin:
		return "MIN"
	case AggMax:
		return "MAX"
	default:
		return "?"
	}
}

// AggregateExpr is an aggregate function call, e.g. COUNT(*), SUM(x).
type AggregateExpr struct {
	BaseNode
	Func     AggFunc
	Arg      Expression // nil for COUNT(*)
	Star     bool
	Distinct bool
	Alias    string
}

func (a *AggregateExpr) expressionNode() {}
func (a *AggregateExpr) String() string {
	arg := "*"
	if !a.Star {
		arg = a.Arg.String()
	}
	d := ""
	if a.Distinct {
		d = "DISTINCT "
	}
	s := fmt.Sprintf("%s(%s%s)", a.Func, d, arg)
	if a.Alias != "" {
		s += " AS " + a.Alias
	}
	return s
}

// WhenClause is one WHEN cond THEN result arm of a CASE expression.
type WhenClause struct {
	Cond   Expression
	Result Expression
}

// CaseExpr is a searched CASE expression.
type CaseExpr struct {
	BaseNode
	Whens []WhenClause
	Else  Expression // nil if absent
}

func (c *CaseExpr) expressionNode() {}
func (c *CaseExpr) String() string {
	var sb strings.Builder
	sb.WriteString("CASE")
	for _, w := range c.Whens {
		fmt.Fprintf(&sb, " WHEN %s THEN %s", w.Cond, w.Result)
	}
	if c.Else != nil {
		fmt.Fprintf(&sb, " ELSE %s", c.Else)
	}
	sb.WriteString(" END")
	return sb.String()
}

// AliasedExpr wraps a select-list expression with its optional output alias.
type AliasedExpr struct {
	BaseNode
	Expr  Expression
	Alias string
}

func (a *AliasedExpr) expressionNode() {}
func (a *AliasedExpr) String() string {
	if a.Alias != "" {
		return fmt.Sprintf("%s AS %s", a.Expr, a.Alias)
	}
	return a.Expr.String()
}

// ---------------------------------------------------------------------
// FROM clause / joins
// ---------------------------------------------------------------------

type TableRef struct {
	BaseNode
	Name     string
	Alias    string
	Subquery *SelectStatement // non-nil for a derived table
}

func (t *TableRef) String() string {
	if t.Subquery != nil {
		s := fmt.Sprintf("(%s)", t.Subquery)
		if t.Alias != "" {
			s += " AS " + t.Alias
		}
		return s
	}
	s := t.Name
	if t.Alias != "" {
		s += " AS " + t.Alias
	}
	return s
}

type JoinType int

const (
	JoinInner JoinType = iota
	JoinLeft
	JoinRight
	JoinFull
)

func (j JoinType) String() string {
	switch j {
	case JoinLeft:
		return "LEFT JOIN"
	case JoinRight:
		return "RIGHT JOIN"
	case JoinFull:
		return "FULL JOIN"
	default:
		return "JOIN"
	}
}

type JoinClause struct {
	BaseNode
	Type  JoinType
	Table *TableRef
	On    Expression
}

func (j *JoinClause) String() string {
	return fmt.Sprintf("%s %s ON %s", j.Type, j.Table, j.On)
}

type FromClause struct {
	BaseNode
	Tables []*TableRef
	Joins  []*JoinClause
}

func (f *FromClause) String() string {
	var sb strings.Builder
	parts := make([]string, len(f.Tables))
	for i, t := range f.Tables {
		parts[i] = t.String()
	}
	sb.WriteString(strings.Join(parts, ", "))
	for _, j := range f.Joins {
		sb.WriteString(" ")
		sb.WriteString(j.String())
	}
	return sb.String()
}

type OrderByItem struct {
	Expr Expression
	Desc bool
}

// ---------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------

type SelectStatement struct {
	BaseNode
	Columns  []Expression // *StarExpr | *AliasedExpr | *ColumnRef | *AggregateExpr
	From     *FromClause  // nil for SELECT with no FROM
	Where    Expression
	GroupBy  []Expression
	Having   Expression
	OrderBy  []OrderByItem
	Limit    *int64
	Offset   *int64
	Distinct bool
}

func (s *SelectStatement) statementNode() {}
func (s *SelectStatement) String() string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if s.Distinct {
		sb.WriteString("DISTINCT ")
	}
	parts := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		parts[i] = c.String()
	}
	sb.WriteString(strings.Join(parts, ", "))
	if s.From != nil {
		sb.WriteString(" FROM ")
		sb.WriteString(s.From.String())
	}
	if s.Where != nil {
		fmt.Fprintf(&sb, " WHERE %s", s.Where)
	}
	if len(s.GroupBy) > 0 {
		gb := make([]string, len(s.GroupBy))
		for i, g := range s.GroupBy {
			gb[i] = g.String()
		}
		fmt.Fprintf(&sb, " GROUP BY %s", strings.Join(gb, ", "))
	}
	if s.Having != nil {
		fmt.Fprintf(&sb, " HAVING %s", s.Having)
	}
	if len(s.OrderBy) > 0 {
		ob := make([]string, len(s.OrderBy))
		for i, o := range s.OrderBy {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			ob[i] = fmt.Sprintf("%s %s", o.Expr, dir)
		}
		fmt.Fprintf(&sb, " ORDER BY %s", strings.Join(ob, ", "))
	}
	if s.Limit != nil {
		fmt.Fprintf(&sb, " LIMIT %d", *s.Limit)
	}
	if s.Offset != nil {
		fmt.Fprintf(&sb, " OFFSET %d", *s.Offset)
	}
	return sb.String()
}

type InsertStatement struct {
	BaseNode
	Table   string
	Columns []string // empty means "all columns, positionally"
	Values  [][]Expression
	Select  *SelectStatement // non-nil for INSERT INTO t SELECT ...
}

func (i *InsertStatement) statementNode() {}
func (i *InsertStatement) String() string {
	return fmt.Sprintf("INSERT INTO %s (...) VALUES (...)", i.Table)
}

type Assignment struct {
	Column string
	Value  Expression
}

type UpdateStatement struct {
	BaseNode
	Table       string
	Assignments []Assignment
	Where       Expression
}

func (u *UpdateStatement) statementNode() {}
func (u *UpdateStatement) String() string { return fmt.Sprintf("UPDATE %s SET ...", u.Table) }

type DeleteStatement struct {
	BaseNode
	Table string
	Where Expression
}

func (d *DeleteStatement) statementNode() {}
func (d *DeleteStatement) String() string { return fmt.Sprintf("DELETE FROM %s", d.Table) }

// ColumnDef is one column definition within CREATE TABLE.
type ColumnDef struct {
	Name          string
	TypeName      string
	Length        int
	Precision     int
	Scale         int
	NotNull       bool
	PrimaryKey    bool
	Unique        bool
	AutoIncrement bool
	Default       Expression
}

type CreateTableStatement struct {
	BaseNode
	Name        string
	IfNotExists bool
	Columns     []ColumnDef
}

func (c *CreateTableStatement) statementNode() {}
func (c *CreateTableStatement) String() string { return fmt.Sprintf("CREATE TABLE %s", c.Name) }

type DropTableStatement struct {
	BaseNode
	Name     string
	IfExists bool
	Cascade  bool
}

func (d *DropTableStatement) statementNode() {}
func (d *DropTableStatement) String() string { return fmt.Sprintf("DROP TABLE %s", d.Name) }

type AlterAction int

const (
	AlterAddColumn AlterAction = iota
	AlterDropColumn
	AlterModifyColumn
)

type AlterTableStatement struct {
	BaseNode
	Table     string
	Action    AlterAction
	ColumnDef ColumnDef // valid for Add/Modify
	DropName  string    // valid for Drop
}

func (a *AlterTableStatement) statementNode() {}
func (a *AlterTableStatement) String() string { return fmt.Sprintf("ALTER TABLE %s", a.Table) }

type CreateIndexStatement struct {
	BaseNode
	Name        string
	Table       string
	Columns     []string
	Unique      bool
	IfNotExists bool
}

func (c *CreateIndexStatement) statementNode() {}
func (c *CreateIndexStatement) String() string { return fmt.Sprintf("CREATE INDEX %s ON %s", c.Name, c.Table) }

type DropIndexStatement struct {
	BaseNode
	Name     string
	Table    string
	IfExists bool
}

func (d *DropIndexStatement) statementNode() {}
func (d *DropIndexStatement) String() string { return fmt.Sprintf("DROP INDEX %s", d.Name) }

type CreateViewStatement struct {
	BaseNode
	Name       string
	Definition *SelectStatement
}

func (c *CreateViewStatement) statementNode() {}
func (c *CreateViewStatement) String() string { return fmt.Sprintf("CREATE VIEW %s", c.Name) }

type AlterViewStatement struct {
	BaseNode
	Name       string
	Definition *SelectStatement
}

func (a *AlterViewStatement) statementNode() {}
func (a *AlterViewStatement) String() string { return fmt.Sprintf("ALTER VIEW %s", a.Name) }

type DropViewStatement struct {
	BaseNode
	Name     string
	IfExists bool
}

func (d *DropViewStatement) statementNode() {}
func (d *DropViewStatement) String() string { return fmt.Sprintf("DROP VIEW %s", d.Name) }

type TriggerTiming int

const (
	TriggerBefore TriggerTiming = iota
	TriggerAfter
)

type TriggerEvent int

const (
	TriggerInsert TriggerEvent = iota
	TriggerUpdate
	TriggerDelete
)

type CreateTriggerStatement struct {
	BaseNode
	Name     string
	Timing   TriggerTiming
	Events   []TriggerEvent
	Table    string
	RowLevel bool
	When     Expression
	Body     Statement
}

func (c *CreateTriggerStatement) statementNode() {}
func (c *CreateTriggerStatement) String() string { return fmt.Sprintf("CREATE TRIGGER %s", c.Name) }

type DropTriggerStatement struct {
	BaseNode
	Name     string
	Table    string
	IfExists bool
}

func (d *DropTriggerStatement) statementNode() {}
func (d *DropTriggerStatement) String() string { return fmt.Sprintf("DROP TRIGGER %s", d.Name) }

type CreateDatabaseStatement struct {
	BaseNode
	Name        string
	IfNotExists bool
}

func (c *CreateDatabaseStatement) statementNode() {}
func (c *CreateDatabaseStatement) String() string { return fmt.Sprintf("CREATE DATABASE %s", c.Name) }

type DropDatabaseStatement struct {
	BaseNode
	Name     string
	IfExists bool
}

func (d *DropDatabaseStatement) statementNode() {}
func (d *DropDatabaseStatement) String() string { return fmt.Sprintf("DROP DATABASE %s", d.Name) }

type UseStatement struct {
	BaseNode
	Name string
}

func (u *UseStatement) statementNode() {}
func (u *UseStatement) String() string { return fmt.Sprintf("USE %s", u.Name) }

type ShowKind int

const (
	ShowDatabasesKind ShowKind = iota
	ShowTablesKind
	ShowColumnsKind
	ShowIndexKind
	ShowViewsKind
	ShowTriggersKind
)

type ShowStatement struct {
	BaseNode
	Kind  ShowKind
	Table string // for SHOW COLUMNS/INDEX FROM t
}

func (s *ShowStatement) statementNode() {}
func (s *ShowStatement) String() string { return "SHOW" }

type ExplainStatement struct {
	BaseNode
	Analyze   bool
	Statement Statement
}

func (e *ExplainStatement) statementNode() {}
func (e *ExplainStatement) String() string { return fmt.Sprintf("EXPLAIN %s", e.Statement) }

type BeginStatement struct {
	BaseNode
}

func (b *BeginStatement) statementNode() {}
func (b *BeginStatement) String() string { return "BEGIN" }

type CommitStatement struct{ BaseNode }

func (c *CommitStatement) statementNode() {}
func (c *CommitStatement) String() string { return "COMMIT" }

type RollbackStatement struct {
	BaseNode
	ToSavepoint string // empty for a full rollback
}

func (r *RollbackStatement) statementNode() {}
func (r *RollbackStatement) String() string { return "ROLLBACK" }

type SavepointStatement struct {
	BaseNode
	Name string
}

func (s *SavepointStatement) statementNode() {}
func (s *SavepointStatement) String() string { return fmt.Sprintf("SAVEPOINT %s", s.Name) }

type ReleaseSavepointStatement struct {
	BaseNode
	Name string
}

func (r *ReleaseSavepointStatement) statementNode() {}
func (r *ReleaseSavepointStatement) String() string {
	return fmt.Sprintf("RELEASE SAVEPOINT %s", r.Name)
}

type DeclareCursorStatement struct {
	BaseNode
	Name   string
	Select *SelectStatement
}

func (d *DeclareCursorStatement) statementNode() {}
func (d *DeclareCursorStatement) String() string { return fmt.Sprintf("DECLARE %s CURSOR", d.Name) }

type OpenCursorStatement struct {
	BaseNode
	Name string
}

func (o *OpenCursorStatement) statementNode() {}
func (o *OpenCursorStatement) String() string { return fmt.Sprintf("OPEN %s", o.Name) }

type FetchCursorStatement struct {
	BaseNode
	Name string
}

func (f *FetchCursorStatement) statementNode() {}
func (f *FetchCursorStatement) String() string { return fmt.Sprintf("FETCH %s", f.Name) }

type CloseCursorStatement struct {
	BaseNode
	Name string
}

func (c *CloseCursorStatement) statementNode() {}
func (c *CloseCursorStatement) String() string { return fmt.Sprintf("CLOSE %s", c.Name) }
