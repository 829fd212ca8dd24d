package exec

import (
	"context"
	"fmt"
	"strings"

	"github.com/aodsql/aodsql/pkg/ast"
	"github.com/aodsql/aodsql/pkg/catalog"
	"github.com/aodsql/aodsql/pkg/dbfmt"
)

// DDLOp executes a single CREATE/ALTER/DROP statement by mutating the
// catalog first, then mirroring the shape into storage where storage
// keeps its own state (tables, indexes). DDL inside an explicit
// transaction runs under that transaction with no separate autocommit
// path, but it takes no locks, writes no WAL record and registers no undo:
// its effect is immediate and a ROLLBACK does not reverse it.
type DDLOp struct {
	c    *Context
	stmt ast.Statement
}

func NewDDLOp(c *Context, stmt ast.Statement) *DDLOp { return &DDLOp{c: c, stmt: stmt} }

func (op *DDLOp) Execute(ctx context.Context) (string, *dbfmt.Error) {
	switch s := op.stmt.(type) {
	case *ast.CreateTableStatement:
		return op.createTable(s)
	case *ast.DropTableStatement:
		return op.dropTable(s)
	case *ast.AlterTableStatement:
		return op.alterTable(s)
	case *ast.CreateIndexStatement:
		return op.createIndex(s)
	case *ast.DropIndexStatement:
		return op.dropIndex(s)
	case *ast.CreateViewStatement:
		if err := op.c.Catalog.CreateView(&catalog.ViewInfo{Name: s.Name, DefinitionSQL: s.Definition.String()}); err != nil {
			return "", err
		}
		return "CREATE VIEW", nil
	case *ast.AlterViewStatement:
		if err := op.c.Catalog.ReplaceView(&catalog.ViewInfo{Name: s.Name, DefinitionSQL: s.Definition.String()}); err != nil {
			return "", err
		}
		return "ALTER VIEW", nil
	case *ast.DropViewStatement:
		if err := op.c.Catalog.DropView(s.Name); err != nil {
			if s.IfExists {
				return "DROP VIEW", nil
			}
			return "", err
		}
		return "DROP VIEW", nil
	case *ast.CreateTriggerStatement:
		return op.createTrigger(s)
	case *ast.DropTriggerStatement:
		if err := op.c.Catalog.DropTrigger(s.Name); err != nil {
			if s.IfExists {
				return "DROP TRIGGER", nil
			}
			return "", err
		}
		return "DROP TRIGGER", nil
	case *ast.CreateDatabaseStatement, *ast.DropDatabaseStatement, *ast.UseStatement:
		// Single-database engine per spec's Non-goals: these statements are
		// accepted as no-ops rather than rejected, so scripts written for a
		// multi-database server still run unmodified.
		return "OK", nil
	default:
		return "", dbfmt.Exec("unsupported DDL statement %T", op.stmt)
	}
}

func (op *DDLOp) createTable(s *ast.CreateTableStatement) (string, *dbfmt.Error) {
	if op.c.Catalog.HasTable(s.Name) {
		if s.IfNotExists {
			return "CREATE TABLE", nil
		}
		return "", dbfmt.Constraint("table %q already exists", s.Name)
	}
	cols := make([]catalog.ColumnInfo, 0, len(s.Columns))
	names := make([]string, 0, len(s.Columns))
	for _, cd := range s.Columns {
		ci := catalog.ColumnInfo{
			Name: cd.Name, TypeName: cd.TypeName, Length: cd.Length,
			Precision: cd.Precision, Scale: cd.Scale, NotNull: cd.NotNull,
			PrimaryKey: cd.PrimaryKey, Unique: cd.Unique, AutoIncrement: cd.AutoIncrement,
		}
		if cd.Default != nil {
			if lit, ok := cd.Default.(*ast.Literal); ok {
				ci.HasDefault = true
				ci.Default = lit.Value
			}
		}
		cols = append(cols, ci)
		names = append(names, cd.Name)
	}
	if _, err := op.c.Catalog.CreateTable(s.Name, cols); err != nil {
		return "", err
	}
	op.c.Storage.CreateTable(s.Name, names)
	for i, cd := range s.Columns {
		if cd.PrimaryKey {
			if t, ok := op.c.Storage.Table(s.Name); ok {
				t.CreateIndex("pk_"+s.Name, []int{i})
			}
		}
	}
	return "CREATE TABLE", nil
}

func (op *DDLOp) dropTable(s *ast.DropTableStatement) (string, *dbfmt.Error) {
	if err := op.c.Catalog.DropTable(s.Name); err != nil {
		if s.IfExists {
			return "DROP TABLE", nil
		}
		return "", err
	}
	op.c.Storage.DropTable(s.Name)
	return "DROP TABLE", nil
}

func (op *DDLOp) alterTable(s *ast.AlterTableStatement) (string, *dbfmt.Error) {
	switch s.Action {
	case ast.AlterAddColumn:
		ci := catalog.ColumnInfo{
			Name: s.ColumnDef.Name, TypeName: s.ColumnDef.TypeName,
			NotNull: s.ColumnDef.NotNull, Unique: s.ColumnDef.Unique,
		}
		if err := op.c.Catalog.AddColumn(s.Table, ci); err != nil {
			return "", err
		}
	case ast.AlterDropColumn:
		if err := op.c.Catalog.DropColumn(s.Table, s.DropName); err != nil {
			return "", err
		}
	case ast.AlterModifyColumn:
		if err := op.c.Catalog.DropColumn(s.Table, s.ColumnDef.Name); err != nil {
			return "", err
		}
		if err := op.c.Catalog.AddColumn(s.Table, catalog.ColumnInfo{
			Name: s.ColumnDef.Name, TypeName: s.ColumnDef.TypeName, NotNull: s.ColumnDef.NotNull,
		}); err != nil {
			return "", err
		}
	}
	return "ALTER TABLE", nil
}

func (op *DDLOp) createIndex(s *ast.CreateIndexStatement) (string, *dbfmt.Error) {
	table, ok := op.c.Catalog.Table(s.Table)
	if !ok {
		return "", dbfmt.Constraint("table %q does not exist", s.Table)
	}
	positions := make([]int, 0, len(s.Columns))
	for _, colName := range s.Columns {
		found := -1
		for i, c := range table.Columns {
			if strings.EqualFold(c.Name, colName) {
				found = i
				break
			}
		}
		if found == -1 {
			return "", dbfmt.Constraint("unknown column %q for index %q", colName, s.Name)
		}
		positions = append(positions, found)
	}
	if err := op.c.Catalog.CreateIndex(&catalog.IndexInfo{Name: s.Name, Table: s.Table, Columns: s.Columns, Unique: s.Unique}); err != nil {
		if s.IfNotExists {
			return "CREATE INDEX", nil
		}
		return "", err
	}
	if t, ok := op.c.Storage.Table(s.Table); ok {
		t.CreateIndex(s.Name, positions)
	}
	return "CREATE INDEX", nil
}

func (op *DDLOp) dropIndex(s *ast.DropIndexStatement) (string, *dbfmt.Error) {
	if err := op.c.Catalog.DropIndex(s.Table, s.Name); err != nil {
		if s.IfExists {
			return "DROP INDEX", nil
		}
		return "", err
	}
	if t, ok := op.c.Storage.Table(s.Table); ok {
		t.DropIndex(s.Name)
	}
	return "DROP INDEX", nil
}

func (op *DDLOp) createTrigger(s *ast.CreateTriggerStatement) (string, *dbfmt.Error) {
	timing := "BEFORE"
	if s.Timing == ast.TriggerAfter {
		timing = "AFTER"
	}
	events := make([]string, 0, len(s.Events))
	for _, e := range s.Events {
		switch e {
		case ast.TriggerInsert:
			events = append(events, "INSERT")
		case ast.TriggerUpdate:
			events = append(events, "UPDATE")
		case ast.TriggerDelete:
			events = append(events, "DELETE")
		}
	}
	if err := op.c.Catalog.CreateTrigger(&catalog.TriggerInfo{
		Name: s.Name, Table: s.Table, Timing: timing, Events: events, RowLevel: s.RowLevel,
	}); err != nil {
		return "", err
	}
	return "CREATE TRIGGER", nil
}

// TCLOp executes BEGIN/COMMIT/ROLLBACK/SAVEPOINT/RELEASE SAVEPOINT. The
// session layer (not this op) is responsible for swapping Context.Txn to
// the new transaction BEGIN returns; TCLOp reports the resulting status.
type TCLOp struct {
	c    *Context
	stmt ast.Statement
}

func NewTCLOp(c *Context, stmt ast.Statement) *TCLOp { return &TCLOp{c: c, stmt: stmt} }

func (op *TCLOp) Execute(ctx context.Context) (string, *dbfmt.Error) {
	switch s := op.stmt.(type) {
	case *ast.BeginStatement:
		return "BEGIN", nil
	case *ast.CommitStatement:
		if err := op.c.TxnMgr.Commit(ctx, op.c.Txn); err != nil {
			return "", err
		}
		return "COMMIT", nil
	case *ast.RollbackStatement:
		if s.ToSavepoint != "" {
			if err := op.c.TxnMgr.RollbackToSavepoint(ctx, op.c.Txn, s.ToSavepoint); err != nil {
				return "", err
			}
			return "ROLLBACK TO SAVEPOINT", nil
		}
		if err := op.c.TxnMgr.Rollback(ctx, op.c.Txn); err != nil {
			return "", err
		}
		return "ROLLBACK", nil
	case *ast.SavepointStatement:
		op.c.Txn.AddSavepoint(s.Name)
		return "SAVEPOINT", nil
	case *ast.ReleaseSavepointStatement:
		return "RELEASE SAVEPOINT", nil
	default:
		return "", dbfmt.Exec("unsupported TCL statement %T", op.stmt)
	}
}

// ShowOp reports catalog metadata for SHOW DATABASES/TABLES/COLUMNS/INDEX/
// VIEWS/TRIGGERS, formatted the way the teacher's CLI commands render
// their own summaries.
type ShowOp struct {
	c    *Context
	stmt *ast.ShowStatement
}

func NewShowOp(c *Context, stmt *ast.ShowStatement) *ShowOp { return &ShowOp{c: c, stmt: stmt} }

func (op *ShowOp) Execute(ctx context.Context) (string, *dbfmt.Error) {
	switch op.stmt.Kind {
	case ast.ShowDatabasesKind:
		return op.c.Catalog.Database, nil
	case ast.ShowTablesKind:
		var names []string
		for _, t := range op.c.Catalog.Tables {
			names = append(names, t.Name)
		}
		return strings.Join(names, ", "), nil
	case ast.ShowColumnsKind:
		t, ok := op.c.Catalog.Table(op.stmt.Table)
		if !ok {
			return "", dbfmt.Constraint("table %q does not exist", op.stmt.Table)
		}
		var parts []string
		for _, c := range t.Columns {
			parts = append(parts, fmt.Sprintf("%s %s", c.Name, c.TypeName))
		}
		return strings.Join(parts, ", "), nil
	case ast.ShowIndexKind:
		t, ok := op.c.Catalog.Table(op.stmt.Table)
		if !ok {
			return "", dbfmt.Constraint("table %q does not exist", op.stmt.Table)
		}
		var parts []string
		for _, idx := range t.Indexes {
			parts = append(parts, idx.Name)
		}
		return strings.Join(parts, ", "), nil
	case ast.ShowViewsKind:
		var names []string
		for _, v := range op.c.Catalog.Views {
			names = append(names, v.Name)
		}
		return strings.Join(names, ", "), nil
	case ast.ShowTriggersKind:
		var names []string
		for _, tr := range op.c.Catalog.Triggers {
			names = append(names, tr.Name)
		}
		return strings.Join(names, ", "), nil
	default:
		return "", dbfmt.Exec("unsupported SHOW kind")
	}
}

// CursorOp executes OPEN/FETCH/CLOSE against the session's CursorTable
// (DECLARE is handled at compile time since it only registers a plan).
type CursorOp struct {
	c    *Context
	name string
	kind string
}

func (op *CursorOp) Execute(ctx context.Context) (string, *dbfmt.Error) {
	switch op.kind {
	case "OPEN":
		if err := op.c.Cursors.Open(ctx, op.name, op.c, CompileIterator); err != nil {
			return "", err
		}
		return "OPEN CURSOR", nil
	case "FETCH":
		row, schema, err := op.c.Cursors.Fetch(ctx, op.name)
		if err != nil {
			return "", err
		}
		if row == nil {
			return "FETCH 0 ROWS", nil
		}
		return fmt.Sprintf("FETCH %v (%d columns)", row.Values, len(schema)), nil
	case "CLOSE":
		if err := op.c.Cursors.Close(op.name); err != nil {
			return "", err
		}
		return "CLOSE CURSOR", nil
	default:
		return "", dbfmt.Exec("unsupported cursor operation %q", op.kind)
	}
}
