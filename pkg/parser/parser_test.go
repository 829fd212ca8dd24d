package parser

import (
	"testing"

	"github.com/aodsql/aodsql/pkg/ast"
)

func parseOne(t *testing.T, input string) ast.Statement {
	t.Helper()
	p := New(input)
	stmt, err := p.ParseStatement()
	if err != nil {
		t.Fatalf("parse error for %q: %v", input, err)
	}
	return stmt
}

func TestParseSimpleSelect(t *testing.T) {
	stmt := parseOne(t, "SELECT id, name FROM users WHERE id = 1")
	sel, ok := stmt.(*ast.SelectStatement)
	if !ok {
		t.Fatalf("want *ast.SelectStatement, got %T", stmt)
	}
	if len(sel.Columns) != 2 {
		t.Fatalf("want 2 columns, got %d", len(sel.Columns))
	}
	if sel.From == nil || len(sel.From.Tables) != 1 || sel.From.Tables[0].Name != "users" {
		t.Fatalf("unexpected from clause: %#v", sel.From)
	}
	cmp, ok := sel.Where.(*ast.BinaryExpr)
	if !ok || cmp.Op != ast.OpEq {
		t.Fatalf("want equality predicate, got %#v", sel.Where)
	}
}

func TestParseJoinAndGroupBy(t *testing.T) {
	stmt := parseOne(t, `SELECT o.customer_id, COUNT(*) FROM orders o
		INNER JOIN customers c ON o.customer_id = c.id
		GROUP BY o.customer_id HAVING COUNT(*) > 1 ORDER BY o.customer_id DESC LIMIT 10 OFFSET 5`)
	sel := stmt.(*ast.SelectStatement)
	if len(sel.From.Joins) != 1 || sel.From.Joins[0].Type != ast.JoinInner {
		t.Fatalf("expected one inner join, got %#v", sel.From.Joins)
	}
	if len(sel.GroupBy) != 1 {
		t.Fatalf("want 1 group-by expr, got %d", len(sel.GroupBy))
	}
	if sel.Having == nil {
		t.Fatalf("expected HAVING clause")
	}
	if sel.Limit == nil || *sel.Limit != 10 {
		t.Fatalf("expected LIMIT 10, got %v", sel.Limit)
	}
	if sel.Offset == nil || *sel.Offset != 5 {
		t.Fatalf("expected OFFSET 5, got %v", sel.Offset)
	}
	if len(sel.OrderBy) != 1 || !sel.OrderBy[0].Desc {
		t.Fatalf("expected DESC order-by")
	}
}

func TestParseBetweenInExistsAndSubqueries(t *testing.T) {
	stmt := parseOne(t, `SELECT * FROM orders WHERE total BETWEEN 10 AND 100
		AND customer_id IN (SELECT id FROM customers WHERE active = 1)
		AND EXISTS (SELECT 1 FROM shipments s WHERE s.order_id = orders.id)`)
	sel := stmt.(*ast.SelectStatement)
	and1, ok := sel.Where.(*ast.BinaryExpr)
	if !ok || and1.Op != ast.OpAnd {
		t.Fatalf("expected top-level AND, got %#v", sel.Where)
	}
	and2, ok := and1.Left.(*ast.BinaryExpr)
	if !ok || and2.Op != ast.OpAnd {
		t.Fatalf("expected nested AND, got %#v", and1.Left)
	}
	if _, ok := and2.Left.(*ast.BetweenExpr); !ok {
		t.Fatalf("expected BETWEEN, got %#v", and2.Left)
	}
	if _, ok := and2.Right.(*ast.InSubqueryExpr); !ok {
		t.Fatalf("expected IN subquery, got %#v", and2.Right)
	}
	if _, ok := and1.Right.(*ast.ExistsExpr); !ok {
		t.Fatalf("expected EXISTS, got %#v", and1.Right)
	}
}

func TestParseCaseExpression(t *testing.T) {
	stmt := parseOne(t, `SELECT CASE WHEN age < 18 THEN 'minor' WHEN age < 65 THEN 'adult' ELSE 'senior' END FROM people`)
	sel := stmt.(*ast.SelectStatement)
	ce, ok := sel.Columns[0].(*ast.CaseExpr)
	if !ok {
		t.Fatalf("want *ast.CaseExpr, got %T", sel.Columns[0])
	}
	if len(ce.Whens) != 2 || ce.Else == nil {
		t.Fatalf("unexpected case shape: %#v", ce)
	}
}

func TestParseInsertValuesAndSelect(t *testing.T) {
	stmt := parseOne(t, `INSERT INTO users (id, name) VALUES (1, 'alice'), (2, 'bob')`)
	ins := stmt.(*ast.InsertStatement)
	if ins.Table != "users" || len(ins.Columns) != 2 || len(ins.Values) != 2 {
		t.Fatalf("unexpected insert shape: %#v", ins)
	}

	stmt2 := parseOne(t, `INSERT INTO archived_users SELECT * FROM users WHERE active = 0`)
	ins2 := stmt2.(*ast.InsertStatement)
	if ins2.Select == nil {
		t.Fatalf("expected INSERT ... SELECT form")
	}
}

func TestParseUpdateAndDelete(t *testing.T) {
	stmt := parseOne(t, `UPDATE users SET name = 'carl', active = 1 WHERE id = 3`)
	upd := stmt.(*ast.UpdateStatement)
	if len(upd.Assignments) != 2 || upd.Where == nil {
		t.Fatalf("unexpected update shape: %#v", upd)
	}

	stmt2 := parseOne(t, `DELETE FROM users WHERE id = 3`)
	del := stmt2.(*ast.DeleteStatement)
	if del.Table != "users" || del.Where == nil {
		t.Fatalf("unexpected delete shape: %#v", del)
	}
}

func TestParseCreateTable(t *testing.T) {
	stmt := parseOne(t, `CREATE TABLE IF NOT EXISTS orders (
		id INT PRIMARY KEY AUTO_INCREMENT,
		customer_id INT NOT NULL,
		total DECIMAL(10,2) DEFAULT 0,
		PRIMARY KEY (id)
	)`)
	ct := stmt.(*ast.CreateTableStatement)
	if !ct.IfNotExists || ct.Name != "orders" {
		t.Fatalf("unexpected create table shape: %#v", ct)
	}
	if len(ct.Columns) != 3 {
		t.Fatalf("want 3 columns, got %d: %#v", len(ct.Columns), ct.Columns)
	}
	if !ct.Columns[0].PrimaryKey || !ct.Columns[0].AutoIncrement {
		t.Fatalf("expected id to be PK+auto_increment: %#v", ct.Columns[0])
	}
	if ct.Columns[2].Precision != 10 || ct.Columns[2].Scale != 2 {
		t.Fatalf("expected DECIMAL(10,2), got %#v", ct.Columns[2])
	}
}

func TestParseCreateIndexAndView(t *testing.T) {
	stmt := parseOne(t, `CREATE UNIQUE INDEX idx_email ON users (email)`)
	ci := stmt.(*ast.CreateIndexStatement)
	if !ci.Unique || ci.Table != "users" || len(ci.Columns) != 1 {
		t.Fatalf("unexpected create index shape: %#v", ci)
	}

	stmt2 := parseOne(t, `CREATE VIEW active_users AS SELECT id, name FROM users WHERE active = 1`)
	cv := stmt2.(*ast.CreateViewStatement)
	if cv.Name != "active_users" || cv.Definition == nil {
		t.Fatalf("unexpected create view shape: %#v", cv)
	}
}

func TestParseCreateTrigger(t *testing.T) {
	stmt := parseOne(t, `CREATE TRIGGER trg_audit AFTER UPDATE ON accounts
		FOR EACH ROW
		BEGIN
			INSERT INTO audit_log (account_id) VALUES (1)
		END`)
	tr := stmt.(*ast.CreateTriggerStatement)
	if tr.Name != "trg_audit" || tr.Timing != ast.TriggerAfter || tr.Table != "accounts" {
		t.Fatalf("unexpected trigger shape: %#v", tr)
	}
	if len(tr.Events) != 1 || tr.Events[0] != ast.TriggerUpdate {
		t.Fatalf("unexpected trigger events: %#v", tr.Events)
	}
	if !tr.RowLevel {
		t.Fatalf("expected row-level trigger")
	}
	if _, ok := tr.Body.(*ast.InsertStatement); !ok {
		t.Fatalf("expected insert body, got %T", tr.Body)
	}
}

func TestParseAlterDropTable(t *testing.T) {
	stmt := parseOne(t, `ALTER TABLE users ADD COLUMN age INT`)
	alt := stmt.(*ast.AlterTableStatement)
	if alt.Action != ast.AlterAddColumn || alt.ColumnDef.Name != "age" {
		t.Fatalf("unexpected alter shape: %#v", alt)
	}

	stmt2 := parseOne(t, `DROP TABLE IF EXISTS users CASCADE`)
	dt := stmt2.(*ast.DropTableStatement)
	if !dt.IfExists || !dt.Cascade {
		t.Fatalf("unexpected drop table shape: %#v", dt)
	}
}

func TestParseTransactionControl(t *testing.T) {
	cases := []struct {
		input string
		want  ast.Statement
	}{
		{"BEGIN", &ast.BeginStatement{}},
		{"START TRANSACTION", &ast.BeginStatement{}},
		{"COMMIT", &ast.CommitStatement{}},
		{"SAVEPOINT sp1", &ast.SavepointStatement{Name: "sp1"}},
		{"RELEASE SAVEPOINT sp1", &ast.ReleaseSavepointStatement{Name: "sp1"}},
	}
	for _, c := range cases {
		stmt := parseOne(t, c.input)
		if stmt.String() == "" {
			t.Fatalf("%q: empty String()", c.input)
		}
	}

	stmt := parseOne(t, "ROLLBACK TO SAVEPOINT sp1")
	rb := stmt.(*ast.RollbackStatement)
	if rb.ToSavepoint != "sp1" {
		t.Fatalf("expected ToSavepoint sp1, got %q", rb.ToSavepoint)
	}
}

func TestParseCursorStatements(t *testing.T) {
	stmt := parseOne(t, `DECLARE cur1 CURSOR FOR SELECT id FROM users`)
	dc := stmt.(*ast.DeclareCursorStatement)
	if dc.Name != "cur1" || dc.Select == nil {
		t.Fatalf("unexpected declare cursor shape: %#v", dc)
	}

	for _, input := range []string{"OPEN cur1", "FETCH cur1", "CLOSE cur1"} {
		if _, err := New(input).ParseStatement(); err != nil {
			t.Fatalf("%q: unexpected error %v", input, err)
		}
	}
}

func TestParseExplainAndShow(t *testing.T) {
	stmt := parseOne(t, `EXPLAIN ANALYZE SELECT * FROM users`)
	ex := stmt.(*ast.ExplainStatement)
	if !ex.Analyze {
		t.Fatalf("expected ANALYZE flag set")
	}
	if _, ok := ex.Statement.(*ast.SelectStatement); !ok {
		t.Fatalf("expected wrapped SELECT, got %T", ex.Statement)
	}

	stmt2 := parseOne(t, `SHOW COLUMNS FROM users`)
	sh := stmt2.(*ast.ShowStatement)
	if sh.Kind != ast.ShowColumnsKind || sh.Table != "users" {
		t.Fatalf("unexpected show shape: %#v", sh)
	}
}

func TestParseUseAndDatabaseDDL(t *testing.T) {
	stmt := parseOne(t, "USE shop")
	use := stmt.(*ast.UseStatement)
	if use.Name != "shop" {
		t.Fatalf("unexpected use shape: %#v", use)
	}

	stmt2 := parseOne(t, "CREATE DATABASE IF NOT EXISTS shop")
	cd := stmt2.(*ast.CreateDatabaseStatement)
	if !cd.IfNotExists || cd.Name != "shop" {
		t.Fatalf("unexpected create database shape: %#v", cd)
	}
}

func TestParseSyntaxErrorReportsPosition(t *testing.T) {
	p := New("SELECT FROM")
	_, err := p.ParseStatement()
	if err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestParseProgramMultipleStatements(t *testing.T) {
	p := New("SELECT 1; SELECT 2;")
	stmts, err := p.ParseProgram()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stmts) != 2 {
		t.Fatalf("want 2 statements, got %d", len(stmts))
	}
}
