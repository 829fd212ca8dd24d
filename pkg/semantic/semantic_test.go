package semantic

import (
	"testing"

	"github.com/aodsql/aodsql/pkg/catalog"
	"github.com/aodsql/aodsql/pkg/dbfmt"
	"github.com/aodsql/aodsql/pkg/parser"
)

func testCatalog() *catalog.Catalog {
	c := catalog.New("shop")
	c.CreateTable("users", []catalog.ColumnInfo{
		{Name: "id", TypeName: "INT", PrimaryKey: true, NotNull: true},
		{Name: "name", TypeName: "VARCHAR", NotNull: true},
		{Name: "active", TypeName: "INT"},
	})
	c.CreateTable("orders", []catalog.ColumnInfo{
		{Name: "id", TypeName: "INT", PrimaryKey: true, NotNull: true},
		{Name: "customer_id", TypeName: "INT", NotNull: true},
		{Name: "total", TypeName: "DECIMAL"},
	})
	return c
}

func check(t *testing.T, cat *catalog.Catalog, sql string) *dbfmt.Error {
	t.Helper()
	p := parser.New(sql)
	stmt, perr := p.ParseStatement()
	if perr != nil {
		t.Fatalf("parse error for %q: %v", sql, perr)
	}
	a := New(cat)
	return a.Check(stmt)
}

func TestSelectUnknownColumn(t *testing.T) {
	cat := testCatalog()
	if err := check(t, cat, "SELECT bogus FROM users"); err == nil {
		t.Fatalf("expected semantic error for unknown column")
	}
}

func TestSelectValidColumns(t *testing.T) {
	cat := testCatalog()
	if err := check(t, cat, "SELECT id, name FROM users WHERE active = 1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSelectUnknownTable(t *testing.T) {
	cat := testCatalog()
	if err := check(t, cat, "SELECT id FROM nonexistent"); err == nil {
		t.Fatalf("expected semantic error for unknown table")
	}
}

func TestGroupByRequiresUngroupedColumnsAggregated(t *testing.T) {
	cat := testCatalog()
	if err := check(t, cat, "SELECT customer_id, total FROM orders GROUP BY customer_id"); err == nil {
		t.Fatalf("expected semantic error: total not grouped or aggregated")
	}
	if err := check(t, cat, "SELECT customer_id, SUM(total) FROM orders GROUP BY customer_id"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCorrelatedSubqueryRejected(t *testing.T) {
	cat := testCatalog()
	// orders.customer_id referenced inside the subquery cannot resolve
	// against the inner scope alone (no parent lookup), so this must fail.
	sql := "SELECT * FROM orders WHERE EXISTS (SELECT 1 FROM users WHERE users.id = orders.customer_id)"
	if err := check(t, cat, sql); err == nil {
		t.Fatalf("expected semantic error rejecting correlated subquery")
	}
}

func TestUncorrelatedSubqueryAccepted(t *testing.T) {
	cat := testCatalog()
	sql := "SELECT * FROM orders WHERE customer_id IN (SELECT id FROM users WHERE active = 1)"
	if err := check(t, cat, sql); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInsertColumnCountMismatch(t *testing.T) {
	cat := testCatalog()
	if err := check(t, cat, "INSERT INTO users (id, name) VALUES (1)"); err == nil {
		t.Fatalf("expected semantic error for column/value count mismatch")
	}
}

func TestInsertMissingNotNullColumn(t *testing.T) {
	cat := testCatalog()
	if err := check(t, cat, "INSERT INTO users (id) VALUES (1)"); err == nil {
		t.Fatalf("expected semantic error for missing required column")
	}
}

func TestCreateTableDuplicatePrimaryKey(t *testing.T) {
	cat := testCatalog()
	sql := "CREATE TABLE bad (a INT PRIMARY KEY, b INT PRIMARY KEY)"
	if err := check(t, cat, sql); err == nil {
		t.Fatalf("expected semantic error for duplicate PRIMARY KEY")
	}
}

func TestAlterTableAddExistingColumn(t *testing.T) {
	cat := testCatalog()
	if err := check(t, cat, "ALTER TABLE users ADD COLUMN name VARCHAR(10)"); err == nil {
		t.Fatalf("expected semantic error: column already exists")
	}
}
