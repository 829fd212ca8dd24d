package exec

import (
	"testing"

	"github.com/aodsql/aodsql/pkg/catalog"
)

func createOrdersTable(t *testing.T, c *Context, cat *catalog.Catalog) {
	t.Helper()
	if _, err := cat.CreateTable("orders", []catalog.ColumnInfo{
		{Name: "id", TypeName: "INT", PrimaryKey: true},
		{Name: "user_id", TypeName: "INT"},
		{Name: "total", TypeName: "INT"},
	}); err != nil {
		t.Fatalf("create table: %v", err)
	}
	c.Storage.CreateTable("orders", []string{"id", "user_id", "total"})
}

func TestInnerJoinMatchesRows(t *testing.T) {
	c, cat := newTestContext(t)
	createTestTable(t, c, cat)
	createOrdersTable(t, c, cat)
	seedUsers(t, c, cat)
	execStmt(t, c, cat, "INSERT INTO orders (id, user_id, total) VALUES (100, 1, 50)")
	execStmt(t, c, cat, "INSERT INTO orders (id, user_id, total) VALUES (101, 2, 75)")

	rows := querySQL(t, c, cat, "SELECT users.name, orders.total FROM users JOIN orders ON users.id = orders.user_id")
	if len(rows) != 2 {
		t.Fatalf("want 2 joined rows, got %+v", rows)
	}
}

func TestLeftJoinNullExtendsUnmatched(t *testing.T) {
	c, cat := newTestContext(t)
	createTestTable(t, c, cat)
	createOrdersTable(t, c, cat)
	seedUsers(t, c, cat)
	execStmt(t, c, cat, "INSERT INTO orders (id, user_id, total) VALUES (100, 1, 50)")

	rows := querySQL(t, c, cat, "SELECT users.name, orders.total FROM users LEFT JOIN orders ON users.id = orders.user_id")
	if len(rows) != 3 {
		t.Fatalf("want 3 rows (2 users unmatched), got %d: %+v", len(rows), rows)
	}
	var unmatched int
	for _, r := range rows {
		if r.Values[1] == nil {
			unmatched++
		}
	}
	if unmatched != 2 {
		t.Fatalf("want 2 null-extended rows, got %d", unmatched)
	}
}
