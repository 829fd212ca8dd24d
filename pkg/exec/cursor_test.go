package exec

import (
	"context"
	"testing"
)

func TestCursorDeclareOpenFetchClose(t *testing.T) {
	c, cat := newTestContext(t)
	createTestTable(t, c, cat)
	seedUsers(t, c, cat)

	execStmt(t, c, cat, "DECLARE cur CURSOR FOR SELECT id FROM users ORDER BY id")
	execStmt(t, c, cat, "OPEN cur")

	var ids []interface{}
	for {
		row, schema, err := c.Cursors.Fetch(context.Background(), "cur")
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if row == nil {
			break
		}
		if len(schema) == 0 {
			t.Fatalf("expected non-empty cursor schema")
		}
		ids = append(ids, row.Values[0])
	}
	if len(ids) != 3 {
		t.Fatalf("want 3 fetched rows, got %d", len(ids))
	}

	execStmt(t, c, cat, "CLOSE cur")
}
