package exec

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aodsql/aodsql/pkg/catalog"
	"github.com/aodsql/aodsql/pkg/dbfmt"
	"github.com/aodsql/aodsql/pkg/logplan"
	"github.com/aodsql/aodsql/pkg/optimizer"
	"github.com/aodsql/aodsql/pkg/parser"
	"github.com/aodsql/aodsql/pkg/physplan"
	"github.com/aodsql/aodsql/pkg/storage"
	"github.com/aodsql/aodsql/pkg/txn"
	"github.com/aodsql/aodsql/pkg/wal"
)

// newTestContext builds a full engine stack (catalog, storage, txn manager,
// an already-begun transaction, a fresh CursorTable) against a temp-file
// WAL, mirroring pkg/physplan's build() harness and pkg/txn's
// newTestManager but wired one level up so pkg/exec's operators can run
// against it end to end.
func newTestContext(t *testing.T) (*Context, *catalog.Catalog) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wal")
	log, err := wal.Open(path)
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	cat := catalog.New("shop")
	mgr := txn.NewManager(log, 0)
	store := storage.NewEngine(mgr)

	tx, terr := mgr.Begin(context.Background())
	if terr != nil {
		t.Fatalf("begin: %v", terr)
	}

	return &Context{
		Catalog: cat,
		Storage: store,
		TxnMgr:  mgr,
		Txn:     tx,
		Cursors: NewCursorTable(),
	}, cat
}

func createTestTable(t *testing.T, c *Context, cat *catalog.Catalog) {
	t.Helper()
	if _, err := cat.CreateTable("users", []catalog.ColumnInfo{
		{Name: "id", TypeName: "INT", PrimaryKey: true},
		{Name: "name", TypeName: "VARCHAR"},
		{Name: "age", TypeName: "INT"},
	}); err != nil {
		t.Fatalf("create table: %v", err)
	}
	c.Storage.CreateTable("users", []string{"id", "name", "age"})
	if err := cat.CreateIndex(&catalog.IndexInfo{Name: "idx_name", Table: "users", Columns: []string{"name"}}); err != nil {
		t.Fatalf("create index: %v", err)
	}
	if tbl, ok := c.Storage.Table("users"); ok {
		tbl.CreateIndex("idx_name", []int{1})
	}
}

// compileSQL runs sql through the full parser -> logplan -> optimizer ->
// physplan -> exec.Compile pipeline, returning whatever Compile returns
// (an Iterator for reads, a TerminalOp for everything else).
func compileSQL(t *testing.T, c *Context, cat *catalog.Catalog, sql string) interface{} {
	t.Helper()
	p := parser.New(sql)
	stmt, perr := p.ParseStatement()
	if perr != nil {
		t.Fatalf("parse %q: %v", sql, perr)
	}
	logical, lerr := logplan.Build(stmt, cat)
	if lerr != nil {
		t.Fatalf("lower %q: %v", sql, lerr)
	}
	optimized := optimizer.New(cat, nil).Optimize(logical)
	phys, berr := physplan.Build(optimized, cat)
	if berr != nil {
		t.Fatalf("bind %q: %v", sql, berr)
	}
	out, cerr := Compile(c, phys)
	if cerr != nil {
		t.Fatalf("compile %q: %v", sql, cerr)
	}
	return out
}

func execStmt(t *testing.T, c *Context, cat *catalog.Catalog, sql string) string {
	t.Helper()
	op, ok := compileSQL(t, c, cat, sql).(TerminalOp)
	if !ok {
		t.Fatalf("%q did not compile to a terminal op", sql)
	}
	status, err := op.Execute(context.Background())
	if err != nil {
		t.Fatalf("execute %q: %v", sql, err)
	}
	return status
}

func drain(t *testing.T, it Iterator) []Row {
	t.Helper()
	var rows []Row
	for {
		b, err := it.Next(context.Background())
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if b == nil {
			break
		}
		rows = append(rows, b.Rows...)
	}
	if err := it.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return rows
}

func querySQL(t *testing.T, c *Context, cat *catalog.Catalog, sql string) []Row {
	t.Helper()
	it, ok := compileSQL(t, c, cat, sql).(Iterator)
	if !ok {
		t.Fatalf("%q did not compile to an iterator", sql)
	}
	return drain(t, it)
}

func seedUsers(t *testing.T, c *Context, cat *catalog.Catalog) {
	t.Helper()
	execStmt(t, c, cat, "INSERT INTO users (id, name, age) VALUES (1, 'alice', 30)")
	execStmt(t, c, cat, "INSERT INTO users (id, name, age) VALUES (2, 'bob', 25)")
	execStmt(t, c, cat, "INSERT INTO users (id, name, age) VALUES (3, 'carol', 35)")
}

func TestInsertAndSeqScan(t *testing.T) {
	c, cat := newTestContext(t)
	createTestTable(t, c, cat)
	seedUsers(t, c, cat)

	rows := querySQL(t, c, cat, "SELECT id, name, age FROM users")
	if len(rows) != 3 {
		t.Fatalf("want 3 rows, got %d", len(rows))
	}
}

func TestFilterPredicate(t *testing.T) {
	c, cat := newTestContext(t)
	createTestTable(t, c, cat)
	seedUsers(t, c, cat)

	rows := querySQL(t, c, cat, "SELECT name FROM users WHERE age > 28")
	if len(rows) != 2 {
		t.Fatalf("want 2 rows, got %d", len(rows))
	}
}

func TestIndexScanEquality(t *testing.T) {
	c, cat := newTestContext(t)
	createTestTable(t, c, cat)
	seedUsers(t, c, cat)

	rows := querySQL(t, c, cat, "SELECT id FROM users WHERE name = 'bob'")
	if len(rows) != 1 || rows[0].Values[0] != int64(2) {
		t.Fatalf("want row id=2, got %+v", rows)
	}
}

func TestSortOrderByDesc(t *testing.T) {
	c, cat := newTestContext(t)
	createTestTable(t, c, cat)
	seedUsers(t, c, cat)

	rows := querySQL(t, c, cat, "SELECT name FROM users ORDER BY age DESC")
	if len(rows) != 3 || rows[0].Values[0] != "carol" || rows[2].Values[0] != "bob" {
		t.Fatalf("unexpected order: %+v", rows)
	}
}

func TestLimitOffset(t *testing.T) {
	c, cat := newTestContext(t)
	createTestTable(t, c, cat)
	seedUsers(t, c, cat)

	rows := querySQL(t, c, cat, "SELECT name FROM users ORDER BY id LIMIT 1 OFFSET 1")
	if len(rows) != 1 || rows[0].Values[0] != "bob" {
		t.Fatalf("unexpected limit/offset result: %+v", rows)
	}
}

func TestHashAggregateWithHaving(t *testing.T) {
	c, cat := newTestContext(t)
	createTestTable(t, c, cat)
	seedUsers(t, c, cat)

	rows := querySQL(t, c, cat, "SELECT COUNT(*) AS n FROM users HAVING COUNT(*) > 2")
	if len(rows) != 1 {
		t.Fatalf("want 1 group, got %+v", rows)
	}
	if rows[0].Values[0] != int64(3) {
		t.Fatalf("want count=3, got %v", rows[0].Values[0])
	}
}

func TestHashAggregateHavingExcludesGroup(t *testing.T) {
	c, cat := newTestContext(t)
	createTestTable(t, c, cat)
	seedUsers(t, c, cat)

	rows := querySQL(t, c, cat, "SELECT COUNT(*) AS n FROM users HAVING COUNT(*) > 10")
	if len(rows) != 0 {
		t.Fatalf("want 0 groups, got %+v", rows)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	c, cat := newTestContext(t)
	createTestTable(t, c, cat)
	seedUsers(t, c, cat)

	status := execStmt(t, c, cat, "UPDATE users SET age = 31 WHERE name = 'alice'")
	if status != "UPDATE 1" {
		t.Fatalf("want UPDATE 1, got %q", status)
	}

	rows := querySQL(t, c, cat, "SELECT age FROM users WHERE name = 'alice'")
	if len(rows) != 1 || rows[0].Values[0] != int64(31) {
		t.Fatalf("update did not take effect: %+v", rows)
	}

	status = execStmt(t, c, cat, "DELETE FROM users WHERE name = 'bob'")
	if status != "DELETE 1" {
		t.Fatalf("want DELETE 1, got %q", status)
	}
	rows = querySQL(t, c, cat, "SELECT id FROM users")
	if len(rows) != 2 {
		t.Fatalf("want 2 remaining rows, got %d", len(rows))
	}
}

func TestSelectDistinct(t *testing.T) {
	c, cat := newTestContext(t)
	createTestTable(t, c, cat)
	execStmt(t, c, cat, "INSERT INTO users (id, name, age) VALUES (1, 'alice', 30)")
	execStmt(t, c, cat, "INSERT INTO users (id, name, age) VALUES (2, 'alice', 25)")

	rows := querySQL(t, c, cat, "SELECT DISTINCT name FROM users")
	if len(rows) != 1 {
		t.Fatalf("want 1 distinct row, got %+v", rows)
	}
}

func TestFromlessSelectUsesDualIterator(t *testing.T) {
	c, cat := newTestContext(t)
	rows := querySQL(t, c, cat, "SELECT 1 + 1")
	if len(rows) != 1 || rows[0].Values[0] != int64(2) {
		t.Fatalf("want single row with value 2, got %+v", rows)
	}
}

func TestCreateTableDDL(t *testing.T) {
	c, cat := newTestContext(t)
	status := execStmt(t, c, cat, "CREATE TABLE orders (id INT PRIMARY KEY, total INT)")
	if status == "" {
		t.Fatalf("expected non-empty status")
	}
	if !cat.HasTable("orders") {
		t.Fatalf("expected orders table to exist in catalog")
	}
}

func TestExplainRendersPlanTree(t *testing.T) {
	c, cat := newTestContext(t)
	createTestTable(t, c, cat)
	seedUsers(t, c, cat)

	op, ok := compileSQL(t, c, cat, "EXPLAIN SELECT * FROM users WHERE name = 'bob'").(TerminalOp)
	if !ok {
		t.Fatalf("EXPLAIN did not compile to a terminal op")
	}
	out, err := op.Execute(context.Background())
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if out == "" {
		t.Fatalf("expected non-empty EXPLAIN output")
	}
}

func TestIndexScanWithResidualPredicate(t *testing.T) {
	c, cat := newTestContext(t)
	createTestTable(t, c, cat)
	execStmt(t, c, cat, "INSERT INTO users (id, name, age) VALUES (1, 'bob', 25)")
	execStmt(t, c, cat, "INSERT INTO users (id, name, age) VALUES (2, 'bob', 40)")

	// The equality conjunct on name is answered by idx_name; the age
	// conjunct has no index and must survive as a residual predicate
	// re-checked per row, or the second bob would wrongly appear too.
	rows := querySQL(t, c, cat, "SELECT id FROM users WHERE name = 'bob' AND age > 30")
	if len(rows) != 1 || rows[0].Values[0] != int64(2) {
		t.Fatalf("want only id=2 (age 40), got %+v", rows)
	}
}

func TestHashAggregateEmptyTableYieldsZeroCountRow(t *testing.T) {
	c, cat := newTestContext(t)
	createTestTable(t, c, cat)

	rows := querySQL(t, c, cat, "SELECT COUNT(*) AS n FROM users")
	if len(rows) != 1 {
		t.Fatalf("want one zero-count row over an empty table, got %+v", rows)
	}
	if rows[0].Values[0] != int64(0) {
		t.Fatalf("want count=0, got %v", rows[0].Values[0])
	}
}

func TestExplainAnalyzeCountsRows(t *testing.T) {
	c, cat := newTestContext(t)
	createTestTable(t, c, cat)
	seedUsers(t, c, cat)

	op, ok := compileSQL(t, c, cat, "EXPLAIN ANALYZE SELECT * FROM users").(TerminalOp)
	if !ok {
		t.Fatalf("EXPLAIN ANALYZE did not compile to a terminal op")
	}
	out, err := op.Execute(context.Background())
	if err != nil {
		t.Fatalf("explain analyze: %v", err)
	}
	if out == "" {
		t.Fatalf("expected non-empty EXPLAIN ANALYZE output")
	}
}

// TestRowLevelLockingAllowsConcurrentDisjointRowUpdates proves UPDATE takes
// only a Shared table lock plus a per-row Exclusive lock, not a table-wide
// Exclusive one: an UPDATE on row id=1 left uncommitted must not block a
// concurrent UPDATE on the disjoint row id=2.
func TestRowLevelLockingAllowsConcurrentDisjointRowUpdates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	log, err := wal.Open(path)
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	cat := catalog.New("shop")
	mgr := txn.NewManager(log, 0)
	store := storage.NewEngine(mgr)
	ctx := context.Background()

	setupTx, terr := mgr.Begin(ctx)
	if terr != nil {
		t.Fatalf("begin setup: %v", terr)
	}
	setupC := &Context{Catalog: cat, Storage: store, TxnMgr: mgr, Txn: setupTx, Cursors: NewCursorTable()}
	createTestTable(t, setupC, cat)
	seedUsers(t, setupC, cat)
	if terr := mgr.Commit(ctx, setupTx); terr != nil {
		t.Fatalf("commit setup: %v", terr)
	}

	tx1, terr := mgr.Begin(ctx)
	if terr != nil {
		t.Fatalf("begin tx1: %v", terr)
	}
	c1 := &Context{Catalog: cat, Storage: store, TxnMgr: mgr, Txn: tx1, Cursors: NewCursorTable()}
	execStmt(t, c1, cat, "UPDATE users SET age = 99 WHERE id = 1")
	// tx1 stays open (uncommitted), holding its row-1 Exclusive lock and its
	// Shared table lock on users for the rest of this test.

	tx2, terr := mgr.Begin(ctx)
	if terr != nil {
		t.Fatalf("begin tx2: %v", terr)
	}
	c2 := &Context{Catalog: cat, Storage: store, TxnMgr: mgr, Txn: tx2, Cursors: NewCursorTable()}
	op2, ok := compileSQL(t, c2, cat, "UPDATE users SET age = 50 WHERE id = 2").(TerminalOp)
	if !ok {
		t.Fatalf("update did not compile to a terminal op")
	}

	done := make(chan *dbfmt.Error, 1)
	go func() {
		_, err := op2.Execute(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("disjoint-row update failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("update on id=2 blocked behind tx1's lock on id=1; row-level locking regressed to table-granularity")
	}

	if terr := mgr.Commit(ctx, tx2); terr != nil {
		t.Fatalf("commit tx2: %v", terr)
	}
	if terr := mgr.Commit(ctx, tx1); terr != nil {
		t.Fatalf("commit tx1: %v", terr)
	}
}
