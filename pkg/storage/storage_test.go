package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aodsql/aodsql/pkg/txn"
	"github.com/aodsql/aodsql/pkg/wal"
)

func newTestEngine(t *testing.T) (*Engine, *txn.Manager) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wal")
	log, err := wal.Open(path)
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	mgr := txn.NewManager(log, 0)
	return NewEngine(mgr), mgr
}

func TestInsertScanAndGet(t *testing.T) {
	e, mgr := newTestEngine(t)
	ctx := context.Background()
	e.CreateTable("users", []string{"id", "name"})

	tx, _ := mgr.Begin(ctx)
	id1, err := e.Insert(ctx, tx, "users", []interface{}{int64(1), "alice"})
	if err != nil {
		t.Fatalf("insert error: %v", err)
	}
	_, err = e.Insert(ctx, tx, "users", []interface{}{int64(2), "bob"})
	if err != nil {
		t.Fatalf("insert error: %v", err)
	}
	mgr.Commit(ctx, tx)

	tbl, _ := e.Table("users")
	rows := tbl.Scan()
	if len(rows) != 2 {
		t.Fatalf("want 2 rows, got %d", len(rows))
	}
	got, ok := tbl.Get(id1)
	if !ok || got.Values[1] != "alice" {
		t.Fatalf("unexpected row for id1: %+v", got)
	}
}

func TestUpdateMaintainsIndex(t *testing.T) {
	e, mgr := newTestEngine(t)
	ctx := context.Background()
	e.CreateTable("users", []string{"id", "email"})
	tbl, _ := e.Table("users")
	tbl.CreateIndex("idx_email", []int{1})

	tx, _ := mgr.Begin(ctx)
	id, _ := e.Insert(ctx, tx, "users", []interface{}{int64(1), "old@example.com"})
	mgr.Commit(ctx, tx)

	idx, _ := tbl.Index("idx_email")
	if len(idx.Lookup("old@example.com")) != 1 {
		t.Fatalf("expected row indexed under old email")
	}

	tx2, _ := mgr.Begin(ctx)
	if err := e.Update(ctx, tx2, "users", id, []interface{}{int64(1), "new@example.com"}); err != nil {
		t.Fatalf("update error: %v", err)
	}
	mgr.Commit(ctx, tx2)

	if len(idx.Lookup("old@example.com")) != 0 {
		t.Fatalf("expected old email key to be gone after update")
	}
	if len(idx.Lookup("new@example.com")) != 1 {
		t.Fatalf("expected new email key to be indexed after update")
	}
}

func TestDeleteRemovesRowAndIndexEntry(t *testing.T) {
	e, mgr := newTestEngine(t)
	ctx := context.Background()
	e.CreateTable("users", []string{"id"})
	tbl, _ := e.Table("users")
	tbl.CreateIndex("idx_id", []int{0})

	tx, _ := mgr.Begin(ctx)
	id, _ := e.Insert(ctx, tx, "users", []interface{}{int64(7)})
	mgr.Commit(ctx, tx)

	tx2, _ := mgr.Begin(ctx)
	if err := e.Delete(ctx, tx2, "users", id); err != nil {
		t.Fatalf("delete error: %v", err)
	}
	mgr.Commit(ctx, tx2)

	if _, ok := tbl.Get(id); ok {
		t.Fatalf("row should be gone")
	}
	idx, _ := tbl.Index("idx_id")
	if len(idx.Lookup("7")) != 0 {
		t.Fatalf("expected index entry removed after delete")
	}
}

func TestRecoveryReplaysCommittedInsertsOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	log, err := wal.Open(path)
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	mgr := txn.NewManager(log, 0)
	e := NewEngine(mgr)
	e.CreateTable("users", []string{"id"})
	ctx := context.Background()

	committed, _ := mgr.Begin(ctx)
	e.Insert(ctx, committed, "users", []interface{}{int64(1)})
	mgr.Commit(ctx, committed)

	uncommitted, _ := mgr.Begin(ctx)
	e.Insert(ctx, uncommitted, "users", []interface{}{int64(2)})
	// no commit/rollback: simulates a crash mid-transaction
	log.Close()

	// Fresh engine, same table shape, replaying the same WAL.
	log2, _ := wal.Open(path)
	defer log2.Close()
	mgr2 := txn.NewManager(log2, 0)
	e2 := NewEngine(mgr2)
	e2.CreateTable("users", []string{"id"})

	records, rerr := wal.ReadAll(path)
	if rerr != nil {
		t.Fatalf("read wal: %v", rerr)
	}
	if err := wal.Recover(records, NewApplier(e2)); err != nil {
		t.Fatalf("recover: %v", err)
	}

	tbl, _ := e2.Table("users")
	rows := tbl.Scan()
	if len(rows) != 1 {
		t.Fatalf("want 1 row replayed (only the committed insert), got %d", len(rows))
	}
}

func TestRollbackUndoesInsert(t *testing.T) {
	e, mgr := newTestEngine(t)
	ctx := context.Background()
	e.CreateTable("users", []string{"id", "name"})

	tx, _ := mgr.Begin(ctx)
	if _, err := e.Insert(ctx, tx, "users", []interface{}{int64(1), "alice"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	mgr.Rollback(ctx, tx)

	tbl, _ := e.Table("users")
	if rows := tbl.Scan(); len(rows) != 0 {
		t.Fatalf("want 0 rows after rollback, got %d", len(rows))
	}
}

func TestRollbackUndoesUpdateAndDelete(t *testing.T) {
	e, mgr := newTestEngine(t)
	ctx := context.Background()
	e.CreateTable("users", []string{"id", "name"})

	tx, _ := mgr.Begin(ctx)
	id, _ := e.Insert(ctx, tx, "users", []interface{}{int64(1), "alice"})
	mgr.Commit(ctx, tx)

	tx2, _ := mgr.Begin(ctx)
	if err := e.Update(ctx, tx2, "users", id, []interface{}{int64(1), "alicia"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	mgr.Rollback(ctx, tx2)

	tbl, _ := e.Table("users")
	row, ok := tbl.Get(id)
	if !ok || row.Values[1] != "alice" {
		t.Fatalf("want update undone, got %+v", row)
	}

	tx3, _ := mgr.Begin(ctx)
	if err := e.Delete(ctx, tx3, "users", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	mgr.Rollback(ctx, tx3)

	if _, ok := tbl.Get(id); !ok {
		t.Fatalf("want delete undone, row should still exist")
	}
}
