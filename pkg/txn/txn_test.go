package txn

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aodsql/aodsql/pkg/dbfmt"
	"github.com/aodsql/aodsql/pkg/wal"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wal")
	log, err := wal.Open(path)
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return NewManager(log, 0)
}

func TestBeginCommitReleasesLocks(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	tx, err := mgr.Begin(ctx)
	if err != nil {
		t.Fatalf("begin error: %v", err)
	}
	if lerr := mgr.Locks().Acquire(ctx, tx.ID, "users", Exclusive); lerr != nil {
		t.Fatalf("acquire error: %v", lerr)
	}
	if err := mgr.Commit(ctx, tx); err != nil {
		t.Fatalf("commit error: %v", err)
	}
	if tx.State != Committed {
		t.Fatalf("want Committed, got %s", tx.State)
	}

	// lock released: a second transaction can now acquire exclusively
	tx2, _ := mgr.Begin(ctx)
	if lerr := mgr.Locks().Acquire(ctx, tx2.ID, "users", Exclusive); lerr != nil {
		t.Fatalf("expected lock free after commit, got: %v", lerr)
	}
}

func TestRollbackReleasesLocks(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	tx, _ := mgr.Begin(ctx)
	mgr.Locks().Acquire(ctx, tx.ID, "orders", Exclusive)
	if err := mgr.Rollback(ctx, tx); err != nil {
		t.Fatalf("rollback error: %v", err)
	}
	if tx.State != Aborted {
		t.Fatalf("want Aborted, got %s", tx.State)
	}

	tx2, _ := mgr.Begin(ctx)
	if err := mgr.Locks().Acquire(ctx, tx2.ID, "orders", Exclusive); err != nil {
		t.Fatalf("expected lock free after rollback: %v", err)
	}
}

func TestSharedLocksAreCompatible(t *testing.T) {
	lm := NewLockManager(10 * time.Millisecond)
	defer lm.Close()
	ctx := context.Background()

	if err := lm.Acquire(ctx, 1, "t", Shared); err != nil {
		t.Fatalf("acquire 1: %v", err)
	}
	if err := lm.Acquire(ctx, 2, "t", Shared); err != nil {
		t.Fatalf("expected shared locks to be compatible: %v", err)
	}
}

func TestExclusiveLockBlocksUntilReleased(t *testing.T) {
	lm := NewLockManager(10 * time.Millisecond)
	defer lm.Close()
	ctx := context.Background()

	if err := lm.Acquire(ctx, 1, "t", Exclusive); err != nil {
		t.Fatalf("acquire 1: %v", err)
	}

	done := make(chan *dbfmt.Error, 1)
	go func() {
		done <- lm.Acquire(ctx, 2, "t", Exclusive)
	}()

	select {
	case <-done:
		t.Fatalf("txn 2 should still be blocked")
	case <-time.After(30 * time.Millisecond):
	}

	lm.Release(1)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("txn 2 should have acquired after release: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("txn 2 never acquired after release")
	}
}

func TestDeadlockDetectedAndYoungestAborted(t *testing.T) {
	lm := NewLockManager(10 * time.Millisecond)
	defer lm.Close()
	ctx := context.Background()

	// txn 1 holds A, wants B; txn 2 holds B, wants A: classic deadlock.
	if err := lm.Acquire(ctx, 1, "A", Exclusive); err != nil {
		t.Fatalf("acquire 1/A: %v", err)
	}
	if err := lm.Acquire(ctx, 2, "B", Exclusive); err != nil {
		t.Fatalf("acquire 2/B: %v", err)
	}

	errCh1 := make(chan *dbfmt.Error, 1)
	errCh2 := make(chan *dbfmt.Error, 1)
	go func() { errCh1 <- lm.Acquire(ctx, 1, "B", Exclusive) }()
	go func() { errCh2 <- lm.Acquire(ctx, 2, "A", Exclusive) }()

	var victimErr *dbfmt.Error
	select {
	case err := <-errCh1:
		victimErr = err
	case err := <-errCh2:
		victimErr = err
	case <-time.After(2 * time.Second):
		t.Fatalf("deadlock was never detected")
	}
	if victimErr == nil {
		t.Fatalf("expected one side of the deadlock to be aborted")
	}
}
