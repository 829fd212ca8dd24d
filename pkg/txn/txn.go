package txn

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aodsql/aodsql/pkg/dbfmt"
	"github.com/aodsql/aodsql/pkg/wal"
)

// State is a transaction's lifecycle state.
type State int

const (
	Active State = iota
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Transaction is one unit of work: its id doubles as the "age" the lock
// manager's deadlock victim policy compares (lower id == older); it also
// carries its savepoints and undo log. The locks it holds are tracked by
// the LockManager under its id, not on the Transaction.
type Transaction struct {
	ID         uint64
	State      State
	Savepoints []string
	BeginLSN   uint64

	mgr  *Manager
	mu   sync.Mutex
	undo []func()

	savepointMark map[string]int
}

// RecordUndo registers fn to run, in LIFO order, if this transaction is
// rolled back. pkg/storage calls this right after applying each write, with
// a closure that restores the pre-write in-memory state on ROLLBACK; COMMIT
// simply discards the log.
func (t *Transaction) RecordUndo(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undo = append(t.undo, fn)
}

func (t *Transaction) runUndo() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// runUndoTo runs every undo closure recorded after the given savepoint
// was taken, then truncates the log to that point — a partial rollback
// that leaves writes before the savepoint, and the transaction itself,
// intact.
func (t *Transaction) runUndoTo(mark int) {
	for i := len(t.undo) - 1; i >= mark; i-- {
		t.undo[i]()
	}
	t.undo = t.undo[:mark]
}

// Manager issues transaction ids, owns the LockManager, and coordinates
// with the WAL so commit only reports success after FlushToLSN, per spec
// §4.8's durability requirement.
type Manager struct {
	nextID uint64
	locks  *LockManager
	log    *wal.LogManager

	mu     sync.Mutex
	active map[uint64]*Transaction
}

// NewManager builds a transaction manager logging to log, with its
// deadlock detector polling every lockPollIntervalMs milliseconds (0 uses
// NewLockManager's 50ms default).
func NewManager(log *wal.LogManager, lockPollIntervalMs int64) *Manager {
	return &Manager{
		locks:  NewLockManager(time.Duration(lockPollIntervalMs) * time.Millisecond),
		log:    log,
		active: map[uint64]*Transaction{},
	}
}

func (m *Manager) Locks() *LockManager { return m.locks }

// Begin starts a new transaction and, if a WAL is configured, appends a
// BEGIN record.
func (m *Manager) Begin(ctx context.Context) (*Transaction, *dbfmt.Error) {
	id := atomic.AddUint64(&m.nextID, 1)
	t := &Transaction{ID: id, State: Active, mgr: m}

	if m.log != nil {
		rec := wal.Acquire()
		defer wal.Release(rec)
		rec.Header.EntryType = wal.EntryBegin
		rec.Header.LSN = m.log.NextLSN()
		rec.Payload = txnPayload(id, nil)
		if err := m.log.Append(rec); err != nil {
			return nil, err
		}
		t.BeginLSN = rec.Header.LSN
	}

	m.mu.Lock()
	m.active[id] = t
	m.mu.Unlock()
	return t, nil
}

// Commit appends a COMMIT record and flushes the WAL up to it to make it
// durable (if a WAL is configured), then discards the undo log and
// releases every lock the transaction held.
func (m *Manager) Commit(ctx context.Context, t *Transaction) *dbfmt.Error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.State != Active {
		return dbfmt.Txn("transaction %d is not active (state %s)", t.ID, t.State)
	}

	if m.log != nil {
		rec := wal.Acquire()
		defer wal.Release(rec)
		rec.Header.EntryType = wal.EntryCommit
		rec.Header.LSN = m.log.NextLSN()
		rec.Payload = txnPayload(t.ID, nil)
		if err := m.log.Append(rec); err != nil {
			return err
		}
		if err := m.log.FlushToLSN(rec.Header.LSN); err != nil {
			return err
		}
	}

	t.undo = nil
	t.State = Committed
	m.locks.Release(t.ID)
	m.mu.Lock()
	delete(m.active, t.ID)
	m.mu.Unlock()
	return nil
}

// Rollback appends an ABORT record (if a WAL is configured), runs the
// undo closures pkg/storage registered through RecordUndo, newest first,
// to restore the pre-transaction in-memory state, and releases every lock
// the transaction held.
func (m *Manager) Rollback(ctx context.Context, t *Transaction) *dbfmt.Error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.State != Active {
		return nil
	}

	if m.log != nil {
		rec := wal.Acquire()
		defer wal.Release(rec)
		rec.Header.EntryType = wal.EntryAbort
		rec.Header.LSN = m.log.NextLSN()
		rec.Payload = txnPayload(t.ID, nil)
		if err := m.log.Append(rec); err != nil {
			return err
		}
	}

	t.runUndo()
	t.State = Aborted
	m.locks.Release(t.ID)
	m.mu.Lock()
	delete(m.active, t.ID)
	m.mu.Unlock()
	return nil
}

// RollbackToSavepoint undoes every write made since name's savepoint was
// added, leaving the transaction ACTIVE and its locks held — a partial
// rollback, distinct from Rollback's full abort. It does not write a WAL
// record: the savepoint boundary is purely an in-memory undo-log mark,
// not a durability point.
func (m *Manager) RollbackToSavepoint(ctx context.Context, t *Transaction, name string) *dbfmt.Error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.State != Active {
		return dbfmt.Txn("transaction %d is not active (state %s)", t.ID, t.State)
	}
	mark, ok := t.savepointMark[name]
	if !ok {
		return dbfmt.Txn("savepoint %q not found", name)
	}
	t.runUndoTo(mark)
	return nil
}

// LogWrite appends an INSERT/UPDATE/DELETE record tagged with t's id,
// returning the assigned LSN so the caller (pkg/storage) can track it.
func (m *Manager) LogWrite(t *Transaction, entryType wal.EntryType, payload []byte) (uint64, *dbfmt.Error) {
	if m.log == nil {
		return 0, nil
	}
	rec := wal.Acquire()
	defer wal.Release(rec)
	rec.Header.EntryType = entryType
	rec.Header.LSN = m.log.NextLSN()
	rec.Payload = txnPayload(t.ID, payload)
	if err := m.log.Append(rec); err != nil {
		return 0, err
	}
	return rec.Header.LSN, nil
}

// AddSavepoint records a named savepoint, marking the current position
// in the undo log so a later ROLLBACK TO SAVEPOINT knows how far back to
// unwind.
func (t *Transaction) AddSavepoint(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Savepoints = append(t.Savepoints, name)
	if t.savepointMark == nil {
		t.savepointMark = map[string]int{}
	}
	t.savepointMark[name] = len(t.undo)
}

// txnPayload prefixes extra with the 8-byte big-endian transaction id, the
// convention pkg/wal's recovery pass relies on to group records by txn.
func txnPayload(id uint64, extra []byte) []byte {
	buf := make([]byte, 8+len(extra))
	binary.BigEndian.PutUint64(buf[:8], id)
	copy(buf[8:], extra)
	return buf
}
