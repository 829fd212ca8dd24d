// Package storage is the engine's row store: an in-memory table heap plus
// hash indexes, written through the WAL before being applied, and replayed
// by wal.Recover on startup. Grounded on bobboyms-storage-engine's
// WriteTransaction (other_examples, transaction_write.go): log the
// operation first, apply to memory second, the same write-ahead ordering,
// adapted from that engine's per-document BSON heap to this engine's
// typed-row table model and index maintenance on UPDATE (Open Question 3).
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aodsql/aodsql/pkg/dbfmt"
	"github.com/aodsql/aodsql/pkg/txn"
	"github.com/aodsql/aodsql/pkg/wal"
)

// Row is one stored tuple: its engine-assigned id and column values in
// catalog column order.
type Row struct {
	ID     int64
	Values []interface{}
}

// Index is a simple hash index from an encoded column value to the row
// ids carrying it. Columns names the indexed column positions in order:
// CREATE INDEX builds indexes over one or more columns, and the optimizer
// only matches an index on its leading column.
type Index struct {
	Name    string
	Columns []int // column positions into Table.Columns
	entries map[string][]int64
}

func newIndex(name string, cols []int) *Index {
	return &Index{Name: name, Columns: cols, entries: map[string][]int64{}}
}

func (idx *Index) add(key string, rowID int64) {
	idx.entries[key] = append(idx.entries[key], rowID)
}

func (idx *Index) remove(key string, rowID int64) {
	ids := idx.entries[key]
	for i, id := range ids {
		if id == rowID {
			idx.entries[key] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(idx.entries[key]) == 0 {
		delete(idx.entries, key)
	}
}

// Lookup returns the row ids carrying key, in ascending order for
// deterministic scans.
func (idx *Index) Lookup(key string) []int64 {
	ids := append([]int64{}, idx.entries[key]...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Table is one table's row heap: a row-id keyed map plus any indexes
// maintained on it.
type Table struct {
	mu        sync.RWMutex
	Columns   []string
	rows      map[int64]*Row
	nextRowID int64
	indexes   map[string]*Index
}

func newTable(columns []string) *Table {
	return &Table{Columns: columns, rows: map[int64]*Row{}, nextRowID: 1, indexes: map[string]*Index{}}
}

// CreateIndex builds idx over the current rows, so a CREATE INDEX ... on a
// populated table is immediately usable.
func (t *Table) CreateIndex(name string, columnPositions []int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := newIndex(name, columnPositions)
	for id, row := range t.rows {
		idx.add(encodeKey(row.Values, columnPositions), id)
	}
	t.indexes[name] = idx
}

func (t *Table) DropIndex(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.indexes, name)
}

func (t *Table) Index(name string) (*Index, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.indexes[name]
	return idx, ok
}

// EncodeIndexKey builds the same lookup key Index.add/Index.remove use
// internally, so pkg/exec can look up a single equality value without
// reaching into unexported storage state.
func EncodeIndexKey(values []interface{}, positions []int) string {
	return encodeKey(values, positions)
}

func encodeKey(values []interface{}, positions []int) string {
	s := ""
	for i, p := range positions {
		if p < len(values) {
			if i > 0 {
				s += "\x1f"
			}
			s += fmt.Sprintf("%v", values[p])
		}
	}
	return s
}

// Engine owns every table's row heap and writes through txnMgr's WAL
// before mutating in-memory state.
type Engine struct {
	mu      sync.RWMutex
	tables  map[string]*Table
	txnMgr  *txn.Manager
}

func NewEngine(txnMgr *txn.Manager) *Engine {
	return &Engine{tables: map[string]*Table{}, txnMgr: txnMgr}
}

func (e *Engine) CreateTable(name string, columns []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tables[name] = newTable(columns)
}

func (e *Engine) DropTable(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.tables, name)
}

func (e *Engine) Table(name string) (*Table, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tables[name]
	return t, ok
}

// Scan returns every row of table in ascending row-id order — the
// deterministic sort spec §8 relies on for reproducible SeqScan output.
func (t *Table) Scan() []*Row {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]int64, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*Row, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.rows[id])
	}
	return out
}

// Get fetches a single row by id, used by index scans.
func (t *Table) Get(id int64) (*Row, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rows[id]
	return r, ok
}

// Insert logs then applies an INSERT, maintaining every index on the
// table, and returns the assigned row id.
func (e *Engine) Insert(ctx context.Context, tx *txn.Transaction, tableName string, values []interface{}) (int64, *dbfmt.Error) {
	t, ok := e.Table(tableName)
	if !ok {
		return 0, dbfmt.Storage("unknown table %q", tableName)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextRowID
	t.nextRowID++

	if _, err := e.txnMgr.LogWrite(tx, wal.EntryInsert, encodeRecord(tableName, id, values)); err != nil {
		return 0, err
	}

	t.rows[id] = &Row{ID: id, Values: values}
	for _, idx := range t.indexes {
		idx.add(encodeKey(values, idx.Columns), id)
	}
	tx.RecordUndo(func() { e.undoInsert(t, id, values) })
	return id, nil
}

// undoInsert reverses Insert on rollback: drop the row and its index
// entries. Re-locks t itself since RecordUndo's callback runs from
// Manager.Rollback, outside Insert's own critical section.
func (e *Engine) undoInsert(t *Table, id int64, values []interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rows, id)
	for _, idx := range t.indexes {
		idx.remove(encodeKey(values, idx.Columns), id)
	}
}

// Update logs then applies an UPDATE to row id, removing it from every
// index under its old values and re-adding it under the new ones — the
// index-maintenance-on-UPDATE behavior Open Question 3 resolves.
func (e *Engine) Update(ctx context.Context, tx *txn.Transaction, tableName string, id int64, newValues []interface{}) *dbfmt.Error {
	t, ok := e.Table(tableName)
	if !ok {
		return dbfmt.Storage("unknown table %q", tableName)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	old, ok := t.rows[id]
	if !ok {
		return dbfmt.Storage("row %d no longer exists in %q", id, tableName)
	}

	if _, err := e.txnMgr.LogWrite(tx, wal.EntryUpdate, encodeRecord(tableName, id, newValues)); err != nil {
		return err
	}

	for _, idx := range t.indexes {
		idx.remove(encodeKey(old.Values, idx.Columns), id)
	}
	t.rows[id] = &Row{ID: id, Values: newValues}
	for _, idx := range t.indexes {
		idx.add(encodeKey(newValues, idx.Columns), id)
	}
	oldValues := old.Values
	tx.RecordUndo(func() { e.undoUpdate(t, id, oldValues, newValues) })
	return nil
}

// undoUpdate reverses Update on rollback: restore the row's pre-update
// values and re-point every index entry at them.
func (e *Engine) undoUpdate(t *Table, id int64, oldValues, newValues []interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, idx := range t.indexes {
		idx.remove(encodeKey(newValues, idx.Columns), id)
	}
	t.rows[id] = &Row{ID: id, Values: oldValues}
	for _, idx := range t.indexes {
		idx.add(encodeKey(oldValues, idx.Columns), id)
	}
}

// Delete logs then applies a DELETE, removing id from every index.
func (e *Engine) Delete(ctx context.Context, tx *txn.Transaction, tableName string, id int64) *dbfmt.Error {
	t, ok := e.Table(tableName)
	if !ok {
		return dbfmt.Storage("unknown table %q", tableName)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	old, ok := t.rows[id]
	if !ok {
		return nil
	}

	if _, err := e.txnMgr.LogWrite(tx, wal.EntryDelete, encodeRecord(tableName, id, nil)); err != nil {
		return err
	}

	for _, idx := range t.indexes {
		idx.remove(encodeKey(old.Values, idx.Columns), id)
	}
	delete(t.rows, id)
	oldValues := old.Values
	tx.RecordUndo(func() { e.undoDelete(t, id, oldValues) })
	return nil
}

// undoDelete reverses Delete on rollback: re-insert the row under its
// original id and re-add every index entry.
func (e *Engine) undoDelete(t *Table, id int64, values []interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[id] = &Row{ID: id, Values: values}
	for _, idx := range t.indexes {
		idx.add(encodeKey(values, idx.Columns), id)
	}
}
