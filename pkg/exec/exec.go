// Package exec is the volcano-style execution engine: Next()-pulling
// iterator operators for reads and a fixed-format Execute() for
// terminal DML/DDL/TCL statements. Grounded on ramsql's Tx dispatch-table
// pattern (other_examples, engine-executor-tx.go's opsExecutors map keyed
// by statement token) for the terminal-operator dispatch in compile.go,
// and directly on spec §4.7's per-operator Next()/execute() contracts for
// the iterator operators.
package exec

import (
	"context"
	"strconv"

	"github.com/aodsql/aodsql/pkg/catalog"
	"github.com/aodsql/aodsql/pkg/dbfmt"
	"github.com/aodsql/aodsql/pkg/physplan"
	"github.com/aodsql/aodsql/pkg/storage"
	"github.com/aodsql/aodsql/pkg/txn"
)

// BatchSize is the number of rows a producing operator pulls at a time,
// per spec §4.7's fixed batch width.
const BatchSize = 1024

// Row is one tuple flowing through the engine: its storage row id (used
// by UPDATE/DELETE to address the underlying heap entry) and its column
// values in the producing operator's OutputSchema order.
type Row struct {
	RowID  int64
	Values []interface{}
}

// Batch is one pull's worth of rows, never larger than BatchSize.
type Batch struct {
	Rows []Row
}

// Iterator is a producing (read-side) operator: SeqScan, IndexScan,
// Filter, Project, Sort, HashAggregate, joins, Limit.
type Iterator interface {
	// Next returns the next batch, or a nil batch once exhausted.
	Next(ctx context.Context) (*Batch, *dbfmt.Error)
	Schema() []physplan.Column
	Close() *dbfmt.Error
}

// TerminalOp is a statement that produces a single status string rather
// than a row stream: INSERT/UPDATE/DELETE, every DDL statement, TCL
// statements, SHOW, and cursor operations.
type TerminalOp interface {
	Execute(ctx context.Context) (string, *dbfmt.Error)
}

// Context bundles everything an operator needs to resolve storage/catalog
// state and participate in the active transaction's locking and logging.
type Context struct {
	Catalog *catalog.Catalog
	Storage *storage.Engine
	TxnMgr  *txn.Manager
	Txn     *txn.Transaction
	Cursors *CursorTable
}

// lockTable acquires a lock on the whole table as a resource, taken by a
// scan that reads every row (SeqScan, IndexScan's lookup step) and by DML
// on its target. Reads and UPDATE/DELETE take Shared (UPDATE/DELETE then
// lock each modified row with lockRow), INSERT takes Exclusive. DDL
// statements take no lock.
func (c *Context) lockTable(ctx context.Context, table string, mode txn.LockMode) *dbfmt.Error {
	return c.TxnMgr.Locks().Acquire(ctx, c.Txn.ID, txn.ResourceID(table), mode)
}

// lockRow acquires a lock on one row id within table, the row-granularity
// locking spec §4.8 requires by default: UPDATE/DELETE take this Exclusive
// on each row they actually modify, rather than locking the whole table up
// front, so two transactions touching disjoint rows don't block each other.
func (c *Context) lockRow(ctx context.Context, table string, rowID int64, mode txn.LockMode) *dbfmt.Error {
	return c.TxnMgr.Locks().Acquire(ctx, c.Txn.ID, rowResource(table, rowID), mode)
}

func rowResource(table string, rowID int64) txn.ResourceID {
	return txn.ResourceID(table + ":" + strconv.FormatInt(rowID, 10))
}
