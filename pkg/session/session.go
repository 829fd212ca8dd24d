// Package session is the engine's per-client entry point: Submit parses
// and runs one statement at a time, tracks whether an explicit
// transaction is active, and owns the cursor table cycles would
// otherwise form between the executor and a CLI. Grounded directly on
// spec §9's re-architecture note ("Replace with explicit message
// passing: the executor returns cursor-state deltas to the session,
// which owns the cursor table... Encapsulate in an explicit Session
// object with well-defined lifecycle; no module-level mutables") and on
// spec §4's statement-serialization rule: within a session, one
// statement completes (commit, abort, or stays ACTIVE) before the next
// is parsed.
package session

import (
	"context"

	"github.com/aodsql/aodsql/pkg/ast"
	"github.com/aodsql/aodsql/pkg/catalog"
	"github.com/aodsql/aodsql/pkg/config"
	"github.com/aodsql/aodsql/pkg/dbfmt"
	"github.com/aodsql/aodsql/pkg/exec"
	"github.com/aodsql/aodsql/pkg/logplan"
	"github.com/aodsql/aodsql/pkg/optimizer"
	"github.com/aodsql/aodsql/pkg/parser"
	"github.com/aodsql/aodsql/pkg/physplan"
	"github.com/aodsql/aodsql/pkg/semantic"
	"github.com/aodsql/aodsql/pkg/storage"
	"github.com/aodsql/aodsql/pkg/txn"
)

// Result is one statement's outcome: either a status string (DML/DDL/
// TCL/SHOW/cursor/EXPLAIN) or a materialized row set (a bare SELECT),
// never both.
type Result struct {
	Status  string
	Schema  []physplan.Column
	Rows    [][]interface{}
	IsQuery bool
}

// Session is one client's serialized statement stream against a shared
// Catalog/Storage/TxnMgr. Statements run in an auto-commit transaction
// unless an explicit BEGIN is in effect, per spec §4's `begin()/commit()/
// rollback()` note.
type Session struct {
	catalog *catalog.Catalog
	storage *storage.Engine
	txnMgr  *txn.Manager
	cursors *exec.CursorTable

	// optStats/tuner carry the adaptive-tuning feedback loop (spec §4.5):
	// optStats is shared with every Optimize call this session makes so a
	// narrowed selectivity learned from one statement informs the next
	// one's estimate, and tuner is what updates it after each query.
	optStats *optimizer.Stats
	tuner    *optimizer.Tuner

	explicitTxn *txn.Transaction
}

// New builds a session against an already-initialized catalog, storage
// engine, and transaction manager (typically shared across every session
// connected to one pkg/engine.Engine). cfg drives the adaptive-tuning
// feedback loop's window/step/clamp behavior; a nil cfg falls back to
// config.Default().
func New(cat *catalog.Catalog, store *storage.Engine, txnMgr *txn.Manager, cfg *config.Config) *Session {
	if cfg == nil {
		cfg = config.Default()
	}
	stats := &optimizer.Stats{SelectivityOverrides: map[string]float64{}}
	return &Session{
		catalog:  cat,
		storage:  store,
		txnMgr:   txnMgr,
		cursors:  exec.NewCursorTable(),
		optStats: stats,
		tuner:    optimizer.NewTuner(cfg, stats),
	}
}

// Submit parses, plans, and runs one SQL statement. It begins an
// auto-commit transaction when no explicit one is active, commits it on
// success, and rolls it back on any execution error before propagating
// that error — the failure semantics spec §4.7 requires ("the executor
// aborts the enclosing transaction and propagates the error to the
// session, which MUST either rollback... or leave the explicit
// transaction in a state where only ROLLBACK is legal").
func (s *Session) Submit(ctx context.Context, sql string) (*Result, *dbfmt.Error) {
	p := parser.New(sql)
	stmt, perr := p.ParseStatement()
	if perr != nil {
		return nil, perr
	}

	if serr := semantic.New(s.catalog).Check(stmt); serr != nil {
		return nil, serr
	}

	logical, lerr := logplan.Build(stmt, s.catalog)
	if lerr != nil {
		return nil, lerr
	}
	optimized := optimizer.New(s.catalog, s.optStats).Optimize(logical)
	phys, berr := physplan.Build(optimized, s.catalog)
	if berr != nil {
		return nil, berr
	}

	autoCommit := s.explicitTxn == nil
	var tx *txn.Transaction
	if autoCommit {
		t, terr := s.txnMgr.Begin(ctx)
		if terr != nil {
			return nil, terr
		}
		tx = t
	} else {
		tx = s.explicitTxn
	}

	execCtx := &exec.Context{
		Catalog: s.catalog,
		Storage: s.storage,
		TxnMgr:  s.txnMgr,
		Txn:     tx,
		Cursors: s.cursors,
	}

	result, runErr := s.run(ctx, execCtx, phys, stmt)
	if runErr != nil {
		if autoCommit {
			s.txnMgr.Rollback(ctx, tx)
		}
		// An explicit transaction that failed mid-statement is left
		// ACTIVE-but-poisoned: only ROLLBACK is legal from here, matching
		// spec §4.7; the session does not roll it back on the caller's
		// behalf since BEGIN...COMMIT is the caller's unit of work.
		return nil, runErr
	}
	s.observeSelectivity(phys, result)

	_, isBegin := stmt.(*ast.BeginStatement)
	if autoCommit && !isBegin {
		// A BEGIN statement's freshly-opened transaction is the new
		// explicit transaction itself, not an auto-commit wrapper around
		// it — it stays ACTIVE past this Submit call.
		if err := s.txnMgr.Commit(ctx, tx); err != nil {
			return nil, err
		}
	}

	switch st := stmt.(type) {
	case *ast.BeginStatement:
		s.explicitTxn = tx
	case *ast.CommitStatement:
		s.explicitTxn = nil
	case *ast.RollbackStatement:
		// A ROLLBACK TO SAVEPOINT leaves the transaction ACTIVE; only a
		// full ROLLBACK ends the explicit transaction.
		if st.ToSavepoint == "" {
			s.explicitTxn = nil
		}
	}

	return result, nil
}

func (s *Session) run(ctx context.Context, c *exec.Context, phys *physplan.Node, stmt ast.Statement) (*Result, *dbfmt.Error) {
	compiled, cerr := exec.Compile(c, phys)
	if cerr != nil {
		return nil, cerr
	}

	if it, ok := compiled.(exec.Iterator); ok {
		schema := it.Schema()
		var rows [][]interface{}
		for {
			b, err := it.Next(ctx)
			if err != nil {
				it.Close()
				return nil, err
			}
			if b == nil {
				break
			}
			for _, r := range b.Rows {
				rows = append(rows, r.Values)
			}
		}
		if err := it.Close(); err != nil {
			return nil, err
		}
		return &Result{Schema: schema, Rows: rows, IsQuery: true}, nil
	}

	op := compiled.(exec.TerminalOp)
	status, err := op.Execute(ctx)
	if err != nil {
		return nil, err
	}
	return &Result{Status: status}, nil
}

// InExplicitTransaction reports whether a BEGIN is currently open on this
// session (subsequent statements run inside it rather than auto-commit).
func (s *Session) InExplicitTransaction() bool {
	return s.explicitTxn != nil
}

// Close releases any cursors the session still holds open. It does not
// touch an in-flight explicit transaction; the caller is expected to
// COMMIT or ROLLBACK before closing, per spec §4's serialization rule.
func (s *Session) Close() {
	s.cursors = exec.NewCursorTable()
}

// observeSelectivity feeds the adaptive-tuning loop after a successful
// query: it only looks at plans shaped as a single IndexScan with no join
// or aggregation above it, since under a join or GROUP BY the final row
// count no longer attributes cleanly to the index predicate's own
// selectivity (spec §4.5's feedback loop is scoped to the predicate that
// produced the estimate it's correcting).
func (s *Session) observeSelectivity(phys *physplan.Node, result *Result) {
	if result == nil || !result.IsQuery {
		return
	}
	scan, ok := singleIndexScan(phys)
	if !ok || scan.Index == nil || len(scan.Index.Columns) == 0 {
		return
	}
	table, ok := s.catalog.Table(scan.Table.Name)
	if !ok || table.RowCount == 0 {
		return
	}
	s.tuner.Observe(scan.Table.Name, scan.Index.Columns[0], table.RowCount, int64(len(result.Rows)))
}

// singleIndexScan returns the lone IndexScan node in phys, or ok=false if
// the plan contains a join, an aggregation, or more than one scan.
func singleIndexScan(n *physplan.Node) (found *physplan.Node, ok bool) {
	ok = true
	var walk func(*physplan.Node)
	walk = func(n *physplan.Node) {
		if n == nil || !ok {
			return
		}
		switch n.Kind {
		case logplan.NodeIndexScan:
			if found != nil {
				ok = false
				return
			}
			found = n
		case logplan.NodeNestedLoopJoin, logplan.NodeHashJoin, logplan.NodeSortMergeJoin, logplan.NodeHashAggregate:
			ok = false
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(n)
	if found == nil {
		ok = false
	}
	return found, ok
}
