package exec

import (
	"context"

	"github.com/aodsql/aodsql/pkg/ast"
	"github.com/aodsql/aodsql/pkg/dbfmt"
	"github.com/aodsql/aodsql/pkg/physplan"
	"github.com/aodsql/aodsql/pkg/storage"
	"github.com/aodsql/aodsql/pkg/txn"
)

// SeqScan pulls every row of a table in BatchSize chunks, in the
// deterministic ascending-row-id order storage.Table.Scan guarantees.
type SeqScan struct {
	c         *Context
	table     *storage.Table
	tableName string
	schema    []physplan.Column
	rows      []*storage.Row
	pos       int
	done      bool
}

func NewSeqScan(c *Context, node *physplan.Node) (*SeqScan, *dbfmt.Error) {
	t, ok := c.Storage.Table(node.Table.Name)
	if !ok {
		return nil, dbfmt.Storage("unknown table %q", node.Table.Name)
	}
	return &SeqScan{c: c, table: t, tableName: node.Table.Name, schema: node.OutputSchema}, nil
}

func (s *SeqScan) Schema() []physplan.Column { return s.schema }

func (s *SeqScan) Next(ctx context.Context) (*Batch, *dbfmt.Error) {
	if s.done {
		return nil, nil
	}
	if s.rows == nil {
		if err := s.c.lockTable(ctx, s.tableName, txn.Shared); err != nil {
			return nil, err
		}
		s.rows = s.table.Scan()
	}
	if s.pos >= len(s.rows) {
		s.done = true
		return nil, nil
	}
	end := s.pos + BatchSize
	if end > len(s.rows) {
		end = len(s.rows)
	}
	batch := &Batch{Rows: make([]Row, 0, end-s.pos)}
	for _, r := range s.rows[s.pos:end] {
		batch.Rows = append(batch.Rows, Row{RowID: r.ID, Values: r.Values})
	}
	s.pos = end
	return batch, nil
}

func (s *SeqScan) Close() *dbfmt.Error { return nil }

// IndexScan looks up rows via an equality predicate resolved to an index
// key by the optimizer (optimizer.tryIndexScan), falling back to a full
// scan of the looked-up row ids rather than the whole table. The index key
// only answers one conjunct of the original WHERE clause; any other
// conjuncts travel along as Residual and are re-checked per row here, so a
// multi-conjunct predicate stays correct once one conjunct is satisfied by
// the index alone.
type IndexScan struct {
	c         *Context
	table     *storage.Table
	tableName string
	index     *storage.Index
	schema    []physplan.Column
	key       string
	residual  ast.Expression
	eval      *Evaluator
	ids       []int64
	pos       int
	done      bool
}

func NewIndexScan(c *Context, node *physplan.Node, key string) (*IndexScan, *dbfmt.Error) {
	t, ok := c.Storage.Table(node.Table.Name)
	if !ok {
		return nil, dbfmt.Storage("unknown table %q", node.Table.Name)
	}
	idx, ok := t.Index(node.Index.Name)
	if !ok {
		return nil, dbfmt.Storage("unknown index %q", node.Index.Name)
	}
	return &IndexScan{
		c: c, table: t, tableName: node.Table.Name, index: idx, schema: node.OutputSchema, key: key,
		residual: node.Residual, eval: NewEvaluator(c, node.OutputSchema),
	}, nil
}

func (s *IndexScan) Schema() []physplan.Column { return s.schema }

func (s *IndexScan) Next(ctx context.Context) (*Batch, *dbfmt.Error) {
	for {
		if s.done {
			return nil, nil
		}
		if s.ids == nil {
			if err := s.c.lockTable(ctx, s.tableName, txn.Shared); err != nil {
				return nil, err
			}
			s.ids = s.index.Lookup(s.key)
		}
		if s.pos >= len(s.ids) {
			s.done = true
			return nil, nil
		}
		end := s.pos + BatchSize
		if end > len(s.ids) {
			end = len(s.ids)
		}
		batch := &Batch{}
		for _, id := range s.ids[s.pos:end] {
			r, ok := s.table.Get(id)
			if !ok {
				continue
			}
			row := Row{RowID: r.ID, Values: r.Values}
			if s.residual != nil {
				ok, err := s.eval.EvalBool(ctx, s.residual, row)
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
			}
			batch.Rows = append(batch.Rows, row)
		}
		s.pos = end
		if len(batch.Rows) > 0 {
			return batch, nil
		}
		// Every row in this chunk of ids failed the residual predicate;
		// keep pulling rather than returning an empty non-nil batch.
	}
}

func (s *IndexScan) Close() *dbfmt.Error { return nil }
