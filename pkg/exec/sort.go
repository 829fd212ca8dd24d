package exec

import (
	"context"
	"sort"

	"github.com/aodsql/aodsql/pkg/ast"
	"github.com/aodsql/aodsql/pkg/dbfmt"
	"github.com/aodsql/aodsql/pkg/physplan"
)

// Sort materializes its child's entire output and returns it in
// OrderBy order using a stable sort, per spec §8's sort-stability
// requirement for ties.
type Sort struct {
	child   Iterator
	orderBy []ast.OrderByItem
	eval    *Evaluator

	rows []Row
	pos  int
	done bool
}

func NewSort(c *Context, child Iterator, orderBy []ast.OrderByItem) *Sort {
	return &Sort{child: child, orderBy: orderBy, eval: NewEvaluator(c, child.Schema())}
}

func (s *Sort) Schema() []physplan.Column { return s.child.Schema() }

func (s *Sort) Next(ctx context.Context) (*Batch, *dbfmt.Error) {
	if s.rows == nil && !s.done {
		for {
			b, err := s.child.Next(ctx)
			if err != nil {
				return nil, err
			}
			if b == nil {
				break
			}
			s.rows = append(s.rows, b.Rows...)
		}
		if s.rows == nil {
			s.rows = []Row{}
		}
		var sortErr *dbfmt.Error
		sort.SliceStable(s.rows, func(i, j int) bool {
			if sortErr != nil {
				return false
			}
			less, err := s.less(ctx, s.rows[i], s.rows[j])
			if err != nil {
				sortErr = err
			}
			return less
		})
		if sortErr != nil {
			return nil, sortErr
		}
	}
	if s.pos >= len(s.rows) {
		s.done = true
		return nil, nil
	}
	end := s.pos + BatchSize
	if end > len(s.rows) {
		end = len(s.rows)
	}
	batch := &Batch{Rows: s.rows[s.pos:end]}
	s.pos = end
	return batch, nil
}

func (s *Sort) less(ctx context.Context, a, b Row) (bool, *dbfmt.Error) {
	for _, item := range s.orderBy {
		av, err := s.eval.Eval(ctx, item.Expr, a)
		if err != nil {
			return false, err
		}
		bv, err := s.eval.Eval(ctx, item.Expr, b)
		if err != nil {
			return false, err
		}
		if compareEqual(av, bv) {
			continue
		}
		lt, err := compareOrdered(ast.OpLt, av, bv)
		if err != nil {
			return false, err
		}
		if item.Desc {
			return !lt.(bool), nil
		}
		return lt.(bool), nil
	}
	return false, nil
}

func (s *Sort) Close() *dbfmt.Error { return s.child.Close() }

// Limit skips Offset rows then yields up to Limit rows, passing batches
// through once the window is exhausted on the producing side.
type Limit struct {
	child  Iterator
	limit  *int64
	offset *int64

	skipped int64
	emitted int64
	done    bool
}

func NewLimit(child Iterator, limit, offset *int64) *Limit {
	return &Limit{child: child, limit: limit, offset: offset}
}

func (l *Limit) Schema() []physplan.Column { return l.child.Schema() }

func (l *Limit) Next(ctx context.Context) (*Batch, *dbfmt.Error) {
	if l.done {
		return nil, nil
	}
	offset := int64(0)
	if l.offset != nil {
		offset = *l.offset
	}
	for {
		b, err := l.child.Next(ctx)
		if err != nil {
			return nil, err
		}
		if b == nil {
			l.done = true
			return nil, nil
		}
		var out []Row
		for _, row := range b.Rows {
			if l.skipped < offset {
				l.skipped++
				continue
			}
			if l.limit != nil && l.emitted >= *l.limit {
				l.done = true
				break
			}
			out = append(out, row)
			l.emitted++
		}
		if len(out) > 0 {
			if l.limit != nil && l.emitted >= *l.limit {
				l.done = true
			}
			return &Batch{Rows: out}, nil
		}
		if l.done {
			return nil, nil
		}
	}
}

func (l *Limit) Close() *dbfmt.Error { return l.child.Close() }
