package exec

import (
	"context"

	"github.com/aodsql/aodsql/pkg/ast"
	"github.com/aodsql/aodsql/pkg/dbfmt"
	"github.com/aodsql/aodsql/pkg/physplan"
)

// Filter pulls batches from its child and keeps only rows whose predicate
// evaluates true, per spec §4.7's row-at-a-time predicate semantics
// (applied batch-at-a-time here purely as a pull-size optimization).
type Filter struct {
	child     Iterator
	predicate ast.Expression
	eval      *Evaluator
}

func NewFilter(c *Context, child Iterator, predicate ast.Expression) *Filter {
	return &Filter{child: child, predicate: predicate, eval: NewEvaluator(c, child.Schema())}
}

func (f *Filter) Schema() []physplan.Column { return f.child.Schema() }

func (f *Filter) Next(ctx context.Context) (*Batch, *dbfmt.Error) {
	for {
		b, err := f.child.Next(ctx)
		if err != nil {
			return nil, err
		}
		if b == nil {
			return nil, nil
		}
		out := &Batch{Rows: make([]Row, 0, len(b.Rows))}
		for _, row := range b.Rows {
			ok, err := f.eval.EvalBool(ctx, f.predicate, row)
			if err != nil {
				return nil, err
			}
			if ok {
				out.Rows = append(out.Rows, row)
			}
		}
		if len(out.Rows) > 0 {
			return out, nil
		}
		// Keep pulling if this batch filtered down to nothing, rather than
		// returning an empty non-nil batch that would read as exhaustion.
	}
}

func (f *Filter) Close() *dbfmt.Error { return f.child.Close() }
