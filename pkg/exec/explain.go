package exec

import (
	"context"
	"fmt"
	"strings"

	"github.com/aodsql/aodsql/pkg/ast"
	"github.com/aodsql/aodsql/pkg/dbfmt"
	"github.com/aodsql/aodsql/pkg/physplan"
)

// ExplainOp renders a physical plan's shape and cost estimate, and for
// EXPLAIN ANALYZE additionally runs it to completion (for read-side plans)
// and appends the total number of rows the plan produced. No per-node row
// counts or timings are recorded. Grounded on
// original_source/engine/operator.py's base-operator Profile placement.
type ExplainOp struct {
	c       *Context
	inner   *physplan.Node
	analyze bool
}

func NewExplainOp(c *Context, node *physplan.Node) (*ExplainOp, *dbfmt.Error) {
	stmt := node.Stmt.(*ast.ExplainStatement)
	return &ExplainOp{c: c, inner: node.Children[0], analyze: stmt.Analyze}, nil
}

// Profile holds one operator's execution statistics. ExplainOp does not
// fill it in; EXPLAIN ANALYZE reports only the plan's total row count.
type Profile struct {
	Node     *physplan.Node
	Rows     int64
	Duration int64 // nanoseconds
}

func (op *ExplainOp) Execute(ctx context.Context) (string, *dbfmt.Error) {
	var sb strings.Builder
	explainTree(&sb, op.inner, 0)

	if !op.analyze {
		return sb.String(), nil
	}

	it, err := CompileIterator(op.c, op.inner)
	if err != nil {
		return "", err
	}
	var rows int64
	for {
		b, err := it.Next(ctx)
		if err != nil {
			return "", err
		}
		if b == nil {
			break
		}
		rows += int64(len(b.Rows))
	}
	if err := it.Close(); err != nil {
		return "", err
	}
	fmt.Fprintf(&sb, "\n(actual rows=%d)", rows)
	return sb.String(), nil
}

func explainTree(sb *strings.Builder, n *physplan.Node, depth int) {
	if n == nil {
		return
	}
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(sb, "%s%s", indent, n.Kind)
	if n.Table != nil {
		fmt.Fprintf(sb, " %s", n.Table.Name)
	}
	if n.Index != nil {
		fmt.Fprintf(sb, " USING %s", n.Index.Name)
	}
	fmt.Fprintf(sb, " (cost=%.2f rows=%d)\n", n.Cost.Total, n.EstRows)
	for _, c := range n.Children {
		explainTree(sb, c, depth+1)
	}
}
