package exec

import (
	"context"
	"fmt"
	"strings"

	"github.com/aodsql/aodsql/pkg/ast"
	"github.com/aodsql/aodsql/pkg/dbfmt"
	"github.com/aodsql/aodsql/pkg/physplan"
)

// Project evaluates a select list against each child row, expanding
// StarExpr to every child column, and optionally dedups for SELECT
// DISTINCT by hashing the projected values.
type Project struct {
	child    Iterator
	exprs    []ast.Expression
	schema   []physplan.Column
	eval     *Evaluator
	distinct bool
	seen     map[string]bool
}

func NewProject(c *Context, child Iterator, exprs []ast.Expression, schema []physplan.Column, distinct bool) *Project {
	p := &Project{child: child, exprs: exprs, schema: schema, eval: NewEvaluator(c, child.Schema())}
	p.distinct = distinct
	if distinct {
		p.seen = map[string]bool{}
	}
	return p
}

func (p *Project) Schema() []physplan.Column { return p.schema }

func (p *Project) Next(ctx context.Context) (*Batch, *dbfmt.Error) {
	for {
		b, err := p.child.Next(ctx)
		if err != nil {
			return nil, err
		}
		if b == nil {
			return nil, nil
		}
		out := &Batch{Rows: make([]Row, 0, len(b.Rows))}
		for _, row := range b.Rows {
			values, err := p.project(ctx, row)
			if err != nil {
				return nil, err
			}
			if p.distinct {
				key := fmt.Sprint(values)
				if p.seen[key] {
					continue
				}
				p.seen[key] = true
			}
			out.Rows = append(out.Rows, Row{RowID: row.RowID, Values: values})
		}
		if len(out.Rows) > 0 {
			return out, nil
		}
	}
}

func (p *Project) project(ctx context.Context, row Row) ([]interface{}, *dbfmt.Error) {
	var values []interface{}
	for _, e := range p.exprs {
		if star, ok := e.(*ast.StarExpr); ok {
			if star.Table == "" {
				values = append(values, row.Values...)
				continue
			}
			for i, col := range p.eval.schema {
				if strings.EqualFold(col.Table, star.Table) && i < len(row.Values) {
					values = append(values, row.Values[i])
				}
			}
			continue
		}
		v, err := p.eval.Eval(ctx, e, row)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func (p *Project) Close() *dbfmt.Error { return p.child.Close() }
