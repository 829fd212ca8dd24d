package exec

import (
	"context"
	"fmt"

	"github.com/aodsql/aodsql/pkg/ast"
	"github.com/aodsql/aodsql/pkg/dbfmt"
	"github.com/aodsql/aodsql/pkg/physplan"
)

// aggState accumulates one aggregate function's running value for one
// group.
type aggState struct {
	fn       ast.AggFunc
	count    int64
	sum      float64
	min, max interface{}
	haveMin  bool
}

func (s *aggState) add(v interface{}) {
	s.count++
	if f, ok := asFloat(v); ok {
		s.sum += f
	}
	if v == nil {
		return
	}
	if !s.haveMin {
		s.min, s.max = v, v
		s.haveMin = true
		return
	}
	if lt, _ := compareOrdered(ast.OpLt, v, s.min); lt.(bool) {
		s.min = v
	}
	if gt, _ := compareOrdered(ast.OpGt, v, s.max); gt.(bool) {
		s.max = v
	}
}

func (s *aggState) result() interface{} {
	switch s.fn {
	case ast.AggCount:
		return s.count
	case ast.AggSum:
		return s.sum
	case ast.AggAvg:
		if s.count == 0 {
			return nil
		}
		return s.sum / float64(s.count)
	case ast.AggMin:
		return s.min
	case ast.AggMax:
		return s.max
	default:
		return nil
	}
}

// HashAggregate groups its child's rows by GroupBy key, computing every
// aggregate column over each group, then applies the HAVING filter —
// fully materializing the child since a hash-based grouping pass is
// inherently a full-input operator (spec §4.7's pipeline-breaker note).
type HashAggregate struct {
	child      Iterator
	groupBy    []ast.Expression
	aggregates []ast.Expression
	having     ast.Expression
	eval       *Evaluator
	schema     []physplan.Column

	out  []Row
	pos  int
	done bool
}

func NewHashAggregate(c *Context, child Iterator, groupBy, aggregates []ast.Expression, having ast.Expression, schema []physplan.Column) *HashAggregate {
	return &HashAggregate{
		child:      child,
		groupBy:    groupBy,
		aggregates: aggregates,
		having:     having,
		eval:       NewEvaluator(c, child.Schema()),
		schema:     schema,
	}
}

func (h *HashAggregate) Schema() []physplan.Column { return h.schema }

func (h *HashAggregate) Next(ctx context.Context) (*Batch, *dbfmt.Error) {
	if h.out == nil && !h.done {
		if err := h.compute(ctx); err != nil {
			return nil, err
		}
	}
	if h.pos >= len(h.out) {
		h.done = true
		return nil, nil
	}
	end := h.pos + BatchSize
	if end > len(h.out) {
		end = len(h.out)
	}
	batch := &Batch{Rows: h.out[h.pos:end]}
	h.pos = end
	return batch, nil
}

func (h *HashAggregate) compute(ctx context.Context) *dbfmt.Error {
	type group struct {
		keyValues []interface{}
		states    []*aggState
		sampleRow Row
	}
	groups := map[string]*group{}
	var order []string

	for {
		b, err := h.child.Next(ctx)
		if err != nil {
			return err
		}
		if b == nil {
			break
		}
		for _, row := range b.Rows {
			keyValues := make([]interface{}, len(h.groupBy))
			for i, g := range h.groupBy {
				v, err := h.eval.Eval(ctx, g, row)
				if err != nil {
					return err
				}
				keyValues[i] = v
			}
			key := fmt.Sprint(keyValues)
			g, ok := groups[key]
			if !ok {
				g = &group{keyValues: keyValues, sampleRow: row}
				g.states = make([]*aggState, len(h.aggregates))
				for i, a := range h.aggregates {
					if agg, ok := unwrapAggregate(a); ok {
						g.states[i] = &aggState{fn: agg.Func}
					}
				}
				groups[key] = g
				order = append(order, key)
			}
			for i, a := range h.aggregates {
				if g.states[i] == nil {
					continue
				}
				agg, _ := unwrapAggregate(a)
				var v interface{}
				if !agg.Star {
					var err *dbfmt.Error
					v, err = h.eval.Eval(ctx, agg.Arg, row)
					if err != nil {
						return err
					}
				}
				g.states[i].add(v)
			}
		}
	}

	if len(h.groupBy) == 0 && len(order) == 0 {
		// No GROUP BY and zero input rows still produce one group: COUNT(*)
		// over an empty table is 0, not "no rows", per spec §4.7/§8.
		g := &group{states: make([]*aggState, len(h.aggregates))}
		for i, a := range h.aggregates {
			if agg, ok := unwrapAggregate(a); ok {
				g.states[i] = &aggState{fn: agg.Func}
			}
		}
		groups[""] = g
		order = append(order, "")
	}

	for _, key := range order {
		g := groups[key]
		values := make([]interface{}, len(h.aggregates))
		for i, a := range h.aggregates {
			if g.states[i] != nil {
				values[i] = g.states[i].result()
				continue
			}
			v, err := h.eval.Eval(ctx, a, g.sampleRow)
			if err != nil {
				return err
			}
			values[i] = v
		}
		row := Row{RowID: g.sampleRow.RowID, Values: values}
		if h.having != nil {
			bound := map[string]interface{}{}
			for i, a := range h.aggregates {
				bound[a.String()] = values[i]
				if agg, ok := unwrapAggregate(a); ok {
					bound[agg.String()] = values[i]
				}
				if aliased, ok := a.(*ast.AliasedExpr); ok && aliased.Alias != "" {
					bound[aliased.Alias] = values[i]
				}
			}
			for i, g2 := range h.groupBy {
				bound[g2.String()] = g.keyValues[i]
			}
			ok, err := evalHavingBool(h.having, bound)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
		}
		h.out = append(h.out, row)
	}
	if h.out == nil {
		h.out = []Row{}
	}
	return nil
}

func unwrapAggregate(e ast.Expression) (*ast.AggregateExpr, bool) {
	switch v := e.(type) {
	case *ast.AggregateExpr:
		return v, true
	case *ast.AliasedExpr:
		return unwrapAggregate(v.Expr)
	default:
		return nil, false
	}
}

func (h *HashAggregate) Close() *dbfmt.Error { return h.child.Close() }

// evalHavingExpr evaluates a HAVING expression against already-aggregated
// group values: every aggregate call or GROUP BY column it can reference is
// pre-bound by expression text in bound (HAVING never sees raw rows, only
// the group's computed aggregates and grouping keys).
func evalHavingExpr(expr ast.Expression, bound map[string]interface{}) (interface{}, *dbfmt.Error) {
	if v, ok := bound[expr.String()]; ok {
		return v, nil
	}
	switch v := expr.(type) {
	case *ast.Literal:
		return v.Value, nil
	case *ast.UnaryExpr:
		operand, err := evalHavingExpr(v.Operand, bound)
		if err != nil {
			return nil, err
		}
		if v.Op == "NOT" {
			b, _ := operand.(bool)
			return !b, nil
		}
		return negate(operand)
	case *ast.BinaryExpr:
		if v.Op == ast.OpAnd || v.Op == ast.OpOr {
			left, err := evalHavingBool(v.Left, bound)
			if err != nil {
				return nil, err
			}
			if v.Op == ast.OpAnd && !left {
				return false, nil
			}
			if v.Op == ast.OpOr && left {
				return true, nil
			}
			return evalHavingBool(v.Right, bound)
		}
		left, err := evalHavingExpr(v.Left, bound)
		if err != nil {
			return nil, err
		}
		right, err := evalHavingExpr(v.Right, bound)
		if err != nil {
			return nil, err
		}
		if left == nil || right == nil {
			return nil, nil
		}
		switch v.Op {
		case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv, ast.OpMod:
			return arith(v.Op, left, right)
		case ast.OpEq:
			return compareEqual(left, right), nil
		case ast.OpNotEq:
			return !compareEqual(left, right), nil
		case ast.OpLt, ast.OpLte, ast.OpGt, ast.OpGte:
			return compareOrdered(v.Op, left, right)
		default:
			return nil, dbfmt.Exec("unsupported HAVING operator %v", v.Op)
		}
	default:
		return nil, dbfmt.Exec("expression %q not available in HAVING", expr.String())
	}
}

func evalHavingBool(expr ast.Expression, bound map[string]interface{}) (bool, *dbfmt.Error) {
	if expr == nil {
		return true, nil
	}
	v, err := evalHavingExpr(expr, bound)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}
