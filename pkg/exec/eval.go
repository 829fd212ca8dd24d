package exec

import (
	"context"
	"fmt"
	"strings"

	"github.com/aodsql/aodsql/pkg/ast"
	"github.com/aodsql/aodsql/pkg/dbfmt"
	"github.com/aodsql/aodsql/pkg/physplan"
)

// Evaluator interprets an ast.Expression against one row given its
// producing operator's schema. Kept here rather than in pkg/physplan since
// evaluation needs live row data, not just the bound plan shape.
type Evaluator struct {
	ctx    *Context
	schema []physplan.Column
}

func NewEvaluator(c *Context, schema []physplan.Column) *Evaluator {
	return &Evaluator{ctx: c, schema: schema}
}

// Eval returns the runtime value of expr against row.
func (e *Evaluator) Eval(ctx context.Context, expr ast.Expression, row Row) (interface{}, *dbfmt.Error) {
	switch v := expr.(type) {
	case *ast.Literal:
		return v.Value, nil
	case *ast.ColumnRef:
		return e.resolveColumn(row, v)
	case *ast.AliasedExpr:
		if agg, ok := v.Expr.(*ast.AggregateExpr); ok {
			name := v.Alias
			if name == "" {
				name = agg.String()
			}
			return e.resolveComputedColumn(row, name)
		}
		return e.Eval(ctx, v.Expr, row)
	case *ast.UnaryExpr:
		return e.evalUnary(ctx, v, row)
	case *ast.BinaryExpr:
		return e.evalBinary(ctx, v, row)
	case *ast.BetweenExpr:
		return e.evalBetween(ctx, v, row)
	case *ast.InListExpr:
		return e.evalInList(ctx, v, row)
	case *ast.CaseExpr:
		return e.evalCase(ctx, v, row)
	case *ast.AggregateExpr:
		// An AggregateExpr reaching the evaluator means it was already
		// computed by a HashAggregate below us — resolve it as a plain
		// column lookup by its rendered name rather than re-aggregating.
		return e.resolveComputedColumn(row, aggregateColumnName(v))
	case *ast.StarExpr:
		return nil, dbfmt.Exec("cannot evaluate '*' as a scalar expression")
	default:
		return nil, dbfmt.Exec("unsupported expression in evaluator: %T", expr)
	}
}

// EvalBool evaluates expr and coerces the result to bool, treating NULL
// (nil) as false, the standard SQL three-valued-to-boolean collapse used
// by WHERE/HAVING/ON/JOIN predicates.
func (e *Evaluator) EvalBool(ctx context.Context, expr ast.Expression, row Row) (bool, *dbfmt.Error) {
	if expr == nil {
		return true, nil
	}
	v, err := e.Eval(ctx, expr, row)
	if err != nil {
		return false, err
	}
	if v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, dbfmt.Exec("expected boolean expression, got %T", v)
	}
	return b, nil
}

func aggregateColumnName(a *ast.AggregateExpr) string {
	if a.Alias != "" {
		return a.Alias
	}
	return a.String()
}

func (e *Evaluator) resolveComputedColumn(row Row, name string) (interface{}, *dbfmt.Error) {
	for i, col := range e.schema {
		if strings.EqualFold(col.Name, name) && i < len(row.Values) {
			return row.Values[i], nil
		}
	}
	return nil, dbfmt.Exec("column %q not found in row", name)
}

func (e *Evaluator) resolveColumn(row Row, ref *ast.ColumnRef) (interface{}, *dbfmt.Error) {
	idx := -1
	for i, col := range e.schema {
		if ref.Table != "" && !strings.EqualFold(col.Table, ref.Table) {
			continue
		}
		if strings.EqualFold(col.Name, ref.Column) {
			idx = i
			if ref.Table != "" {
				break
			}
		}
	}
	if idx == -1 || idx >= len(row.Values) {
		return nil, dbfmt.Exec("column %q not found in row", ref.Column)
	}
	return row.Values[idx], nil
}

func (e *Evaluator) evalUnary(ctx context.Context, u *ast.UnaryExpr, row Row) (interface{}, *dbfmt.Error) {
	operand, err := e.Eval(ctx, u.Operand, row)
	if err != nil {
		return nil, err
	}
	switch u.Op {
	case "NOT":
		b, ok := operand.(bool)
		if !ok {
			if operand == nil {
				return nil, nil
			}
			return nil, dbfmt.Exec("NOT applied to non-boolean value %v", operand)
		}
		return !b, nil
	case "-":
		return negate(operand)
	default:
		return nil, dbfmt.Exec("unsupported unary operator %q", u.Op)
	}
}

func negate(v interface{}) (interface{}, *dbfmt.Error) {
	switch n := v.(type) {
	case int64:
		return -n, nil
	case float64:
		return -n, nil
	default:
		return nil, dbfmt.Exec("unary minus applied to non-numeric value %v", v)
	}
}

func (e *Evaluator) evalBinary(ctx context.Context, b *ast.BinaryExpr, row Row) (interface{}, *dbfmt.Error) {
	if b.Op == ast.OpAnd || b.Op == ast.OpOr {
		left, err := e.EvalBool(ctx, b.Left, row)
		if err != nil {
			return nil, err
		}
		if b.Op == ast.OpAnd && !left {
			return false, nil
		}
		if b.Op == ast.OpOr && left {
			return true, nil
		}
		return e.EvalBool(ctx, b.Right, row)
	}

	left, err := e.Eval(ctx, b.Left, row)
	if err != nil {
		return nil, err
	}
	right, err := e.Eval(ctx, b.Right, row)
	if err != nil {
		return nil, err
	}

	// IS [NOT] NULL is lowered by the parser to `expr = NULL` / `expr <> NULL`.
	if _, isNullLit := b.Right.(*ast.Literal); isNullLit && b.Right.(*ast.Literal).Kind == ast.NullLiteral {
		switch b.Op {
		case ast.OpEq:
			return left == nil, nil
		case ast.OpNotEq:
			return left != nil, nil
		}
	}
	if left == nil || right == nil {
		return nil, nil
	}

	switch b.Op {
	case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv, ast.OpMod:
		return arith(b.Op, left, right)
	case ast.OpEq:
		return compareEqual(left, right), nil
	case ast.OpNotEq:
		return !compareEqual(left, right), nil
	case ast.OpLt, ast.OpLte, ast.OpGt, ast.OpGte:
		return compareOrdered(b.Op, left, right)
	case ast.OpLike:
		return likeMatch(fmt.Sprintf("%v", left), fmt.Sprintf("%v", right)), nil
	default:
		return nil, dbfmt.Exec("unsupported binary operator %v", b.Op)
	}
}

func (e *Evaluator) evalBetween(ctx context.Context, b *ast.BetweenExpr, row Row) (interface{}, *dbfmt.Error) {
	v, err := e.Eval(ctx, b.Expr, row)
	if err != nil {
		return nil, err
	}
	lo, err := e.Eval(ctx, b.Low, row)
	if err != nil {
		return nil, err
	}
	hi, err := e.Eval(ctx, b.High, row)
	if err != nil {
		return nil, err
	}
	if v == nil || lo == nil || hi == nil {
		return nil, nil
	}
	geLo, err := compareOrdered(ast.OpGte, v, lo)
	if err != nil {
		return nil, err
	}
	leHi, err := compareOrdered(ast.OpLte, v, hi)
	if err != nil {
		return nil, err
	}
	result := geLo.(bool) && leHi.(bool)
	if b.Negated {
		result = !result
	}
	return result, nil
}

func (e *Evaluator) evalInList(ctx context.Context, in *ast.InListExpr, row Row) (interface{}, *dbfmt.Error) {
	v, err := e.Eval(ctx, in.Expr, row)
	if err != nil {
		return nil, err
	}
	found := false
	for _, item := range in.List {
		iv, err := e.Eval(ctx, item, row)
		if err != nil {
			return nil, err
		}
		if compareEqual(v, iv) {
			found = true
			break
		}
	}
	if in.Negated {
		return !found, nil
	}
	return found, nil
}

func (e *Evaluator) evalCase(ctx context.Context, c *ast.CaseExpr, row Row) (interface{}, *dbfmt.Error) {
	for _, w := range c.Whens {
		ok, err := e.EvalBool(ctx, w.Cond, row)
		if err != nil {
			return nil, err
		}
		if ok {
			return e.Eval(ctx, w.Result, row)
		}
	}
	if c.Else != nil {
		return e.Eval(ctx, c.Else, row)
	}
	return nil, nil
}

func arith(op ast.BinaryOp, left, right interface{}) (interface{}, *dbfmt.Error) {
	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if !lok || !rok {
		return nil, dbfmt.Exec("arithmetic on non-numeric operand")
	}
	_, bothInt := left.(int64)
	_, bothInt2 := right.(int64)
	var result float64
	switch op {
	case ast.OpAdd:
		result = lf + rf
	case ast.OpSub:
		result = lf - rf
	case ast.OpMul:
		result = lf * rf
	case ast.OpDiv:
		if rf == 0 {
			return nil, dbfmt.Exec("division by zero")
		}
		result = lf / rf
	case ast.OpMod:
		if rf == 0 {
			return nil, dbfmt.Exec("modulo by zero")
		}
		result = float64(int64(lf) % int64(rf))
	}
	if bothInt && bothInt2 && op != ast.OpDiv {
		return int64(result), nil
	}
	return result, nil
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func compareEqual(a, b interface{}) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compareOrdered(op ast.BinaryOp, a, b interface{}) (interface{}, *dbfmt.Error) {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return orderedResult(op, af < bf, af == bf, af > bf), nil
		}
	}
	as, bs := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
	return orderedResult(op, as < bs, as == bs, as > bs), nil
}

func orderedResult(op ast.BinaryOp, lt, eq, gt bool) bool {
	switch op {
	case ast.OpLt:
		return lt
	case ast.OpLte:
		return lt || eq
	case ast.OpGt:
		return gt
	case ast.OpGte:
		return gt || eq
	default:
		return false
	}
}

// likeMatch implements SQL LIKE with '%' (any run) and '_' (single char)
// wildcards via a small recursive matcher — adequate for the spec's
// pattern subset without pulling in a regex translation layer.
func likeMatch(s, pattern string) bool {
	return likeMatchRunes([]rune(s), []rune(pattern))
}

func likeMatchRunes(s, p []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	if p[0] == '%' {
		if likeMatchRunes(s, p[1:]) {
			return true
		}
		for i := 0; i < len(s); i++ {
			if likeMatchRunes(s[i+1:], p[1:]) {
				return true
			}
		}
		return false
	}
	if len(s) == 0 {
		return false
	}
	if p[0] == '_' || p[0] == s[0] {
		return likeMatchRunes(s[1:], p[1:])
	}
	return false
}
