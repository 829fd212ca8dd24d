package exec

import (
	"context"
	"fmt"
	"sort"

	"github.com/aodsql/aodsql/pkg/ast"
	"github.com/aodsql/aodsql/pkg/dbfmt"
	"github.com/aodsql/aodsql/pkg/physplan"
)

func joinRow(left, right Row) Row {
	values := make([]interface{}, 0, len(left.Values)+len(right.Values))
	values = append(values, left.Values...)
	values = append(values, right.Values...)
	return Row{RowID: left.RowID, Values: values}
}

func nullExtend(left Row, rightWidth int) Row {
	values := make([]interface{}, 0, len(left.Values)+rightWidth)
	values = append(values, left.Values...)
	for i := 0; i < rightWidth; i++ {
		values = append(values, nil)
	}
	return Row{RowID: left.RowID, Values: values}
}

// NestedLoopJoin materializes the right side once, then for every left
// batch scans the full right side testing the join predicate — the
// fallback join method the optimizer leaves in place for non-equi joins
// and small inputs (optimizer.chooseJoinMethod).
type NestedLoopJoin struct {
	left, right Iterator
	joinType    ast.JoinType
	predicate   ast.Expression
	schema      []physplan.Column
	eval        *Evaluator

	rightRows []Row
	loaded    bool

	leftBatch   []Row
	leftPos     int
	leftMatched bool
	rightPos    int
}

func NewNestedLoopJoin(c *Context, left, right Iterator, joinType ast.JoinType, predicate ast.Expression, schema []physplan.Column) *NestedLoopJoin {
	return &NestedLoopJoin{left: left, right: right, joinType: joinType, predicate: predicate, schema: schema, eval: NewEvaluator(c, schema)}
}

func (j *NestedLoopJoin) Schema() []physplan.Column { return j.schema }

func (j *NestedLoopJoin) loadRight(ctx context.Context) *dbfmt.Error {
	for {
		b, err := j.right.Next(ctx)
		if err != nil {
			return err
		}
		if b == nil {
			break
		}
		j.rightRows = append(j.rightRows, b.Rows...)
	}
	j.loaded = true
	return nil
}

func (j *NestedLoopJoin) Next(ctx context.Context) (*Batch, *dbfmt.Error) {
	if !j.loaded {
		if err := j.loadRight(ctx); err != nil {
			return nil, err
		}
	}
	var out []Row
	for {
		if j.leftPos >= len(j.leftBatch) {
			b, err := j.left.Next(ctx)
			if err != nil {
				return nil, err
			}
			if b == nil {
				if len(out) > 0 {
					return &Batch{Rows: out}, nil
				}
				return nil, nil
			}
			j.leftBatch = b.Rows
			j.leftPos = 0
		}
		for j.leftPos < len(j.leftBatch) {
			leftRow := j.leftBatch[j.leftPos]
			for j.rightPos < len(j.rightRows) {
				rightRow := j.rightRows[j.rightPos]
				j.rightPos++
				candidate := joinRow(leftRow, rightRow)
				ok, err := j.eval.EvalBool(ctx, j.predicate, candidate)
				if err != nil {
					return nil, err
				}
				if ok {
					j.leftMatched = true
					out = append(out, candidate)
				}
			}
			if j.rightPos >= len(j.rightRows) {
				if !j.leftMatched && j.joinType == ast.JoinLeft {
					out = append(out, nullExtend(leftRow, rightWidth(j.rightRows, j.schema, leftRow)))
				}
				j.leftMatched = false
				j.rightPos = 0
				j.leftPos++
			}
			if len(out) >= BatchSize {
				return &Batch{Rows: out}, nil
			}
		}
	}
}

func rightWidth(rightRows []Row, schema []physplan.Column, leftRow Row) int {
	if len(rightRows) > 0 {
		return len(rightRows[0].Values)
	}
	return len(schema) - len(leftRow.Values)
}

func (j *NestedLoopJoin) Close() *dbfmt.Error {
	if err := j.left.Close(); err != nil {
		return err
	}
	return j.right.Close()
}

// HashJoin builds a hash table over the right side keyed by the equality
// predicate's right-hand column, then probes it once per left row — the
// optimizer's equi-join method for large inputs (optimizer.chooseJoinMethod).
type HashJoin struct {
	left, right        Iterator
	leftKey, rightKey   ast.Expression
	predicate           ast.Expression
	joinType            ast.JoinType
	schema              []physplan.Column
	eval                *Evaluator

	built bool
	table map[string][]Row

	leftBatch []Row
	leftPos   int
}

func NewHashJoin(c *Context, left, right Iterator, leftKey, rightKey, predicate ast.Expression, joinType ast.JoinType, schema []physplan.Column) *HashJoin {
	return &HashJoin{
		left: left, right: right,
		leftKey: leftKey, rightKey: rightKey,
		predicate: predicate, joinType: joinType, schema: schema,
		eval: NewEvaluator(c, schema),
	}
}

func (j *HashJoin) Schema() []physplan.Column { return j.schema }

func (j *HashJoin) build(ctx context.Context) *dbfmt.Error {
	j.table = map[string][]Row{}
	rightEval := NewEvaluator(nil, j.right.Schema())
	for {
		b, err := j.right.Next(ctx)
		if err != nil {
			return err
		}
		if b == nil {
			break
		}
		for _, row := range b.Rows {
			key, err := rightEval.Eval(ctx, j.rightKey, row)
			if err != nil {
				return err
			}
			k := fmt.Sprint(key)
			j.table[k] = append(j.table[k], row)
		}
	}
	j.built = true
	return nil
}

func (j *HashJoin) Next(ctx context.Context) (*Batch, *dbfmt.Error) {
	if !j.built {
		if err := j.build(ctx); err != nil {
			return nil, err
		}
	}
	leftEval := NewEvaluator(nil, j.left.Schema())
	var out []Row
	for {
		if j.leftPos >= len(j.leftBatch) {
			b, err := j.left.Next(ctx)
			if err != nil {
				return nil, err
			}
			if b == nil {
				if len(out) > 0 {
					return &Batch{Rows: out}, nil
				}
				return nil, nil
			}
			j.leftBatch = b.Rows
			j.leftPos = 0
		}
		for ; j.leftPos < len(j.leftBatch); j.leftPos++ {
			leftRow := j.leftBatch[j.leftPos]
			key, err := leftEval.Eval(ctx, j.leftKey, leftRow)
			if err != nil {
				return nil, err
			}
			matches := j.table[fmt.Sprint(key)]
			matched := false
			for _, rightRow := range matches {
				candidate := joinRow(leftRow, rightRow)
				if j.predicate != nil {
					ok, err := j.eval.EvalBool(ctx, j.predicate, candidate)
					if err != nil {
						return nil, err
					}
					if !ok {
						continue
					}
				}
				matched = true
				out = append(out, candidate)
			}
			if !matched && j.joinType == ast.JoinLeft {
				out = append(out, nullExtend(leftRow, len(j.schema)-len(leftRow.Values)))
			}
			if len(out) >= BatchSize {
				j.leftPos++
				return &Batch{Rows: out}, nil
			}
		}
	}
}

func (j *HashJoin) Close() *dbfmt.Error {
	if err := j.left.Close(); err != nil {
		return err
	}
	return j.right.Close()
}

// SortMergeJoin sorts both sides by their equi-join key and merges them in
// one pass, matching equal-key runs against each other — the optimizer's
// equi-join method once both sides already arrive ordered on the join key
// (optimizer.chooseJoinMethod), since it needs neither a hash table nor a
// nested probe loop.
type SortMergeJoin struct {
	left, right       Iterator
	leftKey, rightKey ast.Expression
	predicate         ast.Expression
	joinType          ast.JoinType
	schema            []physplan.Column
	eval              *Evaluator

	out  []Row
	pos  int
	done bool
}

func NewSortMergeJoin(c *Context, left, right Iterator, leftKey, rightKey, predicate ast.Expression, joinType ast.JoinType, schema []physplan.Column) *SortMergeJoin {
	return &SortMergeJoin{
		left: left, right: right,
		leftKey: leftKey, rightKey: rightKey,
		predicate: predicate, joinType: joinType, schema: schema,
		eval: NewEvaluator(c, schema),
	}
}

func (j *SortMergeJoin) Schema() []physplan.Column { return j.schema }

type keyedRow struct {
	key string
	row Row
}

func materializeKeyed(ctx context.Context, it Iterator, keyExpr ast.Expression) ([]keyedRow, *dbfmt.Error) {
	eval := NewEvaluator(nil, it.Schema())
	var out []keyedRow
	for {
		b, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		if b == nil {
			break
		}
		for _, row := range b.Rows {
			v, err := eval.Eval(ctx, keyExpr, row)
			if err != nil {
				return nil, err
			}
			out = append(out, keyedRow{key: fmt.Sprint(v), row: row})
		}
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].key < out[k].key })
	return out, nil
}

func (j *SortMergeJoin) compute(ctx context.Context) *dbfmt.Error {
	left, err := materializeKeyed(ctx, j.left, j.leftKey)
	if err != nil {
		return err
	}
	right, err := materializeKeyed(ctx, j.right, j.rightKey)
	if err != nil {
		return err
	}

	i, k := 0, 0
	for i < len(left) {
		if k >= len(right) || left[i].key < right[k].key {
			if j.joinType == ast.JoinLeft {
				j.out = append(j.out, nullExtend(left[i].row, len(j.schema)-len(left[i].row.Values)))
			}
			i++
			continue
		}
		if left[i].key > right[k].key {
			k++
			continue
		}
		// Equal-key runs on both sides: cross every left row in the run
		// against every right row in the run before advancing past it.
		iEnd := i
		for iEnd < len(left) && left[iEnd].key == left[i].key {
			iEnd++
		}
		kEnd := k
		for kEnd < len(right) && right[kEnd].key == right[k].key {
			kEnd++
		}
		for li := i; li < iEnd; li++ {
			matched := false
			for ki := k; ki < kEnd; ki++ {
				candidate := joinRow(left[li].row, right[ki].row)
				if j.predicate != nil {
					ok, err := j.eval.EvalBool(ctx, j.predicate, candidate)
					if err != nil {
						return err
					}
					if !ok {
						continue
					}
				}
				matched = true
				j.out = append(j.out, candidate)
			}
			if !matched && j.joinType == ast.JoinLeft {
				j.out = append(j.out, nullExtend(left[li].row, len(j.schema)-len(left[li].row.Values)))
			}
		}
		i, k = iEnd, kEnd
	}
	return nil
}

func (j *SortMergeJoin) Next(ctx context.Context) (*Batch, *dbfmt.Error) {
	if j.out == nil && !j.done {
		if err := j.compute(ctx); err != nil {
			return nil, err
		}
		if j.out == nil {
			j.done = true
		}
	}
	if j.pos >= len(j.out) {
		return nil, nil
	}
	end := j.pos + BatchSize
	if end > len(j.out) {
		end = len(j.out)
	}
	batch := &Batch{Rows: j.out[j.pos:end]}
	j.pos = end
	return batch, nil
}

func (j *SortMergeJoin) Close() *dbfmt.Error {
	if err := j.left.Close(); err != nil {
		return err
	}
	return j.right.Close()
}
