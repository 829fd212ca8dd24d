package exec

import (
	"context"
	"strings"

	"github.com/aodsql/aodsql/pkg/ast"
	"github.com/aodsql/aodsql/pkg/dbfmt"
	"github.com/aodsql/aodsql/pkg/logplan"
	"github.com/aodsql/aodsql/pkg/physplan"
	"github.com/aodsql/aodsql/pkg/storage"
)

// Compile dispatches a bound physical plan to either an Iterator (reads)
// or a TerminalOp (DML/DDL/TCL/SHOW/cursor statements), the same
// token-keyed dispatch shape ramsql's Tx.opsExecutors uses, generalized
// from a string-token map to a type switch over logplan.NodeType since
// this engine's plan nodes are typed rather than string tokens.
func Compile(c *Context, node *physplan.Node) (interface{}, *dbfmt.Error) {
	switch node.Kind {
	case logplan.NodeInsert:
		stmt := node.Stmt.(*ast.InsertStatement)
		var child Iterator
		if len(node.Children) > 0 {
			it, err := CompileIterator(c, node.Children[0])
			if err != nil {
				return nil, err
			}
			child = it
		}
		return NewInsertOp(c, node, stmt, child), nil
	case logplan.NodeUpdate:
		return NewUpdateOp(c, node, node.Stmt.(*ast.UpdateStatement)), nil
	case logplan.NodeDelete:
		return NewDeleteOp(c, node, node.Stmt.(*ast.DeleteStatement)), nil
	case logplan.NodeDDL:
		switch s := node.Stmt.(type) {
		case *ast.OpenCursorStatement:
			return &CursorOp{c: c, name: s.Name, kind: "OPEN"}, nil
		case *ast.FetchCursorStatement:
			return &CursorOp{c: c, name: s.Name, kind: "FETCH"}, nil
		case *ast.CloseCursorStatement:
			return &CursorOp{c: c, name: s.Name, kind: "CLOSE"}, nil
		}
		return NewDDLOp(c, node.Stmt), nil
	case logplan.NodeTCL:
		return NewTCLOp(c, node.Stmt), nil
	case logplan.NodeShow:
		return NewShowOp(c, node.Stmt.(*ast.ShowStatement)), nil
	case logplan.NodeExplain:
		return NewExplainOp(c, node)
	case logplan.NodeCursor:
		decl := node.Stmt.(*ast.DeclareCursorStatement)
		if err := c.Cursors.Declare(decl.Name, node.Children[0]); err != nil {
			return nil, err
		}
		return declareCursorOp{}, nil
	default:
		return CompileIterator(c, node)
	}
}

// declareCursorOp reports DECLARE CURSOR's completion; the cursor isn't
// opened until a subsequent OPEN statement compiles and runs a CursorOp.
type declareCursorOp struct{}

func (declareCursorOp) Execute(ctx context.Context) (string, *dbfmt.Error) {
	return "DECLARE CURSOR", nil
}

// CompileIterator dispatches a read-side physical node into a volcano
// Iterator, recursing into children first (bottom-up, matching pull-model
// construction: a parent iterator is handed its already-built children).
func CompileIterator(c *Context, node *physplan.Node) (Iterator, *dbfmt.Error) {
	var children []Iterator
	for _, ch := range node.Children {
		it, err := CompileIterator(c, ch)
		if err != nil {
			return nil, err
		}
		children = append(children, it)
	}

	switch node.Kind {
	case logplan.NodeProject:
		if len(children) == 0 {
			children = []Iterator{&dualIterator{}}
		}
		return NewProject(c, children[0], node.Columns, node.OutputSchema, node.Distinct), nil
	case logplan.NodeSeqScan:
		return NewSeqScan(c, node)
	case logplan.NodeIndexScan:
		key, err := indexScanKey(c, node)
		if err != nil {
			return nil, err
		}
		return NewIndexScan(c, node, key)
	case logplan.NodeFilter:
		return NewFilter(c, children[0], node.Predicate), nil
	case logplan.NodeSort:
		return NewSort(c, children[0], node.OrderBy), nil
	case logplan.NodeLimit:
		return NewLimit(children[0], node.Limit, node.Offset), nil
	case logplan.NodeHashAggregate:
		return NewHashAggregate(c, children[0], node.GroupBy, node.Aggregates, node.Having, node.OutputSchema), nil
	case logplan.NodeNestedLoopJoin:
		return NewNestedLoopJoin(c, children[0], children[1], node.JoinType, node.Predicate, node.OutputSchema), nil
	case logplan.NodeHashJoin:
		leftKey, rightKey, ok := equiJoinKeys(node.Predicate, children[0].Schema(), children[1].Schema())
		if !ok {
			return NewNestedLoopJoin(c, children[0], children[1], node.JoinType, node.Predicate, node.OutputSchema), nil
		}
		return NewHashJoin(c, children[0], children[1], leftKey, rightKey, node.Predicate, node.JoinType, node.OutputSchema), nil
	case logplan.NodeSortMergeJoin:
		leftKey, rightKey, ok := equiJoinKeys(node.Predicate, children[0].Schema(), children[1].Schema())
		if !ok {
			return NewNestedLoopJoin(c, children[0], children[1], node.JoinType, node.Predicate, node.OutputSchema), nil
		}
		return NewSortMergeJoin(c, children[0], children[1], leftKey, rightKey, node.Predicate, node.JoinType, node.OutputSchema), nil
	default:
		return nil, dbfmt.Exec("node kind %v is not a read-side iterator", node.Kind)
	}
}

// indexScanKey evaluates the equality literal the optimizer matched
// against node's index (optimizer.equalityColumn) into the storage-encoded
// lookup key IndexScan probes with.
func indexScanKey(c *Context, node *physplan.Node) (string, *dbfmt.Error) {
	lit, ok := equalityLiteral(node.Predicate, node.Index.Columns[0])
	if !ok {
		return "", dbfmt.Plan("index scan on %q has no usable equality literal", node.Index.Name)
	}
	eval := NewEvaluator(c, nil)
	v, err := eval.Eval(context.Background(), lit, Row{})
	if err != nil {
		return "", err
	}
	return storage.EncodeIndexKey([]interface{}{v}, []int{0}), nil
}

func equalityLiteral(e ast.Expression, column string) (ast.Expression, bool) {
	switch v := e.(type) {
	case *ast.BinaryExpr:
		if v.Op == ast.OpAnd {
			if lit, ok := equalityLiteral(v.Left, column); ok {
				return lit, true
			}
			return equalityLiteral(v.Right, column)
		}
		if v.Op == ast.OpEq {
			if col, ok := v.Left.(*ast.ColumnRef); ok && strings.EqualFold(col.Column, column) {
				return v.Right, true
			}
			if col, ok := v.Right.(*ast.ColumnRef); ok && strings.EqualFold(col.Column, column) {
				return v.Left, true
			}
		}
	}
	return nil, false
}

// equiJoinKeys splits a `left.col = right.col` join predicate into the two
// column expressions HashJoin probes independently against each side.
func equiJoinKeys(pred ast.Expression, leftSchema, rightSchema []physplan.Column) (ast.Expression, ast.Expression, bool) {
	b, ok := pred.(*ast.BinaryExpr)
	if !ok || b.Op != ast.OpEq {
		return nil, nil, false
	}
	leftCol, lok := b.Left.(*ast.ColumnRef)
	rightCol, rok := b.Right.(*ast.ColumnRef)
	if !lok || !rok {
		return nil, nil, false
	}
	if columnInSchema(leftCol, leftSchema) && columnInSchema(rightCol, rightSchema) {
		return b.Left, b.Right, true
	}
	if columnInSchema(rightCol, leftSchema) && columnInSchema(leftCol, rightSchema) {
		return b.Right, b.Left, true
	}
	return nil, nil, false
}

func columnInSchema(col *ast.ColumnRef, schema []physplan.Column) bool {
	for _, c := range schema {
		if strings.EqualFold(c.Name, col.Column) {
			if col.Table == "" || strings.EqualFold(c.Table, col.Table) {
				return true
			}
		}
	}
	return false
}
