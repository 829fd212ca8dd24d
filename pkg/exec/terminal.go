package exec

import (
	"context"
	"fmt"

	"github.com/aodsql/aodsql/pkg/ast"
	"github.com/aodsql/aodsql/pkg/catalog"
	"github.com/aodsql/aodsql/pkg/dbfmt"
	"github.com/aodsql/aodsql/pkg/physplan"
	"github.com/aodsql/aodsql/pkg/txn"
)

// InsertOp executes an INSERT ... VALUES or INSERT ... SELECT statement,
// calling fireTrigger around each inserted row for every BEFORE/AFTER
// INSERT trigger the catalog has registered for the target table.
type InsertOp struct {
	c     *Context
	node  *physplan.Node
	stmt  *ast.InsertStatement
	child Iterator // non-nil for INSERT ... SELECT
}

func NewInsertOp(c *Context, node *physplan.Node, stmt *ast.InsertStatement, child Iterator) *InsertOp {
	return &InsertOp{c: c, node: node, stmt: stmt, child: child}
}

func (op *InsertOp) Execute(ctx context.Context) (string, *dbfmt.Error) {
	if err := op.c.lockTable(ctx, op.stmt.Table, txn.Exclusive); err != nil {
		return "", err
	}
	table, ok := op.c.Catalog.Table(op.stmt.Table)
	if !ok {
		return "", dbfmt.Storage("unknown table %q", op.stmt.Table)
	}

	count := 0
	eval := NewEvaluator(op.c, nil)
	if op.child != nil {
		for {
			b, err := op.child.Next(ctx)
			if err != nil {
				return "", err
			}
			if b == nil {
				break
			}
			for _, row := range b.Rows {
				if err := op.insertRow(ctx, table, row.Values); err != nil {
					return "", err
				}
				count++
			}
		}
		return fmt.Sprintf("INSERT %d", count), nil
	}

	for _, tuple := range op.stmt.Values {
		values, err := op.resolveValues(ctx, eval, table, tuple)
		if err != nil {
			return "", err
		}
		if err := op.insertRow(ctx, table, values); err != nil {
			return "", err
		}
		count++
	}
	return fmt.Sprintf("INSERT %d", count), nil
}

func (op *InsertOp) resolveValues(ctx context.Context, eval *Evaluator, table *catalog.TableInfo, tuple []ast.Expression) ([]interface{}, *dbfmt.Error) {
	values := make([]interface{}, len(table.Columns))
	for i, col := range table.Columns {
		if col.HasDefault {
			values[i] = col.Default
		}
	}
	if len(op.stmt.Columns) == 0 {
		for i, e := range tuple {
			if i >= len(values) {
				break
			}
			v, err := eval.Eval(ctx, e, Row{})
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		return values, nil
	}
	for i, colName := range op.stmt.Columns {
		pos := -1
		for p, col := range table.Columns {
			if col.Name == colName {
				pos = p
				break
			}
		}
		if pos == -1 {
			return nil, dbfmt.Storage("unknown column %q in INSERT", colName)
		}
		v, err := eval.Eval(ctx, tuple[i], Row{})
		if err != nil {
			return nil, err
		}
		values[pos] = v
	}
	return values, nil
}

func (op *InsertOp) insertRow(ctx context.Context, table *catalog.TableInfo, values []interface{}) *dbfmt.Error {
	for _, tr := range op.c.Catalog.TriggersFor(table.Name, "BEFORE", "INSERT") {
		if _, err := fireTrigger(ctx, op.c, tr); err != nil {
			return err
		}
	}
	if _, err := op.c.Storage.Insert(ctx, op.c.Txn, table.Name, values); err != nil {
		return err
	}
	for _, tr := range op.c.Catalog.TriggersFor(table.Name, "AFTER", "INSERT") {
		if _, err := fireTrigger(ctx, op.c, tr); err != nil {
			return err
		}
	}
	return nil
}

// fireTrigger does not execute the trigger's body: a row-level trigger
// returns "" and a statement-level trigger returns "TRIGGER", both with no
// error and no side effect.
func fireTrigger(ctx context.Context, c *Context, tr *catalog.TriggerInfo) (string, *dbfmt.Error) {
	if tr.RowLevel {
		return "", nil
	}
	return "TRIGGER", nil
}

// UpdateOp scans the target table applying Where row-by-row (no physical
// plan optimization for UPDATE/DELETE targets, matching spec §4.4's scope:
// the optimizer only rewrites SELECT-shaped reads).
type UpdateOp struct {
	c    *Context
	node *physplan.Node
	stmt *ast.UpdateStatement
}

func NewUpdateOp(c *Context, node *physplan.Node, stmt *ast.UpdateStatement) *UpdateOp {
	return &UpdateOp{c: c, node: node, stmt: stmt}
}

func (op *UpdateOp) Execute(ctx context.Context) (string, *dbfmt.Error) {
	if err := op.c.lockTable(ctx, op.stmt.Table, txn.Shared); err != nil {
		return "", err
	}
	table, ok := op.c.Storage.Table(op.stmt.Table)
	if !ok {
		return "", dbfmt.Storage("unknown table %q", op.stmt.Table)
	}
	schema := op.node.OutputSchema
	if len(schema) == 0 {
		ti, _ := op.c.Catalog.Table(op.stmt.Table)
		schema = schemaOf(ti)
	}
	eval := NewEvaluator(op.c, schema)

	colPos := map[string]int{}
	for i, c := range schema {
		colPos[c.Name] = i
	}

	count := 0
	for _, r := range table.Scan() {
		row := Row{RowID: r.ID, Values: r.Values}
		ok, err := eval.EvalBool(ctx, op.stmt.Where, row)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		if err := op.c.lockRow(ctx, op.stmt.Table, r.ID, txn.Exclusive); err != nil {
			return "", err
		}
		newValues := append([]interface{}{}, r.Values...)
		for _, a := range op.stmt.Assignments {
			pos, found := colPos[a.Column]
			if !found {
				return "", dbfmt.Storage("unknown column %q in UPDATE", a.Column)
			}
			v, err := eval.Eval(ctx, a.Value, row)
			if err != nil {
				return "", err
			}
			newValues[pos] = v
		}
		if err := op.c.Storage.Update(ctx, op.c.Txn, op.stmt.Table, r.ID, newValues); err != nil {
			return "", err
		}
		count++
	}
	return fmt.Sprintf("UPDATE %d", count), nil
}

func schemaOf(t *catalog.TableInfo) []physplan.Column {
	if t == nil {
		return nil
	}
	cols := make([]physplan.Column, 0, len(t.Columns))
	for _, c := range t.Columns {
		cols = append(cols, physplan.Column{Table: t.Name, Name: c.Name, TypeName: c.TypeName})
	}
	return cols
}

// DeleteOp scans the target table applying Where row-by-row.
type DeleteOp struct {
	c    *Context
	node *physplan.Node
	stmt *ast.DeleteStatement
}

func NewDeleteOp(c *Context, node *physplan.Node, stmt *ast.DeleteStatement) *DeleteOp {
	return &DeleteOp{c: c, node: node, stmt: stmt}
}

func (op *DeleteOp) Execute(ctx context.Context) (string, *dbfmt.Error) {
	if err := op.c.lockTable(ctx, op.stmt.Table, txn.Shared); err != nil {
		return "", err
	}
	table, ok := op.c.Storage.Table(op.stmt.Table)
	if !ok {
		return "", dbfmt.Storage("unknown table %q", op.stmt.Table)
	}
	schema := op.node.OutputSchema
	if len(schema) == 0 {
		ti, _ := op.c.Catalog.Table(op.stmt.Table)
		schema = schemaOf(ti)
	}
	eval := NewEvaluator(op.c, schema)

	count := 0
	for _, r := range table.Scan() {
		row := Row{RowID: r.ID, Values: r.Values}
		ok, err := eval.EvalBool(ctx, op.stmt.Where, row)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		if err := op.c.lockRow(ctx, op.stmt.Table, r.ID, txn.Exclusive); err != nil {
			return "", err
		}
		if err := op.c.Storage.Delete(ctx, op.c.Txn, op.stmt.Table, r.ID); err != nil {
			return "", err
		}
		count++
	}
	return fmt.Sprintf("DELETE %d", count), nil
}
