// Package logplan builds the logical operator tree the optimizer rewrites
// and the physical-plan builder eventually compiles into pkg/exec
// operators. Grounded on the teacher's pkg/plan.PlanNode shape (NodeType +
// Cost + RowEstimate + Children tree), repurposed from "parse a foreign
// EXPLAIN text" to "lower an ast.Statement", and on predicates kept as
// ast.Expression rather than re-parsed strings, per the engine's
// anti-string-AST design note.
package logplan

import (
	"github.com/aodsql/aodsql/pkg/ast"
	"github.com/aodsql/aodsql/pkg/catalog"
	"github.com/aodsql/aodsql/pkg/dbfmt"
)

// NodeType identifies the logical operator kind, named the way the
// teacher's plan.NodeType constants are, trimmed to the operators
// SPEC_FULL.md's volcano engine needs.
type NodeType string

const (
	NodeSeqScan        NodeType = "SEQ_SCAN"
	NodeIndexScan      NodeType = "INDEX_SCAN"
	NodeFilter         NodeType = "FILTER"
	NodeProject        NodeType = "PROJECT"
	NodeSort           NodeType = "SORT"
	NodeLimit          NodeType = "LIMIT"
	NodeHashAggregate  NodeType = "HASH_AGGREGATE"
	NodeNestedLoopJoin NodeType = "NESTED_LOOP_JOIN"
	NodeHashJoin       NodeType = "HASH_JOIN"
	NodeSortMergeJoin  NodeType = "SORT_MERGE_JOIN"
	NodeInsert         NodeType = "INSERT"
	NodeUpdate         NodeType = "UPDATE"
	NodeDelete         NodeType = "DELETE"
	NodeDDL            NodeType = "DDL"
	NodeTCL            NodeType = "TCL"
	NodeShow           NodeType = "SHOW"
	NodeExplain        NodeType = "EXPLAIN"
	NodeCursor         NodeType = "CURSOR"
)

// Cost mirrors spec §4.5's io/cpu/memory cost components and the blended
// total the optimizer minimizes.
type Cost struct {
	IO     float64
	CPU    float64
	Memory float64
	Total  float64
}

// Node is one operator in the logical tree. Concrete operator kinds are
// distinguished by Type and populate only the fields relevant to them —
// matching the teacher's single-struct-many-optional-fields PlanNode shape,
// generalized so predicates/projections are ast.Expression trees instead of
// strings.
type Node struct {
	Type     NodeType
	Children []*Node

	// Scan
	Table     string
	IndexName string
	IndexCols []string

	// Filter / Join condition
	Predicate ast.Expression

	// Residual holds conjuncts an index-scan rewrite couldn't fold into the
	// index key itself (every top-level AND conjunct except the matched
	// equality); pkg/exec re-evaluates it per candidate row so a multi-
	// conjunct WHERE clause stays correct once one conjunct is answered by
	// an index. Nil when the scan's Predicate already covers the whole
	// original filter.
	Residual ast.Expression

	// Project
	Columns []ast.Expression

	// Sort
	OrderBy []ast.OrderByItem

	// Limit
	Limit, Offset *int64

	// HashAggregate
	GroupBy    []ast.Expression
	Aggregates []ast.Expression
	Having     ast.Expression

	// Join
	JoinType ast.JoinType

	// Terminal DML/DDL/TCL/Show/Explain/Cursor — carried verbatim so
	// pkg/exec's terminal operators can execute() directly without
	// re-deriving anything from the logical tree.
	Stmt ast.Statement

	Cost     Cost
	EstRows  int64
	Distinct bool
}

// Plan is the lowered form of one ast.Statement, ready for the optimizer.
type Plan struct {
	Root *Node
}

// Build lowers stmt into a logical plan against cat. DML/DDL/TCL/Show
// statements lower to a single terminal node wrapping the statement — they
// aren't cost-optimized, matching spec §4.4's scope (the optimizer only
// rewrites SELECT-shaped read plans and the read side of INSERT...SELECT).
func Build(stmt ast.Statement, cat *catalog.Catalog) (*Plan, *dbfmt.Error) {
	switch s := stmt.(type) {
	case *ast.SelectStatement:
		root, err := buildSelect(s, cat)
		if err != nil {
			return nil, err
		}
		return &Plan{Root: root}, nil
	case *ast.InsertStatement:
		if s.Select != nil {
			sub, err := buildSelect(s.Select, cat)
			if err != nil {
				return nil, err
			}
			return &Plan{Root: &Node{Type: NodeInsert, Stmt: s, Children: []*Node{sub}}}, nil
		}
		return &Plan{Root: &Node{Type: NodeInsert, Stmt: s}}, nil
	case *ast.UpdateStatement:
		return &Plan{Root: &Node{Type: NodeUpdate, Stmt: s, Table: s.Table}}, nil
	case *ast.DeleteStatement:
		return &Plan{Root: &Node{Type: NodeDelete, Stmt: s, Table: s.Table}}, nil
	case *ast.ExplainStatement:
		inner, err := Build(s.Statement, cat)
		if err != nil {
			return nil, err
		}
		return &Plan{Root: &Node{Type: NodeExplain, Stmt: s, Children: []*Node{inner.Root}}}, nil
	case *ast.ShowStatement:
		return &Plan{Root: &Node{Type: NodeShow, Stmt: s}}, nil
	case *ast.DeclareCursorStatement:
		sub, err := buildSelect(s.Select, cat)
		if err != nil {
			return nil, err
		}
		return &Plan{Root: &Node{Type: NodeCursor, Stmt: s, Children: []*Node{sub}}}, nil
	case *ast.BeginStatement, *ast.CommitStatement, *ast.RollbackStatement,
		*ast.SavepointStatement, *ast.ReleaseSavepointStatement:
		return &Plan{Root: &Node{Type: NodeTCL, Stmt: s}}, nil
	default:
		// DDL and the remaining cursor statements: no relational shape to
		// lower, the terminal operator interprets Stmt directly.
		return &Plan{Root: &Node{Type: NodeDDL, Stmt: s}}, nil
	}
}

// buildSelect lowers a SELECT into Scan(+Join)* -> Filter -> HashAggregate
// (carrying HAVING) -> Project -> Sort -> Limit, the canonical shape spec
// §4.4 describes (Sort moves below Project in the case noted inside); the
// optimizer rewrites scans to index scans and reorders joins afterward.
func buildSelect(stmt *ast.SelectStatement, cat *catalog.Catalog) (*Node, *dbfmt.Error) {
	var node *Node
	if stmt.From != nil {
		first := stmt.From.Tables[0]
		node = scanNode(first, cat)
		for _, extra := range stmt.From.Tables[1:] {
			node = &Node{Type: NodeNestedLoopJoin, JoinType: ast.JoinInner, Children: []*Node{node, scanNode(extra, cat)}}
		}
		for _, j := range stmt.From.Joins {
			right := scanNode(j.Table, cat)
			node = &Node{Type: NodeNestedLoopJoin, JoinType: j.Type, Predicate: j.On, Children: []*Node{node, right}}
		}
	}

	if stmt.Where != nil {
		children := []*Node{}
		if node != nil {
			children = []*Node{node}
		}
		node = &Node{Type: NodeFilter, Predicate: stmt.Where, Children: children}
	}

	hasAgg := false
	for _, c := range stmt.Columns {
		if exprHasAggregate(c) {
			hasAgg = true
		}
	}
	if hasAgg || len(stmt.GroupBy) > 0 {
		var children []*Node
		if node != nil {
			children = []*Node{node}
		}
		node = &Node{Type: NodeHashAggregate, GroupBy: stmt.GroupBy, Aggregates: stmt.Columns, Having: stmt.Having, Children: children}
	}

	// With no aggregation, DISTINCT, star or select-list alias, Sort goes
	// below Project so ORDER BY can name source columns the select list drops.
	sortFirst := node != nil && len(stmt.OrderBy) > 0 && !hasAgg && len(stmt.GroupBy) == 0 && !stmt.Distinct
	for _, c := range stmt.Columns {
		switch e := c.(type) {
		case *ast.StarExpr:
			sortFirst = false
		case *ast.AliasedExpr:
			sortFirst = sortFirst && e.Alias == ""
		case *ast.ColumnRef:
			sortFirst = sortFirst && e.Alias == ""
		}
	}
	if sortFirst {
		node = &Node{Type: NodeSort, OrderBy: stmt.OrderBy, Children: []*Node{node}}
	}

	projChildren := []*Node{}
	if node != nil {
		projChildren = []*Node{node}
	}
	node = &Node{Type: NodeProject, Columns: stmt.Columns, Distinct: stmt.Distinct, Children: projChildren}

	if len(stmt.OrderBy) > 0 && !sortFirst {
		node = &Node{Type: NodeSort, OrderBy: stmt.OrderBy, Children: []*Node{node}}
	}

	if stmt.Limit != nil || stmt.Offset != nil {
		node = &Node{Type: NodeLimit, Limit: stmt.Limit, Offset: stmt.Offset, Children: []*Node{node}}
	}

	return node, nil
}

func scanNode(tr *ast.TableRef, cat *catalog.Catalog) *Node {
	if tr.Subquery != nil {
		sub, _ := buildSelect(tr.Subquery, cat)
		return sub
	}
	rows := int64(1000)
	if t, ok := cat.Table(tr.Name); ok {
		rows = t.RowCount
	}
	alias := tr.Alias
	if alias == "" {
		alias = tr.Name
	}
	return &Node{Type: NodeSeqScan, Table: tr.Name, EstRows: rows, Columns: []ast.Expression{&ast.StarExpr{Table: alias}}}
}

func exprHasAggregate(e ast.Expression) bool {
	switch v := e.(type) {
	case *ast.AggregateExpr:
		return true
	case *ast.AliasedExpr:
		return exprHasAggregate(v.Expr)
	case *ast.BinaryExpr:
		return exprHasAggregate(v.Left) || exprHasAggregate(v.Right)
	default:
		return false
	}
}

// Walk visits every node in the tree in pre-order, depth-first.
func Walk(n *Node, fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		Walk(c, fn)
	}
}
