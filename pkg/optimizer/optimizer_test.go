package optimizer

import (
	"testing"

	"github.com/aodsql/aodsql/pkg/ast"
	"github.com/aodsql/aodsql/pkg/catalog"
	"github.com/aodsql/aodsql/pkg/logplan"
	"github.com/aodsql/aodsql/pkg/parser"
)

func testCatalog() *catalog.Catalog {
	c := catalog.New("shop")
	c.CreateTable("users", []catalog.ColumnInfo{
		{Name: "id", TypeName: "INT", PrimaryKey: true, NotNull: true},
		{Name: "email", TypeName: "VARCHAR", NotNull: true},
	})
	c.UpdateRowCount("users", 10000)
	c.CreateIndex(&catalog.IndexInfo{Name: "idx_email", Table: "users", Columns: []string{"email"}})

	c.CreateTable("orders", []catalog.ColumnInfo{
		{Name: "id", TypeName: "INT", PrimaryKey: true},
		{Name: "customer_id", TypeName: "INT"},
	})
	c.UpdateRowCount("orders", 50000)
	return c
}

func buildPlan(t *testing.T, cat *catalog.Catalog, sql string) *logplan.Plan {
	t.Helper()
	p := parser.New(sql)
	stmt, err := p.ParseStatement()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	plan, perr := logplan.Build(stmt, cat)
	if perr != nil {
		t.Fatalf("lower error: %v", perr)
	}
	return plan
}

func TestIndexScanSynthesizedForEqualityPredicate(t *testing.T) {
	cat := testCatalog()
	plan := buildPlan(t, cat, "SELECT id FROM users WHERE email = 'a@example.com'")
	opt := New(cat, nil).Optimize(plan)

	var sawIndexScan bool
	logplan.Walk(opt.Root, func(n *logplan.Node) {
		if n.Type == logplan.NodeIndexScan {
			sawIndexScan = true
			if n.IndexName != "idx_email" {
				t.Fatalf("want idx_email, got %s", n.IndexName)
			}
		}
		if n.Type == logplan.NodeSeqScan {
			t.Fatalf("expected the scan to be rewritten to an index scan, found a seq scan")
		}
	})
	if !sawIndexScan {
		t.Fatalf("expected exactly one index scan in the optimized plan")
	}
}

func TestSeqScanKeptWithoutUsableIndex(t *testing.T) {
	cat := testCatalog()
	plan := buildPlan(t, cat, "SELECT id FROM orders WHERE customer_id = 42")
	opt := New(cat, nil).Optimize(plan)

	var sawSeqScan bool
	logplan.Walk(opt.Root, func(n *logplan.Node) {
		if n.Type == logplan.NodeSeqScan {
			sawSeqScan = true
		}
	})
	if !sawSeqScan {
		t.Fatalf("expected a seq scan since orders.customer_id has no index")
	}
}

func TestCostAnnotatedOnEveryNode(t *testing.T) {
	cat := testCatalog()
	plan := buildPlan(t, cat, "SELECT id FROM users WHERE email = 'a@example.com' ORDER BY id")
	opt := New(cat, nil).Optimize(plan)

	logplan.Walk(opt.Root, func(n *logplan.Node) {
		if n.Cost.Total < 0 {
			t.Fatalf("node %s has negative cost", n.Type)
		}
	})
}

func TestHashJoinChosenForLargeEquiJoin(t *testing.T) {
	cat := testCatalog()
	plan := buildPlan(t, cat, "SELECT * FROM orders JOIN users ON orders.customer_id = users.id")
	opt := New(cat, nil).Optimize(plan)

	var sawJoin logplan.NodeType
	logplan.Walk(opt.Root, func(n *logplan.Node) {
		if n.Type == logplan.NodeHashJoin || n.Type == logplan.NodeNestedLoopJoin {
			sawJoin = n.Type
		}
	})
	if sawJoin != logplan.NodeHashJoin {
		t.Fatalf("expected a hash join for the large equi-join, got %q", sawJoin)
	}
}

func TestSelectivityOverrideNarrowsRowEstimate(t *testing.T) {
	cat := testCatalog()
	plan := buildPlan(t, cat, "SELECT id FROM users WHERE email = 'a@example.com'")
	stats := &Stats{SelectivityOverrides: map[string]float64{"users.email": 0.01}}
	opt := New(cat, stats).Optimize(plan)

	logplan.Walk(opt.Root, func(n *logplan.Node) {
		if n.Type == logplan.NodeIndexScan {
			if n.EstRows > 200 {
				t.Fatalf("expected selectivity override to narrow row estimate, got %d", n.EstRows)
			}
		}
	})
}

func TestIndexScanCarriesResidualForMultiConjunctWhere(t *testing.T) {
	cat := testCatalog()
	plan := buildPlan(t, cat, "SELECT id FROM users WHERE email = 'a@example.com' AND id > 5")
	opt := New(cat, nil).Optimize(plan)

	var scan *logplan.Node
	logplan.Walk(opt.Root, func(n *logplan.Node) {
		if n.Type == logplan.NodeIndexScan {
			scan = n
		}
		if n.Type == logplan.NodeFilter {
			t.Fatalf("expected no leftover Filter node once the equality is matched to an index")
		}
	})
	if scan == nil {
		t.Fatalf("expected an index scan on users.email")
	}
	if scan.Residual == nil {
		t.Fatalf("expected the id > 5 conjunct to survive as a residual predicate")
	}
	if _, ok := equalityColumn(scan.Predicate); !ok {
		t.Fatalf("expected the scan's own predicate to still be the matched equality, got %v", scan.Predicate)
	}
}

func TestConstantFoldingCollapsesLiteralComparison(t *testing.T) {
	expr := &ast.BinaryExpr{
		Op:   ast.OpEq,
		Left: &ast.Literal{Kind: ast.IntLiteral, Value: int64(1)},
		Right: &ast.BinaryExpr{
			Op:    ast.OpAdd,
			Left:  &ast.Literal{Kind: ast.IntLiteral, Value: int64(0)},
			Right: &ast.Literal{Kind: ast.IntLiteral, Value: int64(1)},
		},
	}
	folded := foldConstants(expr)
	lit, ok := folded.(*ast.Literal)
	if !ok {
		t.Fatalf("want a folded literal, got %T", folded)
	}
	if lit.Kind != ast.BoolLiteral || lit.Value != true {
		t.Fatalf("want folded literal true, got %+v", lit)
	}
}

func TestPredicatePushdownEnablesIndexScanAcrossJoin(t *testing.T) {
	cat := testCatalog()
	cat.CreateIndex(&catalog.IndexInfo{Name: "idx_customer", Table: "orders", Columns: []string{"customer_id"}})
	plan := buildPlan(t, cat, "SELECT * FROM orders JOIN users ON orders.customer_id = users.id WHERE orders.id = 5")
	opt := New(cat, nil).Optimize(plan)

	var sawOrdersIndexScan, sawTopFilter bool
	logplan.Walk(opt.Root, func(n *logplan.Node) {
		if n.Type == logplan.NodeIndexScan && n.Table == "orders" {
			sawOrdersIndexScan = true
		}
		if n.Type == logplan.NodeFilter {
			sawTopFilter = true
		}
	})
	if !sawOrdersIndexScan {
		t.Fatalf("expected orders.id = 5 to be pushed down into an index scan on orders' own subtree")
	}
	if sawTopFilter {
		t.Fatalf("expected the pushed predicate to leave no residual Filter node above the join")
	}
}

func TestSortMergeJoinChosenWhenBothSidesIndexOrdered(t *testing.T) {
	cat := testCatalog()
	left := &logplan.Node{Type: logplan.NodeIndexScan, Table: "users", IndexCols: []string{"id"}, EstRows: 100}
	right := &logplan.Node{Type: logplan.NodeIndexScan, Table: "orders", IndexCols: []string{"customer_id"}, EstRows: 100}
	join := &logplan.Node{
		Type:     logplan.NodeNestedLoopJoin,
		JoinType: ast.JoinInner,
		Predicate: &ast.BinaryExpr{
			Op:    ast.OpEq,
			Left:  &ast.ColumnRef{Table: "users", Column: "id"},
			Right: &ast.ColumnRef{Table: "orders", Column: "customer_id"},
		},
		Children: []*logplan.Node{left, right},
	}

	opt := New(cat, nil)
	result := opt.chooseJoinMethod(join)
	if result.Type != logplan.NodeSortMergeJoin {
		t.Fatalf("want a sort-merge join when both sides are already index-ordered on the join key, got %s", result.Type)
	}
}

func TestMCVBasedSelectivityEstimate(t *testing.T) {
	cat := testCatalog()
	table, ok := cat.Table("users")
	if !ok {
		t.Fatalf("missing users table")
	}
	table.Stats["email"] = &catalog.ColumnStats{
		DistinctCount: 500,
		MCV:           []catalog.MCVEntry{{Value: "a@example.com", Frequency: 0.5}},
	}

	opt := New(cat, nil)
	predicate := &ast.BinaryExpr{
		Op:    ast.OpEq,
		Left:  &ast.ColumnRef{Column: "email"},
		Right: &ast.Literal{Kind: ast.StringLiteral, Value: "a@example.com"},
	}
	rows := opt.estimateSelectivity(10000, "users", []string{"email"}, predicate)
	if rows != 5000 {
		t.Fatalf("want 5000 rows from the MCV frequency, got %d", rows)
	}
}
