package physplan

import (
	"testing"

	"github.com/aodsql/aodsql/pkg/catalog"
	"github.com/aodsql/aodsql/pkg/logplan"
	"github.com/aodsql/aodsql/pkg/optimizer"
	"github.com/aodsql/aodsql/pkg/parser"
)

func testCatalog() *catalog.Catalog {
	c := catalog.New("shop")
	c.CreateTable("users", []catalog.ColumnInfo{
		{Name: "id", TypeName: "INT", PrimaryKey: true},
		{Name: "name", TypeName: "VARCHAR"},
	})
	c.CreateIndex(&catalog.IndexInfo{Name: "idx_name", Table: "users", Columns: []string{"name"}})
	return c
}

func build(t *testing.T, cat *catalog.Catalog, sql string) *Node {
	t.Helper()
	p := parser.New(sql)
	stmt, perr := p.ParseStatement()
	if perr != nil {
		t.Fatalf("parse error: %v", perr)
	}
	logical, lerr := logplan.Build(stmt, cat)
	if lerr != nil {
		t.Fatalf("lower error: %v", lerr)
	}
	optimized := optimizer.New(cat, nil).Optimize(logical)
	phys, perr2 := Build(optimized, cat)
	if perr2 != nil {
		t.Fatalf("bind error: %v", perr2)
	}
	return phys
}

func TestScanBindsTableHandle(t *testing.T) {
	cat := testCatalog()
	root := build(t, cat, "SELECT id, name FROM users")
	var sawScan bool
	var walk func(*Node)
	walk = func(n *Node) {
		if n == nil {
			return
		}
		if n.Kind == logplan.NodeSeqScan || n.Kind == logplan.NodeIndexScan {
			sawScan = true
			if n.Table == nil || n.Table.Name != "users" {
				t.Fatalf("expected bound users table handle")
			}
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	if !sawScan {
		t.Fatalf("expected a scan node")
	}
}

func TestIndexScanBindsIndexHandle(t *testing.T) {
	cat := testCatalog()
	root := build(t, cat, "SELECT id FROM users WHERE name = 'alice'")
	var found *Node
	var walk func(*Node)
	walk = func(n *Node) {
		if n == nil {
			return
		}
		if n.Kind == logplan.NodeIndexScan {
			found = n
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	if found == nil || found.Index == nil || found.Index.Name != "idx_name" {
		t.Fatalf("expected bound idx_name index handle")
	}
}

func TestProjectOutputSchemaNamesColumns(t *testing.T) {
	cat := testCatalog()
	root := build(t, cat, "SELECT id, name FROM users")
	if root.Kind != logplan.NodeProject {
		t.Fatalf("expected root to be a project node, got %s", root.Kind)
	}
	if len(root.OutputSchema) != 2 || root.OutputSchema[0].Name != "id" || root.OutputSchema[1].Name != "name" {
		t.Fatalf("unexpected output schema: %+v", root.OutputSchema)
	}
}

func TestStarExpandsToTableSchema(t *testing.T) {
	cat := testCatalog()
	root := build(t, cat, "SELECT * FROM users")
	if len(root.OutputSchema) != 2 {
		t.Fatalf("want 2 columns from '*', got %d", len(root.OutputSchema))
	}
}
