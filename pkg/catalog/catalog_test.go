package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func sampleColumns() []ColumnInfo {
	return []ColumnInfo{
		{Name: "id", TypeName: "INT", PrimaryKey: true, NotNull: true, AutoIncrement: true},
		{Name: "name", TypeName: "VARCHAR", Length: 100, NotNull: true},
	}
}

func TestCreateAndLookupTable(t *testing.T) {
	c := New("shop")
	if _, err := c.CreateTable("users", sampleColumns()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tbl, ok := c.Table("USERS")
	if !ok {
		t.Fatalf("expected case-insensitive lookup to find table")
	}
	if _, ok := tbl.Column("id"); !ok {
		t.Fatalf("expected id column")
	}
	if len(tbl.Indexes) != 1 {
		t.Fatalf("expected implicit PK index, got %d", len(tbl.Indexes))
	}
}

func TestCreateTableDuplicateErrors(t *testing.T) {
	c := New("shop")
	if _, err := c.CreateTable("users", sampleColumns()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.CreateTable("users", sampleColumns()); err == nil {
		t.Fatalf("expected CONSTRAINT_ERROR on duplicate table")
	}
}

func TestAddAndDropColumn(t *testing.T) {
	c := New("shop")
	c.CreateTable("users", sampleColumns())
	if err := c.AddColumn("users", ColumnInfo{Name: "age", TypeName: "INT"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tbl, _ := c.Table("users")
	if len(tbl.Columns) != 3 {
		t.Fatalf("want 3 columns, got %d", len(tbl.Columns))
	}
	if err := c.DropColumn("users", "age"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tbl.Columns) != 2 {
		t.Fatalf("want 2 columns after drop, got %d", len(tbl.Columns))
	}
	if err := c.DropColumn("users", "nonexistent"); err == nil {
		t.Fatalf("expected error dropping nonexistent column")
	}
}

func TestIndexLifecycle(t *testing.T) {
	c := New("shop")
	c.CreateTable("users", sampleColumns())
	idx := &IndexInfo{Name: "idx_name", Table: "users", Columns: []string{"name"}}
	if err := c.CreateIndex(idx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.CreateIndex(idx); err == nil {
		t.Fatalf("expected duplicate index error")
	}
	found := c.IndexesOn("users", "name")
	if len(found) != 1 {
		t.Fatalf("want 1 matching index, got %d", len(found))
	}
	if err := c.DropIndex("users", "idx_name"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDropTableRemovesIndexes(t *testing.T) {
	c := New("shop")
	c.CreateTable("users", sampleColumns())
	if err := c.DropTable("users"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.HasTable("users") {
		t.Fatalf("table should be gone")
	}
}

func TestViewAndTriggerLifecycle(t *testing.T) {
	c := New("shop")
	c.CreateTable("accounts", sampleColumns())
	v := &ViewInfo{Name: "active_accounts", DefinitionSQL: "SELECT * FROM accounts"}
	if err := c.CreateView(v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.View("active_accounts"); !ok {
		t.Fatalf("expected view to be found")
	}

	tr := &TriggerInfo{Name: "trg1", Table: "accounts", Timing: "AFTER", Events: []string{"UPDATE"}, RowLevel: true}
	if err := c.CreateTrigger(tr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	matches := c.TriggersFor("accounts", "AFTER", "UPDATE")
	if len(matches) != 1 {
		t.Fatalf("want 1 matching trigger, got %d", len(matches))
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	c := New("shop")
	c.CreateTable("users", sampleColumns())
	c.UpdateRowCount("users", 5)
	c.CreateIndex(&IndexInfo{Name: "idx_name", Table: "users", Columns: []string{"name"}})
	c.CreateView(&ViewInfo{Name: "v1", DefinitionSQL: "SELECT 1"})
	c.CreateTrigger(&TriggerInfo{Name: "trg1", Table: "users", Timing: "BEFORE", Events: []string{"INSERT"}})

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := c.SaveToFile(path); err != nil {
		t.Fatalf("save error: %v", err)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatalf("expected snapshot file to exist: %v", statErr)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	tbl, ok := loaded.Table("users")
	if !ok {
		t.Fatalf("expected users table after reload")
	}
	if tbl.RowCount != 5 {
		t.Fatalf("want row count 5, got %d", tbl.RowCount)
	}
	if len(tbl.Indexes) != 2 { // implicit PK + idx_name
		t.Fatalf("want 2 indexes, got %d", len(tbl.Indexes))
	}
	if _, ok := loaded.View("v1"); !ok {
		t.Fatalf("expected view v1 after reload")
	}
	if matches := loaded.TriggersFor("users", "BEFORE", "INSERT"); len(matches) != 1 {
		t.Fatalf("want 1 trigger after reload, got %d", len(matches))
	}
}
