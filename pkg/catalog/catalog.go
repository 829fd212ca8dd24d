// Package catalog holds the live schema metadata the rest of the engine
// compiles and plans against: tables, columns, indexes, views, and
// triggers, plus per-column statistics the optimizer's cost model consumes.
// Grounded on the teacher's pkg/schema (Schema/Table/Column/Index shape),
// generalized with a database-scoped namespace, view/trigger metadata, and
// concurrent access via RWMutex since the catalog is shared across sessions.
package catalog

import (
	"sort"
	"strings"
	"sync"

	"github.com/aodsql/aodsql/pkg/dbfmt"
)

// ColumnInfo describes one column of a table.
type ColumnInfo struct {
	Name          string
	TypeName      string
	Length        int
	Precision     int
	Scale         int
	NotNull       bool
	PrimaryKey    bool
	Unique        bool
	AutoIncrement bool
	HasDefault    bool
	Default       interface{}
}

// IndexInfo describes a secondary or primary-key-backed index.
type IndexInfo struct {
	Name     string
	Table    string
	Columns  []string
	Unique   bool
	IsPK     bool
}

// MCVEntry is one most-common-value/frequency pair from a column's last
// stats refresh, the basis for spec §4.5's MCV-based equality selectivity.
type MCVEntry struct {
	Value     interface{}
	Frequency float64 // fraction of sampled rows equal to Value, in [0,1]
}

// ColumnStats is the per-column statistic the cost model consults: row
// count, distinct-value estimate, null fraction, an ascending equi-depth
// histogram for range-selectivity estimation, and the top-K most common
// values for equality-selectivity estimation, refreshed by
// Catalog.RefreshStats; DML statements do not update them.
type ColumnStats struct {
	DistinctCount int64
	NullCount     int64
	MinValue      interface{}
	MaxValue      interface{}

	// MCV holds the most frequent values observed, most frequent first.
	MCV []MCVEntry

	// Histogram holds ascending equi-depth bucket upper bounds: each entry
	// is the boundary value for one more 1/len(Histogram) share of rows,
	// so a range predicate's selectivity is estimated from how many
	// buckets it spans.
	Histogram []interface{}
}

// RowsPerPage is the page-size divisor used to approximate a table's
// page_count from its row count when no direct storage page count is
// available (pkg/storage.Table has no paging concept of its own).
const RowsPerPage = 64

// TableInfo describes one base table: its ordered column list, the indexes
// built on it, and per-column statistics keyed by column name.
type TableInfo struct {
	Name      string
	Columns   []ColumnInfo
	Indexes   map[string]*IndexInfo
	Stats     map[string]*ColumnStats
	RowCount  int64
	PageCount int64
}

func newTableInfo(name string) *TableInfo {
	return &TableInfo{
		Name:    name,
		Indexes: make(map[string]*IndexInfo),
		Stats:   make(map[string]*ColumnStats),
	}
}

func (t *TableInfo) Column(name string) (*ColumnInfo, bool) {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// ViewInfo is a stored, named query, kept as the SQL text of its
// definition (DefinitionSQL).
type ViewInfo struct {
	Name       string
	DefinitionSQL string
}

// TriggerInfo is a stored row/statement-level trigger bound to a table.
type TriggerInfo struct {
	Name     string
	Table    string
	Timing   string // "BEFORE" | "AFTER"
	Events   []string
	RowLevel bool
}

// Catalog is the live, mutable metadata store for one database. All
// lookups are case-insensitive on identifiers, matching the teacher's
// schema package convention.
type Catalog struct {
	mu       sync.RWMutex
	Database string
	Tables   map[string]*TableInfo
	Views    map[string]*ViewInfo
	Triggers map[string]*TriggerInfo
}

// New creates an empty Catalog for the named database.
func New(database string) *Catalog {
	return &Catalog{
		Database: database,
		Tables:   make(map[string]*TableInfo),
		Views:    make(map[string]*ViewInfo),
		Triggers: make(map[string]*TriggerInfo),
	}
}

func key(name string) string { return strings.ToLower(name) }

// CreateTable registers a new table. Returns a CONSTRAINT_ERROR if a table
// of that name already exists, matching spec §4.3's DDL idempotency rules
// (the caller is responsible for checking IF NOT EXISTS before calling).
func (c *Catalog) CreateTable(name string, columns []ColumnInfo) (*TableInfo, *dbfmt.Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.Tables[key(name)]; exists {
		return nil, dbfmt.Constraint("table %q already exists", name)
	}
	t := newTableInfo(name)
	t.Columns = columns
	for _, col := range columns {
		t.Stats[strings.ToLower(col.Name)] = &ColumnStats{}
		if col.PrimaryKey {
			idxName := "pk_" + name
			t.Indexes[key(idxName)] = &IndexInfo{Name: idxName, Table: name, Columns: []string{col.Name}, Unique: true, IsPK: true}
		}
	}
	c.Tables[key(name)] = t
	return t, nil
}

// DropTable removes a table and, since indexes are tracked inside
// TableInfo.Indexes, implicitly every index defined on it.
func (c *Catalog) DropTable(name string) *dbfmt.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.Tables[key(name)]; !exists {
		return dbfmt.Constraint("table %q does not exist", name)
	}
	delete(c.Tables, key(name))
	return nil
}

func (c *Catalog) Table(name string) (*TableInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.Tables[key(name)]
	return t, ok
}

func (c *Catalog) HasTable(name string) bool {
	_, ok := c.Table(name)
	return ok
}

func (c *Catalog) AddColumn(table string, col ColumnInfo) *dbfmt.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.Tables[key(table)]
	if !ok {
		return dbfmt.Constraint("table %q does not exist", table)
	}
	t.Columns = append(t.Columns, col)
	t.Stats[strings.ToLower(col.Name)] = &ColumnStats{}
	return nil
}

func (c *Catalog) DropColumn(table, column string) *dbfmt.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.Tables[key(table)]
	if !ok {
		return dbfmt.Constraint("table %q does not exist", table)
	}
	out := t.Columns[:0]
	found := false
	for _, col := range t.Columns {
		if strings.EqualFold(col.Name, column) {
			found = true
			continue
		}
		out = append(out, col)
	}
	if !found {
		return dbfmt.Constraint("column %q does not exist on table %q", column, table)
	}
	t.Columns = out
	delete(t.Stats, strings.ToLower(column))
	return nil
}

func (c *Catalog) CreateIndex(idx *IndexInfo) *dbfmt.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.Tables[key(idx.Table)]
	if !ok {
		return dbfmt.Constraint("table %q does not exist", idx.Table)
	}
	if _, exists := t.Indexes[key(idx.Name)]; exists {
		return dbfmt.Constraint("index %q already exists", idx.Name)
	}
	t.Indexes[key(idx.Name)] = idx
	return nil
}

func (c *Catalog) DropIndex(table, name string) *dbfmt.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.Tables[key(table)]
	if !ok {
		return dbfmt.Constraint("table %q does not exist", table)
	}
	if _, exists := t.Indexes[key(name)]; !exists {
		return dbfmt.Constraint("index %q does not exist", name)
	}
	delete(t.Indexes, key(name))
	return nil
}

// IndexesOn returns every index (in arbitrary order) defined on table whose
// leading column matches column — used by the optimizer's index-scan
// synthesis rule.
func (c *Catalog) IndexesOn(table, column string) []*IndexInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.Tables[key(table)]
	if !ok {
		return nil
	}
	var out []*IndexInfo
	for _, idx := range t.Indexes {
		if len(idx.Columns) > 0 && strings.EqualFold(idx.Columns[0], column) {
			out = append(out, idx)
		}
	}
	return out
}

func (c *Catalog) CreateView(v *ViewInfo) *dbfmt.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.Views[key(v.Name)]; exists {
		return dbfmt.Constraint("view %q already exists", v.Name)
	}
	c.Views[key(v.Name)] = v
	return nil
}

func (c *Catalog) ReplaceView(v *ViewInfo) *dbfmt.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.Views[key(v.Name)]; !exists {
		return dbfmt.Constraint("view %q does not exist", v.Name)
	}
	c.Views[key(v.Name)] = v
	return nil
}

func (c *Catalog) DropView(name string) *dbfmt.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.Views[key(name)]; !exists {
		return dbfmt.Constraint("view %q does not exist", name)
	}
	delete(c.Views, key(name))
	return nil
}

func (c *Catalog) View(name string) (*ViewInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.Views[key(name)]
	return v, ok
}

func (c *Catalog) CreateTrigger(tr *TriggerInfo) *dbfmt.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.Triggers[key(tr.Name)]; exists {
		return dbfmt.Constraint("trigger %q already exists", tr.Name)
	}
	c.Triggers[key(tr.Name)] = tr
	return nil
}

func (c *Catalog) DropTrigger(name string) *dbfmt.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.Triggers[key(name)]; !exists {
		return dbfmt.Constraint("trigger %q does not exist", name)
	}
	delete(c.Triggers, key(name))
	return nil
}

// TriggersFor returns triggers bound to table for the given timing/event
// pair, in no defined order (triggers are kept in a map) — used by
// pkg/exec's InsertOp to call fireTrigger around each inserted row.
func (c *Catalog) TriggersFor(table, timing, event string) []*TriggerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*TriggerInfo
	for _, tr := range c.Triggers {
		if !strings.EqualFold(tr.Table, table) || !strings.EqualFold(tr.Timing, timing) {
			continue
		}
		for _, e := range tr.Events {
			if strings.EqualFold(e, event) {
				out = append(out, tr)
				break
			}
		}
	}
	return out
}

// UpdateRowCount adjusts a table's row-count estimate by delta (clamped at
// zero) and recomputes PageCount from it. pkg/exec's DML operators do not
// call it; RefreshStats resets both counts from the table's actual rows.
func (c *Catalog) UpdateRowCount(table string, delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.Tables[key(table)]; ok {
		t.RowCount += delta
		if t.RowCount < 0 {
			t.RowCount = 0
		}
		t.PageCount = (t.RowCount + RowsPerPage - 1) / RowsPerPage
	}
}

// mcvLimit and histogramBuckets bound how much detail RefreshStats keeps
// per column: the top mcvLimit values by frequency, and a histogramBuckets-
// way equi-depth split of all non-null sorted values (MCV values included).
const (
	mcvLimit         = 10
	histogramBuckets = 10
)

// RefreshStats recomputes every column's ColumnStats, and the table's
// RowCount/PageCount, from a full snapshot of the table's current values —
// the stats-population step spec §4.5's cost formulas depend on (MCV-based
// equality selectivity, histogram-CDF range selectivity, page_count*C_io_page
// IO cost), which a flat rows/10 guess can't satisfy. rows[i][j] is column j
// of row i, in the table's column order. Callers drive this periodically
// (pkg/engine refreshes it on Open and Checkpoint) rather than after every
// DML statement, matching how real engines treat ANALYZE as a separate,
// occasional pass.
func (c *Catalog) RefreshStats(table string, rows [][]interface{}) *dbfmt.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.Tables[key(table)]
	if !ok {
		return dbfmt.Constraint("table %q does not exist", table)
	}
	t.RowCount = int64(len(rows))
	t.PageCount = (t.RowCount + RowsPerPage - 1) / RowsPerPage
	for i, col := range t.Columns {
		t.Stats[key(col.Name)] = columnStatsOf(rows, i)
	}
	return nil
}

func columnStatsOf(rows [][]interface{}, col int) *ColumnStats {
	counts := map[interface{}]int64{}
	var values []interface{}
	stats := &ColumnStats{}
	for _, r := range rows {
		if col >= len(r) {
			continue
		}
		v := r[col]
		if v == nil {
			stats.NullCount++
			continue
		}
		counts[v]++
		values = append(values, v)
		if stats.MinValue == nil {
			stats.MinValue, stats.MaxValue = v, v
		} else {
			if less, ok := lessValue(v, stats.MinValue); ok && less {
				stats.MinValue = v
			}
			if less, ok := lessValue(stats.MaxValue, v); ok && less {
				stats.MaxValue = v
			}
		}
	}
	stats.DistinctCount = int64(len(counts))
	stats.MCV = topMCV(counts, int64(len(values)))
	stats.Histogram = equiDepthHistogram(values)
	return stats
}

// topMCV returns the mcvLimit most frequent values, most frequent first.
func topMCV(counts map[interface{}]int64, total int64) []MCVEntry {
	if total == 0 {
		return nil
	}
	entries := make([]MCVEntry, 0, len(counts))
	for v, n := range counts {
		entries = append(entries, MCVEntry{Value: v, Frequency: float64(n) / float64(total)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Frequency > entries[j].Frequency })
	if len(entries) > mcvLimit {
		entries = entries[:mcvLimit]
	}
	return entries
}

// equiDepthHistogram sorts values, splits them into histogramBuckets
// roughly equal-sized buckets (fewer if there are fewer values), and
// returns the last value of each bucket, ascending; the final entry is the
// maximum.
func equiDepthHistogram(values []interface{}) []interface{} {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]interface{}{}, values...)
	sort.Slice(sorted, func(i, j int) bool {
		less, ok := lessValue(sorted[i], sorted[j])
		return ok && less
	})
	buckets := histogramBuckets
	if buckets > len(sorted) {
		buckets = len(sorted)
	}
	bounds := make([]interface{}, 0, buckets)
	for b := 1; b <= buckets; b++ {
		idx := b*len(sorted)/buckets - 1
		if idx < 0 {
			idx = 0
		}
		bounds = append(bounds, sorted[idx])
	}
	return bounds
}

// lessValue orders two column values of the same comparable kind; ok is
// false for kinds it doesn't know how to compare, in which case callers
// should leave ordering unchanged.
func lessValue(a, b interface{}) (bool, bool) {
	switch av := a.(type) {
	case int64:
		if bv, ok := b.(int64); ok {
			return av < bv, true
		}
	case float64:
		if bv, ok := b.(float64); ok {
			return av < bv, true
		}
	case string:
		if bv, ok := b.(string); ok {
			return av < bv, true
		}
	case bool:
		if bv, ok := b.(bool); ok {
			return !av && bv, true
		}
	}
	return false, false
}

// TableNames returns every table name, for SHOW TABLES.
func (c *Catalog) TableNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.Tables))
	for _, t := range c.Tables {
		names = append(names, t.Name)
	}
	return names
}
