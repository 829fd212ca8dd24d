package catalog

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aodsql/aodsql/pkg/dbfmt"
)

// snapshotColumn/snapshotIndex/snapshotTable/Snapshot are the on-disk YAML
// shape of a Catalog, grounded on the teacher's pkg/schema/loader.go
// JSON/YAML tag convention. A snapshot is written by engine.Checkpoint and
// read back on startup; the WAL carries row data only, so the snapshot is
// what lets the catalog survive a restart.
type snapshotColumn struct {
	Name          string      `yaml:"name"`
	Type          string      `yaml:"type"`
	Length        int         `yaml:"length,omitempty"`
	Precision     int         `yaml:"precision,omitempty"`
	Scale         int         `yaml:"scale,omitempty"`
	NotNull       bool        `yaml:"not_null,omitempty"`
	PrimaryKey    bool        `yaml:"primary_key,omitempty"`
	Unique        bool        `yaml:"unique,omitempty"`
	AutoIncrement bool        `yaml:"auto_increment,omitempty"`
	Default       interface{} `yaml:"default,omitempty"`
}

type snapshotIndex struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique,omitempty"`
	IsPK    bool     `yaml:"is_pk,omitempty"`
}

type snapshotTable struct {
	Name     string           `yaml:"name"`
	Columns  []snapshotColumn `yaml:"columns"`
	Indexes  []snapshotIndex  `yaml:"indexes,omitempty"`
	RowCount int64            `yaml:"row_count"`
}

type snapshotView struct {
	Name          string `yaml:"name"`
	DefinitionSQL string `yaml:"definition_sql"`
}

type snapshotTrigger struct {
	Name     string   `yaml:"name"`
	Table    string   `yaml:"table"`
	Timing   string   `yaml:"timing"`
	Events   []string `yaml:"events"`
	RowLevel bool     `yaml:"row_level"`
}

type Snapshot struct {
	Database string            `yaml:"database"`
	Tables   []snapshotTable   `yaml:"tables"`
	Views    []snapshotView    `yaml:"views,omitempty"`
	Triggers []snapshotTrigger `yaml:"triggers,omitempty"`
}

// Dump renders the catalog's current state as a Snapshot, safe to marshal.
func (c *Catalog) Dump() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{Database: c.Database}
	for _, t := range c.Tables {
		st := snapshotTable{Name: t.Name, RowCount: t.RowCount}
		for _, col := range t.Columns {
			st.Columns = append(st.Columns, snapshotColumn{
				Name: col.Name, Type: col.TypeName, Length: col.Length,
				Precision: col.Precision, Scale: col.Scale, NotNull: col.NotNull,
				PrimaryKey: col.PrimaryKey, Unique: col.Unique,
				AutoIncrement: col.AutoIncrement, Default: col.Default,
			})
		}
		for _, idx := range t.Indexes {
			st.Indexes = append(st.Indexes, snapshotIndex{
				Name: idx.Name, Columns: idx.Columns, Unique: idx.Unique, IsPK: idx.IsPK,
			})
		}
		snap.Tables = append(snap.Tables, st)
	}
	for _, v := range c.Views {
		snap.Views = append(snap.Views, snapshotView{Name: v.Name, DefinitionSQL: v.DefinitionSQL})
	}
	for _, tr := range c.Triggers {
		snap.Triggers = append(snap.Triggers, snapshotTrigger{
			Name: tr.Name, Table: tr.Table, Timing: tr.Timing, Events: tr.Events, RowLevel: tr.RowLevel,
		})
	}
	return snap
}

// SaveToFile writes the catalog snapshot to path as YAML.
func (c *Catalog) SaveToFile(path string) *dbfmt.Error {
	data, err := yaml.Marshal(c.Dump())
	if err != nil {
		return dbfmt.IO(err, "marshal catalog snapshot")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return dbfmt.IO(err, "write catalog snapshot to %s", path)
	}
	return nil
}

// LoadFromFile rebuilds a Catalog from a YAML snapshot written by SaveToFile.
func LoadFromFile(path string) (*Catalog, *dbfmt.Error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dbfmt.IO(err, "read catalog snapshot from %s", path)
	}
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, dbfmt.IO(err, "unmarshal catalog snapshot")
	}
	return FromSnapshot(snap), nil
}

// FromSnapshot reconstructs a live Catalog from a decoded Snapshot.
func FromSnapshot(snap Snapshot) *Catalog {
	c := New(snap.Database)
	for _, st := range snap.Tables {
		t := newTableInfo(st.Name)
		t.RowCount = st.RowCount
		for _, sc := range st.Columns {
			t.Columns = append(t.Columns, ColumnInfo{
				Name: sc.Name, TypeName: sc.Type, Length: sc.Length, Precision: sc.Precision,
				Scale: sc.Scale, NotNull: sc.NotNull, PrimaryKey: sc.PrimaryKey, Unique: sc.Unique,
				AutoIncrement: sc.AutoIncrement, HasDefault: sc.Default != nil, Default: sc.Default,
			})
			t.Stats[key(sc.Name)] = &ColumnStats{}
		}
		for _, si := range st.Indexes {
			t.Indexes[key(si.Name)] = &IndexInfo{Name: si.Name, Table: st.Name, Columns: si.Columns, Unique: si.Unique, IsPK: si.IsPK}
		}
		c.Tables[key(st.Name)] = t
	}
	for _, sv := range snap.Views {
		c.Views[key(sv.Name)] = &ViewInfo{Name: sv.Name, DefinitionSQL: sv.DefinitionSQL}
	}
	for _, str := range snap.Triggers {
		c.Triggers[key(str.Name)] = &TriggerInfo{Name: str.Name, Table: str.Table, Timing: str.Timing, Events: str.Events, RowLevel: str.RowLevel}
	}
	return c
}
