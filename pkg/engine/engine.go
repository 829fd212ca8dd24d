// Package engine is the single importable entry point that wires
// configuration, storage, the write-ahead log, the catalog, and
// transaction management into one running database, and hands out
// pkg/session.Session values against it. Structurally grounded on
// cznic/ql's "embed a full SQL engine as one package" shape: callers
// never touch pkg/storage, pkg/txn, or pkg/wal directly.
package engine

import (
	"os"
	"path/filepath"

	"github.com/aodsql/aodsql/pkg/catalog"
	"github.com/aodsql/aodsql/pkg/config"
	"github.com/aodsql/aodsql/pkg/dbfmt"
	"github.com/aodsql/aodsql/pkg/session"
	"github.com/aodsql/aodsql/pkg/storage"
	"github.com/aodsql/aodsql/pkg/txn"
	"github.com/aodsql/aodsql/pkg/wal"
)

const catalogSnapshotName = "catalog.yaml"

// Engine owns one database's entire live state: the catalog, the row
// heap, the WAL, and the transaction manager coordinating them. Every
// pkg/session.Session returned by NewSession shares this state, matching
// spec §4's "sessions share one catalog/storage/txn manager" model.
type Engine struct {
	cfg     *config.Config
	catalog *catalog.Catalog
	storage *storage.Engine
	txnMgr  *txn.Manager
	wal     *wal.LogManager

	dataDir string
}

// Open brings up an Engine rooted at cfg.DataDir: it creates the data
// directory if missing, loads a prior catalog snapshot (if one exists) or
// starts a fresh catalog named "aodsql", opens the WAL file, and replays
// every durable record onto the recreated tables via storage.NewApplier —
// recovery per spec §4.8, applied on top of a schema the snapshot (not
// the WAL) is responsible for rebuilding.
func Open(cfg *config.Config) (*Engine, *dbfmt.Error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, dbfmt.IO(err, "create data directory %q", cfg.DataDir)
	}

	cat, err := loadOrCreateCatalog(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	walPath := filepath.Join(cfg.DataDir, cfg.WALFile)
	log, werr := wal.Open(walPath)
	if werr != nil {
		return nil, werr
	}

	txnMgr := txn.NewManager(log, cfg.LockWaitTimeoutMs)
	store := storage.NewEngine(txnMgr)
	recreateStorageTables(cat, store)

	if err := recoverWAL(walPath, store); err != nil {
		log.Close()
		return nil, err
	}
	refreshStats(cat, store)

	return &Engine{
		cfg:     cfg,
		catalog: cat,
		storage: store,
		txnMgr:  txnMgr,
		wal:     log,
		dataDir: cfg.DataDir,
	}, nil
}

func loadOrCreateCatalog(dataDir string) (*catalog.Catalog, *dbfmt.Error) {
	path := filepath.Join(dataDir, catalogSnapshotName)
	if _, statErr := os.Stat(path); statErr != nil {
		return catalog.New("aodsql"), nil
	}
	return catalog.LoadFromFile(path)
}

// recreateStorageTables mirrors the catalog's tables (and their indexes)
// into a fresh storage.Engine — storage.Engine itself carries no
// persistent schema, so every startup rebuilds its in-memory table shells
// from the catalog before the WAL replays row data into them.
func recreateStorageTables(cat *catalog.Catalog, store *storage.Engine) {
	for _, name := range cat.TableNames() {
		t, ok := cat.Table(name)
		if !ok {
			continue
		}
		names := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			names[i] = c.Name
		}
		store.CreateTable(t.Name, names)
		st, ok := store.Table(t.Name)
		if !ok {
			continue
		}
		for _, idx := range t.Indexes {
			positions := make([]int, 0, len(idx.Columns))
			for _, colName := range idx.Columns {
				for i, c := range t.Columns {
					if c.Name == colName {
						positions = append(positions, i)
						break
					}
				}
			}
			st.CreateIndex(idx.Name, positions)
		}
	}
}

// refreshStats recomputes every table's catalog.ColumnStats (distinct
// counts, MCV, histogram) and RowCount/PageCount from the recovered storage
// state, so the optimizer's cost model has real data to work with the
// moment a session opens rather than only a flat rows/10 guess.
func refreshStats(cat *catalog.Catalog, store *storage.Engine) {
	for _, name := range cat.TableNames() {
		t, ok := store.Table(name)
		if !ok {
			continue
		}
		rows := t.Scan()
		values := make([][]interface{}, len(rows))
		for i, r := range rows {
			values[i] = r.Values
		}
		cat.RefreshStats(name, values)
	}
}

func recoverWAL(walPath string, store *storage.Engine) *dbfmt.Error {
	records, err := wal.ReadAll(walPath)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	applier := storage.NewApplier(store)
	if recErr := wal.Recover(records, applier); recErr != nil {
		return dbfmt.Wrap(dbfmt.StorageError, recErr, "WAL recovery")
	}
	return nil
}

// NewSession returns a fresh client session against this Engine's shared
// catalog, storage, and transaction manager.
func (e *Engine) NewSession() *session.Session {
	return session.New(e.catalog, e.storage, e.txnMgr, e.cfg)
}

// Checkpoint writes the current catalog schema to disk so the next Open
// can recreate every table without needing to be told about DDL some
// other way. It does not truncate the WAL; that remains the durability
// log for row data for any uncheckpointed transactions.
func (e *Engine) Checkpoint() *dbfmt.Error {
	refreshStats(e.catalog, e.storage)
	path := filepath.Join(e.dataDir, catalogSnapshotName)
	return e.catalog.SaveToFile(path)
}

// Close flushes and closes the WAL. Callers should Checkpoint first if
// they want the catalog's current schema to survive without a full WAL
// replay on the next Open.
func (e *Engine) Close() *dbfmt.Error {
	return e.wal.Close()
}
