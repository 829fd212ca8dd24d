package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aodsql/aodsql/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	return cfg
}

func TestOpenCreatesFreshCatalogWhenNoSnapshotExists(t *testing.T) {
	e, err := Open(testConfig(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer e.Close()

	s := e.NewSession()
	if _, err := s.Submit(context.Background(), "CREATE TABLE users (id INT PRIMARY KEY, name VARCHAR)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	res, err := s.Submit(context.Background(), "SHOW TABLES")
	if err != nil {
		t.Fatalf("show tables: %v", err)
	}
	if res.Status != "users" {
		t.Fatalf("want SHOW TABLES to report users, got %q", res.Status)
	}
}

func TestCheckpointAndReopenRecreatesSchema(t *testing.T) {
	cfg := testConfig(t)

	e, err := Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s := e.NewSession()
	ctx := context.Background()
	if _, err := s.Submit(ctx, "CREATE TABLE users (id INT PRIMARY KEY, name VARCHAR)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := s.Submit(ctx, "CREATE INDEX idx_name ON users (name)"); err != nil {
		t.Fatalf("create index: %v", err)
	}
	if _, err := s.Submit(ctx, "INSERT INTO users (id, name) VALUES (1, 'alice')"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := e.Checkpoint(); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	e2, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer e2.Close()

	s2 := e2.NewSession()
	res, err := s2.Submit(ctx, "SELECT name FROM users WHERE name = 'alice'")
	if err != nil {
		t.Fatalf("select after reopen: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0][0] != "alice" {
		t.Fatalf("want the checkpointed row to survive, got %+v", res.Rows)
	}
}

func TestWALDataDirPathsAreJoinedUnderDataDir(t *testing.T) {
	cfg := testConfig(t)
	e, err := Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer e.Close()

	if got := filepath.Join(cfg.DataDir, cfg.WALFile); filepath.Dir(got) != cfg.DataDir {
		t.Fatalf("expected WAL file under data dir, got %q", got)
	}
}
