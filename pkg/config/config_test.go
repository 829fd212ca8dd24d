package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultMatchesSpecConstants(t *testing.T) {
	cfg := Default()
	if cfg.BatchSize != 1024 {
		t.Fatalf("want BatchSize 1024, got %d", cfg.BatchSize)
	}
	if cfg.JoinOrderCap != 6 {
		t.Fatalf("want JoinOrderCap 6, got %d", cfg.JoinOrderCap)
	}
	if cfg.WeightIO+cfg.WeightCPU+cfg.WeightMemory != 1.0 {
		t.Fatalf("cost weights should sum to 1.0, got %v", cfg.WeightIO+cfg.WeightCPU+cfg.WeightMemory)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aodsql.yaml")
	writeFile(t, path, "batch_size: 256\njoin_order_cap: 4\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BatchSize != 256 {
		t.Fatalf("want overridden BatchSize 256, got %d", cfg.BatchSize)
	}
	if cfg.JoinOrderCap != 4 {
		t.Fatalf("want overridden JoinOrderCap 4, got %d", cfg.JoinOrderCap)
	}
	// Untouched fields keep their defaults.
	if cfg.LockWaitTimeoutMs != 5000 {
		t.Fatalf("want default LockWaitTimeoutMs preserved, got %d", cfg.LockWaitTimeoutMs)
	}
}

func TestLoadJSONOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aodsql.json")
	writeFile(t, path, `{"data_dir": "/var/lib/aodsql", "lock_wait_timeout_ms": 2000}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/var/lib/aodsql" {
		t.Fatalf("want overridden DataDir, got %q", cfg.DataDir)
	}
	if cfg.LockWaitTimeoutMs != 2000 {
		t.Fatalf("want overridden LockWaitTimeoutMs, got %d", cfg.LockWaitTimeoutMs)
	}
}

func TestParseFallsBackFromJSONToYAML(t *testing.T) {
	cfg, err := Parse("aodsql.conf", []byte("batch_size: 512\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.BatchSize != 512 {
		t.Fatalf("want BatchSize 512 via YAML fallback, got %d", cfg.BatchSize)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
}
