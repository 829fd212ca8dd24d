// Package config loads the engine's YAML/JSON configuration, almost
// directly grounded on pkg/schema/loader.go's SchemaLoader.LoadFromJSON/
// LoadFromYAML/LoadFromFile: auto-detect by file extension, falling back
// to try-JSON-then-YAML for an unrecognized one.
package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aodsql/aodsql/pkg/dbfmt"
)

// Config holds every engine-wide tunable the spec names: storage/WAL
// locations, the fixed batch width, lock wait behavior, the optimizer's
// cost-model weights and join-order search cap, and the adaptive-tuning
// feedback window.
type Config struct {
	// Storage
	DataDir           string `json:"data_dir" yaml:"data_dir"`
	WALFile           string `json:"wal_file" yaml:"wal_file"`
	CheckpointSeconds int    `json:"checkpoint_seconds" yaml:"checkpoint_seconds"`

	// Execution
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// Locking
	LockWaitTimeoutMs int64 `json:"lock_wait_timeout_ms" yaml:"lock_wait_timeout_ms"`

	// Optimizer cost model (spec §4.5: total = weight_io*io + weight_cpu*cpu
	// + weight_memory*memory).
	CostIOPage   float64 `json:"cost_io_page" yaml:"cost_io_page"`
	CostCPURow   float64 `json:"cost_cpu_row" yaml:"cost_cpu_row"`
	CostIdxMem   float64 `json:"cost_idx_mem" yaml:"cost_idx_mem"`
	WeightIO     float64 `json:"weight_io" yaml:"weight_io"`
	WeightCPU    float64 `json:"weight_cpu" yaml:"weight_cpu"`
	WeightMemory float64 `json:"weight_memory" yaml:"weight_memory"`

	// JoinOrderCap bounds exhaustive join-order enumeration (spec's K).
	JoinOrderCap int `json:"join_order_cap" yaml:"join_order_cap"`

	// Adaptive tuning feedback loop.
	TuningWindowRuns    int     `json:"tuning_window_runs" yaml:"tuning_window_runs"`
	TuningHistoryLimit  int     `json:"tuning_history_limit" yaml:"tuning_history_limit"`
	TuningStepPercent   float64 `json:"tuning_step_percent" yaml:"tuning_step_percent"`
	TuningMaxMultiplier float64 `json:"tuning_max_multiplier" yaml:"tuning_max_multiplier"`
}

// Default returns the configuration the engine runs with when no config
// file is given — every numeric default mirrors a spec constant, so the
// engine behaves correctly out of the box.
func Default() *Config {
	return &Config{
		DataDir:           "./data",
		WALFile:           "aodsql.wal",
		CheckpointSeconds: 30,

		BatchSize: 1024,

		LockWaitTimeoutMs: 5000,

		CostIOPage:   1.0,
		CostCPURow:   0.1,
		CostIdxMem:   0.05,
		WeightIO:     0.70,
		WeightCPU:    0.25,
		WeightMemory: 0.05,

		JoinOrderCap: 6,

		TuningWindowRuns:    10,
		TuningHistoryLimit:  100,
		TuningStepPercent:   0.05,
		TuningMaxMultiplier: 4.0,
	}
}

// Load reads cfg from path, auto-detecting the format from its extension
// (.json, .yaml/.yml) and falling back to JSON-then-YAML for anything
// else — the exact dispatch SchemaLoader.LoadFromFile uses. Fields absent
// from the file keep Default's values, since both Unmarshal calls decode
// into a Config already seeded with defaults.
func Load(path string) (*Config, *dbfmt.Error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dbfmt.Exec("read config %q: %v", path, err)
	}
	return Parse(path, data)
}

// Parse decodes data into a Config seeded with Default's values, format
// chosen by name's extension (or JSON-then-YAML fallback if name doesn't
// carry a recognized one).
func Parse(name string, data []byte) (*Config, *dbfmt.Error) {
	cfg := Default()
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".json"):
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, dbfmt.Exec("parse JSON config: %v", err)
		}
		return cfg, nil
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"):
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, dbfmt.Exec("parse YAML config: %v", err)
		}
		return cfg, nil
	}

	if err := json.Unmarshal(data, cfg); err == nil {
		return cfg, nil
	}
	cfg = Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, dbfmt.Exec("config is neither valid JSON nor YAML: %v", err)
	}
	return cfg, nil
}

// ReadAll is a small seam kept distinct from Load so callers streaming
// configuration from somewhere other than a path (e.g. an embedded
// default file) can still go through the same Parse dispatch.
func ReadAll(name string, r io.Reader) (*Config, *dbfmt.Error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, dbfmt.Exec("read config stream: %v", err)
	}
	return Parse(name, data)
}
