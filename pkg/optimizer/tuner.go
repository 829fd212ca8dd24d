package optimizer

import (
	"strings"

	"github.com/aodsql/aodsql/pkg/config"
)

// defaultSelectivity is the flat guess estimateSelectivity falls back to
// absent any stats or override — the baseline a Tuner's clamp range is
// expressed relative to.
const defaultSelectivity = 0.1

// Tuner implements spec §4.5's adaptive-tuning feedback loop: it watches
// how a query's actual row count compared to the optimizer's estimate for
// one indexed equality predicate, and nudges Stats.SelectivityOverrides
// toward the observed value once enough runs have accumulated to smooth
// out noise from any single query's skew. Grounded on the windowed-
// observation design spec §4.5 describes (tuning_window_runs/
// tuning_history_limit/tuning_step_percent/tuning_max_multiplier); nothing
// in the example pack implements this loop directly, so the shape here
// is original to this engine, built from the teacher's plain-struct,
// no-goroutine style the rest of pkg/optimizer already uses.
type Tuner struct {
	cfg     *config.Config
	stats   *Stats
	history map[string][]float64
}

func NewTuner(cfg *config.Config, stats *Stats) *Tuner {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Tuner{cfg: cfg, stats: stats, history: map[string][]float64{}}
}

// Observe records one query's actual selectivity for table.col (actualRows
// out of scannedRows, the table's total row count at query time) and, once
// a full tuning window of observations has accumulated, nudges the
// column's SelectivityOverride toward the window's average by
// TuningStepPercent, clamped to within TuningMaxMultiplier of the default
// selectivity guess so a single pathological run can't blow the estimate
// out to 0 or 1.
func (t *Tuner) Observe(table, col string, scannedRows, actualRows int64) {
	if scannedRows <= 0 {
		return
	}
	key := strings.ToLower(table) + "." + strings.ToLower(col)
	observedSel := float64(actualRows) / float64(scannedRows)

	hist := append(t.history[key], observedSel)
	if limit := t.cfg.TuningHistoryLimit; limit > 0 && len(hist) > limit {
		hist = hist[len(hist)-limit:]
	}
	t.history[key] = hist

	window := t.cfg.TuningWindowRuns
	if window <= 0 || len(hist) < window {
		return
	}
	recent := hist[len(hist)-window:]
	var sum float64
	for _, v := range recent {
		sum += v
	}
	avg := sum / float64(len(recent))

	current, ok := t.stats.SelectivityOverrides[key]
	if !ok {
		current = defaultSelectivity
	}
	nudged := current + (avg-current)*t.cfg.TuningStepPercent

	maxSel := defaultSelectivity * t.cfg.TuningMaxMultiplier
	minSel := defaultSelectivity / t.cfg.TuningMaxMultiplier
	if nudged > maxSel {
		nudged = maxSel
	}
	if nudged < minSel {
		nudged = minSel
	}
	t.stats.SelectivityOverrides[key] = nudged
}
