package strategy

import (
	"time"

	"syncbench/internal/metrics"
	"syncbench/internal/sharedlog"
	"syncbench/internal/task"
)

// runSerial is the baseline: one item at a time on the calling goroutine.
// No shared-state coordination is needed, so the matrix runs it with the
// no-op log and its sync metrics stay empty.
func runSerial(items []string, exec task.Executor, cfg Config) (*RunSummary, error) {
	slog, err := sharedlog.New(cfg.Policy, cfg.LogPath, cfg.LogPermits)
	if err != nil {
		return nil, err
	}

	results := make([]task.Result, 0, len(items))
	start := time.Now()
	for _, item := range items {
		results = append(results, runItem(exec, item, cfg, "main", slog, nil))
	}
	total := time.Since(start)

	var syncStats metrics.Snapshot
	syncStats.Merge(slog.Metrics())
	return summarize(cfg, len(items), results, total, syncStats, 0), nil
}
