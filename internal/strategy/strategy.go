// Package strategy drives a batch of work items through the task executor
// under one execution model and one synchronization policy, and assembles
// the per-run summary the orchestrator compares.
package strategy

import (
	"errors"
	"fmt"
	"time"

	"syncbench/internal/counter"
	"syncbench/internal/metrics"
	"syncbench/internal/sharedlog"
	"syncbench/internal/task"
)

// Strategy names one execution model.
type Strategy string

const (
	// StrategySerial executes items one at a time on the calling
	// goroutine; the correctness and performance baseline.
	StrategySerial Strategy = "serial"
	// StrategyThreadPool runs a fixed set of goroutines pulling from a
	// shared queue inside one process.
	StrategyThreadPool Strategy = "threads"
	// StrategyProcessPool runs a fixed set of worker OS processes with
	// independent memory; items and results cross the boundary by value.
	StrategyProcessPool Strategy = "processes"
	// StrategyThreadExecutor is the managed submit/collect flavor of the
	// thread pool.
	StrategyThreadExecutor Strategy = "thread-executor"
	// StrategyProcessExecutor is the managed submit/collect flavor of the
	// process pool.
	StrategyProcessExecutor Strategy = "process-executor"
)

// ParseStrategy validates a strategy name from config.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case StrategySerial, StrategyThreadPool, StrategyProcessPool,
		StrategyThreadExecutor, StrategyProcessExecutor:
		return st, nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// ErrEmptyWorkload is returned before any worker is spawned when the item
// list is empty. It is fatal to the whole invocation, not just one cell.
var ErrEmptyWorkload = errors.New("workload is empty")

// Config fixes one run of the matrix.
type Config struct {
	Strategy Strategy
	Policy   sharedlog.Policy
	// Workers is the concurrency degree; ignored by the serial strategy.
	Workers int
	// ExecutorName resolves the executor inside worker processes, which
	// cannot receive a live Executor value.
	ExecutorName string
	DestDir      string
	LogPath      string
	LogPermits   int64
	// Count wires the shared counter into the run: each completed item
	// increments it once. Thread strategies pick the in-memory variant
	// matching the policy; process strategies use the file-backed one.
	Count bool
}

// RunSummary is the outcome of one run.
type RunSummary struct {
	Name            string           `json:"name"`
	Strategy        Strategy         `json:"strategy"`
	Policy          sharedlog.Policy `json:"policy"`
	Workers         int              `json:"workers"`
	TotalTime       float64          `json:"total_time"`
	NImages         int              `json:"n_images"`
	AvgTimePerImage float64          `json:"avg_time_per_image"`
	Throughput      float64          `json:"throughput_img_per_sec"`
	FinalCount      int64            `json:"final_count,omitempty"`
	CPUSamples      []float64        `json:"cpu_samples,omitempty"`
	Results         []task.Result    `json:"runs"`
	SyncMetrics     metrics.Snapshot `json:"sync_metrics"`
}

// Run executes the workload under cfg. Per-item failures are recorded in
// the results and never abort the batch; only failures to set up the run's
// shared resources surface as errors.
func Run(items []string, exec task.Executor, cfg Config) (*RunSummary, error) {
	if len(items) == 0 {
		return nil, ErrEmptyWorkload
	}
	switch cfg.Strategy {
	case StrategySerial:
		return runSerial(items, exec, cfg)
	case StrategyThreadPool:
		return runThreadPool(items, exec, cfg)
	case StrategyThreadExecutor:
		return runThreadExecutor(items, exec, cfg)
	case StrategyProcessPool:
		return runProcessPool(items, cfg)
	case StrategyProcessExecutor:
		return runProcessExecutor(items, cfg)
	}
	return nil, fmt.Errorf("unknown strategy %q", cfg.Strategy)
}

// runItem wraps one executor call: wall-clock timing, worker attribution,
// and the optional shared-counter increment.
func runItem(exec task.Executor, item string, cfg Config, workerID string, slog sharedlog.Log, cnt counter.Counter) task.Result {
	start := time.Now()
	res := exec.Execute(item, cfg.DestDir, workerID, slog)
	res.Elapsed = time.Since(start).Seconds()
	res.WorkerID = workerID
	if cnt != nil {
		if _, err := cnt.Increment(); err != nil {
			res.Success = false
			res.Error = err.Error()
		}
	}
	return res
}

// newThreadCounter picks the in-process counter for thread strategies: the
// racy variant under the "none" policy, the lock-protected one otherwise.
func newThreadCounter(cfg Config) counter.Counter {
	if !cfg.Count {
		return nil
	}
	if cfg.Policy == sharedlog.PolicyNone {
		return counter.NewUnsafe()
	}
	return counter.NewMutex()
}

func summarize(cfg Config, n int, results []task.Result, total time.Duration, syncStats metrics.Snapshot, finalCount int64) *RunSummary {
	s := &RunSummary{
		Strategy:    cfg.Strategy,
		Policy:      cfg.Policy,
		Workers:     cfg.Workers,
		TotalTime:   total.Seconds(),
		NImages:     n,
		Results:     results,
		SyncMetrics: syncStats,
		FinalCount:  finalCount,
	}
	if n > 0 && s.TotalTime > 0 {
		s.AvgTimePerImage = s.TotalTime / float64(n)
		s.Throughput = float64(n) / s.TotalTime
	}
	return s
}

func counterValue(cnt counter.Counter) int64 {
	if cnt == nil {
		return 0
	}
	v, err := cnt.Value()
	if err != nil {
		return 0
	}
	return v
}
