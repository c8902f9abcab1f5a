// Package bench expands the configuration into the run matrix, executes
// every cell, and writes the per-run results plus the comparative summary.
package bench

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"syncbench/internal/config"
	"syncbench/internal/report"
	"syncbench/internal/sharedlog"
	"syncbench/internal/strategy"
	"syncbench/internal/task"
)

// cell is one matrix entry: a named strategy/policy/worker-count triple.
type cell struct {
	name string
	cfg  strategy.Config
}

// Row condenses one run for the comparative summary.
type Row struct {
	Name                   string            `json:"name"`
	Strategy               strategy.Strategy `json:"strategy"`
	Policy                 sharedlog.Policy  `json:"policy"`
	Workers                int               `json:"workers"`
	TotalTime              float64           `json:"total_time"`
	AvgTimePerImage        float64           `json:"avg_time_per_image"`
	Throughput             float64           `json:"throughput_img_per_sec"`
	TotalLockWaitTime      float64           `json:"total_lock_wait_time"`
	TotalSemaphoreWaitTime float64           `json:"total_semaphore_wait_time"`
	ContentionCount        int64             `json:"contention_count"`
	FinalCount             int64             `json:"final_count,omitempty"`
}

// Summary compares every run of one invocation.
type Summary struct {
	RunID       string `json:"run_id"`
	Executor    string `json:"executor"`
	NImages     int    `json:"n_images"`
	Experiments []Row  `json:"experiments"`
}

// buildMatrix expands the configured pool sizes into the run matrix. The
// serial baseline always comes first; thread pools sweep the in-process
// policies, process pools use the cross-process file lock.
func buildMatrix(c config.Config) []cell {
	cells := []cell{{
		name: "serial",
		cfg:  strategy.Config{Strategy: strategy.StrategySerial, Policy: sharedlog.PolicyNoOp},
	}}
	for _, n := range c.Threads {
		for _, p := range []sharedlog.Policy{sharedlog.PolicyNone, sharedlog.PolicyMutex, sharedlog.PolicySemaphore} {
			cells = append(cells, cell{
				name: fmt.Sprintf("threads_%d_%s", n, p),
				cfg:  strategy.Config{Strategy: strategy.StrategyThreadPool, Policy: p, Workers: n},
			})
		}
	}
	for _, n := range c.Processes {
		cells = append(cells, cell{
			name: fmt.Sprintf("processes_%d_%s", n, sharedlog.PolicyFileLock),
			cfg:  strategy.Config{Strategy: strategy.StrategyProcessPool, Policy: sharedlog.PolicyFileLock, Workers: n},
		})
	}
	for _, n := range c.Threads {
		for _, p := range []sharedlog.Policy{sharedlog.PolicyMutex, sharedlog.PolicySemaphore} {
			cells = append(cells, cell{
				name: fmt.Sprintf("threadexec_%d_%s", n, p),
				cfg:  strategy.Config{Strategy: strategy.StrategyThreadExecutor, Policy: p, Workers: n},
			})
		}
	}
	for _, n := range c.Processes {
		cells = append(cells, cell{
			name: fmt.Sprintf("procexec_%d_%s", n, sharedlog.PolicyFileLock),
			cfg:  strategy.Config{Strategy: strategy.StrategyProcessExecutor, Policy: sharedlog.PolicyFileLock, Workers: n},
		})
	}
	return cells
}

// Run executes the whole matrix. An empty workload is fatal before any cell
// runs; a single cell failing to set up is logged and skipped.
func Run(cfg config.Config) (*Summary, error) {
	exec, err := task.Lookup(cfg.Executor)
	if err != nil {
		return nil, err
	}
	items, err := task.ScanDir(cfg.ImagesDir)
	if err != nil {
		return nil, fmt.Errorf("scan images dir: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no images under %s", strategy.ErrEmptyWorkload, cfg.ImagesDir)
	}
	if err := os.MkdirAll(cfg.ResultsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}

	sum := &Summary{
		RunID:    uuid.NewString(),
		Executor: cfg.Executor,
		NImages:  len(items),
	}
	log.Info().
		Str("run_id", sum.RunID).
		Int("n_images", len(items)).
		Str("executor", cfg.Executor).
		Msg("benchmark starting")

	for _, c := range buildMatrix(cfg) {
		destDir := filepath.Join(cfg.OutputDir, c.name)
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			log.Error().Err(err).Str("run", c.name).Msg("skipping run, cannot create output dir")
			continue
		}
		c.cfg.ExecutorName = cfg.Executor
		c.cfg.DestDir = destDir
		c.cfg.LogPath = filepath.Join(destDir, "processing.log")
		c.cfg.LogPermits = cfg.LogPermits
		c.cfg.Count = cfg.CountItems

		log.Info().
			Str("run", c.name).
			Str("strategy", string(c.cfg.Strategy)).
			Str("policy", string(c.cfg.Policy)).
			Int("workers", c.cfg.Workers).
			Msg("run starting")

		s, err := measureRun(cfg.CPUSampling, func() (*strategy.RunSummary, error) {
			return strategy.Run(items, exec, c.cfg)
		})
		if err != nil {
			if errors.Is(err, strategy.ErrEmptyWorkload) {
				return nil, err
			}
			log.Error().Err(err).Str("run", c.name).Msg("run failed, skipping")
			continue
		}
		s.Name = c.name

		if err := report.SaveRun(cfg.ResultsDir, s); err != nil {
			log.Error().Err(err).Str("run", c.name).Msg("persisting run results failed")
		}
		sum.Experiments = append(sum.Experiments, condense(s))
		log.Info().
			Str("run", c.name).
			Float64("total_time", s.TotalTime).
			Float64("throughput", s.Throughput).
			Msg("run complete")
	}

	if err := report.SaveJSON(filepath.Join(cfg.ResultsDir, "summary.json"), sum); err != nil {
		return nil, err
	}
	return sum, nil
}

func condense(s *strategy.RunSummary) Row {
	return Row{
		Name:                   s.Name,
		Strategy:               s.Strategy,
		Policy:                 s.Policy,
		Workers:                s.Workers,
		TotalTime:              s.TotalTime,
		AvgTimePerImage:        s.AvgTimePerImage,
		Throughput:             s.Throughput,
		TotalLockWaitTime:      s.SyncMetrics.TotalLockWaitTime,
		TotalSemaphoreWaitTime: s.SyncMetrics.TotalSemaphoreWaitTime,
		ContentionCount:        s.SyncMetrics.ContentionCount,
		FinalCount:             s.FinalCount,
	}
}
