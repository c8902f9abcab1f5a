package strategy

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"syncbench/internal/metrics"
	"syncbench/internal/sharedlog"
	"syncbench/internal/task"
)

// runThreadPool starts a fixed number of goroutines that pull items from a
// shared queue until it drains. All workers share the process's memory, so
// they use the one log/counter instance directly.
func runThreadPool(items []string, exec task.Executor, cfg Config) (*RunSummary, error) {
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("thread pool needs at least 1 worker, got %d", cfg.Workers)
	}
	slog, err := sharedlog.New(cfg.Policy, cfg.LogPath, cfg.LogPermits)
	if err != nil {
		return nil, err
	}
	cnt := newThreadCounter(cfg)

	queue := make(chan string, len(items))
	for _, item := range items {
		queue <- item
	}
	close(queue)

	results := make([]task.Result, 0, len(items))
	var resMu sync.Mutex
	var wg sync.WaitGroup

	start := time.Now()
	for w := 0; w < cfg.Workers; w++ {
		workerID := fmt.Sprintf("T%d", w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range queue {
				r := runItem(exec, item, cfg, workerID, slog, cnt)
				resMu.Lock()
				results = append(results, r)
				resMu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)

	var syncStats metrics.Snapshot
	syncStats.Merge(slog.Metrics())
	if cnt != nil {
		syncStats.Merge(cnt.Metrics())
	}
	return summarize(cfg, len(items), results, total, syncStats, counterValue(cnt)), nil
}

// runThreadExecutor is the managed flavor of the thread pool: items are
// submitted individually to a bounded group and results are collected as
// they complete, instead of workers pulling from a manual queue. The
// synchronization semantics are identical.
func runThreadExecutor(items []string, exec task.Executor, cfg Config) (*RunSummary, error) {
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("thread executor needs at least 1 worker, got %d", cfg.Workers)
	}
	slog, err := sharedlog.New(cfg.Policy, cfg.LogPath, cfg.LogPermits)
	if err != nil {
		return nil, err
	}
	cnt := newThreadCounter(cfg)

	resCh := make(chan task.Result, len(items))
	results := make([]task.Result, 0, len(items))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range resCh {
			results = append(results, r)
		}
	}()

	var g errgroup.Group
	g.SetLimit(cfg.Workers)

	start := time.Now()
	for i, item := range items {
		workerID := fmt.Sprintf("T%d", i%cfg.Workers)
		item := item
		g.Go(func() error {
			resCh <- runItem(exec, item, cfg, workerID, slog, cnt)
			return nil
		})
	}
	_ = g.Wait()
	close(resCh)
	<-done
	total := time.Since(start)

	var syncStats metrics.Snapshot
	syncStats.Merge(slog.Metrics())
	if cnt != nil {
		syncStats.Merge(cnt.Metrics())
	}
	return summarize(cfg, len(items), results, total, syncStats, counterValue(cnt)), nil
}
