package strategy

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	osexec "os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"syncbench/internal/counter"
	"syncbench/internal/metrics"
	"syncbench/internal/sharedlog"
	"syncbench/internal/task"
	"syncbench/internal/utils"
	"syncbench/internal/worker"
)

const stderrTailBytes = 4096

// newWorkerCommand builds the exec.Cmd for one worker process: a re-exec
// of this binary's hidden worker subcommand. Tests swap it via
// SetWorkerCommand.
var newWorkerCommand = defaultWorkerCommand

func defaultWorkerCommand(opts worker.Options) *osexec.Cmd {
	return osexec.Command(os.Args[0], workerArgs(opts)...)
}

func workerArgs(opts worker.Options) []string {
	args := []string{
		"worker",
		"--worker-id", opts.WorkerID,
		"--executor", opts.Executor,
		"--log-path", opts.LogPath,
		"--log-policy", opts.LogPolicy,
	}
	if opts.DestDir != "" {
		args = append(args, "--dest", opts.DestDir)
	}
	if opts.LogPermits > 0 {
		args = append(args, "--log-permits", strconv.FormatInt(opts.LogPermits, 10))
	}
	if opts.CounterPath != "" {
		args = append(args, "--counter", opts.CounterPath)
	}
	return args
}

// processShared is the parent-side view of the resources worker processes
// attach to: file paths only, never live objects.
type processShared struct {
	logPath     string
	counterPath string
}

// setupProcessShared creates the shared files for a process-based run. The
// policy must be meaningful across process boundaries: a process-local
// mutex or semaphore in the parent's memory would protect nothing.
func setupProcessShared(cfg Config) (*processShared, error) {
	switch cfg.Policy {
	case sharedlog.PolicyNoOp, sharedlog.PolicyNone, sharedlog.PolicyFileLock:
	default:
		return nil, fmt.Errorf("log policy %q is process-local and cannot coordinate separate processes", cfg.Policy)
	}
	if _, err := sharedlog.New(cfg.Policy, cfg.LogPath, cfg.LogPermits); err != nil {
		return nil, err
	}
	ps := &processShared{logPath: cfg.LogPath}
	if cfg.Count {
		ps.counterPath = cfg.LogPath + ".count"
		if _, err := counter.NewFile(ps.counterPath); err != nil {
			return nil, err
		}
	}
	return ps, nil
}

func (ps *processShared) workerOptions(cfg Config, workerID string) worker.Options {
	return worker.Options{
		WorkerID:    workerID,
		Executor:    cfg.ExecutorName,
		DestDir:     cfg.DestDir,
		LogPath:     ps.logPath,
		LogPolicy:   string(cfg.Policy),
		LogPermits:  cfg.LogPermits,
		CounterPath: ps.counterPath,
	}
}

// finalCount reads the shared counter file after all workers exited.
func (ps *processShared) finalCount() int64 {
	if ps.counterPath == "" {
		return 0
	}
	c, err := counter.OpenFile(ps.counterPath)
	if err != nil {
		return 0
	}
	v, err := c.Value()
	if err != nil {
		return 0
	}
	return v
}

// collector gathers results and metrics deltas from worker processes.
type collector struct {
	mu        sync.Mutex
	results   []task.Result
	syncStats metrics.Snapshot
}

func (c *collector) add(resp worker.ItemResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, resp.Result)
	c.syncStats.Merge(resp.Sync)
}

func (c *collector) fail(item, workerID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, task.Result{
		Item:     item,
		WorkerID: workerID,
		Error:    utils.SafeTruncate(err.Error(), maxWorkerErrorLen),
	})
}

const maxWorkerErrorLen = 300

// runProcessPool runs a fixed pool of worker processes. Each worker pulls
// its next item from the shared queue through its stdin pipe and answers
// on stdout, so load balances dynamically just like the goroutine pool.
func runProcessPool(items []string, cfg Config) (*RunSummary, error) {
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("process pool needs at least 1 worker, got %d", cfg.Workers)
	}
	ps, err := setupProcessShared(cfg)
	if err != nil {
		return nil, err
	}

	queue := make(chan string, len(items))
	for _, item := range items {
		queue <- item
	}
	close(queue)

	col := &collector{results: make([]task.Result, 0, len(items))}
	var wg sync.WaitGroup

	start := time.Now()
	for w := 0; w < cfg.Workers; w++ {
		opts := ps.workerOptions(cfg, fmt.Sprintf("P%d", w))
		wg.Add(1)
		go func() {
			defer wg.Done()
			runWorkerLoop(opts, queue, col)
		}()
	}
	wg.Wait()

	// If every worker died early, undispatched items remain on the closed
	// queue; account for them so n_items always matches the results.
	for item := range queue {
		col.fail(item, "", fmt.Errorf("no worker process available"))
	}
	total := time.Since(start)

	return summarize(cfg, len(items), col.results, total, col.syncStats, ps.finalCount()), nil
}

// runWorkerLoop owns one worker process for the duration of a run: feed an
// item, wait for its result line, repeat until the queue drains. A dead
// worker ends its loop; remaining items go to the surviving workers.
func runWorkerLoop(opts worker.Options, queue <-chan string, col *collector) {
	cmd := newWorkerCommand(opts)
	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		reportSpawnFailure(opts.WorkerID, err)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		reportSpawnFailure(opts.WorkerID, err)
		return
	}
	if err := cmd.Start(); err != nil {
		reportSpawnFailure(opts.WorkerID, fmt.Errorf("start worker: %w", err))
		return
	}

	enc := json.NewEncoder(stdin)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for item := range queue {
		resp, err := roundTrip(enc, scanner, item)
		if err != nil {
			col.fail(item, opts.WorkerID, err)
			break
		}
		col.add(resp)
	}

	stdin.Close()
	if err := cmd.Wait(); err != nil {
		log.Warn().
			Str("worker", opts.WorkerID).
			Err(err).
			Str("stderr", utils.SanitizeOutput(stderr.String())).
			Msg("worker process exited abnormally")
	}
}

func roundTrip(enc *json.Encoder, scanner *bufio.Scanner, item string) (worker.ItemResponse, error) {
	var resp worker.ItemResponse
	if err := enc.Encode(worker.ItemRequest{Item: item}); err != nil {
		return resp, fmt.Errorf("send item to worker: %w", err)
	}
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return resp, fmt.Errorf("read worker result: %w", err)
		}
		return resp, fmt.Errorf("worker closed its output mid-batch")
	}
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return resp, fmt.Errorf("decode worker result: %w", err)
	}
	return resp, nil
}

// reportSpawnFailure leaves the queue alone: surviving workers drain it,
// and runProcessPool sweeps any leftovers at the end.
func reportSpawnFailure(workerID string, err error) {
	log.Warn().Str("worker", workerID).Err(err).Msg("worker could not start")
}

// runProcessExecutor is the managed flavor of the process pool: each item
// is submitted as its own short-lived worker process, with a fixed set of
// worker slots bounding how many run at once. A child's worker ID comes
// from the slot it occupies, so no two children running at the same time
// share an ID. Results are collected as each child finishes.
func runProcessExecutor(items []string, cfg Config) (*RunSummary, error) {
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("process executor needs at least 1 worker, got %d", cfg.Workers)
	}
	ps, err := setupProcessShared(cfg)
	if err != nil {
		return nil, err
	}

	slots := make(chan int, cfg.Workers)
	for w := 0; w < cfg.Workers; w++ {
		slots <- w
	}
	col := &collector{results: make([]task.Result, 0, len(items))}
	var wg sync.WaitGroup

	start := time.Now()
	for _, item := range items {
		slot := <-slots
		opts := ps.workerOptions(cfg, fmt.Sprintf("P%d", slot))
		wg.Add(1)
		go func(opts worker.Options, item string, slot int) {
			defer wg.Done()
			defer func() { slots <- slot }()
			resp, err := runWorkerOnce(opts, item)
			if err != nil {
				col.fail(item, opts.WorkerID, err)
				return
			}
			col.add(resp)
		}(opts, item, slot)
	}
	wg.Wait()
	total := time.Since(start)

	return summarize(cfg, len(items), col.results, total, col.syncStats, ps.finalCount()), nil
}

// runWorkerOnce spawns a worker for a single item and reads its single
// result line.
func runWorkerOnce(opts worker.Options, item string) (worker.ItemResponse, error) {
	var resp worker.ItemResponse

	cmd := newWorkerCommand(opts)
	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd.Stderr = stderr

	req, err := json.Marshal(worker.ItemRequest{Item: item})
	if err != nil {
		return resp, err
	}
	cmd.Stdin = bytes.NewReader(append(req, '\n'))

	out, err := cmd.Output()
	if err != nil {
		return resp, fmt.Errorf("worker failed: %w (stderr: %s)",
			err, utils.SafeTruncate(utils.SanitizeOutput(stderr.String()), maxWorkerErrorLen))
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	if !scanner.Scan() {
		return resp, fmt.Errorf("worker produced no result")
	}
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return resp, fmt.Errorf("decode worker result: %w", err)
	}
	return resp, nil
}
