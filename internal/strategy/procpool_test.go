package strategy

import (
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syncbench/internal/sharedlog"
	"syncbench/internal/task"
	"syncbench/internal/worker"
)

// stallExecutor sleeps far longer for items named slow-* than for the
// rest, pinning the slot a slow item runs on while the fast ones cycle
// through the remaining slots. Registered here so the re-exec'd worker
// helper can look it up too.
type stallExecutor struct{}

func (stallExecutor) Name() string { return "stall" }

func (stallExecutor) Execute(item, destDir, workerID string, slog sharedlog.Log) task.Result {
	d := time.Millisecond
	if strings.HasPrefix(item, "slow") {
		d = 1500 * time.Millisecond
	}
	time.Sleep(d)
	return task.Result{Success: true, Item: item}
}

func init() {
	task.Register(stallExecutor{})
}

// The process-pool tests re-exec this test binary as the worker. TestMain
// detects the marker env var and runs the worker loop instead of the test
// suite.
func TestMain(m *testing.M) {
	if os.Getenv("SYNCBENCH_WORKER_HELPER") == "1" {
		os.Exit(workerHelperMain(os.Args[1:]))
	}
	os.Exit(m.Run())
}

func workerHelperMain(args []string) int {
	if len(args) == 0 || args[0] != "worker" {
		fmt.Fprintln(os.Stderr, "helper: expected worker subcommand")
		return 2
	}
	fs := pflag.NewFlagSet("worker", pflag.ContinueOnError)
	var opts worker.Options
	fs.StringVar(&opts.WorkerID, "worker-id", "", "")
	fs.StringVar(&opts.Executor, "executor", "", "")
	fs.StringVar(&opts.DestDir, "dest", "", "")
	fs.StringVar(&opts.LogPath, "log-path", "", "")
	fs.StringVar(&opts.LogPolicy, "log-policy", "", "")
	fs.Int64Var(&opts.LogPermits, "log-permits", 0, "")
	fs.StringVar(&opts.CounterPath, "counter", "", "")
	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if err := worker.Run(opts, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func useHelperWorker(t *testing.T) {
	t.Helper()
	restore := SetWorkerCommand(func(opts worker.Options) *osexec.Cmd {
		cmd := osexec.Command(os.Args[0], workerArgs(opts)...)
		cmd.Env = append(os.Environ(), "SYNCBENCH_WORKER_HELPER=1")
		return cmd
	})
	t.Cleanup(restore)
}

// Process pool, 2 workers, 8 items, cross-process lock: all 8 results come
// back and the lock was acquired exactly once per logged item.
func TestProcessPoolCrossProcessLock(t *testing.T) {
	useHelperWorker(t)

	logPath := filepath.Join(t.TempDir(), "events.log")
	s, err := Run(makeItems(8), nil, Config{
		Strategy:     StrategyProcessPool,
		Policy:       sharedlog.PolicyFileLock,
		Workers:      2,
		ExecutorName: "sleep",
		LogPath:      logPath,
	})
	require.NoError(t, err)

	require.Len(t, s.Results, 8)
	for _, r := range s.Results {
		assert.True(t, r.Success, "item %s: %s", r.Item, r.Error)
		assert.Contains(t, []string{"P0", "P1"}, r.WorkerID)
	}
	assert.Equal(t, 8, countLines(t, logPath))
	// metrics deltas aggregated from the worker results
	assert.Equal(t, int64(8), s.SyncMetrics.LockAcquireCount)
	assert.Equal(t, 8, s.NImages)
}

func TestProcessPoolSharedCounter(t *testing.T) {
	useHelperWorker(t)

	logPath := filepath.Join(t.TempDir(), "events.log")
	s, err := Run(makeItems(12), nil, Config{
		Strategy:     StrategyProcessPool,
		Policy:       sharedlog.PolicyFileLock,
		Workers:      3,
		ExecutorName: "sleep",
		LogPath:      logPath,
		Count:        true,
	})
	require.NoError(t, err)

	require.Len(t, s.Results, 12)
	// file-backed counter: no increments lost across processes
	assert.Equal(t, int64(12), s.FinalCount)
	// 12 log appends + 12 counter increments, all under file locks
	assert.Equal(t, int64(24), s.SyncMetrics.LockAcquireCount)
}

func TestProcessExecutorMatchesPool(t *testing.T) {
	useHelperWorker(t)

	logPath := filepath.Join(t.TempDir(), "events.log")
	s, err := Run(makeItems(6), nil, Config{
		Strategy:     StrategyProcessExecutor,
		Policy:       sharedlog.PolicyFileLock,
		Workers:      2,
		ExecutorName: "sleep",
		LogPath:      logPath,
	})
	require.NoError(t, err)

	require.Len(t, s.Results, 6)
	for _, r := range s.Results {
		assert.True(t, r.Success, "item %s: %s", r.Item, r.Error)
	}
	assert.Equal(t, 6, countLines(t, logPath))
	assert.Equal(t, int64(6), s.SyncMetrics.LockAcquireCount)
}

// Concurrently running children must each carry their own worker ID. The
// slow item holds its slot for the whole run, so every fast item has to go
// through the other slot and the slow item's ID shows up exactly once.
func TestProcessExecutorSlotIdentity(t *testing.T) {
	useHelperWorker(t)

	s, err := Run([]string{"slow", "fast-1", "fast-2", "fast-3"}, nil, Config{
		Strategy:     StrategyProcessExecutor,
		Policy:       sharedlog.PolicyNoOp,
		Workers:      2,
		ExecutorName: "stall",
		LogPath:      filepath.Join(t.TempDir(), "events.log"),
	})
	require.NoError(t, err)
	require.Len(t, s.Results, 4)

	counts := make(map[string]int)
	for _, r := range s.Results {
		require.True(t, r.Success, "item %s: %s", r.Item, r.Error)
		counts[r.WorkerID]++
	}
	assert.Equal(t, 1, counts["P0"])
	assert.Equal(t, 3, counts["P1"])
}

func TestProcessPoolWorkerSpawnFailure(t *testing.T) {
	restore := SetWorkerCommand(func(opts worker.Options) *osexec.Cmd {
		return osexec.Command(filepath.Join(t.TempDir(), "no-such-binary"))
	})
	t.Cleanup(restore)

	s, err := Run(makeItems(4), nil, Config{
		Strategy:     StrategyProcessPool,
		Policy:       sharedlog.PolicyFileLock,
		Workers:      2,
		ExecutorName: "sleep",
		LogPath:      filepath.Join(t.TempDir(), "events.log"),
	})
	require.NoError(t, err)

	// every item is accounted for even when no worker ever started
	require.Len(t, s.Results, 4)
	for _, r := range s.Results {
		assert.False(t, r.Success)
		assert.NotEmpty(t, r.Error)
	}
}
