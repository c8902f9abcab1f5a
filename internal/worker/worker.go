// Package worker implements the child-process side of the process-pool
// strategies. The parent cannot hand a live log or counter object across a
// process boundary, so each worker reconstructs them from the inherited
// file paths, pulls work items as JSON lines on stdin, and answers with one
// JSON result line per item on stdout. Every result carries the metrics
// delta this worker observed since its previous result; the parent owns
// aggregation.
package worker

import (
	"bufio"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"syncbench/internal/counter"
	"syncbench/internal/metrics"
	"syncbench/internal/sharedlog"
	"syncbench/internal/task"
)

// Options describes one worker process, set by the parent via flags on the
// hidden worker subcommand.
type Options struct {
	WorkerID    string
	Executor    string
	DestDir     string
	LogPath     string
	LogPolicy   string
	LogPermits  int64
	CounterPath string
}

// ItemRequest is one work item on the wire.
type ItemRequest struct {
	Item string `json:"item"`
}

// ItemResponse is one finished item on the wire.
type ItemResponse struct {
	Result       task.Result      `json:"result"`
	CounterValue int64            `json:"counter_value,omitempty"`
	Sync         metrics.Snapshot `json:"sync"`
}

// maxLineBytes bounds a single protocol line.
const maxLineBytes = 1 << 20

// Run processes items from in until EOF. It only returns an error for
// setup or protocol failures; a failing task is reported in its result
// line and the loop continues.
func Run(opts Options, in io.Reader, out io.Writer) error {
	exec, err := task.Lookup(opts.Executor)
	if err != nil {
		return err
	}

	policy, err := sharedlog.ParsePolicy(opts.LogPolicy)
	if err != nil {
		return err
	}
	slog, err := sharedlog.Open(policy, opts.LogPath, opts.LogPermits)
	if err != nil {
		return err
	}

	var cnt *counter.File
	if opts.CounterPath != "" {
		cnt, err = counter.OpenFile(opts.CounterPath)
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(out)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req ItemRequest
		if err := json.Unmarshal(line, &req); err != nil {
			return fmt.Errorf("decode work item: %w", err)
		}

		resp := ItemResponse{
			Result: exec.Execute(req.Item, opts.DestDir, opts.WorkerID, slog),
		}
		resp.Result.WorkerID = opts.WorkerID

		if cnt != nil {
			v, err := cnt.Increment()
			if err != nil {
				resp.Result.Success = false
				resp.Result.Error = err.Error()
			} else {
				resp.CounterValue = v
			}
		}

		resp.Sync = drainAll(slog, cnt)

		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read work items: %w", err)
	}
	return nil
}

// drainAll merges the metrics deltas from the worker-local log and counter
// handles.
func drainAll(slog sharedlog.Log, cnt *counter.File) metrics.Snapshot {
	var s metrics.Snapshot
	if d, ok := slog.(sharedlog.Drainer); ok {
		s.Merge(d.Drain())
	}
	if cnt != nil {
		s.Merge(cnt.Drain())
	}
	return s
}
