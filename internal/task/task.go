// Package task defines the unit of work the harness drives and the
// executors that transform it. Executors are treated as opaque by the
// runners: their only contract is that Execute is safe to call
// concurrently and touches nothing shared beyond its own output artifact
// and, optionally, one line on the shared log.
package task

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"syncbench/internal/sharedlog"
)

// Result is an executor's report for a single item. The runner fills in
// WorkerID and Elapsed; the executor owns the rest.
type Result struct {
	Success  bool    `json:"success"`
	Item     string  `json:"item"`
	Output   string  `json:"output,omitempty"`
	Elapsed  float64 `json:"elapsed"`
	Error    string  `json:"error,omitempty"`
	WorkerID string  `json:"worker_id"`
}

// Executor transforms one work item. Implementations must be callable from
// any number of workers at once.
type Executor interface {
	Name() string
	Execute(item, destDir, workerID string, slog sharedlog.Log) Result
}

var registry = map[string]Executor{}

// Register adds an executor under its name. Later registrations win, which
// lets tests install stand-ins.
func Register(e Executor) {
	registry[e.Name()] = e
}

// Lookup resolves a registered executor by name.
func Lookup(name string) (Executor, error) {
	e, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown task executor %q", name)
	}
	return e, nil
}

// imageExts are the input extensions the grayscale executor understands.
var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

// ScanDir lists the image files directly inside dir, sorted by name.
func ScanDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan workload dir: %w", err)
	}
	var items []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			items = append(items, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(items)
	return items, nil
}
