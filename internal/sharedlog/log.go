// Package sharedlog implements the append-only log shared by concurrent
// workers, in one variant per synchronization policy. All variants write
// one UTF-8 message per line to the same backing file format; only the
// coordination around the append differs.
package sharedlog

import (
	"fmt"
	"os"
	"sync"
	"time"

	"syncbench/internal/metrics"
)

// Policy selects how appends to the shared log are coordinated.
type Policy string

const (
	// PolicyNoOp discards every message. Used by the serial baseline.
	PolicyNoOp Policy = "noop"
	// PolicyNone appends with no coordination. Messages may interleave or
	// be lost; kept only as the contrast case.
	PolicyNone Policy = "none"
	// PolicyMutex serializes the whole open/append/close under one
	// process-local exclusive lock.
	PolicyMutex Policy = "mutex"
	// PolicySemaphore admits up to K concurrent appenders.
	PolicySemaphore Policy = "semaphore"
	// PolicyFileLock serializes appends with an advisory file lock that is
	// effective across OS processes.
	PolicyFileLock Policy = "flock"
)

// ParsePolicy validates a policy name from config or the wire.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyNoOp, PolicyNone, PolicyMutex, PolicySemaphore, PolicyFileLock:
		return p, nil
	}
	return "", fmt.Errorf("unknown log policy %q", s)
}

// Log is an append-only text sink shared by workers.
type Log interface {
	// Log appends one message as a single line.
	Log(message string) error
	// Metrics returns the synchronization metrics collected so far.
	Metrics() metrics.Snapshot
	// Path returns the backing file path, empty for the no-op variant.
	Path() string
}

// Drainer is implemented by variants whose metrics can be taken as a delta
// and reset, for shipping across a process boundary.
type Drainer interface {
	Drain() metrics.Snapshot
}

// New builds the variant for policy, creating or truncating the backing
// file. permits only applies to PolicySemaphore.
func New(policy Policy, path string, permits int64) (Log, error) {
	if policy == PolicyNoOp {
		return noopLog{}, nil
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}
	return build(policy, path, permits)
}

// Open attaches to an existing backing file without truncating it. Worker
// processes use it to reconstruct the log the parent created.
func Open(policy Policy, path string, permits int64) (Log, error) {
	if policy == PolicyNoOp {
		return noopLog{}, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return build(policy, path, permits)
}

func build(policy Policy, path string, permits int64) (Log, error) {
	switch policy {
	case PolicyNone:
		return &unsafeLog{path: path}, nil
	case PolicyMutex:
		return &mutexLog{path: path, rec: metrics.NewRecorder()}, nil
	case PolicySemaphore:
		return newSemaphoreLog(path, permits)
	case PolicyFileLock:
		return newFileLockLog(path), nil
	}
	return nil, fmt.Errorf("unknown log policy %q", policy)
}

// appendLine performs the critical section shared by every file-backed
// variant: open in append mode, write the message and a newline, close.
// The newline travels in the same Write call, so whether concurrent
// appends can interleave comes down to the kernel's O_APPEND atomicity.
func appendLine(path, message string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log %s: %w", path, err)
	}
	_, werr := f.WriteString(message + "\n")
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("append to log %s: %w", path, werr)
	}
	if cerr != nil {
		return fmt.Errorf("close log %s: %w", path, cerr)
	}
	return nil
}

type noopLog struct{}

func (noopLog) Log(string) error          { return nil }
func (noopLog) Metrics() metrics.Snapshot { return metrics.Snapshot{} }
func (noopLog) Path() string              { return "" }

// unsafeLog appends with no coordination at all.
type unsafeLog struct {
	path string
}

func (l *unsafeLog) Log(message string) error  { return appendLine(l.path, message) }
func (l *unsafeLog) Metrics() metrics.Snapshot { return metrics.Snapshot{} }
func (l *unsafeLog) Path() string              { return l.path }

// mutexLog serializes appends under one exclusive lock shared by all
// workers in the process. Each Log call fully completes before the next
// begins, so every message lands exactly once and intact.
type mutexLog struct {
	path string
	mu   sync.Mutex
	rec  *metrics.Recorder
}

func (l *mutexLog) Log(message string) error {
	start := time.Now()
	l.mu.Lock()
	wait := time.Since(start)
	defer l.mu.Unlock()
	l.rec.RecordLockWait(wait)
	return appendLine(l.path, message)
}

func (l *mutexLog) Metrics() metrics.Snapshot { return l.rec.Snapshot() }
func (l *mutexLog) Drain() metrics.Snapshot   { return l.rec.Drain() }
func (l *mutexLog) Path() string              { return l.path }
