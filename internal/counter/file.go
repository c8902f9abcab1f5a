package counter

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"syncbench/internal/metrics"
)

// File is the cross-process counter: a decimal integer stored in a file,
// with each read-modify-write guarded by an advisory file lock. The file
// system is the shared medium, so separate processes that open the same
// path observe each other's increments.
//
// A flock handle is not safe for concurrent use from one process, so an
// in-process mutex serializes local callers before the OS-level lock is
// taken; only the file-lock wait is recorded as contention.
type File struct {
	path string
	mu   sync.Mutex
	fl   *flock.Flock
	rec  *metrics.Recorder
}

// NewFile creates the backing file (resetting it to zero) and returns a
// counter handle. The owning process calls this once before workers start.
func NewFile(path string) (*File, error) {
	if err := os.WriteFile(path, []byte("0"), 0o644); err != nil {
		return nil, fmt.Errorf("create counter file: %w", err)
	}
	return openFile(path), nil
}

// OpenFile attaches to an existing counter file without resetting it.
// Worker processes use it to reconstruct the counter the parent created.
func OpenFile(path string) (*File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open counter file: %w", err)
	}
	return openFile(path), nil
}

func openFile(path string) *File {
	return &File{
		path: path,
		fl:   flock.New(path + ".lock"),
		rec:  metrics.NewRecorder(),
	}
}

func (c *File) Increment() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	if err := c.fl.Lock(); err != nil {
		return 0, fmt.Errorf("acquire counter lock: %w", err)
	}
	c.rec.RecordLockWait(time.Since(start))
	defer c.fl.Unlock()

	v, err := c.readLocked()
	if err != nil {
		return 0, err
	}
	v++
	if err := os.WriteFile(c.path, []byte(strconv.FormatInt(v, 10)), 0o644); err != nil {
		return 0, fmt.Errorf("write counter file: %w", err)
	}
	return v, nil
}

func (c *File) Value() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.fl.Lock(); err != nil {
		return 0, fmt.Errorf("acquire counter lock: %w", err)
	}
	defer c.fl.Unlock()
	return c.readLocked()
}

func (c *File) readLocked() (int64, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return 0, fmt.Errorf("read counter file: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return 0, nil
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt counter file %s: %w", c.path, err)
	}
	return v, nil
}

func (c *File) Metrics() metrics.Snapshot { return c.rec.Snapshot() }

func (c *File) Drain() metrics.Snapshot { return c.rec.Drain() }

func (c *File) Path() string { return c.path }
