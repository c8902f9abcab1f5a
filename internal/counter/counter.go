// Package counter provides the shared-counter variants exercised by the
// benchmark: an instrumented exclusive-lock counter, a deliberately racy
// counter used as the contrast case, and a file-backed counter valid across
// OS processes.
package counter

import (
	"sync"
	"time"

	"syncbench/internal/metrics"
)

// Counter is a shared integer mutated by concurrent workers.
type Counter interface {
	// Increment adds one and returns the new value.
	Increment() (int64, error)
	// Value returns the current value.
	Value() (int64, error)
	// Metrics returns the synchronization metrics collected so far.
	Metrics() metrics.Snapshot
}

// Mutex is the exclusive-lock counter. The wait for the lock is measured on
// every increment, and the final value is guaranteed to equal the number of
// Increment calls.
type Mutex struct {
	mu    sync.Mutex
	value int64
	rec   *metrics.Recorder
}

func NewMutex() *Mutex {
	return &Mutex{rec: metrics.NewRecorder()}
}

func (c *Mutex) Increment() (int64, error) {
	start := time.Now()
	c.mu.Lock()
	wait := time.Since(start)
	defer c.mu.Unlock()
	c.rec.RecordLockWait(wait)
	c.value++
	return c.value, nil
}

func (c *Mutex) Value() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, nil
}

func (c *Mutex) Metrics() metrics.Snapshot { return c.rec.Snapshot() }

// Drain returns the metrics accumulated since the last call and resets them.
func (c *Mutex) Drain() metrics.Snapshot { return c.rec.Drain() }

// raceWindow is how long an unsafe increment sleeps between reading and
// writing back, making lost updates likely on any real scheduler.
const raceWindow = 100 * time.Microsecond

// Unsafe is the unsynchronized counter. Increment reads the value, sleeps,
// and writes back with no coordination; under concurrent load the final
// value is expected to fall short of the call count. It exists only as the
// contrast case and must never be the default.
type Unsafe struct {
	value int64
}

func NewUnsafe() *Unsafe {
	return &Unsafe{}
}

func (c *Unsafe) Increment() (int64, error) {
	v := c.value
	time.Sleep(raceWindow)
	c.value = v + 1
	return c.value, nil
}

func (c *Unsafe) Value() (int64, error) { return c.value, nil }

func (c *Unsafe) Metrics() metrics.Snapshot { return metrics.Snapshot{} }
