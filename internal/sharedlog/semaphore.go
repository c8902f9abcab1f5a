package sharedlog

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"syncbench/internal/metrics"
)

// semaphoreLog bounds the append critical section with a counting permit
// pool: up to permits workers may be writing at once. With permits == 1 it
// degenerates to the exclusive-lock variant. With permits > 1 message
// integrity rests on the storage keeping each single append atomic; that is
// a caveat of the design, not a guarantee of this layer.
type semaphoreLog struct {
	path    string
	permits int64
	sem     *semaphore.Weighted
	rec     *metrics.Recorder

	holders atomic.Int64
	peak    atomic.Int64
}

func newSemaphoreLog(path string, permits int64) (*semaphoreLog, error) {
	if permits < 1 {
		return nil, fmt.Errorf("semaphore log needs at least 1 permit, got %d", permits)
	}
	return &semaphoreLog{
		path:    path,
		permits: permits,
		sem:     semaphore.NewWeighted(permits),
		rec:     metrics.NewRecorder(),
	}, nil
}

func (l *semaphoreLog) Log(message string) error {
	start := time.Now()
	// Acquisition blocks indefinitely; the harness has no timeouts.
	if err := l.sem.Acquire(context.Background(), 1); err != nil {
		return fmt.Errorf("acquire log permit: %w", err)
	}
	wait := time.Since(start)
	defer l.sem.Release(1)

	n := l.holders.Add(1)
	for {
		p := l.peak.Load()
		if n <= p || l.peak.CompareAndSwap(p, n) {
			break
		}
	}
	defer l.holders.Add(-1)

	l.rec.RecordSemaphoreWait(wait)
	return appendLine(l.path, message)
}

func (l *semaphoreLog) Metrics() metrics.Snapshot { return l.rec.Snapshot() }
func (l *semaphoreLog) Drain() metrics.Snapshot   { return l.rec.Drain() }
func (l *semaphoreLog) Path() string              { return l.path }

// Permits returns the configured pool size.
func (l *semaphoreLog) Permits() int64 { return l.permits }

// PeakHolders returns the highest number of workers observed inside the
// critical section at the same time.
func (l *semaphoreLog) PeakHolders() int64 { return l.peak.Load() }
