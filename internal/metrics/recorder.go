// Package metrics accumulates lock and semaphore wait-time samples for a
// single benchmark run.
package metrics

import (
	"sync"
	"time"
)

// Snapshot is an immutable view of the recorded synchronization metrics.
// Field names follow the on-disk result schema.
type Snapshot struct {
	TotalLockWaitTime      float64 `json:"total_lock_wait_time"`
	AvgLockWaitTime        float64 `json:"avg_lock_wait_time"`
	MaxLockWaitTime        float64 `json:"max_lock_wait_time"`
	TotalSemaphoreWaitTime float64 `json:"total_semaphore_wait_time"`
	AvgSemaphoreWaitTime   float64 `json:"avg_semaphore_wait_time"`
	LockAcquireCount       int64   `json:"lock_acquire_count"`
	SemaphoreAcquireCount  int64   `json:"semaphore_acquire_count"`
	ContentionCount        int64   `json:"contention_count"`
	TotalWaitTime          float64 `json:"total_wait_time"`
}

// Merge folds another snapshot into s. Acquire counts double as sample
// counts, so averages can be recomputed exactly.
func (s *Snapshot) Merge(o Snapshot) {
	s.TotalLockWaitTime += o.TotalLockWaitTime
	s.TotalSemaphoreWaitTime += o.TotalSemaphoreWaitTime
	s.LockAcquireCount += o.LockAcquireCount
	s.SemaphoreAcquireCount += o.SemaphoreAcquireCount
	s.ContentionCount += o.ContentionCount
	if o.MaxLockWaitTime > s.MaxLockWaitTime {
		s.MaxLockWaitTime = o.MaxLockWaitTime
	}
	if s.LockAcquireCount > 0 {
		s.AvgLockWaitTime = s.TotalLockWaitTime / float64(s.LockAcquireCount)
	}
	if s.SemaphoreAcquireCount > 0 {
		s.AvgSemaphoreWaitTime = s.TotalSemaphoreWaitTime / float64(s.SemaphoreAcquireCount)
	}
	s.TotalWaitTime = s.TotalLockWaitTime + s.TotalSemaphoreWaitTime
}

// Empty reports whether nothing was ever recorded.
func (s Snapshot) Empty() bool {
	return s.LockAcquireCount == 0 && s.SemaphoreAcquireCount == 0
}

// Recorder collects wait samples from concurrent callers. Under a bounded
// semaphore more than one permit-holder can record at the same time, so the
// recorder takes its own lock; callers must never rely on external mutual
// exclusion to protect it.
type Recorder struct {
	mu       sync.Mutex
	lockWait []time.Duration
	semWait  []time.Duration
	// contention is the number of samples (lock or semaphore) with a
	// strictly positive wait.
	contention int64
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordLockWait records one exclusive-lock acquisition and the time spent
// waiting for it.
func (r *Recorder) RecordLockWait(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lockWait = append(r.lockWait, d)
	if d > 0 {
		r.contention++
	}
}

// RecordSemaphoreWait records one semaphore permit acquisition and the time
// spent waiting for it.
func (r *Recorder) RecordSemaphoreWait(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.semWait = append(r.semWait, d)
	if d > 0 {
		r.contention++
	}
}

// Snapshot returns the statistics over everything recorded so far. Averages
// and maxima over an empty sample set are zero.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Drain returns a snapshot of everything recorded since the previous Drain
// (or since construction) and resets the recorder. Worker processes use it
// to ship metrics deltas back to the parent inside each result.
func (r *Recorder) Drain() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.snapshotLocked()
	r.lockWait = r.lockWait[:0]
	r.semWait = r.semWait[:0]
	r.contention = 0
	return s
}

func (r *Recorder) snapshotLocked() Snapshot {
	var s Snapshot
	for _, d := range r.lockWait {
		sec := d.Seconds()
		s.TotalLockWaitTime += sec
		if sec > s.MaxLockWaitTime {
			s.MaxLockWaitTime = sec
		}
	}
	for _, d := range r.semWait {
		s.TotalSemaphoreWaitTime += d.Seconds()
	}
	s.LockAcquireCount = int64(len(r.lockWait))
	s.SemaphoreAcquireCount = int64(len(r.semWait))
	s.ContentionCount = r.contention
	if n := len(r.lockWait); n > 0 {
		s.AvgLockWaitTime = s.TotalLockWaitTime / float64(n)
	}
	if n := len(r.semWait); n > 0 {
		s.AvgSemaphoreWaitTime = s.TotalSemaphoreWaitTime / float64(n)
	}
	s.TotalWaitTime = s.TotalLockWaitTime + s.TotalSemaphoreWaitTime
	return s
}
