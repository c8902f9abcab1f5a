package sharedlog

import (
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"syncbench/internal/metrics"
)

// fileLockLog serializes appends with an advisory file lock, which the
// kernel enforces across process boundaries. Workers in separate processes
// attach to the same path via Open and contend on the same lock file; an
// in-process mutex additionally serializes local goroutines because a
// single flock handle is not safe for concurrent use.
type fileLockLog struct {
	path string
	mu   sync.Mutex
	fl   *flock.Flock
	rec  *metrics.Recorder
}

func newFileLockLog(path string) *fileLockLog {
	return &fileLockLog{
		path: path,
		fl:   flock.New(path + ".lock"),
		rec:  metrics.NewRecorder(),
	}
}

func (l *fileLockLog) Log(message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := time.Now()
	if err := l.fl.Lock(); err != nil {
		return fmt.Errorf("acquire log file lock: %w", err)
	}
	l.rec.RecordLockWait(time.Since(start))
	defer l.fl.Unlock()

	return appendLine(l.path, message)
}

func (l *fileLockLog) Metrics() metrics.Snapshot { return l.rec.Snapshot() }
func (l *fileLockLog) Drain() metrics.Snapshot   { return l.rec.Drain() }
func (l *fileLockLog) Path() string              { return l.path }
