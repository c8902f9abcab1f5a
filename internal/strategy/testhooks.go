package strategy

import (
	osexec "os/exec"

	"syncbench/internal/worker"
)

// SetWorkerCommand overrides how worker processes are spawned (exposed for
// test reset). Passing nil restores the default re-exec of this binary.
func SetWorkerCommand(fn func(worker.Options) *osexec.Cmd) (restore func()) {
	prev := newWorkerCommand
	if fn != nil {
		newWorkerCommand = fn
	} else {
		newWorkerCommand = defaultWorkerCommand
	}
	return func() { newWorkerCommand = prev }
}
