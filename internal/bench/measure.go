package bench

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"syncbench/internal/strategy"
)

const cpuSampleInterval = 100 * time.Millisecond

// measureRun executes fn while a background goroutine samples system-wide
// CPU utilization, and attaches the samples to the returned summary. With
// sampling disabled it is a plain call.
func measureRun(sampling bool, fn func() (*strategy.RunSummary, error)) (*strategy.RunSummary, error) {
	if !sampling {
		return fn()
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	var samples []float64
	go func() {
		defer close(done)
		ticker := time.NewTicker(cpuSampleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
					samples = append(samples, pct[0])
				}
			}
		}
	}()

	s, err := fn()
	close(stop)
	<-done
	if s != nil {
		s.CPUSamples = samples
	}
	return s, err
}
