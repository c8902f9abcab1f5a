// Package report persists run results: full-fidelity indented JSON plus a
// flat (metric,value) CSV with the headline and synchronization numbers.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/goccy/go-json"

	"syncbench/internal/strategy"
)

// SaveJSON writes v as indented UTF-8 JSON.
func SaveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// SaveRun writes one run as <name>.json and <name>_summary.csv in dir.
func SaveRun(dir string, s *strategy.RunSummary) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create results dir: %w", err)
	}
	if err := SaveJSON(filepath.Join(dir, s.Name+".json"), s); err != nil {
		return err
	}
	return saveCSV(filepath.Join(dir, s.Name+"_summary.csv"), s)
}

func saveCSV(path string, s *strategy.RunSummary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	rows := [][]string{
		{"metric", "value"},
		{"total_time", formatFloat(s.TotalTime)},
		{"n_images", strconv.Itoa(s.NImages)},
		{"avg_time_per_image", formatFloat(s.AvgTimePerImage)},
		{"throughput_img_per_sec", formatFloat(s.Throughput)},
	}
	if len(s.CPUSamples) > 0 {
		var sum float64
		for _, v := range s.CPUSamples {
			sum += v
		}
		rows = append(rows, []string{"cpu_sample_mean", formatFloat(sum / float64(len(s.CPUSamples)))})
	}
	if !s.SyncMetrics.Empty() {
		m := s.SyncMetrics
		rows = append(rows,
			[]string{"sync_total_lock_wait_time", formatFloat(m.TotalLockWaitTime)},
			[]string{"sync_avg_lock_wait_time", formatFloat(m.AvgLockWaitTime)},
			[]string{"sync_max_lock_wait_time", formatFloat(m.MaxLockWaitTime)},
			[]string{"sync_total_semaphore_wait_time", formatFloat(m.TotalSemaphoreWaitTime)},
			[]string{"sync_avg_semaphore_wait_time", formatFloat(m.AvgSemaphoreWaitTime)},
			[]string{"sync_lock_acquire_count", strconv.FormatInt(m.LockAcquireCount, 10)},
			[]string{"sync_semaphore_acquire_count", strconv.FormatInt(m.SemaphoreAcquireCount, 10)},
			[]string{"sync_contention_count", strconv.FormatInt(m.ContentionCount, 10)},
			[]string{"sync_total_wait_time", formatFloat(m.TotalWaitTime)},
		)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
