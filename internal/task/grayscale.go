package task

import (
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"syncbench/internal/sharedlog"
	"syncbench/internal/utils"
)

const (
	grayscaleSuffix = "_gray"
	maxErrorDetail  = 300
)

func init() {
	Register(Grayscale{})
	Register(Sleep{Duration: 10 * time.Millisecond})
}

// Grayscale decodes an image, converts it to gray, and writes
// "<stem>_gray<ext>" into the destination directory. One line describing
// the outcome goes to the shared log; that append is the critical section
// the benchmark is actually about.
type Grayscale struct{}

func (Grayscale) Name() string { return "grayscale" }

func (Grayscale) Execute(item, destDir, workerID string, slog sharedlog.Log) Result {
	start := time.Now()

	outPath, err := convertGray(item, destDir)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		logLine(slog, fmt.Sprintf("error: %s - %v (worker %s)", filepath.Base(item), err, workerID))
		return Result{
			Item:    item,
			Elapsed: elapsed,
			Error:   utils.SafeTruncate(err.Error(), maxErrorDetail),
		}
	}

	logLine(slog, fmt.Sprintf("processed: %s -> %s (%.4fs, worker %s)",
		filepath.Base(item), filepath.Base(outPath), elapsed, workerID))
	return Result{
		Success: true,
		Item:    item,
		Output:  outPath,
		Elapsed: elapsed,
	}
}

func convertGray(item, destDir string) (string, error) {
	f, err := os.Open(item)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, src.At(x, y))
		}
	}

	ext := filepath.Ext(item)
	stem := strings.TrimSuffix(filepath.Base(item), ext)
	outPath := filepath.Join(destDir, stem+grayscaleSuffix+ext)

	out, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("create output: %w", err)
	}
	defer out.Close()

	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(out, gray, nil)
	case ".gif":
		err = gif.Encode(out, gray, nil)
	default:
		err = png.Encode(out, gray)
	}
	if err != nil {
		return "", fmt.Errorf("encode output: %w", err)
	}
	return outPath, nil
}

func logLine(slog sharedlog.Log, msg string) {
	if slog == nil {
		return
	}
	// A failed log append never fails the item; the log is observability,
	// not the workload.
	_ = slog.Log(msg)
}

// Sleep is a fixed-cost stand-in executor for dry runs and tests, so the
// harness can be exercised without an image corpus.
type Sleep struct {
	Duration time.Duration
}

func (Sleep) Name() string { return "sleep" }

func (s Sleep) Execute(item, destDir, workerID string, slog sharedlog.Log) Result {
	start := time.Now()
	time.Sleep(s.Duration)
	elapsed := time.Since(start).Seconds()
	logLine(slog, fmt.Sprintf("processed: %s (%.4fs, worker %s)", filepath.Base(item), elapsed, workerID))
	return Result{
		Success: true,
		Item:    item,
		Elapsed: elapsed,
	}
}
