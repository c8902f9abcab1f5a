// Package config holds the benchmark configuration and its sources:
// defaults, an optional config file, SYNCBENCH_* environment variables and
// command-line flags.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds one benchmark invocation.
type Config struct {
	ImagesDir  string
	OutputDir  string
	ResultsDir string
	// Threads and Processes are the pool sizes to sweep; each size yields
	// one matrix cell per applicable policy.
	Threads   []int
	Processes []int
	// LogPermits bounds the semaphore-guarded log variant.
	LogPermits int64
	Executor   string
	// CPUSampling enables background CPU-percent sampling around each run.
	CPUSampling bool
	// CountItems wires the shared completion counter into every run.
	CountItems bool
	Debug      bool
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ImagesDir:  "images",
		OutputDir:  "output",
		ResultsDir: "results",
		Threads:    []int{2, 4, 8},
		Processes:  []int{2, 4},
		LogPermits: 2,
		Executor:   "grayscale",
	}
}

// FromViper overlays every key that is set in v onto c. Flag bindings,
// environment variables and config-file entries all arrive through here.
func FromViper(v *viper.Viper, c *Config) {
	if v.IsSet("images") {
		c.ImagesDir = v.GetString("images")
	}
	if v.IsSet("output") {
		c.OutputDir = v.GetString("output")
	}
	if v.IsSet("results") {
		c.ResultsDir = v.GetString("results")
	}
	if v.IsSet("threads") {
		c.Threads = v.GetIntSlice("threads")
	}
	if v.IsSet("processes") {
		c.Processes = v.GetIntSlice("processes")
	}
	if v.IsSet("log-permits") {
		c.LogPermits = v.GetInt64("log-permits")
	}
	if v.IsSet("executor") {
		c.Executor = v.GetString("executor")
	}
	if v.IsSet("cpu-sampling") {
		c.CPUSampling = v.GetBool("cpu-sampling")
	}
	if v.IsSet("count-items") {
		c.CountItems = v.GetBool("count-items")
	}
	if v.IsSet("debug") {
		c.Debug = v.GetBool("debug")
	}
}

// Validate rejects configurations no run could satisfy.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ImagesDir) == "" {
		return fmt.Errorf("images dir is empty")
	}
	if strings.TrimSpace(c.Executor) == "" {
		return fmt.Errorf("executor name is empty")
	}
	for _, n := range c.Threads {
		if n < 1 {
			return fmt.Errorf("thread count %d is below 1", n)
		}
	}
	for _, n := range c.Processes {
		if n < 1 {
			return fmt.Errorf("process count %d is below 1", n)
		}
	}
	if c.LogPermits < 1 {
		return fmt.Errorf("log permits %d is below 1", c.LogPermits)
	}
	return nil
}

// EnvFlagEnabled returns true when the environment variable exists and is
// not explicitly set to a falsey value ("0/false/no/off").
func EnvFlagEnabled(key string) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		return false
	}
	switch strings.TrimSpace(strings.ToLower(val)) {
	case "", "0", "false", "no", "off":
		return false
	default:
		return true
	}
}
