// Package app wires the command line: the benchmark entrypoint, the hidden
// worker subcommand the process strategies spawn, and version.
package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"syncbench/internal/bench"
	"syncbench/internal/config"
	"syncbench/internal/worker"
)

var version = "0.1.0"

type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit %d", e.code)
}

var exitFn = os.Exit

// Main is the program entrypoint for cmd/syncbench/main.go.
func Main() {
	exitFn(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "syncbench",
		Short:         "Benchmark execution strategies against synchronization policies",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.AddCommand(newRunCommand(), newWorkerCommand(), newVersionCommand())
	return cmd
}

// setupLogging routes zerolog to stderr. Stdout stays reserved for command
// output, including the worker wire protocol.
func setupLogging(debug bool) {
	level := zerolog.InfoLevel
	if debug || config.EnvFlagEnabled("SYNCBENCH_DEBUG") {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()
}

func newRunCommand() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the benchmark matrix and write results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.NewViper(configFile)
			if err != nil {
				return err
			}
			cfg := config.Default()
			config.FromViper(v, &cfg)
			applyRunFlags(cmd.Flags(), &cfg)
			setupLogging(cfg.Debug)
			if err := cfg.Validate(); err != nil {
				return err
			}

			sum, err := bench.Run(cfg)
			if err != nil {
				log.Error().Err(err).Msg("benchmark failed")
				return exitError{code: 1}
			}
			fmt.Printf("run %s: %d runs over %d images; results in %s\n",
				sum.RunID, len(sum.Experiments), sum.NImages, cfg.ResultsDir)
			return nil
		},
	}
	addRunFlags(cmd.Flags(), &configFile)
	return cmd
}

func addRunFlags(fs *pflag.FlagSet, configFile *string) {
	d := config.Default()
	fs.StringVar(configFile, "config", "", "Config file path (default: $HOME/.syncbench/config.*)")
	fs.String("images", d.ImagesDir, "Directory of input images")
	fs.String("output", d.OutputDir, "Directory for per-run processed output")
	fs.String("results", d.ResultsDir, "Directory for result and summary files")
	fs.IntSlice("threads", d.Threads, "Thread pool sizes to sweep")
	fs.IntSlice("processes", d.Processes, "Process pool sizes to sweep")
	fs.Int64("log-permits", d.LogPermits, "Permits for the semaphore-guarded log")
	fs.String("executor", d.Executor, "Task executor (grayscale, sleep)")
	fs.Bool("cpu-sampling", false, "Sample CPU utilization during each run")
	fs.Bool("count-items", false, "Maintain a shared completion counter across workers")
	fs.Bool("debug", false, "Enable debug logging (also via SYNCBENCH_DEBUG)")
}

// applyRunFlags overlays explicitly set flags on top of the file/env config.
func applyRunFlags(fs *pflag.FlagSet, c *config.Config) {
	if fs.Changed("images") {
		c.ImagesDir, _ = fs.GetString("images")
	}
	if fs.Changed("output") {
		c.OutputDir, _ = fs.GetString("output")
	}
	if fs.Changed("results") {
		c.ResultsDir, _ = fs.GetString("results")
	}
	if fs.Changed("threads") {
		c.Threads, _ = fs.GetIntSlice("threads")
	}
	if fs.Changed("processes") {
		c.Processes, _ = fs.GetIntSlice("processes")
	}
	if fs.Changed("log-permits") {
		c.LogPermits, _ = fs.GetInt64("log-permits")
	}
	if fs.Changed("executor") {
		c.Executor, _ = fs.GetString("executor")
	}
	if fs.Changed("cpu-sampling") {
		c.CPUSampling, _ = fs.GetBool("cpu-sampling")
	}
	if fs.Changed("count-items") {
		c.CountItems, _ = fs.GetBool("count-items")
	}
	if fs.Changed("debug") {
		c.Debug, _ = fs.GetBool("debug")
	}
}

// newWorkerCommand is the child-process entrypoint. The flag set mirrors
// what the process strategies pass when they spawn this binary; stdout
// carries only the JSON result lines.
func newWorkerCommand() *cobra.Command {
	var opts worker.Options
	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Process work items from stdin (spawned internally)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(false)
			if err := worker.Run(opts, os.Stdin, os.Stdout); err != nil {
				log.Error().Err(err).Str("worker_id", opts.WorkerID).Msg("worker failed")
				return exitError{code: 1}
			}
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&opts.WorkerID, "worker-id", "", "Worker identity for result attribution")
	fs.StringVar(&opts.Executor, "executor", "", "Task executor name")
	fs.StringVar(&opts.DestDir, "dest", "", "Output directory")
	fs.StringVar(&opts.LogPath, "log-path", "", "Shared log file path")
	fs.StringVar(&opts.LogPolicy, "log-policy", "", "Shared log synchronization policy")
	fs.Int64Var(&opts.LogPermits, "log-permits", 0, "Semaphore permits for the shared log")
	fs.StringVar(&opts.CounterPath, "counter", "", "Shared counter file path")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "version",
		Short:         "Print version and exit",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("syncbench version %s\n", version)
			return nil
		},
	}
}
