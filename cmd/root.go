// Package cmd implements the qiprof CLI commands.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/theirongolddev/qiprof/internal/config"
	"github.com/theirongolddev/qiprof/internal/pipeline"
)

var (
	flagConfig          string
	flagVerbose         bool
	flagQuiet           bool
	flagNoCache         bool
	flagForceBuffered   bool
	flagEagerGraph      bool
	flagShowTermIDs     bool
	flagStreamCeiling   = config.DefaultConfig().Ingest.StreamCeiling
	flagBufferedCeiling = config.DefaultConfig().Ingest.BufferedCeiling
)

var rootCmd = &cobra.Command{
	Use:   "qiprof [trace]",
	Short: "Z3 quantifier instantiation profiler",
	Long: "Explore Z3 quantifier instantiation traces (-trace with\n" +
		"trace_file_name set): costly instantiations, their dependencies\n" +
		"and matching loops.",
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Assigned here rather than in the literal to avoid an initialization
	// cycle (rootCmd -> runTUI -> loadConfig -> rootCmd).
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runTUI(cmd, args)
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (default "+config.ConfigPath()+")")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Log debug output")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
	pf.BoolVar(&flagNoCache, "no-cache", false, "Skip the summary cache, reparse everything")
	pf.BoolVar(&flagForceBuffered, "force-buffered", false, "Read traces into memory instead of streaming them")
	pf.BoolVar(&flagEagerGraph, "eager-graph", false, "Build the instantiation graph while loading")
	pf.BoolVar(&flagShowTermIDs, "ids", false, "Show #id prefixes on terms")
	pf.Var(&flagStreamCeiling, "stream-ceiling", "Stop streaming a trace after this many bytes")
	pf.Var(&flagBufferedCeiling, "buffered-ceiling", "Stop parsing an in-memory trace after this many bytes")
	rootCmd.Flags().BoolVarP(&flagWatch, "watch", "w", false, "Reload the trace when it changes")
}

func configPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	return config.ConfigPath()
}

// loadConfig reads the config file and applies the flags the user set.
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadFrom(configPath())
	if err != nil {
		return cfg, err
	}

	pf := rootCmd.PersistentFlags()
	if pf.Changed("stream-ceiling") {
		cfg.Ingest.StreamCeiling = flagStreamCeiling
	}
	if pf.Changed("buffered-ceiling") {
		cfg.Ingest.BufferedCeiling = flagBufferedCeiling
	}
	if pf.Changed("force-buffered") {
		cfg.Ingest.ForceBuffered = flagForceBuffered
	}
	if pf.Changed("eager-graph") {
		cfg.Ingest.EagerGraph = flagEagerGraph
	}
	if pf.Changed("ids") {
		cfg.Display.IgnoreTermIDs = !flagShowTermIDs
	}
	return cfg, nil
}

// newLogger returns a text logger writing to w at warn level, or debug
// with --verbose.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openLogFile returns a logger writing to the UI log file, so log lines do
// not tear through the alternate screen. The returned closer closes the file.
func openLogFile() (*slog.Logger, io.Closer, error) {
	path := pipeline.LogPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return newLogger(f), f, nil
}

// stderrIsTerminal reports whether progress lines can be redrawn in place.
func stderrIsTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func showProgress() bool {
	return !flagQuiet && stderrIsTerminal()
}

// signalContext is cancelled on the first interrupt or SIGTERM. Ingestion
// stops at its next progress point and keeps what it has parsed; summary
// still prints the traces it finished.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
