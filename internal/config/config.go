package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/theirongolddev/qiprof/internal/graph"
	"github.com/theirongolddev/qiprof/internal/pipeline"
)

// Config holds all qiprof configuration.
type Config struct {
	Ingest     IngestConfig     `toml:"ingest"`
	Display    DisplayConfig    `toml:"display"`
	Loops      LoopsConfig      `toml:"loops"`
	Appearance AppearanceConfig `toml:"appearance"`
	Serve      ServeConfig      `toml:"serve"`
}

// IngestConfig bounds how much of a trace is read and how often progress
// is reported.
type IngestConfig struct {
	StreamCeiling      ByteSize `toml:"stream_ceiling"`
	BufferedCeiling    ByteSize `toml:"buffered_ceiling"`
	ProgressEveryLines int64    `toml:"progress_every_lines"`
	ForceBuffered      bool     `toml:"force_buffered"`
	EagerGraph         bool     `toml:"eager_graph"`
}

// DisplayConfig controls how terms are rendered.
type DisplayConfig struct {
	IgnoreTermIDs bool `toml:"ignore_term_ids"`
	MaxTermDepth  int  `toml:"max_term_depth"`
}

// LoopsConfig tunes the matching-loop search.
type LoopsConfig struct {
	MinRepetitions  int `toml:"min_repetitions"`
	MaxCycles       int `toml:"max_cycles"`
	SearchTimeoutMs int `toml:"search_timeout_ms"`
}

// AppearanceConfig holds theme settings.
type AppearanceConfig struct {
	Theme string `toml:"theme"`
}

// ServeConfig holds settings for the HTTP server.
type ServeConfig struct {
	Addr         string `toml:"addr"`
	EventsBuffer int    `toml:"events_buffer"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	limits := pipeline.DefaultLimits()
	gopts := graph.DefaultOptions()
	return Config{
		Ingest: IngestConfig{
			StreamCeiling:      ByteSize(limits.StreamCeiling),
			BufferedCeiling:    ByteSize(limits.BufferedCeiling),
			ProgressEveryLines: limits.ProgressEvery,
		},
		Display: DisplayConfig{
			IgnoreTermIDs: true,
			MaxTermDepth:  gopts.MaxTermDepth,
		},
		Loops: LoopsConfig{
			MinRepetitions:  gopts.MinRepetitions,
			MaxCycles:       gopts.MaxCycles,
			SearchTimeoutMs: int(gopts.CyclesTimeout / time.Millisecond),
		},
		Appearance: AppearanceConfig{
			Theme: "flexoki-dark",
		},
		Serve: ServeConfig{
			Addr:         "127.0.0.1:8787",
			EventsBuffer: 200,
		},
	}
}

// Limits converts the ingest table into pipeline limits.
func (c Config) Limits() pipeline.Limits {
	return pipeline.Limits{
		StreamCeiling:   int64(c.Ingest.StreamCeiling),
		BufferedCeiling: int64(c.Ingest.BufferedCeiling),
		ProgressEvery:   c.Ingest.ProgressEveryLines,
	}
}

// GraphOptions converts the display and loops tables into graph options.
func (c Config) GraphOptions() graph.Options {
	return graph.Options{
		MinRepetitions: c.Loops.MinRepetitions,
		MaxCycles:      c.Loops.MaxCycles,
		CyclesTimeout:  time.Duration(c.Loops.SearchTimeoutMs) * time.Millisecond,
		MaxTermDepth:   c.Display.MaxTermDepth,
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "qiprof")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "qiprof")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the config file at path. Keys missing from the file keep
// their defaults.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return cfg, fmt.Errorf("parsing config: unknown key %q", undec[0].String())
	}

	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	return SaveTo(ConfigPath(), cfg)
}

// SaveTo writes the config to path, creating its directory.
func SaveTo(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}
