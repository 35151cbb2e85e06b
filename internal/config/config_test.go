package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestDefaultsMatchPipeline(t *testing.T) {
	cfg := DefaultConfig()
	l := cfg.Limits()
	if l.StreamCeiling != 1<<30 || l.BufferedCeiling != 512<<20 || l.ProgressEvery != 100_000 {
		t.Errorf("Limits = %+v", l)
	}
	g := cfg.GraphOptions()
	if g.MinRepetitions != 3 || g.CyclesTimeout != 5*time.Second {
		t.Errorf("GraphOptions = %+v", g)
	}
	if !cfg.Display.IgnoreTermIDs {
		t.Error("term ids shown by default")
	}
}

func TestLoadFrom_Missing(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Ingest.StreamCeiling != DefaultConfig().Ingest.StreamCeiling {
		t.Error("missing file did not yield defaults")
	}
}

func TestLoadFrom_PartialOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	text := `
[ingest]
stream_ceiling = "2GiB"
buffered_ceiling = "64 MB"

[loops]
min_repetitions = 5
`
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Ingest.StreamCeiling != 2<<30 {
		t.Errorf("StreamCeiling = %d", cfg.Ingest.StreamCeiling)
	}
	if cfg.Ingest.BufferedCeiling != 64_000_000 {
		t.Errorf("BufferedCeiling = %d", cfg.Ingest.BufferedCeiling)
	}
	if cfg.Loops.MinRepetitions != 5 || cfg.Loops.MaxCycles != 100 {
		t.Errorf("Loops = %+v", cfg.Loops)
	}
	if cfg.Ingest.ProgressEveryLines != 100_000 {
		t.Errorf("untouched key lost its default: %d", cfg.Ingest.ProgressEveryLines)
	}
}

func TestLoadFrom_Errors(t *testing.T) {
	tests := []struct {
		name, text, want string
	}{
		{"bad size", "[ingest]\nstream_ceiling = \"lots\"\n", "invalid byte size"},
		{"unknown key", "[ingest]\nceiling = 3\n", "unknown key"},
		{"bad toml", "[ingest\n", "parsing config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.text), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := LoadFrom(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	cfg := DefaultConfig()
	cfg.Ingest.BufferedCeiling = 3 << 20
	cfg.Serve.Addr = ":9999"
	if err := SaveTo(path, cfg); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `buffered_ceiling = "3.0 MiB"`) {
		t.Errorf("saved file:\n%s", data)
	}
	got, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != cfg {
		t.Errorf("round trip = %+v, want %+v", got, cfg)
	}
}

func TestByteSizeFlag(t *testing.T) {
	var b ByteSize
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Var(&b, "ceiling", "byte ceiling")
	if err := fs.Parse([]string{"--ceiling", "1.5GiB"}); err != nil {
		t.Fatal(err)
	}
	if b != ByteSize(3<<29) {
		t.Errorf("ceiling = %d", b)
	}
	if err := fs.Parse([]string{"--ceiling", "-3"}); err == nil {
		t.Error("negative size accepted")
	}
}
