package tui

import (
	"testing"

	"github.com/theirongolddev/qiprof/internal/config"
)

func TestSetupValuesApply(t *testing.T) {
	cfg := config.DefaultConfig()
	v := newSetupValues(cfg)
	v.theme = "terminal"
	v.ignoreTermIDs = !cfg.Display.IgnoreTermIDs
	v.streamCeiling = "2 GiB"
	v.minRepetitions = "5"

	if err := v.apply(&cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Appearance.Theme != "terminal" {
		t.Errorf("Theme = %q", cfg.Appearance.Theme)
	}
	if cfg.Ingest.StreamCeiling != 2<<30 {
		t.Errorf("StreamCeiling = %d", cfg.Ingest.StreamCeiling)
	}
	if cfg.Loops.MinRepetitions != 5 {
		t.Errorf("MinRepetitions = %d", cfg.Loops.MinRepetitions)
	}
}

func TestValidateByteSize(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"1 GiB", false},
		{"512MiB", false},
		{"1 KiB", true},
		{"lots", true},
	}
	for _, tt := range tests {
		if err := validateByteSize(tt.in); (err != nil) != tt.wantErr {
			t.Errorf("validateByteSize(%q) = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}
