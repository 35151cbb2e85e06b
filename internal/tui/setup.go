package tui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/dustin/go-humanize"

	"github.com/theirongolddev/qiprof/internal/config"
	"github.com/theirongolddev/qiprof/internal/tui/theme"
)

// setupValues holds the form's bound fields. huh writes through these
// pointers, so a setupValues must outlive its form.
type setupValues struct {
	theme          string
	ignoreTermIDs  bool
	eagerGraph     bool
	streamCeiling  string
	minRepetitions string
}

func newSetupValues(cfg config.Config) *setupValues {
	return &setupValues{
		theme:          cfg.Appearance.Theme,
		ignoreTermIDs:  cfg.Display.IgnoreTermIDs,
		eagerGraph:     cfg.Ingest.EagerGraph,
		streamCeiling:  cfg.Ingest.StreamCeiling.String(),
		minRepetitions: strconv.Itoa(cfg.Loops.MinRepetitions),
	}
}

// apply copies the answers into cfg. Values were validated by the form.
func (v *setupValues) apply(cfg *config.Config) error {
	cfg.Appearance.Theme = v.theme
	cfg.Display.IgnoreTermIDs = v.ignoreTermIDs
	cfg.Ingest.EagerGraph = v.eagerGraph
	if err := cfg.Ingest.StreamCeiling.Set(v.streamCeiling); err != nil {
		return fmt.Errorf("stream ceiling: %w", err)
	}
	n, err := strconv.Atoi(v.minRepetitions)
	if err != nil {
		return fmt.Errorf("min repetitions: %w", err)
	}
	cfg.Loops.MinRepetitions = n
	return nil
}

func validateByteSize(s string) error {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return fmt.Errorf("not a size: %q", s)
	}
	if n < 1<<20 {
		return fmt.Errorf("must be at least 1 MiB")
	}
	return nil
}

func newSetupForm(v *setupValues, path string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Welcome to qiprof").
				Description("A few settings for exploring quantifier instantiation traces.\nThey are saved to "+path),
			huh.NewSelect[string]().
				Title("Color theme").
				Options(huh.NewOptions(theme.Names()...)...).
				Value(&v.theme),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Stop streaming after").
				Description("Larger traces are parsed up to this many bytes.").
				Value(&v.streamCeiling).
				Validate(validateByteSize),
			huh.NewConfirm().
				Title("Build the instantiation graph while loading?").
				Value(&v.eagerGraph),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Hide #id term prefixes in details?").
				Value(&v.ignoreTermIDs),
			huh.NewSelect[string]().
				Title("Repetitions before a cycle counts as a matching loop").
				Options(huh.NewOptions("2", "3", "4", "5")...).
				Value(&v.minRepetitions),
		),
	).WithShowHelp(true)
}

// RunSetup runs the setup form on its own and saves the answers to path.
func RunSetup(cfg config.Config, path string) (config.Config, error) {
	v := newSetupValues(cfg)
	if err := newSetupForm(v, path).Run(); err != nil {
		return cfg, err
	}
	if err := v.apply(&cfg); err != nil {
		return cfg, err
	}
	if err := config.SaveTo(path, cfg); err != nil {
		return cfg, fmt.Errorf("saving config: %w", err)
	}
	return cfg, nil
}
