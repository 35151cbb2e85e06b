package cmd

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/theirongolddev/qiprof/internal/config"
	"github.com/theirongolddev/qiprof/internal/pipeline"
	"github.com/theirongolddev/qiprof/internal/source"
	"github.com/theirongolddev/qiprof/internal/tui"
	"github.com/theirongolddev/qiprof/internal/tui/theme"
)

var (
	flagWatch  bool
	flagTUITop int
)

var tuiCmd = &cobra.Command{
	Use:   "tui <trace>",
	Short: "Explore a trace interactively",
	Args:  cobra.ExactArgs(1),
	RunE:  runTUI,
}

func init() {
	tuiCmd.Flags().BoolVarP(&flagWatch, "watch", "w", false, "Reload the trace when it changes")
	tuiCmd.Flags().IntVarP(&flagTUITop, "top", "n", 500, "Instantiations to list, most expensive first")
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := args[0]
	if _, err := os.Stat(path); err != nil {
		return err
	}

	logger, closer, err := openLogFile()
	if err != nil {
		return err
	}
	defer closer.Close()

	profile := termenv.EnvColorProfile()
	lipgloss.SetColorProfile(profile)
	theme.SetActive(cfg.Appearance.Theme, profile)

	p := pipeline.New(
		pipeline.WithLimits(cfg.Limits()),
		pipeline.WithGraphOptions(cfg.GraphOptions()),
		pipeline.WithEagerGraph(cfg.Ingest.EagerGraph),
		pipeline.WithLogger(logger),
	)

	firstRun := flagConfig == "" && !config.Exists() && term.IsTerminal(int(os.Stdin.Fd()))
	return tui.Run(tui.Options{
		Path: path,
		Open: func() (source.Source, error) {
			src, err := source.Open(path, source.WithForceBuffered(cfg.Ingest.ForceBuffered))
			if err != nil {
				return nil, err
			}
			return src, nil
		},
		Pipeline:      p,
		IgnoreTermIDs: cfg.Display.IgnoreTermIDs,
		Watch:         flagWatch,
		TopN:          flagTUITop,
		FirstRun:      firstRun,
		Config:        cfg,
		ConfigPath:    configPath(),
		Logger:        logger,
	})
}
