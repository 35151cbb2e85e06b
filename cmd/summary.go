package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/qiprof/internal/cli"
	"github.com/theirongolddev/qiprof/internal/model"
	"github.com/theirongolddev/qiprof/internal/pipeline"
	"github.com/theirongolddev/qiprof/internal/source"
	"github.com/theirongolddev/qiprof/internal/store"
)

var (
	flagSummaryTop    int
	flagSummaryLoops  bool
	flagSummaryFormat string
)

var summaryCmd = &cobra.Command{
	Use:   "summary <trace|dir>...",
	Short: "Counters and quantifier usage for one or more traces",
	Long: "Parse every trace given (directories are searched for *.log,\n" +
		"*.log.zst, *.log.gz and *.log.lz4) and report their counters.\n" +
		"Summaries of unchanged files come from the cache.",
	Args: cobra.MinimumNArgs(1),
	RunE: runSummary,
}

func init() {
	summaryCmd.Flags().IntVarP(&flagSummaryTop, "top", "n", 10, "Quantifiers to list per trace (0 for none)")
	summaryCmd.Flags().BoolVar(&flagSummaryLoops, "loops", false, "Also search every trace for matching loops")
	summaryCmd.Flags().StringVarP(&flagSummaryFormat, "format", "f", "text", "Output format: text, json or yaml")
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(_ *cobra.Command, args []string) error {
	format, err := parseFormat(flagSummaryFormat)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr)

	files, err := source.ScanPaths(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("\n  No trace files found.")
		return nil
	}

	var cache *store.Cache
	if !flagNoCache {
		cache, err = store.Open(pipeline.CachePath())
		if err != nil {
			logger.Warn("summary cache unavailable, parsing everything", "err", err)
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	progress := showProgress()
	progressFn := func(current, total int) {
		if progress {
			fmt.Fprintf(os.Stderr, "\r  Parsing %s [%d/%d]", cli.RenderProgressBar(int64(current), int64(total), 30), current, total)
		}
	}

	ctx, stop := signalContext()
	defer stop()

	res, err := pipeline.Summarize(ctx, files, cache, pipeline.SummaryOptions{
		Limits:        cfg.Limits(),
		Graph:         cfg.GraphOptions(),
		SearchLoops:   flagSummaryLoops,
		ForceBuffered: cfg.Ingest.ForceBuffered,
		Logger:        logger,
	}, progressFn)
	if progress {
		fmt.Fprint(os.Stderr, "\r\033[K")
	}
	if res == nil {
		return err
	}
	// Interrupted: report what finished, then fail.
	interrupted := err
	if interrupted != nil {
		fmt.Fprintln(os.Stderr, cli.RenderWarning("interrupted, unfinished traces are partial"))
	}
	if !flagQuiet && cache != nil {
		fmt.Fprintf(os.Stderr, "  %d cached, %d parsed\n", res.CacheHits, res.Reparsed)
	}

	if format != formatText {
		summaries := make([]model.Summary, 0, len(res.Files))
		for _, f := range res.Files {
			if f.Err == nil {
				summaries = append(summaries, trimUsage(f.Summary, flagSummaryTop))
			}
		}
		if err := writeStructured(os.Stdout, format, summaries); err != nil {
			return err
		}
		return interrupted
	}

	for _, f := range res.Files {
		if f.Err != nil {
			continue
		}
		printSummary(f.Summary, f.Cached)
	}
	if res.FileErrors > 0 {
		fmt.Fprintf(os.Stderr, "\n  %d files could not be parsed\n", res.FileErrors)
		for _, f := range res.Files {
			if f.Err != nil {
				fmt.Fprintf(os.Stderr, "    %s: %v\n", f.Path, f.Err)
			}
		}
	}
	return interrupted
}

func trimUsage(s model.Summary, n int) model.Summary {
	if n >= 0 && len(s.Usage) > n {
		s.Usage = s.Usage[:n]
	}
	return s
}

func printSummary(s model.Summary, cached bool) {
	fmt.Println()
	fmt.Println(cli.RenderTitle(s.File))
	fmt.Println()

	rows := [][]string{
		{"Solver", s.Version},
		{"Size", cli.FormatBytes(s.Size)},
		{"Lines", cli.FormatNumber(s.Lines)},
		{"---"},
		{"Instantiations", cli.FormatNumber(int64(s.Instantiations))},
		{"Quantifiers", cli.FormatNumber(int64(s.Quantifiers))},
		{"Terms", cli.FormatNumber(int64(s.Terms))},
		{"Equalities", cli.FormatNumber(int64(s.Equalities))},
	}
	if s.MatchingLoops != nil {
		rows = append(rows, []string{"Matching loops", cli.FormatNumber(int64(*s.MatchingLoops))})
	}
	rows = append(rows, []string{"---"})
	if s.ParseErrors > 0 {
		rows = append(rows, []string{"Malformed lines", cli.FormatNumber(int64(s.ParseErrors))})
	}
	parsed := cli.FormatDuration(s.Elapsed)
	if cached {
		parsed += " (cached)"
	}
	rows = append(rows, []string{"Parse time", parsed})
	fmt.Print(cli.RenderTable(cli.Table{Headers: []string{"Metric", "Value"}, Rows: rows}))

	switch {
	case s.Cancelled:
		fmt.Println(cli.RenderWarning("parsing was interrupted; counts are partial"))
	case s.TimedOut:
		fmt.Println(cli.RenderWarning("parsing stopped at the size ceiling; counts are partial"))
	}

	usage := trimUsage(s, flagSummaryTop).Usage
	if len(usage) == 0 {
		return
	}
	fmt.Println()
	peak := float64(usage[0].Instantiations)
	width := 0
	for _, u := range usage {
		width = max(width, len(u.Name))
	}
	for _, u := range usage {
		label := fmt.Sprintf("%-*s %10s", width, u.Name, cli.FormatNumber(int64(u.Instantiations)))
		fmt.Println(cli.RenderHorizontalBar(label, float64(u.Instantiations), peak, 30))
	}
}
