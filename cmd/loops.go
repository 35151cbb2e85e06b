package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/qiprof/internal/cli"
	"github.com/theirongolddev/qiprof/internal/graph"
)

var (
	flagLoopsFormat  string
	flagLoopsMinReps int
)

var loopsCmd = &cobra.Command{
	Use:   "loops <trace>",
	Short: "Find matching loops in a trace",
	Long: "A matching loop is a cycle of quantifiers that a chain of\n" +
		"instantiations goes round again and again. For each loop found,\n" +
		"the trigger terms of the repetitions are shown generalized, with\n" +
		"_ where the repetitions differ.",
	Args: cobra.ExactArgs(1),
	RunE: runLoops,
}

func init() {
	loopsCmd.Flags().StringVarP(&flagLoopsFormat, "format", "f", "text", "Output format: text, json or yaml")
	loopsCmd.Flags().IntVar(&flagLoopsMinReps, "min-repetitions", 0, "Repetitions before a cycle counts (default from config)")
	rootCmd.AddCommand(loopsCmd)
}

// loopsReport is the structured output of the loops command.
type loopsReport struct {
	File            string               `json:"file" yaml:"file"`
	Count           int                  `json:"count" yaml:"count"`
	CyclesExamined  int                  `json:"cycles_examined" yaml:"cycles_examined"`
	CyclesTruncated bool                 `json:"cycles_truncated" yaml:"cycles_truncated"`
	CyclesTimedOut  bool                 `json:"cycles_timed_out" yaml:"cycles_timed_out"`
	SearchTime      time.Duration        `json:"search_time_ns" yaml:"search_time_ns"`
	Loops           []graph.MatchingLoop `json:"loops" yaml:"loops"`
}

func runLoops(_ *cobra.Command, args []string) error {
	format, err := parseFormat(flagLoopsFormat)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagLoopsMinReps > 0 {
		cfg.Loops.MinRepetitions = flagLoopsMinReps
	}

	ctx, stop := signalContext()
	defer stop()

	h, err := ingest(ctx, args[0], cfg, newLogger(os.Stderr))
	if err != nil {
		return err
	}
	if showProgress() {
		fmt.Fprint(os.Stderr, "  Searching for matching loops...")
	}
	ig := h.EnsureGraph()
	ig.SearchMatchingLoops()
	if showProgress() {
		fmt.Fprint(os.Stderr, "\r\033[K")
	}
	search := ig.LastSearch()

	report := loopsReport{
		File:            h.FileName(),
		Count:           len(search.Loops),
		CyclesExamined:  search.CyclesExamined,
		CyclesTruncated: search.CyclesTruncated,
		CyclesTimedOut:  search.CyclesTimedOut,
		SearchTime:      search.Duration,
		Loops:           search.Loops,
	}
	if format != formatText {
		return writeStructured(os.Stdout, format, report)
	}
	printLoops(report)
	return nil
}

func printLoops(r loopsReport) {
	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("MATCHING LOOPS  %s", r.File)))
	fmt.Println()

	if r.Count == 0 {
		fmt.Println("  No matching loops found.")
	} else {
		rows := make([][]string, 0, len(r.Loops))
		for i, l := range r.Loops {
			rows = append(rows, []string{
				fmt.Sprintf("%d", i+1),
				strings.Join(l.Quantifiers, " → "),
				cli.FormatNumber(int64(l.Repetitions)),
				cli.FormatNumber(int64(len(l.Insts))),
			})
		}
		fmt.Print(cli.RenderTable(cli.Table{
			Headers: []string{"#", "Quantifiers", "Repetitions", "Instantiations"},
			Rows:    rows,
		}))

		for i, l := range r.Loops {
			fmt.Println()
			fmt.Println(cli.RenderKeyValue(fmt.Sprintf("Loop %d", i+1), "generalized trigger terms"))
			for _, g := range l.GeneralizedTerms {
				fmt.Printf("      %s\n", g)
			}
		}
	}

	fmt.Println()
	fmt.Println(cli.RenderKeyValue("Cycles examined", cli.FormatNumber(int64(r.CyclesExamined))))
	fmt.Println(cli.RenderKeyValue("Search time", cli.FormatDuration(r.SearchTime)))
	if r.CyclesTruncated {
		fmt.Println(cli.RenderWarning("cycle enumeration hit max_cycles; raise it in [loops] to look further"))
	}
	if r.CyclesTimedOut {
		fmt.Println(cli.RenderWarning("cycle enumeration timed out; raise search_timeout_ms in [loops]"))
	}
}
