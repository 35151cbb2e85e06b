package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/qiprof/internal/cli"
	"github.com/theirongolddev/qiprof/internal/model"
	"github.com/theirongolddev/qiprof/internal/pipeline"
	"github.com/theirongolddev/qiprof/internal/selection"
)

var (
	flagInspectNodes  []int
	flagInspectEdges  []int
	flagInspectTop    int
	flagInspectFormat string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <trace>",
	Short: "Show instantiations and dependencies in detail",
	Long: "Without --node or --edge, list the most expensive instantiations.\n" +
		"With them, print the full detail of each: the quantifier, bound and\n" +
		"blamed terms, equality explanations and what the instantiation yielded.",
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().IntSliceVar(&flagInspectNodes, "node", nil, "Instantiation to show (repeatable)")
	inspectCmd.Flags().IntSliceVar(&flagInspectEdges, "edge", nil, "Dependency edge to show (repeatable)")
	inspectCmd.Flags().IntVarP(&flagInspectTop, "top", "n", 20, "Instantiations to list when no --node is given")
	inspectCmd.Flags().StringVarP(&flagInspectFormat, "format", "f", "text", "Output format: text, json or yaml")
	rootCmd.AddCommand(inspectCmd)
}

// inspectReport is the structured output of the inspect command.
type inspectReport struct {
	File  string                    `json:"file" yaml:"file"`
	Nodes []selection.NodeSelection `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	Edges []selection.EdgeSelection `json:"edges,omitempty" yaml:"edges,omitempty"`
}

func runInspect(_ *cobra.Command, args []string) error {
	format, err := parseFormat(flagInspectFormat)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	h, err := ingest(ctx, args[0], cfg, newLogger(os.Stderr))
	if err != nil {
		return err
	}

	nodes := flagInspectNodes
	if len(nodes) == 0 && len(flagInspectEdges) == 0 {
		if format == formatText {
			printTopInstantiations(h, flagInspectTop)
			return nil
		}
		for _, id := range h.EnsureGraph().ByCost(flagInspectTop) {
			nodes = append(nodes, int(id))
		}
	}

	sel := selection.New(h, selection.WithIgnoreTermIDs(cfg.Display.IgnoreTermIDs))
	var errs []error
	ids := make([]model.InstIdx, len(nodes))
	for i, id := range nodes {
		ids[i] = model.InstIdx(id)
	}
	if _, err := sel.SelectMany(ids); err != nil {
		errs = append(errs, err)
	}
	for _, id := range flagInspectEdges {
		if _, selected := sel.Expanded(selection.Edge, id); selected {
			continue
		}
		if _, err := sel.ToggleEdge(model.EdgeIdx(id)); err != nil {
			errs = append(errs, err)
		}
	}
	// Everything asked for is shown in full.
	for _, id := range sel.NodeIDs() {
		sel.SetExpanded(selection.Node, int(id), true)
	}
	for _, id := range sel.EdgeIDs() {
		sel.SetExpanded(selection.Edge, int(id), true)
	}

	report := inspectReport{File: h.FileName(), Nodes: sel.Nodes(), Edges: sel.Edges()}
	if format != formatText {
		if err := writeStructured(os.Stdout, format, report); err != nil {
			return err
		}
	} else {
		printInspect(report)
	}
	return errors.Join(errs...)
}

func printTopInstantiations(h *pipeline.Handle, n int) {
	ig := h.EnsureGraph()
	tr := h.Trace()

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("COSTLIEST INSTANTIATIONS  %s", h.FileName())))
	fmt.Println()

	ids := ig.ByCost(n)
	rows := make([][]string, 0, len(ids))
	for i, id := range ids {
		name := "?"
		if q := tr.QuantOf(id); q >= 0 && int(q) < len(tr.Quantifiers) {
			name = tr.Quantifiers[q].Name
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("#%d", id),
			name,
			fmt.Sprintf("%.1f", ig.Cost(id)),
			cli.FormatNumber(int64(len(ig.In(id)))),
			cli.FormatNumber(int64(len(ig.Out(id)))),
		})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Rank", "Inst", "Quantifier", "Cost", "In", "Out"},
		Rows:    rows,
	}))
	fmt.Println()
	fmt.Println("  qiprof inspect --node <inst> shows one in full.")
}

func printInspect(r inspectReport) {
	for _, n := range r.Nodes {
		d := n.Detail
		fmt.Println()
		fmt.Println(cli.RenderTitle(fmt.Sprintf("#%d  %s", d.Inst, d.QuantName)))
		fmt.Println(cli.RenderKeyValue("Cost", fmt.Sprintf("%.2f", d.Cost)))
		if d.Z3Gen != nil {
			fmt.Println(cli.RenderKeyValue("Generation", fmt.Sprintf("%d", *d.Z3Gen)))
		}
		fmt.Println(cli.RenderKeyValue("Formula", d.Formula))
		printTerms("Bound", d.BoundTerms)
		printTerms("Blamed", d.BlamedTerms)
		printTerms("Equalities", d.EqualityExpls)
		printTerms("Yields", d.YieldTerms)
		if d.ResultingTerm != "" {
			fmt.Println(cli.RenderKeyValue("Result", d.ResultingTerm))
		}
	}
	if len(r.Edges) == 0 {
		return
	}
	fmt.Println()
	rows := make([][]string, 0, len(r.Edges))
	for _, e := range r.Edges {
		d := e.Detail
		rows = append(rows, []string{
			fmt.Sprintf("%d", d.Edge),
			fmt.Sprintf("#%d → #%d", d.From, d.To),
			d.Kind.String(),
			d.BlameTerm,
		})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Edge", "Dependency", "Kind", "Through"},
		Rows:    rows,
	}))
}

func printTerms(label string, terms []string) {
	if len(terms) == 0 {
		return
	}
	fmt.Println(cli.RenderKeyValue(label, strings.Join(terms, "\n"+strings.Repeat(" ", 19))))
}
