package cli

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

func TestRenderTable(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	out := RenderTable(Table{
		Headers: []string{"Quantifier", "Count"},
		Rows: [][]string{
			{"ax_fg", "5"},
			{"---"},
			{"ax_ping", "1,024"},
		},
	})
	want := strings.Join([]string{
		"╭────────────┬───────╮",
		"│ Quantifier │ Count │",
		"├────────────┼───────┤",
		"│ ax_fg      │     5 │",
		"├────────────┼───────┤",
		"│ ax_ping    │ 1,024 │",
		"╰────────────┴───────╯",
		"",
	}, "\n")
	if out != want {
		t.Errorf("RenderTable:\n%s\nwant:\n%s", out, want)
	}
}

func TestRenderTable_TextCellsLeftAligned(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	out := RenderTable(Table{Rows: [][]string{{"#1", "term", "f(g(x))"}, {"#2", "eq", "a"}}})
	if !strings.Contains(out, "│ eq   │ a       │") {
		t.Errorf("text cells not left aligned:\n%s", out)
	}
}

func TestRenderTable_Empty(t *testing.T) {
	if got := RenderTable(Table{}); got != "" {
		t.Errorf("RenderTable(empty) = %q", got)
	}
}

func TestRenderProgressBar(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	if got := RenderProgressBar(1, 0, 10); got != "" {
		t.Errorf("zero total = %q", got)
	}
	got := RenderProgressBar(5, 10, 10)
	if !strings.HasPrefix(got, "[█████░░░░░]") {
		t.Errorf("RenderProgressBar(5/10) = %q", got)
	}
}
