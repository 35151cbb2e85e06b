package cli

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/qiprof/internal/tui/theme"
)

// Table is a bordered text table for CLI output. A row holding the single
// cell "---" renders as a separator.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	Widths  []int // optional column widths, measured from the cells if nil
}

func fg(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}

// RenderTitle renders a centered title in a rounded box.
func RenderTitle(title string) string {
	t := theme.Active
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border).
		Width(55).
		Align(lipgloss.Center).
		Padding(0, 1)
	return box.Render(fg(t.TextPrimary).Bold(true).Render(title))
}

// RenderTable renders t with box-drawing borders. The first column is left
// aligned; later cells are right aligned when they start with a digit.
func RenderTable(t Table) string {
	numCols := len(t.Headers)
	if numCols == 0 && len(t.Rows) > 0 {
		numCols = len(t.Rows[0])
	}
	if numCols == 0 {
		return ""
	}
	widths := columnWidths(t, numCols)

	th := theme.Active
	dim := fg(th.TextDim)
	head := fg(th.Accent).Bold(true)
	val := fg(th.TextPrimary)

	rule := func(left, mid, right string) string {
		parts := make([]string, len(widths))
		for i, w := range widths {
			parts[i] = strings.Repeat("─", w+2)
		}
		return dim.Render(left+strings.Join(parts, mid)+right) + "\n"
	}
	line := func(cells []string, style lipgloss.Style, align bool) string {
		var b strings.Builder
		b.WriteString(dim.Render("│"))
		for i, w := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			pad := strings.Repeat(" ", max(w-lipgloss.Width(cell), 0))
			if align && i > 0 && startsWithDigit(cell) {
				cell = pad + cell
			} else {
				cell += pad
			}
			b.WriteString(style.Render(" " + cell + " "))
			b.WriteString(dim.Render("│"))
		}
		b.WriteString("\n")
		return b.String()
	}

	var b strings.Builder
	if t.Title != "" {
		b.WriteString("  " + head.Render(t.Title) + "\n")
	}
	b.WriteString(rule("╭", "┬", "╮"))
	if len(t.Headers) > 0 {
		b.WriteString(line(t.Headers, head, false))
		b.WriteString(rule("├", "┼", "┤"))
	}
	for _, row := range t.Rows {
		if len(row) == 1 && row[0] == "---" {
			b.WriteString(rule("├", "┼", "┤"))
			continue
		}
		b.WriteString(line(row, val, true))
	}
	b.WriteString(rule("╰", "┴", "╯"))
	return b.String()
}

func columnWidths(t Table, numCols int) []int {
	widths := make([]int, numCols)
	if t.Widths != nil {
		copy(widths, t.Widths)
		return widths
	}
	measure := func(cells []string) {
		for i, c := range cells {
			if i < numCols {
				widths[i] = max(widths[i], lipgloss.Width(c))
			}
		}
	}
	measure(t.Headers)
	for _, row := range t.Rows {
		if len(row) == 1 && row[0] == "---" {
			continue
		}
		measure(row)
	}
	return widths
}

func startsWithDigit(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsDigit(r)
}

// RenderProgressBar renders a text progress bar for current out of total.
func RenderProgressBar(current, total int64, width int) string {
	if total <= 0 {
		return ""
	}
	pct := min(max(float64(current)/float64(total), 0), 1)
	filled := min(int(pct*float64(width)), width)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("[%s] %s", fg(theme.Active.TextMuted).Render(bar), FormatPercent(pct))
}

// RenderWarning renders a one-line notice in the warning color.
func RenderWarning(msg string) string {
	return fg(theme.Active.Warning).Render("  ! " + msg)
}

// RenderKeyValue renders an aligned label/value line.
func RenderKeyValue(label, value string) string {
	t := theme.Active
	return fmt.Sprintf("  %s %s", fg(t.TextMuted).Render(fmt.Sprintf("%-16s", label)), fg(t.TextPrimary).Render(value))
}

// RenderHorizontalBar renders a labelled bar scaled against maxValue.
func RenderHorizontalBar(label string, value, maxValue float64, maxWidth int) string {
	if maxValue <= 0 {
		return "  " + label
	}
	n := max(int(value/maxValue*float64(maxWidth)), 0)
	return fmt.Sprintf("  %s %s", label, fg(theme.Active.Cost).Render(strings.Repeat("█", n)))
}
