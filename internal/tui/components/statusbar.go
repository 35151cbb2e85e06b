package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/qiprof/internal/tui/theme"
)

// RenderStatusBar renders the bottom bar with left-aligned key hints and a
// right-aligned status. The status is dropped first when space runs out.
func RenderStatusBar(width int, hints, status string) string {
	t := theme.Active

	style := lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Background(t.Surface).
		Width(width).
		MaxWidth(width)

	left := " " + hints
	right := status
	if right != "" {
		right += " "
	}
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		return style.Render(left)
	}
	return style.Render(left + strings.Repeat(" ", gap) + right)
}
