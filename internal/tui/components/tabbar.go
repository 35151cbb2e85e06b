package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/qiprof/internal/tui/theme"
)

// Tab is one entry of the tab bar.
type Tab struct {
	Name   string
	Key    rune
	KeyPos int // index of Key in Name, or -1 to append "[k]"
}

// Tabs are the explorer's views, in display order.
var Tabs = []Tab{
	{Name: "Instantiations", Key: 'n', KeyPos: 1},
	{Name: "Dependencies", Key: 'd', KeyPos: 0},
	{Name: "Loops", Key: 'l', KeyPos: 0},
}

const tabSeparator = "│"

// TabWidths returns the rendered cell width of every tab when activeIdx is
// active. Inactive tabs are three cells wider for their "[k]" marker.
func TabWidths(activeIdx int) []int {
	widths := make([]int, len(Tabs))
	for i, tab := range Tabs {
		w := lipgloss.Width(tab.Name) + 2
		if i != activeIdx {
			w += 2
			if tab.KeyPos < 0 {
				w++
			}
		}
		widths[i] = w
	}
	return widths
}

// TabAtX maps a column of the tab bar to a tab index, or -1.
func TabAtX(x, activeIdx int) int {
	pos := 0
	for i, w := range TabWidths(activeIdx) {
		if x >= pos && x < pos+w {
			return i
		}
		pos += w + lipgloss.Width(tabSeparator)
	}
	return -1
}

// RenderTabBar renders the single-row tab bar.
func RenderTabBar(activeIdx int, width int) string {
	t := theme.Active

	activeStyle := lipgloss.NewStyle().
		Foreground(t.TextPrimary).
		Background(t.SurfaceHover).
		Bold(true).
		Padding(0, 1)
	inactiveStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	keyStyle := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)
	padStyle := lipgloss.NewStyle().Background(t.Surface)

	parts := make([]string, 0, len(Tabs))
	for i, tab := range Tabs {
		if i == activeIdx {
			parts = append(parts, activeStyle.Render(tab.Name))
			continue
		}
		var b strings.Builder
		b.WriteString(padStyle.Render(" "))
		if tab.KeyPos >= 0 && tab.KeyPos < len(tab.Name) {
			b.WriteString(inactiveStyle.Render(tab.Name[:tab.KeyPos]))
			b.WriteString(dimStyle.Render("["))
			b.WriteString(keyStyle.Render(string(tab.Name[tab.KeyPos])))
			b.WriteString(dimStyle.Render("]"))
			b.WriteString(inactiveStyle.Render(tab.Name[tab.KeyPos+1:]))
		} else {
			b.WriteString(inactiveStyle.Render(tab.Name))
			b.WriteString(dimStyle.Render("["))
			b.WriteString(keyStyle.Render(string(tab.Key)))
			b.WriteString(dimStyle.Render("]"))
		}
		b.WriteString(padStyle.Render(" "))
		parts = append(parts, b.String())
	}

	row := strings.Join(parts, dimStyle.Render(tabSeparator))
	if gap := width - lipgloss.Width(row); gap > 0 {
		row += padStyle.Render(strings.Repeat(" ", gap))
	}
	return row
}

// TabIdxByKey returns the tab bound to key, or -1.
func TabIdxByKey(key rune) int {
	for i, tab := range Tabs {
		if tab.Key == key {
			return i
		}
	}
	return -1
}
