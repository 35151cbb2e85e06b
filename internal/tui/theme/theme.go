// Package theme holds the color palettes of the qiprof explorer.
package theme

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme maps the explorer's color roles to concrete colors.
type Theme struct {
	Name         string
	Background   lipgloss.Color
	Surface      lipgloss.Color // cards and panels
	SurfaceHover lipgloss.Color // cursor row
	Border       lipgloss.Color
	BorderAccent lipgloss.Color // focused card
	TextDim      lipgloss.Color
	TextMuted    lipgloss.Color
	TextPrimary  lipgloss.Color
	Accent       lipgloss.Color
	AccentBright lipgloss.Color
	Selected     lipgloss.Color // marker for selected nodes and edges
	Warning      lipgloss.Color // partial-result notices
	Error        lipgloss.Color
	Term         lipgloss.Color // rendered terms
	Quantifier   lipgloss.Color
	Cost         lipgloss.Color
}

// Active is the palette every renderer reads.
var Active = FlexokiDark

var FlexokiDark = Theme{
	Name:         "flexoki-dark",
	Background:   lipgloss.Color("#100F0F"),
	Surface:      lipgloss.Color("#1C1B1A"),
	SurfaceHover: lipgloss.Color("#282726"),
	Border:       lipgloss.Color("#403E3C"),
	BorderAccent: lipgloss.Color("#3AA99F"),
	TextDim:      lipgloss.Color("#575653"),
	TextMuted:    lipgloss.Color("#878580"),
	TextPrimary:  lipgloss.Color("#FFFCF0"),
	Accent:       lipgloss.Color("#3AA99F"),
	AccentBright: lipgloss.Color("#5BC8BE"),
	Selected:     lipgloss.Color("#879A39"),
	Warning:      lipgloss.Color("#DA702C"),
	Error:        lipgloss.Color("#D14D41"),
	Term:         lipgloss.Color("#4385BE"),
	Quantifier:   lipgloss.Color("#CE5D97"),
	Cost:         lipgloss.Color("#D0A215"),
}

var CatppuccinMocha = Theme{
	Name:         "catppuccin-mocha",
	Background:   lipgloss.Color("#1E1E2E"),
	Surface:      lipgloss.Color("#313244"),
	SurfaceHover: lipgloss.Color("#45475A"),
	Border:       lipgloss.Color("#585B70"),
	BorderAccent: lipgloss.Color("#89B4FA"),
	TextDim:      lipgloss.Color("#6C7086"),
	TextMuted:    lipgloss.Color("#A6ADC8"),
	TextPrimary:  lipgloss.Color("#CDD6F4"),
	Accent:       lipgloss.Color("#89B4FA"),
	AccentBright: lipgloss.Color("#B4D0FB"),
	Selected:     lipgloss.Color("#A6E3A1"),
	Warning:      lipgloss.Color("#FAB387"),
	Error:        lipgloss.Color("#F38BA8"),
	Term:         lipgloss.Color("#94E2D5"),
	Quantifier:   lipgloss.Color("#F5C2E7"),
	Cost:         lipgloss.Color("#F9E2AF"),
}

// Terminal sticks to the 16 ANSI colors.
var Terminal = Theme{
	Name:         "terminal",
	Background:   lipgloss.Color("0"),
	Surface:      lipgloss.Color("0"),
	SurfaceHover: lipgloss.Color("8"),
	Border:       lipgloss.Color("8"),
	BorderAccent: lipgloss.Color("6"),
	TextDim:      lipgloss.Color("8"),
	TextMuted:    lipgloss.Color("7"),
	TextPrimary:  lipgloss.Color("15"),
	Accent:       lipgloss.Color("6"),
	AccentBright: lipgloss.Color("14"),
	Selected:     lipgloss.Color("2"),
	Warning:      lipgloss.Color("3"),
	Error:        lipgloss.Color("1"),
	Term:         lipgloss.Color("4"),
	Quantifier:   lipgloss.Color("5"),
	Cost:         lipgloss.Color("11"),
}

// All lists the selectable palettes.
var All = []Theme{FlexokiDark, CatppuccinMocha, Terminal}

// Names returns the names of All, in order.
func Names() []string {
	names := make([]string, len(All))
	for i, t := range All {
		names[i] = t.Name
	}
	return names
}

// ByName returns the named palette and whether it exists. Unknown names
// fall back to FlexokiDark.
func ByName(name string) (Theme, bool) {
	for _, t := range All {
		if t.Name == name {
			return t, true
		}
	}
	return FlexokiDark, false
}

// SetActive selects the named palette for the given color profile. Terminals
// that cannot show true color or 256 colors get the ANSI palette whatever
// was asked for.
func SetActive(name string, profile termenv.Profile) {
	t, _ := ByName(name)
	if profile == termenv.ANSI || profile == termenv.Ascii {
		t = Terminal
	}
	Active = t
}
