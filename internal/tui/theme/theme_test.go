package theme

import (
	"testing"

	"github.com/muesli/termenv"
)

func TestSetActive(t *testing.T) {
	defer func() { Active = FlexokiDark }()

	tests := []struct {
		name    string
		profile termenv.Profile
		want    string
	}{
		{"catppuccin-mocha", termenv.TrueColor, "catppuccin-mocha"},
		{"catppuccin-mocha", termenv.ANSI256, "catppuccin-mocha"},
		{"catppuccin-mocha", termenv.ANSI, "terminal"},
		{"no-such-theme", termenv.TrueColor, "flexoki-dark"},
	}
	for _, tt := range tests {
		SetActive(tt.name, tt.profile)
		if Active.Name != tt.want {
			t.Errorf("SetActive(%q, %v) -> %q, want %q", tt.name, tt.profile, Active.Name, tt.want)
		}
	}
}

func TestNamesMatchAll(t *testing.T) {
	names := Names()
	for i, n := range names {
		if _, ok := ByName(n); !ok {
			t.Errorf("ByName(%q) not found", n)
		}
		if All[i].Name != n {
			t.Errorf("Names()[%d] = %q, want %q", i, n, All[i].Name)
		}
	}
}
