package tui

import (
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/theirongolddev/qiprof/internal/pipeline"
	"github.com/theirongolddev/qiprof/internal/selection"
	"github.com/theirongolddev/qiprof/internal/source"
	"github.com/theirongolddev/qiprof/internal/testutil"
	"github.com/theirongolddev/qiprof/internal/tui/components"
)

func update(t *testing.T, a App, msg tea.Msg) App {
	t.Helper()
	m, _ := a.Update(msg)
	return m.(App)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "space":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newTestApp(t *testing.T, text string) App {
	t.Helper()
	a := NewApp(Options{
		Path: "loop.log",
		Open: func() (source.Source, error) {
			return source.NewBytes("loop.log", []byte(text)), nil
		},
		Pipeline: pipeline.New(pipeline.WithLogger(slog.New(slog.DiscardHandler))),
		Logger:   slog.New(slog.DiscardHandler),
	})
	t.Cleanup(a.Close)
	return update(t, a, tea.WindowSizeMsg{Width: 140, Height: 40})
}

// pump feeds pipeline states to the app until done holds.
func pump(t *testing.T, a App, done func(App) bool) App {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !done(a) {
		select {
		case msg := <-a.msgs:
			a = update(t, a, msg)
		case <-deadline:
			t.Fatalf("timed out; last state %v", a.state.Kind)
		}
	}
	return a
}

// loaded returns an app that has ingested text and built its graph.
func loaded(t *testing.T, text string) App {
	t.Helper()
	a := newTestApp(t, text)
	if msg := a.beginCmd()(); msg != nil {
		a = update(t, a, msg)
	}
	a = pump(t, a, func(a App) bool { return a.handle != nil })
	return update(t, a, graphCmd(a.handle, defaultTopN)())
}

func TestApp_LoadsTrace(t *testing.T) {
	a := loaded(t, testutil.LoopTrace(5))

	if a.state.Kind != pipeline.Ready {
		t.Fatalf("state = %v, want ready", a.state.Kind)
	}
	if !a.graphReady || len(a.ranked) != 5 {
		t.Fatalf("graphReady=%v ranked=%d, want 5", a.graphReady, len(a.ranked))
	}
	if a.edgeCount != 4 {
		t.Errorf("edgeCount = %d, want 4", a.edgeCount)
	}
	view := a.View()
	for _, want := range []string{"Instantiations", "ax_fg", "loop.log"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestApp_LoadingView(t *testing.T) {
	a := newTestApp(t, testutil.LoopTrace(1))
	view := a.View()
	if !strings.Contains(view, "Opening trace") || !strings.Contains(view, "[c]") {
		t.Errorf("loading view = %q", view)
	}
}

func TestApp_ToggleSelection(t *testing.T) {
	a := loaded(t, testutil.LoopTrace(5))
	first := a.ranked[0]

	a = update(t, a, key("space"))
	if got := a.sel.NodeIDs(); len(got) != 1 || got[0] != first {
		t.Fatalf("NodeIDs = %v, want [%d]", got, first)
	}
	if exp, ok := a.sel.Expanded(selection.Node, int(first)); !ok || !exp {
		t.Error("newly selected node should be expanded")
	}

	a = update(t, a, key("e"))
	if exp, _ := a.sel.Expanded(selection.Node, int(first)); exp {
		t.Error("e should collapse the node under the cursor")
	}

	a = update(t, a, key("space"))
	if n := len(a.sel.NodeIDs()); n != 0 {
		t.Errorf("second toggle left %d nodes selected", n)
	}
}

func TestApp_FocusMovesToNewestNode(t *testing.T) {
	a := loaded(t, testutil.LoopTrace(5))
	first, second := a.ranked[0], a.ranked[1]

	a = update(t, a, key("space"))
	a = update(t, a, key("j"))
	a = update(t, a, key("space"))

	if exp, _ := a.sel.Expanded(selection.Node, int(first)); exp {
		t.Error("first node still expanded after selecting a second")
	}
	if exp, _ := a.sel.Expanded(selection.Node, int(second)); !exp {
		t.Error("second node not expanded")
	}
	a = update(t, a, key("x"))
	if len(a.sel.NodeIDs()) != 0 {
		t.Error("x did not clear the selection")
	}
}

func TestApp_ToggleTermIDs(t *testing.T) {
	a := loaded(t, testutil.LoopTrace(3))
	a = update(t, a, key("space"))
	before := a.sel.Nodes()[0].Detail.Formula

	a = update(t, a, key("i"))
	if !a.sel.IgnoreTermIDs() {
		t.Fatal("i did not switch term ids off")
	}
	after := a.sel.Nodes()[0].Detail.Formula
	if strings.Contains(after, "#") || before == after {
		t.Errorf("formula not re-rendered: before %q after %q", before, after)
	}
}

func TestApp_DependenciesTab(t *testing.T) {
	a := loaded(t, testutil.LoopTrace(5))
	a = update(t, a, key("d"))
	if a.activeTab != tabEdges {
		t.Fatalf("activeTab = %d, want %d", a.activeTab, tabEdges)
	}
	if len(a.edges) == 0 {
		t.Fatal("no edges listed for the focused instantiation")
	}
	a = update(t, a, key("space"))
	if len(a.sel.EdgeIDs()) != 1 {
		t.Errorf("EdgeIDs = %v, want one edge", a.sel.EdgeIDs())
	}
	if len(a.sel.NodeIDs()) != 0 {
		t.Error("selecting an edge touched the node selection")
	}
}

func TestApp_SelectLoopInstantiations(t *testing.T) {
	a := loaded(t, testutil.LoopTrace(5))

	m, cmd := a.Update(key("m"))
	a = m.(App)
	if !a.searching || cmd == nil || a.activeTab != tabLoops {
		t.Fatalf("m: searching=%v tab=%d", a.searching, a.activeTab)
	}
	a = update(t, a, loopsCmd(a.handle)())
	if a.loops == nil || len(a.loops.Loops) != 1 {
		t.Fatalf("loops = %+v, want one", a.loops)
	}
	if len(a.sel.GeneralizedTerms()) == 0 {
		t.Error("loop search not recorded in the selection")
	}

	want := a.loops.Loops[0].Insts
	a = update(t, a, key("enter"))
	if a.activeTab != tabInsts {
		t.Errorf("activeTab = %d, want instantiations", a.activeTab)
	}
	if got := a.sel.NodeIDs(); !slices.Equal(got, want) {
		t.Errorf("NodeIDs = %v, want %v", got, want)
	}
	for _, id := range want {
		if exp, _ := a.sel.Expanded(selection.Node, int(id)); exp {
			t.Errorf("loop instantiation %d selected expanded", id)
		}
	}
}

func TestApp_ReloadResetsState(t *testing.T) {
	a := loaded(t, testutil.LoopTrace(5))
	a = update(t, a, key("space"))
	old := a.handle

	m, cmd := a.Update(key("r"))
	a = m.(App)
	if cmd == nil {
		t.Fatal("r returned no command")
	}
	if msg := a.beginCmd()(); msg != nil {
		a = update(t, a, msg)
	}
	a = pump(t, a, func(a App) bool { return a.handle != nil && a.handle != old })

	if len(a.sel.NodeIDs()) != 0 {
		t.Error("selection survived a reload")
	}
	if a.graphReady {
		t.Error("graph marked ready before it was built for the new handle")
	}
	stale := graphCmd(old, defaultTopN)()
	a = update(t, a, stale)
	if a.graphReady {
		t.Error("graph message for the old handle was applied")
	}
}

func TestApp_MouseClickSwitchesTab(t *testing.T) {
	a := loaded(t, testutil.LoopTrace(2))
	widths := components.TabWidths(a.activeTab)
	x := widths[0] + 1 + widths[1]/2

	a = update(t, a, tea.MouseMsg{X: x, Y: 1, Button: tea.MouseButtonLeft, Action: tea.MouseActionPress})
	if a.activeTab != tabEdges {
		t.Errorf("activeTab = %d, want %d", a.activeTab, tabEdges)
	}
}

func TestApp_FailedTrace(t *testing.T) {
	a := newTestApp(t, "[mk-app] #1 \xff\n")
	if msg := a.beginCmd()(); msg != nil {
		a = update(t, a, msg)
	}
	a = pump(t, a, func(a App) bool { return a.err != nil })
	if !strings.Contains(a.View(), "[r] retry") {
		t.Error("failure view lacks retry hint")
	}
}

func TestApp_TooNarrow(t *testing.T) {
	a := newTestApp(t, testutil.LoopTrace(1))
	a = update(t, a, tea.WindowSizeMsg{Width: 40, Height: 10})
	if !strings.Contains(a.View(), "too narrow") {
		t.Error("narrow terminal not reported")
	}
}

func TestApp_HelpToggle(t *testing.T) {
	a := loaded(t, testutil.LoopTrace(2))
	a = update(t, a, key("?"))
	if !a.showHelp || !strings.Contains(a.View(), "matching loops") {
		t.Fatal("help not shown")
	}
	a = update(t, a, key("?"))
	if a.showHelp {
		t.Error("help not dismissed")
	}
}
