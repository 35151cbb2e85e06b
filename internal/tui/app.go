// Package tui is the interactive trace explorer.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/qiprof/internal/cli"
	"github.com/theirongolddev/qiprof/internal/config"
	"github.com/theirongolddev/qiprof/internal/graph"
	"github.com/theirongolddev/qiprof/internal/model"
	"github.com/theirongolddev/qiprof/internal/pipeline"
	"github.com/theirongolddev/qiprof/internal/selection"
	"github.com/theirongolddev/qiprof/internal/source"
	"github.com/theirongolddev/qiprof/internal/tui/components"
	"github.com/theirongolddev/qiprof/internal/tui/theme"
)

const (
	minTerminalWidth = 60
	maxContentWidth  = 200
	defaultTopN      = 500
	speedHistory     = 48
	msgBuffer        = 256
)

const (
	tabInsts = iota
	tabEdges
	tabLoops
)

// Options configures an App.
type Options struct {
	// Path is the trace being explored. It is shown in the header and
	// watched when Watch is set.
	Path string
	// Open returns a fresh source for Path. It is called for the first
	// ingestion and again on every reload.
	Open     func() (source.Source, error)
	Pipeline *pipeline.Pipeline

	IgnoreTermIDs bool
	Watch         bool
	// TopN caps the instantiation list, most expensive first.
	TopN int

	// FirstRun shows the setup form before the explorer. Answers are
	// applied to Config and saved.
	FirstRun   bool
	Config     config.Config
	ConfigPath string

	Logger *slog.Logger
}

type (
	stateMsg  pipeline.State
	reloadMsg struct{}
	errMsg    struct{ err error }
	graphMsg  struct {
		handle *pipeline.Handle
		ranked []model.InstIdx
		edges  int
	}
	loopsMsg struct {
		handle *pipeline.Handle
		search *graph.LoopSearch
	}
)

// App is the bubbletea model of the explorer.
type App struct {
	opts   Options
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	pipe    *pipeline.Pipeline
	sel     *selection.Machine
	sub     *pipeline.Subscription
	msgs    chan tea.Msg
	watcher *fileWatcher

	width     int
	height    int
	activeTab int
	showHelp  bool
	spinner   spinner.Model
	detail    viewport.Model

	state      pipeline.State
	speeds     []float64
	handle     *pipeline.Handle
	graphReady bool
	ranked     []model.InstIdx
	edgeCount  int
	edges      []model.EdgeIdx
	loops      *graph.LoopSearch
	searching  bool
	cursor     [3]int
	status     string
	err        error

	setup     *setupValues
	setupForm *huh.Form
}

// NewApp wires an explorer to opts.Pipeline. Call Close when done with it.
func NewApp(opts Options) App {
	if opts.TopN <= 0 {
		opts.TopN = defaultTopN
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Active.Accent)

	ctx, cancel := context.WithCancel(context.Background())
	a := App{
		opts:    opts,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		pipe:    opts.Pipeline,
		sel:     selection.New(nil, selection.WithIgnoreTermIDs(opts.IgnoreTermIDs)),
		msgs:    make(chan tea.Msg, msgBuffer),
		spinner: sp,
		detail:  viewport.New(0, 0),
	}

	msgs := a.msgs
	a.sub = a.pipe.Subscribe(func(st pipeline.State) {
		if st.Kind == pipeline.Parsing {
			select {
			case msgs <- stateMsg(st):
			default:
			}
			return
		}
		select {
		case msgs <- stateMsg(st):
		case <-ctx.Done():
		}
	})

	if opts.Watch && opts.Path != "" {
		w, err := newFileWatcher(opts.Path, func() {
			select {
			case msgs <- reloadMsg{}:
			default:
			}
		}, logger)
		if err != nil {
			logger.Warn("cannot watch trace", "file", opts.Path, "err", err)
		} else {
			a.watcher = w
		}
	}

	if opts.FirstRun {
		a.setup = newSetupValues(opts.Config)
		a.setupForm = newSetupForm(a.setup, a.configPath())
	}
	return a
}

// Close releases the subscription, the watcher and the running attempt.
func (a App) Close() {
	a.cancel()
	a.sub.Close()
	if a.watcher != nil {
		_ = a.watcher.Close()
	}
	a.pipe.Close()
}

// Run starts the explorer full screen and blocks until the user quits.
func Run(opts Options) error {
	app := NewApp(opts)
	defer app.Close()

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{
		a.spinner.Tick,
		waitForMsg(a.msgs),
		a.beginCmd(),
	}
	if a.setupForm != nil {
		cmds = append(cmds, a.setupForm.Init())
	}
	return tea.Batch(cmds...)
}

// busy reports whether something is in flight that the spinner stands for.
func (a App) busy() bool {
	return a.handle == nil && a.err == nil || a.handle != nil && !a.graphReady || a.searching
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		if a.setupForm != nil {
			a.setupForm = a.setupForm.WithWidth(msg.Width).WithHeight(msg.Height)
		}
		a.refreshDetail()
		return a, nil

	case stateMsg:
		return a.updateState(pipeline.State(msg))

	case reloadMsg:
		a.status = "trace changed, reloading"
		return a, tea.Batch(a.beginCmd(), waitForMsg(a.msgs))

	case errMsg:
		a.err = msg.err
		return a, nil

	case graphMsg:
		if msg.handle != a.handle {
			return a, nil
		}
		a.graphReady = true
		a.ranked = msg.ranked
		a.edgeCount = msg.edges
		a.refreshEdges()
		a.refreshDetail()
		return a, nil

	case loopsMsg:
		if msg.handle != a.handle {
			return a, nil
		}
		a.searching = false
		a.loops = msg.search
		var terms []string
		for _, l := range msg.search.Loops {
			terms = append(terms, l.GeneralizedTerms...)
		}
		a.sel.RecordMatchingLoopSearch(terms)
		a.cursor[tabLoops] = 0
		a.status = fmt.Sprintf("found %d matching loops", len(msg.search.Loops))
		a.refreshDetail()
		return a, nil

	case spinner.TickMsg:
		if !a.busy() {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	if a.setupForm != nil {
		return a.updateSetupForm(msg)
	}

	switch msg := msg.(type) {
	case tea.MouseMsg:
		return a.updateMouse(msg)
	case tea.KeyMsg:
		return a.updateKey(msg)
	}
	return a, nil
}

func (a App) updateState(st pipeline.State) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{waitForMsg(a.msgs)}
	if st.Attempt != a.pipe.Current() {
		return a, tea.Batch(cmds...)
	}

	a.state = st
	switch st.Kind {
	case pipeline.Idle:
		a.handle = nil
		a.graphReady = false
		a.ranked = nil
		a.edges = nil
		a.loops = nil
		a.searching = false
		a.speeds = nil
		a.cursor = [3]int{}
		a.err = nil
		a.sel.SetSource(nil)
		a.refreshDetail()
		cmds = append(cmds, a.spinner.Tick)
	case pipeline.Parsing:
		if st.Progress.Known {
			a.speeds = append(a.speeds, st.Progress.Speed)
			if len(a.speeds) > speedHistory {
				a.speeds = a.speeds[len(a.speeds)-speedHistory:]
			}
		}
	case pipeline.Ready:
		a.handle = st.Handle
		a.sel.SetSource(st.Handle)
		a.status = ""
		cmds = append(cmds, graphCmd(st.Handle, a.opts.TopN))
	case pipeline.Failed:
		a.err = st.Err
	}
	return a, tea.Batch(cmds...)
}

func (a App) updateSetupForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := a.setupForm.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		a.setupForm = f
	}

	switch a.setupForm.State {
	case huh.StateCompleted:
		cfg := a.opts.Config
		if err := a.setup.apply(&cfg); err != nil {
			a.status = err.Error()
		} else if err := config.SaveTo(a.configPath(), cfg); err != nil {
			a.status = "could not save config: " + err.Error()
		}
		a.opts.Config = cfg
		theme.SetActive(cfg.Appearance.Theme, lipgloss.ColorProfile())
		if _, err := a.sel.SetIgnoreTermIDs(cfg.Display.IgnoreTermIDs); err != nil {
			a.status = err.Error()
		}
		a.setupForm = nil
		a.refreshDetail()
		return a, nil
	case huh.StateAborted:
		a.setupForm = nil
		return a, nil
	}
	return a, cmd
}

func (a App) configPath() string {
	if a.opts.ConfigPath != "" {
		return a.opts.ConfigPath
	}
	return config.ConfigPath()
}

func (a App) updateMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if a.handle == nil || a.showHelp {
		return a, nil
	}
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		a.moveCursor(-1)
	case tea.MouseButtonWheelDown:
		a.moveCursor(1)
	case tea.MouseButtonLeft:
		if msg.Action == tea.MouseActionPress && msg.Y == 1 {
			if tab := components.TabAtX(msg.X, a.activeTab); tab >= 0 {
				a.setTab(tab)
			}
		}
	}
	return a, nil
}

func (a App) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	switch key {
	case "ctrl+c", "q":
		return a, tea.Quit
	case "?":
		a.showHelp = !a.showHelp
		return a, nil
	case "esc":
		a.showHelp = false
		return a, nil
	}
	if a.showHelp {
		return a, nil
	}

	switch key {
	case "c":
		if a.pipe.Cancel() {
			a.status = "cancelling, keeping what was parsed"
		}
		return a, nil
	case "r":
		a.status = "reloading"
		return a, a.beginCmd()
	}
	if a.handle == nil {
		return a, nil
	}

	switch key {
	case "tab":
		a.setTab((a.activeTab + 1) % len(components.Tabs))
		return a, nil
	case "shift+tab":
		a.setTab((a.activeTab + len(components.Tabs) - 1) % len(components.Tabs))
		return a, nil
	case "j", "down":
		a.moveCursor(1)
		return a, nil
	case "k", "up":
		a.moveCursor(-1)
		return a, nil
	case "g", "home":
		a.moveCursor(-a.listLen())
		return a, nil
	case "G", "end":
		a.moveCursor(a.listLen())
		return a, nil
	case "pgup", "pgdown":
		var cmd tea.Cmd
		a.detail, cmd = a.detail.Update(msg)
		return a, cmd
	}

	if len(msg.Runes) == 1 {
		if tab := components.TabIdxByKey(msg.Runes[0]); tab >= 0 {
			a.setTab(tab)
			return a, nil
		}
	}
	if !a.graphReady {
		return a, nil
	}

	switch key {
	case " ", "space":
		a.toggleCursor()
	case "enter":
		if a.activeTab == tabLoops {
			a.selectLoop()
		} else {
			a.toggleCursor()
		}
	case "e":
		if kind, id, ok := a.cursorItem(); ok {
			a.sel.ToggleExpanded(kind, id)
		}
	case "x":
		a.sel.DeselectAll()
	case "i":
		if _, err := a.sel.SetIgnoreTermIDs(!a.sel.IgnoreTermIDs()); err != nil {
			a.status = err.Error()
		}
	case "m":
		if !a.searching {
			a.searching = true
			a.status = "searching for matching loops"
			a.setTab(tabLoops)
			return a, tea.Batch(loopsCmd(a.handle), a.spinner.Tick)
		}
	default:
		return a, nil
	}
	a.refreshDetail()
	return a, nil
}

func (a *App) setTab(tab int) {
	a.activeTab = tab
	a.refreshEdges()
	a.refreshDetail()
}

func (a *App) listLen() int {
	switch a.activeTab {
	case tabInsts:
		return len(a.ranked)
	case tabEdges:
		return len(a.edges)
	case tabLoops:
		if a.loops != nil {
			return len(a.loops.Loops)
		}
	}
	return 0
}

func (a *App) moveCursor(delta int) {
	n := a.listLen()
	c := a.cursor[a.activeTab] + delta
	c = min(max(c, 0), max(n-1, 0))
	a.cursor[a.activeTab] = c
	if a.activeTab == tabInsts {
		a.refreshEdges()
	}
	a.refreshDetail()
}

// focus is the instantiation under the cursor of the instantiation list.
func (a *App) focus() (model.InstIdx, bool) {
	c := a.cursor[tabInsts]
	if c < 0 || c >= len(a.ranked) {
		return 0, false
	}
	return a.ranked[c], true
}

func (a *App) cursorItem() (selection.Kind, int, bool) {
	c := a.cursor[a.activeTab]
	switch a.activeTab {
	case tabInsts:
		if c < len(a.ranked) {
			return selection.Node, int(a.ranked[c]), true
		}
	case tabEdges:
		if c < len(a.edges) {
			return selection.Edge, int(a.edges[c]), true
		}
	}
	return 0, 0, false
}

func (a *App) toggleCursor() {
	kind, id, ok := a.cursorItem()
	if !ok {
		return
	}
	var err error
	if kind == selection.Node {
		_, err = a.sel.ToggleNode(model.InstIdx(id))
	} else {
		_, err = a.sel.ToggleEdge(model.EdgeIdx(id))
	}
	if err != nil {
		a.status = err.Error()
	}
}

func (a *App) selectLoop() {
	if a.loops == nil || a.cursor[tabLoops] >= len(a.loops.Loops) {
		return
	}
	loop := a.loops.Loops[a.cursor[tabLoops]]
	if _, err := a.sel.SelectMany(loop.Insts); err != nil {
		a.status = err.Error()
	} else {
		a.status = fmt.Sprintf("selected %d instantiations of the loop", len(loop.Insts))
	}
	a.setTab(tabInsts)
}

func (a *App) refreshEdges() {
	a.edges = nil
	if !a.graphReady {
		return
	}
	id, ok := a.focus()
	if !ok {
		return
	}
	ig := a.handle.EnsureGraph()
	a.edges = append(append(a.edges, ig.In(id)...), ig.Out(id)...)
	if a.cursor[tabEdges] >= len(a.edges) {
		a.cursor[tabEdges] = max(len(a.edges)-1, 0)
	}
}

// layout returns the widths of the list and detail cards and the height
// they share.
func (a App) layout() (listW, detailW, height int) {
	cw := min(a.width, maxContentWidth)
	listW = cw * 2 / 5
	detailW = cw - listW
	height = a.height - 3 - components.MetricRowHeight
	if a.notice() != "" {
		height--
	}
	return listW, detailW, max(height, 5)
}

func (a App) notice() string {
	if a.pipe == nil {
		return ""
	}
	return a.state.Notice(a.pipe.Limits())
}

func graphCmd(h *pipeline.Handle, topN int) tea.Cmd {
	return func() tea.Msg {
		ig := h.EnsureGraph()
		return graphMsg{handle: h, ranked: ig.ByCost(topN), edges: ig.EdgeCount()}
	}
}

func loopsCmd(h *pipeline.Handle) tea.Cmd {
	return func() tea.Msg {
		ig := h.EnsureGraph()
		ig.SearchMatchingLoops()
		return loopsMsg{handle: h, search: ig.LastSearch()}
	}
}

func (a App) beginCmd() tea.Cmd {
	open, pipe, ctx := a.opts.Open, a.pipe, a.ctx
	return func() tea.Msg {
		if open == nil {
			return errMsg{errors.New("no trace to open")}
		}
		src, err := open()
		if err != nil {
			return errMsg{fmt.Errorf("open trace: %w", err)}
		}
		pipe.Begin(ctx, src)
		return nil
	}
}

func waitForMsg(ch chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// ─── Views ──────────────────────────────────────────────────────

// View implements tea.Model.
func (a App) View() string {
	if a.width == 0 {
		return ""
	}
	if a.width < minTerminalWidth {
		return a.viewTooNarrow()
	}
	if a.setupForm != nil {
		return a.setupForm.View()
	}
	if a.showHelp {
		return a.viewHelp()
	}
	if a.handle == nil {
		return a.viewLoading()
	}
	return a.viewMain()
}

func (a App) viewTooNarrow() string {
	msg := fmt.Sprintf("\n  Terminal too narrow (%d cols)\n\n  qiprof needs at least %d columns.\n",
		a.width, minTerminalWidth)
	h := max(a.height, 5)
	return padHeight(truncateHeight(msg, h), h)
}

func phaseLabel(k pipeline.Kind) string {
	switch k {
	case pipeline.Idle:
		return "Opening trace"
	case pipeline.ReadingRaw:
		return "Reading trace into memory"
	case pipeline.Parsing:
		return "Parsing"
	case pipeline.Parsed:
		return "Parsed"
	case pipeline.Deriving:
		return "Building instantiation graph"
	default:
		return k.String()
	}
}

func (a App) viewLoading() string {
	t := theme.Active
	cardW := min(max(a.width-10, 40), 72)
	inner := components.CardInnerWidth(cardW)

	titleStyle := lipgloss.NewStyle().Foreground(t.Accent).Bold(true)
	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	valueStyle := lipgloss.NewStyle().Foreground(t.TextPrimary)
	hintStyle := lipgloss.NewStyle().Foreground(t.TextDim)

	var b strings.Builder
	b.WriteString(titleStyle.Render("qiprof"))
	b.WriteString(labelStyle.Render("  " + a.opts.Path))
	b.WriteString("\n\n")

	if a.err != nil {
		errStyle := lipgloss.NewStyle().Foreground(t.Error).Width(inner)
		b.WriteString(errStyle.Render(a.err.Error()))
		b.WriteString("\n\n")
		b.WriteString(hintStyle.Render("[r] retry  [q] quit"))
		return a.centered(components.ContentCard("", b.String(), cardW, true))
	}

	b.WriteString(a.spinner.View())
	b.WriteString(" ")
	b.WriteString(valueStyle.Render(phaseLabel(a.state.Kind)))
	b.WriteString("\n\n")

	pr := a.state.Progress
	if f := pr.Fraction(); f >= 0 {
		b.WriteString(components.ProgressBar(f, inner-5))
		b.WriteString("\n")
	}
	read := cli.FormatBytes(pr.BytesRead)
	if pr.FileSize > 0 {
		read += " / " + cli.FormatBytes(pr.FileSize)
	}
	b.WriteString(cli.RenderKeyValue("Read", read))
	b.WriteString("\n")
	b.WriteString(cli.RenderKeyValue("Lines", cli.FormatNumber(pr.LinesRead)))
	b.WriteString("\n")
	speed := cli.FormatSpeed(pr.Speed, pr.Known)
	if left, ok := pr.Remaining(); ok {
		speed += "  (" + cli.FormatDuration(left) + " left)"
	}
	b.WriteString(cli.RenderKeyValue("Speed", speed))
	if len(a.speeds) > 1 {
		b.WriteString("\n")
		b.WriteString(components.Sparkline(a.speeds, t.Accent))
	}
	b.WriteString("\n\n")
	b.WriteString(hintStyle.Render("[c] stop and keep partial results  [q] quit"))

	return a.centered(components.ContentCard("", b.String(), cardW, true))
}

func (a App) centered(s string) string {
	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, s,
		lipgloss.WithWhitespaceBackground(theme.Active.Background))
}

func (a App) viewHelp() string {
	t := theme.Active
	keyStyle := lipgloss.NewStyle().Foreground(t.Accent).Bold(true).Width(14)
	descStyle := lipgloss.NewStyle().Foreground(t.TextPrimary)

	bindings := []struct{ key, desc string }{
		{"n d l", "Instantiations, Dependencies, Loops"},
		{"tab", "Next tab"},
		{"j k", "Move cursor"},
		{"g G", "First, last row"},
		{"space", "Select or deselect the row"},
		{"enter", "Select row (Loops: select the loop's instantiations)"},
		{"e", "Expand or collapse the selected row"},
		{"x", "Clear the selection"},
		{"i", "Show or hide #id term prefixes"},
		{"m", "Search for matching loops"},
		{"pgup pgdn", "Scroll details"},
		{"c", "Stop parsing, keep partial results"},
		{"r", "Reload the trace"},
		{"?", "Toggle this help"},
		{"q", "Quit"},
	}
	var b strings.Builder
	for _, kb := range bindings {
		b.WriteString(keyStyle.Render(kb.key))
		b.WriteString(descStyle.Render(kb.desc))
		b.WriteString("\n")
	}
	card := components.ContentCard("Keys", strings.TrimRight(b.String(), "\n"), min(a.width-4, 72), true)
	return a.centered(card)
}

func (a App) viewMain() string {
	t := theme.Active
	cw := min(a.width, maxContentWidth)

	var sections []string
	sections = append(sections, a.viewHeader(cw))
	sections = append(sections, components.RenderTabBar(a.activeTab, cw))
	if n := a.notice(); n != "" {
		sections = append(sections, lipgloss.NewStyle().Foreground(t.Warning).Render(" "+n))
	}
	sections = append(sections, components.MetricCardRow(a.metrics(), cw))

	listW, detailW, h := a.layout()
	list := components.ContentCard(a.listTitle(), a.viewList(listW, h-3), listW, true)
	detail := components.ContentCard(a.detailTitle(), a.detail.View(), detailW, false)
	sections = append(sections, truncateHeight(components.CardRow([]string{list, detail}), h))

	body := strings.Join(sections, "\n")
	body = padHeight(truncateHeight(body, a.height-1), a.height-1)
	body = fillLinesWithBackground(body, cw, t.Background)
	return body + "\n" + components.RenderStatusBar(cw, a.hints(), a.statusText())
}

func (a App) viewHeader(width int) string {
	t := theme.Active
	title := lipgloss.NewStyle().Foreground(t.Accent).Bold(true).Render(" qiprof ")
	file := lipgloss.NewStyle().Foreground(t.TextPrimary).Render(a.opts.Path)
	right := ""
	if a.handle != nil {
		right = lipgloss.NewStyle().Foreground(t.TextMuted).Render(cli.FormatBytes(a.handle.FileSize()) + " ")
	}
	gap := max(width-lipgloss.Width(title)-lipgloss.Width(file)-lipgloss.Width(right), 1)
	return title + file + strings.Repeat(" ", gap) + right
}

func (a App) metrics() []components.Metric {
	s := a.handle.Summary()
	loops := "press m"
	if a.searching {
		loops = "searching"
	} else if a.loops != nil {
		loops = cli.FormatCount(int64(len(a.loops.Loops)))
	}
	edges := "…"
	if a.graphReady {
		edges = cli.FormatCount(int64(a.edgeCount))
	}
	return []components.Metric{
		{Label: "Instantiations", Value: cli.FormatCount(int64(s.Instantiations))},
		{Label: "Quantifiers", Value: cli.FormatCount(int64(s.Quantifiers))},
		{Label: "Terms", Value: cli.FormatCount(int64(s.Terms))},
		{Label: "Dependencies", Value: edges},
		{Label: "Matching loops", Value: loops},
	}
}

func (a App) listTitle() string {
	switch a.activeTab {
	case tabInsts:
		return "Most expensive instantiations"
	case tabEdges:
		if id, ok := a.focus(); ok {
			return fmt.Sprintf("Dependencies of #%d", id)
		}
		return "Dependencies"
	default:
		return "Matching loops"
	}
}

func (a App) detailTitle() string {
	switch a.activeTab {
	case tabInsts:
		return fmt.Sprintf("Selected instantiations (%d)", len(a.sel.NodeIDs()))
	case tabEdges:
		return fmt.Sprintf("Selected dependencies (%d)", len(a.sel.EdgeIDs()))
	default:
		return "Loop"
	}
}

func (a App) viewList(width, rows int) string {
	t := theme.Active
	muted := lipgloss.NewStyle().Foreground(t.TextMuted)
	if !a.graphReady {
		return a.spinner.View() + muted.Render(" building instantiation graph")
	}
	if a.activeTab == tabLoops && a.loops == nil {
		if a.searching {
			return a.spinner.View() + muted.Render(" searching")
		}
		return muted.Render("Press m to search for matching loops.")
	}

	n := a.listLen()
	if n == 0 {
		return muted.Render("Nothing to show.")
	}
	rows = max(rows, 1)
	cur := a.cursor[a.activeTab]
	start := min(max(cur-rows/2, 0), max(n-rows, 0))
	end := min(start+rows, n)

	inner := components.CardInnerWidth(width)
	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		line := truncStr(a.row(i), inner)
		style := lipgloss.NewStyle().Foreground(t.TextPrimary).Width(inner)
		if i == cur {
			style = style.Background(t.SurfaceHover).Bold(true)
		}
		lines = append(lines, style.Render(line))
	}
	return strings.Join(lines, "\n")
}

func (a App) row(i int) string {
	switch a.activeTab {
	case tabInsts:
		id := a.ranked[i]
		mark := a.marker(selection.Node, int(id))
		cost := a.handle.EnsureGraph().Cost(id)
		return fmt.Sprintf("%s #%-6d %8.1f  %s", mark, id, cost, a.quantName(id))
	case tabEdges:
		eid := a.edges[i]
		e, _ := a.handle.EnsureGraph().Edge(eid)
		mark := a.marker(selection.Edge, int(eid))
		focus, _ := a.focus()
		if e.To == focus {
			return fmt.Sprintf("%s ← #%d %s (%s)", mark, e.From, a.quantName(e.From), e.Blame.Kind)
		}
		return fmt.Sprintf("%s → #%d %s (%s)", mark, e.To, a.quantName(e.To), e.Blame.Kind)
	default:
		l := a.loops.Loops[i]
		return fmt.Sprintf("%s  ×%d", strings.Join(l.Quantifiers, " → "), l.Repetitions)
	}
}

func (a App) marker(kind selection.Kind, id int) string {
	expanded, ok := a.sel.Expanded(kind, id)
	switch {
	case !ok:
		return " "
	case expanded:
		return "▾"
	default:
		return "●"
	}
}

func (a App) quantName(id model.InstIdx) string {
	tr := a.handle.Trace()
	q := tr.QuantOf(id)
	if q < 0 || int(q) >= len(tr.Quantifiers) {
		return "?"
	}
	return tr.Quantifiers[q].Name
}

// refreshDetail re-renders the detail pane for the active tab.
func (a *App) refreshDetail() {
	if a.width == 0 {
		return
	}
	_, detailW, h := a.layout()
	a.detail.Width = components.CardInnerWidth(detailW)
	a.detail.Height = max(h-3, 1)
	a.detail.SetContent(a.detailContent(a.detail.Width))
}

func (a App) detailContent(width int) string {
	t := theme.Active
	muted := lipgloss.NewStyle().Foreground(t.TextMuted)
	wrap := lipgloss.NewStyle().Width(width)
	if a.handle == nil || !a.graphReady {
		return ""
	}

	var b strings.Builder
	switch a.activeTab {
	case tabInsts:
		nodes := a.sel.Nodes()
		if len(nodes) == 0 {
			return muted.Render("Select rows with space to see their details.")
		}
		for _, n := range nodes {
			writeInstInfo(&b, n, wrap)
		}
	case tabEdges:
		edges := a.sel.Edges()
		if len(edges) == 0 {
			return muted.Render("Select dependencies with space to see why they exist.")
		}
		for _, e := range edges {
			writeEdgeInfo(&b, e, wrap)
		}
	case tabLoops:
		if a.loops == nil || a.cursor[tabLoops] >= len(a.loops.Loops) {
			if a.loops != nil && a.loops.CyclesTimedOut {
				return muted.Render("The cycle search timed out before any loop was confirmed.")
			}
			return muted.Render("No loop under the cursor.")
		}
		writeLoop(&b, a.loops.Loops[a.cursor[tabLoops]], a.loops, wrap)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeInstInfo(b *strings.Builder, n selection.NodeSelection, wrap lipgloss.Style) {
	t := theme.Active
	head := lipgloss.NewStyle().Foreground(t.Selected).Bold(true)
	quant := lipgloss.NewStyle().Foreground(t.Quantifier)
	cost := lipgloss.NewStyle().Foreground(t.Cost)
	label := lipgloss.NewStyle().Foreground(t.TextMuted)
	term := lipgloss.NewStyle().Foreground(t.Term)

	d := n.Detail
	marker := "▸"
	if n.Expanded {
		marker = "▾"
	}
	fmt.Fprintf(b, "%s %s %s %s\n", head.Render(marker), head.Render(fmt.Sprintf("#%d", d.Inst)),
		quant.Render(d.QuantName), cost.Render(fmt.Sprintf("cost %.1f", d.Cost)))
	if !n.Expanded {
		return
	}
	section := func(name string, items []string) {
		if len(items) == 0 {
			return
		}
		b.WriteString(label.Render("  " + name))
		b.WriteString("\n")
		for _, s := range items {
			b.WriteString(wrap.Render(term.Render("    " + s)))
			b.WriteString("\n")
		}
	}
	if d.Z3Gen != nil {
		b.WriteString(label.Render(fmt.Sprintf("  generation %d", *d.Z3Gen)))
		b.WriteString("\n")
	}
	section("formula", []string{d.Formula})
	section("bound terms", d.BoundTerms)
	section("blamed terms", d.BlamedTerms)
	section("equalities", d.EqualityExpls)
	section("yields", d.YieldTerms)
	if d.ResultingTerm != "" {
		section("resulting term", []string{d.ResultingTerm})
	}
	b.WriteString("\n")
}

func writeEdgeInfo(b *strings.Builder, e selection.EdgeSelection, wrap lipgloss.Style) {
	t := theme.Active
	head := lipgloss.NewStyle().Foreground(t.Selected).Bold(true)
	label := lipgloss.NewStyle().Foreground(t.TextMuted)
	term := lipgloss.NewStyle().Foreground(t.Term)

	d := e.Detail
	fmt.Fprintf(b, "%s #%d → #%d %s\n", head.Render(fmt.Sprintf("edge %d", d.Edge)), d.From, d.To, label.Render("("+d.Kind.String()+")"))
	if e.Expanded && d.BlameTerm != "" {
		b.WriteString(wrap.Render(term.Render("    " + d.BlameTerm)))
		b.WriteString("\n")
	}
}

func writeLoop(b *strings.Builder, l graph.MatchingLoop, s *graph.LoopSearch, wrap lipgloss.Style) {
	t := theme.Active
	quant := lipgloss.NewStyle().Foreground(t.Quantifier).Bold(true)
	label := lipgloss.NewStyle().Foreground(t.TextMuted)
	term := lipgloss.NewStyle().Foreground(t.Term)

	b.WriteString(wrap.Render(quant.Render(strings.Join(l.Quantifiers, " → "))))
	b.WriteString("\n")
	b.WriteString(label.Render(fmt.Sprintf("%d repetitions over %d instantiations", l.Repetitions, len(l.Insts))))
	b.WriteString("\n\n")
	b.WriteString(label.Render("generalized trigger terms"))
	b.WriteString("\n")
	for _, g := range l.GeneralizedTerms {
		b.WriteString(wrap.Render(term.Render("  " + g)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(label.Render(fmt.Sprintf("%d cycles examined in %s", s.CyclesExamined, cli.FormatDuration(s.Duration))))
	if s.CyclesTruncated {
		b.WriteString(label.Render(", search truncated"))
	}
	b.WriteString("\n")
	b.WriteString(label.Render("enter selects the loop's instantiations"))
}

func (a App) hints() string {
	switch a.activeTab {
	case tabLoops:
		return "[m]search [enter]select [?]help [q]uit"
	default:
		return "[space]select [e]xpand [x]clear [i]ds [?]help [q]uit"
	}
}

func (a App) statusText() string {
	ids := "ids on"
	if a.sel.IgnoreTermIDs() {
		ids = "ids off"
	}
	parts := []string{
		fmt.Sprintf("%d selected", len(a.sel.NodeIDs())+len(a.sel.EdgeIDs())),
		ids,
	}
	if a.status != "" {
		parts = append([]string{a.status}, parts...)
	}
	return strings.Join(parts, " · ")
}

// ─── Layout helpers ─────────────────────────────────────────────

func truncStr(s string, limit int) string {
	runes := []rune(s)
	if limit <= 0 || len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

func truncateHeight(s string, limit int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= limit {
		return s
	}
	return strings.Join(lines[:max(limit, 0)], "\n")
}

func padHeight(s string, h int) string {
	lines := strings.Split(s, "\n")
	if len(lines) >= h {
		return s
	}
	return s + strings.Repeat("\n", h-len(lines))
}

// fillLinesWithBackground pads each line to width w with background color.
func fillLinesWithBackground(s string, w int, bg lipgloss.Color) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = lipgloss.PlaceHorizontal(w, lipgloss.Left, line, lipgloss.WithWhitespaceBackground(bg))
	}
	return strings.Join(lines, "\n")
}
