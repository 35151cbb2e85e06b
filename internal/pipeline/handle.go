package pipeline

import (
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/theirongolddev/qiprof/internal/graph"
	"github.com/theirongolddev/qiprof/internal/model"
	"github.com/theirongolddev/qiprof/internal/source"
)

// Handle is a parsed trace plus everything derived from it on demand. The
// trace is never modified after construction, so a Handle may be shared
// freely between goroutines.
type Handle struct {
	name      string
	size      int64
	outcome   source.Outcome
	cancelled bool
	trace     *model.Trace
	opts      graph.Options

	builds atomic.Int64
	group  singleflight.Group
	graph  atomic.Pointer[graph.InstGraph]
}

// NewHandle wraps a finished parse.
func NewHandle(name string, size int64, tr *model.Trace, outcome source.Outcome, cancelled bool, opts graph.Options) *Handle {
	return &Handle{
		name:      name,
		size:      size,
		outcome:   outcome,
		cancelled: cancelled,
		trace:     tr,
		opts:      opts,
	}
}

func (h *Handle) FileName() string        { return h.name }
func (h *Handle) FileSize() int64         { return h.size }
func (h *Handle) Outcome() source.Outcome { return h.outcome }
func (h *Handle) TimedOut() bool          { return h.outcome == source.TimedOut }
func (h *Handle) Cancelled() bool         { return h.cancelled }
func (h *Handle) Trace() *model.Trace     { return h.trace }

// EnsureGraph returns the instantiation graph, building it on first use.
// Concurrent callers share a single build.
func (h *Handle) EnsureGraph() *graph.InstGraph {
	if g := h.graph.Load(); g != nil {
		return g
	}
	v, _, _ := h.group.Do("graph", func() (any, error) {
		if g := h.graph.Load(); g != nil {
			return g, nil
		}
		h.builds.Add(1)
		g := graph.Build(h.trace, h.opts)
		h.graph.Store(g)
		return g, nil
	})
	return v.(*graph.InstGraph)
}

// GraphLoaded reports whether EnsureGraph has completed.
func (h *Handle) GraphLoaded() bool { return h.graph.Load() != nil }

// MatchingLoopCount returns the cached loop count, if a search has run.
func (h *Handle) MatchingLoopCount() (int, bool) {
	g := h.graph.Load()
	if g == nil {
		return 0, false
	}
	return g.MatchingLoopCount()
}

// SearchMatchingLoops reruns the loop search. It does nothing and returns
// false when the graph has not been built yet.
func (h *Handle) SearchMatchingLoops() bool {
	g := h.graph.Load()
	if g == nil {
		return false
	}
	g.SearchMatchingLoops()
	return true
}

// MatchingLoops returns the loops from the last search.
func (h *Handle) MatchingLoops() []graph.MatchingLoop {
	g := h.graph.Load()
	if g == nil {
		return nil
	}
	return g.MatchingLoops()
}

// NodeDetail renders one instantiation.
func (h *Handle) NodeDetail(id model.InstIdx, ignoreTermIDs bool) (model.InstInfo, error) {
	return h.EnsureGraph().NodeDetail(id, ignoreTermIDs)
}

// EdgeDetail renders one dependency edge.
func (h *Handle) EdgeDetail(id model.EdgeIdx, ignoreTermIDs bool) (model.EdgeInfo, error) {
	return h.EnsureGraph().EdgeDetail(id, ignoreTermIDs)
}

// Summary digests the handle for listings and the summary cache.
func (h *Handle) Summary() model.Summary {
	s := model.Summarize(h.name, h.size, h.trace)
	s.TimedOut = h.TimedOut()
	s.Cancelled = h.cancelled
	if n, ok := h.MatchingLoopCount(); ok {
		s.MatchingLoops = &n
	}
	return s
}
