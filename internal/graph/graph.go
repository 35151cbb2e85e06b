// Package graph derives the instantiation dependency graph from a parsed
// trace and answers detail and matching-loop queries over it.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/theirongolddev/qiprof/internal/model"
)

var (
	ErrUnknownNode = errors.New("unknown instantiation")
	ErrUnknownEdge = errors.New("unknown edge")
)

// Options tunes derivation and matching-loop search.
type Options struct {
	// MinRepetitions is how many times a chain must go round a quantifier
	// cycle to count as a matching loop.
	MinRepetitions int
	// MaxCycles caps the number of quantifier cycles examined.
	MaxCycles int
	// CyclesTimeout bounds cycle enumeration on dense quantifier graphs.
	CyclesTimeout time.Duration
	// MaxTermDepth truncates rendered terms below this depth.
	MaxTermDepth int
}

// DefaultOptions returns the settings used when none are configured.
func DefaultOptions() Options {
	return Options{
		MinRepetitions: 3,
		MaxCycles:      100,
		CyclesTimeout:  5 * time.Second,
		MaxTermDepth:   32,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MinRepetitions < 1 {
		o.MinRepetitions = d.MinRepetitions
	}
	if o.MaxCycles < 1 {
		o.MaxCycles = d.MaxCycles
	}
	if o.CyclesTimeout <= 0 {
		o.CyclesTimeout = d.CyclesTimeout
	}
	if o.MaxTermDepth < 1 {
		o.MaxTermDepth = d.MaxTermDepth
	}
	return o
}

// Edge records that To's match was triggered by something From yielded.
type Edge struct {
	From  model.InstIdx
	To    model.InstIdx
	Blame model.Blame
}

// InstGraph is the instantiation graph of one trace. Node ids are
// instantiation indices. It is immutable after Build apart from the
// matching-loop cache.
type InstGraph struct {
	trace *model.Trace
	opts  Options

	g     *simple.DirectedGraph
	edges []Edge
	in    [][]model.EdgeIdx
	out   [][]model.EdgeIdx
	cost  []float64

	mu     sync.Mutex
	search *LoopSearch
}

// Build derives the graph. Every blame whose term (or either side of a
// blamed equality) was yielded by an earlier instantiation becomes an edge.
func Build(tr *model.Trace, opts Options) *InstGraph {
	n := len(tr.Insts)
	ig := &InstGraph{
		trace: tr,
		opts:  opts.withDefaults(),
		g:     simple.NewDirectedGraph(),
		in:    make([][]model.EdgeIdx, n),
		out:   make([][]model.EdgeIdx, n),
		cost:  make([]float64, n),
	}
	for i := 0; i < n; i++ {
		ig.g.AddNode(simple.Node(int64(i)))
	}

	for j := range tr.Insts {
		to := model.InstIdx(j)
		m := tr.MatchOf(to)
		for _, b := range m.Blamed {
			for _, from := range ig.creators(b) {
				if from == model.None || from >= to {
					continue
				}
				ig.addEdge(Edge{From: from, To: to, Blame: b})
			}
		}
	}

	for i := n - 1; i >= 0; i-- {
		c := 1.0
		for _, e := range ig.out[i] {
			child := ig.edges[e].To
			c += ig.cost[child] / float64(len(ig.in[child]))
		}
		ig.cost[i] = c
	}
	return ig
}

func (ig *InstGraph) creators(b model.Blame) []model.InstIdx {
	if b.Kind == model.BlameTerm {
		return []model.InstIdx{ig.trace.Terms[b.Term].CreatedBy}
	}
	l := ig.trace.Terms[b.Lhs].CreatedBy
	r := ig.trace.Terms[b.Rhs].CreatedBy
	if l == r {
		return []model.InstIdx{l}
	}
	return []model.InstIdx{l, r}
}

func (ig *InstGraph) addEdge(e Edge) {
	idx := model.EdgeIdx(len(ig.edges))
	ig.edges = append(ig.edges, e)
	ig.out[e.From] = append(ig.out[e.From], idx)
	ig.in[e.To] = append(ig.in[e.To], idx)
	if !ig.g.HasEdgeFromTo(int64(e.From), int64(e.To)) {
		ig.g.SetEdge(ig.g.NewEdge(simple.Node(int64(e.From)), simple.Node(int64(e.To))))
	}
}

// Trace returns the trace the graph was built from.
func (ig *InstGraph) Trace() *model.Trace { return ig.trace }

// NodeCount returns the number of instantiations.
func (ig *InstGraph) NodeCount() int { return len(ig.cost) }

// EdgeCount returns the number of blame edges, counting parallel edges.
func (ig *InstGraph) EdgeCount() int { return len(ig.edges) }

// Edge returns the edge with the given id.
func (ig *InstGraph) Edge(id model.EdgeIdx) (Edge, bool) {
	if id < 0 || int(id) >= len(ig.edges) {
		return Edge{}, false
	}
	return ig.edges[id], true
}

// In returns the ids of edges into id.
func (ig *InstGraph) In(id model.InstIdx) []model.EdgeIdx {
	if !ig.valid(id) {
		return nil
	}
	return ig.in[id]
}

// Out returns the ids of edges out of id.
func (ig *InstGraph) Out(id model.InstIdx) []model.EdgeIdx {
	if !ig.valid(id) {
		return nil
	}
	return ig.out[id]
}

// Cost returns the cost of an instantiation: one for itself plus an equal
// share of the cost of everything it triggered.
func (ig *InstGraph) Cost(id model.InstIdx) float64 {
	if !ig.valid(id) {
		return 0
	}
	return ig.cost[id]
}

func (ig *InstGraph) valid(id model.InstIdx) bool {
	return id >= 0 && int(id) < len(ig.cost)
}

// ByCost returns up to n instantiation ids, most expensive first. n <= 0
// returns all of them.
func (ig *InstGraph) ByCost(n int) []model.InstIdx {
	ids := make([]model.InstIdx, len(ig.cost))
	for i := range ids {
		ids[i] = model.InstIdx(i)
	}
	sort.SliceStable(ids, func(a, b int) bool { return ig.cost[ids[a]] > ig.cost[ids[b]] })
	if n > 0 && n < len(ids) {
		ids = ids[:n]
	}
	return ids
}

// Descendants returns every instantiation reachable from id, in
// breadth-first order, excluding id itself.
func (ig *InstGraph) Descendants(id model.InstIdx) ([]model.InstIdx, error) {
	if !ig.valid(id) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	var out []model.InstIdx
	bf := traverse.BreadthFirst{
		Visit: func(n gonum.Node) {
			if n.ID() != int64(id) {
				out = append(out, model.InstIdx(n.ID()))
			}
		},
	}
	bf.Walk(ig.g, simple.Node(int64(id)), nil)
	return out, nil
}
