package graph

import (
	"sort"
	"time"

	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/theirongolddev/qiprof/internal/model"
)

// MatchingLoop is a quantifier cycle that a chain of instantiations went
// round at least MinRepetitions times.
type MatchingLoop struct {
	Quantifiers []string         `json:"quantifiers" yaml:"quantifiers"`
	Quants      []model.QuantIdx `json:"-" yaml:"-"`
	Insts       []model.InstIdx  `json:"insts" yaml:"insts"`
	Repetitions int              `json:"repetitions" yaml:"repetitions"`
	// GeneralizedTerms shows, per cycle position, the trigger terms of the
	// repetitions folded together with "_" where they differ.
	GeneralizedTerms []string `json:"generalized_terms" yaml:"generalized_terms"`
}

// LoopSearch is the result of one matching-loop search.
type LoopSearch struct {
	Loops           []MatchingLoop
	CyclesExamined  int
	CyclesTruncated bool
	CyclesTimedOut  bool
	Duration        time.Duration
}

// MatchingLoopCount returns the number of loops found by the last search,
// and false if no search has run yet.
func (ig *InstGraph) MatchingLoopCount() (int, bool) {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	if ig.search == nil {
		return 0, false
	}
	return len(ig.search.Loops), true
}

// LastSearch returns the last search result, or nil.
func (ig *InstGraph) LastSearch() *LoopSearch {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	return ig.search
}

// MatchingLoops returns the loops found by the last search.
func (ig *InstGraph) MatchingLoops() []MatchingLoop {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	if ig.search == nil {
		return nil
	}
	return ig.search.Loops
}

// SearchMatchingLoops runs a fresh search, replaces the cached result and
// returns the number of loops found.
func (ig *InstGraph) SearchMatchingLoops() int {
	res := ig.findLoops()
	ig.mu.Lock()
	ig.search = res
	ig.mu.Unlock()
	return len(res.Loops)
}

func (ig *InstGraph) findLoops() *LoopSearch {
	start := time.Now()
	res := &LoopSearch{}
	tr := ig.trace

	qg := simple.NewDirectedGraph()
	for q := range tr.Quantifiers {
		qg.AddNode(simple.Node(int64(q)))
	}
	self := make(map[model.QuantIdx]bool)
	for _, e := range ig.edges {
		qu, qv := tr.QuantOf(e.From), tr.QuantOf(e.To)
		if qu == qv {
			self[qu] = true
			continue
		}
		if !qg.HasEdgeFromTo(int64(qu), int64(qv)) {
			qg.SetEdge(qg.NewEdge(simple.Node(int64(qu)), simple.Node(int64(qv))))
		}
	}

	var cycles [][]model.QuantIdx
	for q := range self {
		cycles = append(cycles, []model.QuantIdx{q})
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })

	if hasMultiNodeSCC(qg) {
		done := make(chan [][]gonum.Node, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- nil
				}
			}()
			done <- topo.DirectedCyclesIn(qg)
		}()

		timer := time.NewTimer(ig.opts.CyclesTimeout)
		select {
		case found := <-done:
			timer.Stop()
			for _, c := range found {
				cycles = append(cycles, quantCycle(c))
			}
		case <-timer.C:
			res.CyclesTimedOut = true
		}
	}

	if len(cycles) > ig.opts.MaxCycles {
		cycles = cycles[:ig.opts.MaxCycles]
		res.CyclesTruncated = true
	}
	res.CyclesExamined = len(cycles)

	for _, c := range cycles {
		if loop, ok := ig.chainAround(c); ok {
			res.Loops = append(res.Loops, loop)
		}
	}
	sort.SliceStable(res.Loops, func(i, j int) bool {
		return len(res.Loops[i].Insts) > len(res.Loops[j].Insts)
	})
	res.Duration = time.Since(start)
	return res
}

func hasMultiNodeSCC(g *simple.DirectedGraph) bool {
	for _, scc := range topo.TarjanSCC(g) {
		if len(scc) > 1 {
			return true
		}
	}
	return false
}

// quantCycle converts a gonum cycle, which repeats its first node at the
// end, into a quantifier sequence starting at the smallest index.
func quantCycle(nodes []gonum.Node) []model.QuantIdx {
	if len(nodes) > 1 && nodes[0].ID() == nodes[len(nodes)-1].ID() {
		nodes = nodes[:len(nodes)-1]
	}
	out := make([]model.QuantIdx, len(nodes))
	minAt := 0
	for i, n := range nodes {
		out[i] = model.QuantIdx(n.ID())
		if out[i] < out[minAt] {
			minAt = i
		}
	}
	return append(out[minAt:], out[:minAt]...)
}

// chainAround finds the longest chain of instantiations whose quantifiers
// follow cycle in order, and reports it as a loop when it is long enough.
func (ig *InstGraph) chainAround(cycle []model.QuantIdx) (MatchingLoop, bool) {
	tr := ig.trace
	pos := make(map[model.QuantIdx]int, len(cycle))
	for i, q := range cycle {
		pos[q] = i
	}
	L := len(cycle)

	n := len(tr.Insts)
	length := make([]int, n)
	parent := make([]model.InstIdx, n)
	best := model.InstIdx(model.None)

	for j := 0; j < n; j++ {
		id := model.InstIdx(j)
		pj, ok := pos[tr.QuantOf(id)]
		if !ok {
			continue
		}
		length[j] = 1
		parent[j] = model.None
		want := (pj - 1 + L) % L
		for _, e := range ig.in[j] {
			from := ig.edges[e].From
			pf, ok := pos[tr.QuantOf(from)]
			if !ok || pf != want || length[from] == 0 {
				continue
			}
			if length[from]+1 > length[j] {
				length[j] = length[from] + 1
				parent[j] = from
			}
		}
		if best == model.None || length[j] > length[best] {
			best = id
		}
	}

	if best == model.None || length[best] < ig.opts.MinRepetitions*L {
		return MatchingLoop{}, false
	}

	chain := make([]model.InstIdx, 0, length[best])
	for at := best; at != model.None; at = parent[at] {
		chain = append(chain, at)
	}
	for i, k := 0, len(chain)-1; i < k; i, k = i+1, k-1 {
		chain[i], chain[k] = chain[k], chain[i]
	}

	loop := MatchingLoop{
		Quants:      cycle,
		Insts:       chain,
		Repetitions: len(chain) / L,
	}
	for _, q := range cycle {
		loop.Quantifiers = append(loop.Quantifiers, tr.Quantifiers[q].Name)
	}
	loop.GeneralizedTerms = ig.generalize(chain, cycle)
	return loop, true
}

// generalize folds, for each position of the cycle, the terms that
// triggered the chain's instantiations at that position. The chain head is
// skipped because its trigger came from outside the loop.
func (ig *InstGraph) generalize(chain []model.InstIdx, cycle []model.QuantIdx) []string {
	tr := ig.trace
	pos := make(map[model.QuantIdx]int, len(cycle))
	for i, q := range cycle {
		pos[q] = i
	}
	folded := make([]*pattern, len(cycle))
	for i, id := range chain {
		if i == 0 && len(chain) > 1 {
			continue
		}
		m := tr.MatchOf(id)
		for _, b := range m.Blamed {
			if b.Kind != model.BlameTerm || tr.Terms[b.Term].CreatedBy == model.None {
				continue
			}
			left := maxTermNodes
			p := patternOf(tr, b.Term, ig.opts.MaxTermDepth, &left)
			k := pos[m.Quant]
			if folded[k] == nil {
				folded[k] = p
			} else {
				folded[k] = fold(folded[k], p)
			}
		}
	}
	out := make([]string, 0, len(cycle))
	for k, p := range folded {
		if p == nil {
			continue
		}
		out = append(out, tr.Quantifiers[cycle[k]].Name+": "+p.String())
	}
	return out
}
