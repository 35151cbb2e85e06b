package graph

import (
	"testing"

	"github.com/theirongolddev/qiprof/internal/testutil"
)

func TestMatchingLoops_SelfLoop(t *testing.T) {
	g := build(t, testutil.LoopTrace(5))

	if _, searched := g.MatchingLoopCount(); searched {
		t.Fatal("count reported before any search")
	}
	if n := g.SearchMatchingLoops(); n != 1 {
		t.Fatalf("SearchMatchingLoops = %d, want 1", n)
	}
	n, searched := g.MatchingLoopCount()
	if !searched || n != 1 {
		t.Errorf("MatchingLoopCount = %d, %v", n, searched)
	}

	loop := g.MatchingLoops()[0]
	if loop.Repetitions != 5 || len(loop.Insts) != 5 {
		t.Errorf("loop = %+v", loop)
	}
	if len(loop.Quantifiers) != 1 || loop.Quantifiers[0] != "ax_fg" {
		t.Errorf("Quantifiers = %v", loop.Quantifiers)
	}
	if len(loop.GeneralizedTerms) != 1 || loop.GeneralizedTerms[0] != "ax_fg: f(g(_))" {
		t.Errorf("GeneralizedTerms = %q", loop.GeneralizedTerms)
	}
}

func TestMatchingLoops_TooShort(t *testing.T) {
	g := build(t, testutil.LoopTrace(2))
	if n := g.SearchMatchingLoops(); n != 0 {
		t.Errorf("SearchMatchingLoops = %d, want 0", n)
	}
	n, searched := g.MatchingLoopCount()
	if !searched || n != 0 {
		t.Errorf("MatchingLoopCount = %d, %v; want 0, true", n, searched)
	}
}

func TestMatchingLoops_TwoQuantifierCycle(t *testing.T) {
	g := build(t, testutil.PingPongTrace(3))
	if n := g.SearchMatchingLoops(); n != 1 {
		t.Fatalf("SearchMatchingLoops = %d, want 1", n)
	}
	loop := g.MatchingLoops()[0]
	if loop.Repetitions != 3 || len(loop.Insts) != 6 {
		t.Errorf("loop = %+v", loop)
	}
	if len(loop.Quantifiers) != 2 || loop.Quantifiers[0] != "ax_pq" || loop.Quantifiers[1] != "ax_qp" {
		t.Errorf("Quantifiers = %v", loop.Quantifiers)
	}
	if s := g.LastSearch(); s == nil || s.CyclesExamined != 1 || s.CyclesTimedOut {
		t.Errorf("LastSearch = %+v", s)
	}

	short := build(t, testutil.PingPongTrace(2))
	if n := short.SearchMatchingLoops(); n != 0 {
		t.Errorf("two rounds: SearchMatchingLoops = %d, want 0", n)
	}
}

func TestSearchMatchingLoops_Idempotent(t *testing.T) {
	g := build(t, testutil.LoopTrace(4))
	first := g.SearchMatchingLoops()
	second := g.SearchMatchingLoops()
	if first != second {
		t.Errorf("repeat search changed count: %d then %d", first, second)
	}
}
