package selection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"pgregory.net/rapid"

	"github.com/theirongolddev/qiprof/internal/model"
	"github.com/theirongolddev/qiprof/internal/pipeline"
	"github.com/theirongolddev/qiprof/internal/source"
	"github.com/theirongolddev/qiprof/internal/testutil"
)

var errMissing = errors.New("missing")

// fakeSource renders ids below n; term ids show up as a "#id:" prefix.
type fakeSource struct {
	n     int
	calls int
}

func (f *fakeSource) NodeDetail(id model.InstIdx, ignore bool) (model.InstInfo, error) {
	f.calls++
	if int(id) < 0 || int(id) >= f.n {
		return model.InstInfo{}, errMissing
	}
	formula := fmt.Sprintf("f(x%d)", id)
	if !ignore {
		formula = fmt.Sprintf("#%d:%s", id, formula)
	}
	return model.InstInfo{Inst: id, Formula: formula}, nil
}

func (f *fakeSource) EdgeDetail(id model.EdgeIdx, ignore bool) (model.EdgeInfo, error) {
	f.calls++
	if int(id) < 0 || int(id) >= f.n {
		return model.EdgeInfo{}, errMissing
	}
	term := fmt.Sprintf("g(%d)", id)
	if !ignore {
		term = fmt.Sprintf("#%d:%s", id, term)
	}
	return model.EdgeInfo{Edge: id, BlameTerm: term}, nil
}

type published struct {
	lists [][]NodeSelection
}

func (p *published) record(nodes []NodeSelection) { p.lists = append(p.lists, nodes) }

func (p *published) last() []NodeSelection {
	if len(p.lists) == 0 {
		return nil
	}
	return p.lists[len(p.lists)-1]
}

func newMachine(n int) (*Machine, *published) {
	pub := &published{}
	return New(&fakeSource{n: n}, WithPublisher(pub.record)), pub
}

func TestToggleNode_FocusOnNewest(t *testing.T) {
	m, pub := newMachine(10)

	if changed, err := m.ToggleNode(3); !changed || err != nil {
		t.Fatalf("ToggleNode(3) = %v, %v", changed, err)
	}
	if changed, err := m.ToggleNode(7); !changed || err != nil {
		t.Fatalf("ToggleNode(7) = %v, %v", changed, err)
	}

	got := pub.last()
	if len(got) != 2 {
		t.Fatalf("published %d nodes, want 2", len(got))
	}
	if got[0].Detail.Inst != 3 || got[1].Detail.Inst != 7 {
		t.Errorf("order = [%d %d], want [3 7]", got[0].Detail.Inst, got[1].Detail.Inst)
	}
	if got[0].Expanded || !got[1].Expanded {
		t.Errorf("expanded = [%v %v], want [false true]", got[0].Expanded, got[1].Expanded)
	}
	if len(pub.lists) != 2 {
		t.Errorf("publications = %d, want 2", len(pub.lists))
	}
}

func TestToggleNode_Deselects(t *testing.T) {
	m, pub := newMachine(10)
	_, _ = m.ToggleNode(1)
	_, _ = m.ToggleNode(2)
	if changed, _ := m.ToggleNode(1); !changed {
		t.Fatal("deselect reported no change")
	}
	if ids := m.NodeIDs(); !slices.Equal(ids, []model.InstIdx{2}) {
		t.Errorf("NodeIDs = %v, want [2]", ids)
	}
	if _, ok := m.Expanded(Node, 1); ok {
		t.Error("expand flag survived deselection")
	}
	if len(pub.last()) != 1 {
		t.Errorf("published %d nodes after deselect, want 1", len(pub.last()))
	}
}

func TestToggleNode_UnknownID(t *testing.T) {
	m, pub := newMachine(3)
	changed, err := m.ToggleNode(9)
	if changed || !errors.Is(err, errMissing) {
		t.Errorf("ToggleNode(9) = %v, %v", changed, err)
	}
	if len(pub.lists) != 0 {
		t.Error("failed toggle published")
	}
}

func TestNoSource(t *testing.T) {
	m := New(nil)
	if _, err := m.ToggleNode(0); !errors.Is(err, ErrNoSource) {
		t.Errorf("ToggleNode err = %v, want ErrNoSource", err)
	}
	if _, err := m.ToggleEdge(0); !errors.Is(err, ErrNoSource) {
		t.Errorf("ToggleEdge err = %v, want ErrNoSource", err)
	}
	if changed, err := m.SetIgnoreTermIDs(false); !changed || err != nil {
		t.Errorf("SetIgnoreTermIDs = %v, %v", changed, err)
	}
}

func TestToggleEdge_Independent(t *testing.T) {
	m, pub := newMachine(10)
	_, _ = m.ToggleNode(4)
	_, _ = m.ToggleEdge(1)
	_, _ = m.ToggleEdge(2)

	for _, id := range []int{1, 2} {
		if exp, ok := m.Expanded(Edge, id); !ok || !exp {
			t.Errorf("edge %d expanded = %v, %v; want true", id, exp, ok)
		}
	}
	if exp, _ := m.Expanded(Node, 4); !exp {
		t.Error("selecting edges collapsed a node")
	}
	if len(pub.lists) != 1 {
		t.Errorf("edge toggles published node lists: %d publications", len(pub.lists))
	}
	if changed, _ := m.ToggleEdge(1); !changed {
		t.Error("edge deselect reported no change")
	}
	if ids := m.EdgeIDs(); !slices.Equal(ids, []model.EdgeIdx{2}) {
		t.Errorf("EdgeIDs = %v", ids)
	}
}

func TestSetExpanded(t *testing.T) {
	m, _ := newMachine(10)
	_, _ = m.ToggleNode(5)

	tests := []struct {
		name     string
		kind     Kind
		id       int
		expanded bool
		want     bool
	}{
		{"collapse selected", Node, 5, false, true},
		{"collapse again", Node, 5, false, false},
		{"expand selected", Node, 5, true, true},
		{"absent node", Node, 6, true, false},
		{"absent edge", Edge, 5, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.SetExpanded(tt.kind, tt.id, tt.expanded); got != tt.want {
				t.Errorf("SetExpanded = %v, want %v", got, tt.want)
			}
		})
	}

	if !m.ToggleExpanded(Node, 5) {
		t.Fatal("ToggleExpanded on selected node reported no change")
	}
	if exp, _ := m.Expanded(Node, 5); exp {
		t.Error("ToggleExpanded did not collapse")
	}
	if m.ToggleExpanded(Edge, 0) {
		t.Error("ToggleExpanded on absent edge reported a change")
	}
}

func TestSelectMany(t *testing.T) {
	m, pub := newMachine(10)
	_, _ = m.ToggleNode(9)

	changed, err := m.SelectMany([]model.InstIdx{2, 5, 2, 42, 1})
	if !changed {
		t.Error("SelectMany reported no change")
	}
	if !errors.Is(err, errMissing) {
		t.Errorf("err = %v, want the missing id reported", err)
	}
	if ids := m.NodeIDs(); !slices.Equal(ids, []model.InstIdx{2, 5, 1}) {
		t.Errorf("NodeIDs = %v, want [2 5 1]", ids)
	}
	for _, s := range pub.last() {
		if s.Expanded {
			t.Errorf("node %d expanded after bulk select", s.Detail.Inst)
		}
	}
}

func TestDeselectAll(t *testing.T) {
	m, pub := newMachine(10)
	_, _ = m.ToggleNode(1)
	_, _ = m.ToggleEdge(1)

	if !m.DeselectAll() {
		t.Error("DeselectAll reported no change")
	}
	if len(m.Nodes()) != 0 || len(m.Edges()) != 0 {
		t.Error("selection not cleared")
	}
	if got := pub.last(); got == nil || len(got) != 0 {
		t.Errorf("published %v, want an empty list", got)
	}
	n := len(pub.lists)
	if m.DeselectAll() {
		t.Error("second DeselectAll reported a change")
	}
	if len(pub.lists) != n+1 {
		t.Error("DeselectAll did not publish")
	}
}

func TestSetIgnoreTermIDs_Recomputes(t *testing.T) {
	src := &fakeSource{n: 10}
	pub := &published{}
	m := New(src, WithPublisher(pub.record))
	_, _ = m.ToggleNode(1)
	_, _ = m.ToggleNode(2)
	_, _ = m.ToggleEdge(3)
	before := m.Nodes()
	calls := src.calls

	changed, err := m.SetIgnoreTermIDs(false)
	if !changed || err != nil {
		t.Fatalf("SetIgnoreTermIDs = %v, %v", changed, err)
	}
	if src.calls-calls != 3 {
		t.Errorf("recomputed %d entries, want 3", src.calls-calls)
	}
	after := m.Nodes()
	for i := range after {
		if after[i].Detail.Formula == before[i].Detail.Formula {
			t.Errorf("node %d detail unchanged: %q", i, after[i].Detail.Formula)
		}
		if after[i].Expanded != before[i].Expanded {
			t.Errorf("node %d expand flag changed", i)
		}
	}
	if e := m.Edges()[0].Detail.BlameTerm; e != "#3:g(3)" {
		t.Errorf("edge detail = %q", e)
	}
	if m.IgnoreTermIDs() {
		t.Error("flag not updated")
	}
	if changed, _ := m.SetIgnoreTermIDs(false); changed {
		t.Error("setting the same value reported a change")
	}
}

func TestSetSourceClears(t *testing.T) {
	m, pub := newMachine(10)
	_, _ = m.ToggleNode(1)
	m.RecordMatchingLoopSearch([]string{"ax: f(_)"})

	m.SetSource(&fakeSource{n: 2})
	if len(m.Nodes()) != 0 || len(m.GeneralizedTerms()) != 0 {
		t.Error("SetSource kept the old selection")
	}
	if len(pub.last()) != 0 {
		t.Error("SetSource did not publish an empty list")
	}
}

func TestRecordMatchingLoopSearch(t *testing.T) {
	m, _ := newMachine(1)
	terms := []string{"ax_fg: f(g(_))"}
	if !m.RecordMatchingLoopSearch(terms) {
		t.Error("first record reported no change")
	}
	terms[0] = "mutated"
	if got := m.GeneralizedTerms(); got[0] != "ax_fg: f(g(_))" {
		t.Errorf("stored terms aliased the caller's slice: %v", got)
	}
	if m.RecordMatchingLoopSearch([]string{"ax_fg: f(g(_))"}) {
		t.Error("identical record reported a change")
	}
	if !m.RecordMatchingLoopSearch(nil) {
		t.Error("clearing reported no change")
	}
}

func TestFocusInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m, _ := newMachine(8)
		ops := rapid.SliceOfN(rapid.IntRange(0, 9), 1, 60).Draw(t, "ops")
		for _, op := range ops {
			switch op {
			case 8:
				_, _ = m.SelectMany([]model.InstIdx{0, 1, 2})
			case 9:
				m.DeselectAll()
			default:
				_, _ = m.ToggleNode(model.InstIdx(op))
			}
		}

		last := ops[len(ops)-1]
		nodes := m.Nodes()
		if last >= 8 || len(nodes) == 0 {
			return
		}
		// After a toggle, either it selected a node (the only expanded one)
		// or it deselected one, leaving at most one expanded.
		expanded := 0
		for _, s := range nodes {
			if s.Expanded {
				expanded++
			}
		}
		selectedLast := slices.Contains(m.NodeIDs(), model.InstIdx(last))
		if selectedLast && expanded != 1 {
			t.Fatalf("%d nodes expanded after selecting %d", expanded, last)
		}
		if selectedLast && !nodes[len(nodes)-1].Expanded {
			t.Fatalf("newest node %d not expanded", last)
		}
		if expanded > 1 {
			t.Fatalf("%d nodes expanded", expanded)
		}
	})
}

func TestWithHandle_TermIDsChangePayload(t *testing.T) {
	p := pipeline.New()
	h, err := p.Begin(context.Background(), source.NewBytes("loop.log", []byte(testutil.LoopTrace(3)))).Wait()
	if err != nil {
		t.Fatal(err)
	}
	m := New(h)
	if _, err := m.ToggleNode(0); err != nil {
		t.Fatal(err)
	}
	if _, err := m.ToggleNode(1); err != nil {
		t.Fatal(err)
	}
	before := m.Nodes()

	if _, err := m.SetIgnoreTermIDs(false); err != nil {
		t.Fatal(err)
	}
	for i, s := range m.Nodes() {
		if s.Detail.ResultingTerm == before[i].Detail.ResultingTerm {
			t.Errorf("node %d resulting term unchanged: %q", i, s.Detail.ResultingTerm)
		}
	}
}
