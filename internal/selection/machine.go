// Package selection tracks the working set of selected graph nodes and
// edges, their expand state, and the detail shown for each.
package selection

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/theirongolddev/qiprof/internal/model"
)

// ErrNoSource is returned when a detail lookup is needed before a parsed
// trace is attached.
var ErrNoSource = errors.New("no trace loaded")

// Kind distinguishes node selections from edge selections.
type Kind int

const (
	Node Kind = iota
	Edge
)

func (k Kind) String() string {
	if k == Edge {
		return "edge"
	}
	return "node"
}

// ParseKind accepts "node" or "edge".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "node":
		return Node, nil
	case "edge":
		return Edge, nil
	}
	return 0, fmt.Errorf("unknown selection kind %q", s)
}

// DetailSource renders nodes and edges. *pipeline.Handle satisfies it.
type DetailSource interface {
	NodeDetail(id model.InstIdx, ignoreTermIDs bool) (model.InstInfo, error)
	EdgeDetail(id model.EdgeIdx, ignoreTermIDs bool) (model.EdgeInfo, error)
}

// Selected is one entry of a selection with its current detail.
type Selected[D any] struct {
	Detail   D    `json:"detail" yaml:"detail"`
	Expanded bool `json:"expanded" yaml:"expanded"`
}

// NodeSelection and EdgeSelection are the published entry types.
type (
	NodeSelection = Selected[model.InstInfo]
	EdgeSelection = Selected[model.EdgeInfo]
)

// Publisher receives the ordered node selection after every change to it.
// It runs with the machine locked and must not call back into it.
type Publisher func([]NodeSelection)

// Machine is the selection state. All methods are safe for concurrent use.
// Mutators report whether anything observable changed.
type Machine struct {
	mu            sync.Mutex
	src           DetailSource
	nodes         ordered[model.InstIdx, NodeSelection]
	edges         ordered[model.EdgeIdx, EdgeSelection]
	ignoreTermIDs bool
	generalized   []string
	publish       Publisher
}

// Option configures a Machine.
type Option func(*Machine)

// WithPublisher registers the outward publication callback.
func WithPublisher(fn Publisher) Option {
	return func(m *Machine) { m.publish = fn }
}

// WithIgnoreTermIDs sets the initial term-id visibility. The default hides
// term ids.
func WithIgnoreTermIDs(ignore bool) Option {
	return func(m *Machine) { m.ignoreTermIDs = ignore }
}

// New returns an empty selection over src. src may be nil until a trace is
// loaded; see SetSource.
func New(src DetailSource, opts ...Option) *Machine {
	m := &Machine{src: src, ignoreTermIDs: true}
	for _, o := range opts {
		o(m)
	}
	return m
}

// SetSource attaches a new trace. Selections refer to the old trace's ids,
// so they are dropped along with the loop explanation.
func (m *Machine) SetSource(src DetailSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.src = src
	m.nodes.clear()
	m.edges.clear()
	m.generalized = nil
	m.publishLocked()
}

// ToggleNode deselects id if it is selected. Otherwise it selects id
// expanded and collapses every other selected node.
func (m *Machine) ToggleNode(id model.InstIdx) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nodes.remove(id) {
		m.publishLocked()
		return true, nil
	}
	if m.src == nil {
		return false, ErrNoSource
	}
	info, err := m.src.NodeDetail(id, m.ignoreTermIDs)
	if err != nil {
		return false, err
	}
	m.nodes.each(func(_ model.InstIdx, s *NodeSelection) { s.Expanded = false })
	m.nodes.put(id, NodeSelection{Detail: info, Expanded: true})
	m.publishLocked()
	return true, nil
}

// ToggleEdge deselects id if selected, or selects it expanded. Other edges
// keep their expand state.
func (m *Machine) ToggleEdge(id model.EdgeIdx) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.edges.remove(id) {
		return true, nil
	}
	if m.src == nil {
		return false, ErrNoSource
	}
	info, err := m.src.EdgeDetail(id, m.ignoreTermIDs)
	if err != nil {
		return false, err
	}
	m.edges.put(id, EdgeSelection{Detail: info, Expanded: true})
	return true, nil
}

// SetExpanded sets the expand flag of a selected entry. An id that is not
// selected is ignored.
func (m *Machine) SetExpanded(kind Kind, id int, expanded bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.expandFlag(kind, id)
	if p == nil || *p == expanded {
		return false
	}
	*p = expanded
	return true
}

// ToggleExpanded flips the expand flag of a selected entry. An id that is
// not selected is ignored.
func (m *Machine) ToggleExpanded(kind Kind, id int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.expandFlag(kind, id)
	if p == nil {
		return false
	}
	*p = !*p
	return true
}

func (m *Machine) expandFlag(kind Kind, id int) *bool {
	switch kind {
	case Node:
		if s, ok := m.nodes.get(model.InstIdx(id)); ok {
			return &s.Expanded
		}
	case Edge:
		if s, ok := m.edges.get(model.EdgeIdx(id)); ok {
			return &s.Expanded
		}
	}
	return nil
}

// SelectMany replaces the node selection with ids, in order and collapsed.
// Duplicate ids keep their first position. Ids whose detail cannot be
// rendered are skipped and reported in the joined error.
func (m *Machine) SelectMany(ids []model.InstIdx) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.src == nil {
		return false, ErrNoSource
	}

	var next ordered[model.InstIdx, NodeSelection]
	var errs []error
	for _, id := range ids {
		if _, dup := next.get(id); dup {
			continue
		}
		info, err := m.src.NodeDetail(id, m.ignoreTermIDs)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		next.put(id, NodeSelection{Detail: info})
	}
	changed := m.nodes.len() > 0 || next.len() > 0
	m.nodes = next
	m.publishLocked()
	return changed, errors.Join(errs...)
}

// DeselectAll clears both selections and publishes the empty node list.
func (m *Machine) DeselectAll() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := m.nodes.len() > 0 || m.edges.len() > 0
	m.nodes.clear()
	m.edges.clear()
	m.publishLocked()
	return changed
}

// SetIgnoreTermIDs switches term-id visibility and re-renders every
// selected node and edge. An entry that fails to re-render keeps its old
// detail; the failures are joined into the returned error.
func (m *Machine) SetIgnoreTermIDs(ignore bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ignoreTermIDs == ignore {
		return false, nil
	}
	m.ignoreTermIDs = ignore
	if m.src == nil {
		return true, nil
	}

	var errs []error
	m.nodes.each(func(id model.InstIdx, s *NodeSelection) {
		info, err := m.src.NodeDetail(id, ignore)
		if err != nil {
			errs = append(errs, fmt.Errorf("node %d: %w", id, err))
			return
		}
		s.Detail = info
	})
	m.edges.each(func(id model.EdgeIdx, s *EdgeSelection) {
		info, err := m.src.EdgeDetail(id, ignore)
		if err != nil {
			errs = append(errs, fmt.Errorf("edge %d: %w", id, err))
			return
		}
		s.Detail = info
	})
	m.publishLocked()
	return true, errors.Join(errs...)
}

// RecordMatchingLoopSearch replaces the loop explanation shown alongside
// the selection.
func (m *Machine) RecordMatchingLoopSearch(terms []string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slices.Equal(m.generalized, terms) {
		return false
	}
	m.generalized = slices.Clone(terms)
	return true
}

// Nodes returns the selected nodes in selection order.
func (m *Machine) Nodes() []NodeSelection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nodesLocked()
}

// Edges returns the selected edges in selection order.
func (m *Machine) Edges() []EdgeSelection {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EdgeSelection, 0, m.edges.len())
	m.edges.each(func(_ model.EdgeIdx, s *EdgeSelection) { out = append(out, *s) })
	return out
}

// NodeIDs returns the selected node ids in selection order.
func (m *Machine) NodeIDs() []model.InstIdx {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.nodes.keys)
}

// EdgeIDs returns the selected edge ids in selection order.
func (m *Machine) EdgeIDs() []model.EdgeIdx {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.edges.keys)
}

// Expanded reports an entry's expand flag and whether it is selected.
func (m *Machine) Expanded(kind Kind, id int) (expanded, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.expandFlag(kind, id)
	if p == nil {
		return false, false
	}
	return *p, true
}

func (m *Machine) IgnoreTermIDs() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ignoreTermIDs
}

// GeneralizedTerms returns the most recent loop explanation.
func (m *Machine) GeneralizedTerms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.generalized)
}

func (m *Machine) nodesLocked() []NodeSelection {
	out := make([]NodeSelection, 0, m.nodes.len())
	m.nodes.each(func(_ model.InstIdx, s *NodeSelection) { out = append(out, *s) })
	return out
}

func (m *Machine) publishLocked() {
	if m.publish != nil {
		m.publish(m.nodesLocked())
	}
}
