package server

import (
	"time"

	"github.com/theirongolddev/qiprof/internal/graph"
	"github.com/theirongolddev/qiprof/internal/model"
	"github.com/theirongolddev/qiprof/internal/pipeline"
	"github.com/theirongolddev/qiprof/internal/selection"
)

// StateView is the wire form of a lifecycle state.
type StateView struct {
	Kind      string   `json:"kind"`
	Attempt   string   `json:"attempt,omitempty"`
	File      string   `json:"file,omitempty"`
	LinesRead int64    `json:"lines_read,omitempty"`
	BytesRead int64    `json:"bytes_read,omitempty"`
	FileSize  int64    `json:"file_size,omitempty"`
	Fraction  float64  `json:"fraction,omitempty"`
	Speed     *float64 `json:"speed_bytes_per_sec,omitempty"`
	TimedOut  bool     `json:"timed_out"`
	Cancelled bool     `json:"cancelled"`
	Stage     string   `json:"stage,omitempty"`
	Notice    string   `json:"notice,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func newStateView(st pipeline.State, limits pipeline.Limits) StateView {
	v := StateView{
		Kind:      st.Kind.String(),
		File:      st.File,
		TimedOut:  st.TimedOut,
		Cancelled: st.Cancelled,
		Stage:     st.Derivation.Stage,
		Notice:    st.Notice(limits),
	}
	if st.Attempt != nil {
		v.Attempt = st.Attempt.ID()
	}
	if st.Kind == pipeline.Parsing {
		v.LinesRead = st.Progress.LinesRead
		v.BytesRead = st.Progress.BytesRead
		v.FileSize = st.Progress.FileSize
		if f := st.Progress.Fraction(); f >= 0 {
			v.Fraction = f
		}
		if st.Progress.Known {
			speed := st.Progress.Speed
			v.Speed = &speed
		}
	}
	if st.Err != nil {
		v.Error = st.Err.Error()
	}
	return v
}

// Event is published on every state or selection change.
type Event struct {
	ID        int64                     `json:"id"`
	Type      string                    `json:"type"`
	Timestamp time.Time                 `json:"timestamp"`
	State     *StateView                `json:"state,omitempty"`
	Selection []selection.NodeSelection `json:"selection,omitempty"`
	Loops     *LoopsView                `json:"loops,omitempty"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time      `json:"started_at"`
	Path            string         `json:"path"`
	State           StateView      `json:"state"`
	Summary         *model.Summary `json:"summary,omitempty"`
	SelectedNodes   int            `json:"selected_nodes"`
	SelectedEdges   int            `json:"selected_edges"`
	LastError       string         `json:"last_error,omitempty"`
	EventCount      int            `json:"event_count"`
	SubscriberCount int            `json:"subscriber_count"`
}

// SelectionView is served at /v1/selection.
type SelectionView struct {
	Nodes            []selection.NodeSelection `json:"nodes"`
	Edges            []selection.EdgeSelection `json:"edges"`
	IgnoreTermIDs    bool                      `json:"ignore_term_ids"`
	GeneralizedTerms []string                  `json:"generalized_terms"`
}

// LoopsView is the result of a matching-loop search.
type LoopsView struct {
	Count     int                  `json:"count"`
	Truncated bool                 `json:"truncated,omitempty"`
	TimedOut  bool                 `json:"timed_out,omitempty"`
	Loops     []graph.MatchingLoop `json:"loops"`
}

func newLoopsView(g *graph.InstGraph) LoopsView {
	v := LoopsView{Loops: []graph.MatchingLoop{}}
	search := g.LastSearch()
	if search == nil {
		return v
	}
	v.Count = len(search.Loops)
	v.Truncated = search.CyclesTruncated
	v.TimedOut = search.CyclesTimedOut
	v.Loops = append(v.Loops, search.Loops...)
	return v
}

func (s *Service) selectionView() SelectionView {
	terms := s.sel.GeneralizedTerms()
	if terms == nil {
		terms = []string{}
	}
	return SelectionView{
		Nodes:            s.sel.Nodes(),
		Edges:            s.sel.Edges(),
		IgnoreTermIDs:    s.sel.IgnoreTermIDs(),
		GeneralizedTerms: terms,
	}
}
