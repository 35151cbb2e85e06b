package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/theirongolddev/qiprof/internal/graph"
	"github.com/theirongolddev/qiprof/internal/model"
	"github.com/theirongolddev/qiprof/internal/selection"
)

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	mux.HandleFunc("POST /v1/cancel", s.handleCancel)
	mux.HandleFunc("POST /v1/reload", s.handleReload)
	mux.HandleFunc("GET /v1/selection", s.handleSelection)
	mux.HandleFunc("POST /v1/selection/node", s.handleToggleNode)
	mux.HandleFunc("POST /v1/selection/edge", s.handleToggleEdge)
	mux.HandleFunc("POST /v1/selection/expanded", s.handleExpanded)
	mux.HandleFunc("POST /v1/selection/many", s.handleSelectMany)
	mux.HandleFunc("POST /v1/selection/clear", s.handleClear)
	mux.HandleFunc("POST /v1/options", s.handleOptions)
	mux.HandleFunc("GET /v1/loops", s.handleLoops)
	mux.HandleFunc("POST /v1/loops", s.handleSearchLoops)
	return mux
}

type changedResponse struct {
	Changed bool `json:"changed"`
}

type idRequest struct {
	ID *int `json:"id"`
}

type manyRequest struct {
	IDs []model.InstIdx `json:"ids"`
}

type expandedRequest struct {
	Kind     string `json:"kind"`
	ID       *int   `json:"id"`
	Expanded *bool  `json:"expanded"`
}

type optionsRequest struct {
	IgnoreTermIDs *bool `json:"ignore_term_ids"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// selectionError maps selection failures to status codes. Lookups against
// a trace that is not loaded, or ids the trace does not have, are stale
// requests rather than server faults.
func selectionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, selection.ErrNoSource):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, graph.ErrUnknownNode), errors.Is(err, graph.ErrUnknownEdge):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshotStatus())
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, events)
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 64)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	// Send current state immediately.
	status := s.snapshotStatus()
	writeSSE(w, Event{Type: "state", Timestamp: time.Now(), State: &status.State})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Service) handleCancel(w http.ResponseWriter, _ *http.Request) {
	if !s.pipe.Cancel() {
		writeError(w, http.StatusConflict, errors.New("no ingestion in progress"))
		return
	}
	writeJSON(w, http.StatusAccepted, changedResponse{Changed: true})
}

func (s *Service) handleReload(w http.ResponseWriter, _ *http.Request) {
	a, err := s.Reload()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"attempt": a.ID()})
}

func (s *Service) handleSelection(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.selectionView())
}

func (s *Service) handleToggleNode(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	if err := decode(w, r, &req); err != nil || req.ID == nil {
		writeError(w, http.StatusBadRequest, errors.Join(errors.New("id required"), err))
		return
	}
	changed, err := s.sel.ToggleNode(model.InstIdx(*req.ID))
	if err != nil {
		selectionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, changedResponse{Changed: changed})
}

func (s *Service) handleToggleEdge(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	if err := decode(w, r, &req); err != nil || req.ID == nil {
		writeError(w, http.StatusBadRequest, errors.Join(errors.New("id required"), err))
		return
	}
	changed, err := s.sel.ToggleEdge(model.EdgeIdx(*req.ID))
	if err != nil {
		selectionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, changedResponse{Changed: changed})
}

func (s *Service) handleExpanded(w http.ResponseWriter, r *http.Request) {
	var req expandedRequest
	if err := decode(w, r, &req); err != nil || req.ID == nil {
		writeError(w, http.StatusBadRequest, errors.Join(errors.New("id required"), err))
		return
	}
	kind, err := selection.ParseKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var changed bool
	if req.Expanded == nil {
		changed = s.sel.ToggleExpanded(kind, *req.ID)
	} else {
		changed = s.sel.SetExpanded(kind, *req.ID, *req.Expanded)
	}
	writeJSON(w, http.StatusOK, changedResponse{Changed: changed})
}

func (s *Service) handleSelectMany(w http.ResponseWriter, r *http.Request) {
	var req manyRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	changed, err := s.sel.SelectMany(req.IDs)
	if errors.Is(err, selection.ErrNoSource) {
		selectionError(w, err)
		return
	}
	resp := map[string]any{"changed": changed}
	if err != nil {
		resp["skipped"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleClear(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, changedResponse{Changed: s.sel.DeselectAll()})
}

func (s *Service) handleOptions(w http.ResponseWriter, r *http.Request) {
	var req optionsRequest
	if err := decode(w, r, &req); err != nil || req.IgnoreTermIDs == nil {
		writeError(w, http.StatusBadRequest, errors.Join(errors.New("ignore_term_ids required"), err))
		return
	}
	changed, err := s.sel.SetIgnoreTermIDs(*req.IgnoreTermIDs)
	if err != nil {
		s.logger.Warn("re-rendering selection failed", "err", err)
	}
	writeJSON(w, http.StatusOK, changedResponse{Changed: changed})
}

func (s *Service) handleLoops(w http.ResponseWriter, _ *http.Request) {
	h := s.handle()
	if h == nil || !h.GraphLoaded() {
		writeJSON(w, http.StatusOK, LoopsView{Loops: []graph.MatchingLoop{}})
		return
	}
	writeJSON(w, http.StatusOK, newLoopsView(h.EnsureGraph()))
}

func (s *Service) handleSearchLoops(w http.ResponseWriter, _ *http.Request) {
	h := s.handle()
	if h == nil {
		writeError(w, http.StatusConflict, errors.New("no trace loaded"))
		return
	}
	g := h.EnsureGraph()
	h.SearchMatchingLoops()
	view := newLoopsView(g)

	var terms []string
	for _, l := range view.Loops {
		terms = append(terms, l.GeneralizedTerms...)
	}
	s.sel.RecordMatchingLoopSearch(terms)
	s.publishEvent(Event{Type: "loops", Loops: &view})
	writeJSON(w, http.StatusOK, view)
}
