// Package server exposes an ingestion pipeline and its selection over HTTP,
// with a server-sent event stream of lifecycle and selection changes.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/theirongolddev/qiprof/internal/graph"
	"github.com/theirongolddev/qiprof/internal/pipeline"
	"github.com/theirongolddev/qiprof/internal/selection"
	"github.com/theirongolddev/qiprof/internal/source"
)

// Config controls the server runtime behavior.
type Config struct {
	Path          string
	Addr          string
	EventsBuffer  int
	Limits        pipeline.Limits
	Graph         graph.Options
	ForceBuffered bool
	EagerGraph    bool
	IgnoreTermIDs bool
	Logger        *slog.Logger
}

// Service owns one pipeline and one selection and serves both.
type Service struct {
	cfg    Config
	logger *slog.Logger
	pipe   *pipeline.Pipeline
	sel    *selection.Machine
	sub    *pipeline.Subscription

	mu          sync.RWMutex
	baseCtx     context.Context
	startedAt   time.Time
	lastError   string
	nextEventID int64
	events      []Event

	nextSubID int
	subs      map[int]chan Event
}

// New returns a service for cfg. Nothing is read until Reload or Run.
func New(cfg Config) *Service {
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8787"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		cfg:       cfg,
		logger:    logger,
		baseCtx:   context.Background(),
		startedAt: time.Now(),
		subs:      make(map[int]chan Event),
	}
	s.pipe = pipeline.New(
		pipeline.WithLimits(cfg.Limits),
		pipeline.WithGraphOptions(cfg.Graph),
		pipeline.WithEagerGraph(cfg.EagerGraph),
		pipeline.WithLogger(logger),
	)
	s.sel = selection.New(nil,
		selection.WithIgnoreTermIDs(cfg.IgnoreTermIDs),
		selection.WithPublisher(s.onSelection),
	)
	s.sub = s.pipe.Subscribe(s.onState)
	return s
}

// Run serves HTTP and ingests the configured trace until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
	defer s.sub.Close()
	defer s.pipe.Close()

	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if _, err := s.Reload(); err != nil {
		s.logger.Error("initial ingestion failed", "path", s.cfg.Path, "err", err)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}

// Reload starts a fresh ingestion of the configured path, retiring any
// attempt in flight.
func (s *Service) Reload() (*pipeline.Attempt, error) {
	src, err := source.Open(s.cfg.Path, source.WithForceBuffered(s.cfg.ForceBuffered))
	if err != nil {
		s.mu.Lock()
		s.lastError = err.Error()
		s.mu.Unlock()
		return nil, err
	}
	s.mu.RLock()
	ctx := s.baseCtx
	s.mu.RUnlock()
	return s.pipe.Begin(ctx, src), nil
}

// Pipeline returns the served pipeline.
func (s *Service) Pipeline() *pipeline.Pipeline { return s.pipe }

// Selection returns the served selection.
func (s *Service) Selection() *selection.Machine { return s.sel }

func (s *Service) handle() *pipeline.Handle {
	st := s.pipe.State()
	if st.Kind != pipeline.Ready {
		return nil
	}
	return st.Handle
}

// onState runs on the ingesting goroutine for every accepted state.
func (s *Service) onState(st pipeline.State) {
	switch st.Kind {
	case pipeline.Idle:
		s.sel.SetSource(nil)
	case pipeline.Ready:
		s.sel.SetSource(st.Handle)
	case pipeline.Failed:
		s.mu.Lock()
		s.lastError = st.Err.Error()
		s.mu.Unlock()
	}
	view := newStateView(st, s.pipe.Limits())
	s.publishEvent(Event{Type: "state", State: &view})
}

func (s *Service) onSelection(nodes []selection.NodeSelection) {
	s.publishEvent(Event{Type: "selection", Selection: nodes})
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.nextEventID++
	ev.ID = s.nextEventID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) snapshotStatus() Status {
	st := s.pipe.State()
	status := Status{
		StartedAt:     s.startedAt,
		Path:          s.cfg.Path,
		State:         newStateView(st, s.pipe.Limits()),
		SelectedNodes: len(s.sel.NodeIDs()),
		SelectedEdges: len(s.sel.EdgeIDs()),
	}
	if st.Kind == pipeline.Ready {
		sum := st.Handle.Summary()
		status.Summary = &sum
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	status.LastError = s.lastError
	status.EventCount = len(s.events)
	status.SubscriberCount = len(s.subs)
	return status
}

func (s *Service) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}
