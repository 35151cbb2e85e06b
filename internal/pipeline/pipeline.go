// Package pipeline drives ingestion of a trace into a parsed handle,
// publishing lifecycle states as it goes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/theirongolddev/qiprof/internal/graph"
	"github.com/theirongolddev/qiprof/internal/source"
)

// ErrRetired is returned by Attempt.Wait when a newer Begin replaced the
// attempt before it finished.
var ErrRetired = errors.New("attempt retired by a newer ingestion")

// attemptReserve keeps room in an attempt's state channel for the
// non-progress states that can still follow.
const attemptReserve = 8

// Pipeline owns the lifecycle state of the current ingestion attempt. It is
// the only writer of that state; everything else observes it through
// Subscribe, State or an Attempt's channel.
type Pipeline struct {
	limits     Limits
	graphOpts  graph.Options
	eagerGraph bool
	logger     *slog.Logger
	now        func() time.Time

	subs bus

	// emitMu serializes transitions with their broadcast so subscribers
	// observe states in the order they were accepted.
	emitMu  sync.Mutex
	mu      sync.Mutex
	gen     uint64
	current *Attempt
	state   State
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLimits sets the byte ceilings and progress cadence. Zero fields keep
// their defaults.
func WithLimits(l Limits) Option {
	return func(p *Pipeline) { p.limits = l.withDefaults() }
}

// WithGraphOptions sets the options handed to every Handle.
func WithGraphOptions(o graph.Options) Option {
	return func(p *Pipeline) { p.graphOpts = o }
}

// WithEagerGraph makes the pipeline build the instantiation graph, under a
// Deriving state, before reporting Ready.
func WithEagerGraph(eager bool) Option {
	return func(p *Pipeline) { p.eagerGraph = eager }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock replaces time.Now for progress timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New returns an idle pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		limits:    DefaultLimits(),
		graphOpts: graph.DefaultOptions(),
		logger:    slog.Default(),
		now:       time.Now,
		state:     State{Kind: Idle},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Limits returns the effective ingestion limits.
func (p *Pipeline) Limits() Limits { return p.limits }

// Subscribe registers fn for every accepted state of every attempt. fn runs
// on the ingesting goroutine and must not block or call Begin.
func (p *Pipeline) Subscribe(fn func(State)) *Subscription {
	return p.subs.add(fn)
}

// Subscribers returns the number of registered callbacks.
func (p *Pipeline) Subscribers() int { return p.subs.len() }

// State returns the most recently accepted state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Current returns the live attempt, or nil before the first Begin.
func (p *Pipeline) Current() *Attempt {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Cancel sets the current attempt's cancellation token. It returns false
// when there is no attempt still parsing.
func (p *Pipeline) Cancel() bool {
	p.mu.Lock()
	a, kind := p.current, p.state.Kind
	p.mu.Unlock()
	if a == nil || kind >= Parsed {
		return false
	}
	a.Cancel()
	return true
}

// Close retires the current attempt without starting a new one.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.gen++
	old := p.current
	p.current = nil
	p.mu.Unlock()
	if old != nil {
		old.retire()
	}
}

// Begin starts ingesting src and returns its attempt. Any previous attempt
// is retired: its reader is closed and its later states are discarded.
func (p *Pipeline) Begin(ctx context.Context, src source.Source) *Attempt {
	actx, cancel := context.WithCancel(ctx)
	a := &Attempt{
		id:     uuid.NewString(),
		src:    src,
		ctx:    actx,
		cancel: cancel,
		states: make(chan State, 64),
		done:   make(chan struct{}),
	}
	a.stopCancelHook = context.AfterFunc(actx, a.token.Cancel)

	p.emitMu.Lock()
	p.mu.Lock()
	p.gen++
	a.gen = p.gen
	old := p.current
	p.current = a
	idle := State{Kind: Idle, Attempt: a, File: src.Name()}
	p.state = idle
	p.mu.Unlock()
	if old != nil {
		old.retire()
	}
	a.send(idle)
	p.subs.publish(idle)
	p.emitMu.Unlock()

	go p.run(a)
	return a
}

// emit applies st if a is still the current attempt and the transition is
// legal, then broadcasts it.
func (p *Pipeline) emit(a *Attempt, st State) bool {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	if a.gen != p.gen {
		p.mu.Unlock()
		return false
	}
	if !st.Kind.follows(p.state.Kind) {
		prev := p.state.Kind
		p.mu.Unlock()
		p.logger.Warn("dropping out-of-order state", "attempt", a.id, "from", prev, "to", st.Kind)
		return false
	}
	st.Attempt = a
	st.File = a.src.Name()
	p.state = st
	p.mu.Unlock()

	a.send(st)
	p.subs.publish(st)
	return true
}

func (p *Pipeline) run(a *Attempt) {
	defer close(a.done)
	defer close(a.states)
	defer func() {
		a.stopCancelHook()
		a.cancel()
	}()

	start := p.now()
	h, err := p.ingest(a)
	switch {
	case a.retired.Load():
		a.finish(nil, ErrRetired)
		p.logger.Debug("attempt retired", "attempt", a.id, "file", a.src.Name())
	case err != nil:
		p.logger.Error("ingestion failed", "attempt", a.id, "file", a.src.Name(), "err", err)
		p.emit(a, State{Kind: Failed, Err: err})
		a.finish(nil, err)
	default:
		p.logger.Info("ingestion complete",
			"attempt", a.id,
			"file", a.src.Name(),
			"lines", h.trace.Lines,
			"bytes", h.trace.Bytes,
			"timed_out", h.TimedOut(),
			"cancelled", h.Cancelled(),
			"elapsed", p.now().Sub(start).Round(time.Millisecond),
		)
		a.finish(h, nil)
	}
}

func (p *Pipeline) ingest(a *Attempt) (*Handle, error) {
	name := a.src.Name()
	ceiling := p.limits.StreamCeiling
	opt := source.WithCheckEvery(p.limits.ProgressEvery)

	var parser *source.Parser
	rc, err := a.src.Stream()
	switch {
	case err == nil:
		a.setReader(rc)
		defer func() { _ = rc.Close() }()
		p.logger.Debug("streaming trace", "attempt", a.id, "file", name, "ceiling", ceiling)
		parser = source.NewStreamParser(rc, opt)
	case errors.Is(err, source.ErrStreamUnavailable):
		ceiling = p.limits.BufferedCeiling
		p.logger.Debug("reading trace into memory", "attempt", a.id, "file", name, "ceiling", ceiling)
		p.emit(a, State{Kind: ReadingRaw})
		data, err := a.src.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%s: %w", name, source.ErrMalformedInput)
		}
		parser = source.NewBufferParser(data, opt)
	default:
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	size := a.src.Size()
	var prev *Progress
	outcome, err := parser.ProcessUntil(func(st source.ReaderState) bool {
		if a.ctx.Err() != nil {
			a.token.Cancel()
		}
		if a.token.Cancelled() || a.retired.Load() {
			return false
		}
		pr := Update(ProgressSnapshot{
			LinesRead: st.LinesRead,
			BytesRead: st.BytesRead,
			FileSize:  size,
			Time:      p.now(),
		}, prev)
		prev = &pr
		p.emit(a, State{Kind: Parsing, Progress: pr})
		return st.BytesRead <= ceiling
	})
	if err != nil {
		return nil, err
	}

	cancelled := a.token.Cancelled()
	timedOut := outcome == source.TimedOut
	p.emit(a, State{Kind: Parsed, TimedOut: timedOut, Cancelled: cancelled})

	h := NewHandle(name, size, parser.TakeResult(), outcome, cancelled, p.graphOpts)
	if p.eagerGraph && !a.retired.Load() {
		p.emit(a, State{Kind: Deriving, TimedOut: timedOut, Cancelled: cancelled, Derivation: DerivationProgress{Stage: "graph"}})
		h.EnsureGraph()
	}
	p.emit(a, State{Kind: Ready, TimedOut: timedOut, Cancelled: cancelled, Handle: h})
	return h, nil
}

// Attempt is one run of the pipeline over one source.
type Attempt struct {
	id    string
	gen   uint64
	src   source.Source
	token CancellationToken

	ctx            context.Context
	cancel         context.CancelFunc
	stopCancelHook func() bool
	retired        atomic.Bool

	readerMu sync.Mutex
	reader   io.Closer

	states chan State
	done   chan struct{}
	handle *Handle
	err    error
}

// ID returns the attempt's unique identifier.
func (a *Attempt) ID() string { return a.id }

// Source returns the source being ingested.
func (a *Attempt) Source() source.Source { return a.src }

// Cancel asks the attempt to stop at the next progress point and keep what
// it has parsed so far.
func (a *Attempt) Cancel() { a.token.Cancel() }

// Cancelled reports whether cancellation was requested.
func (a *Attempt) Cancelled() bool { return a.token.Cancelled() }

// Retired reports whether a newer Begin replaced this attempt.
func (a *Attempt) Retired() bool { return a.retired.Load() }

// States delivers this attempt's accepted states and is closed when the
// attempt ends. Progress states are dropped rather than block when the
// reader falls behind; every other state is always delivered.
func (a *Attempt) States() <-chan State { return a.states }

// Done is closed when the attempt has ended.
func (a *Attempt) Done() <-chan struct{} { return a.done }

// Wait blocks until the attempt ends.
func (a *Attempt) Wait() (*Handle, error) {
	<-a.done
	return a.handle, a.err
}

func (a *Attempt) send(st State) {
	if st.Kind == Parsing && len(a.states) >= cap(a.states)-attemptReserve {
		return
	}
	a.states <- st
}

func (a *Attempt) setReader(c io.Closer) {
	a.readerMu.Lock()
	defer a.readerMu.Unlock()
	if a.retired.Load() {
		_ = c.Close()
		return
	}
	a.reader = c
}

func (a *Attempt) retire() {
	a.retired.Store(true)
	a.cancel()
	a.readerMu.Lock()
	if a.reader != nil {
		_ = a.reader.Close()
		a.reader = nil
	}
	a.readerMu.Unlock()
}

func (a *Attempt) finish(h *Handle, err error) {
	a.handle = h
	a.err = err
}
