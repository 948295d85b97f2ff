package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/icdlens/icdlens/internal/core"
	"github.com/icdlens/icdlens/internal/core/fetch"
)

const eventBuffer = 64

type eventKind int

const (
	eventQuery eventKind = iota
	eventFire
	eventLoadMore
	eventSetLimit
	eventResult
)

type event struct {
	kind  eventKind
	text  string
	limit int
	gen   uint64
	page *core.SearchPage
	err  error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger routes attempt and failure logs to logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// Orchestrator debounces query changes and runs at most one live search at
// a time. All mutable pipeline state is owned by a single event loop;
// searches report back tagged with the generation that started them and
// only the current generation may commit.
type Orchestrator struct {
	searcher *Searcher
	cfg      Config
	logger   *logging.Logger

	events    chan event
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	notifying atomic.Bool
	root      context.Context
	stopRoot  context.CancelFunc

	mu      sync.RWMutex
	state   State
	subs    map[int]func(State)
	nextSub int

	// owned by loop
	query         string
	limit         int
	gen           uint64
	timer         *time.Timer
	cancelAttempt context.CancelFunc
}

// New starts an orchestrator around searcher. Close releases it.
func New(searcher *Searcher, opts ...Option) (*Orchestrator, error) {
	if searcher == nil || searcher.Fetcher == nil {
		return nil, errors.New("search orchestrator requires a configured searcher")
	}

	cfg := searcher.Config.withDefaults()
	root, stop := context.WithCancel(context.Background())
	o := &Orchestrator{
		searcher: searcher,
		cfg:      cfg,
		events:   make(chan event, eventBuffer),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		root:     root,
		stopRoot: stop,
		subs:     make(map[int]func(State)),
		limit:    cfg.Limit,
		state:    State{Results: []core.SearchResult{}, Limit: cfg.Limit, Phase: PhaseIdle},
	}
	for _, opt := range opts {
		opt(o)
	}

	go o.loop()
	return o, nil
}

// SetQuery records new query text and restarts the debounce window.
func (o *Orchestrator) SetQuery(text string) {
	o.post(event{kind: eventQuery, text: text})
}

// LoadMore raises the limit by one step and re-runs the current query
// without debouncing.
func (o *Orchestrator) LoadMore() {
	o.post(event{kind: eventLoadMore})
}

// SetLimit replaces the page size for the current query and re-runs it
// without debouncing. A limit of zero or less restores the default. The
// next SetQuery resets the limit.
func (o *Orchestrator) SetLimit(limit int) {
	o.post(event{kind: eventSetLimit, limit: limit})
}

// Snapshot returns a copy of the latest published state.
func (o *Orchestrator) Snapshot() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.clone()
}

// Subscribe registers fn to receive every published state. fn runs on the
// orchestrator's loop and must not block or call back into SetQuery. It may
// call Close, which then returns without waiting for the loop to exit.
func (o *Orchestrator) Subscribe(fn func(State)) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

// Close aborts any outstanding search and stops publishing. It is safe to
// call more than once.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.stopRoot()
		close(o.done)
		if o.notifying.Load() {
			// called from a subscriber; the loop exits once it returns
			return
		}
		<-o.stopped
	})
}

func (o *Orchestrator) post(ev event) {
	select {
	case <-o.done:
	case o.events <- ev:
	}
}

func (o *Orchestrator) loop() {
	defer close(o.stopped)
	for {
		select {
		case <-o.done:
			o.stopTimer()
			o.cancelInFlight()
			return
		case ev := <-o.events:
			o.handle(ev)
		}
	}
}

func (o *Orchestrator) handle(ev event) {
	switch ev.kind {
	case eventQuery:
		o.query = ev.text
		o.limit = o.cfg.Limit
		o.restart(o.cfg.Debounce)
	case eventFire:
		if ev.gen == o.gen {
			o.fire(ev.gen)
		}
	case eventLoadMore:
		if !o.queryLongEnough() {
			return
		}
		o.limit += o.cfg.LimitStep
		o.restart(0)
	case eventSetLimit:
		if ev.limit <= 0 {
			ev.limit = o.cfg.Limit
		}
		o.limit = ev.limit
		if o.queryLongEnough() {
			o.restart(0)
		}
	case eventResult:
		o.settleResult(ev)
	}
}

// restart supersedes whatever is pending or in flight and schedules a new
// generation after delay.
func (o *Orchestrator) restart(delay time.Duration) {
	o.gen++
	o.stopTimer()
	o.cancelInFlight()

	if delay <= 0 {
		o.fire(o.gen)
		return
	}

	gen := o.gen
	o.timer = time.AfterFunc(delay, func() {
		o.post(event{kind: eventFire, gen: gen})
	})
	query := o.query
	o.update(func(s *State) {
		s.Query = query
		s.Loading = false
		s.Phase = PhaseDebouncing
	})
}

func (o *Orchestrator) fire(gen uint64) {
	o.timer = nil
	query, limit := o.query, o.limit

	if !o.queryLongEnough() {
		o.cancelInFlight()
		o.update(func(s *State) {
			*s = State{Query: query, Results: []core.SearchResult{}, Limit: limit, Phase: PhaseSettled}
		})
		return
	}

	if !o.searcher.Catalog.Configured() {
		o.update(func(s *State) {
			*s = State{Query: query, Results: []core.SearchResult{}, Limit: limit, Error: fetch.MsgUnconfigured, Phase: PhaseSettled}
		})
		return
	}

	o.cancelInFlight()
	ctx, cancel := context.WithCancel(o.root)
	o.cancelAttempt = cancel

	o.update(func(s *State) {
		s.Query = query
		s.Limit = limit
		s.Loading = true
		s.Error = ""
		s.Phase = PhaseInFlight
	})

	if o.logger != nil {
		o.logger.Debug("Search attempt started", zap.Uint64("generation", gen), zap.Int("limit", limit))
	}

	text := strings.TrimSpace(query)
	go func() {
		page, err := o.searcher.Search(ctx, text, limit)
		o.post(event{kind: eventResult, gen: gen, page: page, err: err})
	}()
}

func (o *Orchestrator) settleResult(ev event) {
	if ev.gen != o.gen || fetch.IsCanceled(ev.err) {
		return
	}
	o.cancelInFlight()
	query, limit := o.query, o.limit

	if ev.err != nil {
		if o.logger != nil {
			o.logger.Warn("Search failed", zap.Uint64("generation", ev.gen), zap.Error(ev.err))
		}
		o.update(func(s *State) {
			*s = State{Query: query, Results: []core.SearchResult{}, Limit: limit, Error: Message(ev.err), Phase: PhaseSettled}
		})
		return
	}

	o.update(func(s *State) {
		*s = State{
			Query:      query,
			Results:    ev.page.Results,
			Total:      ev.page.Total,
			Limit:      limit,
			Phase:      PhaseSettled,
			Provenance: ev.page.Provenance,
		}
	})
}

func (o *Orchestrator) queryLongEnough() bool {
	return utf8.RuneCountInString(strings.TrimSpace(o.query)) >= o.cfg.MinQueryLength
}

func (o *Orchestrator) cancelInFlight() {
	if o.cancelAttempt != nil {
		o.cancelAttempt()
		o.cancelAttempt = nil
	}
}

func (o *Orchestrator) stopTimer() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

func (o *Orchestrator) update(mutate func(*State)) {
	o.mu.Lock()
	mutate(&o.state)
	snapshot := o.state.clone()
	subs := make([]func(State), 0, len(o.subs))
	for _, fn := range o.subs {
		subs = append(subs, fn)
	}
	o.mu.Unlock()

	o.notifying.Store(true)
	defer o.notifying.Store(false)
	for _, fn := range subs {
		select {
		case <-o.done:
			return
		default:
		}
		fn(snapshot.clone())
	}
}
