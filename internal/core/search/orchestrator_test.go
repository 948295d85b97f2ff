package search

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/icdlens/icdlens/internal/core"
	"github.com/icdlens/icdlens/internal/core/catalog"
	"github.com/icdlens/icdlens/internal/core/fetch"
)

const (
	testDebounce = 30 * time.Millisecond
	waitFor      = 2 * time.Second
	tick         = 5 * time.Millisecond
)

func newTestOrchestrator(t *testing.T, f *fakeFetcher, mutate func(*Config)) *Orchestrator {
	t.Helper()
	searcher := newTestSearcher(f, func(c *Config) {
		c.Debounce = testDebounce
		if mutate != nil {
			mutate(c)
		}
	})
	o, err := New(searcher)
	require.NoError(t, err)
	t.Cleanup(o.Close)
	return o
}

func settled(o *Orchestrator, query string) func() bool {
	return func() bool {
		s := o.Snapshot()
		return s.Phase == PhaseSettled && s.Query == query
	}
}

func TestNewRequiresSearcher(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	_, err = New(&Searcher{})
	require.Error(t, err)
}

func TestOrchestratorInitialState(t *testing.T) {
	o := newTestOrchestrator(t, &fakeFetcher{}, nil)
	s := o.Snapshot()
	require.Equal(t, PhaseIdle, s.Phase)
	require.Empty(t, s.Results)
	require.False(t, s.Loading)
	require.Empty(t, s.Error)
}

func TestOrchestratorDebounceCoalescesKeystrokes(t *testing.T) {
	f := &fakeFetcher{handler: func(ctx context.Context, call fetchCall) (any, error) {
		return records("E11.9", "Diabetes mellitus tipo 2 sin complicaciones"), nil
	}}
	o := newTestOrchestrator(t, f, func(c *Config) { c.Debounce = 80 * time.Millisecond })

	for _, q := range []string{"d", "di", "dia", "diab", "diabetes"} {
		o.SetQuery(q)
	}

	require.Eventually(t, settled(o, "diabetes"), waitFor, tick)
	s := o.Snapshot()
	require.False(t, s.Loading)
	require.Empty(t, s.Error)
	require.Equal(t, []core.SearchResult{{Code: "E11.9", Description: "Diabetes mellitus tipo 2 sin complicaciones"}}, s.Results)

	calls := f.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "diabetes", calls[0].Param("q"))
}

func TestOrchestratorShortQuerySettlesWithoutRequest(t *testing.T) {
	f := &fakeFetcher{handler: func(ctx context.Context, call fetchCall) (any, error) {
		return records("A00", "Cólera"), nil
	}}
	o := newTestOrchestrator(t, f, nil)

	o.SetQuery(" a ")
	require.Eventually(t, settled(o, " a "), waitFor, tick)

	s := o.Snapshot()
	require.Empty(t, s.Results)
	require.Empty(t, s.Error)
	require.False(t, s.Loading)
	require.Empty(t, f.Calls())
}

func TestOrchestratorSupersededAttemptIsCanceledAndIgnored(t *testing.T) {
	var firstCanceled atomic.Bool
	f := &fakeFetcher{handler: func(ctx context.Context, call fetchCall) (any, error) {
		if call.Param("q") == "asma" {
			<-ctx.Done()
			firstCanceled.Store(true)
			return records("J45.9", "Asma no especificada"), nil
		}
		return records("E11.9", "Diabetes mellitus tipo 2"), nil
	}}
	o := newTestOrchestrator(t, f, nil)

	o.SetQuery("asma")
	require.Eventually(t, func() bool { return o.Snapshot().Phase == PhaseInFlight }, waitFor, tick)
	require.True(t, o.Snapshot().Loading)

	o.SetQuery("diabetes")
	require.Eventually(t, settled(o, "diabetes"), waitFor, tick)
	require.Eventually(t, firstCanceled.Load, waitFor, tick)

	time.Sleep(3 * testDebounce)
	s := o.Snapshot()
	require.Equal(t, "diabetes", s.Query)
	require.Equal(t, "E11.9", s.Results[0].Code)
}

func TestOrchestratorFallsBackOnceOnNetworkError(t *testing.T) {
	f := &fakeFetcher{handler: func(ctx context.Context, call fetchCall) (any, error) {
		if call.IsProxy() {
			return []any{map[string]any{"code": "J45.9", "label": "Asthma"}}, nil
		}
		return nil, &fetch.APIError{Code: fetch.CodeNetwork}
	}}
	o := newTestOrchestrator(t, f, nil)

	o.SetQuery("J45.9")
	require.Eventually(t, settled(o, "J45.9"), waitFor, tick)

	s := o.Snapshot()
	require.Equal(t, []core.SearchResult{{Code: "J45.9", Description: "Asthma"}}, s.Results)
	require.Equal(t, core.EndpointProxy, s.Provenance.Endpoint)
	require.Len(t, f.Calls(), 2)
}

func TestOrchestratorSurfacesHTTPErrorMessage(t *testing.T) {
	f := &fakeFetcher{handler: func(ctx context.Context, call fetchCall) (any, error) {
		return nil, &fetch.APIError{Code: fetch.CodeHTTP, Status: 500, Detail: "database offline"}
	}}
	o := newTestOrchestrator(t, f, nil)

	o.SetQuery("asma")
	require.Eventually(t, settled(o, "asma"), waitFor, tick)

	s := o.Snapshot()
	require.Equal(t, "database offline (HTTP 500)", s.Error)
	require.Empty(t, s.Results)
	require.False(t, s.Loading)
	require.Len(t, f.Calls(), 1)
}

func TestOrchestratorUnconfiguredBase(t *testing.T) {
	f := &fakeFetcher{handler: func(ctx context.Context, call fetchCall) (any, error) {
		t.Error("no request expected")
		return nil, nil
	}}
	searcher := newTestSearcher(f, func(c *Config) { c.Debounce = testDebounce })
	searcher.Catalog = catalog.NewBuilder("")
	o, err := New(searcher)
	require.NoError(t, err)
	t.Cleanup(o.Close)

	o.SetQuery("asma")
	require.Eventually(t, settled(o, "asma"), waitFor, tick)
	require.Equal(t, fetch.MsgUnconfigured, o.Snapshot().Error)
	require.Empty(t, f.Calls())
}

func TestOrchestratorLoadMoreRaisesLimit(t *testing.T) {
	f := &fakeFetcher{handler: func(ctx context.Context, call fetchCall) (any, error) {
		payload := records("I10", "Hipertensión esencial")
		payload["total"] = float64(55)
		return payload, nil
	}}
	o := newTestOrchestrator(t, f, nil)

	o.SetQuery("hipertension")
	require.Eventually(t, settled(o, "hipertension"), waitFor, tick)
	require.Equal(t, DefaultLimit, o.Snapshot().Limit)

	o.LoadMore()
	require.Eventually(t, func() bool { return len(f.Calls()) == 2 && o.Snapshot().Phase == PhaseSettled }, waitFor, tick)

	calls := f.Calls()
	require.Equal(t, "20", calls[0].Param("limit"))
	require.Equal(t, "40", calls[1].Param("limit"))
	require.Equal(t, 40, o.Snapshot().Limit)
	require.Equal(t, 55, o.Snapshot().Total)

	o.SetQuery("hipertension arterial")
	require.Eventually(t, settled(o, "hipertension arterial"), waitFor, tick)
	require.Equal(t, DefaultLimit, o.Snapshot().Limit)
}

func TestOrchestratorSetLimitRerunsImmediately(t *testing.T) {
	f := &fakeFetcher{handler: func(ctx context.Context, call fetchCall) (any, error) {
		return records("E11.9", "Diabetes mellitus tipo 2 sin complicaciones"), nil
	}}
	o := newTestOrchestrator(t, f, nil)

	o.SetLimit(5)
	o.SetQuery("diabetes")
	require.Eventually(t, settled(o, "diabetes"), waitFor, tick)
	require.Equal(t, "20", f.Calls()[0].Param("limit"))

	o.SetLimit(5)
	require.Eventually(t, func() bool { return len(f.Calls()) == 2 && o.Snapshot().Phase == PhaseSettled }, waitFor, tick)
	require.Equal(t, "5", f.Calls()[1].Param("limit"))
	require.Equal(t, 5, o.Snapshot().Limit)

	o.SetLimit(0)
	require.Eventually(t, func() bool { return len(f.Calls()) == 3 && o.Snapshot().Phase == PhaseSettled }, waitFor, tick)
	require.Equal(t, "20", f.Calls()[2].Param("limit"))
}

func TestOrchestratorSubscribeReceivesTransitions(t *testing.T) {
	f := &fakeFetcher{handler: func(ctx context.Context, call fetchCall) (any, error) {
		return records("K29.7", "Gastritis, no especificada"), nil
	}}
	o := newTestOrchestrator(t, f, nil)

	var mu sync.Mutex
	var phases []Phase
	unsubscribe := o.Subscribe(func(s State) {
		mu.Lock()
		phases = append(phases, s.Phase)
		mu.Unlock()
	})
	defer unsubscribe()

	o.SetQuery("gastritis")
	require.Eventually(t, settled(o, "gastritis"), waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []Phase{PhaseDebouncing, PhaseInFlight, PhaseSettled}, phases)
}

func TestOrchestratorCloseAbortsInFlight(t *testing.T) {
	started := make(chan struct{})
	var aborted atomic.Bool
	f := &fakeFetcher{handler: func(ctx context.Context, call fetchCall) (any, error) {
		close(started)
		<-ctx.Done()
		aborted.Store(true)
		return nil, fetch.ErrCanceled
	}}
	searcher := newTestSearcher(f, func(c *Config) { c.Debounce = testDebounce })
	o, err := New(searcher)
	require.NoError(t, err)

	o.SetQuery("neumonia")
	select {
	case <-started:
	case <-time.After(waitFor):
		t.Fatal("search did not start")
	}

	o.Close()
	o.Close()
	require.Eventually(t, aborted.Load, waitFor, tick)
	require.Equal(t, PhaseInFlight, o.Snapshot().Phase)

	o.SetQuery("ignored after close")
	require.Equal(t, "neumonia", o.Snapshot().Query)
}

func TestOrchestratorCloseFromSubscriber(t *testing.T) {
	f := &fakeFetcher{handler: func(ctx context.Context, call fetchCall) (any, error) {
		return records("K29.7", "Gastritis, no especificada"), nil
	}}
	o := newTestOrchestrator(t, f, nil)

	closed := make(chan struct{})
	o.Subscribe(func(s State) {
		o.Close()
		close(closed)
	})

	o.SetQuery("gastritis")
	select {
	case <-closed:
	case <-time.After(waitFor):
		t.Fatal("Close from subscriber did not return")
	}

	select {
	case <-o.stopped:
	case <-time.After(waitFor):
		t.Fatal("loop did not exit")
	}
	require.Equal(t, PhaseDebouncing, o.Snapshot().Phase)
	require.Empty(t, f.Calls())
}
