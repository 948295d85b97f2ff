package search

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/icdlens/icdlens/internal/core"
	"github.com/icdlens/icdlens/internal/core/catalog"
	"github.com/icdlens/icdlens/internal/core/fetch"
)

const (
	testBase  = "https://catalog.test"
	testProxy = "http://localhost:8080/api/icd10/search"
)

type fetchCall struct {
	URL  string
	Opts fetch.Options
}

func (c fetchCall) Param(key string) string {
	parsed, err := url.Parse(c.URL)
	if err != nil {
		return ""
	}
	return parsed.Query().Get(key)
}

func (c fetchCall) IsProxy() bool {
	return strings.HasPrefix(c.URL, testProxy)
}

type fakeFetcher struct {
	mu      sync.Mutex
	calls   []fetchCall
	handler func(ctx context.Context, call fetchCall) (any, error)
}

func (f *fakeFetcher) FetchJSON(ctx context.Context, rawURL string, opts fetch.Options) (any, error) {
	call := fetchCall{URL: rawURL, Opts: opts}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	return f.handler(ctx, call)
}

func (f *fakeFetcher) Calls() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.calls...)
}

func records(pairs ...string) map[string]any {
	items := make([]any, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		items = append(items, map[string]any{"code": pairs[i], "description": pairs[i+1]})
	}
	return map[string]any{"results": items}
}

func newTestSearcher(f *fakeFetcher, mutate func(*Config)) *Searcher {
	cfg := DefaultConfig()
	cfg.ProxyURL = testProxy
	if mutate != nil {
		mutate(&cfg)
	}
	return &Searcher{
		Catalog: catalog.NewBuilder(testBase),
		Fetcher: f,
		Config:  cfg,
		Clock:   func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
}

func TestSearchPrimarySuccess(t *testing.T) {
	f := &fakeFetcher{handler: func(ctx context.Context, call fetchCall) (any, error) {
		payload := records(
			"E11.9", "Diabetes mellitus tipo 2 sin complicaciones",
			"E10.9", "Diabetes mellitus tipo 1 sin complicaciones",
			"E11.9", "duplicado",
		)
		payload["total"] = float64(37)
		return payload, nil
	}}

	page, err := newTestSearcher(f, nil).Search(context.Background(), "diabetes", 0)
	require.NoError(t, err)
	require.Equal(t, []core.SearchResult{
		{Code: "E11.9", Description: "Diabetes mellitus tipo 2 sin complicaciones"},
		{Code: "E10.9", Description: "Diabetes mellitus tipo 1 sin complicaciones"},
	}, page.Results)
	require.Equal(t, 37, page.Total)
	require.Equal(t, DefaultLimit, page.Limit)
	require.Equal(t, core.EndpointPrimary, page.Provenance.Endpoint)
	require.Equal(t, core.LookupFreeText, page.Provenance.Mode)

	calls := f.Calls()
	require.Len(t, calls, 1)
	require.True(t, strings.HasPrefix(calls[0].URL, testBase+"/clinical/icd10/search?"))
	require.Equal(t, "diabetes", calls[0].Param("q"))
	require.Equal(t, "20", calls[0].Param("limit"))
	require.Equal(t, 7*time.Second, calls[0].Opts.Timeout)
	require.Equal(t, 2, calls[0].Opts.Retries)
}

func TestSearchTruncatesToLimit(t *testing.T) {
	f := &fakeFetcher{handler: func(ctx context.Context, call fetchCall) (any, error) {
		return records("A00", "a", "A01", "b", "A02", "c", "A03", "d"), nil
	}}

	page, err := newTestSearcher(f, nil).Search(context.Background(), "infecciones", 3)
	require.NoError(t, err)
	require.Len(t, page.Results, 3)
	require.Equal(t, "A02", page.Results[2].Code)
	require.Equal(t, 4, page.Total)
	require.True(t, page.CanLoadMore())
}

func TestSearchFallsBackToProxyOnNetworkError(t *testing.T) {
	f := &fakeFetcher{handler: func(ctx context.Context, call fetchCall) (any, error) {
		if call.IsProxy() {
			return []any{map[string]any{"icd10": "J45.9", "label": "Asthma"}}, nil
		}
		return nil, &fetch.APIError{Code: fetch.CodeNetwork, URL: call.URL}
	}}

	page, err := newTestSearcher(f, nil).Search(context.Background(), "asma", 0)
	require.NoError(t, err)
	require.Equal(t, []core.SearchResult{{Code: "J45.9", Description: "Asthma"}}, page.Results)
	require.Equal(t, core.EndpointProxy, page.Provenance.Endpoint)

	calls := f.Calls()
	require.Len(t, calls, 2)
	require.False(t, calls[0].IsProxy())
	require.True(t, calls[1].IsProxy())
	require.Equal(t, "asma", calls[1].Param("q"))
	require.Equal(t, 9*time.Second, calls[1].Opts.Timeout)
}

func TestSearchFallsBackOnTimeoutAndSurfacesProxyFailure(t *testing.T) {
	f := &fakeFetcher{handler: func(ctx context.Context, call fetchCall) (any, error) {
		if call.IsProxy() {
			return nil, &fetch.APIError{Code: fetch.CodeHTTP, Status: 502, Detail: "upstream unreachable"}
		}
		return nil, &fetch.APIError{Code: fetch.CodeTimeout}
	}}

	_, err := newTestSearcher(f, nil).Search(context.Background(), "asma", 0)
	require.Error(t, err)
	require.Equal(t, "upstream unreachable (HTTP 502)", Message(err))
	require.Len(t, f.Calls(), 2)
}

func TestSearchDoesNotFallBackOnHTTPError(t *testing.T) {
	f := &fakeFetcher{handler: func(ctx context.Context, call fetchCall) (any, error) {
		return nil, &fetch.APIError{Code: fetch.CodeHTTP, Status: 404, Detail: "Not found"}
	}}

	_, err := newTestSearcher(f, nil).Search(context.Background(), "asma", 0)
	require.Error(t, err)
	require.Equal(t, "Not found (HTTP 404)", Message(err))
	require.Len(t, f.Calls(), 1)
}

func TestSearchWithoutProxyReturnsPrimaryError(t *testing.T) {
	f := &fakeFetcher{handler: func(ctx context.Context, call fetchCall) (any, error) {
		return nil, &fetch.APIError{Code: fetch.CodeNetwork}
	}}

	_, err := newTestSearcher(f, func(c *Config) { c.ProxyURL = "" }).Search(context.Background(), "asma", 0)
	require.Equal(t, fetch.MsgNetwork, Message(err))
	require.Len(t, f.Calls(), 1)
}

func TestSearchUnconfigured(t *testing.T) {
	f := &fakeFetcher{handler: func(ctx context.Context, call fetchCall) (any, error) {
		t.Fatal("no request expected")
		return nil, nil
	}}
	searcher := newTestSearcher(f, nil)
	searcher.Catalog = catalog.NewBuilder("  ")

	_, err := searcher.Search(context.Background(), "asma", 0)
	require.ErrorIs(t, err, catalog.ErrUnconfigured)
	require.Equal(t, fetch.MsgUnconfigured, Message(err))
	require.Empty(t, f.Calls())
}

func TestSearchStructuredCodeLookup(t *testing.T) {
	f := &fakeFetcher{handler: func(ctx context.Context, call fetchCall) (any, error) {
		return map[string]any{"code": "J45.9", "label": "Asma no especificada"}, nil
	}}

	page, err := newTestSearcher(f, func(c *Config) { c.Structured = true }).Search(context.Background(), "j45 .9", 0)
	require.NoError(t, err)
	require.Equal(t, []core.SearchResult{{Code: "J45.9", Description: "Asma no especificada"}}, page.Results)
	require.Equal(t, core.LookupCode, page.Provenance.Mode)

	calls := f.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "j45.9", calls[0].Param("code"))
	require.Empty(t, calls[0].Param("q"))
}

func TestSearchStructuredEmptyRetriesFreeText(t *testing.T) {
	f := &fakeFetcher{handler: func(ctx context.Context, call fetchCall) (any, error) {
		if call.Param("description_normalized") != "" {
			return map[string]any{"results": []any{}}, nil
		}
		return records("R05.9", "Tos no especificada"), nil
	}}

	page, err := newTestSearcher(f, func(c *Config) { c.Structured = true }).Search(context.Background(), "tos seca", 0)
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	require.Equal(t, core.LookupFreeText, page.Provenance.Mode)

	calls := f.Calls()
	require.Len(t, calls, 2)
	require.Equal(t, "tos seca", calls[0].Param("description_normalized"))
	require.Equal(t, "tos seca", calls[1].Param("q"))
}

func TestSearchStructuredRetryUsesProxyWhenPrimaryDown(t *testing.T) {
	f := &fakeFetcher{handler: func(ctx context.Context, call fetchCall) (any, error) {
		if !call.IsProxy() {
			return nil, &fetch.APIError{Code: fetch.CodeNetwork, URL: call.URL}
		}
		if call.Param("description_normalized") != "" {
			return map[string]any{"results": []any{}}, nil
		}
		return records("R05.9", "Tos no especificada"), nil
	}}

	page, err := newTestSearcher(f, func(c *Config) { c.Structured = true }).Search(context.Background(), "tos", 0)
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	require.Equal(t, core.LookupFreeText, page.Provenance.Mode)
	require.Equal(t, core.EndpointProxy, page.Provenance.Endpoint)

	calls := f.Calls()
	require.Len(t, calls, 4)
	require.False(t, calls[0].IsProxy())
	require.Equal(t, "tos", calls[1].Param("description_normalized"))
	require.True(t, calls[1].IsProxy())
	require.False(t, calls[2].IsProxy())
	require.Equal(t, "tos", calls[3].Param("q"))
	require.True(t, calls[3].IsProxy())
	require.Equal(t, 9*time.Second, calls[3].Opts.Timeout)
}

func TestSearchPropagatesCancellation(t *testing.T) {
	f := &fakeFetcher{handler: func(ctx context.Context, call fetchCall) (any, error) {
		return nil, fetch.ErrCanceled
	}}

	_, err := newTestSearcher(f, nil).Search(context.Background(), "asma", 0)
	require.True(t, fetch.IsCanceled(err))
	require.Empty(t, Message(err))
	require.Len(t, f.Calls(), 1)
}
