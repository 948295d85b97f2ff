// Package search runs the ICD-10 query pipeline: primary lookup, proxy
// fallback, normalization and truncation, plus the debounced orchestrator
// that drives it from keystrokes.
package search

import (
	"context"
	"errors"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/icdlens/icdlens/internal/core"
	"github.com/icdlens/icdlens/internal/core/catalog"
	"github.com/icdlens/icdlens/internal/core/fetch"
	"github.com/icdlens/icdlens/internal/core/normalize"
)

// Searcher performs one settled lookup with no debouncing.
type Searcher struct {
	Catalog     *catalog.Builder
	Fetcher     fetch.Fetcher
	Config      Config
	Logger      *logging.Logger
	ToolVersion string
	Clock       func() time.Time
}

// Search resolves query into at most limit deduplicated results. A limit
// of zero uses the configured default.
func (s *Searcher) Search(ctx context.Context, query string, limit int) (*core.SearchPage, error) {
	if s == nil || s.Fetcher == nil {
		return nil, errors.New("searcher is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := s.Config.withDefaults()
	if limit <= 0 {
		limit = cfg.Limit
	}

	requestedAt := s.now()
	params, mode := catalog.SearchParams(query, limit, cfg.Structured)
	primaryURL, ok := s.Catalog.Build(cfg.SearchPath, params)
	if !ok {
		return nil, catalog.ErrUnconfigured
	}

	payload, endpoint, servedURL, err := s.fetchWithFallback(ctx, cfg, primaryURL, params)
	if err != nil {
		return nil, err
	}

	results := normalize.Results(payload)
	if len(results) == 0 && mode != core.LookupFreeText {
		freeParams, freeMode := catalog.SearchParams(query, limit, false)
		freeURL, _ := s.Catalog.Build(cfg.SearchPath, freeParams)
		s.debug("Structured lookup empty, retrying as free text", zap.String("mode", string(mode)))

		payload, endpoint, servedURL, err = s.fetchWithFallback(ctx, cfg, freeURL, freeParams)
		if err != nil {
			return nil, err
		}
		results = normalize.Results(payload)
		mode = freeMode
	}

	results = normalize.Dedupe(results)
	total := normalize.ExtractTotal(payload, len(results))
	if len(results) > limit {
		results = results[:limit]
	}

	return &core.SearchPage{
		Query:   query,
		Results: results,
		Total:   total,
		Limit:   limit,
		Provenance: &core.Provenance{
			AttemptID:   uuid.New().String(),
			RequestedAt: requestedAt,
			ResolvedAt:  s.now(),
			Endpoint:    endpoint,
			Mode:        mode,
			URL:         servedURL,
			ToolVersion: s.ToolVersion,
		},
	}, nil
}

// fetchWithFallback tries the primary endpoint and, only on NETWORK or
// TIMEOUT failures, the proxy endpoint once.
func (s *Searcher) fetchWithFallback(ctx context.Context, cfg Config, primaryURL string, params catalog.Params) (any, core.Endpoint, string, error) {
	payload, err := s.Fetcher.FetchJSON(ctx, primaryURL, cfg.Primary)
	if err == nil {
		return payload, core.EndpointPrimary, primaryURL, nil
	}
	if !fetch.IsTransport(err) {
		return nil, core.EndpointPrimary, primaryURL, err
	}

	proxyURL, ok := catalog.AppendParams(cfg.ProxyURL, params)
	if !ok {
		return nil, core.EndpointPrimary, primaryURL, err
	}

	s.warn("Primary catalog unreachable, using proxy",
		zap.String("url", primaryURL),
		zap.String("proxy", cfg.ProxyURL),
		zap.Error(err))

	payload, err = s.Fetcher.FetchJSON(ctx, proxyURL, cfg.Proxy)
	if err != nil {
		return nil, core.EndpointProxy, proxyURL, err
	}
	return payload, core.EndpointProxy, proxyURL, nil
}

// Message renders a pipeline error for display. Cancellation is silent.
func Message(err error) string {
	if errors.Is(err, catalog.ErrUnconfigured) {
		return fetch.MsgUnconfigured
	}
	return fetch.UserMessage(err)
}

func (s *Searcher) now() time.Time {
	if s != nil && s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}

func (s *Searcher) debug(msg string, fields ...zap.Field) {
	if s.Logger != nil {
		s.Logger.Debug(msg, fields...)
	}
}

func (s *Searcher) warn(msg string, fields ...zap.Field) {
	if s.Logger != nil {
		s.Logger.Warn(msg, fields...)
	}
}
