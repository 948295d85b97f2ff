package cmd

import (
	"context"
	"net/http"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/icdlens/icdlens/internal/appid"
	"github.com/icdlens/icdlens/internal/config"
	"github.com/icdlens/icdlens/internal/core/catalog"
	"github.com/icdlens/icdlens/internal/core/fetch"
	"github.com/icdlens/icdlens/internal/core/search"
	"github.com/icdlens/icdlens/internal/core/store"
)

// pipeline bundles the searcher with the resources it holds open.
type pipeline struct {
	Searcher *search.Searcher
	Store    *store.Store
}

func (p *pipeline) Close() error {
	if p == nil || p.Store == nil {
		return nil
	}
	return p.Store.Close()
}

// searchConfig maps loaded configuration onto the search pipeline.
func searchConfig(cfg *config.Config) search.Config {
	return search.Config{
		Debounce:       cfg.Search.Debounce,
		MinQueryLength: cfg.Search.MinQueryLength,
		Limit:          cfg.Search.Limit,
		LimitStep:      cfg.Search.LimitStep,
		SearchPath:     cfg.Catalog.SearchPath,
		ProxyURL:       cfg.Catalog.ProxyURL,
		Structured:     cfg.Search.Structured,
		Primary:        cfg.Catalog.Primary.Options(),
		Proxy:          cfg.Catalog.Proxy.Options(),
	}
}

// newFetcher returns the catalog client, wrapped in the payload cache when
// a store is given.
func newFetcher(ctx context.Context, httpClient *http.Client, cfg *config.Config, db *store.Store, logger *logging.Logger) fetch.Fetcher {
	client := &fetch.Client{
		HTTPClient: httpClient,
		Logger:     logger,
		UserAgent:  appid.UserAgent(ctx, versionInfo.Version),
	}
	if db == nil {
		return client
	}
	return &fetch.CachedFetcher{
		Next:   client,
		Store:  db,
		TTL:    cfg.Cache.SearchTTL,
		Logger: logger,
	}
}

// openCacheStore opens and migrates the store when caching is enabled. A
// store that cannot be opened disables caching rather than failing the
// search.
func openCacheStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) *store.Store {
	if !cfg.Cache.Enabled {
		return nil
	}
	db, err := openStore(ctx, cfg)
	if err != nil {
		if logger != nil {
			logger.Warn("Search cache unavailable, continuing without it", zap.Error(err))
		}
		return nil
	}
	return db
}

func newPipeline(ctx context.Context, cfg *config.Config, logger *logging.Logger) *pipeline {
	db := openCacheStore(ctx, cfg, logger)
	return &pipeline{
		Store: db,
		Searcher: &search.Searcher{
			Catalog:     catalog.NewBuilder(cfg.Catalog.BaseURL),
			Fetcher:     newFetcher(ctx, nil, cfg, db, logger),
			Config:      searchConfig(cfg),
			Logger:      logger,
			ToolVersion: versionInfo.Version,
		},
	}
}
