package search

import (
	"time"

	"github.com/icdlens/icdlens/internal/core/catalog"
	"github.com/icdlens/icdlens/internal/core/fetch"
)

const (
	DefaultDebounce       = 400 * time.Millisecond
	DefaultMinQueryLength = 2
	DefaultLimit          = 20
	DefaultLimitStep      = 20
)

// Config tunes the search pipeline.
type Config struct {
	Debounce       time.Duration
	MinQueryLength int
	Limit          int
	LimitStep      int

	// SearchPath is appended to the catalog base for primary lookups.
	SearchPath string
	// ProxyURL is the absolute fallback endpoint. Empty disables fallback.
	ProxyURL string
	// Structured sends code= or description_normalized= instead of q=.
	Structured bool

	Primary fetch.Options
	Proxy   fetch.Options
}

// DefaultConfig returns the stock debounce, limits and per-endpoint budgets.
func DefaultConfig() Config {
	return Config{
		Debounce:       DefaultDebounce,
		MinQueryLength: DefaultMinQueryLength,
		Limit:          DefaultLimit,
		LimitStep:      DefaultLimitStep,
		SearchPath:     catalog.DefaultSearchPath,
		Primary: fetch.Options{
			Timeout:    7 * time.Second,
			Retries:    2,
			RetryDelay: fetch.DefaultRetryDelay,
		},
		Proxy: fetch.Options{
			Timeout:    9 * time.Second,
			Retries:    2,
			RetryDelay: fetch.DefaultRetryDelay,
		},
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Debounce < 0 {
		c.Debounce = 0
	}
	if c.MinQueryLength <= 0 {
		c.MinQueryLength = defaults.MinQueryLength
	}
	if c.Limit <= 0 {
		c.Limit = defaults.Limit
	}
	if c.LimitStep <= 0 {
		c.LimitStep = defaults.LimitStep
	}
	if c.SearchPath == "" {
		c.SearchPath = defaults.SearchPath
	}
	if c.Primary.Timeout <= 0 {
		c.Primary = defaults.Primary
	}
	if c.Proxy.Timeout <= 0 {
		c.Proxy = defaults.Proxy
	}
	return c
}
