package config

import (
	"time"

	"github.com/icdlens/icdlens/internal/core/fetch"
)

// Config represents the complete application configuration.
// Values are layered: built-in defaults, then the user config file, then
// ICDLENS_* environment variables, then runtime overrides from flags.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Search  SearchConfig  `mapstructure:"search"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
	Debug   DebugConfig   `mapstructure:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// CacheConfig controls the upstream payload cache.
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	SearchTTL time.Duration `mapstructure:"search_ttl"`
}

// CatalogConfig locates the ICD-10 catalog and its fallback proxy.
//
// BaseURL may be left empty; the legacy NEXT_PUBLIC_API_BASE_URL,
// VITE_API_BASE_URL and NEXT_PUBLIC_API_URL variables are consulted then.
type CatalogConfig struct {
	BaseURL    string       `mapstructure:"base_url"`
	SearchPath string       `mapstructure:"search_path"`
	ProxyURL   string       `mapstructure:"proxy_url"`
	Primary    BudgetConfig `mapstructure:"primary"`
	Proxy      BudgetConfig `mapstructure:"proxy"`
}

// BudgetConfig bounds the requests made to one endpoint.
type BudgetConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// Options converts the budget into fetch options.
func (b BudgetConfig) Options() fetch.Options {
	return fetch.Options{
		Timeout:    b.Timeout,
		Retries:    b.Retries,
		RetryDelay: b.RetryDelay,
	}
}

// SearchConfig tunes the interactive search pipeline.
type SearchConfig struct {
	Debounce       time.Duration `mapstructure:"debounce"`
	MinQueryLength int           `mapstructure:"min_query_length"`
	Limit          int           `mapstructure:"limit"`
	LimitStep      int           `mapstructure:"limit_step"`
	Structured     bool          `mapstructure:"structured"`
}

// ProxyConfig controls the local /api/icd10/search route served by `serve`.
type ProxyConfig struct {
	Enabled  bool         `mapstructure:"enabled"`
	Path     string       `mapstructure:"path"`
	Upstream BudgetConfig `mapstructure:"upstream"`
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`
}
