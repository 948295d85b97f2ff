// Package config provides centralized configuration management for icdlens.
// It layers built-in defaults, the user config file, environment variables
// and runtime overrides, then decodes the result into a typed Config.
package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/icdlens/icdlens/internal/appid"
	"github.com/icdlens/icdlens/internal/core/catalog"
)

var (
	// appConfig holds the current application configuration
	appConfig   *Config
	configMu    sync.RWMutex
	appIdentity *appidentity.Identity

	explicitConfigFile string
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// SetConfigFile pins the config file read by Load. An empty path restores
// discovery in the XDG config directory and ./config.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	explicitConfigFile = strings.TrimSpace(path)
}

// Load builds the configuration from, lowest precedence first:
// 1. Built-in defaults (SetDefaults)
// 2. The user config file, if one is found
// 3. Environment variables ({PREFIX}PORT, {PREFIX}CATALOG_BASE_URL, ...)
// 4. Runtime overrides, in order
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	if appIdentity == nil {
		identity, err := appid.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load app identity: %w", err)
		}
		appIdentity = identity
	}

	v := viper.New()
	SetDefaults(v)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	for _, overrides := range append([]map[string]any{dropEmptyStrings(envOverrides)}, runtimeOverrides...) {
		if len(overrides) == 0 {
			continue
		}
		if err := v.MergeConfigMap(overrides); err != nil {
			return nil, fmt.Errorf("failed to merge config overrides: %w", err)
		}
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := resolveCatalogBase(cfg); err != nil {
		return nil, err
	}

	setConfig(cfg)

	return cfg, nil
}

// dropEmptyStrings removes blank string values so an exported-but-empty
// variable does not mask the config file.
func dropEmptyStrings(overrides map[string]any) map[string]any {
	out := make(map[string]any, len(overrides))
	for key, value := range overrides {
		switch typed := value.(type) {
		case string:
			if strings.TrimSpace(typed) == "" {
				continue
			}
		case map[string]any:
			nested := dropEmptyStrings(typed)
			if len(nested) == 0 {
				continue
			}
			value = nested
		}
		out[key] = value
	}
	return out
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// SetDefaults registers the built-in value of every config key on v.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "SIMPLE")

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.search_ttl", "10m")

	// Catalog defaults
	v.SetDefault("catalog.base_url", "")
	v.SetDefault("catalog.search_path", catalog.DefaultSearchPath)
	v.SetDefault("catalog.proxy_url", DefaultProxyURL)
	v.SetDefault("catalog.primary.timeout", "7s")
	v.SetDefault("catalog.primary.retries", 2)
	v.SetDefault("catalog.primary.retry_delay", "350ms")
	v.SetDefault("catalog.proxy.timeout", "9s")
	v.SetDefault("catalog.proxy.retries", 2)
	v.SetDefault("catalog.proxy.retry_delay", "350ms")

	// Search defaults
	v.SetDefault("search.debounce", "400ms")
	v.SetDefault("search.min_query_length", 2)
	v.SetDefault("search.limit", 20)
	v.SetDefault("search.limit_step", 20)
	v.SetDefault("search.structured", false)

	// Local proxy route defaults
	v.SetDefault("proxy.enabled", true)
	v.SetDefault("proxy.path", DefaultProxyPath)
	v.SetDefault("proxy.upstream.timeout", "9s")
	v.SetDefault("proxy.upstream.retries", 2)
	v.SetDefault("proxy.upstream.retry_delay", "350ms")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)

	// Debug defaults
	v.SetDefault("debug.enabled", false)
}

const (
	// DefaultProxyPath is where `serve` mounts the catalog proxy route.
	DefaultProxyPath = "/api/icd10/search"
	// DefaultProxyURL points clients at a locally running `serve`.
	DefaultProxyURL = "http://localhost:8080" + DefaultProxyPath
)

func readConfigFile(v *viper.Viper) error {
	configMu.RLock()
	explicit := explicitConfigFile
	configMu.RUnlock()

	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", explicit, err)
		}
		return nil
	}

	configName, binaryName := appNamesForPaths()
	if dir := gfconfig.GetAppConfigDir(configName); dir != "" {
		v.AddConfigPath(dir)
	}
	if binaryName != configName {
		if dir := gfconfig.GetAppConfigDir(binaryName); dir != "" {
			v.AddConfigPath(dir)
		}
	}
	v.AddConfigPath("./config")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		// It's OK if config file doesn't exist, we have defaults
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// resolveCatalogBase falls back to the legacy web-client variables when no
// base URL was configured, then normalizes whatever was chosen.
func resolveCatalogBase(cfg *Config) error {
	legacy, err := catalog.LoadLegacyEnv()
	if err != nil {
		return fmt.Errorf("failed to read legacy catalog env: %w", err)
	}

	candidates := append([]string{cfg.Catalog.BaseURL}, legacy.Candidates()...)
	base, _ := catalog.ResolveBase(candidates...)
	cfg.Catalog.BaseURL = base
	return nil
}

// getEnvSpecs returns environment variable specifications for config mapping
// Maps {PREFIX}{NAME} environment variables to config paths
func getEnvSpecs() []EnvVarSpec {
	if appIdentity == nil {
		return []EnvVarSpec{}
	}

	prefix := appIdentity.EnvPrefix
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}

	return []EnvVarSpec{
		// Server config
		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "READ_TIMEOUT", Path: []string{"server", "read_timeout"}, Type: EnvString},
		{Name: prefix + "WRITE_TIMEOUT", Path: []string{"server", "write_timeout"}, Type: EnvString},
		{Name: prefix + "IDLE_TIMEOUT", Path: []string{"server", "idle_timeout"}, Type: EnvString},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},

		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		// Store config
		{Name: prefix + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},

		{Name: prefix + "CACHE_ENABLED", Path: []string{"cache", "enabled"}, Type: EnvBool},
		{Name: prefix + "CACHE_SEARCH_TTL", Path: []string{"cache", "search_ttl"}, Type: EnvString},

		// Catalog config
		{Name: prefix + "CATALOG_BASE_URL", Path: []string{"catalog", "base_url"}, Type: EnvString},
		{Name: prefix + "CATALOG_SEARCH_PATH", Path: []string{"catalog", "search_path"}, Type: EnvString},
		{Name: prefix + "CATALOG_PROXY_URL", Path: []string{"catalog", "proxy_url"}, Type: EnvString},
		{Name: prefix + "CATALOG_PRIMARY_TIMEOUT", Path: []string{"catalog", "primary", "timeout"}, Type: EnvString},
		{Name: prefix + "CATALOG_PRIMARY_RETRIES", Path: []string{"catalog", "primary", "retries"}, Type: EnvInt},
		{Name: prefix + "CATALOG_PROXY_TIMEOUT", Path: []string{"catalog", "proxy", "timeout"}, Type: EnvString},
		{Name: prefix + "CATALOG_PROXY_RETRIES", Path: []string{"catalog", "proxy", "retries"}, Type: EnvInt},

		// Search config
		{Name: prefix + "SEARCH_DEBOUNCE", Path: []string{"search", "debounce"}, Type: EnvString},
		{Name: prefix + "SEARCH_MIN_QUERY_LENGTH", Path: []string{"search", "min_query_length"}, Type: EnvInt},
		{Name: prefix + "SEARCH_LIMIT", Path: []string{"search", "limit"}, Type: EnvInt},
		{Name: prefix + "SEARCH_LIMIT_STEP", Path: []string{"search", "limit_step"}, Type: EnvInt},
		{Name: prefix + "SEARCH_STRUCTURED", Path: []string{"search", "structured"}, Type: EnvBool},

		{Name: prefix + "PROXY_ENABLED", Path: []string{"proxy", "enabled"}, Type: EnvBool},
		{Name: prefix + "PROXY_UPSTREAM_TIMEOUT", Path: []string{"proxy", "upstream", "timeout"}, Type: EnvString},
		{Name: prefix + "PROXY_UPSTREAM_RETRIES", Path: []string{"proxy", "upstream", "retries"}, Type: EnvInt},

		// Metrics config
		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},

		{Name: prefix + "HEALTH_ENABLED", Path: []string{"health", "enabled"}, Type: EnvBool},
		{Name: prefix + "DEBUG_ENABLED", Path: []string{"debug", "enabled"}, Type: EnvBool},
	}
}

// appNamesForPaths returns the config name and binary name from app identity,
// falling back to "icdlens" if not set.
func appNamesForPaths() (configName string, binaryName string) {
	configName = "icdlens"
	binaryName = "icdlens"
	if appIdentity == nil {
		return configName, binaryName
	}

	if strings.TrimSpace(appIdentity.ConfigName) != "" {
		configName = appIdentity.ConfigName
	}
	if strings.TrimSpace(appIdentity.BinaryName) != "" {
		binaryName = appIdentity.BinaryName
	}
	return configName, binaryName
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configName, _ := appNamesForPaths()
	configDir := gfconfig.GetAppConfigDir(configName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	configName, _ := appNamesForPaths()
	return gfconfig.GetAppDataDir(configName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	configName, binaryName := appNamesForPaths()
	dataDir := gfconfig.GetAppDataDir(configName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + binaryName + ".db"
	}
	return filepath.Join(dataDir, binaryName+".db")
}
