package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/icdlens/icdlens/internal/appid"
	"github.com/icdlens/icdlens/internal/config"
	"github.com/icdlens/icdlens/internal/core/catalog"
	"github.com/icdlens/icdlens/internal/core/fetch"
	errwrap "github.com/icdlens/icdlens/internal/errors"
	"github.com/icdlens/icdlens/internal/observability"
)

// probeQuery is the code searched by `doctor --probe`.
const probeQuery = "A00"

var doctorProbe bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the installation and catalog configuration.
Use --probe to also issue one search against the configured catalog.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		log := observability.CLILogger
		identity := GetAppIdentity()
		appName := "icdlens"
		if identity != nil && identity.BinaryName != "" {
			appName = identity.BinaryName
		}
		log.Info("=== " + appName + " doctor ===")
		log.Info("")

		allChecks := true
		totalChecks := 7
		if doctorProbe {
			totalChecks++
		}
		step := func(n int, label string) string {
			return fmt.Sprintf("[%d/%d] %s...", n, totalChecks, label)
		}

		goVersion := runtime.Version()
		if goVersion >= "go1.23" {
			log.Info(step(1, "Checking Go version")+" ✅ "+goVersion, zap.String("go_version", goVersion))
		} else {
			log.Warn(step(1, "Checking Go version")+" ⚠️  "+goVersion+" (recommended: go1.23+)", zap.String("go_version", goVersion))
			allChecks = false
		}

		version := crucible.GetVersion()
		if version.Crucible == "" || version.Gofulmen == "" {
			log.Error(step(2, "Checking Gofulmen and Crucible") + " ❌ version metadata unavailable")
			ExitWithCode(log, foundry.ExitExternalServiceUnavailable, "Cannot access Crucible", errwrap.NewServiceUnavailableError("crucible metadata unavailable"))
			return
		}
		log.Info(fmt.Sprintf("%s ✅ gofulmen v%s, crucible v%s", step(2, "Checking Gofulmen and Crucible"), version.Gofulmen, version.Crucible),
			zap.String("gofulmen_version", version.Gofulmen),
			zap.String("crucible_version", version.Crucible))

		configPath := config.DefaultConfigPath()
		if configPath == "" {
			log.Error(step(3, "Checking config directory") + " ❌ cannot resolve config directory")
			ExitWithCode(log, foundry.ExitFileNotFound, "Cannot resolve config directory", errwrap.NewInternalError("config directory not resolved"))
			return
		}
		log.Info(fmt.Sprintf("%s ✅ %s (%s)", step(3, "Checking config directory"), filepath.Dir(configPath), existenceStatus(fileExists(configPath))),
			zap.String("config_path", configPath))

		cfg, err := config.Load(ctx)
		if err != nil {
			log.Error(step(4, "Loading configuration")+" ❌ invalid", zap.Error(err))
			ExitWithCode(log, foundry.ExitConfigInvalid, "Configuration is invalid", err)
			return
		}
		log.Info(step(4, "Loading configuration") + " ✅ loaded")

		if cfg.Catalog.BaseURL != "" {
			log.Info(fmt.Sprintf("%s ✅ %s (from %s)", step(5, "Checking catalog base URL"), cfg.Catalog.BaseURL, catalogBaseSource(ctx, cfg.Catalog.BaseURL)),
				zap.String("base_url", cfg.Catalog.BaseURL))
		} else {
			log.Warn(step(5, "Checking catalog base URL") + " ⚠️  not configured (set catalog.base_url or " + appid.EnvPrefix(ctx) + "CATALOG_BASE_URL)")
			allChecks = false
		}

		if cfg.Catalog.ProxyURL != "" {
			log.Info(step(6, "Checking proxy fallback")+" ✅ "+cfg.Catalog.ProxyURL, zap.String("proxy_url", cfg.Catalog.ProxyURL))
		} else {
			log.Info(step(6, "Checking proxy fallback") + " ➖ disabled")
		}

		if ok := doctorCacheCheck(ctx, cfg, step(7, "Checking search cache")); !ok {
			allChecks = false
		}

		if doctorProbe {
			label := step(8, "Probing catalog")
			if cfg.Catalog.BaseURL == "" {
				log.Warn(label + " ⚠️  skipped (no base URL)")
				allChecks = false
			} else if elapsed, err := probeCatalog(ctx, cfg); err != nil {
				log.Error(label+" ❌ "+fetch.UserMessage(err), zap.Error(err))
				allChecks = false
			} else {
				log.Info(fmt.Sprintf("%s ✅ answered in %s", label, elapsed.Round(time.Millisecond)))
			}
		}

		log.Info("")
		if allChecks {
			log.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", appName))
		} else {
			log.Warn("⚠️  Some checks failed. Review the output above for details.")
		}
	},
}

func doctorCacheCheck(ctx context.Context, cfg *config.Config, label string) bool {
	log := observability.CLILogger
	if !cfg.Cache.Enabled {
		log.Info(label + " ➖ disabled")
		return true
	}

	location := describeStore(cfg.Store)
	db, err := openStore(ctx, cfg)
	if err != nil {
		log.Warn(label+" ⚠️  "+location+" (cannot open)", zap.Error(err))
		return false
	}
	defer db.Close() //nolint:errcheck

	stats, err := db.CacheStats(ctx)
	if err != nil {
		log.Warn(label+" ⚠️  "+location+" (stats unavailable)", zap.Error(err))
		return false
	}
	log.Info(fmt.Sprintf("%s ✅ %s, %d entries, %d hits, newest %s", label, location, stats.Entries, stats.Hits, formatTimeAgoPtr(stats.Newest)),
		zap.Int("entries", stats.Entries),
		zap.Int("expired", stats.Expired))
	return true
}

// probeCatalog issues a single code lookup against the primary endpoint.
func probeCatalog(ctx context.Context, cfg *config.Config) (time.Duration, error) {
	searchPath := cfg.Catalog.SearchPath
	if searchPath == "" {
		searchPath = catalog.DefaultSearchPath
	}
	params, _ := catalog.SearchParams(probeQuery, 1, cfg.Search.Structured)
	url, ok := catalog.NewBuilder(cfg.Catalog.BaseURL).Build(searchPath, params)
	if !ok {
		return 0, catalog.ErrUnconfigured
	}

	client := &fetch.Client{UserAgent: appid.UserAgent(ctx, versionInfo.Version)}
	start := time.Now()
	_, err := client.FetchJSON(ctx, url, cfg.Catalog.Primary.Options())
	return time.Since(start), err
}

// catalogBaseSource names where the resolved base URL most likely came from.
func catalogBaseSource(ctx context.Context, base string) string {
	if name := appid.EnvPrefix(ctx) + "CATALOG_BASE_URL"; strings.TrimSpace(os.Getenv(name)) != "" {
		return name
	}
	for _, name := range legacyBaseVars {
		if v := os.Getenv(name); strings.TrimSpace(v) != "" && catalog.NormalizeBase(v) == base {
			return name
		}
	}
	return "config file"
}

var legacyBaseVars = []string{"NEXT_PUBLIC_API_BASE_URL", "VITE_API_BASE_URL", "NEXT_PUBLIC_API_URL"}

func describeStore(cfg config.StoreConfig) string {
	if cfg.URL != "" {
		return cfg.URL + " (remote)"
	}
	dbPath := cfg.Path
	if dbPath == "" {
		dbPath = config.DefaultStorePath()
	}
	absPath, _ := filepath.Abs(dbPath)
	info, err := os.Stat(absPath)
	switch {
	case err == nil:
		return fmt.Sprintf("%s (%s)", absPath, formatFileSize(info.Size()))
	case os.IsNotExist(err):
		return absPath + " (not created yet)"
	default:
		return fmt.Sprintf("%s (error: %v)", absPath, err)
	}
}

var (
	doctorInitForce   bool
	doctorInitBaseURL string
	doctorResetConfig bool
	doctorResetData   bool
	doctorResetAll    bool
)

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}
		if _, err := os.Stat(configPath); err == nil && !doctorInitForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
		}

		body, err := buildInitConfig(doctorInitBaseURL)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		if err := os.WriteFile(configPath, body, 0644); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}

		observability.CLILogger.Info("Config initialized", zap.String("path", configPath))
		return nil
	},
}

var doctorConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration status and paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := observability.CLILogger
		configPath := config.DefaultConfigPath()

		log.Info("Configuration:")
		log.Info(fmt.Sprintf("  Config file:    %s (%s)", configPath, existenceStatus(fileExists(configPath))))
		if dataDir := config.DefaultDataDir(); dataDir != "" {
			log.Info(fmt.Sprintf("  Data directory: %s (%s)", dataDir, existenceStatus(fileExists(dataDir))))
		} else {
			log.Info("  Data directory: (not resolved)")
		}

		cfg, err := config.Load(ctx)
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return nil
		}
		log.Info("  Database:       " + describeStore(cfg.Store))

		log.Info("")
		log.Info("Environment:")
		for _, name := range append([]string{appid.EnvPrefix(ctx) + "CATALOG_BASE_URL"}, legacyBaseVars...) {
			log.Info(fmt.Sprintf("  %s: %s", name, envStatus(name)))
		}

		log.Info("")
		log.Info("Effective Settings:")
		log.Info("  catalog.base_url: " + valueOrUnset(cfg.Catalog.BaseURL))
		log.Info("  catalog.search_path: " + cfg.Catalog.SearchPath)
		log.Info("  catalog.proxy_url: " + valueOrUnset(cfg.Catalog.ProxyURL))
		log.Info(fmt.Sprintf("  search.structured: %t", cfg.Search.Structured))
		log.Info(fmt.Sprintf("  cache.enabled: %t", cfg.Cache.Enabled))
		return nil
	},
}

var doctorResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset user configuration and/or data",
	RunE: func(cmd *cobra.Command, args []string) error {
		if doctorResetAll {
			doctorResetConfig = true
			doctorResetData = true
		}
		if !doctorResetConfig && !doctorResetData {
			return fmt.Errorf("specify --config, --data, or --all")
		}

		if doctorResetConfig {
			configPath := config.DefaultConfigPath()
			if configPath == "" {
				observability.CLILogger.Warn("Config path not resolved; skipping config reset")
			} else if err := removeIfExists(configPath); err != nil {
				return fmt.Errorf("remove config file: %w", err)
			} else {
				observability.CLILogger.Info("Config removed", zap.String("path", configPath))
			}
		}

		if doctorResetData {
			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Store.URL != "" {
				return fmt.Errorf("remote store configured; use '%s store clear' instead", appid.BinaryName(cmd.Context()))
			}
			dbPath := cfg.Store.Path
			if dbPath == "" {
				dbPath = config.DefaultStorePath()
			}
			absPath, _ := filepath.Abs(dbPath)
			for _, path := range []string{absPath, absPath + "-wal", absPath + "-shm"} {
				if err := removeIfExists(path); err != nil {
					return fmt.Errorf("remove database: %w", err)
				}
			}
			observability.CLILogger.Info("Database removed", zap.String("path", absPath))
		}
		return nil
	},
}

var doctorValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the current config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", configPath)
		}

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return err
		}
		if cfg.Catalog.BaseURL == "" {
			observability.CLILogger.Warn("Config is valid but no catalog base URL is set", zap.String("path", configPath))
			return nil
		}

		observability.CLILogger.Info("Config is valid", zap.String("path", configPath))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.AddCommand(doctorInitCmd)
	doctorCmd.AddCommand(doctorConfigCmd)
	doctorCmd.AddCommand(doctorResetCmd)
	doctorCmd.AddCommand(doctorValidateCmd)

	doctorCmd.Flags().BoolVar(&doctorProbe, "probe", false, "issue one search against the catalog")

	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "overwrite existing config file")
	doctorInitCmd.Flags().StringVar(&doctorInitBaseURL, "base-url", "", "catalog base URL to write into the config")

	doctorResetCmd.Flags().BoolVar(&doctorResetConfig, "config", false, "remove user config file")
	doctorResetCmd.Flags().BoolVar(&doctorResetData, "data", false, "remove local database")
	doctorResetCmd.Flags().BoolVar(&doctorResetAll, "all", false, "remove config and data")
}

// initConfigFile is the starter config written by `doctor init`.
type initConfigFile struct {
	Catalog initCatalog `yaml:"catalog"`
	Search  initSearch  `yaml:"search"`
	Cache   initCache   `yaml:"cache"`
}

type initCatalog struct {
	BaseURL    string `yaml:"base_url"`
	SearchPath string `yaml:"search_path"`
	ProxyURL   string `yaml:"proxy_url,omitempty"`
}

type initSearch struct {
	Limit      int  `yaml:"limit"`
	Structured bool `yaml:"structured"`
}

type initCache struct {
	Enabled   bool   `yaml:"enabled"`
	SearchTTL string `yaml:"search_ttl"`
}

func buildInitConfig(baseURL string) ([]byte, error) {
	doc := initConfigFile{
		Catalog: initCatalog{
			BaseURL:    catalog.NormalizeBase(baseURL),
			SearchPath: catalog.DefaultSearchPath,
		},
		Search: initSearch{Limit: 20},
		Cache:  initCache{Enabled: true, SearchTTL: fetch.DefaultCacheTTL.String()},
	}
	body, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	header := "# created by 'doctor init'; see 'doctor config' for effective values\n"
	return append([]byte(header), body...), nil
}

// formatFileSize returns a human-readable file size
func formatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

// formatTimeAgo returns a human-readable relative time
func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "min") + " ago"
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour") + " ago"
	default:
		return plural(int(d.Hours()/24), "day") + " ago"
	}
}

func formatTimeAgoPtr(t *time.Time) string {
	if t == nil {
		return formatTimeAgo(time.Time{})
	}
	return formatTimeAgo(*t)
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func existenceStatus(exists bool) string {
	if exists {
		return "exists"
	}
	return "missing"
}

func envStatus(name string) string {
	if strings.TrimSpace(os.Getenv(name)) != "" {
		return "(set)"
	}
	return "(not set)"
}

func valueOrUnset(v string) string {
	if v == "" {
		return "(unset)"
	}
	return v
}
