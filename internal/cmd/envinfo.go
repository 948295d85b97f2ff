package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/icdlens/icdlens/internal/config"
	"github.com/icdlens/icdlens/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, configuration, and version information.",
	Run: func(cmd *cobra.Command, args []string) {
		log := observability.CLILogger
		version := crucible.GetVersion()
		identity := GetAppIdentity()

		log.Info("=== " + identity.BinaryName + " environment ===")
		log.Info("")

		log.Info("Application:")
		log.Info("  Name:       " + identity.BinaryName)
		log.Info("  Version:    " + versionInfo.Version)
		log.Info("  Commit:     " + versionInfo.Commit)
		log.Info("  Built:      " + versionInfo.BuildDate)
		log.Info("")

		log.Info("SSOT:")
		log.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		log.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		log.Info("")

		log.Info("Runtime:")
		log.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		log.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		log.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		log.Info("")

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return
		}

		log.Info("Configuration:")
		log.Info("  Config File:    " + config.DefaultConfigPath())
		log.Info("  Log Level:      " + cfg.Logging.Level)
		log.Info(fmt.Sprintf("  Server:         %s:%d", cfg.Server.Host, cfg.Server.Port))
		log.Info("  DB Driver:      " + cfg.Store.Driver)
		if strings.TrimSpace(cfg.Store.URL) != "" {
			log.Info("  DB URL:         " + cfg.Store.URL)
		} else {
			log.Info("  DB Path:        " + cfg.Store.Path)
		}
		log.Info(fmt.Sprintf("  Metrics:        %t (port %d)", cfg.Metrics.Enabled, cfg.Metrics.Port))
		log.Info("")

		log.Info("Catalog:")
		log.Info("  Base URL:       "+valueOrUnset(cfg.Catalog.BaseURL), zap.String("base_url", cfg.Catalog.BaseURL))
		log.Info("  Search Path:    " + cfg.Catalog.SearchPath)
		log.Info("  Proxy URL:      " + valueOrUnset(cfg.Catalog.ProxyURL))
		log.Info(fmt.Sprintf("  Primary Budget: %s x%d (step %s)", cfg.Catalog.Primary.Timeout, cfg.Catalog.Primary.Retries+1, cfg.Catalog.Primary.RetryDelay))
		log.Info(fmt.Sprintf("  Proxy Budget:   %s x%d (step %s)", cfg.Catalog.Proxy.Timeout, cfg.Catalog.Proxy.Retries+1, cfg.Catalog.Proxy.RetryDelay))
		log.Info("")

		log.Info("Search:")
		log.Info("  Debounce:       " + cfg.Search.Debounce.String())
		log.Info(fmt.Sprintf("  Min Query:      %d", cfg.Search.MinQueryLength))
		log.Info(fmt.Sprintf("  Limit:          %d (+%d per page)", cfg.Search.Limit, cfg.Search.LimitStep))
		log.Info(fmt.Sprintf("  Structured:     %t", cfg.Search.Structured))
		log.Info(fmt.Sprintf("  Cache:          %t (ttl %s)", cfg.Cache.Enabled, cfg.Cache.SearchTTL))
		log.Info("")

		log.Info("Proxy Route:")
		log.Info(fmt.Sprintf("  Enabled:        %t", cfg.Proxy.Enabled))
		log.Info("  Path:           " + proxyPath(cfg))
		log.Info("")

		log.Info("=== End Environment Information ===")
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
