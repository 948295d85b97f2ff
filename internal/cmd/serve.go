package cmd

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/icdlens/icdlens/internal/config"
	"github.com/icdlens/icdlens/internal/core/catalog"
	"github.com/icdlens/icdlens/internal/core/store"
	errwrap "github.com/icdlens/icdlens/internal/errors"
	"github.com/icdlens/icdlens/internal/metrics"
	"github.com/icdlens/icdlens/internal/observability"
	"github.com/icdlens/icdlens/internal/server"
	"github.com/icdlens/icdlens/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return handlers.ErrDegraded
	}
	return nil
}

// identityHealthChecker validates app identity metadata
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (i identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case i.binaryName == "":
		return errwrap.NewConfigInvalidError("app identity missing binary name")
	case i.envPrefix == "":
		return errwrap.NewConfigInvalidError("app identity missing env prefix")
	case i.configName == "":
		return errwrap.NewConfigInvalidError("app identity missing config name")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the catalog search proxy",
	Long: `Start the HTTP server that relays /api/icd10/search to the catalog for
clients that cannot reach it directly, alongside health, version and metrics
endpoints.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload configuration and report catalog changes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		identity := GetAppIdentity()
		namespace := identity.TelemetryNamespace()

		cfg := loadConfig(ctx, serveOverrides(cmd))
		observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level, namespace)
		logger := observability.ServerLogger

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(namespace, cfg.Metrics.Port); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
			}
		}

		builder := catalog.NewBuilder(cfg.Catalog.BaseURL)
		db := openCacheStore(ctx, cfg, logger)

		logger.Info("Initializing server",
			zap.String("service", identity.BinaryName),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Bool("catalog_configured", builder.Configured()),
			zap.Bool("proxy_enabled", cfg.Proxy.Enabled),
			zap.Bool("cache_enabled", db != nil),
			zap.Int("metrics_port", observability.GetMetricsPort()))

		hm := handlers.InitHealthManager(versionInfo.Version)
		registerHealthCheckers(hm, identity, builder, db)

		handlers.SetAppIdentity(identity)
		handlers.SetVersionInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
		handlers.SetCatalogInfo(handlers.CatalogInfo{
			Configured: builder.Configured(),
			SearchPath: cfg.Catalog.SearchPath,
			ProxyPath:  proxyPath(cfg),
		})

		opts := []server.Option{
			server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
			server.WithLogger(logger),
		}
		if cfg.Proxy.Enabled {
			opts = append(opts, server.WithSearchProxy(proxyPath(cfg), &handlers.SearchProxy{
				Catalog:    builder,
				Fetcher:    newFetcher(ctx, nil, cfg, db, logger),
				SearchPath: cfg.Catalog.SearchPath,
				Upstream:   cfg.Proxy.Upstream.Options(),
				Logger:     logger,
			}))
		}
		if cfg.Metrics.Enabled {
			opts = append(opts, server.WithClientMetrics())
		}
		srv := server.New(cfg.Server.Host, cfg.Server.Port, opts...)

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout <= 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Handlers run LIFO: the server stops first, the store and logger last.
		signals.OnShutdown(func(ctx context.Context) error {
			if err := logger.Sync(); err != nil {
				// stdout/stderr may already be closed
				logger.Debug("Logger sync returned error", zap.Error(err))
			}
			return nil
		})
		signals.OnShutdown(func(ctx context.Context) error {
			if db == nil {
				return nil
			}
			return db.Close()
		})
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}
			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: reloading configuration")
			reloaded, err := config.Load(ctx, serveOverrides(cmd))
			if err != nil {
				logger.Error("Failed to reload configuration", zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}
			if reloaded.Catalog.BaseURL != cfg.Catalog.BaseURL {
				// The proxy keeps its builder until restart.
				logger.Warn("Catalog base URL changed; restart to apply",
					zap.String("current", cfg.Catalog.BaseURL),
					zap.String("reloaded", reloaded.Catalog.BaseURL))
			}
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		metrics.SetServerStartTime(time.Now().Unix())

		errChan := make(chan error, 2)
		go func() {
			if err := srv.Start(); err != nil {
				errChan <- err
			}
		}()
		go func() {
			if err := signals.Listen(ctx); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(ctx, err, "server error")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host (default from server.host)")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "server port (default from server.port)")
}

// serveOverrides turns explicitly set flags into config overrides.
func serveOverrides(cmd *cobra.Command) map[string]any {
	srv := map[string]any{}
	if cmd.Flags().Changed("host") {
		srv["host"] = serverHost
	}
	if cmd.Flags().Changed("port") {
		srv["port"] = serverPort
	}
	if len(srv) == 0 {
		return nil
	}
	return map[string]any{"server": srv}
}

func registerHealthCheckers(hm *handlers.HealthManager, identity *appidentity.Identity, builder *catalog.Builder, db *store.Store) {
	hm.RegisterChecker("catalog", handlers.CatalogChecker(builder))
	if db != nil {
		hm.RegisterChecker("cache_store", handlers.StoreChecker(db))
	}
	hm.RegisterChecker("telemetry", telemetryHealthChecker{})
	if identity != nil {
		hm.RegisterChecker("app_identity", identityHealthChecker{
			binaryName: identity.BinaryName,
			envPrefix:  identity.EnvPrefix,
			configName: identity.ConfigName,
		})
	}
}

func proxyPath(cfg *config.Config) string {
	if !cfg.Proxy.Enabled {
		return ""
	}
	if cfg.Proxy.Path == "" {
		return config.DefaultProxyPath
	}
	return cfg.Proxy.Path
}
