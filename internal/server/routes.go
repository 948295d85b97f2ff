package server

import (
	"context"
	"os"

	"github.com/fulmenhq/gofulmen/signals"
	"go.uber.org/zap"

	"github.com/icdlens/icdlens/internal/appid"
	"github.com/icdlens/icdlens/internal/server/handlers"
)

func (s *Server) registerRoutes() {
	s.router.Get("/health", handlers.HealthHandler)
	s.router.Get("/health/live", handlers.LivenessHandler)
	s.router.Get("/health/ready", handlers.ReadinessHandler)
	s.router.Get("/health/startup", handlers.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)
	if s.opts.clientStats {
		s.router.Get("/metrics/client", ClientMetricsHandler().ServeHTTP)
	}

	if s.opts.proxy != nil && s.opts.proxyPath != "" {
		s.router.Method("GET", s.opts.proxyPath, s.opts.proxy)
	}

	s.registerAdminEndpoint()
}

// registerAdminEndpoint mounts POST /admin/signal when <PREFIX>ADMIN_TOKEN
// is set; the endpoint lets operators trigger a config reload remotely.
func (s *Server) registerAdminEndpoint() {
	envPrefix := appid.EnvPrefix(context.Background())
	adminToken := os.Getenv(envPrefix + "ADMIN_TOKEN")
	logger := s.opts.logger

	if adminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no " + envPrefix + "ADMIN_TOKEN set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: adminToken,
		RateLimit: 10,
		RateBurst: 5,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("rate_limit", "10/min, burst 5"))
	}
}
