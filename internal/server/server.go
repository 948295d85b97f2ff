package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/icdlens/icdlens/internal/errors"
	"github.com/icdlens/icdlens/internal/observability"
	servermw "github.com/icdlens/icdlens/internal/server/middleware"
)

// Server hosts the health, version, metrics and catalog proxy routes.
type Server struct {
	router *chi.Mux
	server *http.Server
	host   string
	port   int
	opts   options
}

type options struct {
	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration
	proxyPath    string
	proxy        http.Handler
	clientStats  bool
	logger       *logging.Logger
}

// Option configures a Server.
type Option func(*options)

// WithTimeouts overrides the http.Server read, write and idle timeouts;
// zero keeps the default.
func WithTimeouts(read, write, idle time.Duration) Option {
	return func(o *options) {
		if read > 0 {
			o.readTimeout = read
		}
		if write > 0 {
			o.writeTimeout = write
		}
		if idle > 0 {
			o.idleTimeout = idle
		}
	}
}

// WithSearchProxy mounts h as GET path.
func WithSearchProxy(path string, h http.Handler) Option {
	return func(o *options) {
		o.proxyPath = path
		o.proxy = h
	}
}

// WithClientMetrics exposes the catalog client's Prometheus registry on
// /metrics/client.
func WithClientMetrics() Option {
	return func(o *options) { o.clientStats = true }
}

func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

func New(host string, port int, opts ...Option) *Server {
	o := options{
		readTimeout:  30 * time.Second,
		writeTimeout: 30 * time.Second,
		idleTimeout:  120 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = observability.ServerLogger
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	s := &Server{
		router: r,
		host:   host,
		port:   port,
		opts:   o,
	}
	s.registerRoutes()
	return s
}

// Start listens on host:port and blocks until Shutdown. A clean shutdown
// returns nil.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.host, fmt.Sprint(s.port))
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       s.opts.readTimeout,
		ReadHeaderTimeout: s.opts.readTimeout,
		WriteTimeout:      s.opts.writeTimeout,
		IdleTimeout:       s.opts.idleTimeout,
	}

	s.info("Starting HTTP server",
		zap.String("addr", addr),
		zap.String("proxy_path", s.opts.proxyPath))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Port() int {
	return s.port
}

func (s *Server) info(msg string, fields ...zap.Field) {
	if s.opts.logger != nil {
		s.opts.logger.Info(msg, fields...)
	}
}
