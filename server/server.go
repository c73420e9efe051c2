// Package server exposes the stylization service over HTTP.
//
// Routes:
//
//	POST /ghiblification/   multipart "file" (+ optional "is_stall") -> image/png
//	GET  /stall/status      {"ts": <seconds since epoch, 0 when empty>}
//	GET  /stall/latest      image/png or 404
//	GET  /download/latest   image/png as attachment or 404
//	GET  /health            model and backend status
//	GET  /metrics           Prometheus exposition (when metrics are enabled)
//	GET  /ui/               browser client (when mounted)
//
// CORS is fully open and every error body is {"detail": "..."}.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"ghibli_backend/logging"
	"ghibli_backend/metrics"
	"ghibli_backend/shutdown"
	"ghibli_backend/stylize"
)

// Route paths
const (
	PathStylize        = "/ghiblification/"
	PathStylizeNoSlash = "/ghiblification"
	PathStallStatus    = "/stall/status"
	PathStallLatest    = "/stall/latest"
	PathDownloadLatest = "/download/latest"
	PathHealth         = "/health"
	PathMetrics        = "/metrics"
)

// DownloadFilename is suggested to browsers by /download/latest.
const DownloadFilename = "ghiblification_result.png"

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

// Config configures the HTTP server.
type Config struct {
	// Addr to listen on (default ":8000")
	Addr string

	// ReadTimeout for the whole request including the upload (default: 60s)
	ReadTimeout time.Duration

	// WriteTimeout is left at zero by default: a generation may take minutes.
	WriteTimeout time.Duration

	// IdleTimeout for keep-alive connections (default: 120s)
	IdleTimeout time.Duration

	// QuietPaths are logged at debug level (polling endpoints)
	QuietPaths []string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:        ":8000",
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 120 * time.Second,
		QuietPaths:  []string{PathStallStatus, PathStallLatest, PathHealth, PathMetrics},
	}
}

// DeviceInfo describes where inference runs, for /health.
type DeviceInfo struct {
	Device    string
	Precision string
}

// Server is the HTTP front of the stylization service.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	config     Config
	logger     *logging.Logger
	service    *stylize.Service
	metrics    *metrics.Metrics
	tracker    *shutdown.OperationTracker
	device     DeviceInfo
	ui         http.Handler
	uiPrefix   string
}

// Option configures optional Server collaborators.
type Option func(*Server)

// WithMetrics enables /metrics and per-request observations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithTracker registers stylizations as in-flight operations so shutdown
// can drain them.
func WithTracker(t *shutdown.OperationTracker) Option {
	return func(s *Server) { s.tracker = t }
}

// WithDeviceInfo is reported by /health.
func WithDeviceInfo(d DeviceInfo) Option {
	return func(s *Server) { s.device = d }
}

// WithUI mounts a static client under prefix.
func WithUI(prefix string, h http.Handler) Option {
	return func(s *Server) {
		s.uiPrefix = strings.TrimSuffix(prefix, "/")
		s.ui = h
	}
}

// New wires routes and middleware around service.
func New(config Config, service *stylize.Service, logger *logging.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	if config.Addr == "" {
		config.Addr = DefaultConfig().Addr
	}

	s := &Server{
		mux:     http.NewServeMux(),
		config:  config,
		logger:  logger.Named("http"),
		service: service,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
		ErrorLog:     zap.NewStdLog(s.logger.Zap()),
	}
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc(PathStylize, s.handleStylize)
	s.mux.HandleFunc(PathStylizeNoSlash, s.handleStylize)
	s.mux.HandleFunc(PathStallStatus, s.handleStallStatus)
	s.mux.HandleFunc(PathStallLatest, s.handleStallLatest)
	s.mux.HandleFunc(PathDownloadLatest, s.handleDownloadLatest)
	s.mux.HandleFunc(PathHealth, s.handleHealth)
	if s.metrics != nil {
		metricsHandler := s.metrics.Handler()
		s.mux.HandleFunc(PathMetrics, func(w http.ResponseWriter, r *http.Request) {
			if !allowMethod(w, r, http.MethodGet) {
				return
			}
			metricsHandler.ServeHTTP(w, r)
		})
	}
	if s.ui != nil && s.uiPrefix != "" {
		s.mux.Handle(s.uiPrefix, s.ui)
		s.mux.Handle(s.uiPrefix+"/", s.ui)
	}
	s.mux.HandleFunc("/", s.handleNotFound)
}

// Handler returns the routed handler with CORS and request logging applied.
func (s *Server) Handler() http.Handler {
	routes := map[string]bool{}
	for _, p := range []string{PathStylize, PathStylizeNoSlash, PathStallStatus, PathStallLatest, PathDownloadLatest, PathHealth, PathMetrics} {
		routes[p] = true
	}
	quiet := map[string]bool{}
	for _, p := range s.config.QuietPaths {
		quiet[p] = true
	}

	logMw := &requestLogger{logger: s.logger, quiet: quiet, routes: routes}
	if s.metrics != nil {
		logMw.observer = s.metrics
	}
	return logMw.Handler(CORS(s.mux))
}

// Start listens on the configured address and blocks until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln and blocks until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown error: %w", err)
	}
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
