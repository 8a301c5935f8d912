// Package api provides the HTTP REST API for portrisk.
// It implements endpoints for submitting and following port scans,
// classifying port lists by risk, and exposing health and metrics.
package api

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	apihandlers "github.com/anstrom/portrisk/internal/api/handlers"
	"github.com/anstrom/portrisk/internal/api/middleware"
	"github.com/anstrom/portrisk/internal/config"
	"github.com/anstrom/portrisk/internal/logging"
	"github.com/anstrom/portrisk/internal/metrics"
)

// Server timeout constants.
const (
	serverShutdownTimeout = 30 * time.Second
	maxHeaderBytes        = 1 << 20
)

// Server represents the API server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	config     *config.Config
	logger     *logging.Logger
	recorder   metrics.Recorder
	metricsH   http.Handler
	accessLog  io.Writer

	health    *apihandlers.HealthHandler
	scans     *apihandlers.ScanHandler
	risk      *apihandlers.RiskHandler
	websocket *apihandlers.WebSocketHandler

	mu       sync.Mutex
	listener net.Listener
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithRecorder sets the recorder the request metrics middleware reports to.
func WithRecorder(recorder metrics.Recorder) Option {
	return func(s *Server) { s.recorder = recorder }
}

// WithPrometheus reports request metrics to pm and serves its registry on
// the configured metrics path.
func WithPrometheus(pm *metrics.PrometheusMetrics) Option {
	return func(s *Server) {
		s.recorder = pm
		s.metricsH = pm.Handler()
	}
}

// WithAccessLog writes an Apache Combined Log Format line per request to w.
func WithAccessLog(w io.Writer) Option {
	return func(s *Server) { s.accessLog = w }
}

// New creates a new API server instance. pool may be nil.
func New(cfg *config.Config, service apihandlers.ScanService, pool apihandlers.PoolStats, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("api: config is required")
	}
	if service == nil {
		return nil, fmt.Errorf("api: scan service is required")
	}

	s := &Server{
		router:   mux.NewRouter(),
		config:   cfg,
		logger:   logging.Default(),
		recorder: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("api")

	s.health = apihandlers.NewHealthHandler(pool, cfg.Workers.QueueSize)
	s.scans = apihandlers.NewScanHandler(service, cfg.Scanning.DefaultPorts, s.logger)
	s.risk = apihandlers.NewRiskHandler(s.recorder)
	s.websocket = apihandlers.NewWebSocketHandler(s.logger, cfg.API.CORS.AllowedOrigins)

	s.setupRoutes()
	s.setupMiddleware()

	handler := s.corsHandler(s.router)
	if s.accessLog != nil {
		handler = handlers.CombinedLoggingHandler(s.accessLog, handler)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.GetAPIAddress(),
		Handler:           handler,
		ReadTimeout:       cfg.API.ReadTimeout,
		ReadHeaderTimeout: cfg.API.ReadTimeout,
		WriteTimeout:      cfg.API.WriteTimeout,
		IdleTimeout:       cfg.API.IdleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}

	return s, nil
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.health.Health).Methods(http.MethodGet)
	api.HandleFunc("/version", s.health.Version).Methods(http.MethodGet)

	api.HandleFunc("/scans", s.scans.CreateScan).Methods(http.MethodPost)
	api.HandleFunc("/scans", s.scans.ListScans).Methods(http.MethodGet)
	api.HandleFunc("/scans/{id}", s.scans.GetScan).Methods(http.MethodGet)
	api.HandleFunc("/scans/{id}", s.scans.CancelScan).Methods(http.MethodDelete)

	api.HandleFunc("/classify", s.risk.Classify).Methods(http.MethodPost)
	api.HandleFunc("/risk/table", s.risk.Table).Methods(http.MethodGet)

	api.HandleFunc("/ws", s.websocket.ScanWebSocket).Methods(http.MethodGet)

	if s.config.Metrics.Enabled && s.metricsH != nil {
		s.router.Handle(s.config.Metrics.Path, s.metricsH).Methods(http.MethodGet)
	}

	s.router.HandleFunc("/", s.index).Methods(http.MethodGet)
}

// setupMiddleware configures middleware for the API server.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Recovery(s.logger))
	if s.config.Logging.RequestLogging {
		s.router.Use(middleware.Logging(s.logger))
	}
	s.router.Use(middleware.Metrics(s.recorder))
	s.router.Use(middleware.ContentType())
	s.router.Use(middleware.MaxBodySize(s.config.API.MaxRequestSize))
}

// corsHandler wraps the whole router so preflight requests are answered
// even though no route registers OPTIONS.
func (s *Server) corsHandler(next http.Handler) http.Handler {
	cors := s.config.API.CORS
	if !cors.Enabled {
		return next
	}
	return handlers.CORS(
		handlers.AllowedOrigins(cors.AllowedOrigins),
		handlers.AllowedMethods(cors.AllowedMethods),
		handlers.AllowedHeaders(cors.AllowedHeaders),
		handlers.ExposedHeaders([]string{middleware.RequestIDHeader}),
	)(next)
}

// index lists the main endpoints.
func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	endpoints := map[string]string{
		"health":     "/api/v1/health",
		"version":    "/api/v1/version",
		"scans":      "/api/v1/scans",
		"classify":   "/api/v1/classify",
		"risk_table": "/api/v1/risk/table",
		"websocket":  "/api/v1/ws",
	}
	if s.config.Metrics.Enabled && s.metricsH != nil {
		endpoints["metrics"] = s.config.Metrics.Path
	}
	apihandlers.WriteJSON(w, r, http.StatusOK, map[string]interface{}{
		"service":   "portrisk API",
		"version":   "v1",
		"endpoints": endpoints,
		"timestamp": time.Now().UTC(),
	})
}

// Start listens on the configured address and serves until ctx is cancelled
// or the server fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("API server failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("Starting API server",
		"address", ln.Addr().String(),
		"read_timeout", s.httpServer.ReadTimeout,
		"write_timeout", s.httpServer.WriteTimeout)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server failed: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err, ok := <-errChan:
		if !ok {
			return nil
		}
		return err
	}
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	s.websocket.Close()

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("API server shutdown error", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped successfully")
	return nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// GetRouter returns the configured router.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// WebSocket returns the live progress handler so it can be subscribed to
// scan job events.
func (s *Server) WebSocket() *apihandlers.WebSocketHandler {
	return s.websocket
}

// GetAddress returns the bound address once started, else the configured one.
func (s *Server) GetAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}
