// Package server assembles the ledger's HTTP and WebSocket API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veilmarket/veilmarket/internal/domain"
	"github.com/veilmarket/veilmarket/internal/metrics"
	"github.com/veilmarket/veilmarket/internal/server/handler"
	"github.com/veilmarket/veilmarket/internal/server/middleware"
	"github.com/veilmarket/veilmarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host             string
	Port             int
	APIKeys          []string // empty disables authentication
	CORSOrigins      []string
	RequireSignature bool
	RateLimitPerMin  int // used only when a limiter is wired
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Status  *handler.StatusHandler
	Markets *handler.MarketHandler
	Bets    *handler.BetHandler
	Access  *handler.AccessHandler
	Tallies *handler.TallyHandler
	Events  *handler.EventHandler
}

// Deps carries the optional collaborators: all may be nil, disabling the
// corresponding feature.
type Deps struct {
	Hub     *ws.Hub
	Metrics *metrics.Metrics
	Limiter domain.RateLimiter
}

// Server is the ledger's HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain wired: CORS, signature identity, request logging, API-key auth, and
// rate limiting on mutating routes.
func NewServer(cfg Config, handlers Handlers, deps Deps, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Per-route registration wraps each handler with request metrics keyed
	// by the route pattern.
	route := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, middleware.Instrument(deps.Metrics, pattern, h))
	}

	route("GET /api/health", handlers.Health.Check)
	route("GET /api/status", handlers.Status.Get)

	route("GET /api/markets", handlers.Markets.List)
	route("POST /api/markets", handlers.Markets.Create)
	route("GET /api/markets/{id}", handlers.Markets.Get)
	route("POST /api/markets/{id}/close", handlers.Markets.Close)

	route("GET /api/markets/{id}/tallies", handlers.Tallies.Get)

	route("POST /api/markets/{id}/bets", handlers.Bets.Place)
	route("GET /api/markets/{id}/bets/{principal}", handlers.Bets.Get)

	route("POST /api/markets/{id}/grants/tally", handlers.Access.GrantTally)
	route("POST /api/markets/{id}/grants/bet", handlers.Access.GrantBet)

	route("GET /api/events", handlers.Events.List)

	// Prometheus scrape endpoint; not self-instrumented.
	mux.Handle("GET /metrics", promhttp.Handler())

	if deps.Hub != nil {
		mux.HandleFunc("GET /ws", deps.Hub.HandleWS)
	}

	// Build the middleware chain inside-out; the last applied runs first.
	var h http.Handler = mux

	if deps.Limiter != nil && cfg.RateLimitPerMin > 0 {
		h = middleware.RateLimit(deps.Limiter, cfg.RateLimitPerMin, time.Minute)(h)
	}
	h = middleware.Auth(cfg.APIKeys)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.Identity(cfg.RequireSignature)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 30 * time.Second
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      h,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Handler returns the server's root handler with the full middleware chain
// applied. Used by tests and by embedders that bring their own listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
