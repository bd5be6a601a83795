package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"safesight/internal/config"
	"safesight/internal/core"
	"safesight/internal/logger"
	"safesight/internal/metrics"
	"safesight/internal/takeaway"
)

// TakeawayService is the find-or-generate entry point the API exposes
type TakeawayService interface {
	FindOrGenerate(ctx context.Context, req takeaway.Request) *core.Takeaway
}

// Pinger reports cache store health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	takeaways  TakeawayService
	store      Pinger
	metrics    *metrics.Metrics
	config     config.Server
	limiter    *clientLimiter
	log        *slog.Logger
}

// New creates a new HTTP server instance
func New(takeaways TakeawayService, store Pinger, m *metrics.Metrics, cfg config.Server) *Server {
	if m == nil {
		m = metrics.New(nil)
	}

	s := &Server{
		router:    chi.NewRouter(),
		takeaways: takeaways,
		store:     store,
		metrics:   m,
		config:    cfg,
		log:       logger.Get(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeoutDuration(),
		WriteTimeout: cfg.WriteTimeoutDuration(),
	}

	return s
}

// setupMiddleware configures middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	// Generation may wait on the shared inference quota, so allow most of the write timeout
	s.router.Use(middleware.Timeout(s.config.WriteTimeoutDuration()))
	s.router.Use(securityHeaders)

	if s.config.CORS.Enabled {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300, // Maximum value not ignored by any major browsers
		}))
	}

	if s.config.RateLimit.Enabled {
		s.limiter = newClientLimiter(s.config.RateLimit.RequestsPerSecond, s.config.RateLimit.Burst)
		s.router.Use(s.limiter.middleware)
	}
}

// setupRoutes configures routes for the server
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router.Route("/api/takeaways", func(r chi.Router) {
		r.Post("/listings/{listingID}", s.handleListingTakeaway)
		r.Post("/locations", s.handleLocationTakeaway)
		r.Post("/videos/{videoID}", s.handleVideoTakeaway)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info("Starting HTTP server",
		"addr", s.httpServer.Addr,
		"read_timeout", s.httpServer.ReadTimeout,
		"write_timeout", s.httpServer.WriteTimeout,
	)

	if s.limiter != nil {
		go s.limiter.sweep(context.Background(), time.Minute)
	}

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server gracefully...")

	if s.limiter != nil {
		s.limiter.stop()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.log.Info("HTTP server stopped")
	return nil
}

// Router returns the chi router instance (useful for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
