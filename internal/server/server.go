package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/reelvault/reelvault/internal/config"
	"github.com/reelvault/reelvault/internal/handler"
	"github.com/reelvault/reelvault/internal/metrics"
	"github.com/reelvault/reelvault/internal/server/middleware"
	"github.com/reelvault/reelvault/internal/service"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	APIKeyHeader    string
	PublicRateLimit int // requests per minute per API key, 0 disables
	LoginRateLimit  int // requests per minute per IP on login/register, 0 disables
	MaxBodySize     int64
	Version         string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		APIKeyHeader:    "X-API-Key",
		LoginRateLimit:  10,
		MaxBodySize:     1 << 20, // 1MB
		Version:         "dev",
	}
}

// Pinger is a dependency checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the server routes to. Store, Auth, Keys, and Usage
// are required; Metrics and Cache are optional.
type Deps struct {
	Store   *config.Store
	Auth    *service.AuthService
	Keys    *service.KeyService
	Usage   *service.UsageRecorder
	Metrics *metrics.Metrics
	Cache   Pinger
}

// Server is the top-level HTTP server. It owns the Chi router and the
// lifetime of the usage recorder.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = "X-API-Key"
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	if s.cfg.MaxBodySize > 0 {
		r.Use(chimw.RequestSize(s.cfg.MaxBodySize))
	}

	// --- Health checks and metrics (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}

	movieHandler := handler.NewMovieHandler(s.deps.Store)
	sysHandler := handler.NewSystemHandler(s.deps.Store, s.deps.Auth, s.deps.Keys)

	// --- Public, key-gated API ---
	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", s.cfg.APIKeyHeader},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         86400,
		}))

		r.Get("/openapi.json", handler.NewOpenAPIHandler(s.cfg.Version, s.cfg.APIKeyHeader).ServeSpec)

		r.Group(func(r chi.Router) {
			if s.cfg.PublicRateLimit > 0 {
				r.Use(middleware.RateLimitByHeader(s.cfg.APIKeyHeader, s.cfg.PublicRateLimit))
			}
			r.Use(middleware.RequireAPIKey(s.deps.Keys, s.deps.Usage, s.cfg.APIKeyHeader, s.logger))

			r.Get("/movies", movieHandler.ListMovies)
			r.Get("/movies/{id}", movieHandler.GetMovie)
		})
	})

	// --- Admin API ---
	r.Route("/api/v1/system", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))

		// Session and registration endpoints are unauthenticated.
		r.Group(func(r chi.Router) {
			if s.cfg.LoginRateLimit > 0 {
				r.Use(middleware.RateLimitByIP(s.cfg.LoginRateLimit))
			}
			r.Post("/admin/session", sysHandler.Login)
			r.Post("/register", sysHandler.Register)
		})
		r.Delete("/admin/session", sysHandler.Logout)

		// Everything else requires an admin session.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.deps.Auth))
			r.Use(middleware.RequireAdmin())

			r.Get("/api-key", sysHandler.ListAPIKeys)
			r.Post("/api-key", sysHandler.CreateAPIKey)
			r.Patch("/api-key/{keyId}", sysHandler.RenameAPIKey)
			r.Post("/api-key/{keyId}/toggle", sysHandler.ToggleAPIKey)
			r.Delete("/api-key/{keyId}", sysHandler.DeleteAPIKey)

			r.Post("/movie", sysHandler.UpsertMovie)
		})
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the store (and the
// cache, when one is configured) answers a ping, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	probes := map[string]Pinger{"store": s.deps.Store}
	if s.deps.Cache != nil {
		probes["cache"] = s.deps.Cache
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for name, p := range probes {
		if err := p.Ping(ctx); err != nil {
			checks[name] = "error: " + err.Error()
			status = "degraded"
		} else {
			checks[name] = "ok"
		}
	}

	if status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the usage recorder and the HTTP server, and blocks
// until a SIGINT or SIGTERM is received. It then performs a graceful
// shutdown: in-flight requests are drained first, then every pending usage
// update is written. Closing the store is left to the caller.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Listen for shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s.deps.Usage.Start(ctx)
	go s.logUsageErrors(ctx)

	// Start server in background goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr, "version", s.cfg.Version)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		s.deps.Usage.Close()
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	shutdownErr := s.httpServer.Shutdown(shutdownCtx)

	// No request can record usage any more; flush what is queued.
	s.deps.Usage.Close()

	if shutdownErr != nil {
		return fmt.Errorf("server shutdown: %w", shutdownErr)
	}
	s.logger.Info("server stopped")
	return nil
}

// logUsageErrors drains the recorder's error channel until ctx is done.
// The recorder already logs each failure; this keeps the count visible at
// debug level without blocking the workers.
func (s *Server) logUsageErrors(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-s.deps.Usage.Errors():
			s.logger.Debug("usage error observed", "error", err)
		}
	}
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
