package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalog-hierarchy/config"
	"catalog-hierarchy/handlers"
	"catalog-hierarchy/services"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Server represents the HTTP server
type Server struct {
	config     *config.Config
	router     *mux.Router
	httpServer *http.Server
	services   *services.ServiceContainer
	logger     services.Logger
	limiter    *rate.Limiter

	// Handlers
	categoryHandler    *handlers.CategoryHandler
	maintenanceHandler *handlers.MaintenanceHandler
	performanceMonitor *handlers.PerformanceMonitor
}

// NewServer creates a new server instance over an already wired container.
func NewServer(cfg *config.Config, container *services.ServiceContainer) *Server {
	logger := container.Logger
	if logger == nil {
		logger = services.NewNopLogger()
	}

	slowQueryThreshold := cfg.Performance.SlowQueryThreshold
	if slowQueryThreshold == 0 {
		slowQueryThreshold = 500 * time.Millisecond
	}

	handlerFactory := handlers.NewHandlerFactory(
		container.Manager,
		logger,
		container.Registry,
		slowQueryThreshold,
	)

	router := mux.NewRouter()
	s := &Server{
		config:             cfg,
		router:             router,
		services:           container,
		logger:             logger.With(services.String("component", "http")),
		categoryHandler:    handlerFactory.CreateCategoryHandler(),
		maintenanceHandler: handlerFactory.CreateMaintenanceHandler(),
		httpServer: &http.Server{
			Addr:         ":" + cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
	}
	if cfg.Performance.MonitoringEnabled {
		s.performanceMonitor = handlerFactory.CreatePerformanceMonitor()
	}
	if cfg.RateLimit.Enabled {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
	}

	s.setupMiddleware()
	s.setupRoutes()
	// CORS wraps the router so preflight requests never reach method matching.
	s.httpServer.Handler = s.corsMiddleware(router)

	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.healthCheck).Methods("GET")
	if s.config.Performance.MetricsEnabled && s.services.Registry != nil {
		s.router.Handle(s.config.Performance.MetricsEndpoint,
			promhttp.HandlerFor(s.services.Registry, promhttp.HandlerOpts{})).Methods("GET")
	}

	// API version prefix
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.healthCheck).Methods("GET")

	// Category routes. Fixed segments are registered before {id}.
	categories := s.categoryHandler
	api.HandleFunc("/categories", categories.ListCategories).Methods("GET")
	api.HandleFunc("/categories", categories.CreateCategory).Methods("POST")
	api.HandleFunc("/categories/common-ancestor", categories.GetCommonAncestor).Methods("GET")
	api.HandleFunc("/categories/bulk-move", categories.BulkMove).Methods("POST")
	api.HandleFunc("/categories/bulk-reparent", categories.BulkReparent).Methods("POST")
	api.HandleFunc("/categories/reorder", categories.ReorderChildren).Methods("PUT")
	api.HandleFunc("/categories/{id}", categories.GetCategory).Methods("GET")
	api.HandleFunc("/categories/{id}", categories.RenameCategory).Methods("PATCH")
	api.HandleFunc("/categories/{id}", categories.DeleteCategory).Methods("DELETE")
	api.HandleFunc("/categories/{id}/ancestors", categories.GetAncestors).Methods("GET")
	api.HandleFunc("/categories/{id}/root-path", categories.GetRootPath).Methods("GET")
	api.HandleFunc("/categories/{id}/descendants", categories.GetDescendants).Methods("GET")
	api.HandleFunc("/categories/{id}/siblings", categories.GetSiblings).Methods("GET")
	api.HandleFunc("/categories/{id}/move", categories.MoveCategory).Methods("POST")

	// Consistency maintenance
	maintenance := s.maintenanceHandler
	api.HandleFunc("/hierarchy/validate", maintenance.ValidateForest).Methods("GET")
	api.HandleFunc("/hierarchy/repair", maintenance.Repair).Methods("POST")
	api.HandleFunc("/hierarchy/orphans/{id}/resolve", maintenance.ResolveOrphan).Methods("POST")

	// Performance and monitoring endpoints
	api.HandleFunc("/cache/stats", maintenance.CacheStats).Methods("GET")
	api.HandleFunc("/cache/clear", maintenance.ClearCache).Methods("POST")
	api.HandleFunc("/stats/queries", maintenance.QueryStats).Methods("GET")
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.contentTypeMiddleware)
	if s.performanceMonitor != nil {
		s.router.Use(s.performanceMonitor.Middleware)
	}
	if s.limiter != nil {
		s.router.Use(s.rateLimitMiddleware)
	}
}

// Start serves until SIGINT/SIGTERM or a listener failure, then shuts down
// gracefully.
func (s *Server) Start() error {
	s.logger.Info("Starting server", services.String("addr", s.httpServer.Addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		s.logger.Info("Shutting down server", services.String("signal", sig.String()))
	}
	return s.Shutdown()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.services.HealthService == nil {
		status, code := services.HealthStatusHealthy, http.StatusOK
		if err := s.services.HealthCheck(r.Context()); err != nil {
			status, code = services.HealthStatusUnhealthy, http.StatusServiceUnavailable
		}
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	systemHealth := s.services.HealthService.CheckHealth(r.Context())

	// Degraded still answers 200 so load balancers keep the instance.
	statusCode := http.StatusOK
	if systemHealth.Status == services.HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(systemHealth); err != nil {
		s.logger.Error("Failed to encode health response", err)
	}
}
