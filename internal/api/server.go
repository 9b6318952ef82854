package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/teamops/warden/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, handler *Handler) *Server {
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	// Health endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Violation events
	router.Post("/events", handler.CreateEvent)
	router.Post("/events/batch", handler.BatchCreateEvents)
	router.Post("/events/effective", handler.BatchSetEffective)
	router.Get("/events", handler.ListEvents)
	router.Get("/events/{id}", handler.GetEvent)
	router.Patch("/events/{id}", handler.CorrectEvent)
	router.Patch("/events/{id}/effective", handler.SetEffective)
	router.Delete("/events/{id}", handler.DeleteEvent)

	// Derived status
	router.Get("/employees/{id}/status", handler.GetStatus)
	router.Post("/statuses", handler.GetStatuses)

	// Batch evaluation runs
	router.Post("/runs", handler.RunBatch)

	// Supporting data
	router.Post("/snapshots", handler.SaveSnapshot)
	router.Put("/employees/{id}", handler.UpsertEmployee)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
