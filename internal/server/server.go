package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/hibernate/internal/cloud"
	"github.com/me/hibernate/internal/config"
	"github.com/me/hibernate/internal/engine"
	"github.com/me/hibernate/internal/store"
)

// Server is the Hibernate REST API server. It fronts the same store and
// cloud clients the background engine uses; the engine itself has no
// callable endpoints and is observed here only through /api/health.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	store     store.Store
	engine    engine.Engine
	broker    cloud.CredentialBroker
	instances cloud.InstanceClient
}

// New creates a new Server with all routes registered.
// eng may be nil when the engine is disabled (e.g. in tests).
func New(cfg config.ServerConfig, st store.Store, eng engine.Engine, broker cloud.CredentialBroker, instances cloud.InstanceClient, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		store:     st,
		engine:    eng,
		broker:    broker,
		instances: instances,
	}
	s.routes()
	return s
}

// StartEngine begins the schedule execution loop in a background goroutine.
func (s *Server) StartEngine(ctx context.Context) {
	if s.engine == nil {
		return
	}
	go func() {
		if err := s.engine.Start(ctx); err != nil && err != context.Canceled {
			s.logger.Error("engine stopped", "error", err)
		}
	}()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api", func(r chi.Router) {
		// Health
		r.Get("/health", s.handleHealth)

		// Auth
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/logout", s.handleLogout)

			r.Get("/role", s.handleGetRole)
			r.Post("/role", s.handleSetRole)

			r.Get("/instances", s.handleListInstances)
			r.Post("/instances/{id}/toggle", s.handleToggleInstance)

			r.Route("/schedules", func(r chi.Router) {
				r.Get("/", s.handleListSchedules)
				r.Post("/", s.handleCreateSchedule)
				r.Patch("/{id}", s.handlePatchSchedule)
				r.Delete("/{id}", s.handleDeleteSchedule)
			})
		})
	})
}
