// Package server provides HTTP server wiring and lifecycle management.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cem-sucu/ia-familiale/internal/api"
	"github.com/cem-sucu/ia-familiale/internal/cache"
	"github.com/cem-sucu/ia-familiale/internal/circle"
	"github.com/cem-sucu/ia-familiale/internal/config"
	"github.com/cem-sucu/ia-familiale/internal/delivery"
	"github.com/cem-sucu/ia-familiale/internal/identity"
	"github.com/cem-sucu/ia-familiale/internal/notify"
	"github.com/cem-sucu/ia-familiale/internal/push"
	"github.com/cem-sucu/ia-familiale/internal/store"
	"github.com/cem-sucu/ia-familiale/internal/trigger"
)

// ErrMissingDep is returned when a required dependency is nil.
var ErrMissingDep = errors.New("missing required dependency")

// Deps holds all server dependencies.
type Deps struct {
	// Required: persistence
	Store store.Driver

	// Required: identity and auth
	Sessions identity.SessionRepo
	Auth     *identity.UserAuth

	// Required: domain services
	Registry *trigger.Registry
	Machine  *delivery.Machine
	Circles  *circle.Service

	// Optional: real-time push hub (nil disables /ws)
	Hub *push.Hub

	// Optional: out-of-app notifications (nil uses a log notifier)
	Notifier notify.Notifier

	// Optional: rate limit counter (nil disables rate limiting even when
	// enabled in config)
	RateCounter cache.Counter
}

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg         *config.Config
	httpServer  *http.Server
	logger      *slog.Logger
	deps        *Deps
	authHandler *api.AuthHandler
}

// New creates a new Server with the given configuration.
// Returns an error if required dependencies are missing.
func New(cfg *config.Config, logger *slog.Logger, deps *Deps) (*Server, error) {
	if err := validateDeps(deps); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewLogNotifier(logger)
	}

	s := &Server{
		cfg:         cfg,
		logger:      logger,
		deps:        deps,
		authHandler: api.NewAuthHandler(deps.Store, deps.Sessions, deps.Auth),
	}

	router := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: /ws holds long-lived connections.
		IdleTimeout: 60 * time.Second,
	}

	return s, nil
}

func validateDeps(deps *Deps) error {
	if deps == nil {
		return ErrMissingDep
	}
	switch {
	case deps.Store == nil,
		deps.Sessions == nil,
		deps.Auth == nil,
		deps.Registry == nil,
		deps.Machine == nil,
		deps.Circles == nil:
		return ErrMissingDep
	}
	return nil
}

// Handler returns the configured router, for tests that drive the server
// through httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server. It blocks until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting server",
		"addr", s.cfg.ListenAddr,
		"mode", s.cfg.Mode,
		"store", s.cfg.Store.Driver,
	)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}
