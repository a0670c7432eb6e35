package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cem-sucu/ia-familiale/internal/api"
)

// publicExceptions are specific paths that don't require auth.
var publicExceptions = []string{
	"/api/healthz",
	"/api/auth/register",
	"/api/auth/login",
}

// IsAuthRequired checks if a given path requires authentication.
// This is used by the auth middleware to make gating decisions.
func IsAuthRequired(path string) bool {
	for _, exc := range publicExceptions {
		if pathMatchesPrefix(path, exc) {
			return false
		}
	}
	// Default: require auth for everything else.
	return true
}

// pathMatchesPrefix checks if path equals or is a subpath of prefix.
func pathMatchesPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	if len(path) > len(prefix) && path[:len(prefix)] == prefix {
		if path[len(prefix)] == '/' {
			return true
		}
	}
	return false
}

// setupRoutes creates the chi router with all endpoints mounted.
func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()

	// Global middleware stack (order matters for correct logging).
	// RequestID must come first so GetReqID works downstream.
	r.Use(middleware.RequestID)
	r.Use(s.requestLoggerMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.authMiddleware)
	r.Use(s.rateLimitMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/healthz", api.HealthHandler)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.authHandler.Register)
			r.Post("/login", s.authHandler.Login)
			r.Post("/logout", s.authHandler.Logout)
		})

		r.Route("/circles", func(r chi.Router) {
			r.Post("/", s.handleCreateCircle)
			r.Post("/{circleID}/invitations", s.handleCreateInvitation)
			r.Post("/join", s.handleJoinCircle)
		})

		r.Get("/members", s.handleListMembers)
		r.Post("/members/{memberID}/state", s.handleChangeState)
		r.Post("/members/{memberID}/push-token", s.handleSavePushToken)

		r.Get("/vocabulary", s.handleVocabulary)

		r.Route("/messages", func(r chi.Router) {
			r.Get("/", s.handleListMessages)
			r.Post("/", s.handleSendMessage)
			r.Patch("/{messageID}", s.handleEditMessage)
			r.Delete("/{messageID}", s.handleCancelMessage)
		})
	})

	r.Get("/ws", s.handleWebSocket)

	return r
}
