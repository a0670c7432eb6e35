package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/cem-sucu/ia-familiale/internal/api"
	"github.com/cem-sucu/ia-familiale/internal/appctx"
	"github.com/cem-sucu/ia-familiale/internal/cache"
	"github.com/cem-sucu/ia-familiale/internal/store"
)

type contextKey string

// MemberContextKey is the context key for the authenticated member.
const MemberContextKey contextKey = "member"

// MemberFromContext returns the authenticated member set by the auth
// middleware, or nil on public endpoints.
func MemberFromContext(ctx context.Context) *store.Member {
	m, _ := ctx.Value(MemberContextKey).(*store.Member)
	return m
}

// requestLoggerMiddleware attaches a request-scoped logger to the context.
func (s *Server) requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := s.logger.With("request_id", middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r.WithContext(appctx.WithLogger(r.Context(), logger)))
	})
}

// loggingMiddleware logs request information using slog.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// authMiddleware enforces session authentication.
// Public endpoints (health, register, login) bypass auth.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAuthRequired(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := api.BearerToken(r)
		if token == "" {
			api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
			return
		}

		session, err := s.deps.Sessions.Get(r.Context(), token)
		if err != nil {
			api.WriteUnauthorized(w, api.ReasonUnauthenticated, "session not found or expired")
			return
		}
		if session.IsExpired() {
			api.WriteUnauthorized(w, api.ReasonSessionExpired, "session has expired")
			return
		}

		member, err := s.deps.Store.GetMember(r.Context(), session.MemberID)
		if err != nil {
			api.WriteUnauthorized(w, api.ReasonUnauthenticated, "session member not found")
			return
		}

		ctx := context.WithValue(r.Context(), MemberContextKey, member)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimitMiddleware limits requests per client per minute, keyed by
// member when authenticated and by client IP otherwise.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.RateLimit.Enabled || s.deps.RateCounter == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := clientKey(r)
		count, _, err := s.deps.RateCounter.Increment(r.Context(), "rl:"+key, 1, cache.TTLRateLimit)
		if err != nil {
			// Rate limiting failures never take the API down.
			s.logger.Warn("rate limit counter failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if count > s.cfg.RateLimit.PerMinute {
			api.WriteTooManyRequests(w, "too many requests, slow down")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientKey identifies the client for rate limiting.
func clientKey(r *http.Request) string {
	if member := MemberFromContext(r.Context()); member != nil {
		return "member:" + member.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return fmt.Sprintf("ip:%s", host)
}
