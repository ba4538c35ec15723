// Package middleware provides HTTP middleware functions
package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/asjpl/pcl-portal/internal/models"
	"github.com/asjpl/pcl-portal/internal/services/auth"
)

type contextKey string

const (
	SessionContextKey contextKey = "session"
)

// SessionCookieName is the cookie that carries the signed session token
const SessionCookieName = "pcl_portal_session"

// Logger logs all HTTP requests
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", chimw.GetReqID(r.Context()),
		)
	})
}

// SecurityHeaders adds security headers to all responses
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'; img-src 'self' data:;")
		next.ServeHTTP(w, r)
	})
}

// Recover handles panics gracefully
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				slog.Error("panic recovered", "error", err, "path", r.URL.Path, "stack", string(debug.Stack()))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Style selects how a denied request is answered
type Style int

const (
	// Page boundaries redirect
	Page Style = iota
	// API boundaries answer with a JSON status
	API
)

// Authenticator resolves a token to a session
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Session, error)
}

// Auth middleware for protected routes
type Auth struct {
	authService Authenticator
}

// NewAuth creates a new auth middleware
func NewAuth(authService Authenticator) *Auth {
	return &Auth{authService: authService}
}

// Require guards a route with the given boundary. Any failure to verify the
// credential is treated as no session.
func (m *Auth) Require(boundary auth.Boundary, style Style) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := m.sessionFromRequest(r)
			decision := auth.Authorize(session, boundary)
			if !decision.Allowed {
				deny(w, r, decision, style)
				return
			}

			ctx := context.WithValue(r.Context(), SessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth adds the session to context if present, but doesn't require it
func (m *Auth) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if session := m.sessionFromRequest(r); session != nil {
			r = r.WithContext(context.WithValue(r.Context(), SessionContextKey, session))
		}
		next.ServeHTTP(w, r)
	})
}

func deny(w http.ResponseWriter, r *http.Request, d auth.Decision, style Style) {
	if style == Page {
		http.Redirect(w, r, d.Redirect, http.StatusSeeOther)
		return
	}

	status, msg := http.StatusForbidden, "Forbidden"
	switch d.Reason {
	case auth.ReasonUnauthenticated:
		status, msg = http.StatusUnauthorized, "Unauthorized"
	case auth.ReasonResetRequired:
		msg = "Password reset required"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "redirect": d.Redirect})
}

func (m *Auth) sessionFromRequest(r *http.Request) *models.Session {
	token := TokenFromRequest(r)
	if token == "" {
		return nil
	}
	session, err := m.authService.Authenticate(r.Context(), token)
	if err != nil {
		slog.Debug("session rejected", "path", r.URL.Path, "error", err)
		return nil
	}
	return session
}

// TokenFromRequest reads the session cookie, falling back to a bearer token
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// GetSession retrieves the session from the request context
func GetSession(r *http.Request) *models.Session {
	session, ok := r.Context().Value(SessionContextKey).(*models.Session)
	if !ok {
		return nil
	}
	return session
}

// Chain applies middleware in order
func Chain(h http.Handler, middleware ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}
