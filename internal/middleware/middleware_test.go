package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asjpl/pcl-portal/internal/models"
	"github.com/asjpl/pcl-portal/internal/services/auth"
)

// stubAuth maps tokens to sessions
type stubAuth map[string]*models.Session

func (s stubAuth) Authenticate(_ context.Context, token string) (*models.Session, error) {
	if session, ok := s[token]; ok {
		return session, nil
	}
	return nil, errors.New("invalid token")
}

func sessionFor(role models.Role, mustReset bool) *models.Session {
	now := time.Now()
	return &models.Session{
		SubjectID:         uuid.New(),
		Email:             string(role) + "@example.com",
		Role:              role,
		MustResetPassword: mustReset,
		TokenID:           uuid.NewString(),
		IssuedAt:          now,
		ExpiresAt:         now.Add(auth.SessionTTL),
	}
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotNil(t, GetSession(r))
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequire_Page(t *testing.T) {
	m := NewAuth(stubAuth{
		"admin":          sessionFor(models.RoleAdmin, false),
		"customer":       sessionFor(models.RoleCustomer, false),
		"customer-reset": sessionFor(models.RoleCustomer, true),
		"admin-reset":    sessionFor(models.RoleAdmin, true),
	})
	adminOnly := auth.Boundary{Role: models.RoleAdmin}
	customerOnly := auth.Boundary{Role: models.RoleCustomer}
	resetPage := auth.Boundary{Role: models.RoleCustomer, AllowDuringReset: true}

	tests := []struct {
		name     string
		token    string
		boundary auth.Boundary
		status   int
		location string
	}{
		{"no cookie", "", adminOnly, http.StatusSeeOther, "/login"},
		{"bad token", "forged", adminOnly, http.StatusSeeOther, "/login"},
		{"admin on admin page", "admin", adminOnly, http.StatusOK, ""},
		{"customer on admin page goes home", "customer", adminOnly, http.StatusSeeOther, "/account"},
		{"admin on customer page goes home", "admin", customerOnly, http.StatusSeeOther, "/admin"},
		{"reset required", "customer-reset", customerOnly, http.StatusSeeOther, "/account/reset-password"},
		{"reset page during reset", "customer-reset", resetPage, http.StatusOK, ""},
		{"admin flagged for reset", "admin-reset", adminOnly, http.StatusSeeOther, "/login?error=password_reset_required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/page", nil)
			if tt.token != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.token})
			}
			rec := httptest.NewRecorder()
			m.Require(tt.boundary, Page)(okHandler(t)).ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.location, rec.Header().Get("Location"))
		})
	}
}

func TestRequire_API(t *testing.T) {
	m := NewAuth(stubAuth{
		"customer":       sessionFor(models.RoleCustomer, false),
		"customer-reset": sessionFor(models.RoleCustomer, true),
	})
	adminOnly := auth.Boundary{Role: models.RoleAdmin}

	tests := []struct {
		name   string
		header string
		status int
		errMsg string
	}{
		{"missing", "", http.StatusUnauthorized, "Unauthorized"},
		{"wrong role", "Bearer customer", http.StatusForbidden, "Forbidden"},
		{"reset required", "Bearer customer-reset", http.StatusForbidden, "Password reset required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/customers", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			m.Require(adminOnly, API)(okHandler(t)).ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.errMsg, body["error"])
		})
	}
}

func TestRequire_ResetGateAcrossRequests(t *testing.T) {
	m := NewAuth(stubAuth{"t": sessionFor(models.RoleCustomer, true)})
	for _, path := range []string{"/account", "/account/messages", "/account/leases", "/account/profile"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "t"})
		rec := httptest.NewRecorder()
		m.Require(auth.Boundary{Role: models.RoleCustomer}, Page)(okHandler(t)).ServeHTTP(rec, req)
		assert.Equal(t, "/account/reset-password", rec.Header().Get("Location"), path)
	}
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, TokenFromRequest(req))

	req.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", TokenFromRequest(req))

	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "cookie"})
	assert.Equal(t, "cookie", TokenFromRequest(req))
}

func TestRecover(t *testing.T) {
	h := Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChain_OrderAndHeaders(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.NotFoundHandler(), mark("first"), SecurityHeaders, mark("second"), Logger)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/api/admin/customers/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/customers/123", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	count := testCounterValue(t, "GET", "/api/admin/customers/{id}", "204")
	assert.GreaterOrEqual(t, count, 1.0)
}

func testCounterValue(t *testing.T, labels ...string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, httpRequestsTotal.WithLabelValues(labels...).Write(&m))
	return m.GetCounter().GetValue()
}
