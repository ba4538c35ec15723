package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/asjpl/pcl-portal/internal/middleware"
	"github.com/asjpl/pcl-portal/internal/models"
	"github.com/asjpl/pcl-portal/internal/services/auth"
)

// requestTimeout bounds a single request, including provider calls
const requestTimeout = 30 * time.Second

var (
	adminBoundary    = auth.Boundary{Role: models.RoleAdmin}
	customerBoundary = auth.Boundary{Role: models.RoleCustomer}
	resetBoundary    = auth.Boundary{Role: models.RoleCustomer, AllowDuringReset: true}
	anyRoleBoundary  = auth.Boundary{}
)

// Routes builds the router
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		middleware.Recover,
		middleware.SecurityHeaders,
		middleware.Logger,
		middleware.Metrics,
		chimw.Timeout(requestTimeout),
	)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		h.redirect(w, r, models.LoginPath)
	})

	// Public, session-aware
	r.Group(func(r chi.Router) {
		r.Use(h.authMW.OptionalAuth)
		r.Get(models.LoginPath, h.LoginPage)
		r.Get("/logout", h.Logout)
		r.Post("/logout", h.Logout)
		r.Post("/api/auth/logout", h.APILogout)
		r.Get("/api/debug/session", h.DebugSession)
	})
	r.Post("/api/auth/login", h.Login)

	// Pages
	r.With(h.authMW.Require(adminBoundary, middleware.Page)).Get(models.AdminHomePath, h.AdminHome)
	r.With(h.authMW.Require(customerBoundary, middleware.Page)).Get(models.CustomerHomePath, h.AccountHome)
	r.With(h.authMW.Require(resetBoundary, middleware.Page)).Get(models.ResetPasswordPath, h.ResetPasswordPage)

	// Session APIs
	r.With(h.authMW.Require(resetBoundary, middleware.API)).Post("/api/auth/reset-password", h.CompletePasswordReset)
	r.With(h.authMW.Require(anyRoleBoundary, middleware.API)).Get("/api/profile", h.Profile)

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(h.authMW.Require(adminBoundary, middleware.API))

		r.Post("/users", h.CreateAdminUser)

		r.Get("/customers", h.ListCustomers)
		r.Post("/customers", h.CreateCustomer)
		r.Get("/customers/{id}", h.GetCustomer)
		r.Post("/customers/{id}/temp-password", h.IssueTemporaryPassword)

		r.Get("/vehicles", h.ListVehicles)
		r.Post("/vehicles", h.CreateVehicle)
		r.Get("/vehicles/{slug}", h.GetVehicle)
		r.Post("/regcheck", h.RegCheckLookup)

		r.Get("/leases", h.ListLeases)
		r.Post("/leases", h.CreateLease)
		r.Get("/leases/{id}", h.GetLease)

		r.Post("/payments/{id}/paid", paymentAction(h.leasing.MarkPaid))
		r.Post("/payments/{id}/waive", paymentAction(h.leasing.Waive))
		r.Post("/payments/{id}/fail", paymentAction(h.leasing.MarkFailed))
		r.Post("/late-fees/{id}/waive", h.WaiveLateFee)

		r.Post("/messages", h.SendMessage)
	})

	r.Route("/api/account", func(r chi.Router) {
		r.Use(h.authMW.Require(customerBoundary, middleware.API))
		r.Get("/leases", h.AccountLeases)
		r.Get("/messages", h.AccountMessages)
	})

	// Machine callers authenticate with shared secrets
	r.Post("/api/webhooks/clicksend/inbound", h.InboundSMS)
	r.Get("/api/cron/late-fees", h.RunLateFees)
	r.Post("/api/cron/late-fees", h.RunLateFees)

	return r
}
