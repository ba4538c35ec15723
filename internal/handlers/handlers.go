// Package handlers provides HTTP request handlers
package handlers

import (
	"embed"
	"encoding/json"
	"html/template"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/asjpl/pcl-portal/internal/apperr"
	"github.com/asjpl/pcl-portal/internal/config"
	"github.com/asjpl/pcl-portal/internal/middleware"
	"github.com/asjpl/pcl-portal/internal/services/auth"
	"github.com/asjpl/pcl-portal/internal/services/customers"
	"github.com/asjpl/pcl-portal/internal/services/latefees"
	"github.com/asjpl/pcl-portal/internal/services/leasing"
	"github.com/asjpl/pcl-portal/internal/services/messaging"
	"github.com/asjpl/pcl-portal/internal/services/regcheck"
)

//go:embed pages/*.html
var pageFiles embed.FS

// maxBodyBytes caps JSON and form request bodies
const maxBodyBytes = 1 << 20

// Services bundles what the handlers call into
type Services struct {
	Auth      *auth.Service
	Customers *customers.Service
	Leasing   *leasing.Service
	Messaging *messaging.Service
	RegCheck  *regcheck.Client
	LateFees  *latefees.Job
}

// Handler contains all HTTP handlers and dependencies
type Handler struct {
	cfg       *config.Config
	pages     *template.Template
	auth      *auth.Service
	customers *customers.Service
	leasing   *leasing.Service
	messaging *messaging.Service
	regcheck  *regcheck.Client
	lateFees  *latefees.Job
	authMW    *middleware.Auth
	now       func() time.Time
}

// New creates a new handler with all dependencies
func New(cfg *config.Config, svc Services) (*Handler, error) {
	pages, err := template.New("").ParseFS(pageFiles, "pages/*.html")
	if err != nil {
		return nil, err
	}

	return &Handler{
		cfg:       cfg,
		pages:     pages,
		auth:      svc.Auth,
		customers: svc.Customers,
		leasing:   svc.Leasing,
		messaging: svc.Messaging,
		regcheck:  svc.RegCheck,
		lateFees:  svc.LateFees,
		authMW:    middleware.NewAuth(svc.Auth),
		now:       time.Now,
	}, nil
}

// pageData is the common shape passed to every page
type pageData struct {
	Title             string
	ProductName       string
	Error             string
	Notice            string
	MinPasswordLength int
	Session           any
	Customer          any
	Leases            any
	Counts            counts
}

// counts is the admin dashboard summary
type counts struct {
	Customers int
	Vehicles  int
	Leases    int
}

// render renders a template with the given data
func (h *Handler) render(w http.ResponseWriter, name string, data pageData) {
	data.ProductName = h.cfg.ProductName
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.pages.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("failed to render page", "page", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// redirect performs an HTTP redirect
func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, url string) {
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// writeJSON writes v with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// jsonError writes a JSON error response
func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeError maps err to its status. Server-side failures are logged and
// answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	jsonError(w, apperr.Message(err), status)
}

// isForm reports whether the request body is a browser form post
func isForm(r *http.Request) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data"
}

// decodeJSON reads a JSON body into dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if err == io.EOF {
			return apperr.Validation("Request body is required.")
		}
		return apperr.Wrap(apperr.ErrValidation, "Invalid JSON.", err)
	}
	return nil
}

// parseForm reads a form body, capping its size
func parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return apperr.Wrap(apperr.ErrValidation, "Invalid form.", err)
	}
	return nil
}

// uuidParam parses a UUID route parameter
func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.NotFound("Not found.")
	}
	return id, nil
}
