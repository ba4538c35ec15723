package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/asjpl/pcl-portal/internal/apperr"
	"github.com/asjpl/pcl-portal/internal/middleware"
	"github.com/asjpl/pcl-portal/internal/models"
	"github.com/asjpl/pcl-portal/internal/services/auth"
	"github.com/asjpl/pcl-portal/internal/services/customers"
)

var loginMessages = map[string]string{
	"password_reset_required": "Your password must be reset before you can continue. Contact support for a new temporary password.",
	"invalid_credentials":     "Invalid credentials.",
}

// LoginPage renders the login page
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	// Signed-in principals go to their workspace, except an administrator
	// flagged for reset, who is sent here by the gate.
	if session := middleware.GetSession(r); session != nil {
		d := auth.Authorize(session, auth.Boundary{Role: session.Role})
		if d.Allowed {
			h.redirect(w, r, session.Role.Home())
			return
		}
		if d.Redirect == models.ResetPasswordPath {
			h.redirect(w, r, d.Redirect)
			return
		}
	}

	q := r.URL.Query()
	data := pageData{Title: "Sign in", Error: q.Get("error")}
	if msg, ok := loginMessages[data.Error]; ok {
		data.Error = msg
	}
	if q.Get("reset") == "1" {
		data.Notice = "Password updated. Sign in with your new password."
	}
	h.render(w, "login.html", data)
}

// Login handles sign-in from the login form or a JSON client
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	form := isForm(r)

	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if form {
		if err := parseForm(w, r); err != nil {
			h.redirect(w, r, models.LoginPath+"?error="+url.QueryEscape(apperr.Message(err)))
			return
		}
		input.Email = r.FormValue("email")
		input.Password = r.FormValue("password")
	} else if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.auth.Login(r.Context(), auth.LoginInput{Email: input.Email, Password: input.Password})
	if err != nil {
		if form {
			h.redirect(w, r, models.LoginPath+"?error="+url.QueryEscape(apperr.Message(err)))
			return
		}
		writeError(w, r, err)
		return
	}

	h.setSessionCookie(w, result.Token)

	if form {
		next := result.Session.Role.Home()
		if d := auth.Authorize(result.Session, auth.Boundary{Role: result.Session.Role}); !d.Allowed {
			next = d.Redirect
		}
		h.redirect(w, r, next)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                true,
		"role":              result.User.Role,
		"mustResetPassword": result.User.MustResetPassword,
	})
}

// Logout revokes the current token, clears the cookie and returns to the login page
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.revokeAndClear(w, r)
	h.redirect(w, r, models.LoginPath)
}

// APILogout is Logout for JSON clients
func (h *Handler) APILogout(w http.ResponseWriter, r *http.Request) {
	h.revokeAndClear(w, r)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) revokeAndClear(w http.ResponseWriter, r *http.Request) {
	if session := middleware.GetSession(r); session != nil {
		if err := h.auth.Logout(r.Context(), session); err != nil {
			slog.Warn("failed to revoke session", "user_id", session.SubjectID, "error", err)
		}
	}
	h.clearSessionCookie(w)
}

// ResetPasswordPage renders the forced password reset form
func (h *Handler) ResetPasswordPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, "reset_password.html", pageData{
		Title:             "Reset password",
		Error:             r.URL.Query().Get("error"),
		MinPasswordLength: h.auth.MinPasswordLength(),
		Session:           middleware.GetSession(r),
	})
}

// CompletePasswordReset stores the new password and signs the principal out
func (h *Handler) CompletePasswordReset(w http.ResponseWriter, r *http.Request) {
	form := isForm(r)

	var input struct {
		NewPassword string `json:"newPassword"`
	}
	if form {
		if err := parseForm(w, r); err != nil {
			h.redirect(w, r, models.ResetPasswordPath+"?error="+url.QueryEscape(apperr.Message(err)))
			return
		}
		input.NewPassword = r.FormValue("newPassword")
	} else if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.auth.CompletePasswordReset(r.Context(), middleware.GetSession(r), input.NewPassword); err != nil {
		if form {
			h.redirect(w, r, models.ResetPasswordPath+"?error="+url.QueryEscape(apperr.Message(err)))
			return
		}
		writeError(w, r, err)
		return
	}

	h.clearSessionCookie(w)
	if form {
		h.redirect(w, r, models.LoginPath+"?reset=1")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Profile returns the signed-in user with their admin profile or customer record
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r)
	ctx := r.Context()

	user, err := h.auth.GetUser(ctx, session.SubjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil {
		jsonError(w, "Not found.", http.StatusNotFound)
		return
	}

	resp := map[string]any{"user": user}
	switch user.Role {
	case models.RoleAdmin:
		profile, err := h.auth.GetAdminProfile(ctx, user.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp["adminProfile"] = profile
	case models.RoleCustomer:
		customer, err := h.customers.GetByUser(ctx, user.ID)
		if err != nil && !errors.Is(err, customers.ErrCustomerNotFound) {
			writeError(w, r, err)
			return
		}
		resp["customer"] = customer
	}
	writeJSON(w, http.StatusOK, resp)
}

// DebugSession reports what the server sees of the session cookie. It only
// answers in development.
func (h *Handler) DebugSession(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.IsDevelopment() {
		http.NotFound(w, r)
		return
	}

	var preview string
	cookie, err := r.Cookie(middleware.SessionCookieName)
	hasCookie := err == nil && cookie.Value != ""
	if hasCookie {
		preview = cookie.Value
		if len(preview) > 20 {
			preview = preview[:20] + "…"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cookieName":    middleware.SessionCookieName,
		"hasCookie":     hasCookie,
		"cookiePreview": preview,
		"session":       middleware.GetSession(r),
	})
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.auth.Tokens().TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
}
