package auth

import (
	"testing"

	"github.com/google/uuid"

	"github.com/asjpl/pcl-portal/internal/models"
)

func session(role models.Role, mustReset bool) *models.Session {
	return &models.Session{SubjectID: uuid.New(), Email: "x@example.com", Role: role, MustResetPassword: mustReset}
}

func TestAuthorize(t *testing.T) {
	adminOnly := Boundary{Role: models.RoleAdmin}
	customerOnly := Boundary{Role: models.RoleCustomer}
	resetSubmit := Boundary{Role: models.RoleCustomer, AllowDuringReset: true}
	anyRole := Boundary{}

	tests := []struct {
		name     string
		session  *models.Session
		boundary Boundary
		allowed  bool
		reason   Reason
		redirect string
	}{
		{"no session", nil, adminOnly, false, ReasonUnauthenticated, "/login"},
		{"no session on reset page", nil, resetSubmit, false, ReasonUnauthenticated, "/login"},
		{"admin on admin", session(models.RoleAdmin, false), adminOnly, true, ReasonNone, ""},
		{"customer on customer", session(models.RoleCustomer, false), customerOnly, true, ReasonNone, ""},
		{"customer on admin goes home", session(models.RoleCustomer, false), adminOnly, false, ReasonWrongRole, "/account"},
		{"admin on customer goes home", session(models.RoleAdmin, false), customerOnly, false, ReasonWrongRole, "/admin"},
		{"any role", session(models.RoleCustomer, false), anyRole, true, ReasonNone, ""},
		{"must reset on customer page", session(models.RoleCustomer, true), customerOnly, false, ReasonResetRequired, "/account/reset-password"},
		{"must reset on admin page", session(models.RoleCustomer, true), adminOnly, false, ReasonResetRequired, "/account/reset-password"},
		{"must reset on any page", session(models.RoleCustomer, true), anyRole, false, ReasonResetRequired, "/account/reset-password"},
		{"must reset on reset page", session(models.RoleCustomer, true), resetSubmit, true, ReasonNone, ""},
		{"admin must reset", session(models.RoleAdmin, true), adminOnly, false, ReasonResetRequired, "/login?error=password_reset_required"},
		{"normal customer on reset page", session(models.RoleCustomer, false), resetSubmit, true, ReasonNone, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Authorize(tt.session, tt.boundary)
			if got.Allowed != tt.allowed {
				t.Errorf("Allowed = %v, want %v", got.Allowed, tt.allowed)
			}
			if got.Reason != tt.reason {
				t.Errorf("Reason = %v, want %v", got.Reason, tt.reason)
			}
			if got.Redirect != tt.redirect {
				t.Errorf("Redirect = %q, want %q", got.Redirect, tt.redirect)
			}
		})
	}
}

func TestAuthorize_ResetGateIsSticky(t *testing.T) {
	s := session(models.RoleCustomer, true)
	boundaries := []Boundary{{Role: models.RoleCustomer}, {Role: models.RoleAdmin}, {}}

	for i := 0; i < 5; i++ {
		for _, b := range boundaries {
			if Authorize(s, b).Allowed {
				t.Fatalf("request %d to %+v was allowed before the reset", i, b)
			}
		}
	}

	s.MustResetPassword = false
	if !Authorize(s, Boundary{Role: models.RoleCustomer}).Allowed {
		t.Fatal("customer boundary should allow once the flag is cleared")
	}
}
