package auth

import (
	"github.com/asjpl/pcl-portal/internal/models"
)

// Boundary describes what a protected page or endpoint requires
type Boundary struct {
	// Role restricts the boundary to one workspace; empty allows either
	Role models.Role
	// AllowDuringReset lets a session that must reset its password through
	AllowDuringReset bool
}

// Reason explains a denied decision
type Reason int

const (
	ReasonNone Reason = iota
	ReasonUnauthenticated
	ReasonResetRequired
	ReasonWrongRole
)

func (r Reason) String() string {
	switch r {
	case ReasonUnauthenticated:
		return "unauthenticated"
	case ReasonResetRequired:
		return "password_reset_required"
	case ReasonWrongRole:
		return "wrong_role"
	default:
		return "none"
	}
}

// Decision is the outcome of Authorize. Redirect is where a page boundary
// should send the principal when the decision is a denial.
type Decision struct {
	Allowed  bool
	Reason   Reason
	Redirect string
}

// ResetRequiredLoginPath is where an administrator flagged for a reset is
// sent, since the self-service reset is customer-only.
const ResetRequiredLoginPath = models.LoginPath + "?error=password_reset_required"

// Authorize decides whether session may pass boundary. It has no transport
// knowledge; middleware renders the decision as a redirect or a JSON error.
func Authorize(session *models.Session, b Boundary) Decision {
	if session == nil {
		return Decision{Reason: ReasonUnauthenticated, Redirect: models.LoginPath}
	}

	if session.MustResetPassword && !b.AllowDuringReset {
		redirect := models.ResetPasswordPath
		if session.Role != models.RoleCustomer {
			redirect = ResetRequiredLoginPath
		}
		return Decision{Reason: ReasonResetRequired, Redirect: redirect}
	}

	if b.Role != "" && session.Role != b.Role {
		return Decision{Reason: ReasonWrongRole, Redirect: session.Role.Home()}
	}

	return Decision{Allowed: true}
}
