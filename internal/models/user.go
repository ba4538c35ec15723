// Package models defines core domain types
package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the workspace a principal belongs to
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// Home paths for each workspace
const (
	AdminHomePath     = "/admin"
	CustomerHomePath  = "/account"
	ResetPasswordPath = "/account/reset-password"
	LoginPath         = "/login"
)

// ParseRole accepts only the two known roles
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleCustomer:
		return Role(s), true
	default:
		return "", false
	}
}

// Home returns the landing page of the role's workspace
func (r Role) Home() string {
	if r == RoleAdmin {
		return AdminHomePath
	}
	return CustomerHomePath
}

// User represents a principal that can sign in to the portal
type User struct {
	ID                   uuid.UUID  `json:"id"`
	Email                string     `json:"email"`
	PasswordHash         string     `json:"-"` // Never serialize to JSON
	Role                 Role       `json:"role"`
	MustResetPassword    bool       `json:"mustResetPassword"`
	TempPasswordIssuedAt *time.Time `json:"tempPasswordIssuedAt,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// NewUser creates a new user with generated ID and timestamps
func NewUser(email, passwordHash string, role Role) *User {
	now := time.Now().UTC()
	return &User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// AdminProfile holds display details for an administrator
type AdminProfile struct {
	ID       uuid.UUID `json:"id"`
	UserID   uuid.UUID `json:"userId"`
	FullName string    `json:"fullName"`
}

// Session is the trusted view of a principal, decoded from a signed token.
// Role and MustResetPassword are snapshots taken at sign-in.
type Session struct {
	SubjectID         uuid.UUID `json:"id"`
	Email             string    `json:"email"`
	Role              Role      `json:"role"`
	MustResetPassword bool      `json:"mustResetPassword"`
	TokenID           string    `json:"-"`
	IssuedAt          time.Time `json:"issuedAt"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

// IsExpired checks if the session has expired at the given instant
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
