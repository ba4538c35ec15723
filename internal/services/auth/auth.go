// Package auth provides authentication services
package auth

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/asjpl/pcl-portal/internal/apperr"
	"github.com/asjpl/pcl-portal/internal/models"
	"github.com/asjpl/pcl-portal/internal/storage"
)

var (
	ErrInvalidCredentials = apperr.New(apperr.ErrAuthentication, "Invalid credentials.")
	ErrSessionExpired     = apperr.New(apperr.ErrAuthentication, "Session expired.")
	ErrInvalidToken       = apperr.New(apperr.ErrAuthentication, "Invalid session.")
	ErrTokenRevoked       = apperr.New(apperr.ErrAuthentication, "Session has been signed out.")
	ErrTooManyAttempts    = apperr.New(apperr.ErrRateLimited, "Too many sign-in attempts. Try again later.")
	ErrCustomerOnly       = apperr.New(apperr.ErrAuthorization, "Forbidden.")
)

// Throttle limits repeated sign-in attempts per email
type Throttle interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string)
}

// Service handles authentication operations
type Service struct {
	db                *storage.DB
	userRepo          *storage.UserRepository
	revocationRepo    *storage.RevocationRepository
	tokens            *Tokens
	throttle          Throttle
	minPasswordLength int
	now               func() time.Time
}

// NewService creates a new auth service. throttle may be nil.
func NewService(db *storage.DB, tokens *Tokens, throttle Throttle, minPasswordLength int) *Service {
	if minPasswordLength <= 0 {
		minPasswordLength = MinPasswordLength
	}
	return &Service{
		db:                db,
		userRepo:          storage.NewUserRepository(db),
		revocationRepo:    storage.NewRevocationRepository(db),
		tokens:            tokens,
		throttle:          throttle,
		minPasswordLength: minPasswordLength,
		now:               time.Now,
	}
}

// Tokens returns the issuer used for sessions
func (s *Service) Tokens() *Tokens { return s.tokens }

// MinPasswordLength returns the minimum length of a self-chosen password
func (s *Service) MinPasswordLength() int { return s.minPasswordLength }

// LoginInput contains login credentials
type LoginInput struct {
	Email    string
	Password string
}

// LoginResult contains the result of a successful login
type LoginResult struct {
	User    *models.User
	Token   string
	Session *models.Session
}

// Login authenticates a user and issues a session token. Unknown emails and
// wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	email := NormalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, apperr.Validation("Email and password are required.")
	}

	if s.throttle != nil {
		ok, err := s.throttle.Allow(ctx, email)
		if err != nil {
			slog.Warn("login throttle unavailable", "error", err)
		}
		if !ok {
			return nil, ErrTooManyAttempts
		}
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !CheckPassword(user.PasswordHash, input.Password) {
		return nil, ErrInvalidCredentials
	}

	token, session, err := s.tokens.Issue(user.ID, user.Email, user.Role, user.MustResetPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to create token: %w", err)
	}

	if s.throttle != nil {
		s.throttle.Reset(ctx, email)
	}

	return &LoginResult{User: user, Token: token, Session: session}, nil
}

// Authenticate verifies a token and rejects it if it has been revoked
func (s *Service) Authenticate(ctx context.Context, token string) (*models.Session, error) {
	session, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	revoked, err := s.revocationRepo.IsRevoked(ctx, session.TokenID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return session, nil
}

// Logout revokes the session's token
func (s *Service) Logout(ctx context.Context, session *models.Session) error {
	if session == nil {
		return nil
	}
	return s.revocationRepo.Revoke(ctx, session.TokenID, session.SubjectID, session.ExpiresAt)
}

// CompletePasswordReset stores a customer's new password, clears the reset
// obligation and revokes the token the request was made with. The caller
// must also clear the session cookie.
func (s *Service) CompletePasswordReset(ctx context.Context, session *models.Session, newPassword string) error {
	if session == nil {
		return ErrInvalidToken
	}
	if session.Role != models.RoleCustomer {
		return ErrCustomerOnly
	}
	if err := ValidatePassword(newPassword, s.minPasswordLength); err != nil {
		return err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.userRepo.SetPassword(ctx, session.SubjectID, hash, false, nil); err != nil {
		return err
	}

	if err := s.revocationRepo.Revoke(ctx, session.TokenID, session.SubjectID, session.ExpiresAt); err != nil {
		slog.Error("failed to revoke token after password reset", "user_id", session.SubjectID, "error", err)
	}
	return nil
}

// IssueTemporaryPassword replaces a user's password with a generated one and
// puts a customer account back into the must-reset state. Admins cannot
// complete a self-service reset, so theirs is left clear. The plain password
// is returned so it can be delivered to the user.
func (s *Service) IssueTemporaryPassword(ctx context.Context, userID uuid.UUID) (string, error) {
	return s.issueTemporaryPassword(ctx, s.userRepo, userID)
}

// IssueTemporaryPasswordTx is IssueTemporaryPassword inside an open transaction
func (s *Service) IssueTemporaryPasswordTx(ctx context.Context, tx *sql.Tx, userID uuid.UUID) (string, error) {
	return s.issueTemporaryPassword(ctx, s.userRepo.WithTx(tx), userID)
}

func (s *Service) issueTemporaryPassword(ctx context.Context, users *storage.UserRepository, userID uuid.UUID) (string, error) {
	user, err := users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", apperr.NotFound("User not found.")
	}

	password, err := GenerateTempPassword()
	if err != nil {
		return "", err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return "", err
	}
	mustReset := user.Role != models.RoleAdmin
	issuedAt := s.now().UTC()
	if err := users.SetPassword(ctx, userID, hash, mustReset, &issuedAt); err != nil {
		return "", err
	}
	return password, nil
}

// CreateAdminInput contains the data for a new administrator
type CreateAdminInput struct {
	Email    string
	Password string
	FullName string
}

// CreateAdmin creates an administrator account and its profile
func (s *Service) CreateAdmin(ctx context.Context, input CreateAdminInput) (*models.User, error) {
	email := NormalizeEmail(input.Email)
	password := strings.TrimSpace(input.Password)
	if email == "" {
		return nil, apperr.Validation("Email is required.")
	}
	if err := ValidatePassword(password, MinAdminPasswordLength); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := models.NewUser(email, hash, models.RoleAdmin)

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		users := s.userRepo.WithTx(tx)
		if err := users.Create(ctx, user); err != nil {
			return err
		}
		fullName := strings.TrimSpace(input.FullName)
		if fullName == "" {
			return nil
		}
		return users.CreateAdminProfile(ctx, &models.AdminProfile{ID: uuid.New(), UserID: user.ID, FullName: fullName})
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser loads the user behind a session
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("User not found.")
	}
	return user, nil
}

// GetUserByEmail loads a user by sign-in email
func (s *Service) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("User not found.")
	}
	return user, nil
}

// GetAdminProfile returns the administrator profile of a user, if any
func (s *Service) GetAdminProfile(ctx context.Context, userID uuid.UUID) (*models.AdminProfile, error) {
	return s.userRepo.GetAdminProfile(ctx, userID)
}

// CleanupRevocations removes revocation records whose tokens have expired
func (s *Service) CleanupRevocations(ctx context.Context) (int64, error) {
	return s.revocationRepo.DeleteExpired(ctx, s.now())
}

// NormalizeEmail trims and lowercases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
