package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/asjpl/pcl-portal/internal/apperr"
	"github.com/asjpl/pcl-portal/internal/models"
)

// UserRepository provides user data access
type UserRepository struct {
	db querier
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx returns a repository bound to the transaction
func (r *UserRepository) WithTx(tx *sql.Tx) *UserRepository {
	return &UserRepository{db: tx}
}

const userColumns = `id, email, password_hash, role, must_reset_password, temp_password_issued_at, created_at, updated_at`

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID.String(),
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.MustResetPassword,
		nullTime(user.TempPasswordIssuedAt),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return conflictOr(err, "User already exists.", "create user")
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id.String()))
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return r.scanUser(r.db.QueryRowContext(ctx, query, email))
}

// ListByRole returns all users of a role, newest first
func (r *UserRepository) ListByRole(ctx context.Context, role models.Role) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, string(role))
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// EmailExists checks if an email is already registered
func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE email = ?", email).Scan(&count)
	return count > 0, err
}

// SetPassword replaces the credential and the reset obligation in one
// statement, so both change together or not at all.
func (r *UserRepository) SetPassword(ctx context.Context, id uuid.UUID, passwordHash string, mustReset bool, tempIssuedAt *time.Time) error {
	query := `
		UPDATE users
		SET password_hash = ?, must_reset_password = ?, temp_password_issued_at = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := r.db.ExecContext(ctx, query,
		passwordHash,
		mustReset,
		nullTime(tempIssuedAt),
		time.Now().UTC(),
		id.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("User not found.")
	}
	return nil
}

// CreateAdminProfile inserts the display profile of an administrator
func (r *UserRepository) CreateAdminProfile(ctx context.Context, p *models.AdminProfile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO admin_profiles (id, user_id, full_name) VALUES (?, ?, ?)`,
		p.ID.String(), p.UserID.String(), p.FullName,
	)
	if err != nil {
		return conflictOr(err, "Admin profile already exists.", "create admin profile")
	}
	return nil
}

// GetAdminProfile returns the profile for a user, or nil if none exists
func (r *UserRepository) GetAdminProfile(ctx context.Context, userID uuid.UUID) (*models.AdminProfile, error) {
	var p models.AdminProfile
	var id string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, full_name FROM admin_profiles WHERE user_id = ?`, userID.String(),
	).Scan(&id, &p.FullName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get admin profile: %w", err)
	}
	if p.ID, err = parseID(id); err != nil {
		return nil, err
	}
	p.UserID = userID
	return &p, nil
}

func (r *UserRepository) scanUser(row scanner) (*models.User, error) {
	var user models.User
	var id, role string
	var tempIssued sql.NullTime

	err := row.Scan(
		&id,
		&user.Email,
		&user.PasswordHash,
		&role,
		&user.MustResetPassword,
		&tempIssued,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	if user.ID, err = parseID(id); err != nil {
		return nil, err
	}
	user.Role = models.Role(role)
	user.TempPasswordIssuedAt = timePtr(tempIssued)

	return &user, nil
}

// RevocationRepository records session tokens that must no longer be honoured
type RevocationRepository struct {
	db querier
}

// NewRevocationRepository creates a new revocation repository
func NewRevocationRepository(db *DB) *RevocationRepository {
	return &RevocationRepository{db: db}
}

// Revoke marks a token as revoked until it would have expired anyway
func (r *RevocationRepository) Revoke(ctx context.Context, tokenID string, userID uuid.UUID, expiresAt time.Time) error {
	query := `
		INSERT INTO revoked_tokens (token_id, user_id, expires_at, revoked_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(token_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, tokenID, userID.String(), expiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether the token has been revoked
func (r *RevocationRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM revoked_tokens WHERE token_id = ?", tokenID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return count > 0, nil
}

// DeleteExpired removes revocations whose tokens have expired
func (r *RevocationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM revoked_tokens WHERE expires_at < ?", now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired revocations: %w", err)
	}
	return res.RowsAffected()
}
