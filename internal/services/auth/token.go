package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/asjpl/pcl-portal/internal/apperr"
	"github.com/asjpl/pcl-portal/internal/models"
)

// SessionTTL is the validity window of a session token and its cookie
const SessionTTL = 7 * 24 * time.Hour

// Claims is the payload of a session token
type Claims struct {
	Email             string `json:"email"`
	Role              string `json:"role"`
	MustResetPassword bool   `json:"mustResetPassword"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 session tokens over a single secret
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens creates a token issuer. An empty secret is a configuration error.
func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if secret == "" {
		return nil, apperr.New(apperr.ErrConfiguration, "AUTH_SECRET is not set")
	}
	if ttl <= 0 {
		ttl = SessionTTL
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL returns the validity window of issued tokens
func (t *Tokens) TTL() time.Duration { return t.ttl }

// Issue signs a token for the principal and returns it with the session it encodes
func (t *Tokens) Issue(subject uuid.UUID, email string, role models.Role, mustResetPassword bool) (string, *models.Session, error) {
	if subject == uuid.Nil || email == "" {
		return "", nil, apperr.Validation("Subject and email are required.")
	}
	if _, ok := models.ParseRole(string(role)); !ok {
		return "", nil, apperr.Validation("Unknown role.")
	}

	now := t.now().UTC().Truncate(time.Second)
	session := &models.Session{
		SubjectID:         subject,
		Email:             email,
		Role:              role,
		MustResetPassword: mustResetPassword,
		TokenID:           uuid.NewString(),
		IssuedAt:          now,
		ExpiresAt:         now.Add(t.ttl),
	}

	claims := Claims{
		Email:             email,
		Role:              string(role),
		MustResetPassword: mustResetPassword,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			ID:        session.TokenID,
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, session, nil
}

// Verify reconstructs the session from a token. Any signature, shape or
// expiry problem yields ErrInvalidToken or ErrSessionExpired, never a
// partially-populated session.
func (t *Tokens) Verify(tokenString string) (*models.Session, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims,
		func(token *jwt.Token) (interface{}, error) {
			return t.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, ErrInvalidToken
	}

	subject, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}
	role, ok := models.ParseRole(claims.Role)
	if !ok {
		return nil, ErrInvalidToken
	}
	if claims.Email == "" || claims.ID == "" || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}

	return &models.Session{
		SubjectID:         subject,
		Email:             claims.Email,
		Role:              role,
		MustResetPassword: claims.MustResetPassword,
		TokenID:           claims.ID,
		IssuedAt:          claims.IssuedAt.Time.UTC(),
		ExpiresAt:         claims.ExpiresAt.Time.UTC(),
	}, nil
}
