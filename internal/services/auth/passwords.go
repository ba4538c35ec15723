package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"

	"github.com/asjpl/pcl-portal/internal/apperr"
)

const (
	// MinPasswordLength applies to passwords chosen by customers
	MinPasswordLength = 10
	// MinAdminPasswordLength applies to passwords set by an administrator
	MinAdminPasswordLength = 8
	// MaxPasswordBytes is the most bcrypt will hash
	MaxPasswordBytes = 72

	tempPasswordLength   = 12
	tempPasswordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789!@#$"
)

// ErrPasswordTooLong is returned for passwords bcrypt cannot hash
var ErrPasswordTooLong = apperr.New(apperr.ErrValidation,
	fmt.Sprintf("Password must be at most %d bytes.", MaxPasswordBytes))

// ValidatePassword checks a chosen password against the length bounds
func ValidatePassword(password string, minLength int) error {
	if len(password) < minLength {
		return apperr.Validation(fmt.Sprintf("Password must be at least %d characters.", minLength))
	}
	if len(password) > MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

// HashPassword hashes a password with bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrPasswordTooLong
	}
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateTempPassword returns a random password without look-alike characters
func GenerateTempPassword() (string, error) {
	limit := big.NewInt(int64(len(tempPasswordAlphabet)))
	out := make([]byte, tempPasswordLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate password: %w", err)
		}
		out[i] = tempPasswordAlphabet[n.Int64()]
	}
	return string(out), nil
}
