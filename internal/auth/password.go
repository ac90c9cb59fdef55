package auth

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// errPasswordMismatch is returned by VerifyPassword for a wrong password
var errPasswordMismatch = errors.New("invalid password")

// VerifyPassword verifies a password against a bcrypt hash.
// bcrypt compares digests in constant time.
func VerifyPassword(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return errPasswordMismatch
		}
		return fmt.Errorf("failed to verify password: %w", err)
	}
	return nil
}

// HashPassword creates a bcrypt hash of a password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

var (
	dummyOnce   sync.Once
	dummyDigest string
)

// burnPasswordCheck spends the same bcrypt work as a real comparison so an
// unknown email is not distinguishable from a wrong password by latency.
func burnPasswordCheck(password string) {
	dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("courierdesk-unknown-account"), bcrypt.DefaultCost)
		if err == nil {
			dummyDigest = string(h)
		}
	})
	_ = bcrypt.CompareHashAndPassword([]byte(dummyDigest), []byte(password))
}
