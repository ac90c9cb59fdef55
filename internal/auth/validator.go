package auth

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// Email validation regex (RFC 5322 simplified)
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	// Passwords are bounded by bcrypt's 72 byte input limit
	minPasswordLength = 8
	maxPasswordLength = 72
)

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest represents a refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ValidationError represents a single field validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every failing field of one request
type ValidationErrors struct {
	Errors []ValidationError
}

func (e *ValidationErrors) Error() string {
	messages := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		messages[i] = err.Error()
	}
	return strings.Join(messages, "; ")
}

func (e *ValidationErrors) add(field, message string) {
	e.Errors = append(e.Errors, ValidationError{Field: field, Message: message})
}

func (e *ValidationErrors) orNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// ValidateLoginRequest validates a login request.
// Password length is only checked for presence and the bcrypt ceiling so
// that a short password still gets the generic credentials error.
func ValidateLoginRequest(req *LoginRequest) error {
	errs := &ValidationErrors{}

	if strings.TrimSpace(req.Email) == "" {
		errs.add("email", "Email is required")
	} else if !IsValidEmail(req.Email) {
		errs.add("email", "Email format is invalid")
	}

	if req.Password == "" {
		errs.add("password", "Password is required")
	} else if len(req.Password) > maxPasswordLength {
		errs.add("password", fmt.Sprintf("Password must be at most %d bytes", maxPasswordLength))
	}

	return errs.orNil()
}

// ValidateRefreshRequest validates a refresh request
func ValidateRefreshRequest(req *RefreshRequest) error {
	errs := &ValidationErrors{}

	if strings.TrimSpace(req.RefreshToken) == "" {
		errs.add("refresh_token", "Refresh token is required")
	} else if strings.Count(req.RefreshToken, ".") != 2 {
		errs.add("refresh_token", "Refresh token format is invalid")
	}

	return errs.orNil()
}

// ValidateNewPassword checks a password chosen for a new account
func ValidateNewPassword(password string) error {
	errs := &ValidationErrors{}
	switch {
	case len(password) < minPasswordLength:
		errs.add("password", fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	case len(password) > maxPasswordLength:
		errs.add("password", fmt.Sprintf("Password must be at most %d bytes", maxPasswordLength))
	}
	return errs.orNil()
}

// IsValidEmail checks if an email address is valid
func IsValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}

// NormalizeEmail is the single canonical form used for storage and lookup
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
