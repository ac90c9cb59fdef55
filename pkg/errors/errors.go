package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents an error that is safe to show to API clients
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
	Status  int    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("[%s/%s] %s", e.Code, e.Reason, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Is matches on code. A target without a reason matches every reason.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	if e.Code != t.Code {
		return false
	}
	return t.Reason == "" || e.Reason == t.Reason
}

// Error codes
const (
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeAccountNotActive   = "ACCOUNT_NOT_ACTIVE"
	ErrCodeInvalidToken       = "INVALID_TOKEN"
	ErrCodeTokenExpired       = "TOKEN_EXPIRED"
	ErrCodeTokenRevoked       = "TOKEN_REVOKED"
	ErrCodeRateLimitExceeded  = "RATE_LIMITED"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeOAuthFailed        = "OAUTH_FAILED"
)

// NewAppError creates a new application error
func NewAppError(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

// WithReason returns a copy of e carrying a machine-readable reason.
func (e *AppError) WithReason(reason string) *AppError {
	cp := *e
	cp.Reason = reason
	return &cp
}

// WithMessage returns a copy of e with a different message.
func (e *AppError) WithMessage(message string) *AppError {
	cp := *e
	cp.Message = message
	return &cp
}

// Common errors
var (
	ErrInvalidCredentials = NewAppError(ErrCodeInvalidCredentials, "Invalid email or password", http.StatusUnauthorized)
	ErrAccountNotActive   = NewAppError(ErrCodeAccountNotActive, "Account is not active", http.StatusUnauthorized)
	ErrInvalidToken       = NewAppError(ErrCodeInvalidToken, "Invalid token", http.StatusUnauthorized)
	ErrTokenExpired       = NewAppError(ErrCodeTokenExpired, "Token expired", http.StatusUnauthorized)
	ErrTokenRevoked       = NewAppError(ErrCodeTokenRevoked, "Token revoked", http.StatusUnauthorized)
	ErrRateLimitExceeded  = NewAppError(ErrCodeRateLimitExceeded, "Too many login attempts", http.StatusTooManyRequests)
	ErrUnauthorized       = NewAppError(ErrCodeUnauthorized, "Unauthorized", http.StatusUnauthorized)
	ErrForbidden          = NewAppError(ErrCodeForbidden, "Forbidden", http.StatusForbidden)
	ErrOAuthFailed        = NewAppError(ErrCodeOAuthFailed, "Sign-in with provider failed", http.StatusUnauthorized)
)

// As extracts an *AppError from err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
