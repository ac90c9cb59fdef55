package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/courierdesk/gateway/internal/user"
	"github.com/courierdesk/gateway/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AttemptLister reads the login audit trail
type AttemptLister interface {
	RecentLoginAttempts(ctx context.Context, email string, since time.Time) ([]user.LoginAttempt, error)
}

// LockoutClearer lifts a rate limit lockout
type LockoutClearer interface {
	Clear(ctx context.Context, email, ipAddress string) error
}

// AdminHandler serves SYSTEM_ADMIN support endpoints
type AdminHandler struct {
	attempts AttemptLister
	lockouts LockoutClearer
	logger   *zap.Logger
}

// NewAdminHandler creates the admin support handler
func NewAdminHandler(attempts AttemptLister, lockouts LockoutClearer, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{attempts: attempts, lockouts: lockouts, logger: logger}
}

// LoginAttempts lists the last day of attempts for one email
// GET /api/admin/login-attempts?email=
func (h *AdminHandler) LoginAttempts(c *gin.Context) {
	email := NormalizeEmail(c.Query("email"))
	if !IsValidEmail(email) {
		response.ValidationError(c, "Request validation failed",
			response.FieldError{Field: "email", Message: "Email format is invalid"})
		return
	}

	since := time.Now().Add(-24 * time.Hour)
	attempts, err := h.attempts.RecentLoginAttempts(c.Request.Context(), email, since)
	if err != nil {
		h.logger.Error("failed to list login attempts", zap.Error(err))
		response.Error(c, err)
		return
	}
	if attempts == nil {
		attempts = []user.LoginAttempt{}
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

type clearLockoutRequest struct {
	Email     string `json:"email"`
	IPAddress string `json:"ip_address"`
}

// ClearLockout removes the counter and lockout for an email and IP pair
// DELETE /api/admin/lockouts
func (h *AdminHandler) ClearLockout(c *gin.Context) {
	var req clearLockoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "Request body must be a JSON object")
		return
	}

	var fields []response.FieldError
	if !IsValidEmail(req.Email) {
		fields = append(fields, response.FieldError{Field: "email", Message: "Email format is invalid"})
	}
	if strings.TrimSpace(req.IPAddress) == "" {
		fields = append(fields, response.FieldError{Field: "ip_address", Message: "IP address is required"})
	}
	if len(fields) > 0 {
		response.ValidationError(c, "Request validation failed", fields...)
		return
	}

	if err := h.lockouts.Clear(c.Request.Context(), NormalizeEmail(req.Email), req.IPAddress); err != nil {
		h.logger.Error("failed to clear lockout", zap.Error(err))
		response.Error(c, err)
		return
	}

	h.logger.Info("lockout cleared", zap.String("email", NormalizeEmail(req.Email)), zap.String("ip", req.IPAddress))
	response.Success(c, http.StatusOK, gin.H{"message": "Lockout cleared"})
}
