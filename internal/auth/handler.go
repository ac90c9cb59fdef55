package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/courierdesk/gateway/internal/middleware"
	"github.com/courierdesk/gateway/internal/portal"
	apperrors "github.com/courierdesk/gateway/pkg/errors"
	"github.com/courierdesk/gateway/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthChecker is a dependency the health endpoint pings
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handler handles authentication HTTP requests
type Handler struct {
	service   *Service
	cookies   portal.CookieOptions
	accessTTL time.Duration
	checks    map[string]HealthChecker
	logger    *zap.Logger
}

// NewHandler creates a new authentication handler
func NewHandler(service *Service, cookies portal.CookieOptions, accessTTL time.Duration, checks map[string]HealthChecker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:   service,
		cookies:   cookies,
		accessTTL: accessTTL,
		checks:    checks,
		logger:    logger,
	}
}

// Login handles email/password login
// POST /auth/login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "Request body must be a JSON object")
		return
	}
	if err := ValidateLoginRequest(&req); err != nil {
		renderValidation(c, err)
		return
	}

	result, err := h.service.Login(c.Request.Context(), req.Email, req.Password, c.ClientIP())
	if err != nil {
		h.renderError(c, err)
		return
	}

	portal.SetAccessCookie(c, h.cookies, result.Token.AccessToken, h.accessTTL)
	response.Success(c, http.StatusOK, result)
}

// Refresh exchanges a refresh token for a new pair
// POST /auth/refresh
func (h *Handler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "Request body must be a JSON object")
		return
	}
	if err := ValidateRefreshRequest(&req); err != nil {
		renderValidation(c, err)
		return
	}

	pair, err := h.service.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.renderError(c, err)
		return
	}

	portal.SetAccessCookie(c, h.cookies, pair.AccessToken, h.accessTTL)
	response.Success(c, http.StatusOK, gin.H{"token": pair})
}

// Logout revokes the caller's refresh token
// POST /auth/logout
func (h *Handler) Logout(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	if err := h.service.Logout(c.Request.Context(), claims.UserID()); err != nil {
		h.renderError(c, err)
		return
	}

	portal.ClearAccessCookie(c, h.cookies)
	response.Success(c, http.StatusOK, gin.H{
		"message": "Logged out successfully",
	})
}

// Me returns the authenticated user's information
// GET /auth/me
func (h *Handler) Me(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	usr, err := h.service.CurrentUser(c.Request.Context(), claims)
	if err != nil {
		h.renderError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user": usr.Profile()})
}

// Profile returns the identity carried by the access token
// GET /api/{portal}/profile
func (h *Handler) Profile(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"user_id":    claims.UserID(),
		"email":      claims.Email,
		"role":       claims.Role,
		"company_id": claims.CompanyID,
	})
}

// Health returns health status
// GET /health
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	components := gin.H{}
	for name, check := range h.checks {
		if err := check.Health(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("component", name), zap.Error(err))
			components[name] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "healthy"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":     overall,
		"components": components,
	})
}

// renderError writes err, logging anything that is not an AppError
func (h *Handler) renderError(c *gin.Context, err error) {
	if _, ok := apperrors.As(err); !ok {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	response.Error(c, err)
}

func renderValidation(c *gin.Context, err error) {
	var verrs *ValidationErrors
	if !errors.As(err, &verrs) {
		response.ValidationError(c, err.Error())
		return
	}
	fields := make([]response.FieldError, len(verrs.Errors))
	for i, fe := range verrs.Errors {
		fields[i] = response.FieldError{Field: fe.Field, Message: fe.Message}
	}
	response.ValidationError(c, "Request validation failed", fields...)
}
