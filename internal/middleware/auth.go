package middleware

import (
	"strings"

	"github.com/courierdesk/gateway/internal/metrics"
	"github.com/courierdesk/gateway/internal/token"
	"github.com/courierdesk/gateway/internal/user"
	apperrors "github.com/courierdesk/gateway/pkg/errors"
	"github.com/courierdesk/gateway/pkg/response"
	"github.com/gin-gonic/gin"
)

// Context keys set by Auth
const (
	ClaimsKey = "claims"
	UserIDKey = "user_id"
)

// TokenValidator verifies bearer access tokens. Errors are expected to be
// *apperrors.AppError values.
type TokenValidator interface {
	ValidateToken(raw string) (*token.Claims, error)
}

// Auth creates an authentication middleware
func Auth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Abort(c, apperrors.ErrUnauthorized.WithMessage("Missing Authorization header"))
			return
		}

		// Extract token (format: "Bearer TOKEN")
		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || strings.TrimSpace(tokenString) == "" {
			response.Abort(c, apperrors.ErrUnauthorized.WithMessage("Invalid Authorization header format"))
			return
		}

		claims, err := validator.ValidateToken(strings.TrimSpace(tokenString))
		if err != nil {
			appErr, ok := apperrors.As(err)
			if !ok {
				appErr = apperrors.ErrInvalidToken
			}
			response.Abort(c, appErr)
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(UserIDKey, claims.UserID())

		c.Next()
	}
}

// RequireRole rejects callers whose role is not listed. It must run after Auth.
func RequireRole(roles ...user.Role) gin.HandlerFunc {
	allowed := make(map[user.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			response.Abort(c, apperrors.ErrUnauthorized)
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			metrics.RecordJWTValidation(metrics.OutcomeForbidden)
			response.Abort(c, apperrors.ErrForbidden)
			return
		}
		c.Next()
	}
}

// ClaimsFrom returns the claims stored by Auth
func ClaimsFrom(c *gin.Context) (*token.Claims, bool) {
	v, exists := c.Get(ClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*token.Claims)
	return claims, ok
}
