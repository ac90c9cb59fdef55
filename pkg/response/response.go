package response

import (
	"net/http"

	apperrors "github.com/courierdesk/gateway/pkg/errors"
	"github.com/gin-gonic/gin"
)

// FieldError describes a single invalid request field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Success sends a successful JSON response
func Success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// Error sends an error JSON response
func Error(c *gin.Context, err error) {
	if appErr, ok := apperrors.As(err); ok {
		c.JSON(appErr.Status, gin.H{
			"success": false,
			"error":   errorBody(appErr),
		})
		return
	}

	// Default internal server error
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"error": gin.H{
			"code":    apperrors.ErrCodeInternalError,
			"message": "Internal server error",
		},
	})
}

// Abort is Error for middleware: it stops the handler chain.
func Abort(c *gin.Context, appErr *apperrors.AppError) {
	c.AbortWithStatusJSON(appErr.Status, gin.H{
		"success": false,
		"error":   errorBody(appErr),
	})
}

// ValidationError sends a validation error response
func ValidationError(c *gin.Context, message string, fields ...FieldError) {
	body := gin.H{
		"code":    apperrors.ErrCodeValidationFailed,
		"message": message,
	}
	if len(fields) > 0 {
		body["fields"] = fields
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   body,
	})
}

func errorBody(appErr *apperrors.AppError) gin.H {
	body := gin.H{
		"code":    appErr.Code,
		"message": appErr.Message,
	}
	if appErr.Reason != "" {
		body["reason"] = appErr.Reason
	}
	return body
}
