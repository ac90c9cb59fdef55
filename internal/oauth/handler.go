package oauth

import (
	"net/http"
	"time"

	"github.com/courierdesk/gateway/internal/portal"
	apperrors "github.com/courierdesk/gateway/pkg/errors"
	"github.com/courierdesk/gateway/pkg/response"
	"github.com/gin-gonic/gin"
)

// Handler handles OAuth HTTP requests
type Handler struct {
	authService *AuthService
	google      Provider
	authorizer  *portal.Authorizer
	cookies     portal.CookieOptions
	accessTTL   time.Duration
}

// NewHandler creates a new OAuth handler
func NewHandler(authService *AuthService, google Provider, authorizer *portal.Authorizer, cookies portal.CookieOptions, accessTTL time.Duration) *Handler {
	return &Handler{
		authService: authService,
		google:      google,
		authorizer:  authorizer,
		cookies:     cookies,
		accessTTL:   accessTTL,
	}
}

// GoogleLogin initiates Google OAuth flow
// GET /auth/google?redirect=...
func (h *Handler) GoogleLogin(c *gin.Context) {
	returnPath := portal.SafeReturnPath(c.Query("redirect"), "")

	authURL, err := h.google.AuthURL(c.Request.Context(), returnPath)
	if err != nil {
		_ = c.Error(err)
		response.Error(c, err)
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, authURL)
}

// GoogleCallback handles Google OAuth callback
// GET /auth/google/callback?code=...&state=...
//
// Browsers are sent on to their return path with the access token cookie
// set. Clients asking for JSON get the full token pair instead.
func (h *Handler) GoogleCallback(c *gin.Context) {
	if reason := c.Query("error"); reason != "" {
		response.Error(c, apperrors.ErrOAuthFailed.WithReason(reason))
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		response.ValidationError(c, "Missing code or state parameter")
		return
	}

	result, returnPath, err := h.authService.AuthenticateWithGoogle(c.Request.Context(), code, state, c.ClientIP())
	if err != nil {
		if _, ok := apperrors.As(err); !ok {
			_ = c.Error(err)
		}
		response.Error(c, err)
		return
	}

	portal.SetAccessCookie(c, h.cookies, result.Token.AccessToken, h.accessTTL)

	if c.NegotiateFormat(gin.MIMEJSON, gin.MIMEHTML) == gin.MIMEHTML {
		c.Redirect(http.StatusFound, h.authorizer.ReturnPath(returnPath, result.User.Role))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token":       result.Token,
		"user":        result.User,
		"redirect_to": h.authorizer.ReturnPath(returnPath, result.User.Role),
	})
}
