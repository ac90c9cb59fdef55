package portal

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// CookieName is the one cookie page routes read the access token from
const CookieName = "access_token"

// CookieOptions control how the access token cookie is written
type CookieOptions struct {
	Domain string
	Secure bool
}

// SetAccessCookie stores the access token for page navigation
func SetAccessCookie(c *gin.Context, opts CookieOptions, accessToken string, ttl time.Duration) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, accessToken, int(ttl.Seconds()), "/", opts.Domain, opts.Secure, true)
}

// ClearAccessCookie expires the access token cookie
func ClearAccessCookie(c *gin.Context, opts CookieOptions) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, "", -1, "/", opts.Domain, opts.Secure, true)
}
