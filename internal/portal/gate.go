package portal

import (
	"net/http"

	"github.com/courierdesk/gateway/internal/metrics"
	"github.com/courierdesk/gateway/internal/token"
	"github.com/gin-gonic/gin"
)

// StateKey is the gin context key holding the viewer's State
const StateKey = "portal_state"

// claimsKey matches the key the bearer middleware uses
const claimsKey = "claims"

// TokenVerifier validates the access token found in the cookie
type TokenVerifier interface {
	ValidateToken(raw string) (*token.Claims, error)
}

// Gate applies the authorizer to page requests. The viewer is identified by
// the access token cookie; an invalid or expired cookie counts as signed
// out and is cleared.
func Gate(a *Authorizer, verifier TokenVerifier, cookies CookieOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := Anonymous()
		var claims *token.Claims

		if raw, err := c.Cookie(CookieName); err == nil && raw != "" {
			claims, err = verifier.ValidateToken(raw)
			if err != nil {
				ClearAccessCookie(c, cookies)
				claims = nil
			} else {
				st = SignedIn(claims.Role)
			}
		}

		decision := a.Decide(c.Request.URL.RequestURI(), st)
		if decision.Action != Allow {
			metrics.RecordPortalRedirect(decision.Action.String())
			c.Redirect(http.StatusFound, decision.Location)
			c.Abort()
			return
		}

		c.Set(StateKey, st)
		if claims != nil {
			c.Set(claimsKey, claims)
		}
		c.Next()
	}
}

// StateFrom returns the State the gate recorded, Anonymous if none
func StateFrom(c *gin.Context) State {
	if v, ok := c.Get(StateKey); ok {
		if st, ok := v.(State); ok {
			return st
		}
	}
	return Anonymous()
}
