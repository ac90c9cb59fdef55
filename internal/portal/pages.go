package portal

import (
	"context"
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/courierdesk/gateway/internal/token"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templates embed.FS

//go:embed static
var static embed.FS

// Templates parses the embedded page templates for gin's HTML renderer
func Templates() *template.Template {
	return template.Must(template.ParseFS(templates, "templates/*.html"))
}

// SessionRevoker ends a user's server-side session
type SessionRevoker interface {
	Logout(ctx context.Context, userID string) error
}

// Pages serves the placeholder pages behind the gate
type Pages struct {
	authorizer *Authorizer
	revoker    SessionRevoker
	cookies    CookieOptions
	logger     *zap.Logger
}

// NewPages creates the page handlers. revoker may be nil, in which case
// logout only clears the cookie.
func NewPages(a *Authorizer, revoker SessionRevoker, cookies CookieOptions, logger *zap.Logger) *Pages {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pages{authorizer: a, revoker: revoker, cookies: cookies, logger: logger}
}

// Register mounts every page route on r. r is expected to carry Gate.
func (p *Pages) Register(r gin.IRoutes) {
	r.GET("/static/*file", serveStatic)
	r.GET("/", p.render("Courier Desk"))
	r.GET(LoginPath, p.Login)
	r.POST(LogoutPath, p.Logout)
	r.GET(RegisterPath, p.render("Register"))
	r.GET("/forgot-password", p.render("Forgot password"))
	r.GET(UnauthorizedPath, p.Unauthorized)
	for _, portal := range p.authorizer.Portals() {
		r.GET(portal.Prefix+"/*page", p.render(strings.TrimPrefix(portal.Prefix, "/")))
	}
}

// Login renders the sign-in form. After signing in the browser reloads
// this page with the same redirect parameter, and the gate sends it on to
// wherever the new role may go.
func (p *Pages) Login(c *gin.Context) {
	next := LoginPath
	if target := SafeReturnPath(c.Query("redirect"), ""); target != "" {
		next = LoginLocation(target)
	}
	c.HTML(http.StatusOK, "page.html", gin.H{
		"Title":    "Sign in",
		"Login":    true,
		"Redirect": next,
	})
}

// Logout revokes the viewer's refresh token when the cookie identified
// them, clears the cookie in every case and returns to the login page.
func (p *Pages) Logout(c *gin.Context) {
	if claims, ok := claimsFrom(c); ok && p.revoker != nil {
		if err := p.revoker.Logout(c.Request.Context(), claims.UserID()); err != nil {
			p.logger.Warn("page logout failed to revoke session",
				zap.String("user_id", claims.UserID()),
				zap.Error(err),
			)
		}
	}
	ClearAccessCookie(c, p.cookies)
	c.Redirect(http.StatusSeeOther, LoginPath)
}

// Unauthorized renders the view for a signed-in user outside their portal
func (p *Pages) Unauthorized(c *gin.Context) {
	st := StateFrom(c)
	data := gin.H{"Title": "Not allowed"}
	if st.Phase == Authenticated {
		data["Home"] = p.authorizer.Home(st.Role)
	}
	c.HTML(http.StatusForbidden, "page.html", data)
}

func (p *Pages) render(title string) gin.HandlerFunc {
	return func(c *gin.Context) {
		data := gin.H{"Title": title}
		st := StateFrom(c)
		if st.Phase == Authenticated {
			data["Role"] = string(st.Role)
			data["Home"] = p.authorizer.Home(st.Role)
		}
		if claims, ok := claimsFrom(c); ok {
			data["Email"] = claims.Email
		}
		c.HTML(http.StatusOK, "page.html", data)
	}
}

func claimsFrom(c *gin.Context) (*token.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*token.Claims)
	return claims, ok && claims != nil
}

func serveStatic(c *gin.Context) {
	name := "static" + path.Clean("/"+c.Param("file"))
	if _, err := fs.Stat(static, name); err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	c.FileFromFS(name, http.FS(static))
}
