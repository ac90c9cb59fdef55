// Package portal decides where a browser may navigate based on who is
// signed in, and serves the page routes behind that decision.
package portal

import (
	"net/url"
	"path"
	"strings"

	"github.com/courierdesk/gateway/internal/user"
)

// Well known page paths
const (
	LoginPath        = "/login"
	LogoutPath       = "/logout"
	RegisterPath     = "/register"
	UnauthorizedPath = "/unauthorized"
)

// Phase is where a session is in its lifecycle
type Phase int

const (
	Unauthenticated Phase = iota
	Authenticating
	Authenticated
)

func (p Phase) String() string {
	switch p {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// State is the navigation-relevant part of a session. Role is only
// meaningful when Phase is Authenticated.
type State struct {
	Phase Phase
	Role  user.Role
}

// Anonymous is the signed-out state
func Anonymous() State { return State{Phase: Unauthenticated} }

// Pending is the state while a stored token is being rehydrated
func Pending() State { return State{Phase: Authenticating} }

// SignedIn is the state of a session holding a valid token for role
func SignedIn(role user.Role) State { return State{Phase: Authenticated, Role: role} }

func (s State) String() string {
	if s.Phase == Authenticated {
		return "authenticated(" + string(s.Role) + ")"
	}
	return s.Phase.String()
}

// Action is the outcome of a navigation check
type Action int

const (
	Allow Action = iota
	RedirectLogin
	RedirectHome
	RedirectUnauthorized
	// Defer means the session is still rehydrating; ask again once it settles
	Defer
)

func (a Action) String() string {
	switch a {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "login"
	case RedirectHome:
		return "home"
	case RedirectUnauthorized:
		return "unauthorized"
	case Defer:
		return "defer"
	default:
		return "unknown"
	}
}

// Decision tells the caller what to do with a navigation. Location is set
// for redirects.
type Decision struct {
	Action   Action
	Location string
}

// Portal is one role's area of the site
type Portal struct {
	Role   user.Role
	Prefix string
	Home   string
}

// DefaultPortals is the static role to portal table
var DefaultPortals = []Portal{
	{Role: user.RoleSystemAdmin, Prefix: "/admin", Home: "/admin/dashboard"},
	{Role: user.RoleCompany, Prefix: "/company", Home: "/company/dashboard"},
	{Role: user.RoleCourier, Prefix: "/courier", Home: "/courier/dashboard"},
}

var (
	publicPaths    = []string{"/", LoginPath, LogoutPath, RegisterPath, "/forgot-password", UnauthorizedPath}
	loginPaths     = []string{LoginPath, RegisterPath}
	staticPrefixes = []string{"/static", "/assets", "/favicon.ico"}
)

// Authorizer maps roles to the portal prefixes they may open
type Authorizer struct {
	portals []Portal
	byRole  map[user.Role]Portal
}

// NewAuthorizer builds an authorizer over portals, or DefaultPortals when
// none are given.
func NewAuthorizer(portals ...Portal) *Authorizer {
	if len(portals) == 0 {
		portals = DefaultPortals
	}
	a := &Authorizer{
		portals: portals,
		byRole:  make(map[user.Role]Portal, len(portals)),
	}
	for _, p := range portals {
		a.byRole[p.Role] = p
	}
	return a
}

// Portals returns the configured table
func (a *Authorizer) Portals() []Portal {
	return a.portals
}

// Home returns the landing page for role. Unknown roles land on the
// unauthorized view.
func (a *Authorizer) Home(role user.Role) string {
	if p, ok := a.byRole[role]; ok {
		return p.Home
	}
	return UnauthorizedPath
}

// Decide applies the navigation rules to target, a path with optional query.
// A signed-in user opening a login path is sent on to the page named by its
// redirect parameter when their role may open it, else to their home.
func (a *Authorizer) Decide(target string, st State) Decision {
	p := cleanPath(target)

	if st.Phase == Authenticated && matchesAny(p, loginPaths) {
		return Decision{Action: RedirectHome, Location: a.ReturnPath(redirectParam(target), st.Role)}
	}

	if isPublic(p) {
		return Decision{Action: Allow}
	}

	owner, protected := a.owner(p)
	if !protected {
		return Decision{Action: Allow}
	}

	switch st.Phase {
	case Unauthenticated:
		return Decision{Action: RedirectLogin, Location: LoginLocation(target)}
	case Authenticating:
		return Decision{Action: Defer}
	}

	if owner.Role != st.Role {
		return Decision{Action: RedirectUnauthorized, Location: UnauthorizedPath}
	}
	return Decision{Action: Allow}
}

// ReturnPath picks where to send role after login: the sanitized requested
// path when role may open it, otherwise role's home.
func (a *Authorizer) ReturnPath(raw string, role user.Role) string {
	home := a.Home(role)
	target := SafeReturnPath(raw, home)
	if target == home {
		return home
	}
	if d := a.Decide(target, SignedIn(role)); d.Action != Allow || cleanPath(target) == "/" {
		return home
	}
	return target
}

func (a *Authorizer) owner(p string) (Portal, bool) {
	for _, portal := range a.portals {
		if hasPathPrefix(p, portal.Prefix) {
			return portal, true
		}
	}
	return Portal{}, false
}

// LoginLocation is the login page URL that returns to target afterwards
func LoginLocation(target string) string {
	return LoginPath + "?redirect=" + url.QueryEscape(target)
}

// redirectParam extracts the redirect query parameter of target
func redirectParam(target string) string {
	i := strings.IndexByte(target, '?')
	if i < 0 {
		return ""
	}
	query := target[i+1:]
	if j := strings.IndexByte(query, '#'); j >= 0 {
		query = query[:j]
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return ""
	}
	return values.Get("redirect")
}

// SafeReturnPath returns raw when it is a local absolute path, else fallback.
// Scheme-relative, absolute and backslash forms are rejected so a crafted
// redirect parameter cannot leave the site.
func SafeReturnPath(raw, fallback string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return fallback
	}
	if strings.HasPrefix(raw, "//") || strings.ContainsAny(raw, "\\\r\n\t") {
		return fallback
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return fallback
	}
	if matchesAny(cleanPath(raw), loginPaths) {
		return fallback
	}
	return raw
}

func isPublic(p string) bool {
	if matchesAny(p, publicPaths) {
		return true
	}
	for _, prefix := range staticPrefixes {
		if hasPathPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func matchesAny(p string, paths []string) bool {
	for _, candidate := range paths {
		if p == candidate {
			return true
		}
	}
	return false
}

// hasPathPrefix matches whole segments: /admin matches /admin/x, not /administrator
func hasPathPrefix(p, prefix string) bool {
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// cleanPath strips the query and resolves dot segments
func cleanPath(target string) string {
	p := target
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	if p == "" {
		return "/"
	}
	return path.Clean("/" + strings.TrimPrefix(p, "/"))
}
