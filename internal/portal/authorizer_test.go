package portal

import (
	"testing"

	"github.com/courierdesk/gateway/internal/user"
)

func TestAuthorizer_Decide(t *testing.T) {
	a := NewAuthorizer()

	tests := []struct {
		name         string
		target       string
		state        State
		wantAction   Action
		wantLocation string
	}{
		{"anonymous public root", "/", Anonymous(), Allow, ""},
		{"anonymous login page", "/login", Anonymous(), Allow, ""},
		{"anonymous static asset", "/static/app.css", Anonymous(), Allow, ""},
		{"anonymous unknown public path", "/about", Anonymous(), Allow, ""},
		{"anonymous protected", "/courier/jobs?page=2", Anonymous(), RedirectLogin, "/login?redirect=%2Fcourier%2Fjobs%3Fpage%3D2"},
		{"anonymous portal root", "/admin", Anonymous(), RedirectLogin, "/login?redirect=%2Fadmin"},
		{"rehydrating protected", "/company/dashboard", Pending(), Defer, ""},
		{"rehydrating public", "/login", Pending(), Allow, ""},
		{"courier in own portal", "/courier/dashboard", SignedIn(user.RoleCourier), Allow, ""},
		{"courier to admin", "/admin/users", SignedIn(user.RoleCourier), RedirectUnauthorized, "/unauthorized"},
		{"courier dot segments to admin", "/courier/../admin/users", SignedIn(user.RoleCourier), RedirectUnauthorized, "/unauthorized"},
		{"company to courier", "/courier", SignedIn(user.RoleCompany), RedirectUnauthorized, "/unauthorized"},
		{"admin to admin", "/admin/dashboard", SignedIn(user.RoleSystemAdmin), Allow, ""},
		{"prefix is segment aware", "/administrator", Anonymous(), Allow, ""},
		{"signed in login goes home", "/login", SignedIn(user.RoleCompany), RedirectHome, "/company/dashboard"},
		{"signed in register goes home", "/register?x=1", SignedIn(user.RoleSystemAdmin), RedirectHome, "/admin/dashboard"},
		{"signed in login continues to own portal", "/login?redirect=%2Fcourier%2Fjobs%3Fpage%3D2", SignedIn(user.RoleCourier), RedirectHome, "/courier/jobs?page=2"},
		{"signed in login ignores foreign portal", "/login?redirect=%2Fadmin%2Fusers", SignedIn(user.RoleCourier), RedirectHome, "/courier/dashboard"},
		{"signed in login ignores offsite redirect", "/login?redirect=%2F%2Fevil.example.com", SignedIn(user.RoleCourier), RedirectHome, "/courier/dashboard"},
		{"logout is public", "/logout", SignedIn(user.RoleCourier), Allow, ""},
		{"signed in unauthorized view", "/unauthorized", SignedIn(user.RoleCourier), Allow, ""},
		{"unknown role on protected", "/courier", SignedIn(user.Role("GHOST")), RedirectUnauthorized, "/unauthorized"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Decide(tt.target, tt.state)
			if got.Action != tt.wantAction {
				t.Errorf("Decide(%q, %v).Action = %v, want %v", tt.target, tt.state, got.Action, tt.wantAction)
			}
			if got.Location != tt.wantLocation {
				t.Errorf("Decide(%q, %v).Location = %q, want %q", tt.target, tt.state, got.Location, tt.wantLocation)
			}
		})
	}
}

func TestAuthorizer_DecideLeavesStateUnchanged(t *testing.T) {
	a := NewAuthorizer()
	st := SignedIn(user.RoleCourier)

	d := a.Decide("/admin/reports", st)
	if d.Action != RedirectUnauthorized {
		t.Fatalf("Action = %v, want unauthorized", d.Action)
	}
	if st != SignedIn(user.RoleCourier) {
		t.Errorf("state changed to %v", st)
	}
}

func TestAuthorizer_Home(t *testing.T) {
	a := NewAuthorizer()
	if got := a.Home(user.RoleCourier); got != "/courier/dashboard" {
		t.Errorf("Home(COURIER) = %q", got)
	}
	if got := a.Home(user.Role("")); got != UnauthorizedPath {
		t.Errorf("Home(empty) = %q, want %q", got, UnauthorizedPath)
	}
}

func TestSafeReturnPath(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"/courier/jobs?page=2", "/courier/jobs?page=2"},
		{"", "/home"},
		{"courier/jobs", "/home"},
		{"//evil.example.com/x", "/home"},
		{"/\\evil.example.com", "/home"},
		{"https://evil.example.com", "/home"},
		{"/ok\r\nSet-Cookie: x=1", "/home"},
		{"/login", "/home"},
		{"/register?redirect=/admin", "/home"},
	}

	for _, tt := range tests {
		if got := SafeReturnPath(tt.raw, "/home"); got != tt.want {
			t.Errorf("SafeReturnPath(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestAuthorizer_ReturnPath(t *testing.T) {
	a := NewAuthorizer()

	tests := []struct {
		raw  string
		role user.Role
		want string
	}{
		{"/courier/jobs/7", user.RoleCourier, "/courier/jobs/7"},
		{"/admin/users", user.RoleCourier, "/courier/dashboard"},
		{"//evil.example.com", user.RoleCompany, "/company/dashboard"},
		{"/", user.RoleSystemAdmin, "/admin/dashboard"},
		{"", user.RoleSystemAdmin, "/admin/dashboard"},
	}

	for _, tt := range tests {
		if got := a.ReturnPath(tt.raw, tt.role); got != tt.want {
			t.Errorf("ReturnPath(%q, %s) = %q, want %q", tt.raw, tt.role, got, tt.want)
		}
	}
}
