package user

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Role determines which portal a user may access
type Role string

const (
	RoleSystemAdmin Role = "SYSTEM_ADMIN"
	RoleCompany     Role = "COMPANY"
	RoleCourier     Role = "COURIER"
)

// Roles lists every role in the closed set
var Roles = []Role{RoleSystemAdmin, RoleCompany, RoleCourier}

// ParseRole accepts the canonical form and the kebab-case form used by
// the portals ("system-admin").
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleSystemAdmin, RoleCompany, RoleCourier:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// Status is the account lifecycle state
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusPending   Status = "PENDING"
	StatusSuspended Status = "SUSPENDED"
	StatusBlocked   Status = "BLOCKED"
)

// ParseStatus parses a status name
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusActive, StatusPending, StatusSuspended, StatusBlocked:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// CanLogin reports whether the account may obtain tokens
func (s Status) CanLogin() bool {
	return s == StatusActive
}

// User represents the users table
type User struct {
	ID               string         `db:"id" json:"id"`
	Email            string         `db:"email" json:"email"`
	PasswordDigest   string         `db:"password_digest" json:"-"`
	Role             Role           `db:"role" json:"role"`
	Status           Status         `db:"status" json:"status"`
	CompanyID        sql.NullString `db:"company_id" json:"-"`
	RefreshTokenHash sql.NullString `db:"refresh_token_hash" json:"-"`
	LastLoggedOn     sql.NullTime   `db:"last_logged_on" json:"-"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// CompanyIDString returns the tenant id or "" for platform users
func (u *User) CompanyIDString() string {
	if u.CompanyID.Valid {
		return u.CompanyID.String
	}
	return ""
}

// Profile is the public view of a user returned by the API
type Profile struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Role         Role       `json:"role"`
	Status       Status     `json:"status"`
	CompanyID    string     `json:"company_id,omitempty"`
	LastLoggedOn *time.Time `json:"last_logged_on,omitempty"`
}

// Profile builds the public view of u
func (u *User) Profile() Profile {
	p := Profile{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		Status:    u.Status,
		CompanyID: u.CompanyIDString(),
	}
	if u.LastLoggedOn.Valid {
		t := u.LastLoggedOn.Time
		p.LastLoggedOn = &t
	}
	return p
}

// LoginAttempt represents the login_attempts audit table
type LoginAttempt struct {
	ID          int64     `db:"id" json:"id"`
	Email       string    `db:"email" json:"email"`
	IPAddress   string    `db:"ip_address" json:"ip_address"`
	Method      string    `db:"method" json:"method"`
	Success     bool      `db:"success" json:"success"`
	AttemptedAt time.Time `db:"attempted_at" json:"attempted_at"`
}
