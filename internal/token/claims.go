package token

import (
	"time"

	"github.com/courierdesk/gateway/internal/user"
	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the access token claim set. The subject is the user id.
type Claims struct {
	Email     string    `json:"email"`
	Role      user.Role `json:"role"`
	CompanyID string    `json:"company_id,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim
func (c *Claims) UserID() string {
	return c.Subject
}

// Identity is the authenticated principal a token pair is issued for
type Identity struct {
	UserID    string
	Email     string
	Role      user.Role
	CompanyID string
}

// IdentityOf builds the token identity of u
func IdentityOf(u *user.User) Identity {
	return Identity{
		UserID:    u.ID,
		Email:     u.Email,
		Role:      u.Role,
		CompanyID: u.CompanyIDString(),
	}
}

// TokenPair represents an access and refresh token pair
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	TokenType        string    `json:"token_type"`
}

// TokenType constants
const (
	TokenTypeBearer = "Bearer"
)
