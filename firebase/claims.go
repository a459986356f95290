package firebase

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/upb/auth-gateway/auth"
)

// Claims represents the claims of a Firebase ID token
type Claims struct {
	jwt.RegisteredClaims
	AuthTime      int64  `json:"auth_time"`
	UserID        string `json:"user_id"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Name          string `json:"name,omitempty"`

	Firebase struct {
		SignInProvider string `json:"sign_in_provider,omitempty"`
	} `json:"firebase"`
}

// UserRecord converts verified claims into the identity handed to handlers.
func (c *Claims) UserRecord() *auth.UserRecord {
	return &auth.UserRecord{
		UID:         c.Subject,
		Email:       c.Email,
		DisplayName: c.Name,
	}
}
