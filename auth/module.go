package auth

import (
	"context"
)

// TokenTypeBearer is the only token type issued by SignIn.
const TokenTypeBearer = "bearer"

// Module is the capability set every authentication backend implements.
//
// Expected failures are reported with the typed errors in package services:
//   - services.ErrInvalidToken: invalid, expired, tampered or empty token
//   - services.ErrInvalidCredentials: wrong password or unknown user, never distinguished
//   - services.ErrMalformedCredential: credential shape the backend cannot read
//   - services.ErrRegistrationFailed: duplicate account, weak password
//   - services.ErrUserNotFound: unknown uid on delete
//   - services.ErrProviderUnavailable: the provider could not be reached
type Module interface {
	// Name returns the backend identifier used by the selector (e.g. "firebase").
	Name() string

	// GetCurrentUser verifies the credential and returns the identity it proves.
	GetCurrentUser(ctx context.Context, cred Credential) (*UserRecord, error)

	// SignIn exchanges an email/password pair for a bearer token.
	SignIn(ctx context.Context, user UserCreate) (*Token, error)

	// SignUp registers a new identity with the provider.
	SignUp(ctx context.Context, user UserCreate) error

	// DeleteUser removes the identity with the given uid.
	DeleteUser(ctx context.Context, uid string) error

	// ForgotPassword triggers an out-of-band reset flow. Unknown addresses
	// succeed so the result never reveals whether an account exists.
	ForgotPassword(ctx context.Context, email string) error
}

// UserRecord is the verified identity handed to protected handlers.
// It is rebuilt from token claims on every request and never stored.
type UserRecord struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"name,omitempty"`
}

// Greeting returns the most human-friendly label available for the user.
func (u *UserRecord) Greeting() string {
	switch {
	case u.DisplayName != "":
		return u.DisplayName
	case u.Email != "":
		return u.Email
	default:
		return u.UID
	}
}

// UserCreate carries the email/password pair forwarded on sign-up and sign-in.
type UserCreate struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	DisplayName string `json:"display_name,omitempty" validate:"omitempty,max=256"`
}

// ForgotPassword is the body of a password reset request.
type ForgotPassword struct {
	Email string `json:"email" validate:"required,email"`
}

// Token is the result of a successful SignIn.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
}
