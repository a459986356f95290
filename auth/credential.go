package auth

import (
	"strings"

	"github.com/upb/auth-gateway/services"
)

// Credential is a proof of identity presented by a caller. It carries no
// identity of its own until a Module verifies it.
//
// The transport layer resolves every request into exactly one of the
// variants below, so backends never inspect raw request data.
type Credential interface {
	credential()
}

// BearerToken is an opaque token taken from the Authorization header or a cookie.
type BearerToken string

func (BearerToken) credential() {}

// StructuredCredential is a JSON payload that embeds an identity token.
type StructuredCredential struct {
	IDToken string `json:"idToken"`
}

func (StructuredCredential) credential() {}

// RawToken normalizes a credential into the token string it carries.
// Unknown variants yield services.ErrMalformedCredential and empty tokens
// yield services.ErrInvalidToken.
func RawToken(cred Credential) (string, error) {
	var token string
	switch c := cred.(type) {
	case BearerToken:
		token = string(c)
	case *BearerToken:
		if c != nil {
			token = string(*c)
		}
	case StructuredCredential:
		token = c.IDToken
	case *StructuredCredential:
		if c != nil {
			token = c.IDToken
		}
	default:
		return "", services.ErrMalformedCredential
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", services.ErrInvalidToken
	}
	return token, nil
}
