package firebase

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/upb/auth-gateway/services"
)

const (
	// DefaultIdentityToolkitURL is the production Identity Toolkit REST endpoint.
	DefaultIdentityToolkitURL = "https://identitytoolkit.googleapis.com"

	// DefaultJWKSURL serves the public keys that sign Firebase ID tokens.
	DefaultJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

	issuerPrefix = "https://securetoken.google.com/"
)

// Config holds the project settings and service-account fields of a
// Firebase project.
type Config struct {
	APIKey            string
	AuthDomain        string
	ProjectID         string
	PrivateKeyID      string
	PrivateKey        string
	ClientEmail       string
	ClientID          string
	ClientX509CertURL string

	IdentityToolkitURL string
	JWKSURL            string
	HTTPTimeout        time.Duration
	JWKSCacheTTL       time.Duration
}

// serviceAccount mirrors the JSON key file issued by the Google console.
type serviceAccount struct {
	Type                    string `json:"type"`
	ProjectID               string `json:"project_id"`
	PrivateKeyID            string `json:"private_key_id"`
	PrivateKey              string `json:"private_key"`
	ClientEmail             string `json:"client_email"`
	ClientID                string `json:"client_id"`
	AuthURI                 string `json:"auth_uri"`
	TokenURI                string `json:"token_uri"`
	AuthProviderX509CertURL string `json:"auth_provider_x509_cert_url"`
	ClientX509CertURL       string `json:"client_x509_cert_url"`
}

// Validate reports the first missing required field as a configuration error.
func (c Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"FIREBASE_API_KEY", c.APIKey},
		{"FIREBASE_PROJECT_ID", c.ProjectID},
		{"FIREBASE_PRIVATE_KEY", c.PrivateKey},
		{"FIREBASE_CLIENT_EMAIL", c.ClientEmail},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return services.WrapConfiguration(
				"firebase backend misconfigured",
				fmt.Errorf("%s is required", field.name),
			)
		}
	}
	return nil
}

// checkPrivateKey parses the service-account key so an unusable key fails
// at start-up rather than on the first admin call.
func (c Config) checkPrivateKey() error {
	if _, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(c.privateKeyPEM())); err != nil {
		return services.WrapConfiguration(
			"firebase backend misconfigured",
			fmt.Errorf("FIREBASE_PRIVATE_KEY is not a valid RSA private key: %w", err),
		)
	}
	return nil
}

// privateKeyPEM expands the literal "\n" sequences environment files carry.
func (c Config) privateKeyPEM() string {
	return strings.ReplaceAll(c.PrivateKey, `\n`, "\n")
}

// withDefaults fills the endpoint and timing fields left empty.
func (c Config) withDefaults() Config {
	if c.IdentityToolkitURL == "" {
		c.IdentityToolkitURL = DefaultIdentityToolkitURL
	}
	c.IdentityToolkitURL = strings.TrimSuffix(c.IdentityToolkitURL, "/")
	if c.JWKSURL == "" {
		c.JWKSURL = DefaultJWKSURL
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.JWKSCacheTTL == 0 {
		c.JWKSCacheTTL = time.Hour
	}
	return c
}

// serviceAccountJSON assembles the key file from configuration.
func (c Config) serviceAccountJSON() ([]byte, error) {
	account := serviceAccount{
		Type:                    "service_account",
		ProjectID:               c.ProjectID,
		PrivateKeyID:            c.PrivateKeyID,
		PrivateKey:              c.privateKeyPEM(),
		ClientEmail:             c.ClientEmail,
		ClientID:                c.ClientID,
		AuthURI:                 "https://accounts.google.com/o/oauth2/auth",
		TokenURI:                "https://oauth2.googleapis.com/token",
		AuthProviderX509CertURL: "https://www.googleapis.com/oauth2/v1/certs",
		ClientX509CertURL:       c.ClientX509CertURL,
	}

	data, err := json.Marshal(account)
	if err != nil {
		return nil, fmt.Errorf("marshal service account: %w", err)
	}
	return data, nil
}

// issuer is the iss claim every ID token of the project carries.
func (c Config) issuer() string {
	return issuerPrefix + c.ProjectID
}
