package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/upb/auth-gateway/services"
)

// Provider error codes returned in {"error":{"message": ...}}
const (
	codeEmailNotFound = "EMAIL_NOT_FOUND"
	codeUserNotFound  = "USER_NOT_FOUND"
)

// maxErrorBody bounds how much of a failed reply is read
const maxErrorBody = 64 << 10

// ProviderError is a 4xx reply from the Identity Toolkit. Code is the
// provider's error code and never contains user data.
type ProviderError struct {
	StatusCode int
	Code       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("identity toolkit: status %d: %s", e.StatusCode, e.Code)
}

// ProviderCode extracts the provider error code from err, if any.
func ProviderCode(err error) string {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Code
	}
	return ""
}

// SignInResponse is the reply of accounts:signInWithPassword
type SignInResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
}

// CreateAccountRequest is the admin body for creating a user
type CreateAccountRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Toolkit calls the Identity Toolkit REST API. Public calls are keyed by
// the web API key; admin calls go through a service-account client.
type Toolkit struct {
	baseURL   string
	apiKey    string
	projectID string
	client    *http.Client
	admin     *http.Client
}

// NewToolkit creates a Toolkit client. client serves API-key calls and admin
// must attach service-account credentials.
func NewToolkit(cfg Config, client, admin *http.Client) *Toolkit {
	cfg = cfg.withDefaults()
	return &Toolkit{
		baseURL:   cfg.IdentityToolkitURL,
		apiKey:    cfg.APIKey,
		projectID: cfg.ProjectID,
		client:    client,
		admin:     admin,
	}
}

// SignInWithPassword exchanges an email/password pair for an ID token.
// Every provider rejection is services.ErrInvalidCredentials.
func (t *Toolkit) SignInWithPassword(ctx context.Context, email, password string) (*SignInResponse, error) {
	payload := map[string]interface{}{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}

	var out SignInResponse
	if err := t.call(ctx, t.client, t.publicURL("accounts:signInWithPassword"), payload, &out); err != nil {
		if isBadRequest(err) {
			return nil, services.ErrInvalidCredentials.Wrap(err)
		}
		return nil, err
	}
	if out.IDToken == "" {
		return nil, services.ErrProviderUnavailable.Wrap(errors.New("no idToken in response"))
	}
	return &out, nil
}

// CreateAccount registers a user and returns its uid.
func (t *Toolkit) CreateAccount(ctx context.Context, req CreateAccountRequest) (string, error) {
	var out struct {
		LocalID string `json:"localId"`
	}
	if err := t.call(ctx, t.admin, t.adminURL("accounts"), req, &out); err != nil {
		if isBadRequest(err) {
			return "", services.ErrRegistrationFailed.Wrap(err).WithDetail("provider_code", ProviderCode(err))
		}
		return "", err
	}
	return out.LocalID, nil
}

// DeleteAccount removes the user with the given uid.
func (t *Toolkit) DeleteAccount(ctx context.Context, uid string) error {
	payload := map[string]string{"localId": uid}

	if err := t.call(ctx, t.admin, t.adminURL("accounts:delete"), payload, nil); err != nil {
		if !isBadRequest(err) {
			return err
		}
		if ProviderCode(err) == codeUserNotFound {
			return services.ErrUserNotFound.Wrap(err)
		}
		return services.ErrInvalidInput.Wrap(err).WithDetail("provider_code", ProviderCode(err))
	}
	return nil
}

// SendPasswordReset asks the provider to mail a reset link. Unknown
// addresses succeed.
func (t *Toolkit) SendPasswordReset(ctx context.Context, email string) error {
	payload := map[string]string{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}

	if err := t.call(ctx, t.client, t.publicURL("accounts:sendOobCode"), payload, nil); err != nil {
		if !isBadRequest(err) {
			return err
		}
		if ProviderCode(err) == codeEmailNotFound {
			return nil
		}
		return services.ErrInvalidInput.Wrap(err).WithDetail("provider_code", ProviderCode(err))
	}
	return nil
}

func (t *Toolkit) publicURL(method string) string {
	return t.baseURL + "/v1/" + method + "?key=" + url.QueryEscape(t.apiKey)
}

func (t *Toolkit) adminURL(method string) string {
	return t.baseURL + "/v1/projects/" + url.PathEscape(t.projectID) + "/" + method
}

// call posts payload as JSON and decodes a 2xx reply into out. A 400 reply
// comes back as *ProviderError; everything else that fails is
// services.ErrProviderUnavailable.
func (t *Toolkit) call(ctx context.Context, client *http.Client, endpoint string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return services.WrapInternal("encode provider request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return services.WrapInternal("create provider request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		// url.Error embeds the request URL, which carries the API key
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return services.ErrProviderUnavailable.Wrap(fmt.Errorf("provider request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return services.ErrProviderUnavailable.Wrap(fmt.Errorf("provider returned status %d", resp.StatusCode))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		providerErr := &ProviderError{StatusCode: resp.StatusCode, Code: errorCode(data)}
		if resp.StatusCode != http.StatusBadRequest {
			return services.ErrProviderUnavailable.Wrap(providerErr)
		}
		return providerErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.ErrProviderUnavailable.Wrap(fmt.Errorf("decode provider response: %w", err))
	}
	return nil
}

// isBadRequest reports a bare 400 provider rejection. Other 4xx replies
// (bad API key, disabled API) arrive already wrapped as outages.
func isBadRequest(err error) bool {
	providerErr, ok := err.(*ProviderError)
	return ok && providerErr.StatusCode == http.StatusBadRequest
}

// errorCode pulls the leading code out of messages such as
// "WEAK_PASSWORD : Password should be at least 6 characters".
func errorCode(body []byte) string {
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "UNKNOWN"
	}
	code := strings.TrimSpace(envelope.Error.Message)
	if i := strings.IndexAny(code, " :"); i > 0 {
		code = code[:i]
	}
	if code == "" {
		return "UNKNOWN"
	}
	return code
}
