package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/auth-gateway/auth"
	"github.com/upb/auth-gateway/models"
	"github.com/upb/auth-gateway/services"
	"github.com/upb/auth-gateway/utils"
)

// authTokenCookieName is the cookie name for bearer tokens (Authorization header takes precedence)
// sessionCookieName is accepted for clients that store the token as a session cookie
const authTokenCookieName = "auth_token"
const sessionCookieName = "session"

// maxCredentialBodyBytes bounds how much of a JSON body is read while looking for idToken
const maxCredentialBodyBytes = 1 << 20

const (
	detailInvalidCredentials  = "Invalid authentication credentials"
	detailServiceUnavailable  = "Authentication service unavailable"
	detailMalformedCredential = "Unsupported credential format"
)

// errMalformedBody marks a JSON body whose idToken is present but unusable
var errMalformedBody = errors.New("idToken must be a string")

// AuthMiddleware verifies caller credentials against the configured backend
type AuthMiddleware struct {
	module   auth.Module
	recorder auth.EventRecorder
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(module auth.Module, recorder auth.EventRecorder, logger *zap.Logger) *AuthMiddleware {
	if recorder == nil {
		recorder = auth.NopRecorder{}
	}
	return &AuthMiddleware{
		module:   module,
		recorder: recorder,
		logger:   logger,
	}
}

// RequireAuth is a middleware that requires a verifiable credential.
// The verified user is available to the next handler via auth.UserFromContext.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)
		started := time.Now()

		cred, source, err := extractCredential(r)
		if err != nil {
			m.logger.Warn("malformed credential",
				zap.String("request_id", requestID),
				zap.String("source", source))
			m.reject(r, services.ErrMalformedCredential, started)
			_ = utils.WriteUnprocessable(w, detailMalformedCredential, nil)
			return
		}
		if cred == nil {
			m.logger.Debug("missing credential",
				zap.String("request_id", requestID))
			m.reject(r, services.ErrInvalidToken, started)
			_ = utils.WriteUnauthorized(w, "")
			return
		}

		user, err := m.module.GetCurrentUser(ctx, cred)
		if err != nil {
			m.logger.Warn("credential verification failed",
				zap.String("request_id", requestID),
				zap.String("source", source),
				zap.String("backend", m.module.Name()),
				zap.String("error_type", string(services.GetErrorType(err))))
			m.reject(r, err, started)

			switch {
			case services.IsValidationError(err):
				_ = utils.WriteUnprocessable(w, detailMalformedCredential, nil)
			case services.IsExternalError(err):
				_ = utils.WriteServiceUnavailable(w, detailServiceUnavailable)
			default:
				_ = utils.WriteUnauthorized(w, detailInvalidCredentials)
			}
			return
		}

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("source", source),
			zap.String("backend", m.module.Name()))

		next.ServeHTTP(w, r.WithContext(auth.WithUser(ctx, user)))
	})
}

func (m *AuthMiddleware) reject(r *http.Request, err error, started time.Time) {
	m.recorder.Record(r.Context(), auth.NewEvent(r, models.AuthActionAccessDenied, m.module.Name(), err, started))
}

// extractCredential resolves the request into a single credential. Sources
// are tried in order: Authorization header, auth cookies, JSON body idToken.
// A nil credential with a nil error means none was presented.
func extractCredential(r *http.Request) (auth.Credential, string, error) {
	// Try Authorization header first
	if token := extractBearerToken(r); token != "" {
		return auth.BearerToken(token), "header", nil
	}

	for _, name := range []string{authTokenCookieName, sessionCookieName} {
		if cookie, err := r.Cookie(name); err == nil && cookie.Value != "" {
			return auth.BearerToken(cookie.Value), "cookie", nil
		}
	}

	cred, err := extractBodyCredential(r)
	if err != nil {
		return nil, "body", err
	}
	if cred != nil {
		return cred, "body", nil
	}
	return nil, "", nil
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	// Check if it starts with "Bearer "
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// extractBodyCredential looks for a top-level idToken in a JSON body and
// restores the body so the handler can still read it.
func extractBodyCredential(r *http.Request) (auth.Credential, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCredentialBodyBytes))
	// Whatever was not read stays behind the prefix, so the handler sees the whole body
	r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(body), r.Body), Closer: r.Body}
	if err != nil || len(body) == 0 {
		return nil, nil
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, nil
	}
	raw, ok := payload["idToken"]
	if !ok {
		return nil, nil
	}

	var cred auth.StructuredCredential
	if err := json.Unmarshal(raw, &cred.IDToken); err != nil {
		return nil, errMalformedBody
	}
	return cred, nil
}

// readCloser pairs a replayed body with the original body's Close
type readCloser struct {
	io.Reader
	io.Closer
}
