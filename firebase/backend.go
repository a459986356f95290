package firebase

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/upb/auth-gateway/auth"
	"github.com/upb/auth-gateway/services"
	"github.com/upb/auth-gateway/utils"
)

// Name identifies this backend in AUTH_SERVICE
const Name = "firebase"

// adminScopes are requested for the service-account client
var adminScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/identitytoolkit",
	"https://www.googleapis.com/auth/firebase",
}

// Backend implements auth.Module on top of Firebase Authentication
type Backend struct {
	verifier *Verifier
	toolkit  *Toolkit
	logger   *zap.Logger
}

// New validates cfg and builds the verifier and Identity Toolkit clients.
// Missing or unusable credentials are configuration errors.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.checkPrivateKey(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	keyJSON, err := cfg.serviceAccountJSON()
	if err != nil {
		return nil, services.WrapConfiguration("firebase service account", err)
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	admin, err := adminClient(ctx, keyJSON, httpClient, cfg.HTTPTimeout)
	if err != nil {
		return nil, services.WrapConfiguration("firebase service account", err)
	}

	logger.Info("firebase backend configured",
		zap.String("project_id", cfg.ProjectID),
		zap.String("identity_toolkit_url", cfg.IdentityToolkitURL),
	)

	return newBackend(NewVerifier(cfg, httpClient), NewToolkit(cfg, httpClient, admin), logger), nil
}

// adminClient returns an HTTP client that attaches service-account access
// tokens, fetched through base.
func adminClient(ctx context.Context, keyJSON []byte, base *http.Client, timeout time.Duration) (*http.Client, error) {
	// The token source outlives the start-up context.
	tokenCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, base)

	creds, err := google.CredentialsFromJSON(tokenCtx, keyJSON, adminScopes...)
	if err != nil {
		return nil, err
	}

	client := oauth2.NewClient(tokenCtx, creds.TokenSource)
	client.Timeout = timeout
	return client, nil
}

func newBackend(verifier *Verifier, toolkit *Toolkit, logger *zap.Logger) *Backend {
	return &Backend{
		verifier: verifier,
		toolkit:  toolkit,
		logger:   logger.With(zap.String("backend", Name)),
	}
}

// Name implements auth.Module
func (b *Backend) Name() string {
	return Name
}

// GetCurrentUser verifies a Firebase ID token and returns its identity
func (b *Backend) GetCurrentUser(ctx context.Context, cred auth.Credential) (*auth.UserRecord, error) {
	token, err := auth.RawToken(cred)
	if err != nil {
		return nil, err
	}

	claims, err := b.verifier.Verify(ctx, token)
	if err != nil {
		if services.IsExternalError(err) {
			b.logger.Warn("token verification unavailable", zap.Error(err))
		} else {
			b.logger.Debug("token rejected", zap.Error(err))
		}
		return nil, err
	}

	return claims.UserRecord(), nil
}

// SignIn exchanges credentials for a Firebase ID token, which is handed to
// the caller as its bearer token.
func (b *Backend) SignIn(ctx context.Context, user auth.UserCreate) (*auth.Token, error) {
	resp, err := b.toolkit.SignInWithPassword(ctx, user.Email, user.Password)
	if err != nil {
		b.logFailure("sign in failed", err)
		return nil, err
	}

	expiresIn, _ := strconv.Atoi(resp.ExpiresIn)
	return &auth.Token{
		AccessToken: resp.IDToken,
		TokenType:   auth.TokenTypeBearer,
		ExpiresIn:   expiresIn,
	}, nil
}

// SignUp creates the account with the admin API
func (b *Backend) SignUp(ctx context.Context, user auth.UserCreate) error {
	_, err := b.toolkit.CreateAccount(ctx, CreateAccountRequest{
		Email:       user.Email,
		Password:    user.Password,
		DisplayName: user.DisplayName,
	})
	if err != nil {
		b.logFailure("sign up failed", err)
		return err
	}
	return nil
}

// DeleteUser removes the account with the admin API
func (b *Backend) DeleteUser(ctx context.Context, uid string) error {
	if err := utils.ValidateUID(uid); err != nil {
		return services.ErrInvalidInput.Wrap(err)
	}

	if err := b.toolkit.DeleteAccount(ctx, uid); err != nil {
		b.logFailure("delete user failed", err)
		return err
	}
	return nil
}

// ForgotPassword sends a password reset email
func (b *Backend) ForgotPassword(ctx context.Context, email string) error {
	if err := b.toolkit.SendPasswordReset(ctx, email); err != nil {
		b.logFailure("password reset failed", err)
		return err
	}
	return nil
}

// logFailure records the category and provider code of a failed call. The
// request payload is never logged.
func (b *Backend) logFailure(msg string, err error) {
	fields := []zap.Field{
		zap.String("error_type", string(services.GetErrorType(err))),
	}
	if code := ProviderCode(err); code != "" {
		fields = append(fields, zap.String("provider_code", code))
	}

	if services.IsExternalError(err) || services.IsInternalError(err) {
		b.logger.Warn(msg, append(fields, zap.Error(err))...)
		return
	}
	b.logger.Info(msg, fields...)
}

var _ auth.Module = (*Backend)(nil)
