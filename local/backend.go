// Package local provides an in-process identity provider for development
// and tests. Accounts live in memory and disappear on restart.
package local

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/upb/auth-gateway/auth"
	"github.com/upb/auth-gateway/services"
	"github.com/upb/auth-gateway/utils"
)

// Name identifies this backend in AUTH_SERVICE
const Name = "local"

const (
	// MinPasswordLength matches the hosted provider's rule
	MinPasswordLength = 6

	issuer = "auth-gateway/local"
)

// Config holds settings for the local backend
type Config struct {
	Secret   string
	TokenTTL time.Duration
}

type account struct {
	uid          string
	email        string
	displayName  string
	passwordHash []byte
}

type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Backend implements auth.Module with an in-memory account store
type Backend struct {
	secret   []byte
	tokenTTL time.Duration
	cost     int
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.RWMutex
	byEmail map[string]*account
	byUID   map[string]*account
}

// New creates a local backend. An empty secret is a configuration error.
func New(cfg Config, logger *zap.Logger) (*Backend, error) {
	if len(cfg.Secret) == 0 {
		return nil, services.WrapConfiguration("local backend misconfigured", errors.New("LOCAL_AUTH_SECRET is required"))
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}

	return &Backend{
		secret:   []byte(cfg.Secret),
		tokenTTL: cfg.TokenTTL,
		cost:     bcrypt.DefaultCost,
		logger:   logger.With(zap.String("backend", Name)),
		now:      time.Now,
		byEmail:  make(map[string]*account),
		byUID:    make(map[string]*account),
	}, nil
}

// Name implements auth.Module
func (b *Backend) Name() string {
	return Name
}

// GetCurrentUser verifies a token issued by SignIn. Accounts deleted since
// the token was issued are rejected.
func (b *Backend) GetCurrentUser(ctx context.Context, cred auth.Credential) (*auth.UserRecord, error) {
	tokenString, err := auth.RawToken(cred)
	if err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(b.now),
	)

	var c claims
	if _, err := parser.ParseWithClaims(tokenString, &c, func(*jwt.Token) (interface{}, error) {
		return b.secret, nil
	}); err != nil {
		return nil, services.ErrInvalidToken.Wrap(err)
	}

	b.mu.RLock()
	acct, ok := b.byUID[c.Subject]
	b.mu.RUnlock()
	if !ok {
		return nil, services.ErrInvalidToken.Wrap(errors.New("account no longer exists"))
	}

	return &auth.UserRecord{
		UID:         acct.uid,
		Email:       acct.email,
		DisplayName: acct.displayName,
	}, nil
}

// SignIn checks the password and issues an HS256 token
func (b *Backend) SignIn(ctx context.Context, user auth.UserCreate) (*auth.Token, error) {
	b.mu.RLock()
	acct, ok := b.byEmail[utils.NormalizeEmail(user.Email)]
	b.mu.RUnlock()

	if !ok {
		// Burn comparable time so unknown addresses are not faster to reject.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(user.Password))
		return nil, services.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(user.Password)); err != nil {
		return nil, services.ErrInvalidCredentials
	}

	now := b.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   acct.uid,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(b.tokenTTL)),
		},
		Email: acct.email,
		Name:  acct.displayName,
	})

	signed, err := token.SignedString(b.secret)
	if err != nil {
		return nil, services.WrapInternal("sign token", err)
	}

	return &auth.Token{
		AccessToken: signed,
		TokenType:   auth.TokenTypeBearer,
		ExpiresIn:   int(b.tokenTTL.Seconds()),
	}, nil
}

// SignUp registers a new account. Duplicate addresses and short passwords
// are registration failures.
func (b *Backend) SignUp(ctx context.Context, user auth.UserCreate) error {
	email := utils.NormalizeEmail(user.Email)
	if err := utils.ValidateEmail(email); err != nil {
		return services.ErrRegistrationFailed.Wrap(err).WithDetail("reason", "invalid_email")
	}
	if len(user.Password) < MinPasswordLength {
		return services.ErrRegistrationFailed.
			Wrap(fmt.Errorf("password must be at least %d characters", MinPasswordLength)).
			WithDetail("reason", "weak_password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(user.Password), b.cost)
	if err != nil {
		// bcrypt rejects passwords longer than 72 bytes
		return services.ErrRegistrationFailed.Wrap(err).WithDetail("reason", "weak_password")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.byEmail[email]; exists {
		b.logger.Info("sign up failed", zap.String("reason", "email_exists"))
		return services.ErrRegistrationFailed.Wrap(errors.New("email already registered")).WithDetail("reason", "email_exists")
	}

	acct := &account{
		uid:          uuid.NewString(),
		email:        email,
		displayName:  user.DisplayName,
		passwordHash: hash,
	}
	b.byEmail[email] = acct
	b.byUID[acct.uid] = acct

	return nil
}

// DeleteUser removes the account with the given uid
func (b *Backend) DeleteUser(ctx context.Context, uid string) error {
	if err := utils.ValidateUID(uid); err != nil {
		return services.ErrInvalidInput.Wrap(err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	acct, ok := b.byUID[uid]
	if !ok {
		return services.ErrUserNotFound
	}
	delete(b.byUID, uid)
	delete(b.byEmail, acct.email)
	return nil
}

// ForgotPassword has no mail transport; it only logs that a reset was asked for.
func (b *Backend) ForgotPassword(ctx context.Context, email string) error {
	if err := utils.ValidateEmail(utils.NormalizeEmail(email)); err != nil {
		return services.ErrInvalidInput.Wrap(err)
	}

	b.logger.Debug("password reset requested")
	return nil
}

// dummyHash is compared against when the account does not exist
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("local-backend-dummy-password"), bcrypt.DefaultCost)

var _ auth.Module = (*Backend)(nil)
