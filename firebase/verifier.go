package firebase

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/upb/auth-gateway/services"
	"github.com/upb/auth-gateway/utils"
)

var (
	// errJWKSFetchFailed marks key-set outages so they are not reported as bad tokens
	errJWKSFetchFailed = errors.New("failed to fetch JWKS")

	errKeyNotFound = errors.New("signing key not found in JWKS")
)

const (
	// clockSkew tolerates hosts whose clocks drift from the provider's
	clockSkew = 5 * time.Minute

	// minJWKSRefresh bounds how often an unknown kid may force a refetch
	minJWKSRefresh = time.Minute
)

// JWKS represents the JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// Verifier validates Firebase ID tokens against the project's public keys
type Verifier struct {
	projectID  string
	issuer     string
	jwksURL    string
	httpClient *http.Client
	now        func() time.Time

	// Cache for JWKS
	jwksCache    *JWKS
	jwksCacheExp time.Time
	jwksFetched  time.Time
	jwksCacheTTL time.Duration
	cacheMu      sync.RWMutex

	// Cache for parsed public keys
	keyCache   map[string]*rsa.PublicKey
	keyCacheMu sync.RWMutex
}

// NewVerifier creates a verifier for the project in cfg. A nil client gets
// one with cfg.HTTPTimeout.
func NewVerifier(cfg Config, httpClient *http.Client) *Verifier {
	cfg = cfg.withDefaults()
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	return &Verifier{
		projectID:    cfg.ProjectID,
		issuer:       cfg.issuer(),
		jwksURL:      cfg.JWKSURL,
		httpClient:   httpClient,
		now:          time.Now,
		jwksCacheTTL: cfg.JWKSCacheTTL,
		keyCache:     make(map[string]*rsa.PublicKey),
	}
}

// Verify checks the signature and claims of an ID token. Every rejection is
// services.ErrInvalidToken; an unreachable key set is
// services.ErrProviderUnavailable.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(v.now),
	)

	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("kid header not found")
		}
		return v.getPublicKey(ctx, kid)
	})
	if err != nil {
		if errors.Is(err, errJWKSFetchFailed) {
			return nil, services.ErrProviderUnavailable.Wrap(err)
		}
		return nil, services.ErrInvalidToken.Wrap(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, services.ErrInvalidToken
	}

	if err := utils.ValidateUID(claims.Subject); err != nil {
		return nil, services.ErrInvalidToken.Wrap(fmt.Errorf("sub: %w", err))
	}
	if claims.AuthTime == 0 || time.Unix(claims.AuthTime, 0).After(v.now().Add(clockSkew)) {
		return nil, services.ErrInvalidToken.Wrap(errors.New("auth_time missing or in the future"))
	}

	return claims, nil
}

// FetchJWKS fetches the key set, serving it from cache while fresh
func (v *Verifier) FetchJWKS(ctx context.Context) (*JWKS, error) {
	v.cacheMu.RLock()
	if v.jwksCache != nil && v.now().Before(v.jwksCacheExp) {
		defer v.cacheMu.RUnlock()
		return v.jwksCache, nil
	}
	v.cacheMu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errJWKSFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", errJWKSFetchFailed, resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", errJWKSFetchFailed, err)
	}

	v.cacheMu.Lock()
	v.jwksCache = &jwks
	v.jwksFetched = v.now()
	v.jwksCacheExp = v.jwksFetched.Add(v.jwksCacheTTL)
	v.cacheMu.Unlock()

	return &jwks, nil
}

// getPublicKey retrieves the public key for a given kid
func (v *Verifier) getPublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.keyCacheMu.RLock()
	if key, exists := v.keyCache[kid]; exists {
		v.keyCacheMu.RUnlock()
		return key, nil
	}
	v.keyCacheMu.RUnlock()

	jwks, err := v.FetchJWKS(ctx)
	if err != nil {
		return nil, err
	}

	jwk := jwks.find(kid)
	if jwk == nil && v.staleFor(minJWKSRefresh) {
		// The provider may have rotated keys since the set was cached
		v.InvalidateCache()
		if jwks, err = v.FetchJWKS(ctx); err != nil {
			return nil, err
		}
		jwk = jwks.find(kid)
	}
	if jwk == nil {
		return nil, errKeyNotFound
	}

	publicKey, err := jwkToRSAPublicKey(jwk)
	if err != nil {
		return nil, fmt.Errorf("failed to convert JWK to RSA public key: %w", err)
	}

	v.keyCacheMu.Lock()
	v.keyCache[kid] = publicKey
	v.keyCacheMu.Unlock()

	return publicKey, nil
}

// staleFor reports whether the cached key set is at least age old
func (v *Verifier) staleFor(age time.Duration) bool {
	v.cacheMu.RLock()
	defer v.cacheMu.RUnlock()
	return !v.now().Before(v.jwksFetched.Add(age))
}

func (s *JWKS) find(kid string) *JWK {
	for i := range s.Keys {
		if s.Keys[i].Kid == kid {
			return &s.Keys[i]
		}
	}
	return nil
}

// jwkToRSAPublicKey converts a JWK to an RSA public key
func jwkToRSAPublicKey(jwk *JWK) (*rsa.PublicKey, error) {
	if jwk.Kty != "" && jwk.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type %q", jwk.Kty)
	}

	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var e int
	for _, b := range eBytes {
		e = e*256 + int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}

// InvalidateCache drops the cached key set and parsed keys, forcing a refetch
func (v *Verifier) InvalidateCache() {
	v.cacheMu.Lock()
	defer v.cacheMu.Unlock()
	v.jwksCache = nil
	v.jwksCacheExp = time.Time{}
	v.jwksFetched = time.Time{}

	v.keyCacheMu.Lock()
	defer v.keyCacheMu.Unlock()
	v.keyCache = make(map[string]*rsa.PublicKey)
}
