package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"invoice-financing/config"
	"invoice-financing/internal/adapter/httpclient"
	"invoice-financing/internal/core/ports"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
)

// minRefetch bounds how often an unknown kid can trigger a JWKS fetch.
const minRefetch = 30 * time.Second

var (
	ErrUnknownKey     = errors.New("no signing key matches token")
	ErrUnsupportedAlg = errors.New("unsupported signing algorithm")
)

var allowedAlgorithms = map[string]bool{string(jose.RS256): true, string(jose.ES256): true}

var _ ports.IdentityVerifier = (*OIDCVerifier)(nil)

type oidcClaims struct {
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
}

// OIDCVerifier checks tokens from a generic OpenID Connect issuer against its JWKS.
type OIDCVerifier struct {
	issuer   string
	audience string
	jwks     *httpclient.Client
	cacheTTL time.Duration
	now      func() time.Time

	mu        sync.Mutex
	keys      jose.JSONWebKeySet
	fetchedAt time.Time
}

// NewOIDCVerifier creates a verifier for cfg.Issuer. Keys are fetched lazily and cached for cfg.CacheTTL.
func NewOIDCVerifier(cfg config.OIDCConfig, timeout time.Duration, opts ...httpclient.Option) *OIDCVerifier {
	return &OIDCVerifier{
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		jwks:     httpclient.New(cfg.JWKSURL, timeout, opts...),
		cacheTTL: cfg.CacheTTL,
		now:      time.Now,
	}
}

func (o *OIDCVerifier) Name() string { return "oidc" }

// Verify checks signature, issuer, audience and expiry. A token whose email is
// explicitly unverified is refused.
func (o *OIDCVerifier) Verify(ctx context.Context, token string) (*ports.ExternalIdentity, error) {
	parsed, err := jwt.ParseSigned(token)
	if err != nil {
		return nil, fmt.Errorf("oidc: parse: %w", err)
	}
	if len(parsed.Headers) != 1 {
		return nil, errors.New("oidc: expected exactly one signature")
	}
	header := parsed.Headers[0]
	if !allowedAlgorithms[header.Algorithm] {
		return nil, fmt.Errorf("oidc: %w: %s", ErrUnsupportedAlg, header.Algorithm)
	}

	key, err := o.key(ctx, header.KeyID)
	if err != nil {
		return nil, err
	}

	var std jwt.Claims
	var extra oidcClaims
	if err := parsed.Claims(key, &std, &extra); err != nil {
		return nil, fmt.Errorf("oidc: signature: %w", err)
	}

	expected := jwt.Expected{Issuer: o.issuer, Time: o.now()}
	if o.audience != "" {
		expected.Audience = jwt.Audience{o.audience}
	}
	if err := std.Validate(expected); err != nil {
		return nil, fmt.Errorf("oidc: claims: %w", err)
	}
	if extra.Email == "" {
		return nil, errors.New("oidc: token carries no email")
	}
	if extra.EmailVerified != nil && !*extra.EmailVerified {
		return nil, fmt.Errorf("oidc: %w", ErrEmailNotVerified)
	}

	return &ports.ExternalIdentity{Provider: o.Name(), Subject: std.Subject, Email: extra.Email}, nil
}

// key returns the JWK for kid, refetching the set once when the cache is stale
// or the kid is unknown (key rotation).
func (o *OIDCVerifier) key(ctx context.Context, kid string) (jose.JSONWebKey, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	age := o.now().Sub(o.fetchedAt)
	if !o.fetchedAt.IsZero() && age < o.cacheTTL {
		if k, ok := lookupKey(o.keys, kid); ok {
			return k, nil
		}
		if age < minRefetch {
			return jose.JSONWebKey{}, fmt.Errorf("oidc: %w: kid %q", ErrUnknownKey, kid)
		}
	}

	if err := o.refresh(ctx); err != nil {
		return jose.JSONWebKey{}, err
	}
	if k, ok := lookupKey(o.keys, kid); ok {
		return k, nil
	}
	return jose.JSONWebKey{}, fmt.Errorf("oidc: %w: kid %q", ErrUnknownKey, kid)
}

func (o *OIDCVerifier) refresh(ctx context.Context) error {
	var set jose.JSONWebKeySet
	if err := o.jwks.Do(ctx, http.MethodGet, "", nil, &set); err != nil {
		return fmt.Errorf("oidc: fetching jwks: %w", err)
	}
	o.keys = set
	o.fetchedAt = o.now()
	return nil
}

func lookupKey(set jose.JSONWebKeySet, kid string) (jose.JSONWebKey, bool) {
	if kid == "" {
		if len(set.Keys) == 1 {
			return set.Keys[0], true
		}
		return jose.JSONWebKey{}, false
	}
	keys := set.Key(kid)
	if len(keys) == 0 {
		return jose.JSONWebKey{}, false
	}
	return keys[0], true
}
