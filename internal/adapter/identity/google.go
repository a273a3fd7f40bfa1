// Package identity verifies ID tokens issued by external identity providers.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"invoice-financing/internal/core/ports"

	"google.golang.org/api/idtoken"
	"google.golang.org/api/option"
)

// ErrEmailNotVerified is returned when the provider has not verified the token's email.
var ErrEmailNotVerified = errors.New("email not verified by provider")

// Validator checks a Google-signed ID token for an audience.
type Validator interface {
	Validate(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)
}

var _ ports.IdentityVerifier = (*GoogleVerifier)(nil)

// GoogleVerifier accepts Google ID tokens minted for one OAuth client.
type GoogleVerifier struct {
	validator Validator
	audience  string
}

// NewGoogleVerifier creates a verifier backed by Google's published certificates.
func NewGoogleVerifier(ctx context.Context, audience string, timeout time.Duration) (*GoogleVerifier, error) {
	v, err := idtoken.NewValidator(ctx, option.WithHTTPClient(&http.Client{Timeout: timeout}))
	if err != nil {
		return nil, fmt.Errorf("creating google token validator: %w", err)
	}
	return NewGoogleVerifierWithValidator(v, audience), nil
}

// NewGoogleVerifierWithValidator wraps an existing validator.
func NewGoogleVerifierWithValidator(v Validator, audience string) *GoogleVerifier {
	return &GoogleVerifier{validator: v, audience: audience}
}

func (g *GoogleVerifier) Name() string { return "google" }

// Verify validates signature, expiry and audience, then requires a verified email.
func (g *GoogleVerifier) Verify(ctx context.Context, token string) (*ports.ExternalIdentity, error) {
	payload, err := g.validator.Validate(ctx, token, g.audience)
	if err != nil {
		return nil, fmt.Errorf("google: %w", err)
	}

	email, _ := payload.Claims["email"].(string)
	if email == "" {
		return nil, errors.New("google: token carries no email")
	}
	if verified, ok := payload.Claims["email_verified"].(bool); !ok || !verified {
		return nil, fmt.Errorf("google: %w", ErrEmailNotVerified)
	}

	return &ports.ExternalIdentity{
		Provider: g.Name(),
		Subject:  payload.Subject,
		Email:    email,
	}, nil
}
