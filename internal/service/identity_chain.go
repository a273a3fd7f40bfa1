package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"invoice-financing/internal/core/ports"

	"github.com/rs/zerolog"
)

// ErrUnverifiedIdentity is the single failure returned when no provider vouches for a token.
var ErrUnverifiedIdentity = errors.New("identity could not be verified")

// VerifierChain tries external identity providers in a fixed order and
// returns the first successful verification.
type VerifierChain struct {
	verifiers []ports.IdentityVerifier
	timeout   time.Duration
	log       zerolog.Logger
}

// NewVerifierChain keeps verifiers in the given order. Each attempt is bounded by timeout.
func NewVerifierChain(timeout time.Duration, log zerolog.Logger, verifiers ...ports.IdentityVerifier) *VerifierChain {
	return &VerifierChain{verifiers: verifiers, timeout: timeout, log: log}
}

// Name implements ports.IdentityVerifier.
func (c *VerifierChain) Name() string { return "chain" }

// Verify returns the identity from the first provider that accepts the token.
func (c *VerifierChain) Verify(ctx context.Context, token string) (*ports.ExternalIdentity, error) {
	if token == "" {
		return nil, ErrUnverifiedIdentity
	}
	for _, v := range c.verifiers {
		if err := ctx.Err(); err != nil {
			return nil, ErrUnverifiedIdentity
		}
		id, err := c.attempt(ctx, v, token)
		if err != nil {
			c.log.Debug().Err(err).Str("provider", v.Name()).Msg("identity provider rejected token")
			continue
		}
		return id, nil
	}
	return nil, ErrUnverifiedIdentity
}

// attempt runs one provider. A panic, an error or an identity without an
// email all count as failure and nothing from the attempt is kept.
func (c *VerifierChain) attempt(ctx context.Context, v ports.IdentityVerifier, token string) (id *ports.ExternalIdentity, err error) {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			id, err = nil, fmt.Errorf("provider %s panicked: %v", v.Name(), r)
		}
	}()

	got, err := v.Verify(callCtx, token)
	if err != nil {
		return nil, err
	}
	if got == nil || got.Email == "" {
		return nil, fmt.Errorf("provider %s returned no email", v.Name())
	}
	if got.Provider == "" {
		got.Provider = v.Name()
	}
	return got, nil
}

var _ ports.IdentityVerifier = (*VerifierChain)(nil)
