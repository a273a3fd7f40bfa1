package service

import (
	"context"
	"errors"
	"fmt"

	"invoice-financing/internal/core/domain"
	"invoice-financing/internal/core/ports"
	"invoice-financing/pkg/apperror"
	"invoice-financing/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// VerificationServiceImpl implements ports.VerificationService.
// Checks run in a fixed order and stop at the first failure:
// seller identity, buyer identity, then the system-wide duplicate key.
type VerificationServiceImpl struct {
	registry ports.TaxRegistry
	invoices ports.InvoiceRepository
	vault    ports.VaultService
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

func NewVerificationService(
	registry ports.TaxRegistry,
	invoices ports.InvoiceRepository,
	vault ports.VaultService,
	m *metrics.Metrics,
	log zerolog.Logger,
) *VerificationServiceImpl {
	return &VerificationServiceImpl{registry: registry, invoices: invoices, vault: vault, metrics: m, log: log}
}

// Verify runs the rules against draft. exclude skips an invoice already on
// file, which is how an invoice is re-verified without matching itself.
func (s *VerificationServiceImpl) Verify(ctx context.Context, draft *domain.InvoiceDraft, exclude *uuid.UUID) error {
	err := s.verify(ctx, draft, exclude)
	s.metrics.VerificationResult(verificationLabel(err))
	return err
}

func (s *VerificationServiceImpl) verify(ctx context.Context, draft *domain.InvoiceDraft, exclude *uuid.UUID) error {
	found, err := s.lookup(ctx, draft.SellerTaxID)
	if err != nil {
		return err
	}
	if !found {
		return apperror.ErrUnknownSellerIdentity()
	}

	found, err = s.lookup(ctx, draft.BuyerTaxID)
	if err != nil {
		return err
	}
	if !found {
		return apperror.ErrUnknownBuyerIdentity()
	}

	dup, err := s.invoices.ExistsByTaxPair(ctx, s.vault.BlindIndex(draft.SellerTaxID), draft.InvoiceNumber, exclude)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("check duplicate invoice: %w", err))
	}
	if dup {
		return apperror.ErrDuplicateInvoice()
	}
	return nil
}

func (s *VerificationServiceImpl) lookup(ctx context.Context, taxID string) (bool, error) {
	found, err := s.registry.Lookup(ctx, taxID)
	s.metrics.ObserveExternal("registry", err)
	if err != nil {
		s.log.Warn().Err(err).Msg("tax registry lookup failed")
		return false, apperror.ErrExternalDependency(fmt.Errorf("registry lookup: %w", err))
	}
	return found, nil
}

func verificationLabel(err error) string {
	switch {
	case err == nil:
		return "verified"
	case apperror.KindOf(err) == apperror.KindExternal:
		return "unavailable"
	default:
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return appErr.Code
		}
		return "error"
	}
}

var _ ports.VerificationService = (*VerificationServiceImpl)(nil)
