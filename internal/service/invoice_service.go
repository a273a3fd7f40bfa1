package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"invoice-financing/internal/core/domain"
	"invoice-financing/internal/core/ports"
	"invoice-financing/pkg/apperror"
	"invoice-financing/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// InvoiceServiceImpl implements ports.InvoiceService.
type InvoiceServiceImpl struct {
	sellers    ports.SellerRepository
	invoices   ports.InvoiceRepository
	transactor ports.DBTransactor
	vault      ports.VaultService
	verifier   ports.VerificationService
	extractor  ports.InvoiceExtractor
	audit      ports.AuditService
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

func NewInvoiceService(
	sellers ports.SellerRepository,
	invoices ports.InvoiceRepository,
	transactor ports.DBTransactor,
	vault ports.VaultService,
	verifier ports.VerificationService,
	extractor ports.InvoiceExtractor,
	audit ports.AuditService,
	m *metrics.Metrics,
	log zerolog.Logger,
) *InvoiceServiceImpl {
	return &InvoiceServiceImpl{
		sellers:    sellers,
		invoices:   invoices,
		transactor: transactor,
		vault:      vault,
		verifier:   verifier,
		extractor:  extractor,
		audit:      audit,
		metrics:    m,
		log:        log,
	}
}

// Extract proxies the OCR collaborator. Fields it could not read stay nil.
func (s *InvoiceServiceImpl) Extract(ctx context.Context, fileRef string) (*ports.ExtractedInvoice, error) {
	if fileRef == "" {
		return nil, apperror.Validation("file reference is required")
	}
	out, err := s.extractor.Extract(ctx, fileRef)
	s.metrics.ObserveExternal("extractor", err)
	if err != nil {
		return nil, apperror.ErrExternalDependency(fmt.Errorf("extract invoice: %w", err))
	}
	return out, nil
}

// Submit verifies and records a new invoice.
//
// A per-seller duplicate number is rejected before the registry is consulted.
// Unknown seller or buyer identities are stored as a Rejected invoice with the
// reason; a system-wide duplicate is returned without writing anything.
func (s *InvoiceServiceImpl) Submit(ctx context.Context, sellerID uuid.UUID, draft domain.InvoiceDraft) (*domain.Invoice, error) {
	if err := draft.Validate(); err != nil {
		return nil, apperror.Validation(err.Error())
	}

	seller, err := s.sellers.GetByID(ctx, sellerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find seller: %w", err))
	}
	if seller == nil {
		return nil, apperror.ErrNotFound("Seller")
	}
	sellerTaxID, err := s.decrypt(ctx, seller.TaxIDEncrypted, "seller", seller.ID)
	if err != nil {
		return nil, err
	}
	draft.SellerTaxID = sellerTaxID

	exists, err := s.invoices.ExistsBySellerNumber(ctx, sellerID, draft.InvoiceNumber)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check invoice number: %w", err))
	}
	if exists {
		return nil, apperror.ErrDuplicateInvoice()
	}

	verr := s.verifier.Verify(ctx, &draft, nil)
	if err := ctx.Err(); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("submit aborted: %w", err))
	}
	if verr != nil && !persistsAsRejected(verr) {
		return nil, verr
	}

	invoice, err := s.newInvoice(seller, draft)
	if err != nil {
		return nil, err
	}
	if verr != nil {
		if err := invoice.Reject(rejectionReason(verr)); err != nil {
			return nil, apperror.InternalError(err)
		}
	}

	if err := s.create(ctx, invoice); err != nil {
		return nil, err
	}

	action := domain.AuditActionSubmitInvoice
	if verr != nil {
		action = domain.AuditActionRejectInvoice
	}
	s.audit.Log(ctx, &domain.AuditLog{
		ActorID:      &sellerID,
		ActorRole:    string(domain.RoleSeller),
		Action:       action,
		ResourceType: "invoice",
		ResourceID:   invoice.ID.String(),
		Details:      fmt.Sprintf(`{"status":%q}`, invoice.Status),
	})
	s.log.Info().
		Str("invoice_id", invoice.ID.String()).
		Str("seller_id", sellerID.String()).
		Str("status", string(invoice.Status)).
		Msg("invoice submitted")

	if verr != nil {
		return nil, verr
	}
	return invoice, nil
}

// Reverify re-runs the rules on a Verified invoice. A failing invoice becomes
// Rejected; once bids exist the invoice can no longer be rejected.
func (s *InvoiceServiceImpl) Reverify(ctx context.Context, sellerID, invoiceID uuid.UUID) (*domain.Invoice, error) {
	invoice, err := s.ownedInvoice(ctx, sellerID, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != domain.InvoiceStatusVerified {
		return nil, apperror.ErrInvalidState("only a verified invoice without bids can be re-verified")
	}

	seller, err := s.sellers.GetByID(ctx, sellerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find seller: %w", err))
	}
	if seller == nil {
		return nil, apperror.ErrNotFound("Seller")
	}
	sellerTaxID, err := s.decrypt(ctx, seller.TaxIDEncrypted, "seller", seller.ID)
	if err != nil {
		return nil, err
	}
	buyerTaxID, err := s.decrypt(ctx, invoice.BuyerTaxIDEncrypted, "invoice", invoice.ID)
	if err != nil {
		return nil, err
	}

	draft := domain.InvoiceDraft{
		InvoiceNumber: invoice.InvoiceNumber,
		SellerTaxID:   sellerTaxID,
		BuyerTaxID:    buyerTaxID,
	}
	verr := s.verifier.Verify(ctx, &draft, &invoice.ID)
	if verr == nil {
		return invoice, nil
	}
	if !persistsAsRejected(verr) && !errors.Is(verr, apperror.ErrDuplicateInvoice()) {
		return nil, verr
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	locked, err := s.invoices.GetByIDForUpdate(ctx, dbTx, invoiceID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock invoice: %w", err))
	}
	if locked == nil {
		return nil, apperror.ErrNotFound("Invoice")
	}
	if err := locked.Reject(rejectionReason(verr)); err != nil {
		return nil, apperror.ErrInvalidState("invoice already has bids")
	}
	if err := s.invoices.UpdateStatus(ctx, dbTx, locked); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update invoice: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.audit.Log(ctx, &domain.AuditLog{
		ActorID:      &sellerID,
		ActorRole:    string(domain.RoleSeller),
		Action:       domain.AuditActionRejectInvoice,
		ResourceType: "invoice",
		ResourceID:   invoiceID.String(),
		Details:      fmt.Sprintf(`{"reason":%q}`, *locked.RejectionReason),
	})
	return locked, nil
}

// Get returns an invoice to its seller or to any lender.
func (s *InvoiceServiceImpl) Get(ctx context.Context, caller domain.Party, invoiceID uuid.UUID) (*domain.Invoice, error) {
	switch caller.Role {
	case domain.RoleSeller:
		return s.ownedInvoice(ctx, caller.ID, invoiceID)
	case domain.RoleLender:
		return s.findInvoice(ctx, invoiceID)
	default:
		return nil, apperror.ErrForbidden()
	}
}

func (s *InvoiceServiceImpl) ListBySeller(ctx context.Context, sellerID uuid.UUID, page, pageSize int) ([]domain.Invoice, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	items, total, err := s.invoices.List(ctx, ports.InvoiceListParams{SellerID: &sellerID, Page: page, PageSize: pageSize})
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list invoices: %w", err))
	}
	return items, total, nil
}

// ListOpen is the marketplace: invoices still accepting bids.
func (s *InvoiceServiceImpl) ListOpen(ctx context.Context, page, pageSize int) ([]domain.Invoice, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	items, total, err := s.invoices.List(ctx, ports.InvoiceListParams{
		Statuses:  []domain.InvoiceStatus{domain.InvoiceStatusVerified, domain.InvoiceStatusPendingBids},
		Unclaimed: true,
		Page:      page,
		PageSize:  pageSize,
	})
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list open invoices: %w", err))
	}
	return items, total, nil
}

func (s *InvoiceServiceImpl) newInvoice(seller *domain.Seller, draft domain.InvoiceDraft) (*domain.Invoice, error) {
	buyerEnc, err := s.vault.Encrypt(draft.BuyerTaxID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("encrypt buyer tax ID: %w", err))
	}
	now := time.Now().UTC()
	return &domain.Invoice{
		ID:                  uuid.New(),
		SellerID:            seller.ID,
		InvoiceNumber:       draft.InvoiceNumber,
		PONumber:            draft.PONumber,
		SellerTaxIDHash:     seller.TaxIDHash,
		BuyerName:           draft.BuyerName,
		BuyerEmail:          draft.BuyerEmail,
		BuyerTaxIDEncrypted: buyerEnc,
		BuyerTaxIDHash:      s.vault.BlindIndex(draft.BuyerTaxID),
		TotalAmount:         draft.TotalAmount,
		InvoiceDate:         draft.InvoiceDate,
		DueDate:             draft.DueDate,
		ItemsSummary:        draft.ItemsSummary,
		FileRef:             draft.FileRef,
		Status:              domain.InvoiceStatusVerified,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

func (s *InvoiceServiceImpl) create(ctx context.Context, invoice *domain.Invoice) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.invoices.Create(ctx, dbTx, invoice); err != nil {
		if errors.Is(err, ports.ErrDuplicateKey) {
			return apperror.ErrDuplicateInvoice()
		}
		return apperror.InternalError(fmt.Errorf("create invoice: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func (s *InvoiceServiceImpl) findInvoice(ctx context.Context, invoiceID uuid.UUID) (*domain.Invoice, error) {
	invoice, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find invoice: %w", err))
	}
	if invoice == nil {
		return nil, apperror.ErrNotFound("Invoice")
	}
	return invoice, nil
}

func (s *InvoiceServiceImpl) ownedInvoice(ctx context.Context, sellerID, invoiceID uuid.UUID) (*domain.Invoice, error) {
	invoice, err := s.findInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.SellerID != sellerID {
		return nil, apperror.ErrForbidden()
	}
	return invoice, nil
}

func (s *InvoiceServiceImpl) decrypt(ctx context.Context, ciphertext, resource string, id uuid.UUID) (string, error) {
	plain, err := s.vault.Decrypt(ciphertext)
	if err != nil {
		return "", integrityFailure(ctx, s.audit, s.log, resource, id.String(), err)
	}
	return plain, nil
}

// persistsAsRejected reports whether a verification failure is recorded on
// the invoice. Registry outages and duplicates are not.
func persistsAsRejected(err error) bool {
	return errors.Is(err, apperror.ErrUnknownSellerIdentity()) || errors.Is(err, apperror.ErrUnknownBuyerIdentity())
}

func rejectionReason(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Code + ": " + appErr.Message
	}
	return err.Error()
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// integrityFailure audits a ciphertext that failed to open and returns the
// caller-facing IntegrityError.
func integrityFailure(ctx context.Context, audit ports.AuditService, log zerolog.Logger, resource, id string, err error) error {
	log.Error().Err(err).Str("resource", resource).Str("resource_id", id).Msg("stored ciphertext failed integrity check")
	audit.Log(ctx, &domain.AuditLog{
		Action:       domain.AuditActionIntegrityFailure,
		ResourceType: resource,
		ResourceID:   id,
		Details:      `{"reason":"corrupted_ciphertext"}`,
	})
	return apperror.ErrCorruptedCiphertext(err)
}

var _ ports.InvoiceService = (*InvoiceServiceImpl)(nil)
