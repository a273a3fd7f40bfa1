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

// BidServiceImpl implements ports.BidService.
// Row locks are always taken in the order invoice, bids, lender.
type BidServiceImpl struct {
	invoices   ports.InvoiceRepository
	bids       ports.BidRepository
	lenders    ports.LenderRepository
	transactor ports.DBTransactor
	audit      ports.AuditService
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

func NewBidService(
	invoices ports.InvoiceRepository,
	bids ports.BidRepository,
	lenders ports.LenderRepository,
	transactor ports.DBTransactor,
	audit ports.AuditService,
	m *metrics.Metrics,
	log zerolog.Logger,
) *BidServiceImpl {
	return &BidServiceImpl{
		invoices:   invoices,
		bids:       bids,
		lenders:    lenders,
		transactor: transactor,
		audit:      audit,
		metrics:    m,
		log:        log,
	}
}

// PlaceBid records a pending offer. The lender's headroom is checked here but
// only committed when the seller accepts.
func (s *BidServiceImpl) PlaceBid(ctx context.Context, req ports.PlaceBidRequest) (*domain.Bid, error) {
	if !domain.ValidRate(req.InterestRate) {
		return nil, apperror.Validation("interest rate must be greater than 0, at most 100, with at most two decimal places")
	}
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	invoice, err := s.invoices.GetByIDForUpdate(ctx, dbTx, req.InvoiceID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock invoice: %w", err))
	}
	if invoice == nil {
		return nil, apperror.ErrNotFound("Invoice")
	}
	if !invoice.OpenForBids() {
		return nil, apperror.ErrInvalidState("invoice is not accepting bids")
	}
	if req.Amount > invoice.TotalAmount {
		return nil, apperror.ErrInvalidAmount()
	}

	siblings, err := s.bids.ListByInvoiceForUpdate(ctx, dbTx, invoice.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock bids: %w", err))
	}
	for _, b := range siblings {
		// An accepted sibling closes bidding even though the invoice stays PendingBids until funded.
		if b.HoldsInvoice() {
			return nil, apperror.ErrBidNotAvailable()
		}
		if b.LenderID == req.LenderID && b.Status != domain.BidStatusRejected {
			return nil, apperror.ErrBidNotAvailable()
		}
	}

	lender, err := s.lenders.GetByIDForUpdate(ctx, dbTx, req.LenderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock lender: %w", err))
	}
	if lender == nil {
		return nil, apperror.ErrNotFound("Lender")
	}
	if !lender.CanCommit(req.Amount) {
		return nil, apperror.ErrCreditLimitExceeded()
	}

	now := time.Now().UTC()
	bid := &domain.Bid{
		ID:           uuid.New(),
		InvoiceID:    invoice.ID,
		LenderID:     lender.ID,
		InterestRate: req.InterestRate,
		Amount:       req.Amount,
		Status:       domain.BidStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.bids.Create(ctx, dbTx, bid); err != nil {
		if errors.Is(err, ports.ErrDuplicateKey) {
			return nil, apperror.ErrBidNotAvailable()
		}
		return nil, apperror.InternalError(fmt.Errorf("create bid: %w", err))
	}

	if invoice.Status == domain.InvoiceStatusVerified {
		if err := invoice.TransitionTo(domain.InvoiceStatusPendingBids); err != nil {
			return nil, apperror.ErrInvalidState(err.Error())
		}
		if err := s.invoices.UpdateStatus(ctx, dbTx, invoice); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("update invoice: %w", err))
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.metrics.BidPlaced()
	s.audit.Log(ctx, &domain.AuditLog{
		ActorID:      &lender.ID,
		ActorRole:    string(domain.RoleLender),
		Action:       domain.AuditActionPlaceBid,
		ResourceType: "bid",
		ResourceID:   bid.ID.String(),
		Details:      fmt.Sprintf(`{"invoice_id":%q,"amount":%d,"rate":%q}`, invoice.ID, bid.Amount, bid.InterestRate.String()),
	})
	s.log.Info().
		Str("bid_id", bid.ID.String()).
		Str("invoice_id", invoice.ID.String()).
		Int64("amount", bid.Amount).
		Msg("bid placed")

	return bid, nil
}

// ListBids returns an invoice's bids, cheapest rate first. Sellers only see
// bids on their own invoices.
func (s *BidServiceImpl) ListBids(ctx context.Context, caller domain.Party, invoiceID uuid.UUID) ([]domain.Bid, error) {
	invoice, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find invoice: %w", err))
	}
	if invoice == nil {
		return nil, apperror.ErrNotFound("Invoice")
	}
	switch caller.Role {
	case domain.RoleLender:
	case domain.RoleSeller:
		if invoice.SellerID != caller.ID {
			return nil, apperror.ErrForbidden()
		}
	default:
		return nil, apperror.ErrForbidden()
	}
	bids, err := s.bids.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list bids: %w", err))
	}
	return bids, nil
}

// AcceptBid accepts one pending bid, rejects its siblings and commits the
// loan against the lender's credit limit, all in one transaction.
func (s *BidServiceImpl) AcceptBid(ctx context.Context, invoiceID, bidID, sellerID uuid.UUID) (*domain.Bid, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	invoice, err := s.invoices.GetByIDForUpdate(ctx, dbTx, invoiceID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock invoice: %w", err))
	}
	if invoice == nil {
		return nil, apperror.ErrNotFound("Invoice")
	}
	if invoice.SellerID != sellerID {
		return nil, apperror.ErrForbidden()
	}
	if invoice.Status != domain.InvoiceStatusPendingBids {
		return nil, apperror.ErrInvalidState("invoice is not awaiting bid acceptance")
	}

	bids, err := s.bids.ListByInvoiceForUpdate(ctx, dbTx, invoiceID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock bids: %w", err))
	}
	var bid *domain.Bid
	for i := range bids {
		if bids[i].ID == bidID {
			bid = &bids[i]
			continue
		}
		if bids[i].HoldsInvoice() {
			return nil, apperror.ErrBidNotAvailable()
		}
	}
	if bid == nil {
		return nil, apperror.ErrNotFound("Bid")
	}
	if !bid.IsOpen() {
		return nil, apperror.ErrBidNotAvailable()
	}

	lender, err := s.lenders.GetByIDForUpdate(ctx, dbTx, bid.LenderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock lender: %w", err))
	}
	if lender == nil {
		return nil, apperror.ErrNotFound("Lender")
	}
	if err := lender.Commit(bid.Amount); err != nil {
		return nil, apperror.ErrCreditLimitExceeded()
	}
	if err := s.lenders.UpdateBalances(ctx, dbTx, lender.ID, lender.UtilizedLimit, lender.WalletBalance); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update lender: %w", err))
	}

	if err := s.bids.UpdateStatus(ctx, dbTx, bid.ID, domain.BidStatusAccepted); err != nil {
		if errors.Is(err, ports.ErrDuplicateKey) {
			return nil, apperror.ErrBidNotAvailable()
		}
		return nil, apperror.InternalError(fmt.Errorf("accept bid: %w", err))
	}
	rejected, err := s.bids.RejectSiblings(ctx, dbTx, invoiceID, bid.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("reject sibling bids: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	bid.Status = domain.BidStatusAccepted

	s.metrics.BidAccepted()
	s.audit.Log(ctx, &domain.AuditLog{
		ActorID:      &sellerID,
		ActorRole:    string(domain.RoleSeller),
		Action:       domain.AuditActionAcceptBid,
		ResourceType: "bid",
		ResourceID:   bid.ID.String(),
		Details:      fmt.Sprintf(`{"invoice_id":%q,"rejected_siblings":%d}`, invoiceID, rejected),
	})
	s.log.Info().
		Str("bid_id", bid.ID.String()).
		Str("invoice_id", invoiceID.String()).
		Int64("rejected_siblings", rejected).
		Int64("lender_utilized", lender.UtilizedLimit).
		Msg("bid accepted")

	return bid, nil
}

var _ ports.BidService = (*BidServiceImpl)(nil)
