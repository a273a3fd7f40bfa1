package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"invoice-financing/internal/core/domain"
	"invoice-financing/internal/core/ports"
	"invoice-financing/pkg/apperror"
	"invoice-financing/pkg/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	webhookEventCredited = "virtual_account.credited"

	guardClaimTTL = 5 * time.Minute
	guardDoneTTL  = 24 * time.Hour
)

// SettlementConfig holds the fee schedule and gateway call settings.
type SettlementConfig struct {
	Currency       string
	PlatformFlat   int64 // minor units
	PlatformBPS    int64
	GatewayTimeout time.Duration
}

// SettlementServiceImpl implements ports.SettlementService.
//
// Funding is confirmed either by the checkout callback (VerifyFundingPayment)
// or by the gateway's virtual account webhook. Both take the invoice, bid and
// seller row locks in that order and re-check the bid status under the lock,
// so whichever arrives second is a no-op.
type SettlementServiceImpl struct {
	bids       ports.BidRepository
	invoices   ports.InvoiceRepository
	sellers    ports.SellerRepository
	txns       ports.TransactionRepository
	transactor ports.DBTransactor
	gateway    ports.PaymentGateway
	signer     ports.PaymentSigner
	guard      ports.NotificationGuard
	audit      ports.AuditService
	metrics    *metrics.Metrics
	cfg        SettlementConfig
	log        zerolog.Logger
}

// NewSettlementService creates a SettlementServiceImpl. guard may be nil, in
// which case duplicate notifications are caught by the database alone.
func NewSettlementService(
	bids ports.BidRepository,
	invoices ports.InvoiceRepository,
	sellers ports.SellerRepository,
	txns ports.TransactionRepository,
	transactor ports.DBTransactor,
	gateway ports.PaymentGateway,
	signer ports.PaymentSigner,
	guard ports.NotificationGuard,
	audit ports.AuditService,
	m *metrics.Metrics,
	cfg SettlementConfig,
	log zerolog.Logger,
) *SettlementServiceImpl {
	return &SettlementServiceImpl{
		bids:       bids,
		invoices:   invoices,
		sellers:    sellers,
		txns:       txns,
		transactor: transactor,
		gateway:    gateway,
		signer:     signer,
		guard:      guard,
		audit:      audit,
		metrics:    m,
		cfg:        cfg,
		log:        log,
	}
}

// PlatformFee is flat + gross*bps/10000, rounded half-up to the minor unit and
// never more than gross.
func PlatformFee(gross, flat, bps int64) int64 {
	fee := decimal.NewFromInt(gross).
		Mul(decimal.NewFromInt(bps)).
		Div(decimal.NewFromInt(10000)).
		Round(0).
		Add(decimal.NewFromInt(flat)).
		IntPart()
	if fee > gross {
		return gross
	}
	if fee < 0 {
		return 0
	}
	return fee
}

// CreateFundingOrder opens a gateway order and virtual account for an
// accepted bid. No balance moves here. Repeat calls return the order
// already on file so the account the lender was first given stays payable.
func (s *SettlementServiceImpl) CreateFundingOrder(ctx context.Context, lenderID, bidID uuid.UUID) (*ports.FundingOrder, error) {
	bid, err := s.bids.GetByID(ctx, bidID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find bid: %w", err))
	}
	if bid == nil {
		return nil, apperror.ErrNotFound("Bid")
	}
	if bid.LenderID != lenderID {
		return nil, apperror.ErrForbidden()
	}
	if bid.Status != domain.BidStatusAccepted {
		return nil, apperror.ErrInvalidState("only an accepted bid can be funded")
	}
	if existing := s.storedOrder(bid); existing != nil {
		return existing, nil
	}

	order, va, err := s.openOrder(ctx, bid)
	if err != nil {
		return nil, err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	locked, err := s.bids.GetByIDForUpdate(ctx, dbTx, bidID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock bid: %w", err))
	}
	if locked == nil || locked.Status != domain.BidStatusAccepted {
		return nil, apperror.ErrInvalidState("bid changed while the order was being created")
	}
	// A concurrent call got there first; its account is the one to keep.
	if existing := s.storedOrder(locked); existing != nil {
		s.log.Warn().
			Str("bid_id", bidID.String()).
			Str("discarded_order_id", order.OrderID).
			Msg("funding order already stored, discarding duplicate")
		return existing, nil
	}
	if err := s.bids.SetFundingOrder(ctx, dbTx, bidID, order.OrderID, va.ID); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("store funding order: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.audit.Log(ctx, &domain.AuditLog{
		ActorID:      &lenderID,
		ActorRole:    string(domain.RoleLender),
		Action:       domain.AuditActionFundingOrder,
		ResourceType: "bid",
		ResourceID:   bidID.String(),
		Details:      fmt.Sprintf(`{"order_id":%q,"virtual_account_id":%q}`, order.OrderID, va.ID),
	})
	s.log.Info().
		Str("bid_id", bidID.String()).
		Str("order_id", order.OrderID).
		Str("virtual_account_id", va.ID).
		Msg("funding order created")

	return &ports.FundingOrder{
		BidID:            bidID,
		OrderID:          order.OrderID,
		Amount:           bid.Amount,
		Currency:         s.cfg.Currency,
		VirtualAccountID: va.ID,
	}, nil
}

// storedOrder returns the funding order already recorded on bid, or nil.
func (s *SettlementServiceImpl) storedOrder(bid *domain.Bid) *ports.FundingOrder {
	if bid.GatewayOrderID == nil || bid.VirtualAccountID == nil {
		return nil
	}
	return &ports.FundingOrder{
		BidID:            bid.ID,
		OrderID:          *bid.GatewayOrderID,
		Amount:           bid.Amount,
		Currency:         s.cfg.Currency,
		VirtualAccountID: *bid.VirtualAccountID,
	}
}

func (s *SettlementServiceImpl) openOrder(ctx context.Context, bid *domain.Bid) (*ports.GatewayOrder, *ports.VirtualAccount, error) {
	callCtx, cancel := s.gatewayContext(ctx)
	defer cancel()

	order, err := s.gateway.CreateOrder(callCtx, ports.OrderRequest{
		Amount:   bid.Amount,
		Currency: s.cfg.Currency,
		Receipt:  bid.ID.String(),
	})
	s.metrics.ObserveExternal("gateway_order", err)
	if err != nil {
		s.log.Warn().Err(err).Str("bid_id", bid.ID.String()).Msg("gateway order creation failed")
		return nil, nil, apperror.ErrExternalDependency(fmt.Errorf("create order: %w", err))
	}

	va, err := s.gateway.CreateVirtualAccount(callCtx, ports.VirtualAccountRequest{
		Receipt:     bid.ID.String(),
		Description: "Invoice " + bid.InvoiceID.String(),
		Amount:      bid.Amount,
	})
	s.metrics.ObserveExternal("gateway_virtual_account", err)
	if err != nil {
		s.log.Warn().Err(err).Str("bid_id", bid.ID.String()).Msg("gateway virtual account creation failed")
		return nil, nil, apperror.ErrExternalDependency(fmt.Errorf("create virtual account: %w", err))
	}
	return order, va, nil
}

// VerifyFundingPayment settles a bid from a signed checkout confirmation. The
// seller is credited the full loan amount. A bid that is already financed
// returns its existing funding entry.
func (s *SettlementServiceImpl) VerifyFundingPayment(ctx context.Context, req ports.VerifyPaymentRequest) (*domain.Transaction, error) {
	if !s.signer.VerifyPayment(req.OrderID, req.PaymentID, req.Signature) {
		s.integrityEvent(ctx, &req.LenderID, "bid", req.BidID.String(), "invalid_payment_signature")
		return nil, apperror.ErrInvalidSignature()
	}

	bid, err := s.bids.GetByID(ctx, req.BidID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find bid: %w", err))
	}
	if bid == nil {
		return nil, apperror.ErrNotFound("Bid")
	}
	if bid.LenderID != req.LenderID {
		return nil, apperror.ErrForbidden()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	invoice, err := s.invoices.GetByIDForUpdate(ctx, dbTx, bid.InvoiceID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock invoice: %w", err))
	}
	bid, err = s.bids.GetByIDForUpdate(ctx, dbTx, req.BidID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock bid: %w", err))
	}
	if invoice == nil || bid == nil {
		return nil, apperror.ErrNotFound("Bid")
	}
	if bid.GatewayOrderID == nil || *bid.GatewayOrderID != req.OrderID {
		s.integrityEvent(ctx, &req.LenderID, "bid", bid.ID.String(), "order_mismatch")
		return nil, apperror.ErrOrderMismatch()
	}

	if bid.Status == domain.BidStatusFinanced {
		existing, err := s.txns.GetFundingByBid(ctx, bid.ID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("find funding: %w", err))
		}
		if existing == nil {
			return nil, apperror.InternalError(fmt.Errorf("financed bid %s has no funding entry", bid.ID))
		}
		return existing, nil
	}
	if bid.Status != domain.BidStatusAccepted {
		return nil, apperror.ErrInvalidState("bid is not awaiting funding")
	}

	paymentID := req.PaymentID
	txn, err := s.settle(ctx, dbTx, invoice, bid, settlement{
		gross:     bid.Amount,
		paymentID: &paymentID,
		source:    "checkout",
	})
	if err != nil {
		if errors.Is(err, ports.ErrDuplicateKey) {
			return nil, apperror.InternalError(err)
		}
		return nil, err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.settled(ctx, "verify", bid, txn)
	return txn, nil
}

// HandleWebhook applies a virtual account credit notification. It never
// returns an error: every delivery is acknowledged and the outcome is logged,
// audited and counted.
func (s *SettlementServiceImpl) HandleWebhook(ctx context.Context, n ports.WebhookNotification) ports.WebhookOutcome {
	outcome := s.handleWebhook(ctx, n)
	s.metrics.Webhook(string(outcome))
	return outcome
}

type webhookBody struct {
	Event   string `json:"event"`
	Payload struct {
		VirtualAccount struct {
			ID string `json:"id"`
		} `json:"virtual_account"`
		Payment struct {
			ID            string `json:"id"`
			Amount        int64  `json:"amount"`
			BankReference string `json:"bank_reference"`
		} `json:"payment"`
	} `json:"payload"`
}

func (s *SettlementServiceImpl) handleWebhook(ctx context.Context, n ports.WebhookNotification) ports.WebhookOutcome {
	log := s.log.With().Str("notification_id", n.NotificationID).Logger()

	var body webhookBody
	if err := json.Unmarshal(n.Body, &body); err != nil {
		log.Warn().Err(err).Msg("malformed webhook body")
		s.webhookAudit(ctx, n.NotificationID, ports.WebhookRejected, map[string]string{"reason": "malformed_body"})
		return ports.WebhookRejected
	}
	if body.Event != webhookEventCredited {
		log.Info().Str("event", body.Event).Msg("ignoring webhook event")
		return ports.WebhookIgnored
	}

	id := n.NotificationID
	if id == "" {
		id = body.Payload.Payment.BankReference
	}
	log = log.With().Str("notification_id", id).Logger()
	if id == "" {
		log.Warn().Msg("webhook has no notification id")
		s.webhookAudit(ctx, "", ports.WebhookRejected, map[string]string{"reason": "missing_notification_id"})
		return ports.WebhookRejected
	}

	if !s.signer.VerifyWebhook(n.Body, n.Signature) {
		log.Warn().Msg("webhook signature mismatch")
		s.integrityEvent(ctx, nil, "webhook", id, "invalid_webhook_signature")
		return ports.WebhookRejected
	}

	if s.guard != nil {
		acquired, err := s.guard.Acquire(ctx, id, guardClaimTTL)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("notification guard unavailable, falling through to DB")
		case !acquired:
			log.Info().Msg("notification already claimed")
			return ports.WebhookDuplicate
		}
	}

	outcome, err := s.settleWebhook(ctx, id, body)
	if err != nil {
		log.Error().Err(err).Msg("webhook processing failed")
		s.releaseGuard(ctx, id)
		s.webhookAudit(ctx, id, ports.WebhookFailed, map[string]string{"error": err.Error()})
		return ports.WebhookFailed
	}

	switch outcome {
	case ports.WebhookUnknownAccount:
		// The virtual account may not be stored yet; let a retry try again.
		s.releaseGuard(ctx, id)
		log.Warn().Str("virtual_account_id", body.Payload.VirtualAccount.ID).Msg("webhook for unknown virtual account")
		s.webhookAudit(ctx, id, outcome, map[string]string{"virtual_account_id": body.Payload.VirtualAccount.ID})
	default:
		if s.guard != nil {
			if err := s.guard.MarkDone(ctx, id, guardDoneTTL); err != nil {
				log.Warn().Err(err).Msg("failed to mark notification done")
			}
		}
		log.Info().Str("outcome", string(outcome)).Msg("webhook processed")
		s.webhookAudit(ctx, id, outcome, nil)
	}
	return outcome
}

func (s *SettlementServiceImpl) settleWebhook(ctx context.Context, notificationID string, body webhookBody) (ports.WebhookOutcome, error) {
	seen, err := s.txns.GetByNotificationID(ctx, notificationID)
	if err != nil {
		return "", fmt.Errorf("check notification: %w", err)
	}
	if seen != nil {
		return ports.WebhookDuplicate, nil
	}

	gross := body.Payload.Payment.Amount
	if gross <= 0 {
		return "", fmt.Errorf("non-positive credit amount %d", gross)
	}

	bid, err := s.bids.GetByVirtualAccount(ctx, body.Payload.VirtualAccount.ID)
	if err != nil {
		return "", fmt.Errorf("find bid by virtual account: %w", err)
	}
	if bid == nil {
		return ports.WebhookUnknownAccount, nil
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	invoice, err := s.invoices.GetByIDForUpdate(ctx, dbTx, bid.InvoiceID)
	if err != nil {
		return "", fmt.Errorf("lock invoice: %w", err)
	}
	bid, err = s.bids.GetByVirtualAccountForUpdate(ctx, dbTx, body.Payload.VirtualAccount.ID)
	if err != nil {
		return "", fmt.Errorf("lock bid: %w", err)
	}
	if invoice == nil || bid == nil {
		return ports.WebhookUnknownAccount, nil
	}

	exists, err := s.txns.ExistsByNotificationID(ctx, dbTx, notificationID)
	if err != nil {
		return "", fmt.Errorf("recheck notification: %w", err)
	}
	if exists {
		return ports.WebhookDuplicate, nil
	}
	if bid.Status == domain.BidStatusFinanced {
		return ports.WebhookAlreadySettled, nil
	}
	if bid.Status != domain.BidStatusAccepted {
		return "", fmt.Errorf("bid %s is %s", bid.ID, bid.Status)
	}
	if gross != bid.Amount {
		s.log.Warn().
			Str("bid_id", bid.ID.String()).
			Int64("credited", gross).
			Int64("bid_amount", bid.Amount).
			Msg("credited amount differs from bid amount")
	}

	var paymentID *string
	if body.Payload.Payment.ID != "" {
		paymentID = &body.Payload.Payment.ID
	}
	txn, err := s.settle(ctx, dbTx, invoice, bid, settlement{
		gross:          gross,
		fee:            PlatformFee(gross, s.cfg.PlatformFlat, s.cfg.PlatformBPS),
		paymentID:      paymentID,
		notificationID: &notificationID,
		source:         "webhook",
	})
	if err != nil {
		if errors.Is(err, ports.ErrDuplicateKey) {
			return ports.WebhookDuplicate, nil
		}
		return "", err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit tx: %w", err)
	}

	s.settled(ctx, "webhook", bid, txn)
	return ports.WebhookSettled, nil
}

type settlement struct {
	gross          int64
	fee            int64
	paymentID      *string
	notificationID *string
	source         string
}

// settle applies a confirmed funding inside dbTx. invoice and bid must already
// be locked; the seller row is locked here.
func (s *SettlementServiceImpl) settle(ctx context.Context, dbTx pgx.Tx, invoice *domain.Invoice, bid *domain.Bid, in settlement) (*domain.Transaction, error) {
	seller, err := s.sellers.GetByIDForUpdate(ctx, dbTx, invoice.SellerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock seller: %w", err))
	}
	if seller == nil {
		return nil, apperror.ErrNotFound("Seller")
	}

	net := in.gross - in.fee
	if err := s.sellers.UpdateWalletBalance(ctx, dbTx, seller.ID, seller.WalletBalance+net); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("credit seller: %w", err))
	}

	if err := s.bids.UpdateStatus(ctx, dbTx, bid.ID, domain.BidStatusFinanced); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("finance bid: %w", err))
	}
	bid.Status = domain.BidStatusFinanced

	if err := invoice.TransitionTo(domain.InvoiceStatusFinanced); err != nil {
		return nil, apperror.ErrInvalidState(err.Error())
	}
	invoice.LenderID = &bid.LenderID
	if err := s.invoices.UpdateStatus(ctx, dbTx, invoice); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("finance invoice: %w", err))
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:                    uuid.New(),
		ReferenceID:           domain.NewReferenceID(),
		InvoiceID:             &invoice.ID,
		BidID:                 &bid.ID,
		LenderID:              &bid.LenderID,
		SellerID:              &seller.ID,
		Amount:                in.gross,
		Fee:                   in.fee,
		Currency:              s.cfg.Currency,
		TransactionType:       domain.TransactionTypeFundingInflow,
		Status:                domain.TransactionStatusSuccess,
		GatewayPaymentID:      in.paymentID,
		GatewayNotificationID: in.notificationID,
		Description:           "Funding via " + in.source,
		CreatedAt:             now,
		ProcessedAt:           &now,
	}
	if err := s.txns.Create(ctx, dbTx, txn); err != nil {
		if errors.Is(err, ports.ErrDuplicateKey) {
			return nil, err
		}
		return nil, apperror.InternalError(fmt.Errorf("record funding: %w", err))
	}
	return txn, nil
}

func (s *SettlementServiceImpl) settled(ctx context.Context, path string, bid *domain.Bid, txn *domain.Transaction) {
	s.metrics.Settlement(path)
	s.audit.Log(ctx, &domain.AuditLog{
		ActorID:      &bid.LenderID,
		ActorRole:    string(domain.RoleLender),
		Action:       domain.AuditActionSettlement,
		ResourceType: "bid",
		ResourceID:   bid.ID.String(),
		Details:      fmt.Sprintf(`{"reference_id":%q,"amount":%d,"fee":%d,"path":%q}`, txn.ReferenceID, txn.Amount, txn.Fee, path),
	})
	s.log.Info().
		Str("bid_id", bid.ID.String()).
		Str("reference_id", txn.ReferenceID).
		Int64("amount", txn.Amount).
		Int64("fee", txn.Fee).
		Str("path", path).
		Msg("funding settled")
}

func (s *SettlementServiceImpl) integrityEvent(ctx context.Context, actor *uuid.UUID, resource, id, reason string) {
	s.log.Warn().Str("resource", resource).Str("resource_id", id).Str("reason", reason).Msg("integrity check failed")
	entry := &domain.AuditLog{
		ActorID:      actor,
		Action:       domain.AuditActionIntegrityFailure,
		ResourceType: resource,
		ResourceID:   id,
		Details:      fmt.Sprintf(`{"reason":%q}`, reason),
	}
	if actor != nil {
		entry.ActorRole = string(domain.RoleLender)
	}
	s.audit.Log(ctx, entry)
}

func (s *SettlementServiceImpl) webhookAudit(ctx context.Context, id string, outcome ports.WebhookOutcome, extra map[string]string) {
	details := map[string]string{"outcome": string(outcome)}
	for k, v := range extra {
		details[k] = v
	}
	raw, _ := json.Marshal(details)
	s.audit.Log(ctx, &domain.AuditLog{
		ActorRole:    "gateway",
		Action:       domain.AuditActionWebhook,
		ResourceType: "webhook",
		ResourceID:   id,
		Details:      string(raw),
	})
}

func (s *SettlementServiceImpl) releaseGuard(ctx context.Context, id string) {
	if s.guard == nil {
		return
	}
	if err := s.guard.Release(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("notification_id", id).Msg("failed to release notification guard")
	}
}

func (s *SettlementServiceImpl) gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.GatewayTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.GatewayTimeout)
}

var _ ports.SettlementService = (*SettlementServiceImpl)(nil)
