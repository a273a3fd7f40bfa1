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
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// LedgerConfig holds settings for wallet movements.
type LedgerConfig struct {
	Currency       string
	GatewayTimeout time.Duration
}

// LedgerServiceImpl implements ports.LedgerService.
type LedgerServiceImpl struct {
	sellers    ports.SellerRepository
	lenders    ports.LenderRepository
	invoices   ports.InvoiceRepository
	bids       ports.BidRepository
	txns       ports.TransactionRepository
	transactor ports.DBTransactor
	gateway    ports.PaymentGateway
	vault      ports.VaultService
	audit      ports.AuditService
	metrics    *metrics.Metrics
	cfg        LedgerConfig
	log        zerolog.Logger
}

func NewLedgerService(
	sellers ports.SellerRepository,
	lenders ports.LenderRepository,
	invoices ports.InvoiceRepository,
	bids ports.BidRepository,
	txns ports.TransactionRepository,
	transactor ports.DBTransactor,
	gateway ports.PaymentGateway,
	vault ports.VaultService,
	audit ports.AuditService,
	m *metrics.Metrics,
	cfg LedgerConfig,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		sellers:    sellers,
		lenders:    lenders,
		invoices:   invoices,
		bids:       bids,
		txns:       txns,
		transactor: transactor,
		gateway:    gateway,
		vault:      vault,
		audit:      audit,
		metrics:    m,
		cfg:        cfg,
		log:        log,
	}
}

// GetWallet returns the caller's balance and ledger totals. Lenders also see
// their credit limits.
func (s *LedgerServiceImpl) GetWallet(ctx context.Context, party domain.Party) (*ports.WalletSummary, error) {
	summary := &ports.WalletSummary{Party: party, Currency: s.cfg.Currency}

	switch party.Role {
	case domain.RoleSeller:
		seller, err := s.sellers.GetByID(ctx, party.ID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("find seller: %w", err))
		}
		if seller == nil {
			return nil, apperror.ErrNotFound("Seller")
		}
		summary.Balance = seller.WalletBalance
	case domain.RoleLender:
		lender, err := s.lenders.GetByID(ctx, party.ID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("find lender: %w", err))
		}
		if lender == nil {
			return nil, apperror.ErrNotFound("Lender")
		}
		summary.Balance = lender.WalletBalance
		summary.TotalCreditLimit = &lender.TotalCreditLimit
		summary.UtilizedLimit = &lender.UtilizedLimit
	default:
		return nil, apperror.ErrForbidden()
	}

	stats, err := s.txns.GetStats(ctx, party)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("ledger stats: %w", err))
	}
	summary.Stats = stats
	return summary, nil
}

// ListTransactions returns a page of the party's ledger, newest first.
func (s *LedgerServiceImpl) ListTransactions(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	if !params.Party.Role.Valid() {
		return nil, 0, apperror.ErrForbidden()
	}
	params.Page, params.PageSize = normalizePage(params.Page, params.PageSize)

	items, total, err := s.txns.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list transactions: %w", err))
	}
	return items, total, nil
}

// Repay moves money from the seller's wallet against a financed invoice. The
// repayment that clears the outstanding amount settles the lender, releases
// the credit line and marks the invoice Paid.
func (s *LedgerServiceImpl) Repay(ctx context.Context, sellerID, invoiceID uuid.UUID, amount int64) (*ports.RepaymentResult, error) {
	if amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}

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
	if invoice.Status != domain.InvoiceStatusFinanced {
		return nil, apperror.ErrInvalidState("only a financed invoice can be repaid")
	}

	bids, err := s.bids.ListByInvoiceForUpdate(ctx, dbTx, invoiceID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock bids: %w", err))
	}
	var bid *domain.Bid
	for i := range bids {
		if bids[i].Status == domain.BidStatusFinanced {
			bid = &bids[i]
			break
		}
	}
	if bid == nil {
		return nil, apperror.InternalError(fmt.Errorf("financed invoice %s has no financed bid", invoiceID))
	}

	lender, err := s.lenders.GetByIDForUpdate(ctx, dbTx, bid.LenderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock lender: %w", err))
	}
	seller, err := s.sellers.GetByIDForUpdate(ctx, dbTx, sellerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock seller: %w", err))
	}
	if lender == nil || seller == nil {
		return nil, apperror.ErrNotFound("Account")
	}

	due := bid.RepaymentDue()
	paid, err := s.txns.SumByInvoice(ctx, dbTx, invoiceID, domain.TransactionTypeRepaymentIn)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("sum repayments: %w", err))
	}
	outstanding := due - paid
	if amount > outstanding {
		return nil, apperror.Validation(fmt.Sprintf("amount exceeds outstanding balance of %d", outstanding))
	}
	if seller.WalletBalance < amount {
		return nil, apperror.ErrInsufficientFunds()
	}

	if err := s.sellers.UpdateWalletBalance(ctx, dbTx, seller.ID, seller.WalletBalance-amount); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("debit seller: %w", err))
	}
	now := time.Now().UTC()
	repayment := s.entry(domain.TransactionTypeRepaymentIn, domain.TransactionStatusSuccess, amount, now)
	repayment.InvoiceID, repayment.BidID = &invoice.ID, &bid.ID
	repayment.SellerID, repayment.LenderID = &seller.ID, &lender.ID
	repayment.Description = "Repayment for invoice " + invoice.InvoiceNumber
	if err := s.txns.Create(ctx, dbTx, repayment); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("record repayment: %w", err))
	}

	result := &ports.RepaymentResult{Repayment: repayment, Outstanding: outstanding - amount, Invoice: invoice}
	if result.Outstanding == 0 {
		lender.Release(bid.Amount)
		if err := s.lenders.UpdateBalances(ctx, dbTx, lender.ID, lender.UtilizedLimit, lender.WalletBalance+due); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("settle lender: %w", err))
		}
		settlement := s.entry(domain.TransactionTypeSettlementOut, domain.TransactionStatusSuccess, due, now)
		settlement.InvoiceID, settlement.BidID = &invoice.ID, &bid.ID
		settlement.SellerID, settlement.LenderID = &seller.ID, &lender.ID
		settlement.Description = "Settlement for invoice " + invoice.InvoiceNumber
		if err := s.txns.Create(ctx, dbTx, settlement); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("record settlement: %w", err))
		}
		if err := invoice.TransitionTo(domain.InvoiceStatusPaid); err != nil {
			return nil, apperror.ErrInvalidState(err.Error())
		}
		if err := s.invoices.UpdateStatus(ctx, dbTx, invoice); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("close invoice: %w", err))
		}
		result.Settlement = settlement
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.audit.Log(ctx, &domain.AuditLog{
		ActorID:      &sellerID,
		ActorRole:    string(domain.RoleSeller),
		Action:       domain.AuditActionRepayment,
		ResourceType: "invoice",
		ResourceID:   invoiceID.String(),
		Details:      fmt.Sprintf(`{"amount":%d,"outstanding":%d}`, amount, result.Outstanding),
	})
	s.log.Info().
		Str("invoice_id", invoiceID.String()).
		Int64("amount", amount).
		Int64("outstanding", result.Outstanding).
		Bool("settled", result.Settlement != nil).
		Msg("repayment recorded")

	return result, nil
}

// Withdraw pays out wallet funds to the party's bank account. The debit is
// reserved as a pending entry before the gateway is called and reversed if
// the payout fails.
func (s *LedgerServiceImpl) Withdraw(ctx context.Context, party domain.Party, amount int64) (*domain.Transaction, error) {
	if amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	bank, err := s.bankAccount(ctx, party)
	if err != nil {
		return nil, err
	}
	accountNumber, err := s.vault.Decrypt(bank.AccountNumberEncrypted)
	if err != nil {
		return nil, integrityFailure(ctx, s.audit, s.log, string(party.Role), party.ID.String(), err)
	}
	ifsc, err := s.vault.Decrypt(bank.IFSCEncrypted)
	if err != nil {
		return nil, integrityFailure(ctx, s.audit, s.log, string(party.Role), party.ID.String(), err)
	}

	txn, err := s.reserveWithdrawal(ctx, party, amount)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout())
	payout, perr := s.gateway.CreatePayout(callCtx, ports.PayoutRequest{
		AccountHolder: bank.HolderName,
		AccountNumber: accountNumber,
		IFSC:          ifsc,
		Amount:        amount,
		Currency:      s.cfg.Currency,
		Reference:     txn.ReferenceID,
	})
	cancel()
	s.metrics.ObserveExternal("gateway_payout", perr)

	if perr != nil {
		s.log.Warn().Err(perr).Str("reference_id", txn.ReferenceID).Msg("payout failed, reversing withdrawal")
		if err := s.reverseWithdrawal(ctx, party, txn); err != nil {
			return nil, err
		}
		return nil, apperror.ErrExternalDependency(fmt.Errorf("create payout: %w", perr))
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck
	if err := s.txns.Finalize(ctx, dbTx, txn.ID, domain.TransactionStatusSuccess); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("finalize withdrawal: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	_ = txn.Finalize(domain.TransactionStatusSuccess, time.Now().UTC())

	s.audit.Log(ctx, &domain.AuditLog{
		ActorID:      &party.ID,
		ActorRole:    string(party.Role),
		Action:       domain.AuditActionWithdrawal,
		ResourceType: "transaction",
		ResourceID:   txn.ID.String(),
		Details:      fmt.Sprintf(`{"amount":%d,"payout_id":%q}`, amount, payout.ID),
	})
	s.log.Info().
		Str("party_id", party.ID.String()).
		Str("reference_id", txn.ReferenceID).
		Int64("amount", amount).
		Msg("withdrawal paid out")
	return txn, nil
}

func (s *LedgerServiceImpl) bankAccount(ctx context.Context, party domain.Party) (domain.BankAccount, error) {
	var bank domain.BankAccount
	switch party.Role {
	case domain.RoleSeller:
		seller, err := s.sellers.GetByID(ctx, party.ID)
		if err != nil {
			return bank, apperror.InternalError(fmt.Errorf("find seller: %w", err))
		}
		if seller == nil {
			return bank, apperror.ErrNotFound("Seller")
		}
		bank = seller.BankAccount
	case domain.RoleLender:
		lender, err := s.lenders.GetByID(ctx, party.ID)
		if err != nil {
			return bank, apperror.InternalError(fmt.Errorf("find lender: %w", err))
		}
		if lender == nil {
			return bank, apperror.ErrNotFound("Lender")
		}
		bank = lender.BankAccount
	default:
		return bank, apperror.ErrForbidden()
	}
	if !bank.IsSet() {
		return bank, apperror.Validation("add a bank account before withdrawing")
	}
	return bank, nil
}

func (s *LedgerServiceImpl) reserveWithdrawal(ctx context.Context, party domain.Party, amount int64) (*domain.Transaction, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.adjustBalance(ctx, dbTx, party, -amount); err != nil {
		return nil, err
	}
	txn := s.entry(domain.TransactionTypeWithdrawal, domain.TransactionStatusPending, amount, time.Now().UTC())
	txn.ProcessedAt = nil
	txn.Description = "Withdrawal to bank account"
	if party.Role == domain.RoleSeller {
		txn.SellerID = &party.ID
	} else {
		txn.LenderID = &party.ID
	}
	if err := s.txns.Create(ctx, dbTx, txn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("record withdrawal: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return txn, nil
}

func (s *LedgerServiceImpl) reverseWithdrawal(ctx context.Context, party domain.Party, txn *domain.Transaction) error {
	ctx = context.WithoutCancel(ctx)
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.txns.Finalize(ctx, dbTx, txn.ID, domain.TransactionStatusFailed); err != nil {
		return apperror.InternalError(fmt.Errorf("fail withdrawal: %w", err))
	}
	if err := s.adjustBalance(ctx, dbTx, party, txn.Amount); err != nil {
		return err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	_ = txn.Finalize(domain.TransactionStatusFailed, time.Now().UTC())
	return nil
}

// adjustBalance locks the party's row and applies delta to its wallet.
func (s *LedgerServiceImpl) adjustBalance(ctx context.Context, dbTx pgx.Tx, party domain.Party, delta int64) error {
	switch party.Role {
	case domain.RoleSeller:
		seller, err := s.sellers.GetByIDForUpdate(ctx, dbTx, party.ID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("lock seller: %w", err))
		}
		if seller == nil {
			return apperror.ErrNotFound("Seller")
		}
		if seller.WalletBalance+delta < 0 {
			return apperror.ErrInsufficientFunds()
		}
		if err := s.sellers.UpdateWalletBalance(ctx, dbTx, seller.ID, seller.WalletBalance+delta); err != nil {
			return balanceError(err)
		}
	case domain.RoleLender:
		lender, err := s.lenders.GetByIDForUpdate(ctx, dbTx, party.ID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("lock lender: %w", err))
		}
		if lender == nil {
			return apperror.ErrNotFound("Lender")
		}
		if lender.WalletBalance+delta < 0 {
			return apperror.ErrInsufficientFunds()
		}
		if err := s.lenders.UpdateBalances(ctx, dbTx, lender.ID, lender.UtilizedLimit, lender.WalletBalance+delta); err != nil {
			return balanceError(err)
		}
	default:
		return apperror.ErrForbidden()
	}
	return nil
}

func (s *LedgerServiceImpl) entry(txType domain.TransactionType, status domain.TransactionStatus, amount int64, at time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:              uuid.New(),
		ReferenceID:     domain.NewReferenceID(),
		Amount:          amount,
		Currency:        s.cfg.Currency,
		TransactionType: txType,
		Status:          status,
		CreatedAt:       at,
		ProcessedAt:     &at,
	}
}

func (s *LedgerServiceImpl) gatewayTimeout() time.Duration {
	if s.cfg.GatewayTimeout <= 0 {
		return 10 * time.Second
	}
	return s.cfg.GatewayTimeout
}

func balanceError(err error) error {
	if errors.Is(err, domain.ErrInsufficientBalance) {
		return apperror.ErrInsufficientFunds()
	}
	return apperror.InternalError(fmt.Errorf("update balance: %w", err))
}

var _ ports.LedgerService = (*LedgerServiceImpl)(nil)
