package ports

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

import (
	"context"
	"errors"

	"invoice-financing/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrDuplicateKey is returned by repositories when a unique index rejects a write.
var ErrDuplicateKey = errors.New("duplicate key")

// SellerRepository defines persistence operations for sellers.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type SellerRepository interface {
	Create(ctx context.Context, seller *domain.Seller) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Seller, error)
	GetByEmail(ctx context.Context, email string) (*domain.Seller, error)
	GetByTaxIDHash(ctx context.Context, hash string) (*domain.Seller, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Seller, error)
	UpdateWalletBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance int64) error
	UpdateBankAccount(ctx context.Context, tx pgx.Tx, id uuid.UUID, bank domain.BankAccount) error
}

// LenderRepository defines persistence operations for lenders.
type LenderRepository interface {
	Create(ctx context.Context, lender *domain.Lender) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Lender, error)
	GetByEmail(ctx context.Context, email string) (*domain.Lender, error)
	GetByTaxIDHash(ctx context.Context, hash string) (*domain.Lender, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Lender, error)
	UpdateBalances(ctx context.Context, tx pgx.Tx, id uuid.UUID, utilizedLimit, walletBalance int64) error
	UpdateBankAccount(ctx context.Context, tx pgx.Tx, id uuid.UUID, bank domain.BankAccount) error
}

// InvoiceRepository defines persistence operations for invoices.
type InvoiceRepository interface {
	Create(ctx context.Context, tx pgx.Tx, invoice *domain.Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Invoice, error)
	// UpdateStatus persists Status, LenderID and RejectionReason.
	UpdateStatus(ctx context.Context, tx pgx.Tx, invoice *domain.Invoice) error
	ExistsBySellerNumber(ctx context.Context, sellerID uuid.UUID, invoiceNumber string) (bool, error)
	// ExistsByTaxPair checks the system-wide double-financing key, ignoring rejected
	// invoices and, when set, the invoice being re-verified.
	ExistsByTaxPair(ctx context.Context, sellerTaxIDHash, invoiceNumber string, exclude *uuid.UUID) (bool, error)
	List(ctx context.Context, params InvoiceListParams) ([]domain.Invoice, int64, error)
}

// InvoiceListParams holds filter + pagination for listing invoices.
type InvoiceListParams struct {
	SellerID *uuid.UUID
	Statuses []domain.InvoiceStatus
	// Unclaimed drops invoices that already have an accepted or financed bid.
	Unclaimed bool
	Page      int
	PageSize  int
}

// BidRepository defines persistence operations for bids.
type BidRepository interface {
	Create(ctx context.Context, tx pgx.Tx, bid *domain.Bid) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Bid, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Bid, error)
	GetByVirtualAccount(ctx context.Context, virtualAccountID string) (*domain.Bid, error)
	GetByVirtualAccountForUpdate(ctx context.Context, tx pgx.Tx, virtualAccountID string) (*domain.Bid, error)
	// ListByInvoice orders by interest rate ascending, then creation time.
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]domain.Bid, error)
	ListByInvoiceForUpdate(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID) ([]domain.Bid, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.BidStatus) error
	// RejectSiblings moves every other pending bid of the invoice to Rejected.
	RejectSiblings(ctx context.Context, tx pgx.Tx, invoiceID, acceptedID uuid.UUID) (int64, error)
	SetFundingOrder(ctx context.Context, tx pgx.Tx, id uuid.UUID, orderID, virtualAccountID string) error
}

// TransactionRepository defines persistence operations for ledger entries.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByNotificationID(ctx context.Context, notificationID string) (*domain.Transaction, error)
	ExistsByNotificationID(ctx context.Context, tx pgx.Tx, notificationID string) (bool, error)
	// GetFundingByBid returns the successful funding inflow of a bid, if any.
	GetFundingByBid(ctx context.Context, bidID uuid.UUID) (*domain.Transaction, error)
	// Finalize moves a pending transaction to a terminal status; a terminal row yields domain.ErrTransactionFinal.
	Finalize(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus) error
	SumByInvoice(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID, txType domain.TransactionType) (int64, error)
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	GetStats(ctx context.Context, party domain.Party) (*LedgerStats, error)
}

// TransactionListParams holds filter + pagination for listing transactions.
type TransactionListParams struct {
	Party    domain.Party
	Status   *domain.TransactionStatus
	Type     *domain.TransactionType
	Page     int
	PageSize int
}

// LedgerStats holds successful totals per transaction type for one party.
type LedgerStats struct {
	TotalTransactions int64
	FundingInflow     int64
	PlatformFees      int64
	RepaymentIn       int64
	SettlementOut     int64
	Withdrawn         int64
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
