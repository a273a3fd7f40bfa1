package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"time"

	"invoice-financing/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VaultService encrypts regulated identifiers and derives their blind index.
type VaultService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
	BlindIndex(plaintext string) string
}

// PaymentSigner checks the payment gateway's signatures on checkout
// confirmations and webhook bodies.
type PaymentSigner interface {
	VerifyPayment(orderID, paymentID, signature string) bool
	VerifyWebhook(body []byte, signature string) bool
}

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService issues and validates session tokens.
type TokenService interface {
	Generate(subjectID uuid.UUID, role domain.Role) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed session claims.
type TokenClaims struct {
	SubjectID uuid.UUID
	Role      domain.Role
}

// AuditService records audit entries without blocking the caller.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// --- Identity & Access ---

// AuthService defines registration, login and profile updates.
type AuthService interface {
	RegisterSeller(ctx context.Context, req RegisterSellerRequest) (*domain.Seller, error)
	RegisterLender(ctx context.Context, req RegisterLenderRequest) (*domain.Lender, error)
	Login(ctx context.Context, email, password string) (*Session, error)
	LoginExternal(ctx context.Context, idToken string) (*Session, error)
	UpdateBankAccount(ctx context.Context, party domain.Party, bank BankAccountInput) error
}

// BankAccountInput carries plaintext payout details; they are encrypted before storage.
type BankAccountInput struct {
	HolderName    string
	AccountNumber string
	IFSC          string
}

type RegisterSellerRequest struct {
	Email        string
	Password     string
	CompanyName  string
	BusinessType string
	TaxID        string
	BankAccount  *BankAccountInput
}

type RegisterLenderRequest struct {
	Email            string
	Password         string
	OrganizationName string
	TaxID            string
	TotalCreditLimit int64
	BankAccount      *BankAccountInput
}

// Session is an issued login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	SubjectID uuid.UUID
	Role      domain.Role
}

// --- Invoices ---

// VerificationService runs the ordered invoice checks. It never writes.
type VerificationService interface {
	Verify(ctx context.Context, draft *domain.InvoiceDraft, exclude *uuid.UUID) error
}

// InvoiceService drives invoice submission and reads.
type InvoiceService interface {
	Extract(ctx context.Context, fileRef string) (*ExtractedInvoice, error)
	Submit(ctx context.Context, sellerID uuid.UUID, draft domain.InvoiceDraft) (*domain.Invoice, error)
	Reverify(ctx context.Context, sellerID, invoiceID uuid.UUID) (*domain.Invoice, error)
	Get(ctx context.Context, caller domain.Party, invoiceID uuid.UUID) (*domain.Invoice, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID, page, pageSize int) ([]domain.Invoice, int64, error)
	ListOpen(ctx context.Context, page, pageSize int) ([]domain.Invoice, int64, error)
}

// --- Marketplace ---

// BidService collects offers and accepts one per invoice.
type BidService interface {
	PlaceBid(ctx context.Context, req PlaceBidRequest) (*domain.Bid, error)
	// ListBids is visible to the owning seller and to any lender.
	ListBids(ctx context.Context, caller domain.Party, invoiceID uuid.UUID) ([]domain.Bid, error)
	AcceptBid(ctx context.Context, invoiceID, bidID, sellerID uuid.UUID) (*domain.Bid, error)
}

type PlaceBidRequest struct {
	InvoiceID    uuid.UUID
	LenderID     uuid.UUID
	InterestRate decimal.Decimal
	Amount       int64
}

// --- Settlement ---

// SettlementService confirms funding from the gateway exactly once.
type SettlementService interface {
	CreateFundingOrder(ctx context.Context, lenderID, bidID uuid.UUID) (*FundingOrder, error)
	VerifyFundingPayment(ctx context.Context, req VerifyPaymentRequest) (*domain.Transaction, error)
	HandleWebhook(ctx context.Context, n WebhookNotification) WebhookOutcome
}

type FundingOrder struct {
	BidID            uuid.UUID
	OrderID          string
	Amount           int64
	Currency         string
	VirtualAccountID string
}

type VerifyPaymentRequest struct {
	LenderID  uuid.UUID
	BidID     uuid.UUID
	OrderID   string
	PaymentID string
	Signature string
}

// WebhookNotification is one raw gateway delivery.
type WebhookNotification struct {
	NotificationID string
	Signature      string
	Body           []byte
}

// WebhookOutcome is the internal result of a delivery; the gateway is always acknowledged.
type WebhookOutcome string

const (
	WebhookIgnored        WebhookOutcome = "ignored"
	WebhookDuplicate      WebhookOutcome = "duplicate"
	WebhookUnknownAccount WebhookOutcome = "unknown_account"
	WebhookAlreadySettled WebhookOutcome = "already_settled"
	WebhookSettled        WebhookOutcome = "settled"
	WebhookRejected       WebhookOutcome = "rejected"
	WebhookFailed         WebhookOutcome = "failed"
)

// --- Wallet & ledger ---

// LedgerService exposes wallets and the flows that move money out of them.
type LedgerService interface {
	GetWallet(ctx context.Context, party domain.Party) (*WalletSummary, error)
	ListTransactions(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	Repay(ctx context.Context, sellerID, invoiceID uuid.UUID, amount int64) (*RepaymentResult, error)
	Withdraw(ctx context.Context, party domain.Party, amount int64) (*domain.Transaction, error)
}

type WalletSummary struct {
	Party            domain.Party
	Balance          int64
	Currency         string
	TotalCreditLimit *int64
	UtilizedLimit    *int64
	Stats            *LedgerStats
}

type RepaymentResult struct {
	Repayment   *domain.Transaction
	Settlement  *domain.Transaction // set once the invoice is fully repaid
	Outstanding int64
	Invoice     *domain.Invoice
}
