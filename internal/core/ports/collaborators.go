package ports

//go:generate mockgen -source=collaborators.go -destination=mocks/mock_collaborators.go -package=mocks

import (
	"context"
	"time"
)

// --- Payment gateway ---

// PaymentGateway is the external order, collection and payout API.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*GatewayOrder, error)
	CreateVirtualAccount(ctx context.Context, req VirtualAccountRequest) (*VirtualAccount, error)
	CreatePayout(ctx context.Context, req PayoutRequest) (*Payout, error)
}

type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
}

type GatewayOrder struct {
	OrderID  string
	Amount   int64
	Currency string
}

type VirtualAccountRequest struct {
	Receipt     string
	Description string
	Amount      int64
}

type VirtualAccount struct {
	ID string
}

type PayoutRequest struct {
	AccountHolder string
	AccountNumber string
	IFSC          string
	Amount        int64
	Currency      string
	Reference     string
}

type Payout struct {
	ID     string
	Status string
}

// --- Registry and extraction ---

// TaxRegistry answers whether a tax ID is registered. A not-found ID is (false, nil).
type TaxRegistry interface {
	Lookup(ctx context.Context, taxID string) (bool, error)
}

// InvoiceExtractor reads invoice fields from an uploaded document. Missing fields are nil.
type InvoiceExtractor interface {
	Extract(ctx context.Context, fileRef string) (*ExtractedInvoice, error)
}

type ExtractedInvoice struct {
	InvoiceNumber *string    `json:"invoice_number"`
	PONumber      *string    `json:"po_number"`
	InvoiceDate   *time.Time `json:"invoice_date"`
	DueDate       *time.Time `json:"due_date"`
	SellerTaxID   *string    `json:"seller_tax_id"`
	BuyerTaxID    *string    `json:"buyer_tax_id"`
	BuyerName     *string    `json:"buyer_name"`
	TotalAmount   *int64     `json:"total_amount"`
	BuyerEmail    *string    `json:"buyer_email"`
	ItemsSummary  *string    `json:"items_summary"`
}

// --- External identity ---

// IdentityVerifier checks a token issued by an external identity provider.
type IdentityVerifier interface {
	Name() string
	Verify(ctx context.Context, token string) (*ExternalIdentity, error)
}

// ExternalIdentity is what a provider vouches for.
type ExternalIdentity struct {
	Provider string
	Subject  string
	Email    string
}

// --- Redis-backed stores ---

// NotificationGuard is a short-lived claim on a webhook notification ID that
// keeps concurrent deliveries of the same notification off the database.
type NotificationGuard interface {
	// Acquire returns false when the notification is already claimed or processed.
	Acquire(ctx context.Context, notificationID string, ttl time.Duration) (bool, error)
	// MarkDone keeps the claim for ttl after successful processing.
	MarkDone(ctx context.Context, notificationID string, ttl time.Duration) error
	// Release drops the claim so a gateway retry can be processed.
	Release(ctx context.Context, notificationID string) error
}

// RateLimiter is a fixed-window request counter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error)
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // Unix timestamp
}
