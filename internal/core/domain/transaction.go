package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType represents the kind of money movement.
type TransactionType string

const (
	TransactionTypeFundingInflow TransactionType = "FUNDING_INFLOW"
	TransactionTypePlatformFee   TransactionType = "PLATFORM_FEE"
	TransactionTypeDisbursement  TransactionType = "DISBURSEMENT"
	TransactionTypeWithdrawal    TransactionType = "WITHDRAWAL"
	TransactionTypeRepaymentIn   TransactionType = "REPAYMENT_IN"
	TransactionTypeSettlementOut TransactionType = "SETTLEMENT_OUT"
)

// TransactionStatus represents the lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "PENDING"
	TransactionStatusSuccess TransactionStatus = "SUCCESS"
	TransactionStatusFailed  TransactionStatus = "FAILED"
)

// Transaction is an append-only ledger entry. Only Status (once) and ProcessedAt change.
type Transaction struct {
	ID                    uuid.UUID         `json:"id"`
	ReferenceID           string            `json:"reference_id"`
	InvoiceID             *uuid.UUID        `json:"invoice_id,omitempty"`
	BidID                 *uuid.UUID        `json:"bid_id,omitempty"`
	LenderID              *uuid.UUID        `json:"lender_id,omitempty"`
	SellerID              *uuid.UUID        `json:"seller_id,omitempty"`
	Amount                int64             `json:"amount"` // minor units
	Fee                   int64             `json:"fee"`
	Currency              string            `json:"currency"`
	TransactionType       TransactionType   `json:"transaction_type"`
	Status                TransactionStatus `json:"status"`
	GatewayPaymentID      *string           `json:"gateway_payment_id,omitempty"`
	GatewayNotificationID *string           `json:"-"`
	Description           string            `json:"description,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	ProcessedAt           *time.Time        `json:"processed_at,omitempty"`
}

// NewReferenceID returns a fresh externally unique reference.
func NewReferenceID() string {
	return "TXN-" + uuid.NewString()
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusSuccess || t.Status == TransactionStatusFailed
}

// Finalize moves a pending transaction to Success or Failed exactly once.
func (t *Transaction) Finalize(status TransactionStatus, at time.Time) error {
	if t.IsTerminal() || status == TransactionStatusPending {
		return ErrTransactionFinal
	}
	t.Status = status
	t.ProcessedAt = &at
	return nil
}

// NetAmount is what reached the wallet after the fee.
func (t *Transaction) NetAmount() int64 {
	return t.Amount - t.Fee
}
