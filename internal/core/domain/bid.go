package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BidStatus is the state of a funding offer.
type BidStatus string

const (
	BidStatusPending  BidStatus = "PENDING"
	BidStatusAccepted BidStatus = "ACCEPTED"
	BidStatusRejected BidStatus = "REJECTED"
	BidStatusFinanced BidStatus = "FINANCED"
)

// MaxInterestRate caps the rate per period a lender may offer, in percent.
var MaxInterestRate = decimal.NewFromInt(100)

// Bid is a lender's offer to fund an invoice.
type Bid struct {
	ID               uuid.UUID       `json:"id"`
	InvoiceID        uuid.UUID       `json:"invoice_id"`
	LenderID         uuid.UUID       `json:"lender_id"`
	InterestRate     decimal.Decimal `json:"interest_rate"` // percent per period
	Amount           int64           `json:"amount"`        // minor units
	Status           BidStatus       `json:"status"`
	GatewayOrderID   *string         `json:"gateway_order_id,omitempty"`
	VirtualAccountID *string         `json:"virtual_account_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// IsOpen reports whether the bid still competes for the invoice.
func (b *Bid) IsOpen() bool {
	return b.Status == BidStatusPending
}

// HoldsInvoice reports whether the bid has won its invoice.
func (b *Bid) HoldsInvoice() bool {
	return b.Status == BidStatusAccepted || b.Status == BidStatusFinanced
}

// RepaymentDue is principal plus one period of interest, rounded half-up to minor units.
func (b *Bid) RepaymentDue() int64 {
	principal := decimal.NewFromInt(b.Amount)
	interest := principal.Mul(b.InterestRate).Div(decimal.NewFromInt(100))
	return principal.Add(interest).Round(0).IntPart()
}

// RateScale is the number of decimal places a rate is stored with.
const RateScale = 2

// ValidRate reports whether rate is inside (0, MaxInterestRate] and carries
// no more than RateScale significant decimal places.
func ValidRate(rate decimal.Decimal) bool {
	return rate.IsPositive() &&
		rate.LessThanOrEqual(MaxInterestRate) &&
		rate.Equal(rate.Round(RateScale))
}
