package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InvoiceStatus is a state of the financing lifecycle.
type InvoiceStatus string

const (
	InvoiceStatusVerified    InvoiceStatus = "VERIFIED"
	InvoiceStatusPendingBids InvoiceStatus = "PENDING_BIDS"
	InvoiceStatusFinanced    InvoiceStatus = "FINANCED"
	InvoiceStatusPaid        InvoiceStatus = "PAID"
	InvoiceStatusRejected    InvoiceStatus = "REJECTED"
)

// invoiceTransitions lists every allowed forward move. PendingBids -> PendingBids
// is accepted as a no-op so repeated bids do not fail.
var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusVerified:    {InvoiceStatusPendingBids, InvoiceStatusRejected},
	InvoiceStatusPendingBids: {InvoiceStatusPendingBids, InvoiceStatusFinanced},
	InvoiceStatusFinanced:    {InvoiceStatusPaid},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to InvoiceStatus) bool {
	for _, next := range invoiceTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusRejected
}

// Invoice is a receivable submitted by a seller for financing.
type Invoice struct {
	ID                  uuid.UUID     `json:"id"`
	SellerID            uuid.UUID     `json:"seller_id"`
	LenderID            *uuid.UUID    `json:"lender_id,omitempty"`
	InvoiceNumber       string        `json:"invoice_number"`
	PONumber            *string       `json:"po_number,omitempty"`
	SellerTaxIDHash     string        `json:"-"`
	BuyerName           string        `json:"buyer_name"`
	BuyerEmail          *string       `json:"buyer_email,omitempty"`
	BuyerTaxIDEncrypted string        `json:"-"`
	BuyerTaxIDHash      string        `json:"-"`
	TotalAmount         int64         `json:"total_amount"`
	InvoiceDate         time.Time     `json:"invoice_date"`
	DueDate             time.Time     `json:"due_date"`
	ItemsSummary        string        `json:"items_summary,omitempty"`
	FileRef             string        `json:"file_ref"`
	Status              InvoiceStatus `json:"status"`
	RejectionReason     *string       `json:"rejection_reason,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// TransitionTo moves the invoice to next or returns ErrInvalidTransition.
func (i *Invoice) TransitionTo(next InvoiceStatus) error {
	if !CanTransition(i.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, i.Status, next)
	}
	i.Status = next
	return nil
}

// Reject moves a verified invoice to Rejected with a reason.
func (i *Invoice) Reject(reason string) error {
	if err := i.TransitionTo(InvoiceStatusRejected); err != nil {
		return err
	}
	i.RejectionReason = &reason
	return nil
}

// OpenForBids reports whether lenders may still place bids.
func (i *Invoice) OpenForBids() bool {
	return i.Status == InvoiceStatusVerified || i.Status == InvoiceStatusPendingBids
}

// InvoiceDraft is the seller-supplied data checked before an invoice exists.
type InvoiceDraft struct {
	InvoiceNumber string
	PONumber      *string
	SellerTaxID   string
	BuyerTaxID    string
	BuyerName     string
	BuyerEmail    *string
	TotalAmount   int64
	InvoiceDate   time.Time
	DueDate       time.Time
	ItemsSummary  string
	FileRef       string
}

// Validate checks the draft's own fields; registry and duplicate checks happen elsewhere.
func (d *InvoiceDraft) Validate() error {
	switch {
	case d.InvoiceNumber == "":
		return fmt.Errorf("invoice number is required")
	case d.BuyerTaxID == "":
		return fmt.Errorf("buyer tax ID is required")
	case d.BuyerName == "":
		return fmt.Errorf("buyer name is required")
	case d.TotalAmount <= 0:
		return fmt.Errorf("total amount must be positive")
	case d.InvoiceDate.IsZero() || d.DueDate.IsZero():
		return fmt.Errorf("invoice date and due date are required")
	case !d.DueDate.After(d.InvoiceDate):
		return fmt.Errorf("due date must be after invoice date")
	case d.FileRef == "":
		return fmt.Errorf("file reference is required")
	}
	return nil
}
