package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to InvoiceStatus
		want     bool
	}{
		{InvoiceStatusVerified, InvoiceStatusPendingBids, true},
		{InvoiceStatusVerified, InvoiceStatusRejected, true},
		{InvoiceStatusVerified, InvoiceStatusFinanced, false},
		{InvoiceStatusPendingBids, InvoiceStatusPendingBids, true},
		{InvoiceStatusPendingBids, InvoiceStatusFinanced, true},
		{InvoiceStatusPendingBids, InvoiceStatusRejected, false},
		{InvoiceStatusPendingBids, InvoiceStatusVerified, false},
		{InvoiceStatusFinanced, InvoiceStatusPaid, true},
		{InvoiceStatusFinanced, InvoiceStatusPendingBids, false},
		{InvoiceStatusPaid, InvoiceStatusFinanced, false},
		{InvoiceStatusRejected, InvoiceStatusVerified, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestInvoice_LifecycleIsForwardOnly(t *testing.T) {
	inv := &Invoice{Status: InvoiceStatusVerified}

	require.NoError(t, inv.TransitionTo(InvoiceStatusPendingBids))
	require.NoError(t, inv.TransitionTo(InvoiceStatusPendingBids))
	require.NoError(t, inv.TransitionTo(InvoiceStatusFinanced))
	require.NoError(t, inv.TransitionTo(InvoiceStatusPaid))
	assert.True(t, inv.Status.IsTerminal())

	err := inv.TransitionTo(InvoiceStatusFinanced)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, InvoiceStatusPaid, inv.Status)
}

func TestInvoice_Reject(t *testing.T) {
	inv := &Invoice{Status: InvoiceStatusVerified}
	require.NoError(t, inv.Reject("buyer unknown"))
	assert.Equal(t, InvoiceStatusRejected, inv.Status)
	require.NotNil(t, inv.RejectionReason)
	assert.Equal(t, "buyer unknown", *inv.RejectionReason)

	withBids := &Invoice{Status: InvoiceStatusPendingBids}
	assert.ErrorIs(t, withBids.Reject("late"), ErrInvalidTransition)
	assert.Nil(t, withBids.RejectionReason)
}

func TestInvoice_OpenForBids(t *testing.T) {
	assert.True(t, (&Invoice{Status: InvoiceStatusVerified}).OpenForBids())
	assert.True(t, (&Invoice{Status: InvoiceStatusPendingBids}).OpenForBids())
	assert.False(t, (&Invoice{Status: InvoiceStatusFinanced}).OpenForBids())
	assert.False(t, (&Invoice{Status: InvoiceStatusRejected}).OpenForBids())
}

func TestInvoiceDraft_Validate(t *testing.T) {
	base := func() InvoiceDraft {
		return InvoiceDraft{
			InvoiceNumber: "INV-001",
			BuyerTaxID:    "29ABCDE1234F1Z5",
			BuyerName:     "Acme Retail",
			TotalAmount:   5_000_000,
			InvoiceDate:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			DueDate:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			FileRef:       "files/inv-001.pdf",
		}
	}

	tests := []struct {
		name    string
		mutate  func(d *InvoiceDraft)
		wantErr bool
	}{
		{"valid", func(d *InvoiceDraft) {}, false},
		{"missing number", func(d *InvoiceDraft) { d.InvoiceNumber = "" }, true},
		{"zero amount", func(d *InvoiceDraft) { d.TotalAmount = 0 }, true},
		{"due before invoice", func(d *InvoiceDraft) { d.DueDate = d.InvoiceDate.Add(-time.Hour) }, true},
		{"due equals invoice", func(d *InvoiceDraft) { d.DueDate = d.InvoiceDate }, true},
		{"missing file", func(d *InvoiceDraft) { d.FileRef = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base()
			tt.mutate(&d)
			if tt.wantErr {
				assert.Error(t, d.Validate())
			} else {
				assert.NoError(t, d.Validate())
			}
		})
	}
}

func TestLender_Commit(t *testing.T) {
	l := &Lender{TotalCreditLimit: 100_000_000, UtilizedLimit: 96_000_000}

	assert.ErrorIs(t, l.Commit(5_000_000), ErrCreditLimitExceeded)
	assert.Equal(t, int64(96_000_000), l.UtilizedLimit, "rejected commit must not clamp")

	require.NoError(t, l.Commit(4_000_000))
	assert.Equal(t, int64(100_000_000), l.UtilizedLimit)
	assert.Equal(t, int64(0), l.AvailableLimit())

	l.Release(4_000_000)
	assert.Equal(t, int64(96_000_000), l.UtilizedLimit)
}

func TestBid_RepaymentDue(t *testing.T) {
	b := &Bid{Amount: 4_800_000, InterestRate: decimal.RequireFromString("12")}
	assert.Equal(t, int64(5_376_000), b.RepaymentDue())

	odd := &Bid{Amount: 333, InterestRate: decimal.RequireFromString("12.5")}
	assert.Equal(t, int64(375), odd.RepaymentDue())
}

func TestValidRate(t *testing.T) {
	assert.True(t, ValidRate(decimal.RequireFromString("0.5")))
	assert.True(t, ValidRate(decimal.NewFromInt(100)))
	assert.False(t, ValidRate(decimal.Zero))
	assert.False(t, ValidRate(decimal.NewFromInt(-3)))
	assert.False(t, ValidRate(decimal.RequireFromString("100.01")))

	assert.True(t, ValidRate(decimal.RequireFromString("12.25")))
	assert.True(t, ValidRate(decimal.RequireFromString("12.500")), "trailing zeros are not extra precision")
	assert.False(t, ValidRate(decimal.RequireFromString("12.345")))
	assert.False(t, ValidRate(decimal.RequireFromString("0.001")))
}

func TestBid_States(t *testing.T) {
	assert.True(t, (&Bid{Status: BidStatusPending}).IsOpen())
	assert.False(t, (&Bid{Status: BidStatusAccepted}).IsOpen())
	assert.True(t, (&Bid{Status: BidStatusAccepted}).HoldsInvoice())
	assert.True(t, (&Bid{Status: BidStatusFinanced}).HoldsInvoice())
	assert.False(t, (&Bid{Status: BidStatusRejected}).HoldsInvoice())
}

func TestTransaction_Finalize(t *testing.T) {
	now := time.Now()
	tx := &Transaction{Status: TransactionStatusPending}

	require.NoError(t, tx.Finalize(TransactionStatusSuccess, now))
	assert.True(t, tx.IsTerminal())
	assert.Equal(t, &now, tx.ProcessedAt)

	assert.ErrorIs(t, tx.Finalize(TransactionStatusFailed, now), ErrTransactionFinal)
	assert.Equal(t, TransactionStatusSuccess, tx.Status)

	pending := &Transaction{Status: TransactionStatusPending}
	assert.ErrorIs(t, pending.Finalize(TransactionStatusPending, now), ErrTransactionFinal)
}

func TestTransaction_NetAmount(t *testing.T) {
	tx := &Transaction{Amount: 4_800_000, Fee: 100_000}
	assert.Equal(t, int64(4_700_000), tx.NetAmount())
}

func TestNewReferenceID_Unique(t *testing.T) {
	a, b := NewReferenceID(), NewReferenceID()
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "TXN-")
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleSeller.Valid())
	assert.True(t, RoleLender.Valid())
	assert.False(t, Role("admin").Valid())
}
