package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"invoice-financing/internal/adapter/storage/memory"
	"invoice-financing/internal/core/domain"
	"invoice-financing/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestLogger() zerolog.Logger {
	return zerolog.Nop()
}

// mockTx implements pgx.Tx for tests that mock repositories directly.
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

// recordingAudit collects audit entries synchronously.
type recordingAudit struct {
	mu      sync.Mutex
	entries []domain.AuditLog
}

func (r *recordingAudit) Log(_ context.Context, entry *domain.AuditLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
}

func (r *recordingAudit) actions() []domain.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditAction, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

// fixture wires repositories over one in-memory store.
type fixture struct {
	store    *memory.Store
	sellers  *memory.SellerRepo
	lenders  *memory.LenderRepo
	invoices *memory.InvoiceRepo
	bids     *memory.BidRepo
	txns     *memory.TransactionRepo
	vault    *PIIVault
	audit    *recordingAudit
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memory.NewStore()
	vault, err := NewPIIVault(testEncKey, testIndexKey)
	require.NoError(t, err)
	return &fixture{
		store:    s,
		sellers:  memory.NewSellerRepo(s),
		lenders:  memory.NewLenderRepo(s),
		invoices: memory.NewInvoiceRepo(s),
		bids:     memory.NewBidRepo(s),
		txns:     memory.NewTransactionRepo(s),
		vault:    vault,
		audit:    &recordingAudit{},
	}
}

func (f *fixture) seedSeller(t *testing.T, taxID string, balance int64) *domain.Seller {
	t.Helper()
	enc, err := f.vault.Encrypt(taxID)
	require.NoError(t, err)
	acct, err := f.vault.Encrypt("123456789012")
	require.NoError(t, err)
	ifsc, err := f.vault.Encrypt("HDFC0001234")
	require.NoError(t, err)
	now := time.Now().UTC()
	seller := &domain.Seller{
		ID:             uuid.New(),
		Email:          uuid.NewString() + "@seller.example.com",
		CompanyName:    "Acme Traders",
		TaxIDEncrypted: enc,
		TaxIDHash:      f.vault.BlindIndex(taxID),
		BankAccount: domain.BankAccount{
			HolderName:             "Acme Traders",
			AccountNumberEncrypted: acct,
			IFSCEncrypted:          ifsc,
			AccountHash:            f.vault.BlindIndex("123456789012"),
		},
		WalletBalance: balance,
		TrustScore:    defaultTrustScore,
		KYCStatus:     domain.KYCPartial,
		Role:          domain.RoleSeller,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, f.sellers.Create(context.Background(), seller))
	return seller
}

func (f *fixture) seedLender(t *testing.T, total, utilized int64) *domain.Lender {
	t.Helper()
	taxID := "27" + uuid.NewString()[:13]
	enc, err := f.vault.Encrypt(taxID)
	require.NoError(t, err)
	now := time.Now().UTC()
	lender := &domain.Lender{
		ID:               uuid.New(),
		Email:            uuid.NewString() + "@lender.example.com",
		OrganizationName: "Capital Partners",
		TaxIDEncrypted:   enc,
		TaxIDHash:        f.vault.BlindIndex(taxID),
		TotalCreditLimit: total,
		UtilizedLimit:    utilized,
		KYCStatus:        domain.KYCVerified,
		Role:             domain.RoleLender,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, f.lenders.Create(context.Background(), lender))
	return lender
}

func (f *fixture) seedInvoice(t *testing.T, seller *domain.Seller, number string, total int64, status domain.InvoiceStatus) *domain.Invoice {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	inv := &domain.Invoice{
		ID:              uuid.New(),
		SellerID:        seller.ID,
		InvoiceNumber:   number,
		SellerTaxIDHash: seller.TaxIDHash,
		BuyerName:       "Globex Retail",
		BuyerTaxIDHash:  f.vault.BlindIndex("29GGGGG1314R9Z6"),
		TotalAmount:     total,
		InvoiceDate:     now.AddDate(0, 0, -10),
		DueDate:         now.AddDate(0, 2, 0),
		FileRef:         "files/" + number + ".pdf",
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	tx, err := f.store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, f.invoices.Create(ctx, tx, inv))
	require.NoError(t, tx.Commit(ctx))
	return inv
}

func (f *fixture) bidService() *BidServiceImpl {
	return NewBidService(f.invoices, f.bids, f.lenders, f.store, f.audit, nil, newTestLogger())
}

func (f *fixture) mustSeller(t *testing.T, id uuid.UUID) *domain.Seller {
	t.Helper()
	s, err := f.sellers.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, s)
	return s
}

func (f *fixture) mustLender(t *testing.T, id uuid.UUID) *domain.Lender {
	t.Helper()
	l, err := f.lenders.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, l)
	return l
}

func (f *fixture) mustInvoice(t *testing.T, id uuid.UUID) *domain.Invoice {
	t.Helper()
	inv, err := f.invoices.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, inv)
	return inv
}

func (f *fixture) mustBid(t *testing.T, id uuid.UUID) *domain.Bid {
	t.Helper()
	b, err := f.bids.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, b)
	return b
}

var _ ports.AuditService = (*recordingAudit)(nil)
