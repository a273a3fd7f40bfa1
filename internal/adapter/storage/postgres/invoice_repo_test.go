package postgres

import (
	"context"
	"testing"
	"time"

	"invoice-financing/internal/core/domain"
	"invoice-financing/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func newTestInvoice() *domain.Invoice {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Invoice{
		ID:                  uuid.New(),
		SellerID:            uuid.New(),
		InvoiceNumber:       "INV-2041",
		PONumber:            strPtr("PO-88"),
		SellerTaxIDHash:     "seller_hash",
		BuyerName:           "Globex Retail",
		BuyerTaxIDEncrypted: "enc_buyer",
		BuyerTaxIDHash:      "buyer_hash",
		TotalAmount:         5_000_000,
		InvoiceDate:         now.AddDate(0, 0, -5),
		DueDate:             now.AddDate(0, 2, 0),
		ItemsSummary:        "steel coils",
		FileRef:             "files/inv-2041.pdf",
		Status:              domain.InvoiceStatusVerified,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func invoiceColumnNames() []string {
	return []string{"id", "seller_id", "lender_id", "invoice_number", "po_number", "seller_tax_id_hash",
		"buyer_name", "buyer_email", "buyer_tax_id_encrypted", "buyer_tax_id_hash", "total_amount",
		"invoice_date", "due_date", "items_summary", "file_ref", "status", "rejection_reason", "created_at", "updated_at"}
}

func addInvoiceRow(rows *pgxmock.Rows, inv *domain.Invoice) *pgxmock.Rows {
	return rows.AddRow(
		inv.ID, inv.SellerID, inv.LenderID, inv.InvoiceNumber, inv.PONumber, inv.SellerTaxIDHash,
		inv.BuyerName, inv.BuyerEmail, inv.BuyerTaxIDEncrypted, inv.BuyerTaxIDHash, inv.TotalAmount,
		inv.InvoiceDate, inv.DueDate, inv.ItemsSummary, inv.FileRef, inv.Status, inv.RejectionReason,
		inv.CreatedAt, inv.UpdatedAt,
	)
}

func TestInvoiceRepo_Create_Duplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewInvoiceRepo(mock)
	inv := newTestInvoice()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO invoices").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO invoices").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "invoices_tax_pair_idx"})

	ctx := context.Background()
	dbTx, err := mock.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.Create(ctx, dbTx, inv))
	assert.ErrorIs(t, repo.Create(ctx, dbTx, inv), ports.ErrDuplicateKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepo_GetByIDForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewInvoiceRepo(mock)
	inv := newTestInvoice()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM invoices WHERE id = .+ FOR UPDATE").
		WithArgs(inv.ID).
		WillReturnRows(addInvoiceRow(pgxmock.NewRows(invoiceColumnNames()), inv))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)
	got, err := repo.GetByIDForUpdate(context.Background(), dbTx, inv.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "INV-2041", got.InvoiceNumber)
	assert.Equal(t, "PO-88", *got.PONumber)
	assert.Nil(t, got.LenderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepo_UpdateStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewInvoiceRepo(mock)
	inv := newTestInvoice()
	lender := uuid.New()
	inv.Status = domain.InvoiceStatusFinanced
	inv.LenderID = &lender

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE invoices SET status").
		WithArgs(domain.InvoiceStatusFinanced, &lender, inv.RejectionReason, inv.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)
	assert.NoError(t, repo.UpdateStatus(context.Background(), dbTx, inv))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepo_ExistsByTaxPair(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewInvoiceRepo(mock)
	exclude := uuid.New()

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM invoices\s+WHERE seller_tax_id_hash`).
		WithArgs("seller_hash", "INV-1", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM invoices\s+WHERE seller_tax_id_hash`).
		WithArgs("seller_hash", "INV-1", &exclude).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err := repo.ExistsByTaxPair(context.Background(), "seller_hash", "INV-1", nil)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByTaxPair(context.Background(), "seller_hash", "INV-1", &exclude)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepo_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewInvoiceRepo(mock)
	a, b := newTestInvoice(), newTestInvoice()
	b.Status = domain.InvoiceStatusPendingBids
	statuses := []string{"VERIFIED", "PENDING_BIDS"}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM invoices WHERE status = ANY`).
		WithArgs(statuses).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))
	rows := addInvoiceRow(addInvoiceRow(pgxmock.NewRows(invoiceColumnNames()), a), b)
	mock.ExpectQuery("SELECT .+ FROM invoices WHERE status = ANY.+ ORDER BY created_at DESC LIMIT").
		WithArgs(statuses, 20, 0).
		WillReturnRows(rows)

	items, total, err := repo.List(context.Background(), ports.InvoiceListParams{
		Statuses: []domain.InvoiceStatus{domain.InvoiceStatusVerified, domain.InvoiceStatusPendingBids},
		Page:     1,
		PageSize: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, items, 2)
	assert.Equal(t, domain.InvoiceStatusPendingBids, items[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepo_List_Unclaimed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewInvoiceRepo(mock)
	statuses := []string{"VERIFIED", "PENDING_BIDS"}
	claimedFilter := `NOT EXISTS \(SELECT 1 FROM bids WHERE bids.invoice_id = invoices.id AND bids.status IN \('ACCEPTED', 'FINANCED'\)\)`

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM invoices WHERE status = ANY\(\$1\) AND ` + claimedFilter).
		WithArgs(statuses).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(`SELECT .+ FROM invoices WHERE status = ANY\(\$1\) AND `+claimedFilter+` ORDER BY created_at DESC LIMIT`).
		WithArgs(statuses, 20, 0).
		WillReturnRows(addInvoiceRow(pgxmock.NewRows(invoiceColumnNames()), newTestInvoice()))

	items, total, err := repo.List(context.Background(), ports.InvoiceListParams{
		Statuses:  []domain.InvoiceStatus{domain.InvoiceStatusVerified, domain.InvoiceStatusPendingBids},
		Unclaimed: true,
		Page:      1,
		PageSize:  20,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, items, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
