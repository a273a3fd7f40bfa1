package postgres

import (
	"context"
	"fmt"
	"strings"

	"invoice-financing/internal/core/domain"
	"invoice-financing/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const invoiceColumns = `id, seller_id, lender_id, invoice_number, po_number, seller_tax_id_hash,
	buyer_name, buyer_email, buyer_tax_id_encrypted, buyer_tax_id_hash, total_amount,
	invoice_date, due_date, items_summary, file_ref, status, rejection_reason, created_at, updated_at`

// InvoiceRepo implements ports.InvoiceRepository.
type InvoiceRepo struct {
	pool Pool
}

func NewInvoiceRepo(pool Pool) *InvoiceRepo {
	return &InvoiceRepo{pool: pool}
}

// Create inserts an invoice. The partial unique indexes on (seller_id, invoice_number)
// and (seller_tax_id_hash, invoice_number) surface as ports.ErrDuplicateKey.
func (r *InvoiceRepo) Create(ctx context.Context, tx pgx.Tx, inv *domain.Invoice) error {
	query := `INSERT INTO invoices (` + invoiceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err := tx.Exec(ctx, query,
		inv.ID, inv.SellerID, inv.LenderID, inv.InvoiceNumber, inv.PONumber, inv.SellerTaxIDHash,
		inv.BuyerName, inv.BuyerEmail, inv.BuyerTaxIDEncrypted, inv.BuyerTaxIDHash, inv.TotalAmount,
		inv.InvoiceDate, inv.DueDate, inv.ItemsSummary, inv.FileRef, inv.Status, inv.RejectionReason,
		inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		return writeError("insert invoice", err)
	}
	return nil
}

func (r *InvoiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	return scanInvoice(r.pool.QueryRow(ctx, query, id), "get invoice by id")
}

// GetByIDForUpdate locks the invoice row. This MUST be called within a transaction.
func (r *InvoiceRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1 FOR UPDATE`
	return scanInvoice(tx.QueryRow(ctx, query, id), "get invoice for update")
}

func (r *InvoiceRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, inv *domain.Invoice) error {
	query := `UPDATE invoices SET status = $1, lender_id = $2, rejection_reason = $3, updated_at = NOW() WHERE id = $4`
	tag, err := tx.Exec(ctx, query, inv.Status, inv.LenderID, inv.RejectionReason, inv.ID)
	if err != nil {
		return writeError("update invoice status", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("invoice not found: %s", inv.ID)
	}
	return nil
}

func (r *InvoiceRepo) ExistsBySellerNumber(ctx context.Context, sellerID uuid.UUID, invoiceNumber string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM invoices WHERE seller_id = $1 AND invoice_number = $2 AND status <> 'REJECTED')`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, sellerID, invoiceNumber).Scan(&exists); err != nil {
		return false, fmt.Errorf("check seller invoice number: %w", err)
	}
	return exists, nil
}

func (r *InvoiceRepo) ExistsByTaxPair(ctx context.Context, sellerTaxIDHash, invoiceNumber string, exclude *uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM invoices
		WHERE seller_tax_id_hash = $1 AND invoice_number = $2 AND status <> 'REJECTED'
			AND ($3::uuid IS NULL OR id <> $3))`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, sellerTaxIDHash, invoiceNumber, exclude).Scan(&exists); err != nil {
		return false, fmt.Errorf("check tax pair: %w", err)
	}
	return exists, nil
}

// List fetches invoices newest first with optional seller and status filters.
func (r *InvoiceRepo) List(ctx context.Context, params ports.InvoiceListParams) ([]domain.Invoice, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if params.SellerID != nil {
		conditions = append(conditions, fmt.Sprintf("seller_id = $%d", argIdx))
		args = append(args, *params.SellerID)
		argIdx++
	}
	if len(params.Statuses) > 0 {
		statuses := make([]string, len(params.Statuses))
		for i, st := range params.Statuses {
			statuses[i] = string(st)
		}
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", argIdx))
		args = append(args, statuses)
		argIdx++
	}
	if params.Unclaimed {
		conditions = append(conditions,
			"NOT EXISTS (SELECT 1 FROM bids WHERE bids.invoice_id = invoices.id AND bids.status IN ('ACCEPTED', 'FINANCED'))")
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM invoices "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM invoices %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		invoiceColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows, "scan invoice row")
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate invoice rows: %w", err)
	}
	return invoices, total, nil
}

func scanInvoice(row pgx.Row, op string) (*domain.Invoice, error) {
	inv := &domain.Invoice{}
	err := row.Scan(
		&inv.ID, &inv.SellerID, &inv.LenderID, &inv.InvoiceNumber, &inv.PONumber, &inv.SellerTaxIDHash,
		&inv.BuyerName, &inv.BuyerEmail, &inv.BuyerTaxIDEncrypted, &inv.BuyerTaxIDHash, &inv.TotalAmount,
		&inv.InvoiceDate, &inv.DueDate, &inv.ItemsSummary, &inv.FileRef, &inv.Status, &inv.RejectionReason,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	return notFound(inv, op, err)
}

var _ ports.InvoiceRepository = (*InvoiceRepo)(nil)
