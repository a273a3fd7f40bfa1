package postgres

import (
	"context"
	"fmt"

	"invoice-financing/internal/core/domain"
	"invoice-financing/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const bidColumns = `id, invoice_id, lender_id, interest_rate, amount, status,
	gateway_order_id, virtual_account_id, created_at, updated_at`

// BidRepo implements ports.BidRepository.
//
// Two partial unique indexes back the marketplace rules: one non-rejected bid
// per (invoice, lender), and one ACCEPTED or FINANCED bid per invoice.
type BidRepo struct {
	pool Pool
}

func NewBidRepo(pool Pool) *BidRepo {
	return &BidRepo{pool: pool}
}

func (r *BidRepo) Create(ctx context.Context, tx pgx.Tx, b *domain.Bid) error {
	query := `INSERT INTO bids (` + bidColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := tx.Exec(ctx, query,
		b.ID, b.InvoiceID, b.LenderID, b.InterestRate, b.Amount, b.Status,
		b.GatewayOrderID, b.VirtualAccountID, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return writeError("insert bid", err)
	}
	return nil
}

func (r *BidRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE id = $1`
	return scanBid(r.pool.QueryRow(ctx, query, id), "get bid by id")
}

// GetByIDForUpdate locks the bid row. This MUST be called within a transaction.
func (r *BidRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE id = $1 FOR UPDATE`
	return scanBid(tx.QueryRow(ctx, query, id), "get bid for update")
}

func (r *BidRepo) GetByVirtualAccount(ctx context.Context, virtualAccountID string) (*domain.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE virtual_account_id = $1`
	return scanBid(r.pool.QueryRow(ctx, query, virtualAccountID), "get bid by virtual account")
}

func (r *BidRepo) GetByVirtualAccountForUpdate(ctx context.Context, tx pgx.Tx, virtualAccountID string) (*domain.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE virtual_account_id = $1 FOR UPDATE`
	return scanBid(tx.QueryRow(ctx, query, virtualAccountID), "get bid by virtual account for update")
}

func (r *BidRepo) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]domain.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE invoice_id = $1 ORDER BY interest_rate ASC, created_at ASC`
	rows, err := r.pool.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	return collectBids(rows)
}

// ListByInvoiceForUpdate locks every bid of the invoice in a stable order.
func (r *BidRepo) ListByInvoiceForUpdate(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID) ([]domain.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE invoice_id = $1 ORDER BY interest_rate ASC, created_at ASC FOR UPDATE`
	rows, err := tx.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list bids for update: %w", err)
	}
	return collectBids(rows)
}

func (r *BidRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.BidStatus) error {
	tag, err := tx.Exec(ctx, `UPDATE bids SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return writeError("update bid status", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bid not found: %s", id)
	}
	return nil
}

func (r *BidRepo) RejectSiblings(ctx context.Context, tx pgx.Tx, invoiceID, acceptedID uuid.UUID) (int64, error) {
	query := `UPDATE bids SET status = 'REJECTED', updated_at = NOW()
		WHERE invoice_id = $1 AND id <> $2 AND status = 'PENDING'`
	tag, err := tx.Exec(ctx, query, invoiceID, acceptedID)
	if err != nil {
		return 0, fmt.Errorf("reject sibling bids: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *BidRepo) SetFundingOrder(ctx context.Context, tx pgx.Tx, id uuid.UUID, orderID, virtualAccountID string) error {
	query := `UPDATE bids SET gateway_order_id = $1, virtual_account_id = $2, updated_at = NOW() WHERE id = $3`
	tag, err := tx.Exec(ctx, query, orderID, virtualAccountID, id)
	if err != nil {
		return writeError("set funding order", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bid not found: %s", id)
	}
	return nil
}

func collectBids(rows pgx.Rows) ([]domain.Bid, error) {
	defer rows.Close()
	var bids []domain.Bid
	for rows.Next() {
		b, err := scanBid(rows, "scan bid row")
		if err != nil {
			return nil, err
		}
		bids = append(bids, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bid rows: %w", err)
	}
	return bids, nil
}

func scanBid(row pgx.Row, op string) (*domain.Bid, error) {
	b := &domain.Bid{}
	err := row.Scan(
		&b.ID, &b.InvoiceID, &b.LenderID, &b.InterestRate, &b.Amount, &b.Status,
		&b.GatewayOrderID, &b.VirtualAccountID, &b.CreatedAt, &b.UpdatedAt,
	)
	return notFound(b, op, err)
}

var _ ports.BidRepository = (*BidRepo)(nil)
