package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"invoice-financing/internal/core/domain"
	"invoice-financing/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = `id, reference_id, invoice_id, bid_id, lender_id, seller_id, amount, fee, currency,
	transaction_type, status, gateway_payment_id, gateway_notification_id, description, created_at, processed_at`

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a ledger entry within a database transaction. A repeated
// reference or gateway notification ID yields ports.ErrDuplicateKey.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.ReferenceID, t.InvoiceID, t.BidID, t.LenderID, t.SellerID,
		t.Amount, t.Fee, t.Currency, t.TransactionType, t.Status,
		t.GatewayPaymentID, t.GatewayNotificationID, t.Description, t.CreatedAt, t.ProcessedAt,
	)
	if err != nil {
		return writeError("insert transaction", err)
	}
	return nil
}

// GetByID fetches a transaction by UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransaction(r.pool.QueryRow(ctx, query, id), "get transaction by id")
}

func (r *TransactionRepo) GetByNotificationID(ctx context.Context, notificationID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE gateway_notification_id = $1`
	return scanTransaction(r.pool.QueryRow(ctx, query, notificationID), "get transaction by notification")
}

// ExistsByNotificationID re-checks a notification inside the settling transaction.
func (r *TransactionRepo) ExistsByNotificationID(ctx context.Context, tx pgx.Tx, notificationID string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM transactions WHERE gateway_notification_id = $1)`, notificationID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check notification: %w", err)
	}
	return exists, nil
}

func (r *TransactionRepo) GetFundingByBid(ctx context.Context, bidID uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE bid_id = $1 AND transaction_type = 'FUNDING_INFLOW' AND status = 'SUCCESS'
		ORDER BY created_at ASC LIMIT 1`
	return scanTransaction(r.pool.QueryRow(ctx, query, bidID), "get funding by bid")
}

// Finalize moves a PENDING entry to status. Only pending rows match the
// update, so a terminal entry is never rewritten.
func (r *TransactionRepo) Finalize(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus) error {
	if status == domain.TransactionStatusPending {
		return domain.ErrTransactionFinal
	}
	tag, err := tx.Exec(ctx,
		`UPDATE transactions SET status = $1, processed_at = NOW() WHERE id = $2 AND status = 'PENDING'`,
		status, id)
	if err != nil {
		return fmt.Errorf("finalize transaction: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current domain.TransactionStatus
	if err := tx.QueryRow(ctx, `SELECT status FROM transactions WHERE id = $1`, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("transaction not found: %s", id)
		}
		return fmt.Errorf("finalize transaction: %w", err)
	}
	return fmt.Errorf("transaction %s is %s: %w", id, current, domain.ErrTransactionFinal)
}

func (r *TransactionRepo) SumByInvoice(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID, txType domain.TransactionType) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE invoice_id = $1 AND transaction_type = $2 AND status = 'SUCCESS'`

	var sum int64
	if err := tx.QueryRow(ctx, query, invoiceID, txType).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum transactions: %w", err)
	}
	return sum, nil
}

// partyCondition scopes a query to the rows a party takes part in.
func partyCondition(party domain.Party, argIdx int) (string, error) {
	switch party.Role {
	case domain.RoleSeller:
		return fmt.Sprintf("seller_id = $%d", argIdx), nil
	case domain.RoleLender:
		return fmt.Sprintf("lender_id = $%d", argIdx), nil
	default:
		return "", fmt.Errorf("unknown party role %q", party.Role)
	}
}

// List fetches transactions with filtering and pagination.
func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	cond, err := partyCondition(params.Party, argIdx)
	if err != nil {
		return nil, 0, err
	}
	conditions = append(conditions, cond)
	args = append(args, params.Party.ID)
	argIdx++

	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}
	if params.Type != nil {
		conditions = append(conditions, fmt.Sprintf("transaction_type = $%d", argIdx))
		args = append(args, *params.Type)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM transactions "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM transactions %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows, "scan transaction row")
		if err != nil {
			return nil, 0, err
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, total, nil
}

// GetStats aggregates successful totals per transaction type for one party.
func (r *TransactionRepo) GetStats(ctx context.Context, party domain.Party) (*ports.LedgerStats, error) {
	cond, err := partyCondition(party, 1)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT
		COUNT(*) AS total,
		COALESCE(SUM(amount) FILTER (WHERE transaction_type = 'FUNDING_INFLOW' AND status = 'SUCCESS'), 0) AS funding,
		COALESCE(SUM(fee) FILTER (WHERE transaction_type = 'FUNDING_INFLOW' AND status = 'SUCCESS'), 0)
			+ COALESCE(SUM(amount) FILTER (WHERE transaction_type = 'PLATFORM_FEE' AND status = 'SUCCESS'), 0) AS fees,
		COALESCE(SUM(amount) FILTER (WHERE transaction_type = 'REPAYMENT_IN' AND status = 'SUCCESS'), 0) AS repaid,
		COALESCE(SUM(amount) FILTER (WHERE transaction_type = 'SETTLEMENT_OUT' AND status = 'SUCCESS'), 0) AS settled,
		COALESCE(SUM(amount) FILTER (WHERE transaction_type = 'WITHDRAWAL' AND status = 'SUCCESS'), 0) AS withdrawn
		FROM transactions WHERE %s`, cond)

	stats := &ports.LedgerStats{}
	err = r.pool.QueryRow(ctx, query, party.ID).Scan(
		&stats.TotalTransactions, &stats.FundingInflow, &stats.PlatformFees,
		&stats.RepaymentIn, &stats.SettlementOut, &stats.Withdrawn,
	)
	if err != nil {
		return nil, fmt.Errorf("get transaction stats: %w", err)
	}
	return stats, nil
}

func scanTransaction(row pgx.Row, op string) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	err := row.Scan(
		&t.ID, &t.ReferenceID, &t.InvoiceID, &t.BidID, &t.LenderID, &t.SellerID,
		&t.Amount, &t.Fee, &t.Currency, &t.TransactionType, &t.Status,
		&t.GatewayPaymentID, &t.GatewayNotificationID, &t.Description, &t.CreatedAt, &t.ProcessedAt,
	)
	return notFound(t, op, err)
}

var _ ports.TransactionRepository = (*TransactionRepo)(nil)
