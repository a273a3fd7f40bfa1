package memory

import (
	"context"
	"fmt"
	"sort"

	"invoice-financing/internal/core/domain"
	"invoice-financing/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct{ s *Store }

func NewTransactionRepo(s *Store) *TransactionRepo { return &TransactionRepo{s: s} }

func (r *TransactionRepo) Create(_ context.Context, _ pgx.Tx, txn *domain.Transaction) error {
	return r.s.write(func(d *state) error {
		for _, v := range d.transactions {
			if v.ReferenceID == txn.ReferenceID {
				return fmt.Errorf("insert transaction: %w", ports.ErrDuplicateKey)
			}
			if txn.GatewayNotificationID != nil && v.GatewayNotificationID != nil &&
				*v.GatewayNotificationID == *txn.GatewayNotificationID {
				return fmt.Errorf("insert transaction: %w", ports.ErrDuplicateKey)
			}
		}
		d.transactions[txn.ID] = *txn
		return nil
	})
}

func (r *TransactionRepo) find(match func(domain.Transaction) bool) *domain.Transaction {
	var out *domain.Transaction
	r.s.read(func(d *state) {
		for _, v := range d.transactions {
			if match(v) {
				out = &v
				return
			}
		}
	})
	return out
}

func (r *TransactionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return r.find(func(v domain.Transaction) bool { return v.ID == id }), nil
}

func (r *TransactionRepo) GetByNotificationID(_ context.Context, notificationID string) (*domain.Transaction, error) {
	return r.find(func(v domain.Transaction) bool {
		return v.GatewayNotificationID != nil && *v.GatewayNotificationID == notificationID
	}), nil
}

func (r *TransactionRepo) ExistsByNotificationID(ctx context.Context, _ pgx.Tx, notificationID string) (bool, error) {
	t, err := r.GetByNotificationID(ctx, notificationID)
	return t != nil, err
}

func (r *TransactionRepo) GetFundingByBid(_ context.Context, bidID uuid.UUID) (*domain.Transaction, error) {
	return r.find(func(v domain.Transaction) bool {
		return v.BidID != nil && *v.BidID == bidID &&
			v.TransactionType == domain.TransactionTypeFundingInflow &&
			v.Status == domain.TransactionStatusSuccess
	}), nil
}

func (r *TransactionRepo) Finalize(_ context.Context, _ pgx.Tx, id uuid.UUID, status domain.TransactionStatus) error {
	return r.s.write(func(d *state) error {
		v, ok := d.transactions[id]
		if !ok {
			return fmt.Errorf("transaction %s: %w", id, pgx.ErrNoRows)
		}
		if err := v.Finalize(status, nowUTC()); err != nil {
			return err
		}
		d.transactions[id] = v
		return nil
	})
}

func (r *TransactionRepo) SumByInvoice(_ context.Context, _ pgx.Tx, invoiceID uuid.UUID, txType domain.TransactionType) (int64, error) {
	var sum int64
	r.s.read(func(d *state) {
		for _, v := range d.transactions {
			if v.InvoiceID != nil && *v.InvoiceID == invoiceID &&
				v.TransactionType == txType && v.Status == domain.TransactionStatusSuccess {
				sum += v.Amount
			}
		}
	})
	return sum, nil
}

func belongsTo(t domain.Transaction, p domain.Party) bool {
	switch p.Role {
	case domain.RoleSeller:
		return t.SellerID != nil && *t.SellerID == p.ID
	case domain.RoleLender:
		return t.LenderID != nil && *t.LenderID == p.ID
	}
	return false
}

func (r *TransactionRepo) List(_ context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	var matched []domain.Transaction
	r.s.read(func(d *state) {
		for _, v := range d.transactions {
			if !belongsTo(v, params.Party) {
				continue
			}
			if params.Status != nil && v.Status != *params.Status {
				continue
			}
			if params.Type != nil && v.TransactionType != *params.Type {
				continue
			}
			matched = append(matched, v)
		}
	})
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	start, end := paginate(params.Page, params.PageSize, len(matched))
	return matched[start:end], int64(len(matched)), nil
}

func (r *TransactionRepo) GetStats(_ context.Context, party domain.Party) (*ports.LedgerStats, error) {
	stats := &ports.LedgerStats{}
	r.s.read(func(d *state) {
		for _, v := range d.transactions {
			if !belongsTo(v, party) {
				continue
			}
			stats.TotalTransactions++
			if v.Status != domain.TransactionStatusSuccess {
				continue
			}
			switch v.TransactionType {
			case domain.TransactionTypeFundingInflow:
				stats.FundingInflow += v.Amount
				stats.PlatformFees += v.Fee
			case domain.TransactionTypePlatformFee:
				stats.PlatformFees += v.Amount
			case domain.TransactionTypeRepaymentIn:
				stats.RepaymentIn += v.Amount
			case domain.TransactionTypeSettlementOut:
				stats.SettlementOut += v.Amount
			case domain.TransactionTypeWithdrawal:
				stats.Withdrawn += v.Amount
			}
		}
	})
	return stats, nil
}
