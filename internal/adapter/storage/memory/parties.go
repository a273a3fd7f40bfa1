package memory

import (
	"context"
	"fmt"
	"strings"

	"invoice-financing/internal/core/domain"
	"invoice-financing/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SellerRepo implements ports.SellerRepository.
type SellerRepo struct{ s *Store }

func NewSellerRepo(s *Store) *SellerRepo { return &SellerRepo{s: s} }

func (r *SellerRepo) Create(_ context.Context, seller *domain.Seller) error {
	return r.s.writeOutsideTx(func(d *state) error {
		for _, existing := range d.sellers {
			if strings.EqualFold(existing.Email, seller.Email) || existing.TaxIDHash == seller.TaxIDHash {
				return fmt.Errorf("insert seller: %w", ports.ErrDuplicateKey)
			}
		}
		d.sellers[seller.ID] = *seller
		return nil
	})
}

func (r *SellerRepo) find(match func(domain.Seller) bool) *domain.Seller {
	var out *domain.Seller
	r.s.read(func(d *state) {
		for _, v := range d.sellers {
			if match(v) {
				c := v
				out = &c
				return
			}
		}
	})
	return out
}

func (r *SellerRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Seller, error) {
	return r.find(func(v domain.Seller) bool { return v.ID == id }), nil
}

func (r *SellerRepo) GetByEmail(_ context.Context, email string) (*domain.Seller, error) {
	return r.find(func(v domain.Seller) bool { return strings.EqualFold(v.Email, email) }), nil
}

func (r *SellerRepo) GetByTaxIDHash(_ context.Context, hash string) (*domain.Seller, error) {
	return r.find(func(v domain.Seller) bool { return v.TaxIDHash == hash }), nil
}

func (r *SellerRepo) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*domain.Seller, error) {
	return r.GetByID(ctx, id)
}

func (r *SellerRepo) UpdateWalletBalance(_ context.Context, _ pgx.Tx, id uuid.UUID, balance int64) error {
	if balance < 0 {
		return fmt.Errorf("update seller wallet: %w", domain.ErrInsufficientBalance)
	}
	return r.s.write(func(d *state) error {
		v, ok := d.sellers[id]
		if !ok {
			return fmt.Errorf("seller %s: %w", id, pgx.ErrNoRows)
		}
		v.WalletBalance = balance
		d.sellers[id] = v
		return nil
	})
}

func (r *SellerRepo) UpdateBankAccount(_ context.Context, _ pgx.Tx, id uuid.UUID, bank domain.BankAccount) error {
	return r.s.write(func(d *state) error {
		v, ok := d.sellers[id]
		if !ok {
			return fmt.Errorf("seller %s: %w", id, pgx.ErrNoRows)
		}
		v.BankAccount = bank
		v.Onboarded = true
		d.sellers[id] = v
		return nil
	})
}

// LenderRepo implements ports.LenderRepository.
type LenderRepo struct{ s *Store }

func NewLenderRepo(s *Store) *LenderRepo { return &LenderRepo{s: s} }

func (r *LenderRepo) Create(_ context.Context, lender *domain.Lender) error {
	return r.s.writeOutsideTx(func(d *state) error {
		for _, existing := range d.lenders {
			if strings.EqualFold(existing.Email, lender.Email) || existing.TaxIDHash == lender.TaxIDHash {
				return fmt.Errorf("insert lender: %w", ports.ErrDuplicateKey)
			}
		}
		d.lenders[lender.ID] = *lender
		return nil
	})
}

func (r *LenderRepo) find(match func(domain.Lender) bool) *domain.Lender {
	var out *domain.Lender
	r.s.read(func(d *state) {
		for _, v := range d.lenders {
			if match(v) {
				c := v
				out = &c
				return
			}
		}
	})
	return out
}

func (r *LenderRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Lender, error) {
	return r.find(func(v domain.Lender) bool { return v.ID == id }), nil
}

func (r *LenderRepo) GetByEmail(_ context.Context, email string) (*domain.Lender, error) {
	return r.find(func(v domain.Lender) bool { return strings.EqualFold(v.Email, email) }), nil
}

func (r *LenderRepo) GetByTaxIDHash(_ context.Context, hash string) (*domain.Lender, error) {
	return r.find(func(v domain.Lender) bool { return v.TaxIDHash == hash }), nil
}

func (r *LenderRepo) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*domain.Lender, error) {
	return r.GetByID(ctx, id)
}

// UpdateBalances enforces the same checks as the lenders table constraints.
func (r *LenderRepo) UpdateBalances(_ context.Context, _ pgx.Tx, id uuid.UUID, utilizedLimit, walletBalance int64) error {
	return r.s.write(func(d *state) error {
		v, ok := d.lenders[id]
		if !ok {
			return fmt.Errorf("lender %s: %w", id, pgx.ErrNoRows)
		}
		if utilizedLimit < 0 || utilizedLimit > v.TotalCreditLimit {
			return fmt.Errorf("update lender limits: %w", domain.ErrCreditLimitExceeded)
		}
		if walletBalance < 0 {
			return fmt.Errorf("update lender wallet: %w", domain.ErrInsufficientBalance)
		}
		v.UtilizedLimit = utilizedLimit
		v.WalletBalance = walletBalance
		d.lenders[id] = v
		return nil
	})
}

func (r *LenderRepo) UpdateBankAccount(_ context.Context, _ pgx.Tx, id uuid.UUID, bank domain.BankAccount) error {
	return r.s.write(func(d *state) error {
		v, ok := d.lenders[id]
		if !ok {
			return fmt.Errorf("lender %s: %w", id, pgx.ErrNoRows)
		}
		v.BankAccount = bank
		d.lenders[id] = v
		return nil
	})
}
