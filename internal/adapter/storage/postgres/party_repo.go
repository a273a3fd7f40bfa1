package postgres

import (
	"context"
	"fmt"

	"invoice-financing/internal/core/domain"
	"invoice-financing/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const sellerColumns = `id, email, password_hash, company_name, business_type, tax_id_encrypted, tax_id_hash,
	bank_holder_name, bank_account_encrypted, bank_ifsc_encrypted, bank_account_hash,
	wallet_balance, trust_score, kyc_status, onboarded, created_at, updated_at`

// SellerRepo implements ports.SellerRepository.
type SellerRepo struct {
	pool Pool
}

func NewSellerRepo(pool Pool) *SellerRepo {
	return &SellerRepo{pool: pool}
}

func (r *SellerRepo) Create(ctx context.Context, s *domain.Seller) error {
	query := `INSERT INTO sellers (` + sellerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := r.pool.Exec(ctx, query,
		s.ID, s.Email, s.PasswordHash, s.CompanyName, s.BusinessType, s.TaxIDEncrypted, s.TaxIDHash,
		s.BankAccount.HolderName, s.BankAccount.AccountNumberEncrypted, s.BankAccount.IFSCEncrypted, s.BankAccount.AccountHash,
		s.WalletBalance, s.TrustScore, s.KYCStatus, s.Onboarded, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return writeError("insert seller", err)
	}
	return nil
}

func (r *SellerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Seller, error) {
	query := `SELECT ` + sellerColumns + ` FROM sellers WHERE id = $1`
	return scanSeller(r.pool.QueryRow(ctx, query, id), "get seller by id")
}

func (r *SellerRepo) GetByEmail(ctx context.Context, email string) (*domain.Seller, error) {
	query := `SELECT ` + sellerColumns + ` FROM sellers WHERE lower(email) = lower($1)`
	return scanSeller(r.pool.QueryRow(ctx, query, email), "get seller by email")
}

func (r *SellerRepo) GetByTaxIDHash(ctx context.Context, hash string) (*domain.Seller, error) {
	query := `SELECT ` + sellerColumns + ` FROM sellers WHERE tax_id_hash = $1`
	return scanSeller(r.pool.QueryRow(ctx, query, hash), "get seller by tax id")
}

// GetByIDForUpdate locks the seller row. This MUST be called within a transaction.
func (r *SellerRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Seller, error) {
	query := `SELECT ` + sellerColumns + ` FROM sellers WHERE id = $1 FOR UPDATE`
	return scanSeller(tx.QueryRow(ctx, query, id), "get seller for update")
}

// UpdateWalletBalance sets the balance; the table's CHECK rejects a negative value.
func (r *SellerRepo) UpdateWalletBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance int64) error {
	tag, err := tx.Exec(ctx, `UPDATE sellers SET wallet_balance = $1, updated_at = NOW() WHERE id = $2`, balance, id)
	if err != nil {
		return writeError("update seller balance", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("seller not found: %s", id)
	}
	return nil
}

// UpdateBankAccount replaces the payout details and marks the seller onboarded.
func (r *SellerRepo) UpdateBankAccount(ctx context.Context, tx pgx.Tx, id uuid.UUID, bank domain.BankAccount) error {
	query := `UPDATE sellers
		SET bank_holder_name = $1, bank_account_encrypted = $2, bank_ifsc_encrypted = $3, bank_account_hash = $4,
			onboarded = TRUE, updated_at = NOW()
		WHERE id = $5`
	tag, err := tx.Exec(ctx, query, bank.HolderName, bank.AccountNumberEncrypted, bank.IFSCEncrypted, bank.AccountHash, id)
	if err != nil {
		return writeError("update seller bank account", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("seller not found: %s", id)
	}
	return nil
}

func scanSeller(row pgx.Row, op string) (*domain.Seller, error) {
	s := &domain.Seller{Role: domain.RoleSeller}
	err := row.Scan(
		&s.ID, &s.Email, &s.PasswordHash, &s.CompanyName, &s.BusinessType, &s.TaxIDEncrypted, &s.TaxIDHash,
		&s.BankAccount.HolderName, &s.BankAccount.AccountNumberEncrypted, &s.BankAccount.IFSCEncrypted, &s.BankAccount.AccountHash,
		&s.WalletBalance, &s.TrustScore, &s.KYCStatus, &s.Onboarded, &s.CreatedAt, &s.UpdatedAt,
	)
	return notFound(s, op, err)
}

const lenderColumns = `id, email, password_hash, organization_name, tax_id_encrypted, tax_id_hash,
	bank_holder_name, bank_account_encrypted, bank_ifsc_encrypted, bank_account_hash,
	total_credit_limit, utilized_limit, wallet_balance, kyc_status, created_at, updated_at`

// LenderRepo implements ports.LenderRepository.
type LenderRepo struct {
	pool Pool
}

func NewLenderRepo(pool Pool) *LenderRepo {
	return &LenderRepo{pool: pool}
}

func (r *LenderRepo) Create(ctx context.Context, l *domain.Lender) error {
	query := `INSERT INTO lenders (` + lenderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := r.pool.Exec(ctx, query,
		l.ID, l.Email, l.PasswordHash, l.OrganizationName, l.TaxIDEncrypted, l.TaxIDHash,
		l.BankAccount.HolderName, l.BankAccount.AccountNumberEncrypted, l.BankAccount.IFSCEncrypted, l.BankAccount.AccountHash,
		l.TotalCreditLimit, l.UtilizedLimit, l.WalletBalance, l.KYCStatus, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return writeError("insert lender", err)
	}
	return nil
}

func (r *LenderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Lender, error) {
	query := `SELECT ` + lenderColumns + ` FROM lenders WHERE id = $1`
	return scanLender(r.pool.QueryRow(ctx, query, id), "get lender by id")
}

func (r *LenderRepo) GetByEmail(ctx context.Context, email string) (*domain.Lender, error) {
	query := `SELECT ` + lenderColumns + ` FROM lenders WHERE lower(email) = lower($1)`
	return scanLender(r.pool.QueryRow(ctx, query, email), "get lender by email")
}

func (r *LenderRepo) GetByTaxIDHash(ctx context.Context, hash string) (*domain.Lender, error) {
	query := `SELECT ` + lenderColumns + ` FROM lenders WHERE tax_id_hash = $1`
	return scanLender(r.pool.QueryRow(ctx, query, hash), "get lender by tax id")
}

// GetByIDForUpdate locks the lender row. This MUST be called within a transaction.
func (r *LenderRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Lender, error) {
	query := `SELECT ` + lenderColumns + ` FROM lenders WHERE id = $1 FOR UPDATE`
	return scanLender(tx.QueryRow(ctx, query, id), "get lender for update")
}

// UpdateBalances writes the credit line usage and wallet together.
func (r *LenderRepo) UpdateBalances(ctx context.Context, tx pgx.Tx, id uuid.UUID, utilizedLimit, walletBalance int64) error {
	query := `UPDATE lenders SET utilized_limit = $1, wallet_balance = $2, updated_at = NOW() WHERE id = $3`
	tag, err := tx.Exec(ctx, query, utilizedLimit, walletBalance, id)
	if err != nil {
		return writeError("update lender balances", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lender not found: %s", id)
	}
	return nil
}

func (r *LenderRepo) UpdateBankAccount(ctx context.Context, tx pgx.Tx, id uuid.UUID, bank domain.BankAccount) error {
	query := `UPDATE lenders
		SET bank_holder_name = $1, bank_account_encrypted = $2, bank_ifsc_encrypted = $3, bank_account_hash = $4,
			updated_at = NOW()
		WHERE id = $5`
	tag, err := tx.Exec(ctx, query, bank.HolderName, bank.AccountNumberEncrypted, bank.IFSCEncrypted, bank.AccountHash, id)
	if err != nil {
		return writeError("update lender bank account", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lender not found: %s", id)
	}
	return nil
}

func scanLender(row pgx.Row, op string) (*domain.Lender, error) {
	l := &domain.Lender{Role: domain.RoleLender}
	err := row.Scan(
		&l.ID, &l.Email, &l.PasswordHash, &l.OrganizationName, &l.TaxIDEncrypted, &l.TaxIDHash,
		&l.BankAccount.HolderName, &l.BankAccount.AccountNumberEncrypted, &l.BankAccount.IFSCEncrypted, &l.BankAccount.AccountHash,
		&l.TotalCreditLimit, &l.UtilizedLimit, &l.WalletBalance, &l.KYCStatus, &l.CreatedAt, &l.UpdatedAt,
	)
	return notFound(l, op, err)
}

var (
	_ ports.SellerRepository = (*SellerRepo)(nil)
	_ ports.LenderRepository = (*LenderRepo)(nil)
)
