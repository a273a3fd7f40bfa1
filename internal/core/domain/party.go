package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is the stored account type. It is set once at registration and never inferred.
type Role string

const (
	RoleSeller Role = "seller"
	RoleLender Role = "lender"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleSeller || r == RoleLender
}

// KYCStatus tracks identity verification of a seller or lender.
type KYCStatus string

const (
	KYCPending  KYCStatus = "pending"
	KYCPartial  KYCStatus = "partial"
	KYCVerified KYCStatus = "verified"
	KYCRejected KYCStatus = "rejected"
)

// BankAccount holds payout details. Sensitive fields are stored encrypted;
// AccountHash is the blind index of the account number.
type BankAccount struct {
	HolderName             string `json:"holder_name"`
	AccountNumberEncrypted string `json:"-"`
	IFSCEncrypted          string `json:"-"`
	AccountHash            string `json:"-"`
}

// IsSet reports whether payout details have been provided.
func (b BankAccount) IsSet() bool {
	return b.AccountNumberEncrypted != ""
}

// Seller is a business that submits invoices for financing.
type Seller struct {
	ID             uuid.UUID   `json:"id"`
	Email          string      `json:"email"`
	PasswordHash   string      `json:"-"`
	CompanyName    string      `json:"company_name"`
	BusinessType   string      `json:"business_type"`
	TaxIDEncrypted string      `json:"-"`
	TaxIDHash      string      `json:"-"`
	BankAccount    BankAccount `json:"bank_account"`
	WalletBalance  int64       `json:"wallet_balance"` // minor units
	TrustScore     int         `json:"trust_score"`
	KYCStatus      KYCStatus   `json:"kyc_status"`
	Onboarded      bool        `json:"onboarded"`
	Role           Role        `json:"role"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Lender funds invoices within a credit limit.
type Lender struct {
	ID               uuid.UUID   `json:"id"`
	Email            string      `json:"email"`
	PasswordHash     string      `json:"-"`
	OrganizationName string      `json:"organization_name"`
	TaxIDEncrypted   string      `json:"-"`
	TaxIDHash        string      `json:"-"`
	BankAccount      BankAccount `json:"bank_account"`
	TotalCreditLimit int64       `json:"total_credit_limit"`
	UtilizedLimit    int64       `json:"utilized_limit"`
	WalletBalance    int64       `json:"wallet_balance"`
	KYCStatus        KYCStatus   `json:"kyc_status"`
	Role             Role        `json:"role"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// AvailableLimit is the credit not yet committed to accepted bids.
func (l *Lender) AvailableLimit() int64 {
	return l.TotalCreditLimit - l.UtilizedLimit
}

// CanCommit reports whether amount fits in the remaining credit limit.
func (l *Lender) CanCommit(amount int64) bool {
	return amount > 0 && l.UtilizedLimit+amount <= l.TotalCreditLimit
}

// Commit reserves amount against the credit limit.
func (l *Lender) Commit(amount int64) error {
	if !l.CanCommit(amount) {
		return ErrCreditLimitExceeded
	}
	l.UtilizedLimit += amount
	return nil
}

// Release returns amount to the credit limit once a financing is repaid.
func (l *Lender) Release(amount int64) {
	l.UtilizedLimit -= amount
	if l.UtilizedLimit < 0 {
		l.UtilizedLimit = 0
	}
}

// Party identifies the owner of a wallet for ledger reads and withdrawals.
type Party struct {
	ID   uuid.UUID
	Role Role
}
