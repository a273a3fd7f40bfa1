package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"invoice-financing/internal/core/domain"
	"invoice-financing/internal/core/ports"
	"invoice-financing/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const defaultTrustScore = 50

// AuthServiceImpl implements ports.AuthService.
type AuthServiceImpl struct {
	sellerRepo ports.SellerRepository
	lenderRepo ports.LenderRepository
	transactor ports.DBTransactor
	hashSvc    ports.HashService
	vault      ports.VaultService
	tokenSvc   ports.TokenService
	registry   ports.TaxRegistry
	identity   ports.IdentityVerifier
	audit      ports.AuditService
	log        zerolog.Logger
}

// NewAuthService creates a new AuthServiceImpl. identity may be nil when no
// external provider is configured.
func NewAuthService(
	sellerRepo ports.SellerRepository,
	lenderRepo ports.LenderRepository,
	transactor ports.DBTransactor,
	hashSvc ports.HashService,
	vault ports.VaultService,
	tokenSvc ports.TokenService,
	registry ports.TaxRegistry,
	identity ports.IdentityVerifier,
	audit ports.AuditService,
	log zerolog.Logger,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		sellerRepo: sellerRepo,
		lenderRepo: lenderRepo,
		transactor: transactor,
		hashSvc:    hashSvc,
		vault:      vault,
		tokenSvc:   tokenSvc,
		registry:   registry,
		identity:   identity,
		audit:      audit,
		log:        log,
	}
}

// RegisterSeller creates a seller account. KYC starts as partial when the
// registry already knows the seller's tax ID.
func (s *AuthServiceImpl) RegisterSeller(ctx context.Context, req ports.RegisterSellerRequest) (*domain.Seller, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" || req.CompanyName == "" || req.TaxID == "" {
		return nil, apperror.Validation("email, password, company name and tax ID are required")
	}

	taxHash := s.vault.BlindIndex(req.TaxID)
	if err := s.ensureEmailFree(ctx, email); err != nil {
		return nil, err
	}
	existing, err := s.sellerRepo.GetByTaxIDHash(ctx, taxHash)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check seller tax ID: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrDuplicateIdentity()
	}

	passwordHash, err := s.hashSvc.Hash(req.Password)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash password: %w", err))
	}
	taxEnc, err := s.vault.Encrypt(req.TaxID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("encrypt tax ID: %w", err))
	}
	bank, err := s.sealBankAccount(req.BankAccount)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	seller := &domain.Seller{
		ID:             uuid.New(),
		Email:          email,
		PasswordHash:   passwordHash,
		CompanyName:    req.CompanyName,
		BusinessType:   req.BusinessType,
		TaxIDEncrypted: taxEnc,
		TaxIDHash:      taxHash,
		BankAccount:    bank,
		TrustScore:     defaultTrustScore,
		KYCStatus:      s.initialKYC(ctx, req.TaxID),
		Onboarded:      bank.IsSet(),
		Role:           domain.RoleSeller,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.sellerRepo.Create(ctx, seller); err != nil {
		if errors.Is(err, ports.ErrDuplicateKey) {
			return nil, apperror.ErrDuplicateIdentity()
		}
		return nil, apperror.InternalError(fmt.Errorf("create seller: %w", err))
	}

	s.log.Info().Str("seller_id", seller.ID.String()).Str("kyc_status", string(seller.KYCStatus)).Msg("seller registered")
	s.audit.Log(ctx, &domain.AuditLog{
		ActorID:      &seller.ID,
		ActorRole:    string(domain.RoleSeller),
		Action:       domain.AuditActionRegister,
		ResourceType: "seller",
		ResourceID:   seller.ID.String(),
	})
	return seller, nil
}

// RegisterLender creates a lender account with its credit limit.
func (s *AuthServiceImpl) RegisterLender(ctx context.Context, req ports.RegisterLenderRequest) (*domain.Lender, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" || req.OrganizationName == "" || req.TaxID == "" {
		return nil, apperror.Validation("email, password, organization name and tax ID are required")
	}
	if req.TotalCreditLimit < 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	taxHash := s.vault.BlindIndex(req.TaxID)
	if err := s.ensureEmailFree(ctx, email); err != nil {
		return nil, err
	}
	existing, err := s.lenderRepo.GetByTaxIDHash(ctx, taxHash)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check lender tax ID: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrDuplicateIdentity()
	}

	passwordHash, err := s.hashSvc.Hash(req.Password)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash password: %w", err))
	}
	taxEnc, err := s.vault.Encrypt(req.TaxID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("encrypt tax ID: %w", err))
	}
	bank, err := s.sealBankAccount(req.BankAccount)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	lender := &domain.Lender{
		ID:               uuid.New(),
		Email:            email,
		PasswordHash:     passwordHash,
		OrganizationName: req.OrganizationName,
		TaxIDEncrypted:   taxEnc,
		TaxIDHash:        taxHash,
		BankAccount:      bank,
		TotalCreditLimit: req.TotalCreditLimit,
		KYCStatus:        domain.KYCPending,
		Role:             domain.RoleLender,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.lenderRepo.Create(ctx, lender); err != nil {
		if errors.Is(err, ports.ErrDuplicateKey) {
			return nil, apperror.ErrDuplicateIdentity()
		}
		return nil, apperror.InternalError(fmt.Errorf("create lender: %w", err))
	}

	s.log.Info().Str("lender_id", lender.ID.String()).Int64("credit_limit", lender.TotalCreditLimit).Msg("lender registered")
	s.audit.Log(ctx, &domain.AuditLog{
		ActorID:      &lender.ID,
		ActorRole:    string(domain.RoleLender),
		Action:       domain.AuditActionRegister,
		ResourceType: "lender",
		ResourceID:   lender.ID.String(),
	})
	return lender, nil
}

// Login validates credentials and issues a session token.
func (s *AuthServiceImpl) Login(ctx context.Context, email, password string) (*ports.Session, error) {
	party, passwordHash, err := s.findByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if party == nil {
		// Unknown emails pay the same hashing cost as wrong passwords.
		_, _ = s.hashSvc.Hash(password)
		return nil, apperror.ErrInvalidCredentials()
	}

	valid, err := s.hashSvc.Verify(password, passwordHash)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("verify password: %w", err))
	}
	if !valid {
		return nil, apperror.ErrInvalidCredentials()
	}

	return s.issue(ctx, *party, "password")
}

// LoginExternal accepts an ID token from any configured identity provider and
// maps its verified email to a registered account.
func (s *AuthServiceImpl) LoginExternal(ctx context.Context, idToken string) (*ports.Session, error) {
	if s.identity == nil {
		return nil, apperror.ErrInvalidToken()
	}
	identity, err := s.identity.Verify(ctx, idToken)
	if err != nil {
		return nil, apperror.ErrInvalidToken()
	}

	party, _, err := s.findByEmail(ctx, normalizeEmail(identity.Email))
	if err != nil {
		return nil, err
	}
	if party == nil {
		return nil, apperror.ErrInvalidCredentials()
	}
	return s.issue(ctx, *party, identity.Provider)
}

// UpdateBankAccount re-encrypts the payout details and recomputes their blind index.
func (s *AuthServiceImpl) UpdateBankAccount(ctx context.Context, party domain.Party, input ports.BankAccountInput) error {
	if input.HolderName == "" || input.AccountNumber == "" || input.IFSC == "" {
		return apperror.Validation("holder name, account number and IFSC are required")
	}
	bank, err := s.sealBankAccount(&input)
	if err != nil {
		return err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	switch party.Role {
	case domain.RoleSeller:
		err = s.updateSellerBank(ctx, dbTx, party.ID, bank)
	case domain.RoleLender:
		err = s.updateLenderBank(ctx, dbTx, party.ID, bank)
	default:
		return apperror.ErrForbidden()
	}
	if err != nil {
		return err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.audit.Log(ctx, &domain.AuditLog{
		ActorID:      &party.ID,
		ActorRole:    string(party.Role),
		Action:       domain.AuditActionUpdateBank,
		ResourceType: string(party.Role),
		ResourceID:   party.ID.String(),
	})
	return nil
}

func (s *AuthServiceImpl) updateSellerBank(ctx context.Context, tx pgx.Tx, id uuid.UUID, bank domain.BankAccount) error {
	seller, err := s.sellerRepo.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock seller: %w", err))
	}
	if seller == nil {
		return apperror.ErrNotFound("Seller")
	}
	if err := s.sellerRepo.UpdateBankAccount(ctx, tx, id, bank); err != nil {
		return apperror.InternalError(fmt.Errorf("update seller bank: %w", err))
	}
	return nil
}

func (s *AuthServiceImpl) updateLenderBank(ctx context.Context, tx pgx.Tx, id uuid.UUID, bank domain.BankAccount) error {
	lender, err := s.lenderRepo.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock lender: %w", err))
	}
	if lender == nil {
		return apperror.ErrNotFound("Lender")
	}
	if err := s.lenderRepo.UpdateBankAccount(ctx, tx, id, bank); err != nil {
		return apperror.InternalError(fmt.Errorf("update lender bank: %w", err))
	}
	return nil
}

// ensureEmailFree checks both account tables; an email names one identity.
func (s *AuthServiceImpl) ensureEmailFree(ctx context.Context, email string) error {
	party, _, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	if party != nil {
		return apperror.ErrDuplicateIdentity()
	}
	return nil
}

// findByEmail looks up sellers first, then lenders.
func (s *AuthServiceImpl) findByEmail(ctx context.Context, email string) (*domain.Party, string, error) {
	seller, err := s.sellerRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", apperror.InternalError(fmt.Errorf("find seller: %w", err))
	}
	if seller != nil {
		return &domain.Party{ID: seller.ID, Role: seller.Role}, seller.PasswordHash, nil
	}

	lender, err := s.lenderRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", apperror.InternalError(fmt.Errorf("find lender: %w", err))
	}
	if lender != nil {
		return &domain.Party{ID: lender.ID, Role: lender.Role}, lender.PasswordHash, nil
	}
	return nil, "", nil
}

func (s *AuthServiceImpl) issue(ctx context.Context, party domain.Party, method string) (*ports.Session, error) {
	token, expiresAt, err := s.tokenSvc.Generate(party.ID, party.Role)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}

	s.audit.Log(ctx, &domain.AuditLog{
		ActorID:      &party.ID,
		ActorRole:    string(party.Role),
		Action:       domain.AuditActionLogin,
		ResourceType: string(party.Role),
		ResourceID:   party.ID.String(),
		Details:      fmt.Sprintf(`{"method":%q}`, method),
	})

	return &ports.Session{
		Token:     token,
		ExpiresAt: expiresAt,
		SubjectID: party.ID,
		Role:      party.Role,
	}, nil
}

// initialKYC never blocks registration on a registry outage.
func (s *AuthServiceImpl) initialKYC(ctx context.Context, taxID string) domain.KYCStatus {
	if s.registry == nil {
		return domain.KYCPending
	}
	found, err := s.registry.Lookup(ctx, taxID)
	if err != nil {
		s.log.Warn().Err(err).Msg("tax registry unavailable during registration")
		return domain.KYCPending
	}
	if found {
		return domain.KYCPartial
	}
	return domain.KYCPending
}

func (s *AuthServiceImpl) sealBankAccount(input *ports.BankAccountInput) (domain.BankAccount, error) {
	if input == nil || input.AccountNumber == "" {
		return domain.BankAccount{}, nil
	}
	accountEnc, err := s.vault.Encrypt(input.AccountNumber)
	if err != nil {
		return domain.BankAccount{}, apperror.InternalError(fmt.Errorf("encrypt account number: %w", err))
	}
	ifscEnc, err := s.vault.Encrypt(strings.ToUpper(input.IFSC))
	if err != nil {
		return domain.BankAccount{}, apperror.InternalError(fmt.Errorf("encrypt IFSC: %w", err))
	}
	return domain.BankAccount{
		HolderName:             input.HolderName,
		AccountNumberEncrypted: accountEnc,
		IFSCEncrypted:          ifscEnc,
		AccountHash:            s.vault.BlindIndex(input.AccountNumber),
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
