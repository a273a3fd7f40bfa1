package handler

import (
	"invoice-financing/internal/adapter/http/dto"
	"invoice-financing/internal/core/domain"
	"invoice-financing/internal/core/ports"
	"invoice-financing/pkg/response"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles registration, login and profile endpoints.
type AuthHandler struct {
	authSvc ports.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authSvc ports.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// RegisterSeller handles POST /api/v1/auth/register/seller.
func (h *AuthHandler) RegisterSeller(c *gin.Context) {
	var req dto.RegisterSellerRequest
	if !bindJSON(c, &req, dto.SanitizeStruct) {
		return
	}

	seller, err := h.authSvc.RegisterSeller(c.Request.Context(), ports.RegisterSellerRequest{
		Email:        req.Email,
		Password:     req.Password,
		CompanyName:  req.CompanyName,
		BusinessType: req.BusinessType,
		TaxID:        req.TaxID,
		BankAccount:  req.BankAccount.ToInput(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.RegisteredResponse{
		ID:        seller.ID.String(),
		Email:     seller.Email,
		Role:      string(domain.RoleSeller),
		KYCStatus: string(seller.KYCStatus),
	})
}

// RegisterLender handles POST /api/v1/auth/register/lender.
func (h *AuthHandler) RegisterLender(c *gin.Context) {
	var req dto.RegisterLenderRequest
	if !bindJSON(c, &req, dto.SanitizeStruct) {
		return
	}

	lender, err := h.authSvc.RegisterLender(c.Request.Context(), ports.RegisterLenderRequest{
		Email:            req.Email,
		Password:         req.Password,
		OrganizationName: req.OrganizationName,
		TaxID:            req.TaxID,
		TotalCreditLimit: req.TotalCreditLimit,
		BankAccount:      req.BankAccount.ToInput(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.RegisteredResponse{
		ID:        lender.ID.String(),
		Email:     lender.Email,
		Role:      string(domain.RoleLender),
		KYCStatus: string(lender.KYCStatus),
	})
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if !bindJSON(c, &req, dto.SanitizeStruct) {
		return
	}

	session, err := h.authSvc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToSessionResponse(session))
}

// LoginExternal handles POST /api/v1/auth/login/external.
func (h *AuthHandler) LoginExternal(c *gin.Context) {
	var req dto.ExternalLoginRequest
	if !bindJSON(c, &req, dto.SanitizeStruct) {
		return
	}

	session, err := h.authSvc.LoginExternal(c.Request.Context(), req.IDToken)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToSessionResponse(session))
}

// UpdateBankAccount handles PUT /api/v1/me/bank-account.
func (h *AuthHandler) UpdateBankAccount(c *gin.Context) {
	party, ok := caller(c)
	if !ok {
		return
	}
	var req dto.BankAccountRequest
	if !bindJSON(c, &req, dto.SanitizeStruct) {
		return
	}

	if err := h.authSvc.UpdateBankAccount(c.Request.Context(), party, *req.ToInput()); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"updated": true})
}
