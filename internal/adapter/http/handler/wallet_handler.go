package handler

import (
	"invoice-financing/internal/adapter/http/dto"
	"invoice-financing/internal/core/domain"
	"invoice-financing/internal/core/ports"
	"invoice-financing/pkg/apperror"
	"invoice-financing/pkg/response"

	"github.com/gin-gonic/gin"
)

var (
	transactionStatuses = map[string]domain.TransactionStatus{
		string(domain.TransactionStatusPending): domain.TransactionStatusPending,
		string(domain.TransactionStatusSuccess): domain.TransactionStatusSuccess,
		string(domain.TransactionStatusFailed):  domain.TransactionStatusFailed,
	}
	transactionTypes = map[string]domain.TransactionType{
		string(domain.TransactionTypeFundingInflow): domain.TransactionTypeFundingInflow,
		string(domain.TransactionTypePlatformFee):   domain.TransactionTypePlatformFee,
		string(domain.TransactionTypeDisbursement):  domain.TransactionTypeDisbursement,
		string(domain.TransactionTypeWithdrawal):    domain.TransactionTypeWithdrawal,
		string(domain.TransactionTypeRepaymentIn):   domain.TransactionTypeRepaymentIn,
		string(domain.TransactionTypeSettlementOut): domain.TransactionTypeSettlementOut,
	}
)

// WalletHandler handles wallet reads, withdrawals and repayments.
type WalletHandler struct {
	ledgerSvc ports.LedgerService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledgerSvc ports.LedgerService) *WalletHandler {
	return &WalletHandler{ledgerSvc: ledgerSvc}
}

// GetWallet handles GET /api/v1/wallet.
func (h *WalletHandler) GetWallet(c *gin.Context) {
	party, ok := caller(c)
	if !ok {
		return
	}

	wallet, err := h.ledgerSvc.GetWallet(c.Request.Context(), party)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToWalletResponse(wallet))
}

// ListTransactions handles GET /api/v1/wallet/transactions.
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	party, ok := caller(c)
	if !ok {
		return
	}
	page, pageSize := pagination(c)
	params := ports.TransactionListParams{Party: party, Page: page, PageSize: pageSize}

	if s := c.Query("status"); s != "" {
		status, known := transactionStatuses[s]
		if !known {
			response.Error(c, apperror.Validation("unknown status filter"))
			return
		}
		params.Status = &status
	}
	if t := c.Query("type"); t != "" {
		txType, known := transactionTypes[t]
		if !known {
			response.Error(c, apperror.Validation("unknown type filter"))
			return
		}
		params.Type = &txType
	}

	txns, total, err := h.ledgerSvc.ListTransactions(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, dto.ToTransactionResponses(txns), page, pageSize, total)
}

// Withdraw handles POST /api/v1/wallet/withdraw.
func (h *WalletHandler) Withdraw(c *gin.Context) {
	party, ok := caller(c)
	if !ok {
		return
	}
	var req dto.WithdrawRequest
	if !bindJSON(c, &req, nil) {
		return
	}

	txn, err := h.ledgerSvc.Withdraw(c.Request.Context(), party, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToTransactionResponse(txn))
}

// Repay handles POST /api/v1/invoices/:id/repay.
func (h *WalletHandler) Repay(c *gin.Context) {
	party, ok := caller(c)
	if !ok {
		return
	}
	invoiceID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.RepayRequest
	if !bindJSON(c, &req, nil) {
		return
	}

	result, err := h.ledgerSvc.Repay(c.Request.Context(), party.ID, invoiceID, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToRepaymentResponse(result))
}
