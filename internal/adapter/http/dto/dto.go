package dto

import (
	"time"

	"invoice-financing/internal/core/domain"
	"invoice-financing/internal/core/ports"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// --- Auth ---

type BankAccountRequest struct {
	HolderName    string `json:"holder_name" binding:"required,max=120"`
	AccountNumber string `json:"account_number" binding:"required,numeric,min=6,max=20" sanitize:"-"`
	IFSC          string `json:"ifsc" binding:"required,ifsc" sanitize:"-"`
}

func (b *BankAccountRequest) ToInput() *ports.BankAccountInput {
	if b == nil {
		return nil
	}
	return &ports.BankAccountInput{HolderName: b.HolderName, AccountNumber: b.AccountNumber, IFSC: b.IFSC}
}

type RegisterSellerRequest struct {
	Email        string              `json:"email" binding:"required,email,max=254"`
	Password     string              `json:"password" binding:"required,min=8,max=128" sanitize:"-"`
	CompanyName  string              `json:"company_name" binding:"required,max=200"`
	BusinessType string              `json:"business_type" binding:"omitempty,max=60"`
	TaxID        string              `json:"tax_id" binding:"required,gstin" sanitize:"-"`
	BankAccount  *BankAccountRequest `json:"bank_account,omitempty"`
}

type RegisterLenderRequest struct {
	Email            string              `json:"email" binding:"required,email,max=254"`
	Password         string              `json:"password" binding:"required,min=8,max=128" sanitize:"-"`
	OrganizationName string              `json:"organization_name" binding:"required,max=200"`
	TaxID            string              `json:"tax_id" binding:"required,gstin" sanitize:"-"`
	TotalCreditLimit int64               `json:"total_credit_limit" binding:"required,gt=0"`
	BankAccount      *BankAccountRequest `json:"bank_account,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required" sanitize:"-"`
}

type ExternalLoginRequest struct {
	IDToken string `json:"id_token" binding:"required" sanitize:"-"`
}

type SessionResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"` // Unix timestamp
	SubjectID string `json:"subject_id"`
	Role      string `json:"role"`
}

func ToSessionResponse(s *ports.Session) SessionResponse {
	return SessionResponse{
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt.Unix(),
		SubjectID: s.SubjectID.String(),
		Role:      string(s.Role),
	}
}

type RegisteredResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	KYCStatus string `json:"kyc_status"`
}

// --- Invoices ---

type ExtractRequest struct {
	FileRef string `json:"file_ref" binding:"required,max=512"`
}

type SubmitInvoiceRequest struct {
	InvoiceNumber string  `json:"invoice_number" binding:"required,max=64"`
	PONumber      *string `json:"po_number,omitempty" binding:"omitempty,max=64"`
	SellerTaxID   string  `json:"seller_tax_id" binding:"omitempty,gstin" sanitize:"-"`
	BuyerTaxID    string  `json:"buyer_tax_id" binding:"required,gstin" sanitize:"-"`
	BuyerName     string  `json:"buyer_name" binding:"required,max=200"`
	BuyerEmail    *string `json:"buyer_email,omitempty" binding:"omitempty,email"`
	TotalAmount   int64   `json:"total_amount" binding:"required,gt=0"`
	InvoiceDate   string  `json:"invoice_date" binding:"required,datetime=2006-01-02"`
	DueDate       string  `json:"due_date" binding:"required,datetime=2006-01-02"`
	ItemsSummary  string  `json:"items_summary" binding:"omitempty,max=2000"`
	FileRef       string  `json:"file_ref" binding:"required,max=512"`
}

// ToDraft converts the request; dates were already checked by binding.
func (r *SubmitInvoiceRequest) ToDraft() domain.InvoiceDraft {
	invoiceDate, _ := time.Parse(DateLayout, r.InvoiceDate)
	dueDate, _ := time.Parse(DateLayout, r.DueDate)
	return domain.InvoiceDraft{
		InvoiceNumber: r.InvoiceNumber,
		PONumber:      r.PONumber,
		SellerTaxID:   r.SellerTaxID,
		BuyerTaxID:    r.BuyerTaxID,
		BuyerName:     r.BuyerName,
		BuyerEmail:    r.BuyerEmail,
		TotalAmount:   r.TotalAmount,
		InvoiceDate:   invoiceDate,
		DueDate:       dueDate,
		ItemsSummary:  r.ItemsSummary,
		FileRef:       r.FileRef,
	}
}

type InvoiceResponse struct {
	ID              string  `json:"id"`
	SellerID        string  `json:"seller_id"`
	LenderID        *string `json:"lender_id,omitempty"`
	InvoiceNumber   string  `json:"invoice_number"`
	PONumber        *string `json:"po_number,omitempty"`
	BuyerName       string  `json:"buyer_name"`
	TotalAmount     int64   `json:"total_amount"`
	InvoiceDate     string  `json:"invoice_date"`
	DueDate         string  `json:"due_date"`
	ItemsSummary    string  `json:"items_summary,omitempty"`
	FileRef         string  `json:"file_ref"`
	Status          string  `json:"status"`
	RejectionReason *string `json:"rejection_reason,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

func ToInvoiceResponse(inv *domain.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:              inv.ID.String(),
		SellerID:        inv.SellerID.String(),
		InvoiceNumber:   inv.InvoiceNumber,
		PONumber:        inv.PONumber,
		BuyerName:       inv.BuyerName,
		TotalAmount:     inv.TotalAmount,
		InvoiceDate:     inv.InvoiceDate.Format(DateLayout),
		DueDate:         inv.DueDate.Format(DateLayout),
		ItemsSummary:    inv.ItemsSummary,
		FileRef:         inv.FileRef,
		Status:          string(inv.Status),
		RejectionReason: inv.RejectionReason,
		CreatedAt:       inv.CreatedAt.UTC().Format(time.RFC3339),
	}
	if inv.LenderID != nil {
		s := inv.LenderID.String()
		resp.LenderID = &s
	}
	return resp
}

func ToInvoiceResponses(invoices []domain.Invoice) []InvoiceResponse {
	out := make([]InvoiceResponse, 0, len(invoices))
	for i := range invoices {
		out = append(out, ToInvoiceResponse(&invoices[i]))
	}
	return out
}

// ExtractedInvoiceResponse mirrors ports.ExtractedInvoice with wire-format dates.
type ExtractedInvoiceResponse struct {
	InvoiceNumber *string `json:"invoice_number"`
	PONumber      *string `json:"po_number"`
	InvoiceDate   *string `json:"invoice_date"`
	DueDate       *string `json:"due_date"`
	SellerTaxID   *string `json:"seller_tax_id"`
	BuyerTaxID    *string `json:"buyer_tax_id"`
	BuyerName     *string `json:"buyer_name"`
	TotalAmount   *int64  `json:"total_amount"`
	BuyerEmail    *string `json:"buyer_email"`
	ItemsSummary  *string `json:"items_summary"`
}

func ToExtractedResponse(e *ports.ExtractedInvoice) ExtractedInvoiceResponse {
	return ExtractedInvoiceResponse{
		InvoiceNumber: e.InvoiceNumber,
		PONumber:      e.PONumber,
		InvoiceDate:   formatDate(e.InvoiceDate),
		DueDate:       formatDate(e.DueDate),
		SellerTaxID:   e.SellerTaxID,
		BuyerTaxID:    e.BuyerTaxID,
		BuyerName:     e.BuyerName,
		TotalAmount:   e.TotalAmount,
		BuyerEmail:    e.BuyerEmail,
		ItemsSummary:  e.ItemsSummary,
	}
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(DateLayout)
	return &s
}

// --- Bids ---

type PlaceBidRequest struct {
	InterestRate string `json:"interest_rate" binding:"required,rate"`
	Amount       int64  `json:"amount" binding:"required,gt=0"`
}

type BidResponse struct {
	ID               string  `json:"id"`
	InvoiceID        string  `json:"invoice_id"`
	LenderID         string  `json:"lender_id"`
	InterestRate     string  `json:"interest_rate"`
	Amount           int64   `json:"amount"`
	RepaymentDue     int64   `json:"repayment_due"`
	Status           string  `json:"status"`
	GatewayOrderID   *string `json:"gateway_order_id,omitempty"`
	VirtualAccountID *string `json:"virtual_account_id,omitempty"`
	CreatedAt        string  `json:"created_at"`
}

func ToBidResponse(b *domain.Bid) BidResponse {
	return BidResponse{
		ID:               b.ID.String(),
		InvoiceID:        b.InvoiceID.String(),
		LenderID:         b.LenderID.String(),
		InterestRate:     b.InterestRate.String(),
		Amount:           b.Amount,
		RepaymentDue:     b.RepaymentDue(),
		Status:           string(b.Status),
		GatewayOrderID:   b.GatewayOrderID,
		VirtualAccountID: b.VirtualAccountID,
		CreatedAt:        b.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func ToBidResponses(bids []domain.Bid) []BidResponse {
	out := make([]BidResponse, 0, len(bids))
	for i := range bids {
		out = append(out, ToBidResponse(&bids[i]))
	}
	return out
}

// --- Settlement ---

type FundingOrderResponse struct {
	BidID            string `json:"bid_id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	VirtualAccountID string `json:"virtual_account_id"`
}

func ToFundingOrderResponse(o *ports.FundingOrder) FundingOrderResponse {
	return FundingOrderResponse{
		BidID:            o.BidID.String(),
		OrderID:          o.OrderID,
		Amount:           o.Amount,
		Currency:         o.Currency,
		VirtualAccountID: o.VirtualAccountID,
	}
}

type VerifyPaymentRequest struct {
	OrderID   string `json:"order_id" binding:"required,max=64" sanitize:"-"`
	PaymentID string `json:"payment_id" binding:"required,max=64" sanitize:"-"`
	Signature string `json:"signature" binding:"required,hexadecimal,len=64" sanitize:"-"`
}

type WebhookAck struct {
	Status string `json:"status"`
}

// --- Wallet & ledger ---

type RepayRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

type WithdrawRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

type TransactionResponse struct {
	ID               string  `json:"id"`
	ReferenceID      string  `json:"reference_id"`
	InvoiceID        *string `json:"invoice_id,omitempty"`
	BidID            *string `json:"bid_id,omitempty"`
	Amount           int64   `json:"amount"`
	Fee              int64   `json:"fee"`
	NetAmount        int64   `json:"net_amount"`
	Currency         string  `json:"currency"`
	TransactionType  string  `json:"transaction_type"`
	Status           string  `json:"status"`
	GatewayPaymentID *string `json:"gateway_payment_id,omitempty"`
	Description      string  `json:"description,omitempty"`
	CreatedAt        string  `json:"created_at"`
	ProcessedAt      *string `json:"processed_at,omitempty"`
}

func ToTransactionResponse(txn *domain.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:               txn.ID.String(),
		ReferenceID:      txn.ReferenceID,
		Amount:           txn.Amount,
		Fee:              txn.Fee,
		NetAmount:        txn.NetAmount(),
		Currency:         txn.Currency,
		TransactionType:  string(txn.TransactionType),
		Status:           string(txn.Status),
		GatewayPaymentID: txn.GatewayPaymentID,
		Description:      txn.Description,
		CreatedAt:        txn.CreatedAt.UTC().Format(time.RFC3339),
	}
	if txn.InvoiceID != nil {
		s := txn.InvoiceID.String()
		resp.InvoiceID = &s
	}
	if txn.BidID != nil {
		s := txn.BidID.String()
		resp.BidID = &s
	}
	if txn.ProcessedAt != nil {
		s := txn.ProcessedAt.UTC().Format(time.RFC3339)
		resp.ProcessedAt = &s
	}
	return resp
}

func ToTransactionResponses(txns []domain.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(txns))
	for i := range txns {
		out = append(out, ToTransactionResponse(&txns[i]))
	}
	return out
}

type RepaymentResponse struct {
	Repayment   TransactionResponse  `json:"repayment"`
	Settlement  *TransactionResponse `json:"settlement,omitempty"`
	Outstanding int64                `json:"outstanding"`
	Invoice     InvoiceResponse      `json:"invoice"`
}

func ToRepaymentResponse(r *ports.RepaymentResult) RepaymentResponse {
	resp := RepaymentResponse{
		Repayment:   ToTransactionResponse(r.Repayment),
		Outstanding: r.Outstanding,
		Invoice:     ToInvoiceResponse(r.Invoice),
	}
	if r.Settlement != nil {
		s := ToTransactionResponse(r.Settlement)
		resp.Settlement = &s
	}
	return resp
}

type WalletStats struct {
	TotalTransactions int64 `json:"total_transactions"`
	FundingInflow     int64 `json:"funding_inflow"`
	PlatformFees      int64 `json:"platform_fees"`
	RepaymentIn       int64 `json:"repayment_in"`
	SettlementOut     int64 `json:"settlement_out"`
	Withdrawn         int64 `json:"withdrawn"`
}

type WalletResponse struct {
	Role             string       `json:"role"`
	Balance          int64        `json:"balance"`
	Currency         string       `json:"currency"`
	TotalCreditLimit *int64       `json:"total_credit_limit,omitempty"`
	UtilizedLimit    *int64       `json:"utilized_limit,omitempty"`
	Stats            *WalletStats `json:"stats,omitempty"`
}

func ToWalletResponse(w *ports.WalletSummary) WalletResponse {
	resp := WalletResponse{
		Role:             string(w.Party.Role),
		Balance:          w.Balance,
		Currency:         w.Currency,
		TotalCreditLimit: w.TotalCreditLimit,
		UtilizedLimit:    w.UtilizedLimit,
	}
	if w.Stats != nil {
		resp.Stats = &WalletStats{
			TotalTransactions: w.Stats.TotalTransactions,
			FundingInflow:     w.Stats.FundingInflow,
			PlatformFees:      w.Stats.PlatformFees,
			RepaymentIn:       w.Stats.RepaymentIn,
			SettlementOut:     w.Stats.SettlementOut,
			Withdrawn:         w.Stats.Withdrawn,
		}
	}
	return resp
}
