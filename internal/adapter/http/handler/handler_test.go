package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"invoice-financing/internal/adapter/http/middleware"
	"invoice-financing/internal/core/domain"
	"invoice-financing/internal/core/ports"
	"invoice-financing/internal/core/ports/mocks"
	"invoice-financing/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testGSTIN = "29ABCDE1234F1Z5"

func newTestContext(method, path string, body any, party *domain.Party, params ...gin.Param) (*gin.Context, *httptest.ResponseRecorder) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, &buf)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = params
	if party != nil {
		c.Set(middleware.CtxSubjectID, party.ID)
		c.Set(middleware.CtxRole, party.Role)
	}
	return c, w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %s", w.Body.String())
	return data
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	code, _ := resp["error_code"].(string)
	return code
}

func zerologNop() zerolog.Logger { return zerolog.Nop() }

func seller() *domain.Party { return &domain.Party{ID: uuid.New(), Role: domain.RoleSeller} }
func lender() *domain.Party { return &domain.Party{ID: uuid.New(), Role: domain.RoleLender} }

// --- Auth Handler Tests ---

func TestRegisterSeller_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAuth := mocks.NewMockAuthService(ctrl)
	h := NewAuthHandler(mockAuth)

	sellerID := uuid.New()
	mockAuth.EXPECT().RegisterSeller(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, req ports.RegisterSellerRequest) (*domain.Seller, error) {
			assert.Equal(t, "ops@acme.test", req.Email)
			assert.Equal(t, "Acme &amp; Sons", req.CompanyName)
			assert.Equal(t, testGSTIN, req.TaxID)
			require.NotNil(t, req.BankAccount)
			assert.Equal(t, "HDFC0001234", req.BankAccount.IFSC)
			return &domain.Seller{ID: sellerID, Email: req.Email, KYCStatus: domain.KYCVerified}, nil
		})

	c, w := newTestContext(http.MethodPost, "/api/v1/auth/register/seller", map[string]any{
		"email":        "ops@acme.test",
		"password":     "password123",
		"company_name": "Acme & Sons",
		"tax_id":       testGSTIN,
		"bank_account": map[string]any{
			"holder_name":    "Acme",
			"account_number": "123456789",
			"ifsc":           "HDFC0001234",
		},
	}, nil)

	h.RegisterSeller(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, sellerID.String(), data["id"])
	assert.Equal(t, "seller", data["role"])
	assert.Equal(t, "verified", data["kyc_status"])
}

func TestRegisterSeller_InvalidTaxID(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewAuthHandler(mocks.NewMockAuthService(ctrl))

	c, w := newTestContext(http.MethodPost, "/", map[string]any{
		"email":        "ops@acme.test",
		"password":     "password123",
		"company_name": "Acme",
		"tax_id":       "NOT-A-GSTIN",
	}, nil)

	h.RegisterSeller(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VAL_001", errorCode(t, w))
}

func TestRegisterLender_DuplicateIdentity(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAuth := mocks.NewMockAuthService(ctrl)
	h := NewAuthHandler(mockAuth)

	mockAuth.EXPECT().RegisterLender(gomock.Any(), gomock.Any()).Return(nil, apperror.ErrDuplicateIdentity())

	c, w := newTestContext(http.MethodPost, "/", map[string]any{
		"email":              "desk@fund.test",
		"password":           "password123",
		"organization_name":  "Fund",
		"tax_id":             testGSTIN,
		"total_credit_limit": 100_000_000,
	}, nil)

	h.RegisterLender(c)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLogin_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAuth := mocks.NewMockAuthService(ctrl)
	h := NewAuthHandler(mockAuth)

	subject := uuid.New()
	expires := time.Now().Add(time.Hour)
	mockAuth.EXPECT().Login(gomock.Any(), "desk@fund.test", "password123").Return(&ports.Session{
		Token: "jwt-token", ExpiresAt: expires, SubjectID: subject, Role: domain.RoleLender,
	}, nil)

	c, w := newTestContext(http.MethodPost, "/", map[string]any{"email": "desk@fund.test", "password": "password123"}, nil)

	h.Login(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "jwt-token", data["token"])
	assert.Equal(t, "lender", data["role"])
	assert.Equal(t, float64(expires.Unix()), data["expires_at"])
}

func TestLogin_InvalidCredentials(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAuth := mocks.NewMockAuthService(ctrl)
	h := NewAuthHandler(mockAuth)

	mockAuth.EXPECT().Login(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, apperror.ErrInvalidCredentials())

	c, w := newTestContext(http.MethodPost, "/", map[string]any{"email": "x@y.test", "password": "wrong"}, nil)

	h.Login(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "AUTH_001", errorCode(t, w))
}

func TestLoginExternal_PassesToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAuth := mocks.NewMockAuthService(ctrl)
	h := NewAuthHandler(mockAuth)

	mockAuth.EXPECT().LoginExternal(gomock.Any(), "id.token.value").Return(&ports.Session{
		Token: "jwt", ExpiresAt: time.Now(), SubjectID: uuid.New(), Role: domain.RoleSeller,
	}, nil)

	c, w := newTestContext(http.MethodPost, "/", map[string]any{"id_token": "id.token.value"}, nil)

	h.LoginExternal(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateBankAccount(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAuth := mocks.NewMockAuthService(ctrl)
	h := NewAuthHandler(mockAuth)

	party := seller()
	mockAuth.EXPECT().UpdateBankAccount(gomock.Any(), *party, ports.BankAccountInput{
		HolderName: "Acme", AccountNumber: "987654321", IFSC: "ICIC0004321",
	}).Return(nil)

	c, w := newTestContext(http.MethodPut, "/", map[string]any{
		"holder_name": "Acme", "account_number": "987654321", "ifsc": "ICIC0004321",
	}, party)

	h.UpdateBankAccount(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateBankAccount_NoSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewAuthHandler(mocks.NewMockAuthService(ctrl))

	c, w := newTestContext(http.MethodPut, "/", map[string]any{}, nil)

	h.UpdateBankAccount(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// --- Invoice Handler Tests ---

func TestSubmitInvoice_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockInvoices := mocks.NewMockInvoiceService(ctrl)
	h := NewInvoiceHandler(mockInvoices)

	party := seller()
	invoiceID := uuid.New()
	mockInvoices.EXPECT().Submit(gomock.Any(), party.ID, gomock.Any()).
		DoAndReturn(func(_ any, sellerID uuid.UUID, draft domain.InvoiceDraft) (*domain.Invoice, error) {
			assert.Equal(t, "INV-001", draft.InvoiceNumber)
			assert.Equal(t, int64(5_000_000), draft.TotalAmount)
			assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), draft.DueDate)
			return &domain.Invoice{
				ID:            invoiceID,
				SellerID:      sellerID,
				InvoiceNumber: draft.InvoiceNumber,
				TotalAmount:   draft.TotalAmount,
				InvoiceDate:   draft.InvoiceDate,
				DueDate:       draft.DueDate,
				Status:        domain.InvoiceStatusVerified,
			}, nil
		})

	c, w := newTestContext(http.MethodPost, "/api/v1/invoices", map[string]any{
		"invoice_number": "INV-001",
		"buyer_tax_id":   testGSTIN,
		"buyer_name":     "Acme Retail",
		"total_amount":   5_000_000,
		"invoice_date":   "2026-01-01",
		"due_date":       "2026-03-01",
		"file_ref":       "files/inv-001.pdf",
	}, party)

	h.Submit(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, invoiceID.String(), data["id"])
	assert.Equal(t, string(domain.InvoiceStatusVerified), data["status"])
}

func TestSubmitInvoice_BadDate(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewInvoiceHandler(mocks.NewMockInvoiceService(ctrl))

	c, w := newTestContext(http.MethodPost, "/", map[string]any{
		"invoice_number": "INV-001",
		"buyer_tax_id":   testGSTIN,
		"buyer_name":     "Acme Retail",
		"total_amount":   5_000_000,
		"invoice_date":   "01/01/2026",
		"due_date":       "2026-03-01",
		"file_ref":       "files/inv-001.pdf",
	}, seller())

	h.Submit(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitInvoice_VerificationFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockInvoices := mocks.NewMockInvoiceService(ctrl)
	h := NewInvoiceHandler(mockInvoices)

	mockInvoices.EXPECT().Submit(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, apperror.ErrUnknownBuyerIdentity())

	c, w := newTestContext(http.MethodPost, "/", map[string]any{
		"invoice_number": "INV-002",
		"buyer_tax_id":   testGSTIN,
		"buyer_name":     "Ghost Co",
		"total_amount":   100,
		"invoice_date":   "2026-01-01",
		"due_date":       "2026-02-01",
		"file_ref":       "f.pdf",
	}, seller())

	h.Submit(c)

	assert.Equal(t, "VER_002", errorCode(t, w))
}

func TestExtractInvoice(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockInvoices := mocks.NewMockInvoiceService(ctrl)
	h := NewInvoiceHandler(mockInvoices)

	number := "INV-77"
	amount := int64(120_000)
	mockInvoices.EXPECT().Extract(gomock.Any(), "uploads/a.pdf").Return(&ports.ExtractedInvoice{
		InvoiceNumber: &number,
		TotalAmount:   &amount,
	}, nil)

	c, w := newTestContext(http.MethodPost, "/", map[string]any{"file_ref": "uploads/a.pdf"}, seller())

	h.Extract(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "INV-77", data["invoice_number"])
	assert.Nil(t, data["due_date"])
}

func TestGetInvoice_PassesCaller(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockInvoices := mocks.NewMockInvoiceService(ctrl)
	h := NewInvoiceHandler(mockInvoices)

	party := lender()
	invoiceID := uuid.New()
	mockInvoices.EXPECT().Get(gomock.Any(), *party, invoiceID).Return(nil, apperror.ErrNotFound("Invoice"))

	c, w := newTestContext(http.MethodGet, "/", nil, party, gin.Param{Key: "id", Value: invoiceID.String()})

	h.Get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetInvoice_InvalidID(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewInvoiceHandler(mocks.NewMockInvoiceService(ctrl))

	c, w := newTestContext(http.MethodGet, "/", nil, seller(), gin.Param{Key: "id", Value: "not-a-uuid"})

	h.Get(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarketplace_Pagination(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockInvoices := mocks.NewMockInvoiceService(ctrl)
	h := NewInvoiceHandler(mockInvoices)

	mockInvoices.EXPECT().ListOpen(gomock.Any(), 2, defaultPageSize).Return([]domain.Invoice{
		{ID: uuid.New(), Status: domain.InvoiceStatusPendingBids},
	}, int64(21), nil)

	c, w := newTestContext(http.MethodGet, "/api/v1/marketplace?page=2&page_size=500", nil, lender())

	h.Marketplace(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	meta := resp["meta"].(map[string]any)
	assert.Equal(t, float64(2), meta["page"])
	assert.Equal(t, float64(21), meta["total"])
	assert.Len(t, resp["data"], 1)
}

func TestListMine_ServiceError(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockInvoices := mocks.NewMockInvoiceService(ctrl)
	h := NewInvoiceHandler(mockInvoices)

	party := seller()
	mockInvoices.EXPECT().ListBySeller(gomock.Any(), party.ID, 1, defaultPageSize).Return(nil, int64(0), errors.New("db down"))

	c, w := newTestContext(http.MethodGet, "/api/v1/invoices", nil, party)

	h.ListMine(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "SYS_001", errorCode(t, w))
}

// --- Bid Handler Tests ---

func TestPlaceBid_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockBids := mocks.NewMockBidService(ctrl)
	h := NewBidHandler(mockBids)

	party := lender()
	invoiceID := uuid.New()
	mockBids.EXPECT().PlaceBid(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, req ports.PlaceBidRequest) (*domain.Bid, error) {
			assert.Equal(t, invoiceID, req.InvoiceID)
			assert.Equal(t, party.ID, req.LenderID)
			assert.True(t, req.InterestRate.Equal(decimal.RequireFromString("12")))
			return &domain.Bid{
				ID: uuid.New(), InvoiceID: invoiceID, LenderID: party.ID,
				InterestRate: req.InterestRate, Amount: req.Amount, Status: domain.BidStatusPending,
			}, nil
		})

	c, w := newTestContext(http.MethodPost, "/", map[string]any{"interest_rate": "12", "amount": 4_800_000}, party,
		gin.Param{Key: "id", Value: invoiceID.String()})

	h.PlaceBid(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(5_376_000), data["repayment_due"])
	assert.Equal(t, "12", data["interest_rate"])
}

func TestPlaceBid_RateOutOfRange(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewBidHandler(mocks.NewMockBidService(ctrl))

	for _, rate := range []string{"0", "100.5", "-1", "abc"} {
		c, w := newTestContext(http.MethodPost, "/", map[string]any{"interest_rate": rate, "amount": 100}, lender(),
			gin.Param{Key: "id", Value: uuid.NewString()})

		h.PlaceBid(c)

		assert.Equal(t, http.StatusBadRequest, w.Code, "rate %s", rate)
	}
}

func TestPlaceBid_CreditLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockBids := mocks.NewMockBidService(ctrl)
	h := NewBidHandler(mockBids)

	mockBids.EXPECT().PlaceBid(gomock.Any(), gomock.Any()).Return(nil, apperror.ErrCreditLimitExceeded())

	c, w := newTestContext(http.MethodPost, "/", map[string]any{"interest_rate": "9.5", "amount": 100}, lender(),
		gin.Param{Key: "id", Value: uuid.NewString()})

	h.PlaceBid(c)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListBids(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockBids := mocks.NewMockBidService(ctrl)
	h := NewBidHandler(mockBids)

	invoiceID := uuid.New()
	party := seller()
	mockBids.EXPECT().ListBids(gomock.Any(), *party, invoiceID).Return([]domain.Bid{
		{ID: uuid.New(), InvoiceID: invoiceID, InterestRate: decimal.RequireFromString("9"), Amount: 100},
		{ID: uuid.New(), InvoiceID: invoiceID, InterestRate: decimal.RequireFromString("11"), Amount: 100},
	}, nil)

	c, w := newTestContext(http.MethodGet, "/", nil, party, gin.Param{Key: "id", Value: invoiceID.String()})

	h.ListBids(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp["data"], 2)
}

func TestAcceptBid_Conflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockBids := mocks.NewMockBidService(ctrl)
	h := NewBidHandler(mockBids)

	party := seller()
	invoiceID, bidID := uuid.New(), uuid.New()
	mockBids.EXPECT().AcceptBid(gomock.Any(), invoiceID, bidID, party.ID).Return(nil, apperror.ErrBidNotAvailable())

	c, w := newTestContext(http.MethodPost, "/", nil, party,
		gin.Param{Key: "id", Value: invoiceID.String()},
		gin.Param{Key: "bidId", Value: bidID.String()})

	h.AcceptBid(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CON_003", errorCode(t, w))
}

// --- Settlement Handler Tests ---

func TestCreateFundingOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockSettlement := mocks.NewMockSettlementService(ctrl)
	h := NewSettlementHandler(mockSettlement, zerologNop())

	party := lender()
	bidID := uuid.New()
	mockSettlement.EXPECT().CreateFundingOrder(gomock.Any(), party.ID, bidID).Return(&ports.FundingOrder{
		BidID: bidID, OrderID: "order_123", Amount: 4_800_000, Currency: "INR", VirtualAccountID: "va_1",
	}, nil)

	c, w := newTestContext(http.MethodPost, "/", nil, party, gin.Param{Key: "id", Value: bidID.String()})

	h.CreateFundingOrder(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "order_123", data["order_id"])
	assert.Equal(t, "va_1", data["virtual_account_id"])
}

func TestVerifyPayment_InvalidSignature(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockSettlement := mocks.NewMockSettlementService(ctrl)
	h := NewSettlementHandler(mockSettlement, zerologNop())

	party := lender()
	bidID := uuid.New()
	sig := "aa" + string(bytes.Repeat([]byte("0"), 62))
	mockSettlement.EXPECT().VerifyFundingPayment(gomock.Any(), ports.VerifyPaymentRequest{
		LenderID: party.ID, BidID: bidID, OrderID: "order_1", PaymentID: "pay_1", Signature: sig,
	}).Return(nil, apperror.ErrInvalidSignature())

	c, w := newTestContext(http.MethodPost, "/", map[string]any{
		"order_id": "order_1", "payment_id": "pay_1", "signature": sig,
	}, party, gin.Param{Key: "id", Value: bidID.String()})

	h.VerifyPayment(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INT_001", errorCode(t, w))
}

func TestVerifyPayment_MalformedSignature(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewSettlementHandler(mocks.NewMockSettlementService(ctrl), zerologNop())

	c, w := newTestContext(http.MethodPost, "/", map[string]any{
		"order_id": "order_1", "payment_id": "pay_1", "signature": "short",
	}, lender(), gin.Param{Key: "id", Value: uuid.NewString()})

	h.VerifyPayment(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_AlwaysAcknowledges(t *testing.T) {
	outcomes := []ports.WebhookOutcome{
		ports.WebhookSettled, ports.WebhookDuplicate, ports.WebhookRejected, ports.WebhookFailed,
	}
	for _, outcome := range outcomes {
		t.Run(string(outcome), func(t *testing.T) {
			ctrl := gomock.NewController(t)
			mockSettlement := mocks.NewMockSettlementService(ctrl)
			h := NewSettlementHandler(mockSettlement, zerologNop())

			payload := []byte(`{"event":"virtual_account.credited"}`)
			mockSettlement.EXPECT().HandleWebhook(gomock.Any(), ports.WebhookNotification{
				NotificationID: "evt_1",
				Signature:      "sig",
				Body:           payload,
			}).Return(outcome)

			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gateway", bytes.NewReader(payload))
			c.Request.Header.Set(HeaderWebhookEventID, "evt_1")
			c.Request.Header.Set(HeaderWebhookSignature, "sig")

			h.Webhook(c)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, `{"status":"`+string(outcome)+`"}`, w.Body.String())
		})
	}
}

// --- Wallet Handler Tests ---

func TestGetWallet_Lender(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockLedger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(mockLedger)

	party := lender()
	limit, used := int64(100_000_000), int64(4_800_000)
	mockLedger.EXPECT().GetWallet(gomock.Any(), *party).Return(&ports.WalletSummary{
		Party: *party, Balance: 0, Currency: "INR", TotalCreditLimit: &limit, UtilizedLimit: &used,
		Stats: &ports.LedgerStats{TotalTransactions: 1},
	}, nil)

	c, w := newTestContext(http.MethodGet, "/", nil, party)

	h.GetWallet(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(limit), data["total_credit_limit"])
	assert.Equal(t, float64(used), data["utilized_limit"])
}

func TestListTransactions_Filters(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockLedger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(mockLedger)

	party := seller()
	mockLedger.EXPECT().ListTransactions(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
			assert.Equal(t, *party, params.Party)
			require.NotNil(t, params.Status)
			require.NotNil(t, params.Type)
			assert.Equal(t, domain.TransactionStatusSuccess, *params.Status)
			assert.Equal(t, domain.TransactionTypeDisbursement, *params.Type)
			assert.Equal(t, 3, params.Page)
			assert.Equal(t, 10, params.PageSize)
			return nil, 0, nil
		})

	c, w := newTestContext(http.MethodGet, "/api/v1/wallet/transactions?status=SUCCESS&type=DISBURSEMENT&page=3&page_size=10", nil, party)

	h.ListTransactions(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListTransactions_UnknownFilter(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewWalletHandler(mocks.NewMockLedgerService(ctrl))

	c, w := newTestContext(http.MethodGet, "/api/v1/wallet/transactions?type=REFUND", nil, seller())

	h.ListTransactions(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWithdraw_InsufficientFunds(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockLedger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(mockLedger)

	party := seller()
	mockLedger.EXPECT().Withdraw(gomock.Any(), *party, int64(5_000)).Return(nil, apperror.ErrInsufficientFunds())

	c, w := newTestContext(http.MethodPost, "/", map[string]any{"amount": 5_000}, party)

	h.Withdraw(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CON_006", errorCode(t, w))
}

func TestWithdraw_NonPositiveAmount(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewWalletHandler(mocks.NewMockLedgerService(ctrl))

	c, w := newTestContext(http.MethodPost, "/", map[string]any{"amount": -10}, seller())

	h.Withdraw(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRepay_FullSettlement(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockLedger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(mockLedger)

	party := seller()
	invoiceID := uuid.New()
	mockLedger.EXPECT().Repay(gomock.Any(), party.ID, invoiceID, int64(5_376_000)).Return(&ports.RepaymentResult{
		Repayment:   &domain.Transaction{ID: uuid.New(), Amount: 5_376_000, TransactionType: domain.TransactionTypeRepaymentIn, Status: domain.TransactionStatusSuccess},
		Settlement:  &domain.Transaction{ID: uuid.New(), Amount: 5_376_000, TransactionType: domain.TransactionTypeSettlementOut, Status: domain.TransactionStatusSuccess},
		Outstanding: 0,
		Invoice:     &domain.Invoice{ID: invoiceID, SellerID: party.ID, Status: domain.InvoiceStatusPaid},
	}, nil)

	c, w := newTestContext(http.MethodPost, "/", map[string]any{"amount": 5_376_000}, party,
		gin.Param{Key: "id", Value: invoiceID.String()})

	h.Repay(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(0), data["outstanding"])
	assert.NotNil(t, data["settlement"])
	assert.Equal(t, string(domain.InvoiceStatusPaid), data["invoice"].(map[string]any)["status"])
}

// --- Health Check Test ---

type fakeChecker struct {
	name string
	err  error
}

func (f fakeChecker) Name() string                 { return f.name }
func (f fakeChecker) Ping(_ context.Context) error { return f.err }

func TestHealthCheck(t *testing.T) {
	c, w := newTestContext(http.MethodGet, "/health", nil, nil)

	HealthCheck(fakeChecker{name: "postgresql"})(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestHealthCheck_Degraded(t *testing.T) {
	c, w := newTestContext(http.MethodGet, "/health", nil, nil)

	HealthCheck(fakeChecker{name: "postgresql"}, fakeChecker{name: "redis", err: errors.New("refused")})(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp["status"])
	deps := resp["dependencies"].(map[string]any)
	assert.Equal(t, "unhealthy", deps["redis"].(map[string]any)["status"])
}
