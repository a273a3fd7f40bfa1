package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"invoice-financing/internal/core/domain"
	"invoice-financing/internal/core/ports"
	"invoice-financing/internal/core/ports/mocks"
	"invoice-financing/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func (f *fixture) ledgerService(gateway ports.PaymentGateway) *LedgerServiceImpl {
	return NewLedgerService(f.sellers, f.lenders, f.invoices, f.bids, f.txns, f.store, gateway,
		f.vault, f.audit, nil, LedgerConfig{Currency: "INR", GatewayTimeout: time.Second}, newTestLogger())
}

// financedInvoice settles a 48,000 loan at 12% against a 50,000 invoice.
func (f *fixture) financedInvoice(t *testing.T) funded {
	t.Helper()
	env := f.acceptedBid(t, 5_000_000, 4_800_000)
	_, err := f.settlementService(nil, nil, nil, "").VerifyFundingPayment(context.Background(), ports.VerifyPaymentRequest{
		LenderID:  env.lender.ID,
		BidID:     env.bid.ID,
		OrderID:   testOrderID,
		PaymentID: "pay_1",
		Signature: signedPayment("pay_1"),
	})
	require.NoError(t, err)
	return env
}

func (f *fixture) setSellerBalance(t *testing.T, id uuid.UUID, balance int64) {
	t.Helper()
	ctx := context.Background()
	tx, err := f.store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, f.sellers.UpdateWalletBalance(ctx, tx, id, balance))
	require.NoError(t, tx.Commit(ctx))
}

func TestLedgerService_Repay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env := f.financedInvoice(t)
	svc := f.ledgerService(nil)
	f.setSellerBalance(t, env.seller.ID, 6_000_000)

	require.Equal(t, int64(4_800_000), f.mustLender(t, env.lender.ID).UtilizedLimit)

	_, err := svc.Repay(ctx, uuid.New(), env.invoice.ID, 1_000)
	assert.True(t, errors.Is(err, apperror.ErrForbidden()))

	_, err = svc.Repay(ctx, env.seller.ID, env.invoice.ID, 0)
	assert.True(t, errors.Is(err, apperror.ErrInvalidAmount()))

	_, err = svc.Repay(ctx, env.seller.ID, env.invoice.ID, 5_376_001)
	assert.True(t, errors.Is(err, apperror.Validation("")), "more than principal plus interest")

	partial, err := svc.Repay(ctx, env.seller.ID, env.invoice.ID, 2_000_000)
	require.NoError(t, err)
	assert.Equal(t, int64(3_376_000), partial.Outstanding)
	assert.Nil(t, partial.Settlement)
	assert.Equal(t, domain.InvoiceStatusFinanced, f.mustInvoice(t, env.invoice.ID).Status)
	assert.Equal(t, int64(4_000_000), f.mustSeller(t, env.seller.ID).WalletBalance)
	assert.Equal(t, int64(4_800_000), f.mustLender(t, env.lender.ID).UtilizedLimit)

	final, err := svc.Repay(ctx, env.seller.ID, env.invoice.ID, 3_376_000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), final.Outstanding)
	require.NotNil(t, final.Settlement)
	assert.Equal(t, int64(5_376_000), final.Settlement.Amount)
	assert.Equal(t, domain.TransactionTypeSettlementOut, final.Settlement.TransactionType)

	assert.Equal(t, domain.InvoiceStatusPaid, f.mustInvoice(t, env.invoice.ID).Status)
	assert.Equal(t, int64(624_000), f.mustSeller(t, env.seller.ID).WalletBalance)
	lender := f.mustLender(t, env.lender.ID)
	assert.Equal(t, int64(0), lender.UtilizedLimit)
	assert.Equal(t, int64(5_376_000), lender.WalletBalance)

	_, err = svc.Repay(ctx, env.seller.ID, env.invoice.ID, 1)
	assert.True(t, errors.Is(err, apperror.ErrInvalidState("")))
}

func TestLedgerService_Repay_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	env := f.financedInvoice(t)
	svc := f.ledgerService(nil)
	f.setSellerBalance(t, env.seller.ID, 1_000)

	_, err := svc.Repay(context.Background(), env.seller.ID, env.invoice.ID, 2_000)
	assert.True(t, errors.Is(err, apperror.ErrInsufficientFunds()))
	assert.Equal(t, int64(1_000), f.mustSeller(t, env.seller.ID).WalletBalance)
}

func TestLedgerService_GetWallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env := f.financedInvoice(t)
	svc := f.ledgerService(nil)

	sellerWallet, err := svc.GetWallet(ctx, domain.Party{ID: env.seller.ID, Role: domain.RoleSeller})
	require.NoError(t, err)
	assert.Equal(t, int64(4_800_000), sellerWallet.Balance)
	assert.Nil(t, sellerWallet.TotalCreditLimit)
	assert.Equal(t, int64(4_800_000), sellerWallet.Stats.FundingInflow)

	lenderWallet, err := svc.GetWallet(ctx, domain.Party{ID: env.lender.ID, Role: domain.RoleLender})
	require.NoError(t, err)
	require.NotNil(t, lenderWallet.UtilizedLimit)
	assert.Equal(t, int64(4_800_000), *lenderWallet.UtilizedLimit)
	assert.Equal(t, int64(100_000_000), *lenderWallet.TotalCreditLimit)

	_, err = svc.GetWallet(ctx, domain.Party{ID: env.seller.ID, Role: "admin"})
	assert.True(t, errors.Is(err, apperror.ErrForbidden()))
}

func TestLedgerService_Withdraw(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newFixture(t)
	ctx := context.Background()
	seller := f.seedSeller(t, sellerTaxID, 1_000_000)
	gw := mocks.NewMockPaymentGateway(ctrl)
	svc := f.ledgerService(gw)
	party := domain.Party{ID: seller.ID, Role: domain.RoleSeller}

	gw.EXPECT().CreatePayout(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req ports.PayoutRequest) (*ports.Payout, error) {
			assert.Equal(t, "123456789012", req.AccountNumber)
			assert.Equal(t, "HDFC0001234", req.IFSC)
			assert.Equal(t, int64(400_000), req.Amount)
			return &ports.Payout{ID: "pout_1", Status: "processing"}, nil
		})

	txn, err := svc.Withdraw(ctx, party, 400_000)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusSuccess, txn.Status)
	assert.Equal(t, int64(600_000), f.mustSeller(t, seller.ID).WalletBalance)

	stored, err := f.txns.GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusSuccess, stored.Status)
	assert.Contains(t, f.audit.actions(), domain.AuditActionWithdrawal)
}

func TestLedgerService_Withdraw_PayoutFailureReverses(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newFixture(t)
	ctx := context.Background()
	seller := f.seedSeller(t, sellerTaxID, 1_000_000)
	gw := mocks.NewMockPaymentGateway(ctrl)
	gw.EXPECT().CreatePayout(gomock.Any(), gomock.Any()).Return(nil, errors.New("bank rails down"))
	svc := f.ledgerService(gw)
	party := domain.Party{ID: seller.ID, Role: domain.RoleSeller}

	_, err := svc.Withdraw(ctx, party, 400_000)
	assert.Equal(t, apperror.KindExternal, apperror.KindOf(err))
	assert.Equal(t, int64(1_000_000), f.mustSeller(t, seller.ID).WalletBalance)

	failed := domain.TransactionStatusFailed
	items, total, err := f.txns.List(ctx, ports.TransactionListParams{Party: party, Status: &failed, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, domain.TransactionTypeWithdrawal, items[0].TransactionType)
}

func TestLedgerService_Withdraw_Rejections(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newFixture(t)
	ctx := context.Background()
	seller := f.seedSeller(t, sellerTaxID, 1_000)
	lender := f.seedLender(t, 100_000_000, 0)
	svc := f.ledgerService(mocks.NewMockPaymentGateway(ctrl))

	_, err := svc.Withdraw(ctx, domain.Party{ID: seller.ID, Role: domain.RoleSeller}, 5_000)
	assert.True(t, errors.Is(err, apperror.ErrInsufficientFunds()))

	_, err = svc.Withdraw(ctx, domain.Party{ID: lender.ID, Role: domain.RoleLender}, 5_000)
	assert.True(t, errors.Is(err, apperror.Validation("")), "no bank account on file")

	_, err = svc.Withdraw(ctx, domain.Party{ID: seller.ID, Role: domain.RoleSeller}, -1)
	assert.True(t, errors.Is(err, apperror.ErrInvalidAmount()))

	assert.Equal(t, int64(1_000), f.mustSeller(t, seller.ID).WalletBalance)
}

func TestLedgerService_ListTransactions(t *testing.T) {
	f := newFixture(t)
	env := f.financedInvoice(t)
	svc := f.ledgerService(nil)

	items, total, err := svc.ListTransactions(context.Background(), ports.TransactionListParams{
		Party: domain.Party{ID: env.lender.ID, Role: domain.RoleLender},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, domain.TransactionTypeFundingInflow, items[0].TransactionType)

	_, _, err = svc.ListTransactions(context.Background(), ports.TransactionListParams{})
	assert.True(t, errors.Is(err, apperror.ErrForbidden()))
}
