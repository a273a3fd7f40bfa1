package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"invoice-financing/config"
	"invoice-financing/internal/adapter/httpclient"
	"invoice-financing/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(config.GatewayConfig{
		BaseURL:       srv.URL,
		KeyID:         "rzp_test",
		KeySecret:     "secret",
		PayoutAccount: "7878780080316316",
		Timeout:       time.Second,
	})
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestClient_CreateOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, _ := r.BasicAuth()
		assert.Equal(t, "rzp_test", user)
		assert.Equal(t, "secret", pass)

		body := decodeBody(t, r)
		assert.EqualValues(t, 4_800_000, body["amount"])
		assert.Equal(t, "INR", body["currency"])
		assert.Equal(t, "bid-1", body["receipt"])

		_, _ = w.Write([]byte(`{"id":"order_N1","amount":4800000,"currency":"INR","status":"created"}`))
	})

	order, err := c.CreateOrder(context.Background(), ports.OrderRequest{Amount: 4_800_000, Currency: "INR", Receipt: "bid-1"})
	require.NoError(t, err)
	assert.Equal(t, "order_N1", order.OrderID)
	assert.Equal(t, int64(4_800_000), order.Amount)
}

func TestClient_CreateOrder_GatewayError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount too small"}}`))
	})

	_, err := c.CreateOrder(context.Background(), ports.OrderRequest{Amount: 1, Currency: "INR"})
	var statusErr *httpclient.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.Status)
}

func TestClient_CreateOrder_MissingID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	_, err := c.CreateOrder(context.Background(), ports.OrderRequest{Amount: 100, Currency: "INR"})
	assert.ErrorContains(t, err, "no order id")
}

func TestClient_CreateVirtualAccount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/virtual_accounts", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, "Invoice inv-1", body["description"])
		assert.EqualValues(t, 4_800_000, body["amount_expected"])
		receivers := body["receivers"].(map[string]any)
		assert.Equal(t, []any{"bank_account"}, receivers["types"])
		assert.Equal(t, map[string]any{"receipt": "bid-1"}, body["notes"])

		_, _ = w.Write([]byte(`{"id":"va_N1","status":"active"}`))
	})

	va, err := c.CreateVirtualAccount(context.Background(), ports.VirtualAccountRequest{
		Receipt: "bid-1", Description: "Invoice inv-1", Amount: 4_800_000,
	})
	require.NoError(t, err)
	assert.Equal(t, "va_N1", va.ID)
}

func TestClient_CreatePayout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payouts", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, "7878780080316316", body["account_number"])
		assert.Equal(t, "IMPS", body["mode"])
		assert.Equal(t, "TXN-1", body["reference_id"])
		fund := body["fund_account"].(map[string]any)
		bank := fund["bank_account"].(map[string]any)
		assert.Equal(t, "Asha Traders", bank["name"])
		assert.Equal(t, "HDFC0001234", bank["ifsc"])
		assert.Equal(t, "50100012345678", bank["account_number"])

		_, _ = w.Write([]byte(`{"id":"pout_1","status":"processing"}`))
	})

	payout, err := c.CreatePayout(context.Background(), ports.PayoutRequest{
		AccountHolder: "Asha Traders",
		AccountNumber: "50100012345678",
		IFSC:          "HDFC0001234",
		Amount:        624_000,
		Currency:      "INR",
		Reference:     "TXN-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "pout_1", payout.ID)
	assert.Equal(t, "processing", payout.Status)
}

func TestClient_CreatePayout_Rejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pout_2","status":"rejected"}`))
	})

	_, err := c.CreatePayout(context.Background(), ports.PayoutRequest{Amount: 100, Currency: "INR"})
	assert.ErrorIs(t, err, ErrPayoutRejected)
}
