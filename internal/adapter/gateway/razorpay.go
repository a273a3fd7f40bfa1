// Package gateway is the REST client for the payment gateway's orders,
// virtual accounts and payouts.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"invoice-financing/config"
	"invoice-financing/internal/adapter/httpclient"
	"invoice-financing/internal/core/ports"
)

// ErrPayoutRejected is returned when the gateway accepts a payout request but
// reports it as already failed.
var ErrPayoutRejected = errors.New("payout rejected by gateway")

var _ ports.PaymentGateway = (*Client)(nil)

// Client talks to a Razorpay-compatible API with basic auth.
type Client struct {
	http          *httpclient.Client
	payoutAccount string
}

// New creates a gateway client from config.
func New(cfg config.GatewayConfig, opts ...httpclient.Option) *Client {
	opts = append([]httpclient.Option{httpclient.WithBasicAuth(cfg.KeyID, cfg.KeySecret)}, opts...)
	return &Client{
		http:          httpclient.New(cfg.BaseURL, cfg.Timeout, opts...),
		payoutAccount: cfg.PayoutAccount,
	}
}

type orderBody struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type orderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// CreateOrder opens a checkout order for the lender to pay.
func (c *Client) CreateOrder(ctx context.Context, req ports.OrderRequest) (*ports.GatewayOrder, error) {
	var resp orderResponse
	err := c.http.Do(ctx, http.MethodPost, "/v1/orders", orderBody{
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	if resp.ID == "" {
		return nil, errors.New("create order: gateway returned no order id")
	}
	return &ports.GatewayOrder{OrderID: resp.ID, Amount: resp.Amount, Currency: resp.Currency}, nil
}

type virtualAccountBody struct {
	Receivers struct {
		Types []string `json:"types"`
	} `json:"receivers"`
	Description    string            `json:"description"`
	AmountExpected int64             `json:"amount_expected,omitempty"`
	Notes          map[string]string `json:"notes,omitempty"`
}

type virtualAccountResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateVirtualAccount opens a bank-transfer collection account for one bid.
func (c *Client) CreateVirtualAccount(ctx context.Context, req ports.VirtualAccountRequest) (*ports.VirtualAccount, error) {
	body := virtualAccountBody{
		Description:    req.Description,
		AmountExpected: req.Amount,
		Notes:          map[string]string{"receipt": req.Receipt},
	}
	body.Receivers.Types = []string{"bank_account"}

	var resp virtualAccountResponse
	if err := c.http.Do(ctx, http.MethodPost, "/v1/virtual_accounts", body, &resp); err != nil {
		return nil, fmt.Errorf("create virtual account: %w", err)
	}
	if resp.ID == "" {
		return nil, errors.New("create virtual account: gateway returned no id")
	}
	return &ports.VirtualAccount{ID: resp.ID}, nil
}

type payoutBody struct {
	AccountNumber string      `json:"account_number"`
	FundAccount   fundAccount `json:"fund_account"`
	Amount        int64       `json:"amount"`
	Currency      string      `json:"currency"`
	Mode          string      `json:"mode"`
	Purpose       string      `json:"purpose"`
	ReferenceID   string      `json:"reference_id"`
}

type fundAccount struct {
	AccountType string      `json:"account_type"`
	BankAccount bankAccount `json:"bank_account"`
}

type bankAccount struct {
	Name          string `json:"name"`
	IFSC          string `json:"ifsc"`
	AccountNumber string `json:"account_number"`
}

type payoutResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreatePayout sends money from the platform account to a bank account.
func (c *Client) CreatePayout(ctx context.Context, req ports.PayoutRequest) (*ports.Payout, error) {
	var resp payoutResponse
	err := c.http.Do(ctx, http.MethodPost, "/v1/payouts", payoutBody{
		AccountNumber: c.payoutAccount,
		FundAccount: fundAccount{
			AccountType: "bank_account",
			BankAccount: bankAccount{
				Name:          req.AccountHolder,
				IFSC:          req.IFSC,
				AccountNumber: req.AccountNumber,
			},
		},
		Amount:      req.Amount,
		Currency:    req.Currency,
		Mode:        "IMPS",
		Purpose:     "payout",
		ReferenceID: req.Reference,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("create payout: %w", err)
	}

	switch resp.Status {
	case "failed", "rejected", "reversed", "cancelled":
		return nil, fmt.Errorf("%w: payout %s is %s", ErrPayoutRejected, resp.ID, resp.Status)
	}
	return &ports.Payout{ID: resp.ID, Status: resp.Status}, nil
}
