package handler

import (
	"io"
	"net/http"

	"invoice-financing/internal/adapter/http/dto"
	"invoice-financing/internal/core/ports"
	"invoice-financing/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	HeaderWebhookEventID   = "X-Razorpay-Event-Id"
	HeaderWebhookSignature = "X-Razorpay-Signature"
)

// SettlementHandler handles funding orders, payment confirmation and gateway webhooks.
type SettlementHandler struct {
	settlementSvc ports.SettlementService
	log           zerolog.Logger
}

// NewSettlementHandler creates a new SettlementHandler.
func NewSettlementHandler(settlementSvc ports.SettlementService, log zerolog.Logger) *SettlementHandler {
	return &SettlementHandler{settlementSvc: settlementSvc, log: log}
}

// CreateFundingOrder handles POST /api/v1/bids/:id/funding-order.
func (h *SettlementHandler) CreateFundingOrder(c *gin.Context) {
	party, ok := caller(c)
	if !ok {
		return
	}
	bidID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	order, err := h.settlementSvc.CreateFundingOrder(c.Request.Context(), party.ID, bidID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.ToFundingOrderResponse(order))
}

// VerifyPayment handles POST /api/v1/bids/:id/verify-payment.
func (h *SettlementHandler) VerifyPayment(c *gin.Context) {
	party, ok := caller(c)
	if !ok {
		return
	}
	bidID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.VerifyPaymentRequest
	if !bindJSON(c, &req, dto.SanitizeStruct) {
		return
	}

	txn, err := h.settlementSvc.VerifyFundingPayment(c.Request.Context(), ports.VerifyPaymentRequest{
		LenderID:  party.ID,
		BidID:     bidID,
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToTransactionResponse(txn))
}

// Webhook handles POST /api/v1/webhooks/gateway. The gateway is always
// acknowledged with 200 so it does not retry deliveries we have decided on.
func (h *SettlementHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.log.Warn().Err(err).Msg("webhook body unreadable")
		c.JSON(http.StatusOK, dto.WebhookAck{Status: string(ports.WebhookRejected)})
		return
	}

	outcome := h.settlementSvc.HandleWebhook(c.Request.Context(), ports.WebhookNotification{
		NotificationID: c.GetHeader(HeaderWebhookEventID),
		Signature:      c.GetHeader(HeaderWebhookSignature),
		Body:           body,
	})
	c.JSON(http.StatusOK, dto.WebhookAck{Status: string(outcome)})
}
