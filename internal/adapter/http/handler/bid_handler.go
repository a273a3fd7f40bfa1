package handler

import (
	"strings"

	"invoice-financing/internal/adapter/http/dto"
	"invoice-financing/internal/core/ports"
	"invoice-financing/pkg/apperror"
	"invoice-financing/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// BidHandler handles lender offers and seller acceptance.
type BidHandler struct {
	bidSvc ports.BidService
}

// NewBidHandler creates a new BidHandler.
func NewBidHandler(bidSvc ports.BidService) *BidHandler {
	return &BidHandler{bidSvc: bidSvc}
}

// PlaceBid handles POST /api/v1/invoices/:id/bids.
func (h *BidHandler) PlaceBid(c *gin.Context) {
	party, ok := caller(c)
	if !ok {
		return
	}
	invoiceID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.PlaceBidRequest
	if !bindJSON(c, &req, nil) {
		return
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(req.InterestRate))
	if err != nil {
		response.Error(c, apperror.Validation("interest_rate must be a decimal"))
		return
	}

	bid, err := h.bidSvc.PlaceBid(c.Request.Context(), ports.PlaceBidRequest{
		InvoiceID:    invoiceID,
		LenderID:     party.ID,
		InterestRate: rate,
		Amount:       req.Amount,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.ToBidResponse(bid))
}

// ListBids handles GET /api/v1/invoices/:id/bids.
func (h *BidHandler) ListBids(c *gin.Context) {
	party, ok := caller(c)
	if !ok {
		return
	}
	invoiceID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	bids, err := h.bidSvc.ListBids(c.Request.Context(), party, invoiceID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToBidResponses(bids))
}

// AcceptBid handles POST /api/v1/invoices/:id/bids/:bidId/accept.
func (h *BidHandler) AcceptBid(c *gin.Context) {
	party, ok := caller(c)
	if !ok {
		return
	}
	invoiceID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	bidID, ok := uuidParam(c, "bidId")
	if !ok {
		return
	}

	bid, err := h.bidSvc.AcceptBid(c.Request.Context(), invoiceID, bidID, party.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToBidResponse(bid))
}
