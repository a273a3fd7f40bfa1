package handler

import (
	"invoice-financing/internal/adapter/http/dto"
	"invoice-financing/internal/core/ports"
	"invoice-financing/pkg/response"

	"github.com/gin-gonic/gin"
)

// InvoiceHandler handles invoice submission and marketplace reads.
type InvoiceHandler struct {
	invoiceSvc ports.InvoiceService
}

// NewInvoiceHandler creates a new InvoiceHandler.
func NewInvoiceHandler(invoiceSvc ports.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoiceSvc: invoiceSvc}
}

// Extract handles POST /api/v1/invoices/extract.
func (h *InvoiceHandler) Extract(c *gin.Context) {
	var req dto.ExtractRequest
	if !bindJSON(c, &req, dto.SanitizeStruct) {
		return
	}

	extracted, err := h.invoiceSvc.Extract(c.Request.Context(), req.FileRef)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToExtractedResponse(extracted))
}

// Submit handles POST /api/v1/invoices.
func (h *InvoiceHandler) Submit(c *gin.Context) {
	party, ok := caller(c)
	if !ok {
		return
	}
	var req dto.SubmitInvoiceRequest
	if !bindJSON(c, &req, dto.SanitizeStruct) {
		return
	}

	inv, err := h.invoiceSvc.Submit(c.Request.Context(), party.ID, req.ToDraft())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.ToInvoiceResponse(inv))
}

// Reverify handles POST /api/v1/invoices/:id/reverify.
func (h *InvoiceHandler) Reverify(c *gin.Context) {
	party, ok := caller(c)
	if !ok {
		return
	}
	invoiceID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	inv, err := h.invoiceSvc.Reverify(c.Request.Context(), party.ID, invoiceID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToInvoiceResponse(inv))
}

// Get handles GET /api/v1/invoices/:id.
func (h *InvoiceHandler) Get(c *gin.Context) {
	party, ok := caller(c)
	if !ok {
		return
	}
	invoiceID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	inv, err := h.invoiceSvc.Get(c.Request.Context(), party, invoiceID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToInvoiceResponse(inv))
}

// ListMine handles GET /api/v1/invoices for the calling seller.
func (h *InvoiceHandler) ListMine(c *gin.Context) {
	party, ok := caller(c)
	if !ok {
		return
	}
	page, pageSize := pagination(c)

	invoices, total, err := h.invoiceSvc.ListBySeller(c.Request.Context(), party.ID, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, dto.ToInvoiceResponses(invoices), page, pageSize, total)
}

// Marketplace handles GET /api/v1/marketplace.
func (h *InvoiceHandler) Marketplace(c *gin.Context) {
	page, pageSize := pagination(c)

	invoices, total, err := h.invoiceSvc.ListOpen(c.Request.Context(), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, dto.ToInvoiceResponses(invoices), page, pageSize, total)
}
