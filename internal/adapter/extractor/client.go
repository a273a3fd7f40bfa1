// Package extractor calls the OCR service that reads invoice fields from uploaded documents.
package extractor

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"invoice-financing/config"
	"invoice-financing/internal/adapter/httpclient"
	"invoice-financing/internal/core/ports"
)

var _ ports.InvoiceExtractor = (*Client)(nil)

// Client implements ports.InvoiceExtractor over POST /extract.
type Client struct {
	http *httpclient.Client
}

// New creates an extractor client from config.
func New(cfg config.ServiceConfig, opts ...httpclient.Option) *Client {
	opts = append([]httpclient.Option{httpclient.WithHeader("X-API-Key", cfg.APIKey)}, opts...)
	return &Client{http: httpclient.New(cfg.BaseURL, cfg.Timeout, opts...)}
}

type extractRequest struct {
	FileRef string `json:"file_ref"`
}

// extractResponse keeps dates as strings; the OCR service emits either
// plain dates or RFC 3339 timestamps.
type extractResponse struct {
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

// Extract returns whatever fields the service could read. Unreadable fields stay nil.
func (c *Client) Extract(ctx context.Context, fileRef string) (*ports.ExtractedInvoice, error) {
	var resp extractResponse
	if err := c.http.Do(ctx, http.MethodPost, "/extract", extractRequest{FileRef: fileRef}, &resp); err != nil {
		return nil, fmt.Errorf("extract %s: %w", fileRef, err)
	}

	return &ports.ExtractedInvoice{
		InvoiceNumber: blankToNil(resp.InvoiceNumber),
		PONumber:      blankToNil(resp.PONumber),
		InvoiceDate:   parseDate(resp.InvoiceDate),
		DueDate:       parseDate(resp.DueDate),
		SellerTaxID:   blankToNil(resp.SellerTaxID),
		BuyerTaxID:    blankToNil(resp.BuyerTaxID),
		BuyerName:     blankToNil(resp.BuyerName),
		TotalAmount:   resp.TotalAmount,
		BuyerEmail:    blankToNil(resp.BuyerEmail),
		ItemsSummary:  blankToNil(resp.ItemsSummary),
	}, nil
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func parseDate(s *string) *time.Time {
	v := blankToNil(s)
	if v == nil {
		return nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339, "02/01/2006"} {
		if t, err := time.Parse(layout, *v); err == nil {
			return &t
		}
	}
	return nil
}
