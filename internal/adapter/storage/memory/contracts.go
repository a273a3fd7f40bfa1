package memory

import "invoice-financing/internal/core/ports"

var (
	_ ports.DBTransactor          = (*Store)(nil)
	_ ports.HealthChecker         = (*Store)(nil)
	_ ports.SellerRepository      = (*SellerRepo)(nil)
	_ ports.LenderRepository      = (*LenderRepo)(nil)
	_ ports.InvoiceRepository     = (*InvoiceRepo)(nil)
	_ ports.BidRepository         = (*BidRepo)(nil)
	_ ports.TransactionRepository = (*TransactionRepo)(nil)
	_ ports.AuditRepository       = (*AuditRepo)(nil)
)
