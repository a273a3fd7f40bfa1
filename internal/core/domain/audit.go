package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionRegister         AuditAction = "REGISTER"
	AuditActionLogin            AuditAction = "LOGIN"
	AuditActionSubmitInvoice    AuditAction = "SUBMIT_INVOICE"
	AuditActionRejectInvoice    AuditAction = "REJECT_INVOICE"
	AuditActionPlaceBid         AuditAction = "PLACE_BID"
	AuditActionAcceptBid        AuditAction = "ACCEPT_BID"
	AuditActionFundingOrder     AuditAction = "FUNDING_ORDER"
	AuditActionSettlement       AuditAction = "SETTLEMENT"
	AuditActionWebhook          AuditAction = "WEBHOOK"
	AuditActionIntegrityFailure AuditAction = "INTEGRITY_FAILURE"
	AuditActionRepayment        AuditAction = "REPAYMENT"
	AuditActionWithdrawal       AuditAction = "WITHDRAWAL"
	AuditActionUpdateBank       AuditAction = "UPDATE_BANK_ACCOUNT"
	AuditActionAccessDenied     AuditAction = "ACCESS_DENIED"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	ActorID      *uuid.UUID  `json:"actor_id,omitempty"`
	ActorRole    string      `json:"actor_role,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	UserAgent    string      `json:"user_agent,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}
