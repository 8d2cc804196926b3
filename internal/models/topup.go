package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dravya/backend/internal/money"
)

// Top-up request statuses. Approved and rejected are terminal.
const (
	TopUpPending  = "pending"
	TopUpApproved = "approved"
	TopUpRejected = "rejected"
)

type TopUpRequest struct {
	ID              uuid.UUID    `json:"id"`
	VendorID        uuid.UUID    `json:"vendor_id"`
	Amount          money.Amount `json:"amount"`
	Status          string       `json:"status"`
	AdminID         *uuid.UUID   `json:"admin_id,omitempty"`
	AdminNotes      string       `json:"admin_notes,omitempty"`
	RejectionReason string       `json:"rejection_reason,omitempty"`
	LedgerEntryID   *uuid.UUID   `json:"ledger_entry_id,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	ProcessedAt     *time.Time   `json:"processed_at,omitempty"`
}

// ValidTopUpStatus reports whether s is a known top-up status.
func ValidTopUpStatus(s string) bool {
	switch s {
	case TopUpPending, TopUpApproved, TopUpRejected:
		return true
	}
	return false
}
