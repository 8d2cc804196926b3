package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dravya/backend/internal/money"
)

// Payout statuses. Success, failed and reversed are terminal.
const (
	PayoutPending    = "pending"
	PayoutProcessing = "processing"
	PayoutSuccess    = "success"
	PayoutFailed     = "failed"
	PayoutReversed   = "reversed"
)

// payoutTransitions lists the allowed status edges.
var payoutTransitions = map[string][]string{
	PayoutPending:    {PayoutProcessing, PayoutSuccess, PayoutFailed, PayoutReversed},
	PayoutProcessing: {PayoutSuccess, PayoutFailed, PayoutReversed},
}

// PayoutTerminal reports whether no further transition is possible from s.
func PayoutTerminal(s string) bool {
	return s == PayoutSuccess || s == PayoutFailed || s == PayoutReversed
}

// CanTransitionPayout reports whether from -> to is a legal edge.
func CanTransitionPayout(from, to string) bool {
	for _, next := range payoutTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidPayoutStatus reports whether s is a known payout status.
func ValidPayoutStatus(s string) bool {
	switch s {
	case PayoutPending, PayoutProcessing, PayoutSuccess, PayoutFailed, PayoutReversed:
		return true
	}
	return false
}

// Payout is one debit-and-transfer attempt against a vendor wallet.
type Payout struct {
	ID                  uuid.UUID          `json:"id"`
	VendorID            uuid.UUID          `json:"vendor_id"`
	BeneficiaryID       *uuid.UUID         `json:"beneficiary_id,omitempty"`
	Beneficiary         BeneficiaryDetails `json:"beneficiary"`
	MerchantReferenceID string             `json:"merchant_reference_id"`
	Amount              money.Amount       `json:"amount"`
	TransferType        string             `json:"transfer_type"`
	Status              string             `json:"status"`
	ProviderTxnID       string             `json:"provider_txn_id,omitempty"`
	UTR                 string             `json:"utr,omitempty"`
	Narration           string             `json:"narration,omitempty"`
	LastError           string             `json:"last_error,omitempty"`
	DebitEntryID        uuid.UUID          `json:"debit_entry_id"`
	ReversalEntryID     *uuid.UUID         `json:"reversal_entry_id,omitempty"`
	ReconcileAttempts   int                `json:"reconcile_attempts"`
	LastCheckedAt       *time.Time         `json:"last_checked_at,omitempty"`
	NeedsReview         bool               `json:"needs_review"`
	// Unconfirmed marks a payout failed because the rail never answered the
	// submit. The rail is asked again until it confirms the failure.
	Unconfirmed         bool               `json:"unconfirmed"`
	ReviewReason        string             `json:"review_reason,omitempty"`
	Version             int                `json:"version"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}
