package models

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/dravya/backend/internal/money"
)

// Ledger entry types.
const (
	EntryTopUpCredit    = "topup_credit"
	EntryPayoutDebit    = "payout_debit"
	EntryPayoutReversal = "payout_reversal"
)

// Source kinds an entry can point back to.
const (
	SourceTopUpRequest = "topup_request"
	SourcePayout       = "payout"
)

// Wallet is one-to-one with a vendor account.
type Wallet struct {
	ID        uuid.UUID    `json:"id"`
	VendorID  uuid.UUID    `json:"vendor_id"`
	Balance   money.Amount `json:"balance"`
	Currency  string       `json:"currency"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// SourceRef identifies the top-up request or payout that caused a ledger entry.
type SourceRef struct {
	Kind string    `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

// LedgerEntry is an immutable balance change. Amount is signed; BalanceAfter is
// the wallet balance once this entry was applied.
type LedgerEntry struct {
	ID              uuid.UUID    `json:"id"`
	WalletID        uuid.UUID    `json:"wallet_id"`
	Amount          money.Amount `json:"amount"`
	BalanceAfter    money.Amount `json:"balance_after"`
	Type            string       `json:"type"`
	Source          SourceRef    `json:"source"`
	ReversesEntryID *uuid.UUID   `json:"reverses_entry_id,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Page is a 1-based page request.
type Page struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100

	maxPage = math.MaxInt32 / MaxPageLimit
)

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	// Keeps (Page-1)*Limit representable.
	if p.Page > maxPage {
		p.Page = maxPage
	}
	return p
}

// Offset is the number of rows to skip.
func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.Limit
}

// StatusTotal is a count and amount aggregate for one status bucket.
type StatusTotal struct {
	Count  int          `json:"count"`
	Amount money.Amount `json:"total_amount"`
}
