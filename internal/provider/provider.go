// Package provider is the client side of the external payment rail that
// actually moves money to a beneficiary.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/dravya/backend/internal/models"
	"github.com/dravya/backend/internal/money"
)

// ErrUnreachable covers transport failures, timeouts, 5xx answers and bodies
// that cannot be decoded. Callers treat it the same as a non-delivery.
var ErrUnreachable = models.ErrProviderUnreachable

// Provider-side transfer states returned by QueryStatus.
const (
	StatePending    = "pending"
	StateProcessing = "processing"
	StateSuccess    = "success"
	StateFailed     = "failed"
	StateReversed   = "reversed"
	// StateUnknown means the provider answered but had no usable status,
	// e.g. it does not recognise the reference.
	StateUnknown = "unknown"
)

// Transfer is one submit_transfer request.
type Transfer struct {
	Beneficiary  models.BeneficiaryDetails
	Amount       money.Amount
	TransferType string
	Reference    string
	Narration    string
}

// Acceptance is the provider's synchronous answer to a submit. Accepted means
// the request was taken for processing, not that it settled.
type Acceptance struct {
	Accepted      bool
	ProviderTxnID string
	Message       string
}

type Status struct {
	State         string
	ProviderTxnID string
	UTR           string
	Error         string
}

// Balance is the provider float, unrelated to any vendor wallet.
type Balance struct {
	Balance  money.Amount `json:"balance"`
	Currency string       `json:"currency"`
}

type Provider interface {
	SubmitTransfer(ctx context.Context, t Transfer) (*Acceptance, error)
	QueryStatus(ctx context.Context, reference string) (*Status, error)
	AccountBalance(ctx context.Context) (*Balance, error)
}

// normalizeState maps the rail's status vocabulary onto ours.
func normalizeState(s string) string {
	switch s {
	case "pending", "PENDING", "initiated", "INITIATED", "queued":
		return StatePending
	case "processing", "PROCESSING", "in_progress":
		return StateProcessing
	case "success", "SUCCESS", "completed", "COMPLETED":
		return StateSuccess
	case "failed", "FAILED", "failure", "rejected", "REJECTED":
		return StateFailed
	case "reversed", "REVERSED", "refunded":
		return StateReversed
	}
	return StateUnknown
}

func unreachable(op string, err error) error {
	if errors.Is(err, ErrUnreachable) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", op, ErrUnreachable, err)
}
