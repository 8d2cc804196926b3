// Package payout runs the debit-and-transfer lifecycle of a vendor payout:
// reserve funds, hand the transfer to the payment rail, then settle or reverse.
package payout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dravya/backend/internal/auth"
	"github.com/dravya/backend/internal/beneficiary"
	"github.com/dravya/backend/internal/ledger"
	"github.com/dravya/backend/internal/metrics"
	"github.com/dravya/backend/internal/models"
	"github.com/dravya/backend/internal/money"
	"github.com/dravya/backend/internal/provider"
	"github.com/dravya/backend/internal/store"
	"github.com/dravya/backend/internal/validation"
)

const defaultProviderTimeout = 30 * time.Second

// InitiateRequest names either a saved beneficiary or an inline destination.
type InitiateRequest struct {
	BeneficiaryID       *uuid.UUID                 `json:"beneficiary_id"`
	Beneficiary         *models.BeneficiaryDetails `json:"beneficiary"`
	Amount              money.Amount               `json:"amount"`
	TransferType        string                     `json:"transfer_type"`
	Narration           string                     `json:"narration"`
	MerchantReferenceID string                     `json:"merchant_reference_id"`
}

type ListFilter struct {
	// VendorID is only honoured for admins and the system identity.
	VendorID     *uuid.UUID
	Status       string
	TransferType string
	NeedsReview  *bool
	Page         models.Page
}

type Stats struct {
	ByStatus map[string]models.StatusTotal `json:"by_status"`
	Total    models.StatusTotal            `json:"total"`
}

type Engine interface {
	// Initiate debits the vendor wallet and submits the transfer. When the
	// rail is unreachable or rejects the transfer the debit is reversed and
	// the failed payout is returned together with the error.
	Initiate(ctx context.Context, actor auth.Identity, req InitiateRequest) (*models.Payout, error)
	// CheckStatus asks the rail for the current state of ref and applies it.
	CheckStatus(ctx context.Context, actor auth.Identity, ref string) (*models.Payout, error)
	// RecordAttempt counts one unresolved reconciliation pass for ref and
	// flags the payout for review once maxAttempts is reached.
	RecordAttempt(ctx context.Context, ref string, maxAttempts int, lastErr string) (*models.Payout, error)
	Get(ctx context.Context, actor auth.Identity, ref string) (*models.Payout, error)
	List(ctx context.Context, actor auth.Identity, f ListFilter) ([]*models.Payout, int, error)
	Stats(ctx context.Context, actor auth.Identity, vendorID *uuid.UUID, since *time.Time) (*Stats, error)
	ProviderBalance(ctx context.Context, actor auth.Identity) (*provider.Balance, error)
}

type Config struct {
	ProviderTimeout time.Duration
}

type engine struct {
	store    store.Store
	ledger   ledger.Service
	provider provider.Provider
	timeout  time.Duration
	locks    *refLocks
	log      *slog.Logger
	now      func() time.Time
}

func NewEngine(st store.Store, l ledger.Service, p provider.Provider, cfg Config, log *slog.Logger) Engine {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = defaultProviderTimeout
	}
	return &engine{
		store:    st,
		ledger:   l,
		provider: p,
		timeout:  cfg.ProviderTimeout,
		locks:    newRefLocks(),
		log:      log,
		now:      time.Now,
	}
}

var _ Engine = (*engine)(nil)

func (e *engine) Initiate(ctx context.Context, actor auth.Identity, req InitiateRequest) (*models.Payout, error) {
	if err := actor.RequireActiveVendor(actor.ID); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		metrics.PayoutsInitiated.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("payout amount %s: %w", req.Amount, models.ErrInvalidAmount)
	}
	if !models.ValidTransferType(req.TransferType) {
		metrics.PayoutsInitiated.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("transfer type %q: %w", req.TransferType, models.ErrModeMismatch)
	}
	dest, err := e.destination(ctx, actor.ID, req)
	if err != nil {
		metrics.PayoutsInitiated.WithLabelValues("invalid").Inc()
		return nil, err
	}

	ref := req.MerchantReferenceID
	if ref == "" {
		ref = NewReference(actor.ID, e.now())
	}
	unlock := e.locks.lock(ref)
	defer unlock()

	now := e.now().UTC()
	p := &models.Payout{
		ID:                  uuid.New(),
		VendorID:            actor.ID,
		BeneficiaryID:       req.BeneficiaryID,
		Beneficiary:         dest,
		MerchantReferenceID: ref,
		Amount:              req.Amount,
		TransferType:        req.TransferType,
		Status:              models.PayoutPending,
		Narration:           req.Narration,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	err = e.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetPayoutByReference(ctx, ref); err == nil {
			return fmt.Errorf("reference %s: %w", ref, models.ErrDuplicateReference)
		} else if !errors.Is(err, models.ErrNotFound) {
			return err
		}
		w, err := tx.GetWalletByVendor(ctx, actor.ID)
		if err != nil {
			return fmt.Errorf("wallet for vendor %s: %w", actor.ID, err)
		}
		entry, err := e.ledger.DebitTx(ctx, tx, w.ID, req.Amount, models.SourceRef{Kind: models.SourcePayout, ID: p.ID})
		if err != nil {
			return err
		}
		p.DebitEntryID = entry.ID
		return tx.InsertPayout(ctx, p)
	})
	if err != nil {
		outcome := "error"
		switch {
		case errors.Is(err, models.ErrInsufficientFunds):
			outcome = "insufficient_funds"
		case errors.Is(err, models.ErrDuplicateReference):
			outcome = "duplicate_reference"
		}
		metrics.PayoutsInitiated.WithLabelValues(outcome).Inc()
		return nil, fmt.Errorf("initiate payout %s: %w", ref, err)
	}
	metrics.PayoutTransitions.WithLabelValues(models.PayoutPending).Inc()
	e.log.Info("payout debited", "reference", ref, "vendor_id", actor.ID, "amount", req.Amount.String(), "transfer_type", req.TransferType)

	// The debit is committed; from here on the caller going away must not
	// interrupt the submit or the bookkeeping that follows it.
	bg := context.WithoutCancel(ctx)
	callCtx, cancel := context.WithTimeout(bg, e.timeout)
	acc, subErr := e.provider.SubmitTransfer(callCtx, provider.Transfer{
		Beneficiary:  dest,
		Amount:       req.Amount,
		TransferType: req.TransferType,
		Reference:    ref,
		Narration:    req.Narration,
	})
	cancel()

	switch {
	case subErr != nil:
		e.log.Warn("provider unreachable, reversing payout", "reference", ref, "error", subErr)
		out, err := e.finalize(bg, ref, models.PayoutFailed, func(p *models.Payout) {
			p.LastError = subErr.Error()
			p.Unconfirmed = true
		})
		metrics.PayoutsInitiated.WithLabelValues("unreachable").Inc()
		if err != nil {
			return nil, fmt.Errorf("reverse payout %s after %v: %w", ref, subErr, err)
		}
		return out, fmt.Errorf("payout %s: %w", ref, models.ErrProviderUnreachable)
	case !acc.Accepted:
		e.log.Warn("provider rejected payout", "reference", ref, "message", acc.Message)
		out, err := e.finalize(bg, ref, models.PayoutFailed, func(p *models.Payout) {
			p.LastError = acc.Message
			if acc.ProviderTxnID != "" {
				p.ProviderTxnID = acc.ProviderTxnID
			}
		})
		metrics.PayoutsInitiated.WithLabelValues("rejected").Inc()
		if err != nil {
			return nil, fmt.Errorf("reverse payout %s after rejection: %w", ref, err)
		}
		return out, fmt.Errorf("payout %s: %s: %w", ref, acc.Message, models.ErrProviderRejected)
	}

	out, err := e.finalize(bg, ref, models.PayoutProcessing, func(p *models.Payout) { p.ProviderTxnID = acc.ProviderTxnID })
	if err != nil {
		return nil, fmt.Errorf("mark payout %s processing: %w", ref, err)
	}
	metrics.PayoutsInitiated.WithLabelValues("accepted").Inc()
	e.log.Info("payout accepted", "reference", ref, "provider_txn_id", acc.ProviderTxnID)
	return out, nil
}

// destination resolves the beneficiary snapshot that travels with the payout.
func (e *engine) destination(ctx context.Context, vendorID uuid.UUID, req InitiateRequest) (models.BeneficiaryDetails, error) {
	switch {
	case req.BeneficiaryID != nil && req.Beneficiary != nil:
		return models.BeneficiaryDetails{}, fmt.Errorf("beneficiary_id and beneficiary are exclusive: %w", validation.ErrValidation)
	case req.BeneficiaryID != nil:
		var b *models.Beneficiary
		err := e.store.InTx(ctx, func(tx store.Tx) error {
			var err error
			b, err = tx.GetBeneficiary(ctx, *req.BeneficiaryID)
			return err
		})
		if err != nil {
			return models.BeneficiaryDetails{}, fmt.Errorf("beneficiary %s: %w", *req.BeneficiaryID, err)
		}
		if b.VendorID != vendorID {
			return models.BeneficiaryDetails{}, fmt.Errorf("beneficiary %s: %w", b.ID, models.ErrNotFound)
		}
		if !b.Active {
			return models.BeneficiaryDetails{}, fmt.Errorf("beneficiary %s: %w", b.ID, models.ErrBeneficiaryInactive)
		}
		if err := beneficiary.Compatible(b.BeneficiaryDetails, req.TransferType); err != nil {
			return models.BeneficiaryDetails{}, err
		}
		d := b.BeneficiaryDetails
		d.TransferType = req.TransferType
		return d, nil
	case req.Beneficiary != nil:
		d := beneficiary.Normalize(*req.Beneficiary)
		if d.TransferType == "" {
			d.TransferType = req.TransferType
		} else if d.TransferType != req.TransferType {
			return models.BeneficiaryDetails{}, fmt.Errorf("beneficiary is %s, payout is %s: %w", d.TransferType, req.TransferType, models.ErrModeMismatch)
		}
		if err := beneficiary.Validate(d); err != nil {
			return models.BeneficiaryDetails{}, err
		}
		return d, nil
	}
	return models.BeneficiaryDetails{}, fmt.Errorf("beneficiary_id or beneficiary required: %w", models.ErrIncompleteBeneficiary)
}

// finalize moves ref to status under a fresh read of the row, reversing the
// debit when the target is failed or reversed.
func (e *engine) finalize(ctx context.Context, ref, status string, mutate func(p *models.Payout)) (*models.Payout, error) {
	var out *models.Payout
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		p, err := tx.LockPayout(ctx, ref)
		if err != nil {
			return err
		}
		if err := e.transition(ctx, tx, p, status); err != nil {
			return err
		}
		if mutate != nil {
			mutate(p)
		}
		if err := tx.UpdatePayout(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.PayoutTransitions.WithLabelValues(status).Inc()
	return out, nil
}

func (e *engine) transition(ctx context.Context, tx store.Tx, p *models.Payout, to string) error {
	if !models.CanTransitionPayout(p.Status, to) {
		return fmt.Errorf("payout %s %s -> %s: %w", p.MerchantReferenceID, p.Status, to, models.ErrInvalidTransition)
	}
	if (to == models.PayoutFailed || to == models.PayoutReversed) && p.ReversalEntryID == nil {
		rev, err := e.ledger.ReverseTx(ctx, tx, p.DebitEntryID)
		if errors.Is(err, models.ErrAlreadyReversed) {
			rev, err = tx.GetReversalOf(ctx, p.DebitEntryID)
		}
		if err != nil {
			return fmt.Errorf("reverse debit %s: %w", p.DebitEntryID, err)
		}
		p.ReversalEntryID = &rev.ID
	}
	p.Status = to
	p.UpdatedAt = e.now().UTC()
	return nil
}

func (e *engine) CheckStatus(ctx context.Context, actor auth.Identity, ref string) (*models.Payout, error) {
	p, err := e.Get(ctx, actor, ref)
	if err != nil {
		return nil, err
	}
	unlock := e.locks.lock(ref)
	defer unlock()

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	st, err := e.provider.QueryStatus(callCtx, ref)
	cancel()
	if err != nil {
		e.log.Warn("status query failed", "reference", ref, "error", err)
		return p, fmt.Errorf("status of %s: %w", ref, models.ErrProviderUnreachable)
	}

	var moved string
	var out *models.Payout
	err = e.store.InTx(ctx, func(tx store.Tx) error {
		p, err := tx.LockPayout(ctx, ref)
		if err != nil {
			return err
		}
		out = p
		if models.PayoutTerminal(p.Status) {
			return e.checkTerminal(ctx, tx, p, st)
		}
		now := e.now().UTC()
		p.LastCheckedAt = &now
		if st.ProviderTxnID != "" {
			p.ProviderTxnID = st.ProviderTxnID
		}
		switch st.State {
		case provider.StateSuccess:
			if err := e.transition(ctx, tx, p, models.PayoutSuccess); err != nil {
				return err
			}
			p.UTR = st.UTR
			p.LastError = ""
			moved = models.PayoutSuccess
		case provider.StateFailed, provider.StateReversed:
			to := models.PayoutFailed
			if st.State == provider.StateReversed {
				to = models.PayoutReversed
			}
			if err := e.transition(ctx, tx, p, to); err != nil {
				return err
			}
			p.LastError = st.Error
			moved = to
		case provider.StatePending, provider.StateProcessing:
			if p.Status == models.PayoutPending {
				if err := e.transition(ctx, tx, p, models.PayoutProcessing); err != nil {
					return err
				}
				moved = models.PayoutProcessing
			}
		default:
			p.LastError = st.Error
		}
		return tx.UpdatePayout(ctx, p)
	})
	if err != nil {
		return nil, fmt.Errorf("apply status of %s: %w", ref, err)
	}
	if moved != "" {
		metrics.PayoutTransitions.WithLabelValues(moved).Inc()
		e.log.Info("payout status changed", "reference", ref, "status", moved, "utr", out.UTR)
	}
	return out, nil
}

// checkTerminal never touches the ledger: a rail answer that contradicts a
// settled record is flagged for an operator.
func (e *engine) checkTerminal(ctx context.Context, tx store.Tx, p *models.Payout, st *provider.Status) error {
	if p.NeedsReview {
		return nil
	}
	if agrees(p.Status, st.State) {
		if !p.Unconfirmed || st.State == provider.StateUnknown {
			return nil
		}
		now := e.now().UTC()
		p.Unconfirmed = false
		p.LastCheckedAt = &now
		p.UpdatedAt = now
		e.log.Info("provider confirmed payout failure", "reference", p.MerchantReferenceID, "provider_state", st.State)
		return tx.UpdatePayout(ctx, p)
	}
	p.Unconfirmed = false
	p.NeedsReview = true
	p.ReviewReason = fmt.Sprintf("provider reports %s for a %s payout", st.State, p.Status)
	p.UpdatedAt = e.now().UTC()
	if err := tx.UpdatePayout(ctx, p); err != nil {
		return err
	}
	metrics.PayoutsFlagged.Inc()
	e.log.Error("payout disagrees with provider", "reference", p.MerchantReferenceID, "status", p.Status, "provider_state", st.State)
	return nil
}

func agrees(status, state string) bool {
	switch status {
	case models.PayoutSuccess:
		return state == provider.StateSuccess
	case models.PayoutFailed, models.PayoutReversed:
		return state == provider.StateFailed || state == provider.StateReversed || state == provider.StateUnknown
	}
	return true
}

func (e *engine) RecordAttempt(ctx context.Context, ref string, maxAttempts int, lastErr string) (*models.Payout, error) {
	unlock := e.locks.lock(ref)
	defer unlock()

	flagged := false
	var out *models.Payout
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		p, err := tx.LockPayout(ctx, ref)
		if err != nil {
			return err
		}
		out = p
		if p.NeedsReview || (models.PayoutTerminal(p.Status) && !p.Unconfirmed) {
			return nil
		}
		now := e.now().UTC()
		p.ReconcileAttempts++
		p.LastCheckedAt = &now
		p.UpdatedAt = now
		if p.Unconfirmed {
			// The failure is already booked; a rail that never reports the
			// transfer just stops being asked.
			if maxAttempts > 0 && p.ReconcileAttempts >= maxAttempts {
				p.Unconfirmed = false
			}
			return tx.UpdatePayout(ctx, p)
		}
		if lastErr != "" {
			p.LastError = lastErr
		}
		if maxAttempts > 0 && p.ReconcileAttempts >= maxAttempts {
			p.NeedsReview = true
			p.ReviewReason = fmt.Sprintf("unresolved after %d reconciliation attempts", p.ReconcileAttempts)
			flagged = true
		}
		return tx.UpdatePayout(ctx, p)
	})
	if err != nil {
		return nil, fmt.Errorf("record attempt for %s: %w", ref, err)
	}
	if flagged {
		metrics.PayoutsFlagged.Inc()
		e.log.Error("payout needs manual review", "reference", ref, "attempts", out.ReconcileAttempts, "status", out.Status)
	}
	return out, nil
}

func (e *engine) Get(ctx context.Context, actor auth.Identity, ref string) (*models.Payout, error) {
	var p *models.Payout
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		p, err = tx.GetPayoutByReference(ctx, ref)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("payout %s: %w", ref, err)
	}
	if !actor.CanView(p.VendorID) {
		return nil, fmt.Errorf("payout %s: %w", ref, models.ErrUnauthorized)
	}
	return p, nil
}

func (e *engine) List(ctx context.Context, actor auth.Identity, f ListFilter) ([]*models.Payout, int, error) {
	filter := store.PayoutFilter{
		VendorID:     f.VendorID,
		Status:       f.Status,
		TransferType: f.TransferType,
		NeedsReview:  f.NeedsReview,
		Page:         f.Page,
	}
	if !actor.IsAdmin() && !actor.IsSystem() {
		id := actor.ID
		filter.VendorID = &id
	}
	var list []*models.Payout
	var total int
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		list, total, err = tx.ListPayouts(ctx, filter)
		return err
	})
	return list, total, err
}

func (e *engine) Stats(ctx context.Context, actor auth.Identity, vendorID *uuid.UUID, since *time.Time) (*Stats, error) {
	if !actor.IsAdmin() && !actor.IsSystem() {
		id := actor.ID
		vendorID = &id
	}
	var by map[string]models.StatusTotal
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		by, err = tx.PayoutStats(ctx, store.PayoutStatsFilter{VendorID: vendorID, Since: since})
		return err
	})
	if err != nil {
		return nil, err
	}
	if by == nil {
		by = map[string]models.StatusTotal{}
	}
	out := &Stats{ByStatus: by}
	for _, t := range by {
		out.Total.Count += t.Count
		out.Total.Amount = out.Total.Amount.Add(t.Amount)
	}
	return out, nil
}

func (e *engine) ProviderBalance(ctx context.Context, actor auth.Identity) (*provider.Balance, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.provider.AccountBalance(callCtx)
}
