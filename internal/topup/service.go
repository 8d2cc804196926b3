// Package topup implements admin-approved wallet top-ups.
package topup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dravya/backend/internal/auth"
	"github.com/dravya/backend/internal/ledger"
	"github.com/dravya/backend/internal/metrics"
	"github.com/dravya/backend/internal/models"
	"github.com/dravya/backend/internal/money"
	"github.com/dravya/backend/internal/store"
	"github.com/dravya/backend/internal/validation"
)

// Decisions accepted by Resolve.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// DefaultMaxTopUp is ten lakh rupees.
var DefaultMaxTopUp = money.MustParse("1000000.00")

type Resolution struct {
	Decision        string `json:"decision"`
	Notes           string `json:"notes"`
	RejectionReason string `json:"rejection_reason"`
}

type ListFilter struct {
	// VendorID is only honoured for admins.
	VendorID *uuid.UUID
	Status   string
	Page     models.Page
}

type Stats struct {
	ByStatus map[string]models.StatusTotal `json:"by_status"`
	Total    models.StatusTotal            `json:"total"`
}

type Service interface {
	// Submit always creates a new pending request; duplicates are the caller's concern.
	Submit(ctx context.Context, actor auth.Identity, amount money.Amount) (*models.TopUpRequest, error)
	// Resolve approves or rejects a pending request exactly once. Approval
	// credits the wallet in the same transaction as the status change.
	Resolve(ctx context.Context, actor auth.Identity, id uuid.UUID, res Resolution) (*models.TopUpRequest, error)
	Get(ctx context.Context, actor auth.Identity, id uuid.UUID) (*models.TopUpRequest, error)
	List(ctx context.Context, actor auth.Identity, f ListFilter) ([]*models.TopUpRequest, int, error)
	Stats(ctx context.Context, actor auth.Identity, vendorID *uuid.UUID) (*Stats, error)
}

type Config struct {
	MaxTopUp money.Amount
}

type service struct {
	store  store.Store
	ledger ledger.Service
	max    money.Amount
	log    *slog.Logger
	now    func() time.Time
}

func NewService(st store.Store, l ledger.Service, cfg Config, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	if !cfg.MaxTopUp.IsPositive() {
		cfg.MaxTopUp = DefaultMaxTopUp
	}
	return &service{store: st, ledger: l, max: cfg.MaxTopUp, log: log, now: time.Now}
}

var _ Service = (*service)(nil)

func (s *service) Submit(ctx context.Context, actor auth.Identity, amount money.Amount) (*models.TopUpRequest, error) {
	if err := actor.RequireActiveVendor(actor.ID); err != nil {
		return nil, err
	}
	if !amount.IsPositive() || amount.GreaterThan(s.max) {
		return nil, fmt.Errorf("top-up %s outside (0, %s]: %w", amount, s.max, models.ErrInvalidAmount)
	}
	r := &models.TopUpRequest{
		ID:        uuid.New(),
		VendorID:  actor.ID,
		Amount:    amount,
		Status:    models.TopUpPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.InTx(ctx, func(tx store.Tx) error { return tx.InsertTopUp(ctx, r) }); err != nil {
		return nil, fmt.Errorf("submit top-up: %w", err)
	}
	s.log.Info("top-up requested", "request_id", r.ID, "vendor_id", r.VendorID, "amount", amount.String())
	return r, nil
}

func (s *service) Resolve(ctx context.Context, actor auth.Identity, id uuid.UUID, res Resolution) (*models.TopUpRequest, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	res.RejectionReason = strings.TrimSpace(res.RejectionReason)
	switch res.Decision {
	case DecisionApprove:
	case DecisionReject:
		if res.RejectionReason == "" {
			return nil, fmt.Errorf("rejection_reason is required: %w", validation.ErrValidation)
		}
	default:
		return nil, fmt.Errorf("decision %q: %w", res.Decision, validation.ErrValidation)
	}

	var out *models.TopUpRequest
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		r, err := tx.LockTopUp(ctx, id)
		if err != nil {
			return err
		}
		if r.Status != models.TopUpPending {
			return fmt.Errorf("request is %s: %w", r.Status, models.ErrAlreadyResolved)
		}
		now := s.now().UTC()
		adminID := actor.ID
		r.AdminID = &adminID
		r.AdminNotes = strings.TrimSpace(res.Notes)
		r.ProcessedAt = &now

		if res.Decision == DecisionReject {
			r.Status = models.TopUpRejected
			r.RejectionReason = res.RejectionReason
		} else {
			vendor, err := tx.LockAccount(ctx, r.VendorID)
			if err != nil {
				return fmt.Errorf("vendor %s: %w", r.VendorID, err)
			}
			if !vendor.IsActiveVendor() {
				return fmt.Errorf("vendor %s is %s: %w", vendor.ID, vendor.Status, models.ErrUnauthorized)
			}
			w, err := tx.GetWalletByVendor(ctx, r.VendorID)
			if err != nil {
				return fmt.Errorf("wallet for vendor %s: %w", r.VendorID, err)
			}
			entry, err := s.ledger.CreditTx(ctx, tx, w.ID, r.Amount, models.SourceRef{Kind: models.SourceTopUpRequest, ID: r.ID})
			if err != nil {
				return err
			}
			r.Status = models.TopUpApproved
			r.LedgerEntryID = &entry.ID
		}
		if err := tx.UpdateTopUp(ctx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve top-up %s: %w", id, err)
	}
	metrics.TopUpsResolved.WithLabelValues(res.Decision).Inc()
	s.log.Info("top-up resolved", "request_id", id, "status", out.Status, "admin_id", actor.ID)
	return out, nil
}

func (s *service) Get(ctx context.Context, actor auth.Identity, id uuid.UUID) (*models.TopUpRequest, error) {
	var r *models.TopUpRequest
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		r, err = tx.GetTopUp(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("top-up %s: %w", id, err)
	}
	if !actor.CanView(r.VendorID) {
		return nil, fmt.Errorf("top-up %s: %w", id, models.ErrUnauthorized)
	}
	return r, nil
}

func (s *service) List(ctx context.Context, actor auth.Identity, f ListFilter) ([]*models.TopUpRequest, int, error) {
	if f.Status != "" && !models.ValidTopUpStatus(f.Status) {
		return nil, 0, fmt.Errorf("status %q: %w", f.Status, validation.ErrValidation)
	}
	filter := store.TopUpFilter{VendorID: f.VendorID, Status: f.Status, Page: f.Page}
	if !actor.IsAdmin() {
		id := actor.ID
		filter.VendorID = &id
	}
	var list []*models.TopUpRequest
	var total int
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		list, total, err = tx.ListTopUps(ctx, filter)
		return err
	})
	return list, total, err
}

func (s *service) Stats(ctx context.Context, actor auth.Identity, vendorID *uuid.UUID) (*Stats, error) {
	if !actor.IsAdmin() {
		id := actor.ID
		vendorID = &id
	}
	var by map[string]models.StatusTotal
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		by, err = tx.TopUpStats(ctx, vendorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := &Stats{ByStatus: map[string]models.StatusTotal{}}
	for _, status := range []string{models.TopUpPending, models.TopUpApproved, models.TopUpRejected} {
		t := by[status]
		out.ByStatus[status] = t
		out.Total.Count += t.Count
		out.Total.Amount = out.Total.Amount.Add(t.Amount)
	}
	return out, nil
}
