// Package dashboard assembles the admin overview and the caller's own profile.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dravya/backend/internal/auth"
	"github.com/dravya/backend/internal/models"
	"github.com/dravya/backend/internal/payout"
	"github.com/dravya/backend/internal/provider"
	"github.com/dravya/backend/internal/store"
	"github.com/dravya/backend/internal/vendor"
)

const (
	recentLimit     = 10
	topVendorsLimit = 5
	walletsLimit    = 20
)

type TransactionStats struct {
	Overall *payout.Stats `json:"overall"`
	Today   *payout.Stats `json:"today"`
}

// Overview is the admin landing snapshot. ProviderBalance is nil when the
// rail could not be reached; ProviderError then says why.
type Overview struct {
	ProviderBalance    *provider.Balance         `json:"provider_balance"`
	ProviderError      string                    `json:"provider_error,omitempty"`
	VendorStatusCounts *vendor.StatusCounts      `json:"vendor_status_counts"`
	VendorWallets      []*vendor.Detail          `json:"vendor_wallets"`
	RecentTransactions []*models.Payout          `json:"recent_transactions"`
	TopVendors         []store.VendorPayoutTotal `json:"top_vendors"`
	TransactionStats   TransactionStats          `json:"transaction_stats"`
	GeneratedAt        time.Time                 `json:"generated_at"`
}

// Profile is returned by /me.
type Profile struct {
	*models.Account
	Wallet *models.Wallet `json:"wallet,omitempty"`
}

type Service interface {
	Overview(ctx context.Context, actor auth.Identity) (*Overview, error)
	Me(ctx context.Context, actor auth.Identity) (*Profile, error)
}

type service struct {
	store   store.Store
	payouts payout.Engine
	vendors vendor.Service
	log     *slog.Logger
	now     func() time.Time
}

func NewService(st store.Store, payouts payout.Engine, vendors vendor.Service, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{store: st, payouts: payouts, vendors: vendors, log: log, now: time.Now}
}

var _ Service = (*service)(nil)

func (s *service) Overview(ctx context.Context, actor auth.Identity) (*Overview, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	out := &Overview{GeneratedAt: now}

	bal, err := s.payouts.ProviderBalance(ctx, actor)
	if err != nil {
		s.log.Warn("dashboard provider balance", "error", err)
		out.ProviderError = err.Error()
	} else {
		out.ProviderBalance = bal
	}

	if out.VendorStatusCounts, err = s.vendors.Counts(ctx, actor); err != nil {
		return nil, fmt.Errorf("vendor counts: %w", err)
	}
	if out.VendorWallets, _, err = s.vendors.List(ctx, actor, models.AccountStatusActive, models.Page{Page: 1, Limit: walletsLimit}); err != nil {
		return nil, fmt.Errorf("vendor wallets: %w", err)
	}
	if out.RecentTransactions, _, err = s.payouts.List(ctx, actor, payout.ListFilter{Page: models.Page{Page: 1, Limit: recentLimit}}); err != nil {
		return nil, fmt.Errorf("recent payouts: %w", err)
	}
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		out.TopVendors, err = tx.TopVendorsByPayout(ctx, nil, topVendorsLimit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("top vendors: %w", err)
	}
	if out.TopVendors == nil {
		out.TopVendors = []store.VendorPayoutTotal{}
	}

	if out.TransactionStats.Overall, err = s.payouts.Stats(ctx, actor, nil, nil); err != nil {
		return nil, fmt.Errorf("payout stats: %w", err)
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if out.TransactionStats.Today, err = s.payouts.Stats(ctx, actor, nil, &midnight); err != nil {
		return nil, fmt.Errorf("payout stats today: %w", err)
	}
	return out, nil
}

func (s *service) Me(ctx context.Context, actor auth.Identity) (*Profile, error) {
	var p Profile
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		acc, err := tx.GetAccount(ctx, actor.ID)
		if err != nil {
			return err
		}
		p.Account = acc
		if acc.Role != models.RoleVendor {
			return nil
		}
		p.Wallet, err = tx.GetWalletByVendor(ctx, acc.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", actor.ID, err)
	}
	return &p, nil
}
