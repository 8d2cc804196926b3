// Package reconcile revisits payouts the payment rail has not settled yet,
// and failures booked while the rail was unreachable.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/dravya/backend/internal/auth"
	"github.com/dravya/backend/internal/metrics"
	"github.com/dravya/backend/internal/models"
	"github.com/dravya/backend/internal/payout"
	"github.com/dravya/backend/internal/store"
)

type Config struct {
	// Interval is both the sweep period and the minimum gap between two
	// checks of the same payout.
	Interval time.Duration
	// Grace keeps freshly initiated payouts out of the sweep.
	Grace       time.Duration
	MaxAttempts int
	Batch       int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Minute
	}
	if c.Grace < 0 {
		c.Grace = 0
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 60
	}
	if c.Batch <= 0 {
		c.Batch = 100
	}
	return c
}

// Result summarises one sweep.
type Result struct {
	Checked  int
	Resolved int
	Flagged  int
	Failed   int
}

type Poller struct {
	store  store.Store
	engine payout.Engine
	cfg    Config
	log    *slog.Logger
	now    func() time.Time
}

func NewPoller(st store.Store, e payout.Engine, cfg Config, log *slog.Logger) *Poller {
	if log == nil {
		log = slog.Default()
	}
	return &Poller{store: st, engine: e, cfg: cfg.withDefaults(), log: log, now: time.Now}
}

// Sweep checks one batch of unresolved payouts. Per-payout failures are
// logged and counted; only a failure to select the batch is returned.
func (p *Poller) Sweep(ctx context.Context) (Result, error) {
	now := p.now().UTC()
	var due []*models.Payout
	err := p.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		due, err = tx.ListUnresolvedPayouts(ctx, store.UnresolvedFilter{
			CreatedBefore: now.Add(-p.cfg.Grace),
			CheckedBefore: now.Add(-p.cfg.Interval),
			Limit:         p.cfg.Batch,
		})
		return err
	})
	if err != nil {
		return Result{}, err
	}

	var res Result
	system := auth.System()
	for _, row := range due {
		if ctx.Err() != nil {
			break
		}
		ref := row.MerchantReferenceID
		res.Checked++

		lastErr := ""
		out, err := p.engine.CheckStatus(ctx, system, ref)
		switch {
		case err != nil:
			res.Failed++
			lastErr = err.Error()
			metrics.ReconcileChecks.WithLabelValues("error").Inc()
			p.log.Warn("reconcile check failed", "reference", ref, "error", err)
		case out.NeedsReview:
			res.Flagged++
			metrics.ReconcileChecks.WithLabelValues("flagged").Inc()
			continue
		case models.PayoutTerminal(out.Status) && !out.Unconfirmed:
			res.Resolved++
			metrics.ReconcileChecks.WithLabelValues("resolved").Inc()
			p.log.Info("payout reconciled", "reference", ref, "status", out.Status)
			continue
		default:
			metrics.ReconcileChecks.WithLabelValues("unresolved").Inc()
		}

		rec, err := p.engine.RecordAttempt(ctx, ref, p.cfg.MaxAttempts, lastErr)
		if err != nil {
			p.log.Error("record reconcile attempt", "reference", ref, "error", err)
			continue
		}
		if rec.NeedsReview {
			res.Flagged++
		}
	}
	if res.Checked > 0 {
		p.log.Info("reconcile sweep finished", "checked", res.Checked, "resolved", res.Resolved, "flagged", res.Flagged, "failed", res.Failed)
	}
	return res, nil
}

// Run sweeps every Interval until ctx is cancelled. It is used when no job
// queue is available, i.e. with the in-memory store.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := p.Sweep(ctx); err != nil && ctx.Err() == nil {
			p.log.Error("reconcile sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
