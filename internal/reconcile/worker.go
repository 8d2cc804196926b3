package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
)

// SweepArgs is the River job that runs one reconciliation sweep.
type SweepArgs struct{}

func (SweepArgs) Kind() string { return "reconcile_payouts" }

type Worker struct {
	river.WorkerDefaults[SweepArgs]
	poller *Poller
}

func NewWorker(p *Poller) *Worker {
	return &Worker{poller: p}
}

func (w *Worker) Work(ctx context.Context, job *river.Job[SweepArgs]) error {
	if _, err := w.poller.Sweep(ctx); err != nil {
		return fmt.Errorf("reconcile sweep: %w", err)
	}
	return nil
}

// Timeout bounds a sweep to one interval so sweeps never pile up.
func (w *Worker) Timeout(*river.Job[SweepArgs]) time.Duration {
	return w.poller.cfg.Interval
}

// PeriodicJob schedules a sweep every Interval, starting at client start.
func PeriodicJob(cfg Config) *river.PeriodicJob {
	cfg = cfg.withDefaults()
	return river.NewPeriodicJob(
		river.PeriodicInterval(cfg.Interval),
		func() (river.JobArgs, *river.InsertOpts) {
			return SweepArgs{}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	)
}
