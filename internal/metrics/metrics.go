// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dravya_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dravya_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"method", "route"})

	LedgerEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dravya_ledger_entries_total",
		Help: "Ledger entries appended, by entry type",
	}, []string{"type"})

	TopUpsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dravya_topups_resolved_total",
		Help: "Top-up requests resolved, by decision",
	}, []string{"decision"})

	PayoutsInitiated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dravya_payouts_initiated_total",
		Help: "Payout initiations, by outcome",
	}, []string{"outcome"})

	PayoutTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dravya_payout_transitions_total",
		Help: "Payout status transitions, by target status",
	}, []string{"status"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dravya_provider_request_duration_seconds",
		Help:    "Payment provider call latency",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"operation", "result"})

	ReconcileChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dravya_reconcile_checks_total",
		Help: "Reconciliation status checks, by result",
	}, []string{"result"})

	PayoutsFlagged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dravya_payouts_flagged_total",
		Help: "Payouts flagged for manual review",
	})
)
