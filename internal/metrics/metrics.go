// Package metrics exposes the engine's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adledger_settlements_total",
		Help: "Settlement runs by result (settled, skipped, deferred, error).",
	}, []string{"result"})

	ChargesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adledger_charges_total",
		Help: "Top-up charge attempts by outcome (success, declined, gateway_unavailable, cached).",
	}, []string{"outcome"})

	EscalationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adledger_escalations_total",
		Help: "Account status transitions by destination status.",
	}, []string{"to"})

	ReconcileRepairsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adledger_reconcile_repairs_total",
		Help: "Drift repairs issued by the reconciliation sweep, by kind.",
	}, []string{"kind"})

	PlatformCallFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adledger_platform_call_failures_total",
		Help: "Campaign platform control calls that failed after retries.",
	})
)
