package reconciler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emojid_reconcile_cycles_total",
		Help: "Completed reconciliation cycles.",
	})
	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "emojid_reconcile_cycle_seconds",
		Help:    "Duration of a reconciliation cycle.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	})
	discoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emojid_reconcile_discovered_total",
		Help: "Staged image files seen by discovery.",
	})
	duplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emojid_reconcile_duplicates_total",
		Help: "Staged files discarded because their content hash is already registered.",
	})
	registerFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emojid_reconcile_register_failures_total",
		Help: "Failed registration attempts for staged files.",
	})
	abandonedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emojid_reconcile_abandoned_total",
		Help: "Staged files deleted after exhausting the retry budget.",
	})
)
