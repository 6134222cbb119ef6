package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "emojid_registry_active_records",
		Help: "Number of active (non-tombstoned) emoji records.",
	})
	registrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emojid_registry_registrations_total",
		Help: "Successfully registered emoji records.",
	})
	deletionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emojid_registry_deletions_total",
		Help: "Records tombstoned by deletion (API, integrity or eviction).",
	})
	evictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emojid_registry_evictions_total",
		Help: "Capacity evictions approved by the decision delegate.",
	})
	integrityRemovalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emojid_registry_integrity_removals_total",
		Help: "Records removed by the integrity check.",
	})
	orphansSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emojid_registry_orphans_swept_total",
		Help: "Untracked files removed from the registered directory.",
	})
	usageRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emojid_registry_usage_records_total",
		Help: "Successful usage recordings.",
	})
)
