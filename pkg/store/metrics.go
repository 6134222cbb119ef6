package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	savesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emojid_store_saves_total",
		Help: "Number of full-replace writes of the record collection.",
	})
	saveFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emojid_store_save_failures_total",
		Help: "Number of failed record collection writes.",
	})
	loadWarningsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emojid_store_load_warnings_total",
		Help: "Number of loads that fell back to an empty collection.",
	})
	storeSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "emojid_store_size_bytes",
		Help: "Size of the serialized record collection in bytes.",
	})
)
