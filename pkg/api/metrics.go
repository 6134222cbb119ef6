package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	matchHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emojid_match_hits_total",
		Help: "Match requests that returned an emoji.",
	})
	matchMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emojid_match_misses_total",
		Help: "Match requests with no qualifying emoji.",
	})
)
