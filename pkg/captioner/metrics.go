package captioner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emojid_captioner_requests_total",
		Help: "Successful captioner chat completions.",
	})
	requestRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emojid_captioner_retries_total",
		Help: "Retried captioner requests (429, 5xx or network error).",
	})
	requestFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emojid_captioner_failures_total",
		Help: "Captioner requests abandoned after exhausting retries.",
	})
)
