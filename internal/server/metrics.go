package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadence_actions_total",
		Help: "Actions attempted through the API, by kind and result.",
	}, []string{"kind", "result"})

	triggerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cadence_trigger_duration_seconds",
		Help:    "Wall time of trigger handlers, including generation and publish delays.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"kind"})
)
