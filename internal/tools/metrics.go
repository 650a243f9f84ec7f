package tools

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "signald",
			Subsystem: "tools",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of external evidence fetches.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signald",
			Subsystem: "tools",
			Name:      "fetches_total",
			Help:      "External evidence fetches by result.",
		},
		[]string{"tool", "result"},
	)
)
