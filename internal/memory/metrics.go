package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	degradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signald",
			Subsystem: "memory",
			Name:      "degraded_total",
			Help:      "Retrieval tier failures that degraded to a lower tier.",
		},
		[]string{"source"},
	)

	retrievedTotal = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "signald",
			Subsystem: "memory",
			Name:      "entries_retrieved",
			Help:      "Merged memory entries returned per retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		},
	)
)
