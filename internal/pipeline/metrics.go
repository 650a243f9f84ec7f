package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var processedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "signald",
		Subsystem: "pipeline",
		Name:      "events_processed_total",
		Help:      "Incoming events by outcome.",
	},
	[]string{"outcome"},
)
