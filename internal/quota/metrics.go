package quota

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	spendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signald",
			Subsystem: "quota",
			Name:      "spend_total",
			Help:      "Budgeted tool calls reserved.",
		},
		[]string{"tool"},
	)

	denialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signald",
			Subsystem: "quota",
			Name:      "denials_total",
			Help:      "Tool calls denied, by reason.",
		},
		[]string{"tool", "reason"},
	)

	cacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signald",
			Subsystem: "quota",
			Name:      "cache_hits_total",
			Help:      "Tool calls served from the result cache.",
		},
		[]string{"tool"},
	)
)
