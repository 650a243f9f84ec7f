package dedup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	duplicatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signald",
			Subsystem: "dedup",
			Name:      "duplicates_total",
			Help:      "Duplicate events detected, by matching stage.",
		},
		[]string{"stage"},
	)

	failOpenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signald",
			Subsystem: "dedup",
			Name:      "fail_open_total",
			Help:      "Lookups that failed and let the event through, by stage.",
		},
		[]string{"stage"},
	)
)
