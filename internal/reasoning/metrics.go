package reasoning

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	roundsPerRun = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "signald",
			Subsystem: "reasoning",
			Name:      "rounds_per_run",
			Help:      "Planner/Executor cycles per orchestration run.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		},
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "signald",
			Subsystem: "reasoning",
			Name:      "run_duration_seconds",
			Help:      "End-to-end orchestration duration.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	outcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signald",
			Subsystem: "reasoning",
			Name:      "outcomes_total",
			Help:      "Final signals by action and path.",
		},
		[]string{"action", "path"},
	)

	abortsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signald",
			Subsystem: "reasoning",
			Name:      "aborts_total",
			Help:      "Runs aborted to the preliminary signal, by reason.",
		},
		[]string{"reason"},
	)

	malformedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signald",
			Subsystem: "reasoning",
			Name:      "malformed_responses_total",
			Help:      "Unparseable backend responses, by stage.",
		},
		[]string{"stage"},
	)
)
