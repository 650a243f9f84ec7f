package vectorstore

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "signald",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)

	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signald",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total vector store operations by result.",
		},
		[]string{"provider", "operation", "result"},
	)

	storeHealthy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "signald",
			Subsystem: "vectorstore",
			Name:      "store_healthy",
			Help:      "Whether the last persistent store probe passed (1) or failed (0).",
		},
	)
)

func setHealthGauge(healthy bool) {
	if healthy {
		storeHealthy.Set(1)
	} else {
		storeHealthy.Set(0)
	}
}

// instrumentedStore wraps a Store with Prometheus metrics.
type instrumentedStore struct {
	inner    Store
	provider string
}

func newInstrumentedStore(inner Store, provider string) Store {
	return &instrumentedStore{inner: inner, provider: provider}
}

func (s *instrumentedStore) observe(operation string, start time.Time, err error) {
	operationDuration.WithLabelValues(s.provider, operation).Observe(time.Since(start).Seconds())
	result := "success"
	if err != nil {
		result = "error"
	}
	operationsTotal.WithLabelValues(s.provider, operation, result).Inc()
}

func (s *instrumentedStore) EnsureCollection(ctx context.Context, collection string, vectorSize int) error {
	start := time.Now()
	err := s.inner.EnsureCollection(ctx, collection, vectorSize)
	s.observe("ensure_collection", start, err)
	return err
}

func (s *instrumentedStore) Upsert(ctx context.Context, collection string, recs []Record) error {
	start := time.Now()
	err := s.inner.Upsert(ctx, collection, recs)
	s.observe("upsert", start, err)
	return err
}

func (s *instrumentedStore) QueryEmbedding(ctx context.Context, collection string, embedding []float32, k int, f Filter) ([]Hit, error) {
	start := time.Now()
	hits, err := s.inner.QueryEmbedding(ctx, collection, embedding, k, f)
	s.observe("query_embedding", start, err)
	return hits, err
}

func (s *instrumentedStore) QueryMeta(ctx context.Context, collection string, f Filter, limit int) ([]Hit, error) {
	start := time.Now()
	hits, err := s.inner.QueryMeta(ctx, collection, f, limit)
	s.observe("query_meta", start, err)
	return hits, err
}

func (s *instrumentedStore) Healthy(ctx context.Context) error {
	return s.inner.Healthy(ctx)
}

func (s *instrumentedStore) Close() error {
	return s.inner.Close()
}
