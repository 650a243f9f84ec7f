package embeddings

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "signald",
			Subsystem: "embeddings",
			Name:      "generation_duration_seconds",
			Help:      "Duration of embedding generation calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"model", "operation"},
	)

	generationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signald",
			Subsystem: "embeddings",
			Name:      "generations_total",
			Help:      "Total embedding generation calls",
		},
		[]string{"model", "operation", "result"},
	)
)

// instrumentedProvider wraps a Provider with prometheus metrics.
type instrumentedProvider struct {
	inner  Provider
	model  string
	logger *zap.Logger
}

func newInstrumentedProvider(inner Provider, model string, logger *zap.Logger) Provider {
	return &instrumentedProvider{inner: inner, model: model, logger: logger}
}

func (p *instrumentedProvider) record(op string, start time.Time, err error) {
	generationDuration.WithLabelValues(p.model, op).Observe(time.Since(start).Seconds())
	result := "success"
	if err != nil {
		result = "error"
	}
	generationTotal.WithLabelValues(p.model, op, result).Inc()
}

func (p *instrumentedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := p.inner.EmbedDocuments(ctx, texts)
	p.record("embed_documents", start, err)
	return vectors, err
}

func (p *instrumentedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vector, err := p.inner.EmbedQuery(ctx, text)
	p.record("embed_query", start, err)
	return vector, err
}

func (p *instrumentedProvider) Dimension() int {
	return p.inner.Dimension()
}

func (p *instrumentedProvider) Close() error {
	return p.inner.Close()
}
