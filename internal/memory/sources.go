package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/signald/internal/config"
	"github.com/fyrsmithlabs/signald/internal/event"
	"github.com/fyrsmithlabs/signald/internal/vectorstore"
)

// Source is one retrieval tier.
type Source interface {
	// Name identifies the tier in logs and metrics.
	Name() SourceKind

	// Retrieve returns up to k entries relevant to the event.
	Retrieve(ctx context.Context, ev *event.Event, k int) ([]Entry, error)
}

// VectorSource retrieves memories by embedding similarity.
type VectorSource struct {
	store      vectorstore.Store
	collection string
	cfg        config.RetrievalConfig
}

// NewVectorSource creates the primary retrieval tier.
func NewVectorSource(store vectorstore.Store, collection string, cfg config.RetrievalConfig) *VectorSource {
	return &VectorSource{store: store, collection: collection, cfg: cfg}
}

func (s *VectorSource) Name() SourceKind { return SourceVector }

func (s *VectorSource) Retrieve(ctx context.Context, ev *event.Event, k int) ([]Entry, error) {
	if !ev.HasEmbedding() {
		return nil, fmt.Errorf("event has no embedding")
	}

	hits, err := s.store.QueryEmbedding(ctx, s.collection, ev.Embedding, k, vectorstore.Filter{
		CreatedAfter:  time.Now().UTC().Add(-s.cfg.Window.Duration()),
		MinConfidence: s.cfg.ConfidenceFloor,
		MinScore:      float32(s.cfg.SimilarityThreshold),
	})
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, len(hits))
	for i, h := range hits {
		entries[i] = entryFromHit(h, SourceVector)
	}
	return entries, nil
}

// KeywordSource retrieves memories by asset and keyword overlap. It is
// the middle tier: usable when the event has no embedding, still
// dependent on the remote store.
type KeywordSource struct {
	store      vectorstore.Store
	collection string
	cfg        config.RetrievalConfig
}

// NewKeywordSource creates the keyword retrieval tier.
func NewKeywordSource(store vectorstore.Store, collection string, cfg config.RetrievalConfig) *KeywordSource {
	return &KeywordSource{store: store, collection: collection, cfg: cfg}
}

func (s *KeywordSource) Name() SourceKind { return SourceKeyword }

func (s *KeywordSource) Retrieve(ctx context.Context, ev *event.Event, k int) ([]Entry, error) {
	matchAny := make(map[string][]string)
	if ev.AssetHint != "" {
		matchAny[vectorstore.MetaAssets] = []string{ev.AssetHint}
	}
	if len(ev.KeywordsHit) > 0 {
		matchAny[vectorstore.MetaKeywords] = ev.KeywordsHit
	}
	if len(matchAny) == 0 {
		return nil, nil
	}

	hits, err := s.store.QueryMeta(ctx, s.collection, vectorstore.Filter{
		MatchAny:      matchAny,
		CreatedAfter:  time.Now().UTC().Add(-s.cfg.Window.Duration()),
		MinConfidence: s.cfg.ConfidenceFloor,
	}, k*3)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, len(hits))
	for i, h := range hits {
		e := entryFromHit(h, SourceKeyword)
		e.Similarity = blendedScore(e, ev, s.cfg.Window.Duration())
		entries[i] = e
	}
	return entries, nil
}

// blendedScore ranks keyword matches without vectors: term overlap,
// historical confidence, and freshness, weighted in that order.
func blendedScore(e Entry, ev *event.Event, window time.Duration) float64 {
	overlap := 0.0
	if ev.AssetHint != "" && contains(e.Assets, ev.AssetHint) {
		overlap += 0.5
	}
	if len(ev.KeywordsHit) > 0 {
		shared := 0
		for _, kw := range ev.KeywordsHit {
			if contains(e.Keywords, kw) {
				shared++
			}
		}
		overlap += 0.5 * float64(shared) / float64(len(ev.KeywordsHit))
	}

	freshness := 0.0
	if window > 0 && !e.CreatedAt.IsZero() {
		age := time.Since(e.CreatedAt)
		if age < window {
			freshness = 1 - float64(age)/float64(window)
		}
	}

	return 0.5*overlap + 0.3*e.Confidence + 0.2*freshness
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
