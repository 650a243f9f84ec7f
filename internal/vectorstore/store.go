package vectorstore

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// Sentinel errors for store operations.
var (
	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid store configuration")

	// ErrConnectionFailed indicates the remote store could not be reached.
	ErrConnectionFailed = errors.New("failed to connect to store")

	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrEmptyRecords indicates empty or nil records.
	ErrEmptyRecords = errors.New("empty or nil records")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name against naming rules.
func ValidateCollectionName(name string) error {
	if name == "" {
		return errors.Join(ErrInvalidCollectionName, errors.New("collection name cannot be empty"))
	}
	if !collectionNamePattern.MatchString(name) {
		return ErrInvalidCollectionName
	}
	return nil
}

// Well-known metadata keys shared by both backends.
const (
	// MetaCreatedAt is a unix-seconds timestamp (stored numerically).
	MetaCreatedAt = "created_at"

	// MetaConfidence is the historical outcome confidence in [0,1].
	MetaConfidence = "confidence"

	// MetaAssets is the list of asset tickers a record concerns.
	MetaAssets = "assets"

	// MetaKeywords is the list of watchlist keywords a record matched.
	MetaKeywords = "keywords"
)

// Record is one stored row: an identity, text, a vector, and metadata.
type Record struct {
	// ID is the unique record identifier. Callers must provide it.
	ID string

	// Content is the text behind the vector (summary or canonical text).
	Content string

	// Embedding is the precomputed vector. Required for qdrant; chromem
	// also requires it since signald precomputes all embeddings.
	Embedding []float32

	// Meta holds filterable attributes. Values may be string, int64,
	// float64, bool, or []string.
	Meta map[string]any
}

// Hit is one query result.
type Hit struct {
	ID      string
	Content string

	// Score is cosine similarity for vector queries; zero for metadata
	// queries (callers compute their own ranking there).
	Score float32

	Meta map[string]any
}

// CreatedAt extracts the record timestamp from hit metadata.
func (h Hit) CreatedAt() time.Time {
	switch v := h.Meta[MetaCreatedAt].(type) {
	case int64:
		return time.Unix(v, 0).UTC()
	case float64:
		return time.Unix(int64(v), 0).UTC()
	default:
		return time.Time{}
	}
}

// Confidence extracts the historical confidence from hit metadata.
func (h Hit) Confidence() float64 {
	switch v := h.Meta[MetaConfidence].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// MetaString extracts a string metadata value, or "".
func (h Hit) MetaString(key string) string {
	s, _ := h.Meta[key].(string)
	return s
}

// MetaStrings extracts a string-list metadata value, or nil.
func (h Hit) MetaStrings(key string) []string {
	switch v := h.Meta[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Filter narrows queries. Zero values disable each condition.
type Filter struct {
	// Match requires exact payload equality for every listed key.
	Match map[string]string

	// MatchAny requires the payload value (scalar or list) to intersect
	// the given set, per key.
	MatchAny map[string][]string

	// CreatedAfter bounds the recency window.
	CreatedAfter time.Time

	// MinConfidence filters by the historical-confidence floor.
	MinConfidence float64

	// MinScore is the similarity threshold for vector queries.
	MinScore float32
}

// Store is the ranked store contract used by dedup and retrieval.
//
// Implementations:
//   - QdrantStore: remote gRPC store (production)
//   - ChromemStore: embedded chromem-go store (single node, tests)
//
// All implementations are safe for concurrent use.
type Store interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, collection string, vectorSize int) error

	// Upsert inserts or replaces records in a collection.
	Upsert(ctx context.Context, collection string, recs []Record) error

	// QueryEmbedding performs similarity search, filtered, best first.
	QueryEmbedding(ctx context.Context, collection string, embedding []float32, k int, f Filter) ([]Hit, error)

	// QueryMeta returns records matching the filter without vector
	// ranking, most recent first. Used for exact-hash dedup lookups and
	// keyword retrieval.
	QueryMeta(ctx context.Context, collection string, f Filter, limit int) ([]Hit, error)

	// Healthy probes the backend. An error marks the store unreachable
	// and triggers local degradation upstream.
	Healthy(ctx context.Context) error

	// Close releases resources.
	Close() error
}
