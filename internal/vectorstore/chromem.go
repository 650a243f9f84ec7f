package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemConfig holds configuration for the chromem-go embedded store.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// VectorSize is the expected embedding dimension.
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.local/share/signald/vectorstore"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore is the embedded Store implementation using chromem-go.
// It needs no external service, which makes it the degrade target when
// the remote store is unreachable and the default for local runs.
//
// chromem cannot enumerate stored documents, so the store keeps a
// per-collection metadata index alongside the vector data. The index is
// rebuilt from upserts only, which means QueryMeta sees records written
// during the current process lifetime.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger

	mu      sync.RWMutex
	records map[string]map[string]Record
}

// NewChromemStore creates a ChromemStore backed by persistent gob files.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	path, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	logger.Info("chromem store initialized",
		zap.String("path", path),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize))

	return &ChromemStore{
		db:      db,
		config:  config,
		logger:  logger,
		records: make(map[string]map[string]Record),
	}, nil
}

// expandPath expands ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// noEmbedding satisfies chromem's embedding func requirement. All
// records carry precomputed embeddings, so it is never called.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("embeddings must be precomputed")
}

func (s *ChromemStore) collection(name string) (*chromem.Collection, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}
	collection, err := s.db.GetOrCreateCollection(name, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", name, err)
	}
	return collection, nil
}

// EnsureCollection creates the collection if it does not exist.
func (s *ChromemStore) EnsureCollection(ctx context.Context, collection string, vectorSize int) error {
	_, err := s.collection(collection)
	return err
}

// Upsert stores records with their precomputed embeddings.
func (s *ChromemStore) Upsert(ctx context.Context, collectionName string, recs []Record) error {
	if len(recs) == 0 {
		return ErrEmptyRecords
	}
	collection, err := s.collection(collectionName)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(recs))
	for i, rec := range recs {
		if len(rec.Embedding) == 0 {
			return fmt.Errorf("record %s has no embedding", rec.ID)
		}
		docs[i] = chromem.Document{
			ID:        rec.ID,
			Content:   rec.Content,
			Metadata:  metaToStrings(rec.Meta),
			Embedding: rec.Embedding,
		}
	}

	// Concurrency of 1 since embeddings are already computed.
	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding documents to %s: %w", collectionName, err)
	}

	s.mu.Lock()
	index := s.records[collectionName]
	if index == nil {
		index = make(map[string]Record)
		s.records[collectionName] = index
	}
	for _, rec := range recs {
		index[rec.ID] = rec
	}
	s.mu.Unlock()

	s.logger.Debug("upserted records",
		zap.String("collection", collectionName),
		zap.Int("count", len(recs)))
	return nil
}

// QueryEmbedding performs similarity search, best first.
func (s *ChromemStore) QueryEmbedding(ctx context.Context, collectionName string, embedding []float32, k int, f Filter) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	collection, err := s.collection(collectionName)
	if err != nil {
		return nil, err
	}

	// chromem requires nResults <= document count.
	count := collection.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := collection.QueryEmbedding(ctx, embedding, k, stringMatch(f.Match), nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", collectionName, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hit := Hit{
			ID:      r.ID,
			Content: r.Content,
			Score:   r.Similarity,
			Meta:    metaFromStrings(r.Metadata),
		}
		if f.MinScore > 0 && hit.Score < f.MinScore {
			continue
		}
		if !matchesFilter(hit, f) {
			continue
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// QueryMeta scans the sidecar index, most recent first.
func (s *ChromemStore) QueryMeta(ctx context.Context, collectionName string, f Filter, limit int) ([]Hit, error) {
	if err := ValidateCollectionName(collectionName); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	index := s.records[collectionName]
	hits := make([]Hit, 0, len(index))
	for _, rec := range index {
		hit := Hit{ID: rec.ID, Content: rec.Content, Meta: rec.Meta}
		if matchesFilter(hit, f) && matchesExact(hit, f.Match) {
			hits = append(hits, hit)
		}
	}
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		return hits[i].CreatedAt().After(hits[j].CreatedAt())
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Healthy always succeeds for the embedded store.
func (s *ChromemStore) Healthy(ctx context.Context) error {
	return nil
}

// Close is a no-op; chromem persists on every write.
func (s *ChromemStore) Close() error {
	return nil
}

// matchesExact applies exact string-match conditions against metadata.
func matchesExact(hit Hit, match map[string]string) bool {
	for key, want := range match {
		if hit.MetaString(key) != want {
			return false
		}
	}
	return true
}

// matchesFilter applies the non-exact filter conditions client-side.
func matchesFilter(hit Hit, f Filter) bool {
	if !f.CreatedAfter.IsZero() && hit.CreatedAt().Before(f.CreatedAfter) {
		return false
	}
	if f.MinConfidence > 0 && hit.Confidence() < f.MinConfidence {
		return false
	}
	for key, values := range f.MatchAny {
		if len(values) == 0 {
			continue
		}
		have := hit.MetaStrings(key)
		found := false
		for _, want := range values {
			for _, h := range have {
				if h == want {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// stringMatch converts exact-match conditions to a chromem where filter.
func stringMatch(match map[string]string) map[string]string {
	if len(match) == 0 {
		return nil
	}
	where := make(map[string]string, len(match))
	for k, v := range match {
		where[k] = v
	}
	return where
}

// metaToStrings flattens metadata to chromem's string map format.
func metaToStrings(meta map[string]any) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		switch val := v.(type) {
		case string:
			out[k] = val
		case int:
			out[k] = strconv.Itoa(val)
		case int64:
			out[k] = strconv.FormatInt(val, 10)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		case []string:
			out[k] = strings.Join(val, ",")
		}
	}
	return out
}

// metaFromStrings restores typed metadata for the keys the domain reads.
func metaFromStrings(meta map[string]string) map[string]any {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		switch k {
		case MetaCreatedAt:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				out[k] = n
				continue
			}
			out[k] = v
		case MetaConfidence:
			if fl, err := strconv.ParseFloat(v, 64); err == nil {
				out[k] = fl
				continue
			}
			out[k] = v
		case MetaAssets, MetaKeywords:
			if v == "" {
				out[k] = []string(nil)
				continue
			}
			out[k] = strings.Split(v, ",")
		default:
			out[k] = v
		}
	}
	return out
}

// Ensure ChromemStore implements Store.
var _ Store = (*ChromemStore)(nil)
