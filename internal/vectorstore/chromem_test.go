package vectorstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore(ChromemConfig{
		Path:       t.TempDir(),
		VectorSize: 3,
	}, zap.NewNop())
	require.NoError(t, err)
	return store
}

func testRecord(id string, embedding []float32, createdAt time.Time) Record {
	return Record{
		ID:        id,
		Content:   "content for " + id,
		Embedding: embedding,
		Meta: map[string]any{
			MetaCreatedAt:  createdAt.Unix(),
			MetaConfidence: 0.8,
			MetaAssets:     []string{"BTC"},
			"hash_raw":     "hash-" + id,
		},
	}
}

func TestChromemStore_UpsertAndQueryEmbedding(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	err := store.Upsert(ctx, "events", []Record{
		testRecord("a", []float32{1, 0, 0}, now),
		testRecord("b", []float32{0, 1, 0}, now),
	})
	require.NoError(t, err)

	hits, err := store.QueryEmbedding(ctx, "events", []float32{1, 0, 0}, 2, Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "a", hits[0].ID)
	assert.InDelta(t, 1.0, float64(hits[0].Score), 0.01)
	assert.Equal(t, []string{"BTC"}, hits[0].MetaStrings(MetaAssets))
}

func TestChromemStore_QueryEmbedding_MinScore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Upsert(ctx, "events", []Record{
		testRecord("a", []float32{1, 0, 0}, time.Now()),
		testRecord("b", []float32{0, 1, 0}, time.Now()),
	})
	require.NoError(t, err)

	hits, err := store.QueryEmbedding(ctx, "events", []float32{1, 0, 0}, 2, Filter{MinScore: 0.9})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)
}

func TestChromemStore_QueryEmbedding_EmptyCollection(t *testing.T) {
	store := newTestStore(t)

	hits, err := store.QueryEmbedding(context.Background(), "events", []float32{1, 0, 0}, 5, Filter{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestChromemStore_QueryMeta_ExactMatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	err := store.Upsert(ctx, "events", []Record{
		testRecord("a", []float32{1, 0, 0}, now.Add(-time.Hour)),
		testRecord("b", []float32{0, 1, 0}, now),
	})
	require.NoError(t, err)

	hits, err := store.QueryMeta(ctx, "events", Filter{
		Match: map[string]string{"hash_raw": "hash-b"},
	}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ID)
}

func TestChromemStore_QueryMeta_WindowAndOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	err := store.Upsert(ctx, "events", []Record{
		testRecord("old", []float32{1, 0, 0}, now.Add(-96*time.Hour)),
		testRecord("mid", []float32{0, 1, 0}, now.Add(-time.Hour)),
		testRecord("new", []float32{0, 0, 1}, now),
	})
	require.NoError(t, err)

	hits, err := store.QueryMeta(ctx, "events", Filter{
		CreatedAfter: now.Add(-72 * time.Hour),
	}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "new", hits[0].ID)
	assert.Equal(t, "mid", hits[1].ID)
}

func TestChromemStore_QueryMeta_MatchAny(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("a", []float32{1, 0, 0}, time.Now())
	rec.Meta[MetaAssets] = []string{"ETH", "SOL"}
	require.NoError(t, store.Upsert(ctx, "events", []Record{
		rec,
		testRecord("b", []float32{0, 1, 0}, time.Now()),
	}))

	hits, err := store.QueryMeta(ctx, "events", Filter{
		MatchAny: map[string][]string{MetaAssets: {"SOL"}},
	}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)
}

func TestChromemStore_Upsert_EmptyRecords(t *testing.T) {
	store := newTestStore(t)

	err := store.Upsert(context.Background(), "events", nil)
	assert.ErrorIs(t, err, ErrEmptyRecords)
}

func TestChromemStore_Upsert_MissingEmbedding(t *testing.T) {
	store := newTestStore(t)

	err := store.Upsert(context.Background(), "events", []Record{{ID: "a", Content: "x"}})
	assert.Error(t, err)
}

func TestValidateCollectionName(t *testing.T) {
	assert.NoError(t, ValidateCollectionName("signald_events"))
	assert.ErrorIs(t, ValidateCollectionName(""), ErrInvalidCollectionName)
	assert.ErrorIs(t, ValidateCollectionName("Bad Name"), ErrInvalidCollectionName)
	assert.ErrorIs(t, ValidateCollectionName("has-dash"), ErrInvalidCollectionName)
}
