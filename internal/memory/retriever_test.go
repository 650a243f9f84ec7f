package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/signald/internal/config"
	"github.com/fyrsmithlabs/signald/internal/event"
	"github.com/fyrsmithlabs/signald/internal/vectorstore"
)

// fakeSource returns canned entries or an error.
type fakeSource struct {
	kind    SourceKind
	entries []Entry
	err     error
	calls   int
}

func (f *fakeSource) Name() SourceKind { return f.kind }

func (f *fakeSource) Retrieve(ctx context.Context, ev *event.Event, k int) ([]Entry, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

func retrievalConfig() config.RetrievalConfig {
	cfg := config.RetrievalConfig{}
	cfg.ApplyDefaults()
	return cfg
}

func memEntry(id string, similarity float64) Entry {
	return Entry{
		ID:         id,
		CreatedAt:  time.Now().UTC(),
		Assets:     []string{"BTC"},
		Action:     "observe",
		Confidence: 0.7,
		Similarity: similarity,
		Summary:    "summary " + id,
	}
}

func TestRetrieve_PrimaryServes(t *testing.T) {
	vector := &fakeSource{kind: SourceVector, entries: []Entry{
		memEntry("a", 0.9), memEntry("b", 0.8), memEntry("c", 0.75),
		memEntry("d", 0.74), memEntry("e", 0.72),
	}}
	keyword := &fakeSource{kind: SourceKeyword}

	r := NewRetriever([]Source{vector, keyword}, retrievalConfig(), zap.NewNop())
	res := r.Retrieve(context.Background(), &event.Event{})

	assert.False(t, res.Degraded)
	require.Len(t, res.Entries, 5)
	assert.Equal(t, "a", res.Entries[0].ID)
	assert.Equal(t, 0, keyword.calls)
}

func TestRetrieve_DegradesOnFailure(t *testing.T) {
	vector := &fakeSource{kind: SourceVector, err: errors.New("store down")}
	keyword := &fakeSource{kind: SourceKeyword, entries: []Entry{memEntry("k", 0.6)}}

	r := NewRetriever([]Source{vector, keyword}, retrievalConfig(), zap.NewNop())
	res := r.Retrieve(context.Background(), &event.Event{})

	assert.True(t, res.Degraded)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "k", res.Entries[0].ID)
}

func TestRetrieve_AllTiersFail(t *testing.T) {
	vector := &fakeSource{kind: SourceVector, err: errors.New("down")}
	keyword := &fakeSource{kind: SourceKeyword, err: errors.New("down")}
	local := &fakeSource{kind: SourceLocal}

	r := NewRetriever([]Source{vector, keyword, local}, retrievalConfig(), zap.NewNop())
	res := r.Retrieve(context.Background(), &event.Event{})

	assert.True(t, res.Degraded)
	assert.Empty(t, res.Entries)
}

func TestRetrieve_MergeDedupeRank(t *testing.T) {
	shared := memEntry("dup", 0.8)
	vector := &fakeSource{kind: SourceVector, entries: []Entry{shared, memEntry("v", 0.9)}}
	keyword := &fakeSource{kind: SourceKeyword, entries: []Entry{shared, memEntry("k", 0.85)}}

	r := NewRetriever([]Source{vector, keyword}, retrievalConfig(), zap.NewNop())
	res := r.Retrieve(context.Background(), &event.Event{})

	require.Len(t, res.Entries, 3)
	assert.Equal(t, "v", res.Entries[0].ID)
	assert.Equal(t, "k", res.Entries[1].ID)
	assert.Equal(t, "dup", res.Entries[2].ID)
}

func TestRetrieve_Truncates(t *testing.T) {
	var entries []Entry
	for i := 0; i < 8; i++ {
		entries = append(entries, memEntry(string(rune('a'+i)), 0.9-float64(i)*0.01))
	}
	vector := &fakeSource{kind: SourceVector, entries: entries}

	cfg := retrievalConfig()
	r := NewRetriever([]Source{vector}, cfg, zap.NewNop())
	res := r.Retrieve(context.Background(), &event.Event{})

	assert.Len(t, res.Entries, cfg.MaxEntries)
}

func TestLocalIndex_AppendAndEvict(t *testing.T) {
	idx := NewLocalIndex(2)
	idx.Append(memEntry("a", 0))
	idx.Append(memEntry("b", 0))
	idx.Append(memEntry("c", 0))

	snap := idx.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "b", snap[0].ID)
	assert.Equal(t, "c", snap[1].ID)
}

func TestLocalSource_MatchesByAsset(t *testing.T) {
	idx := NewLocalIndex(16)
	btc := memEntry("btc-memory", 0)
	idx.Append(btc)

	eth := memEntry("eth-memory", 0)
	eth.Assets = []string{"ETH"}
	idx.Append(eth)

	src := NewLocalSource(idx, retrievalConfig())
	entries, err := src.Retrieve(context.Background(), &event.Event{AssetHint: "BTC"}, 5)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "btc-memory", entries[0].ID)
	assert.Equal(t, SourceLocal, entries[0].SourceKind)
}

func TestLocalSource_ConfidenceFloor(t *testing.T) {
	idx := NewLocalIndex(16)
	weak := memEntry("weak", 0)
	weak.Confidence = 0.2
	idx.Append(weak)

	src := NewLocalSource(idx, retrievalConfig())
	entries, err := src.Retrieve(context.Background(), &event.Event{AssetHint: "BTC"}, 5)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHealthGated_SkipsWhenUnhealthy(t *testing.T) {
	inner := &fakeSource{kind: SourceVector, entries: []Entry{memEntry("a", 0.9)}}

	// A monitor over a store that always fails its probe.
	monitor := vectorstore.NewHealthMonitor(context.Background(), failingStore{}, time.Minute, zap.NewNop())
	gated := NewHealthGated(inner, monitor)

	_, err := gated.Retrieve(context.Background(), &event.Event{}, 5)
	assert.Error(t, err)
	assert.Equal(t, 0, inner.calls)
}

type failingStore struct{}

func (failingStore) EnsureCollection(context.Context, string, int) error { return nil }
func (failingStore) Upsert(context.Context, string, []vectorstore.Record) error {
	return nil
}
func (failingStore) QueryEmbedding(context.Context, string, []float32, int, vectorstore.Filter) ([]vectorstore.Hit, error) {
	return nil, nil
}
func (failingStore) QueryMeta(context.Context, string, vectorstore.Filter, int) ([]vectorstore.Hit, error) {
	return nil, nil
}
func (failingStore) Healthy(context.Context) error { return errors.New("unreachable") }
func (failingStore) Close() error                  { return nil }
