package vectorstore

import (
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestQdrantConfig_Validate(t *testing.T) {
	cfg := QdrantConfig{VectorSize: 384}
	cfg.ApplyDefaults()
	assert.NoError(t, cfg.Validate())

	bad := QdrantConfig{Host: "localhost", Port: 6334}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
}

func TestPayloadRoundTrip(t *testing.T) {
	meta := map[string]any{
		MetaCreatedAt:  int64(1700000000),
		MetaConfidence: 0.85,
		MetaAssets:     []string{"BTC", "ETH"},
		"source":       "coindesk",
		"formal":       true,
	}

	payload := payloadFromMeta(meta)
	payload["content"] = qdrant.NewValueString("hello")
	payload["id"] = qdrant.NewValueString("rec-1")

	hit := hitFromPayload(payload, 0.91)
	assert.Equal(t, "rec-1", hit.ID)
	assert.Equal(t, "hello", hit.Content)
	assert.InDelta(t, 0.91, float64(hit.Score), 0.001)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), hit.CreatedAt())
	assert.InDelta(t, 0.85, hit.Confidence(), 0.001)
	assert.Equal(t, []string{"BTC", "ETH"}, hit.MetaStrings(MetaAssets))
	assert.Equal(t, "coindesk", hit.MetaString("source"))
	assert.Equal(t, true, hit.Meta["formal"])
}

func TestFilterToQdrant(t *testing.T) {
	after := time.Unix(1700000000, 0)
	f := Filter{
		Match:         map[string]string{"hash_raw": "abc"},
		MatchAny:      map[string][]string{MetaAssets: {"BTC", "ETH"}},
		CreatedAfter:  after,
		MinConfidence: 0.6,
	}

	qf := filterToQdrant(f)
	require.NotNil(t, qf)
	assert.Len(t, qf.Must, 4)

	empty := filterToQdrant(Filter{})
	assert.Nil(t, empty)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(status.Error(grpccodes.Unavailable, "down")))
	assert.True(t, isTransient(status.Error(grpccodes.DeadlineExceeded, "slow")))
	assert.False(t, isTransient(status.Error(grpccodes.InvalidArgument, "bad")))
	assert.False(t, isTransient(assert.AnError))
}
