package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/signald/internal/config"
	"github.com/fyrsmithlabs/signald/internal/dedup"
	"github.com/fyrsmithlabs/signald/internal/event"
	"github.com/fyrsmithlabs/signald/internal/memory"
	"github.com/fyrsmithlabs/signald/internal/pipeline"
	"github.com/fyrsmithlabs/signald/internal/quota"
	"github.com/fyrsmithlabs/signald/internal/reasoning"
	"github.com/fyrsmithlabs/signald/internal/tools"
	"github.com/fyrsmithlabs/signald/internal/vectorstore"
)

type staticEmbedder struct{}

func (staticEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 4)
	for i, c := range []byte(text) {
		vec[i%4] += float32(c)
	}
	return vec, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := zap.NewNop()

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:       t.TempDir(),
		VectorSize: 4,
	}, logger)
	require.NoError(t, err)

	dedupCfg := config.DedupConfig{}
	dedupCfg.ApplyDefaults()
	deduplicator, err := dedup.NewDeduplicator(store, "signald_events", dedupCfg, logger)
	require.NoError(t, err)

	retrievalCfg := config.RetrievalConfig{}
	retrievalCfg.ApplyDefaults()
	index := memory.NewLocalIndex(16)
	retriever := memory.NewRetriever([]memory.Source{
		memory.NewLocalSource(index, retrievalCfg),
	}, retrievalCfg, logger)

	reasoningCfg := config.ReasoningConfig{}
	reasoningCfg.ApplyDefaults()
	quotaCfg := config.QuotaConfig{}
	quotaCfg.ApplyDefaults()
	toolsCfg := config.ToolsConfig{}
	toolsCfg.ApplyDefaults()

	orchestrator := reasoning.NewOrchestrator(
		retriever,
		reasoning.NewPlanner(nil, reasoningCfg, logger),
		reasoning.NewExecutor(tools.NewRegistry(), quota.NewGovernor(quotaCfg, logger), toolsCfg, logger),
		reasoning.NewSynthesizer(reasoningCfg, logger),
		reasoningCfg,
		logger,
	)

	fingerprinter := event.NewFingerprinter(staticEmbedder{}, event.FingerprinterConfig{}, logger)

	p, err := pipeline.New(fingerprinter, deduplicator, orchestrator, nil, store, "signald_events", logger)
	require.NoError(t, err)

	serverCfg := config.ServerConfig{}
	serverCfg.ApplyDefaults()
	return New(serverCfg, p, logger)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHandleIngest(t *testing.T) {
	s := newTestServer(t)

	body := `{"text": "Exchange announces new BTC listing", "source": "newswire"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(body))
	req.Header.Set(echoHeaderContentType, "application/json")
	s.Echo().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["event_id"])
	assert.NotNil(t, resp["signal"])
}

func TestHandleIngest_Duplicate(t *testing.T) {
	s := newTestServer(t)
	body := `{"text": "Exchange announces new BTC listing", "source": "newswire"}`

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(body))
		req.Header.Set(echoHeaderContentType, "application/json")
		s.Echo().ServeHTTP(rec, req)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		if i == 0 {
			assert.Equal(t, http.StatusCreated, rec.Code)
		} else {
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, true, resp["duplicate"])
		}
	}
}

func TestHandleIngest_MissingText(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(`{"source": "x"}`))
	req.Header.Set(echoHeaderContentType, "application/json")
	s.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

const echoHeaderContentType = "Content-Type"
