package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/signald/internal/config"
	"github.com/fyrsmithlabs/signald/internal/dedup"
	"github.com/fyrsmithlabs/signald/internal/event"
	"github.com/fyrsmithlabs/signald/internal/memory"
	"github.com/fyrsmithlabs/signald/internal/quota"
	"github.com/fyrsmithlabs/signald/internal/reasoning"
	"github.com/fyrsmithlabs/signald/internal/signal"
	"github.com/fyrsmithlabs/signald/internal/tools"
	"github.com/fyrsmithlabs/signald/internal/vectorstore"
)

// unitEmbedder assigns each distinct text its own unit vector, so
// identical texts are perfectly similar and distinct ones orthogonal.
type unitEmbedder struct {
	mu   sync.Mutex
	axes map[string]int
}

func newUnitEmbedder() *unitEmbedder {
	return &unitEmbedder{axes: make(map[string]int)}
}

func (u *unitEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	axis, ok := u.axes[text]
	if !ok {
		axis = len(u.axes) % 8
		u.axes[text] = axis
	}
	vec := make([]float32, 8)
	vec[axis] = 1
	return vec, nil
}

// stubTool always confirms.
type stubTool struct{ name string }

func (s stubTool) Name() string { return s.name }

func (s stubTool) Fetch(ctx context.Context, params tools.Params) (tools.Evidence, error) {
	return tools.Evidence{
		Summary:           "confirmed by exchange blog and newswire",
		Confidence:        0.9,
		Sources:           []string{"exchange-blog", "newswire"},
		OfficialConfirmed: true,
		Stance:            tools.StanceSupports,
	}, nil
}

// captureNotifier records delivered signals.
type captureNotifier struct {
	mu      sync.Mutex
	signals []signal.Signal
}

func (c *captureNotifier) Notify(ctx context.Context, sig signal.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals = append(c.signals, sig)
	return nil
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.signals)
}

func newTestPipeline(t *testing.T) (*Pipeline, *captureNotifier) {
	t.Helper()
	logger := zap.NewNop()

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:       t.TempDir(),
		VectorSize: 8,
	}, logger)
	require.NoError(t, err)

	dedupCfg := config.DedupConfig{}
	dedupCfg.ApplyDefaults()
	deduplicator, err := dedup.NewDeduplicator(store, "signald_events", dedupCfg, logger)
	require.NoError(t, err)

	retrievalCfg := config.RetrievalConfig{}
	retrievalCfg.ApplyDefaults()
	index := memory.NewLocalIndex(64)
	retriever := memory.NewRetriever([]memory.Source{
		memory.NewVectorSource(store, "signald_memories", retrievalCfg),
		memory.NewLocalSource(index, retrievalCfg),
	}, retrievalCfg, logger)

	recorder, err := memory.NewRecorder(store, "signald_memories", index, logger)
	require.NoError(t, err)

	reasoningCfg := config.ReasoningConfig{}
	reasoningCfg.ApplyDefaults()
	quotaCfg := config.QuotaConfig{}
	quotaCfg.ApplyDefaults()
	toolsCfg := config.ToolsConfig{}
	toolsCfg.ApplyDefaults()

	orchestrator := reasoning.NewOrchestrator(
		retriever,
		reasoning.NewPlanner(nil, reasoningCfg, logger),
		reasoning.NewExecutor(
			tools.NewRegistry(stubTool{tools.ToolSearch}, stubTool{tools.ToolOnchain}),
			quota.NewGovernor(quotaCfg, logger),
			toolsCfg,
			logger,
		),
		reasoning.NewSynthesizer(reasoningCfg, logger),
		reasoningCfg,
		logger,
	)

	fingerprinter := event.NewFingerprinter(newUnitEmbedder(), event.FingerprinterConfig{
		FormalSources: []string{"coindesk"},
	}, logger)

	notifier := &captureNotifier{}
	p, err := New(fingerprinter, deduplicator, orchestrator, recorder, store, "signald_events", logger,
		WithNotifier(notifier))
	require.NoError(t, err)
	return p, notifier
}

func incoming(text string) event.Incoming {
	return event.Incoming{
		RawText:   text,
		Source:    "coindesk",
		Timestamp: time.Now().UTC(),
	}
}

func TestProcess_UniqueEventYieldsSignal(t *testing.T) {
	p, notifier := newTestPipeline(t)

	res, err := p.Process(context.Background(), incoming("Coinbase lists BTC trading pair expansion"))
	require.NoError(t, err)

	assert.False(t, res.Verdict.IsDuplicate)
	require.NotNil(t, res.Signal)
	assert.Equal(t, res.Event.ID, res.Signal.EventID)
	assert.GreaterOrEqual(t, res.Signal.Confidence, 0.0)
	assert.LessOrEqual(t, res.Signal.Confidence, 1.0)
	assert.Equal(t, 1, notifier.count())
}

func TestProcess_DuplicateSuppressed(t *testing.T) {
	p, notifier := newTestPipeline(t)

	first, err := p.Process(context.Background(), incoming("Coinbase lists BTC trading pair expansion"))
	require.NoError(t, err)
	require.NotNil(t, first.Signal)

	second, err := p.Process(context.Background(), incoming("Coinbase lists BTC trading pair expansion"))
	require.NoError(t, err)

	assert.True(t, second.Verdict.IsDuplicate)
	assert.Nil(t, second.Signal)
	assert.Equal(t, first.Event.ID, second.Verdict.LinkedEventID)
	assert.Equal(t, 1, notifier.count())
}

func TestProcess_EmptyTextRejected(t *testing.T) {
	p, _ := newTestPipeline(t)

	_, err := p.Process(context.Background(), incoming("   "))
	assert.Error(t, err)
}

func TestProcess_ConcurrentEvents(t *testing.T) {
	p, notifier := newTestPipeline(t)

	texts := []string{
		"Coinbase lists BTC trading pair expansion",
		"Protocol exploited for 40m on the bridge",
		"Visa partners with stablecoin issuer on ETH",
	}

	var wg sync.WaitGroup
	for _, text := range texts {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			_, err := p.Process(context.Background(), incoming(text))
			assert.NoError(t, err)
		}(text)
	}
	wg.Wait()

	assert.Equal(t, len(texts), notifier.count())
}
