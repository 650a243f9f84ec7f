package reasoning

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
	"github.com/fyrsmithlabs/signald/internal/memory"
	"github.com/fyrsmithlabs/signald/internal/quota"
	"github.com/fyrsmithlabs/signald/internal/signal"
	"github.com/fyrsmithlabs/signald/internal/tools"
)

// fakeLLM returns canned responses in order, then repeats the last.
type fakeLLM struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

// fakeRetriever serves a fixed memory result.
type fakeRetriever struct {
	result memory.Result
}

func (f *fakeRetriever) Retrieve(ctx context.Context, ev *event.Event) memory.Result {
	return f.result
}

// fakeTool answers with fixed evidence or an error.
type fakeTool struct {
	name     string
	evidence tools.Evidence
	err      error
	calls    int
}

func (f *fakeTool) Name() string { return f.name }

func (f *fakeTool) Fetch(ctx context.Context, params tools.Params) (tools.Evidence, error) {
	f.calls++
	if f.err != nil {
		return tools.Evidence{}, f.err
	}
	return f.evidence, nil
}

func reasoningConfig() config.ReasoningConfig {
	cfg := config.ReasoningConfig{}
	cfg.ApplyDefaults()
	return cfg
}

func bigBudgets() *quota.Governor {
	return quota.NewGovernor(config.QuotaConfig{
		DailyBudgets: map[string]int{
			tools.ToolSearch: 100, tools.ToolPrice: 100,
			tools.ToolMacro: 100, tools.ToolOnchain: 100,
		},
		CacheTTL:      config.Duration(time.Minute),
		RatePerSecond: 1000,
	}, zap.NewNop())
}

func listingEvent() *event.Event {
	return &event.Event{
		ID:            "evt-1",
		RawText:       "Coinbase lists TOKEN X for trading",
		CanonicalText: "coinbase lists token x for trading",
		Source:        "coindesk",
		Formal:        true,
		AssetHint:     "TOKENX",
		Embedding:     []float32{1, 0, 0},
	}
}

func newOrchestrator(backend LLMClient, retriever Retriever, adapters ...tools.Tool) *Orchestrator {
	cfg := reasoningConfig()
	toolsCfg := config.ToolsConfig{}
	toolsCfg.ApplyDefaults()

	return NewOrchestrator(
		retriever,
		NewPlanner(backend, cfg, zap.NewNop()),
		NewExecutor(tools.NewRegistry(adapters...), bigBudgets(), toolsCfg, zap.NewNop()),
		NewSynthesizer(cfg, zap.NewNop()),
		cfg,
		zap.NewNop(),
	)
}

func TestRun_CorroboratedOfficialRaisesConfidence(t *testing.T) {
	search := &fakeTool{name: tools.ToolSearch, evidence: tools.Evidence{
		Summary:           "listing confirmed on exchange blog and press",
		Confidence:        0.9,
		Sources:           []string{"exchange-blog", "newswire"},
		OfficialConfirmed: true,
		Stance:            tools.StanceSupports,
	}}

	o := newOrchestrator(nil, &fakeRetriever{}, search)
	final := o.Run(context.Background(), listingEvent())

	preliminary := signal.Preliminary(listingEvent())
	assert.Greater(t, final.Confidence, preliminary.Confidence)
	assert.Equal(t, signal.ActionBuy, final.Action)
	assert.Contains(t, final.EvidenceRefs, "tool:search")
	assert.NotEmpty(t, final.Notes)
	assert.Equal(t, 1, search.calls)
}

func TestRun_ProviderOutageLowersConfidence(t *testing.T) {
	search := &fakeTool{name: tools.ToolSearch, err: errors.New("upstream down")}

	o := newOrchestrator(nil, &fakeRetriever{}, search)
	final := o.Run(context.Background(), listingEvent())

	preliminary := signal.Preliminary(listingEvent())
	assert.LessOrEqual(t, final.Confidence, preliminary.Confidence)
	assert.True(t, final.HasFlag(signal.FlagDataIncomplete))
}

func TestRun_BackendFailureFallsBackToPreliminary(t *testing.T) {
	backend := &fakeLLM{err: errors.New("backend unreachable")}
	ev := listingEvent()
	ev.RawText = "Visa partners with stablecoin issuer"
	ev.CanonicalText = "visa partners with stablecoin issuer"

	o := newOrchestrator(backend, &fakeRetriever{})
	final := o.Run(context.Background(), ev)

	preliminary := signal.Preliminary(ev)
	assert.Equal(t, preliminary.Confidence, final.Confidence)
	assert.Equal(t, preliminary.Action, final.Action)
	assert.True(t, final.HasFlag(signal.FlagPreliminaryOnly))
}

func TestRun_MaxRoundsBound(t *testing.T) {
	greedy := `{"tools": [{"name": "price", "params": {"asset": "BTC"}, "refresh": true}], "rationale": "more data"}`
	backend := &fakeLLM{responses: []string{greedy}}
	price := &fakeTool{name: tools.ToolPrice, evidence: tools.Evidence{
		Summary: "price flat", Confidence: 0.4, Sources: []string{"exchange-a"},
	}}

	ev := listingEvent()
	ev.RawText = "Visa partners with stablecoin issuer"
	ev.CanonicalText = "visa partners with stablecoin issuer"

	o := newOrchestrator(backend, &fakeRetriever{}, price)
	_ = o.Run(context.Background(), ev)

	cfg := reasoningConfig()
	assert.Equal(t, cfg.MaxRounds, price.calls)
}

func TestRun_CancellationFallsBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newOrchestrator(nil, &fakeRetriever{})
	final := o.Run(ctx, listingEvent())

	assert.True(t, final.HasFlag(signal.FlagPreliminaryOnly))
}

func TestRun_MalformedBackendTreatedAsEmptyPlan(t *testing.T) {
	backend := &fakeLLM{responses: []string{"sure, I'd call some tools!"}}
	ev := listingEvent()
	ev.RawText = "Visa partners with stablecoin issuer"
	ev.CanonicalText = "visa partners with stablecoin issuer"

	o := newOrchestrator(backend, &fakeRetriever{})
	final := o.Run(context.Background(), ev)

	// Two attempts, then synthesis on preliminary evidence.
	assert.Equal(t, 2, backend.calls)
	assert.False(t, final.HasFlag(signal.FlagPreliminaryOnly))
}

func TestRun_DegradedRetrievalFlagged(t *testing.T) {
	retriever := &fakeRetriever{result: memory.Result{Degraded: true}}
	search := &fakeTool{name: tools.ToolSearch, evidence: tools.Evidence{
		Summary: "one source only", Confidence: 0.5, Sources: []string{"blog"},
	}}

	o := newOrchestrator(nil, retriever, search)
	final := o.Run(context.Background(), listingEvent())

	assert.True(t, final.HasFlag(signal.FlagDegradedRetrieval))
}

func TestRun_HistoryNudge(t *testing.T) {
	retriever := &fakeRetriever{result: memory.Result{Entries: []memory.Entry{{
		ID:         "mem-1",
		Action:     "buy",
		Confidence: 0.8,
		Similarity: 0.9,
		Summary:    "previous listing rallied",
	}}}}
	search := &fakeTool{name: tools.ToolSearch, evidence: tools.Evidence{
		Summary:           "confirmed",
		Confidence:        0.9,
		Sources:           []string{"a", "b"},
		OfficialConfirmed: true,
		Stance:            tools.StanceSupports,
	}}

	o := newOrchestrator(nil, retriever, search)
	final := o.Run(context.Background(), listingEvent())

	// 0.55 + 0.18 + 0.10 nudge toward matching history.
	assert.InDelta(t, 0.83, final.Confidence, 0.001)
	assert.Contains(t, final.EvidenceRefs, "memory:mem-1")
}

func TestPlanner_Blacklist(t *testing.T) {
	backend := &fakeLLM{responses: []string{`{"tools": [{"name": "search"}], "rationale": "x"}`}}
	p := NewPlanner(backend, reasoningConfig(), zap.NewNop())

	ev := listingEvent()
	ev.RawText = "nothing interesting here"
	ev.CanonicalText = "nothing interesting here"
	state := NewAnalysisState(ev, 3)
	require.Equal(t, signal.CategoryOther, state.Category)

	plan, err := p.Plan(context.Background(), state)
	require.NoError(t, err)
	assert.Empty(t, plan)
	assert.Equal(t, 0, backend.calls)
}

func TestPlanner_AirdropBlacklisted(t *testing.T) {
	backend := &fakeLLM{responses: []string{`{"tools": [{"name": "search"}], "rationale": "x"}`}}
	p := NewPlanner(backend, reasoningConfig(), zap.NewNop())

	ev := listingEvent()
	ev.RawText = "Protocol announces airdrop for early users"
	ev.CanonicalText = "protocol announces airdrop for early users"
	state := NewAnalysisState(ev, 3)
	require.Equal(t, signal.CategoryAirdrop, state.Category)

	plan, err := p.Plan(context.Background(), state)
	require.NoError(t, err)
	assert.Empty(t, plan)
	assert.Equal(t, 0, backend.calls)
}

func TestPlanner_ConfiguredRules(t *testing.T) {
	cfg := reasoningConfig()
	cfg.Rules = config.PlannerRuleConfig{
		Blacklist: []string{"listing"},
		Playbook:  map[string][]string{"partnership": {"price"}},
	}
	p := NewPlanner(nil, cfg, zap.NewNop())

	plan, err := p.Plan(context.Background(), NewAnalysisState(listingEvent(), 3))
	require.NoError(t, err)
	assert.Empty(t, plan)

	ev := listingEvent()
	ev.RawText = "Visa partners with stablecoin issuer"
	ev.CanonicalText = "visa partners with stablecoin issuer"
	plan, err = p.Plan(context.Background(), NewAnalysisState(ev, 3))
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, tools.ToolPrice, plan[0].Name)
}

func TestPlanner_PlaybookParamsNotSharedAcrossEvents(t *testing.T) {
	p := NewPlanner(nil, reasoningConfig(), zap.NewNop())

	plan, err := p.Plan(context.Background(), NewAnalysisState(listingEvent(), 3))
	require.NoError(t, err)
	require.Len(t, plan, 1)
	require.Equal(t, "TOKENX", plan[0].Params["asset"])

	other := listingEvent()
	other.AssetHint = "BTC"
	plan, err = p.Plan(context.Background(), NewAnalysisState(other, 3))
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, "BTC", plan[0].Params["asset"])
}

func TestPlanner_WhitelistFirstRound(t *testing.T) {
	p := NewPlanner(nil, reasoningConfig(), zap.NewNop())
	state := NewAnalysisState(listingEvent(), 3)

	plan, err := p.Plan(context.Background(), state)
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, tools.ToolSearch, plan[0].Name)
	assert.Equal(t, "TOKENX", plan[0].Params["asset"])
}

func TestPlanner_SufficiencySkip(t *testing.T) {
	p := NewPlanner(nil, reasoningConfig(), zap.NewNop())
	state := NewAnalysisState(listingEvent(), 3)
	state.Slots[tools.ToolSearch] = &EvidenceSlot{
		ToolName: tools.ToolSearch,
		Success:  true,
		Evidence: tools.Evidence{Confidence: 0.9, Sources: []string{"a", "b"}},
	}

	plan, err := p.Plan(context.Background(), state)
	require.NoError(t, err)
	assert.Empty(t, plan)
}

func TestPlanner_RejectsUnknownTool(t *testing.T) {
	_, err := parseDecision(`{"tools": [{"name": "weather"}], "rationale": "x"}`)
	assert.Error(t, err)
}

func TestParseDecision_CodeFence(t *testing.T) {
	response := "Here is my plan:\n```json\n{\"tools\": [{\"name\": \"price\"}], \"rationale\": \"check market\"}\n```"
	decision, err := parseDecision(response)
	require.NoError(t, err)
	require.Len(t, decision.Tools, 1)
	assert.Equal(t, tools.ToolPrice, decision.Tools[0].Name)
}

func TestExecutor_BudgetExhaustedMarksUnresolved(t *testing.T) {
	governor := quota.NewGovernor(config.QuotaConfig{
		DailyBudgets:  map[string]int{tools.ToolSearch: 0},
		CacheTTL:      config.Duration(time.Minute),
		RatePerSecond: 1000,
	}, zap.NewNop())

	toolsCfg := config.ToolsConfig{}
	toolsCfg.ApplyDefaults()
	search := &fakeTool{name: tools.ToolSearch}
	e := NewExecutor(tools.NewRegistry(search), governor, toolsCfg, zap.NewNop())

	state := NewAnalysisState(listingEvent(), 3)
	e.Execute(context.Background(), state, []PlannedTool{{Name: tools.ToolSearch}})

	slot := state.Slot(tools.ToolSearch)
	require.NotNil(t, slot)
	assert.True(t, slot.Unresolved)
	assert.False(t, slot.Success)
	assert.Equal(t, 0, search.calls)
}

func TestExecutor_CacheReuse(t *testing.T) {
	governor := bigBudgets()
	toolsCfg := config.ToolsConfig{}
	toolsCfg.ApplyDefaults()
	search := &fakeTool{name: tools.ToolSearch, evidence: tools.Evidence{Summary: "hit"}}
	e := NewExecutor(tools.NewRegistry(search), governor, toolsCfg, zap.NewNop())

	plan := []PlannedTool{{Name: tools.ToolSearch, Params: tools.Params{"asset": "BTC"}}}

	first := NewAnalysisState(listingEvent(), 3)
	e.Execute(context.Background(), first, plan)
	require.Equal(t, 1, search.calls)
	assert.True(t, first.Slot(tools.ToolSearch).Triggered)

	second := NewAnalysisState(listingEvent(), 3)
	e.Execute(context.Background(), second, plan)
	assert.Equal(t, 1, search.calls)
	slot := second.Slot(tools.ToolSearch)
	require.NotNil(t, slot)
	assert.True(t, slot.Success)
	assert.False(t, slot.Triggered)
	assert.Equal(t, "hit", slot.Evidence.Summary)
}

func TestSynthesis_ContradictionFlags(t *testing.T) {
	cfg := reasoningConfig()
	s := NewSynthesizer(cfg, zap.NewNop())

	state := NewAnalysisState(listingEvent(), 3)
	state.Slots[tools.ToolSearch] = &EvidenceSlot{
		ToolName: tools.ToolSearch, Success: true,
		Evidence: tools.Evidence{Stance: tools.StanceSupports, Sources: []string{"a", "b"}},
	}
	state.Slots[tools.ToolOnchain] = &EvidenceSlot{
		ToolName: tools.ToolOnchain, Success: true,
		Evidence: tools.Evidence{Stance: tools.StanceRefutes, Sources: []string{"chain"}},
	}

	final := s.Fuse(state)
	assert.True(t, final.HasFlag(signal.FlagDataIncomplete))
	assert.InDelta(t, state.Preliminary.Confidence-0.20, final.Confidence, 0.001)
}

func TestSynthesis_ClampsToOne(t *testing.T) {
	cfg := reasoningConfig()
	s := NewSynthesizer(cfg, zap.NewNop())

	state := NewAnalysisState(listingEvent(), 3)
	state.Preliminary.Confidence = 0.95
	state.Slots[tools.ToolSearch] = &EvidenceSlot{
		ToolName: tools.ToolSearch, Success: true,
		Evidence: tools.Evidence{
			OfficialConfirmed: true,
			Sources:           []string{"a", "b"},
			Stance:            tools.StanceSupports,
		},
	}

	final := s.Fuse(state)
	assert.Equal(t, 1.0, final.Confidence)
}

func TestSynthesis_ObserveFloor(t *testing.T) {
	cfg := reasoningConfig()
	s := NewSynthesizer(cfg, zap.NewNop())

	state := NewAnalysisState(listingEvent(), 3)
	state.Preliminary.Confidence = 0.40
	state.Slots[tools.ToolSearch] = &EvidenceSlot{
		ToolName: tools.ToolSearch,
		Err:      "timeout",
	}

	final := s.Fuse(state)
	require.Less(t, final.Confidence, cfg.ObserveFloor)
	assert.Equal(t, signal.ActionObserve, final.Action)
}

func TestExtractJSON(t *testing.T) {
	for _, tc := range []string{
		`{"tools": []}`,
		"```json\n{\"tools\": []}\n```",
		"prefix {\"tools\": []} suffix",
	} {
		raw, err := extractJSON(tc)
		require.NoError(t, err, tc)
		assert.Contains(t, raw, "tools")
	}

	_, err := extractJSON("no json here")
	assert.Error(t, err)
}
