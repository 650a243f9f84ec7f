package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/signald/internal/config"
	"github.com/fyrsmithlabs/signald/internal/signal"
	"github.com/fyrsmithlabs/signald/internal/tools"
)

// playbookTopics seeds the topic param on forced first-round calls.
var playbookTopics = map[signal.Category]map[string]string{
	signal.CategoryHack: {
		tools.ToolOnchain: "exploit",
		tools.ToolSearch:  "exploit confirmation",
	},
	signal.CategoryListing:    {tools.ToolSearch: "listing confirmation"},
	signal.CategoryDelisting:  {tools.ToolSearch: "delisting confirmation"},
	signal.CategoryRegulation: {tools.ToolSearch: "regulatory action"},
}

// validTools is the planner's allowed output vocabulary.
var validTools = map[string]bool{
	tools.ToolSearch:  true,
	tools.ToolPrice:   true,
	tools.ToolMacro:   true,
	tools.ToolOnchain: true,
}

// Planner decides which tools to run next, cheap rules first and the
// model last.
type Planner struct {
	backend LLMClient
	cfg     config.ReasoningConfig
	logger  *zap.Logger

	// Category rules, built from cfg.Rules. Blacklisted categories
	// never spend tool budget; playbook categories force tools on the
	// first round where waiting for the model to ask is itself a risk.
	blacklist map[signal.Category]bool
	playbook  map[signal.Category][]PlannedTool
}

// NewPlanner creates a Planner. backend may be nil, in which case the
// model tier is skipped and rule output alone drives execution.
func NewPlanner(backend LLMClient, cfg config.ReasoningConfig, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}

	blacklist := make(map[signal.Category]bool, len(cfg.Rules.Blacklist))
	for _, cat := range cfg.Rules.Blacklist {
		blacklist[signal.Category(cat)] = true
	}

	playbook := make(map[signal.Category][]PlannedTool, len(cfg.Rules.Playbook))
	for cat, names := range cfg.Rules.Playbook {
		category := signal.Category(cat)
		forced := make([]PlannedTool, 0, len(names))
		for _, name := range names {
			req := PlannedTool{Name: name, Params: tools.Params{}}
			if topic, ok := playbookTopics[category][name]; ok {
				req.Params["topic"] = topic
			}
			forced = append(forced, req)
		}
		playbook[category] = forced
	}

	return &Planner{
		backend:   backend,
		cfg:       cfg,
		logger:    logger,
		blacklist: blacklist,
		playbook:  playbook,
	}
}

// Plan returns the next tool requests. An empty plan routes the run to
// synthesis. The returned error is reserved for backend transport
// failure, which aborts the whole run; malformed backend output is
// treated as an empty plan instead.
func (p *Planner) Plan(ctx context.Context, state *AnalysisState) ([]PlannedTool, error) {
	if p.blacklist[state.Category] {
		return nil, nil
	}

	if state.Round == 0 {
		if forced, ok := p.playbook[state.Category]; ok {
			plan := p.withEventParams(state, p.skipSufficient(state, clonePlan(forced)))
			if len(plan) > 0 {
				return plan, nil
			}
		}
	}

	if p.backend == nil {
		return nil, nil
	}
	return p.modelPlan(ctx, state)
}

// skipSufficient drops requests whose slot already holds good evidence.
func (p *Planner) skipSufficient(state *AnalysisState, plan []PlannedTool) []PlannedTool {
	out := make([]PlannedTool, 0, len(plan))
	for _, req := range plan {
		if !req.Refresh && state.Slot(req.Name).sufficient() {
			p.logger.Debug("slot already sufficient, skipping",
				zap.String("tool", req.Name))
			continue
		}
		out = append(out, req)
	}
	return out
}

// clonePlan copies requests so per-event params never leak into the
// shared playbook.
func clonePlan(plan []PlannedTool) []PlannedTool {
	out := make([]PlannedTool, len(plan))
	for i, req := range plan {
		out[i] = req
		out[i].Params = make(tools.Params, len(req.Params)+1)
		for k, v := range req.Params {
			out[i].Params[k] = v
		}
	}
	return out
}

// withEventParams fills the asset param on every request.
func (p *Planner) withEventParams(state *AnalysisState, plan []PlannedTool) []PlannedTool {
	for i := range plan {
		if plan[i].Params == nil {
			plan[i].Params = tools.Params{}
		}
		if _, ok := plan[i].Params["asset"]; !ok && state.Event.AssetHint != "" {
			plan[i].Params["asset"] = state.Event.AssetHint
		}
	}
	return plan
}

// plannerDecision is the structured output contract for the backend.
type plannerDecision struct {
	Tools     []PlannedTool `json:"tools"`
	Rationale string        `json:"rationale"`
}

// modelPlan asks the backend for the next tool set. One retry on
// malformed output, then an empty plan.
func (p *Planner) modelPlan(ctx context.Context, state *AnalysisState) ([]PlannedTool, error) {
	prompt := p.buildPrompt(state)

	for attempt := 0; attempt < 2; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.PlannerTimeout.Duration())
		response, err := p.backend.Complete(callCtx, prompt)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("planner backend: %w", err)
		}

		decision, parseErr := parseDecision(response)
		if parseErr != nil {
			p.logger.Warn("malformed planner output",
				zap.Int("attempt", attempt+1),
				zap.Error(parseErr))
			malformedTotal.WithLabelValues("planner").Inc()
			continue
		}

		plan := p.withEventParams(state, p.skipSufficient(state, decision.Tools))
		p.logger.Debug("planner decision",
			zap.Int("round", state.Round),
			zap.Int("tools", len(plan)),
			zap.String("rationale", decision.Rationale))
		return plan, nil
	}

	// Twice malformed: proceed to synthesis on what we have.
	return nil, nil
}

func parseDecision(response string) (plannerDecision, error) {
	var decision plannerDecision
	raw, err := extractJSON(response)
	if err != nil {
		return decision, err
	}
	if err := json.Unmarshal([]byte(raw), &decision); err != nil {
		return decision, fmt.Errorf("parsing decision: %w", err)
	}
	for _, req := range decision.Tools {
		if !validTools[req.Name] {
			return plannerDecision{}, fmt.Errorf("unknown tool %q in decision", req.Name)
		}
	}
	return decision, nil
}

func (p *Planner) buildPrompt(state *AnalysisState) string {
	var b strings.Builder

	b.WriteString("You plan evidence gathering for a crypto news signal pipeline.\n")
	b.WriteString("Available tools: search (news corroboration), price (market data), macro (rates and indices), onchain (chain activity).\n\n")

	fmt.Fprintf(&b, "Event (%s): %s\n", state.Category, state.Event.RawText)
	if state.Event.AssetHint != "" {
		fmt.Fprintf(&b, "Asset: %s\n", state.Event.AssetHint)
	}
	fmt.Fprintf(&b, "Preliminary: action=%s confidence=%.2f\n", state.Preliminary.Action, state.Preliminary.Confidence)
	fmt.Fprintf(&b, "Round %d of %d.\n", state.Round+1, state.MaxRounds)

	if len(state.Memories) > 0 {
		b.WriteString("\nHistorical outcomes:\n")
		for _, m := range state.Memories {
			fmt.Fprintf(&b, "- [%s conf=%.2f] %s\n", m.Action, m.Confidence, m.Summary)
		}
	}

	if len(state.Slots) > 0 {
		b.WriteString("\nEvidence gathered so far:\n")
		for name, slot := range state.Slots {
			switch {
			case slot.Success:
				fmt.Fprintf(&b, "- %s: %s (confidence %.2f, %d sources)\n",
					name, slot.Evidence.Summary, slot.Evidence.Confidence, len(slot.Evidence.Sources))
			case slot.Unresolved:
				fmt.Fprintf(&b, "- %s: skipped, budget exhausted\n", name)
			default:
				fmt.Fprintf(&b, "- %s: failed (%s)\n", name, slot.Err)
			}
		}
	}

	b.WriteString("\nDecide which tools to call next. Request nothing when evidence already suffices.\n")
	b.WriteString(`Respond with JSON only: {"tools": [{"name": "search", "params": {"asset": "BTC"}}], "rationale": "..."}` + "\n")
	b.WriteString(`An empty list is {"tools": [], "rationale": "..."}.` + "\n")

	return b.String()
}
