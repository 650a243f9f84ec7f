// Package reasoning runs the bounded analysis state machine that turns
// a fingerprinted event plus historical context into a final signal.
//
// States: ContextGather -> Planner -> {Executor -> Planner}* ->
// Synthesis. The loop is bounded by max_rounds, every external call by
// a timeout, and any backend failure or cancellation falls back to the
// preliminary signal. The pipeline always emits something.
package reasoning

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/signald/internal/config"
	"github.com/fyrsmithlabs/signald/internal/event"
	"github.com/fyrsmithlabs/signald/internal/memory"
	"github.com/fyrsmithlabs/signald/internal/signal"
	"github.com/fyrsmithlabs/signald/internal/trace"
)

// Retriever is the slice of the memory layer the orchestrator needs.
type Retriever interface {
	Retrieve(ctx context.Context, ev *event.Event) memory.Result
}

// Orchestrator drives one event through the state machine.
type Orchestrator struct {
	retriever   Retriever
	planner     *Planner
	executor    *Executor
	synthesizer *Synthesizer
	cfg         config.ReasoningConfig
	logger      *zap.Logger
}

// NewOrchestrator wires the state machine.
func NewOrchestrator(retriever Retriever, planner *Planner, executor *Executor, synthesizer *Synthesizer, cfg config.ReasoningConfig, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		retriever:   retriever,
		planner:     planner,
		executor:    executor,
		synthesizer: synthesizer,
		cfg:         cfg,
		logger:      logger,
	}
}

// Run analyzes one event and always returns a signal: the synthesized
// one on success, the preliminary one when the run aborts.
func (o *Orchestrator) Run(ctx context.Context, ev *event.Event) signal.Signal {
	ctx, span := trace.StartSpan(ctx, "reasoning.Run")
	defer span.End()

	start := time.Now()
	state := NewAnalysisState(ev, o.cfg.MaxRounds)

	// ContextGather: one retrieval call, never tools.
	result := o.retriever.Retrieve(ctx, ev)
	state.Memories = result.Entries
	state.MemoryDegraded = result.Degraded

	for {
		if ctx.Err() != nil {
			return o.abort(state, "cancelled", ctx.Err())
		}

		plan, err := o.planner.Plan(ctx, state)
		if err != nil {
			return o.abort(state, "planner_backend", err)
		}
		state.PlannedTools = plan

		// Router: no requests or round budget spent means synthesize.
		if len(plan) == 0 || state.Round >= state.MaxRounds {
			break
		}

		state.Round++
		o.executor.Execute(ctx, state, plan)
	}

	final := o.synthesizer.Fuse(state)
	state.Final = &final

	roundsPerRun.Observe(float64(state.Round))
	runDuration.Observe(time.Since(start).Seconds())
	outcomesTotal.WithLabelValues(string(final.Action), "synthesized").Inc()

	o.logger.Info("analysis complete",
		zap.String("event_id", ev.ID),
		zap.Int("rounds", state.Round),
		zap.String("action", string(final.Action)),
		zap.Float64("confidence", final.Confidence))

	return final
}

// abort falls back to the preliminary signal, flagged so consumers know
// evidence fusion never ran.
func (o *Orchestrator) abort(state *AnalysisState, reason string, err error) signal.Signal {
	o.logger.Warn("analysis aborted, emitting preliminary signal",
		zap.String("event_id", state.Event.ID),
		zap.String("reason", reason),
		zap.Error(err))

	abortsTotal.WithLabelValues(reason).Inc()
	outcomesTotal.WithLabelValues(string(state.Preliminary.Action), "preliminary").Inc()

	final := state.Preliminary
	final.AddFlag(signal.FlagPreliminaryOnly)
	return final
}
