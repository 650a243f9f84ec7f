package reasoning

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/signald/internal/config"
	"github.com/fyrsmithlabs/signald/internal/quota"
	"github.com/fyrsmithlabs/signald/internal/tools"
)

// Executor fills evidence slots for the planner's requests, spending
// quota only when the cache cannot answer.
type Executor struct {
	registry *tools.Registry
	governor *quota.Governor
	timeout  time.Duration
	logger   *zap.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(registry *tools.Registry, governor *quota.Governor, cfg config.ToolsConfig, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		registry: registry,
		governor: governor,
		timeout:  cfg.Timeout.Duration(),
		logger:   logger,
	}
}

// Execute runs one round of tool requests against the state. Tool
// failures become slot state, never errors: the orchestration continues
// on whatever evidence survives.
func (e *Executor) Execute(ctx context.Context, state *AnalysisState, plan []PlannedTool) {
	for _, req := range plan {
		if ctx.Err() != nil {
			return
		}
		e.fill(ctx, state, req)
	}
}

func (e *Executor) fill(ctx context.Context, state *AnalysisState, req PlannedTool) {
	// Latest successful call wins; an existing good slot is kept
	// unless the planner asked for fresh data.
	if existing := state.Slot(req.Name); existing != nil && existing.Success && !req.Refresh {
		return
	}

	slot := &EvidenceSlot{ToolName: req.Name, Timestamp: time.Now().UTC()}
	state.Slots[req.Name] = slot

	params := map[string]string(req.Params)
	if !req.Refresh {
		if cached, ok := e.governor.CacheGet(req.Name, params); ok {
			if ev, ok := cached.Data.(tools.Evidence); ok {
				slot.Success = true
				slot.Evidence = ev
				e.logger.Debug("evidence served from cache",
					zap.String("tool", req.Name))
				return
			}
		}
	}

	if err := e.governor.Reserve(req.Name); err != nil {
		if errors.Is(err, quota.ErrBudgetExhausted) || errors.Is(err, quota.ErrRateLimited) {
			slot.Unresolved = true
			e.logger.Info("tool skipped on quota",
				zap.String("tool", req.Name),
				zap.Error(err))
			return
		}
		slot.Err = err.Error()
		return
	}

	tool, err := e.registry.Get(req.Name)
	if err != nil {
		slot.Err = err.Error()
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.timeout)
	evidence, err := tool.Fetch(fetchCtx, req.Params)
	cancel()

	slot.Triggered = true
	slot.Timestamp = time.Now().UTC()
	if err != nil {
		slot.Err = err.Error()
		e.logger.Warn("tool fetch failed",
			zap.String("tool", req.Name),
			zap.Error(err))
		return
	}

	slot.Success = true
	slot.Evidence = evidence
	e.governor.CacheSet(req.Name, params, quota.CachedResult{Data: evidence})
}
