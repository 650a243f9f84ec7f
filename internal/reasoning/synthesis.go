package reasoning

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/signald/internal/config"
	"github.com/fyrsmithlabs/signald/internal/memory"
	"github.com/fyrsmithlabs/signald/internal/signal"
	"github.com/fyrsmithlabs/signald/internal/tools"
)

// Confidence adjustments applied by synthesis. Fixed constants so two
// runs over the same evidence always land on the same number.
const (
	adjCorroboratedOfficial = 0.18
	adjCorroborated         = 0.08
	adjThinEvidence         = -0.15
	adjContradiction        = -0.20
	adjHistoryNudge         = 0.10
)

// Synthesizer fuses preliminary signal, evidence, and memory into the
// final calibrated signal.
type Synthesizer struct {
	cfg    config.ReasoningConfig
	logger *zap.Logger
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(cfg config.ReasoningConfig, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{cfg: cfg, logger: logger}
}

// Fuse produces the final signal. It is deterministic: no backend
// calls, only the quantified adjustment rules.
func (s *Synthesizer) Fuse(state *AnalysisState) signal.Signal {
	final := state.Preliminary
	final.CreatedAt = time.Now().UTC()

	successful := state.SuccessfulSlots()
	supports, refutes := countStances(successful)
	corroborated := false
	official := false
	for _, slot := range successful {
		if slot.Evidence.MultiSource() {
			corroborated = true
		}
		if slot.Evidence.OfficialConfirmed {
			official = true
		}
		final.EvidenceRefs = append(final.EvidenceRefs, "tool:"+slot.ToolName)
	}

	gapped := false
	for _, slot := range state.Slots {
		if !slot.Success {
			gapped = true
		}
	}

	switch {
	case supports > 0 && refutes > 0:
		final.Confidence += adjContradiction
		final.AddFlag(signal.FlagDataIncomplete)
		final.Notes = append(final.Notes,
			fmt.Sprintf("contradictory evidence (%d supporting, %d refuting): %+.2f", supports, refutes, adjContradiction))
	case corroborated && official:
		final.Confidence += adjCorroboratedOfficial
		final.Notes = append(final.Notes,
			fmt.Sprintf("multi-source corroboration with official confirmation: %+.2f", adjCorroboratedOfficial))
	case corroborated:
		final.Confidence += adjCorroborated
		final.Notes = append(final.Notes,
			fmt.Sprintf("multi-source corroboration without official confirmation: %+.2f", adjCorroborated))
	case len(state.Slots) > 0:
		// Tools were asked and nothing corroborates the claim.
		final.Confidence += adjThinEvidence
		final.Notes = append(final.Notes,
			fmt.Sprintf("thin corroboration across %d slot(s): %+.2f", len(state.Slots), adjThinEvidence))
	}

	if gapped {
		final.AddFlag(signal.FlagDataIncomplete)
	}
	if state.MemoryDegraded {
		final.AddFlag(signal.FlagDegradedRetrieval)
	}

	if best := strongestMemory(state.Memories, s.cfg.HistoryBar); best != nil {
		nudge := adjHistoryNudge
		if best.Action != string(final.Action) {
			nudge = -adjHistoryNudge
		}
		final.Confidence += nudge
		final.Notes = append(final.Notes,
			fmt.Sprintf("historical outcome %s (similarity %.2f): %+.2f", best.Action, best.Similarity, nudge))
		final.EvidenceRefs = append(final.EvidenceRefs, "memory:"+best.ID)
	}

	final.Confidence = signal.Clamp(final.Confidence)
	if final.Confidence < s.cfg.ObserveFloor && final.Action != signal.ActionObserve {
		final.Action = signal.ActionObserve
		final.Notes = append(final.Notes,
			fmt.Sprintf("confidence %.2f below observe floor %.2f", final.Confidence, s.cfg.ObserveFloor))
	}
	final.Strength = signal.StrengthFor(final.Confidence)

	s.logger.Debug("synthesis complete",
		zap.String("event_id", state.Event.ID),
		zap.Float64("preliminary", state.Preliminary.Confidence),
		zap.Float64("final", final.Confidence),
		zap.String("action", string(final.Action)))

	return final
}

// countStances tallies supporting and refuting evidence.
func countStances(slots []*EvidenceSlot) (supports, refutes int) {
	for _, slot := range slots {
		switch slot.Evidence.Stance {
		case tools.StanceSupports:
			supports++
		case tools.StanceRefutes:
			refutes++
		}
	}
	return supports, refutes
}

// strongestMemory returns the best memory above the similarity bar.
func strongestMemory(entries []memory.Entry, bar float64) *memory.Entry {
	var best *memory.Entry
	for i := range entries {
		e := &entries[i]
		if e.Similarity < bar {
			continue
		}
		if best == nil || e.Similarity > best.Similarity {
			best = e
		}
	}
	return best
}
