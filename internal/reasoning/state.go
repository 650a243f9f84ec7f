package reasoning

import (
	"time"

	"github.com/fyrsmithlabs/signald/internal/event"
	"github.com/fyrsmithlabs/signald/internal/memory"
	"github.com/fyrsmithlabs/signald/internal/signal"
	"github.com/fyrsmithlabs/signald/internal/tools"
)

// EvidenceSlot holds the latest answer from one tool kind. The latest
// successful call wins; population is idempotent unless the planner
// asks for a refresh.
type EvidenceSlot struct {
	// ToolName is the canonical tool name.
	ToolName string

	// Success is true when Evidence holds a usable answer.
	Success bool

	// Timestamp is when the slot was last written.
	Timestamp time.Time

	// Evidence is the tool's answer, zero unless Success.
	Evidence tools.Evidence

	// Triggered is true when this run actually spent a tool call, as
	// opposed to a cache reuse.
	Triggered bool

	// Unresolved marks a slot skipped on budget exhaustion. Not an
	// error: the question stands but could not be afforded today.
	Unresolved bool

	// Err describes the failure when Success is false and the call was
	// attempted.
	Err string
}

// PlannedTool is one tool request from the planner.
type PlannedTool struct {
	Name    string       `json:"name"`
	Params  tools.Params `json:"params"`
	Refresh bool         `json:"refresh,omitempty"`
}

// AnalysisState is the mutable state of one orchestration run. It is
// owned by a single goroutine for its whole lifetime.
type AnalysisState struct {
	Event       *event.Event
	Preliminary signal.Signal
	Category    signal.Category

	// Slots maps tool name to its evidence slot.
	Slots map[string]*EvidenceSlot

	// Memories is the historical context from retrieval.
	Memories []memory.Entry

	// MemoryDegraded is true when retrieval served from a lower tier.
	MemoryDegraded bool

	// PlannedTools is the planner's latest request.
	PlannedTools []PlannedTool

	// Round counts completed Planner->Executor cycles.
	Round int

	// MaxRounds caps Round.
	MaxRounds int

	// Final is set by synthesis.
	Final *signal.Signal
}

// NewAnalysisState starts a run for one event.
func NewAnalysisState(ev *event.Event, maxRounds int) *AnalysisState {
	return &AnalysisState{
		Event:       ev,
		Preliminary: signal.Preliminary(ev),
		Category:    signal.Classify(ev),
		Slots:       make(map[string]*EvidenceSlot),
		MaxRounds:   maxRounds,
	}
}

// Slot returns the slot for a tool, or nil.
func (s *AnalysisState) Slot(tool string) *EvidenceSlot {
	return s.Slots[tool]
}

// SuccessfulSlots returns slots holding usable evidence, in stable
// tool-name order.
func (s *AnalysisState) SuccessfulSlots() []*EvidenceSlot {
	ordered := []string{tools.ToolSearch, tools.ToolPrice, tools.ToolMacro, tools.ToolOnchain}
	var out []*EvidenceSlot
	for _, name := range ordered {
		if slot, ok := s.Slots[name]; ok && slot.Success {
			out = append(out, slot)
		}
	}
	return out
}

// sufficient reports whether a slot already answers its question well
// enough that asking again would waste budget.
func (slot *EvidenceSlot) sufficient() bool {
	if slot == nil || !slot.Success {
		return false
	}
	return slot.Evidence.Confidence >= 0.8 || slot.Evidence.MultiSource()
}
