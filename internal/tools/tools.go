// Package tools adapts external evidence providers behind one
// interface. Each adapter speaks a vendor-agnostic HTTP contract; the
// vendor behind an endpoint is a deployment decision.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Canonical tool names. These are the keys used for budgets, caching,
// and planner output.
const (
	ToolSearch  = "search"
	ToolPrice   = "price"
	ToolMacro   = "macro"
	ToolOnchain = "onchain"
)

// ErrToolUnavailable marks a fetch that failed after exhausting its
// timeout or received a non-2xx response.
var ErrToolUnavailable = errors.New("tool unavailable")

// Params are the question passed to a tool, e.g. asset and topic.
type Params map[string]string

// Evidence is a tool's answer.
type Evidence struct {
	// Data is the raw structured payload.
	Data map[string]any `json:"data"`

	// Summary is a one-line description usable in reasoning prompts
	// and signal notes.
	Summary string `json:"summary"`

	// Confidence is the provider's own confidence in [0,1], zero when
	// the provider does not report one.
	Confidence float64 `json:"confidence"`

	// Sources lists the upstream origins behind the answer.
	Sources []string `json:"sources"`

	// OfficialConfirmed is true when at least one source is an official
	// channel of the entity concerned.
	OfficialConfirmed bool `json:"official_confirmed"`

	// Stance is the provider's judgment of the event claim: supports,
	// refutes, or neutral. Empty is treated as neutral.
	Stance string `json:"stance,omitempty"`
}

// Evidence stances.
const (
	StanceSupports = "supports"
	StanceRefutes  = "refutes"
	StanceNeutral  = "neutral"
)

// MultiSource reports whether the evidence rests on more than one
// independent origin.
func (e Evidence) MultiSource() bool {
	return len(e.Sources) >= 2
}

// Tool is one external evidence provider.
type Tool interface {
	// Name returns the canonical tool name.
	Name() string

	// Fetch answers the given params. Implementations honor ctx for
	// cancellation and their configured timeout.
	Fetch(ctx context.Context, params Params) (Evidence, error)
}

// Registry resolves planner tool names to adapters.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(adapters))}
	for _, t := range adapters {
		r.tools[t.Name()] = t
	}
	return r
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("no tool registered as %q", name)
	}
	return t, nil
}

// Names lists registered tools, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
