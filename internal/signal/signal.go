// Package signal defines the pipeline's output model: a calibrated,
// auditable decision signal derived from one news event.
package signal

import (
	"time"
)

// Action is the recommended position change.
type Action string

const (
	ActionBuy     Action = "buy"
	ActionSell    Action = "sell"
	ActionObserve Action = "observe"
)

// Direction is the expected market move.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
	DirectionNeutral Direction = "neutral"
)

// Strength buckets the confidence for human consumers.
type Strength string

const (
	StrengthWeak     Strength = "weak"
	StrengthModerate Strength = "moderate"
	StrengthStrong   Strength = "strong"
)

// Risk flags attached to signals.
const (
	// FlagDataIncomplete marks evidence gaps or contradictions.
	FlagDataIncomplete = "data_incomplete"

	// FlagUnverified marks events from informal sources with no
	// corroboration yet.
	FlagUnverified = "unverified"

	// FlagDegradedRetrieval marks signals built without the primary
	// memory tier.
	FlagDegradedRetrieval = "degraded_retrieval"

	// FlagPreliminaryOnly marks signals emitted by the reasoning
	// fallback path, untouched by evidence fusion.
	FlagPreliminaryOnly = "preliminary_only"
)

// Signal is the final pipeline output for one unique event.
type Signal struct {
	// EventID links back to the analyzed event.
	EventID string `json:"event_id"`

	// CreatedAt is the signal emission time.
	CreatedAt time.Time `json:"created_at"`

	// Summary is a one-line description of the event.
	Summary string `json:"summary"`

	// EventType is the detected category (listing, hack, ...).
	EventType string `json:"event_type"`

	// Assets are the tickers the signal concerns.
	Assets []string `json:"assets"`

	Action    Action    `json:"action"`
	Direction Direction `json:"direction"`

	// Confidence is calibrated to [0,1].
	Confidence float64 `json:"confidence"`

	Strength Strength `json:"strength"`

	// RiskFlags mark caveats consumers must weigh.
	RiskFlags []string `json:"risk_flags,omitempty"`

	// Notes cite the evidence behind each confidence adjustment.
	Notes []string `json:"notes,omitempty"`

	// EvidenceRefs name the tools and memories that informed the
	// signal.
	EvidenceRefs []string `json:"evidence_refs,omitempty"`
}

// Clamp bounds a confidence value to [0,1].
func Clamp(confidence float64) float64 {
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

// StrengthFor buckets a confidence value.
func StrengthFor(confidence float64) Strength {
	switch {
	case confidence >= 0.75:
		return StrengthStrong
	case confidence >= 0.5:
		return StrengthModerate
	default:
		return StrengthWeak
	}
}

// AddFlag appends a risk flag once.
func (s *Signal) AddFlag(flag string) {
	for _, f := range s.RiskFlags {
		if f == flag {
			return
		}
	}
	s.RiskFlags = append(s.RiskFlags, flag)
}

// HasFlag reports whether a risk flag is present.
func (s *Signal) HasFlag(flag string) bool {
	for _, f := range s.RiskFlags {
		if f == flag {
			return true
		}
	}
	return false
}
