// Package event defines the incoming event model and fingerprinting.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Incoming is the transport-agnostic contract with the ingestion
// collaborator. The pipeline never sees the transport itself.
type Incoming struct {
	// RawText is the original short-text news item.
	RawText string

	// Source identifies the originating feed or channel.
	Source string

	// Timestamp is when the collaborator received the item.
	Timestamp time.Time

	// Metadata carries source-specific key/value pairs.
	Metadata map[string]string
}

// Event is a fingerprinted news event.
//
// An Event is immutable after fingerprinting: the Fingerprinter is the
// only writer, everything downstream reads.
type Event struct {
	// ID is the unique event identifier (UUID).
	ID string

	// ReceivedAt is when the ingestion collaborator received the item.
	ReceivedAt time.Time

	// Source identifies the originating feed or channel.
	Source string

	// RawText is the original text, untouched.
	RawText string

	// CanonicalText is the normalized text used for canonical hashing.
	CanonicalText string

	// HashRaw is the SHA-256 hex digest of the raw bytes.
	HashRaw string

	// HashCanonical is the SHA-256 hex digest of CanonicalText.
	HashCanonical string

	// Embedding is the semantic vector, or nil when the provider was
	// unavailable. Downstream stages must tolerate nil.
	Embedding []float32

	// Language is a coarse language tag ("en", "zh", "und").
	Language string

	// KeywordsHit lists watchlist keywords present in the canonical text.
	KeywordsHit []string

	// AssetHint is the first recognized asset symbol, if any.
	AssetHint string

	// Formal marks wire/announcement style text; semantic dedup applies
	// the stricter similarity bar to formal events.
	Formal bool

	// Metadata carries the ingestion collaborator's key/value pairs.
	Metadata map[string]string
}

// newEvent builds the immutable shell the Fingerprinter fills in.
func newEvent(in Incoming) *Event {
	received := in.Timestamp
	if received.IsZero() {
		received = time.Now().UTC()
	}
	return &Event{
		ID:         uuid.New().String(),
		ReceivedAt: received,
		Source:     in.Source,
		RawText:    in.RawText,
		Metadata:   in.Metadata,
	}
}

// HasEmbedding reports whether semantic stages can run for this event.
func (e *Event) HasEmbedding() bool {
	return len(e.Embedding) > 0
}
