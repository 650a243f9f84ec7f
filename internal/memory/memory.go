// Package memory retrieves historical decision outcomes for an
// incoming event.
//
// Three sources form a degrade chain: vector similarity against the
// remote store, keyword lookup against the same store, and a local
// in-process index of recent outcomes. Retrieval never fails the
// pipeline; when every source comes back empty the event proceeds
// without historical context.
package memory

import (
	"time"

	"github.com/fyrsmithlabs/signald/internal/vectorstore"
)

// SourceKind identifies which retrieval tier produced an entry.
type SourceKind string

const (
	SourceVector  SourceKind = "vector"
	SourceKeyword SourceKind = "keyword"
	SourceLocal   SourceKind = "local"
)

// Entry is one retrieved decision memory.
type Entry struct {
	// ID is the stored memory identifier.
	ID string

	// SourceKind records the tier that produced the entry.
	SourceKind SourceKind

	// CreatedAt is when the remembered decision was made.
	CreatedAt time.Time

	// Assets are the tickers the decision concerned.
	Assets []string

	// Keywords are the watchlist terms the original event matched.
	Keywords []string

	// Action is the decision taken (buy, sell, observe).
	Action string

	// Confidence is the outcome-adjusted confidence of that decision.
	Confidence float64

	// Similarity is the match strength for this retrieval, in [0,1].
	// Vector entries carry cosine similarity; keyword and local entries
	// carry a blended relevance score.
	Similarity float64

	// Summary is the stored one-line description of event and outcome.
	Summary string
}

// MetaAction is the store metadata key for the remembered action.
const MetaAction = "action"

// entryFromHit converts a store hit to an Entry.
func entryFromHit(h vectorstore.Hit, kind SourceKind) Entry {
	return Entry{
		ID:         h.ID,
		SourceKind: kind,
		CreatedAt:  h.CreatedAt(),
		Assets:     h.MetaStrings(vectorstore.MetaAssets),
		Keywords:   h.MetaStrings(vectorstore.MetaKeywords),
		Action:     h.MetaString(MetaAction),
		Confidence: h.Confidence(),
		Similarity: float64(h.Score),
		Summary:    h.Content,
	}
}

// record converts an Entry plus its embedding to a store record.
func record(e Entry, embedding []float32) vectorstore.Record {
	return vectorstore.Record{
		ID:        e.ID,
		Content:   e.Summary,
		Embedding: embedding,
		Meta: map[string]any{
			vectorstore.MetaCreatedAt:  e.CreatedAt.Unix(),
			vectorstore.MetaConfidence: e.Confidence,
			vectorstore.MetaAssets:     e.Assets,
			vectorstore.MetaKeywords:   e.Keywords,
			MetaAction:                 e.Action,
		},
	}
}
