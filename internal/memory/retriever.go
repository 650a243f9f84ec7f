package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/signald/internal/config"
	"github.com/fyrsmithlabs/signald/internal/event"
)

// Result is the retrieval outcome handed to the reasoning layer.
type Result struct {
	// Entries are the merged, ranked memories, best first.
	Entries []Entry

	// Degraded is true when at least one higher tier was skipped or
	// failed and a lower tier served instead.
	Degraded bool
}

// Retriever walks the source chain in priority order.
type Retriever struct {
	sources []Source
	cfg     config.RetrievalConfig
	logger  *zap.Logger
}

// NewRetriever creates a Retriever over the given sources. Order
// matters: earlier sources are preferred tiers.
func NewRetriever(sources []Source, cfg config.RetrievalConfig, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{sources: sources, cfg: cfg, logger: logger}
}

// Retrieve collects historical context for an event. It never returns
// an error: failed tiers degrade to the next one, and an empty result
// means the event proceeds without history.
func (r *Retriever) Retrieve(ctx context.Context, ev *event.Event) Result {
	var (
		merged   []Entry
		degraded bool
	)

	for _, src := range r.sources {
		if len(merged) >= r.cfg.MaxEntries {
			break
		}

		srcCtx, cancel := context.WithTimeout(ctx, r.cfg.SourceTimeout.Duration())
		entries, err := src.Retrieve(srcCtx, ev, r.cfg.MaxEntries)
		cancel()

		if err != nil {
			degraded = true
			degradedTotal.WithLabelValues(string(src.Name())).Inc()
			r.logger.Warn("retrieval source failed, degrading",
				zap.String("source", string(src.Name())),
				zap.Error(err))
			continue
		}
		merged = append(merged, entries...)
	}

	merged = dedupe(merged)
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Similarity != merged[j].Similarity {
			return merged[i].Similarity > merged[j].Similarity
		}
		if merged[i].Confidence != merged[j].Confidence {
			return merged[i].Confidence > merged[j].Confidence
		}
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	if len(merged) > r.cfg.MaxEntries {
		merged = merged[:r.cfg.MaxEntries]
	}

	retrievedTotal.Observe(float64(len(merged)))
	return Result{Entries: merged, Degraded: degraded}
}

// dedupe drops entries repeated across tiers, by ID first and then by
// summary content.
func dedupe(entries []Entry) []Entry {
	seen := make(map[string]struct{}, len(entries))
	out := entries[:0]
	for _, e := range entries {
		key := e.ID
		if key == "" {
			sum := sha256.Sum256([]byte(e.Summary))
			key = hex.EncodeToString(sum[:])
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}
