// Package dedup suppresses re-processing of stories already handled.
//
// Detection is tiered, cheapest first: an in-process recency cache of
// exact hashes, an exact-hash lookup against the event index, then
// semantic similarity bounded to a recent window. Every tier fails
// open: a lookup error marks the event unique rather than dropping it.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/signald/internal/config"
	"github.com/fyrsmithlabs/signald/internal/event"
	"github.com/fyrsmithlabs/signald/internal/vectorstore"
)

// Match stages, in check order.
const (
	StageRecency   = "recency"
	StageHashRaw   = "hash_raw"
	StageCanonical = "hash_canonical"
	StageSemantic  = "semantic"
)

// Verdict is the outcome of a duplicate check.
type Verdict struct {
	// IsDuplicate is true when any stage matched.
	IsDuplicate bool

	// LinkedEventID is the prior event this one duplicates.
	LinkedEventID string

	// MatchedStage names the stage that matched, empty when unique.
	MatchedStage string
}

// Deduplicator checks incoming events against recent history.
type Deduplicator struct {
	store      vectorstore.Store
	collection string
	cfg        config.DedupConfig
	logger     *zap.Logger

	// recency maps exact hashes to event IDs for the hot window. The
	// mutex makes claim and repoint atomic; the LRU alone is safe for
	// single calls but not for the get-then-add sequence.
	mu      sync.Mutex
	recency *expirable.LRU[string, string]
}

// NewDeduplicator creates a Deduplicator backed by the event index.
func NewDeduplicator(store vectorstore.Store, collection string, cfg config.DedupConfig, logger *zap.Logger) (*Deduplicator, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if err := vectorstore.ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Deduplicator{
		store:      store,
		collection: collection,
		cfg:        cfg,
		logger:     logger,
		recency:    expirable.NewLRU[string, string](cfg.RecencySize, nil, cfg.RecencyTTL.Duration()),
	}, nil
}

// Check runs the tiered duplicate detection for a fingerprinted event.
//
// The recency stage doubles as a reservation: a unique-so-far event
// claims its hashes before the slower persistent lookups run, so two
// identical events racing through Check resolve to exactly one
// survivor. A claim that turns out to duplicate an indexed event is
// repointed at that prior event.
func (d *Deduplicator) Check(ctx context.Context, ev *event.Event) Verdict {
	v, claimed := d.claim(ev)
	if !claimed {
		return v
	}

	if v, done := d.checkHash(ctx, "hash_raw", ev.HashRaw, StageHashRaw); done {
		d.repoint(ev, v.LinkedEventID)
		return v
	}
	if v, done := d.checkHash(ctx, "hash_canonical", ev.HashCanonical, StageCanonical); done {
		d.repoint(ev, v.LinkedEventID)
		return v
	}
	if v, done := d.checkSemantic(ctx, ev); done {
		d.repoint(ev, v.LinkedEventID)
		return v
	}

	return Verdict{}
}

// claim atomically reserves both hashes for this event. When either
// hash is already held, the recency verdict is returned instead.
func (d *Deduplicator) claim(ev *event.Event) (Verdict, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id, ok := d.recency.Get(ev.HashRaw); ok {
		return d.hit(StageRecency, id), false
	}
	if id, ok := d.recency.Get(ev.HashCanonical); ok {
		return d.hit(StageRecency, id), false
	}

	d.recency.Add(ev.HashRaw, ev.ID)
	d.recency.Add(ev.HashCanonical, ev.ID)
	return Verdict{}, true
}

// repoint redirects this event's claims at the prior event it
// duplicates, so later copies link to the survivor.
func (d *Deduplicator) repoint(ev *event.Event, linkedID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id, ok := d.recency.Peek(ev.HashRaw); ok && id == ev.ID {
		d.recency.Add(ev.HashRaw, linkedID)
	}
	if id, ok := d.recency.Peek(ev.HashCanonical); ok && id == ev.ID {
		d.recency.Add(ev.HashCanonical, linkedID)
	}
}

func (d *Deduplicator) hit(stage, linkedID string) Verdict {
	duplicatesTotal.WithLabelValues(stage).Inc()
	return Verdict{IsDuplicate: true, LinkedEventID: linkedID, MatchedStage: stage}
}

// checkHash looks up an exact hash in the event index. The second
// return value is true when a verdict was reached; a lookup failure
// logs and moves on to the next stage.
func (d *Deduplicator) checkHash(ctx context.Context, key, hash, stage string) (Verdict, bool) {
	lookupCtx, cancel := context.WithTimeout(ctx, d.cfg.LookupTimeout.Duration())
	defer cancel()

	hits, err := d.store.QueryMeta(lookupCtx, d.collection, vectorstore.Filter{
		Match: map[string]string{key: hash},
	}, 1)
	if err != nil {
		d.logger.Warn("exact-hash lookup failed, treating as unique",
			zap.String("stage", stage),
			zap.Error(err))
		failOpenTotal.WithLabelValues(stage).Inc()
		return Verdict{}, false
	}
	if len(hits) > 0 {
		return d.hit(stage, hits[0].ID), true
	}
	return Verdict{}, false
}

// checkSemantic searches for near-identical stories within the recent
// window. The similarity bar depends on register: formal announcements
// repeat each other almost verbatim, social chatter does not.
func (d *Deduplicator) checkSemantic(ctx context.Context, ev *event.Event) (Verdict, bool) {
	if !ev.HasEmbedding() {
		return Verdict{}, false
	}

	threshold := d.cfg.InformalThreshold
	if ev.Formal {
		threshold = d.cfg.FormalThreshold
	}

	lookupCtx, cancel := context.WithTimeout(ctx, d.cfg.LookupTimeout.Duration())
	defer cancel()

	hits, err := d.store.QueryEmbedding(lookupCtx, d.collection, ev.Embedding, 5, vectorstore.Filter{
		CreatedAfter: time.Now().UTC().Add(-d.cfg.SemanticWindow.Duration()),
		MinScore:     float32(threshold),
	})
	if err != nil {
		d.logger.Warn("semantic lookup failed, treating as unique",
			zap.String("stage", StageSemantic),
			zap.Error(err))
		failOpenTotal.WithLabelValues(StageSemantic).Inc()
		return Verdict{}, false
	}
	if len(hits) == 0 {
		return Verdict{}, false
	}

	best := pickMatch(hits)
	d.logger.Debug("semantic duplicate",
		zap.String("linked_event_id", best.ID),
		zap.Float64("similarity", float64(best.Score)),
		zap.Float64("threshold", threshold))
	return d.hit(StageSemantic, best.ID), true
}

// pickMatch breaks ties among candidates over the threshold: the most
// recent wins, then the one with the higher stored confidence.
func pickMatch(hits []vectorstore.Hit) vectorstore.Hit {
	best := hits[0]
	for _, h := range hits[1:] {
		switch {
		case h.CreatedAt().After(best.CreatedAt()):
			best = h
		case h.CreatedAt().Equal(best.CreatedAt()) && h.Confidence() > best.Confidence():
			best = h
		}
	}
	return best
}
