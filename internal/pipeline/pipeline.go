// Package pipeline wires fingerprinting, dedup, retrieval, and
// reasoning into the end-to-end event flow.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/signald/internal/dedup"
	"github.com/fyrsmithlabs/signald/internal/event"
	"github.com/fyrsmithlabs/signald/internal/memory"
	"github.com/fyrsmithlabs/signald/internal/reasoning"
	"github.com/fyrsmithlabs/signald/internal/signal"
	"github.com/fyrsmithlabs/signald/internal/trace"
	"github.com/fyrsmithlabs/signald/internal/vectorstore"
)

// Persister receives unique events and their final signals. Schema and
// storage are the collaborator's concern.
type Persister interface {
	SaveSignal(ctx context.Context, ev *event.Event, sig signal.Signal) error
}

// Notifier delivers final signals to downstream consumers.
type Notifier interface {
	Notify(ctx context.Context, sig signal.Signal) error
}

// Result is the outcome of processing one incoming item. Exactly one
// of Signal or a duplicate verdict is meaningful: duplicates never
// produce a signal.
type Result struct {
	Event   *event.Event
	Verdict dedup.Verdict
	Signal  *signal.Signal
}

// Pipeline processes incoming events end to end. Events are
// independent once past the deduplicator; one Process call per event,
// safe to run concurrently.
type Pipeline struct {
	fingerprinter *event.Fingerprinter
	deduplicator  *dedup.Deduplicator
	orchestrator  *reasoning.Orchestrator
	recorder      *memory.Recorder

	store           vectorstore.Store
	eventCollection string

	persister Persister
	notifier  Notifier
	logger    *zap.Logger
}

// Option configures optional collaborators.
type Option func(*Pipeline)

// WithPersister sets the persistence collaborator.
func WithPersister(p Persister) Option {
	return func(pl *Pipeline) { pl.persister = p }
}

// WithNotifier sets the signal delivery collaborator.
func WithNotifier(n Notifier) Option {
	return func(pl *Pipeline) { pl.notifier = n }
}

// New creates a Pipeline.
func New(
	fingerprinter *event.Fingerprinter,
	deduplicator *dedup.Deduplicator,
	orchestrator *reasoning.Orchestrator,
	recorder *memory.Recorder,
	store vectorstore.Store,
	eventCollection string,
	logger *zap.Logger,
	opts ...Option,
) (*Pipeline, error) {
	if fingerprinter == nil || deduplicator == nil || orchestrator == nil {
		return nil, fmt.Errorf("fingerprinter, deduplicator and orchestrator are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pipeline{
		fingerprinter:   fingerprinter,
		deduplicator:    deduplicator,
		orchestrator:    orchestrator,
		recorder:        recorder,
		store:           store,
		eventCollection: eventCollection,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Process runs one incoming item through the pipeline. Every unique
// event yields a signal; duplicates return the verdict only.
func (p *Pipeline) Process(ctx context.Context, in event.Incoming) (Result, error) {
	ctx, span := trace.StartSpan(ctx, "pipeline.Process")
	defer span.End()

	ev, err := p.fingerprinter.Fingerprint(ctx, in)
	if err != nil {
		processedTotal.WithLabelValues("rejected").Inc()
		return Result{}, fmt.Errorf("fingerprinting: %w", err)
	}

	verdict := p.deduplicator.Check(ctx, ev)
	if verdict.IsDuplicate {
		processedTotal.WithLabelValues("duplicate").Inc()
		p.logger.Debug("duplicate suppressed",
			zap.String("event_id", ev.ID),
			zap.String("linked_event_id", verdict.LinkedEventID),
			zap.String("stage", verdict.MatchedStage))
		return Result{Event: ev, Verdict: verdict}, nil
	}

	// Accepted as unique. Check already claimed the hashes in the
	// recency cache; write the persistent index before the long
	// reasoning phase.
	p.indexEvent(ctx, ev)

	sig := p.orchestrator.Run(ctx, ev)
	p.recordOutcome(ctx, ev, sig)
	p.deliver(ctx, ev, sig)

	processedTotal.WithLabelValues("signal").Inc()
	return Result{Event: ev, Signal: &sig}, nil
}

// indexEvent writes the event to the persistent dedup index. Without
// an embedding the event stays recency-cache only.
func (p *Pipeline) indexEvent(ctx context.Context, ev *event.Event) {
	if p.store == nil || !ev.HasEmbedding() {
		return
	}

	rec := vectorstore.Record{
		ID:        ev.ID,
		Content:   ev.CanonicalText,
		Embedding: ev.Embedding,
		Meta: map[string]any{
			vectorstore.MetaCreatedAt: ev.ReceivedAt.Unix(),
			"hash_raw":                ev.HashRaw,
			"hash_canonical":          ev.HashCanonical,
			"source":                  ev.Source,
		},
	}
	if err := p.store.Upsert(ctx, p.eventCollection, []vectorstore.Record{rec}); err != nil {
		p.logger.Warn("event index write failed",
			zap.String("event_id", ev.ID),
			zap.Error(err))
	}
}

// recordOutcome stores the decision as a memory for future retrieval.
func (p *Pipeline) recordOutcome(ctx context.Context, ev *event.Event, sig signal.Signal) {
	if p.recorder == nil {
		return
	}

	entry := memory.Entry{
		ID:         ev.ID,
		CreatedAt:  time.Now().UTC(),
		Assets:     sig.Assets,
		Keywords:   ev.KeywordsHit,
		Action:     string(sig.Action),
		Confidence: sig.Confidence,
		Summary:    sig.Summary,
	}
	if err := p.recorder.Record(ctx, entry, ev.Embedding); err != nil {
		p.logger.Warn("outcome record failed",
			zap.String("event_id", ev.ID),
			zap.Error(err))
	}
}

// deliver hands the signal to the external collaborators. Their
// failures are logged, never propagated: the signal already exists.
func (p *Pipeline) deliver(ctx context.Context, ev *event.Event, sig signal.Signal) {
	if p.persister != nil {
		if err := p.persister.SaveSignal(ctx, ev, sig); err != nil {
			p.logger.Error("signal persistence failed",
				zap.String("event_id", ev.ID),
				zap.Error(err))
		}
	}
	if p.notifier != nil {
		if err := p.notifier.Notify(ctx, sig); err != nil {
			p.logger.Error("signal notification failed",
				zap.String("event_id", ev.ID),
				zap.Error(err))
		}
	}
}
