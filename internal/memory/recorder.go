package memory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/signald/internal/vectorstore"
)

// Recorder persists decision outcomes so future retrievals can find
// them. Writes go to the store and the local index together; a store
// failure still leaves the outcome retrievable locally.
type Recorder struct {
	store      vectorstore.Store
	collection string
	index      *LocalIndex
	logger     *zap.Logger
}

// NewRecorder creates a Recorder over the memory collection.
func NewRecorder(store vectorstore.Store, collection string, index *LocalIndex, logger *zap.Logger) (*Recorder, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if index == nil {
		return nil, fmt.Errorf("local index is required")
	}
	if err := vectorstore.ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, collection: collection, index: index, logger: logger}, nil
}

// Record stores one outcome. The embedding may be nil when the event
// was processed without one; such entries are only reachable through
// the keyword and local tiers.
func (r *Recorder) Record(ctx context.Context, e Entry, embedding []float32) error {
	r.index.Append(e)

	if len(embedding) == 0 {
		r.logger.Debug("recording memory without embedding",
			zap.String("memory_id", e.ID))
		return nil
	}

	if err := r.store.Upsert(ctx, r.collection, []vectorstore.Record{record(e, embedding)}); err != nil {
		r.logger.Warn("memory persist failed, kept locally",
			zap.String("memory_id", e.ID),
			zap.Error(err))
		return fmt.Errorf("persisting memory %s: %w", e.ID, err)
	}
	return nil
}
