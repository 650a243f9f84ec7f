package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fyrsmithlabs/signald/internal/config"
	"github.com/fyrsmithlabs/signald/internal/event"
)

// LocalIndex is an in-process ring of recent decision outcomes, the
// last tier of the degrade chain. Reads take an immutable snapshot so
// the retrieval hot path never blocks on the writer.
type LocalIndex struct {
	capacity int

	writeMu sync.Mutex
	entries atomic.Pointer[[]Entry]
}

// NewLocalIndex creates an index holding up to capacity entries.
func NewLocalIndex(capacity int) *LocalIndex {
	if capacity <= 0 {
		capacity = 256
	}
	idx := &LocalIndex{capacity: capacity}
	empty := make([]Entry, 0)
	idx.entries.Store(&empty)
	return idx
}

// Append records an outcome, evicting the oldest past capacity.
func (idx *LocalIndex) Append(e Entry) {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	current := *idx.entries.Load()
	next := make([]Entry, 0, len(current)+1)
	next = append(next, current...)
	next = append(next, e)
	if len(next) > idx.capacity {
		next = next[len(next)-idx.capacity:]
	}
	idx.entries.Store(&next)
}

// Snapshot returns the current entries, newest last.
func (idx *LocalIndex) Snapshot() []Entry {
	return *idx.entries.Load()
}

// Len returns the current entry count.
func (idx *LocalIndex) Len() int {
	return len(*idx.entries.Load())
}

// LocalSource serves retrieval from the LocalIndex.
type LocalSource struct {
	index *LocalIndex
	cfg   config.RetrievalConfig
}

// NewLocalSource creates the last-resort retrieval tier.
func NewLocalSource(index *LocalIndex, cfg config.RetrievalConfig) *LocalSource {
	return &LocalSource{index: index, cfg: cfg}
}

func (s *LocalSource) Name() SourceKind { return SourceLocal }

func (s *LocalSource) Retrieve(ctx context.Context, ev *event.Event, k int) ([]Entry, error) {
	cutoff := time.Now().UTC().Add(-s.cfg.Window.Duration())

	var matched []Entry
	for _, e := range s.index.Snapshot() {
		if e.CreatedAt.Before(cutoff) || e.Confidence < s.cfg.ConfidenceFloor {
			continue
		}
		score := blendedScore(e, ev, s.cfg.Window.Duration())
		if score <= 0 {
			continue
		}
		e.SourceKind = SourceLocal
		e.Similarity = score
		matched = append(matched, e)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Similarity > matched[j].Similarity
	})
	if len(matched) > k {
		matched = matched[:k]
	}
	return matched, nil
}
