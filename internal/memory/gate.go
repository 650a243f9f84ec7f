package memory

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/signald/internal/event"
	"github.com/fyrsmithlabs/signald/internal/vectorstore"
)

// healthGated skips a store-backed source while the store is marked
// unreachable, so the chain degrades without paying a timeout.
type healthGated struct {
	Source
	monitor *vectorstore.HealthMonitor
}

// NewHealthGated wraps a source with a store health check.
func NewHealthGated(src Source, monitor *vectorstore.HealthMonitor) Source {
	if monitor == nil {
		return src
	}
	return &healthGated{Source: src, monitor: monitor}
}

func (g *healthGated) Retrieve(ctx context.Context, ev *event.Event, k int) ([]Entry, error) {
	if !g.monitor.IsHealthy() {
		return nil, fmt.Errorf("store unhealthy, skipping %s tier", g.Name())
	}
	return g.Source.Retrieve(ctx, ev, k)
}
