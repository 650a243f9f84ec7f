package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// HealthMonitor tracks store connectivity with a periodic probe. The
// degrade decisions in retrieval and dedup read its cached status
// instead of paying a probe on the hot path.
type HealthMonitor struct {
	store     Store
	interval  time.Duration
	healthy   atomic.Bool
	lastCheck atomic.Value

	mu        sync.RWMutex
	callbacks []func(bool)

	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

// NewHealthMonitor creates a monitor and runs an initial probe.
func NewHealthMonitor(ctx context.Context, store Store, interval time.Duration, logger *zap.Logger) *HealthMonitor {
	ctx, cancel := context.WithCancel(ctx)
	if logger == nil {
		logger = zap.NewNop()
	}
	hm := &HealthMonitor{
		store:    store,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
	}
	healthy := store.Healthy(ctx) == nil
	hm.healthy.Store(healthy)
	hm.lastCheck.Store(time.Now())
	setHealthGauge(healthy)
	return hm
}

// Start begins periodic health checks.
func (hm *HealthMonitor) Start() {
	go hm.run()
}

func (hm *HealthMonitor) run() {
	ticker := time.NewTicker(hm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-hm.ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(hm.ctx, hm.interval/2)
			err := hm.store.Healthy(probeCtx)
			cancel()
			hm.update(err == nil)
		}
	}
}

func (hm *HealthMonitor) update(healthy bool) {
	previous := hm.healthy.Swap(healthy)
	hm.lastCheck.Store(time.Now())
	setHealthGauge(healthy)

	if previous != healthy {
		hm.logger.Info("store health changed",
			zap.Bool("healthy", healthy),
			zap.Bool("previous", previous))
		hm.notify(healthy)
	}
}

// IsHealthy returns the cached health status.
func (hm *HealthMonitor) IsHealthy() bool {
	return hm.healthy.Load()
}

// LastCheck returns the time of the last probe.
func (hm *HealthMonitor) LastCheck() time.Time {
	v := hm.lastCheck.Load()
	if v == nil {
		return time.Time{}
	}
	return v.(time.Time)
}

// RegisterCallback adds a callback fired on health transitions.
func (hm *HealthMonitor) RegisterCallback(cb func(bool)) error {
	if cb == nil {
		return fmt.Errorf("health: callback cannot be nil")
	}
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.callbacks = append(hm.callbacks, cb)
	return nil
}

func (hm *HealthMonitor) notify(healthy bool) {
	hm.mu.RLock()
	callbacks := make([]func(bool), len(hm.callbacks))
	copy(callbacks, hm.callbacks)
	hm.mu.RUnlock()

	for _, cb := range callbacks {
		go func(callback func(bool)) {
			defer func() {
				if r := recover(); r != nil {
					hm.logger.Error("health callback panic", zap.Any("panic", r))
				}
			}()
			callback(healthy)
		}(cb)
	}
}

// Stop terminates the monitor.
func (hm *HealthMonitor) Stop() {
	hm.cancel()
}
