// Package quota enforces per-tool daily call budgets and caches tool
// results so repeated questions inside the cache window cost nothing.
package quota

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/signald/internal/config"
)

// ErrBudgetExhausted marks a tool call denied for the rest of the day.
var ErrBudgetExhausted = errors.New("daily budget exhausted")

// ErrRateLimited marks a tool call denied by the burst limiter.
var ErrRateLimited = errors.New("rate limited")

// ErrUnknownTool marks a reservation for a tool with no budget entry.
var ErrUnknownTool = errors.New("unknown tool")

// Governor tracks spend against daily budgets. Counters reset at
// midnight UTC. A per-tool rate limiter smooths bursts so one noisy
// event cannot drain a budget in seconds.
type Governor struct {
	cfg    config.QuotaConfig
	logger *zap.Logger

	mu       sync.Mutex
	used     map[string]int
	day      time.Time
	limiters map[string]*rate.Limiter

	cache *expirable.LRU[string, CachedResult]

	// now is swappable for tests.
	now func() time.Time
}

// CachedResult is a stored tool response.
type CachedResult struct {
	Data any
}

// NewGovernor creates a Governor from configuration.
func NewGovernor(cfg config.QuotaConfig, logger *zap.Logger) *Governor {
	if logger == nil {
		logger = zap.NewNop()
	}

	burst := int(cfg.RatePerSecond) + 1
	limiters := make(map[string]*rate.Limiter, len(cfg.DailyBudgets))
	for tool := range cfg.DailyBudgets {
		limiters[tool] = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	g := &Governor{
		cfg:      cfg,
		logger:   logger,
		used:     make(map[string]int),
		limiters: limiters,
		cache:    expirable.NewLRU[string, CachedResult](1024, nil, cfg.CacheTTL.Duration()),
		now:      time.Now,
	}
	g.day = dayOf(g.now())
	return g
}

func dayOf(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// Reserve consumes one call from a tool's budget. An exhausted budget
// stays exhausted until the UTC day rolls over.
func (g *Governor) Reserve(tool string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	budget, ok := g.cfg.DailyBudgets[tool]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, tool)
	}

	today := dayOf(g.now())
	if today.After(g.day) {
		g.used = make(map[string]int)
		g.day = today
		g.logger.Info("daily budgets reset", zap.Time("day", today))
	}

	if g.used[tool] >= budget {
		denialsTotal.WithLabelValues(tool, "budget").Inc()
		return fmt.Errorf("%w: %s used %d/%d", ErrBudgetExhausted, tool, g.used[tool], budget)
	}
	if limiter := g.limiters[tool]; limiter != nil && !limiter.Allow() {
		denialsTotal.WithLabelValues(tool, "rate").Inc()
		return fmt.Errorf("%w: %s", ErrRateLimited, tool)
	}

	g.used[tool]++
	spendTotal.WithLabelValues(tool).Inc()
	return nil
}

// Remaining reports calls left in a tool's budget today.
func (g *Governor) Remaining(tool string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	budget, ok := g.cfg.DailyBudgets[tool]
	if !ok {
		return 0
	}
	if dayOf(g.now()).After(g.day) {
		return budget
	}
	left := budget - g.used[tool]
	if left < 0 {
		return 0
	}
	return left
}

// CacheGet looks up a cached tool result.
func (g *Governor) CacheGet(tool string, params map[string]string) (CachedResult, bool) {
	res, ok := g.cache.Get(cacheKey(tool, params))
	if ok {
		cacheHitsTotal.WithLabelValues(tool).Inc()
	}
	return res, ok
}

// CacheSet stores a tool result for the cache window.
func (g *Governor) CacheSet(tool string, params map[string]string, res CachedResult) {
	g.cache.Add(cacheKey(tool, params), res)
}

// cacheKey normalizes parameters so equivalent questions share one
// cache slot regardless of map iteration order.
func cacheKey(tool string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(tool)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.ToLower(strings.TrimSpace(params[k])))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
