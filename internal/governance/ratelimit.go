package governance

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateGuard implements a per-capability request budget expressed in requests
// per minute. Budgets are token buckets whose burst equals the per-minute limit.
type RateGuard struct {
	mu       sync.RWMutex
	limiters map[string]*capabilityLimiter
	now      func() time.Time
}

type capabilityLimiter struct {
	perMinute int
	limiter   *rate.Limiter
}

// NewRateGuard creates an empty guard; limiters are created on first use.
func NewRateGuard() *RateGuard {
	return &RateGuard{
		limiters: make(map[string]*capabilityLimiter),
		now:      time.Now,
	}
}

// TryAcquire consumes one request from the capability's budget. A
// non-positive limit disables rate limiting for the capability.
func (g *RateGuard) TryAcquire(capabilityID string, maxPerMinute int) bool {
	if maxPerMinute <= 0 {
		return true
	}
	return g.limiterFor(capabilityID, maxPerMinute).AllowN(g.now(), 1)
}

func (g *RateGuard) limiterFor(capabilityID string, perMinute int) *rate.Limiter {
	g.mu.RLock()
	entry, ok := g.limiters[capabilityID]
	g.mu.RUnlock()
	if ok && entry.perMinute == perMinute {
		return entry.limiter
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok = g.limiters[capabilityID]
	switch {
	case !ok:
		entry = &capabilityLimiter{
			perMinute: perMinute,
			limiter:   rate.NewLimiter(perMinuteLimit(perMinute), perMinute),
		}
		g.limiters[capabilityID] = entry
	case entry.perMinute != perMinute:
		// Preserve consumed tokens across policy reloads.
		now := g.now()
		entry.limiter.SetLimitAt(now, perMinuteLimit(perMinute))
		entry.limiter.SetBurstAt(now, perMinute)
		entry.perMinute = perMinute
	}
	return entry.limiter
}

func perMinuteLimit(perMinute int) rate.Limit {
	return rate.Limit(float64(perMinute) / time.Minute.Seconds())
}

// RateLimitStats exposes the current state of a capability budget.
type RateLimitStats struct {
	PerMinute int     `json:"perMinute"`
	Available float64 `json:"available"`
}

// Stats returns current budgets for all capabilities seen so far.
func (g *RateGuard) Stats() map[string]RateLimitStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	now := g.now()
	stats := make(map[string]RateLimitStats, len(g.limiters))
	for id, entry := range g.limiters {
		stats[id] = RateLimitStats{
			PerMinute: entry.perMinute,
			Available: entry.limiter.TokensAt(now),
		}
	}
	return stats
}
