package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/storage"
)

// DefaultTTL applies when neither the policy nor the configuration sets one.
const DefaultTTL = 60 * time.Second

// FaultObserver is told about every swallowed store failure.
type FaultObserver func(op string, err error)

// Config holds dependencies for creating a ResultCache.
type Config struct {
	Store      storage.ResultStore
	DefaultTTL time.Duration
	Logger     *slog.Logger
	OnFault    FaultObserver
}

// ResultCache fronts a ResultStore with single-flight population. Store
// failures are logged and reported as misses; they never fail a request.
type ResultCache struct {
	store      storage.ResultStore
	locks      *KeyedLocks
	defaultTTL time.Duration
	logger     *slog.Logger
	onFault    FaultObserver
}

// New creates a ResultCache. A nil store selects an in-memory store.
func New(cfg Config) *ResultCache {
	store := cfg.Store
	if store == nil {
		store = storage.NewMemoryResultStore()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResultCache{
		store:      store,
		locks:      NewKeyedLocks(),
		defaultTTL: ttl,
		logger:     logger,
		onFault:    cfg.OnFault,
	}
}

// TTLFor picks the policy TTL, falling back to the configured default.
func (c *ResultCache) TTLFor(policy *domain.ExecutionPolicy) time.Duration {
	if policy != nil {
		if ttl := policy.CacheTTL(); ttl > 0 {
			return ttl
		}
	}
	return c.defaultTTL
}

// Lookup reads a cached response, treating store failures as misses.
func (c *ResultCache) Lookup(ctx context.Context, key string) (domain.Response, bool) {
	resp, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.fault("read", key, err)
		return domain.Response{}, false
	}
	return resp, ok
}

// Store writes a response, logging and swallowing store failures.
func (c *ResultCache) Store(ctx context.Context, key string, resp domain.Response, ttl time.Duration) {
	if err := c.store.Set(ctx, key, resp, ttl); err != nil {
		c.fault("write", key, err)
	}
}

// GetOrCompute returns the cached response for key or runs compute under the
// key's lock. Callers queued behind the lock re-check the store before
// computing, so at most one compute runs per key while no value is cached.
// Only successful responses are stored.
func (c *ResultCache) GetOrCompute(
	ctx context.Context,
	key string,
	ttl time.Duration,
	compute func(context.Context) (domain.Response, error),
) (resp domain.Response, hit bool, err error) {
	if cached, ok := c.Lookup(ctx, key); ok {
		return cached, true, nil
	}

	unlock, err := c.locks.Lock(ctx, key)
	if err != nil {
		return domain.Response{}, false, err
	}
	defer unlock()

	if cached, ok := c.Lookup(ctx, key); ok {
		return cached, true, nil
	}

	resp, err = compute(ctx)
	if err != nil {
		return resp, false, err
	}
	if resp.Success {
		stored := resp
		stored.FromCache = false
		c.Store(ctx, key, stored, ttl)
	}
	return resp, false, nil
}

// Locks exposes the single-flight lock set.
func (c *ResultCache) Locks() *KeyedLocks {
	return c.locks
}

// Close closes the backing store.
func (c *ResultCache) Close() error {
	return c.store.Close()
}

func (c *ResultCache) fault(op, key string, err error) {
	c.logger.Warn("result cache fault, treating as miss", "op", op, "cache_key", key, "error", err)
	if c.onFault != nil {
		c.onFault(op, err)
	}
}
