package engine

import (
	"context"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/cache"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

// CacheStage serves cacheable capabilities from the result cache. The rest
// of the chain runs under the key's single-flight lock on a miss.
type CacheStage struct {
	cache *cache.ResultCache
}

// NewCacheStage creates the cache stage.
func NewCacheStage(rc *cache.ResultCache) *CacheStage {
	return &CacheStage{cache: rc}
}

func (s *CacheStage) Name() string { return "cache" }
func (s *CacheStage) Order() int   { return OrderCache }

func (s *CacheStage) Invoke(ctx context.Context, ec *domain.ExecutionContext, next Next) (domain.Response, error) {
	if ec.Response != nil || ec.Manifest == nil || !ec.Manifest.Cacheable {
		return next(ctx, ec)
	}

	key := cache.BuildKey(ec.CapabilityID, ec.Action, ec.Input, ec.Options)
	ec.CacheKey = key

	resp, hit, err := s.cache.GetOrCompute(ctx, key, s.cache.TTLFor(ec.Policy), func(ctx context.Context) (domain.Response, error) {
		return next(ctx, ec)
	})
	if err != nil {
		return resp, err
	}
	if !hit {
		return resp, nil
	}

	// Hits skip execution but still flow through telemetry and metrics.
	resp.FromCache = true
	ec.Response = &resp
	ec.CacheHit = true
	ec.Facts.ResultStatus = domain.StatusSucceeded
	return next(ctx, ec)
}
