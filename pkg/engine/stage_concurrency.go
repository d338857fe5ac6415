package engine

import (
	"context"

	"github.com/ankitdsmb/ToolNexus-sub004/internal/governance"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

// ConcurrencyStage holds a per-capability slot for the rest of the chain.
type ConcurrencyStage struct {
	limiter *governance.ConcurrencyLimiter
}

// NewConcurrencyStage creates the concurrency stage.
func NewConcurrencyStage(limiter *governance.ConcurrencyLimiter) *ConcurrencyStage {
	return &ConcurrencyStage{limiter: limiter}
}

func (s *ConcurrencyStage) Name() string { return "concurrency" }
func (s *ConcurrencyStage) Order() int   { return OrderConcurrency }

// Invoke waits for a slot. Cancellation while waiting is returned as the
// context's error and nothing further runs.
func (s *ConcurrencyStage) Invoke(ctx context.Context, ec *domain.ExecutionContext, next Next) (domain.Response, error) {
	if ec.Response != nil || ec.Policy == nil {
		return next(ctx, ec)
	}

	slot, err := s.limiter.Acquire(ctx, ec.CapabilityID, ec.Policy.MaxConcurrency)
	if err != nil {
		return domain.Response{}, err
	}
	defer slot.Release()

	return next(governance.ContextWithSlot(ctx, slot), ec)
}
