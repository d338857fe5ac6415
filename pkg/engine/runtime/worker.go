package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

// PreparationStatusNotEnabled is reported while out-of-process runtimes are inert.
const PreparationStatusNotEnabled = "runtime-not-enabled"

// ErrLeaseNotFound is returned when releasing or updating an unknown lease.
var ErrLeaseNotFound = errors.New("worker lease not found")

// PoolCoordinator hands out worker leases.
type PoolCoordinator interface {
	Acquire(ctx context.Context, workerType domain.WorkerType) (domain.WorkerLease, error)
	MarkBusy(ctx context.Context, lease domain.WorkerLease) (domain.WorkerLease, error)
	Release(ctx context.Context, lease domain.WorkerLease) error
}

// RuntimeManager prepares an out-of-process runtime for a job.
type RuntimeManager interface {
	Prepare(ctx context.Context, lease domain.WorkerLease, envelope domain.WorkerEnvelope) (domain.WorkerPreparationResult, error)
}

// NoopRuntimeManager never prepares anything.
type NoopRuntimeManager struct{}

// Prepare implements RuntimeManager.
func (NoopRuntimeManager) Prepare(_ context.Context, lease domain.WorkerLease, _ domain.WorkerEnvelope) (domain.WorkerPreparationResult, error) {
	return domain.WorkerPreparationResult{
		Prepared: false,
		Status:   PreparationStatusNotEnabled,
		Message:  "Out-of-process runtime execution is not enabled in this deployment.",
		WorkerID: lease.WorkerID,
		Payload:  map[string]string{},
	}, nil
}

// MemoryPoolCoordinator tracks leases in process memory.
type MemoryPoolCoordinator struct {
	mu       sync.Mutex
	leases   map[string]domain.WorkerLease
	leaseTTL time.Duration
	seq      map[string]int
	now      func() time.Time
}

// NewMemoryPoolCoordinator creates a coordinator whose leases expire after ttl.
func NewMemoryPoolCoordinator(ttl time.Duration) *MemoryPoolCoordinator {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &MemoryPoolCoordinator{
		leases:   make(map[string]domain.WorkerLease),
		leaseTTL: ttl,
		seq:      make(map[string]int),
		now:      time.Now,
	}
}

// Acquire implements PoolCoordinator.
func (p *MemoryPoolCoordinator) Acquire(ctx context.Context, workerType domain.WorkerType) (domain.WorkerLease, error) {
	if err := ctx.Err(); err != nil {
		return domain.WorkerLease{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	key := workerType.String()
	p.seq[key]++
	now := p.now()
	lease := domain.WorkerLease{
		LeaseID:    uuid.NewString(),
		WorkerID:   fmt.Sprintf("%s-%d", strings.ReplaceAll(key, ":", "-"), p.seq[key]),
		WorkerType: workerType,
		State:      domain.LeaseAcquired,
		AcquiredAt: now,
		ExpiresAt:  now.Add(p.leaseTTL),
	}
	p.leases[lease.LeaseID] = lease
	return lease, nil
}

// MarkBusy implements PoolCoordinator.
func (p *MemoryPoolCoordinator) MarkBusy(_ context.Context, lease domain.WorkerLease) (domain.WorkerLease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored, ok := p.leases[lease.LeaseID]
	if !ok {
		return lease, ErrLeaseNotFound
	}
	stored.State = domain.LeaseBusy
	p.leases[lease.LeaseID] = stored
	return stored, nil
}

// Release implements PoolCoordinator. It ignores cancellation so a lease is
// always returned.
func (p *MemoryPoolCoordinator) Release(_ context.Context, lease domain.WorkerLease) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.leases[lease.LeaseID]; !ok {
		return ErrLeaseNotFound
	}
	delete(p.leases, lease.LeaseID)
	return nil
}

// Active returns the number of unreleased leases.
func (p *MemoryPoolCoordinator) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.leases)
}

// Orchestration reports what happened to a lease while preparing a job.
type Orchestration struct {
	LeaseAcquired bool
	Lease         domain.WorkerLease
	// LeaseState is the state the lease reached before release.
	LeaseState  domain.WorkerLeaseState
	Preparation domain.WorkerPreparationResult
}

// WorkerOrchestrator drives acquire, mark busy, prepare and release.
type WorkerOrchestrator struct {
	pool    PoolCoordinator
	manager RuntimeManager
	logger  *slog.Logger
}

// NewWorkerOrchestrator wires a pool coordinator to a runtime manager.
func NewWorkerOrchestrator(pool PoolCoordinator, manager RuntimeManager, logger *slog.Logger) *WorkerOrchestrator {
	if manager == nil {
		manager = NoopRuntimeManager{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerOrchestrator{pool: pool, manager: manager, logger: logger}
}

// Prepare runs the preparation lifecycle. The lease is released on every path
// once acquired, including when preparation fails.
func (o *WorkerOrchestrator) Prepare(ctx context.Context, envelope domain.WorkerEnvelope, workerType domain.WorkerType) (Orchestration, error) {
	lease, err := o.pool.Acquire(ctx, workerType)
	if err != nil {
		return Orchestration{}, fmt.Errorf("acquire worker lease: %w", err)
	}
	orch := Orchestration{LeaseAcquired: true, Lease: lease, LeaseState: lease.State}

	defer func() {
		released := orch.Lease
		released.State = domain.LeaseReleased
		if relErr := o.pool.Release(context.WithoutCancel(ctx), released); relErr != nil {
			o.logger.Warn("worker lease release failed", "lease_id", lease.LeaseID, "error", relErr)
		}
	}()

	busy, err := o.pool.MarkBusy(ctx, lease)
	if err != nil {
		return orch, fmt.Errorf("mark worker lease busy: %w", err)
	}
	orch.Lease = busy
	orch.LeaseState = busy.State

	prep, err := o.manager.Prepare(ctx, busy, envelope)
	if err != nil {
		return orch, fmt.Errorf("prepare worker runtime: %w", err)
	}
	orch.Preparation = prep
	return orch, nil
}
