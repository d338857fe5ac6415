package governance

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ConcurrencyObserver receives slot lifecycle notifications.
type ConcurrencyObserver interface {
	SlotWaiting(capabilityID string)
	SlotAcquired(capabilityID string)
	SlotReleased(capabilityID string)
}

// ConcurrencyLimiter bounds simultaneous executions per capability. Each
// capability gets one weighted semaphore sized by the first limit seen for it.
type ConcurrencyLimiter struct {
	slots    sync.Map // capability id -> *capacity
	observer ConcurrencyObserver
}

type capacity struct {
	limit int64
	sem   *semaphore.Weighted
}

// NewConcurrencyLimiter creates a limiter; observer may be nil.
func NewConcurrencyLimiter(observer ConcurrencyObserver) *ConcurrencyLimiter {
	return &ConcurrencyLimiter{observer: observer}
}

// Slot is a held concurrency permit. Release is safe to call more than once.
type Slot struct {
	capabilityID string
	sem          *semaphore.Weighted
	observer     ConcurrencyObserver

	mu       sync.Mutex
	holds    int
	pending  bool
	released bool
}

// Release frees the permit; only the first call has an effect. While a Hold
// is outstanding the permit stays taken until the last hold ends.
func (s *Slot) Release() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.released || s.pending {
		s.mu.Unlock()
		return
	}
	if s.holds > 0 {
		s.pending = true
		s.mu.Unlock()
		return
	}
	s.released = true
	s.mu.Unlock()
	s.free()
}

// Hold keeps the permit taken past Release until the returned func is
// called. Work that may outlive its caller, such as a call abandoned on
// timeout, holds the slot so the capability cannot exceed its limit.
func (s *Slot) Hold() func() {
	if s == nil {
		return func() {}
	}
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return func() {}
	}
	s.holds++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.holds--
			free := s.holds == 0 && s.pending && !s.released
			if free {
				s.released = true
			}
			s.mu.Unlock()
			if free {
				s.free()
			}
		})
	}
}

func (s *Slot) free() {
	if s.sem != nil {
		s.sem.Release(1)
	}
	if s.observer != nil {
		s.observer.SlotReleased(s.capabilityID)
	}
}

type slotKey struct{}

// ContextWithSlot attaches slot to ctx for code further down the chain.
func ContextWithSlot(ctx context.Context, slot *Slot) context.Context {
	return context.WithValue(ctx, slotKey{}, slot)
}

// SlotFromContext returns the slot attached by ContextWithSlot, or nil.
func SlotFromContext(ctx context.Context) *Slot {
	slot, _ := ctx.Value(slotKey{}).(*Slot)
	return slot
}

// Acquire blocks until a slot for capabilityID is free or ctx is done. On
// cancellation it returns ctx.Err() and no slot is held. A non-positive
// maxConcurrency yields an unbounded slot.
func (l *ConcurrencyLimiter) Acquire(ctx context.Context, capabilityID string, maxConcurrency int) (*Slot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if maxConcurrency <= 0 {
		return &Slot{capabilityID: capabilityID}, nil
	}

	c := l.capacityFor(capabilityID, maxConcurrency)
	if !c.sem.TryAcquire(1) {
		if l.observer != nil {
			l.observer.SlotWaiting(capabilityID)
		}
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}
	if l.observer != nil {
		l.observer.SlotAcquired(capabilityID)
	}
	return &Slot{capabilityID: capabilityID, sem: c.sem, observer: l.observer}, nil
}

// Limit reports the limit a capability's semaphore was created with.
func (l *ConcurrencyLimiter) Limit(capabilityID string) (int, bool) {
	v, ok := l.slots.Load(capabilityID)
	if !ok {
		return 0, false
	}
	return int(v.(*capacity).limit), true
}

func (l *ConcurrencyLimiter) capacityFor(capabilityID string, maxConcurrency int) *capacity {
	if v, ok := l.slots.Load(capabilityID); ok {
		return v.(*capacity)
	}
	fresh := &capacity{limit: int64(maxConcurrency), sem: semaphore.NewWeighted(int64(maxConcurrency))}
	v, _ := l.slots.LoadOrStore(capabilityID, fresh)
	return v.(*capacity)
}
