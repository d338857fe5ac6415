package telemetry

import (
	"context"
	"sync"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

// RecentEvents is a fixed-size ring of the latest execution events, oldest
// evicted first.
type RecentEvents struct {
	mu       sync.RWMutex
	events   []domain.ExecutionEvent
	head     int // index of the oldest element
	size     int
	capacity int
}

// NewRecentEvents creates a ring holding up to capacity events.
func NewRecentEvents(capacity int) *RecentEvents {
	if capacity <= 0 {
		capacity = 100
	}
	return &RecentEvents{events: make([]domain.ExecutionEvent, capacity), capacity: capacity}
}

// Add stores ev and reports whether an older event was evicted.
func (r *RecentEvents) Add(ev domain.ExecutionEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	tail := (r.head + r.size) % r.capacity
	r.events[tail] = ev
	if r.size < r.capacity {
		r.size++
		return false
	}
	r.head = (r.head + 1) % r.capacity
	return true
}

// Record implements domain.EventSink.
func (r *RecentEvents) Record(_ context.Context, ev domain.ExecutionEvent) error {
	r.Add(ev)
	return nil
}

// Snapshot returns up to limit events, newest first. A non-positive limit
// returns everything.
func (r *RecentEvents) Snapshot(limit int) []domain.ExecutionEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.ExecutionEvent, 0, n)
	for i := 0; i < n; i++ {
		idx := (r.head + r.size - 1 - i) % r.capacity
		out = append(out, r.events[idx])
	}
	return out
}

// Len returns the number of buffered events.
func (r *RecentEvents) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}
