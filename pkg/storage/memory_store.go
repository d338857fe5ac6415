package storage

import (
	"context"
	"sync"
	"time"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

// MemoryResultStore is an in-memory implementation of ResultStore. Expired
// entries are dropped lazily on read and by Sweep.
type MemoryResultStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	resp      domain.Response
	expiresAt time.Time
}

// NewMemoryResultStore creates a new MemoryResultStore.
func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get retrieves a cached response from memory.
func (s *MemoryResultStore) Get(_ context.Context, key string) (domain.Response, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return domain.Response{}, false, nil
	}
	if !s.now().Before(entry.expiresAt) {
		s.mu.Lock()
		if current, still := s.entries[key]; still && current.expiresAt.Equal(entry.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return domain.Response{}, false, nil
	}
	return entry.resp, true, nil
}

// Set saves a response to memory.
func (s *MemoryResultStore) Set(_ context.Context, key string, resp domain.Response, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{resp: resp, expiresAt: s.now().Add(ttl)}
	return nil
}

// Sweep removes expired entries and returns how many were dropped.
func (s *MemoryResultStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	dropped := 0
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
			dropped++
		}
	}
	return dropped
}

// Len reports the number of stored entries, expired or not.
func (s *MemoryResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close is a no-op for memory store.
func (s *MemoryResultStore) Close() error {
	return nil
}
