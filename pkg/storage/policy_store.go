package storage

import (
	"context"
	"strings"
	"sync"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

// MemoryPolicyStore is an in-memory policy registry. Capabilities without a
// stored policy resolve to a copy of the fallback policy.
type MemoryPolicyStore struct {
	mu       sync.RWMutex
	policies map[string]domain.ExecutionPolicy
	fallback domain.ExecutionPolicy
}

// NewMemoryPolicyStore creates a store seeded with policies.
func NewMemoryPolicyStore(policies ...domain.ExecutionPolicy) *MemoryPolicyStore {
	s := &MemoryPolicyStore{
		policies: make(map[string]domain.ExecutionPolicy, len(policies)),
		fallback: domain.DefaultExecutionPolicy(""),
	}
	for _, p := range policies {
		s.policies[normalizeID(p.CapabilityID)] = p
	}
	return s
}

// SetFallback replaces the policy used for unknown capabilities.
func (s *MemoryPolicyStore) SetFallback(policy domain.ExecutionPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = policy
}

// GetPolicy returns a copy of the capability's policy.
func (s *MemoryPolicyStore) GetPolicy(_ context.Context, capabilityID string) (*domain.ExecutionPolicy, error) {
	id := normalizeID(capabilityID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	policy, ok := s.policies[id]
	if !ok {
		policy = s.fallback
		policy.CapabilityID = id
	}
	policy.AllowedMethods = append([]string(nil), policy.AllowedMethods...)
	return &policy, nil
}

// SavePolicy stores or replaces a policy.
func (s *MemoryPolicyStore) SavePolicy(_ context.Context, policy domain.ExecutionPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[normalizeID(policy.CapabilityID)] = policy
	return nil
}

// Replace swaps the full policy set atomically, used on configuration reload.
func (s *MemoryPolicyStore) Replace(fallback domain.ExecutionPolicy, policies []domain.ExecutionPolicy) {
	next := make(map[string]domain.ExecutionPolicy, len(policies))
	for _, p := range policies {
		next[normalizeID(p.CapabilityID)] = p
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies = next
	s.fallback = fallback
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
