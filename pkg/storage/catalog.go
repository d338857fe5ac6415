package storage

import (
	"sort"
	"sync"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

// MemoryCatalog is an in-memory capability manifest catalog.
type MemoryCatalog struct {
	mu        sync.RWMutex
	manifests map[string]domain.Manifest
}

// NewMemoryCatalog creates a catalog seeded with manifests.
func NewMemoryCatalog(manifests ...domain.Manifest) *MemoryCatalog {
	c := &MemoryCatalog{manifests: make(map[string]domain.Manifest, len(manifests))}
	for _, m := range manifests {
		c.manifests[normalizeID(m.ID)] = m
	}
	return c
}

// FindCapability returns a copy of the manifest registered under capabilityID.
func (c *MemoryCatalog) FindCapability(capabilityID string) (*domain.Manifest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m, ok := c.manifests[normalizeID(capabilityID)]
	if !ok {
		return nil, false
	}
	m.Actions = append([]string(nil), m.Actions...)
	return &m, true
}

// Register adds or replaces a manifest.
func (c *MemoryCatalog) Register(m domain.Manifest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manifests[normalizeID(m.ID)] = m
}

// Replace swaps the full manifest set atomically.
func (c *MemoryCatalog) Replace(manifests []domain.Manifest) {
	next := make(map[string]domain.Manifest, len(manifests))
	for _, m := range manifests {
		next[normalizeID(m.ID)] = m
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manifests = next
}

// List returns all manifests sorted by id.
func (c *MemoryCatalog) List() []domain.Manifest {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Manifest, 0, len(c.manifests))
	for _, m := range c.manifests {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
