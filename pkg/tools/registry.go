// Package tools provides the builtin capability executors shipped with the
// toolnexus binary.
package tools

import (
	"sort"
	"strings"
	"sync"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

// Tool couples a capability manifest with the executor serving it.
type Tool struct {
	Manifest domain.Manifest
	Executor domain.CapabilityExecutor
}

// Registry maps capability ids to executors. It implements
// domain.ExecutorRegistry.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry seeded with tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Builtin returns a registry holding every builtin tool.
func Builtin() *Registry {
	return NewRegistry(Base64(), JSONFormat())
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[strings.ToLower(strings.TrimSpace(t.Manifest.ID))] = t
}

// Executor implements domain.ExecutorRegistry.
func (r *Registry) Executor(capabilityID string) (domain.CapabilityExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[strings.ToLower(strings.TrimSpace(capabilityID))]
	if !ok {
		return nil, false
	}
	return t.Executor, true
}

// Manifests lists the manifests of all registered tools sorted by id.
func (r *Registry) Manifests() []domain.Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Manifest, 0, len(r.tools))
	for _, t := range r.tools {
		m := t.Manifest
		m.Actions = append([]string(nil), m.Actions...)
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func unsupported(tool, action string) domain.ToolResult {
	return domain.ToolResult{Error: "action '" + action + "' is not supported by " + tool}
}
