package domain

import (
	"context"
	"strings"
)

// Manifest describes a registered capability.
type Manifest struct {
	ID              string   `yaml:"id" json:"id"`
	Version         string   `yaml:"version" json:"version"`
	Actions         []string `yaml:"actions" json:"actions"`
	Cacheable       bool     `yaml:"cacheable" json:"cacheable"`
	RuntimeLanguage string   `yaml:"runtime_language" json:"runtimeLanguage"`
	CapabilityClass string   `yaml:"capability_class" json:"capabilityClass"`
	Description     string   `yaml:"description" json:"description,omitempty"`
}

// SupportsAction reports whether action is declared by the manifest.
func (m Manifest) SupportsAction(action string) bool {
	for _, declared := range m.Actions {
		if strings.EqualFold(strings.TrimSpace(declared), action) {
			return true
		}
	}
	return false
}

// CapabilityCatalog looks up capability manifests.
type CapabilityCatalog interface {
	FindCapability(capabilityID string) (*Manifest, bool)
}

// ToolResult is the outcome of a single capability executor call.
type ToolResult struct {
	Success bool
	Output  string
	Error   string
}

// CapabilityExecutor runs one capability.
type CapabilityExecutor interface {
	Execute(ctx context.Context, action, input string) (ToolResult, error)
}

// ExecutorFunc adapts a function to CapabilityExecutor.
type ExecutorFunc func(ctx context.Context, action, input string) (ToolResult, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, action, input string) (ToolResult, error) {
	return f(ctx, action, input)
}

// ExecutorRegistry resolves executors by capability id.
type ExecutorRegistry interface {
	Executor(capabilityID string) (CapabilityExecutor, bool)
}
