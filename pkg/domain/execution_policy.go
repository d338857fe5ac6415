package domain

import (
	"context"
	"strings"
	"time"
)

// ExecutionMode describes how a capability is allowed to run.
type ExecutionMode string

const (
	// ModeNormal is the default mode; the capability executes in-process.
	ModeNormal ExecutionMode = "normal"
	// ModeLocal is accepted as an alias for ModeNormal.
	ModeLocal ExecutionMode = "local"
	// ModeRemote marks capabilities intended for out-of-process workers.
	ModeRemote ExecutionMode = "remote"
	// ModeSandbox marks capabilities intended for a sandboxed worker.
	ModeSandbox ExecutionMode = "sandbox"
	// ModeDisabled blocks execution regardless of the enabled flag.
	ModeDisabled ExecutionMode = "disabled"
)

// Default policy values applied when a capability has no stored policy.
const (
	DefaultTimeoutSeconds       = 30
	DefaultMaxRequestsPerMinute = 120
	DefaultMaxInputSize         = 1_000_000
	DefaultMaxConcurrency       = 8
	DefaultFailureThreshold     = 5
)

// ExecutionPolicy bounds how a single capability may be executed.
type ExecutionPolicy struct {
	CapabilityID                   string        `yaml:"capability" json:"capability"`
	ExecutionEnabled               bool          `yaml:"execution_enabled" json:"executionEnabled"`
	ExecutionMode                  ExecutionMode `yaml:"execution_mode" json:"executionMode"`
	TimeoutSeconds                 int           `yaml:"timeout_seconds" json:"timeoutSeconds"`
	MaxInputSize                   int           `yaml:"max_input_size" json:"maxInputSize"`
	MaxRequestsPerMinute           int           `yaml:"max_requests_per_minute" json:"maxRequestsPerMinute"`
	MaxConcurrency                 int           `yaml:"max_concurrency" json:"maxConcurrency"`
	CacheTTLSeconds                int           `yaml:"cache_ttl_seconds" json:"cacheTtlSeconds"`
	CircuitBreakerFailureThreshold int           `yaml:"circuit_breaker_failure_threshold" json:"circuitBreakerFailureThreshold"`
	AllowedMethods                 []string      `yaml:"allowed_methods" json:"allowedMethods"`
	AllowAnonymous                 bool          `yaml:"allow_anonymous" json:"allowAnonymous"`
	RetryCount                     int           `yaml:"retry_count" json:"retryCount"`
}

// DefaultExecutionPolicy returns the permissive policy used when the registry
// holds nothing for a capability.
func DefaultExecutionPolicy(capabilityID string) ExecutionPolicy {
	return ExecutionPolicy{
		CapabilityID:                   capabilityID,
		ExecutionEnabled:               true,
		ExecutionMode:                  ModeNormal,
		TimeoutSeconds:                 DefaultTimeoutSeconds,
		MaxInputSize:                   DefaultMaxInputSize,
		MaxRequestsPerMinute:           DefaultMaxRequestsPerMinute,
		MaxConcurrency:                 DefaultMaxConcurrency,
		CircuitBreakerFailureThreshold: DefaultFailureThreshold,
		AllowAnonymous:                 true,
	}
}

// Disabled reports whether the policy forbids execution.
func (p ExecutionPolicy) Disabled() bool {
	return !p.ExecutionEnabled || ExecutionMode(strings.ToLower(string(p.ExecutionMode))) == ModeDisabled
}

// Timeout returns the configured timeout budget.
func (p ExecutionPolicy) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// CacheTTL returns the configured result TTL, zero when unset.
func (p ExecutionPolicy) CacheTTL() time.Duration {
	if p.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(p.CacheTTLSeconds) * time.Second
}

// AllowsMethod reports whether the transport method may execute the capability.
// An empty allow-list permits every method.
func (p ExecutionPolicy) AllowsMethod(method string) bool {
	if len(p.AllowedMethods) == 0 {
		return true
	}
	for _, allowed := range p.AllowedMethods {
		if strings.EqualFold(strings.TrimSpace(allowed), method) {
			return true
		}
	}
	return false
}

// PolicyRegistry resolves execution policies by capability id.
type PolicyRegistry interface {
	GetPolicy(ctx context.Context, capabilityID string) (*ExecutionPolicy, error)
}

// RateGuard enforces a per-capability request budget.
type RateGuard interface {
	TryAcquire(capabilityID string, maxPerMinute int) bool
}

// APIKeyValidator decides whether a caller-supplied API key is acceptable.
type APIKeyValidator interface {
	Valid(key string) bool
}
