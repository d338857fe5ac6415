// Package runtime holds the universal execution layer that sits behind the
// pipeline's execution stage: the runtime adapter registry, the authority
// resolver, the admission gate, conformance normalization and the audit
// snapshot builder.
//
// Everything here is free of pipeline mechanics. Stages in pkg/engine compose
// these pieces; adapters only see a domain.ExecutionRequest and the resolved
// policy, never the mutable execution context.
package runtime

import (
	"context"
	"strings"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

// Runtime languages with a built-in adapter.
const (
	LanguageGo     = "go"
	LanguagePython = "python"
)

// DefaultLanguage is assumed when a manifest does not declare a runtime.
const DefaultLanguage = LanguageGo

// Result metric keys written by adapters and copied into context facts by the
// execution stage.
const (
	MetricAdapter        = "adapter"
	MetricWorkerType     = "workerType"
	MetricWorkerLeaseID  = "workerLeaseId"
	MetricWorkerPrepared = "workerPrepared"
	MetricWorkerStatus   = "workerPreparationStatus"
)

// Adapter executes universal requests for a single runtime language.
//
// Implementations must be safe for concurrent use. They receive the policy the
// request was admitted under and must not retain it.
type Adapter interface {
	Name() string
	Language() string
	Execute(ctx context.Context, req domain.ExecutionRequest, policy *domain.ExecutionPolicy) (domain.ExecutionResult, error)
}

// NormalizeLanguage trims and lower-cases a runtime identifier, defaulting to
// DefaultLanguage when empty.
func NormalizeLanguage(language string) string {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		return DefaultLanguage
	}
	return language
}
