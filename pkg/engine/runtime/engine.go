package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

// Route is the dispatch decision for one request.
type Route struct {
	Adapter    Adapter
	Name       string
	Language   string
	Resolution domain.AdapterResolution
}

// EngineConfig holds dependencies for creating a UniversalEngine.
type EngineConfig struct {
	Adapters []Adapter
	// Legacy serves LegacyAuthoritative requests. When nil, legacy requests
	// fall through to the language registry.
	Legacy Adapter
	Logger *slog.Logger
}

// UniversalEngine dispatches universal requests to runtime adapters keyed by
// language. The registry is fixed at construction.
type UniversalEngine struct {
	adapters map[string]Adapter
	legacy   Adapter
	logger   *slog.Logger
}

// NewUniversalEngine builds the adapter registry. A later adapter for the same
// language replaces an earlier one.
func NewUniversalEngine(cfg EngineConfig) *UniversalEngine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	adapters := make(map[string]Adapter, len(cfg.Adapters))
	for _, adapter := range cfg.Adapters {
		if adapter == nil {
			continue
		}
		adapters[NormalizeLanguage(adapter.Language())] = adapter
	}
	return &UniversalEngine{adapters: adapters, legacy: cfg.Legacy, logger: logger}
}

// Languages returns the registered runtime languages in sorted order.
func (e *UniversalEngine) Languages() []string {
	out := make([]string, 0, len(e.adapters))
	for lang := range e.adapters {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// Resolve picks the adapter for a request. The returned route has a nil
// Adapter when no adapter serves the language.
func (e *UniversalEngine) Resolve(req domain.ExecutionRequest, authority domain.ExecutionAuthority) Route {
	language := NormalizeLanguage(req.RuntimeLanguage)
	if authority == domain.AuthorityLegacyAuthoritative && e.legacy != nil {
		return Route{Adapter: e.legacy, Name: e.legacy.Name(), Language: language, Resolution: domain.AdapterLegacy}
	}
	adapter, ok := e.adapters[language]
	if !ok {
		return Route{Name: "none", Language: language, Resolution: domain.AdapterMissing}
	}
	return Route{Adapter: adapter, Name: adapter.Name(), Language: language, Resolution: domain.AdapterResolved}
}

// Execute runs req on the adapter chosen by route. A missing adapter yields a
// structured failure rather than an error.
func (e *UniversalEngine) Execute(ctx context.Context, route Route, req domain.ExecutionRequest, policy *domain.ExecutionPolicy) (domain.ExecutionResult, error) {
	req.RuntimeLanguage = route.Language
	if route.Adapter == nil {
		e.logger.Warn("no runtime adapter registered",
			"capability", req.CapabilityID,
			"language", route.Language,
			"correlation_id", req.CorrelationID,
		)
		result := domain.NewExecutionResult(req, false, "", fmt.Sprintf("adapter not found for language %q", route.Language))
		result.Metrics[domain.MetricFailureCode] = domain.CodeAdapterNotFound
		result.Metrics[MetricAdapter] = route.Name
		return result, nil
	}
	return route.Adapter.Execute(ctx, req, policy)
}
