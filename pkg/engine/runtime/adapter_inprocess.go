package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

// InProcessAdapter calls capability executors in the current process.
type InProcessAdapter struct {
	executors domain.ExecutorRegistry
	language  string
	name      string
	now       func() time.Time
}

// NewInProcessAdapter serves LanguageGo from the executor registry.
func NewInProcessAdapter(executors domain.ExecutorRegistry) *InProcessAdapter {
	return &InProcessAdapter{executors: executors, language: LanguageGo, name: "InProcessAdapter", now: time.Now}
}

// NewLegacyDispatcher serves LegacyAuthoritative requests straight from the
// executor registry, regardless of the declared runtime.
func NewLegacyDispatcher(executors domain.ExecutorRegistry) *InProcessAdapter {
	return &InProcessAdapter{executors: executors, language: LanguageGo, name: "LegacyDispatcher", now: time.Now}
}

// Name implements Adapter.
func (a *InProcessAdapter) Name() string { return a.name }

// Language implements Adapter.
func (a *InProcessAdapter) Language() string { return a.language }

// Execute implements Adapter. Executor errors become unsuccessful results;
// only context cancellation is returned as an error.
func (a *InProcessAdapter) Execute(ctx context.Context, req domain.ExecutionRequest, _ *domain.ExecutionPolicy) (domain.ExecutionResult, error) {
	var executor domain.CapabilityExecutor
	var ok bool
	if a.executors != nil {
		executor, ok = a.executors.Executor(req.CapabilityID)
	}
	if !ok {
		result := domain.NewExecutionResult(req, false, "", fmt.Sprintf("no executor registered for capability %q", req.CapabilityID))
		result.Metrics[domain.MetricFailureCode] = domain.CodeExecutorNotFound
		result.Metrics[MetricAdapter] = a.name
		return result, nil
	}

	start := a.now()
	out, err := executor.Execute(ctx, req.Action, req.Input)
	elapsed := a.now().Sub(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.ExecutionResult{}, ctxErr
		}
		out = domain.ToolResult{Success: false, Error: err.Error()}
	}

	result := domain.NewExecutionResult(req, out.Success, out.Output, out.Error)
	result.DurationMS = elapsed.Milliseconds()
	result.Metrics[MetricAdapter] = a.name
	if err != nil {
		result.Incidents = append(result.Incidents, err.Error())
	}
	return result, nil
}
