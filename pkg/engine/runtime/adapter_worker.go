package runtime

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

// WorkerAdapter routes a language to out-of-process workers. Execution is not
// enabled yet: the adapter runs the lease and preparation lifecycle and then
// reports a runtime-not-enabled failure.
type WorkerAdapter struct {
	language     string
	orchestrator *WorkerOrchestrator
}

// NewWorkerAdapter creates an adapter for language backed by orchestrator.
func NewWorkerAdapter(language string, orchestrator *WorkerOrchestrator) *WorkerAdapter {
	return &WorkerAdapter{language: NormalizeLanguage(language), orchestrator: orchestrator}
}

// Name implements Adapter.
func (a *WorkerAdapter) Name() string { return "WorkerAdapter" }

// Language implements Adapter.
func (a *WorkerAdapter) Language() string { return a.language }

// Execute implements Adapter.
func (a *WorkerAdapter) Execute(ctx context.Context, req domain.ExecutionRequest, policy *domain.ExecutionPolicy) (domain.ExecutionResult, error) {
	envelope := BuildWorkerEnvelope(req, policy)
	workerType := domain.WorkerType{Language: req.RuntimeLanguage, Capability: req.ExecutionCapability}

	orch, err := a.orchestrator.Prepare(ctx, envelope, workerType)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.ExecutionResult{}, ctxErr
		}
		result := domain.NewExecutionResult(req, false, "", err.Error())
		a.stamp(&result, workerType, orch)
		result.Incidents = append(result.Incidents, err.Error())
		return result, nil
	}

	if orch.Preparation.Prepared {
		result := domain.NewExecutionResult(req, true, orch.Preparation.Payload["output"], "")
		a.stamp(&result, workerType, orch)
		return result, nil
	}

	message := orch.Preparation.Message
	if message == "" {
		message = "Out-of-process runtime execution is not enabled in this deployment."
	}
	result := domain.NewExecutionResult(req, false, notEnabledPayload(req, orch, message), message)
	result.Metrics[domain.MetricFailureCode] = domain.CodeRuntimeNotEnabled
	a.stamp(&result, workerType, orch)
	return result, nil
}

func (a *WorkerAdapter) stamp(result *domain.ExecutionResult, workerType domain.WorkerType, orch Orchestration) {
	result.Metrics[MetricAdapter] = a.Name()
	result.Metrics[MetricWorkerType] = workerType.String()
	result.Metrics[MetricWorkerLeaseID] = orch.Lease.LeaseID
	result.Metrics[MetricWorkerPrepared] = strconv.FormatBool(orch.Preparation.Prepared)
	if orch.Preparation.Status != "" {
		result.Metrics[MetricWorkerStatus] = orch.Preparation.Status
	}
}

// BuildWorkerEnvelope assembles the job description for a worker.
func BuildWorkerEnvelope(req domain.ExecutionRequest, policy *domain.ExecutionPolicy) domain.WorkerEnvelope {
	limits := map[string]string{
		"timeoutBudgetMs": strconv.Itoa(req.TimeoutBudgetMS),
		"capability":      req.ExecutionCapability,
	}
	if policy != nil {
		limits["maxInputSize"] = strconv.Itoa(policy.MaxInputSize)
		limits["maxConcurrency"] = strconv.Itoa(policy.MaxConcurrency)
		limits["maxRequestsPerMinute"] = strconv.Itoa(policy.MaxRequestsPerMinute)
	}
	return domain.WorkerEnvelope{
		CapabilityID:    req.CapabilityID,
		Version:         req.CapabilityVersion,
		Action:          req.Action,
		Input:           req.Input,
		RuntimeLanguage: req.RuntimeLanguage,
		PolicySnapshot:  PolicyValues(policy),
		ResourceLimits:  limits,
		CorrelationID:   req.CorrelationID,
		TenantID:        req.TenantID,
	}
}

type notEnabledPreview struct {
	Message                 string `json:"message"`
	WorkerPreparationStatus string `json:"workerPreparationStatus"`
	Operation               string `json:"operation"`
}

func notEnabledPayload(req domain.ExecutionRequest, orch Orchestration, message string) string {
	payload, err := json.Marshal(struct {
		Status          string            `json:"status"`
		AnalysisPreview notEnabledPreview `json:"analysisPreview"`
	}{
		Status: PreparationStatusNotEnabled,
		AnalysisPreview: notEnabledPreview{
			Message:                 message,
			WorkerPreparationStatus: orch.Preparation.Status,
			Operation:               req.Action,
		},
	})
	if err != nil {
		return ""
	}
	return string(payload)
}
