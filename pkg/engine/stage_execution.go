package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ankitdsmb/ToolNexus-sub004/internal/governance"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/engine/runtime"
)

// ExecutionStage maps the request to the universal envelope, resolves
// authority and admission, and dispatches through the resilience wrapper.
type ExecutionStage struct {
	mapper     *runtime.RequestMapper
	authority  *runtime.AuthorityResolver
	snapshots  *runtime.SnapshotBuilder
	admission  *runtime.AdmissionController
	engine     *runtime.UniversalEngine
	resilience *governance.ResilienceProvider
	validator  *runtime.ConformanceValidator
	logger     *slog.Logger
}

// ExecutionStageConfig holds the collaborators of the execution stage.
type ExecutionStageConfig struct {
	Mapper     *runtime.RequestMapper
	Authority  *runtime.AuthorityResolver
	Snapshots  *runtime.SnapshotBuilder
	Admission  *runtime.AdmissionController
	Engine     *runtime.UniversalEngine
	Resilience *governance.ResilienceProvider
	Validator  *runtime.ConformanceValidator
	Logger     *slog.Logger
}

// NewExecutionStage creates the execution stage, filling unset collaborators
// with permissive defaults. Engine is required.
func NewExecutionStage(cfg ExecutionStageConfig) *ExecutionStage {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &ExecutionStage{
		mapper:     cfg.Mapper,
		authority:  cfg.Authority,
		snapshots:  cfg.Snapshots,
		admission:  cfg.Admission,
		engine:     cfg.Engine,
		resilience: cfg.Resilience,
		validator:  cfg.Validator,
		logger:     logger,
	}
	if s.mapper == nil {
		s.mapper = runtime.NewRequestMapper(logger)
	}
	if s.authority == nil {
		s.authority = runtime.NewAuthorityResolver(runtime.AuthorityConfig{})
	}
	if s.snapshots == nil {
		s.snapshots = runtime.NewSnapshotBuilder()
	}
	if s.admission == nil {
		s.admission = runtime.NewAdmissionController(runtime.AdmissionConfig{Logger: logger})
	}
	if s.resilience == nil {
		s.resilience = governance.NewResilienceProvider(governance.ResilienceConfig{Logger: logger})
	}
	if s.validator == nil {
		s.validator = runtime.NewConformanceValidator(logger)
	}
	return s
}

func (s *ExecutionStage) Name() string { return "execution" }
func (s *ExecutionStage) Order() int   { return OrderExecution }

// Invoke runs the capability. Execution errors are stored on the context and
// the chain continues, so telemetry records them before they are returned.
func (s *ExecutionStage) Invoke(ctx context.Context, ec *domain.ExecutionContext, next Next) (domain.Response, error) {
	if ec.Response != nil || ec.Policy == nil {
		return next(ctx, ec)
	}

	err := s.run(ctx, ec)
	if err != nil {
		ec.Err = err
		if ec.Response == nil {
			failure := domain.Failure(domain.CodeExecutionFailed, "Tool execution failed.")
			ec.Response = &failure
		}
	}

	resp, nextErr := next(ctx, ec)
	if err != nil {
		return resp, err
	}
	return resp, nextErr
}

func (s *ExecutionStage) run(ctx context.Context, ec *domain.ExecutionContext) (err error) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("execution stage panicked", "capability", ec.CapabilityID, "panic", fmt.Sprint(p))
			err = fmt.Errorf("%w: %v", domain.ErrStagePanic, p)
		}
	}()

	req := s.mapper.Map(ec)
	authority := s.authority.Resolve(ec, req)
	snap := s.snapshots.Build(req, ec.Policy, authority)

	ec.Facts.Authority = authority
	ec.Facts.ShadowExecution = authority == domain.AuthorityShadowOnly
	ec.Facts.RuntimeLanguage = req.RuntimeLanguage
	ec.Facts.SnapshotID = snap.SnapshotID

	decision := s.admission.Evaluate(ctx, snap, ec)
	ec.Facts.Admission = &decision
	if !decision.Allowed {
		ec.Deny(domain.ConformanceAdmissionDenied, domain.CodeAdmissionDenied,
			fmt.Sprintf("Execution was not admitted: %s.", decision.Reason))
		return nil
	}

	// Facts are settled before dispatch; the wrapped call may outlive this
	// goroutine on timeout and must not touch the context.
	route := s.engine.Resolve(req, authority)
	ec.Facts.AdapterName = route.Name
	ec.Facts.AdapterResolution = route.Resolution
	ec.Facts.RuntimeLanguage = route.Language

	policy := *ec.Policy
	result, err := s.resilience.Wrap(ec.CapabilityID, policy).Execute(ctx, req, func(ctx context.Context) (domain.ExecutionResult, error) {
		return s.engine.Execute(ctx, route, req, &policy)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return ctxErr
		}
		if errors.Is(err, domain.ErrStagePanic) {
			return err
		}
		s.logger.Error("tool execution failed", "capability", ec.CapabilityID, "action", ec.Action, "error", err)
		result = domain.NewExecutionResult(req, false, "", "Tool execution failed.")
		result.Incidents = append(result.Incidents, err.Error())
	}

	checked := s.validator.Validate(result, req)
	result = checked.NormalizedResult
	ec.Facts.ResultStatus = checked.NormalizedStatus
	ec.Facts.ConformanceIssues = checked.Issues
	if checked.WasNormalized {
		ec.Facts.ConformanceStatus = domain.ConformanceNormalized
	} else {
		ec.Facts.ConformanceStatus = domain.ConformanceValid
	}

	ec.Facts.WorkerType = result.Metrics[runtime.MetricWorkerType]
	ec.Facts.WorkerLeaseID = result.Metrics[runtime.MetricWorkerLeaseID]
	ec.Facts.WorkerPrepared, _ = strconv.ParseBool(result.Metrics[runtime.MetricWorkerPrepared])

	resp := result.Response()
	ec.Response = &resp
	return nil
}
