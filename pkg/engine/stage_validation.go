package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

// ValidationStage normalizes the request and resolves its manifest and policy.
type ValidationStage struct {
	catalog  domain.CapabilityCatalog
	policies domain.PolicyRegistry
	logger   *slog.Logger
}

// NewValidationStage creates the validation stage.
func NewValidationStage(catalog domain.CapabilityCatalog, policies domain.PolicyRegistry, logger *slog.Logger) *ValidationStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ValidationStage{catalog: catalog, policies: policies, logger: logger}
}

func (s *ValidationStage) Name() string { return "validation" }
func (s *ValidationStage) Order() int   { return OrderValidation }

func (s *ValidationStage) Invoke(ctx context.Context, ec *domain.ExecutionContext, next Next) (domain.Response, error) {
	if ec.Response != nil {
		return next(ctx, ec)
	}

	ec.CapabilityID = normalizeToken(ec.CapabilityID)
	ec.Action = normalizeToken(ec.Action)
	ec.Input = strings.ReplaceAll(ec.Input, "\x00", "")

	switch {
	case ec.CapabilityID == "":
		ec.Deny(domain.ConformanceValidationDenied, domain.CodeInvalidCapability, "Capability id is required.")
		return next(ctx, ec)
	case ec.Action == "":
		ec.Deny(domain.ConformanceValidationDenied, domain.CodeInvalidAction, "Action is required.")
		return next(ctx, ec)
	}

	manifest, ok := s.catalog.FindCapability(ec.CapabilityID)
	if !ok || manifest == nil {
		ec.Deny(domain.ConformanceValidationDenied, domain.CodeCapabilityNotFound,
			fmt.Sprintf("Tool '%s' not found.", ec.CapabilityID))
		return next(ctx, ec)
	}
	ec.Manifest = manifest

	if !manifest.SupportsAction(ec.Action) {
		ec.Deny(domain.ConformanceValidationDenied, domain.CodeActionNotSupported,
			fmt.Sprintf("Action '%s' is not supported by tool '%s'.", ec.Action, ec.CapabilityID))
		return next(ctx, ec)
	}

	policy, err := s.resolvePolicy(ctx, ec.CapabilityID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Response{}, ctxErr
		}
		s.logger.Error("execution policy lookup failed", "capability", ec.CapabilityID, "error", err)
		ec.Deny(domain.ConformanceValidationDenied, domain.CodePolicyUnavailable,
			"Execution policy is unavailable for this tool.")
		return next(ctx, ec)
	}
	ec.Policy = policy

	return next(ctx, ec)
}

func (s *ValidationStage) resolvePolicy(ctx context.Context, capabilityID string) (*domain.ExecutionPolicy, error) {
	if s.policies == nil {
		p := domain.DefaultExecutionPolicy(capabilityID)
		return &p, nil
	}
	policy, err := s.policies.GetPolicy(ctx, capabilityID)
	if err != nil {
		return nil, fmt.Errorf("get policy %q: %w", capabilityID, err)
	}
	if policy == nil {
		p := domain.DefaultExecutionPolicy(capabilityID)
		return &p, nil
	}
	return policy, nil
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
