package engine

import (
	"context"
	"strings"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

// PolicyStage enforces the resolved execution policy. The rate budget is
// checked last so rejected requests never consume it.
type PolicyStage struct {
	rateGuard domain.RateGuard
	apiKeys   domain.APIKeyValidator
}

// NewPolicyStage creates the policy stage. A nil apiKeys accepts any
// non-empty key; a nil rateGuard disables rate limiting.
func NewPolicyStage(rateGuard domain.RateGuard, apiKeys domain.APIKeyValidator) *PolicyStage {
	return &PolicyStage{rateGuard: rateGuard, apiKeys: apiKeys}
}

func (s *PolicyStage) Name() string { return "policy" }
func (s *PolicyStage) Order() int   { return OrderPolicy }

func (s *PolicyStage) Invoke(ctx context.Context, ec *domain.ExecutionContext, next Next) (domain.Response, error) {
	if ec.Response != nil || ec.Policy == nil {
		return next(ctx, ec)
	}
	if code, message := s.check(ec); code != "" {
		ec.Deny(domain.ConformancePolicyDenied, code, message)
	}
	return next(ctx, ec)
}

func (s *PolicyStage) check(ec *domain.ExecutionContext) (code, message string) {
	policy := ec.Policy

	if policy.Disabled() {
		return domain.CodeExecutionDisabled, "Tool execution is disabled by policy."
	}
	if policy.TimeoutSeconds <= 0 {
		return domain.CodeInvalidTimeout, "Tool execution policy has an invalid timeout."
	}
	if policy.MaxInputSize > 0 && len(ec.Input) > policy.MaxInputSize {
		return domain.CodePayloadTooLarge, "Input exceeds the maximum size allowed for this tool."
	}
	if method, ok := ec.Option(domain.OptionHTTPMethod); ok && !policy.AllowsMethod(strings.TrimSpace(method)) {
		return domain.CodeHTTPMethodDenied, "HTTP method is not allowed for this tool."
	}
	if !policy.AllowAnonymous {
		key, _ := ec.Option(domain.OptionAPIKey)
		if !s.validKey(strings.TrimSpace(key)) {
			return domain.CodeAPIKeyRequired, "A valid API key is required for this tool."
		}
	}
	if s.rateGuard != nil && !s.rateGuard.TryAcquire(ec.CapabilityID, policy.MaxRequestsPerMinute) {
		return domain.CodeRateLimited, "Rate limit exceeded for this tool."
	}
	return "", ""
}

func (s *PolicyStage) validKey(key string) bool {
	if key == "" {
		return false
	}
	if s.apiKeys == nil {
		return true
	}
	return s.apiKeys.Valid(key)
}
