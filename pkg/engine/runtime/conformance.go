package runtime

import (
	"log/slog"
	"strings"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

// Conformance issue messages.
const (
	IssueMissingStatus    = "Missing status normalized to Failed."
	IssueUnknownStatus    = "Unknown status normalized to Failed."
	IssueStatusCase       = "Status normalized to canonical case."
	IssueMissingMetrics   = "Missing metrics object created."
	IssueMissingIncidents = "Missing incidents list initialized."
)

// ConformanceResult is the outcome of validating an adapter result.
type ConformanceResult struct {
	IsValid          bool
	NormalizedStatus domain.ExecutionStatus
	Issues           []string
	WasNormalized    bool
	NormalizedResult domain.ExecutionResult
}

// ConformanceValidator normalizes adapter output before it reaches callers.
type ConformanceValidator struct {
	logger *slog.Logger
}

// NewConformanceValidator creates a validator that reports repairs to logger.
func NewConformanceValidator(logger *slog.Logger) *ConformanceValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConformanceValidator{logger: logger}
}

// Validate checks result against the universal contract. The input is never
// modified; repairs are applied to a copy returned in NormalizedResult.
func (v *ConformanceValidator) Validate(result domain.ExecutionResult, req domain.ExecutionRequest) ConformanceResult {
	out := ValidateConformance(result)
	if out.WasNormalized {
		v.logger.Warn("execution result normalized",
			"capability", req.CapabilityID,
			"correlation_id", req.CorrelationID,
			"issues", strings.Join(out.Issues, " "),
		)
	}
	return out
}

// ValidateConformance applies the conformance rules independently: an empty or
// unknown status becomes Failed, and nil metrics or incidents are replaced
// with empty collections. Known statuses are matched case-insensitively; a
// status that needed recasing is reported as an issue.
func ValidateConformance(result domain.ExecutionResult) ConformanceResult {
	normalized := result.Clone()
	issues := []string{}

	status := canonicalStatus(normalized.Status)
	switch {
	case strings.TrimSpace(string(normalized.Status)) == "":
		status = domain.StatusFailed
		issues = append(issues, IssueMissingStatus)
	case status == "":
		status = domain.StatusFailed
		issues = append(issues, IssueUnknownStatus)
	case status != normalized.Status:
		issues = append(issues, IssueStatusCase)
	}
	normalized.Status = status

	if normalized.Metrics == nil {
		normalized.Metrics = map[string]string{}
		issues = append(issues, IssueMissingMetrics)
	}
	if normalized.Incidents == nil {
		normalized.Incidents = []string{}
		issues = append(issues, IssueMissingIncidents)
	}

	return ConformanceResult{
		IsValid:          len(issues) == 0,
		NormalizedStatus: status,
		Issues:           issues,
		WasNormalized:    len(issues) > 0,
		NormalizedResult: normalized,
	}
}

func canonicalStatus(status domain.ExecutionStatus) domain.ExecutionStatus {
	for _, known := range []domain.ExecutionStatus{
		domain.StatusSucceeded,
		domain.StatusFailed,
		domain.StatusCanceled,
		domain.StatusTimedOut,
	} {
		if strings.EqualFold(strings.TrimSpace(string(status)), string(known)) {
			return known
		}
	}
	return ""
}
