package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

func TestValidateConformanceRepairsMissingFields(t *testing.T) {
	in := domain.ExecutionResult{Success: true, Output: "x"}

	out := ValidateConformance(in)
	assert.False(t, out.IsValid)
	assert.True(t, out.WasNormalized)
	assert.Equal(t, domain.StatusFailed, out.NormalizedStatus)
	assert.Equal(t, []string{IssueMissingStatus, IssueMissingMetrics, IssueMissingIncidents}, out.Issues)
	assert.NotNil(t, out.NormalizedResult.Metrics)
	assert.NotNil(t, out.NormalizedResult.Incidents)

	assert.Nil(t, in.Metrics)
	assert.Nil(t, in.Incidents)
	assert.Empty(t, in.Status)
}

func TestValidateConformanceUnknownStatus(t *testing.T) {
	in := domain.NewExecutionResult(domain.ExecutionRequest{}, true, "ok", "")
	in.Status = "Exploded"

	out := ValidateConformance(in)
	assert.False(t, out.IsValid)
	assert.Equal(t, []string{IssueUnknownStatus}, out.Issues)
	assert.Equal(t, domain.StatusFailed, out.NormalizedResult.Status)
	assert.Equal(t, domain.ExecutionStatus("Exploded"), in.Status)
}

func TestValidateConformanceAcceptsAnyCase(t *testing.T) {
	in := domain.NewExecutionResult(domain.ExecutionRequest{}, false, "", "late")
	in.Status = "timedout"

	out := ValidateConformance(in)
	assert.True(t, out.WasNormalized)
	assert.False(t, out.IsValid)
	assert.Equal(t, domain.StatusTimedOut, out.NormalizedStatus)
	assert.Equal(t, domain.StatusTimedOut, out.NormalizedResult.Status)
	assert.Equal(t, []string{IssueStatusCase}, out.Issues)
	assert.Equal(t, domain.ExecutionStatus("timedout"), in.Status)
}

func TestValidateConformanceCanonicalStatusIsValid(t *testing.T) {
	in := domain.NewExecutionResult(domain.ExecutionRequest{}, true, "ok", "")
	in.Status = domain.StatusSucceeded

	out := ValidateConformance(in)
	assert.True(t, out.IsValid)
	assert.False(t, out.WasNormalized)
	assert.Empty(t, out.Issues)
}

func TestValidatorLogsRepairs(t *testing.T) {
	v := NewConformanceValidator(discardLogger())
	out := v.Validate(domain.ExecutionResult{}, domain.ExecutionRequest{CapabilityID: "json-format"})
	assert.True(t, out.WasNormalized)
}

func TestValidateConformanceIsIdempotent(t *testing.T) {
	statuses := []domain.ExecutionStatus{
		domain.StatusSucceeded, domain.StatusFailed, domain.StatusCanceled, domain.StatusTimedOut,
		"", "weird", "SUCCEEDED",
	}

	rapid.Check(t, func(rt *rapid.T) {
		in := domain.ExecutionResult{
			Success: rapid.Bool().Draw(rt, "success"),
			Output:  rapid.String().Draw(rt, "output"),
			Status:  rapid.SampledFrom(statuses).Draw(rt, "status"),
		}
		if rapid.Bool().Draw(rt, "has_metrics") {
			in.Metrics = rapid.MapOf(rapid.StringMatching(`[a-z]{1,5}`), rapid.String()).Draw(rt, "metrics")
		}
		if rapid.Bool().Draw(rt, "has_incidents") {
			in.Incidents = rapid.SliceOf(rapid.String()).Draw(rt, "incidents")
		}

		first := ValidateConformance(in)
		second := ValidateConformance(first.NormalizedResult)

		if !second.IsValid || second.WasNormalized {
			rt.Fatalf("normalized result was not valid: %v", second.Issues)
		}
		if !assert.ObjectsAreEqual(first.NormalizedResult, second.NormalizedResult) {
			rt.Fatalf("second validation changed the result")
		}
		if first.IsValid != (len(first.Issues) == 0) {
			rt.Fatalf("IsValid disagrees with issues %v", first.Issues)
		}
	})
}
