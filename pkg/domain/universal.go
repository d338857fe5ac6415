package domain

import "strings"

// ExecutionStatus is the terminal state of a universal execution.
type ExecutionStatus string

const (
	StatusSucceeded ExecutionStatus = "Succeeded"
	StatusFailed    ExecutionStatus = "Failed"
	StatusCanceled  ExecutionStatus = "Canceled"
	StatusTimedOut  ExecutionStatus = "TimedOut"
)

// MetricFailureCode is the result metric that carries a stable failure code.
const MetricFailureCode = "failureCode"

var knownStatuses = []ExecutionStatus{StatusSucceeded, StatusFailed, StatusCanceled, StatusTimedOut}

// Known reports whether s is one of the fixed statuses, ignoring case.
func (s ExecutionStatus) Known() bool {
	for _, known := range knownStatuses {
		if strings.EqualFold(string(s), string(known)) {
			return true
		}
	}
	return false
}

// StatusFor maps a success flag to Succeeded or Failed.
func StatusFor(success bool) ExecutionStatus {
	if success {
		return StatusSucceeded
	}
	return StatusFailed
}

// ExecutionRequest is the runtime-independent request handed to adapters.
type ExecutionRequest struct {
	CapabilityID        string
	CapabilityVersion   string
	RuntimeLanguage     string
	ExecutionCapability string
	Action              string
	Input               string
	ExecutionPolicyID   string
	ResourceClass       string
	TimeoutBudgetMS     int
	TenantID            string
	CorrelationID       string
	Options             map[string]string
}

// ExecutionResult is the runtime-independent result returned by adapters.
//
// Metrics and Incidents may be nil when an adapter misbehaves; results leaving
// the execution stage always pass through conformance validation first.
type ExecutionResult struct {
	Success           bool
	Output            string
	Error             string
	Status            ExecutionStatus
	CapabilityID      string
	CapabilityVersion string
	RuntimeLanguage   string
	Action            string
	ExecutionPolicyID string
	ResourceClass     string
	DurationMS        int64
	TenantID          string
	CorrelationID     string
	Metrics           map[string]string
	Incidents         []string
}

// NewExecutionResult seeds a result with the request's identity fields.
func NewExecutionResult(req ExecutionRequest, success bool, output, errMsg string) ExecutionResult {
	return ExecutionResult{
		Success:           success,
		Output:            output,
		Error:             errMsg,
		Status:            StatusFor(success),
		CapabilityID:      req.CapabilityID,
		CapabilityVersion: req.CapabilityVersion,
		RuntimeLanguage:   req.RuntimeLanguage,
		Action:            req.Action,
		ExecutionPolicyID: req.ExecutionPolicyID,
		ResourceClass:     req.ResourceClass,
		TenantID:          req.TenantID,
		CorrelationID:     req.CorrelationID,
		Metrics:           map[string]string{},
		Incidents:         []string{},
	}
}

// Clone returns a deep copy so callers can modify the result safely.
func (r ExecutionResult) Clone() ExecutionResult {
	out := r
	if r.Metrics != nil {
		out.Metrics = make(map[string]string, len(r.Metrics))
		for k, v := range r.Metrics {
			out.Metrics[k] = v
		}
	}
	if r.Incidents != nil {
		out.Incidents = append([]string{}, r.Incidents...)
	}
	return out
}

// Response converts the result into the pipeline's public response.
func (r ExecutionResult) Response() Response {
	resp := Response{
		Success:    r.Success,
		Output:     r.Output,
		Error:      r.Error,
		DurationMS: r.DurationMS,
	}
	if !r.Success {
		resp.Code = CodeExecutionFailed
		if strings.EqualFold(string(r.Status), string(StatusTimedOut)) {
			resp.Code = CodeTimeout
		}
		if code := r.Metrics[MetricFailureCode]; code != "" {
			resp.Code = code
		}
	}
	return resp
}
