package domain

import (
	"strings"
	"time"
)

// Well-known option keys read by the pipeline.
const (
	OptionHTTPMethod        = "httpMethod"
	OptionAPIKey            = "apiKey"
	OptionTenantID          = "tenantId"
	OptionCorrelationID     = "correlationId"
	OptionToolVersion       = "toolVersion"
	OptionExecutionPolicyID = "executionPolicyId"
	OptionResourceClass     = "resourceClass"
	OptionRiskTier          = "riskTier"
)

// Failure codes carried by Response.Code.
const (
	CodeInvalidCapability   = "invalid_capability"
	CodeInvalidAction       = "invalid_action"
	CodeCapabilityNotFound  = "capability_not_found"
	CodeActionNotSupported  = "action_not_supported"
	CodeExecutionDisabled   = "execution_disabled"
	CodeInvalidTimeout      = "invalid_timeout"
	CodePayloadTooLarge     = "payload_too_large"
	CodeRateLimited         = "rate_limited"
	CodeHTTPMethodDenied    = "http_method_denied"
	CodeAPIKeyRequired      = "api_key_required"
	CodeAdmissionDenied     = "admission_denied"
	CodeAdapterNotFound     = "adapter_not_found"
	CodeExecutorNotFound    = "executor_not_found"
	CodeExecutionFailed     = "execution_failed"
	CodeTimeout             = "timeout"
	CodeCircuitOpen         = "circuit_open"
	CodeRuntimeNotEnabled   = "runtime_not_enabled"
	CodeNoHandler           = "no_handler"
	CodePolicyUnavailable   = "policy_unavailable"
	CodeConformanceRepaired = "conformance_repaired"
)

// Conformance markers recorded on the execution context.
const (
	ConformanceValidationDenied = "validation_denied"
	ConformancePolicyDenied     = "policy_denied"
	ConformanceAdmissionDenied  = "admission_denied"
	ConformanceValid            = "conformant"
	ConformanceNormalized       = "normalized"
)

// AdapterResolution reports how the execution stage found its runtime adapter.
type AdapterResolution string

const (
	AdapterResolved AdapterResolution = "resolved"
	AdapterMissing  AdapterResolution = "missing"
	AdapterLegacy   AdapterResolution = "legacy"
)

// Response is the pipeline's public result.
type Response struct {
	Success    bool   `json:"success"`
	Output     string `json:"output"`
	Error      string `json:"error,omitempty"`
	Code       string `json:"code,omitempty"`
	FromCache  bool   `json:"fromCache,omitempty"`
	DurationMS int64  `json:"durationMs"`
}

// Failure builds an unsuccessful response with a stable code.
func Failure(code, message string) Response {
	return Response{Success: false, Error: message, Code: code}
}

// Facts are the well-known values stages hand to later stages and telemetry.
type Facts struct {
	RuntimeLanguage   string
	AdapterName       string
	AdapterResolution AdapterResolution
	Authority         ExecutionAuthority
	ShadowExecution   bool
	ConformanceStatus string
	ConformanceIssues []string
	ResultStatus      ExecutionStatus
	DenialReason      string
	SnapshotID        string
	Admission         *AdmissionDecision
	WorkerType        string
	WorkerLeaseID     string
	WorkerPrepared    bool
}

// ExecutionContext carries one request through the pipeline. It is owned by a
// single Execute call and is not safe for concurrent use.
type ExecutionContext struct {
	CapabilityID string
	Action       string
	Input        string
	Options      map[string]string

	Policy   *ExecutionPolicy
	Manifest *Manifest

	Response *Response
	CacheHit bool
	CacheKey string

	StartedAt time.Time
	Facts     Facts
	// Err is an error raised by an earlier stage that later stages must still
	// observe, such as a cancelled or panicking execution.
	Err error
	// Tags holds dynamic telemetry attributes that have no typed slot.
	Tags map[string]string
}

// NewExecutionContext copies options so stages never mutate caller state.
func NewExecutionContext(capabilityID, action, input string, options map[string]string) *ExecutionContext {
	opts := make(map[string]string, len(options))
	for k, v := range options {
		opts[k] = v
	}
	return &ExecutionContext{
		CapabilityID: capabilityID,
		Action:       action,
		Input:        input,
		Options:      opts,
		StartedAt:    time.Now(),
		Tags:         map[string]string{},
	}
}

// Option looks up an option, falling back to a case-insensitive match.
func (ec *ExecutionContext) Option(key string) (string, bool) {
	if v, ok := ec.Options[key]; ok {
		return v, true
	}
	for k, v := range ec.Options {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// Deny records a failure response together with its conformance marker.
func (ec *ExecutionContext) Deny(marker, code, message string) {
	resp := Failure(code, message)
	ec.Response = &resp
	ec.Facts.ConformanceStatus = marker
	ec.Facts.DenialReason = code
}

// Denied reports whether an earlier stage rejected the request.
func (ec *ExecutionContext) Denied() bool {
	return ec.Facts.DenialReason != ""
}

// SetTag records a dynamic telemetry attribute.
func (ec *ExecutionContext) SetTag(key, value string) {
	if ec.Tags == nil {
		ec.Tags = map[string]string{}
	}
	ec.Tags[key] = value
}
