package domain

import "errors"

// Common domain errors
var (
	ErrCapabilityNotFound   = errors.New("capability not found")
	ErrActionNotSupported   = errors.New("action not supported")
	ErrExecutorNotFound     = errors.New("capability executor not found")
	ErrPolicyNotFound       = errors.New("policy not found")
	ErrAdapterNotFound      = errors.New("adapter not found")
	ErrRuntimeNotEnabled    = errors.New("runtime not enabled")
	ErrStagePanic           = errors.New("pipeline stage panicked")
	ErrConfigInvalid        = errors.New("invalid configuration")
	ErrCacheUnavailable     = errors.New("result cache unavailable")
	ErrEventSinkUnavailable = errors.New("event sink unavailable")
)

// ExecutionError wraps errors with a stable machine-readable code.
type ExecutionError struct {
	Err     error
	Code    string
	Message string
	Details map[string]any
}

func (e *ExecutionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err == nil {
		return e.Code
	}
	return e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// CodeOf extracts the code of the first ExecutionError in err's chain.
func CodeOf(err error) string {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Code
	}
	return ""
}
