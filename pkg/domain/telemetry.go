package domain

import (
	"context"
	"time"
)

// ExecutionEvent is the record emitted for every pipeline invocation,
// including denied ones.
type ExecutionEvent struct {
	RunID             string            `json:"runId"`
	CapabilityID      string            `json:"capabilityId"`
	Action            string            `json:"action"`
	Timestamp         time.Time         `json:"timestamp"`
	DurationMS        int64             `json:"durationMs"`
	Success           bool              `json:"success"`
	ErrorType         string            `json:"errorType,omitempty"`
	FailureCode       string            `json:"failureCode,omitempty"`
	PayloadSize       int               `json:"payloadSize"`
	ExecutionMode     string            `json:"executionMode"`
	CacheHit          bool              `json:"cacheHit"`
	RuntimeLanguage   string            `json:"runtimeLanguage"`
	AdapterName       string            `json:"adapterName"`
	AdapterResolution string            `json:"adapterResolution"`
	Authority         string            `json:"authority"`
	ShadowExecution   bool              `json:"shadowExecution"`
	ConformanceStatus string            `json:"conformanceStatus"`
	ConformanceIssues []string          `json:"conformanceIssues,omitempty"`
	SnapshotID        string            `json:"snapshotId,omitempty"`
	AdmissionAllowed  bool              `json:"admissionAllowed"`
	AdmissionReason   string            `json:"admissionReason,omitempty"`
	AdmissionSource   string            `json:"admissionSource,omitempty"`
	WorkerType        string            `json:"workerType,omitempty"`
	WorkerLeaseID     string            `json:"workerLeaseId,omitempty"`
	Tags              map[string]string `json:"tags,omitempty"`
}

// EventSink persists or forwards execution events.
type EventSink interface {
	Record(ctx context.Context, event ExecutionEvent) error
}
