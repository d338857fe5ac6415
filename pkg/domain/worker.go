package domain

import "time"

// WorkerLeaseState tracks a worker slot through acquire, busy and release.
type WorkerLeaseState string

const (
	LeaseAcquired WorkerLeaseState = "Acquired"
	LeaseBusy     WorkerLeaseState = "Busy"
	LeaseReleased WorkerLeaseState = "Released"
)

// WorkerType identifies a pool of out-of-process workers.
type WorkerType struct {
	Language   string `json:"language"`
	Capability string `json:"capability"`
}

func (t WorkerType) String() string {
	return t.Language + ":" + t.Capability
}

// WorkerLease is a reserved execution slot on an out-of-process runtime.
type WorkerLease struct {
	LeaseID    string
	WorkerID   string
	WorkerType WorkerType
	State      WorkerLeaseState
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// WorkerEnvelope is the job description sent to an out-of-process worker.
type WorkerEnvelope struct {
	CapabilityID    string            `json:"capabilityId"`
	Version         string            `json:"version"`
	Action          string            `json:"action"`
	Input           string            `json:"input"`
	RuntimeLanguage string            `json:"runtimeLanguage"`
	PolicySnapshot  map[string]string `json:"policySnapshot"`
	ResourceLimits  map[string]string `json:"resourceLimits"`
	CorrelationID   string            `json:"correlationId,omitempty"`
	TenantID        string            `json:"tenantId,omitempty"`
}

// WorkerPreparationResult reports the outcome of preparing a runtime for a job.
type WorkerPreparationResult struct {
	Prepared bool
	Status   string
	Message  string
	WorkerID string
	Payload  map[string]string
}
