package runtime

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

// ConformanceVersion is stamped into every snapshot.
const ConformanceVersion = "v1"

// Governance defaults recorded until an external decision is attached.
const (
	GovernanceReasonUninitialized = "Uninitialized"
	GovernanceApprover            = "server"
)

// SnapshotBuilder creates execution snapshots.
type SnapshotBuilder struct {
	now   func() time.Time
	newID func() string
}

// NewSnapshotBuilder returns a builder using the wall clock and random ids.
func NewSnapshotBuilder() *SnapshotBuilder {
	return &SnapshotBuilder{now: time.Now, newID: newSnapshotID}
}

// Build captures the decision context of one request. Policy values are copied
// so later policy edits cannot change a recorded snapshot.
func (b *SnapshotBuilder) Build(req domain.ExecutionRequest, policy *domain.ExecutionPolicy, authority domain.ExecutionAuthority) domain.ExecutionSnapshot {
	policyVersion := "unknown"
	if policy != nil && strings.TrimSpace(policy.CapabilityID) != "" {
		policyVersion = policy.CapabilityID
	}
	return domain.ExecutionSnapshot{
		SnapshotID:          b.newID(),
		Authority:           authority,
		RuntimeLanguage:     req.RuntimeLanguage,
		ExecutionCapability: req.ExecutionCapability,
		CapabilityID:        req.CapabilityID,
		CorrelationID:       req.CorrelationID,
		TenantID:            req.TenantID,
		Timestamp:           b.now().UTC(),
		ConformanceVersion:  ConformanceVersion,
		PolicySnapshot:      PolicyValues(policy),
		Governance: domain.GovernanceDecision{
			DecisionID:    "",
			PolicyVersion: policyVersion,
			Status:        domain.GovernanceDenied,
			Reason:        GovernanceReasonUninitialized,
			ApprovedBy:    GovernanceApprover,
		},
	}
}

// Supersede records a newer governance decision for prev. The previous
// snapshot is left untouched; the result has a fresh id pointing back to it.
func (b *SnapshotBuilder) Supersede(prev domain.ExecutionSnapshot, decision domain.GovernanceDecision) domain.ExecutionSnapshot {
	next := prev
	next.SnapshotID = b.newID()
	next.SupersedesID = prev.SnapshotID
	next.Timestamp = b.now().UTC()
	next.PolicySnapshot = make(map[string]string, len(prev.PolicySnapshot))
	for k, v := range prev.PolicySnapshot {
		next.PolicySnapshot[k] = v
	}
	next.Governance = decision
	return next
}

// PolicyValues flattens the policy scalars into a new map.
func PolicyValues(policy *domain.ExecutionPolicy) map[string]string {
	if policy == nil {
		return map[string]string{
			"executionMode":      "unknown",
			"isExecutionEnabled": "false",
		}
	}
	return map[string]string{
		"slug":                           policy.CapabilityID,
		"executionMode":                  string(policy.ExecutionMode),
		"isExecutionEnabled":             strconv.FormatBool(policy.ExecutionEnabled),
		"timeoutSeconds":                 strconv.Itoa(policy.TimeoutSeconds),
		"maxInputSize":                   strconv.Itoa(policy.MaxInputSize),
		"maxRequestsPerMinute":           strconv.Itoa(policy.MaxRequestsPerMinute),
		"cacheTtlSeconds":                strconv.Itoa(policy.CacheTTLSeconds),
		"maxConcurrency":                 strconv.Itoa(policy.MaxConcurrency),
		"retryCount":                     strconv.Itoa(policy.RetryCount),
		"circuitBreakerFailureThreshold": strconv.Itoa(policy.CircuitBreakerFailureThreshold),
	}
}

func newSnapshotID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
