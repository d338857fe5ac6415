package domain

import "time"

// ExecutionAuthority names the dispatch path that owns a request's outcome.
type ExecutionAuthority string

const (
	AuthorityShadowOnly           ExecutionAuthority = "ShadowOnly"
	AuthorityUnifiedAuthoritative ExecutionAuthority = "UnifiedAuthoritative"
	AuthorityLegacyAuthoritative  ExecutionAuthority = "LegacyAuthoritative"
)

// GovernanceStatus is the outcome recorded by an external governance decision.
type GovernanceStatus string

const (
	GovernanceApproved GovernanceStatus = "Approved"
	GovernanceDenied   GovernanceStatus = "Denied"
)

// GovernanceDecision is populated by an external governance collaborator.
type GovernanceDecision struct {
	DecisionID    string           `json:"decisionId"`
	PolicyVersion string           `json:"policyVersion"`
	Status        GovernanceStatus `json:"status"`
	Reason        string           `json:"reason"`
	ApprovedBy    string           `json:"approvedBy"`
}

// ExecutionSnapshot is an audit record of one execution decision. Values are
// never edited after construction; use Supersede to record a newer decision.
type ExecutionSnapshot struct {
	SnapshotID          string             `json:"snapshotId"`
	SupersedesID        string             `json:"supersedesId,omitempty"`
	Authority           ExecutionAuthority `json:"authority"`
	RuntimeLanguage     string             `json:"runtimeLanguage"`
	ExecutionCapability string             `json:"executionCapability"`
	CapabilityID        string             `json:"capabilityId"`
	CorrelationID       string             `json:"correlationId,omitempty"`
	TenantID            string             `json:"tenantId,omitempty"`
	Timestamp           time.Time          `json:"timestamp"`
	ConformanceVersion  string             `json:"conformanceVersion"`
	PolicySnapshot      map[string]string  `json:"policySnapshot"`
	Governance          GovernanceDecision `json:"governance"`
}

// PolicyValue returns a captured policy value.
func (s ExecutionSnapshot) PolicyValue(key string) string {
	return s.PolicySnapshot[key]
}

// Admission decision reasons.
const (
	AdmissionAllowed            = "Allowed"
	AdmissionShadowOnly         = "ShadowOnly"
	AdmissionRuntimeUnavailable = "RuntimeUnavailable"
	AdmissionCapabilityBlocked  = "CapabilityBlocked"
	AdmissionPolicyDenied       = "PolicyDenied"
)

// AdmissionDecision is the second-stage gate result evaluated after authority resolution.
type AdmissionDecision struct {
	Allowed  bool
	Reason   string
	Source   string
	Metadata map[string]string
}
