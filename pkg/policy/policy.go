package policy

import "context"

// Action defines the outcome of a rule evaluation.
type Action string

const (
	// ActionAllow lets the request proceed to execution.
	ActionAllow Action = "allow"
	// ActionDeny blocks the request at admission.
	ActionDeny Action = "deny"
)

// Decision captures the result from a rule evaluation.
type Decision struct {
	Action   Action
	Reason   string
	Metadata map[string]string
}

// Allowed reports whether the decision lets the request proceed.
func (d Decision) Allowed() bool {
	return d.Action != ActionDeny
}

// Input is the admission context handed to Rego rules.
type Input struct {
	CapabilityID        string
	Action              string
	Authority           string
	RuntimeLanguage     string
	ExecutionCapability string
	TenantID            string
	RiskTier            string
	// Policy holds the flattened execution policy captured by the snapshot.
	Policy       map[string]string
	Entrypoint   string
	DisableCache bool
}

// Filter evaluates an admission decision for a given input.
type Filter interface {
	Evaluate(ctx context.Context, input Input) (Decision, error)
}
