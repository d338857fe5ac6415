package runtime

import (
	"context"
	"log/slog"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/policy"
)

// Decision sources reported on admission decisions.
const (
	AdmissionSource     = "DefaultExecutionAdmissionController"
	RegoAdmissionSource = "RegoAdmissionRule"
)

// AdmissionConfig lists the static admission gates.
type AdmissionConfig struct {
	// SupportedLanguages restricts runtimes; empty admits every language.
	SupportedLanguages []string
	// BlockedCapabilities is matched against the capability class and the
	// capability id.
	BlockedCapabilities []string
	// Rule is an optional Rego filter evaluated after the static gates.
	Rule   policy.Filter
	Logger *slog.Logger
}

// AdmissionController is the gate evaluated after authority resolution.
type AdmissionController struct {
	supported matcher
	blocked   matcher
	rule      policy.Filter
	logger    *slog.Logger
}

// NewAdmissionController compiles cfg.
func NewAdmissionController(cfg AdmissionConfig) *AdmissionController {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AdmissionController{
		supported: newMatcher(cfg.SupportedLanguages),
		blocked:   newMatcher(cfg.BlockedCapabilities),
		rule:      cfg.Rule,
		logger:    logger,
	}
}

// Evaluate decides whether snap may execute. It has no side effects beyond
// logging a failed rule evaluation, which denies the request.
func (c *AdmissionController) Evaluate(ctx context.Context, snap domain.ExecutionSnapshot, ec *domain.ExecutionContext) domain.AdmissionDecision {
	metadata := map[string]string{
		"authority":           string(snap.Authority),
		"runtimeLanguage":     snap.RuntimeLanguage,
		"executionCapability": snap.ExecutionCapability,
		"snapshotId":          snap.SnapshotID,
	}
	deny := func(reason, source string) domain.AdmissionDecision {
		return domain.AdmissionDecision{Allowed: false, Reason: reason, Source: source, Metadata: metadata}
	}

	if snap.Authority == domain.AuthorityShadowOnly {
		return deny(domain.AdmissionShadowOnly, AdmissionSource)
	}
	if !c.supported.match(snap.RuntimeLanguage) {
		return deny(domain.AdmissionRuntimeUnavailable, AdmissionSource)
	}
	if len(c.blocked) > 0 && (c.blocked.match(snap.ExecutionCapability) || c.blocked.match(snap.CapabilityID)) {
		return deny(domain.AdmissionCapabilityBlocked, AdmissionSource)
	}

	if c.rule != nil {
		decision, err := c.rule.Evaluate(ctx, c.ruleInput(snap, ec))
		if err != nil {
			c.logger.Error("admission rule evaluation failed",
				"capability", snap.CapabilityID,
				"snapshot_id", snap.SnapshotID,
				"error", err,
			)
			metadata["ruleError"] = err.Error()
			return deny(domain.AdmissionPolicyDenied, RegoAdmissionSource)
		}
		if !decision.Allowed() {
			if decision.Reason != "" {
				metadata["ruleReason"] = decision.Reason
			}
			for k, v := range decision.Metadata {
				if _, exists := metadata[k]; !exists {
					metadata[k] = v
				}
			}
			return deny(domain.AdmissionPolicyDenied, RegoAdmissionSource)
		}
	}

	return domain.AdmissionDecision{Allowed: true, Reason: domain.AdmissionAllowed, Source: AdmissionSource, Metadata: metadata}
}

func (c *AdmissionController) ruleInput(snap domain.ExecutionSnapshot, ec *domain.ExecutionContext) policy.Input {
	in := policy.Input{
		CapabilityID:        snap.CapabilityID,
		Authority:           string(snap.Authority),
		RuntimeLanguage:     snap.RuntimeLanguage,
		ExecutionCapability: snap.ExecutionCapability,
		TenantID:            snap.TenantID,
		Policy:              snap.PolicySnapshot,
	}
	if ec != nil {
		in.Action = ec.Action
		if tier, ok := ec.Option(domain.OptionRiskTier); ok {
			in.RiskTier = tier
		}
	}
	return in
}
