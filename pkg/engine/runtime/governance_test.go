package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/policy"
)

func TestAuthorityResolverPrecedence(t *testing.T) {
	tests := []struct {
		name string
		cfg  AuthorityConfig
		req  domain.ExecutionRequest
		opts map[string]string
		want domain.ExecutionAuthority
	}{
		{
			name: "disabled modes fall back to legacy",
			cfg:  AuthorityConfig{},
			req:  domain.ExecutionRequest{RuntimeLanguage: "go", ExecutionCapability: "standard"},
			want: domain.AuthorityLegacyAuthoritative,
		},
		{
			name: "empty matchers match everything",
			cfg:  AuthorityConfig{UnifiedEnabled: true},
			req:  domain.ExecutionRequest{RuntimeLanguage: "go", ExecutionCapability: "standard"},
			want: domain.AuthorityUnifiedAuthoritative,
		},
		{
			name: "unified membership is case-insensitive",
			cfg:  AuthorityConfig{UnifiedEnabled: true, UnifiedLanguages: []string{"GO"}, UnifiedCapabilities: []string{"Standard"}},
			req:  domain.ExecutionRequest{RuntimeLanguage: "go", ExecutionCapability: "standard"},
			want: domain.AuthorityUnifiedAuthoritative,
		},
		{
			name: "unified language mismatch",
			cfg:  AuthorityConfig{UnifiedEnabled: true, UnifiedLanguages: []string{"python"}},
			req:  domain.ExecutionRequest{RuntimeLanguage: "go", ExecutionCapability: "standard"},
			want: domain.AuthorityLegacyAuthoritative,
		},
		{
			name: "shadow wins over unified",
			cfg: AuthorityConfig{
				ShadowEnabled: true, ShadowRiskTiers: []string{"high"},
				UnifiedEnabled: true,
			},
			req:  domain.ExecutionRequest{RuntimeLanguage: "go", Options: map[string]string{"riskTier": "HIGH"}},
			want: domain.AuthorityShadowOnly,
		},
		{
			name: "shadow risk tier falls back to context options",
			cfg:  AuthorityConfig{ShadowEnabled: true, ShadowRiskTiers: []string{"high"}},
			req:  domain.ExecutionRequest{RuntimeLanguage: "go"},
			opts: map[string]string{"riskTier": "high"},
			want: domain.AuthorityShadowOnly,
		},
		{
			name: "shadow risk tier mismatch",
			cfg:  AuthorityConfig{ShadowEnabled: true, ShadowRiskTiers: []string{"high"}, UnifiedEnabled: true},
			req:  domain.ExecutionRequest{RuntimeLanguage: "go", Options: map[string]string{"riskTier": "low"}},
			opts: map[string]string{"riskTier": "high"},
			want: domain.AuthorityUnifiedAuthoritative,
		},
		{
			name: "custom risk tier key",
			cfg:  AuthorityConfig{ShadowEnabled: true, ShadowRiskTiers: []string{"red"}, RiskTierOptionKey: "tier"},
			req:  domain.ExecutionRequest{Options: map[string]string{"tier": "red"}},
			want: domain.AuthorityShadowOnly,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := domain.NewExecutionContext("json-format", "format", "{}", tt.opts)
			got := NewAuthorityResolver(tt.cfg).Resolve(ec, tt.req)
			assert.Equal(t, tt.want, got)
		})
	}
}

func snapshotFor(authority domain.ExecutionAuthority, language, class string) domain.ExecutionSnapshot {
	return domain.ExecutionSnapshot{
		SnapshotID:          "snap-1",
		Authority:           authority,
		RuntimeLanguage:     language,
		ExecutionCapability: class,
		CapabilityID:        "json-format",
	}
}

func TestAdmissionControllerGates(t *testing.T) {
	ctrl := NewAdmissionController(AdmissionConfig{
		SupportedLanguages:  []string{"go"},
		BlockedCapabilities: []string{"privileged", "base64"},
		Logger:              discardLogger(),
	})
	ec := domain.NewExecutionContext("json-format", "format", "{}", nil)

	d := ctrl.Evaluate(context.Background(), snapshotFor(domain.AuthorityShadowOnly, "go", "standard"), ec)
	assert.False(t, d.Allowed)
	assert.Equal(t, domain.AdmissionShadowOnly, d.Reason)
	assert.Equal(t, AdmissionSource, d.Source)

	d = ctrl.Evaluate(context.Background(), snapshotFor(domain.AuthorityUnifiedAuthoritative, "python", "standard"), ec)
	assert.Equal(t, domain.AdmissionRuntimeUnavailable, d.Reason)

	d = ctrl.Evaluate(context.Background(), snapshotFor(domain.AuthorityUnifiedAuthoritative, "GO", "Privileged"), ec)
	assert.Equal(t, domain.AdmissionCapabilityBlocked, d.Reason)

	snap := snapshotFor(domain.AuthorityUnifiedAuthoritative, "go", "standard")
	snap.CapabilityID = "base64"
	d = ctrl.Evaluate(context.Background(), snap, ec)
	assert.Equal(t, domain.AdmissionCapabilityBlocked, d.Reason)

	d = ctrl.Evaluate(context.Background(), snapshotFor(domain.AuthorityLegacyAuthoritative, "go", "standard"), ec)
	assert.True(t, d.Allowed)
	assert.Equal(t, domain.AdmissionAllowed, d.Reason)
	assert.Equal(t, map[string]string{
		"authority":           "LegacyAuthoritative",
		"runtimeLanguage":     "go",
		"executionCapability": "standard",
		"snapshotId":          "snap-1",
	}, d.Metadata)
}

func TestAdmissionControllerEmptySupportedSetAllowsAll(t *testing.T) {
	ctrl := NewAdmissionController(AdmissionConfig{})
	d := ctrl.Evaluate(context.Background(), snapshotFor(domain.AuthorityUnifiedAuthoritative, "cobol", "standard"), nil)
	assert.True(t, d.Allowed)
}

type ruleFunc func(policy.Input) (policy.Decision, error)

func (f ruleFunc) Evaluate(_ context.Context, in policy.Input) (policy.Decision, error) {
	return f(in)
}

func TestAdmissionControllerRegoRule(t *testing.T) {
	var seen policy.Input
	ctrl := NewAdmissionController(AdmissionConfig{
		Logger: discardLogger(),
		Rule: ruleFunc(func(in policy.Input) (policy.Decision, error) {
			seen = in
			if in.RiskTier == "high" {
				return policy.Decision{Action: policy.ActionDeny, Reason: "too risky"}, nil
			}
			return policy.Decision{Action: policy.ActionAllow}, nil
		}),
	})

	ec := domain.NewExecutionContext("json-format", "format", "{}", map[string]string{"riskTier": "high"})
	d := ctrl.Evaluate(context.Background(), snapshotFor(domain.AuthorityUnifiedAuthoritative, "go", "standard"), ec)
	assert.False(t, d.Allowed)
	assert.Equal(t, domain.AdmissionPolicyDenied, d.Reason)
	assert.Equal(t, RegoAdmissionSource, d.Source)
	assert.Equal(t, "too risky", d.Metadata["ruleReason"])
	assert.Equal(t, "format", seen.Action)

	ec = domain.NewExecutionContext("json-format", "format", "{}", nil)
	d = ctrl.Evaluate(context.Background(), snapshotFor(domain.AuthorityUnifiedAuthoritative, "go", "standard"), ec)
	assert.True(t, d.Allowed)
}

func TestAdmissionControllerRuleErrorDenies(t *testing.T) {
	ctrl := NewAdmissionController(AdmissionConfig{
		Logger: discardLogger(),
		Rule: ruleFunc(func(policy.Input) (policy.Decision, error) {
			return policy.Decision{}, errors.New("opa down")
		}),
	})
	d := ctrl.Evaluate(context.Background(), snapshotFor(domain.AuthorityUnifiedAuthoritative, "go", "standard"), nil)
	assert.False(t, d.Allowed)
	assert.Equal(t, "opa down", d.Metadata["ruleError"])
}

func TestSnapshotBuilderCapturesPolicy(t *testing.T) {
	p := domain.DefaultExecutionPolicy("json-format")
	p.TimeoutSeconds = 7
	builder := NewSnapshotBuilder()
	req := domain.ExecutionRequest{CapabilityID: "json-format", RuntimeLanguage: "go", ExecutionCapability: "standard", CorrelationID: "c", TenantID: "t"}

	snap := builder.Build(req, &p, domain.AuthorityUnifiedAuthoritative)
	assert.Len(t, snap.SnapshotID, 32)
	assert.NotContains(t, snap.SnapshotID, "-")
	assert.Equal(t, ConformanceVersion, snap.ConformanceVersion)
	assert.Equal(t, "7", snap.PolicyValue("timeoutSeconds"))
	assert.Equal(t, "json-format", snap.PolicyValue("slug"))
	assert.Equal(t, domain.GovernanceDenied, snap.Governance.Status)
	assert.Equal(t, GovernanceReasonUninitialized, snap.Governance.Reason)
	assert.Equal(t, "json-format", snap.Governance.PolicyVersion)
	assert.Equal(t, "c", snap.CorrelationID)

	p.TimeoutSeconds = 99
	assert.Equal(t, "7", snap.PolicyValue("timeoutSeconds"))

	other := builder.Build(req, &p, domain.AuthorityUnifiedAuthoritative)
	assert.NotEqual(t, snap.SnapshotID, other.SnapshotID)
}

func TestSnapshotBuilderNilPolicy(t *testing.T) {
	snap := NewSnapshotBuilder().Build(domain.ExecutionRequest{}, nil, domain.AuthorityLegacyAuthoritative)
	assert.Equal(t, "unknown", snap.PolicyValue("executionMode"))
	assert.Equal(t, "false", snap.PolicyValue("isExecutionEnabled"))
	assert.Equal(t, "unknown", snap.Governance.PolicyVersion)
}

func TestSnapshotSupersede(t *testing.T) {
	builder := NewSnapshotBuilder()
	clock := time.Unix(1_700_000_000, 0)
	builder.now = func() time.Time { return clock }

	p := domain.DefaultExecutionPolicy("json-format")
	prev := builder.Build(domain.ExecutionRequest{CapabilityID: "json-format"}, &p, domain.AuthorityUnifiedAuthoritative)

	clock = clock.Add(time.Minute)
	next := builder.Supersede(prev, domain.GovernanceDecision{DecisionID: "d1", Status: domain.GovernanceApproved, ApprovedBy: "ops"})
	next.PolicySnapshot["slug"] = "edited"

	assert.Equal(t, prev.SnapshotID, next.SupersedesID)
	assert.NotEqual(t, prev.SnapshotID, next.SnapshotID)
	assert.Equal(t, domain.GovernanceApproved, next.Governance.Status)
	assert.Equal(t, domain.GovernanceDenied, prev.Governance.Status)
	assert.Equal(t, "json-format", prev.PolicyValue("slug"))
	assert.True(t, next.Timestamp.After(prev.Timestamp))
}

func TestRequestMapperStripsAuthorityOverrides(t *testing.T) {
	p := domain.DefaultExecutionPolicy("json-format")
	p.TimeoutSeconds = 4
	ec := domain.NewExecutionContext("json-format", "format", "{}", map[string]string{
		"executionAuthority":  "ShadowOnly",
		"Language":            "python",
		"executionCapability": "privileged",
		"apiKey":              "secret",
		"tenantId":            " acme ",
		"correlationId":       "corr-1",
		"resourceClass":       "small",
		"mode":                "pretty",
	})
	ec.Policy = &p
	ec.Manifest = &domain.Manifest{ID: "json-format", Version: "2.1.0", RuntimeLanguage: "Go", CapabilityClass: "Standard"}

	req := NewRequestMapper(discardLogger()).Map(ec)
	assert.Equal(t, "go", req.RuntimeLanguage)
	assert.Equal(t, "standard", req.ExecutionCapability)
	assert.Equal(t, "2.1.0", req.CapabilityVersion)
	assert.Equal(t, 4000, req.TimeoutBudgetMS)
	assert.Equal(t, "acme", req.TenantID)
	assert.Equal(t, "corr-1", req.CorrelationID)
	assert.Equal(t, "small", req.ResourceClass)
	assert.Equal(t, map[string]string{
		"tenantId":      " acme ",
		"correlationId": "corr-1",
		"resourceClass": "small",
		"mode":          "pretty",
	}, req.Options)
}

func TestRequestMapperDefaults(t *testing.T) {
	mapper := NewRequestMapper(discardLogger())
	mapper.newID = func() string { return "generated" }
	ec := domain.NewExecutionContext("json-format", "format", "{}", map[string]string{"toolVersion": "3.0.0"})

	req := mapper.Map(ec)
	assert.Equal(t, DefaultLanguage, req.RuntimeLanguage)
	assert.Equal(t, "standard", req.ExecutionCapability)
	assert.Equal(t, "3.0.0", req.CapabilityVersion)
	assert.Equal(t, "generated", req.CorrelationID)
	assert.Equal(t, 0, req.TimeoutBudgetMS)

	req = mapper.Map(domain.NewExecutionContext("x", "y", "", nil))
	assert.Equal(t, "1.0.0", req.CapabilityVersion)
}

type countingPool struct {
	*MemoryPoolCoordinator
	acquired, released int
	lastReleased       domain.WorkerLease
}

func (p *countingPool) Acquire(ctx context.Context, wt domain.WorkerType) (domain.WorkerLease, error) {
	p.acquired++
	return p.MemoryPoolCoordinator.Acquire(ctx, wt)
}

func (p *countingPool) Release(ctx context.Context, lease domain.WorkerLease) error {
	p.released++
	p.lastReleased = lease
	return p.MemoryPoolCoordinator.Release(ctx, lease)
}

type failingManager struct{}

func (failingManager) Prepare(context.Context, domain.WorkerLease, domain.WorkerEnvelope) (domain.WorkerPreparationResult, error) {
	return domain.WorkerPreparationResult{}, errors.New("runtime unavailable")
}

func TestWorkerOrchestratorReleasesLease(t *testing.T) {
	pool := &countingPool{MemoryPoolCoordinator: NewMemoryPoolCoordinator(time.Minute)}
	orch := NewWorkerOrchestrator(pool, nil, discardLogger())
	wt := domain.WorkerType{Language: "python", Capability: "sandboxed"}

	result, err := orch.Prepare(context.Background(), domain.WorkerEnvelope{CapabilityID: "py-tool"}, wt)
	require.NoError(t, err)
	assert.True(t, result.LeaseAcquired)
	assert.Equal(t, domain.LeaseBusy, result.LeaseState)
	assert.Equal(t, PreparationStatusNotEnabled, result.Preparation.Status)
	assert.Equal(t, 1, pool.acquired)
	assert.Equal(t, 1, pool.released)
	assert.Equal(t, 0, pool.Active())
	assert.Equal(t, "python-sandboxed-1", result.Lease.WorkerID)
}

func TestWorkerOrchestratorReleasesLeaseOnFailure(t *testing.T) {
	pool := &countingPool{MemoryPoolCoordinator: NewMemoryPoolCoordinator(time.Minute)}
	orch := NewWorkerOrchestrator(pool, failingManager{}, discardLogger())

	_, err := orch.Prepare(context.Background(), domain.WorkerEnvelope{}, domain.WorkerType{Language: "python", Capability: "standard"})
	require.Error(t, err)
	assert.Equal(t, 1, pool.acquired)
	assert.Equal(t, 1, pool.released)
	assert.Equal(t, domain.LeaseReleased, pool.lastReleased.State)
	assert.Equal(t, 0, pool.Active())
}

func TestWorkerAdapterReportsRuntimeNotEnabled(t *testing.T) {
	pool := NewMemoryPoolCoordinator(time.Minute)
	adapter := NewWorkerAdapter("Python", NewWorkerOrchestrator(pool, nil, discardLogger()))
	p := domain.DefaultExecutionPolicy("py-tool")
	req := domain.ExecutionRequest{CapabilityID: "py-tool", Action: "analyze", RuntimeLanguage: "python", ExecutionCapability: "standard", TimeoutBudgetMS: 30000}

	result, err := adapter.Execute(context.Background(), req, &p)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, domain.CodeRuntimeNotEnabled, result.Response().Code)
	assert.Equal(t, "python:standard", result.Metrics[MetricWorkerType])
	assert.Equal(t, "false", result.Metrics[MetricWorkerPrepared])
	assert.NotEmpty(t, result.Metrics[MetricWorkerLeaseID])
	assert.Contains(t, result.Output, `"status":"runtime-not-enabled"`)
	assert.Equal(t, 0, pool.Active())
}

func TestBuildWorkerEnvelope(t *testing.T) {
	p := domain.DefaultExecutionPolicy("py-tool")
	env := BuildWorkerEnvelope(domain.ExecutionRequest{
		CapabilityID: "py-tool", CapabilityVersion: "1.2.0", TimeoutBudgetMS: 1500,
		ExecutionCapability: "sandboxed", CorrelationID: "corr", TenantID: "tenant",
	}, &p)

	assert.Equal(t, "1500", env.ResourceLimits["timeoutBudgetMs"])
	assert.Equal(t, "sandboxed", env.ResourceLimits["capability"])
	assert.Equal(t, "8", env.ResourceLimits["maxConcurrency"])
	assert.Equal(t, "py-tool", env.PolicySnapshot["slug"])
	assert.Equal(t, "corr", env.CorrelationID)
	assert.Equal(t, "tenant", env.TenantID)

	env = BuildWorkerEnvelope(domain.ExecutionRequest{}, nil)
	assert.NotContains(t, env.ResourceLimits, "maxInputSize")
}
