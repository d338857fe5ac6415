package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

type funcStage struct {
	name  string
	order int
	fn    func(ctx context.Context, ec *domain.ExecutionContext, next Next) (domain.Response, error)
}

func (s funcStage) Name() string { return s.name }
func (s funcStage) Order() int   { return s.order }
func (s funcStage) Invoke(ctx context.Context, ec *domain.ExecutionContext, next Next) (domain.Response, error) {
	return s.fn(ctx, ec, next)
}

func tracing(trail *[]string, name string, order int) funcStage {
	return funcStage{name: name, order: order, fn: func(ctx context.Context, ec *domain.ExecutionContext, next Next) (domain.Response, error) {
		*trail = append(*trail, name)
		return next(ctx, ec)
	}}
}

func TestChainSortsStagesStably(t *testing.T) {
	var trail []string
	chain := NewChain(discardLogger(),
		tracing(&trail, "c", 300),
		tracing(&trail, "a1", 100),
		nil,
		tracing(&trail, "b", 200),
		tracing(&trail, "a2", 100),
	)

	assert.Equal(t, []string{"a1", "a2", "b", "c"}, chain.Stages())

	resp, err := chain.Execute(context.Background(), "cap", "act", "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2", "b", "c"}, trail)
	assert.Equal(t, domain.CodeNoHandler, resp.Code)
}

func TestChainTerminalReturnsContextResponse(t *testing.T) {
	chain := NewChain(discardLogger(), funcStage{name: "set", order: 1, fn: func(ctx context.Context, ec *domain.ExecutionContext, next Next) (domain.Response, error) {
		ec.Response = &domain.Response{Success: true, Output: "ok"}
		return next(ctx, ec)
	}})

	resp, err := chain.Execute(context.Background(), "cap", "act", "", nil)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "ok", resp.Output)
}

func TestChainDoesNotMutateCallerOptions(t *testing.T) {
	options := map[string]string{"k": "v"}
	chain := NewChain(discardLogger(), funcStage{name: "mutate", order: 1, fn: func(ctx context.Context, ec *domain.ExecutionContext, next Next) (domain.Response, error) {
		ec.Options["k"] = "changed"
		return next(ctx, ec)
	}})

	_, err := chain.Execute(context.Background(), "cap", "act", "", options)
	require.NoError(t, err)
	assert.Equal(t, "v", options["k"])
}

func TestChainRecoversPanicAfterTelemetryRecords(t *testing.T) {
	sink := &recordingSink{}
	chain := NewChain(discardLogger(),
		NewTelemetryStage(sink, discardLogger()),
		funcStage{name: "explode", order: OrderTelemetry + 1, fn: func(context.Context, *domain.ExecutionContext, Next) (domain.Response, error) {
			panic("kaboom")
		}},
	)

	resp, err := chain.Execute(context.Background(), "cap", "act", "", nil)
	require.ErrorIs(t, err, domain.ErrStagePanic)
	assert.False(t, resp.Success)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "panic", events[0].ErrorType)
	assert.False(t, events[0].Success)
}

func TestChainSpanRecordsFailureCode(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider()
	tp.RegisterSpanProcessor(recorder)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	chain := NewChain(discardLogger(), funcStage{name: "deny", order: 1, fn: func(ctx context.Context, ec *domain.ExecutionContext, next Next) (domain.Response, error) {
		ec.Deny(domain.ConformancePolicyDenied, domain.CodeRateLimited, "slow down")
		return next(ctx, ec)
	}})

	_, err := chain.Execute(context.Background(), "cap", "act", "secret input", nil)
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "toolnexus.pipeline", spans[0].Name())
	found := false
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "failure.code" {
			found = true
			assert.Equal(t, domain.CodeRateLimited, kv.Value.AsString())
		}
		assert.NotEqual(t, "secret input", kv.Value.Emit())
	}
	assert.True(t, found, "failure.code attribute missing")
}

type staticKeys map[string]bool

func (k staticKeys) Valid(key string) bool { return k[key] }

type denyAll struct{}

func (denyAll) TryAcquire(string, int) bool { return false }

func TestPolicyStageReasons(t *testing.T) {
	base := domain.DefaultExecutionPolicy("cap")

	cases := []struct {
		name    string
		mutate  func(*domain.ExecutionPolicy)
		input   string
		options map[string]string
		rate    domain.RateGuard
		code    string
	}{
		{name: "allowed"},
		{name: "disabled flag", mutate: func(p *domain.ExecutionPolicy) { p.ExecutionEnabled = false }, code: domain.CodeExecutionDisabled},
		{name: "disabled mode", mutate: func(p *domain.ExecutionPolicy) { p.ExecutionMode = "Disabled" }, code: domain.CodeExecutionDisabled},
		{name: "timeout", mutate: func(p *domain.ExecutionPolicy) { p.TimeoutSeconds = 0 }, code: domain.CodeInvalidTimeout},
		{name: "payload", mutate: func(p *domain.ExecutionPolicy) { p.MaxInputSize = 3 }, input: "four", code: domain.CodePayloadTooLarge},
		{
			name:    "method",
			mutate:  func(p *domain.ExecutionPolicy) { p.AllowedMethods = []string{"POST"} },
			options: map[string]string{"httpMethod": "GET"},
			code:    domain.CodeHTTPMethodDenied,
		},
		{
			name:   "method absent",
			mutate: func(p *domain.ExecutionPolicy) { p.AllowedMethods = []string{"POST"} },
		},
		{name: "api key missing", mutate: func(p *domain.ExecutionPolicy) { p.AllowAnonymous = false }, code: domain.CodeAPIKeyRequired},
		{
			name:    "api key invalid",
			mutate:  func(p *domain.ExecutionPolicy) { p.AllowAnonymous = false },
			options: map[string]string{"apiKey": "wrong"},
			code:    domain.CodeAPIKeyRequired,
		},
		{
			name:    "api key valid",
			mutate:  func(p *domain.ExecutionPolicy) { p.AllowAnonymous = false },
			options: map[string]string{"ApiKey": "good"},
		},
		{name: "rate", rate: denyAll{}, code: domain.CodeRateLimited},
		{name: "disabled wins over rate", mutate: func(p *domain.ExecutionPolicy) { p.ExecutionEnabled = false }, rate: denyAll{}, code: domain.CodeExecutionDisabled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			policy := base
			if tc.mutate != nil {
				tc.mutate(&policy)
			}
			ec := domain.NewExecutionContext("cap", "act", tc.input, tc.options)
			ec.Policy = &policy

			stage := NewPolicyStage(tc.rate, staticKeys{"good": true})
			called := false
			_, err := stage.Invoke(context.Background(), ec, func(ctx context.Context, ec *domain.ExecutionContext) (domain.Response, error) {
				called = true
				return terminal(ec), nil
			})
			require.NoError(t, err)
			assert.True(t, called, "policy stage must always continue the chain")

			if tc.code == "" {
				assert.Nil(t, ec.Response)
				return
			}
			require.NotNil(t, ec.Response)
			assert.Equal(t, tc.code, ec.Response.Code)
			assert.Equal(t, domain.ConformancePolicyDenied, ec.Facts.ConformanceStatus)
			assert.Equal(t, tc.code, ec.Facts.DenialReason)
		})
	}
}
