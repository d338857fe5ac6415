package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/telemetry"
)

// Stage orders, lowest first.
const (
	OrderValidation  = 100
	OrderPolicy      = 200
	OrderConcurrency = 300
	OrderCache       = 400
	OrderExecution   = 500
	OrderTelemetry   = 600
	OrderMetrics     = 700
)

// Next invokes the remainder of the chain.
type Next func(ctx context.Context, ec *domain.ExecutionContext) (domain.Response, error)

// Stage is one step of the execution pipeline. A stage that rejects a request
// records the failure on the context and still calls next so telemetry and
// metrics observe it.
type Stage interface {
	Name() string
	Order() int
	Invoke(ctx context.Context, ec *domain.ExecutionContext, next Next) (domain.Response, error)
}

// Chain runs a fixed, ordered list of stages.
type Chain struct {
	stages []Stage
	logger *slog.Logger
	tracer trace.Tracer
}

// NewChain sorts stages by Order once. Stages with equal order keep their
// registration order.
func NewChain(logger *slog.Logger, stages ...Stage) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	sorted := make([]Stage, 0, len(stages))
	for _, s := range stages {
		if s != nil {
			sorted = append(sorted, s)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order() < sorted[j].Order()
	})
	return &Chain{
		stages: sorted,
		logger: logger,
		tracer: otel.Tracer(telemetry.TracerName),
	}
}

// Stages returns the stage names in execution order.
func (c *Chain) Stages() []string {
	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		names[i] = s.Name()
	}
	return names
}

// Execute runs capabilityID/action over input. The returned error is non-nil
// only for cancellation or a stage panic; every other failure is a response
// with Success false and a stable Code.
func (c *Chain) Execute(ctx context.Context, capabilityID, action, input string, options map[string]string) (resp domain.Response, err error) {
	ec := domain.NewExecutionContext(capabilityID, action, input, options)

	ctx, span := c.tracer.Start(ctx, "toolnexus.pipeline",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(telemetry.RedactAttributes(nil, []attribute.KeyValue{
			attribute.String("capability.id", capabilityID),
			attribute.String("capability.action", action),
			attribute.Int("toolnexus.payload_size", len(input)),
		})...),
	)
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", domain.ErrStagePanic, p)
			resp = domain.Failure(domain.CodeExecutionFailed, "Tool execution failed unexpectedly.")
			c.logger.Error("pipeline stage panicked", "capability", ec.CapabilityID, "action", ec.Action, "panic", fmt.Sprint(p))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		span.SetAttributes(
			attribute.Bool("execution.success", resp.Success),
			attribute.Bool("execution.cache_hit", ec.CacheHit),
		)
		if !resp.Success {
			span.SetAttributes(attribute.String("failure.code", resp.Code))
			span.SetStatus(codes.Error, resp.Code)
		}
	}()

	return c.invoke(ctx, ec, 0)
}

func (c *Chain) invoke(ctx context.Context, ec *domain.ExecutionContext, i int) (domain.Response, error) {
	if i >= len(c.stages) {
		return terminal(ec), nil
	}
	return c.stages[i].Invoke(ctx, ec, func(ctx context.Context, ec *domain.ExecutionContext) (domain.Response, error) {
		return c.invoke(ctx, ec, i+1)
	})
}

// terminal ends the chain with whatever response the stages produced.
func terminal(ec *domain.ExecutionContext) domain.Response {
	if ec.Response != nil {
		return *ec.Response
	}
	return domain.Failure(domain.CodeNoHandler, "No pipeline stage produced a response.")
}
