package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// MeterName is the instrumentation scope of the pipeline instruments.
const MeterName = "toolnexus.pipeline"

var (
	metricsOnce       sync.Once
	metricsInitErr    error
	executionCounter  metric.Int64Counter
	errorCounter      metric.Int64Counter
	cacheHitCounter   metric.Int64Counter
	denialCounter     metric.Int64Counter
	durationHistogram metric.Float64Histogram
)

// ExecutionMetrics captures the fields needed to record pipeline metrics.
type ExecutionMetrics struct {
	CapabilityID string
	Action       string
	Success      bool
	Code         string
	CacheHit     bool
	Denied       bool
	Authority    string
	Duration     time.Duration
}

// RecordExecutionMetrics emits counters and the latency histogram for one call.
func RecordExecutionMetrics(ctx context.Context, m ExecutionMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	outcome := "success"
	if !m.Success {
		outcome = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("capability.id", m.CapabilityID),
		attribute.String("capability.action", m.Action),
		attribute.String("execution.outcome", outcome),
	)

	executionCounter.Add(ctx, 1, attrs)
	durationHistogram.Record(ctx, float64(m.Duration)/float64(time.Millisecond), attrs)

	if !m.Success {
		errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("capability.id", m.CapabilityID),
			attribute.String("failure.code", m.Code),
		))
	}
	if m.CacheHit {
		cacheHitCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("capability.id", m.CapabilityID)))
	}
	if m.Denied {
		denialCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("capability.id", m.CapabilityID),
			attribute.String("denial.reason", m.Code),
		))
	}
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(MeterName)

		executionCounter, metricsInitErr = meter.Int64Counter(
			"toolnexus.executions_total",
			metric.WithDescription("Pipeline executions partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		errorCounter, metricsInitErr = meter.Int64Counter(
			"toolnexus.errors_total",
			metric.WithDescription("Unsuccessful pipeline executions by failure code"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		cacheHitCounter, metricsInitErr = meter.Int64Counter(
			"toolnexus.cache_hits_total",
			metric.WithDescription("Executions served from the result cache"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		denialCounter, metricsInitErr = meter.Int64Counter(
			"toolnexus.denials_total",
			metric.WithDescription("Requests rejected by validation, policy or admission"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		durationHistogram, metricsInitErr = meter.Float64Histogram(
			"toolnexus.execution.duration_ms",
			metric.WithDescription("Observed end-to-end pipeline latency"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}

// RecordDenialEvent attaches a denial to the span without leaking the payload.
func RecordDenialEvent(span trace.Span, marker, code string) {
	if span == nil || !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("denial.marker", marker),
	}
	if code != "" {
		attrs = append(attrs, attribute.String("denial.reason", code))
	}

	span.AddEvent("toolnexus.denied", trace.WithAttributes(attrs...))
}
