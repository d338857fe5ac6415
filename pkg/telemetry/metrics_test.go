package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	metrics := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			metrics[m.Name] = m
		}
	}
	return metrics
}

func installReader(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
		ResetMetricsForTest()
	})
	ResetMetricsForTest()
	return reader
}

func TestRecordExecutionMetrics(t *testing.T) {
	reader := installReader(t)
	ctx := context.Background()

	RecordExecutionMetrics(ctx, ExecutionMetrics{
		CapabilityID: "json-format",
		Action:       "format",
		Success:      true,
		CacheHit:     true,
		Duration:     150 * time.Millisecond,
	})

	metrics := collectMetrics(t, reader)

	exec, ok := metrics["toolnexus.executions_total"]
	if !ok {
		t.Fatalf("missing toolnexus.executions_total metric")
	}
	execData, ok := exec.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type for executions metric")
	}
	if len(execData.DataPoints) != 1 || execData.DataPoints[0].Value != 1 {
		t.Fatalf("expected one execution, got %+v", execData.DataPoints)
	}
	if value, ok := execData.DataPoints[0].Attributes.Value(attribute.Key("execution.outcome")); !ok || value.AsString() != "success" {
		t.Fatalf("expected execution.outcome success, got %v", value)
	}

	hits, ok := metrics["toolnexus.cache_hits_total"]
	if !ok {
		t.Fatalf("missing cache hit metric")
	}
	if hits.Data.(metricdata.Sum[int64]).DataPoints[0].Value != 1 {
		t.Fatalf("expected one cache hit")
	}

	hist, ok := metrics["toolnexus.execution.duration_ms"]
	if !ok {
		t.Fatalf("missing duration histogram")
	}
	histData := hist.Data.(metricdata.Histogram[float64])
	if histData.DataPoints[0].Count != 1 {
		t.Fatalf("expected histogram count 1, got %d", histData.DataPoints[0].Count)
	}
	if histData.DataPoints[0].Sum != 150 {
		t.Fatalf("expected histogram sum 150, got %v", histData.DataPoints[0].Sum)
	}

	if _, ok := metrics["toolnexus.errors_total"]; ok {
		t.Fatalf("did not expect an error series for a successful call")
	}
}

func TestRecordExecutionMetricsDenial(t *testing.T) {
	reader := installReader(t)

	RecordExecutionMetrics(context.Background(), ExecutionMetrics{
		CapabilityID: "json-format",
		Action:       "format",
		Code:         domain.CodeExecutionDisabled,
		Denied:       true,
	})

	metrics := collectMetrics(t, reader)

	denials, ok := metrics["toolnexus.denials_total"]
	if !ok {
		t.Fatalf("missing denial metric")
	}
	point := denials.Data.(metricdata.Sum[int64]).DataPoints[0]
	if value, ok := point.Attributes.Value(attribute.Key("denial.reason")); !ok || value.AsString() != domain.CodeExecutionDisabled {
		t.Fatalf("expected denial.reason %q, got %v", domain.CodeExecutionDisabled, value)
	}

	errs, ok := metrics["toolnexus.errors_total"]
	if !ok {
		t.Fatalf("missing error metric")
	}
	if errs.Data.(metricdata.Sum[int64]).DataPoints[0].Value != 1 {
		t.Fatalf("expected one error")
	}
}

func TestRecordDenialEvent(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider()
	tp.RegisterSpanProcessor(recorder)

	_, span := tp.Tracer("test").Start(context.Background(), "pipeline")
	RecordDenialEvent(span, domain.ConformancePolicyDenied, domain.CodeRateLimited)
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	events := spans[0].Events()
	if len(events) != 1 || events[0].Name != "toolnexus.denied" {
		t.Fatalf("expected one toolnexus.denied event, got %+v", events)
	}
	attrs := attribute.NewSet(events[0].Attributes...)
	if value, ok := attrs.Value(attribute.Key("denial.marker")); !ok || value.AsString() != domain.ConformancePolicyDenied {
		t.Fatalf("expected denial.marker, got %v", value)
	}
	if value, ok := attrs.Value(attribute.Key("denial.reason")); !ok || value.AsString() != domain.CodeRateLimited {
		t.Fatalf("expected denial.reason, got %v", value)
	}

	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown tracer provider: %v", err)
	}
}

func TestRecordFactsAndAdmission(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider()
	tp.RegisterSpanProcessor(recorder)

	_, span := tp.Tracer("test").Start(context.Background(), "pipeline")
	RecordFacts(span, domain.Facts{
		RuntimeLanguage:   "go",
		AdapterName:       "InProcessAdapter",
		AdapterResolution: domain.AdapterResolved,
		Authority:         domain.AuthorityUnifiedAuthoritative,
		ConformanceIssues: []string{"missing_status"},
	})
	RecordAdmissionDecision(span, domain.AdmissionDecision{
		Allowed:  false,
		Reason:   domain.AdmissionCapabilityBlocked,
		Source:   "test",
		Metadata: map[string]string{"authority": "UnifiedAuthoritative"},
	})
	span.End()

	ended := recorder.Ended()[0]
	attrs := attribute.NewSet(ended.Attributes()...)
	if value, ok := attrs.Value("runtime.adapter_name"); !ok || value.AsString() != "InProcessAdapter" {
		t.Fatalf("expected runtime.adapter_name, got %v", value)
	}
	if value, ok := attrs.Value("runtime.execution_authority"); !ok || value.AsString() != "UnifiedAuthoritative" {
		t.Fatalf("expected authority attribute, got %v", value)
	}
	if _, ok := attrs.Value("execution.snapshot_id"); ok {
		t.Fatalf("empty facts must not be recorded")
	}
	if value, ok := attrs.Value("admission.allowed"); !ok || value.AsBool() {
		t.Fatalf("expected admission.allowed false")
	}
	if value, ok := attrs.Value("admission.authority"); !ok || value.AsString() != "UnifiedAuthoritative" {
		t.Fatalf("expected admission metadata, got %v", value)
	}
	if len(ended.Events()) != 1 || ended.Events()[0].Name != "admission.denied" {
		t.Fatalf("expected admission.denied event")
	}
}
