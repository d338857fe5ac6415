package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

// RecordAdmissionDecision annotates the span with the admission outcome.
func RecordAdmissionDecision(span trace.Span, decision domain.AdmissionDecision) {
	if span == nil || !span.IsRecording() {
		return
	}

	span.SetAttributes(
		attribute.Bool("admission.allowed", decision.Allowed),
		attribute.String("admission.reason", decision.Reason),
		attribute.String("admission.source", decision.Source),
	)

	for key, value := range decision.Metadata {
		if value == "" {
			continue
		}
		span.SetAttributes(attribute.String("admission."+key, value))
	}

	if !decision.Allowed {
		span.AddEvent("admission.denied")
	}
}

// RecordFacts copies the well-known execution facts onto the span.
func RecordFacts(span trace.Span, facts domain.Facts) {
	if span == nil || !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Bool("runtime.shadow_execution", facts.ShadowExecution),
	}
	for key, value := range map[string]string{
		"runtime.language":                  facts.RuntimeLanguage,
		"runtime.adapter_name":              facts.AdapterName,
		"runtime.adapter_resolution_status": string(facts.AdapterResolution),
		"runtime.execution_authority":       string(facts.Authority),
		"conformance.status":                facts.ConformanceStatus,
		"execution.snapshot_id":             facts.SnapshotID,
		"worker.type":                       facts.WorkerType,
	} {
		if value != "" {
			attrs = append(attrs, attribute.String(key, value))
		}
	}
	if len(facts.ConformanceIssues) > 0 {
		attrs = append(attrs, attribute.StringSlice("conformance.issues", facts.ConformanceIssues))
	}
	span.SetAttributes(attrs...)
}
