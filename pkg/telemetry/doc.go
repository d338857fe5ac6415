// Package telemetry wires OpenTelemetry tracing and metrics, Prometheus
// governance series, and execution event sinks for the tool pipeline.
//
// It centralises trace provider setup, records per-call counters and latency,
// and offers enrichment helpers that attach authority, admission and
// conformance facts to spans so operators can correlate a response with the
// decisions that produced it.
package telemetry
