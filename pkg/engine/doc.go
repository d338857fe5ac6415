// Package engine implements the tool execution pipeline.
//
// Architecture:
//
// chain.go             - Ordered stage chain, continuation passing, panic recovery, pipeline span
// stage_validation.go  - Input normalization, manifest and policy resolution (100)
// stage_policy.go      - Execution policy enforcement (200)
// stage_concurrency.go - Per-capability concurrency slots (300)
// stage_cache.go       - Result cache with single-flight population (400)
// stage_execution.go   - Authority, admission, resilience and runtime dispatch (500)
// stage_telemetry.go   - Execution event recording (600)
// stage_metrics.go     - OpenTelemetry and Prometheus counters (700)
// engine_factory.go    - Pipeline wiring with in-memory defaults
//
// Rejections never short-circuit the chain: a stage that denies a request sets
// the response on the execution context and calls the next stage, which passes
// it through untouched, so every decision reaches telemetry and metrics.
package engine
