// Package governance holds the runtime safety controls of the tool execution
// pipeline: per-capability concurrency slots, per-minute rate budgets, and the
// resilience wrapper (fallback, circuit breaker, timeout) around execution.
//
// All per-capability state lives in lazily populated concurrent maps owned by
// the component instance, so callers construct each control once at startup
// and share it across requests.
package governance
