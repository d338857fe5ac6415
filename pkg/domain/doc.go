// Package domain defines the core types and collaborator interfaces of the tool
// execution pipeline.
//
// This package has no dependencies outside the Go standard library. Everything
// the pipeline consumes from its surroundings (policy registry, capability
// catalog, rate guard, event sink, executor registry) is declared here as an
// interface, and infrastructure packages implement them:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
//
// The execution context that threads through the pipeline stages, the
// universal request/result envelope shared by runtime adapters, and the
// audit-only execution snapshot all live here so stages, adapters and sinks
// agree on one vocabulary.
package domain
