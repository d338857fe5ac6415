package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GovernanceMetrics exposes limiter, breaker and cache health as Prometheus
// series on a private registry.
type GovernanceMetrics struct {
	slotsInFlight      *prometheus.GaugeVec
	slotWaits          *prometheus.CounterVec
	breakerTransitions *prometheus.CounterVec
	breakerOpen        *prometheus.GaugeVec
	cacheFaults        *prometheus.CounterVec
	executions         *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewGovernanceMetrics registers every series on a fresh registry.
func NewGovernanceMetrics() *GovernanceMetrics {
	registry := prometheus.NewRegistry()

	m := &GovernanceMetrics{
		slotsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "toolnexus_concurrency_slots_in_flight",
				Help: "Concurrency slots currently held per capability",
			},
			[]string{"capability"},
		),
		slotWaits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolnexus_concurrency_waits_total",
				Help: "Requests that had to wait for a concurrency slot",
			},
			[]string{"capability"},
		),
		breakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolnexus_circuit_breaker_transitions_total",
				Help: "Circuit breaker state transitions by capability",
			},
			[]string{"capability", "from", "to"},
		),
		breakerOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "toolnexus_circuit_breaker_open",
				Help: "1 while a capability's circuit is open",
			},
			[]string{"capability"},
		),
		cacheFaults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolnexus_cache_faults_total",
				Help: "Result store faults absorbed as cache misses",
			},
			[]string{"op"},
		),
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolnexus_executions_total",
				Help: "Pipeline executions by capability and outcome",
			},
			[]string{"capability", "outcome", "code"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.slotsInFlight,
		m.slotWaits,
		m.breakerTransitions,
		m.breakerOpen,
		m.cacheFaults,
		m.executions,
		prometheus.NewGoCollector(),
	)

	return m
}

// SlotWaiting records a caller blocked on a full limiter.
func (m *GovernanceMetrics) SlotWaiting(capabilityID string) {
	m.slotWaits.WithLabelValues(capabilityID).Inc()
}

// SlotAcquired records a held slot.
func (m *GovernanceMetrics) SlotAcquired(capabilityID string) {
	m.slotsInFlight.WithLabelValues(capabilityID).Inc()
}

// SlotReleased records a freed slot.
func (m *GovernanceMetrics) SlotReleased(capabilityID string) {
	m.slotsInFlight.WithLabelValues(capabilityID).Dec()
}

// BreakerStateChanged records a breaker transition.
func (m *GovernanceMetrics) BreakerStateChanged(capabilityID, from, to string) {
	m.breakerTransitions.WithLabelValues(capabilityID, from, to).Inc()
	open := 0.0
	if to == "open" {
		open = 1
	}
	m.breakerOpen.WithLabelValues(capabilityID).Set(open)
}

// CacheFault records a result store error for op ("read" or "write").
func (m *GovernanceMetrics) CacheFault(op string, _ error) {
	m.cacheFaults.WithLabelValues(op).Inc()
}

// ObserveExecution counts one finished pipeline call.
func (m *GovernanceMetrics) ObserveExecution(capabilityID string, success bool, code string) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.executions.WithLabelValues(capabilityID, outcome, code).Inc()
}

// Handler returns the Prometheus scrape handler.
func (m *GovernanceMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *GovernanceMetrics) Registry() *prometheus.Registry {
	return m.registry
}
