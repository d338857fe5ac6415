package governance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a call.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// CircuitBreakerState represents the state of a circuit breaker.
type CircuitBreakerState string

const (
	// StateClosed indicates calls flow normally.
	StateClosed CircuitBreakerState = "closed"
	// StateOpen indicates calls are rejected until the break duration elapses.
	StateOpen CircuitBreakerState = "open"
	// StateHalfOpen indicates a limited number of trial calls are allowed.
	StateHalfOpen CircuitBreakerState = "half-open"
)

// CircuitBreakerConfig defines the sampling window and break behaviour.
type CircuitBreakerConfig struct {
	// FailureRateThreshold is the percentage (0-100] of failed calls inside
	// Window that opens the circuit.
	FailureRateThreshold float64
	// MinSamples is the minimum throughput inside Window before the failure
	// rate is evaluated.
	MinSamples int
	// Window is the rolling sampling duration.
	Window time.Duration
	// BucketCount is the number of buckets approximating Window.
	BucketCount int
	// BreakDuration is how long the circuit stays open before a trial call.
	BreakDuration time.Duration
	// HalfOpenProbes is the number of trial calls allowed while half-open.
	HalfOpenProbes int
	// OnStateChange is invoked outside the breaker lock after every transition.
	OnStateChange func(from, to CircuitBreakerState)
}

// DefaultCircuitBreakerConfig opens after every sampled call fails across a
// 30 second window and waits 30 seconds before trying again.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureRateThreshold: 100,
		MinSamples:           2,
		Window:               30 * time.Second,
		BucketCount:          10,
		BreakDuration:        30 * time.Second,
		HalfOpenProbes:       1,
	}
}

// CircuitBreaker tracks call outcomes in a rolling window and short-circuits
// calls once the failure rate saturates.
type CircuitBreaker struct {
	mu      sync.Mutex
	state   CircuitBreakerState
	config  CircuitBreakerConfig
	window  rollingWindow
	probes  int
	changed time.Time
	until   time.Time
	now     func() time.Time
}

type rollingWindow struct {
	buckets  []windowBucket
	width    time.Duration
	current  int
	startsAt time.Time
}

type windowBucket struct {
	start    time.Time
	calls    int
	failures int
}

// NewCircuitBreaker creates a circuit breaker with the provided configuration.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	defaults := DefaultCircuitBreakerConfig()
	if config.FailureRateThreshold <= 0 || config.FailureRateThreshold > 100 {
		config.FailureRateThreshold = defaults.FailureRateThreshold
	}
	if config.MinSamples <= 0 {
		config.MinSamples = defaults.MinSamples
	}
	if config.Window <= 0 {
		config.Window = defaults.Window
	}
	if config.BucketCount <= 0 {
		config.BucketCount = defaults.BucketCount
	}
	if config.BreakDuration <= 0 {
		config.BreakDuration = defaults.BreakDuration
	}
	if config.HalfOpenProbes <= 0 {
		config.HalfOpenProbes = defaults.HalfOpenProbes
	}

	width := config.Window / time.Duration(config.BucketCount)
	if width <= 0 {
		width = time.Second
	}

	return &CircuitBreaker{
		state:   StateClosed,
		config:  config,
		window:  rollingWindow{buckets: make([]windowBucket, config.BucketCount), width: width},
		changed: time.Now(),
		now:     time.Now,
	}
}

// ExecuteContext runs fn when the breaker admits the call and records its outcome.
// A nil error counts as success. Cancellation of ctx itself is not recorded.
func (cb *CircuitBreaker) ExecuteContext(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		cb.abandon()
		return err
	}
	cb.record(err == nil)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	from, to, err := cb.admitLocked(cb.now())
	cb.mu.Unlock()
	cb.notify(from, to)
	return err
}

func (cb *CircuitBreaker) admitLocked(now time.Time) (CircuitBreakerState, CircuitBreakerState, error) {
	switch cb.state {
	case StateClosed:
		return "", "", nil
	case StateOpen:
		if now.Before(cb.until) {
			return "", "", ErrCircuitOpen
		}
		from := cb.transitionLocked(StateHalfOpen, now)
		cb.probes++
		return from, StateHalfOpen, nil
	case StateHalfOpen:
		if cb.probes < cb.config.HalfOpenProbes {
			cb.probes++
			return "", "", nil
		}
		return "", "", ErrCircuitOpen
	default:
		return "", "", fmt.Errorf("unknown circuit breaker state: %s", cb.state)
	}
}

// abandon returns a half-open probe slot without recording an outcome.
func (cb *CircuitBreaker) abandon() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateHalfOpen && cb.probes > 0 {
		cb.probes--
	}
}

func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	from, to := cb.recordLocked(cb.now(), success)
	cb.mu.Unlock()
	cb.notify(from, to)
}

func (cb *CircuitBreaker) recordLocked(now time.Time, success bool) (CircuitBreakerState, CircuitBreakerState) {
	switch cb.state {
	case StateHalfOpen:
		if !success {
			return cb.transitionLocked(StateOpen, now), StateOpen
		}
		return cb.transitionLocked(StateClosed, now), StateClosed
	case StateOpen:
		// A call admitted before the circuit opened finished late.
		return "", ""
	}

	cb.window.rotate(now)
	bucket := &cb.window.buckets[cb.window.current]
	bucket.calls++
	if !success {
		bucket.failures++
	}

	calls, failures := cb.window.totals(now, cb.config.Window)
	if calls < cb.config.MinSamples {
		return "", ""
	}
	if float64(failures)/float64(calls)*100 >= cb.config.FailureRateThreshold {
		return cb.transitionLocked(StateOpen, now), StateOpen
	}
	return "", ""
}

func (cb *CircuitBreaker) transitionLocked(next CircuitBreakerState, now time.Time) CircuitBreakerState {
	prev := cb.state
	if prev == next {
		return ""
	}
	cb.state = next
	cb.changed = now
	cb.probes = 0
	cb.until = time.Time{}
	if next == StateOpen {
		cb.until = now.Add(cb.config.BreakDuration)
	}
	if next != StateHalfOpen {
		cb.window.reset(now)
	}
	return prev
}

func (cb *CircuitBreaker) notify(from, to CircuitBreakerState) {
	if from == "" || to == "" || cb.config.OnStateChange == nil {
		return
	}
	cb.config.OnStateChange(from, to)
}

func (w *rollingWindow) rotate(now time.Time) {
	if w.startsAt.IsZero() {
		w.reset(now)
		return
	}
	if now.Before(w.startsAt) {
		return
	}
	steps := int(now.Sub(w.startsAt) / w.width)
	if steps > len(w.buckets) {
		steps = len(w.buckets)
	}
	for i := 0; i < steps; i++ {
		w.current = (w.current + 1) % len(w.buckets)
		w.startsAt = w.startsAt.Add(w.width)
		w.buckets[w.current] = windowBucket{start: w.startsAt}
	}
	if now.Sub(w.startsAt) >= w.width {
		// Idle longer than the whole window; realign on the current bucket.
		w.startsAt = now.Truncate(w.width)
		w.buckets[w.current].start = w.startsAt
	}
}

func (w *rollingWindow) reset(now time.Time) {
	for i := range w.buckets {
		w.buckets[i] = windowBucket{}
	}
	w.current = 0
	w.startsAt = now.Truncate(w.width)
	w.buckets[0].start = w.startsAt
}

func (w *rollingWindow) totals(now time.Time, span time.Duration) (calls, failures int) {
	for _, b := range w.buckets {
		if b.calls == 0 || b.start.IsZero() || now.Sub(b.start) > span {
			continue
		}
		calls += b.calls
		failures += b.failures
	}
	return calls, failures
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && !cb.now().Before(cb.until) {
		return StateHalfOpen
	}
	return cb.state
}

// CircuitBreakerStats exposes circuit breaker status information.
type CircuitBreakerStats struct {
	State           string  `json:"state"`
	Calls           int     `json:"calls"`
	Failures        int     `json:"failures"`
	FailureRate     float64 `json:"failureRate"`
	LastStateChange string  `json:"lastStateChange"`
	OpenUntil       string  `json:"openUntil,omitempty"`
}

// Stats returns the rolling-window counters.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	calls, failures := cb.window.totals(now, cb.config.Window)
	stats := CircuitBreakerStats{
		State:           string(cb.state),
		Calls:           calls,
		Failures:        failures,
		LastStateChange: cb.changed.Format(time.RFC3339),
	}
	if calls > 0 {
		stats.FailureRate = float64(failures) / float64(calls) * 100
	}
	if !cb.until.IsZero() {
		stats.OpenUntil = cb.until.Format(time.RFC3339)
	}
	return stats
}

// Reset closes the circuit and clears the sampling window.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.transitionLocked(StateClosed, cb.now())
	cb.window.reset(cb.now())
	cb.mu.Unlock()
	cb.notify(from, StateClosed)
}
