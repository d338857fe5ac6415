package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

var (
	// ErrRequestTimeout is returned when a call exceeds its timeout budget.
	ErrRequestTimeout = errors.New("request timeout exceeded")

	errUnsuccessful = errors.New("unsuccessful result")
)

// Fallback messages returned to callers when resilience trips.
const (
	TimeoutFallbackMessage     = "Tool execution timed out."
	CircuitOpenFallbackMessage = "Tool temporarily unavailable due to repeated failures."
)

const minimumTimeout = time.Second

// ResilienceConfig tunes the breaker shared by every wrapper a provider builds.
type ResilienceConfig struct {
	Window        time.Duration
	BreakDuration time.Duration
	Logger        *slog.Logger
	// OnStateChange observes breaker transitions, keyed by capability id.
	OnStateChange func(capabilityID string, from, to CircuitBreakerState)
}

// ResilienceProvider builds and caches one wrapper per distinct
// capability, timeout and failure threshold.
type ResilienceProvider struct {
	config   ResilienceConfig
	logger   *slog.Logger
	wrappers sync.Map // key -> *Resilience
}

// NewResilienceProvider creates a provider with the given configuration.
func NewResilienceProvider(cfg ResilienceConfig) *ResilienceProvider {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ResilienceProvider{config: cfg, logger: logger}
}

// WrapperKey is the cache key for a capability's wrapper.
func WrapperKey(capabilityID string, policy domain.ExecutionPolicy) string {
	return fmt.Sprintf("%s:%d:%d", capabilityID, policy.TimeoutSeconds, policy.CircuitBreakerFailureThreshold)
}

// Wrap returns the wrapper for the capability and policy, building it on first use.
func (p *ResilienceProvider) Wrap(capabilityID string, policy domain.ExecutionPolicy) *Resilience {
	key := WrapperKey(capabilityID, policy)
	if v, ok := p.wrappers.Load(key); ok {
		return v.(*Resilience)
	}

	timeout := policy.Timeout()
	if timeout < minimumTimeout {
		timeout = minimumTimeout
	}
	minSamples := policy.CircuitBreakerFailureThreshold
	if minSamples < 2 {
		minSamples = 2
	}

	logger := p.logger.With("capability_id", capabilityID, "resilience_key", key)
	breakerCfg := DefaultCircuitBreakerConfig()
	breakerCfg.MinSamples = minSamples
	if p.config.Window > 0 {
		breakerCfg.Window = p.config.Window
	}
	if p.config.BreakDuration > 0 {
		breakerCfg.BreakDuration = p.config.BreakDuration
	}
	breakerCfg.OnStateChange = func(from, to CircuitBreakerState) {
		logger.Warn("circuit breaker state changed", "from", string(from), "to", string(to))
		if p.config.OnStateChange != nil {
			p.config.OnStateChange(capabilityID, from, to)
		}
	}

	fresh := &Resilience{
		key:     key,
		timeout: timeout,
		breaker: NewCircuitBreaker(breakerCfg),
		logger:  logger,
	}
	v, _ := p.wrappers.LoadOrStore(key, fresh)
	return v.(*Resilience)
}

// Stats reports breaker statistics for every wrapper built so far.
func (p *ResilienceProvider) Stats() map[string]CircuitBreakerStats {
	stats := map[string]CircuitBreakerStats{}
	p.wrappers.Range(func(k, v any) bool {
		stats[k.(string)] = v.(*Resilience).breaker.Stats()
		return true
	})
	return stats
}

// Resilience composes fallback, circuit breaker and timeout around a call.
type Resilience struct {
	key     string
	timeout time.Duration
	breaker *CircuitBreaker
	logger  *slog.Logger
}

// Key returns the cache key the wrapper was built for.
func (r *Resilience) Key() string { return r.key }

// Timeout returns the effective timeout.
func (r *Resilience) Timeout() time.Duration { return r.timeout }

// Breaker exposes the wrapper's circuit breaker.
func (r *Resilience) Breaker() *CircuitBreaker { return r.breaker }

// Execute runs fn under the wrapper. Timeouts and open circuits come back as
// failure results; the returned error is reserved for caller cancellation
// and errors raised by fn itself.
func (r *Resilience) Execute(
	ctx context.Context,
	req domain.ExecutionRequest,
	fn func(context.Context) (domain.ExecutionResult, error),
) (domain.ExecutionResult, error) {
	var result domain.ExecutionResult
	err := r.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		out, err := r.withTimeout(ctx, fn)
		result = out
		if err != nil {
			return err
		}
		if !out.Success {
			return errUnsuccessful
		}
		return nil
	})

	switch {
	case err == nil, errors.Is(err, errUnsuccessful):
		return result, nil
	case errors.Is(err, ErrRequestTimeout):
		r.logger.Warn("tool execution timed out", "timeout", r.timeout.String())
		return fallback(req, domain.StatusTimedOut, domain.CodeTimeout, TimeoutFallbackMessage), nil
	case errors.Is(err, ErrCircuitOpen):
		r.logger.Debug("circuit open, returning fallback")
		return fallback(req, domain.StatusFailed, domain.CodeCircuitOpen, CircuitOpenFallbackMessage), nil
	default:
		return result, err
	}
}

type callOutcome struct {
	result domain.ExecutionResult
	err    error
}

func (r *Resilience) withTimeout(
	ctx context.Context,
	fn func(context.Context) (domain.ExecutionResult, error),
) (domain.ExecutionResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// The call keeps its concurrency slot until fn returns, even after the
	// timeout has handed a fallback back to the caller.
	release := SlotFromContext(ctx).Hold()
	done := make(chan callOutcome, 1)
	go func() {
		defer release()
		defer func() {
			if p := recover(); p != nil {
				done <- callOutcome{err: fmt.Errorf("%w: %v", domain.ErrStagePanic, p)}
			}
		}()
		res, err := fn(callCtx)
		done <- callOutcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && ctx.Err() == nil && errors.Is(out.err, context.DeadlineExceeded) {
			return out.result, fmt.Errorf("%w after %s", ErrRequestTimeout, r.timeout)
		}
		return out.result, out.err
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return domain.ExecutionResult{}, err
		}
		return domain.ExecutionResult{}, fmt.Errorf("%w after %s", ErrRequestTimeout, r.timeout)
	}
}

func fallback(req domain.ExecutionRequest, status domain.ExecutionStatus, code, message string) domain.ExecutionResult {
	res := domain.NewExecutionResult(req, false, "", message)
	res.Status = status
	res.Metrics[domain.MetricFailureCode] = code
	res.Incidents = append(res.Incidents, code)
	return res
}
