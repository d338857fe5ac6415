package engine

import (
	"context"
	"time"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/telemetry"
)

// ExecutionObserver receives one callback per finished call.
type ExecutionObserver interface {
	ObserveExecution(capabilityID string, success bool, code string)
}

// MetricsStage emits OpenTelemetry instruments and, when configured, the
// Prometheus execution counter.
type MetricsStage struct {
	observer ExecutionObserver
	now      func() time.Time
}

// NewMetricsStage creates the metrics stage; observer may be nil.
func NewMetricsStage(observer ExecutionObserver) *MetricsStage {
	return &MetricsStage{observer: observer, now: time.Now}
}

func (s *MetricsStage) Name() string { return "metrics" }
func (s *MetricsStage) Order() int   { return OrderMetrics }

func (s *MetricsStage) Invoke(ctx context.Context, ec *domain.ExecutionContext, next Next) (domain.Response, error) {
	resp, err := next(ctx, ec)

	success := resp.Success && err == nil && ec.Err == nil
	telemetry.RecordExecutionMetrics(ctx, telemetry.ExecutionMetrics{
		CapabilityID: ec.CapabilityID,
		Action:       ec.Action,
		Success:      success,
		Code:         resp.Code,
		CacheHit:     ec.CacheHit,
		Denied:       ec.Denied(),
		Authority:    string(ec.Facts.Authority),
		Duration:     s.now().Sub(ec.StartedAt),
	})
	if s.observer != nil {
		s.observer.ObserveExecution(ec.CapabilityID, success, resp.Code)
	}
	return resp, err
}
