package telemetry

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kelindar/event"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

// ExecutionEventType identifies execution events on the in-process bus.
const ExecutionEventType uint32 = 0x7401

// ExecutionEventData wraps an execution event for the bus.
type ExecutionEventData struct {
	Event domain.ExecutionEvent
}

// Type implements event.Event.
func (ExecutionEventData) Type() uint32 {
	return ExecutionEventType
}

// LogSink writes execution events as structured log records.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink writing to logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Record implements domain.EventSink.
func (s *LogSink) Record(ctx context.Context, ev domain.ExecutionEvent) error {
	level := slog.LevelInfo
	if !ev.Success {
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, "tool execution",
		slog.String("run_id", ev.RunID),
		slog.String("capability", ev.CapabilityID),
		slog.String("action", ev.Action),
		slog.Bool("success", ev.Success),
		slog.String("failure_code", ev.FailureCode),
		slog.Int64("duration_ms", ev.DurationMS),
		slog.Bool("cache_hit", ev.CacheHit),
		slog.String("authority", ev.Authority),
		slog.String("adapter", ev.AdapterName),
		slog.String("conformance", ev.ConformanceStatus),
		slog.String("snapshot_id", ev.SnapshotID),
	)
	return nil
}

// BusSink publishes execution events on a kelindar/event dispatcher so other
// components can subscribe without coupling to the pipeline.
type BusSink struct {
	bus *event.Dispatcher
}

// NewBusSink publishes to bus, or to a fresh dispatcher when bus is nil.
func NewBusSink(bus *event.Dispatcher) *BusSink {
	if bus == nil {
		bus = event.NewDispatcher()
	}
	return &BusSink{bus: bus}
}

// Record implements domain.EventSink.
func (s *BusSink) Record(_ context.Context, ev domain.ExecutionEvent) error {
	event.Publish(s.bus, ExecutionEventData{Event: ev})
	return nil
}

// Subscribe registers handler for execution events. The returned function
// removes the subscription.
func (s *BusSink) Subscribe(handler func(domain.ExecutionEvent)) func() {
	cancel := event.Subscribe(s.bus, func(data ExecutionEventData) {
		handler(data.Event)
	})
	return func() { cancel() }
}

// MultiSink fans an event out to every sink and joins their errors.
type MultiSink []domain.EventSink

// Record implements domain.EventSink.
func (m MultiSink) Record(ctx context.Context, ev domain.ExecutionEvent) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
