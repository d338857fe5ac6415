package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/telemetry"
)

const unknownFact = "unknown"

// TelemetryStage records one execution event per call, including denials,
// errors and panics raised further down the chain.
type TelemetryStage struct {
	sink   domain.EventSink
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewTelemetryStage creates the telemetry stage. A nil sink logs events.
func NewTelemetryStage(sink domain.EventSink, logger *slog.Logger) *TelemetryStage {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = telemetry.NewLogSink(logger)
	}
	return &TelemetryStage{sink: sink, logger: logger, now: time.Now, newID: uuid.NewString}
}

func (s *TelemetryStage) Name() string { return "telemetry" }
func (s *TelemetryStage) Order() int   { return OrderTelemetry }

func (s *TelemetryStage) Invoke(ctx context.Context, ec *domain.ExecutionContext, next Next) (resp domain.Response, err error) {
	defer func() {
		if p := recover(); p != nil {
			s.record(ctx, ec, resp, fmt.Errorf("%w: %v", domain.ErrStagePanic, p))
			panic(p)
		}
	}()

	resp, err = next(ctx, ec)
	failure := err
	if failure == nil {
		failure = ec.Err
	}
	s.record(ctx, ec, resp, failure)
	return resp, err
}

func (s *TelemetryStage) record(ctx context.Context, ec *domain.ExecutionContext, resp domain.Response, failure error) {
	if resp == (domain.Response{}) && ec.Response != nil {
		resp = *ec.Response
	}
	ev := s.buildEvent(ec, resp, failure)

	span := trace.SpanFromContext(ctx)
	telemetry.RecordFacts(span, ec.Facts)
	if ec.Facts.Admission != nil {
		telemetry.RecordAdmissionDecision(span, *ec.Facts.Admission)
	}
	if ec.Denied() {
		telemetry.RecordDenialEvent(span, ec.Facts.ConformanceStatus, ec.Facts.DenialReason)
	}

	// Recording must survive a cancelled request.
	if err := s.sink.Record(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Warn("execution event not recorded", "capability", ev.CapabilityID, "run_id", ev.RunID, "error", err)
	}
}

func (s *TelemetryStage) buildEvent(ec *domain.ExecutionContext, resp domain.Response, failure error) domain.ExecutionEvent {
	facts := ec.Facts
	ev := domain.ExecutionEvent{
		RunID:             s.newID(),
		CapabilityID:      ec.CapabilityID,
		Action:            ec.Action,
		Timestamp:         ec.StartedAt.UTC(),
		DurationMS:        s.now().Sub(ec.StartedAt).Milliseconds(),
		Success:           resp.Success && failure == nil,
		FailureCode:       resp.Code,
		PayloadSize:       len(ec.Input),
		ExecutionMode:     unknownFact,
		CacheHit:          ec.CacheHit,
		RuntimeLanguage:   orUnknown(facts.RuntimeLanguage),
		AdapterName:       orUnknown(facts.AdapterName),
		AdapterResolution: orUnknown(string(facts.AdapterResolution)),
		Authority:         string(facts.Authority),
		ShadowExecution:   facts.ShadowExecution,
		ConformanceStatus: facts.ConformanceStatus,
		ConformanceIssues: facts.ConformanceIssues,
		SnapshotID:        facts.SnapshotID,
		WorkerType:        facts.WorkerType,
		WorkerLeaseID:     facts.WorkerLeaseID,
	}
	if ec.Policy != nil && ec.Policy.ExecutionMode != "" {
		ev.ExecutionMode = string(ec.Policy.ExecutionMode)
	}
	if facts.Admission != nil {
		ev.AdmissionAllowed = facts.Admission.Allowed
		ev.AdmissionReason = facts.Admission.Reason
		ev.AdmissionSource = facts.Admission.Source
	}
	if failure != nil {
		ev.ErrorType = errorType(failure)
	}
	if len(ec.Tags) > 0 {
		ev.Tags = make(map[string]string, len(ec.Tags))
		for k, v := range ec.Tags {
			ev.Tags[k] = v
		}
	}
	return ev
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case errors.Is(err, domain.ErrStagePanic):
		return "panic"
	}
	if code := domain.CodeOf(err); code != "" {
		return code
	}
	return fmt.Sprintf("%T", err)
}

func orUnknown(v string) string {
	if v == "" {
		return unknownFact
	}
	return v
}
