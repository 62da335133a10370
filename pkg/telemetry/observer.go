package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

// RunObserver turns engine events into metrics, spans and debug logs.
// It follows one run at a time, matching the engine's sequential model.
type RunObserver struct {
	tracer  *Tracer
	metrics *Metrics
	logger  *Logger

	runCtx   context.Context
	runSpan  trace.Span
	unitSpan trace.Span
}

// NewRunObserver creates an observer. Any argument may be nil.
func NewRunObserver(tracer *Tracer, metrics *Metrics, logger *Logger) *RunObserver {
	return &RunObserver{tracer: tracer, metrics: metrics, logger: logger}
}

// Observe implements engine.Observer.
func (o *RunObserver) Observe(ctx context.Context, event engine.Event) {
	switch event.Type {
	case engine.EventTypeRunStarted:
		o.runCtx = ctx
		if o.tracer != nil {
			o.runCtx, o.runSpan = o.tracer.StartRunSpan(ctx, event.RunID)
		}

	case engine.EventTypeUnitStarted:
		if o.tracer != nil && event.Unit != nil {
			parent := o.runCtx
			if parent == nil {
				parent = ctx
			}
			_, o.unitSpan = o.tracer.StartUnitSpan(parent, event.Unit.ID, string(event.Unit.Kind))
		}

	case engine.EventTypeUnitCompleted:
		if event.Result == nil {
			return
		}
		o.unitCompleted(*event.Result)

	case engine.EventTypeWarning:
		if event.Unit != nil {
			o.recordWarning(event.Unit.Kind)
		}
		if o.logger != nil {
			o.logger.zlog.Debug().Str("run_id", event.RunID).Msg(event.Message)
		}

	case engine.EventTypeRunCompleted:
		if event.Report == nil {
			return
		}
		status := RunStatus(event.Report)
		if o.metrics != nil {
			o.metrics.RecordRunCompleted(status, event.Report.Duration(), event.Report.CompletedAt)
		}
		if o.runSpan != nil {
			o.runSpan.SetAttributes(AttrRunStatus.String(status))
			if status == "succeeded" {
				RecordSuccess(o.runSpan)
			}
			o.runSpan.End()
			o.runSpan = nil
		}
	}
}

func (o *RunObserver) unitCompleted(res engine.UnitResult) {
	kind := string(res.Unit.Kind)
	outcome := res.Outcome

	if o.metrics != nil {
		o.metrics.RecordUnitOutcome(kind, string(outcome.Kind), outcome.Duration)
		if outcome.Error != nil {
			o.metrics.RecordError(string(outcome.Error.Class), outcome.Error.Code)
		}
	}

	if o.unitSpan == nil {
		return
	}
	o.unitSpan.SetAttributes(
		AttrOutcome.String(string(outcome.Kind)),
		AttrPresence.String(string(res.Detection.Presence)),
	)
	if outcome.Error != nil {
		o.unitSpan.SetAttributes(
			AttrErrorClass.String(string(outcome.Error.Class)),
			AttrErrorCode.String(outcome.Error.Code),
		)
		RecordError(o.unitSpan, outcome.Error)
	} else if outcome.Kind.IsSuccess() {
		RecordSuccess(o.unitSpan)
	}
	o.unitSpan.End()
	o.unitSpan = nil
}

func (o *RunObserver) recordWarning(kind engine.SourceKind) {
	if o.metrics != nil {
		o.metrics.RecordWarning(string(kind))
	}
}

// RunStatus summarizes a report as succeeded, failed or cancelled.
func RunStatus(report *engine.RunReport) string {
	switch {
	case report.Cancelled:
		return "cancelled"
	case report.HasFailures():
		return "failed"
	default:
		return "succeeded"
	}
}
