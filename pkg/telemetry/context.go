package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry combines logging, tracing, metrics and events.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}
	subscribeEvents(events, cfg.Events, logger, metrics)

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// subscribeEvents counts every event and mirrors those at or above the
// configured level into the log.
func subscribeEvents(ep *EventPublisher, cfg EventsConfig, logger *Logger, metrics *Metrics) {
	minLevel := cfg.LogLevel
	if minLevel == "" {
		minLevel = EventLevelWarning
	}
	ep.Subscribe(metrics.RecordEvent, nil)
	ep.Subscribe(LogSubscriber(logger.NewComponentLogger("events")), FilterByLevel(minLevel))
}

// Nop returns telemetry that discards logs, records no spans or metrics and
// delivers events inline.
func Nop() *Telemetry {
	cfg := DefaultConfig()
	tracer, _ := NewTracer(TracingConfig{}, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	metrics, _ := NewMetrics(MetricsConfig{})
	events, _ := NewEventPublisher(EventsConfig{Enabled: true})
	return &Telemetry{
		Logger:  NopLogger(),
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}
}

// Shutdown gracefully shuts down all telemetry components.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.Events.Shutdown(ctx),
		t.Tracer.Shutdown(ctx),
	)
}

// Flush forces all pending spans to be exported.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// InstrumentedContext carries the span, logger and timer of one operation.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer

	operation string
	metrics   *Metrics
}

// StartOperation begins an instrumented operation with logging, tracing and
// timing. The operation logs through logger, or t.Logger when it is nil.
func (t *Telemetry) StartOperation(ctx context.Context, logger *Logger, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	attrs = append([]attribute.KeyValue{AttrOperation.String(operation)}, attrs...)
	spanCtx, span := t.Tracer.StartSpan(ctx, "sandbox."+operation, attrs...)

	if logger == nil {
		logger = t.Logger
	}
	logger = logger.WithOperation(operation)
	if sc := span.SpanContext(); sc.IsValid() {
		logger = logger.WithFields(map[string]interface{}{
			"trace_id": sc.TraceID().String(),
			"span_id":  sc.SpanID().String(),
		})
	}

	t.Metrics.RecordOperationStarted()

	return &InstrumentedContext{
		Ctx:       spanCtx,
		Span:      span,
		Logger:    logger,
		Timer:     NewTimer(),
		operation: operation,
		metrics:   t.Metrics,
	}
}

// End finishes the operation, recording status, duration and any error.
func (ic *InstrumentedContext) End(status string, err error) {
	if err != nil && status == "" {
		status = "error"
	}
	elapsed := ic.Timer.Duration()
	ic.metrics.RecordOperationCompleted(ic.operation, status, elapsed)

	if err != nil {
		ic.Logger.WithError(err).WithField("status", status).Warn("operation failed")
	} else {
		ic.Logger.Zerolog().Debug().Str("status", status).Dur("elapsed", elapsed).Msg("operation finished")
	}

	if ic.Span == nil {
		return
	}
	ic.Span.SetAttributes(AttrStatus.String(status))
	if err != nil {
		RecordError(ic.Span, err)
	} else {
		RecordSuccess(ic.Span)
	}
	ic.Span.End()
}
