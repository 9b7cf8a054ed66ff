package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type (
	// NoopLogger discards all log messages. It's the default Logger for any
	// component (Pipeline, Executor, ToolExecutor, trace.Collector) built
	// without an explicit WithLogger option, so tests and minimal embeddings
	// never have to construct a real backend.
	NoopLogger struct{}

	// NoopMetrics discards all counters, timers, and gauges.
	NoopMetrics struct{}

	// NoopTracer hands out a single shared no-op Span rather than opening
	// anything; the Trace Collector's dual-emit path still runs, it just
	// has nowhere to send spans.
	NoopTracer struct{}

	noopSpan struct{}
)

var (
	_ Logger  = NoopLogger{}
	_ Metrics = NoopMetrics{}
	_ Tracer  = NoopTracer{}
	_ Span    = noopSpan{}

	sharedNoopSpan = noopSpan{}
)

// NewNoopLogger constructs a Logger that discards all log messages.
func NewNoopLogger() Logger { return NoopLogger{} }

// NewNoopMetrics constructs a Metrics recorder that discards all metrics.
func NewNoopMetrics() Metrics { return NoopMetrics{} }

// NewNoopTracer constructs a Tracer that hands out no-op spans.
func NewNoopTracer() Tracer { return NoopTracer{} }

func (NoopLogger) Debug(context.Context, string, ...any) {}
func (NoopLogger) Info(context.Context, string, ...any)  {}
func (NoopLogger) Warn(context.Context, string, ...any)  {}
func (NoopLogger) Error(context.Context, string, ...any) {}

func (NoopMetrics) IncCounter(string, float64, ...string)        {}
func (NoopMetrics) RecordTimer(string, time.Duration, ...string) {}
func (NoopMetrics) RecordGauge(string, float64, ...string)       {}

// Start returns ctx unchanged alongside the shared no-op span.
func (NoopTracer) Start(ctx context.Context, _ string, _ ...trace.SpanStartOption) (context.Context, Span) {
	return ctx, sharedNoopSpan
}

// Span always returns the shared no-op span, regardless of ctx.
func (NoopTracer) Span(context.Context) Span { return sharedNoopSpan }

func (noopSpan) End(...trace.SpanEndOption)              {}
func (noopSpan) AddEvent(string, ...any)                 {}
func (noopSpan) SetStatus(codes.Code, string)            {}
func (noopSpan) RecordError(error, ...trace.EventOption) {}
