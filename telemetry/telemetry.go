// Package telemetry defines the structured logging, metrics, and tracing
// interfaces used throughout the execution core: AgentExecutor, ToolExecutor,
// the Step Pipeline, and the Trace Collector all depend on these small
// interfaces rather than a concrete backend, so tests can supply lightweight
// stubs and production wiring can plug in telemetry/clue.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging used throughout the core.
// Implementations typically delegate to goa.design/clue/log, but the
// interface stays small so components can be exercised with lightweight
// stubs in tests.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter, timer, and gauge helpers for core instrumentation:
// step commits, tool dispatch latency, termination reasons, wire backpressure.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so the core can remain agnostic of the
// underlying OpenTelemetry provider. The Trace Collector (package trace) uses
// this to dual-emit its derived span tree as real OTEL spans.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tracing span.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}
