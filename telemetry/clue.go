package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"
)

type (
	// ClueLogger delegates to goa.design/clue/log, the structured logger the
	// Step Pipeline, AgentExecutor, ToolExecutor, and Trace Collector all log
	// through.
	ClueLogger struct{}

	// ClueMetrics delegates to the global OTEL MeterProvider, instrumenting
	// the step/tool/run counters and timers this module's components emit
	// (telemetry.MetricStepCommitted and friends).
	ClueMetrics struct {
		meter metric.Meter
	}

	// ClueTracer delegates to the global OTEL TracerProvider. Every span it
	// opens is tagged with this module's instrumentation name so the derived
	// spans the Trace Collector dual-emits (package trace's AGENT/LLM_CALL/
	// TOOL_CALL taxonomy) are attributable back to this execution core when
	// a host application's own spans share the same trace.
	ClueTracer struct {
		tracer     trace.Tracer
		moduleAttr attribute.KeyValue
	}

	clueSpan struct {
		span trace.Span
	}
)

var moduleAttribute = attribute.String("agentcore.instrumentation", instrumentationName)

// NewClueLogger constructs a Logger that delegates to goa.design/clue/log.
// The logger reads formatting and debug settings from the context (set via
// log.Context and log.WithFormat/log.WithDebug).
func NewClueLogger() Logger {
	return ClueLogger{}
}

// NewClueMetrics constructs a Metrics recorder backed by the global OTEL
// MeterProvider. Configure it via clue.ConfigureOpenTelemetry before
// invoking core methods.
func NewClueMetrics() Metrics {
	return &ClueMetrics{meter: otel.Meter(instrumentationName)}
}

// NewClueTracer constructs a Tracer backed by the global OTEL TracerProvider.
func NewClueTracer() Tracer {
	return &ClueTracer{tracer: otel.Tracer(instrumentationName), moduleAttr: moduleAttribute}
}

// Debug emits a debug-level log message with structured key-value pairs.
func (ClueLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	log.Debug(ctx, fielders(msg, keyvals)...)
}

// Info emits an info-level log message with structured key-value pairs.
func (ClueLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	log.Info(ctx, fielders(msg, keyvals)...)
}

// Warn emits a warning-level log message with structured key-value pairs.
func (ClueLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	log.Warn(ctx, append([]log.Fielder{log.KV{K: "severity", V: "warning"}}, fielders(msg, keyvals)...)...)
}

// Error emits an error-level log message with structured key-value pairs.
// The error itself, if any, is expected to already be one of keyvals under
// telemetry.LogKeyError; clue's own error argument is left nil so this
// stays consistent with Debug/Info/Warn's flat keyval shape.
func (ClueLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	log.Error(ctx, nil, fielders(msg, keyvals)...)
}

// fielders builds clue's Fielder slice for one log call: the message first,
// then every well-formed (string key, value) pair in keyvals.
func fielders(msg string, keyvals []any) []log.Fielder {
	out := make([]log.Fielder, 0, 1+len(keyvals)/2)
	out = append(out, log.KV{K: "msg", V: msg})
	forEachPair(keyvals, func(k string, v any) {
		out = append(out, log.KV{K: k, V: v})
	})
	return out
}

// IncCounter increments a counter metric by the given value.
func (m *ClueMetrics) IncCounter(name string, value float64, tags ...string) {
	counter, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	counter.Add(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

// RecordTimer records a duration histogram metric, in seconds.
func (m *ClueMetrics) RecordTimer(name string, duration time.Duration, tags ...string) {
	histogram, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	histogram.Record(context.Background(), duration.Seconds(), metric.WithAttributes(tagAttrs(tags)...))
}

// RecordGauge records a gauge-like metric value. OTEL has no synchronous
// gauge instrument, so this records into a histogram suffixed "_gauge".
func (m *ClueMetrics) RecordGauge(name string, value float64, tags ...string) {
	histogram, err := m.meter.Float64Histogram(name + "_gauge")
	if err != nil {
		return
	}
	histogram.Record(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

// Start creates a new span tagged with this module's instrumentation
// attribute, so spans the Trace Collector dual-emits are identifiable even
// when they're interleaved with a host application's own spans on the same
// trace.
func (t *ClueTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	opts = append(opts, trace.WithAttributes(t.moduleAttr))
	newCtx, span := t.tracer.Start(ctx, name, opts...)
	return newCtx, &clueSpan{span: span}
}

// Span retrieves the current span from the context.
func (t *ClueTracer) Span(ctx context.Context) Span {
	return &clueSpan{span: trace.SpanFromContext(ctx)}
}

// End finalizes the span.
func (s *clueSpan) End(opts ...trace.SpanEndOption) {
	s.span.End(opts...)
}

// AddEvent records a span event with attributes.
func (s *clueSpan) AddEvent(name string, attrs ...any) {
	s.span.AddEvent(name, trace.WithAttributes(kvAttrs(attrs)...))
}

// SetStatus sets the span status code and description.
func (s *clueSpan) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

// RecordError records an error on the span.
func (s *clueSpan) RecordError(err error, opts ...trace.EventOption) {
	s.span.RecordError(err, opts...)
}

// forEachPair walks keyvals two at a time (k1, v1, k2, v2, ...), invoking fn
// for each pair whose key is a string. A trailing unpaired key is passed
// with a nil value. Non-string keys are skipped rather than stringified,
// since a malformed call site is a bug worth losing the field over, not
// papering over with a garbled key.
func forEachPair(keyvals []any, fn func(k string, v any)) {
	for i := 0; i < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		var v any
		if i+1 < len(keyvals) {
			v = keyvals[i+1]
		}
		fn(k, v)
	}
}

// tagAttrs converts metric tag pairs (k1, v1, k2, v2, ...) into OTEL
// attributes for counter/histogram dimensions. Tag values are always
// strings; this is metric cardinality, not log payload.
func tagAttrs(tags []string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for i := 0; i < len(tags); i += 2 {
		v := ""
		if i+1 < len(tags) {
			v = tags[i+1]
		}
		attrs = append(attrs, attribute.String(tags[i], v))
	}
	return attrs
}

// kvAttrs converts variadic key-value pairs into OTEL attributes for span
// events, picking the concrete attribute.KeyValue constructor that matches
// the value's Go type and falling back to an empty string for anything
// else (OTEL attributes have no "any" variant).
func kvAttrs(keyvals []any) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	forEachPair(keyvals, func(k string, v any) {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, ""))
		}
	})
	return attrs
}
