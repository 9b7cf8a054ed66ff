// Package trace implements the optional Trace Collector (spec §4.9): it
// consumes the Wire's event stream unchanged, emitting every event to a
// downstream consumer untouched, while incrementally building a hierarchical
// Span tree and dual-emitting real OpenTelemetry spans via telemetry.Tracer.
// Collector failures never disturb the event pass-through; trace building is
// strictly best-effort.
package trace

import (
	"context"
	"sync"
	"time"

	otelcodes "go.opentelemetry.io/otel/codes"

	"github.com/agentcore-run/agentcore/step"
	"github.com/agentcore-run/agentcore/telemetry"
)

// SpanKind classifies a derived Span (spec §4.9's three mapped kinds).
type SpanKind string

const (
	SpanKindAgent    SpanKind = "AGENT"
	SpanKindLLMCall  SpanKind = "LLM_CALL"
	SpanKindToolCall SpanKind = "TOOL_CALL"
)

// SpanStatus is the terminal status of a Span.
type SpanStatus string

const (
	SpanStatusRunning SpanStatus = "running"
	SpanStatusOK      SpanStatus = "ok"
	SpanStatusError   SpanStatus = "error"
)

// Span is one node of the derived trace tree.
type Span struct {
	ID         string
	ParentID   string
	Kind       SpanKind
	Name       string
	RunID      string
	StartedAt  time.Time
	EndedAt    time.Time
	Status     SpanStatus
	Metrics    *step.Metrics
	Children   []*Span
}

// Trace is the root of a run's derived span tree, keyed by the top-level
// run_id that owns it.
type Trace struct {
	RunID string
	Root  *Span
}

// Persister incrementally persists spans as they open or close. Called
// async and best-effort: a Persister failure is logged and otherwise
// ignored, never surfaced to the event pass-through path.
type Persister interface {
	PersistSpan(ctx context.Context, traceRunID string, s *Span) error
}

// noopPersister discards every span, the default when none is configured.
type noopPersister struct{}

func (noopPersister) PersistSpan(context.Context, string, *Span) error { return nil }

// Collector wraps an event stream, forwarding every event unchanged to Out
// while incrementally building Traces (spec §4.9). One Collector instance
// is good for exactly one wrapped stream; construct a fresh one per run.
type Collector struct {
	tracer    telemetry.Tracer
	logger    telemetry.Logger
	persister Persister

	mu       sync.Mutex
	traces   map[string]*Trace          // top-level run_id -> Trace
	spans    map[string]*Span           // run_id -> its Agent span
	otelCtx  map[string]context.Context // run_id -> otel span context
	otelSpan map[string]telemetry.Span  // run_id -> live otel span
}

// Option configures a Collector.
type Option func(*Collector)

// WithTracer attaches a telemetry.Tracer for dual-emitting real OTEL spans.
// Defaults to telemetry.NewNoopTracer.
func WithTracer(t telemetry.Tracer) Option { return func(c *Collector) { c.tracer = t } }

// WithLogger attaches a Logger. Defaults to telemetry.NewNoopLogger.
func WithLogger(l telemetry.Logger) Option { return func(c *Collector) { c.logger = l } }

// WithPersister attaches incremental span persistence. Defaults to
// discarding every span.
func WithPersister(p Persister) Option { return func(c *Collector) { c.persister = p } }

// NewCollector constructs a Collector.
func NewCollector(opts ...Option) *Collector {
	c := &Collector{
		tracer:    telemetry.NewNoopTracer(),
		logger:    telemetry.NewNoopLogger(),
		persister: noopPersister{},
		traces:    make(map[string]*Trace),
		spans:     make(map[string]*Span),
		otelCtx:   make(map[string]context.Context),
		otelSpan:  make(map[string]telemetry.Span),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Wrap drains in, applies the spec §4.9 mapping to build/extend the span
// tree for every event, and forwards the event unchanged onto the returned
// channel. The returned channel closes once in closes.
func (c *Collector) Wrap(ctx context.Context, in <-chan step.Event) <-chan step.Event {
	out := make(chan step.Event)
	go func() {
		defer close(out)
		for evt := range in {
			c.observe(ctx, evt)
			out <- evt
		}
	}()
	return out
}

// Trace returns the derived span tree for a top-level run, or nil if no
// RUN_STARTED for that run_id (or one of its descendants) has been observed.
func (c *Collector) Trace(runID string) *Trace {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.traces[runID]
}

func (c *Collector) observe(ctx context.Context, evt step.Event) {
	switch evt.Type {
	case step.EventRunStarted:
		c.openAgentSpan(ctx, evt)
	case step.EventStepCompleted:
		c.addStepSpan(ctx, evt)
	case step.EventRunCompleted:
		c.closeAgentSpan(ctx, evt, SpanStatusOK, "")
	case step.EventRunFailed:
		reason := ""
		if evt.Data != nil {
			reason = evt.Data.Error
		}
		c.closeAgentSpan(ctx, evt, SpanStatusError, reason)
	}
}

func (c *Collector) openAgentSpan(ctx context.Context, evt step.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	span := &Span{
		ID:        evt.RunID,
		RunID:     evt.RunID,
		Kind:      SpanKindAgent,
		Name:      "agent:" + evt.RunID,
		StartedAt: time.Now(),
		Status:    SpanStatusRunning,
	}

	if evt.ParentRunID != "" {
		span.ParentID = evt.ParentRunID
		if parent, ok := c.spans[evt.ParentRunID]; ok {
			parent.Children = append(parent.Children, span)
		}
		if root, ok := c.rootTraceFor(evt.ParentRunID); ok {
			c.traces[evt.RunID] = root // share the same root trace object for descendant lookups
		}
	} else {
		c.traces[evt.RunID] = &Trace{RunID: evt.RunID, Root: span}
	}
	c.spans[evt.RunID] = span

	spanCtx, otelSpan := c.tracer.Start(ctx, span.Name)
	c.otelCtx[evt.RunID] = spanCtx
	c.otelSpan[evt.RunID] = otelSpan

	go func() {
		if err := c.persister.PersistSpan(ctx, c.traceRootID(evt.RunID), span); err != nil {
			c.logger.Warn(ctx, "trace: persist span failed", telemetry.LogKeyRunID, evt.RunID, telemetry.LogKeyError, err.Error())
		}
	}()
}

// rootTraceFor finds the Trace a run_id belongs to by walking spans known so
// far; used only to decide whether a nested run shares its parent's Trace
// identity for the purpose of c.traces lookups by descendant run_id.
func (c *Collector) rootTraceFor(runID string) (*Trace, bool) {
	if t, ok := c.traces[runID]; ok {
		return t, true
	}
	if span, ok := c.spans[runID]; ok && span.ParentID != "" {
		return c.rootTraceFor(span.ParentID)
	}
	return nil, false
}

func (c *Collector) traceRootID(runID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.traces[runID]; ok {
		return t.RunID
	}
	return runID
}

func (c *Collector) addStepSpan(ctx context.Context, evt step.Event) {
	if evt.Step == nil {
		return
	}
	c.mu.Lock()
	parent, ok := c.spans[evt.RunID]
	if !ok {
		c.mu.Unlock()
		return
	}

	var kind SpanKind
	switch evt.Step.Role {
	case step.RoleAssistant:
		kind = SpanKindLLMCall
	case step.RoleTool:
		kind = SpanKindToolCall
	default:
		c.mu.Unlock()
		return
	}

	now := time.Now()
	span := &Span{
		ID:        evt.Step.ID,
		ParentID:  evt.RunID,
		Kind:      kind,
		Name:      string(kind) + ":" + evt.Step.ID,
		RunID:     evt.RunID,
		StartedAt: now,
		EndedAt:   now,
		Status:    SpanStatusOK,
		Metrics:   evt.Step.Metrics,
	}
	parent.Children = append(parent.Children, span)
	c.mu.Unlock()

	spanCtx := ctx
	if sc, ok := c.otelCtx[evt.RunID]; ok {
		spanCtx = sc
	}
	_, otelSpan := c.tracer.Start(spanCtx, span.Name)
	if span.Metrics != nil {
		otelSpan.AddEvent("metrics", "total_tokens", span.Metrics.TotalTokens, "wall_time", span.Metrics.WallTime.String())
	}
	otelSpan.SetStatus(otelcodes.Ok, "")
	otelSpan.End()

	go func() {
		if err := c.persister.PersistSpan(ctx, c.traceRootID(evt.RunID), span); err != nil {
			c.logger.Warn(ctx, "trace: persist span failed", telemetry.LogKeySpanID, span.ID, telemetry.LogKeyError, err.Error())
		}
	}()
}

func (c *Collector) closeAgentSpan(ctx context.Context, evt step.Event, status SpanStatus, errMsg string) {
	c.mu.Lock()
	span, ok := c.spans[evt.RunID]
	if !ok {
		c.mu.Unlock()
		return
	}
	span.EndedAt = time.Now()
	span.Status = status
	otelSpan := c.otelSpan[evt.RunID]
	c.mu.Unlock()

	if otelSpan != nil {
		if status == SpanStatusError {
			otelSpan.SetStatus(otelcodes.Error, errMsg)
		} else {
			otelSpan.SetStatus(otelcodes.Ok, "")
		}
		otelSpan.End()
	}

	go func() {
		if err := c.persister.PersistSpan(ctx, c.traceRootID(evt.RunID), span); err != nil {
			c.logger.Warn(ctx, "trace: persist span failed", telemetry.LogKeyRunID, evt.RunID, telemetry.LogKeyError, err.Error())
		}
	}()
}
