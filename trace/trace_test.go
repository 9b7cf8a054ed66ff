package trace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore-run/agentcore/step"
)

func collectAll(t *testing.T, c *Collector, events []step.Event) []step.Event {
	t.Helper()
	in := make(chan step.Event, len(events))
	for _, e := range events {
		in <- e
	}
	close(in)

	out := c.Wrap(context.Background(), in)
	var got []step.Event
	for evt := range out {
		got = append(got, evt)
	}
	return got
}

func TestCollector_PassesEventsThroughUnchanged(t *testing.T) {
	c := NewCollector()
	events := []step.Event{
		step.NewRunStarted("run-1", "sess-1", "hi"),
		step.NewRunCompleted("run-1", "sess-1", "done", "completed", nil),
	}
	got := collectAll(t, c, events)
	require.Len(t, got, 2)
	assert.Equal(t, step.EventRunStarted, got[0].Type)
	assert.Equal(t, step.EventRunCompleted, got[1].Type)
}

func TestCollector_BuildsAgentSpanForTopLevelRun(t *testing.T) {
	c := NewCollector()
	events := []step.Event{
		step.NewRunStarted("run-1", "sess-1", "hi"),
		step.NewRunCompleted("run-1", "sess-1", "done", "completed", nil),
	}
	collectAll(t, c, events)

	tr := c.Trace("run-1")
	require.NotNil(t, tr)
	require.NotNil(t, tr.Root)
	assert.Equal(t, SpanKindAgent, tr.Root.Kind)
	assert.Equal(t, SpanStatusOK, tr.Root.Status)
}

func TestCollector_RunFailedMarksSpanError(t *testing.T) {
	c := NewCollector()
	events := []step.Event{
		step.NewRunStarted("run-1", "sess-1", "hi"),
		step.NewRunFailed("run-1", "sess-1", "provider_error", "boom"),
	}
	collectAll(t, c, events)

	tr := c.Trace("run-1")
	require.NotNil(t, tr)
	assert.Equal(t, SpanStatusError, tr.Root.Status)
}

func TestCollector_StepCompletedAddsLLMAndToolSpans(t *testing.T) {
	c := NewCollector()
	assistantStep := &step.Step{ID: "s1", RunID: "run-1", SessionID: "sess-1", Role: step.RoleAssistant, Metrics: &step.Metrics{TotalTokens: 42}}
	toolStep := &step.Step{ID: "s2", RunID: "run-1", SessionID: "sess-1", Role: step.RoleTool}

	events := []step.Event{
		step.NewRunStarted("run-1", "sess-1", "hi"),
		step.NewStepCompleted("run-1", "sess-1", assistantStep),
		step.NewStepCompleted("run-1", "sess-1", toolStep),
		step.NewRunCompleted("run-1", "sess-1", "done", "completed", nil),
	}
	collectAll(t, c, events)

	tr := c.Trace("run-1")
	require.NotNil(t, tr)
	require.Len(t, tr.Root.Children, 2)
	assert.Equal(t, SpanKindLLMCall, tr.Root.Children[0].Kind)
	assert.Equal(t, SpanKindToolCall, tr.Root.Children[1].Kind)
}

func TestCollector_NestedRunAttachesUnderParentSpan(t *testing.T) {
	c := NewCollector()
	outer := step.NewRunStarted("run-1", "sess-1", "hi").WithNesting("", "", 0)
	inner := step.NewRunStarted("run-2", "sess-1", "task").WithNesting("inner-agent", "run-1", 1)
	innerDone := step.NewRunCompleted("run-2", "sess-1", "nested done", "completed", nil).WithNesting("inner-agent", "run-1", 1)
	outerDone := step.NewRunCompleted("run-1", "sess-1", "done", "completed", nil)

	collectAll(t, c, []step.Event{outer, inner, innerDone, outerDone})

	tr := c.Trace("run-1")
	require.NotNil(t, tr)
	require.Len(t, tr.Root.Children, 1)
	nestedSpan := tr.Root.Children[0]
	assert.Equal(t, SpanKindAgent, nestedSpan.Kind)
	assert.Equal(t, "run-2", nestedSpan.RunID)
	assert.Equal(t, SpanStatusOK, nestedSpan.Status)
}

func TestCollector_PersisterFailureDoesNotBlockPassthrough(t *testing.T) {
	c := NewCollector(WithPersister(failingPersister{}))
	events := []step.Event{
		step.NewRunStarted("run-1", "sess-1", "hi"),
		step.NewRunCompleted("run-1", "sess-1", "done", "completed", nil),
	}
	got := collectAll(t, c, events)
	require.Len(t, got, 2)
	// give the async best-effort persist goroutines a moment to run and fail
	// quietly; the test's success is that nothing above blocked or panicked.
	time.Sleep(10 * time.Millisecond)
}

type failingPersister struct{}

func (failingPersister) PersistSpan(context.Context, string, *Span) error {
	return assert.AnError
}
