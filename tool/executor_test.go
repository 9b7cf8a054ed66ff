package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore-run/agentcore/execctx"
	"github.com/agentcore-run/agentcore/step"
	"github.com/agentcore-run/agentcore/wire"
)

func newTestExecCtx(t *testing.T) *execctx.ExecutionContext {
	t.Helper()
	w := wire.New(8)
	t.Cleanup(w.Close)
	return execctx.New("run-1", "sess-1", w, execctx.RunnableTypeAgent)
}

func TestExecute_UnknownToolIsIsolatedFailure(t *testing.T) {
	e := NewExecutor(NewRegistry())
	out := e.Execute(context.Background(), step.ToolCall{ID: "c1", Name: "missing"}, "", newTestExecCtx(t), NewAbortSignal())

	assert.False(t, out.Result.IsSuccess)
	assert.Equal(t, "tool_not_found", out.Result.Error)
}

func TestExecute_MalformedArgumentsIsIsolatedFailure(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeTool{name: "add"}))
	e := NewExecutor(r)

	out := e.Execute(context.Background(), step.ToolCall{ID: "c1", Name: "add", Arguments: json.RawMessage(`{bad json`)}, "", newTestExecCtx(t), NewAbortSignal())
	assert.False(t, out.Result.IsSuccess)
	assert.Equal(t, "malformed_arguments", out.Result.Error)
}

func TestExecute_SchemaViolationIsIsolatedFailure(t *testing.T) {
	r := NewRegistry()
	schema := json.RawMessage(`{"type":"object","required":["a"]}`)
	require.NoError(t, r.Register(&fakeTool{name: "add", schema: schema}))
	e := NewExecutor(r)

	out := e.Execute(context.Background(), step.ToolCall{ID: "c1", Name: "add", Arguments: json.RawMessage(`{}`)}, "", newTestExecCtx(t), NewAbortSignal())
	assert.False(t, out.Result.IsSuccess)
	assert.Equal(t, "malformed_arguments", out.Result.Error)
}

func TestExecute_SuccessfulCall(t *testing.T) {
	r := NewRegistry()
	tl := &fakeTool{name: "add", result: Result{Content: "4", IsSuccess: true}}
	require.NoError(t, r.Register(tl))
	e := NewExecutor(r)

	out := e.Execute(context.Background(), step.ToolCall{ID: "c1", Name: "add", Arguments: json.RawMessage(`{"a":2,"b":2}`)}, "", newTestExecCtx(t), NewAbortSignal())
	require.True(t, out.Result.IsSuccess)
	assert.Equal(t, "4", out.Result.Content)
	assert.Equal(t, "c1", out.Result.ToolCallID)
	assert.Equal(t, 1, tl.invocations)
}

func TestExecute_ToolExecutionErrorIsIsolated(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeTool{name: "flaky", err: errors.New("boom")}))
	e := NewExecutor(r)

	out := e.Execute(context.Background(), step.ToolCall{ID: "c1", Name: "flaky"}, "", newTestExecCtx(t), NewAbortSignal())
	assert.False(t, out.Result.IsSuccess)
	assert.Contains(t, out.Result.Error, "tool_execution_error")
}

func TestExecute_ConsentDeniedEmitsEvents(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeTool{name: "sensitive", consent: true}))
	e := NewExecutor(r, WithPermissionManager(denyingPermissionManager{}))

	out := e.Execute(context.Background(), step.ToolCall{ID: "c1", Name: "sensitive"}, "user-1", newTestExecCtx(t), NewAbortSignal())
	require.False(t, out.Result.IsSuccess)
	assert.Equal(t, "permission_denied", out.Result.Error)
	require.Len(t, out.Events, 2)
	assert.Equal(t, step.EventToolAuthRequired, out.Events[0].Type)
	assert.Equal(t, step.EventToolAuthDenied, out.Events[1].Type)
}

func TestExecuteBatch_ReturnsResultsInRequestOrderAndIsolatesFailures(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeTool{name: "ok", result: Result{Content: "fine", IsSuccess: true}}))
	require.NoError(t, r.Register(&fakeTool{name: "bad", err: errors.New("boom")}))
	e := NewExecutor(r)

	calls := []step.ToolCall{
		{ID: "c1", Name: "ok"},
		{ID: "c2", Name: "bad"},
		{ID: "c3", Name: "ok"},
	}
	outs := e.ExecuteBatch(context.Background(), calls, "", newTestExecCtx(t), NewAbortSignal())
	require.Len(t, outs, 3)
	assert.Equal(t, "c1", outs[0].Result.ToolCallID)
	assert.True(t, outs[0].Result.IsSuccess)
	assert.Equal(t, "c2", outs[1].Result.ToolCallID)
	assert.False(t, outs[1].Result.IsSuccess)
	assert.Equal(t, "c3", outs[2].Result.ToolCallID)
	assert.True(t, outs[2].Result.IsSuccess)
}

func TestExecuteBatch_SkipsRemainingAfterAbort(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeTool{name: "ok", result: Result{IsSuccess: true}}))
	e := NewExecutor(r)

	abort := NewAbortSignal()
	abort.Cancel()

	calls := []step.ToolCall{{ID: "c1", Name: "ok"}, {ID: "c2", Name: "ok"}}
	outs := e.ExecuteBatch(context.Background(), calls, "", newTestExecCtx(t), abort)
	require.Len(t, outs, 2)
	assert.Equal(t, "cancelled", outs[0].Result.Error)
	assert.Equal(t, "cancelled", outs[1].Result.Error)
}

type denyingPermissionManager struct{}

func (denyingPermissionManager) Check(context.Context, string, string, json.RawMessage, *execctx.ExecutionContext, time.Duration) (ConsentResult, error) {
	return ConsentResult{Allowed: false, Reason: "policy"}, nil
}
