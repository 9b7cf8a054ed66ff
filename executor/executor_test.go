package executor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore-run/agentcore/execctx"
	"github.com/agentcore-run/agentcore/model"
	"github.com/agentcore-run/agentcore/pipeline"
	"github.com/agentcore-run/agentcore/session/inmem"
	"github.com/agentcore-run/agentcore/step"
	"github.com/agentcore-run/agentcore/tool"
	"github.com/agentcore-run/agentcore/wire"
)

// fakeStreamer replays a fixed chunk sequence, one per Recv call.
type fakeStreamer struct {
	chunks []model.Chunk
	idx    int
}

func (s *fakeStreamer) Recv(context.Context) (model.Chunk, bool, error) {
	if s.idx >= len(s.chunks) {
		return model.Chunk{}, false, nil
	}
	c := s.chunks[s.idx]
	s.idx++
	return c, true, nil
}

func (s *fakeStreamer) Close() error { return nil }

// scriptedClient returns one fakeStreamer per Stream call, in order, and a
// fixed Response for Complete (used by the termination-summary path).
type scriptedClient struct {
	turns       [][]model.Chunk
	turnIdx     int
	completeErr error
	completeRes model.Response
}

func (c *scriptedClient) Stream(context.Context, model.Request) (model.Streamer, error) {
	if c.turnIdx >= len(c.turns) {
		return &fakeStreamer{}, nil
	}
	s := &fakeStreamer{chunks: c.turns[c.turnIdx]}
	c.turnIdx++
	return s, nil
}

func (c *scriptedClient) Complete(context.Context, model.Request) (model.Response, error) {
	return c.completeRes, c.completeErr
}

func newHarness(t *testing.T, client model.Client) (*Executor, *execctx.ExecutionContext) {
	t.Helper()
	store := inmem.New()
	pl := pipeline.New(store)
	toolExec := tool.NewExecutor(tool.NewRegistry())
	w := wire.New(32)
	t.Cleanup(w.Close)
	execCtx := execctx.New("run-1", "sess-1", w, execctx.RunnableTypeAgent)
	return New(client, pl, toolExec), execCtx
}

func TestRun_SingleTurnNoToolCallsCompletes(t *testing.T) {
	client := &scriptedClient{turns: [][]model.Chunk{
		{
			{Type: model.ChunkTypeContent, ContentDelta: "hello "},
			{Type: model.ChunkTypeContent, ContentDelta: "world"},
			{Type: model.ChunkTypeUsage, Usage: &model.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}},
			{Type: model.ChunkTypeFinish, FinishReason: "stop"},
		},
	}}
	e, execCtx := newHarness(t, client)

	cfg := Config{MaxSteps: 5, Model: "test-model"}
	out := e.Run(NewContext(context.Background(), cfg), nil, execCtx, nil, tool.NewAbortSignal())

	require.NoError(t, out.Err)
	assert.Equal(t, TerminationCompleted, out.TerminationReason)
	assert.Equal(t, "hello world", out.Response)
	assert.Equal(t, 15, out.Metrics.TotalTokens)
}

func TestRun_ToolCallLoopsThenCompletes(t *testing.T) {
	client := &scriptedClient{turns: [][]model.Chunk{
		{
			{Type: model.ChunkTypeToolCallDelta, ToolCallDelta: &model.ToolCallDelta{Index: 0, ID: "c1", Name: "add"}},
			{Type: model.ChunkTypeToolCallDelta, ToolCallDelta: &model.ToolCallDelta{Index: 0, ArgumentsFragment: `{"a":1}`}},
			{Type: model.ChunkTypeFinish, FinishReason: "tool_calls"},
		},
		{
			{Type: model.ChunkTypeContent, ContentDelta: "done"},
			{Type: model.ChunkTypeFinish, FinishReason: "stop"},
		},
	}}
	store := inmem.New()
	pl := pipeline.New(store)
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(&fakeExecutorTool{name: "add", content: "2"}))
	toolExec := tool.NewExecutor(registry)
	w := wire.New(32)
	t.Cleanup(w.Close)
	execCtx := execctx.New("run-1", "sess-1", w, execctx.RunnableTypeAgent)
	e := New(client, pl, toolExec)

	cfg := Config{MaxSteps: 5, Model: "test-model"}
	out := e.Run(NewContext(context.Background(), cfg), nil, execCtx, nil, tool.NewAbortSignal())

	require.NoError(t, out.Err)
	assert.Equal(t, TerminationCompleted, out.TerminationReason)
	assert.Equal(t, "done", out.Response)

	steps, err := store.GetSteps(context.Background(), "sess-1", nil)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, step.RoleAssistant, steps[0].Role)
	assert.Equal(t, step.RoleTool, steps[1].Role)
	assert.Equal(t, "2", steps[1].Content)
	assert.Equal(t, step.RoleAssistant, steps[2].Role)
}

func TestRun_MaxStepsStopsWithoutSummary(t *testing.T) {
	loopChunks := []model.Chunk{
		{Type: model.ChunkTypeToolCallDelta, ToolCallDelta: &model.ToolCallDelta{Index: 0, ID: "c1", Name: "add"}},
		{Type: model.ChunkTypeToolCallDelta, ToolCallDelta: &model.ToolCallDelta{Index: 0, ArgumentsFragment: `{}`}},
		{Type: model.ChunkTypeFinish, FinishReason: "tool_calls"},
	}
	client := &scriptedClient{turns: [][]model.Chunk{loopChunks, loopChunks, loopChunks}}
	store := inmem.New()
	pl := pipeline.New(store)
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(&fakeExecutorTool{name: "add", content: "ok"}))
	toolExec := tool.NewExecutor(registry)
	w := wire.New(32)
	t.Cleanup(w.Close)
	execCtx := execctx.New("run-1", "sess-1", w, execctx.RunnableTypeAgent)
	e := New(client, pl, toolExec)

	cfg := Config{MaxSteps: 2, Model: "test-model"}
	out := e.Run(NewContext(context.Background(), cfg), nil, execCtx, nil, tool.NewAbortSignal())

	assert.Equal(t, TerminationMaxSteps, out.TerminationReason)
	assert.Empty(t, out.Response)
}

func TestRun_MaxStepsWithSummaryIssuesFinalCall(t *testing.T) {
	loopChunks := []model.Chunk{
		{Type: model.ChunkTypeToolCallDelta, ToolCallDelta: &model.ToolCallDelta{Index: 0, ID: "c1", Name: "add"}},
		{Type: model.ChunkTypeToolCallDelta, ToolCallDelta: &model.ToolCallDelta{Index: 0, ArgumentsFragment: `{}`}},
		{Type: model.ChunkTypeFinish, FinishReason: "tool_calls"},
	}
	client := &scriptedClient{
		turns:       [][]model.Chunk{loopChunks, loopChunks},
		completeRes: model.Response{Content: "wrapping up", Usage: model.TokenUsage{TotalTokens: 3}},
	}
	store := inmem.New()
	pl := pipeline.New(store)
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(&fakeExecutorTool{name: "add", content: "ok"}))
	toolExec := tool.NewExecutor(registry)
	w := wire.New(32)
	t.Cleanup(w.Close)
	execCtx := execctx.New("run-1", "sess-1", w, execctx.RunnableTypeAgent)
	e := New(client, pl, toolExec)

	cfg := Config{MaxSteps: 1, Model: "test-model", TerminationSummary: true}
	out := e.Run(NewContext(context.Background(), cfg), nil, execCtx, nil, tool.NewAbortSignal())

	require.NoError(t, out.Err)
	assert.Equal(t, "wrapping up", out.Response)
}

func TestRun_PendingToolCallsExecutedBeforeFirstModelCall(t *testing.T) {
	client := &scriptedClient{turns: [][]model.Chunk{
		{
			{Type: model.ChunkTypeContent, ContentDelta: "resumed"},
			{Type: model.ChunkTypeFinish, FinishReason: "stop"},
		},
	}}
	store := inmem.New()
	pl := pipeline.New(store)
	registry := tool.NewRegistry()
	tl := &fakeExecutorTool{name: "add", content: "42"}
	require.NoError(t, registry.Register(tl))
	toolExec := tool.NewExecutor(registry)
	w := wire.New(32)
	t.Cleanup(w.Close)
	execCtx := execctx.New("run-1", "sess-1", w, execctx.RunnableTypeAgent)
	e := New(client, pl, toolExec)

	pending := &PendingToolCalls{Calls: []step.ToolCall{{ID: "c1", Name: "add", Arguments: json.RawMessage(`{}`)}}}
	cfg := Config{MaxSteps: 5, Model: "test-model"}
	out := e.Run(NewContext(context.Background(), cfg), nil, execCtx, pending, tool.NewAbortSignal())

	require.NoError(t, out.Err)
	assert.Equal(t, 1, tl.invocations)
	assert.Equal(t, "resumed", out.Response)
}

func TestRun_CancelledBeforeFirstTurnTerminatesCancelled(t *testing.T) {
	client := &scriptedClient{}
	e, execCtx := newHarness(t, client)

	abort := tool.NewAbortSignal()
	abort.Cancel()

	out := e.Run(context.Background(), nil, execCtx, nil, abort)
	assert.Equal(t, TerminationCancelled, out.TerminationReason)
}

func TestRun_MalformedToolCallSurfacesAsError(t *testing.T) {
	client := &scriptedClient{turns: [][]model.Chunk{
		{
			// a tool-call fragment that never receives a Name is malformed.
			{Type: model.ChunkTypeToolCallDelta, ToolCallDelta: &model.ToolCallDelta{Index: 0, ID: "c1"}},
			{Type: model.ChunkTypeFinish, FinishReason: "tool_calls"},
		},
	}}
	e, execCtx := newHarness(t, client)

	cfg := Config{MaxSteps: 5, Model: "test-model"}
	out := e.Run(NewContext(context.Background(), cfg), nil, execCtx, nil, tool.NewAbortSignal())

	assert.Equal(t, TerminationError, out.TerminationReason)
	assert.Error(t, out.Err)
}

type fakeExecutorTool struct {
	name        string
	content     string
	invocations int
}

func (f *fakeExecutorTool) Name() string                      { return f.name }
func (f *fakeExecutorTool) Description() string                { return "fake" }
func (f *fakeExecutorTool) ParametersSchema() json.RawMessage { return nil }
func (f *fakeExecutorTool) RequiresConsent() bool             { return false }
func (f *fakeExecutorTool) Execute(context.Context, json.RawMessage, *execctx.ExecutionContext, *tool.AbortSignal) (tool.Result, error) {
	f.invocations++
	if f.content == "" {
		return tool.Result{}, errors.New("no content configured")
	}
	return tool.Result{Content: f.content, IsSuccess: true}, nil
}
