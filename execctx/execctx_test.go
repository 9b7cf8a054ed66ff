package execctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore-run/agentcore/wire"
)

func TestNew_TopLevelDefaults(t *testing.T) {
	w := wire.New(0)
	defer w.Close()

	ctx := New("run-1", "sess-1", w, RunnableTypeAgent, WithUserID("u1"), WithRunnableID("agent-a"))

	assert.Equal(t, "run-1", ctx.RunID())
	assert.Equal(t, "sess-1", ctx.SessionID())
	assert.Equal(t, "u1", ctx.UserID())
	assert.Equal(t, "agent-a", ctx.RunnableID())
	assert.Equal(t, 0, ctx.Depth())
	assert.Empty(t, ctx.ParentRunID())
	assert.Empty(t, ctx.CallStack())
}

func TestChild_IncrementsDepthAndSetsParent(t *testing.T) {
	w := wire.New(0)
	defer w.Close()

	parent := New("run-1", "sess-1", w, RunnableTypeAgent)
	child := parent.Child("run-2", "agent-b", NestingToolCall, nil)

	assert.Equal(t, "run-2", child.RunID())
	assert.Equal(t, "run-1", child.ParentRunID())
	assert.Equal(t, 1, child.Depth())
	assert.Equal(t, "sess-1", child.SessionID())
	assert.Same(t, parent.Wire(), child.Wire())
	assert.Equal(t, NestingToolCall, child.NestingType())
	assert.Equal(t, "agent-b", child.NestedRunnableID())
	assert.Equal(t, []string{"agent-b"}, child.CallStack())

	// Parent is untouched (structural sharing, not mutation).
	assert.Equal(t, 0, parent.Depth())
	assert.Empty(t, parent.CallStack())
}

func TestChild_ExtendsCallStackAcrossGenerations(t *testing.T) {
	w := wire.New(0)
	defer w.Close()

	root := New("run-1", "sess-1", w, RunnableTypeAgent)
	gen1 := root.Child("run-2", "agent-a", NestingToolCall, nil)
	gen2 := gen1.Child("run-3", "agent-b", NestingToolCall, nil)

	assert.Equal(t, []string{"agent-a", "agent-b"}, gen2.CallStack())
	assert.Equal(t, 2, gen2.Depth())
}

func TestInCallStack_DetectsCycle(t *testing.T) {
	w := wire.New(0)
	defer w.Close()

	root := New("run-1", "sess-1", w, RunnableTypeAgent)
	child := root.Child("run-2", "agent-a", NestingToolCall, nil)

	assert.True(t, child.InCallStack("agent-a"))
	assert.False(t, child.InCallStack("agent-z"))
}

func TestMetadata_ChildMergeDoesNotMutateParent(t *testing.T) {
	w := wire.New(0)
	defer w.Close()

	root := New("run-1", "sess-1", w, RunnableTypeAgent, WithMetadata(map[string]any{"trace_hint": "x"}))
	child := root.Child("run-2", "agent-a", NestingWorkflowNode, map[string]any{"node": "step-1"})

	require.Equal(t, "x", child.Metadata()["trace_hint"])
	require.Equal(t, "step-1", child.Metadata()["node"])
	_, ok := root.Metadata()["node"]
	assert.False(t, ok)
}
