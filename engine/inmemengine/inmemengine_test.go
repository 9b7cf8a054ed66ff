package inmemengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore-run/agentcore/engine"
	"github.com/agentcore-run/agentcore/executor"
)

func TestStartRun_DrivesRegisteredWorkflowToCompletion(t *testing.T) {
	e := New()
	require.NoError(t, e.RegisterRunWorkflow(context.Background(), engine.RunWorkflowDefinition{
		Name: "run", TaskQueue: "default",
		Handler: func(wctx engine.WorkflowContext, input engine.RunInput) (executor.RunOutput, error) {
			return executor.RunOutput{RunID: wctx.RunID(), Response: "ok: " + input.Input, TerminationReason: executor.TerminationCompleted}, nil
		},
	}))

	h, err := e.StartRun(context.Background(), engine.RunStartRequest{ID: "run-1", Input: engine.RunInput{Input: "hello"}})
	require.NoError(t, err)

	out, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok: hello", out.Response)
	assert.Equal(t, "run-1", out.RunID)
}

func TestStartRun_ExecutesToolActivity(t *testing.T) {
	e := New()
	require.NoError(t, e.RegisterToolActivity(context.Background(), engine.ToolActivityDefinition{
		Name: "echo",
		Handler: func(ctx context.Context, req engine.ToolActivityRequest) (engine.ToolActivityResult, error) {
			return engine.ToolActivityResult{Content: string(req.Arguments), IsSuccess: true}, nil
		},
	}))
	require.NoError(t, e.RegisterRunWorkflow(context.Background(), engine.RunWorkflowDefinition{
		Name: "run", TaskQueue: "default",
		Handler: func(wctx engine.WorkflowContext, input engine.RunInput) (executor.RunOutput, error) {
			res, err := wctx.ExecuteToolActivity(wctx.Context(), engine.ToolActivityRequest{ToolName: "echo", Arguments: []byte(`{"a":1}`)})
			if err != nil {
				return executor.RunOutput{}, err
			}
			return executor.RunOutput{Response: res.Content, TerminationReason: executor.TerminationCompleted}, nil
		},
	}))

	h, err := e.StartRun(context.Background(), engine.RunStartRequest{ID: "run-2"})
	require.NoError(t, err)
	out, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out.Response)
}

func TestStartRun_MissingWorkflowErrors(t *testing.T) {
	e := New()
	_, err := e.StartRun(context.Background(), engine.RunStartRequest{ID: "run-3"})
	assert.Error(t, err)
}

func TestRegisterRunWorkflow_RejectsDoubleRegistration(t *testing.T) {
	e := New()
	def := engine.RunWorkflowDefinition{Name: "run", Handler: func(engine.WorkflowContext, engine.RunInput) (executor.RunOutput, error) {
		return executor.RunOutput{}, nil
	}}
	require.NoError(t, e.RegisterRunWorkflow(context.Background(), def))
	assert.Error(t, e.RegisterRunWorkflow(context.Background(), def))
}
