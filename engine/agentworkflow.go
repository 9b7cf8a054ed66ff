package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/agentcore-run/agentcore/execctx"
	"github.com/agentcore-run/agentcore/executor"
	"github.com/agentcore-run/agentcore/runnable"
	"github.com/agentcore-run/agentcore/tool"
	"github.com/agentcore-run/agentcore/wire"
)

// RunAgentActivityName is the ToolActivityDefinition a workflow built by
// NewAgentRunWorkflow registers its run body under.
const RunAgentActivityName = "agentcore.run_agent"

// NewAgentRunWorkflow adapts a runnable.Agent into the (RunWorkflowDefinition,
// ToolActivityDefinition) pair an Engine needs to run it durably.
//
// An agent turn loop is inherently non-deterministic from a workflow
// replay's point of view: it streams from an LLM client, dispatches tool
// calls concurrently, and reads the wall clock. Rather than decompose every
// tool call into its own engine activity (which would require threading
// engine.WorkflowContext through AgentExecutor's tool dispatch and is out of
// scope for the narrow durability seam spec §9 calls for), the entire
// Agent.Run body — AgentExecutor, ToolExecutor, and all — executes inside
// one activity. The workflow body itself does nothing but await that single
// activity, which is what keeps it replay-safe: on workflow replay, Temporal
// only ever reads the activity's recorded result, never re-executes
// Agent.Run.
//
// agentFor resolves the runnable.Agent that should handle a given RunInput,
// so one registered workflow/activity pair can back every agent a host
// application defines rather than baking in exactly one.
func NewAgentRunWorkflow(name, taskQueue string, agentFor func(RunInput) (*runnable.Agent, error)) (RunWorkflowDefinition, ToolActivityDefinition) {
	wf := RunWorkflowDefinition{
		Name:      name,
		TaskQueue: taskQueue,
		Handler:   runAgentWorkflow,
	}
	act := ToolActivityDefinition{
		Name:    RunAgentActivityName,
		Handler: runAgentActivity(agentFor),
	}
	return wf, act
}

// runAgentWorkflow is the deterministic workflow body: marshal the run
// input, execute it as the single RunAgentActivityName activity, and
// translate the activity's flat result back into an executor.RunOutput.
func runAgentWorkflow(ctx WorkflowContext, input RunInput) (executor.RunOutput, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return executor.RunOutput{}, fmt.Errorf("engine: marshal run input: %w", err)
	}

	res, err := ctx.ExecuteToolActivity(ctx.Context(), ToolActivityRequest{
		ToolCallID: input.RunID,
		ToolName:   RunAgentActivityName,
		Arguments:  payload,
		UserID:     input.UserID,
	})
	if err != nil {
		return executor.RunOutput{
			RunID: input.RunID, SessionID: input.SessionID,
			TerminationReason: executor.TerminationError, Err: err,
		}, err
	}

	out := executor.RunOutput{RunID: input.RunID, SessionID: input.SessionID, Response: res.Content}
	if res.IsSuccess {
		out.TerminationReason = executor.TerminationCompleted
	} else {
		out.TerminationReason = executor.TerminationError
		out.Err = errors.New(res.Error)
	}
	return out, nil
}

// runAgentActivity builds the activity handler that performs the actual,
// non-deterministic agent run: a fresh Wire and ExecutionContext, draining
// the wire to completion, and collapsing the run's outcome into the flat
// ToolActivityResult shape the engine seam carries across the
// workflow/activity boundary.
func runAgentActivity(agentFor func(RunInput) (*runnable.Agent, error)) ToolActivityFunc {
	return func(ctx context.Context, req ToolActivityRequest) (ToolActivityResult, error) {
		var input RunInput
		if err := json.Unmarshal(req.Arguments, &input); err != nil {
			return ToolActivityResult{}, fmt.Errorf("engine: unmarshal run input: %w", err)
		}

		agent, err := agentFor(input)
		if err != nil {
			return ToolActivityResult{}, fmt.Errorf("engine: resolve agent for run %q: %w", input.RunID, err)
		}

		w := wire.New(wire.DefaultCapacity)
		defer w.Close()
		drained := make(chan struct{})
		go func() {
			defer close(drained)
			for range w.Read() {
			}
		}()

		var opts []execctx.Option
		if input.UserID != "" {
			opts = append(opts, execctx.WithUserID(input.UserID))
		}
		execCtx := execctx.New(input.RunID, input.SessionID, w, execctx.RunnableTypeAgent, opts...)
		abort := tool.NewAbortSignal()

		out := agent.Run(ctx, input.Input, execCtx, abort)
		w.Close()
		<-drained

		if out.TerminationReason == executor.TerminationError {
			errMsg := ""
			if out.Err != nil {
				errMsg = out.Err.Error()
			}
			return ToolActivityResult{Error: errMsg, IsSuccess: false}, nil
		}
		return ToolActivityResult{Content: out.Response, IsSuccess: true}, nil
	}
}
