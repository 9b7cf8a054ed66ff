// Package engine abstracts durable workflow execution so a Runnable's body
// can optionally run under a durability backend (Temporal) instead of a
// plain goroutine, without the AgentExecutor or Runnable contract knowing
// the difference (spec §9's open question: workflow/durability layers on
// top of the core, never inside it).
//
// Grounded on the teacher's runtime/agent/engine package, trimmed to the
// seam this domain actually needs: starting one durable run of an Agent and
// waiting for its RunOutput, plus registering the tool-call activity that
// backend uses to execute side effects outside the deterministic workflow
// sandbox.
package engine

import (
	"context"
	"time"

	"github.com/agentcore-run/agentcore/executor"
)

type (
	// Engine registers the run workflow and tool-call activity, then starts
	// durable run executions.
	Engine interface {
		// RegisterRunWorkflow registers the workflow that drives one Agent.Run
		// invocation to completion. Must be called once per process before
		// StartRun.
		RegisterRunWorkflow(ctx context.Context, def RunWorkflowDefinition) error

		// RegisterToolActivity registers the activity a workflow calls out to
		// for executing a single tool call (the non-deterministic side effect
		// a workflow sandbox cannot perform directly).
		RegisterToolActivity(ctx context.Context, def ToolActivityDefinition) error

		// StartRun begins a durable run execution and returns a handle.
		StartRun(ctx context.Context, req RunStartRequest) (RunHandle, error)
	}

	// RunWorkflowDefinition binds the run workflow body to a logical name and
	// task queue.
	RunWorkflowDefinition struct {
		Name      string
		TaskQueue string
		Handler   RunWorkflowFunc
	}

	// RunWorkflowFunc is the deterministic workflow entry point: given a
	// WorkflowContext and the run's seed input, it drives the run to
	// completion, performing its non-deterministic work through
	// WorkflowContext.ExecuteToolActivity, and returns the final RunOutput.
	RunWorkflowFunc func(ctx WorkflowContext, input RunInput) (executor.RunOutput, error)

	// RunInput is the durable workflow's input payload.
	RunInput struct {
		RunID     string
		SessionID string
		UserID    string
		Input     string
	}

	// WorkflowContext exposes the one non-deterministic operation a run
	// workflow needs: executing a tool call as an activity.
	WorkflowContext interface {
		Context() context.Context
		RunID() string
		ExecuteToolActivity(ctx context.Context, req ToolActivityRequest) (ToolActivityResult, error)
		Now() time.Time
	}

	// ToolActivityDefinition registers the activity handler that performs one
	// tool call's side effects outside the workflow sandbox.
	ToolActivityDefinition struct {
		Name    string
		Handler ToolActivityFunc
		Timeout time.Duration
	}

	// ToolActivityFunc executes a single tool call given its name and raw
	// JSON arguments, returning the rendered result content.
	ToolActivityFunc func(ctx context.Context, req ToolActivityRequest) (ToolActivityResult, error)

	// ToolActivityRequest carries one tool call across the workflow/activity
	// boundary.
	ToolActivityRequest struct {
		ToolCallID string
		ToolName   string
		Arguments  []byte
		UserID     string
	}

	// ToolActivityResult is the activity's durable, serializable result.
	ToolActivityResult struct {
		Content   string
		Error     string
		IsSuccess bool
	}

	// RunStartRequest describes how to launch a durable run.
	RunStartRequest struct {
		ID        string
		TaskQueue string
		Input     RunInput
	}

	// RunHandle lets a caller wait for or cancel a durable run.
	RunHandle interface {
		Wait(ctx context.Context) (executor.RunOutput, error)
		Cancel(ctx context.Context) error
	}
)
