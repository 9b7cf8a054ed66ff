// Package workflow provides a Runnable composition (Sequential) that runs
// agents in sequence without touching the core execution loop (spec §9: neither
// of the repo's workflow designs is load-bearing for AgentExecutor; a
// workflow only needs to implement Runnable to plug into AgentTool and
// run_stream exactly like a plain Agent).
package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentcore-run/agentcore/execctx"
	"github.com/agentcore-run/agentcore/executor"
	"github.com/agentcore-run/agentcore/runnable"
	"github.com/agentcore-run/agentcore/tool"
)

// Sequential runs a fixed list of Runnables in order, feeding each node's
// response as the next node's input, and returns the last node's output.
// Every node shares the caller's Wire and session, so the whole sequence
// streams onto a single event stream indistinguishable from a single agent
// doing multiple internal steps, each node's RUN_STARTED/RUN_COMPLETED
// simply nested one level deeper via execctx.Child.
type Sequential struct {
	id    string
	nodes []runnable.Runnable
}

// NewSequential builds a Sequential workflow out of nodes, executed in
// order. At least one node is required.
func NewSequential(id string, nodes ...runnable.Runnable) *Sequential {
	return &Sequential{id: id, nodes: nodes}
}

// ID implements runnable.Runnable.
func (s *Sequential) ID() string { return s.id }

// Run implements runnable.Runnable: it threads input through each node's
// Child execution context in turn, stopping early on the first node that
// terminates with an error or is cancelled.
func (s *Sequential) Run(ctx context.Context, input string, execCtx *execctx.ExecutionContext, abort *tool.AbortSignal) executor.RunOutput {
	if len(s.nodes) == 0 {
		return executor.RunOutput{
			RunID: execCtx.RunID(), SessionID: execCtx.SessionID(),
			TerminationReason: executor.TerminationError,
			Err:               fmt.Errorf("workflow: sequential %q has no nodes", s.id),
		}
	}

	current := input
	var out executor.RunOutput
	for _, node := range s.nodes {
		if abort.Cancelled() {
			return executor.RunOutput{
				RunID: execCtx.RunID(), SessionID: execCtx.SessionID(),
				TerminationReason: executor.TerminationCancelled,
			}
		}

		childCtx := execCtx.Child(uuid.NewString(), node.ID(), execctx.NestingWorkflowNode, map[string]any{
			"workflow_id": s.id,
		})
		out = node.Run(ctx, current, childCtx, abort)
		if out.TerminationReason == executor.TerminationError {
			return out
		}
		current = out.Response
	}
	return out
}
