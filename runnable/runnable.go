// Package runnable implements the Runnable contract and the AgentTool
// adapter (spec §4.7): the glue that lets an agent be invoked as a tool of
// another agent, reusing the parent Wire and session, with depth and cycle
// guards against runaway or circular nesting.
package runnable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentcore-run/agentcore/execctx"
	"github.com/agentcore-run/agentcore/executor"
	"github.com/agentcore-run/agentcore/model"
	"github.com/agentcore-run/agentcore/pipeline"
	"github.com/agentcore-run/agentcore/step"
	"github.com/agentcore-run/agentcore/tool"
	"github.com/agentcore-run/agentcore/wire"
)

// DefaultMaxDepth bounds nested AgentTool invocations (spec §4.7).
const DefaultMaxDepth = 5

// Runnable is the small behavior interface every agent and workflow
// composition implements (spec §9's resolution of the "dynamic dispatch"
// redesign flag): the nested entry form used internally by AgentTool and by
// a top-level run_stream wrapper.
type Runnable interface {
	// ID identifies this Runnable, used as the nested_runnable_id when
	// invoked as a tool and for cycle detection.
	ID() string
	// Run executes this Runnable using the caller-supplied context and its
	// wire; it never closes the wire.
	Run(ctx context.Context, input string, execCtx *execctx.ExecutionContext, abort *tool.AbortSignal) executor.RunOutput
}

// Agent is the default Runnable: one LLM-driven agent turn loop, built from
// an AgentExecutor and a Run Lifecycle wrapper. It implements both Runnable
// entry forms from spec §4.7: Run is the nested form; RunStream is the
// top-level form built from Run plus a Wire manager.
type Agent struct {
	id        string
	systemMsg string
	cfg       executor.Config
	exec      *executor.Executor
	lifecycle *pipeline.Lifecycle
}

// NewAgent constructs an Agent identified by id, driven by exec and backed
// by lifecycle for RUN_STARTED/RUN_COMPLETED/RUN_FAILED bookkeeping.
func NewAgent(id, systemMsg string, cfg executor.Config, exec *executor.Executor, lifecycle *pipeline.Lifecycle) *Agent {
	return &Agent{id: id, systemMsg: systemMsg, cfg: cfg, exec: exec, lifecycle: lifecycle}
}

// ID implements Runnable.
func (a *Agent) ID() string { return a.id }

// Run implements the nested Runnable entry form (spec §4.7): it uses the
// supplied context and wire, never closes the wire, and writes
// RUN_STARTED/RUN_COMPLETED/RUN_FAILED around the inner AgentExecutor loop.
func (a *Agent) Run(ctx context.Context, input string, execCtx *execctx.ExecutionContext, abort *tool.AbortSignal) executor.RunOutput {
	w := execCtx.Wire()

	nested := pipeline.NestedInfo{NestedRunnableID: execCtx.NestedRunnableID(), Depth: execCtx.Depth()}
	if err := a.lifecycle.Start(ctx, w, execCtx.RunID(), execCtx.SessionID(), execCtx.ParentRunID(), input, nested); err != nil {
		return executor.RunOutput{RunID: execCtx.RunID(), SessionID: execCtx.SessionID(), TerminationReason: executor.TerminationError, Err: err}
	}

	messages := a.seedMessages(input)
	runCtx := executor.NewContext(ctx, a.cfg)
	out := a.exec.Run(runCtx, messages, execCtx, nil, abort)

	switch out.TerminationReason {
	case executor.TerminationError:
		kind := "provider_error"
		if errors.Is(out.Err, step.ErrMalformedToolCall) {
			kind = "malformed_tool_call"
		}
		_ = a.lifecycle.Fail(ctx, w, execCtx.RunID(), execCtx.SessionID(), kind, errString(out.Err))
	default:
		_ = a.lifecycle.Complete(ctx, w, execCtx.RunID(), execCtx.SessionID(), out.Response, string(out.TerminationReason), &out.Metrics)
	}
	return out
}

func (a *Agent) seedMessages(input string) []model.Message {
	var msgs []model.Message
	if a.systemMsg != "" {
		msgs = append(msgs, model.Message{Role: model.RoleSystem, Content: a.systemMsg})
	}
	msgs = append(msgs, model.Message{Role: model.RoleUser, Content: input})
	return msgs
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// RunStream is the top-level entry form (spec §4.7): it constructs a fresh
// Wire and ExecutionContext, runs the agent body on a background goroutine,
// and returns a channel that yields events until the wire closes. The
// caller is responsible for draining the returned channel to completion;
// cancelling ctx unblocks the body at its next cooperative suspension point
// (an LLM stream recv, tool invocation, or wire write) via abort.
func (a *Agent) RunStream(ctx context.Context, input, sessionID, userID string) <-chan step.Event {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	w := wire.New(wire.DefaultCapacity)
	runID := uuid.NewString()
	var opts []execctx.Option
	if userID != "" {
		opts = append(opts, execctx.WithUserID(userID))
	}
	execCtx := execctx.New(runID, sessionID, w, execctx.RunnableTypeAgent, opts...)
	abort := tool.NewAbortSignal()

	go func() {
		defer w.Close()
		done := make(chan struct{})
		go func() {
			defer close(done)
			a.Run(ctx, input, execCtx, abort)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			abort.Cancel()
			<-done
		}
	}()

	return w.Read()
}

// AgentTool adapts a Runnable as a tool (spec §4.7), so one agent can invoke
// another (or a workflow) as an ordinary tool call, transparently streaming
// the inner run's events onto the same Wire the outer run is already using.
type AgentTool struct {
	inner       Runnable
	name        string
	description string
	schema      json.RawMessage
	maxDepth    int
}

// AgentToolOption configures an AgentTool.
type AgentToolOption func(*AgentTool)

// WithName overrides the tool name exposed to the model (defaults to
// inner.ID()).
func WithName(name string) AgentToolOption { return func(t *AgentTool) { t.name = name } }

// WithDescription overrides the tool description exposed to the model.
func WithDescription(desc string) AgentToolOption { return func(t *AgentTool) { t.description = desc } }

// WithSchema overrides the default {task: string} parameters schema.
func WithSchema(schema json.RawMessage) AgentToolOption { return func(t *AgentTool) { t.schema = schema } }

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(n int) AgentToolOption { return func(t *AgentTool) { t.maxDepth = n } }

var defaultAgentToolSchema = json.RawMessage(`{
	"type": "object",
	"properties": {"task": {"type": "string", "description": "the task to delegate to the nested agent"}},
	"required": ["task"]
}`)

// NewAgentTool wraps inner so it can be registered in a tool.Registry and
// invoked by another agent's AgentExecutor.
func NewAgentTool(inner Runnable, opts ...AgentToolOption) *AgentTool {
	t := &AgentTool{inner: inner, name: inner.ID(), schema: defaultAgentToolSchema, maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name implements tool.Tool.
func (t *AgentTool) Name() string { return t.name }

// Description implements tool.Tool.
func (t *AgentTool) Description() string { return t.description }

// ParametersSchema implements tool.Tool.
func (t *AgentTool) ParametersSchema() json.RawMessage { return t.schema }

// RequiresConsent implements tool.Tool. Nested agent invocations never
// require consent themselves; any consent-gated tool inside the nested run
// is still checked independently by its own ToolExecutor.
func (t *AgentTool) RequiresConsent() bool { return false }

type taskArgs struct {
	Task string `json:"task"`
}

// Execute implements tool.Tool, running the depth guard, cycle guard, child
// context construction, and inner invocation described in spec §4.7.
func (t *AgentTool) Execute(ctx context.Context, args json.RawMessage, execCtx *execctx.ExecutionContext, abort *tool.AbortSignal) (tool.Result, error) {
	if execCtx.Depth() >= t.maxDepth {
		return tool.Result{Error: "max_depth_exceeded", Content: fmt.Sprintf("nesting depth limit (%d) reached; cannot invoke %q", t.maxDepth, t.inner.ID())}, nil
	}
	if execCtx.InCallStack(t.inner.ID()) {
		return tool.Result{Error: "cycle_detected", Content: fmt.Sprintf("invoking %q would form a cycle in the call stack", t.inner.ID())}, nil
	}

	var parsed taskArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &parsed); err != nil {
			return tool.Result{Error: "malformed_arguments", Content: "could not parse task from arguments: " + err.Error()}, nil
		}
	}

	childCtx := execCtx.Child(uuid.NewString(), t.inner.ID(), execctx.NestingToolCall, nil)
	out := t.inner.Run(ctx, parsed.Task, childCtx, abort)

	if out.TerminationReason == executor.TerminationError {
		return tool.Result{Error: "tool_execution_error", Content: "nested run failed: " + errString(out.Err)}, nil
	}
	return tool.Result{Content: out.Response, Output: out.Response, IsSuccess: true}, nil
}
