// Package execctx defines ExecutionContext, the immutable per-run descriptor
// carried through an entire run invocation: identity, the shared Wire, and
// nesting state used by AgentTool to guard depth and cycles.
//
// See spec §3 and §4.2. Grounded on the run-identity layering of
// goa-ai's runtime/agent/run.Context, adapted from a mutable workflow-side
// struct into an immutable value with structural-sharing child derivation.
package execctx

import (
	"github.com/agentcore-run/agentcore/wire"
)

// RunnableType classifies the kind of Runnable an ExecutionContext describes.
type RunnableType string

const (
	// RunnableTypeAgent identifies a single LLM-driven agent run.
	RunnableTypeAgent RunnableType = "agent"
	// RunnableTypeWorkflow identifies a workflow composition run (see the
	// workflow package).
	RunnableTypeWorkflow RunnableType = "workflow"
)

// NestingType classifies why a context was derived as a child of another.
type NestingType string

const (
	// NestingToolCall marks a child context created because an AgentTool
	// invoked a nested Runnable.
	NestingToolCall NestingType = "tool_call"
	// NestingWorkflowNode marks a child context created for a single node of
	// a workflow composition.
	NestingWorkflowNode NestingType = "workflow_node"
)

// callStackKey is the metadata key under which the nested-runnable-id call
// stack is tracked, used by AgentTool's cycle guard (spec §4.7).
const callStackKey = "_call_stack"

// ExecutionContext is the immutable descriptor of an executing Runnable.
// Callers obtain the top-level instance from New and derive children via
// Child; a context is never mutated in place, only replaced, so concurrent
// nested executions can share one safely (spec §4.2).
type ExecutionContext struct {
	runID            string
	sessionID         string
	wire              wire.Wire
	userID            string
	runnableType      RunnableType
	runnableID        string
	parentRunID       string
	nestedRunnableID  string
	nestingType       NestingType
	depth             int
	metadata          map[string]any
}

// Option configures an ExecutionContext at construction time.
type Option func(*ExecutionContext)

// WithUserID attaches an originating user identity to the context.
func WithUserID(userID string) Option {
	return func(c *ExecutionContext) { c.userID = userID }
}

// WithRunnableID records the identifier of the Runnable this context
// describes (e.g. an agent id).
func WithRunnableID(runnableID string) Option {
	return func(c *ExecutionContext) { c.runnableID = runnableID }
}

// WithMetadata seeds initial metadata entries.
func WithMetadata(metadata map[string]any) Option {
	return func(c *ExecutionContext) {
		for k, v := range metadata {
			c.metadata[k] = v
		}
	}
}

// New constructs a top-level ExecutionContext: depth 0, no parent, and the
// given run id, session id and shared Wire.
func New(runID, sessionID string, w wire.Wire, runnableType RunnableType, opts ...Option) *ExecutionContext {
	c := &ExecutionContext{
		runID:        runID,
		sessionID:    sessionID,
		wire:         w,
		runnableType: runnableType,
		depth:        0,
		metadata:     make(map[string]any),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunID returns the run identifier for this context.
func (c *ExecutionContext) RunID() string { return c.runID }

// SessionID returns the session identifier shared across every run of a
// conversation.
func (c *ExecutionContext) SessionID() string { return c.sessionID }

// Wire returns the shared Wire events should be written to. Nested contexts
// share the exact same Wire instance as their parent; only the top-level
// owner may close it.
func (c *ExecutionContext) Wire() wire.Wire { return c.wire }

// UserID returns the originating user identity, if any.
func (c *ExecutionContext) UserID() string { return c.userID }

// RunnableType reports whether this context describes an agent or a
// workflow run.
func (c *ExecutionContext) RunnableType() RunnableType { return c.runnableType }

// RunnableID returns the identifier of the Runnable this context describes.
func (c *ExecutionContext) RunnableID() string { return c.runnableID }

// ParentRunID returns the parent run's id, or "" at the top level.
func (c *ExecutionContext) ParentRunID() string { return c.parentRunID }

// NestedRunnableID returns the inner Runnable id when this context was
// derived for a nested invocation, or "" at the top level.
func (c *ExecutionContext) NestedRunnableID() string { return c.nestedRunnableID }

// NestingType returns why this context is nested, or "" at the top level.
func (c *ExecutionContext) NestingType() NestingType { return c.nestingType }

// Depth returns the nesting depth; 0 at the top level.
func (c *ExecutionContext) Depth() int { return c.depth }

// Metadata returns a read-only view of the context's metadata map. Callers
// must not mutate the returned map; use Child to extend it.
func (c *ExecutionContext) Metadata() map[string]any {
	out := make(map[string]any, len(c.metadata))
	for k, v := range c.metadata {
		out[k] = v
	}
	return out
}

// CallStack returns the chain of nested-runnable ids this context descends
// from, in invocation order, used by AgentTool's cycle guard.
func (c *ExecutionContext) CallStack() []string {
	raw, ok := c.metadata[callStackKey].([]string)
	if !ok {
		return nil
	}
	out := make([]string, len(raw))
	copy(out, raw)
	return out
}

// InCallStack reports whether runnableID already appears in the call stack,
// i.e. whether entering it again would form a cycle.
func (c *ExecutionContext) InCallStack(runnableID string) bool {
	for _, id := range c.CallStack() {
		if id == runnableID {
			return true
		}
	}
	return false
}

// Child derives a new ExecutionContext for a nested invocation (spec §4.2):
// same session id, wire, and user id; a fresh run id; parent_run_id set to
// this context's run id; depth incremented by one; and the call stack
// extended with nestedRunnableID. The parent context is left untouched.
func (c *ExecutionContext) Child(runID, nestedRunnableID string, nestingType NestingType, extraMetadata map[string]any) *ExecutionContext {
	child := &ExecutionContext{
		runID:            runID,
		sessionID:        c.sessionID,
		wire:             c.wire,
		userID:           c.userID,
		runnableType:     RunnableTypeAgent,
		runnableID:       nestedRunnableID,
		parentRunID:      c.runID,
		nestedRunnableID: nestedRunnableID,
		nestingType:      nestingType,
		depth:            c.depth + 1,
		metadata:         make(map[string]any, len(c.metadata)+len(extraMetadata)+1),
	}
	for k, v := range c.metadata {
		child.metadata[k] = v
	}
	for k, v := range extraMetadata {
		child.metadata[k] = v
	}
	stack := append(append([]string(nil), c.CallStack()...), nestedRunnableID)
	child.metadata[callStackKey] = stack
	return child
}
