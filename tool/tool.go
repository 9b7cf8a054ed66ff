// Package tool defines the Tool contract, ToolResult, a schema-validating
// Registry, and the bounded-concurrency ToolExecutor that implements the
// per-call and batch dispatch algorithm from spec §4.6.
package tool

import (
	"context"
	"encoding/json"
	"time"

	"github.com/agentcore-run/agentcore/execctx"
)

// AbortSignal is a shared one-way cancellation flag, checkable without
// suspension (spec §5). The zero value is not cancelled.
type AbortSignal struct {
	done chan struct{}
}

// NewAbortSignal constructs an unset AbortSignal.
func NewAbortSignal() *AbortSignal {
	return &AbortSignal{done: make(chan struct{})}
}

// Cancel sets the signal. Idempotent.
func (a *AbortSignal) Cancel() {
	select {
	case <-a.done:
	default:
		close(a.done)
	}
}

// Cancelled reports whether Cancel has been called, without blocking.
func (a *AbortSignal) Cancelled() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the signal is cancelled, for use in
// select statements alongside other suspension points.
func (a *AbortSignal) Done() <-chan struct{} { return a.done }

// Result is the outcome of one tool invocation (spec §4.6).
type Result struct {
	ToolName   string
	ToolCallID string
	Content    string // fed back to the model verbatim as the tool message content
	Output     any    // structured result, when available, for non-LLM consumers
	Error      string // machine-readable error kind from spec §7 ("tool_execution_error: <message>" for a failed invocation), empty on success
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	IsSuccess  bool
}

// Tool is the contract a callable implements (spec §6). Implementations
// must be concurrent-safe: the ToolExecutor dispatches batch calls
// concurrently.
type Tool interface {
	Name() string
	Description() string
	// ParametersSchema returns the tool's JSON Schema for arguments,
	// advertised to the model and used by the Registry to validate calls.
	ParametersSchema() json.RawMessage
	// RequiresConsent reports whether ToolExecutor must consult the
	// Permission Manager before invoking this tool.
	RequiresConsent() bool
	// Execute runs the tool. Implementations may create child
	// ExecutionContexts (this is how AgentTool nests a Runnable as a tool).
	Execute(ctx context.Context, args json.RawMessage, execCtx *execctx.ExecutionContext, abort *AbortSignal) (Result, error)
}
