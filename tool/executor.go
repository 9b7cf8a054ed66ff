package tool

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/agentcore-run/agentcore/execctx"
	"github.com/agentcore-run/agentcore/step"
	"github.com/agentcore-run/agentcore/telemetry"
)

// ConsentResult is returned by a PermissionManager decision (spec §6).
type ConsentResult struct {
	Allowed   bool
	Reason    string
	FromCache bool
}

// PermissionManager is the external collaborator consulted before executing
// a tool that requires consent (spec §4.6 step 3). It may suspend pending
// user input.
type PermissionManager interface {
	Check(ctx context.Context, userID, toolName string, args json.RawMessage, execCtx *execctx.ExecutionContext, timeout time.Duration) (ConsentResult, error)
}

// allowAllPermissionManager grants every request, the default when no
// PermissionManager is configured: a tool that requires consent then runs
// without a check, and the Executor is usable without a manager wired up.
type allowAllPermissionManager struct{}

func (allowAllPermissionManager) Check(context.Context, string, string, json.RawMessage, *execctx.ExecutionContext, time.Duration) (ConsentResult, error) {
	return ConsentResult{Allowed: true}, nil
}

// Executor dispatches tool calls per spec §4.6: per-call resolution,
// argument parsing, consent checks, invocation, and result capture, with
// batch calls run concurrently under a bounded limiter.
type Executor struct {
	registry    *Registry
	permissions PermissionManager
	limiter     *rate.Limiter
	maxInFlight int
	consentTimeout time.Duration
	logger      telemetry.Logger
	metrics     telemetry.Metrics
}

// Option configures an Executor.
type Option func(*Executor)

// WithPermissionManager overrides the default allow-all manager.
func WithPermissionManager(pm PermissionManager) Option {
	return func(e *Executor) { e.permissions = pm }
}

// WithMaxConcurrentToolCalls bounds how many tool calls within one batch run
// simultaneously. Grounded on the teacher's
// toolregistry/provider.Options.MaxConcurrentToolCalls. Defaults to 8.
func WithMaxConcurrentToolCalls(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxInFlight = n
		}
	}
}

// WithRateLimit bounds the sustained rate of tool invocations (calls/sec,
// burst), independent of batch-size concurrency, using
// golang.org/x/time/rate.
func WithRateLimit(callsPerSecond float64, burst int) Option {
	return func(e *Executor) { e.limiter = rate.NewLimiter(rate.Limit(callsPerSecond), burst) }
}

// WithConsentTimeout bounds how long Executor waits on a PermissionManager
// decision before treating it as denied. Defaults to 30s.
func WithConsentTimeout(d time.Duration) Option {
	return func(e *Executor) { e.consentTimeout = d }
}

// WithLogger attaches a Logger. Defaults to telemetry.NewNoopLogger.
func WithLogger(l telemetry.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithMetrics attaches a Metrics recorder. Defaults to telemetry.NewNoopMetrics.
func WithMetrics(m telemetry.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// NewExecutor constructs an Executor over registry.
func NewExecutor(registry *Registry, opts ...Option) *Executor {
	e := &Executor{
		registry:       registry,
		permissions:    allowAllPermissionManager{},
		maxInFlight:    8,
		consentTimeout: 30 * time.Second,
		logger:         telemetry.NewNoopLogger(),
		metrics:        telemetry.NewNoopMetrics(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DispatchOutcome pairs a Result with the events the caller should emit
// around it (auth required/denied), so ExecuteBatch can surface them in
// request order without the per-call goroutine writing to the wire itself.
type DispatchOutcome struct {
	Result Result
	Events []step.Event
}

// Execute runs a single tool call end to end (spec §4.6 steps 1-5).
func (e *Executor) Execute(ctx context.Context, call step.ToolCall, userID string, execCtx *execctx.ExecutionContext, abort *AbortSignal) DispatchOutcome {
	start := time.Now()

	t, ok := e.registry.Lookup(call.Name)
	if !ok {
		return DispatchOutcome{Result: failureResult(call, start, "tool_not_found", "tool not found: "+call.Name)}
	}

	var argsDoc any
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &argsDoc); err != nil {
			return DispatchOutcome{Result: failureResult(call, start, "malformed_arguments", "malformed arguments: "+err.Error())}
		}
	}
	if err := e.registry.Validate(call.Name, argsDoc); err != nil {
		return DispatchOutcome{Result: failureResult(call, start, "malformed_arguments", "arguments failed schema validation: "+err.Error())}
	}

	var events []step.Event
	if t.RequiresConsent() {
		events = append(events, step.NewToolAuthRequired(execCtx.RunID(), execCtx.SessionID(), call.ID, call.Name))
		checkCtx, cancel := context.WithTimeout(ctx, e.consentTimeout)
		consent, err := e.permissions.Check(checkCtx, userID, call.Name, call.Arguments, execCtx, e.consentTimeout)
		cancel()
		if err != nil || !consent.Allowed {
			reason := "denied"
			if err != nil {
				reason = err.Error()
			} else if consent.Reason != "" {
				reason = consent.Reason
			}
			events = append(events, step.NewToolAuthDenied(execCtx.RunID(), execCtx.SessionID(), call.ID, call.Name, reason))
			result := failureResult(call, start, "permission_denied", "tool call denied: "+reason)
			return DispatchOutcome{Result: result, Events: events}
		}
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return DispatchOutcome{Result: failureResult(call, start, "cancelled", "rate limiter wait cancelled: "+err.Error()), Events: events}
		}
	}

	result, err := t.Execute(ctx, call.Arguments, execCtx, abort)
	end := time.Now()
	result.ToolName = call.Name
	result.ToolCallID = call.ID
	result.StartTime = start
	result.EndTime = end
	result.Duration = end.Sub(start)
	if err != nil {
		result.IsSuccess = false
		if result.Error == "" {
			result.Error = "tool_execution_error: " + err.Error()
		}
		if result.Content == "" {
			result.Content = "tool execution failed: " + err.Error()
		}
	} else if result.Error == "" {
		result.IsSuccess = true
	}
	return DispatchOutcome{Result: result, Events: events}
}

// ExecuteBatch runs every call in calls concurrently, bounded by
// maxInFlight, and returns results in the same order as calls (spec §4.6:
// "Batch execution ... dispatched concurrently ... collected, and returned
// in request order"). A tool-level failure is isolated: other calls in the
// batch still complete. If abort fires mid-batch, calls not yet started are
// short-circuited to a cancelled failure result without invoking the tool.
func (e *Executor) ExecuteBatch(ctx context.Context, calls []step.ToolCall, userID string, execCtx *execctx.ExecutionContext, abort *AbortSignal) []DispatchOutcome {
	outcomes := make([]DispatchOutcome, len(calls))
	sem := make(chan struct{}, e.maxInFlight)
	var wg sync.WaitGroup

	for i, call := range calls {
		if abort.Cancelled() {
			outcomes[i] = DispatchOutcome{Result: failureResult(call, time.Now(), "cancelled", "run was cancelled before this tool call started")}
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, call step.ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = e.Execute(ctx, call, userID, execCtx, abort)
		}(i, call)
	}
	wg.Wait()

	e.metrics.IncCounter(telemetry.MetricToolBatchExecuted, 1)
	return outcomes
}

func failureResult(call step.ToolCall, start time.Time, errKind, content string) Result {
	now := time.Now()
	return Result{
		ToolName:   call.Name,
		ToolCallID: call.ID,
		Content:    content,
		Error:      errKind,
		StartTime:  start,
		EndTime:    now,
		Duration:   now.Sub(start),
		IsSuccess:  false,
	}
}
