// Package executor implements the AgentExecutor (spec §4.5): the LLM/tool
// loop that streams a model turn, accumulates tool-call fragments, commits
// steps via the Step Pipeline, dispatches tool batches through the
// ToolExecutor, and enforces the step/token/cancellation termination
// conditions of spec §4.4.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentcore-run/agentcore/execctx"
	"github.com/agentcore-run/agentcore/model"
	"github.com/agentcore-run/agentcore/pipeline"
	"github.com/agentcore-run/agentcore/step"
	"github.com/agentcore-run/agentcore/telemetry"
	"github.com/agentcore-run/agentcore/tool"
)

// TerminationReason is the explicit, enumerated final status of a run
// (spec §4.4 and §9's redesign of exception-propagated termination into a
// plain value the lifecycle wrapper inspects).
type TerminationReason string

const (
	TerminationCompleted TerminationReason = "completed"
	TerminationMaxSteps  TerminationReason = "max_steps"
	TerminationMaxTokens TerminationReason = "max_tokens"
	TerminationCancelled TerminationReason = "cancelled"
	TerminationError     TerminationReason = "error"
)

// RunOutput is the AgentExecutor's return value (spec §4.5 step 4).
// runnable.Agent.Run inspects TerminationReason/Err to decide between
// RUN_COMPLETED and RUN_FAILED.
type RunOutput struct {
	Response          string
	RunID             string
	SessionID         string
	Metrics           step.Metrics
	TerminationReason TerminationReason
	Err               error
}

// PendingToolCalls carries an assistant step's tool calls still awaiting
// execution, for resuming a run that was interrupted mid-batch (spec §4.5
// input "pending_tool_calls").
type PendingToolCalls struct {
	AssistantStepID string
	Calls           []step.ToolCall
}

// Config bounds one AgentExecutor run.
type Config struct {
	// MaxSteps bounds the number of assistant/tool iterations. Zero means
	// unbounded.
	MaxSteps int
	// MaxTokens bounds cumulative input+output tokens across the run. Zero
	// means unbounded.
	MaxTokens int
	// TerminationSummary, when true, issues one final non-tool LLM call
	// explaining the limit and asking for a wrap-up when MaxSteps is hit
	// (spec §4.4).
	TerminationSummary bool
	// UserID is passed through to the ToolExecutor's permission checks.
	UserID string
	// Model names the model to request from the Client.
	Model string
	// Tools advertised to the model for this run.
	Tools []model.ToolDefinition
}

// Executor is the AgentExecutor.
type Executor struct {
	client   model.Client
	pipeline *pipeline.Pipeline
	tools    *tool.Executor
	logger   telemetry.Logger
	metrics  telemetry.Metrics
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger attaches a Logger. Defaults to telemetry.NewNoopLogger.
func WithLogger(l telemetry.Logger) Option { return func(e *Executor) { e.logger = l } }

// WithMetrics attaches a Metrics recorder. Defaults to telemetry.NewNoopMetrics.
func WithMetrics(m telemetry.Metrics) Option { return func(e *Executor) { e.metrics = m } }

// New constructs an AgentExecutor over an LLM client, the shared Step
// Pipeline, and a ToolExecutor.
func New(client model.Client, pl *pipeline.Pipeline, toolExec *tool.Executor, opts ...Option) *Executor {
	e := &Executor{
		client:   client,
		pipeline: pl,
		tools:    toolExec,
		logger:   telemetry.NewNoopLogger(),
		metrics:  telemetry.NewNoopMetrics(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the LLM/tool loop (spec §4.5) to completion. messages is the
// seed history (system + rendered prior steps); execCtx carries the run's
// identity and shared Wire; pending, if non-nil, is executed before the
// first model call (resume semantics). abort is checked at every loop
// boundary and is also threaded into tool dispatch.
func (e *Executor) Run(ctx context.Context, messages []model.Message, execCtx *execctx.ExecutionContext, pending *PendingToolCalls, abort *tool.AbortSignal) RunOutput {
	out := RunOutput{RunID: execCtx.RunID(), SessionID: execCtx.SessionID()}
	defer func() {
		switch out.TerminationReason {
		case TerminationCompleted:
			e.metrics.IncCounter(telemetry.MetricRunCompleted, 1)
		case TerminationError:
			e.metrics.IncCounter(telemetry.MetricRunFailed, 1)
		}
	}()
	w := execCtx.Wire()

	if pending != nil {
		msgs, metrics, err := e.runToolBatch(ctx, pending.Calls, execCtx, abort)
		if err != nil {
			out.TerminationReason = TerminationError
			out.Err = err
			return out
		}
		messages = append(messages, msgs...)
		accumulate(&out.Metrics, metrics)
	}

	var cfg Config
	if c, ok := ctx.Value(configKey{}).(Config); ok {
		cfg = c
	}

	stepCount := 0
	for {
		if abort.Cancelled() {
			out.TerminationReason = TerminationCancelled
			return out
		}
		if cfg.MaxSteps > 0 && stepCount >= cfg.MaxSteps {
			out.TerminationReason = TerminationMaxSteps
			break
		}
		if cfg.MaxTokens > 0 && out.Metrics.TotalTokens >= cfg.MaxTokens {
			out.TerminationReason = TerminationMaxTokens
			break
		}

		assistantStep, finishReason, turnMetrics, err := e.streamTurn(ctx, messages, execCtx, cfg, abort)
		if err != nil {
			out.TerminationReason = TerminationError
			out.Err = err
			return out
		}
		accumulate(&out.Metrics, turnMetrics)

		committed, err := e.pipeline.Commit(ctx, w, assistantStep)
		if err != nil {
			out.TerminationReason = TerminationError
			out.Err = err
			return out
		}
		messages = append(messages, renderAssistant(committed))

		if !committed.HasToolCalls() {
			out.Response = committed.Content
			out.TerminationReason = TerminationCompleted
			return out
		}

		if abort.Cancelled() {
			out.TerminationReason = TerminationCancelled
			return out
		}

		toolMsgs, toolMetrics, err := e.runToolBatch(ctx, committed.ToolCalls, execCtx, abort)
		if err != nil {
			out.TerminationReason = TerminationError
			out.Err = err
			return out
		}
		messages = append(messages, toolMsgs...)
		accumulate(&out.Metrics, toolMetrics)

		_ = finishReason
		stepCount++
	}

	if out.TerminationReason == TerminationMaxSteps && cfg.TerminationSummary {
		summaryStep, err := e.issueSummary(ctx, messages, execCtx, cfg)
		if err != nil {
			out.TerminationReason = TerminationError
			out.Err = err
			return out
		}
		committed, err := e.pipeline.Commit(ctx, w, summaryStep)
		if err != nil {
			out.TerminationReason = TerminationError
			out.Err = err
			return out
		}
		out.Response = committed.Content
		return out
	}

	return out
}

// configKey threads per-run Config through context without widening the
// exported Run signature; NewContext attaches it.
type configKey struct{}

// NewContext attaches cfg to ctx for a subsequent Run call.
func NewContext(ctx context.Context, cfg Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// newStepID mints a fresh step identifier, namespaced by run so IDs remain
// legible in logs even without the uuid's randomness inspected directly.
func newStepID(execCtx *execctx.ExecutionContext) string {
	return execCtx.RunID() + ":" + uuid.NewString()
}

func accumulate(total *step.Metrics, delta step.Metrics) {
	total.WallTime += delta.WallTime
	total.InputTokens += delta.InputTokens
	total.OutputTokens += delta.OutputTokens
	total.TotalTokens += delta.TotalTokens
	total.ToolExecutionTime += delta.ToolExecutionTime
	if delta.Model != "" {
		total.Model = delta.Model
	}
	if delta.Provider != "" {
		total.Provider = delta.Provider
	}
	if total.FirstTokenLatency == 0 {
		total.FirstTokenLatency = delta.FirstTokenLatency
	}
}

func renderAssistant(s *step.Step) model.Message {
	msg := model.Message{Role: model.RoleAssistant, Content: s.Content}
	for _, tc := range s.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, model.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
	}
	return msg
}

func renderTool(s *step.Step) model.Message {
	return model.Message{Role: model.RoleTool, Content: s.Content, ToolCallID: s.ToolCallID, Name: s.Name}
}

// streamTurn drives one model.Client.Stream call to completion, emitting
// STEP_DELTA events as chunks arrive and finalizing the accumulated
// assistant step (spec §4.5 steps c-f).
func (e *Executor) streamTurn(ctx context.Context, messages []model.Message, execCtx *execctx.ExecutionContext, cfg Config, abort *tool.AbortSignal) (*step.Step, string, step.Metrics, error) {
	req := model.Request{Messages: messages, Tools: cfg.Tools, Model: cfg.Model}
	streamer, err := e.client.Stream(ctx, req)
	if err != nil {
		return nil, "", step.Metrics{}, fmt.Errorf("executor: start stream: %w", err)
	}
	defer streamer.Close()

	start := time.Now()
	var content strings.Builder
	acc := step.NewToolCallAccumulator()
	var metrics step.Metrics
	var finishReason string
	firstTokenSeen := false

	for {
		if abort.Cancelled() {
			return nil, "", metrics, fmt.Errorf("executor: run cancelled mid-stream")
		}
		chunk, ok, err := streamer.Recv(ctx)
		if err != nil {
			return nil, "", metrics, fmt.Errorf("executor: stream recv: %w", err)
		}
		if !ok {
			break
		}

		switch chunk.Type {
		case model.ChunkTypeContent:
			if chunk.ContentDelta != "" {
				if !firstTokenSeen {
					metrics.FirstTokenLatency = time.Since(start)
					firstTokenSeen = true
				}
				content.WriteString(chunk.ContentDelta)
				if err := execCtx.Wire().Write(ctx, step.NewStepDelta(execCtx.RunID(), execCtx.SessionID(), step.Delta{Content: chunk.ContentDelta})); err != nil {
					return nil, "", metrics, err
				}
			}
		case model.ChunkTypeToolCallDelta:
			if chunk.ToolCallDelta != nil {
				if !firstTokenSeen {
					metrics.FirstTokenLatency = time.Since(start)
					firstTokenSeen = true
				}
				f := step.ToolCallFragment{
					Index:             chunk.ToolCallDelta.Index,
					ID:                chunk.ToolCallDelta.ID,
					Name:              chunk.ToolCallDelta.Name,
					ArgumentsFragment: chunk.ToolCallDelta.ArgumentsFragment,
				}
				acc.Add(f)
				if err := execCtx.Wire().Write(ctx, step.NewStepDelta(execCtx.RunID(), execCtx.SessionID(), step.Delta{ToolCallFragments: []step.ToolCallFragment{f}})); err != nil {
					return nil, "", metrics, err
				}
			}
		case model.ChunkTypeUsage:
			if chunk.Usage != nil {
				metrics.InputTokens = chunk.Usage.InputTokens
				metrics.OutputTokens = chunk.Usage.OutputTokens
				metrics.TotalTokens = chunk.Usage.TotalTokens
			}
		case model.ChunkTypeFinish:
			finishReason = chunk.FinishReason
		}
	}

	metrics.WallTime = time.Since(start)
	metrics.Model = cfg.Model

	toolCalls, err := acc.Finalize()
	if err != nil {
		return nil, "", metrics, fmt.Errorf("executor: %w", err)
	}

	s := &step.Step{
		ID:        newStepID(execCtx),
		SessionID: execCtx.SessionID(),
		RunID:     execCtx.RunID(),
		Role:      step.RoleAssistant,
		Content:   content.String(),
		ToolCalls: toolCalls,
		Metrics:   &metrics,
	}
	return s, finishReason, metrics, nil
}

// runToolBatch dispatches calls via the ToolExecutor, commits one tool step
// per result (spec §4.5 step h), and returns the rendered tool messages to
// append to the running conversation.
func (e *Executor) runToolBatch(ctx context.Context, calls []step.ToolCall, execCtx *execctx.ExecutionContext, abort *tool.AbortSignal) ([]model.Message, step.Metrics, error) {
	var cfg Config
	if c, ok := ctx.Value(configKey{}).(Config); ok {
		cfg = c
	}

	outcomes := e.tools.ExecuteBatch(ctx, calls, cfg.UserID, execCtx, abort)
	w := execCtx.Wire()

	var msgs []model.Message
	var metrics step.Metrics
	for i, call := range calls {
		for _, evt := range outcomes[i].Events {
			if err := w.Write(ctx, evt); err != nil {
				return nil, metrics, err
			}
		}
		r := outcomes[i].Result
		toolStep := &step.Step{
			ID:         newStepID(execCtx),
			SessionID:  execCtx.SessionID(),
			RunID:      execCtx.RunID(),
			Role:       step.RoleTool,
			Content:    r.Content,
			ToolCallID: call.ID,
			Name:       call.Name,
			Metrics:    &step.Metrics{ToolExecutionTime: r.Duration},
		}
		committed, err := e.pipeline.Commit(ctx, w, toolStep)
		if err != nil {
			return nil, metrics, err
		}
		msgs = append(msgs, renderTool(committed))
		metrics.ToolExecutionTime += r.Duration
	}
	return msgs, metrics, nil
}

// issueSummary performs the one-last, non-tool LLM call that produces the
// terminal assistant step when MaxSteps is hit and termination summaries are
// enabled (spec §4.4).
func (e *Executor) issueSummary(ctx context.Context, messages []model.Message, execCtx *execctx.ExecutionContext, cfg Config) (*step.Step, error) {
	summaryPrompt := model.Message{
		Role:    model.RoleUser,
		Content: "You have reached the step limit for this turn. Provide a concise wrap-up of what you accomplished and what remains, without calling any further tools.",
	}
	req := model.Request{
		Messages:   append(append([]model.Message{}, messages...), summaryPrompt),
		Model:      cfg.Model,
		ToolChoice: &model.ToolChoice{Mode: model.ToolChoiceNone},
	}
	resp, err := e.client.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("executor: termination summary: %w", err)
	}
	return &step.Step{
		ID:        newStepID(execCtx),
		SessionID: execCtx.SessionID(),
		RunID:     execCtx.RunID(),
		Role:      step.RoleAssistant,
		Content:   resp.Content,
		Metrics:   &step.Metrics{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens, TotalTokens: resp.Usage.TotalTokens},
	}, nil
}
