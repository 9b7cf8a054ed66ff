// Package temporalengine implements engine.Engine on top of Temporal,
// giving a run durable, replay-safe execution: the run workflow becomes a
// Temporal workflow and each ExecuteToolActivity call becomes a Temporal
// activity, so a worker crash mid-run resumes from the last completed
// activity. (engine.NewAgentRunWorkflow runs a whole Agent.Run as a single
// activity.)
//
// Adapted from the teacher's runtime/agent/engine/temporal package, trimmed
// to a single default task queue and one registered run workflow (this
// domain has one workflow shape, not a per-agent family of them).
package temporalengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	temporalotel "go.temporal.io/sdk/contrib/opentelemetry"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/agentcore-run/agentcore/engine"
	"github.com/agentcore-run/agentcore/executor"
	"github.com/agentcore-run/agentcore/telemetry"
)

// Options configures the Temporal-backed engine.
type Options struct {
	// Client is a pre-configured Temporal client. If nil, ClientOptions is
	// used to dial one.
	Client client.Client
	// ClientOptions dials a client when Client is nil.
	ClientOptions client.Options
	// TaskQueue is the default queue for the run workflow and tool activity.
	TaskQueue string
	// WorkerOptions is forwarded to worker.New.
	WorkerOptions worker.Options
	// DisableTracing skips installing the OTEL tracing interceptor.
	DisableTracing bool
	Logger         telemetry.Logger
}

// Engine implements engine.Engine using Temporal.
type Engine struct {
	client      client.Client
	closeClient bool
	taskQueue   string
	workerOpts  worker.Options
	logger      telemetry.Logger

	mu       sync.Mutex
	worker   worker.Worker
	started  bool
	workflow engine.RunWorkflowDefinition
}

// New constructs a Temporal-backed Engine.
func New(opts Options) (*Engine, error) {
	c := opts.Client
	closeClient := false
	if c == nil {
		if !opts.DisableTracing {
			tracingInterceptor, err := temporalotel.NewTracingInterceptor(temporalotel.TracerOptions{})
			if err != nil {
				return nil, fmt.Errorf("temporalengine: build tracing interceptor: %w", err)
			}
			opts.ClientOptions.Interceptors = append(opts.ClientOptions.Interceptors, tracingInterceptor)
		}
		var err error
		c, err = client.Dial(opts.ClientOptions)
		if err != nil {
			return nil, fmt.Errorf("temporalengine: dial client: %w", err)
		}
		closeClient = true
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Engine{
		client:      c,
		closeClient: closeClient,
		taskQueue:   opts.TaskQueue,
		workerOpts:  opts.WorkerOptions,
		logger:      logger,
	}, nil
}

// Close shuts down the worker (if started) and the client (if owned).
func (e *Engine) Close() {
	e.mu.Lock()
	w := e.worker
	e.mu.Unlock()
	if w != nil {
		w.Stop()
	}
	if e.closeClient {
		e.client.Close()
	}
}

// RegisterRunWorkflow registers def as the Temporal workflow executed by
// StartRun. A generic wrapper adapts engine.RunWorkflowFunc (which takes our
// WorkflowContext) to Temporal's workflow.Context.
func (e *Engine) RegisterRunWorkflow(_ context.Context, def engine.RunWorkflowDefinition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.worker == nil {
		e.worker = worker.New(e.client, e.taskQueue, e.workerOpts)
	}
	e.workflow = def
	e.worker.RegisterWorkflowWithOptions(func(ctx workflow.Context, input engine.RunInput) (executor.RunOutput, error) {
		wctx := &workflowContext{ctx: ctx, runID: input.RunID}
		return def.Handler(wctx, input)
	}, workflow.RegisterOptions{Name: def.Name})
	return nil
}

// RegisterToolActivity registers def as a Temporal activity callable from
// within the run workflow via WorkflowContext.ExecuteToolActivity.
func (e *Engine) RegisterToolActivity(_ context.Context, def engine.ToolActivityDefinition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.worker == nil {
		e.worker = worker.New(e.client, e.taskQueue, e.workerOpts)
	}
	handler := def.Handler
	e.worker.RegisterActivityWithOptions(func(ctx context.Context, req engine.ToolActivityRequest) (engine.ToolActivityResult, error) {
		return handler(ctx, req)
	}, activity.RegisterOptions{Name: def.Name})
	return nil
}

// ensureStarted lazily starts the worker on first StartRun, mirroring the
// teacher's auto-start default.
func (e *Engine) ensureStarted() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}
	if e.worker == nil {
		return fmt.Errorf("temporalengine: no workflow or activity registered")
	}
	if err := e.worker.Start(); err != nil {
		return fmt.Errorf("temporalengine: start worker: %w", err)
	}
	e.started = true
	return nil
}

// StartRun begins a durable workflow execution on Temporal.
func (e *Engine) StartRun(ctx context.Context, req engine.RunStartRequest) (engine.RunHandle, error) {
	if err := e.ensureStarted(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	name := e.workflow.Name
	e.mu.Unlock()

	taskQueue := resolveTaskQueue(req.TaskQueue, e.taskQueue)
	run, err := e.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        req.ID,
		TaskQueue: taskQueue,
	}, name, req.Input)
	if err != nil {
		return nil, fmt.Errorf("temporalengine: start workflow: %w", err)
	}
	return &runHandle{client: e.client, run: run}, nil
}

// resolveTaskQueue picks the per-request task queue when set, falling back
// to the engine's default.
func resolveTaskQueue(requested, fallback string) string {
	if requested != "" {
		return requested
	}
	return fallback
}

type runHandle struct {
	client client.Client
	run    client.WorkflowRun
}

func (h *runHandle) Wait(ctx context.Context) (executor.RunOutput, error) {
	var out executor.RunOutput
	if err := h.run.Get(ctx, &out); err != nil {
		return executor.RunOutput{}, err
	}
	return out, nil
}

func (h *runHandle) Cancel(ctx context.Context) error {
	return h.client.CancelWorkflow(ctx, h.run.GetID(), h.run.GetRunID())
}

// workflowContext adapts Temporal's workflow.Context to engine.WorkflowContext.
type workflowContext struct {
	ctx   workflow.Context
	runID string
}

func (w *workflowContext) Context() context.Context {
	// Workflow code must never use a plain context.Context for activity
	// calls; ExecuteToolActivity below uses w.ctx directly. This method
	// exists only to satisfy the interface for callers that just want a
	// cancellation signal, never for I/O.
	return context.Background()
}

func (w *workflowContext) RunID() string { return w.runID }

func (w *workflowContext) Now() time.Time { return workflow.Now(w.ctx) }

func (w *workflowContext) ExecuteToolActivity(_ context.Context, req engine.ToolActivityRequest) (engine.ToolActivityResult, error) {
	var result engine.ToolActivityResult
	err := workflow.ExecuteActivity(w.ctx, req.ToolName, req).Get(w.ctx, &result)
	return result, err
}
