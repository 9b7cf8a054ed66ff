// Package inmemengine is a non-durable, single-process engine.Engine
// implementation for local development and tests, adapted from the
// teacher's engine/inmem goroutine-per-run pattern.
package inmemengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agentcore-run/agentcore/engine"
	"github.com/agentcore-run/agentcore/executor"
)

type eng struct {
	mu         sync.RWMutex
	workflow   engine.RunWorkflowDefinition
	registered bool
	activities map[string]engine.ToolActivityDefinition
}

// New returns an in-memory engine.Engine. Not durable: a process crash loses
// every in-flight run.
func New() engine.Engine {
	return &eng{activities: make(map[string]engine.ToolActivityDefinition)}
}

func (e *eng) RegisterRunWorkflow(_ context.Context, def engine.RunWorkflowDefinition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.registered {
		return fmt.Errorf("inmemengine: run workflow already registered")
	}
	if def.Handler == nil || def.Name == "" {
		return errors.New("inmemengine: invalid workflow definition")
	}
	e.workflow = def
	e.registered = true
	return nil
}

func (e *eng) RegisterToolActivity(_ context.Context, def engine.ToolActivityDefinition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if def.Handler == nil || def.Name == "" {
		return errors.New("inmemengine: invalid activity definition")
	}
	if _, dup := e.activities[def.Name]; dup {
		return fmt.Errorf("inmemengine: activity %q already registered", def.Name)
	}
	e.activities[def.Name] = def
	return nil
}

func (e *eng) StartRun(ctx context.Context, req engine.RunStartRequest) (engine.RunHandle, error) {
	e.mu.RLock()
	def := e.workflow
	registered := e.registered
	e.mu.RUnlock()
	if !registered {
		return nil, errors.New("inmemengine: no run workflow registered")
	}
	if req.ID == "" {
		return nil, errors.New("inmemengine: run id is required")
	}

	cancelCtx, cancel := context.WithCancel(ctx)
	wctx := &workflowContext{ctx: cancelCtx, runID: req.ID, eng: e}
	h := &handle{done: make(chan struct{}), cancel: cancel}

	go func() {
		defer close(h.done)
		out, err := def.Handler(wctx, req.Input)
		h.mu.Lock()
		h.out, h.err = out, err
		h.mu.Unlock()
	}()

	return h, nil
}

type workflowContext struct {
	ctx   context.Context
	runID string
	eng   *eng
}

func (w *workflowContext) Context() context.Context { return w.ctx }
func (w *workflowContext) RunID() string            { return w.runID }
func (w *workflowContext) Now() time.Time           { return time.Now() }

func (w *workflowContext) ExecuteToolActivity(ctx context.Context, req engine.ToolActivityRequest) (engine.ToolActivityResult, error) {
	w.eng.mu.RLock()
	def, ok := w.eng.activities[req.ToolName]
	w.eng.mu.RUnlock()
	if !ok {
		return engine.ToolActivityResult{}, fmt.Errorf("inmemengine: activity %q not registered", req.ToolName)
	}
	return def.Handler(ctx, req)
}

type handle struct {
	mu     sync.Mutex
	done   chan struct{}
	cancel context.CancelFunc
	out    executor.RunOutput
	err    error
}

func (h *handle) Wait(ctx context.Context) (executor.RunOutput, error) {
	select {
	case <-ctx.Done():
		return executor.RunOutput{}, ctx.Err()
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.out, h.err
	}
}

func (h *handle) Cancel(context.Context) error {
	h.cancel()
	return nil
}
