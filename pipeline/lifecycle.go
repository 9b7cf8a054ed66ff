package pipeline

import (
	"context"
	"time"

	"github.com/agentcore-run/agentcore/session"
	"github.com/agentcore-run/agentcore/step"
	"github.com/agentcore-run/agentcore/wire"
)

// Lifecycle implements Run Lifecycle (spec §4.4): opening a run with
// RUN_STARTED before any step event, and closing it with exactly one of
// RUN_COMPLETED or RUN_FAILED, alongside a best-effort run-metadata record
// in the Session Store.
type Lifecycle struct {
	store session.Store
}

// NestedInfo carries the nesting stamp for a RUN_STARTED event: which inner
// Runnable this run belongs to and how deep it is. Zero value describes a
// top-level run.
type NestedInfo struct {
	NestedRunnableID string
	Depth            int
}

// NewLifecycle constructs a Lifecycle backed by store.
func NewLifecycle(store session.Store) *Lifecycle {
	return &Lifecycle{store: store}
}

// Start writes RUN_STARTED and records a running Run record. It must be
// called before any STEP_DELTA/STEP_COMPLETED event for runID. nested carries
// the nested_runnable_id and depth stamped on the event alongside
// parentRunID, which the Trace Collector uses to attach this run's span under
// its parent's; pass a zero NestedInfo and an empty parentRunID at the top
// level.
func (l *Lifecycle) Start(ctx context.Context, w wire.Wire, runID, sessionID, parentRunID string, input any, nested NestedInfo) error {
	evt := step.NewRunStarted(runID, sessionID, input).WithNesting(nested.NestedRunnableID, parentRunID, nested.Depth)
	if err := w.Write(ctx, evt); err != nil {
		return err
	}
	_ = l.store.SaveRun(ctx, session.Run{
		RunID:       runID,
		SessionID:   sessionID,
		ParentRunID: parentRunID,
		Status:      session.RunStatusRunning,
		StartedAt:   time.Now(),
	})
	return nil
}

// Complete writes RUN_COMPLETED and updates the run record to completed (or
// cancelled, when terminationReason is "cancelled").
func (l *Lifecycle) Complete(ctx context.Context, w wire.Wire, runID, sessionID, output, terminationReason string, metrics *step.Metrics) error {
	status := session.RunStatusCompleted
	if terminationReason == "cancelled" {
		status = session.RunStatusCancelled
	}
	l.saveTerminal(ctx, runID, sessionID, status, terminationReason, metrics)
	return w.Write(ctx, step.NewRunCompleted(runID, sessionID, output, terminationReason, metrics))
}

// Fail writes RUN_FAILED and updates the run record to failed.
func (l *Lifecycle) Fail(ctx context.Context, w wire.Wire, runID, sessionID, errKind, errMsg string) error {
	l.saveTerminal(ctx, runID, sessionID, session.RunStatusFailed, "error", nil)
	return w.Write(ctx, step.NewRunFailed(runID, sessionID, errKind, errMsg))
}

func (l *Lifecycle) saveTerminal(ctx context.Context, runID, sessionID string, status session.RunStatus, terminationReason string, metrics *step.Metrics) {
	existing, err := l.store.GetRun(ctx, sessionID, runID)
	if err != nil {
		existing = session.Run{RunID: runID, SessionID: sessionID, StartedAt: time.Now()}
	}
	existing.Status = status
	existing.TerminationReason = terminationReason
	existing.EndedAt = time.Now()
	if metrics != nil {
		existing.Metrics = metrics
	}
	_ = l.store.SaveRun(ctx, existing)
}
