// Package pipeline implements the Step Pipeline (spec §4.3): the sequence
// allocation, best-effort durable commit, and STEP_COMPLETED emission path
// every committed Step passes through on its way from the AgentExecutor (or
// a nested run) onto the Wire and into the Session Store.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/agentcore-run/agentcore/session"
	"github.com/agentcore-run/agentcore/step"
	"github.com/agentcore-run/agentcore/telemetry"
	"github.com/agentcore-run/agentcore/wire"
)

// Sequencer allocates the next sequence number for a session. A store that
// implements this (session/redisstore does, via INCR) lets the pipeline use
// a single authoritative counter across multiple processes sharing one
// session; otherwise the pipeline falls back to its own in-process,
// mutex-guarded per-session counter (see nextSequence).
type Sequencer interface {
	NextSequence(ctx context.Context, sessionID string) (int64, error)
}

// Pipeline assigns sequence numbers, persists committed steps, and emits
// STEP_COMPLETED events. One Pipeline is shared by a top-level run and every
// nested run beneath it, because sequence allocation must be totally
// ordered per session regardless of how many concurrent producers commit
// (spec §4.3, §5).
type Pipeline struct {
	store     session.Store
	seq       Sequencer
	logger    telemetry.Logger
	metrics   telemetry.Metrics
	mu        sync.Mutex
	fallback  map[string]int64 // sessionID -> last allocated sequence, used only when seq is nil
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSequencer overrides the default in-process sequence allocator, e.g.
// with a session/redisstore.Store for multi-process deployments.
func WithSequencer(s Sequencer) Option {
	return func(p *Pipeline) { p.seq = s }
}

// WithLogger attaches a Logger. Defaults to telemetry.NewNoopLogger.
func WithLogger(l telemetry.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics attaches a Metrics recorder. Defaults to telemetry.NewNoopMetrics.
func WithMetrics(m telemetry.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New constructs a Pipeline backed by store. If store also implements
// Sequencer it is used for sequence allocation automatically; pass
// WithSequencer to override.
func New(store session.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:    store,
		logger:   telemetry.NewNoopLogger(),
		metrics:  telemetry.NewNoopMetrics(),
		fallback: make(map[string]int64),
	}
	if seqStore, ok := store.(Sequencer); ok {
		p.seq = seqStore
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Commit assigns st.Sequence, best-effort persists it via the Session Store,
// and writes the corresponding STEP_COMPLETED event to w. It implements the
// commit algorithm of spec §4.3:
//  1. assign sequence via the authoritative per-session allocator;
//  2. persist (log and continue on failure — a store outage is not a run
//     failure, only a retrieval degradation);
//  3. write STEP_COMPLETED to the wire, which is the live source of truth
//     for the in-flight conversation.
//
// st is cloned before mutation so callers retain an unmodified reference;
// the returned *step.Step is the committed, sequence-stamped copy.
func (p *Pipeline) Commit(ctx context.Context, w wire.Wire, st *step.Step) (*step.Step, error) {
	committed := st.Clone()

	seq, err := p.nextSequence(ctx, committed.SessionID)
	if err != nil {
		return nil, err
	}
	committed.Sequence = seq
	committed.CommittedAt = time.Now()

	if err := p.store.SaveStep(ctx, committed); err != nil {
		p.logger.Warn(ctx, "pipeline: step persistence failed, continuing",
			telemetry.LogKeySessionID, committed.SessionID, telemetry.LogKeyStepID, committed.ID, telemetry.LogKeyError, err.Error())
		p.metrics.IncCounter(telemetry.MetricStepPersistFailed, 1, telemetry.LogKeySessionID, committed.SessionID)
	}

	evt := step.NewStepCompleted(committed.RunID, committed.SessionID, committed)
	if err := w.Write(ctx, evt); err != nil {
		return committed, err
	}
	p.metrics.IncCounter(telemetry.MetricStepCommitted, 1, "role", string(committed.Role))
	return committed, nil
}

// nextSequence allocates the next sequence number for sessionID, delegating
// to the configured Sequencer when present, or to an in-process
// mutex-guarded counter otherwise.
func (p *Pipeline) nextSequence(ctx context.Context, sessionID string) (int64, error) {
	if p.seq != nil {
		return p.seq.NextSequence(ctx, sessionID)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallback[sessionID]++
	return p.fallback[sessionID], nil
}
