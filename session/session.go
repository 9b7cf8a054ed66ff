// Package session defines the Session Store contract (spec §4.8): the
// append-only persistence interface the Step Pipeline writes through and
// that a follow-up run reads to reconstruct message history.
//
// The core ships two implementations: session/inmem (a reference
// in-process store) and session/redisstore (a Redis Streams-backed store).
// Both satisfy Store; callers may supply any implementation.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/agentcore-run/agentcore/step"
)

// RunStatus is the coarse-grained lifecycle state of one run, mirrored in
// the persisted Run record.
type RunStatus string

const (
	// RunStatusRunning indicates the run is actively executing.
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted indicates the run finished successfully.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed indicates the run ended with an uncaught error.
	RunStatusFailed RunStatus = "failed"
	// RunStatusCancelled indicates the run was cancelled externally.
	RunStatusCancelled RunStatus = "cancelled"
)

// Run is the durable run-level metadata record saved via Store.SaveRun,
// keyed by (SessionID, RunID).
type Run struct {
	// RunID uniquely identifies this run.
	RunID string
	// SessionID groups this run with every other run of the conversation.
	SessionID string
	// ParentRunID identifies the run that spawned this one as a nested
	// invocation, empty for top-level runs.
	ParentRunID string
	// Status is the run's terminal or in-flight lifecycle state.
	Status RunStatus
	// TerminationReason records why a completed run ended (spec §4.4):
	// completed, max_steps, max_tokens, cancelled, or error.
	TerminationReason string
	// StartedAt records when the run began.
	StartedAt time.Time
	// EndedAt records when the run reached a terminal status. Zero while
	// running.
	EndedAt time.Time
	// Metrics aggregates token/timing totals across the run's steps.
	Metrics *step.Metrics
}

// Errors returned by Store implementations. Concrete stores should wrap
// these with errors.Is-compatible context rather than returning opaque
// errors, so callers can branch on "not found" uniformly.
var (
	// ErrSessionNotFound indicates no steps or run records exist for a
	// session id.
	ErrSessionNotFound = errors.New("session: session not found")
	// ErrStepNotFound indicates a referenced step id does not exist.
	ErrStepNotFound = errors.New("session: step not found")
)

// Store is the append-only persistence contract for steps and run metadata
// (spec §4.8). Implementations must be safe for concurrent use: the core
// treats the store as a concurrent-safe dependency and never locks it
// itself.
//
// Consistency note (spec §4.8): the store need not be durable before the
// next step is emitted on the wire; the wire event is the live truth. A
// store outage must not fail the run, only degrade subsequent retrieval.
type Store interface {
	// SaveStep appends a committed step. It is idempotent keyed by step.ID:
	// saving the same id twice must not duplicate or reorder the session's
	// step list. Implementations must preserve insertion order within a
	// session.
	SaveStep(ctx context.Context, s *step.Step) error

	// GetSteps returns a session's steps in ascending Sequence order. When
	// sinceSequence is non-nil, only steps with Sequence > *sinceSequence are
	// returned.
	GetSteps(ctx context.Context, sessionID string, sinceSequence *int64) ([]*step.Step, error)

	// SaveRun records or updates run-level metadata, keyed by
	// (SessionID, RunID).
	SaveRun(ctx context.Context, r Run) error

	// GetRun retrieves a previously saved run record. Returns an error
	// wrapping ErrSessionNotFound if no such run exists.
	GetRun(ctx context.Context, sessionID, runID string) (Run, error)

	// DeleteStepsFrom removes every step with Sequence >= fromSequence from
	// a session, supporting retry-from-point semantics.
	DeleteStepsFrom(ctx context.Context, sessionID string, fromSequence int64) error

	// CopyStepsUntil copies every step with Sequence < untilSequence from
	// sessionID into a new session newSessionID, preserving their relative
	// order and original sequence numbers, supporting fork semantics.
	CopyStepsUntil(ctx context.Context, sessionID string, untilSequence int64, newSessionID string) error
}
