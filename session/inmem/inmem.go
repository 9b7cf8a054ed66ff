// Package inmem provides a process-local, mutex-guarded reference
// implementation of session.Store. It is the default store used by tests
// and single-process deployments; session/redisstore provides a durable
// alternative.
package inmem

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/agentcore-run/agentcore/session"
	"github.com/agentcore-run/agentcore/step"
)

// Store is an in-memory session.Store. The zero value is not usable; use
// New.
type Store struct {
	mu    sync.Mutex
	steps map[string][]*step.Step // sessionID -> steps in insertion order
	ids   map[string]map[string]int // sessionID -> step.ID -> index into steps, for idempotent SaveStep
	runs  map[string]map[string]session.Run // sessionID -> runID -> Run
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		steps: make(map[string][]*step.Step),
		ids:   make(map[string]map[string]int),
		runs:  make(map[string]map[string]session.Run),
	}
}

// SaveStep implements session.Store.
func (s *Store) SaveStep(_ context.Context, st *step.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.ids[st.SessionID]
	if !ok {
		byID = make(map[string]int)
		s.ids[st.SessionID] = byID
	}
	if idx, exists := byID[st.ID]; exists {
		s.steps[st.SessionID][idx] = st.Clone()
		return nil
	}
	s.steps[st.SessionID] = append(s.steps[st.SessionID], st.Clone())
	byID[st.ID] = len(s.steps[st.SessionID]) - 1
	return nil
}

// GetSteps implements session.Store.
func (s *Store) GetSteps(_ context.Context, sessionID string, sinceSequence *int64) ([]*step.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, ok := s.steps[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", session.ErrSessionNotFound, sessionID)
	}
	out := make([]*step.Step, 0, len(all))
	for _, st := range all {
		if sinceSequence != nil && st.Sequence <= *sinceSequence {
			continue
		}
		out = append(out, st.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

// SaveRun implements session.Store.
func (s *Store) SaveRun(_ context.Context, r session.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byRun, ok := s.runs[r.SessionID]
	if !ok {
		byRun = make(map[string]session.Run)
		s.runs[r.SessionID] = byRun
	}
	byRun[r.RunID] = r
	return nil
}

// GetRun implements session.Store.
func (s *Store) GetRun(_ context.Context, sessionID, runID string) (session.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byRun, ok := s.runs[sessionID]
	if !ok {
		return session.Run{}, fmt.Errorf("%w: session %s", session.ErrSessionNotFound, sessionID)
	}
	r, ok := byRun[runID]
	if !ok {
		return session.Run{}, fmt.Errorf("%w: run %s", session.ErrSessionNotFound, runID)
	}
	return r, nil
}

// DeleteStepsFrom implements session.Store.
func (s *Store) DeleteStepsFrom(_ context.Context, sessionID string, fromSequence int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, ok := s.steps[sessionID]
	if !ok {
		return nil
	}
	kept := make([]*step.Step, 0, len(all))
	byID := make(map[string]int)
	for _, st := range all {
		if st.Sequence >= fromSequence {
			continue
		}
		byID[st.ID] = len(kept)
		kept = append(kept, st)
	}
	s.steps[sessionID] = kept
	s.ids[sessionID] = byID
	return nil
}

// CopyStepsUntil implements session.Store.
func (s *Store) CopyStepsUntil(_ context.Context, sessionID string, untilSequence int64, newSessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, ok := s.steps[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", session.ErrSessionNotFound, sessionID)
	}
	copied := make([]*step.Step, 0, len(all))
	byID := make(map[string]int)
	for _, st := range all {
		if st.Sequence >= untilSequence {
			continue
		}
		cp := st.Clone()
		cp.SessionID = newSessionID
		byID[cp.ID] = len(copied)
		copied = append(copied, cp)
	}
	s.steps[newSessionID] = copied
	s.ids[newSessionID] = byID
	return nil
}
