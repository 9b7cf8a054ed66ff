// Package redisstore implements session.Store on top of Redis Streams,
// giving the Step Pipeline a durable, horizontally shared append-only log
// alongside the in-process session/inmem reference implementation.
//
// Steps are stored in one Redis Stream per session
// ("agentcore:session:<id>:steps"), appended via XADD and read back via
// XRANGE, mirroring the durable-queue pattern the teacher uses for
// provider tool-result delivery in registry/result_stream.go. A companion
// hash maps step.ID to its stream entry id so SaveStep stays idempotent,
// and a plain INCR-backed counter ("agentcore:session:<id>:seq") gives the
// Step Pipeline a distributed sequence allocator via NextSequence, used
// when multiple pipeline instances share one session across processes.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentcore-run/agentcore/session"
	"github.com/agentcore-run/agentcore/step"
)

// Options configures a Store.
type Options struct {
	// Client is the Redis client used for all operations. Required.
	Client *redis.Client
	// KeyPrefix namespaces all keys this store touches. Defaults to
	// "agentcore".
	KeyPrefix string
	// MaxStreamLen trims each session's step stream to approximately this
	// many entries via XADD MAXLEN ~. Zero disables trimming.
	MaxStreamLen int64
}

// Store is a Redis-backed session.Store.
type Store struct {
	rdb       *redis.Client
	keyPrefix string
	maxLen    int64
}

// New constructs a Store. Client is required.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("redisstore: redis client is required")
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "agentcore"
	}
	return &Store{rdb: opts.Client, keyPrefix: prefix, maxLen: opts.MaxStreamLen}, nil
}

func (s *Store) stepsKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s:steps", s.keyPrefix, sessionID)
}

func (s *Store) stepIndexKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s:stepidx", s.keyPrefix, sessionID)
}

func (s *Store) runKey(sessionID, runID string) string {
	return fmt.Sprintf("%s:session:%s:run:%s", s.keyPrefix, sessionID, runID)
}

func (s *Store) seqKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s:seq", s.keyPrefix, sessionID)
}

// storedStep is the JSON-serializable mirror of step.Step persisted as the
// "payload" field of each stream entry.
type storedStep struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	RunID       string          `json:"run_id"`
	Sequence    int64           `json:"sequence"`
	Role        step.Role       `json:"role"`
	Content     string          `json:"content"`
	ToolCalls   []step.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID  string          `json:"tool_call_id,omitempty"`
	Name        string          `json:"name,omitempty"`
	Metrics     *step.Metrics   `json:"metrics,omitempty"`
	CommittedAt time.Time       `json:"committed_at"`
}

func toStored(s *step.Step) storedStep {
	return storedStep{
		ID: s.ID, SessionID: s.SessionID, RunID: s.RunID, Sequence: s.Sequence,
		Role: s.Role, Content: s.Content, ToolCalls: s.ToolCalls,
		ToolCallID: s.ToolCallID, Name: s.Name, Metrics: s.Metrics, CommittedAt: s.CommittedAt,
	}
}

func (ss storedStep) toStep() *step.Step {
	return &step.Step{
		ID: ss.ID, SessionID: ss.SessionID, RunID: ss.RunID, Sequence: ss.Sequence,
		Role: ss.Role, Content: ss.Content, ToolCalls: ss.ToolCalls,
		ToolCallID: ss.ToolCallID, Name: ss.Name, Metrics: ss.Metrics, CommittedAt: ss.CommittedAt,
	}
}

// SaveStep implements session.Store. It is idempotent keyed by step.ID: a
// repeated save of the same id removes the prior stream entry before
// appending the new one, so the session's effective step set never
// duplicates an id, though its position moves to the end of the stream.
func (s *Store) SaveStep(ctx context.Context, st *step.Step) error {
	payload, err := json.Marshal(toStored(st))
	if err != nil {
		return fmt.Errorf("redisstore: marshal step: %w", err)
	}

	idxKey := s.stepIndexKey(st.SessionID)
	if prevEntryID, err := s.rdb.HGet(ctx, idxKey, st.ID).Result(); err == nil && prevEntryID != "" {
		if err := s.rdb.XDel(ctx, s.stepsKey(st.SessionID), prevEntryID).Err(); err != nil {
			return fmt.Errorf("redisstore: remove stale step entry: %w", err)
		}
	} else if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redisstore: lookup step index: %w", err)
	}

	addArgs := &redis.XAddArgs{
		Stream: s.stepsKey(st.SessionID),
		Values: map[string]any{"payload": payload},
	}
	if s.maxLen > 0 {
		addArgs.MaxLen = s.maxLen
		addArgs.Approx = true
	}
	entryID, err := s.rdb.XAdd(ctx, addArgs).Result()
	if err != nil {
		return fmt.Errorf("redisstore: xadd step: %w", err)
	}
	if err := s.rdb.HSet(ctx, idxKey, st.ID, entryID).Err(); err != nil {
		return fmt.Errorf("redisstore: index step entry: %w", err)
	}
	return nil
}

// GetSteps implements session.Store.
func (s *Store) GetSteps(ctx context.Context, sessionID string, sinceSequence *int64) ([]*step.Step, error) {
	entries, err := s.rdb.XRange(ctx, s.stepsKey(sessionID), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: xrange steps: %w", err)
	}
	if len(entries) == 0 {
		exists, err := s.rdb.Exists(ctx, s.stepsKey(sessionID)).Result()
		if err != nil {
			return nil, fmt.Errorf("redisstore: check session existence: %w", err)
		}
		if exists == 0 {
			return nil, fmt.Errorf("%w: %s", session.ErrSessionNotFound, sessionID)
		}
	}

	out := make([]*step.Step, 0, len(entries))
	for _, e := range entries {
		raw, ok := e.Values["payload"].(string)
		if !ok {
			continue
		}
		var ss storedStep
		if err := json.Unmarshal([]byte(raw), &ss); err != nil {
			return nil, fmt.Errorf("redisstore: unmarshal step entry %s: %w", e.ID, err)
		}
		if sinceSequence != nil && ss.Sequence <= *sinceSequence {
			continue
		}
		out = append(out, ss.toStep())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

// SaveRun implements session.Store.
func (s *Store) SaveRun(ctx context.Context, r session.Run) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("redisstore: marshal run: %w", err)
	}
	if err := s.rdb.Set(ctx, s.runKey(r.SessionID, r.RunID), payload, 0).Err(); err != nil {
		return fmt.Errorf("redisstore: save run: %w", err)
	}
	return nil
}

// GetRun implements session.Store.
func (s *Store) GetRun(ctx context.Context, sessionID, runID string) (session.Run, error) {
	raw, err := s.rdb.Get(ctx, s.runKey(sessionID, runID)).Result()
	if errors.Is(err, redis.Nil) {
		return session.Run{}, fmt.Errorf("%w: run %s in session %s", session.ErrSessionNotFound, runID, sessionID)
	}
	if err != nil {
		return session.Run{}, fmt.Errorf("redisstore: get run: %w", err)
	}
	var r session.Run
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return session.Run{}, fmt.Errorf("redisstore: unmarshal run: %w", err)
	}
	return r, nil
}

// DeleteStepsFrom implements session.Store by rewriting the stream without
// the trimmed tail: Redis Streams support deleting individual entries but
// not a single range-by-score operation, so this reads the current entries,
// deletes those at or past fromSequence, and drops their index rows.
func (s *Store) DeleteStepsFrom(ctx context.Context, sessionID string, fromSequence int64) error {
	entries, err := s.rdb.XRange(ctx, s.stepsKey(sessionID), "-", "+").Result()
	if err != nil {
		return fmt.Errorf("redisstore: xrange steps: %w", err)
	}
	for _, e := range entries {
		raw, ok := e.Values["payload"].(string)
		if !ok {
			continue
		}
		var ss storedStep
		if err := json.Unmarshal([]byte(raw), &ss); err != nil {
			return fmt.Errorf("redisstore: unmarshal step entry %s: %w", e.ID, err)
		}
		if ss.Sequence < fromSequence {
			continue
		}
		if err := s.rdb.XDel(ctx, s.stepsKey(sessionID), e.ID).Err(); err != nil {
			return fmt.Errorf("redisstore: delete step entry: %w", err)
		}
		if err := s.rdb.HDel(ctx, s.stepIndexKey(sessionID), ss.ID).Err(); err != nil {
			return fmt.Errorf("redisstore: deindex step entry: %w", err)
		}
	}
	return nil
}

// CopyStepsUntil implements session.Store by re-appending the prefix of
// sessionID's stream (Sequence < untilSequence) onto newSessionID's stream,
// supporting fork semantics.
func (s *Store) CopyStepsUntil(ctx context.Context, sessionID string, untilSequence int64, newSessionID string) error {
	entries, err := s.rdb.XRange(ctx, s.stepsKey(sessionID), "-", "+").Result()
	if err != nil {
		return fmt.Errorf("redisstore: xrange steps: %w", err)
	}
	found := false
	for _, e := range entries {
		raw, ok := e.Values["payload"].(string)
		if !ok {
			continue
		}
		var ss storedStep
		if err := json.Unmarshal([]byte(raw), &ss); err != nil {
			return fmt.Errorf("redisstore: unmarshal step entry %s: %w", e.ID, err)
		}
		if ss.Sequence >= untilSequence {
			continue
		}
		found = true
		ss.SessionID = newSessionID
		st := ss.toStep()
		if err := s.SaveStep(ctx, st); err != nil {
			return fmt.Errorf("redisstore: copy step %s: %w", ss.ID, err)
		}
	}
	if !found && len(entries) == 0 {
		return fmt.Errorf("%w: %s", session.ErrSessionNotFound, sessionID)
	}
	return nil
}

// NextSequence atomically allocates the next sequence number for a session
// via INCR, giving the Step Pipeline a distributed alternative to its
// default in-process mutex/counter (spec §4.3) when multiple pipeline
// instances share a session across processes. Sequences start at 1.
func (s *Store) NextSequence(ctx context.Context, sessionID string) (int64, error) {
	n, err := s.rdb.Incr(ctx, s.seqKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redisstore: incr sequence: %w", err)
	}
	return n, nil
}
