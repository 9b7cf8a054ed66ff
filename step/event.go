package step

// EventType enumerates the kinds of envelope that can cross the Wire. The
// enum is treated as extensible: downstream consumers must tolerate unknown
// values (spec §6).
type EventType string

const (
	// EventRunStarted opens a run. Exactly one is written before any other
	// event for a given RunID.
	EventRunStarted EventType = "RUN_STARTED"
	// EventStepDelta carries an ephemeral streaming Delta. Never persisted.
	EventStepDelta EventType = "STEP_DELTA"
	// EventStepCompleted carries a fully committed Step snapshot.
	EventStepCompleted EventType = "STEP_COMPLETED"
	// EventRunCompleted closes a run successfully. Exactly one RUN_COMPLETED
	// or RUN_FAILED is written per run, as the last event before the wire (or
	// the run's subsequence, when nested) is considered finished.
	EventRunCompleted EventType = "RUN_COMPLETED"
	// EventRunFailed closes a run with an uncaught error.
	EventRunFailed EventType = "RUN_FAILED"
	// EventToolAuthRequired signals that a tool call is pending operator
	// consent before it may execute.
	EventToolAuthRequired EventType = "TOOL_AUTH_REQUIRED"
	// EventToolAuthDenied signals that consent for a pending tool call was
	// denied.
	EventToolAuthDenied EventType = "TOOL_AUTH_DENIED"
)

type (
	// RunData carries the free-form payload attached to RUN_* events. Exactly
	// the fields relevant to the event Type are populated.
	RunData struct {
		// Input is the initial payload for RUN_STARTED.
		Input any `json:"input,omitempty"`
		// Output is the final assistant response for a successful RUN_COMPLETED.
		Output string `json:"output,omitempty"`
		// Metrics aggregates token/timing totals for the run.
		Metrics *Metrics `json:"metrics,omitempty"`
		// TerminationReason records why the run ended. Set on RUN_COMPLETED.
		TerminationReason string `json:"termination_reason,omitempty"`
		// Error is a human-readable failure description. Set on RUN_FAILED.
		Error string `json:"error,omitempty"`
		// ErrorKind classifies the failure per spec §7 (e.g.
		// "malformed_tool_call", "provider_error", "cancelled").
		ErrorKind string `json:"error_kind,omitempty"`
	}

	// ToolAuthData carries the payload for TOOL_AUTH_REQUIRED/TOOL_AUTH_DENIED
	// events.
	ToolAuthData struct {
		ToolCallID string `json:"tool_call_id"`
		ToolName   string `json:"tool_name"`
		Reason     string `json:"reason,omitempty"`
	}

	// Event is the envelope that flows on the Wire. Exactly one of Delta,
	// Step, Data, or ToolAuth is populated, matching Type.
	Event struct {
		// Type identifies the event kind.
		Type EventType
		// RunID identifies the run that produced this event.
		RunID string
		// SessionID identifies the session the run belongs to.
		SessionID string
		// StepID optionally identifies the step this event concerns (set on
		// STEP_DELTA and STEP_COMPLETED).
		StepID string

		// Delta is populated for STEP_DELTA.
		Delta *Delta
		// Step is populated for STEP_COMPLETED: a complete, immutable snapshot.
		Step *Step
		// Data is populated for RUN_STARTED, RUN_COMPLETED, RUN_FAILED.
		Data *RunData
		// ToolAuth is populated for TOOL_AUTH_REQUIRED/TOOL_AUTH_DENIED.
		ToolAuth *ToolAuthData

		// NestedRunnableID identifies the inner Runnable when this event
		// belongs to a nested AgentTool invocation. Empty for top-level runs.
		NestedRunnableID string
		// ParentRunID identifies the parent run when this event belongs to a
		// nested invocation. Empty for top-level runs.
		ParentRunID string
		// Depth is the nesting depth of the run that produced this event; 0 at
		// the top level.
		Depth int
	}
)

// NewRunStarted constructs a RUN_STARTED event.
func NewRunStarted(runID, sessionID string, input any) Event {
	return Event{Type: EventRunStarted, RunID: runID, SessionID: sessionID, Data: &RunData{Input: input}}
}

// NewStepDelta constructs a STEP_DELTA event.
func NewStepDelta(runID, sessionID string, delta Delta) Event {
	return Event{Type: EventStepDelta, RunID: runID, SessionID: sessionID, Delta: &delta}
}

// NewStepCompleted constructs a STEP_COMPLETED event from a committed Step.
func NewStepCompleted(runID, sessionID string, s *Step) Event {
	return Event{Type: EventStepCompleted, RunID: runID, SessionID: sessionID, StepID: s.ID, Step: s}
}

// NewRunCompleted constructs a RUN_COMPLETED event.
func NewRunCompleted(runID, sessionID, output, terminationReason string, metrics *Metrics) Event {
	return Event{
		Type:      EventRunCompleted,
		RunID:     runID,
		SessionID: sessionID,
		Data: &RunData{
			Output:            output,
			Metrics:           metrics,
			TerminationReason: terminationReason,
		},
	}
}

// NewRunFailed constructs a RUN_FAILED event.
func NewRunFailed(runID, sessionID, errKind, errMsg string) Event {
	return Event{
		Type:      EventRunFailed,
		RunID:     runID,
		SessionID: sessionID,
		Data:      &RunData{Error: errMsg, ErrorKind: errKind},
	}
}

// NewToolAuthRequired constructs a TOOL_AUTH_REQUIRED event.
func NewToolAuthRequired(runID, sessionID, toolCallID, toolName string) Event {
	return Event{
		Type:      EventToolAuthRequired,
		RunID:     runID,
		SessionID: sessionID,
		ToolAuth:  &ToolAuthData{ToolCallID: toolCallID, ToolName: toolName},
	}
}

// NewToolAuthDenied constructs a TOOL_AUTH_DENIED event.
func NewToolAuthDenied(runID, sessionID, toolCallID, toolName, reason string) Event {
	return Event{
		Type:      EventToolAuthDenied,
		RunID:     runID,
		SessionID: sessionID,
		ToolAuth:  &ToolAuthData{ToolCallID: toolCallID, ToolName: toolName, Reason: reason},
	}
}

// WithNesting returns a copy of e stamped with nesting metadata, used by
// nested runs so a single shared wire lets consumers distinguish subtrees by
// RunID/ParentRunID/Depth (spec §4.7).
func (e Event) WithNesting(nestedRunnableID, parentRunID string, depth int) Event {
	e.NestedRunnableID = nestedRunnableID
	e.ParentRunID = parentRunID
	e.Depth = depth
	return e
}
