package step

import (
	"encoding/json"
	"fmt"
)

type (
	// Delta is an incremental update produced while a model streams an
	// assistant turn. Deltas are ephemeral: they are never persisted and exist
	// only to drive STEP_DELTA events for UI consumers.
	Delta struct {
		// Content is a content chunk to append to the in-flight step, if any.
		Content string
		// ToolCallFragments carries partial tool-call data for this chunk,
		// addressed by the provider's accumulating index.
		ToolCallFragments []ToolCallFragment
	}

	// ToolCallFragment is a single piece of a streamed tool call, addressed by
	// Index. Providers deliver tool calls as sparse indexed fragments: some
	// fragments set ID/Name, others only extend Arguments.
	ToolCallFragment struct {
		// Index addresses the accumulating tool call slot within the turn.
		Index int
		// ID is set once the provider assigns a call identifier. Empty when
		// this fragment only carries an arguments extension.
		ID string
		// Name is set once the provider names the tool. Empty when this
		// fragment only carries an arguments extension.
		Name string
		// ArgumentsFragment is a raw string fragment to append to the
		// accumulating arguments buffer for Index. It is not guaranteed to be
		// valid JSON on its own.
		ArgumentsFragment string
	}

	// ToolCallAccumulator assembles streamed ToolCallFragments into complete
	// ToolCalls, implementing the accumulation rule from spec §4.5: fragments
	// with only Arguments extend the string; fragments with ID or Name set the
	// corresponding field, and only when it was previously unset (last-writer
	// wins only for an empty field).
	ToolCallAccumulator struct {
		order []int
		slots map[int]*accumulatingCall
	}

	accumulatingCall struct {
		id   string
		name string
		args []byte
	}
)

// NewToolCallAccumulator constructs an empty accumulator.
func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{slots: make(map[int]*accumulatingCall)}
}

// Add merges a single fragment into the accumulator.
func (a *ToolCallAccumulator) Add(f ToolCallFragment) {
	slot, ok := a.slots[f.Index]
	if !ok {
		slot = &accumulatingCall{}
		a.slots[f.Index] = slot
		a.order = append(a.order, f.Index)
	}
	if f.ID != "" && slot.id == "" {
		slot.id = f.ID
	}
	if f.Name != "" && slot.name == "" {
		slot.name = f.Name
	}
	if f.ArgumentsFragment != "" {
		slot.args = append(slot.args, f.ArgumentsFragment...)
	}
}

// Len reports the number of distinct tool-call slots observed so far.
func (a *ToolCallAccumulator) Len() int {
	return len(a.order)
}

// Finalize parses every accumulated slot's argument buffer into a ToolCall,
// in the order slots were first observed. It returns an error identifying the
// first incomplete or malformed call (missing ID, missing Name, or arguments
// that do not parse as JSON), corresponding to the malformed_tool_call error
// kind from spec §7.
func (a *ToolCallAccumulator) Finalize() ([]ToolCall, error) {
	calls := make([]ToolCall, 0, len(a.order))
	for _, idx := range a.order {
		slot := a.slots[idx]
		if slot.id == "" {
			return nil, fmt.Errorf("%w: tool call at index %d missing id", ErrMalformedToolCall, idx)
		}
		if slot.name == "" {
			return nil, fmt.Errorf("%w: tool call %q missing name", ErrMalformedToolCall, slot.id)
		}
		raw := slot.args
		if len(raw) == 0 {
			raw = []byte("{}")
		}
		if !json.Valid(raw) {
			return nil, fmt.Errorf("%w: tool call %q arguments are not valid json", ErrMalformedToolCall, slot.id)
		}
		calls = append(calls, ToolCall{ID: slot.id, Name: slot.name, Arguments: json.RawMessage(raw)})
	}
	return calls, nil
}

// ErrMalformedToolCall is returned by Finalize when a streamed tool call is
// incomplete or carries unparsable arguments at step-finalization time. The
// caller surfaces this as a RUN_FAILED event with kind malformed_tool_call.
var ErrMalformedToolCall = malformedToolCallError{}

type malformedToolCallError struct{}

func (malformedToolCallError) Error() string { return "malformed tool call" }
