// Package wire implements the bounded, single-closer in-run event channel
// described in spec §4.1. A Wire delivers step.Events from one or more
// concurrent producers inside a run to exactly one draining consumer.
//
// Ownership (spec §3): the top-level caller that constructs a Wire is solely
// responsible for closing it. Nested runs (see runnable.AgentTool) receive a
// shared Wire and must never call Close.
package wire

import (
	"context"
	"errors"
	"sync"

	"github.com/agentcore-run/agentcore/step"
)

// ErrClosed is returned by Write when the wire has already been closed.
var ErrClosed = errors.New("wire: closed")

// DefaultCapacity is the channel capacity used by New when callers do not
// specify one. Spec §4.1 recommends a bound of at least 16 to provide
// backpressure against runaway token streaming.
const DefaultCapacity = 64

// Wire is a bounded, ordered, single-closer channel of step.Events.
//
// Write blocks (cooperatively suspends the calling goroutine) when the
// channel is full, providing backpressure. Read yields events in arrival
// order until the wire is closed and drained, then terminates cleanly.
// Close is idempotent and is the sole termination signal to readers.
//
// Safe for concurrent use by multiple writers and exactly one reader, the
// shape a top-level run plus its nested AgentTool invocations produce.
type Wire interface {
	// Write enqueues an event. It returns ErrClosed if the wire has already
	// been closed, in which case the event is dropped (acceptable only for
	// best-effort producers such as a tracer). Write blocks until there is
	// room in the channel, the wire closes, or ctx is done.
	Write(ctx context.Context, evt step.Event) error

	// Read returns a channel that yields events in arrival order. The channel
	// is closed once Close has been called and all events written before the
	// close observed delivery. Callers drain a run by ranging over this
	// channel.
	Read() <-chan step.Event

	// Close closes the wire. It is idempotent: subsequent calls are no-ops.
	// After Close returns, Write always returns ErrClosed for new callers,
	// though a Write already in flight when Close is called may still be
	// delivered (spec §4.1: a write racing close is a best-effort outcome,
	// never a crash).
	Close()
}

// chanWire is the default, in-process Wire implementation. Writers enqueue
// onto an internal buffered channel that is never closed (so concurrent
// Writes never race a channel close); a single internal pump goroutine
// forwards events to the public output channel and watches for Close,
// draining any remaining buffered events before closing the output channel.
type chanWire struct {
	in      chan step.Event
	out     chan step.Event
	closeCh chan struct{}
	once    sync.Once
}

// New constructs an in-process Wire with the given buffer capacity. A
// capacity <= 0 uses DefaultCapacity.
func New(capacity int) Wire {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	w := &chanWire{
		in:      make(chan step.Event, capacity),
		out:     make(chan step.Event),
		closeCh: make(chan struct{}),
	}
	go w.pump()
	return w
}

// Write implements Wire.
func (w *chanWire) Write(ctx context.Context, evt step.Event) error {
	select {
	case <-w.closeCh:
		return ErrClosed
	default:
	}
	select {
	case w.in <- evt:
		return nil
	case <-w.closeCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Read implements Wire.
func (w *chanWire) Read() <-chan step.Event {
	return w.out
}

// Close implements Wire.
func (w *chanWire) Close() {
	w.once.Do(func() { close(w.closeCh) })
}

// pump forwards buffered events from in to out in arrival order. Once
// closeCh fires it drains any events already sitting in in, then closes out,
// satisfying the "pending read consumers drain remaining events then
// terminate" contract from spec §4.1.
func (w *chanWire) pump() {
	defer close(w.out)
	for {
		select {
		case evt := <-w.in:
			w.out <- evt
		case <-w.closeCh:
			w.drain()
			return
		}
	}
}

func (w *chanWire) drain() {
	for {
		select {
		case evt := <-w.in:
			w.out <- evt
		default:
			return
		}
	}
}
