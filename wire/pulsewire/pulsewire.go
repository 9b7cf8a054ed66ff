// Package pulsewire implements wire.Wire over a goa.design/pulse stream,
// for deployments where the run's producer and its draining consumer live
// in different processes (e.g. a worker process executing the run and an
// API gateway process streaming results to a client). The in-process
// channel-backed wire.New remains the default every other package builds
// against; PulseWire is an additive transport satisfying the same
// interface, grounded on the teacher's features/stream/pulse sink/subscriber
// pair.
package pulsewire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"

	"github.com/agentcore-run/agentcore/step"
	"github.com/agentcore-run/agentcore/wire"
)

// DefaultSinkName is the Pulse consumer group used when Options.SinkName is
// unset.
const DefaultSinkName = "agentcore_wire"

// Options configures a PulseWire.
type Options struct {
	// Redis backs the Pulse stream. Required.
	Redis *redis.Client
	// StreamID names the Pulse stream this Wire reads and writes, typically
	// "run/<run_id>" so every producer and consumer of one run agree on it.
	// Required.
	StreamID string
	// SinkName identifies the Pulse consumer group. Defaults to
	// DefaultSinkName.
	SinkName string
	// StreamOptions are forwarded to streaming.NewStream.
	StreamOptions []streamopts.Stream
}

// PulseWire is a distributed wire.Wire: Write publishes a JSON-encoded
// step.Event onto a Pulse stream, and a background pump subscribes to that
// same stream via a Pulse sink, decoding and forwarding events to Read in
// arrival order, acking each after delivery.
type PulseWire struct {
	stream *streaming.Stream
	sink   *streaming.Sink

	out     chan step.Event
	closeCh chan struct{}
	once    sync.Once
	cancel  context.CancelFunc
}

// New opens (creating if necessary) the Pulse stream named by
// opts.StreamID and a consumer group sink on it, then starts the pump
// goroutine that feeds Read.
func New(ctx context.Context, opts Options) (*PulseWire, error) {
	if opts.Redis == nil {
		return nil, errors.New("pulsewire: redis client is required")
	}
	if opts.StreamID == "" {
		return nil, errors.New("pulsewire: stream id is required")
	}
	str, err := streaming.NewStream(opts.StreamID, opts.Redis, opts.StreamOptions...)
	if err != nil {
		return nil, fmt.Errorf("pulsewire: open stream %q: %w", opts.StreamID, err)
	}
	sinkName := opts.SinkName
	if sinkName == "" {
		sinkName = DefaultSinkName
	}
	sink, err := str.NewSink(ctx, sinkName)
	if err != nil {
		return nil, fmt.Errorf("pulsewire: open sink %q: %w", sinkName, err)
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	w := &PulseWire{
		stream:  str,
		sink:    sink,
		out:     make(chan step.Event),
		closeCh: make(chan struct{}),
		cancel:  cancel,
	}
	go w.pump(pumpCtx)
	return w, nil
}

// Write implements wire.Wire by publishing evt as a Pulse stream entry
// named after its event type.
func (w *PulseWire) Write(ctx context.Context, evt step.Event) error {
	select {
	case <-w.closeCh:
		return wire.ErrClosed
	default:
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("pulsewire: marshal event: %w", err)
	}
	if _, err := w.stream.Add(ctx, string(evt.Type), payload); err != nil {
		select {
		case <-w.closeCh:
			return wire.ErrClosed
		default:
		}
		return fmt.Errorf("pulsewire: publish event: %w", err)
	}
	return nil
}

// Read implements wire.Wire.
func (w *PulseWire) Read() <-chan step.Event { return w.out }

// Close implements wire.Wire: idempotent, stops the pump, and closes the
// Pulse sink.
func (w *PulseWire) Close() {
	w.once.Do(func() {
		close(w.closeCh)
		w.cancel()
		w.sink.Close(context.Background())
	})
}

// pump subscribes to the Pulse sink and forwards decoded events to out in
// arrival order, acking each only after it has been delivered to a reader.
func (w *PulseWire) pump(ctx context.Context) {
	defer close(w.out)
	ch := w.sink.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var evt step.Event
			if err := json.Unmarshal(msg.Payload, &evt); err != nil {
				continue
			}
			select {
			case w.out <- evt:
			case <-ctx.Done():
				return
			}
			_ = w.sink.Ack(ctx, msg)
		}
	}
}
