package wire

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore-run/agentcore/step"
)

func TestWire_WriteThenReadPreservesOrder(t *testing.T) {
	w := New(4)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, w.Write(ctx, step.NewRunStarted("run-1", "sess-1", i)))
	}
	w.Close()

	var got []step.Event
	for evt := range w.Read() {
		got = append(got, evt)
	}
	require.Len(t, got, 3)
	for i, evt := range got {
		assert.Equal(t, i, evt.Data.Input)
	}
}

func TestWire_CloseIsIdempotent(t *testing.T) {
	w := New(4)
	w.Close()
	assert.NotPanics(t, func() {
		w.Close()
		w.Close()
	})
}

func TestWire_WriteAfterCloseReturnsErrClosed(t *testing.T) {
	w := New(4)
	w.Close()
	// drain so the pump goroutine's closure of out doesn't race the test.
	for range w.Read() {
	}
	err := w.Write(context.Background(), step.NewRunStarted("run-1", "sess-1", nil))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWire_ClosingDrainsEventsWrittenBeforeClose(t *testing.T) {
	w := New(8)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, w.Write(ctx, step.NewRunStarted("run-1", "sess-1", i)))
	}
	w.Close()

	var got []step.Event
	for evt := range w.Read() {
		got = append(got, evt)
	}
	assert.Len(t, got, 5)
}

func TestWire_ConcurrentWritersAllDeliver(t *testing.T) {
	w := New(16)
	ctx := context.Background()
	const producers = 8
	const perProducer = 20

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = w.Write(ctx, step.NewRunStarted("run-1", "sess-1", p*perProducer+i))
			}
		}(p)
	}

	go func() {
		wg.Wait()
		w.Close()
	}()

	count := 0
	for range w.Read() {
		count++
	}
	assert.Equal(t, producers*perProducer, count)
}

func TestWire_WriteBlocksUntilContextDone(t *testing.T) {
	w := New(1)
	ctx := context.Background()

	// First write fills the internal buffer; give the pump goroutine time
	// to dequeue it into its (blocked, nobody is draining Read) send, which
	// frees one buffer slot again.
	require.NoError(t, w.Write(ctx, step.NewRunStarted("run-1", "sess-1", "a")))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, w.Write(ctx, step.NewRunStarted("run-1", "sess-1", "b")))

	// The buffer is full again and the pump is still stuck delivering "a",
	// so a third write should block until its context is cancelled.
	cancelCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := w.Write(cancelCtx, step.NewRunStarted("run-1", "sess-1", "c"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
