package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestChannelPreservesProducerOrder verifies a single producer's events arrive in order.
func TestChannelPreservesProducerOrder(t *testing.T) {
	t.Parallel()

	ch := NewChannel(nil)
	for i := int64(1); i <= 5; i++ {
		ch.Emit(Advance(CategoryShareEnum, i, 0))
	}
	require.Equal(t, 5, ch.Len())

	for i := int64(1); i <= 5; i++ {
		evt, err := ch.Next(context.Background())
		require.NoError(t, err)
		require.Equal(t, i, evt.Step)
	}
	_, ok := ch.TryNext()
	require.False(t, ok)
}

// TestChannelEmitNeverBlocks asserts producers are not held back by a missing consumer.
func TestChannelEmitNeverBlocks(t *testing.T) {
	t.Parallel()

	ch := NewChannel(nil)
	start := time.Now()
	for i := 0; i < 50000; i++ {
		ch.Emit(Advance(CategoryEdgeCompute, 1, 0))
	}
	require.Less(t, time.Since(start), 2*time.Second)
	require.Equal(t, 50000, ch.Len())
}

// TestChannelNextWakesOnEmit ensures a blocked consumer observes a later emit.
func TestChannelNextWakesOnEmit(t *testing.T) {
	t.Parallel()

	ch := NewChannel(nil)
	got := make(chan Event, 1)
	go func() {
		evt, err := ch.Next(context.Background())
		if err == nil {
			got <- evt
		}
	}()

	time.Sleep(10 * time.Millisecond)
	ch.Emit(Finished(CategoryDirectoryBasic))

	select {
	case evt := <-got:
		require.Equal(t, KindFinished, evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("consumer did not wake up")
	}
}

// TestChannelNextHonorsContext checks the wait ends when the context is cancelled.
func TestChannelNextHonorsContext(t *testing.T) {
	t.Parallel()

	ch := NewChannel(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ch.Next(ctx)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
}

// TestChannelConcurrentProducers checks nothing is lost across many producers.
func TestChannelConcurrentProducers(t *testing.T) {
	t.Parallel()

	ch := NewChannel(nil)
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				ch.Emit(Advance(CategoryDirectorySD, 1, 0))
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 800, ch.Len())
}

// TestChannelDropsInvalidEvents ensures malformed payloads never reach the consumer.
func TestChannelDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	ch := NewChannel(nil)
	ch.Emit(Event{Category: CategoryShareEnum, Kind: "bogus"})
	ch.Emit(Event{Category: CategoryShareEnum, Kind: KindProgress, Step: -1})
	require.Equal(t, 0, ch.Len())

	var nilCh *Channel
	require.NotPanics(t, func() { nilCh.Emit(Finished(CategoryShareEnum)) })
}
