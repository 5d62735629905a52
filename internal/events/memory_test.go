// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMemoryEventBus_Publish_AssignsIDAndTimestamp(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	var received Event
	_, err := bus.Subscribe("*", func(ctx context.Context, e Event) error {
		received = e
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventIndexing}))

	assert.NotEmpty(t, received.ID)
	assert.False(t, received.Timestamp.IsZero())
	assert.Equal(t, EventIndexing, received.Type)
}

func TestMemoryEventBus_Subscribe_PatternMatching(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	var count int32
	_, err := bus.Subscribe("index*", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	require.NoError(t, err)

	for _, typ := range []string{EventIndexing, EventIndexProgress, EventInitializing, EventStartupTimeout} {
		require.NoError(t, bus.Publish(context.Background(), Event{Type: typ}))
	}

	assert.Equal(t, int32(2), atomic.LoadInt32(&count))
}

func TestMemoryEventBus_Subscribe_InvalidPattern(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	_, err := bus.Subscribe("", func(ctx context.Context, e Event) error { return nil })
	assert.Error(t, err)

	_, err = bus.Subscribe("*a*", func(ctx context.Context, e Event) error { return nil })
	assert.Error(t, err)
}

func TestMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	var count int32
	id, err := bus.Subscribe("*", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	require.NoError(t, err)

	bus.Publish(context.Background(), Event{Type: EventIndexing})
	require.NoError(t, bus.Unsubscribe(id))
	bus.Publish(context.Background(), Event{Type: EventIndexing})

	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
	assert.ErrorIs(t, bus.Unsubscribe(id), ErrSubscriptionNotFound)
}

func TestMemoryEventBus_SubscribeAsync_PreservesOrder(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	received := make(chan int, 20)
	_, err := bus.SubscribeAsync(EventIndexProgress, func(ctx context.Context, e Event) error {
		received <- e.Payload.(int)
		return nil
	}, 20)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(context.Background(), Event{Type: EventIndexProgress, Payload: i}))
	}

	for i := 0; i < 10; i++ {
		select {
		case got := <-received:
			assert.Equal(t, i, got)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for event")
		}
	}
}

func TestMemoryEventBus_SubscribeAsync_BufferFull(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	block := make(chan struct{})
	var handled int32
	_, err := bus.SubscribeAsync("*", func(ctx context.Context, e Event) error {
		<-block
		atomic.AddInt32(&handled, 1)
		return nil
	}, 1)
	require.NoError(t, err)

	// Publish never blocks even when the subscriber is stuck.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(context.Background(), Event{Type: EventIndexing})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	close(block)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&handled) >= 1
	}, time.Second, 10*time.Millisecond)
	assert.Less(t, atomic.LoadInt32(&handled), int32(10))
}

func TestMemoryEventBus_HandlerErrorAndPanic(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	var after int32
	_, err := bus.Subscribe("*", func(ctx context.Context, e Event) error {
		return errors.New("boom")
	})
	require.NoError(t, err)
	_, err = bus.Subscribe("*", func(ctx context.Context, e Event) error {
		panic("bad handler")
	})
	require.NoError(t, err)
	_, err = bus.Subscribe("*", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&after, 1)
		return nil
	})
	require.NoError(t, err)

	assert.NoError(t, bus.Publish(context.Background(), Event{Type: EventError}))
	assert.Equal(t, int32(1), atomic.LoadInt32(&after))
}

func TestMemoryEventBus_History(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{HistoryMaxEvents: 10, HistoryMaxAge: time.Hour})
	defer bus.Close()

	bus.Publish(context.Background(), Event{Type: EventInitializing, Generation: 1})
	bus.Publish(context.Background(), Event{Type: EventIndexing, Generation: 2})
	bus.Publish(context.Background(), Event{Type: EventIndexProgress, Generation: 2})

	all, err := bus.History(EventFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	gen2, err := bus.History(EventFilter{Generation: 2})
	require.NoError(t, err)
	assert.Len(t, gen2, 2)

	indexing, err := bus.History(EventFilter{Types: []string{EventIndexing}})
	require.NoError(t, err)
	require.Len(t, indexing, 1)
	assert.Equal(t, uint64(2), indexing[0].Generation)
}

func TestMemoryEventBus_Close(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewMemoryEventBus(MemoryBusConfig{})
	_, err := bus.SubscribeAsync("*", func(ctx context.Context, e Event) error { return nil }, 4)
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(context.Background(), Event{Type: EventIndexing}), ErrBusClosed)
	_, err = bus.Subscribe("*", func(ctx context.Context, e Event) error { return nil })
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestMemoryEventBus_Concurrency(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{HistoryMaxEvents: 10000})
	defer bus.Close()

	var count int64
	_, err := bus.Subscribe("*", func(ctx context.Context, e Event) error {
		atomic.AddInt64(&count, 1)
		return nil
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(context.Background(), Event{Type: EventIndexProgress})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1000), atomic.LoadInt64(&count))
}
