// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventHistory_MaxEvents(t *testing.T) {
	history := NewEventHistory(EventHistoryConfig{MaxEvents: 5, MaxAge: time.Hour})
	defer history.Close()

	base := time.Now()
	for i := 0; i < 8; i++ {
		history.Add(Event{ID: string(rune('a' + i)), Type: EventIndexing, Generation: uint64(i), Timestamp: base.Add(time.Duration(i) * time.Millisecond)})
	}

	events, err := history.Query(EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 5)
	assert.Equal(t, "d", events[0].ID)
	assert.Equal(t, "h", events[4].ID)
}

func TestEventHistory_CollapsesProgress(t *testing.T) {
	history := NewEventHistory(EventHistoryConfig{MaxEvents: 3})
	defer history.Close()

	now := time.Now()
	history.Add(Event{ID: "init", Type: EventInitializing, Timestamp: now})
	for i := 0; i <= 100; i += 10 {
		history.Add(Event{ID: "p", Type: EventIndexProgress, Payload: IndexProgressPayload{Perct: i}, Timestamp: now})
	}
	history.Add(Event{ID: "ready", Type: EventIndexing, Generation: 1, Timestamp: now})

	events, err := history.Query(EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "init", events[0].ID)
	assert.Equal(t, IndexProgressPayload{Perct: 100}, events[1].Payload)
	assert.Equal(t, "ready", events[2].ID)

	// A progress run for another generation starts a new entry.
	history.Add(Event{Type: EventIndexProgress, Generation: 1, Timestamp: now})
	history.Add(Event{Type: EventIndexProgress, Generation: 2, Timestamp: now})
	assert.Equal(t, 3, history.Len())
	events, _ = history.Query(EventFilter{Types: []string{EventIndexProgress}})
	require.Len(t, events, 2)
	assert.Equal(t, uint64(2), events[1].Generation)
}

func TestEventHistory_Query_TimeRange(t *testing.T) {
	history := NewEventHistory(EventHistoryConfig{})
	defer history.Close()

	base := time.Now()
	history.Add(Event{ID: "old", Type: EventIndexing, Timestamp: base.Add(-time.Minute)})
	history.Add(Event{ID: "mid", Type: EventIndexing, Timestamp: base})
	history.Add(Event{ID: "new", Type: EventIndexing, Timestamp: base.Add(time.Minute)})

	events, err := history.Query(EventFilter{Since: base.Add(-time.Second), Until: base.Add(time.Second)})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "mid", events[0].ID)
}

func TestEventHistory_Query_LimitKeepsNewest(t *testing.T) {
	history := NewEventHistory(EventHistoryConfig{})
	defer history.Close()

	base := time.Now()
	for i := 0; i < 5; i++ {
		history.Add(Event{ID: string(rune('0' + i)), Type: EventIndexing, Timestamp: base.Add(time.Duration(i) * time.Second)})
	}

	events, err := history.Query(EventFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "3", events[0].ID)
	assert.Equal(t, "4", events[1].ID)
}

func TestEventHistory_Query_CombinedFilters(t *testing.T) {
	history := NewEventHistory(EventHistoryConfig{})
	defer history.Close()

	now := time.Now()
	history.Add(Event{Type: EventIndexing, Generation: 1, Timestamp: now})
	history.Add(Event{Type: EventIndexing, Generation: 2, Timestamp: now})
	history.Add(Event{Type: EventStartupTimeout, Generation: 2, Timestamp: now})

	events, err := history.Query(EventFilter{Types: []string{"*timeout", EventIndexing}, Generation: 2})
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestEventHistory_Prune(t *testing.T) {
	history := NewEventHistory(EventHistoryConfig{MaxEvents: 100, MaxAge: time.Minute})
	defer history.Close()

	history.Add(Event{Type: EventIndexing, Timestamp: time.Now().Add(-2 * time.Minute)})
	history.Add(Event{Type: EventIndexing, Timestamp: time.Now()})
	require.Equal(t, 2, history.Len())

	history.Prune()
	assert.Equal(t, 1, history.Len())
}

func TestEventHistory_Concurrency(t *testing.T) {
	history := NewEventHistory(EventHistoryConfig{MaxEvents: 50})
	defer history.Close()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				history.Add(Event{Type: EventIndexing, Timestamp: time.Now()})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				history.Query(EventFilter{Types: []string{"index*"}})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, history.Len())
}
