// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"sync"
	"time"
)

// EventHistoryConfig configures event history.
type EventHistoryConfig struct {
	MaxEvents int
	MaxAge    time.Duration
}

// EventHistory keeps recently published control messages for the status API.
//
// Events are kept in publish order. A run of indexProgress messages for the
// same generation is collapsed into its latest entry, so a long sync does not
// evict the launch and indexing messages around it.
type EventHistory struct {
	mu        sync.RWMutex
	events    []Event
	maxEvents int
	maxAge    time.Duration
	matcher   *PatternMatcher
}

// NewEventHistory creates a new event history.
func NewEventHistory(cfg EventHistoryConfig) *EventHistory {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 1000
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = time.Hour
	}

	return &EventHistory{
		maxEvents: cfg.MaxEvents,
		maxAge:    cfg.MaxAge,
		matcher:   NewPatternMatcher(),
	}
}

// Add stores an event in history.
func (h *EventHistory) Add(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.events); n > 0 && supersedes(h.events[n-1], event) {
		h.events[n-1] = event
		return
	}

	h.events = append(h.events, event)
	if over := len(h.events) - h.maxEvents; over > 0 {
		h.events = append(h.events[:0], h.events[over:]...)
	}
}

func supersedes(prev, next Event) bool {
	return prev.Type == EventIndexProgress && next.Type == EventIndexProgress &&
		prev.Generation == next.Generation
}

// Query retrieves events matching filter, oldest first.
// A positive Limit keeps the most recent matches.
func (h *EventHistory) Query(filter EventFilter) ([]Event, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]Event, 0)
	for _, event := range h.events {
		if h.matches(event, filter) {
			result = append(result, event)
		}
	}

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[len(result)-filter.Limit:]
	}
	return result, nil
}

func (h *EventHistory) matches(event Event, filter EventFilter) bool {
	if filter.Generation != 0 && event.Generation != filter.Generation {
		return false
	}
	if !filter.Since.IsZero() && event.Timestamp.Before(filter.Since) {
		return false
	}
	if !filter.Until.IsZero() && event.Timestamp.After(filter.Until) {
		return false
	}
	if len(filter.Types) == 0 {
		return true
	}
	for _, pattern := range filter.Types {
		if h.matcher.Match(event.Type, pattern) {
			return true
		}
	}
	return false
}

// Prune drops events older than the configured max age.
func (h *EventHistory) Prune() {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := time.Now().Add(-h.maxAge)
	// Timestamps are assigned at publish, so the slice is ordered by time.
	i := 0
	for i < len(h.events) && h.events[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		h.events = append(h.events[:0], h.events[i:]...)
	}
}

// Len returns the number of retained events.
func (h *EventHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.events)
}

// Close releases resources.
func (h *EventHistory) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = nil
}
