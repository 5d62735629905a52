// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events provides the in-process bus that carries host-to-UI
// control messages.
package events

import (
	"context"
	"time"
)

// Event is an immutable message published on the bus.
// Generation is the backend generation the message belongs to (0 if none).
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Timestamp  time.Time   `json:"timestamp"`
	Generation uint64      `json:"generation,omitempty"`
	Payload    interface{} `json:"payload,omitempty"`
}

// EventHandler processes received events.
type EventHandler func(ctx context.Context, event Event) error

// SubscriptionID uniquely identifies a subscription.
type SubscriptionID string

// EventFilter for querying event history.
type EventFilter struct {
	Types      []string  // Event types to match (supports trailing * globs)
	Generation uint64    // Only events of this generation (0 = any)
	Since      time.Time // Events after this time
	Until      time.Time // Events before this time
	Limit      int       // Maximum events to return (most recent kept)
}

// EventBus is the publish/subscribe interface used between the host and the
// control channel.
type EventBus interface {
	// Publish emits an event to all matching subscribers.
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a synchronous handler for events matching pattern.
	Subscribe(pattern string, handler EventHandler) (SubscriptionID, error)

	// SubscribeAsync registers a handler fed from a buffered channel.
	// Events are delivered in publish order and dropped when the buffer is full.
	SubscribeAsync(pattern string, handler EventHandler, bufferSize int) (SubscriptionID, error)

	// Unsubscribe removes a subscription.
	Unsubscribe(id SubscriptionID) error

	// History retrieves past events matching filter.
	History(filter EventFilter) ([]Event, error)

	// Close shuts down the bus and waits for async handlers to exit.
	Close() error
}

// Control message types published to the UI.
const (
	EventInitializing   = "initializing"
	EventIndexing       = "indexing"
	EventIndexProgress  = "indexProgress"
	EventStartupTimeout = "startup-timeout"
	EventError          = "error"
	EventAsyncResponse  = "async-response"
)
