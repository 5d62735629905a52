// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package watcher provides keyed debouncing and backend binary watching.
package watcher

import (
	"sync"
	"time"
)

const defaultDebounceDuration = 100 * time.Millisecond

// Debouncer provides debounced function execution.
type Debouncer struct {
	mu       sync.Mutex
	duration time.Duration
	timers   map[string]*pending
}

type pending struct {
	timer *time.Timer
}

// NewDebouncer creates a new debouncer with the given duration.
func NewDebouncer(duration time.Duration) *Debouncer {
	if duration <= 0 {
		duration = defaultDebounceDuration
	}
	return &Debouncer{
		duration: duration,
		timers:   make(map[string]*pending),
	}
}

// Debounce schedules fn to be called after the debounce duration.
// If called again with the same key before the duration elapses, the timer is reset.
func (d *Debouncer) Debounce(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, exists := d.timers[key]; exists {
		p.timer.Stop()
	}

	p := &pending{}
	p.timer = time.AfterFunc(d.duration, func() {
		d.mu.Lock()
		// A timer that fired while being replaced or cancelled must not run.
		if d.timers[key] != p {
			d.mu.Unlock()
			return
		}
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})
	d.timers[key] = p
}

// Cancel cancels a pending debounced function for the given key.
// It reports whether a pending call was cancelled.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, exists := d.timers[key]
	if !exists {
		return false
	}
	p.timer.Stop()
	delete(d.timers, key)
	return true
}

// Pending reports whether a call is scheduled for key.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, exists := d.timers[key]
	return exists
}

// Stop cancels all pending debounced functions.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, p := range d.timers {
		p.timer.Stop()
		delete(d.timers, key)
	}
}

// SetDuration changes the debounce duration for future debounces.
// Existing timers are not affected.
func (d *Debouncer) SetDuration(duration time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if duration <= 0 {
		duration = defaultDebounceDuration
	}
	d.duration = duration
}
