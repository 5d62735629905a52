// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/wingedpig/replayhost/internal/backend"
	"github.com/wingedpig/replayhost/internal/events"
)

// ErrSuperseded is returned when a newer generation replaced the endpoint
// while its proxy rule was being applied.
var ErrSuperseded = errors.New("endpoint superseded")

// Proxier applies a proxy rule to a network session.
type Proxier interface {
	SetProxy(ctx context.Context, rule string) error
}

// Configurator points the session at a discovered endpoint and announces
// readiness once the rule is in effect.
type Configurator struct {
	session    Proxier
	bus        events.EventBus
	generation func() uint64

	mu      sync.Mutex
	applied backend.Endpoint // last endpoint whose rule took effect
}

// NewConfigurator creates a configurator. generation returns the
// supervisor's current generation.
func NewConfigurator(session Proxier, bus events.EventBus, generation func() uint64) *Configurator {
	return &Configurator{
		session:    session,
		bus:        bus,
		generation: generation,
	}
}

// Apply routes the session through ep and, once applied, publishes
// indexing{host, source}. Applies are serialized. The session is left
// untouched if ep's generation is no longer current, and if it becomes
// stale while the rule is being set, the previous rule is restored.
func (c *Configurator) Apply(ctx context.Context, ep backend.Endpoint, source string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isCurrent(ep) {
		return fmt.Errorf("generation %d: %w", ep.Generation, ErrSuperseded)
	}

	if err := c.session.SetProxy(ctx, ep.ProxyRule()); err != nil {
		return fmt.Errorf("set proxy %s: %w", ep.ProxyRule(), err)
	}

	if !c.isCurrent(ep) {
		c.restore(ctx)
		return fmt.Errorf("generation %d: %w", ep.Generation, ErrSuperseded)
	}
	c.applied = ep

	return c.bus.Publish(ctx, events.Event{
		Type:       events.EventIndexing,
		Generation: ep.Generation,
		Payload: events.IndexingPayload{
			Host:   ep.Host(),
			Source: source,
		},
	})
}

func (c *Configurator) isCurrent(ep backend.Endpoint) bool {
	return c.generation == nil || c.generation() == ep.Generation
}

func (c *Configurator) restore(ctx context.Context) {
	if c.applied.Port == 0 {
		return
	}
	if err := c.session.SetProxy(ctx, c.applied.ProxyRule()); err != nil {
		log.Printf("Session: restoring %s: %v", c.applied.ProxyRule(), err)
	}
}
