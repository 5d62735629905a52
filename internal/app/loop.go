// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/wingedpig/replayhost/internal/backend"
	"github.com/wingedpig/replayhost/internal/datsync"
	"github.com/wingedpig/replayhost/internal/events"
	"github.com/wingedpig/replayhost/internal/proxy"
)

type eventKind int

const (
	evOpen eventKind = iota
	evSync
	evSettled
	evProxyApplied
	evBinaryChanged
	evWindowClosed
)

// hostEvent is a unit of work for the host loop.
type hostEvent struct {
	kind       eventKind
	path       string // evOpen, evBinaryChanged
	key        string // evSync
	job        datsync.Job
	generation uint64 // evProxyApplied
	err        error
}

// post queues ev for the loop. Events posted after shutdown are dropped.
func (app *App) post(ev hostEvent) {
	app.mu.RLock()
	ctx := app.runCtx
	app.mu.RUnlock()

	select {
	case app.queue <- ev:
	case <-app.done:
	case <-ctx.Done():
	}
}

// loop is the single consumer of host events and supervisor events. It
// never blocks on the backend: launches go to the launcher, proxy changes
// and sync joins run in their own goroutines and report back.
func (app *App) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-app.queue:
			app.handle(ctx, ev)
		case bev := <-app.supervisor.Events():
			app.handleBackend(ctx, bev)
		}
	}
}

func (app *App) handle(ctx context.Context, ev hostEvent) {
	switch ev.kind {
	case evOpen:
		app.syncCtrl.Cancel()
		app.publish(ctx, events.Event{
			Type:    events.EventInitializing,
			Payload: events.InitializingPayload{Src: events.SourceWARC},
		})
		app.enqueueLaunch(backend.FileLaunch(ev.path))

	case evSync:
		// Begin runs on the loop so jobs supersede each other in command
		// order and a later open-warc always sees this job.
		job, err := app.syncCtrl.Begin(ctx, ev.key)
		if err != nil {
			log.Printf("Sync: %s: %v", ev.key, err)
			return
		}
		go func() {
			if _, err := app.syncCtrl.Join(job.ID); err != nil && !errors.Is(err, datsync.ErrSuperseded) {
				log.Printf("Sync: %s: %v", ev.key, err)
			}
		}()

	case evSettled:
		if !app.syncCtrl.IsCurrent(ev.job.ID) {
			log.Printf("Sync: job %s no longer current, not launching", ev.job.ID)
			return
		}
		req := backend.CollectionLaunch(ev.job.Dir)
		req.Origin = ev.job.Key
		app.enqueueLaunch(req)

	case evProxyApplied:
		if errors.Is(ev.err, proxy.ErrSuperseded) {
			app.metrics.StaleDiscovery()
			return
		}
		if ev.err != nil {
			log.Printf("Session: generation %d: %v", ev.generation, ev.err)
			app.publish(ctx, events.Event{
				Type:       events.EventError,
				Generation: ev.generation,
				Payload:    events.ErrorPayload{Message: ev.err.Error()},
			})
		}

	case evBinaryChanged:
		log.Printf("Backend binary %s changed, refreshing version", ev.path)
		go app.probeVersion(ctx)

	case evWindowClosed:
		if err := app.supervisor.Interrupt(); err != nil {
			log.Printf("Backend: interrupt failed: %v", err)
		}
		app.Stop()
	}
}

func (app *App) handleBackend(ctx context.Context, ev backend.Event) {
	switch ev.Type {
	case backend.EventDiscovered:
		if ev.Generation != app.supervisor.Generation() {
			log.Printf("Backend: dropping port %d of stale generation %d", ev.Endpoint.Port, ev.Generation)
			app.metrics.StaleDiscovery()
			return
		}
		if st := app.supervisor.Status(); st.Generation == ev.Generation && !st.StartedAt.IsZero() {
			app.metrics.PortDiscovered(time.Since(st.StartedAt))
		}
		log.Printf("Backend: generation %d listening on port %d", ev.Generation, ev.Endpoint.Port)
		go func() {
			err := app.configurator.Apply(ctx, ev.Endpoint, ev.Origin)
			app.post(hostEvent{kind: evProxyApplied, generation: ev.Generation, err: err})
		}()

	case backend.EventStartupTimeout:
		if ev.Generation != app.supervisor.Generation() {
			return
		}
		log.Printf("Backend: generation %d: %v", ev.Generation, ev.Err)
		app.metrics.StartupTimeout()
		app.publish(ctx, events.Event{
			Type:       events.EventStartupTimeout,
			Generation: ev.Generation,
			Payload:    events.StartupTimeoutPayload{Generation: ev.Generation},
		})

	case backend.EventExited:
		log.Printf("Backend: generation %d exited with code %d", ev.Generation, ev.ExitCode)
	}
}

// enqueueLaunch hands req to the launcher. When the launcher is backed
// up the oldest pending request is discarded; only the newest matters.
func (app *App) enqueueLaunch(req backend.LaunchRequest) {
	for {
		select {
		case app.launches <- req:
			return
		default:
		}
		select {
		case dropped := <-app.launches:
			log.Printf("Backend: skipping superseded launch of %s", dropped.Source)
		default:
		}
	}
}

// launcher performs launches one at a time, in request order. A launch
// waits for the previous generation to terminate.
func (app *App) launcher(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-app.launches:
			req = app.latestLaunch(req)
			gen, err := app.supervisor.Launch(ctx, req)
			app.metrics.BackendLaunch(req.Mode.String(), err)
			app.metrics.BackendGeneration(gen)
			if err != nil {
				log.Printf("Backend: launch of %s failed: %v", req.Source, err)
				app.publish(ctx, events.Event{
					Type:       events.EventError,
					Generation: gen,
					Payload:    events.ErrorPayload{Message: err.Error()},
				})
				continue
			}
			log.Printf("Backend: generation %d launched for %s", gen, req.Source)
		}
	}
}

// latestLaunch drains queued requests and returns the newest.
func (app *App) latestLaunch(req backend.LaunchRequest) backend.LaunchRequest {
	for {
		select {
		case next := <-app.launches:
			req = next
		default:
			return req
		}
	}
}

func (app *App) publish(ctx context.Context, ev events.Event) {
	if err := app.eventBus.Publish(ctx, ev); err != nil {
		log.Printf("EventBus: publish %s: %v", ev.Type, err)
	}
}
