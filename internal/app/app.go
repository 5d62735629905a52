// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app wires the supervisor, session proxy, sync controller and
// control server into the running host.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/wingedpig/replayhost/internal/backend"
	"github.com/wingedpig/replayhost/internal/config"
	"github.com/wingedpig/replayhost/internal/control"
	"github.com/wingedpig/replayhost/internal/datsync"
	"github.com/wingedpig/replayhost/internal/events"
	"github.com/wingedpig/replayhost/internal/metrics"
	"github.com/wingedpig/replayhost/internal/platform"
	"github.com/wingedpig/replayhost/internal/proxy"
	"github.com/wingedpig/replayhost/internal/swarm"
	"github.com/wingedpig/replayhost/internal/watcher"
	"golang.org/x/sync/errgroup"
)

const (
	hostQueueSize   = 64
	launchQueueSize = 8
	shutdownTimeout = 30 * time.Second
)

// App is the host application container.
type App struct {
	mu sync.RWMutex

	config        *config.Config
	version       string // banner shown in the about box
	appVersion    string
	pluginPath    string
	eventBus      events.EventBus
	metrics       metrics.Recorder
	collector     *metrics.Collector
	supervisor    *backend.Supervisor
	session       *proxy.Session
	configurator  *proxy.Configurator
	syncCtrl      *datsync.Controller
	controlServer *control.Server
	binaryWatcher *watcher.BinaryWatcher

	queue    chan hostEvent
	launches chan backend.LaunchRequest
	runCtx   context.Context

	done     chan struct{}
	stopOnce sync.Once
}

// Options holds configuration options for the app.
type Options struct {
	ConfigPath string
	Host       string // overrides control.host
	Port       int    // overrides control.port; -1 picks a free port
	Debug      bool
	Version    string // host version string
}

// New creates a new App from the configuration at opts.ConfigPath.
func New(opts Options) (*App, error) {
	loader := config.NewLoader()
	cfg, err := loader.LoadWithDefaults(context.Background(), opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if opts.Host != "" {
		cfg.Control.Host = opts.Host
	}
	if opts.Port > 0 {
		cfg.Control.Port = opts.Port
	} else if opts.Port < 0 {
		cfg.Control.Port = 0
	}
	if opts.Version != "" && cfg.App.Version == "" {
		cfg.App.Version = opts.Version
	}

	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return NewWithConfig(cfg, opts.Debug)
}

// NewWithConfig creates an App from an already loaded configuration.
func NewWithConfig(cfg *config.Config, debug bool) (*App, error) {
	app := &App{
		config:     cfg,
		appVersion: cfg.App.Version,
		queue:      make(chan hostEvent, hostQueueSize),
		launches:   make(chan backend.LaunchRequest, launchQueueSize),
		runCtx:     context.Background(),
		done:       make(chan struct{}),
	}
	app.version = backend.VersionBanner(cfg.App.Name, cfg.App.Version, "")

	app.eventBus = events.NewMemoryEventBus(events.MemoryBusConfig{
		HistoryMaxEvents: cfg.Events.History.MaxEvents,
		HistoryMaxAge:    config.ParseDuration(cfg.Events.History.MaxAge, time.Hour),
	})

	app.metrics = metrics.NewNoopRecorder()
	if cfg.Control.MetricsEnabled() {
		app.collector = metrics.NewCollector("")
		app.metrics = app.collector
	}

	app.supervisor = backend.NewSupervisor(backend.Options{
		Binary:         cfg.Backend.Binary,
		WorkDir:        cfg.Backend.WorkDir,
		CacheDir:       cfg.Backend.CacheDir,
		Env:            cfg.Backend.Env,
		StopTimeout:    config.ParseDuration(cfg.Backend.StopTimeout, 5*time.Second),
		StartupTimeout: config.ParseDuration(cfg.Backend.StartupTimeout, 0),
		LogBufferSize:  cfg.Backend.LogBufferSize,
	})

	app.session = proxy.NewSession(cfg.Session.Partition, cfg.Session.Listen)
	app.configurator = proxy.NewConfigurator(app.session, app.eventBus, app.supervisor.Generation)

	network := swarm.NewNetwork(swarm.Config{
		Peers:            cfg.Sync.Peers,
		DialTimeout:      config.ParseDuration(cfg.Sync.DialTimeout, 10*time.Second),
		ProgressInterval: cfg.Sync.ProgressInterval,
	})
	app.syncCtrl = datsync.NewController(datsync.Options{
		Join:        datsync.SwarmJoiner(network),
		Bus:         app.eventBus,
		DownloadDir: cfg.Sync.DownloadDir,
		SettleDelay: config.ParseDuration(cfg.Sync.SettleDelay, datsync.DefaultSettleDelay),
		OnSettled:   func(job datsync.Job) { app.post(hostEvent{kind: evSettled, job: job}) },
		Metrics:     app.metrics,
	})

	deps := control.Dependencies{
		Bus:     app.eventBus,
		Host:    app,
		Metrics: app.metrics,
	}
	if app.collector != nil {
		deps.MetricsHandler = app.collector.Handler()
	}
	app.controlServer = control.NewServer(control.ServerConfig{
		Host:  cfg.Control.Host,
		Port:  cfg.Control.Port,
		Debug: debug,
	}, deps)

	app.pluginPath = findPlugin()

	if cfg.Watch.IsWatching() {
		debounce := config.ParseDuration(cfg.Watch.Debounce, 500*time.Millisecond)
		bw, err := watcher.NewBinaryWatcher(debounce, func(path string) {
			app.post(hostEvent{kind: evBinaryChanged, path: path})
		})
		if err != nil {
			log.Printf("Warning: failed to create binary watcher: %v", err)
		} else {
			app.binaryWatcher = bw
		}
	}

	return app, nil
}

// findPlugin returns the bundled plugin path next to the executable, or ""
// when there is none.
func findPlugin() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	path, err := platform.PluginPath(filepath.Dir(exe))
	if err != nil {
		log.Printf("Plugin: %v", err)
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// Bus returns the control message bus.
func (app *App) Bus() events.EventBus {
	return app.eventBus
}

// Supervisor returns the backend supervisor.
func (app *App) Supervisor() *backend.Supervisor {
	return app.supervisor
}

// ControlAddr returns the bound control server address once Run has started.
func (app *App) ControlAddr() string {
	return app.controlServer.Addr()
}

// SessionAddr returns the session proxy address once Run has started.
func (app *App) SessionAddr() string {
	return app.session.Addr()
}

// Run starts the app and blocks until it is stopped, ctx is cancelled or
// the process receives SIGINT/SIGTERM.
func (app *App) Run(ctx context.Context) error {
	if err := app.session.Start(ctx); err != nil {
		return err
	}
	if err := app.controlServer.Listen(); err != nil {
		app.session.Shutdown(context.Background())
		return err
	}
	if app.binaryWatcher != nil {
		if err := app.binaryWatcher.Watch(app.config.Backend.Binary); err != nil {
			log.Printf("Warning: failed to watch %s: %v", app.config.Backend.Binary, err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	app.mu.Lock()
	app.runCtx = runCtx
	app.mu.Unlock()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(app.controlServer.Serve)
	g.Go(func() error { return app.loop(gctx) })
	g.Go(func() error { return app.launcher(gctx) })
	g.Go(func() error {
		app.probeVersion(gctx)
		return nil
	})
	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			log.Printf("Received signal %v, shutting down...", sig)
		case <-gctx.Done():
			log.Printf("Context cancelled, shutting down...")
		case <-app.done:
			log.Printf("Shutdown requested...")
		}
		cancel()

		shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		if err := app.controlServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down control server: %v", err)
		}
		return nil
	})

	err := g.Wait()
	app.shutdown()
	return err
}

// shutdown force-terminates the backend and releases every component.
func (app *App) shutdown() {
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if app.binaryWatcher != nil {
		app.binaryWatcher.Close()
	}

	app.syncCtrl.Close()

	start := time.Now()
	if err := app.supervisor.Close(ctx); err != nil {
		log.Printf("Error stopping backend: %v", err)
	}
	app.metrics.BackendTermination(time.Since(start))

	if err := app.session.Shutdown(ctx); err != nil {
		log.Printf("Error shutting down session: %v", err)
	}

	app.eventBus.Close()
	log.Println("Shutdown complete")
}

// Stop signals the app to shut down. Safe to call multiple times.
func (app *App) Stop() {
	app.stopOnce.Do(func() {
		close(app.done)
	})
}

// probeVersion asks the backend for its version and refreshes the banner.
func (app *App) probeVersion(ctx context.Context) {
	v, err := backend.ProbeVersion(ctx, app.config.Backend.Binary)
	if err != nil {
		log.Printf("Backend: version probe failed: %v", err)
	}
	app.mu.Lock()
	app.version = backend.VersionBanner(app.config.App.Name, app.appVersion, v)
	app.mu.Unlock()
}
