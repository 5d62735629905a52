// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/wingedpig/replayhost/internal/backend"
	"github.com/wingedpig/replayhost/internal/control"
	"github.com/wingedpig/replayhost/internal/datsync"
	"github.com/wingedpig/replayhost/internal/events"
	"github.com/wingedpig/replayhost/internal/swarm"
)

// ErrUnsupportedFile is returned for files the backend cannot replay.
var ErrUnsupportedFile = errors.New("Sorry, only WARC or ARC files (.warc, .warc.gz, .arc, .arc.gz) or HAR (.har) can be opened")

var archiveSuffixes = []string{".warc", ".warc.gz", ".arc", ".arc.gz", ".har"}

// IsArchive reports whether path names a file the backend can replay.
func IsArchive(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// Status is the host status report.
type Status struct {
	Version string         `json:"version"`
	Backend backend.Status `json:"backend"`
	Proxy   string         `json:"proxy"`
	Session string         `json:"session"`
	Plugin  string         `json:"plugin,omitempty"`
	Sync    *datsync.Job   `json:"sync,omitempty"`
}

var _ control.Host = (*App)(nil)

// OpenWARC replays the archive at path, replacing the current backend.
func (app *App) OpenWARC(ctx context.Context, path string) error {
	if !IsArchive(path) {
		return ErrUnsupportedFile
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	app.post(hostEvent{kind: evOpen, path: abs})
	return nil
}

// SyncDat downloads the archive with key and replays it once complete.
func (app *App) SyncDat(ctx context.Context, key string) error {
	if _, err := swarm.ParseKey(key); err != nil {
		return err
	}
	app.post(hostEvent{kind: evSync, key: key})
	return nil
}

// AsyncResponse returns the host configuration and the backend log.
func (app *App) AsyncResponse() events.AsyncResponsePayload {
	app.mu.RLock()
	version := app.version
	app.mu.RUnlock()

	cfg := events.AsyncConfig{
		Version: version,
		Plugin:  app.pluginPath,
	}
	if ep, ok := app.supervisor.Endpoint(); ok {
		cfg.Host = ep.Host()
	}
	return events.AsyncResponsePayload{
		Config: cfg,
		Stdout: app.supervisor.Logs().Blob(),
	}
}

// WindowClosed interrupts the backend and stops the host.
func (app *App) WindowClosed() {
	app.post(hostEvent{kind: evWindowClosed})
}

// Status returns a snapshot of the host.
func (app *App) Status() interface{} {
	return app.StatusReport()
}

// StatusReport returns a typed snapshot of the host.
func (app *App) StatusReport() Status {
	app.mu.RLock()
	version := app.version
	app.mu.RUnlock()

	st := Status{
		Version: version,
		Backend: app.supervisor.Status(),
		Proxy:   app.session.ProxyRule(),
		Session: app.session.Addr(),
		Plugin:  app.pluginPath,
	}
	if job, ok := app.syncCtrl.Current(); ok {
		st.Sync = &job
	}
	return st
}
