// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package backend supervises the replay backend process: it launches it,
// collects its output, discovers the port it listens on and retires it.
package backend

import (
	"errors"
	"fmt"
	"time"
)

// ErrSpawn is returned when the backend binary cannot be started.
var ErrSpawn = errors.New("spawn backend")

// ErrStillRunning is returned when a generation survives termination.
var ErrStillRunning = errors.New("backend still running")

// ErrStartupTimeout is reported when a generation never announces its port.
var ErrStartupTimeout = errors.New("backend did not report a port")

// State is the lifecycle state of the current generation.
type State int

const (
	StateIdle State = iota
	StateLaunching
	StateRunning
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLaunching:
		return "launching"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler to output the string representation.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Mode selects the backend argument vector.
type Mode int

const (
	// ModeFile replays a single archive file.
	ModeFile Mode = iota
	// ModeCollection replays a synced collection directory.
	ModeCollection
)

func (m Mode) String() string {
	if m == ModeCollection {
		return "collection"
	}
	return "file"
}

// LaunchRequest describes what the backend should serve.
type LaunchRequest struct {
	Mode   Mode
	Source string // archive file or collection directory
	Origin string // what the user opened, reported back as the indexing source
}

// IndexSource returns the value reported to the UI once the backend is ready.
func (r LaunchRequest) IndexSource() string {
	if r.Origin != "" {
		return r.Origin
	}
	return r.Source
}

// FileLaunch returns a request to replay a single archive.
func FileLaunch(path string) LaunchRequest {
	return LaunchRequest{Mode: ModeFile, Source: path}
}

// CollectionLaunch returns a request to replay a collection directory.
func CollectionLaunch(dir string) LaunchRequest {
	return LaunchRequest{Mode: ModeCollection, Source: dir}
}

// Args returns the backend command line for the request.
func (r LaunchRequest) Args(cacheDir string) []string {
	args := []string{"--no-browser", "--loglevel", "error", "--cache-dir", cacheDir, "--port", "0"}
	if r.Mode == ModeCollection {
		return append(args, "--coll-dir", r.Source)
	}
	return append(args, r.Source)
}

// Endpoint is the port a generation announced. It is set at most once per
// generation and never changes afterwards.
type Endpoint struct {
	Port       int    `json:"port"`
	Generation uint64 `json:"generation"`
}

// Host returns the backend URL for the endpoint.
func (e Endpoint) Host() string {
	return fmt.Sprintf("http://localhost:%d/", e.Port)
}

// ProxyRule returns the proxy rule that routes a session through the endpoint.
func (e Endpoint) ProxyRule() string {
	return fmt.Sprintf("localhost:%d", e.Port)
}

// Status is a snapshot of the supervisor.
type Status struct {
	State      State     `json:"state"`
	Generation uint64    `json:"generation"`
	PID        int       `json:"pid,omitempty"`
	Mode       string    `json:"mode,omitempty"`
	Source     string    `json:"source,omitempty"`
	Origin     string    `json:"origin,omitempty"`
	Endpoint   *Endpoint `json:"endpoint,omitempty"`
	Detached   bool      `json:"detached,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	ExitCode   int       `json:"exit_code"`
}

// EventType identifies supervisor events.
type EventType int

const (
	// EventDiscovered carries the endpoint of a generation.
	EventDiscovered EventType = iota
	// EventStartupTimeout reports a generation that never announced a port.
	EventStartupTimeout
	// EventExited reports that a generation's process exited.
	EventExited
)

func (t EventType) String() string {
	switch t {
	case EventDiscovered:
		return "discovered"
	case EventStartupTimeout:
		return "startup-timeout"
	case EventExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Event is emitted by the supervisor, always tagged with the generation it
// belongs to so consumers can drop stale ones.
type Event struct {
	Type       EventType
	Generation uint64
	Endpoint   Endpoint
	Origin     string // indexing source of the generation
	ExitCode   int
	Err        error
}
