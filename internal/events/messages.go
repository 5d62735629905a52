// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

// Source values carried by the initializing message.
const (
	SourceWARC = "warc"
	SourceDat  = "dat"
)

// InitializingPayload announces that a backend is being prepared.
type InitializingPayload struct {
	Src string `json:"src"`
}

// IndexingPayload announces that the backend is ready behind the session proxy.
type IndexingPayload struct {
	Host   string `json:"host"`
	Source string `json:"source"`
}

// IndexProgressPayload reports sync progress as a whole percentage.
type IndexProgressPayload struct {
	Perct int `json:"perct"`
}

// StartupTimeoutPayload reports a generation that never announced its port.
type StartupTimeoutPayload struct {
	Generation uint64 `json:"generation"`
}

// ErrorPayload reports a failure the user should see.
type ErrorPayload struct {
	Message string `json:"message"`
}

// AsyncConfig is the host configuration returned to the UI on request.
type AsyncConfig struct {
	Host    string `json:"host,omitempty"`
	Version string `json:"version,omitempty"`
	Plugin  string `json:"plugin,omitempty"`
}

// AsyncResponsePayload answers an async-call with config and the backend log.
type AsyncResponsePayload struct {
	Config AsyncConfig `json:"config"`
	Stdout string      `json:"stdout"`
}
