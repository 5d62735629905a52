// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"encoding/json"
	"time"
)

// Message is a control message in wire form.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v interface{}) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

// Message types sent by the server.
const (
	TypeInitializing   = "initializing"
	TypeIndexing       = "indexing"
	TypeIndexProgress  = "indexProgress"
	TypeStartupTimeout = "startup-timeout"
	TypeError          = "error"
	TypeAsyncResponse  = "async-response"
)

// Indexing is the payload of an indexing message.
type Indexing struct {
	Host   string `json:"host"`
	Source string `json:"source"`
}

// IndexProgress is the payload of an indexProgress message.
type IndexProgress struct {
	Perct int `json:"perct"`
}

// AsyncResponse is the reply to an async-call.
type AsyncResponse struct {
	Config struct {
		Host    string `json:"host,omitempty"`
		Version string `json:"version,omitempty"`
		Plugin  string `json:"plugin,omitempty"`
	} `json:"config"`
	Stdout string `json:"stdout"`
}

// Endpoint is the port announced by a backend generation.
type Endpoint struct {
	Port       int    `json:"port"`
	Generation uint64 `json:"generation"`
}

// Backend is the supervisor state.
type Backend struct {
	State      string    `json:"state"`
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

// SyncJob is the active sync job.
type SyncJob struct {
	ID         string    `json:"id"`
	Key        string    `json:"key"`
	Dir        string    `json:"dir"`
	Downloaded int64     `json:"downloaded"`
	Length     int64     `json:"length"`
	Percent    int       `json:"percent"`
	Complete   bool      `json:"complete"`
	StartedAt  time.Time `json:"started_at"`
}

// Status is the host status report.
type Status struct {
	Version string   `json:"version"`
	Backend Backend  `json:"backend"`
	Proxy   string   `json:"proxy"`
	Session string   `json:"session"`
	Plugin  string   `json:"plugin,omitempty"`
	Sync    *SyncJob `json:"sync,omitempty"`
}

// Event is a control message recorded in history.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Timestamp  time.Time       `json:"timestamp"`
	Generation uint64          `json:"generation,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}
