// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package control serves the channel between the host and its UI: a
// websocket carrying commands in and control messages out, plus a small
// HTTP status surface.
package control

import (
	"encoding/json"
	"fmt"

	"github.com/wingedpig/replayhost/internal/events"
)

// Commands sent by the UI.
const (
	CmdOpenWARC     = "open-warc"
	CmdSyncDat      = "sync-dat"
	CmdAsyncCall    = "async-call"
	CmdWindowClosed = "window-closed"
)

// Message is the wire form of every control message in either direction.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OpenWARCPayload is the payload of open-warc.
type OpenWARCPayload struct {
	Path string `json:"path"`
}

// SyncDatPayload is the payload of sync-dat.
type SyncDatPayload struct {
	Key string `json:"key"`
}

// NewMessage builds a message with payload encoded as JSON.
func NewMessage(typ string, payload interface{}) (Message, error) {
	msg := Message{Type: typ}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return msg, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	msg.Payload = data
	return msg, nil
}

// FromEvent converts a bus event to its wire form.
func FromEvent(e events.Event) (Message, error) {
	return NewMessage(e.Type, e.Payload)
}

// Decode unmarshals the payload into v. A missing payload leaves v untouched.
func (m Message) Decode(v interface{}) error {
	if len(m.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}
