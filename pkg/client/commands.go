// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

type command struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// OpenWARC asks the host to replay the archive at path.
func (c *Client) OpenWARC(ctx context.Context, path string) error {
	_, err := c.postJSON(ctx, "/api/v1/commands", command{
		Type:    "open-warc",
		Payload: map[string]string{"path": path},
	})
	return err
}

// SyncDat asks the host to download and replay the archive with key.
func (c *Client) SyncDat(ctx context.Context, key string) error {
	_, err := c.postJSON(ctx, "/api/v1/commands", command{
		Type:    "sync-dat",
		Payload: map[string]string{"key": key},
	})
	return err
}

// AsyncCall returns the host configuration and backend log.
func (c *Client) AsyncCall(ctx context.Context) (*AsyncResponse, error) {
	data, err := c.postJSON(ctx, "/api/v1/commands", command{Type: "async-call"})
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse reply: %w", err)
	}
	var resp AsyncResponse
	if err := msg.Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to parse async-response: %w", err)
	}
	return &resp, nil
}

// Status returns the host status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	data, err := c.get(ctx, "/api/v1/status")
	if err != nil {
		return nil, err
	}

	var status Status
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to parse status: %w", err)
	}
	return &status, nil
}

// ListOptions configures event listing.
type ListOptions struct {
	Limit      int
	Types      []string
	Generation uint64
	Since      time.Time
}

// Events returns recent control messages, oldest first.
func (c *Client) Events(ctx context.Context, opts *ListOptions) ([]Event, error) {
	path := "/api/v1/events"

	if opts != nil {
		params := url.Values{}
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}
		for _, t := range opts.Types {
			params.Add("type", t)
		}
		if opts.Generation > 0 {
			params.Set("generation", strconv.FormatUint(opts.Generation, 10))
		}
		if !opts.Since.IsZero() {
			params.Set("since", opts.Since.Format(time.RFC3339))
		}
		if len(params) > 0 {
			path += "?" + params.Encode()
		}
	}

	data, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("failed to parse events: %w", err)
	}
	return events, nil
}
