// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package swarm

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/yamux"
)

// Request operations.
const (
	OpManifest = "manifest"
	OpFetch    = "fetch"
)

// errNotFoundMsg is the wire error for unknown keys and files.
const errNotFoundMsg = "not found"

// ErrNotFound is returned when a peer does not have the requested content.
var ErrNotFound = errors.New("not found")

// maxHeaderLen bounds a single JSON header line.
const maxHeaderLen = 4 << 20

// Request is sent by a fetching peer, one per stream.
type Request struct {
	Op   string `json:"op"`
	Key  string `json:"key"`
	Path string `json:"path,omitempty"`
}

// FileInfo describes one file of an archive.
type FileInfo struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Response is the JSON header answering a request. A fetch response is
// followed by Size raw bytes.
type Response struct {
	Files []FileInfo `json:"files,omitempty"`
	Size  int64      `json:"size,omitempty"`
	Error string     `json:"error,omitempty"`
}

// Err converts a wire error into an error value.
func (r *Response) Err() error {
	switch r.Error {
	case "":
		return nil
	case errNotFoundMsg:
		return ErrNotFound
	default:
		return fmt.Errorf("peer error: %s", r.Error)
	}
}

// YamuxConfig returns the yamux configuration shared by both ends.
func YamuxConfig() *yamux.Config {
	cfg := yamux.DefaultConfig()
	cfg.AcceptBacklog = 256
	cfg.EnableKeepAlive = true
	cfg.KeepAliveInterval = 30 * time.Second
	cfg.ConnectionWriteTimeout = 10 * time.Second
	cfg.MaxStreamWindowSize = 256 * 1024
	cfg.LogOutput = io.Discard
	return cfg
}

// writeJSON writes v as a single JSON line.
func writeJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

// readJSON reads a single JSON line into v. Bytes following the line stay
// in r.
func readJSON(r *bufio.Reader, v any) error {
	line, err := readLine(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(line, v)
}

func readLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return nil, err
		}
		line = append(line, chunk...)
		if len(line) > maxHeaderLen {
			return nil, errors.New("header line too long")
		}
		if !isPrefix {
			return line, nil
		}
	}
}

// cleanRelPath validates a slash-separated archive path and returns it in
// canonical form. Absolute paths and paths escaping the archive are rejected.
func cleanRelPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", fmt.Errorf("invalid archive path %q", p)
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid archive path %q", p)
	}
	return clean, nil
}

// safeJoin joins an archive path under dir.
func safeJoin(dir, p string) (string, error) {
	clean, err := cleanRelPath(p)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.FromSlash(clean)), nil
}
