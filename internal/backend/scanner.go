// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"bytes"
	"sync"
)

// StderrPrefix marks buffered stderr lines.
const StderrPrefix = "stderr: "

// maxLineLen bounds a single buffered line.
const maxLineLen = 1024 * 1024

// Scanner feeds backend output into the log buffer and reports the first
// endpoint announced by the active generation.
type Scanner struct {
	mu         sync.Mutex
	logs       *LogBuffer
	discoverer PortDiscoverer
	generation uint64
	found      bool
	onDiscover func(Endpoint)
}

// NewScanner creates a scanner writing into logs.
func NewScanner(logs *LogBuffer, discoverer PortDiscoverer, onDiscover func(Endpoint)) *Scanner {
	if discoverer == nil {
		discoverer = NewMarkerDiscoverer()
	}
	return &Scanner{
		logs:       logs,
		discoverer: discoverer,
		onDiscover: onDiscover,
	}
}

// Reset makes generation the active one and forgets any earlier discovery.
func (s *Scanner) Reset(generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation = generation
	s.found = false
}

// OnData handles a chunk of stdout from generation. Chunks from any other
// generation are dropped.
func (s *Scanner) OnData(chunk string, generation uint64) {
	s.mu.Lock()
	if generation != s.generation {
		s.mu.Unlock()
		return
	}
	s.logs.Write(truncate(chunk))

	if s.found {
		s.mu.Unlock()
		return
	}
	port, ok := s.discoverer.Discover(chunk)
	if !ok {
		s.mu.Unlock()
		return
	}
	s.found = true
	onDiscover := s.onDiscover
	s.mu.Unlock()

	if onDiscover != nil {
		onDiscover(Endpoint{Port: port, Generation: generation})
	}
}

// OnStderr handles a chunk of stderr from generation. Stderr is buffered
// but never scanned.
func (s *Scanner) OnStderr(chunk string, generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		return
	}
	s.logs.Write(StderrPrefix + truncate(chunk))
}

// Discovered reports whether the active generation has announced its port.
func (s *Scanner) Discovered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.found
}

func truncate(line string) string {
	if len(line) > maxLineLen {
		return line[:maxLineLen] + "... [truncated]"
	}
	return line
}

// lineWriter splits a byte stream into lines and hands each to fn.
type lineWriter struct {
	mu      sync.Mutex
	pending []byte
	fn      func(line string)
}

func newLineWriter(fn func(line string)) *lineWriter {
	return &lineWriter{fn: fn}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		line := w.pending[:i]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		w.fn(string(line))
		w.pending = w.pending[i+1:]
	}
	if len(w.pending) > maxLineLen {
		w.fn(string(w.pending))
		w.pending = nil
	}
	return len(p), nil
}

// Flush emits a trailing partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) > 0 {
		w.fn(string(w.pending))
		w.pending = nil
	}
}
