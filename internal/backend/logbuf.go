// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"strings"
	"sync"
)

// DefaultLogBufferSize is the number of backend output lines retained.
const DefaultLogBufferSize = 500

// LineBreak joins log lines in the diagnostic blob sent to the UI.
const LineBreak = "<BR>"

// LogBuffer is a thread-safe ring buffer of backend output lines.
// When full, the oldest line is evicted.
type LogBuffer struct {
	mu       sync.RWMutex
	lines    []string
	capacity int
	size     int
	head     int // next write position
	sequence int64
}

// NewLogBuffer creates a new log buffer with the given capacity.
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = DefaultLogBufferSize
	}
	return &LogBuffer{
		lines:    make([]string, capacity),
		capacity: capacity,
	}
}

// Write adds a single line to the buffer.
func (b *LogBuffer) Write(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines[b.head] = line
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
	b.sequence++
}

// WriteLines splits content by newlines and adds each line.
func (b *LogBuffer) WriteLines(content string) {
	if content == "" {
		return
	}
	content = strings.TrimSuffix(content, "\n")
	for _, line := range strings.Split(content, "\n") {
		b.Write(line)
	}
}

// Lines returns the last n lines from the buffer, oldest first.
func (b *LogBuffer) Lines(n int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || b.size == 0 {
		return []string{}
	}
	if n > b.size {
		n = b.size
	}

	result := make([]string, n)
	start := (b.head - n + b.capacity) % b.capacity
	for i := 0; i < n; i++ {
		result[i] = b.lines[(start+i)%b.capacity]
	}
	return result
}

// All returns all lines in the buffer.
func (b *LogBuffer) All() []string {
	return b.Lines(b.Size())
}

// Blob joins the buffer into a single string for display, with line
// separators and embedded newlines rendered as <BR>.
func (b *LogBuffer) Blob() string {
	lines := b.All()
	for i, line := range lines {
		lines[i] = strings.ReplaceAll(line, "\n", LineBreak)
	}
	return strings.Join(lines, LineBreak)
}

// Reset removes all lines from the buffer.
func (b *LogBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.size = 0
	b.head = 0
	for i := range b.lines {
		b.lines[i] = ""
	}
}

// Size returns the number of lines in the buffer.
func (b *LogBuffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Capacity returns the maximum number of lines the buffer can hold.
func (b *LogBuffer) Capacity() int {
	return b.capacity
}

// Sequence returns the number of lines ever written.
func (b *LogBuffer) Sequence() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sequence
}
