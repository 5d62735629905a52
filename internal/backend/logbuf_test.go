// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogBuffer_EvictsOldest(t *testing.T) {
	buf := NewLogBuffer(0)
	assert.Equal(t, DefaultLogBufferSize, buf.Capacity())

	for i := 1; i <= 600; i++ {
		buf.Write(fmt.Sprintf("line %d", i))
	}

	lines := buf.All()
	require.Len(t, lines, 500)
	assert.Equal(t, "line 101", lines[0])
	assert.Equal(t, "line 600", lines[499])
	for i, line := range lines {
		assert.Equal(t, fmt.Sprintf("line %d", i+101), line)
	}
	assert.Equal(t, int64(600), buf.Sequence())
}

func TestLogBuffer_Lines(t *testing.T) {
	buf := NewLogBuffer(5)
	buf.WriteLines("a\nb\nc\n")

	assert.Equal(t, []string{"b", "c"}, buf.Lines(2))
	assert.Equal(t, []string{"a", "b", "c"}, buf.Lines(10))
	assert.Empty(t, buf.Lines(0))
}

func TestLogBuffer_Blob(t *testing.T) {
	buf := NewLogBuffer(10)
	buf.Write("first")
	buf.Write("Error spawning webrecorder binary:\n no such file")
	buf.Write("stderr: warn")

	assert.Equal(t, "first<BR>Error spawning webrecorder binary:<BR> no such file<BR>stderr: warn", buf.Blob())
}

func TestLogBuffer_Reset(t *testing.T) {
	buf := NewLogBuffer(3)
	buf.WriteLines("a\nb\nc\nd")
	buf.Reset()

	assert.Equal(t, 0, buf.Size())
	assert.Empty(t, buf.All())
	assert.Equal(t, "", buf.Blob())

	buf.Write("e")
	assert.Equal(t, []string{"e"}, buf.All())
}

func TestLogBuffer_Concurrency(t *testing.T) {
	buf := NewLogBuffer(100)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				buf.Write("x")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				buf.Blob()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, buf.Size())
}
