// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type discoveryRecorder struct {
	endpoints []Endpoint
}

func (r *discoveryRecorder) record(ep Endpoint) {
	r.endpoints = append(r.endpoints, ep)
}

func TestScanner_DiscoversOncePerGeneration(t *testing.T) {
	logs := NewLogBuffer(10)
	rec := &discoveryRecorder{}
	s := NewScanner(logs, nil, rec.record)
	s.Reset(1)

	s.OnData("booting", 1)
	s.OnData("APP_HOST=http://localhost:8080", 1)
	s.OnData("APP_HOST=http://localhost:9090", 1)

	require.Len(t, rec.endpoints, 1)
	assert.Equal(t, Endpoint{Port: 8080, Generation: 1}, rec.endpoints[0])
	assert.True(t, s.Discovered())
	assert.Equal(t, 3, logs.Size())
}

func TestScanner_DropsStaleGeneration(t *testing.T) {
	logs := NewLogBuffer(10)
	rec := &discoveryRecorder{}
	s := NewScanner(logs, nil, rec.record)

	s.Reset(1)
	s.Reset(2)
	s.OnData("APP_HOST=http://localhost:8080", 1)
	s.OnStderr("late", 1)
	assert.Empty(t, rec.endpoints)
	assert.Equal(t, 0, logs.Size())

	s.OnData("APP_HOST=http://localhost:8081", 2)
	require.Len(t, rec.endpoints, 1)
	assert.Equal(t, Endpoint{Port: 8081, Generation: 2}, rec.endpoints[0])
}

func TestScanner_ResetAllowsNewDiscovery(t *testing.T) {
	rec := &discoveryRecorder{}
	s := NewScanner(NewLogBuffer(10), nil, rec.record)

	s.Reset(1)
	s.OnData("APP_HOST=http://localhost:8080", 1)
	s.Reset(2)
	assert.False(t, s.Discovered())
	s.OnData("APP_HOST=http://localhost:8080", 2)

	assert.Len(t, rec.endpoints, 2)
}

func TestScanner_StderrIsPrefixedNotScanned(t *testing.T) {
	logs := NewLogBuffer(10)
	rec := &discoveryRecorder{}
	s := NewScanner(logs, nil, rec.record)
	s.Reset(1)

	s.OnStderr("APP_HOST=http://localhost:8080", 1)

	assert.Empty(t, rec.endpoints)
	assert.Equal(t, []string{"stderr: APP_HOST=http://localhost:8080"}, logs.All())
}

func TestLineWriter(t *testing.T) {
	var lines []string
	w := newLineWriter(func(line string) { lines = append(lines, line) })

	w.Write([]byte("APP_HOST=http://local"))
	w.Write([]byte("host:8080\r\nsecond\nthi"))
	assert.Equal(t, []string{"APP_HOST=http://localhost:8080", "second"}, lines)

	w.Flush()
	assert.Equal(t, []string{"APP_HOST=http://localhost:8080", "second", "thi"}, lines)
}
