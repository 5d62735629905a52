// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type changeRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *changeRecorder) record(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *changeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

func writeBinary(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0755))
}

func TestBinaryWatcher_WatchAndUnwatch(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "webrecorder")
	writeBinary(t, bin, "v1")

	w, err := NewBinaryWatcher(20*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Watch(bin))
	require.NoError(t, w.Watch(bin))
	assert.Equal(t, []string{bin}, w.Watching())

	require.NoError(t, w.Unwatch(bin))
	assert.Empty(t, w.Watching())
	assert.Error(t, w.Unwatch(bin))
}

func TestBinaryWatcher_ReportsChange(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "webrecorder")
	writeBinary(t, bin, "v1")

	rec := &changeRecorder{}
	w, err := NewBinaryWatcher(30*time.Millisecond, rec.record)
	require.NoError(t, err)
	defer w.Close()
	w.SetCooldown(0)

	require.NoError(t, w.Watch(bin))

	// Several quick writes collapse into one report.
	writeBinary(t, bin, "v2")
	writeBinary(t, bin, "v2-more")

	assert.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, bin, rec.paths[0])
}

func TestBinaryWatcher_IgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "webrecorder")
	writeBinary(t, bin, "v1")

	rec := &changeRecorder{}
	w, err := NewBinaryWatcher(20*time.Millisecond, rec.record)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Watch(bin))
	writeBinary(t, filepath.Join(dir, "other"), "x")

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}

func TestBinaryWatcher_Cooldown(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "webrecorder")
	writeBinary(t, bin, "v1")

	rec := &changeRecorder{}
	w, err := NewBinaryWatcher(20*time.Millisecond, rec.record)
	require.NoError(t, err)
	defer w.Close()
	w.SetCooldown(time.Hour)

	require.NoError(t, w.Watch(bin))

	writeBinary(t, bin, "v2")
	assert.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	writeBinary(t, bin, "v3")
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestBinaryWatcher_ClosedRejectsWatch(t *testing.T) {
	w, err := NewBinaryWatcher(20*time.Millisecond, nil)
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Error(t, w.Watch(filepath.Join(t.TempDir(), "bin")))
}
