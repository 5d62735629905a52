// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultChangeCooldown = 5 * time.Second

// ChangeFunc is called with the absolute path of a binary that changed.
type ChangeFunc func(path string)

// BinaryWatcher watches backend binaries and reports upgrades.
// The parent directory is watched so that binaries replaced by rename are
// still noticed.
type BinaryWatcher struct {
	mu         sync.RWMutex
	watcher    *fsnotify.Watcher
	debouncer  *Debouncer
	onChange   ChangeFunc
	binaries   map[string]bool      // absolute binary path
	dirs       map[string]int       // directory -> watch count
	lastChange map[string]time.Time // binary path -> last reported change
	cooldown   time.Duration
	closed     bool
	closeCh    chan struct{}
	wg         sync.WaitGroup
}

// NewBinaryWatcher creates a new binary watcher.
func NewBinaryWatcher(debounce time.Duration, onChange ChangeFunc) (*BinaryWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &BinaryWatcher{
		watcher:    fsWatcher,
		debouncer:  NewDebouncer(debounce),
		onChange:   onChange,
		binaries:   make(map[string]bool),
		dirs:       make(map[string]int),
		lastChange: make(map[string]time.Time),
		cooldown:   defaultChangeCooldown,
		closeCh:    make(chan struct{}),
	}

	w.wg.Add(1)
	go w.processEvents()

	return w, nil
}

// Watch starts watching a binary.
func (w *BinaryWatcher) Watch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("watcher is closed")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	if w.binaries[absPath] {
		return nil
	}

	dir := filepath.Dir(absPath)
	w.dirs[dir]++
	if w.dirs[dir] == 1 {
		if err := w.watcher.Add(dir); err != nil {
			delete(w.dirs, dir)
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.binaries[absPath] = true
	return nil
}

// Unwatch stops watching a binary.
func (w *BinaryWatcher) Unwatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	if !w.binaries[absPath] {
		return fmt.Errorf("binary %s not being watched", path)
	}
	delete(w.binaries, absPath)
	w.debouncer.Cancel(absPath)

	dir := filepath.Dir(absPath)
	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		w.watcher.Remove(dir)
		delete(w.dirs, dir)
	}
	return nil
}

// SetCooldown sets the minimum interval between two reports for the same binary.
func (w *BinaryWatcher) SetCooldown(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cooldown = d
}

// Watching returns the binaries being watched.
func (w *BinaryWatcher) Watching() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	result := make([]string, 0, len(w.binaries))
	for path := range w.binaries {
		result = append(result, path)
	}
	return result
}

// Close stops the watcher and releases resources.
func (w *BinaryWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	w.debouncer.Stop()
	w.watcher.Close()
	w.wg.Wait()

	return nil
}

func (w *BinaryWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Binary watcher error: %v", err)
		}
	}
}

func (w *BinaryWatcher) handleEvent(event fsnotify.Event) {
	// Chmod fires whenever the binary is executed, so it is ignored.
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	w.mu.RLock()
	watched := w.binaries[event.Name]
	w.mu.RUnlock()

	if watched {
		w.triggerChange(event.Name)
	}
}

func (w *BinaryWatcher) triggerChange(path string) {
	w.debouncer.Debounce(path, func() {
		w.mu.Lock()
		if w.closed || time.Since(w.lastChange[path]) < w.cooldown {
			w.mu.Unlock()
			return
		}
		w.lastChange[path] = time.Now()
		w.mu.Unlock()

		if w.onChange != nil {
			w.onChange(path)
		}
	})
}
