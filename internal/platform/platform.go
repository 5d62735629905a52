// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package platform selects the per-OS strategy for signalling the backend
// process and locating the bundled browser plugin.
package platform

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	ps "github.com/mitchellh/go-ps"
)

// ErrUnsupported is returned for operating systems without a known plugin.
var ErrUnsupported = errors.New("platform unsupported")

// ErrNoGracefulSignal is returned by terminators that can only kill forcefully.
var ErrNoGracefulSignal = errors.New("graceful termination not available")

// Terminator stops a backend process and everything it spawned.
type Terminator interface {
	// TerminateGracefully asks the process tree to exit.
	TerminateGracefully(pid int) error
	// TerminateForcefully kills the process tree by pid.
	TerminateForcefully(pid int) error
	// Interrupt delivers the window-close signal.
	Interrupt(pid int) error
}

// PluginDir is the directory, relative to the application root, that holds
// the bundled plugin.
const PluginDir = "plugins"

// PluginName returns the plugin file name for goos.
func PluginName(goos string) (string, error) {
	switch goos {
	case "windows":
		return "pepflashplayer.dll", nil
	case "darwin":
		return "PepperFlashPlayer.plugin", nil
	case "linux":
		return "libpepflashplayer.so", nil
	}
	return "", fmt.Errorf("%s: %w", goos, ErrUnsupported)
}

// PluginPath returns the plugin path under appDir for the running OS.
func PluginPath(appDir string) (string, error) {
	name, err := PluginName(runtime.GOOS)
	if err != nil {
		return "", err
	}
	return filepath.Join(appDir, PluginDir, name), nil
}

// Descendants returns the pids of every process below pid, children first.
func Descendants(pid int) ([]int, error) {
	procs, err := ps.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	children := make(map[int][]int)
	for _, p := range procs {
		children[p.PPid()] = append(children[p.PPid()], p.Pid())
	}

	var result []int
	queue := []int{pid}
	seen := map[int]bool{pid: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range children[cur] {
			if seen[child] {
				continue
			}
			seen[child] = true
			result = append(result, child)
			queue = append(queue, child)
		}
	}
	return result, nil
}
