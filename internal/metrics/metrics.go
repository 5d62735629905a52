// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package metrics records host activity for the /metrics endpoint.
package metrics

import "time"

// Recorder collects host metrics.
type Recorder interface {
	// BackendLaunch records a launch attempt in the given mode.
	BackendLaunch(mode string, err error)

	// BackendGeneration records the current generation number.
	BackendGeneration(generation uint64)

	// PortDiscovered records how long a generation took to announce its port.
	PortDiscovered(startup time.Duration)

	// StaleDiscovery records a discovery dropped because its generation was superseded.
	StaleDiscovery()

	// StartupTimeout records a generation that never announced its port.
	StartupTimeout()

	// BackendTermination records the duration of a termination.
	BackendTermination(duration time.Duration)

	// SyncJob records the outcome of a sync job: completed, superseded or failed.
	SyncJob(result string)

	// SyncProgress records the progress percentage of the active job.
	SyncProgress(percent int)

	// ControlClients records the number of connected control clients.
	ControlClients(n int)

	// ControlMessage records a message sent to control clients.
	ControlMessage(messageType string)
}

// Sync job outcomes.
const (
	SyncCompleted  = "completed"
	SyncSuperseded = "superseded"
	SyncFailed     = "failed"
)

type noopRecorder struct{}

func (noopRecorder) BackendLaunch(mode string, err error)      {}
func (noopRecorder) BackendGeneration(generation uint64)       {}
func (noopRecorder) PortDiscovered(startup time.Duration)      {}
func (noopRecorder) StaleDiscovery()                           {}
func (noopRecorder) StartupTimeout()                           {}
func (noopRecorder) BackendTermination(duration time.Duration) {}
func (noopRecorder) SyncJob(result string)                     {}
func (noopRecorder) SyncProgress(percent int)                  {}
func (noopRecorder) ControlClients(n int)                      {}
func (noopRecorder) ControlMessage(messageType string)         {}

// NewNoopRecorder returns a recorder that discards everything.
func NewNoopRecorder() Recorder {
	return noopRecorder{}
}
