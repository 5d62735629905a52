// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package platform

import (
	"errors"
	"log"
	"syscall"
)

// DetachOnDiscovery reports whether the backend is released from the
// supervisor's reap group once it has reported its port.
const DetachOnDiscovery = true

// SysProcAttr puts the backend in its own process group so the whole tree
// can be signalled at once.
func SysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}

type signalTerminator struct{}

// NewTerminator returns the terminator for the running OS.
func NewTerminator() Terminator {
	return signalTerminator{}
}

func (signalTerminator) TerminateGracefully(pid int) error {
	return signalGroup(pid, syscall.SIGTERM)
}

func (signalTerminator) TerminateForcefully(pid int) error {
	// Collect descendants first; once the leader dies they are reparented
	// and can no longer be found by walking from pid.
	descendants, err := Descendants(pid)
	if err != nil {
		log.Printf("Process tree lookup for %d failed: %v", pid, err)
	}

	err = signalGroup(pid, syscall.SIGKILL)
	for _, child := range descendants {
		if kerr := syscall.Kill(child, syscall.SIGKILL); kerr != nil && !errors.Is(kerr, syscall.ESRCH) {
			log.Printf("Kill of descendant %d failed: %v", child, kerr)
		}
	}
	return err
}

func (signalTerminator) Interrupt(pid int) error {
	return signalGroup(pid, syscall.SIGINT)
}

// signalGroup signals the process group led by pid, falling back to the
// single process. A process that is already gone is not an error.
func signalGroup(pid int, sig syscall.Signal) error {
	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		err = syscall.Kill(pid, sig)
	}
	if err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}
