// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package platform

import (
	"fmt"
	"os/exec"
	"strconv"
	"syscall"
)

// DetachOnDiscovery reports whether the backend is released from the
// supervisor's reap group once it has reported its port.
const DetachOnDiscovery = false

// SysProcAttr starts the backend in a new process group.
func SysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

type taskkillTerminator struct{}

// NewTerminator returns the terminator for the running OS.
func NewTerminator() Terminator {
	return taskkillTerminator{}
}

func (taskkillTerminator) TerminateGracefully(pid int) error {
	return ErrNoGracefulSignal
}

func (taskkillTerminator) TerminateForcefully(pid int) error {
	return taskkill(pid)
}

func (taskkillTerminator) Interrupt(pid int) error {
	return taskkill(pid)
}

func taskkill(pid int) error {
	out, err := exec.Command("taskkill", "/F", "/PID", strconv.Itoa(pid), "/T").CombinedOutput()
	if err != nil {
		return fmt.Errorf("taskkill %d: %v: %s", pid, err, out)
	}
	return nil
}
