// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package platform

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startGroup(t *testing.T, script string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("sh", "-c", script)
	cmd.SysProcAttr = SysProcAttr()
	require.NoError(t, cmd.Start())
	return cmd
}

func waitExit(t *testing.T, cmd *exec.Cmd) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("process did not exit")
	}
}

func TestTerminator_Graceful(t *testing.T) {
	cmd := startGroup(t, "sleep 30")
	require.NoError(t, NewTerminator().TerminateGracefully(cmd.Process.Pid))
	waitExit(t, cmd)
}

func TestTerminator_ForcefulKillsTree(t *testing.T) {
	// The shell ignores SIGTERM and keeps a child alive.
	cmd := startGroup(t, "trap '' TERM; sleep 30 & wait")
	time.Sleep(100 * time.Millisecond)

	children, err := Descendants(cmd.Process.Pid)
	require.NoError(t, err)
	assert.NotEmpty(t, children)

	require.NoError(t, NewTerminator().TerminateForcefully(cmd.Process.Pid))
	waitExit(t, cmd)
}

func TestTerminator_Interrupt(t *testing.T) {
	cmd := startGroup(t, "sleep 30")
	require.NoError(t, NewTerminator().Interrupt(cmd.Process.Pid))
	waitExit(t, cmd)
}

func TestTerminator_GoneProcessIsNotAnError(t *testing.T) {
	cmd := startGroup(t, "exit 0")
	waitExit(t, cmd)

	assert.NoError(t, NewTerminator().TerminateGracefully(cmd.Process.Pid))
	assert.NoError(t, NewTerminator().TerminateForcefully(cmd.Process.Pid))
}
