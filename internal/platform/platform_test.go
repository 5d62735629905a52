// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPluginName(t *testing.T) {
	tests := []struct {
		goos     string
		expected string
	}{
		{"windows", "pepflashplayer.dll"},
		{"darwin", "PepperFlashPlayer.plugin"},
		{"linux", "libpepflashplayer.so"},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			name, err := PluginName(tt.goos)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, name)
		})
	}
}

func TestPluginName_Unsupported(t *testing.T) {
	_, err := PluginName("plan9")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestPluginPath(t *testing.T) {
	path, err := PluginPath("/opt/player")
	if _, nerr := PluginName(runtime.GOOS); nerr != nil {
		assert.ErrorIs(t, err, ErrUnsupported)
		return
	}
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/opt/player", "plugins"), filepath.Dir(path))
}

func TestDescendants_UnknownPid(t *testing.T) {
	pids, err := Descendants(-12345)
	require.NoError(t, err)
	assert.Empty(t, pids)
}

func TestDescendants_ExcludesSelf(t *testing.T) {
	pids, err := Descendants(os.Getpid())
	require.NoError(t, err)
	assert.NotContains(t, pids, os.Getpid())
}
