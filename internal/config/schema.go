// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config handles HJSON (and YAML) configuration loading for replayhost.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the root configuration structure for replayhost.
type Config struct {
	App     AppConfig     `json:"app"`
	Backend BackendConfig `json:"backend"`
	Sync    SyncConfig    `json:"sync"`
	Session SessionConfig `json:"session"`
	Control ControlConfig `json:"control"`
	Events  EventsConfig  `json:"events"`
	Watch   WatchConfig   `json:"watch"`
}

// AppConfig contains the host identity shown in the version banner.
type AppConfig struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// BackendConfig configures the replay backend binary and how it is supervised.
type BackendConfig struct {
	Binary         string            `json:"binary"`
	WorkDir        string            `json:"work_dir"`
	CacheDir       string            `json:"cache_dir"`
	Env            map[string]string `json:"env"`
	StopTimeout    string            `json:"stop_timeout"`    // Grace period before a forced kill
	StartupTimeout string            `json:"startup_timeout"` // "0" disables the port discovery timeout
	LogBufferSize  int               `json:"log_buffer_size"`
}

// SyncConfig configures peer-to-peer content synchronization.
type SyncConfig struct {
	DownloadDir      string   `json:"download_dir"`
	SettleDelay      string   `json:"settle_delay"`
	Peers            []string `json:"peers"` // host:port of swarm seeders, tried in order
	DialTimeout      string   `json:"dial_timeout"`
	ProgressInterval int64    `json:"progress_interval"` // bytes between progress reports
}

// SessionConfig configures the UI network session that is routed through the backend.
type SessionConfig struct {
	Partition string `json:"partition"`
	Listen    string `json:"listen"`
}

// ControlConfig configures the control channel server.
type ControlConfig struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Metrics *bool  `json:"metrics"`
}

// EventsConfig configures control message history.
type EventsConfig struct {
	History EventsHistoryConfig `json:"history"`
}

// EventsHistoryConfig configures how much message history is retained.
type EventsHistoryConfig struct {
	MaxEvents int    `json:"max_events"`
	MaxAge    string `json:"max_age"`
}

// WatchConfig configures watching the backend binary for upgrades.
type WatchConfig struct {
	Binary   *bool  `json:"binary"`
	Debounce string `json:"debounce"`
}

// ParseDuration parses a duration string with a default fallback.
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// MetricsEnabled returns whether the /metrics endpoint is served.
func (c *ControlConfig) MetricsEnabled() bool {
	if c.Metrics == nil {
		return true
	}
	return *c.Metrics
}

// IsWatching returns whether the backend binary should be watched for changes.
func (c *WatchConfig) IsWatching() bool {
	if c.Binary == nil {
		return true
	}
	return *c.Binary
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}
