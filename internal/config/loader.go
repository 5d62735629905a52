// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hjson/hjson-go/v4"
	"gopkg.in/yaml.v3"
)

// Loader handles configuration file loading.
type Loader struct{}

// NewLoader creates a new config loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads and parses the configuration from the given path.
// Files ending in .yaml or .yml are parsed as YAML, everything else as HJSON.
func (l *Loader) Load(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var raw map[string]interface{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		if err := hjson.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse hjson: %w", err)
		}
	}

	// Round-trip through JSON so both formats share the struct tags
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert to json: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config with default values applied.
// An empty path yields the default configuration.
func (l *Loader) LoadWithDefaults(ctx context.Context, path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		loaded, err := l.Load(ctx, path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

// FindConfig searches for a config file in the current directory.
func (l *Loader) FindConfig() (string, error) {
	candidates := []string{
		"replayhost.hjson",
		"replayhost.json",
		"replayhost.yaml",
	}

	for _, name := range candidates {
		path := filepath.Join(".", name)
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path, nil
			}
			return abs, nil
		}
	}

	return "", fmt.Errorf("config file not found (looked for %s)", strings.Join(candidates, ", "))
}

// ApplyDefaults sets default values for missing config fields.
func ApplyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "webrecorder player"
	}

	// Backend defaults
	if cfg.Backend.Binary == "" {
		cfg.Backend.Binary = filepath.Join("python-binaries", "webrecorder")
	}
	if cfg.Backend.CacheDir == "" {
		cfg.Backend.CacheDir = "_warc_cache"
	}
	if cfg.Backend.StopTimeout == "" {
		cfg.Backend.StopTimeout = "5s"
	}
	if cfg.Backend.StartupTimeout == "" {
		cfg.Backend.StartupTimeout = "60s"
	}
	if cfg.Backend.LogBufferSize == 0 {
		cfg.Backend.LogBufferSize = 500
	}

	// Sync defaults
	if cfg.Sync.DownloadDir == "" {
		cfg.Sync.DownloadDir = filepath.Join("~", "Downloads", "webrecorder-dat")
	}
	cfg.Sync.DownloadDir = ExpandPath(cfg.Sync.DownloadDir)
	if cfg.Sync.SettleDelay == "" {
		cfg.Sync.SettleDelay = "750ms"
	}
	if cfg.Sync.DialTimeout == "" {
		cfg.Sync.DialTimeout = "10s"
	}
	if cfg.Sync.ProgressInterval == 0 {
		cfg.Sync.ProgressInterval = 64 * 1024
	}

	// Session defaults
	if cfg.Session.Partition == "" {
		cfg.Session.Partition = "persist:wr"
	}
	if cfg.Session.Listen == "" {
		cfg.Session.Listen = "127.0.0.1:0"
	}

	// Control defaults
	if cfg.Control.Host == "" {
		cfg.Control.Host = "127.0.0.1"
	}
	if cfg.Control.Port == 0 {
		cfg.Control.Port = 7480
	}

	// Events defaults
	if cfg.Events.History.MaxEvents == 0 {
		cfg.Events.History.MaxEvents = 1000
	}
	if cfg.Events.History.MaxAge == "" {
		cfg.Events.History.MaxAge = "1h"
	}

	if cfg.Watch.Debounce == "" {
		cfg.Watch.Debounce = "500ms"
	}
}
