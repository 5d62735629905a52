// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Validator validates configuration against schema rules.
type Validator struct{}

// NewValidator creates a new config validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidationError contains multiple validation failures.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single field validation error.
type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	var msgs []string
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return strings.Join(msgs, "; ")
}

// IsEmpty returns true if there are no validation errors.
func (e *ValidationError) IsEmpty() bool {
	return len(e.Errors) == 0
}

// Add adds a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// Validate checks configuration validity.
func (v *Validator) Validate(cfg *Config) error {
	errs := &ValidationError{}

	v.validateBackend(cfg, errs)
	v.validateSync(cfg, errs)
	v.validateSession(cfg, errs)
	v.validateControl(cfg, errs)
	v.validateDurations(cfg, errs)

	if errs.IsEmpty() {
		return nil
	}
	return errs
}

func (v *Validator) validateBackend(cfg *Config, errs *ValidationError) {
	if cfg.Backend.Binary == "" {
		errs.Add("backend.binary", "is required")
	}
	if cfg.Backend.LogBufferSize < 0 {
		errs.Add("backend.log_buffer_size", "must not be negative")
	}
}

func (v *Validator) validateSync(cfg *Config, errs *ValidationError) {
	if cfg.Sync.DownloadDir == "" {
		errs.Add("sync.download_dir", "is required")
	}
	if cfg.Sync.ProgressInterval < 0 {
		errs.Add("sync.progress_interval", "must not be negative")
	}
	for i, peer := range cfg.Sync.Peers {
		if _, _, err := splitHostPort(peer); err != nil {
			errs.Add(fmt.Sprintf("sync.peers[%d]", i), fmt.Sprintf("invalid address '%s': %v", peer, err))
		}
	}
}

func (v *Validator) validateSession(cfg *Config, errs *ValidationError) {
	if cfg.Session.Listen != "" {
		if _, _, err := splitHostPort(cfg.Session.Listen); err != nil {
			errs.Add("session.listen", fmt.Sprintf("invalid address '%s': %v", cfg.Session.Listen, err))
		}
	}
}

func (v *Validator) validateControl(cfg *Config, errs *ValidationError) {
	if cfg.Control.Port < 0 || cfg.Control.Port > 65535 {
		errs.Add("control.port", "must be between 0 and 65535")
	}
}

func (v *Validator) validateDurations(cfg *Config, errs *ValidationError) {
	durations := map[string]string{
		"backend.stop_timeout":    cfg.Backend.StopTimeout,
		"backend.startup_timeout": cfg.Backend.StartupTimeout,
		"sync.settle_delay":       cfg.Sync.SettleDelay,
		"sync.dial_timeout":       cfg.Sync.DialTimeout,
		"events.history.max_age":  cfg.Events.History.MaxAge,
		"watch.debounce":          cfg.Watch.Debounce,
	}
	for field, value := range durations {
		if value == "" || value == "0" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			errs.Add(field, fmt.Sprintf("invalid duration '%s'", value))
			continue
		}
		if d < 0 {
			errs.Add(field, "must not be negative")
		}
	}
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return "", 0, fmt.Errorf("port out of range")
	}
	return host, port, nil
}
