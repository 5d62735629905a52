// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

const versionProbeTimeout = 10 * time.Second

// ProbeVersion runs the backend with --version and returns its stdout.
func ProbeVersion(ctx context.Context, binary string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, binary, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("probe %s version: %w", binary, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// VersionBanner renders the version string shown in the UI's about box.
func VersionBanner(appName, appVersion, backendVersion string) string {
	parts := []string{strings.TrimSpace(appName + " " + appVersion)}
	if backendVersion != "" {
		parts = append(parts, strings.ReplaceAll(backendVersion, "\n", LineBreak))
	}
	parts = append(parts, "go "+strings.TrimPrefix(runtime.Version(), "go"))
	return strings.Join(parts, LineBreak)
}
