// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"strconv"
	"strings"
)

// DefaultMarker precedes the port in the backend's startup line.
const DefaultMarker = "APP_HOST=http://localhost:"

// PortDiscoverer extracts the listening port from a chunk of backend output.
type PortDiscoverer interface {
	Discover(chunk string) (port int, ok bool)
}

// MarkerDiscoverer finds the port following a fixed marker. A chunk must
// contain the marker exactly once and be followed by a valid port.
type MarkerDiscoverer struct {
	Marker string
}

// NewMarkerDiscoverer returns a discoverer for the default marker.
func NewMarkerDiscoverer() *MarkerDiscoverer {
	return &MarkerDiscoverer{Marker: DefaultMarker}
}

// Discover implements PortDiscoverer.
func (d *MarkerDiscoverer) Discover(chunk string) (int, bool) {
	marker := d.Marker
	if marker == "" {
		marker = DefaultMarker
	}

	parts := strings.Split(chunk, marker)
	if len(parts) != 2 {
		return 0, false
	}

	tail := strings.TrimSpace(parts[1])
	if tail == "" {
		return 0, false
	}
	for _, r := range tail {
		if r < '0' || r > '9' {
			return 0, false
		}
	}

	port, err := strconv.Atoi(tail)
	if err != nil || port <= 0 || port > 65535 {
		return 0, false
	}
	return port, true
}
