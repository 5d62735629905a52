// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package swarm fetches keyed archive content from peers and serves it to
// them. Peers speak JSON requests over yamux streams.
package swarm

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Scheme is the URL scheme of content keys.
const Scheme = "dat://"

const keyLen = 64

// ErrInvalidKey is returned for keys that are not 64 hex characters.
var ErrInvalidKey = errors.New("invalid content key")

// SanitizeKey strips the scheme and any trailing slash from key.
func SanitizeKey(key string) string {
	key = strings.TrimSpace(key)
	key = strings.TrimPrefix(key, Scheme)
	return strings.TrimSuffix(key, "/")
}

// ParseKey sanitizes key and checks that it is a 64 character hex string.
// The result is lower case.
func ParseKey(key string) (string, error) {
	k := strings.ToLower(SanitizeKey(key))
	if len(k) != keyLen {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if _, err := hex.DecodeString(k); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return k, nil
}
