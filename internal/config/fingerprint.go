// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Fingerprint returns the hex sha256 of the canonical JSON encoding of s.
// encoding/json sorts map keys, so equal Settings give equal fingerprints.
func Fingerprint(s Settings) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("fingerprint settings: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// ShortFingerprint is the first 12 hex characters of Fingerprint, for logs.
func ShortFingerprint(s Settings) string {
	fp, err := Fingerprint(s)
	if err != nil {
		return ""
	}
	return fp[:12]
}
