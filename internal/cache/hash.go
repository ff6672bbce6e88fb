// Package cache derives stable identities for analysis configurations and
// memoizes artifacts computed under them.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Canonical returns the canonical JSON form of v: object keys sorted at
// every level and numbers normalized, so semantically equal values built in a
// different order serialize identically.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	// encoding/json writes map keys in sorted order.
	return json.Marshal(generic)
}

// ConfigHash is the cache key for config under an analysis identity. Callers
// must treat the result as opaque.
func ConfigHash(analysisID string, config any) (string, error) {
	canon, err := Canonical(map[string]any{
		"analysis_id": analysisID,
		"config":      config,
	})
	if err != nil {
		return "", fmt.Errorf("config hash: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// SHA256Hex returns the lowercase hex SHA-256 of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ShortHash returns the first 16 hex characters of the SHA-256 of data.
func ShortHash(data []byte) string {
	return SHA256Hex(data)[:16]
}
