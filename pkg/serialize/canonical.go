// Copyright 2025 Certen Protocol
//
// Package serialize provides the deterministic canonical byte encodings
// used by every durable table in the authority store: fixed-width
// integers, fixed field order, and explicit length prefixes so that two
// validators computing the same digest over the same logical value
// always produce identical bytes.
package serialize

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// BigEndianUint64 encodes v as an 8-byte big-endian key component, used
// throughout the store for keys that must sort in numeric order
// (pending_execution sequence numbers, executed_sequence numbers, system
// ledger block heights).
func BigEndianUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// ParseBigEndianUint64 decodes a key component produced by
// BigEndianUint64.
func ParseBigEndianUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("serialize: expected 8-byte big-endian value, got %d bytes", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// JSON is the canonical value encoding for everything the store persists
// beyond raw keys. It is deterministic for our purposes because every
// persisted struct has a fixed field set with no maps at the top level;
// callers that do marshal a map (e.g. event logs) must sort keys first.
func JSON(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("serialize: marshal: %w", err)
	}
	return b, nil
}

// FromJSON decodes a value produced by JSON.
func FromJSON(b []byte, v interface{}) error {
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("serialize: unmarshal: %w", err)
	}
	return nil
}

// Concat joins byte slices without an intervening separator, used to
// build composite keys such as (prefix || id || version).
func Concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
