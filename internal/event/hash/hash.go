// Package hash computes the tamper-evidence digest over an event's logical
// content.
//
// Canonical form: the payload is decoded into the generic encoding/json value
// tree and re-marshaled, which sorts object keys lexicographically and renders
// numbers in Go's shortest round-trip form. occurred_at is normalized to UTC
// RFC3339Nano. The digest is SHA-256 over the canonical serialization of
// {type, actor, payload, occurred_at}. The function depends on nothing else:
// no clock, no write-time identifiers, no map iteration order.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"audittrail/internal/event/models"
)

// content is the hashed envelope. Field order is fixed by the struct; map
// keys inside Payload are sorted by encoding/json.
type content struct {
	Type       string       `json:"type"`
	Actor      models.Actor `json:"actor"`
	Payload    any          `json:"payload"`
	OccurredAt string       `json:"occurred_at"`
}

// Compute returns the hex-encoded content hash for the given logical event.
// Identical logical input always yields the same digest, regardless of the
// key order or whitespace of the submitted payload.
func Compute(eventType string, actor models.Actor, payload json.RawMessage, occurredAt time.Time) (string, error) {
	var tree any
	if err := json.Unmarshal(payload, &tree); err != nil {
		return "", fmt.Errorf("decode payload for hashing: %w", err)
	}

	canonical, err := json.Marshal(content{
		Type:       eventType,
		Actor:      actor,
		Payload:    tree,
		OccurredAt: occurredAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", fmt.Errorf("canonicalize event content: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the digest for a stored event and compares it with the
// stored hash. A false result means the record no longer matches what was
// written; callers surface this, never repair it.
func Verify(e *models.Event) (bool, error) {
	recomputed, err := Compute(e.Type, e.Actor, e.Payload, e.OccurredAt)
	if err != nil {
		return false, err
	}
	return recomputed == e.ContentHash, nil
}
