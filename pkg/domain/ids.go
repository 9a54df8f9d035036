// Package domain defines the typed identifiers shared across features.
//
// IDs get their own types so a tenant identifier can never be passed where an
// event identifier is expected. Parse functions are the trust boundary for
// identifiers arriving over the wire.
package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// TenantID is the opaque tenant identifier assigned at provisioning.
// It is treated as a stable string; the core never generates one.
type TenantID string

func (t TenantID) String() string { return string(t) }

// IsZero reports whether the tenant ID is unset.
func (t TenantID) IsZero() bool { return t == "" }

// ParseTenantID validates an externally supplied tenant identifier.
// The identifier is opaque but must be non-empty, valid UTF-8, and bounded.
func ParseTenantID(raw string) (TenantID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("tenant id is empty")
	}
	if !utf8.ValidString(raw) {
		return "", fmt.Errorf("tenant id is not valid UTF-8")
	}
	if len(raw) > 128 {
		return "", fmt.Errorf("tenant id exceeds 128 bytes")
	}
	return TenantID(raw), nil
}

// EventID identifies a stored audit event. Assigned at write time, never reused.
type EventID uuid.UUID

func NewEventID() EventID { return EventID(uuid.New()) }

func (e EventID) String() string { return uuid.UUID(e).String() }

func (e EventID) IsNil() bool { return uuid.UUID(e) == uuid.Nil }

// ParseEventID parses an event identifier from its string form.
func ParseEventID(raw string) (EventID, error) {
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return EventID{}, fmt.Errorf("invalid event id: %w", err)
	}
	return EventID(parsed), nil
}
