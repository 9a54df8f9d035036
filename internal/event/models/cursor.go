package models

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"audittrail/pkg/domain"
)

// Cursor is the decoded pagination boundary. Pages are keyed on the total
// order (occurred_at, event_id) so concurrent inserts can neither duplicate
// nor skip rows across page fetches.
type Cursor struct {
	OccurredAt time.Time
	EventID    domain.EventID
}

// EncodeCursor renders an opaque continuation token for the given boundary.
func EncodeCursor(c Cursor) string {
	raw := c.OccurredAt.UTC().Format(time.RFC3339Nano) + "|" + c.EventID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a continuation token produced by EncodeCursor.
func DecodeCursor(token string) (Cursor, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid cursor encoding: %w", err)
	}
	at, id, ok := strings.Cut(string(decoded), "|")
	if !ok {
		return Cursor{}, fmt.Errorf("invalid cursor format")
	}
	occurredAt, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid cursor timestamp: %w", err)
	}
	eventID, err := domain.ParseEventID(id)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid cursor event id: %w", err)
	}
	return Cursor{OccurredAt: occurredAt, EventID: eventID}, nil
}
