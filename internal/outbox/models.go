// Package outbox implements the transactional outbox for the stored-event
// change feed.
//
// The ingestion transaction writes an envelope row next to the event; the
// worker drains unpublished rows and hands them to a publisher (Kafka in
// production). The feed is outbound only - ingestion itself never passes
// through a queue.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"audittrail/internal/event/models"
)

// Envelope is the JSON structure published to the change feed. recorded_at is
// deliberately absent: it is assigned at commit, after the envelope is
// serialized into the same transaction.
type Envelope struct {
	EventID     string       `json:"event_id"`
	TenantID    string       `json:"tenant_id"`
	Type        string       `json:"type"`
	Actor       models.Actor `json:"actor"`
	OccurredAt  time.Time    `json:"occurred_at"`
	ContentHash string       `json:"content_hash"`
}

// NewEnvelope serializes the change-feed envelope for an event about to be
// stored.
func NewEnvelope(event *models.Event) ([]byte, error) {
	payload, err := json.Marshal(Envelope{
		EventID:     event.ID.String(),
		TenantID:    event.TenantID.String(),
		Type:        event.Type,
		Actor:       event.Actor,
		OccurredAt:  event.OccurredAt.UTC(),
		ContentHash: event.ContentHash,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal outbox envelope: %w", err)
	}
	return payload, nil
}

// Entry is one unpublished outbox row.
type Entry struct {
	ID        uuid.UUID
	TenantID  string
	EventID   uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}
