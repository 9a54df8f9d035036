package handler

import (
	"encoding/json"
	"time"

	"audittrail/internal/event/models"
)

// ingestRequest is the wire form of an event submission.
type ingestRequest struct {
	Type           string             `json:"type"`
	Actor          models.Actor       `json:"actor"`
	OccurredAt     time.Time          `json:"occurred_at"`
	Payload        json.RawMessage    `json:"payload"`
	Entities       []models.EntityRef `json:"entities,omitempty"`
	Trace          *models.Trace      `json:"trace,omitempty"`
	IdempotencyKey string             `json:"idempotency_key,omitempty"`
}

func (r *ingestRequest) toDraft() *models.Draft {
	return &models.Draft{
		Type:           r.Type,
		Actor:          r.Actor,
		OccurredAt:     r.OccurredAt,
		Payload:        r.Payload,
		Entities:       r.Entities,
		Trace:          r.Trace,
		IdempotencyKey: r.IdempotencyKey,
	}
}

type entityResponse struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
	Role string `json:"role"`
}

type eventResponse struct {
	ID             string           `json:"id"`
	Type           string           `json:"type"`
	Actor          models.Actor     `json:"actor"`
	OccurredAt     time.Time        `json:"occurred_at"`
	RecordedAt     time.Time        `json:"recorded_at"`
	Payload        json.RawMessage  `json:"payload"`
	ContentHash    string           `json:"content_hash"`
	Entities       []entityResponse `json:"entities"`
	Trace          *models.Trace    `json:"trace,omitempty"`
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
}

func toEventResponse(event *models.Event) eventResponse {
	entities := make([]entityResponse, len(event.Entities))
	for i, ent := range event.Entities {
		entities[i] = entityResponse{Kind: ent.EntityKind, ID: ent.EntityID, Role: ent.Role}
	}
	return eventResponse{
		ID:             event.ID.String(),
		Type:           event.Type,
		Actor:          event.Actor,
		OccurredAt:     event.OccurredAt,
		RecordedAt:     event.RecordedAt,
		Payload:        event.Payload,
		ContentHash:    event.ContentHash,
		Entities:       entities,
		Trace:          event.Trace,
		IdempotencyKey: event.IdempotencyKey,
	}
}

type timelineResponse struct {
	Events     []eventResponse `json:"events"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func toTimelineResponse(timeline *models.Timeline) timelineResponse {
	events := make([]eventResponse, len(timeline.Events))
	for i, event := range timeline.Events {
		events[i] = toEventResponse(event)
	}
	return timelineResponse{Events: events, NextCursor: timeline.NextCursor}
}
