package models

import (
	"encoding/json"
	"time"

	"audittrail/pkg/domain"
	dErrors "audittrail/pkg/domain-errors"
)

// Entity roles recorded in the entity index. The actor is always indexed with
// RoleActor; caller-declared entities default to RoleRelated.
const (
	RoleActor   = "actor"
	RoleRelated = "related"
)

// Actor identifies who performed the action, as a (kind, id) pair.
type Actor struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// EntityRef is a caller-declared reference from an event to an entity.
// Role may be empty on input; extraction fills in RoleRelated.
type EntityRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
	Role string `json:"role,omitempty"`
}

// Trace carries caller-side correlation identifiers, stored verbatim.
type Trace struct {
	TraceID   string `json:"trace_id"`
	RequestID string `json:"request_id"`
}

// Draft is an event as submitted by a caller, before hashing and storage.
type Draft struct {
	Type           string
	Actor          Actor
	OccurredAt     time.Time
	Payload        json.RawMessage
	Entities       []EntityRef
	Trace          *Trace
	IdempotencyKey string
}

// Validate enforces the required-field invariants before any store access.
func (d *Draft) Validate() error {
	if d.Type == "" {
		return dErrors.New(dErrors.CodeValidation, "event type is required")
	}
	if d.Actor.Kind == "" || d.Actor.ID == "" {
		return dErrors.New(dErrors.CodeValidation, "actor kind and id are required")
	}
	if d.OccurredAt.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "occurred_at is required")
	}
	if len(d.Payload) == 0 {
		return dErrors.New(dErrors.CodeValidation, "payload is required")
	}
	if !json.Valid(d.Payload) {
		return dErrors.New(dErrors.CodeValidation, "payload must be valid JSON")
	}
	if len(d.IdempotencyKey) > 256 {
		return dErrors.New(dErrors.CodeValidation, "idempotency key must be 256 characters or less")
	}
	for _, ref := range d.Entities {
		if ref.Kind == "" || ref.ID == "" {
			return dErrors.New(dErrors.CodeValidation, "entity kind and id are required")
		}
	}
	return nil
}

// Event is the immutable unit of record. Once written, no field is ever
// mutated or deleted; the store is append-only.
type Event struct {
	ID             domain.EventID
	TenantID       domain.TenantID
	OccurredAt     time.Time
	RecordedAt     time.Time
	Type           string
	Actor          Actor
	Trace          *Trace
	Payload        json.RawMessage
	ContentHash    string
	IdempotencyKey string
	Entities       []EventEntity
}

// EventEntity is a normalized edge from an event to a referenced entity.
// Created atomically with its event, never updated.
type EventEntity struct {
	EventID    domain.EventID
	EntityKind string
	EntityID   string
	Role       string
}

// Page controls cursor pagination. Limit is clamped by the service.
type Page struct {
	Limit  int
	Cursor string
}

// Timeline is one page of events, newest first, with an opaque continuation
// cursor when more rows remain.
type Timeline struct {
	Events     []*Event
	NextCursor string
}
