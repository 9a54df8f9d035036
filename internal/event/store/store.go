// Package store defines the tenant-scoped persistence boundary for audit
// events.
//
// Every operation takes a tenancy.Context and applies the tenant filter
// unconditionally; there is no query-all-tenants capability. Implementations:
// store/postgres (production, with row-level security as the second
// enforcement layer) and store/memory (tests/dev).
package store

import (
	"context"
	"time"

	"audittrail/internal/event/models"
	"audittrail/internal/tenancy"
	"audittrail/pkg/domain"
)

// ListFilter narrows the tenant timeline. Nil/empty fields are ignored.
type ListFilter struct {
	From    *time.Time
	To      *time.Time
	Type    string
	ActorID string
}

// Error Contract:
// All store methods follow this pattern:
//   - sentinel.ErrNotFound when the requested event does not exist or is not
//     visible to the tenant (indistinguishable on purpose)
//   - sentinel.ErrAlreadyUsed when CreateEvent loses the idempotency-key
//     uniqueness race
//   - sentinel.ErrUnavailable (wrapped) for infrastructure failures
//
// EventStore is the persistence interface consumed by the ingestion pipeline
// and the timeline query engine.
type EventStore interface {
	// CreateEvent durably writes the event, its entity rows, and the outbox
	// envelope in one transaction. Partial writes are never observable.
	CreateEvent(ctx context.Context, tc tenancy.Context, event *models.Event, envelope []byte) error

	// FindByID returns the event with its entity rows.
	FindByID(ctx context.Context, tc tenancy.Context, id domain.EventID) (*models.Event, error)

	// FindByIdempotencyKey resolves a previously registered idempotency
	// mapping to its stored event.
	FindByIdempotencyKey(ctx context.Context, tc tenancy.Context, key string) (*models.Event, error)

	// ListByEntity returns events referencing (kind, id), newest first by
	// (occurred_at, event_id), starting strictly after the cursor.
	ListByEntity(ctx context.Context, tc tenancy.Context, kind, id string, limit int, cursor *models.Cursor) ([]*models.Event, error)

	// List returns the tenant timeline with optional filters, newest first by
	// (occurred_at, event_id), starting strictly after the cursor.
	List(ctx context.Context, tc tenancy.Context, filter ListFilter, limit int, cursor *models.Cursor) ([]*models.Event, error)
}
