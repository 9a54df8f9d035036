package outbox

import (
	"context"

	"github.com/google/uuid"
)

// Store is the persistence interface for draining the outbox. Unlike the
// event store this is not tenant-scoped: the worker is a platform component
// that publishes every tenant's envelopes, already serialized.
type Store interface {
	// FetchUnpublished returns up to limit unpublished entries, oldest first.
	FetchUnpublished(ctx context.Context, limit int) ([]*Entry, error)
	// MarkPublished stamps the given entries as published.
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Publisher delivers envelopes to the change feed.
type Publisher interface {
	Publish(ctx context.Context, entries []*Entry) error
}
