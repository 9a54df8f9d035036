// Package memory provides the in-memory EventStore used by unit tests and
// local development. A mutex stands in for the database's transaction
// isolation: the idempotency check-and-insert is atomic under the lock, which
// gives the same at-most-one-winner linearization the Postgres unique
// constraint provides.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"audittrail/internal/event/models"
	"audittrail/internal/event/store"
	"audittrail/internal/tenancy"
	"audittrail/pkg/domain"
	"audittrail/pkg/platform/sentinel"
	"audittrail/pkg/requestcontext"
)

type idempotencyKey struct {
	tenant domain.TenantID
	key    string
}

// InMemoryEventStore stores events in memory. Not for production use.
type InMemoryEventStore struct {
	mu       sync.RWMutex
	events   []*models.Event
	idemKeys map[idempotencyKey]domain.EventID
	outbox   [][]byte
}

// New constructs an empty in-memory event store.
func New() *InMemoryEventStore {
	return &InMemoryEventStore{idemKeys: make(map[idempotencyKey]domain.EventID)}
}

func requireTenant(tc tenancy.Context) error {
	if tc.IsZero() {
		return fmt.Errorf("tenant context is required: %w", sentinel.ErrInvalidState)
	}
	return nil
}

func (s *InMemoryEventStore) CreateEvent(ctx context.Context, tc tenancy.Context, event *models.Event, envelope []byte) error {
	if err := requireTenant(tc); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.IdempotencyKey != "" {
		key := idempotencyKey{tenant: tc.TenantID(), key: event.IdempotencyKey}
		if _, taken := s.idemKeys[key]; taken {
			return fmt.Errorf("idempotency key %q: %w", event.IdempotencyKey, sentinel.ErrAlreadyUsed)
		}
		s.idemKeys[key] = event.ID
	}

	stored := cloneEvent(event)
	stored.TenantID = tc.TenantID()
	stored.RecordedAt = requestcontext.Now(ctx).UTC()
	s.events = append(s.events, stored)
	if envelope != nil {
		s.outbox = append(s.outbox, append([]byte(nil), envelope...))
	}

	// Reflect store-assigned fields back to the caller, as RETURNING would.
	event.TenantID = stored.TenantID
	event.RecordedAt = stored.RecordedAt
	return nil
}

func (s *InMemoryEventStore) FindByID(_ context.Context, tc tenancy.Context, id domain.EventID) (*models.Event, error) {
	if err := requireTenant(tc); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.events {
		if e.ID == id && e.TenantID == tc.TenantID() {
			return cloneEvent(e), nil
		}
	}
	return nil, fmt.Errorf("event %s: %w", id, sentinel.ErrNotFound)
}

func (s *InMemoryEventStore) FindByIdempotencyKey(_ context.Context, tc tenancy.Context, key string) (*models.Event, error) {
	if err := requireTenant(tc); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.idemKeys[idempotencyKey{tenant: tc.TenantID(), key: key}]
	if !ok {
		return nil, fmt.Errorf("idempotency key %q: %w", key, sentinel.ErrNotFound)
	}
	for _, e := range s.events {
		if e.ID == id {
			return cloneEvent(e), nil
		}
	}
	return nil, fmt.Errorf("idempotency key %q: %w", key, sentinel.ErrNotFound)
}

func (s *InMemoryEventStore) ListByEntity(_ context.Context, tc tenancy.Context, kind, id string, limit int, cursor *models.Cursor) ([]*models.Event, error) {
	if err := requireTenant(tc); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Event
	for _, e := range s.events {
		if e.TenantID != tc.TenantID() {
			continue
		}
		for _, ent := range e.Entities {
			if ent.EntityKind == kind && ent.EntityID == id {
				matched = append(matched, e)
				break
			}
		}
	}
	return page(matched, limit, cursor), nil
}

func (s *InMemoryEventStore) List(_ context.Context, tc tenancy.Context, filter store.ListFilter, limit int, cursor *models.Cursor) ([]*models.Event, error) {
	if err := requireTenant(tc); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Event
	for _, e := range s.events {
		if e.TenantID != tc.TenantID() {
			continue
		}
		if filter.From != nil && e.OccurredAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.OccurredAt.After(*filter.To) {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.ActorID != "" && e.Actor.ID != filter.ActorID {
			continue
		}
		matched = append(matched, e)
	}
	return page(matched, limit, cursor), nil
}

// Outbox returns copies of the envelopes written alongside events. Test hook.
func (s *InMemoryEventStore) Outbox() [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][]byte, len(s.outbox))
	for i, env := range s.outbox {
		out[i] = append([]byte(nil), env...)
	}
	return out
}

// page orders newest-first on the (occurred_at, event_id) total order, applies
// the cursor boundary, and clones the returned events.
func page(events []*models.Event, limit int, cursor *models.Cursor) []*models.Event {
	sort.SliceStable(events, func(i, j int) bool {
		return less(events[j], events[i])
	})

	out := make([]*models.Event, 0, limit)
	for _, e := range events {
		if cursor != nil && !less(e, &models.Event{ID: cursor.EventID, OccurredAt: cursor.OccurredAt}) {
			continue
		}
		out = append(out, cloneEvent(e))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// less orders by (occurred_at, event_id) ascending. UUID string form preserves
// byte order, matching Postgres row comparison.
func less(a, b *models.Event) bool {
	if !a.OccurredAt.Equal(b.OccurredAt) {
		return a.OccurredAt.Before(b.OccurredAt)
	}
	return strings.Compare(a.ID.String(), b.ID.String()) < 0
}

func cloneEvent(e *models.Event) *models.Event {
	clone := *e
	clone.Payload = append([]byte(nil), e.Payload...)
	clone.Entities = append([]models.EventEntity(nil), e.Entities...)
	if e.Trace != nil {
		trace := *e.Trace
		clone.Trace = &trace
	}
	return &clone
}
