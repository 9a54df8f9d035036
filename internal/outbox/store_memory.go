package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore holds outbox entries in memory for tests/dev.
type InMemoryStore struct {
	mu        sync.Mutex
	entries   []*Entry
	published map[uuid.UUID]bool
}

// NewMemory constructs an empty in-memory outbox store.
func NewMemory() *InMemoryStore {
	return &InMemoryStore{published: make(map[uuid.UUID]bool)}
}

// Add enqueues an envelope as the ingestion transaction would.
func (s *InMemoryStore) Add(tenantID string, eventID uuid.UUID, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, &Entry{
		ID:        uuid.New(),
		TenantID:  tenantID,
		EventID:   eventID,
		Payload:   append([]byte(nil), payload...),
		CreatedAt: time.Now().UTC(),
	})
}

func (s *InMemoryStore) FetchUnpublished(_ context.Context, limit int) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Entry
	for _, entry := range s.entries {
		if s.published[entry.ID] {
			continue
		}
		out = append(out, entry)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) MarkPublished(_ context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.published[id] = true
	}
	return nil
}

// PendingCount reports how many entries remain unpublished. Test hook.
func (s *InMemoryStore) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, entry := range s.entries {
		if !s.published[entry.ID] {
			n++
		}
	}
	return n
}
