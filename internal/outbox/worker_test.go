package outbox

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []*Entry
	failNext  bool
}

func (p *fakePublisher) Publish(_ context.Context, entries []*Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext {
		p.failNext = false
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, entries...)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

type WorkerSuite struct {
	suite.Suite
	store     *InMemoryStore
	publisher *fakePublisher
	worker    *Worker
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	s.store = NewMemory()
	s.publisher = &fakePublisher{}
	logger := slog.New(slog.DiscardHandler)
	s.worker = NewWorker(s.store, s.publisher, logger, 10*time.Millisecond, 10)
}

func (s *WorkerSuite) add(n int) {
	for i := 0; i < n; i++ {
		s.store.Add("acme", uuid.New(), []byte(`{"type":"user.created"}`))
	}
}

func (s *WorkerSuite) TestDrainOncePublishesAndMarks() {
	s.add(3)

	s.Require().NoError(s.worker.DrainOnce(context.Background()))

	s.Equal(3, s.publisher.count())
	s.Equal(0, s.store.PendingCount())
}

func (s *WorkerSuite) TestDrainOnceEmptyIsNoop() {
	s.Require().NoError(s.worker.DrainOnce(context.Background()))
	s.Equal(0, s.publisher.count())
}

func (s *WorkerSuite) TestPublishFailureLeavesEntriesPending() {
	s.add(2)
	s.publisher.failNext = true

	s.Require().Error(s.worker.DrainOnce(context.Background()))
	s.Equal(2, s.store.PendingCount())

	// Next pass succeeds and drains the same entries.
	s.Require().NoError(s.worker.DrainOnce(context.Background()))
	s.Equal(2, s.publisher.count())
	s.Equal(0, s.store.PendingCount())
}

func (s *WorkerSuite) TestDrainOnceRespectsBatchSize() {
	s.add(15)

	s.Require().NoError(s.worker.DrainOnce(context.Background()))

	s.Equal(10, s.publisher.count())
	s.Equal(5, s.store.PendingCount())
}

func (s *WorkerSuite) TestRunStopsOnContextCancel() {
	s.add(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.worker.Run(ctx)
	}()

	s.Require().Eventually(func() bool {
		return s.publisher.count() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		s.Require().ErrorIs(err, context.Canceled)
	case <-time.After(time.Second):
		s.Fail("worker did not stop")
	}
}
