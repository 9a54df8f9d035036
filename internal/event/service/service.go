// Package service implements the ingestion pipeline and the timeline query
// engine on top of the tenant-scoped event store.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"audittrail/internal/event/cache"
	"audittrail/internal/event/extract"
	"audittrail/internal/event/hash"
	"audittrail/internal/event/metrics"
	"audittrail/internal/event/models"
	"audittrail/internal/event/store"
	"audittrail/internal/outbox"
	"audittrail/internal/tenancy"
	"audittrail/pkg/domain"
	dErrors "audittrail/pkg/domain-errors"
	"audittrail/pkg/platform/sentinel"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 100

	// maxCreateAttempts bounds the resolve/insert race loop. Two attempts
	// cover the realistic interleaving (lose the race once, then read the
	// winner); the third is slack for a winner whose transaction has not
	// committed by the time we re-read.
	maxCreateAttempts = 3
)

// EventService orchestrates validation, hashing, entity extraction, the
// idempotency protocol, and storage for audit events.
type EventService struct {
	store        store.EventStore
	cache        *cache.IdempotencyCache
	metrics      *metrics.Metrics
	logger       *slog.Logger
	tracer       trace.Tracer
	feedDisabled bool
}

type Option func(s *EventService)

func WithCache(c *cache.IdempotencyCache) Option {
	return func(s *EventService) {
		s.cache = c
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *EventService) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *EventService) {
		s.logger = logger
	}
}

// WithoutChangeFeed skips outbox envelope writes entirely. Use it when no
// publisher is configured; otherwise the outbox table grows with rows no
// worker will ever drain.
func WithoutChangeFeed() Option {
	return func(s *EventService) {
		s.feedDisabled = true
	}
}

// New constructs an EventService over the given store.
func New(st store.EventStore, opts ...Option) *EventService {
	s := &EventService{
		store:  st,
		logger: slog.Default(),
		tracer: otel.Tracer("audittrail/event"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest validates and durably stores a submitted event. The returned bool is
// true when a new event was created and false when the submission replayed an
// existing idempotency mapping; replays return the originally stored event
// regardless of the submitted payload.
func (s *EventService) Ingest(ctx context.Context, tc tenancy.Context, draft *models.Draft) (*models.Event, bool, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "event.Ingest")
	defer span.End()

	if err := draft.Validate(); err != nil {
		return nil, false, err
	}

	// timestamptz keeps microsecond precision, so normalize before hashing.
	// Otherwise a submission with sub-microsecond precision would round-trip
	// through storage with a different occurred_at and fail verification.
	occurredAt := draft.OccurredAt.UTC().Round(time.Microsecond)

	contentHash, err := hash.Compute(draft.Type, draft.Actor, draft.Payload, occurredAt)
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeValidation, "payload is not hashable")
	}
	entities := extract.Entities(draft)

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		if draft.IdempotencyKey != "" {
			existing, err := s.resolveIdempotencyKey(ctx, tc, draft.IdempotencyKey)
			if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
				return nil, false, dErrors.Wrap(err, dErrors.CodeUnavailable, "idempotency lookup failed")
			}
			if existing != nil {
				s.observeReplay(start)
				span.SetAttributes(attribute.Bool("event.replay", true))
				return existing, false, nil
			}
		}

		event := &models.Event{
			ID:             domain.NewEventID(),
			TenantID:       tc.TenantID(),
			OccurredAt:     occurredAt,
			Type:           draft.Type,
			Actor:          draft.Actor,
			Trace:          draft.Trace,
			Payload:        draft.Payload,
			ContentHash:    contentHash,
			IdempotencyKey: draft.IdempotencyKey,
			Entities:       entities,
		}
		var envelope []byte
		if !s.feedDisabled {
			envelope, err = outbox.NewEnvelope(event)
			if err != nil {
				return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build change feed envelope")
			}
		}

		err = s.store.CreateEvent(ctx, tc, event, envelope)
		if err == nil {
			s.cachePut(ctx, tc, draft.IdempotencyKey, event.ID)
			s.observeIngest(start)
			span.SetAttributes(attribute.String("event.id", event.ID.String()))
			return event, true, nil
		}
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			// Lost the uniqueness race; loop around and read the winner.
			s.incrementConflicts()
			continue
		}
		return nil, false, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to store event")
	}

	// The winning row was registered but never became readable within our
	// attempts. Surface the contention rather than guessing.
	return nil, false, dErrors.New(dErrors.CodeConflict, "idempotency key is contended, retry the request")
}

// resolveIdempotencyKey returns the stored event for the key, trying the
// cache fast path before the store. Cache failures degrade to the store
// lookup.
func (s *EventService) resolveIdempotencyKey(ctx context.Context, tc tenancy.Context, key string) (*models.Event, error) {
	if s.cache != nil {
		id, ok, err := s.cache.Get(ctx, tc, key)
		if err != nil {
			s.logger.WarnContext(ctx, "idempotency cache lookup failed", "error", err)
		} else if ok {
			event, err := s.store.FindByID(ctx, tc, id)
			if err == nil {
				return event, nil
			}
			if !errors.Is(err, sentinel.ErrNotFound) {
				return nil, err
			}
			// Stale cache entry; fall through to the authoritative lookup.
		}
	}

	event, err := s.store.FindByIdempotencyKey(ctx, tc, key)
	if err != nil {
		return nil, err
	}
	return event, nil
}

// GetEvent returns a single event and verifies its tamper-evidence hash on
// the way out.
func (s *EventService) GetEvent(ctx context.Context, tc tenancy.Context, id domain.EventID) (*models.Event, error) {
	ctx, span := s.tracer.Start(ctx, "event.GetEvent")
	defer span.End()

	event, err := s.store.FindByID(ctx, tc, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "event not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load event")
	}

	ok, err := hash.Verify(event)
	if err != nil || !ok {
		s.logger.ErrorContext(ctx, "stored event failed content hash verification",
			"event_id", event.ID, "error", err)
		return nil, dErrors.New(dErrors.CodeIntegrityViolation, "stored event failed integrity verification")
	}
	return event, nil
}

// TimelineByEntity returns one page of the entity's timeline, newest first.
func (s *EventService) TimelineByEntity(ctx context.Context, tc tenancy.Context, kind, id string, page models.Page) (*models.Timeline, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "event.TimelineByEntity",
		trace.WithAttributes(attribute.String("entity.kind", kind)))
	defer span.End()

	if kind == "" || id == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "entity kind and id are required")
	}
	limit, cursor, err := normalizePage(page)
	if err != nil {
		return nil, err
	}

	events, err := s.store.ListByEntity(ctx, tc, kind, id, limit, cursor)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to query timeline")
	}
	s.observeTimeline(start)
	return buildTimeline(events, limit), nil
}

// ListEvents returns one page of the tenant timeline with optional filters.
func (s *EventService) ListEvents(ctx context.Context, tc tenancy.Context, filter store.ListFilter, page models.Page) (*models.Timeline, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "event.ListEvents")
	defer span.End()

	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, dErrors.New(dErrors.CodeValidation, "from must not be after to")
	}
	limit, cursor, err := normalizePage(page)
	if err != nil {
		return nil, err
	}

	events, err := s.store.List(ctx, tc, filter, limit, cursor)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to query events")
	}
	s.observeTimeline(start)
	return buildTimeline(events, limit), nil
}

func normalizePage(page models.Page) (int, *models.Cursor, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if page.Cursor == "" {
		return limit, nil, nil
	}
	cursor, err := models.DecodeCursor(page.Cursor)
	if err != nil {
		return 0, nil, dErrors.New(dErrors.CodeBadRequest, "invalid pagination cursor")
	}
	return limit, &cursor, nil
}

// buildTimeline emits a continuation cursor only when the page is full. A
// full final page costs one extra empty fetch; a short page terminates
// immediately.
func buildTimeline(events []*models.Event, limit int) *models.Timeline {
	timeline := &models.Timeline{Events: events}
	if len(events) == limit {
		last := events[len(events)-1]
		timeline.NextCursor = models.EncodeCursor(models.Cursor{
			OccurredAt: last.OccurredAt,
			EventID:    last.ID,
		})
	}
	return timeline
}

func (s *EventService) cachePut(ctx context.Context, tc tenancy.Context, key string, id domain.EventID) {
	if s.cache == nil || key == "" {
		return
	}
	if err := s.cache.Put(ctx, tc, key, id); err != nil {
		s.logger.WarnContext(ctx, "idempotency cache put failed", "error", err)
	}
}

func (s *EventService) observeIngest(start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.EventsIngested.Inc()
	s.metrics.ObserveIngest(start)
}

func (s *EventService) observeReplay(start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.IdempotentReplays.Inc()
	s.metrics.ObserveIngest(start)
}

func (s *EventService) incrementConflicts() {
	if s.metrics == nil {
		return
	}
	s.metrics.IdempotencyConflicts.Inc()
}

func (s *EventService) observeTimeline(start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveTimelineQuery(start)
}
