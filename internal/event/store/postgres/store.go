// Package postgres implements the tenant-scoped EventStore on PostgreSQL.
//
// Isolation is enforced twice, independently. Every statement carries an
// explicit tenant_id predicate, and every transaction first binds the tenant
// into the session with set_config('app.tenant_id', ..., true) so the
// database's row-level security policies filter rows even if a query here is
// ever built wrong. The RLS policies live in migrations/.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"audittrail/internal/event/models"
	"audittrail/internal/event/store"
	"audittrail/internal/tenancy"
	"audittrail/pkg/domain"
	"audittrail/pkg/platform/sentinel"
)

// pgUniqueViolation is the SQLSTATE for unique constraint violations.
const pgUniqueViolation = "23505"

// idempotencyConstraint is the partial unique index backing the
// (tenant_id, idempotency_key) mapping.
const idempotencyConstraint = "uq_events_tenant_idempotency"

// Store is the PostgreSQL-backed EventStore.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL event store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ store.EventStore = (*Store)(nil)

// withTenantTx runs fn inside a transaction with the tenant bound into the
// session. set_config(..., true) is transaction-local, so the binding can
// never leak across pooled connections.
func (s *Store) withTenantTx(ctx context.Context, tc tenancy.Context, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	if tc.IsZero() {
		return fmt.Errorf("tenant context is required: %w", sentinel.ErrInvalidState)
	}

	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %v: %w", err, sentinel.ErrUnavailable)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT set_config('app.tenant_id', $1, true)`, tc.TenantID().String()); err != nil {
		return fmt.Errorf("bind tenant to session: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) CreateEvent(ctx context.Context, tc tenancy.Context, event *models.Event, envelope []byte) error {
	return s.withTenantTx(ctx, tc, nil, func(tx *sql.Tx) error {
		var trace any
		if event.Trace != nil {
			encoded, err := json.Marshal(event.Trace)
			if err != nil {
				return fmt.Errorf("encode trace: %w", err)
			}
			trace = encoded
		}

		var idemKey any
		if event.IdempotencyKey != "" {
			idemKey = event.IdempotencyKey
		}

		err := tx.QueryRowContext(ctx, `
			INSERT INTO events (
				id, tenant_id, occurred_at, type, actor_kind, actor_id,
				trace, payload, content_hash, idempotency_key
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING recorded_at
		`,
			uuid.UUID(event.ID),
			tc.TenantID().String(),
			event.OccurredAt,
			event.Type,
			event.Actor.Kind,
			event.Actor.ID,
			trace,
			[]byte(event.Payload),
			event.ContentHash,
			idemKey,
		).Scan(&event.RecordedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == idempotencyConstraint {
				return fmt.Errorf("idempotency key %q: %w", event.IdempotencyKey, sentinel.ErrAlreadyUsed)
			}
			return fmt.Errorf("insert event: %w", err)
		}
		event.TenantID = tc.TenantID()

		for _, entity := range event.Entities {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO event_entities (event_id, tenant_id, entity_kind, entity_id, role)
				VALUES ($1, $2, $3, $4, $5)
			`,
				uuid.UUID(event.ID),
				tc.TenantID().String(),
				entity.EntityKind,
				entity.EntityID,
				entity.Role,
			)
			if err != nil {
				return fmt.Errorf("insert event entity: %w", err)
			}
		}

		if envelope != nil {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO outbox (id, tenant_id, event_id, payload)
				VALUES ($1, $2, $3, $4)
			`,
				uuid.New(),
				tc.TenantID().String(),
				uuid.UUID(event.ID),
				envelope,
			)
			if err != nil {
				return fmt.Errorf("insert outbox entry: %w", err)
			}
		}
		return nil
	})
}

const eventColumns = `
	e.id, e.tenant_id, e.occurred_at, e.recorded_at, e.type,
	e.actor_kind, e.actor_id, e.trace, e.payload, e.content_hash, e.idempotency_key
`

func (s *Store) FindByID(ctx context.Context, tc tenancy.Context, id domain.EventID) (*models.Event, error) {
	var event *models.Event
	err := s.withTenantTx(ctx, tc, &sql.TxOptions{ReadOnly: true}, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+eventColumns+`
			FROM events e
			WHERE e.id = $1 AND e.tenant_id = $2
		`, uuid.UUID(id), tc.TenantID().String())

		found, err := scanEvent(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("event %s: %w", id, sentinel.ErrNotFound)
			}
			return fmt.Errorf("query event: %w", err)
		}
		if err := s.loadEntities(ctx, tx, tc, []*models.Event{found}); err != nil {
			return err
		}
		event = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (s *Store) FindByIdempotencyKey(ctx context.Context, tc tenancy.Context, key string) (*models.Event, error) {
	var event *models.Event
	err := s.withTenantTx(ctx, tc, &sql.TxOptions{ReadOnly: true}, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+eventColumns+`
			FROM events e
			WHERE e.tenant_id = $1 AND e.idempotency_key = $2
		`, tc.TenantID().String(), key)

		found, err := scanEvent(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("idempotency key %q: %w", key, sentinel.ErrNotFound)
			}
			return fmt.Errorf("query event by idempotency key: %w", err)
		}
		if err := s.loadEntities(ctx, tx, tc, []*models.Event{found}); err != nil {
			return err
		}
		event = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (s *Store) ListByEntity(ctx context.Context, tc tenancy.Context, kind, id string, limit int, cursor *models.Cursor) ([]*models.Event, error) {
	query := `
		SELECT DISTINCT ` + eventColumns + `
		FROM events e
		JOIN event_entities ee ON ee.event_id = e.id
		WHERE e.tenant_id = $1 AND ee.tenant_id = $1
		  AND ee.entity_kind = $2 AND ee.entity_id = $3
	`
	args := []any{tc.TenantID().String(), kind, id}
	query, args = appendKeyset(query, args, cursor, limit)
	return s.listEvents(ctx, tc, query, args)
}

func (s *Store) List(ctx context.Context, tc tenancy.Context, filter store.ListFilter, limit int, cursor *models.Cursor) ([]*models.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events e
		WHERE e.tenant_id = $1
	`
	args := []any{tc.TenantID().String()}

	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND e.occurred_at >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND e.occurred_at <= $%d", len(args))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND e.type = $%d", len(args))
	}
	if filter.ActorID != "" {
		args = append(args, filter.ActorID)
		query += fmt.Sprintf(" AND e.actor_id = $%d", len(args))
	}

	query, args = appendKeyset(query, args, cursor, limit)
	return s.listEvents(ctx, tc, query, args)
}

// appendKeyset adds the cursor boundary, ordering, and limit. Pages are keyed
// on the (occurred_at, id) total order; row comparison keeps the boundary
// stable under concurrent inserts.
func appendKeyset(query string, args []any, cursor *models.Cursor, limit int) (string, []any) {
	if cursor != nil {
		args = append(args, cursor.OccurredAt, uuid.UUID(cursor.EventID))
		query += fmt.Sprintf(" AND (e.occurred_at, e.id) < ($%d, $%d)", len(args)-1, len(args))
	}
	query += " ORDER BY e.occurred_at DESC, e.id DESC"
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	return query, args
}

func (s *Store) listEvents(ctx context.Context, tc tenancy.Context, query string, args []any) ([]*models.Event, error) {
	var events []*models.Event
	err := s.withTenantTx(ctx, tc, &sql.TxOptions{ReadOnly: true}, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			event, err := scanEvent(rows)
			if err != nil {
				return fmt.Errorf("scan event: %w", err)
			}
			events = append(events, event)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate events: %w", err)
		}
		return s.loadEntities(ctx, tx, tc, events)
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// loadEntities attaches entity rows to the given events in one round trip.
func (s *Store) loadEntities(ctx context.Context, tx *sql.Tx, tc tenancy.Context, events []*models.Event) error {
	if len(events) == 0 {
		return nil
	}

	ids := make([]string, len(events))
	byID := make(map[domain.EventID]*models.Event, len(events))
	for i, e := range events {
		ids[i] = e.ID.String()
		byID[e.ID] = e
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT event_id, entity_kind, entity_id, role
		FROM event_entities
		WHERE tenant_id = $1 AND event_id = ANY($2::uuid[])
		ORDER BY id
	`, tc.TenantID().String(), ids)
	if err != nil {
		return fmt.Errorf("query event entities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			eventID uuid.UUID
			entity  models.EventEntity
		)
		if err := rows.Scan(&eventID, &entity.EntityKind, &entity.EntityID, &entity.Role); err != nil {
			return fmt.Errorf("scan event entity: %w", err)
		}
		entity.EventID = domain.EventID(eventID)
		if event, ok := byID[entity.EventID]; ok {
			event.Entities = append(event.Entities, entity)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate event entities: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var (
		event    models.Event
		id       uuid.UUID
		tenantID string
		trace    sql.NullString
		payload  []byte
		idemKey  sql.NullString
	)
	err := row.Scan(
		&id,
		&tenantID,
		&event.OccurredAt,
		&event.RecordedAt,
		&event.Type,
		&event.Actor.Kind,
		&event.Actor.ID,
		&trace,
		&payload,
		&event.ContentHash,
		&idemKey,
	)
	if err != nil {
		return nil, err
	}

	event.ID = domain.EventID(id)
	event.TenantID = domain.TenantID(tenantID)
	event.Payload = payload
	event.OccurredAt = event.OccurredAt.UTC()
	event.RecordedAt = event.RecordedAt.UTC()
	if idemKey.Valid {
		event.IdempotencyKey = idemKey.String
	}
	if trace.Valid {
		var decoded models.Trace
		if err := json.Unmarshal([]byte(trace.String), &decoded); err != nil {
			return nil, fmt.Errorf("decode trace: %w", err)
		}
		event.Trace = &decoded
	}
	return &event, nil
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}
