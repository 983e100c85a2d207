package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/domainhooks/hooks/go/internal/apperrors"
	"github.com/domainhooks/hooks/go/internal/models"
	"github.com/domainhooks/hooks/go/internal/sqlutil"
	"github.com/domainhooks/hooks/go/internal/storage/postgres"
)

// insertChunkSize keeps a multi-row INSERT well under the 65535 parameter limit.
const insertChunkSize = 500

// Repository handles domain event persistence in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new event repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const eventColumns = `id, event_name, schema_name, domain_id, metadata, status, hook, eta, failure_message, created_at, updated_at`

var insertColumns = []string{"id", "event_name", "schema_name", "domain_id", "metadata", "status", "hook", "queue_name", "eta"}

// CreateEvents inserts the batch in one transaction and returns the stored rows
// in input order.
func (r *Repository) CreateEvents(ctx context.Context, events []models.DomainEvent) ([]models.DomainEvent, error) {
	if len(events) == 0 {
		return []models.DomainEvent{}, nil
	}

	stored := make(map[uuid.UUID]models.DomainEvent, len(events))
	err := sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		for _, b := range chunkBounds(len(events), insertChunkSize) {
			if err := insertChunk(ctx, tx, events[b[0]:b[1]], stored); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, apperrors.Integrity("event already exists", err)
		}
		return nil, err
	}

	out := make([]models.DomainEvent, 0, len(events))
	for _, e := range events {
		out = append(out, stored[e.ID])
	}
	return out, nil
}

// insertChunk inserts one chunk and records the returned rows in stored.
func insertChunk(ctx context.Context, tx *sql.Tx, chunk []models.DomainEvent, stored map[uuid.UUID]models.DomainEvent) error {
	query, args, err := buildInsert(chunk)
	if err != nil {
		return err
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return err
		}
		stored[e.ID] = *e
	}
	return rows.Err()
}

// buildInsert renders one multi-row INSERT for chunk, numbering placeholders
// row by row in insertColumns order.
func buildInsert(chunk []models.DomainEvent) (string, []any, error) {
	placeholders := make([]string, 0, len(chunk))
	args := make([]any, 0, len(chunk)*len(insertColumns))

	argi := 1
	for _, e := range chunk {
		metadata, err := sqlutil.ToJSONB(e.Metadata)
		if err != nil {
			return "", nil, err
		}
		hook, err := sqlutil.ToJSONB(e.Hook)
		if err != nil {
			return "", nil, err
		}

		args = append(args, e.ID, e.EventName, e.SchemaName, e.DomainID, metadata, string(e.Status), hook, e.Hook.Queue(), e.Eta)
		ph := make([]string, 0, len(insertColumns))
		for range insertColumns {
			ph = append(ph, fmt.Sprintf("$%d", argi))
			argi++
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
	}

	query := "INSERT INTO domain_events (" + strings.Join(insertColumns, ",") + ") VALUES " +
		strings.Join(placeholders, ",") +
		" RETURNING " + eventColumns
	return query, args, nil
}

// chunkBounds splits n rows into [start, end) ranges of at most size rows.
func chunkBounds(n, size int) [][2]int {
	var bounds [][2]int
	for start := 0; start < n; start += size {
		bounds = append(bounds, [2]int{start, min(start+size, n)})
	}
	return bounds
}

// GetEvent returns the event with the given ID.
func (r *Repository) GetEvent(ctx context.Context, id uuid.UUID) (*models.DomainEvent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM domain_events WHERE id = $1`, id)
	return scanEvent(row)
}

// FindEvents lists a schema's events matching filter, oldest first.
func (r *Repository) FindEvents(ctx context.Context, filter models.EventFilter, page models.Page) ([]models.DomainEvent, error) {
	var id uuid.NullUUID
	if filter.ID != nil {
		id = uuid.NullUUID{UUID: *filter.ID, Valid: true}
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM domain_events
		WHERE schema_name = $1
		  AND ($2::uuid IS NULL OR id = $2)
		  AND ($3 = '' OR event_name = $3)
		  AND ($4 = '' OR queue_name = $4)
		  AND ($5 = '' OR status = $5)
		ORDER BY created_at, id
		LIMIT $6 OFFSET $7`,
		filter.SchemaName, id, filter.EventName, filter.QueueName, string(filter.Status),
		page.Limit(), page.Offset(),
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return collectEvents(rows)
}

// FindPendingEvents returns created events due at or before now, served by
// the partial index on eta.
func (r *Repository) FindPendingEvents(ctx context.Context, now time.Time, limit int) ([]models.DomainEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM domain_events
		WHERE status = 'created' AND eta <= $1
		ORDER BY eta
		LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending events: %w", err)
	}
	return collectEvents(rows)
}

const transitionQuery = `
		UPDATE domain_events
		SET status = $2,
		    failure_message = COALESCE($3, failure_message),
		    updated_at = now()
		WHERE id = $1 AND status = ANY($4::text[])
		RETURNING ` + eventColumns

func statusStrings(statuses []models.EventStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// TransitionStatus is a single conditional UPDATE, so concurrent callers
// cannot both move the same event out of a status.
func (r *Repository) TransitionStatus(ctx context.Context, id uuid.UUID, from []models.EventStatus, to models.EventStatus, message *string) (*models.DomainEvent, bool, error) {
	row := r.db.QueryRowContext(ctx, transitionQuery,
		id, string(to), sqlutil.ToSqlStringPtr(message), pq.Array(statusStrings(from)),
	)
	event, err := scanEvent(row)
	if errors.Is(err, apperrors.ErrNoRecord) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return event, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func collectEvents(rows *sql.Rows) ([]models.DomainEvent, error) {
	defer rows.Close()

	out := []models.DomainEvent{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanEvent(row rowScanner) (*models.DomainEvent, error) {
	var (
		e              models.DomainEvent
		status         string
		metadata, hook pqtype.NullRawMessage
		failureMessage sql.NullString
	)
	err := row.Scan(
		&e.ID,
		&e.EventName,
		&e.SchemaName,
		&e.DomainID,
		&metadata,
		&status,
		&hook,
		&e.Eta,
		&failureMessage,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNoRecord
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}

	e.Status = models.EventStatus(status)
	e.Metadata = sqlutil.RawJSONB(metadata)
	e.FailureMessage = sqlutil.FromSqlStringPtr(failureMessage)
	if err := sqlutil.FromJSONB(hook, &e.Hook); err != nil {
		return nil, err
	}
	e.Eta = e.Eta.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}
