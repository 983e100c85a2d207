package hooks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/domainhooks/hooks/go/internal/apperrors"
	"github.com/domainhooks/hooks/go/internal/models"
	"github.com/domainhooks/hooks/go/internal/sqlutil"
)

// Repository handles hook persistence in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new hook repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const hookColumns = `id, type, schema_name, event_name, condition, tags, webhook, queue_name`

// CreateHook creates a new hook
func (r *Repository) CreateHook(ctx context.Context, hook models.Hook) (*models.Hook, error) {
	webhook, err := sqlutil.ToJSONB(hook.Webhook)
	if err != nil {
		return nil, err
	}
	tags := hook.Tags
	if tags == nil {
		tags = []string{}
	}

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO hooks (id, type, schema_name, event_name, condition, tags, webhook, queue_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+hookColumns,
		hook.ID,
		string(hook.Type),
		hook.SchemaName,
		hook.EventName,
		sqlutil.ToSqlString(hook.Condition),
		pq.Array(tags),
		webhook,
		sqlutil.ToSqlString(hook.QueueName),
	)
	return scanHook(row)
}

// GetHook retrieves a hook by ID
func (r *Repository) GetHook(ctx context.Context, id uuid.UUID) (*models.Hook, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+hookColumns+` FROM hooks WHERE id = $1`, id)
	return scanHook(row)
}

// FindHooks lists hooks matching filter
func (r *Repository) FindHooks(ctx context.Context, filter models.HookFilter, page models.Page) ([]models.Hook, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+hookColumns+` FROM hooks
		WHERE ($1 = '' OR type = $1)
		  AND ($2 = '' OR schema_name = $2)
		  AND ($3 = '' OR event_name = $3)
		ORDER BY created_at, id
		LIMIT $4 OFFSET $5`,
		string(filter.Type), filter.SchemaName, filter.EventName, page.Limit(), page.Offset(),
	)
	if err != nil {
		return nil, fmt.Errorf("query hooks: %w", err)
	}
	return collectHooks(rows)
}

// FindEligibleHooks uses array containment: hook tags <@ group.
func (r *Repository) FindEligibleHooks(ctx context.Context, schemaName, eventName string, group []string) ([]models.Hook, error) {
	if group == nil {
		group = []string{}
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+hookColumns+` FROM hooks
		WHERE schema_name = $1 AND event_name = $2 AND tags <@ $3::text[]
		ORDER BY created_at, id`,
		schemaName, eventName, pq.Array(group),
	)
	if err != nil {
		return nil, fmt.Errorf("query eligible hooks: %w", err)
	}
	return collectHooks(rows)
}

// DeleteHook deletes a hook and returns it
func (r *Repository) DeleteHook(ctx context.Context, id uuid.UUID) (*models.Hook, error) {
	row := r.db.QueryRowContext(ctx, `DELETE FROM hooks WHERE id = $1 RETURNING `+hookColumns, id)
	return scanHook(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func collectHooks(rows *sql.Rows) ([]models.Hook, error) {
	defer rows.Close()

	out := []models.Hook{}
	for rows.Next() {
		hook, err := scanHook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *hook)
	}
	return out, rows.Err()
}

func scanHook(row rowScanner) (*models.Hook, error) {
	var (
		hook      models.Hook
		hookType  string
		condition sql.NullString
		queueName sql.NullString
		webhook   pqtype.NullRawMessage
	)
	err := row.Scan(
		&hook.ID,
		&hookType,
		&hook.SchemaName,
		&hook.EventName,
		&condition,
		pq.Array(&hook.Tags),
		&webhook,
		&queueName,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNoRecord
		}
		return nil, fmt.Errorf("scan hook: %w", err)
	}

	hook.Type = models.HookType(hookType)
	hook.Condition = condition.String
	hook.QueueName = queueName.String
	if webhook.Valid {
		hook.Webhook = &models.WebhookConfig{}
		if err := sqlutil.FromJSONB(webhook, hook.Webhook); err != nil {
			return nil, err
		}
	}
	if hook.Tags == nil {
		hook.Tags = []string{}
	}
	return &hook, nil
}
