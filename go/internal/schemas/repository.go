package schemas

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sqlc-dev/pqtype"

	"github.com/domainhooks/hooks/go/internal/apperrors"
	"github.com/domainhooks/hooks/go/internal/models"
	"github.com/domainhooks/hooks/go/internal/sqlutil"
)

// Repository handles schema persistence in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new schema repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const schemaColumns = `name, domain_schema`

// UpsertSchema creates a schema or replaces the existing one
func (r *Repository) UpsertSchema(ctx context.Context, schema models.DomainSchema) (*models.DomainSchema, error) {
	doc, err := sqlutil.ToJSONB(schema.DomainSchema)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO domain_schemas (name, domain_schema)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE
		SET domain_schema = EXCLUDED.domain_schema, updated_at = now()
		RETURNING `+schemaColumns,
		schema.Name, doc,
	)
	return scanSchema(row)
}

// GetSchema retrieves a schema by name
func (r *Repository) GetSchema(ctx context.Context, name string) (*models.DomainSchema, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+schemaColumns+` FROM domain_schemas WHERE name = $1`, name)
	return scanSchema(row)
}

// FindSchemas lists schemas matching filter
func (r *Repository) FindSchemas(ctx context.Context, filter models.SchemaFilter, page models.Page) ([]models.DomainSchema, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+schemaColumns+` FROM domain_schemas
		WHERE ($1 = '' OR name = $1)
		ORDER BY created_at, name
		LIMIT $2 OFFSET $3`,
		filter.Name, page.Limit(), page.Offset(),
	)
	if err != nil {
		return nil, fmt.Errorf("query schemas: %w", err)
	}
	defer rows.Close()

	out := []models.DomainSchema{}
	for rows.Next() {
		schema, err := scanSchema(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *schema)
	}
	return out, rows.Err()
}

// DeleteSchema deletes a schema and returns it
func (r *Repository) DeleteSchema(ctx context.Context, name string) (*models.DomainSchema, error) {
	row := r.db.QueryRowContext(ctx,
		`DELETE FROM domain_schemas WHERE name = $1 RETURNING `+schemaColumns, name)
	return scanSchema(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchema(row rowScanner) (*models.DomainSchema, error) {
	var (
		schema models.DomainSchema
		doc    pqtype.NullRawMessage
	)
	if err := row.Scan(&schema.Name, &doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNoRecord
		}
		return nil, fmt.Errorf("scan schema: %w", err)
	}
	schema.DomainSchema = sqlutil.RawJSONB(doc)
	return &schema, nil
}
