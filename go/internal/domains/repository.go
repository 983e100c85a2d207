package domains

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sqlc-dev/pqtype"

	"github.com/domainhooks/hooks/go/internal/apperrors"
	"github.com/domainhooks/hooks/go/internal/models"
	"github.com/domainhooks/hooks/go/internal/sqlutil"
	"github.com/domainhooks/hooks/go/internal/storage/postgres"
)

// Repository handles domain persistence in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new domain repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const domainColumns = `schema_name, domain_id, data, tags`

// CreateDomain creates a new domain
func (r *Repository) CreateDomain(ctx context.Context, domain models.Domain) (*models.Domain, error) {
	data, err := sqlutil.ToJSONB(domain.Data)
	if err != nil {
		return nil, err
	}
	tags, err := sqlutil.ToJSONB(domain.Tags)
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO domains (schema_name, domain_id, data, tags)
		VALUES ($1, $2, $3, COALESCE($4, '[]'::jsonb))
		RETURNING `+domainColumns,
		domain.SchemaName, domain.DomainID, data, tags,
	)
	created, err := scanDomain(row)
	if err != nil && postgres.IsUniqueViolation(err) {
		return nil, apperrors.Integrity(
			fmt.Sprintf("domain already exists: %s/%s", domain.SchemaName, domain.DomainID), err)
	}
	return created, err
}

// GetDomain retrieves a domain by schema name and domain ID
func (r *Repository) GetDomain(ctx context.Context, schemaName, domainID string) (*models.Domain, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+domainColumns+` FROM domains
		WHERE schema_name = $1 AND domain_id = $2`,
		schemaName, domainID,
	)
	return scanDomain(row)
}

// FindDomains lists domains matching filter
func (r *Repository) FindDomains(ctx context.Context, filter models.DomainFilter, page models.Page) ([]models.Domain, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+domainColumns+` FROM domains
		WHERE schema_name = $1 AND ($2 = '' OR domain_id = $2)
		ORDER BY created_at, domain_id
		LIMIT $3 OFFSET $4`,
		filter.SchemaName, filter.DomainID, page.Limit(), page.Offset(),
	)
	if err != nil {
		return nil, fmt.Errorf("query domains: %w", err)
	}
	defer rows.Close()

	out := []models.Domain{}
	for rows.Next() {
		domain, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *domain)
	}
	return out, rows.Err()
}

// DeleteDomain deletes a domain and returns it
func (r *Repository) DeleteDomain(ctx context.Context, schemaName, domainID string) (*models.Domain, error) {
	row := r.db.QueryRowContext(ctx, `
		DELETE FROM domains WHERE schema_name = $1 AND domain_id = $2
		RETURNING `+domainColumns,
		schemaName, domainID,
	)
	return scanDomain(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDomain(row rowScanner) (*models.Domain, error) {
	var (
		domain     models.Domain
		data, tags pqtype.NullRawMessage
	)
	if err := row.Scan(&domain.SchemaName, &domain.DomainID, &data, &tags); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNoRecord
		}
		return nil, fmt.Errorf("scan domain: %w", err)
	}
	if err := sqlutil.FromJSONB(data, &domain.Data); err != nil {
		return nil, err
	}
	if err := sqlutil.FromJSONB(tags, &domain.Tags); err != nil {
		return nil, err
	}
	if domain.Tags == nil {
		domain.Tags = [][]string{}
	}
	return &domain, nil
}
