package domains

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/domainhooks/hooks/go/internal/apperrors"
	"github.com/domainhooks/hooks/go/internal/models"
)

// DomainsRepository defines what the app layer needs from the repository
type DomainsRepository interface {
	CreateDomain(ctx context.Context, domain models.Domain) (*models.Domain, error)
	GetDomain(ctx context.Context, schemaName, domainID string) (*models.Domain, error)
	FindDomains(ctx context.Context, filter models.DomainFilter, page models.Page) ([]models.Domain, error)
	DeleteDomain(ctx context.Context, schemaName, domainID string) (*models.Domain, error)
}

// SchemaValidator checks domain data against its registered schema.
type SchemaValidator interface {
	ExistsSchema(ctx context.Context, name string) error
	ValidateData(ctx context.Context, name string, data map[string]any) error
}

type App struct {
	repo    DomainsRepository
	schemas SchemaValidator
}

func NewApp(repo DomainsRepository, schemas SchemaValidator) *App {
	return &App{
		repo:    repo,
		schemas: schemas,
	}
}

// CreateDomain validates data against the schema and stores the record.
func (a *App) CreateDomain(ctx context.Context, schemaName string, req CreateDomainRequest) (*models.Domain, error) {
	if req.DomainID == "" {
		return nil, apperrors.Validation("domain_id is required", nil)
	}
	for i, group := range req.Tags {
		for _, tag := range group {
			if tag == "" {
				return nil, apperrors.Validation("tags must not be empty", map[string]int{"group": i})
			}
		}
	}
	if err := a.schemas.ValidateData(ctx, schemaName, req.Data); err != nil {
		return nil, err
	}

	tags := req.Tags
	if tags == nil {
		tags = [][]string{}
	}
	data := req.Data
	if data == nil {
		data = map[string]any{}
	}

	domain, err := a.repo.CreateDomain(ctx, models.Domain{
		SchemaName: schemaName,
		DomainID:   req.DomainID,
		Data:       data,
		Tags:       tags,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create domain: %w", err)
	}

	log.Info().
		Str("schema_name", schemaName).
		Str("domain_id", domain.DomainID).
		Msg("domain created")
	return domain, nil
}

// GetDomain returns the domain or a NotFound error naming the missing key.
func (a *App) GetDomain(ctx context.Context, schemaName, domainID string) (*models.Domain, error) {
	domain, err := a.repo.GetDomain(ctx, schemaName, domainID)
	if errors.Is(err, apperrors.ErrNoRecord) {
		return nil, notFound(schemaName, domainID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get domain: %w", err)
	}
	return domain, nil
}

func (a *App) FindDomains(ctx context.Context, filter models.DomainFilter, page models.Page) ([]models.Domain, error) {
	if err := a.schemas.ExistsSchema(ctx, filter.SchemaName); err != nil {
		return nil, err
	}
	domains, err := a.repo.FindDomains(ctx, filter, page)
	if err != nil {
		return nil, fmt.Errorf("failed to find domains: %w", err)
	}
	return domains, nil
}

func (a *App) DeleteDomain(ctx context.Context, schemaName, domainID string) (*models.Domain, error) {
	domain, err := a.repo.DeleteDomain(ctx, schemaName, domainID)
	if errors.Is(err, apperrors.ErrNoRecord) {
		return nil, notFound(schemaName, domainID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete domain: %w", err)
	}

	log.Info().
		Str("schema_name", schemaName).
		Str("domain_id", domainID).
		Msg("domain deleted")
	return domain, nil
}

func notFound(schemaName, domainID string) error {
	return apperrors.NotFound(
		fmt.Sprintf("domain not found: %s/%s", schemaName, domainID),
		map[string]string{"schema_name": schemaName, "domain_id": domainID},
	)
}
