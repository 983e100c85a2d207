package schemas

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/domainhooks/hooks/go/internal/apperrors"
	"github.com/domainhooks/hooks/go/internal/models"
)

// SchemasRepository defines what the app layer needs from the repository
type SchemasRepository interface {
	UpsertSchema(ctx context.Context, schema models.DomainSchema) (*models.DomainSchema, error)
	GetSchema(ctx context.Context, name string) (*models.DomainSchema, error)
	FindSchemas(ctx context.Context, filter models.SchemaFilter, page models.Page) ([]models.DomainSchema, error)
	DeleteSchema(ctx context.Context, name string) (*models.DomainSchema, error)
}

// App handles schema registration and domain data validation.
type App struct {
	repo      SchemasRepository
	validator *validator
}

func NewApp(repo SchemasRepository) *App {
	return &App{
		repo:      repo,
		validator: newValidator(),
	}
}

// UpsertSchema stores the schema after checking it compiles.
func (a *App) UpsertSchema(ctx context.Context, req UpsertSchemaRequest) (*models.DomainSchema, error) {
	if req.Name == "" {
		return nil, apperrors.Validation("schema name is required", nil)
	}
	if len(req.DomainSchema) == 0 {
		return nil, apperrors.Validation("domain_schema is required", nil)
	}
	if _, err := compile(req.Name, req.DomainSchema); err != nil {
		return nil, apperrors.Validation(fmt.Sprintf("invalid schema: %s", req.Name), validationMessage(err))
	}

	schema, err := a.repo.UpsertSchema(ctx, models.DomainSchema{
		Name:         req.Name,
		DomainSchema: req.DomainSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert schema: %w", err)
	}

	log.Info().Str("schema_name", schema.Name).Msg("schema saved")
	return schema, nil
}

// GetSchema returns the schema or a NotFound error.
func (a *App) GetSchema(ctx context.Context, name string) (*models.DomainSchema, error) {
	schema, err := a.repo.GetSchema(ctx, name)
	if errors.Is(err, apperrors.ErrNoRecord) {
		return nil, apperrors.NotFound(fmt.Sprintf("schema not found: %s", name), map[string]string{"name": name})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}
	return schema, nil
}

// ExistsSchema fails with NotFound when the schema is not registered.
func (a *App) ExistsSchema(ctx context.Context, name string) error {
	_, err := a.GetSchema(ctx, name)
	return err
}

func (a *App) FindSchemas(ctx context.Context, filter models.SchemaFilter, page models.Page) ([]models.DomainSchema, error) {
	schemas, err := a.repo.FindSchemas(ctx, filter, page)
	if err != nil {
		return nil, fmt.Errorf("failed to find schemas: %w", err)
	}
	return schemas, nil
}

// DeleteSchema removes the schema. Existing domains and events are left in place.
func (a *App) DeleteSchema(ctx context.Context, name string) (*models.DomainSchema, error) {
	schema, err := a.repo.DeleteSchema(ctx, name)
	if errors.Is(err, apperrors.ErrNoRecord) {
		return nil, apperrors.NotFound(fmt.Sprintf("schema not found: %s", name), map[string]string{"name": name})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete schema: %w", err)
	}
	a.validator.forget(name)

	log.Info().Str("schema_name", name).Msg("schema deleted")
	return schema, nil
}

// ValidateData checks data against the named schema.
func (a *App) ValidateData(ctx context.Context, name string, data map[string]any) error {
	schema, err := a.GetSchema(ctx, name)
	if err != nil {
		return err
	}

	compiled, err := a.validator.compile(name, schema.DomainSchema)
	if err != nil {
		return apperrors.Validation(fmt.Sprintf("invalid schema: %s", name), validationMessage(err))
	}

	var instance any = data
	if data == nil {
		instance = map[string]any{}
	}
	if err := compiled.Validate(instance); err != nil {
		return apperrors.Validation(fmt.Sprintf("domain has an invalid schema: %s", name), validationMessage(err))
	}
	return nil
}
