package hooks

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/domainhooks/hooks/go/internal/apperrors"
	"github.com/domainhooks/hooks/go/internal/expression"
	"github.com/domainhooks/hooks/go/internal/models"
)

// HooksRepository defines what the app layer needs from the repository
type HooksRepository interface {
	CreateHook(ctx context.Context, hook models.Hook) (*models.Hook, error)
	GetHook(ctx context.Context, id uuid.UUID) (*models.Hook, error)
	FindHooks(ctx context.Context, filter models.HookFilter, page models.Page) ([]models.Hook, error)
	DeleteHook(ctx context.Context, id uuid.UUID) (*models.Hook, error)
	// FindEligibleHooks returns hooks of schemaName/eventName whose tags are a subset of group.
	FindEligibleHooks(ctx context.Context, schemaName, eventName string, group []string) ([]models.Hook, error)
}

// SchemaChecker is satisfied by schemas.App.
type SchemaChecker interface {
	ExistsSchema(ctx context.Context, name string) error
}

type App struct {
	repo    HooksRepository
	schemas SchemaChecker
}

func NewApp(repo HooksRepository, schemas SchemaChecker) *App {
	return &App{
		repo:    repo,
		schemas: schemas,
	}
}

// CreateHook validates and registers a hook. The condition is parsed here so a
// malformed expression never reaches event fan-out.
func (a *App) CreateHook(ctx context.Context, req CreateHookRequest) (*models.Hook, error) {
	hook, err := a.buildHook(req)
	if err != nil {
		return nil, err
	}
	if err := a.schemas.ExistsSchema(ctx, hook.SchemaName); err != nil {
		return nil, err
	}

	created, err := a.repo.CreateHook(ctx, hook)
	if err != nil {
		return nil, fmt.Errorf("failed to create hook: %w", err)
	}

	log.Info().
		Str("hook_id", created.ID.String()).
		Str("type", string(created.Type)).
		Str("schema_name", created.SchemaName).
		Str("event_name", created.EventName).
		Msg("hook created")
	return created, nil
}

func (a *App) buildHook(req CreateHookRequest) (models.Hook, error) {
	if !req.Type.Valid() {
		return models.Hook{}, apperrors.Validation("invalid hook type", fmt.Sprintf("type must be %q or %q", models.HookTypeWebhook, models.HookTypeQueue))
	}
	if req.SchemaName == "" {
		return models.Hook{}, apperrors.Validation("schema_name is required", nil)
	}
	if req.EventName == "" {
		return models.Hook{}, apperrors.Validation("event_name is required", nil)
	}
	if req.Condition != "" {
		if _, err := expression.Parse(req.Condition); err != nil {
			return models.Hook{}, apperrors.Validation("invalid condition", err.Error())
		}
	}
	if req.QueueName != "" && !models.ValidQueueName(req.QueueName) {
		return models.Hook{}, apperrors.Validation("invalid queue_name", req.QueueName)
	}
	tags := make([]string, 0, len(req.Tags))
	for _, tag := range req.Tags {
		if tag == "" {
			return models.Hook{}, apperrors.Validation("tags must not be empty", nil)
		}
		tags = append(tags, tag)
	}

	hook := models.Hook{
		ID:         uuid.New(),
		Type:       req.Type,
		SchemaName: req.SchemaName,
		EventName:  req.EventName,
		Condition:  req.Condition,
		Tags:       tags,
		QueueName:  req.QueueName,
	}

	switch req.Type {
	case models.HookTypeWebhook:
		if req.Webhook == nil {
			return models.Hook{}, apperrors.Validation("webhook config is required for webhook hooks", nil)
		}
		webhook, err := buildWebhook(*req.Webhook)
		if err != nil {
			return models.Hook{}, err
		}
		hook.Webhook = webhook
	case models.HookTypeQueue:
		if req.Webhook != nil {
			return models.Hook{}, apperrors.Validation("queue hooks do not take a webhook config", nil)
		}
	}
	return hook, nil
}

func buildWebhook(req WebhookRequest) (*models.WebhookConfig, error) {
	u, err := url.ParseRequestURI(req.CallbackURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperrors.Validation("invalid callback_url", req.CallbackURL)
	}
	if req.DelayTime < 0 {
		return nil, apperrors.Validation("delay_time must not be negative", req.DelayTime)
	}

	cfg := &models.WebhookConfig{
		CallbackURL: req.CallbackURL,
		DelayTime:   req.DelayTime,
		HTTPHeaders: req.HTTPHeaders,
		Timeout:     models.DefaultWebhookTimeout,
		MaxRetries:  models.DefaultWebhookMaxRetries,
		QueueName:   models.DefaultQueueName,
	}
	if req.Timeout != nil {
		if *req.Timeout <= 0 || *req.Timeout > models.MaxWebhookTimeout {
			return nil, apperrors.Validation(
				fmt.Sprintf("timeout_seconds must be between 1 and %d", models.MaxWebhookTimeout), *req.Timeout)
		}
		cfg.Timeout = *req.Timeout
	}
	if req.MaxRetries != nil {
		if *req.MaxRetries < 0 {
			return nil, apperrors.Validation("max_retries must not be negative", *req.MaxRetries)
		}
		cfg.MaxRetries = *req.MaxRetries
	}
	if req.QueueName != "" {
		if !models.ValidQueueName(req.QueueName) {
			return nil, apperrors.Validation("invalid webhook queue_name", req.QueueName)
		}
		cfg.QueueName = req.QueueName
	}
	return cfg, nil
}

func (a *App) GetHook(ctx context.Context, id uuid.UUID) (*models.Hook, error) {
	hook, err := a.repo.GetHook(ctx, id)
	if errors.Is(err, apperrors.ErrNoRecord) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hook: %w", err)
	}
	return hook, nil
}

func (a *App) FindHooks(ctx context.Context, filter models.HookFilter, page models.Page) ([]models.Hook, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, apperrors.Validation("invalid hook type", string(filter.Type))
	}
	hooks, err := a.repo.FindHooks(ctx, filter, page)
	if err != nil {
		return nil, fmt.Errorf("failed to find hooks: %w", err)
	}
	return hooks, nil
}

// DeleteHook removes the hook. Events already fanned out keep their snapshot.
func (a *App) DeleteHook(ctx context.Context, id uuid.UUID) (*models.Hook, error) {
	hook, err := a.repo.DeleteHook(ctx, id)
	if errors.Is(err, apperrors.ErrNoRecord) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete hook: %w", err)
	}

	log.Info().Str("hook_id", id.String()).Msg("hook deleted")
	return hook, nil
}

// FindEligibleHooks matches hooks against each tag group of a domain. A hook
// matches a group when all of its tags are in that group; a domain without
// tags is treated as a single empty group. Results are concatenated in group
// order, so a hook matching several groups is returned once per group.
func (a *App) FindEligibleHooks(ctx context.Context, schemaName, eventName string, tagGroups [][]string) ([]models.Hook, error) {
	groups := tagGroups
	if len(groups) == 0 {
		groups = [][]string{{}}
	}

	var matched []models.Hook
	for _, group := range groups {
		if group == nil {
			group = []string{}
		}
		hooks, err := a.repo.FindEligibleHooks(ctx, schemaName, eventName, group)
		if err != nil {
			return nil, fmt.Errorf("failed to find eligible hooks: %w", err)
		}
		matched = append(matched, hooks...)
	}

	log.Debug().
		Str("schema_name", schemaName).
		Str("event_name", eventName).
		Int("groups", len(groups)).
		Int("hooks", len(matched)).
		Msg("matched hooks")
	return matched, nil
}

func notFound(id uuid.UUID) error {
	return apperrors.NotFound(fmt.Sprintf("hook not found: %s", id), map[string]string{"id": id.String()})
}
