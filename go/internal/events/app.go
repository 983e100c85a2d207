package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/domainhooks/hooks/go/internal/apperrors"
	"github.com/domainhooks/hooks/go/internal/expression"
	"github.com/domainhooks/hooks/go/internal/models"
)

// EventsRepository defines what the app layer needs from the repository
type EventsRepository interface {
	CreateEvents(ctx context.Context, events []models.DomainEvent) ([]models.DomainEvent, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*models.DomainEvent, error)
	FindEvents(ctx context.Context, filter models.EventFilter, page models.Page) ([]models.DomainEvent, error)
	FindPendingEvents(ctx context.Context, now time.Time, limit int) ([]models.DomainEvent, error)
	// TransitionStatus atomically sets status to `to` when the current status
	// is one of from. ok is false when nothing was updated.
	TransitionStatus(ctx context.Context, id uuid.UUID, from []models.EventStatus, to models.EventStatus, message *string) (event *models.DomainEvent, ok bool, err error)
}

// SchemaChecker is satisfied by schemas.App.
type SchemaChecker interface {
	ExistsSchema(ctx context.Context, name string) error
}

// DomainReader is satisfied by domains.App.
type DomainReader interface {
	GetDomain(ctx context.Context, schemaName, domainID string) (*models.Domain, error)
}

// HookMatcher is satisfied by hooks.App.
type HookMatcher interface {
	FindEligibleHooks(ctx context.Context, schemaName, eventName string, tagGroups [][]string) ([]models.Hook, error)
}

type App struct {
	repo       EventsRepository
	schemas    SchemaChecker
	domains    DomainReader
	matcher    HookMatcher
	dispatcher *Dispatcher
	notifier   StatusNotifier
	clock      clockwork.Clock
}

func NewApp(repo EventsRepository, schemas SchemaChecker, domains DomainReader, matcher HookMatcher, dispatcher *Dispatcher, notifier StatusNotifier, clock clockwork.Clock) *App {
	if notifier == nil {
		notifier = NoOpNotifier{}
	}
	return &App{
		repo:       repo,
		schemas:    schemas,
		domains:    domains,
		matcher:    matcher,
		dispatcher: dispatcher,
		notifier:   notifier,
		clock:      clock,
	}
}

// InsertEvent fans an incoming event out to one DomainEvent per matching hook.
// It returns an empty slice when no hook matches; nothing is stored then.
func (a *App) InsertEvent(ctx context.Context, schemaName, domainID string, req InsertEventRequest) ([]models.DomainEvent, error) {
	if req.EventName == "" {
		return nil, apperrors.Validation("event_name is required", nil)
	}
	metadata, err := decodeMetadata(req.Metadata)
	if err != nil {
		return nil, err
	}
	rawMetadata := req.Metadata
	if metadata == nil {
		rawMetadata = nil
	}

	if err := a.schemas.ExistsSchema(ctx, schemaName); err != nil {
		return nil, err
	}
	domain, err := a.domains.GetDomain(ctx, schemaName, domainID)
	if err != nil {
		return nil, err
	}

	candidates, err := a.matcher.FindEligibleHooks(ctx, schemaName, req.EventName, domain.Tags)
	if err != nil {
		return nil, err
	}

	vars := map[string]any{
		"event": map[string]any{
			"event_name":  req.EventName,
			"schema_name": schemaName,
			"domain_id":   domainID,
			"metadata":    metadata,
		},
		"domain": domain.Vars(),
	}

	now := a.clock.Now().UTC()
	pending := make([]models.DomainEvent, 0, len(candidates))
	for _, hook := range candidates {
		if !matchesCondition(hook, vars) {
			continue
		}
		pending = append(pending, models.DomainEvent{
			ID:         uuid.New(),
			EventName:  req.EventName,
			SchemaName: schemaName,
			DomainID:   domainID,
			Metadata:   rawMetadata,
			Status:     models.EventStatusCreated,
			Hook:       hook,
			Eta:        eta(hook, now),
		})
	}

	if len(pending) == 0 {
		log.Debug().
			Str("schema_name", schemaName).
			Str("domain_id", domainID).
			Str("event_name", req.EventName).
			Int("candidates", len(candidates)).
			Msg("no hooks matched event")
		return []models.DomainEvent{}, nil
	}

	created, err := a.repo.CreateEvents(ctx, pending)
	if err != nil {
		return nil, fmt.Errorf("failed to create events: %w", err)
	}

	for _, event := range created {
		a.notifier.NotifyStatus(ctx, event.Change(now))
	}
	a.dispatcher.Dispatch(ctx, created)

	log.Info().
		Str("schema_name", schemaName).
		Str("domain_id", domainID).
		Str("event_name", req.EventName).
		Int("events", len(created)).
		Msg("event fanned out")
	return created, nil
}

// matchesCondition reports whether hook's condition holds for vars. A condition
// that fails to evaluate excludes the hook.
func matchesCondition(hook models.Hook, vars map[string]any) bool {
	if hook.Condition == "" {
		return true
	}
	result, err := expression.Evaluate(hook.Condition, vars)
	if err != nil {
		log.Warn().
			Err(err).
			Str("hook_id", hook.ID.String()).
			Str("condition", hook.Condition).
			Msg("hook condition failed to evaluate, skipping hook")
		return false
	}
	return expression.Truthy(result)
}

// eta delays webhook deliveries by the hook's delay_time; every other hook is due now.
func eta(hook models.Hook, now time.Time) time.Time {
	return now.Add(time.Duration(hook.DelayMinutes()) * time.Minute)
}

func decodeMetadata(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, apperrors.Validation("metadata must be a JSON object", err.Error())
	}
	return metadata, nil
}

func (a *App) FindEvents(ctx context.Context, filter models.EventFilter, page models.Page) ([]models.DomainEvent, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperrors.Validation("invalid status", string(filter.Status))
	}
	if err := a.schemas.ExistsSchema(ctx, filter.SchemaName); err != nil {
		return nil, err
	}
	events, err := a.repo.FindEvents(ctx, filter, page)
	if err != nil {
		return nil, fmt.Errorf("failed to find events: %w", err)
	}
	return events, nil
}

// patchableStatuses are the states an external consumer may move an event out of.
var patchableStatuses = []models.EventStatus{models.EventStatusCreated, models.EventStatusProcessing}

// UpdateEventStatus is the manual status change used by queue consumers.
// Webhook events are driven only by the delivery workers.
func (a *App) UpdateEventStatus(ctx context.Context, schemaName string, id uuid.UUID, req UpdateEventRequest) (*models.DomainEvent, error) {
	if !req.Status.Valid() || req.Status == models.EventStatusCreated {
		return nil, apperrors.Validation("invalid status", string(req.Status))
	}

	event, err := a.repo.GetEvent(ctx, id)
	if errors.Is(err, apperrors.ErrNoRecord) || (err == nil && event.SchemaName != schemaName) {
		return nil, eventNotFound(schemaName, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if event.Hook.Type == models.HookTypeWebhook {
		return nil, stateError(event)
	}

	updated, ok, err := a.repo.TransitionStatus(ctx, id, patchableStatuses, req.Status, req.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to update event status: %w", err)
	}
	if !ok {
		return nil, stateError(event)
	}

	a.notifier.NotifyStatus(ctx, updated.Change(a.clock.Now().UTC()))
	log.Info().
		Str("event_id", id.String()).
		Str("from", string(event.Status)).
		Str("to", string(updated.Status)).
		Msg("event status updated")
	return updated, nil
}

func eventNotFound(schemaName string, id uuid.UUID) error {
	return apperrors.NotFound(fmt.Sprintf("event not found: %s/%s", schemaName, id),
		map[string]string{"schema_name": schemaName, "id": id.String()})
}

func stateError(event *models.DomainEvent) error {
	return apperrors.Validation("event state does not allow changes",
		map[string]string{"status": string(event.Status), "type": string(event.Hook.Type)})
}
