package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/domainhooks/hooks/go/internal/models"
	"github.com/domainhooks/hooks/go/internal/taskqueue"
)

// pendingBatchSize bounds a single sweep.
const pendingBatchSize = 500

// WebhookSender is satisfied by clients.WebhookClient.
type WebhookSender interface {
	Deliver(ctx context.Context, cfg models.WebhookConfig, payload models.WebhookPayload) error
}

// Processor runs on the delivery workers: it claims events, calls webhooks and
// records outcomes.
type Processor struct {
	repo       EventsRepository
	webhooks   WebhookSender
	dispatcher *Dispatcher
	notifier   StatusNotifier
	clock      clockwork.Clock
}

func NewProcessor(repo EventsRepository, webhooks WebhookSender, dispatcher *Dispatcher, notifier StatusNotifier, clock clockwork.Clock) *Processor {
	if notifier == nil {
		notifier = NoOpNotifier{}
	}
	return &Processor{
		repo:       repo,
		webhooks:   webhooks,
		dispatcher: dispatcher,
		notifier:   notifier,
		clock:      clock,
	}
}

// claimableStatuses lists what a delivery attempt may claim from. A retry of
// the same task may re-enter an event its previous attempt left in error.
func claimableStatuses(attempt int) []models.EventStatus {
	if attempt > 1 {
		return []models.EventStatus{models.EventStatusCreated, models.EventStatusError}
	}
	return []models.EventStatus{models.EventStatusCreated}
}

// ProcessEvent is the taskqueue.Handler for deliveries. An event that cannot
// be claimed was already handled elsewhere and is acknowledged as a no-op.
func (p *Processor) ProcessEvent(ctx context.Context, d taskqueue.Delivery) error {
	event, ok, err := p.repo.TransitionStatus(ctx, d.EventID, claimableStatuses(d.Attempt), models.EventStatusProcessing, nil)
	if err != nil {
		return fmt.Errorf("claim event %s: %w", d.EventID, err)
	}
	if !ok {
		log.Info().
			Str("event_id", d.EventID.String()).
			Int("attempt", d.Attempt).
			Msg("event already processed or inconsistent, skipping")
		return nil
	}
	p.notify(ctx, event)

	var deliveryErr error
	switch event.Hook.Type {
	case models.HookTypeWebhook:
		deliveryErr = p.processWebhook(ctx, event)
	case models.HookTypeQueue:
	default:
		deliveryErr = taskqueue.Permanent(fmt.Errorf("unknown hook type %q", event.Hook.Type))
	}

	next := models.EventStatusProcessed
	if deliveryErr != nil {
		next = models.EventStatusError
	}
	// detached so the outcome is recorded even when the worker is shutting down
	saveCtx := context.WithoutCancel(ctx)
	updated, ok, err := p.repo.TransitionStatus(saveCtx, event.ID, []models.EventStatus{models.EventStatusProcessing}, next, nil)
	if err != nil {
		log.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to record delivery outcome")
		if deliveryErr == nil {
			return fmt.Errorf("record outcome of event %s: %w", event.ID, err)
		}
	} else if ok {
		p.notify(ctx, updated)
	}

	if deliveryErr != nil {
		return deliveryErr
	}
	log.Info().Str("event_id", event.ID.String()).Int("attempt", d.Attempt).Msg("event processed")
	return nil
}

func (p *Processor) processWebhook(ctx context.Context, event *models.DomainEvent) error {
	if event.Hook.Webhook == nil {
		return taskqueue.Permanent(errors.New("webhook hook has no webhook config"))
	}
	return p.webhooks.Deliver(ctx, *event.Hook.Webhook, event.Payload())
}

// MarkEventAsFailure is the taskqueue.FailureHandler. It reloads the event by
// id and moves any non-terminal status to failed with the last error.
func (p *Processor) MarkEventAsFailure(ctx context.Context, d taskqueue.Delivery, cause error) {
	msg := "delivery failed"
	if cause != nil {
		msg = cause.Error()
	}
	from := []models.EventStatus{models.EventStatusCreated, models.EventStatusProcessing, models.EventStatusError}

	updated, ok, err := p.repo.TransitionStatus(context.WithoutCancel(ctx), d.EventID, from, models.EventStatusFailed, &msg)
	if err != nil {
		log.Error().Err(err).Str("event_id", d.EventID.String()).Msg("failed to mark event as failure")
		return
	}
	if !ok {
		log.Warn().Str("event_id", d.EventID.String()).Msg("event not found or already final, not marking failure")
		return
	}
	p.notify(ctx, updated)

	log.Warn().
		Str("event_id", d.EventID.String()).
		Int("attempts", d.Attempt).
		Str("failure_message", msg).
		Msg("event marked as failed")
}

// TriggerPendingEvents submits every created event whose eta has passed and
// returns how many were submitted.
func (p *Processor) TriggerPendingEvents(ctx context.Context) (int, error) {
	now := p.clock.Now().UTC()
	pending, err := p.repo.FindPendingEvents(ctx, now, pendingBatchSize)
	if err != nil {
		return 0, fmt.Errorf("find pending events: %w", err)
	}

	log.Debug().Int("pending", len(pending)).Msg("starting processing of scheduled events")

	submitted := 0
	for _, e := range pending {
		if err := p.dispatcher.Submit(ctx, e); err != nil {
			log.Error().Err(err).Str("event_id", e.ID.String()).Msg("failed to submit pending event")
			continue
		}
		submitted++
	}
	if submitted > 0 {
		log.Info().Int("submitted", submitted).Msg("scheduled events submitted")
	}
	return submitted, nil
}

func (p *Processor) notify(ctx context.Context, event *models.DomainEvent) {
	p.notifier.NotifyStatus(ctx, event.Change(p.clock.Now().UTC()))
}
