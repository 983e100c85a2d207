package events

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/domainhooks/hooks/go/internal/models"
	"github.com/domainhooks/hooks/go/internal/taskqueue"
)

// TaskSubmitter is the producer half of taskqueue.Queue.
type TaskSubmitter interface {
	Submit(ctx context.Context, task taskqueue.Task) error
}

// Dispatcher hands DomainEvents to the task queue.
type Dispatcher struct {
	queue TaskSubmitter
}

func NewDispatcher(queue TaskSubmitter) *Dispatcher {
	return &Dispatcher{queue: queue}
}

// ShouldDispatchImmediately reports whether e is sent at insertion time.
// Queue hooks and delayed webhooks wait for the pending-event sweep.
func ShouldDispatchImmediately(e models.DomainEvent) bool {
	return e.Hook.Type == models.HookTypeWebhook && e.Hook.DelayMinutes() <= 0
}

// Dispatch submits the events that are due immediately. Submit failures are
// logged only: the event stays created and the sweep picks it up later.
func (d *Dispatcher) Dispatch(ctx context.Context, events []models.DomainEvent) {
	for _, e := range events {
		if !ShouldDispatchImmediately(e) {
			continue
		}
		if err := d.Submit(ctx, e); err != nil {
			log.Error().
				Err(err).
				Str("event_id", e.ID.String()).
				Msg("failed to dispatch event, leaving it for the sweep")
		}
	}
}

// Submit sends e to its hook's queue regardless of type or eta.
func (d *Dispatcher) Submit(ctx context.Context, e models.DomainEvent) error {
	task := taskqueue.Task{
		EventID:    e.ID,
		Queue:      e.Hook.Queue(),
		MaxRetries: e.Hook.MaxRetries(),
	}
	if err := d.queue.Submit(ctx, task); err != nil {
		return err
	}

	log.Info().
		Str("event_id", e.ID.String()).
		Str("event_name", e.EventName).
		Str("schema_name", e.SchemaName).
		Str("domain_id", e.DomainID).
		Str("queue", task.Queue).
		Msg("event dispatched")
	return nil
}
