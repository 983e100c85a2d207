package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/domainhooks/hooks/go/internal/events"
	"github.com/domainhooks/hooks/go/internal/models"
)

const DefaultSubject = "hooks.status"

// NATSNotifier publishes status changes so every API process can feed its own
// websocket clients, regardless of which process made the change.
type NATSNotifier struct {
	nc      *nats.Conn
	subject string
}

func NewNATSNotifier(nc *nats.Conn, subject string) *NATSNotifier {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSNotifier{nc: nc, subject: subject}
}

func (n *NATSNotifier) NotifyStatus(_ context.Context, change models.StatusChange) {
	data, err := json.Marshal(change)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal status change")
		return
	}
	if err := n.nc.Publish(n.subject, data); err != nil {
		log.Error().
			Err(err).
			Str("event_id", change.EventID.String()).
			Str("subject", n.subject).
			Msg("failed to publish status change")
	}
}

// Relay subscribes to published status changes and hands them to a local
// notifier, normally the Hub.
type Relay struct {
	nc      *nats.Conn
	subject string
	target  events.StatusNotifier
}

func NewRelay(nc *nats.Conn, subject string, target events.StatusNotifier) *Relay {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Relay{nc: nc, subject: subject, target: target}
}

// Start blocks until ctx is done.
func (r *Relay) Start(ctx context.Context) error {
	msgCh := make(chan *nats.Msg, 256)
	sub, err := r.nc.ChanSubscribe(r.subject, msgCh)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", r.subject, err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Error().Err(err).Msg("failed to unsubscribe status relay")
		}
	}()

	log.Info().Str("subject", r.subject).Msg("status relay started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("status relay shutting down")
			return nil
		case msg := <-msgCh:
			var change models.StatusChange
			if err := json.Unmarshal(msg.Data, &change); err != nil {
				log.Error().Err(err).Str("subject", msg.Subject).Msg("invalid status change message")
				continue
			}
			r.target.NotifyStatus(ctx, change)
		}
	}
}
