package sweeper

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

type ListenerConfig struct {
	DatabaseURL   string // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel string // Channel name to LISTEN on
	PingInterval  time.Duration
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel: "hook_events_pending",
		PingInterval:  90 * time.Second,
	}
}

// Waker is satisfied by Sweeper.
type Waker interface {
	Wake()
	WakeAt(t time.Time)
}

// pendingNotification is the payload of the domain_events insert trigger.
type pendingNotification struct {
	ID  uuid.UUID `json:"id"`
	Eta time.Time `json:"eta"`
}

func parseNotification(extra string) (pendingNotification, error) {
	var n pendingNotification
	if err := json.Unmarshal([]byte(extra), &n); err != nil {
		return n, fmt.Errorf("invalid pending event notification: %w", err)
	}
	return n, nil
}

// Listener wakes the sweeper when a created event is inserted, so delayed
// deliveries fire at their eta instead of on the next tick.
type Listener struct {
	listener *pq.Listener
	waker    Waker
	cfg      ListenerConfig
}

func NewListener(cfg ListenerConfig, waker Waker) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for notifications")

	return &Listener{
		listener: l,
		waker:    waker,
		cfg:      cfg,
	}, nil
}

func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Msg("listener started")

	pingTicker := time.NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			return l.Stop()
		case note := <-l.listener.Notify:
			if note == nil {
				// reconnected; notifications may have been lost
				l.waker.Wake()
				continue
			}
			l.handleNotification(note.Extra)
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (l *Listener) Stop() error {
	return l.listener.Close()
}

func (l *Listener) handleNotification(extra string) {
	handleNotification(l.waker, extra)
}

func handleNotification(waker Waker, extra string) {
	n, err := parseNotification(extra)
	if err != nil {
		log.Error().Err(err).Str("payload", extra).Msg("failed to handle notification")
		waker.Wake()
		return
	}
	log.Debug().
		Str("event_id", n.ID.String()).
		Time("eta", n.Eta).
		Msg("pending event notification")
	waker.WakeAt(n.Eta)
}
