// Package bootstrap builds the stores, task queue and apps shared by the API
// server and the delivery worker from a config.Config.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/domainhooks/hooks/go/clients"
	"github.com/domainhooks/hooks/go/internal/config"
	"github.com/domainhooks/hooks/go/internal/domains"
	"github.com/domainhooks/hooks/go/internal/events"
	"github.com/domainhooks/hooks/go/internal/hooks"
	"github.com/domainhooks/hooks/go/internal/schemas"
	"github.com/domainhooks/hooks/go/internal/storage/memory"
	"github.com/domainhooks/hooks/go/internal/storage/postgres"
	"github.com/domainhooks/hooks/go/internal/taskqueue"
)

type Stores struct {
	DB      *sql.DB // nil for the memory store
	Schemas schemas.SchemasRepository
	Domains domains.DomainsRepository
	Hooks   hooks.HooksRepository
	Events  events.EventsRepository
}

// OpenStores connects to Postgres and applies migrations, or builds a memory
// store.
func OpenStores(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (*Stores, error) {
	if cfg.Store == config.StoreMemory {
		store := memory.NewStore(clock)
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return &Stores{Schemas: store, Domains: store, Hooks: store, Events: store}, nil
	}

	if err := postgres.Migrate(ctx, cfg.Database.DSN()); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return &Stores{
		DB:      db,
		Schemas: schemas.NewRepository(db),
		Domains: domains.NewRepository(db),
		Hooks:   hooks.NewRepository(db),
		Events:  events.NewRepository(db),
	}, nil
}

func (s *Stores) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Queue is the task queue plus what the health checks need from it.
type Queue struct {
	taskqueue.Queue
	NATS  *nats.Conn // nil for the memory queue
	Stats *taskqueue.Stats
}

func Backoff(cfg config.RetryConfig) taskqueue.Backoff {
	return taskqueue.Backoff{Base: cfg.BackoffBase, Max: cfg.BackoffMax, Jitter: cfg.Jitter}
}

func OpenQueue(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (*Queue, error) {
	stats := taskqueue.NewStats()
	backoff := Backoff(cfg.Retry)

	if cfg.TaskQueue == config.TaskQueueMemory {
		return &Queue{Queue: taskqueue.NewMemoryQueue(clock, backoff, stats), Stats: stats}, nil
	}

	nc, err := taskqueue.Connect(cfg.NATSURL)
	if err != nil {
		return nil, err
	}
	jsCfg := taskqueue.DefaultJetStreamConfig()
	if cfg.Worker.AckWait > 0 {
		jsCfg.AckWait = cfg.Worker.AckWait
	}
	q, err := taskqueue.NewJetStreamQueue(ctx, nc, jsCfg, backoff, stats)
	if err != nil {
		nc.Close()
		return nil, err
	}
	log.Info().Str("nats_url", cfg.NATSURL).Str("stream", jsCfg.StreamName).Msg("connected to JetStream task queue")
	return &Queue{Queue: q, NATS: nc, Stats: stats}, nil
}

func (q *Queue) Close() error {
	err := q.Queue.Close()
	if q.NATS != nil {
		q.NATS.Close()
	}
	return err
}

// Apps is the app layer wired over a set of stores.
type Apps struct {
	Schemas    *schemas.App
	Domains    *domains.App
	Hooks      *hooks.App
	Events     *events.App
	Dispatcher *events.Dispatcher
	Processor  *events.Processor
}

// Database layer → Repository layer → App layer
func NewApps(stores *Stores, queue taskqueue.Queue, notifier events.StatusNotifier, clock clockwork.Clock) *Apps {
	schemasApp := schemas.NewApp(stores.Schemas)
	domainsApp := domains.NewApp(stores.Domains, schemasApp)
	hooksApp := hooks.NewApp(stores.Hooks, schemasApp)

	dispatcher := events.NewDispatcher(queue)
	eventsApp := events.NewApp(stores.Events, schemasApp, domainsApp, hooksApp, dispatcher, notifier, clock)
	processor := events.NewProcessor(stores.Events, clients.NewWebhookClient(), dispatcher, notifier, clock)

	return &Apps{
		Schemas:    schemasApp,
		Domains:    domainsApp,
		Hooks:      hooksApp,
		Events:     eventsApp,
		Dispatcher: dispatcher,
		Processor:  processor,
	}
}
