package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/domainhooks/hooks/go/internal/bootstrap"
	"github.com/domainhooks/hooks/go/internal/config"
	"github.com/domainhooks/hooks/go/internal/delivery"
	"github.com/domainhooks/hooks/go/internal/events"
	"github.com/domainhooks/hooks/go/internal/feed"
	"github.com/domainhooks/hooks/go/internal/sweeper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	config.SetupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewRealClock()

	stores, err := bootstrap.OpenStores(ctx, cfg, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open stores")
	}
	defer stores.Close()

	queue, err := bootstrap.OpenQueue(ctx, cfg, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open task queue")
	}
	defer queue.Close()

	hub := feed.NewHub(feed.DefaultHubConfig())
	go hub.Start(ctx)

	// With NATS every process publishes status changes and relays them back
	// into its own hub, so feed clients see deliveries made by the worker.
	var notifier events.StatusNotifier = hub
	if queue.NATS != nil {
		notifier = feed.NewNATSNotifier(queue.NATS, feed.DefaultSubject)
		relay := feed.NewRelay(queue.NATS, feed.DefaultSubject, hub)
		go func() {
			if err := relay.Start(ctx); err != nil {
				log.Error().Err(err).Msg("status relay failed")
			}
		}()
	}

	apps := bootstrap.NewApps(stores, queue, notifier, clock)

	// The memory queue cannot be shared with a worker process.
	if cfg.TaskQueue == config.TaskQueueMemory {
		stop, err := startInProcessDelivery(ctx, cfg, apps, queue, clock)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to start in-process delivery")
		}
		defer stop()
	}

	server := setupServer(cfg, setupServices(apps), hub)

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("store", cfg.Store).
			Str("task_queue", cfg.TaskQueue).
			Msg("hooks API starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	cancel()

	log.Info().Msg("hooks API shutdown complete")
}

func startInProcessDelivery(ctx context.Context, cfg *config.Config, apps *bootstrap.Apps, queue *bootstrap.Queue, clock clockwork.Clock) (func(), error) {
	worker := delivery.NewWorker(queue, apps.Processor, delivery.Config{
		Queues:      cfg.Worker.Queues,
		Concurrency: cfg.Worker.Concurrency,
	})
	if err := worker.Start(ctx); err != nil {
		return nil, err
	}

	sw := sweeper.New(apps.Processor, clock, sweeper.Config{Interval: cfg.Sweep.Interval})
	if err := sw.Start(ctx); err != nil {
		_ = worker.Stop()
		return nil, err
	}

	return func() {
		if err := sw.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop sweeper")
		}
		if err := worker.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop worker")
		}
	}, nil
}
