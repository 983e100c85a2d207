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

	if cfg.TaskQueue == config.TaskQueueMemory {
		log.Fatal().Msg("the delivery worker needs TASK_QUEUE=jetstream; the API runs memory deliveries in-process")
	}

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

	var notifier events.StatusNotifier = events.NoOpNotifier{}
	if queue.NATS != nil {
		notifier = feed.NewNATSNotifier(queue.NATS, feed.DefaultSubject)
	}
	apps := bootstrap.NewApps(stores, queue, notifier, clock)

	worker := delivery.NewWorker(queue, apps.Processor, delivery.Config{
		Queues:      cfg.Worker.Queues,
		Concurrency: cfg.Worker.Concurrency,
	})
	if err := worker.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start delivery worker")
	}

	sw := sweeper.New(apps.Processor, clock, sweeper.Config{Interval: cfg.Sweep.Interval})
	if err := sw.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start sweeper")
	}

	if cfg.Sweep.Listen && stores.DB != nil {
		listenerCfg := sweeper.DefaultListenerConfig()
		listenerCfg.DatabaseURL = cfg.Database.DSN()
		listenerCfg.NotifyChannel = cfg.Sweep.NotifyChannel
		listener, err := sweeper.NewListener(listenerCfg, sw)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create listener")
		}
		go func() {
			if err := listener.Start(ctx); err != nil {
				log.Error().Err(err).Msg("listener stopped with error")
			}
		}()
	}

	var db delivery.Pinger
	if stores.DB != nil {
		db = stores.DB
	}
	var nc delivery.ConnectionState
	if queue.NATS != nil {
		nc = queue.NATS
	}
	checker := delivery.NewHealthChecker(worker, queue.Stats, sw, db, nc, 3*cfg.Sweep.Interval)

	mux := http.NewServeMux()
	mux.Handle("GET /health", checker)
	mux.Handle("GET /metrics", delivery.NewMetricsHandler(checker))

	server := &http.Server{
		Addr:         ":" + cfg.Worker.HealthPort,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health check server failed")
		}
	}()

	log.Info().
		Strs("queues", cfg.Worker.Queues).
		Str("nats_url", cfg.NATSURL).
		Msg("delivery worker running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health check server shutdown failed")
	}
	if err := sw.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop sweeper")
	}
	if err := worker.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop worker")
	}
	cancel()

	log.Info().Msg("delivery worker shutdown complete")
}
