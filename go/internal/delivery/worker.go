// Package delivery runs the queue consumers that deliver DomainEvents and
// reports their health.
package delivery

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/domainhooks/hooks/go/internal/taskqueue"
)

// EventProcessor is satisfied by events.Processor.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, d taskqueue.Delivery) error
	MarkEventAsFailure(ctx context.Context, d taskqueue.Delivery, cause error)
}

type Config struct {
	Queues      []string
	Concurrency int
}

// Worker consumes each configured queue with its own worker pool.
type Worker struct {
	queue     taskqueue.Queue
	processor EventProcessor
	config    Config

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	consumed map[string]bool
}

func NewWorker(queue taskqueue.Queue, processor EventProcessor, cfg Config) *Worker {
	return &Worker{
		queue:     queue,
		processor: processor,
		config:    cfg,
		consumed:  make(map[string]bool),
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("worker already running")
	}
	if len(w.config.Queues) == 0 {
		return fmt.Errorf("no queues to consume")
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true

	for _, name := range w.config.Queues {
		cfg := taskqueue.ConsumerConfig{
			Queue:     name,
			Workers:   w.config.Concurrency,
			Handler:   w.processor.ProcessEvent,
			OnFailure: w.processor.MarkEventAsFailure,
		}
		w.consumed[name] = true
		w.wg.Add(1)
		go w.consume(ctx, cfg)
	}

	log.Info().
		Strs("queues", w.config.Queues).
		Int("concurrency", w.config.Concurrency).
		Msg("delivery worker started")
	return nil
}

func (w *Worker) consume(ctx context.Context, cfg taskqueue.ConsumerConfig) {
	defer w.wg.Done()
	defer func() {
		w.mu.Lock()
		w.consumed[cfg.Queue] = false
		w.mu.Unlock()
	}()

	if err := w.queue.Consume(ctx, cfg); err != nil {
		log.Error().Err(err).Str("queue", cfg.Queue).Msg("queue consumer stopped with error")
	}
}

func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("worker not running")
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
	log.Info().Msg("delivery worker stopped")
	return nil
}

func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Consuming returns the queues whose consumer is still active.
func (w *Worker) Consuming() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []string
	for _, name := range w.config.Queues {
		if w.consumed[name] {
			out = append(out, name)
		}
	}
	return out
}
