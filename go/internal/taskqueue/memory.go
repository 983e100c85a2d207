package taskqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/domainhooks/hooks/go/internal/models"
)

const memoryQueueBuffer = 4096

// MemoryQueue is an in-process Queue. Retries are scheduled on the clock, so
// tests can drive them with a fake clock. Tasks do not survive a restart; the
// sweeper resubmits anything still pending.
type MemoryQueue struct {
	clock   clockwork.Clock
	backoff Backoff
	metrics MetricsCollector

	mu      sync.Mutex
	queues  map[string]chan Delivery
	pending map[uuid.UUID]struct{}
	closed  bool
	done    chan struct{}
}

func NewMemoryQueue(clock clockwork.Clock, backoff Backoff, metrics MetricsCollector) *MemoryQueue {
	if metrics == nil {
		metrics = NoOpMetricsCollector{}
	}
	return &MemoryQueue{
		clock:   clock,
		backoff: backoff,
		metrics: metrics,
		queues:  make(map[string]chan Delivery),
		pending: make(map[uuid.UUID]struct{}),
		done:    make(chan struct{}),
	}
}

// Submit enqueues the task. A task for an event that is already queued or
// being retried is dropped.
func (q *MemoryQueue) Submit(_ context.Context, task Task) error {
	if !models.ValidQueueName(task.Queue) {
		return fmt.Errorf("%w: %q", ErrInvalidQueue, task.Queue)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if _, dup := q.pending[task.EventID]; dup {
		log.Debug().Str("event_id", task.EventID.String()).Msg("task already queued")
		return nil
	}

	select {
	case q.channel(task.Queue) <- Delivery{EventID: task.EventID, Queue: task.Queue, Attempt: 1, MaxRetries: task.MaxRetries}:
		q.pending[task.EventID] = struct{}{}
		return nil
	default:
		return fmt.Errorf("queue %s is full", task.Queue)
	}
}

// channel must be called with mu held.
func (q *MemoryQueue) channel(name string) chan Delivery {
	ch, ok := q.queues[name]
	if !ok {
		ch = make(chan Delivery, memoryQueueBuffer)
		q.queues[name] = ch
	}
	return ch
}

func (q *MemoryQueue) Consume(ctx context.Context, cfg ConsumerConfig) error {
	if !models.ValidQueueName(cfg.Queue) {
		return fmt.Errorf("%w: %q", ErrInvalidQueue, cfg.Queue)
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	ch := q.channel(cfg.Queue)
	q.mu.Unlock()

	log.Info().Str("queue", cfg.Queue).Int("workers", workers).Msg("memory queue consumer started")

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-q.done:
					return
				case d := <-ch:
					q.handle(ctx, d, cfg)
				}
			}
		}()
	}
	wg.Wait()

	log.Info().Str("queue", cfg.Queue).Msg("memory queue consumer stopped")
	return nil
}

func (q *MemoryQueue) handle(ctx context.Context, d Delivery, cfg ConsumerConfig) {
	outcome, elapsed := settle(ctx, d, cfg)
	if outcome != OutcomeRetried {
		q.mu.Lock()
		delete(q.pending, d.EventID)
		q.mu.Unlock()
		q.metrics.RecordDelivery(d.Queue, d.Attempt, outcome, elapsed)
		return
	}
	q.metrics.RecordDelivery(d.Queue, d.Attempt, outcome, elapsed)

	next := d
	next.Attempt++
	q.clock.AfterFunc(q.backoff.Delay(d.Attempt), func() {
		q.mu.Lock()
		ch := q.channel(next.Queue)
		q.mu.Unlock()
		select {
		case ch <- next:
		case <-q.done:
		}
	})
}

// Close stops consumers. Queued tasks are discarded.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}
