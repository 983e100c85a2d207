// Package taskqueue delivers event IDs to workers with bounded retries.
// A delivery is retried with backoff until it succeeds or its retry budget
// is spent, after which the failure handler runs exactly once.
package taskqueue

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Task asks for one event to be delivered on a named queue.
type Task struct {
	EventID    uuid.UUID `json:"event_id"`
	Queue      string    `json:"queue"`
	MaxRetries int       `json:"max_retries"`
}

// Delivery is one attempt at a Task. Attempt starts at 1.
type Delivery struct {
	EventID    uuid.UUID
	Queue      string
	Attempt    int
	MaxRetries int
}

// Final reports whether a failure of this attempt exhausts the retry budget.
func (d Delivery) Final() bool {
	return d.Attempt > d.MaxRetries
}

// Handler processes a delivery. A non-nil error schedules a retry.
type Handler func(ctx context.Context, d Delivery) error

// FailureHandler runs once when a delivery will not be retried again.
type FailureHandler func(ctx context.Context, d Delivery, err error)

// ConsumerConfig describes one queue consumer.
type ConsumerConfig struct {
	Queue     string
	Workers   int
	Handler   Handler
	OnFailure FailureHandler
}

// Queue is implemented by MemoryQueue and JetStreamQueue.
type Queue interface {
	Submit(ctx context.Context, task Task) error
	// Consume blocks until ctx is done.
	Consume(ctx context.Context, cfg ConsumerConfig) error
	Close() error
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

var (
	ErrClosed       = errors.New("task queue closed")
	ErrInvalidQueue = errors.New("invalid queue name")
)
