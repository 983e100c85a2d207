package taskqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// settle runs the handler for d and decides what happens to the message.
// Panics in the handler count as failures.
func settle(ctx context.Context, d Delivery, cfg ConsumerConfig) (Outcome, time.Duration) {
	start := time.Now()
	err := safeHandle(ctx, d, cfg.Handler)

	outcome := OutcomeAcked
	switch {
	case err == nil:
		log.Debug().
			Str("event_id", d.EventID.String()).
			Str("queue", d.Queue).
			Int("attempt", d.Attempt).
			Msg("delivery acknowledged")
	case !IsPermanent(err) && !d.Final():
		outcome = OutcomeRetried
		log.Warn().
			Err(err).
			Str("event_id", d.EventID.String()).
			Str("queue", d.Queue).
			Int("attempt", d.Attempt).
			Int("max_retries", d.MaxRetries).
			Msg("delivery failed, will retry")
	default:
		outcome = OutcomeFailed
		log.Error().
			Err(err).
			Str("event_id", d.EventID.String()).
			Str("queue", d.Queue).
			Int("attempt", d.Attempt).
			Msg("delivery failed permanently")
		if cfg.OnFailure != nil {
			cfg.OnFailure(ctx, d, err)
		}
	}

	return outcome, time.Since(start)
}

func safeHandle(ctx context.Context, d Delivery, h Handler) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return h(ctx, d)
}
