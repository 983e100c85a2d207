package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/domainhooks/hooks/go/internal/models"
)

type JetStreamConfig struct {
	StreamName      string
	SubjectPrefix   string
	MaxAge          time.Duration // How long to keep undelivered tasks
	Replicas        int
	DuplicateWindow time.Duration // Window for duplicate detection
	AckWait         time.Duration
	MaxAckPending   int
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		StreamName:      "HOOK_DELIVERIES",
		SubjectPrefix:   "hooks.deliveries",
		MaxAge:          7 * 24 * time.Hour,
		Replicas:        1,
		DuplicateWindow: 2 * time.Minute,
		AckWait:         60 * time.Second,
		MaxAckPending:   256,
	}
}

// Connect opens a NATS connection with reconnect logging.
func Connect(url string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("hooks"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// JetStreamQueue stores tasks on a JetStream stream with one durable consumer
// per queue. The attempt number is the message's delivery count, so retries
// survive worker restarts.
type JetStreamQueue struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	config  JetStreamConfig
	backoff Backoff
	metrics MetricsCollector
}

func NewJetStreamQueue(ctx context.Context, nc *nats.Conn, cfg JetStreamConfig, backoff Backoff, metrics MetricsCollector) (*JetStreamQueue, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	if metrics == nil {
		metrics = NoOpMetricsCollector{}
	}

	q := &JetStreamQueue{nc: nc, js: js, config: cfg, backoff: backoff, metrics: metrics}
	if err := q.ensureStream(ctx); err != nil {
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return q, nil
}

func (q *JetStreamQueue) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        q.config.StreamName,
		Description: "Hook delivery tasks",
		Subjects:    []string{q.config.SubjectPrefix + ".>"},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      q.config.MaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    q.config.Replicas,
		Duplicates:  q.config.DuplicateWindow,
	}

	stream, err := q.js.Stream(ctx, q.config.StreamName)
	if err != nil {
		if _, err = q.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", q.config.StreamName).Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = q.js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().Str("stream", q.config.StreamName).Msg("updated JetStream stream")
	}
	return nil
}

func (q *JetStreamQueue) subject(queue string) string {
	return q.config.SubjectPrefix + "." + queue
}

// Submit publishes the task. The event ID is the message ID, so repeated
// submits inside the duplicate window are dropped by the server.
func (q *JetStreamQueue) Submit(ctx context.Context, task Task) error {
	if !models.ValidQueueName(task.Queue) {
		return fmt.Errorf("%w: %q", ErrInvalidQueue, task.Queue)
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	subject := q.subject(task.Queue)
	ack, err := q.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Event-ID":    []string{task.EventID.String()},
			"Max-Retries": []string{strconv.Itoa(task.MaxRetries)},
		},
	},
		jetstream.WithMsgID(task.EventID.String()),
		jetstream.WithExpectStream(q.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Str("event_id", task.EventID.String()).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("task published")
	return nil
}

func (q *JetStreamQueue) ensureConsumer(ctx context.Context, queue string) (jetstream.Consumer, error) {
	stream, err := q.js.Stream(ctx, q.config.StreamName)
	if err != nil {
		return nil, fmt.Errorf("get stream: %w", err)
	}

	name := "hooks-" + queue
	consumer, err := stream.Consumer(ctx, name)
	if err == nil {
		log.Info().Str("consumer", name).Msg("using existing JetStream consumer")
		return consumer, nil
	}

	consumer, err = stream.CreateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          name,
		Durable:       name,
		Description:   "Hook delivery workers for queue " + queue,
		FilterSubject: q.subject(queue),
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    -1,
		AckWait:       q.config.AckWait,
		MaxAckPending: q.config.MaxAckPending,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}
	log.Info().Str("consumer", name).Msg("created JetStream consumer")
	return consumer, nil
}

// Consume pulls tasks for cfg.Queue into a worker pool. Messages are acked only
// after the handler returns; failures are nak'ed with the backoff delay and
// terminated once the failure handler has run.
func (q *JetStreamQueue) Consume(ctx context.Context, cfg ConsumerConfig) error {
	if !models.ValidQueueName(cfg.Queue) {
		return fmt.Errorf("%w: %q", ErrInvalidQueue, cfg.Queue)
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	consumer, err := q.ensureConsumer(ctx, cfg.Queue)
	if err != nil {
		return err
	}

	msgCh := make(chan jetstream.Msg, workers)
	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		select {
		case msgCh <- msg:
		case <-ctx.Done():
			_ = msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start JetStream consumer: %w", err)
	}
	defer consumeCtx.Stop()

	log.Info().Str("queue", cfg.Queue).Int("workers", workers).Msg("JetStream consumer started")

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg := <-msgCh:
					q.handle(ctx, msg, cfg, workerID)
				}
			}
		}(i)
	}
	wg.Wait()

	log.Info().Str("queue", cfg.Queue).Msg("JetStream consumer stopped")
	return nil
}

func (q *JetStreamQueue) handle(ctx context.Context, msg jetstream.Msg, cfg ConsumerConfig, workerID int) {
	var task Task
	if err := json.Unmarshal(msg.Data(), &task); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("dropping undecodable task")
		_ = msg.Term()
		return
	}
	md, err := msg.Metadata()
	if err != nil {
		log.Error().Err(err).Str("event_id", task.EventID.String()).Msg("failed to read message metadata")
		_ = msg.Nak()
		return
	}

	d := Delivery{
		EventID:    task.EventID,
		Queue:      cfg.Queue,
		Attempt:    int(md.NumDelivered),
		MaxRetries: task.MaxRetries,
	}
	log.Debug().
		Str("event_id", d.EventID.String()).
		Int("attempt", d.Attempt).
		Int("worker_id", workerID).
		Msg("worker handling delivery")

	stopProgress := q.keepInProgress(msg)
	outcome, elapsed := settle(ctx, d, cfg)
	stopProgress()

	switch outcome {
	case OutcomeAcked:
		err = msg.Ack()
	case OutcomeRetried:
		err = msg.NakWithDelay(q.backoff.Delay(d.Attempt))
	case OutcomeFailed:
		err = msg.Term()
	}
	if err != nil {
		log.Error().Err(err).Str("event_id", d.EventID.String()).Msg("failed to settle message")
	}
	q.metrics.RecordDelivery(d.Queue, d.Attempt, outcome, elapsed)
}

// keepInProgress resets the ack timer every half AckWait until the returned
// func is called, so a slow webhook is not redelivered mid-call.
func (q *JetStreamQueue) keepInProgress(msg jetstream.Msg) func() {
	interval := q.config.AckWait / 2
	if interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := msg.InProgress(); err != nil {
					log.Warn().Err(err).Str("subject", msg.Subject()).Msg("failed to extend ack deadline")
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (q *JetStreamQueue) Close() error {
	return nil
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates &&
		len(a.Subjects) == len(b.Subjects) &&
		(len(a.Subjects) == 0 || a.Subjects[0] == b.Subjects[0])
}
