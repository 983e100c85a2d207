package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domainhooks/hooks/go/internal/taskqueue"
)

type fakeProcessor struct {
	mu        sync.Mutex
	processed []taskqueue.Delivery
	failed    []taskqueue.Delivery
	err       error
}

func (p *fakeProcessor) ProcessEvent(_ context.Context, d taskqueue.Delivery) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed = append(p.processed, d)
	return p.err
}

func (p *fakeProcessor) MarkEventAsFailure(_ context.Context, d taskqueue.Delivery, _ error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, d)
}

func (p *fakeProcessor) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.processed), len(p.failed)
}

func newWorker(t *testing.T, processor EventProcessor, stats *taskqueue.Stats, queues ...string) (*Worker, *taskqueue.MemoryQueue) {
	t.Helper()
	var metrics taskqueue.MetricsCollector = taskqueue.NoOpMetricsCollector{}
	if stats != nil {
		metrics = stats
	}
	queue := taskqueue.NewMemoryQueue(clockwork.NewFakeClock(), taskqueue.DefaultBackoff(), metrics)
	w := NewWorker(queue, processor, Config{Queues: queues, Concurrency: 2})
	t.Cleanup(func() {
		if w.Running() {
			_ = w.Stop()
		}
		_ = queue.Close()
	})
	return w, queue
}

func TestWorkerConsumesEveryQueue(t *testing.T) {
	processor := &fakeProcessor{}
	w, queue := newWorker(t, processor, taskqueue.NewStats(), "default", "priority")
	require.NoError(t, w.Start(context.Background()))

	ctx := context.Background()
	require.NoError(t, queue.Submit(ctx, taskqueue.Task{EventID: uuid.New(), Queue: "default", MaxRetries: 3}))
	require.NoError(t, queue.Submit(ctx, taskqueue.Task{EventID: uuid.New(), Queue: "priority", MaxRetries: 3}))

	require.Eventually(t, func() bool {
		processed, _ := processor.counts()
		return processed == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"default", "priority"}, w.Consuming())
}

func TestWorkerRunsFailureHandler(t *testing.T) {
	processor := &fakeProcessor{err: taskqueue.Permanent(errors.New("gone"))}
	w, queue := newWorker(t, processor, taskqueue.NewStats(), "default")
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, queue.Submit(context.Background(), taskqueue.Task{EventID: uuid.New(), Queue: "default", MaxRetries: 3}))

	require.Eventually(t, func() bool {
		_, failed := processor.counts()
		return failed == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWorkerStartStop(t *testing.T) {
	w, _ := newWorker(t, &fakeProcessor{}, nil, "default")

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())
	assert.False(t, w.Running())
	assert.Empty(t, w.Consuming())
	assert.Error(t, w.Stop())

	empty, _ := newWorker(t, &fakeProcessor{}, nil)
	assert.Error(t, empty.Start(context.Background()))
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

type fakeConn struct{ connected bool }

func (c fakeConn) IsConnected() bool { return c.connected }

type fakeSweeper struct {
	running bool
	sweeps  uint64
	last    time.Time
}

func (s fakeSweeper) Running() bool { return s.running }
func (s fakeSweeper) Stats() (uint64, time.Time, int) {
	return s.sweeps, s.last, 0
}

func TestHealthChecker(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	startedWorker := func(t *testing.T) *Worker {
		w, _ := newWorker(t, &fakeProcessor{}, nil, "default")
		require.NoError(t, w.Start(context.Background()))
		require.Eventually(t, func() bool { return len(w.Consuming()) == 1 }, time.Second, 5*time.Millisecond)
		return w
	}

	tests := []struct {
		name        string
		sweeper     SweepStats
		db          Pinger
		nats        ConnectionState
		stopWorker  bool
		wantHealthy bool
		wantError   string
	}{
		{name: "all good", sweeper: fakeSweeper{running: true, sweeps: 3, last: now.Add(-5 * time.Second)}, db: fakePinger{}, nats: fakeConn{connected: true}, wantHealthy: true},
		{name: "memory mode without db or nats", wantHealthy: true},
		{name: "database down", db: fakePinger{err: errors.New("refused")}, wantError: "database ping failed"},
		{name: "nats down", nats: fakeConn{}, wantError: "NATS disconnected"},
		{name: "sweeper stopped", sweeper: fakeSweeper{}, wantError: "sweeper not running"},
		{name: "sweeper stale", sweeper: fakeSweeper{running: true, last: now.Add(-time.Hour)}, wantError: "no sweep for"},
		{name: "worker stopped", stopWorker: true, wantError: "worker not running"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := startedWorker(t)
			if tt.stopWorker {
				require.NoError(t, w.Stop())
			}
			checker := NewHealthChecker(w, taskqueue.NewStats(), tt.sweeper, tt.db, tt.nats, time.Minute)
			checker.now = func() time.Time { return now }

			status := checker.Check(context.Background())
			assert.Equal(t, tt.wantHealthy, status.Healthy)
			if tt.wantError != "" {
				require.NotEmpty(t, status.Errors)
				assert.Contains(t, status.Errors[0], tt.wantError)
			} else {
				assert.Empty(t, status.Errors)
			}
		})
	}
}

func TestHealthEndpoints(t *testing.T) {
	stats := taskqueue.NewStats()
	stats.RecordDelivery("default", 1, taskqueue.OutcomeAcked, time.Millisecond)
	stats.RecordDelivery("default", 1, taskqueue.OutcomeRetried, time.Millisecond)

	w, _ := newWorker(t, &fakeProcessor{}, stats, "default")
	checker := NewHealthChecker(w, stats, nil, nil, nil, time.Minute)

	rec := httptest.NewRecorder()
	checker.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.False(t, status.Healthy)
	assert.Equal(t, uint64(1), status.Acked)
	assert.Equal(t, uint64(1), status.Retried)

	require.NoError(t, w.Start(context.Background()))
	require.Eventually(t, func() bool { return len(w.Consuming()) == 1 }, time.Second, 5*time.Millisecond)

	rec = httptest.NewRecorder()
	checker.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	NewMetricsHandler(checker).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "hooks_worker_healthy 1"), body)
	assert.Contains(t, body, `hooks_deliveries_total{outcome="acked"} 1`)
	assert.Contains(t, body, "hooks_last_delivery_timestamp ")
}
