package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/domainhooks/hooks/go/internal/domains"
	"github.com/domainhooks/hooks/go/internal/hooks"
	"github.com/domainhooks/hooks/go/internal/models"
	"github.com/domainhooks/hooks/go/internal/schemas"
	"github.com/domainhooks/hooks/go/internal/storage/memory"
	"github.com/domainhooks/hooks/go/internal/taskqueue"
)

type recordingQueue struct {
	mu    sync.Mutex
	tasks []taskqueue.Task
	err   error
}

func (q *recordingQueue) Submit(_ context.Context, task taskqueue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *recordingQueue) Tasks() []taskqueue.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]taskqueue.Task(nil), q.tasks...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []models.StatusChange
}

func (n *recordingNotifier) NotifyStatus(_ context.Context, change models.StatusChange) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, change)
}

func (n *recordingNotifier) Statuses() []models.EventStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.EventStatus, 0, len(n.changes))
	for _, c := range n.changes {
		out = append(out, c.Status)
	}
	return out
}

type fakeSender struct {
	mu    sync.Mutex
	calls []models.WebhookPayload
	errs  []error
}

func (s *fakeSender) Deliver(_ context.Context, _ models.WebhookConfig, payload models.WebhookPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, payload)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return err
	}
	return nil
}

func (s *fakeSender) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type fixture struct {
	ctx       context.Context
	clock     *clockwork.FakeClock
	store     *memory.Store
	hooks     *hooks.App
	app       *App
	processor *Processor
	queue     *recordingQueue
	notifier  *recordingNotifier
	sender    *fakeSender
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(fixedNow)
	store := memory.NewStore(clock)

	schemaApp := schemas.NewApp(store)
	_, err := schemaApp.UpsertSchema(ctx, schemas.UpsertSchemaRequest{
		Name: "price",
		DomainSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"price": {"type": "number"}, "name": {"type": "string"}}
		}`),
	})
	require.NoError(t, err)

	domainApp := domains.NewApp(store, schemaApp)
	_, err = domainApp.CreateDomain(ctx, "price", domains.CreateDomainRequest{
		DomainID: "1234567890",
		Data:     map[string]any{"name": "Eggs", "price": 34.99},
		Tags:     [][]string{{"tenant-x"}},
	})
	require.NoError(t, err)

	f := &fixture{
		ctx:      ctx,
		clock:    clock,
		store:    store,
		hooks:    hooks.NewApp(store, schemaApp),
		queue:    &recordingQueue{},
		notifier: &recordingNotifier{},
		sender:   &fakeSender{},
	}
	dispatcher := NewDispatcher(f.queue)
	f.app = NewApp(store, schemaApp, domainApp, f.hooks, dispatcher, f.notifier, clock)
	f.processor = NewProcessor(store, f.sender, dispatcher, f.notifier, clock)
	return f
}

func (f *fixture) createHook(t *testing.T, req hooks.CreateHookRequest) *models.Hook {
	t.Helper()
	if req.SchemaName == "" {
		req.SchemaName = "price"
	}
	if req.EventName == "" {
		req.EventName = "price_changed"
	}
	hook, err := f.hooks.CreateHook(f.ctx, req)
	require.NoError(t, err)
	return hook
}

func (f *fixture) webhook(t *testing.T, delay int, condition string) *models.Hook {
	t.Helper()
	return f.createHook(t, hooks.CreateHookRequest{
		Type:      models.HookTypeWebhook,
		Condition: condition,
		Webhook: &hooks.WebhookRequest{
			CallbackURL: "http://localhost:9000/callback",
			DelayTime:   delay,
		},
	})
}

func (f *fixture) insert(t *testing.T, metadata string) []models.DomainEvent {
	t.Helper()
	req := InsertEventRequest{EventName: "price_changed"}
	if metadata != "" {
		req.Metadata = json.RawMessage(metadata)
	}
	events, err := f.app.InsertEvent(f.ctx, "price", "1234567890", req)
	require.NoError(t, err)
	return events
}

func (f *fixture) event(t *testing.T, e models.DomainEvent) *models.DomainEvent {
	t.Helper()
	stored, err := f.store.GetEvent(f.ctx, e.ID)
	require.NoError(t, err)
	return stored
}
