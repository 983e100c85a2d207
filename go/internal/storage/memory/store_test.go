package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domainhooks/hooks/go/internal/apperrors"
	"github.com/domainhooks/hooks/go/internal/models"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newEvent(status models.EventStatus, eta time.Time) models.DomainEvent {
	return models.DomainEvent{
		ID:         uuid.New(),
		EventName:  "price_changed",
		SchemaName: "price",
		DomainID:   "1234567890",
		Status:     status,
		Hook:       models.Hook{ID: uuid.New(), Type: models.HookTypeQueue},
		Eta:        eta,
	}
}

func TestCreateEventsIsAllOrNothing(t *testing.T) {
	store := NewStore(clockwork.NewFakeClockAt(epoch))
	ctx := context.Background()

	first := newEvent(models.EventStatusCreated, epoch)
	stored, err := store.CreateEvents(ctx, []models.DomainEvent{first})
	require.NoError(t, err)
	assert.Equal(t, epoch, stored[0].CreatedAt)

	second := newEvent(models.EventStatusCreated, epoch)
	_, err = store.CreateEvents(ctx, []models.DomainEvent{second, first})
	assert.True(t, apperrors.Is(err, apperrors.CodeIntegrity))

	_, err = store.GetEvent(ctx, second.ID)
	assert.ErrorIs(t, err, apperrors.ErrNoRecord)
}

func TestFindPendingEvents(t *testing.T) {
	store := NewStore(clockwork.NewFakeClockAt(epoch))
	ctx := context.Background()

	late := newEvent(models.EventStatusCreated, epoch.Add(-time.Minute))
	early := newEvent(models.EventStatusCreated, epoch.Add(-time.Hour))
	future := newEvent(models.EventStatusCreated, epoch.Add(time.Minute))
	done := newEvent(models.EventStatusProcessed, epoch.Add(-time.Hour))
	_, err := store.CreateEvents(ctx, []models.DomainEvent{late, early, future, done})
	require.NoError(t, err)

	pending, err := store.FindPendingEvents(ctx, epoch, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, early.ID, pending[0].ID)
	assert.Equal(t, late.ID, pending[1].ID)

	pending, err = store.FindPendingEvents(ctx, epoch, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, early.ID, pending[0].ID)
}

func TestTransitionStatus(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	store := NewStore(clock)
	ctx := context.Background()

	e := newEvent(models.EventStatusCreated, epoch)
	_, err := store.CreateEvents(ctx, []models.DomainEvent{e})
	require.NoError(t, err)

	clock.Advance(time.Second)
	got, ok, err := store.TransitionStatus(ctx, e.ID, []models.EventStatus{models.EventStatusCreated}, models.EventStatusProcessing, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.EventStatusProcessing, got.Status)
	assert.Equal(t, epoch.Add(time.Second), got.UpdatedAt)
	assert.Nil(t, got.FailureMessage)

	_, ok, err = store.TransitionStatus(ctx, e.ID, []models.EventStatus{models.EventStatusCreated}, models.EventStatusProcessing, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	msg := "gave up"
	got, ok, err = store.TransitionStatus(ctx, e.ID, []models.EventStatus{models.EventStatusProcessing}, models.EventStatusFailed, &msg)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, got.FailureMessage)
	assert.Equal(t, "gave up", *got.FailureMessage)

	_, ok, err = store.TransitionStatus(ctx, uuid.New(), []models.EventStatus{models.EventStatusCreated}, models.EventStatusProcessing, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransitionStatusSingleWinner(t *testing.T) {
	store := NewStore(clockwork.NewFakeClockAt(epoch))
	ctx := context.Background()

	e := newEvent(models.EventStatusCreated, epoch)
	_, err := store.CreateEvents(ctx, []models.DomainEvent{e})
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := store.TransitionStatus(ctx, e.ID, []models.EventStatus{models.EventStatusCreated}, models.EventStatusProcessing, nil)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestFindEligibleHooks(t *testing.T) {
	store := NewStore(clockwork.NewFakeClockAt(epoch))
	ctx := context.Background()

	mk := func(event string, tags ...string) models.Hook {
		h := models.Hook{ID: uuid.New(), Type: models.HookTypeQueue, SchemaName: "price", EventName: event, Tags: tags}
		_, err := store.CreateHook(ctx, h)
		require.NoError(t, err)
		return h
	}
	untagged := mk("price_changed")
	v1 := mk("price_changed", "v1")
	mk("price_changed", "v1", "beta")
	mk("stock_changed")

	got, err := store.FindEligibleHooks(ctx, "price", "price_changed", []string{"v1", "tenant-x"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, untagged.ID, got[0].ID)
	assert.Equal(t, v1.ID, got[1].ID)
}

func TestFindEventsPagination(t *testing.T) {
	store := NewStore(clockwork.NewFakeClockAt(epoch))
	ctx := context.Background()

	var batch []models.DomainEvent
	for i := 0; i < 5; i++ {
		batch = append(batch, newEvent(models.EventStatusCreated, epoch))
	}
	_, err := store.CreateEvents(ctx, batch)
	require.NoError(t, err)

	page, err := store.FindEvents(ctx, models.EventFilter{SchemaName: "price"}, models.Page{Page: 2, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, batch[2].ID, page[0].ID)

	page, err = store.FindEvents(ctx, models.EventFilter{SchemaName: "price"}, models.Page{Page: 4, PerPage: 2})
	require.NoError(t, err)
	assert.Empty(t, page)

	page, err = store.FindEvents(ctx, models.EventFilter{QueueName: "default", Status: models.EventStatusCreated}, models.Page{})
	require.NoError(t, err)
	assert.Len(t, page, 5)
}

func TestDeleteMissingRecords(t *testing.T) {
	store := NewStore(clockwork.NewFakeClock())
	ctx := context.Background()

	_, err := store.DeleteSchema(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNoRecord)
	_, err = store.DeleteDomain(ctx, "price", "missing")
	assert.ErrorIs(t, err, apperrors.ErrNoRecord)
	_, err = store.DeleteHook(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNoRecord)
}

func TestStoredSnapshotsAreIsolated(t *testing.T) {
	store := NewStore(clockwork.NewFakeClockAt(epoch))
	ctx := context.Background()

	event := newEvent(models.EventStatusCreated, epoch)
	event.Metadata = []byte(`{"new_price":100}`)
	event.Hook = models.Hook{
		ID:   uuid.New(),
		Type: models.HookTypeWebhook,
		Tags: []string{"v1"},
		Webhook: &models.WebhookConfig{
			CallbackURL: "http://localhost:9000/callback",
			HTTPHeaders: map[string]string{"Authorization": "Bearer abc"},
			Timeout:     3,
		},
	}
	_, err := store.CreateEvents(ctx, []models.DomainEvent{event})
	require.NoError(t, err)

	// mutate the caller's copy after the write
	event.Hook.Tags[0] = "mutated"
	event.Hook.Webhook.Timeout = 99
	event.Metadata[2] = 'X'

	got, err := store.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	got.Hook.Webhook.HTTPHeaders["Authorization"] = "mutated"

	msg := "boom"
	changed, ok, err := store.TransitionStatus(ctx, event.ID, []models.EventStatus{models.EventStatusCreated}, models.EventStatusError, &msg)
	require.NoError(t, err)
	require.True(t, ok)
	changed.Hook.Webhook.CallbackURL = "http://mutated"
	*changed.FailureMessage = "mutated"

	stored, err := store.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, stored.Hook.Tags)
	assert.Equal(t, 3, stored.Hook.Webhook.Timeout)
	assert.Equal(t, "Bearer abc", stored.Hook.Webhook.HTTPHeaders["Authorization"])
	assert.Equal(t, "http://localhost:9000/callback", stored.Hook.Webhook.CallbackURL)
	assert.JSONEq(t, `{"new_price":100}`, string(stored.Metadata))
	require.NotNil(t, stored.FailureMessage)
	assert.Equal(t, "boom", *stored.FailureMessage)

	hook := event.Hook.Clone()
	hook.Tags = []string{"v1"}
	_, err = store.CreateHook(ctx, hook)
	require.NoError(t, err)
	found, err := store.FindHooks(ctx, models.HookFilter{}, models.Page{Page: 1, PerPage: 10})
	require.NoError(t, err)
	require.Len(t, found, 1)
	found[0].Tags[0] = "mutated"

	again, err := store.GetHook(ctx, hook.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, again.Tags)
}
