package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHookRouting(t *testing.T) {
	tests := []struct {
		name        string
		hook        Hook
		wantQueue   string
		wantRetries int
		wantDelay   int
	}{
		{
			name:        "queue hook defaults",
			hook:        Hook{Type: HookTypeQueue},
			wantQueue:   DefaultQueueName,
			wantRetries: DefaultWebhookMaxRetries,
		},
		{
			name:        "queue hook with queue name",
			hook:        Hook{Type: HookTypeQueue, QueueName: "billing"},
			wantQueue:   "billing",
			wantRetries: DefaultWebhookMaxRetries,
		},
		{
			name:        "webhook settings",
			hook:        Hook{Type: HookTypeWebhook, Webhook: &WebhookConfig{QueueName: "slow", MaxRetries: 5, DelayTime: 10}},
			wantQueue:   "slow",
			wantRetries: 5,
			wantDelay:   10,
		},
		{
			name:        "webhook without queue name",
			hook:        Hook{Type: HookTypeWebhook, Webhook: &WebhookConfig{MaxRetries: 0}},
			wantQueue:   DefaultQueueName,
			wantRetries: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantQueue, tt.hook.Queue())
			assert.Equal(t, tt.wantRetries, tt.hook.MaxRetries())
			assert.Equal(t, tt.wantDelay, tt.hook.DelayMinutes())
		})
	}
}

func TestValidQueueName(t *testing.T) {
	assert.True(t, ValidQueueName("default"))
	assert.True(t, ValidQueueName("high-priority_2"))
	assert.False(t, ValidQueueName(""))
	assert.False(t, ValidQueueName("a.b"))
	assert.False(t, ValidQueueName("a b"))
	assert.False(t, ValidQueueName("a>"))
}

func TestEventStatus(t *testing.T) {
	for _, s := range []EventStatus{EventStatusCreated, EventStatusProcessing, EventStatusError} {
		assert.True(t, s.Valid(), s)
		assert.False(t, s.Terminal(), s)
	}
	for _, s := range []EventStatus{EventStatusProcessed, EventStatusFailed, EventStatusCanceled} {
		assert.True(t, s.Valid(), s)
		assert.True(t, s.Terminal(), s)
	}
	assert.False(t, EventStatus("done").Valid())
}

func TestPage(t *testing.T) {
	assert.Equal(t, 0, Page{}.Offset())
	assert.Equal(t, DefaultPerPage, Page{}.Limit())
	assert.Equal(t, 40, Page{Page: 3, PerPage: 20}.Offset())
	assert.Equal(t, MaxPerPage, Page{PerPage: 1000}.Limit())
}

func TestDomainVars(t *testing.T) {
	d := Domain{
		SchemaName: "price",
		DomainID:   "1234567890",
		Data:       map[string]any{"price": 100.0},
		Tags:       [][]string{{"tenant-x", "v1"}},
	}

	vars := d.Vars()
	assert.Equal(t, "price", vars["schema_name"])
	assert.Equal(t, map[string]any{"price": 100.0}, vars["data"])
	assert.Equal(t, []any{[]any{"tenant-x", "v1"}}, vars["tags"])
}
