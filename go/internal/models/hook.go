package models

import (
	"maps"
	"regexp"
	"slices"

	"github.com/google/uuid"
)

// HookType defines how a matched event is delivered.
type HookType string

const (
	HookTypeWebhook HookType = "webhook"
	HookTypeQueue   HookType = "queue"
)

// Valid reports whether t is a known hook type.
func (t HookType) Valid() bool {
	switch t {
	case HookTypeWebhook, HookTypeQueue:
		return true
	}
	return false
}

const (
	DefaultWebhookTimeout    = 3
	MaxWebhookTimeout        = 300
	DefaultWebhookMaxRetries = 3
	DefaultQueueName         = "default"
)

// queue names end up as a single subject token on the task queue.
var queueNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidQueueName reports whether name can be used as a delivery queue.
func ValidQueueName(name string) bool {
	return queueNamePattern.MatchString(name)
}

// WebhookConfig holds JSONB delivery settings for webhook hooks.
type WebhookConfig struct {
	CallbackURL string            `json:"callback_url"`
	DelayTime   int               `json:"delay_time"` // minutes
	HTTPHeaders map[string]string `json:"http_headers,omitempty"`
	Timeout     int               `json:"timeout_seconds"`
	MaxRetries  int               `json:"max_retries"`
	QueueName   string            `json:"queue_name"`
}

// Clone returns a copy that shares no maps with c.
func (c WebhookConfig) Clone() WebhookConfig {
	c.HTTPHeaders = maps.Clone(c.HTTPHeaders)
	return c
}

// Hook is a registered subscription to a schema event.
type Hook struct {
	ID         uuid.UUID      `json:"id"`
	Type       HookType       `json:"type"`
	SchemaName string         `json:"schema_name"`
	EventName  string         `json:"event_name"`
	Condition  string         `json:"condition,omitempty"`
	Tags       []string       `json:"tags"`
	Webhook    *WebhookConfig `json:"webhook,omitempty"`
	QueueName  string         `json:"queue_name,omitempty"`
}

// Clone returns a copy that shares no slices, maps or pointers with h.
func (h Hook) Clone() Hook {
	h.Tags = slices.Clone(h.Tags)
	if h.Webhook != nil {
		webhook := h.Webhook.Clone()
		h.Webhook = &webhook
	}
	return h
}

// Queue returns the task queue deliveries for this hook are routed to.
func (h Hook) Queue() string {
	if h.QueueName != "" {
		return h.QueueName
	}
	if h.Webhook != nil && h.Webhook.QueueName != "" {
		return h.Webhook.QueueName
	}
	return DefaultQueueName
}

// MaxRetries is the retry budget handed to the task queue.
func (h Hook) MaxRetries() int {
	if h.Webhook != nil {
		return h.Webhook.MaxRetries
	}
	return DefaultWebhookMaxRetries
}

// DelayMinutes is the webhook delay, zero for every other hook type.
func (h Hook) DelayMinutes() int {
	if h.Type == HookTypeWebhook && h.Webhook != nil {
		return h.Webhook.DelayTime
	}
	return 0
}
