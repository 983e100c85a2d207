package hooks

import "github.com/domainhooks/hooks/go/internal/models"

// CreateHookRequest is the body of POST /api/v1/hooks. Pointer fields
// distinguish "not sent" from zero so defaults can be applied.
type CreateHookRequest struct {
	Type       models.HookType `json:"type"`
	SchemaName string          `json:"schema_name"`
	EventName  string          `json:"event_name"`
	Condition  string          `json:"condition"`
	Tags       []string        `json:"tags"`
	Webhook    *WebhookRequest `json:"webhook"`
	QueueName  string          `json:"queue_name"`
}

type WebhookRequest struct {
	CallbackURL string            `json:"callback_url"`
	DelayTime   int               `json:"delay_time"`
	HTTPHeaders map[string]string `json:"http_headers"`
	Timeout     *int              `json:"timeout_seconds"`
	MaxRetries  *int              `json:"max_retries"`
	QueueName   string            `json:"queue_name"`
}
