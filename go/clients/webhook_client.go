package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/domainhooks/hooks/go/internal/models"
)

// WebhookClient POSTs delivery payloads to hook callbacks.
type WebhookClient struct {
	base *BaseClient
}

func NewWebhookClient() *WebhookClient {
	base := NewBaseClient()
	base.SetHeader("User-Agent", "hooks-dispatcher/1.0")
	return &WebhookClient{base: base}
}

// Deliver sends payload to cfg.CallbackURL. Custom headers are applied over
// Content-Type, and the call is bounded by cfg.Timeout seconds.
func (c *WebhookClient) Deliver(ctx context.Context, cfg models.WebhookConfig, payload models.WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	headers := webhookHeaders(cfg.HTTPHeaders)

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = models.DefaultWebhookTimeout * time.Second
	}

	log.Info().
		Str("callback_url", cfg.CallbackURL).
		Str("event_id", payload.ID.String()).
		Msg("calling webhook")

	if _, err := c.base.Post(ctx, cfg.CallbackURL, bytes.NewReader(body), headers, timeout); err != nil {
		return fmt.Errorf("webhook %s: %w", cfg.CallbackURL, err)
	}
	return nil
}

// webhookHeaders sets Content-Type first so a custom header of any case
// replaces it.
func webhookHeaders(custom map[string]string) http.Header {
	headers := http.Header{"Content-Type": {"application/json"}}
	for key, value := range custom {
		headers.Set(key, value)
	}
	return headers
}
