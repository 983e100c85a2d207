package hooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domainhooks/hooks/go/internal/models"
)

func TestServiceCreateHookWebhookSettings(t *testing.T) {
	app := newTestApp(t)
	mux := http.NewServeMux()
	NewService(app).RegisterRoutes(mux)

	body := `{
		"type": "webhook",
		"schema_name": "price",
		"event_name": "price_changed",
		"webhook": {
			"callback_url": "http://localhost:9000/callback",
			"timeout_seconds": 10,
			"max_retries": 5,
			"http_headers": {"Authorization": "Bearer abc"}
		}
	}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/hooks", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	webhook, ok := created["webhook"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 10, webhook["timeout_seconds"])
	assert.NotContains(t, webhook, "timeout")

	hooks, err := app.FindHooks(context.Background(), models.HookFilter{SchemaName: "price"}, models.Page{Page: 1, PerPage: 10})
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	assert.Equal(t, 10, hooks[0].Webhook.Timeout)
	assert.Equal(t, 5, hooks[0].Webhook.MaxRetries)
}

func TestServiceCreateHookRejectsTimeout(t *testing.T) {
	mux := http.NewServeMux()
	NewService(newTestApp(t)).RegisterRoutes(mux)

	for _, timeout := range []string{"0", "301"} {
		body := `{"type":"webhook","schema_name":"price","event_name":"price_changed",` +
			`"webhook":{"callback_url":"http://localhost:9000/callback","timeout_seconds":` + timeout + `}}`
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/hooks", strings.NewReader(body)))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "timeout_seconds=%s", timeout)
	}
}
