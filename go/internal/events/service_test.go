package events

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domainhooks/hooks/go/internal/hooks"
	"github.com/domainhooks/hooks/go/internal/models"
)

func TestServiceEventLifecycle(t *testing.T) {
	f := newFixture(t)
	mux := http.NewServeMux()
	NewService(f.app).RegisterRoutes(mux)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		var req *http.Request
		if body == "" {
			req = httptest.NewRequest(method, path, nil)
		} else {
			req = httptest.NewRequest(method, path, strings.NewReader(body))
		}
		mux.ServeHTTP(rec, req)
		return rec
	}

	eventBody := `{"event_name": "price_changed", "metadata": {"new_price": 99.90}}`
	rec := do(http.MethodPost, "/api/v1/schemas/price/domains/1234567890/events", eventBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `[]`, rec.Body.String())

	f.createHook(t, hooks.CreateHookRequest{
		Type:      models.HookTypeQueue,
		Tags:      []string{"tenant-x"},
		QueueName: "price_changed",
	})

	rec = do(http.MethodPost, "/api/v1/schemas/price/domains/1234567890/events", eventBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created []models.DomainEvent
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	require.Len(t, created, 1)
	assert.Equal(t, models.EventStatusCreated, created[0].Status)
	assert.Equal(t, "price_changed", created[0].Hook.QueueName)

	path := "/api/v1/schemas/price/events/" + created[0].ID.String()
	rec = do(http.MethodPatch, path, `{"status": "processed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(http.MethodPatch, path, `{"status": "processed"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "event state does not allow changes")

	rec = do(http.MethodGet, "/api/v1/schemas/price/events?event_id="+created[0].ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []models.DomainEvent
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	require.Len(t, listed, 1)
	assert.Equal(t, models.EventStatusProcessed, listed[0].Status)

	rec = do(http.MethodGet, "/api/v1/schemas/price/events?queue_name=other", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestServiceEventErrors(t *testing.T) {
	f := newFixture(t)
	mux := http.NewServeMux()
	NewService(f.app).RegisterRoutes(mux)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"invalid payload", http.MethodPost, "/api/v1/schemas/price/domains/1234567890/events", `{"abc": "price", "xxx": {}}`, http.StatusUnprocessableEntity},
		{"unknown domain", http.MethodPost, "/api/v1/schemas/price/domains/nope/events", `{"event_name": "x"}`, http.StatusNotFound},
		{"bad event id", http.MethodPatch, "/api/v1/schemas/price/events/123", `{"status": "processed"}`, http.StatusUnprocessableEntity},
		{"unknown event", http.MethodPatch, "/api/v1/schemas/price/events/3f1c1b1e-8d8e-4f5a-9a3b-0c6f1d2e3a4b", `{"status": "processed"}`, http.StatusNotFound},
		{"bad filter id", http.MethodGet, "/api/v1/schemas/price/events?id=zzz", "", http.StatusUnprocessableEntity},
		{"unknown schema", http.MethodGet, "/api/v1/schemas/stock/events", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body *strings.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			rec := httptest.NewRecorder()
			var req *http.Request
			if body != nil {
				req = httptest.NewRequest(tt.method, tt.path, body)
			} else {
				req = httptest.NewRequest(tt.method, tt.path, nil)
			}
			mux.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}
