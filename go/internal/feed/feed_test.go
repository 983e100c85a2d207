package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domainhooks/hooks/go/internal/models"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(DefaultHubConfig())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Start(ctx)

	mux := http.NewServeMux()
	NewHandler(hub).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readChange(t *testing.T, conn *websocket.Conn) models.StatusChange {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var change models.StatusChange
	require.NoError(t, json.Unmarshal(data, &change))
	return change
}

func change(schema string, status models.EventStatus) models.StatusChange {
	return models.StatusChange{
		EventID:    uuid.New(),
		SchemaName: schema,
		DomainID:   "1234567890",
		EventName:  "price_changed",
		HookID:     uuid.New(),
		Status:     status,
		At:         time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestHubBroadcastsBySchema(t *testing.T) {
	hub, srv := startHub(t)

	priceConn := dial(t, srv, "?schema_name=price")
	allConn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.Stats().TotalConnections == 2 }, 2*time.Second, 10*time.Millisecond)

	stockChange := change("stock", models.EventStatusProcessing)
	priceChange := change("price", models.EventStatusProcessed)
	hub.NotifyStatus(context.Background(), stockChange)
	hub.NotifyStatus(context.Background(), priceChange)

	got := readChange(t, allConn)
	assert.Equal(t, stockChange.EventID, got.EventID)
	got = readChange(t, allConn)
	assert.Equal(t, priceChange.EventID, got.EventID)

	// the price subscriber never sees the stock change
	got = readChange(t, priceConn)
	assert.Equal(t, priceChange.EventID, got.EventID)
	assert.Equal(t, models.EventStatusProcessed, got.Status)
}

func TestHubUnregistersClosedConnections(t *testing.T) {
	hub, srv := startHub(t)

	conn := dial(t, srv, "?schema_name=price")
	require.Eventually(t, func() bool { return hub.Stats().TotalConnections == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, map[string]int{"price": 1}, hub.Stats().BySchema)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Stats().TotalConnections == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStatsEndpoint(t *testing.T) {
	hub, srv := startHub(t)
	dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.Stats().TotalConnections == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(srv.URL + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.BySchema["*"])
}

type recordingNotifier struct {
	changes []models.StatusChange
}

func (r *recordingNotifier) NotifyStatus(_ context.Context, c models.StatusChange) {
	r.changes = append(r.changes, c)
}

func TestFanout(t *testing.T) {
	a, b := &recordingNotifier{}, &recordingNotifier{}
	c := change("price", models.EventStatusCreated)

	Fanout{a, b}.NotifyStatus(context.Background(), c)

	assert.Equal(t, []models.StatusChange{c}, a.changes)
	assert.Equal(t, []models.StatusChange{c}, b.changes)
}
