// Package feed streams DomainEvent status changes to websocket clients and
// relays them between processes over NATS.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/domainhooks/hooks/go/internal/models"
)

// allSchemas is the subscription key for clients that did not pick a schema.
const allSchemas = ""

type HubConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// Hub fans status changes out to websocket connections, grouped by the schema
// each connection subscribed to.
type Hub struct {
	connections map[string]map[*Connection]bool
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   HubConfig

	broadcastCh chan models.StatusChange
}

type Connection struct {
	ID         string
	SchemaName string
	Conn       *websocket.Conn
	Send       chan []byte
	hub        *Hub

	ConnectedAt time.Time
}

func NewHub(config HubConfig) *Hub {
	return &Hub{
		connections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan models.StatusChange, 1000),
	}
}

// Start processes broadcasts until ctx is done.
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("status feed hub started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("status feed hub shutting down")
			h.closeAll()
			return
		case change := <-h.broadcastCh:
			h.handleBroadcast(change)
		}
	}
}

// NotifyStatus queues change for broadcast. It never blocks; changes are
// dropped when the hub is saturated.
func (h *Hub) NotifyStatus(_ context.Context, change models.StatusChange) {
	select {
	case h.broadcastCh <- change:
	default:
		log.Warn().
			Str("event_id", change.EventID.String()).
			Str("schema_name", change.SchemaName).
			Msg("broadcast channel full, dropping status change")
	}
}

func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request, schemaName string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	c := &Connection{
		ID:          uuid.New().String(),
		SchemaName:  schemaName,
		Conn:        conn,
		Send:        make(chan []byte, h.config.SendBuffer),
		hub:         h,
		ConnectedAt: time.Now(),
	}
	h.register(c)

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("connection_id", c.ID).
		Str("schema_name", schemaName).
		Msg("websocket connection established")
	return nil
}

func (h *Hub) register(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connections[c.SchemaName] == nil {
		h.connections[c.SchemaName] = make(map[*Connection]bool)
	}
	h.connections[c.SchemaName][c] = true
}

func (h *Hub) unregister(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.connections[c.SchemaName]
	if !ok {
		return
	}
	if _, ok := conns[c]; !ok {
		return
	}
	delete(conns, c)
	close(c.Send)
	if len(conns) == 0 {
		delete(h.connections, c.SchemaName)
	}

	log.Info().
		Str("connection_id", c.ID).
		Str("schema_name", c.SchemaName).
		Msg("websocket connection unregistered")
}

func (h *Hub) handleBroadcast(change models.StatusChange) {
	h.mu.RLock()
	var targets []*Connection
	for c := range h.connections[change.SchemaName] {
		targets = append(targets, c)
	}
	if change.SchemaName != allSchemas {
		for c := range h.connections[allSchemas] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(change)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal status change")
		return
	}

	for _, c := range targets {
		select {
		case c.Send <- data:
		default:
			log.Warn().
				Str("connection_id", c.ID).
				Msg("connection send buffer full, closing connection")
			h.unregister(c)
			_ = c.Conn.Close()
		}
	}

	log.Debug().
		Str("event_id", change.EventID.String()).
		Str("status", string(change.Status)).
		Int("connections", len(targets)).
		Msg("status change broadcasted")
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	var all []*Connection
	for _, conns := range h.connections {
		for c := range conns {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.unregister(c)
	}
}

type Stats struct {
	TotalConnections int            `json:"total_connections"`
	BySchema         map[string]int `json:"by_schema"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := Stats{BySchema: make(map[string]int)}
	for schema, conns := range h.connections {
		stats.TotalConnections += len(conns)
		key := schema
		if key == allSchemas {
			key = "*"
		}
		stats.BySchema[key] = len(conns)
	}
	return stats
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
		c.hub.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message to websocket")
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump only exists to process control frames and notice disconnects.
func (c *Connection) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.hub.config.MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected websocket close error")
			}
			return
		}
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}
