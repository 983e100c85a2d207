package feed

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/domainhooks/hooks/go/internal/httputil"
)

type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// HandleEvents upgrades to a websocket streaming status changes. The optional
// schema_name query parameter narrows the stream to one schema.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	schemaName := r.URL.Query().Get("schema_name")
	if err := h.hub.Upgrade(w, r, schemaName); err != nil {
		// the upgrader has already written an error response
		log.Error().Err(err).Str("schema_name", schemaName).Msg("failed to upgrade websocket connection")
	}
}

func (h *Handler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.hub.Stats())
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/events", h.HandleEvents)
	mux.HandleFunc("GET /ws/stats", h.HandleStats)
}
