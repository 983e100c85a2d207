package events

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/domainhooks/hooks/go/internal/apperrors"
	"github.com/domainhooks/hooks/go/internal/httputil"
	"github.com/domainhooks/hooks/go/internal/models"
)

type Service struct {
	app *App
}

func NewService(app *App) *Service {
	return &Service{app: app}
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/schemas/{name}/domains/{domain_id}/events", s.insertEvent)
	mux.HandleFunc("GET /api/v1/schemas/{name}/events", s.findEvents)
	mux.HandleFunc("PATCH /api/v1/schemas/{name}/events/{event_id}", s.updateEvent)
}

func (s *Service) insertEvent(w http.ResponseWriter, r *http.Request) {
	var req InsertEventRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	events, err := s.app.InsertEvent(r.Context(), r.PathValue("name"), r.PathValue("domain_id"), req)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, events)
}

func (s *Service) findEvents(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParsePage(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	q := r.URL.Query()
	filter := models.EventFilter{
		SchemaName: r.PathValue("name"),
		EventName:  q.Get("event_name"),
		QueueName:  q.Get("queue_name"),
		Status:     models.EventStatus(q.Get("status")),
	}
	// event_id is accepted as an alias of id
	rawID := q.Get("id")
	if rawID == "" {
		rawID = q.Get("event_id")
	}
	if rawID != "" {
		id, err := uuid.Parse(rawID)
		if err != nil {
			httputil.WriteError(w, r, apperrors.Validation("invalid event id", rawID))
			return
		}
		filter.ID = &id
	}

	events, err := s.app.FindEvents(r.Context(), filter, page)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}

func (s *Service) updateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("event_id"))
	if err != nil {
		httputil.WriteError(w, r, apperrors.Validation("invalid event id", r.PathValue("event_id")))
		return
	}
	var req UpdateEventRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	event, err := s.app.UpdateEventStatus(r.Context(), r.PathValue("name"), id, req)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, event)
}
