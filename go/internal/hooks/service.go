package hooks

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
	mux.HandleFunc("POST /api/v1/hooks", s.createHook)
	mux.HandleFunc("GET /api/v1/hooks", s.findHooks)
	mux.HandleFunc("GET /api/v1/hooks/{hook_id}", s.getHook)
	mux.HandleFunc("DELETE /api/v1/hooks/{hook_id}", s.deleteHook)
}

func (s *Service) createHook(w http.ResponseWriter, r *http.Request) {
	var req CreateHookRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	hook, err := s.app.CreateHook(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, hook)
}

func (s *Service) findHooks(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParsePage(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	q := r.URL.Query()
	filter := models.HookFilter{
		Type:       models.HookType(q.Get("type")),
		SchemaName: q.Get("schema_name"),
		EventName:  q.Get("event_name"),
	}
	hooks, err := s.app.FindHooks(r.Context(), filter, page)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, hooks)
}

func (s *Service) getHook(w http.ResponseWriter, r *http.Request) {
	id, err := hookID(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	hook, err := s.app.GetHook(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, hook)
}

func (s *Service) deleteHook(w http.ResponseWriter, r *http.Request) {
	id, err := hookID(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	hook, err := s.app.DeleteHook(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, hook)
}

func hookID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("hook_id"))
	if err != nil {
		return uuid.Nil, apperrors.Validation("invalid hook id", r.PathValue("hook_id"))
	}
	return id, nil
}
