package schemas

import (
	"net/http"

	"github.com/domainhooks/hooks/go/internal/httputil"
	"github.com/domainhooks/hooks/go/internal/models"
)

// Service exposes schemas over HTTP.
type Service struct {
	app *App
}

func NewService(app *App) *Service {
	return &Service{app: app}
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/schemas", s.upsertSchema)
	mux.HandleFunc("GET /api/v1/schemas", s.findSchemas)
	mux.HandleFunc("DELETE /api/v1/schemas/{name}", s.deleteSchema)
}

func (s *Service) upsertSchema(w http.ResponseWriter, r *http.Request) {
	var req UpsertSchemaRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	schema, err := s.app.UpsertSchema(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, schema)
}

func (s *Service) findSchemas(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParsePage(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	schemas, err := s.app.FindSchemas(r.Context(), models.SchemaFilter{Name: r.URL.Query().Get("name")}, page)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, schemas)
}

func (s *Service) deleteSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := s.app.DeleteSchema(r.Context(), r.PathValue("name"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, schema)
}
