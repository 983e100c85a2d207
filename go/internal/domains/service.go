package domains

import (
	"net/http"

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
	mux.HandleFunc("POST /api/v1/schemas/{name}/domains", s.createDomain)
	mux.HandleFunc("GET /api/v1/schemas/{name}/domains", s.findDomains)
	mux.HandleFunc("DELETE /api/v1/schemas/{name}/domains/{domain_id}", s.deleteDomain)
}

func (s *Service) createDomain(w http.ResponseWriter, r *http.Request) {
	var req CreateDomainRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	domain, err := s.app.CreateDomain(r.Context(), r.PathValue("name"), req)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, domain)
}

func (s *Service) findDomains(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParsePage(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	filter := models.DomainFilter{
		SchemaName: r.PathValue("name"),
		DomainID:   r.URL.Query().Get("domain_id"),
	}
	domains, err := s.app.FindDomains(r.Context(), filter, page)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, domains)
}

func (s *Service) deleteDomain(w http.ResponseWriter, r *http.Request) {
	domain, err := s.app.DeleteDomain(r.Context(), r.PathValue("name"), r.PathValue("domain_id"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, domain)
}
