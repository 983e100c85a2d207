package main

import (
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/domainhooks/hooks/go/internal/config"
	"github.com/domainhooks/hooks/go/internal/feed"
	"github.com/domainhooks/hooks/go/internal/httputil"
)

const maxBodyBytes = 1 << 20

func setupServer(cfg *config.Config, services *Services, hub *feed.Hub) *http.Server {
	api := http.NewServeMux()
	registerServices(api, services)

	mux := http.NewServeMux()
	setupHealthCheck(mux, api)
	mux.Handle("/api/", httputil.Chain(api,
		httputil.Recoverer,
		httputil.BodyLimit(maxBodyBytes),
		httputil.RequireJSON,
	))
	feed.NewHandler(hub).RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: cfg.CORSOrigins,
		AllowedHeaders: []string{"*"},
	})

	handler := httputil.RequestLogger(c.Handler(mux))

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func registerServices(mux *http.ServeMux, services *Services) {
	services.Schemas.RegisterRoutes(mux)
	services.Domains.RegisterRoutes(mux)
	services.Hooks.RegisterRoutes(mux)
	services.Events.RegisterRoutes(mux)
}

func setupHealthCheck(mux, api *http.ServeMux) {
	api.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, "ok")
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
