package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/starford/datamaps/internal/datamapservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
func NewRouter(svc *datamapservice.Service, authEnabled bool, token string) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/datamaps", h.ListDatamaps)
	r.Route("/datamaps/{ref}", func(r chi.Router) {
		r.Get("/", h.GetDatamap)
		r.Get("/lines", h.Lines)
		r.Get("/runs", h.Runs)
		r.Get("/values", h.LatestValues)
	})
	r.Get("/runs/{runID}/values", h.RunValues)

	return r
}
