package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/datamaps/internal/datamapservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *datamapservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *datamapservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListDatamaps handles GET /api/datamaps.
//
//	@Summary		List datamaps with their line counts
//	@Tags			datamaps
//	@Produce		json
//	@Success		200	{object}	DatamapListResponse
//	@Security		BearerAuth
//	@Router			/datamaps [get]
func (h *Handler) ListDatamaps(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListDatamaps(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DatamapListResponse{Datamaps: items})
}

// GetDatamap handles GET /api/datamaps/{ref}.
//
//	@Summary		Get a datamap by id or name
//	@Tags			datamaps
//	@Produce		json
//	@Param			ref	path		string	true	"Datamap id or name"
//	@Success		200	{object}	DatamapDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/datamaps/{ref} [get]
func (h *Handler) GetDatamap(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.GetDatamap(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Lines handles GET /api/datamaps/{ref}/lines.
//
//	@Summary		List the lines of a datamap in definition order
//	@Tags			datamaps
//	@Produce		json
//	@Param			ref	path		string	true	"Datamap id or name"
//	@Success		200	{object}	LinesResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/datamaps/{ref}/lines [get]
func (h *Handler) Lines(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.GetDatamap(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LinesResponse{DatamapID: d.ID, Lines: d.Lines})
}

// Runs handles GET /api/datamaps/{ref}/runs.
//
//	@Summary		List extraction runs of a datamap, newest first
//	@Tags			runs
//	@Produce		json
//	@Param			ref	path		string	true	"Datamap id or name"
//	@Success		200	{object}	RunListResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/datamaps/{ref}/runs [get]
func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	runs, err := h.svc.Runs(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RunListResponse{Runs: runs})
}

// LatestValues handles GET /api/datamaps/{ref}/values.
//
//	@Summary		Values recorded by the newest run of a datamap
//	@Tags			runs
//	@Produce		json
//	@Param			ref	path		string	true	"Datamap id or name"
//	@Param			run	query		string	false	"Run id; defaults to the newest run"
//	@Success		200	{object}	RunValues
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/datamaps/{ref}/values [get]
func (h *Handler) LatestValues(w http.ResponseWriter, r *http.Request) {
	rv, err := h.svc.Values(r.Context(), chi.URLParam(r, "ref"), r.URL.Query().Get("run"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rv)
}

// RunValues handles GET /api/runs/{runID}/values.
//
//	@Summary		Values recorded by one extraction run
//	@Tags			runs
//	@Produce		json
//	@Param			runID	path		string	true	"Run id"
//	@Success		200		{object}	RunValues
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/runs/{runID}/values [get]
func (h *Handler) RunValues(w http.ResponseWriter, r *http.Request) {
	rv, err := h.svc.RunValues(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rv)
}
