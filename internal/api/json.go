package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/datamaps/internal/apperr"
)

// Error codes carried in error bodies.
const (
	codeUnauthorized  = "unauthorized"
	codeNotFound      = "not_found"
	codeSchemaMissing = "schema_missing"
	codeInternal      = "internal"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func errorBody(code, msg string) errResponse {
	return errResponse{Code: code, Error: msg}
}

// writeError maps store and lookup errors onto HTTP statuses. Only
// unexpected errors are logged.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(codeNotFound, "not found"))
	case errors.Is(err, apperr.ErrSchemaMissing):
		writeJSON(w, http.StatusServiceUnavailable,
			errorBody(codeSchemaMissing, "schema missing; import a datamap with --initial first"))
	default:
		slog.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody(codeInternal, "internal error"))
	}
}
