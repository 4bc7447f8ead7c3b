package httpapi

import (
	"encoding/json"
	"net/http"

	"chatd/internal/chat"
	"chatd/internal/engine"
	"chatd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// statusForError maps well-known domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case chat.IsValidation(err):
		return http.StatusBadRequest
	case chat.IsNotFound(err):
		return http.StatusNotFound
	case engine.IsBusy(err):
		return http.StatusTooManyRequests
	case engine.IsNotLoaded(err), engine.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		// engine load, inference and persistence failures are server-side
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	if he, ok := err.(HTTPError); ok {
		writeJSONError(w, he.StatusCode(), he.Error())
		return
	}
	writeJSONError(w, statusForError(err), err.Error())
}
