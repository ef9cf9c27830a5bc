package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/starford/synapse/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// validatable is implemented by request bodies.
type validatable interface {
	Validate() error
}

// decodeJSON reads a size-limited JSON body into v and validates it.
// It writes the error response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v validatable) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("request body too large"))
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if err := v.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	return true
}

// writeError maps domain errors onto HTTP statuses. Unexpected errors are
// logged and reported as "internal error".
func writeError(w http.ResponseWriter, op string, err error, attrs ...any) {
	switch {
	case apperr.IsPathEscape(err):
		writeJSON(w, http.StatusBadRequest, errorBody("path is outside the vault"))
	case apperr.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case apperr.IsConflict(err):
		writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
	case apperr.IsMalformedHeader(err):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("metadata header is malformed"))
	default:
		slog.Error(fmt.Sprintf("%s failed", op), append(attrs, slog.String("error", err.Error()))...)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
