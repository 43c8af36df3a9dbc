package playlist

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"musicroom/internal/auth"
	"musicroom/internal/logger"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{
		"error": msg,
		"code":  code,
	})
}

// writeServiceError answers with the status of a known *Error and a generic 500 for
// anything else.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var e *Error
	if errors.As(err, &e) {
		writeError(w, e.Status, e.Code, e.Message)
		return
	}

	logger.FromContext(r.Context()).Error().
		Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("playlist_id", chi.URLParam(r, "id")).
		Msg("playlist request failed")
	writeError(w, http.StatusInternalServerError, "internal", "database error")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, ErrInvalidRequest.Code, "invalid JSON body")
		return false
	}
	return true
}

// playlistID reads and validates the {id} route parameter.
func playlistID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, ErrInvalidRequest.Code, "invalid playlist id")
		return "", false
	}
	return id, true
}

func currentUser(r *http.Request) string {
	id, _ := auth.UserID(r.Context())
	return id
}
