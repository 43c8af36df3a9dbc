package playlist

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxSearchQueryLen = 200

type tracksResponse struct {
	PlaylistID string  `json:"playlistId"`
	Message    string  `json:"message,omitempty"`
	Tracks     []Entry `json:"tracks"`
}

func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(w, r)
	if !ok {
		return
	}

	entries, err := s.svc.Tracks(r.Context(), id, currentUser(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tracksResponse{PlaylistID: id, Tracks: entries})
}

func (s *Server) handleAddTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(w, r)
	if !ok {
		return
	}

	var req AddTrackRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.TrackID = strings.TrimSpace(req.TrackID)
	if req.TrackID != "" {
		if _, err := uuid.Parse(req.TrackID); err != nil {
			writeError(w, http.StatusBadRequest, ErrInvalidRequest.Code, "invalid trackId")
			return
		}
	}

	entries, err := s.svc.AddTrack(r.Context(), id, currentUser(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tracksResponse{PlaylistID: id, Tracks: entries})
}

func (s *Server) handleMoveTracks(w http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(w, r)
	if !ok {
		return
	}

	var req MoveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entries, err := s.svc.Move(r.Context(), id, currentUser(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tracksResponse{
		PlaylistID: id,
		Message:    "Tracks reordered successfully",
		Tracks:     entries,
	})
}

func (s *Server) handleDeleteTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(w, r)
	if !ok {
		return
	}
	entryID := chi.URLParam(r, "entryId")
	if _, err := uuid.Parse(entryID); err != nil {
		writeServiceError(w, r, ErrEntryNotFound)
		return
	}

	entries, err := s.svc.DeleteEntry(r.Context(), id, currentUser(r), entryID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tracksResponse{
		PlaylistID: id,
		Message:    "Track deleted successfully",
		Tracks:     entries,
	})
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(w, r)
	if !ok {
		return
	}

	var req VoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if (req.Lat == nil) != (req.Lng == nil) {
		writeError(w, http.StatusBadRequest, ErrInvalidRequest.Code, "lat and lng must be provided together")
		return
	}

	actor := Actor{UserID: currentUser(r), Lat: req.Lat, Lng: req.Lng}
	entries, err := s.svc.Vote(r.Context(), id, actor, req.RangeStart)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tracksResponse{PlaylistID: id, Tracks: entries})
}

func (s *Server) handleSearchTracks(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, ErrInvalidRequest.Code, "q is required")
		return
	}
	if len(q) > maxSearchQueryLen {
		writeError(w, http.StatusBadRequest, ErrInvalidRequest.Code, "q is too long")
		return
	}

	limit := 25
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 50 {
			writeError(w, http.StatusBadRequest, ErrInvalidRequest.Code, "limit must be between 1 and 50")
			return
		}
		limit = n
	}

	items, err := s.svc.SearchTracks(r.Context(), q, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
