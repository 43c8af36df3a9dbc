package playlist

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// handleListPlaylists lists the playlists the caller can see, newest first. ?event=true
// or ?event=false narrows the list to events or to regular playlists.
func (s *Server) handleListPlaylists(w http.ResponseWriter, r *http.Request) {
	var event *bool
	if raw := r.URL.Query().Get("event"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrInvalidRequest.Code, "event must be true or false")
			return
		}
		event = &v
	}

	playlists, err := s.svc.ListPlaylists(r.Context(), currentUser(r), event)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, playlists)
}

func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req CreatePlaylistRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := s.svc.CreatePlaylist(r.Context(), currentUser(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(w, r)
	if !ok {
		return
	}

	view, err := s.svc.GetPlaylist(r.Context(), id, currentUser(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePatchPlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(w, r)
	if !ok {
		return
	}

	var req UpdatePlaylistRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := s.svc.UpdatePlaylist(r.Context(), id, currentUser(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(w, r)
	if !ok {
		return
	}

	if err := s.svc.DeletePlaylist(r.Context(), id, currentUser(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateLicense(w http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(w, r)
	if !ok {
		return
	}

	var l License
	if !decodeJSON(w, r, &l) {
		return
	}
	l.Type = strings.TrimSpace(strings.ToLower(l.Type))

	p, err := s.svc.UpdateLicense(r.Context(), id, currentUser(r), l)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAddInvite(w http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(w, r)
	if !ok {
		return
	}

	var body struct {
		UserID string `json:"userId"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	invitee := strings.TrimSpace(body.UserID)
	if err := s.svc.AddInvite(r.Context(), id, currentUser(r), invitee); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"playlistId": id,
		"userId":     invitee,
	})
}

func (s *Server) handleDeleteInvite(w http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(w, r)
	if !ok {
		return
	}

	if err := s.svc.RemoveInvite(r.Context(), id, currentUser(r), chi.URLParam(r, "userId")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
