package playlist

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"musicroom/internal/auth"
)

type Server struct {
	svc        *Service
	authSecret []byte
}

func NewServer(svc *Service, authSecret []byte) *Server {
	return &Server{
		svc:        svc,
		authSecret: authSecret,
	}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.authSecret))

		r.Get("/tracks/search", s.handleSearchTracks)

		r.Get("/playlists", s.handleListPlaylists)
		r.Post("/playlists", s.handleCreatePlaylist)
		r.Get("/playlists/{id}", s.handleGetPlaylist)
		r.Patch("/playlists/{id}", s.handlePatchPlaylist)
		r.Delete("/playlists/{id}", s.handleDeletePlaylist)
		r.Patch("/playlists/{id}/license", s.handleUpdateLicense)

		r.Post("/playlists/{id}/invites", s.handleAddInvite)
		r.Delete("/playlists/{id}/invites/{userId}", s.handleDeleteInvite)

		r.Get("/playlists/{id}/tracks", s.handleListTracks)
		r.Post("/playlists/{id}/tracks", s.handleAddTrack)
		r.Post("/playlists/{id}/tracks/move", s.handleMoveTracks)
		r.Post("/playlists/{id}/tracks/vote", s.handleVote)
		r.Delete("/playlists/{id}/tracks/{entryId}", s.handleDeleteTrack)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "playlist-service",
	})
}
