package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"musicroom/internal/logger"
)

// PSubscriber is the subset of *redis.Client used to follow playlist channels.
type PSubscriber interface {
	PSubscribe(ctx context.Context, channels ...string) *redis.PubSub
}

type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewServer accepts websocket upgrades from allowedOrigins, or from any origin when the
// list is empty.
func NewServer(hub *Hub, allowedOrigins []string) *Server {
	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
	}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/ws/playlists/{id}", s.handleWS)

	return r
}

// RunRedisSubscriber follows every playlist channel and routes messages to the matching
// room until ctx is done.
func (s *Server) RunRedisSubscriber(ctx context.Context, rdb PSubscriber) {
	sub := rdb.PSubscribe(ctx, ChannelPattern)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.dispatch(ctx, msg)
		}
	}
}

func (s *Server) dispatch(ctx context.Context, msg *redis.Message) {
	playlistID, ok := PlaylistID(msg.Channel)
	if !ok {
		logger.Log.Warn().Str("channel", msg.Channel).Msg("ignoring message on unknown channel")
		return
	}
	var head struct {
		Version int64 `json:"version"`
	}
	// Payloads without a version are forwarded unordered.
	_ = json.Unmarshal([]byte(msg.Payload), &head)

	if err := s.hub.Publish(ctx, playlistID, head.Version, []byte(msg.Payload)); err != nil {
		logger.Log.Warn().Err(err).Str("playlist_id", playlistID).Msg("dropping playlist update")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "realtime-service",
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	playlistID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(playlistID); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid playlist id"})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Warn().Err(err).Str("playlist_id", playlistID).Msg("websocket upgrade failed")
		return
	}

	client := newClient(s.hub, conn, playlistID)

	// Queued before registering so the hub is the only writer afterwards.
	welcome := map[string]any{
		"type":       "welcome",
		"playlistId": playlistID,
		"now":        time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.Marshal(welcome); err == nil {
		client.send <- b
	}

	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
