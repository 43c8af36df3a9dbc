package realtime

import (
	"context"
	"errors"

	"musicroom/internal/logger"
)

var errHubStopped = errors.New("realtime: hub stopped")

type envelope struct {
	playlistID string
	// version is zero for messages that carry none; those are never dropped as stale.
	version int64
	data    []byte
}

// Hub owns the set of connected clients, grouped by the playlist they watch, and fans
// messages out to one playlist's room at a time.
type Hub struct {
	// Registered clients per playlist.
	rooms map[string]map[*Client]bool

	// Highest playlist version delivered to each room.
	versions map[string]int64

	// Inbound messages from redis to broadcast to one room.
	broadcast chan envelope

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Room size queries, answered from the Run goroutine.
	sizes chan sizeQuery

	// Closed when Run returns.
	done chan struct{}
}

type sizeQuery struct {
	playlistID string
	reply      chan int
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		versions:   make(map[string]int64),
		broadcast:  make(chan envelope),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		sizes:      make(chan sizeQuery),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, room := range h.rooms {
				for client := range room {
					h.drop(client)
				}
			}
			return

		case client := <-h.register:
			room, ok := h.rooms[client.playlistID]
			if !ok {
				room = make(map[*Client]bool)
				h.rooms[client.playlistID] = room
			}
			room[client] = true

		case client := <-h.unregister:
			if _, ok := h.rooms[client.playlistID][client]; ok {
				h.drop(client)
			}

		case msg := <-h.broadcast:
			if msg.version > 0 {
				if msg.version <= h.versions[msg.playlistID] {
					logger.Log.Debug().
						Str("playlist_id", msg.playlistID).
						Int64("version", msg.version).
						Msg("dropping stale playlist update")
					continue
				}
				if _, ok := h.rooms[msg.playlistID]; ok {
					h.versions[msg.playlistID] = msg.version
				}
			}
			for client := range h.rooms[msg.playlistID] {
				select {
				case client.send <- msg.data:
				default:
					// Slow consumer.
					h.drop(client)
				}
			}

		case q := <-h.sizes:
			q.reply <- len(h.rooms[q.playlistID])
		}
	}
}

// Publish queues data for every client watching playlistID. A positive version at or
// below one the room already received is dropped.
func (h *Hub) Publish(ctx context.Context, playlistID string, version int64, data []byte) error {
	select {
	case h.broadcast <- envelope{playlistID: playlistID, version: version, data: data}:
		return nil
	case <-h.done:
		return errHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// roomSize reports how many clients are watching playlistID.
func (h *Hub) roomSize(ctx context.Context, playlistID string) (int, error) {
	q := sizeQuery{playlistID: playlistID, reply: make(chan int, 1)}
	select {
	case h.sizes <- q:
		return <-q.reply, nil
	case <-h.done:
		return 0, errHubStopped
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (h *Hub) drop(client *Client) {
	room := h.rooms[client.playlistID]
	delete(room, client)
	if len(room) == 0 {
		delete(h.rooms, client.playlistID)
		delete(h.versions, client.playlistID)
	}
	close(client.send)
	_ = client.conn.Close()
}
