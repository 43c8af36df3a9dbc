package playlist

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"musicroom/internal/realtime"
)

// Broadcaster pushes the current ordered track list of a playlist to its viewers.
// version is the playlist version the snapshot was taken at.
type Broadcaster interface {
	Publish(ctx context.Context, playlistID string, version int64, entries []Entry) error
}

// Message is the payload viewers receive on every change. Viewers keep the message with
// the highest Version.
type Message struct {
	PlaylistID string  `json:"playlistId"`
	Type       string  `json:"type"`
	Version    int64   `json:"version"`
	Data       []Entry `json:"data"`
}

func NewMessage(playlistID string, version int64, entries []Entry) Message {
	if entries == nil {
		entries = []Entry{}
	}
	return Message{
		PlaylistID: playlistID,
		Type:       realtime.MessageTypeUpdate,
		Version:    version,
		Data:       entries,
	}
}

// Publisher is the subset of *redis.Client used for broadcasting.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisBroadcaster publishes snapshots on the playlist's redis channel, where the realtime
// service fans them out to websocket clients.
type RedisBroadcaster struct {
	rdb Publisher
}

func NewRedisBroadcaster(rdb Publisher) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, playlistID string, version int64, entries []Entry) error {
	data, err := json.Marshal(NewMessage(playlistID, version, entries))
	if err != nil {
		return fmt.Errorf("marshal playlist update: %w", err)
	}
	if err := b.rdb.Publish(ctx, realtime.Channel(playlistID), string(data)).Err(); err != nil {
		return fmt.Errorf("publish playlist update: %w", err)
	}
	return nil
}

// NopBroadcaster drops every update. Used when redis is not configured.
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(context.Context, string, int64, []Entry) error { return nil }
