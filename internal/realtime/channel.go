package realtime

import "strings"

const (
	channelPrefix = "playlist:"

	// ChannelPattern matches every playlist update channel.
	ChannelPattern = channelPrefix + "*"

	// MessageTypeUpdate tags a full ordered snapshot of a playlist.
	MessageTypeUpdate = "playlist_update"
)

// Channel is the pub/sub channel carrying updates for one playlist.
func Channel(playlistID string) string {
	return channelPrefix + playlistID
}

// PlaylistID extracts the playlist id from a channel name.
func PlaylistID(channel string) (string, bool) {
	id, ok := strings.CutPrefix(channel, channelPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
