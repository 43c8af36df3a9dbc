package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannel(t *testing.T) {
	assert.Equal(t, "playlist:abc", Channel("abc"))
	assert.Equal(t, "playlist:*", ChannelPattern)
}

func TestPlaylistID(t *testing.T) {
	tests := []struct {
		channel string
		want    string
		ok      bool
	}{
		{"playlist:abc", "abc", true},
		{"playlist:", "", false},
		{"broadcast", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			id, ok := PlaylistID(tt.channel)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, id)
		})
	}
}
