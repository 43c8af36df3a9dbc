package playlist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingBroadcaster signals started on every publish and waits for release.
type blockingBroadcaster struct {
	recordingBroadcaster
	started chan int64
	release chan struct{}
}

func (b *blockingBroadcaster) Publish(ctx context.Context, playlistID string, version int64, entries []Entry) error {
	b.started <- version
	<-b.release
	return b.recordingBroadcaster.Publish(ctx, playlistID, version, entries)
}

func versionsOf(messages []Message) []int64 {
	out := make([]int64, len(messages))
	for i, m := range messages {
		out[i] = m.Version
	}
	return out
}

func TestDispatcher_SkipsSnapshotsOlderThanPublished(t *testing.T) {
	b := &blockingBroadcaster{started: make(chan int64, 8), release: make(chan struct{})}
	d := newDispatcher(b, time.Second)
	ctx := context.Background()

	d.enqueue(snapshot{ctx: ctx, playlistID: testPlaylistID, version: 5})
	require.Equal(t, int64(5), <-b.started)

	// Arrive while 5 is in flight, out of order.
	d.enqueue(snapshot{ctx: ctx, playlistID: testPlaylistID, version: 7})
	d.enqueue(snapshot{ctx: ctx, playlistID: testPlaylistID, version: 4})
	d.enqueue(snapshot{ctx: ctx, playlistID: testPlaylistID, version: 6})

	close(b.release)
	d.wait()

	assert.Equal(t, []int64{5, 6, 7}, versionsOf(b.all()))
}

func TestDispatcher_PlaylistsDoNotBlockEachOther(t *testing.T) {
	b := &blockingBroadcaster{started: make(chan int64, 8), release: make(chan struct{})}
	d := newDispatcher(b, time.Second)
	ctx := context.Background()

	d.enqueue(snapshot{ctx: ctx, playlistID: "slow", version: 1})
	d.enqueue(snapshot{ctx: ctx, playlistID: "fast", version: 1})

	for i := 0; i < 2; i++ {
		select {
		case <-b.started:
		case <-time.After(time.Second):
			t.Fatal("publish for the second playlist did not start")
		}
	}

	close(b.release)
	d.wait()
	assert.Len(t, b.all(), 2)
}

func TestDispatcher_DetachesFromCallerContext(t *testing.T) {
	b := &recordingBroadcaster{}
	d := newDispatcher(b, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.enqueue(snapshot{ctx: ctx, playlistID: testPlaylistID, version: 1, entries: []Entry{{ID: "e-1"}}})
	d.wait()

	require.Len(t, b.all(), 1)
	assert.Equal(t, "e-1", b.all()[0].Data[0].ID)
}
