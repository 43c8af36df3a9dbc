package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	roomA = "3f1d2c4b-1111-4a5b-8c6d-7e8f9a0b1c2d"
	roomB = "3f1d2c4b-2222-4a5b-8c6d-7e8f9a0b1c2d"
)

func startServer(t *testing.T, origins []string) (*Hub, *Server, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub()
	go hub.Run(ctx)

	s := NewServer(hub, origins)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return hub, s, ts
}

func dial(t *testing.T, ts *httptest.Server, playlistID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/playlists/" + playlistID
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	// Welcome frame.
	_ = ws.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)
	var welcome map[string]any
	require.NoError(t, json.Unmarshal(raw, &welcome))
	require.Equal(t, "welcome", welcome["type"])
	require.Equal(t, playlistID, welcome["playlistId"])
	return ws
}

func waitForRoom(t *testing.T, hub *Hub, playlistID string, size int) {
	t.Helper()
	assert.Eventually(t, func() bool {
		n, err := hub.roomSize(context.Background(), playlistID)
		return err == nil && n == size
	}, time.Second, 10*time.Millisecond)
}

func readWithin(ws *websocket.Conn, d time.Duration) (string, error) {
	_ = ws.SetReadDeadline(time.Now().Add(d))
	_, raw, err := ws.ReadMessage()
	return string(raw), err
}

func TestServer_HandleHealth(t *testing.T) {
	s := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	s.handleHealth(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "realtime-service")
}

func TestServer_HandleWS_InvalidPlaylist(t *testing.T) {
	_, _, ts := startServer(t, nil)

	resp, err := http.Get(ts.URL + "/ws/playlists/nope")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_HandleWS_Origin(t *testing.T) {
	_, _, ts := startServer(t, []string{"http://localhost:3000"})
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/playlists/" + roomA

	header := http.Header{}
	header.Set("Origin", "http://localhost:3000")
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = ws.Close()

	header.Set("Origin", "http://evil.com")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHub_RoutesToRoomOnly(t *testing.T) {
	hub, _, ts := startServer(t, nil)

	a1 := dial(t, ts, roomA)
	a2 := dial(t, ts, roomA)
	b := dial(t, ts, roomB)
	waitForRoom(t, hub, roomA, 2)
	waitForRoom(t, hub, roomB, 1)

	require.NoError(t, hub.Publish(context.Background(), roomA, 0, []byte(`{"type":"playlist_update"}`)))

	for _, ws := range []*websocket.Conn{a1, a2} {
		msg, err := readWithin(ws, time.Second)
		require.NoError(t, err)
		assert.Equal(t, `{"type":"playlist_update"}`, msg)
	}

	_, err := readWithin(b, 100*time.Millisecond)
	assert.Error(t, err, "room B must not receive room A updates")
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub, _, ts := startServer(t, nil)

	ws := dial(t, ts, roomA)
	waitForRoom(t, hub, roomA, 1)

	require.NoError(t, ws.Close())
	waitForRoom(t, hub, roomA, 0)
}

func TestHub_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	assert.ErrorIs(t, hub.Publish(context.Background(), roomA, 0, []byte("x")), errHubStopped)
}

func TestRunRedisSubscriber(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hub, s, ts := startServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.RunRedisSubscriber(ctx, rdb)

	assert.Eventually(t, func() bool { return mr.PubSubNumPat() > 0 }, time.Second, 10*time.Millisecond)

	ws := dial(t, ts, roomA)
	waitForRoom(t, hub, roomA, 1)

	payload := `{"playlistId":"` + roomA + `","type":"playlist_update","data":[]}`
	require.NoError(t, rdb.Publish(context.Background(), Channel(roomA), payload).Err())
	require.NoError(t, rdb.Publish(context.Background(), Channel(roomB), `{"ignored":true}`).Err())

	msg, err := readWithin(ws, time.Second)
	require.NoError(t, err)
	assert.Equal(t, payload, msg)

	_, err = readWithin(ws, 100*time.Millisecond)
	assert.Error(t, err)
}

func TestDispatch_UnknownChannel(t *testing.T) {
	hub, s, _ := startServer(t, nil)

	s.dispatch(context.Background(), &redis.Message{Channel: "broadcast", Payload: "x"})

	n, err := hub.roomSize(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestHub_DropsStaleVersions(t *testing.T) {
	hub, _, ts := startServer(t, nil)

	ws := dial(t, ts, roomA)
	waitForRoom(t, hub, roomA, 1)

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, roomA, 2, []byte(`{"version":2}`)))
	require.NoError(t, hub.Publish(ctx, roomA, 1, []byte(`{"version":1}`)))
	require.NoError(t, hub.Publish(ctx, roomA, 2, []byte(`{"version":2}`)))
	require.NoError(t, hub.Publish(ctx, roomA, 3, []byte(`{"version":3}`)))

	var got []string
	for i := 0; i < 2; i++ {
		msg, err := readWithin(ws, time.Second)
		require.NoError(t, err)
		got = append(got, msg)
	}
	assert.Equal(t, []string{`{"version":2}`, `{"version":3}`}, got)

	_, err := readWithin(ws, 100*time.Millisecond)
	assert.Error(t, err)
}

func TestDispatch_ReadsVersionFromPayload(t *testing.T) {
	hub, s, ts := startServer(t, nil)

	ws := dial(t, ts, roomA)
	waitForRoom(t, hub, roomA, 1)

	ctx := context.Background()
	newer := `{"playlistId":"` + roomA + `","type":"playlist_update","version":5,"data":[]}`
	older := `{"playlistId":"` + roomA + `","type":"playlist_update","version":4,"data":[]}`
	s.dispatch(ctx, &redis.Message{Channel: Channel(roomA), Payload: newer})
	s.dispatch(ctx, &redis.Message{Channel: Channel(roomA), Payload: older})

	msg, err := readWithin(ws, time.Second)
	require.NoError(t, err)
	assert.Equal(t, newer, msg)

	_, err = readWithin(ws, 100*time.Millisecond)
	assert.Error(t, err, "older snapshot must not reach the room")
}
