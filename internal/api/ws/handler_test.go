package ws

import (
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

	"github.com/osa030/wejay/internal/app/notification"
	appplayback "github.com/osa030/wejay/internal/app/playback"
	"github.com/osa030/wejay/internal/app/protocol"
	"github.com/osa030/wejay/internal/app/queue"
	"github.com/osa030/wejay/internal/app/session"
	"github.com/osa030/wejay/internal/domain/track"
	"github.com/osa030/wejay/internal/infra/store"
)

func newTestServer(t *testing.T, allowedOrigins []string) (*httptest.Server, *Handler) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	st := store.NewRedisStore(rdb)
	notif := notification.NewManager()
	pb := appplayback.NewSync(st, notif)
	q := queue.NewService(st, nil, pb, notif, queue.Config{SerializeRooms: true})
	sessions := session.NewManager(notif, q, pb, st)

	handler := NewHandler(sessions, allowedOrigins)
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, handler
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, intent protocol.Intent) {
	t.Helper()
	data, err := protocol.EncodeIntent(intent)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func read(t *testing.T, conn *websocket.Conn) protocol.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	e, err := protocol.DecodeEvent(data)
	require.NoError(t, err)
	return e
}

func TestHandler_JoinAndAdd(t *testing.T) {
	server, _ := newTestServer(t, nil)

	alice := dial(t, server)
	send(t, alice, protocol.JoinRoom{RoomID: "room1", UserID: "alice"})
	state, ok := read(t, alice).(protocol.QueueState)
	require.True(t, ok)
	assert.Empty(t, state.Tracks)

	bob := dial(t, server)
	send(t, bob, protocol.JoinRoom{RoomID: "room1", UserID: "bob"})
	_, ok = read(t, bob).(protocol.QueueState)
	require.True(t, ok)
	assert.Equal(t, protocol.UserJoined{UserID: "bob"}, read(t, alice))

	send(t, bob, protocol.AddTrack{RoomID: "room1", Track: track.Track{SpotifyID: "t1", Name: "Song"}})
	for _, conn := range []*websocket.Conn{alice, bob} {
		updated, ok := read(t, conn).(protocol.QueueUpdated)
		require.True(t, ok)
		require.Len(t, updated.Tracks, 1)
		assert.Equal(t, "bob", updated.Tracks[0].AddedBy)

		ps, ok := read(t, conn).(protocol.PlaybackSync)
		require.True(t, ok)
		assert.Equal(t, updated.Tracks[0].ID, ps.PlaybackState.Current())
	}
}

func TestHandler_InvalidMessage(t *testing.T) {
	server, _ := newTestServer(t, nil)
	conn := dial(t, server)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"room:join","payload":{"roomId":"bad room!","userId":"alice"}}`)))
	e, ok := read(t, conn).(protocol.Error)
	require.True(t, ok)
	assert.Equal(t, protocol.CodeInvalidMessage, e.Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	e, ok = read(t, conn).(protocol.Error)
	require.True(t, ok)
	assert.Equal(t, protocol.CodeInvalidMessage, e.Code)

	send(t, conn, protocol.TrackEnded{RoomID: "room1"})
	e, ok = read(t, conn).(protocol.Error)
	require.True(t, ok)
	assert.Equal(t, protocol.CodeNotJoined, e.Code)
}

func TestHandler_DisconnectAnnouncesLeave(t *testing.T) {
	server, _ := newTestServer(t, nil)

	alice := dial(t, server)
	send(t, alice, protocol.JoinRoom{RoomID: "room1", UserID: "alice"})
	read(t, alice)

	bob := dial(t, server)
	send(t, bob, protocol.JoinRoom{RoomID: "room1", UserID: "bob"})
	read(t, bob)
	read(t, alice)

	require.NoError(t, bob.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Equal(t, protocol.UserLeft{UserID: "bob"}, read(t, alice))
}

func TestHandler_ForbiddenOrigin(t *testing.T) {
	server, _ := newTestServer(t, []string{"http://localhost:3000"})
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "http://localhost:3000")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestClient_SendAfterClose(t *testing.T) {
	c := &client{send: make(chan []byte, 1), done: make(chan struct{})}
	require.NoError(t, c.Send(protocol.UserJoined{UserID: "alice"}))

	close(c.done)
	err := c.Send(protocol.UserJoined{UserID: "bob"})
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestHandler_Close(t *testing.T) {
	server, handler := newTestServer(t, nil)

	conn := dial(t, server)
	send(t, conn, protocol.JoinRoom{RoomID: "room1", UserID: "alice"})
	read(t, conn)
	require.Equal(t, 1, handler.Count())

	handler.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
	assert.Eventually(t, func() bool { return handler.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
