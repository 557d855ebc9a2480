package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/wejay/internal/domain/track"
)

func (a *testAPI) admin(t *testing.T, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(AdminTokenHeader, token)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func TestAdmin_Disabled(t *testing.T) {
	api := newTestAPI(t, Config{}, "")
	rr := api.admin(t, http.MethodGet, "/api/admin/rooms", "anything")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAdmin_Auth(t *testing.T) {
	api := newTestAPI(t, Config{AdminToken: "secret"}, "")

	tests := []struct {
		name     string
		token    string
		wantCode int
	}{
		{name: "missing", token: "", wantCode: http.StatusUnauthorized},
		{name: "wrong", token: "guess", wantCode: http.StatusUnauthorized},
		{name: "valid", token: "secret", wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := api.admin(t, http.MethodGet, "/api/admin/rooms", tt.token)
			assert.Equal(t, tt.wantCode, rr.Code)
		})
	}
}

func TestAdmin_RoomStatusAndSkip(t *testing.T) {
	api := newTestAPI(t, Config{AdminToken: "secret"}, "")
	ctx := context.Background()

	_, _, err := api.queue.OpenRoom(ctx, "room1", "alice")
	require.NoError(t, err)
	for _, id := range []string{"t1", "t2"} {
		_, err := api.queue.Add(ctx, "room1", "alice", track.Track{SpotifyID: id, Name: id}, "")
		require.NoError(t, err)
	}

	rr := api.admin(t, http.MethodGet, "/api/admin/rooms", "secret")
	require.Equal(t, http.StatusOK, rr.Code)
	rooms := decode[[]RoomStatus](t, rr)
	require.Len(t, rooms, 1)
	assert.Equal(t, "room1", rooms[0].Room.ID)
	assert.Equal(t, 2, rooms[0].QueueLength)
	require.NotNil(t, rooms[0].NowPlaying)
	assert.Equal(t, "t1", rooms[0].NowPlaying.SpotifyID)
	require.NotNil(t, rooms[0].Playback)
	assert.Equal(t, rooms[0].NowPlaying.ID, rooms[0].Playback.Current())
	assert.Zero(t, rooms[0].Connections)

	rr = api.admin(t, http.MethodPost, "/api/admin/rooms/room1/skip", "secret")
	require.Equal(t, http.StatusOK, rr.Code)
	status := decode[RoomStatus](t, rr)
	assert.Equal(t, 1, status.QueueLength)
	require.NotNil(t, status.NowPlaying)
	assert.Equal(t, "t2", status.NowPlaying.SpotifyID)

	rr = api.admin(t, http.MethodGet, "/api/admin/rooms/missing", "secret")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = api.admin(t, http.MethodPost, "/api/admin/rooms/missing/skip", "secret")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
