package protocol

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/wejay/internal/domain/playback"
	"github.com/osa030/wejay/internal/domain/track"
)

func TestDecodeIntent(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Intent
	}{
		{
			name:     "join",
			input:    `{"type":"room:join","payload":{"roomId":"friday","userId":"alice_1"}}`,
			expected: JoinRoom{RoomID: "friday", UserID: "alice_1"},
		},
		{
			name:     "leave",
			input:    `{"type":"room:leave","payload":{"roomId":"friday","userId":"alice"}}`,
			expected: LeaveRoom{RoomID: "friday", UserID: "alice"},
		},
		{
			name:  "add",
			input: `{"type":"queue:add","payload":{"roomId":"friday","track":{"spotifyId":"s1","name":"Song","artist":"Band","duration":1000},"accessToken":"tok"}}`,
			expected: AddTrack{
				RoomID:      "friday",
				Track:       track.Track{SpotifyID: "s1", Name: "Song", Artist: "Band", DurationSec: 1000},
				AccessToken: "tok",
			},
		},
		{
			name:     "remove",
			input:    `{"type":"queue:remove","payload":{"roomId":"friday","trackId":"c1"}}`,
			expected: RemoveTrack{RoomID: "friday", TrackID: "c1"},
		},
		{
			name:     "move",
			input:    `{"type":"queue:move","payload":{"roomId":"friday","trackId":"c1","userId":"alice","direction":"down"}}`,
			expected: MoveTrack{RoomID: "friday", TrackID: "c1", UserID: "alice", Direction: DirectionDown},
		},
		{
			name:  "playback update",
			input: `{"type":"playback:update","payload":{"roomId":"friday","playbackState":{"currentTrackId":null,"position":10,"isPlaying":false,"timestamp":5}}}`,
			expected: UpdatePlayback{
				RoomID:        "friday",
				PlaybackState: playback.State{Position: 10, Timestamp: 5},
			},
		},
		{
			name:     "track ended",
			input:    `{"type":"playback:track_ended","payload":{"roomId":"friday","trackId":"c1"}}`,
			expected: TrackEnded{RoomID: "friday", TrackID: "c1"},
		},
		{
			name:     "create playlist",
			input:    `{"type":"room:create_playlist","payload":{"roomId":"friday","accessToken":"tok"}}`,
			expected: CreatePlaylist{RoomID: "friday", AccessToken: "tok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeIntent([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, tt.expected.Type(), got.Type())
			assert.Equal(t, "friday", got.Room())
		})
	}
}

func TestDecodeIntent_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "not json", input: `nope`, wantErr: ErrInvalidPayload},
		{name: "unknown type", input: `{"type":"queue:shuffle","payload":{}}`, wantErr: ErrUnknownType},
		{name: "missing payload", input: `{"type":"room:join"}`, wantErr: ErrInvalidPayload},
		{name: "missing room", input: `{"type":"room:join","payload":{"userId":"alice"}}`, wantErr: ErrInvalidPayload},
		{name: "bad room chars", input: `{"type":"room:join","payload":{"roomId":"a b","userId":"alice"}}`, wantErr: ErrInvalidPayload},
		{name: "room too long", input: `{"type":"room:join","payload":{"roomId":"` + strings.Repeat("a", 51) + `","userId":"alice"}}`, wantErr: ErrInvalidPayload},
		{name: "bad direction", input: `{"type":"queue:move","payload":{"roomId":"r","trackId":"c1","direction":"left"}}`, wantErr: ErrInvalidPayload},
		{name: "add without track id", input: `{"type":"queue:add","payload":{"roomId":"r","track":{"name":"Song"}}}`, wantErr: ErrInvalidPayload},
		{name: "create playlist without token", input: `{"type":"room:create_playlist","payload":{"roomId":"r"}}`, wantErr: ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeIntent([]byte(tt.input))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEncodeEvent(t *testing.T) {
	st := playback.AnchorAt("c1", time.UnixMilli(1000))
	data, err := EncodeEvent(PlaybackSync{PlaybackState: st})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"playback:sync","payload":{"playbackState":{"currentTrackId":"c1","position":0,"isPlaying":true,"timestamp":1000}}}`,
		string(data))

	data, err = EncodeEvent(QueueState{Tracks: []track.Entry{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"queue:state","payload":{"tracks":[],"playbackState":null}}`, string(data))
}

func TestEventRoundTrip(t *testing.T) {
	events := []Event{
		QueueUpdated{Tracks: []track.Entry{{Contribution: track.Contribution{ID: "c1", AddedBy: "alice"}, Position: 1}}},
		UserJoined{UserID: "alice"},
		UserLeft{UserID: "bob"},
		PlaylistCreated{PlaylistID: "p1", PlaylistURL: "https://open.spotify.com/playlist/p1"},
		Error{Code: CodeRejected, Message: "duplicate_track"},
	}

	for _, e := range events {
		t.Run(e.Type(), func(t *testing.T) {
			data, err := EncodeEvent(e)
			require.NoError(t, err)

			got, err := DecodeEvent(data)
			require.NoError(t, err)
			assert.Equal(t, e, got)
		})
	}
}

func TestIntentRoundTrip(t *testing.T) {
	in := MoveTrack{RoomID: "r", TrackID: "c1", Direction: DirectionUp}
	data, err := EncodeIntent(in)
	require.NoError(t, err)

	got, err := DecodeIntent(data)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID("room-1_a"))
	assert.False(t, ValidID(""))
	assert.False(t, ValidID("room 1"))
	assert.False(t, ValidID(strings.Repeat("x", 51)))
}
