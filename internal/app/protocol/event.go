package protocol

import (
	"github.com/osa030/wejay/internal/domain/playback"
	"github.com/osa030/wejay/internal/domain/track"
)

// Event types.
const (
	TypeQueueState      = "queue:state"
	TypeQueueUpdated    = "queue:updated"
	TypePlaybackSync    = "playback:sync"
	TypeUserJoined      = "room:user_joined"
	TypeUserLeft        = "room:user_left"
	TypePlaylistCreated = "room:playlist_created"
	TypeError           = "error"
)

// Event is a server message. The set of implementations is closed.
type Event interface {
	// Type returns the wire type name.
	Type() string
	isEvent()
}

// QueueState is the full snapshot sent to a joining connection.
type QueueState struct {
	Tracks        []track.Entry   `json:"tracks"`
	PlaybackState *playback.State `json:"playbackState"`
}

// QueueUpdated carries the recomputed ordered queue.
type QueueUpdated struct {
	Tracks []track.Entry `json:"tracks"`
}

// PlaybackSync carries the canonical playback state.
type PlaybackSync struct {
	PlaybackState playback.State `json:"playbackState"`
}

// UserJoined announces a new member.
type UserJoined struct {
	UserID string `json:"userId"`
}

// UserLeft announces a departed member.
type UserLeft struct {
	UserID string `json:"userId"`
}

// PlaylistCreated announces the room's exported playlist.
type PlaylistCreated struct {
	PlaylistID  string `json:"playlistId"`
	PlaylistURL string `json:"playlistUrl"`
}

// Error reports a rejected intent to its sender.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	CodeInvalidMessage = "invalid_message"
	CodeNotJoined      = "not_joined"
	CodeRejected       = "rejected"
	CodeInternal       = "internal"
)

func (QueueState) Type() string      { return TypeQueueState }
func (QueueUpdated) Type() string    { return TypeQueueUpdated }
func (PlaybackSync) Type() string    { return TypePlaybackSync }
func (UserJoined) Type() string      { return TypeUserJoined }
func (UserLeft) Type() string        { return TypeUserLeft }
func (PlaylistCreated) Type() string { return TypePlaylistCreated }
func (Error) Type() string           { return TypeError }

func (QueueState) isEvent()      {}
func (QueueUpdated) isEvent()    {}
func (PlaybackSync) isEvent()    {}
func (UserJoined) isEvent()      {}
func (UserLeft) isEvent()        {}
func (PlaylistCreated) isEvent() {}
func (Error) isEvent()           {}
