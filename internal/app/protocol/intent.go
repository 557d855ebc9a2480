// Package protocol defines the realtime message protocol between clients and
// the server: intents flowing in, events flowing out.
package protocol

import (
	"github.com/osa030/wejay/internal/domain/playback"
	"github.com/osa030/wejay/internal/domain/track"
)

// Intent types.
const (
	TypeJoinRoom       = "room:join"
	TypeLeaveRoom      = "room:leave"
	TypeCreatePlaylist = "room:create_playlist"
	TypeAddTrack       = "queue:add"
	TypeRemoveTrack    = "queue:remove"
	TypeMoveTrack      = "queue:move"
	TypeUpdatePlayback = "playback:update"
	TypeTrackEnded     = "playback:track_ended"
)

// Move directions.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Intent is a client request. The set of implementations is closed.
type Intent interface {
	// Type returns the wire type name.
	Type() string
	// Room returns the target room ID.
	Room() string
	isIntent()
}

// JoinRoom attaches the connection to a room.
type JoinRoom struct {
	RoomID string `json:"roomId" validate:"required,slug"`
	UserID string `json:"userId" validate:"required,slug"`
}

// LeaveRoom detaches the connection from a room.
type LeaveRoom struct {
	RoomID string `json:"roomId" validate:"required,slug"`
	UserID string `json:"userId" validate:"required,slug"`
}

// CreatePlaylist exports the room queue to a new external playlist.
type CreatePlaylist struct {
	RoomID      string `json:"roomId" validate:"required,slug"`
	AccessToken string `json:"accessToken" validate:"required"`
}

// AddTrack contributes a track.
type AddTrack struct {
	RoomID      string      `json:"roomId" validate:"required,slug"`
	Track       track.Track `json:"track"`
	AccessToken string      `json:"accessToken,omitempty"`
}

// RemoveTrack removes one of the requester's contributions.
type RemoveTrack struct {
	RoomID      string `json:"roomId" validate:"required,slug"`
	TrackID     string `json:"trackId" validate:"required"`
	AccessToken string `json:"accessToken,omitempty"`
}

// MoveTrack moves one of the requester's contributions by one slot.
type MoveTrack struct {
	RoomID      string `json:"roomId" validate:"required,slug"`
	TrackID     string `json:"trackId" validate:"required"`
	UserID      string `json:"userId" validate:"omitempty,slug"`
	Direction   string `json:"direction" validate:"required,oneof=up down"`
	AccessToken string `json:"accessToken,omitempty"`
}

// UpdatePlayback replaces the room's playback state.
type UpdatePlayback struct {
	RoomID        string         `json:"roomId" validate:"required,slug"`
	PlaybackState playback.State `json:"playbackState"`
}

// TrackEnded retires the queue head. When TrackID is set it must name the
// current head, so late duplicates from other clients are ignored.
type TrackEnded struct {
	RoomID      string `json:"roomId" validate:"required,slug"`
	TrackID     string `json:"trackId,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`
}

func (JoinRoom) Type() string       { return TypeJoinRoom }
func (LeaveRoom) Type() string      { return TypeLeaveRoom }
func (CreatePlaylist) Type() string { return TypeCreatePlaylist }
func (AddTrack) Type() string       { return TypeAddTrack }
func (RemoveTrack) Type() string    { return TypeRemoveTrack }
func (MoveTrack) Type() string      { return TypeMoveTrack }
func (UpdatePlayback) Type() string { return TypeUpdatePlayback }
func (TrackEnded) Type() string     { return TypeTrackEnded }

func (i JoinRoom) Room() string       { return i.RoomID }
func (i LeaveRoom) Room() string      { return i.RoomID }
func (i CreatePlaylist) Room() string { return i.RoomID }
func (i AddTrack) Room() string       { return i.RoomID }
func (i RemoveTrack) Room() string    { return i.RoomID }
func (i MoveTrack) Room() string      { return i.RoomID }
func (i UpdatePlayback) Room() string { return i.RoomID }
func (i TrackEnded) Room() string     { return i.RoomID }

func (JoinRoom) isIntent()       {}
func (LeaveRoom) isIntent()      {}
func (CreatePlaylist) isIntent() {}
func (AddTrack) isIntent()       {}
func (RemoveTrack) isIntent()    {}
func (MoveTrack) isIntent()      {}
func (UpdatePlayback) isIntent() {}
func (TrackEnded) isIntent()     {}
