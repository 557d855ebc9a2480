// Package playback provides the canonical per-room playback state.
package playback

import "time"

// State is the authoritative playback state of a room.
// Position is the offset at Timestamp; while playing, clients extrapolate
// from the anchor instead of receiving position ticks.
type State struct {
	CurrentTrackID *string `json:"currentTrackId"` // Contribution ID at the queue head, nil when idle
	Position       int64   `json:"position"`       // Offset in milliseconds at Timestamp
	IsPlaying      bool    `json:"isPlaying"`      // Playing flag
	Timestamp      int64   `json:"timestamp"`      // Unix milliseconds of the last authoritative update
}

// Idle returns a state with nothing playing.
func Idle(now time.Time) State {
	return State{Timestamp: now.UnixMilli()}
}

// AnchorAt returns a playing state for the given contribution at offset 0.
func AnchorAt(contributionID string, now time.Time) State {
	id := contributionID
	return State{
		CurrentTrackID: &id,
		Position:       0,
		IsPlaying:      true,
		Timestamp:      now.UnixMilli(),
	}
}

// Elapsed returns the live playback offset at now.
func (s State) Elapsed(now time.Time) time.Duration {
	pos := s.Position
	if s.IsPlaying {
		if d := now.UnixMilli() - s.Timestamp; d > 0 {
			pos += d
		}
	}
	return time.Duration(pos) * time.Millisecond
}

// Current returns the current contribution ID or "" when idle.
func (s State) Current() string {
	if s.CurrentTrackID == nil {
		return ""
	}
	return *s.CurrentTrackID
}

// IsIdle reports whether no contribution is selected.
func (s State) IsIdle() bool {
	return s.CurrentTrackID == nil
}
