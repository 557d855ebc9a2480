// Package playback keeps each room's canonical playback state and fans it out
// to the room's connections.
package playback

import "github.com/osa030/wejay/internal/domain/playback"

// State represents the derived playback state.
type State int

const (
	StateIdle    State = iota // No track selected (queue empty)
	StatePlaying              // Track is playing
	StatePaused               // Track is paused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// StateOf derives the state of a stored playback record.
func StateOf(s *playback.State) State {
	switch {
	case s == nil || s.IsIdle():
		return StateIdle
	case s.IsPlaying:
		return StatePlaying
	default:
		return StatePaused
	}
}
