// Package history provides listening history facts.
package history

import (
	"time"

	"github.com/osa030/wejay/internal/domain/track"
)

// Entry is one finished track recorded for its contributor.
type Entry struct {
	TrackID   string    `json:"trackId"`   // Catalog track ID
	TrackName string    `json:"trackName"` // Track name
	Artist    string    `json:"artist"`    // Artist names
	Timestamp time.Time `json:"timestamp"` // Time the track ended
	Weekday   int       `json:"weekday"`   // 0 = Sunday
	Hour      int       `json:"hour"`      // 0-23
	RoomID    string    `json:"roomId"`    // Room where it played
}

// NewEntry builds a history entry for a finished contribution.
func NewEntry(c track.Contribution, roomID string, now time.Time) Entry {
	return Entry{
		TrackID:   c.CatalogID(),
		TrackName: c.Name,
		Artist:    c.Artist,
		Timestamp: now,
		Weekday:   int(now.Weekday()),
		Hour:      now.Hour(),
		RoomID:    roomID,
	}
}

// PlayCount is the number of times a user's track played in a room.
type PlayCount struct {
	TrackID string `json:"trackId"`
	Count   int64  `json:"count"`
}
