// Package track provides the Track and Contribution domain entities.
package track

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Track represents a catalog item as reported by the client.
// Contains only information the streaming catalog exposes.
type Track struct {
	SpotifyID   string `json:"spotifyId"` // Spotify Track ID
	Name        string `json:"name"`      // Track name
	Artist      string `json:"artist"`    // Artist names, comma separated
	Album       string `json:"album"`     // Album name
	AlbumArt    string `json:"albumArt"`  // Album art URL
	DurationSec int64  `json:"duration"`  // Track duration in whole seconds
}

// Duration returns the track duration.
func (t Track) Duration() time.Duration {
	return time.Duration(t.DurationSec) * time.Second
}

// URI returns the Spotify URI for the track.
func (t Track) URI() string {
	return "spotify:track:" + t.SpotifyID
}

// Contribution represents one user's submission of a track to a room.
type Contribution struct {
	ID string `json:"id"` // Contribution ID, unique within the room
	Track
	AddedBy string    `json:"addedBy"` // Contributor user ID
	AddedAt time.Time `json:"addedAt"` // Time of contribution
}

// NewContribution creates a contribution with a fresh ID.
func NewContribution(t Track, addedBy string, addedAt time.Time) Contribution {
	return Contribution{
		ID:      uuid.New().String(),
		Track:   t,
		AddedBy: addedBy,
		AddedAt: addedAt,
	}
}

// Entry is a contribution placed in the ordered queue.
// Position is 1-indexed.
type Entry struct {
	Contribution
	Position int `json:"position"`
}

var numericSuffix = regexp.MustCompile(`^\d+$`)

// CatalogID returns the catalog track ID for the contribution.
// Older clients sent "<spotifyId>-<unix millis>" as the contribution ID
// without a separate spotifyId, so the suffix is stripped in that case.
func (c Contribution) CatalogID() string {
	if c.SpotifyID != "" {
		return c.SpotifyID
	}
	idx := strings.LastIndex(c.ID, "-")
	if idx == -1 {
		return c.ID
	}
	if numericSuffix.MatchString(c.ID[idx+1:]) {
		return c.ID[:idx]
	}
	return c.ID
}

// Contributions strips queue positions from entries.
func Contributions(entries []Entry) []Contribution {
	out := make([]Contribution, len(entries))
	for i, e := range entries {
		out[i] = e.Contribution
	}
	return out
}

// IDs returns the contribution IDs of the entries in order.
func IDs(entries []Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}
