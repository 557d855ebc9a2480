package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/wejay/internal/domain/track"
)

func TestNewEntry(t *testing.T) {
	// 2024-05-05 is a Sunday
	now := time.Date(2024, 5, 5, 21, 30, 0, 0, time.UTC)
	c := track.Contribution{
		ID:      "abc-1700000000000",
		Track:   track.Track{Name: "Song", Artist: "Band"},
		AddedBy: "alice",
	}

	e := NewEntry(c, "friday", now)

	assert.Equal(t, "abc", e.TrackID)
	assert.Equal(t, "Song", e.TrackName)
	assert.Equal(t, "Band", e.Artist)
	assert.Equal(t, 0, e.Weekday)
	assert.Equal(t, 21, e.Hour)
	assert.Equal(t, "friday", e.RoomID)
	assert.Equal(t, now, e.Timestamp)
}
