// Package room provides the Room domain entity.
package room

import (
	"regexp"
	"strings"
	"time"
)

// Room represents a collaborative listening room.
type Room struct {
	ID                 string    `json:"id"`                           // Slug derived from the name
	Name               string    `json:"name"`                         // Display name
	CreatedBy          string    `json:"createdBy"`                    // Creator user ID
	CreatedAt          time.Time `json:"createdAt"`                    // Creation time
	Users              []string  `json:"users"`                        // Member user IDs
	IsActive           bool      `json:"isActive"`                     // False once the last member leaves
	SpotifyPlaylistID  string    `json:"spotifyPlaylistId,omitempty"`  // Exported playlist ID
	SpotifyPlaylistURL string    `json:"spotifyPlaylistUrl,omitempty"` // Exported playlist URL
}

// New creates an active room whose only member is the creator.
func New(name, createdBy string, now time.Time) *Room {
	return &Room{
		ID:        Slugify(name),
		Name:      name,
		CreatedBy: createdBy,
		CreatedAt: now,
		Users:     []string{createdBy},
		IsActive:  true,
	}
}

var (
	specialChars = regexp.MustCompile(`[^\w\s-]`)
	whitespace   = regexp.MustCompile(`\s+`)
	dashes       = regexp.MustCompile(`-+`)
)

// Slugify converts a room name into a room ID.
// "My Room!!" -> "my-room"
func Slugify(name string) string {
	s := strings.TrimSpace(strings.ToLower(name))
	s = specialChars.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, "-")
	return dashes.ReplaceAllString(s, "-")
}

// HasUser reports whether the user is a member.
func (r *Room) HasUser(userID string) bool {
	for _, u := range r.Users {
		if u == userID {
			return true
		}
	}
	return false
}

// AddUser adds a member. Returns false if the user was already a member.
// A room that was inactive becomes active again.
func (r *Room) AddUser(userID string) bool {
	r.IsActive = true
	if r.HasUser(userID) {
		return false
	}
	r.Users = append(r.Users, userID)
	return true
}

// RemoveUser removes a member and marks the room inactive when empty.
// Returns false if the user was not a member.
func (r *Room) RemoveUser(userID string) bool {
	removed := false
	users := r.Users[:0]
	for _, u := range r.Users {
		if u == userID {
			removed = true
			continue
		}
		users = append(users, u)
	}
	r.Users = users
	if len(r.Users) == 0 {
		r.IsActive = false
	}
	return removed
}

// HasPlaylist reports whether an external playlist is linked.
func (r *Room) HasPlaylist() bool {
	return r.SpotifyPlaylistID != ""
}

// LinkPlaylist records the exported playlist.
func (r *Room) LinkPlaylist(id, url string) {
	r.SpotifyPlaylistID = id
	r.SpotifyPlaylistURL = url
}
