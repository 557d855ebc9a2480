// Package queue applies contribution intents to a room's queue.
//
// Every mutation reads the stored queue, changes the pending set, reruns the
// allocator over it, writes the whole queue back and broadcasts the result.
// The entry at position 1 is currently playing and is never displaced by a
// recompute.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/wejay/internal/app/allocator"
	"github.com/osa030/wejay/internal/app/filter"
	appplayback "github.com/osa030/wejay/internal/app/playback"
	"github.com/osa030/wejay/internal/app/protocol"
	"github.com/osa030/wejay/internal/domain/history"
	"github.com/osa030/wejay/internal/domain/playback"
	"github.com/osa030/wejay/internal/domain/room"
	"github.com/osa030/wejay/internal/domain/track"
	"github.com/osa030/wejay/internal/infra/spotify"
)

// Store persists the records the service reads and writes.
type Store interface {
	GetRoom(ctx context.Context, roomID string) (*room.Room, error)
	PutRoom(ctx context.Context, r *room.Room) error
	GetQueue(ctx context.Context, roomID string) ([]track.Entry, error)
	PutQueue(ctx context.Context, roomID string, entries []track.Entry) error
	GetPlayback(ctx context.Context, roomID string) (*playback.State, error)
	AppendHistory(ctx context.Context, roomID, userID string, e history.Entry) error
	IncrPlayCount(ctx context.Context, roomID, userID, trackID string) error
}

// Playback receives server-decided playback changes.
type Playback interface {
	Anchor(ctx context.Context, roomID string, st playback.State, cause appplayback.Cause) error
}

// Broadcaster fans events out to a room.
type Broadcaster interface {
	Broadcast(roomID string, event protocol.Event, exceptIDs ...string)
}

// Exporter mirrors the queue into an external playlist.
type Exporter interface {
	CreatePlaylist(ctx context.Context, accessToken, roomName string) (*spotify.Playlist, error)
	SyncTracks(ctx context.Context, accessToken, playlistID string, trackIDs []string) error
}

var (
	// ErrNotFound is returned when the contribution is not in the queue.
	ErrNotFound = errors.New("contribution not found")
	// ErrNotOwner is returned when the requester did not contribute the entry.
	ErrNotOwner = errors.New("contribution owned by another user")
	// ErrPlaying is returned when a move targets the playing entry.
	ErrPlaying = errors.New("cannot move the playing entry")
)

// IsIgnorable reports whether err only means the request addressed an entry
// it may not touch. Realtime clients are not told about these.
func IsIgnorable(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotOwner) || errors.Is(err, ErrPlaying)
}

// RejectedError is returned when an admission filter refuses a contribution.
type RejectedError struct {
	Code string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("contribution rejected: %s", e.Code)
}

// Config holds service configuration.
type Config struct {
	// SerializeRooms runs mutations of the same room one at a time within
	// this process. Writers in other processes still race on the store.
	SerializeRooms bool
	// ExportTimeout bounds the external playlist calls of one mutation.
	ExportTimeout time.Duration
}

// Service applies queue mutations.
type Service struct {
	store       Store
	filters     *filter.Chain
	playback    Playback
	broadcaster Broadcaster
	exporter    Exporter
	config      Config
	locks       *roomLocks
	exports     *roomLocks
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithExporter enables playlist export.
func WithExporter(e Exporter) Option {
	return func(s *Service) { s.exporter = e }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new queue service.
func NewService(store Store, filters *filter.Chain, pb Playback, broadcaster Broadcaster, config Config, opts ...Option) *Service {
	if filters == nil {
		filters = filter.NewChain()
	}
	if config.ExportTimeout <= 0 {
		config.ExportTimeout = 10 * time.Second
	}
	s := &Service{
		store:       store,
		filters:     filters,
		playback:    pb,
		broadcaster: broadcaster,
		config:      config,
		locks:       newRoomLocks(),
		exports:     newRoomLocks(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) lock(roomID string) func() {
	if !s.config.SerializeRooms {
		return func() {}
	}
	return s.locks.lock(roomID)
}

// Snapshot returns the room's ordered queue.
func (s *Service) Snapshot(ctx context.Context, roomID string) ([]track.Entry, error) {
	entries, err := s.store.GetQueue(ctx, roomID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load queue: room=%s", roomID)
	}
	return entries, nil
}

// Add contributes a track on behalf of userID.
// When the queue was empty the new contribution starts playing at offset 0.
func (s *Service) Add(ctx context.Context, roomID, userID string, t track.Track, accessToken string) (*track.Contribution, error) {
	unlock := s.lock(roomID)

	entries, err := s.store.GetQueue(ctx, roomID)
	if err != nil {
		unlock()
		return nil, errors.Wrapf(err, "failed to load queue: room=%s", roomID)
	}

	now := s.now()
	c := track.NewContribution(t, userID, now)

	result := s.filters.Execute(ctx, filter.Request{RoomID: roomID, UserID: userID, Contribution: c}, entries)
	if !result.Accepted {
		unlock()
		zlog.Info().Msgf("track rejected: room=%s user=%s track=%s code=%s", roomID, userID, t.SpotifyID, result.Code)
		return nil, &RejectedError{Code: result.Code}
	}

	wasEmpty := len(entries) == 0
	var next []track.Entry
	if wasEmpty {
		next = allocator.Arrange([]track.Contribution{c})
	} else {
		pending := append(track.Contributions(entries[1:]), c)
		next = allocator.ArrangePinned(entries[0].Contribution, pending)
	}

	if err := s.store.PutQueue(ctx, roomID, next); err != nil {
		unlock()
		return nil, errors.Wrapf(err, "failed to store queue: room=%s", roomID)
	}
	zlog.Info().Msgf("track added: room=%s user=%s contribution=%s track=%s queue_len=%d",
		roomID, userID, c.ID, t.SpotifyID, len(next))

	s.broadcaster.Broadcast(roomID, protocol.QueueUpdated{Tracks: next})
	if wasEmpty {
		if err := s.playback.Anchor(ctx, roomID, playback.AnchorAt(c.ID, now), appplayback.CauseQueueStarted); err != nil {
			zlog.Error().Msgf("failed to start playback: room=%s error=%v", roomID, err)
		}
	}
	unlock()

	s.export(ctx, roomID, accessToken, wasEmpty)
	return &c, nil
}

// Remove deletes one of userID's contributions. Removing the playing entry
// promotes the next one without touching the playback state.
func (s *Service) Remove(ctx context.Context, roomID, userID, contributionID, accessToken string) error {
	unlock := s.lock(roomID)

	entries, err := s.store.GetQueue(ctx, roomID)
	if err != nil {
		unlock()
		return errors.Wrapf(err, "failed to load queue: room=%s", roomID)
	}

	idx := indexOf(entries, contributionID)
	if idx == -1 {
		unlock()
		return errors.Wrapf(ErrNotFound, "contribution=%s", contributionID)
	}
	if entries[idx].AddedBy != userID {
		unlock()
		return errors.Wrapf(ErrNotOwner, "contribution=%s user=%s", contributionID, userID)
	}

	remaining := make([]track.Contribution, 0, len(entries)-1)
	for i, e := range entries {
		if i != idx {
			remaining = append(remaining, e.Contribution)
		}
	}
	next := arrangeWithHead(remaining)

	if err := s.store.PutQueue(ctx, roomID, next); err != nil {
		unlock()
		return errors.Wrapf(err, "failed to store queue: room=%s", roomID)
	}
	zlog.Info().Msgf("track removed: room=%s user=%s contribution=%s queue_len=%d", roomID, userID, contributionID, len(next))

	s.broadcaster.Broadcast(roomID, protocol.QueueUpdated{Tracks: next})
	unlock()

	s.export(ctx, roomID, accessToken, false)
	return nil
}

// Move swaps one of userID's contributions with that user's previous ("up")
// or next ("down") contribution. The playing entry never moves and nothing
// moves into its place. A move past either end of the lane changes nothing.
func (s *Service) Move(ctx context.Context, roomID, userID, contributionID, direction, accessToken string) error {
	if direction != protocol.DirectionUp && direction != protocol.DirectionDown {
		return errors.Newf("invalid direction %q", direction)
	}

	unlock := s.lock(roomID)

	entries, err := s.store.GetQueue(ctx, roomID)
	if err != nil {
		unlock()
		return errors.Wrapf(err, "failed to load queue: room=%s", roomID)
	}

	idx := indexOf(entries, contributionID)
	switch {
	case idx == -1:
		unlock()
		return errors.Wrapf(ErrNotFound, "contribution=%s", contributionID)
	case entries[idx].AddedBy != userID:
		unlock()
		return errors.Wrapf(ErrNotOwner, "contribution=%s user=%s", contributionID, userID)
	case idx == 0:
		unlock()
		return errors.Wrapf(ErrPlaying, "contribution=%s", contributionID)
	}

	// the user's lane, in queue order, without the playing entry
	var lane []int
	for i := 1; i < len(entries); i++ {
		if entries[i].AddedBy == userID {
			lane = append(lane, i)
		}
	}
	k := 0
	for lane[k] != idx {
		k++
	}
	swapWith := k - 1
	if direction == protocol.DirectionDown {
		swapWith = k + 1
	}
	if swapWith < 0 || swapWith >= len(lane) {
		unlock()
		zlog.Debug().Msgf("move ignored, lane boundary: room=%s user=%s contribution=%s direction=%s", roomID, userID, contributionID, direction)
		return nil
	}

	pending := track.Contributions(entries[1:])
	a, b := lane[k]-1, lane[swapWith]-1
	pending[a], pending[b] = pending[b], pending[a]
	next := allocator.ArrangePinned(entries[0].Contribution, pending)

	if err := s.store.PutQueue(ctx, roomID, next); err != nil {
		unlock()
		return errors.Wrapf(err, "failed to store queue: room=%s", roomID)
	}
	zlog.Info().Msgf("track moved: room=%s user=%s contribution=%s direction=%s", roomID, userID, contributionID, direction)

	s.broadcaster.Broadcast(roomID, protocol.QueueUpdated{Tracks: next})
	unlock()

	s.export(ctx, roomID, accessToken, false)
	return nil
}

// TrackEnded retires the playing entry, records it in the contributor's
// history and starts the next entry at offset 0. When expectedID is set and
// no longer names the playing entry the call is ignored.
//
// The playing entry is the one the playback state points at. When it was
// removed from the queue meanwhile, the queue head has not played yet, so it
// is started instead of being retired.
func (s *Service) TrackEnded(ctx context.Context, roomID, expectedID, accessToken string) error {
	unlock := s.lock(roomID)

	entries, err := s.store.GetQueue(ctx, roomID)
	if err != nil {
		unlock()
		return errors.Wrapf(err, "failed to load queue: room=%s", roomID)
	}
	if len(entries) == 0 {
		unlock()
		zlog.Debug().Msgf("track ended ignored, queue empty: room=%s", roomID)
		return nil
	}
	st, err := s.store.GetPlayback(ctx, roomID)
	if err != nil {
		unlock()
		return errors.Wrapf(err, "failed to load playback: room=%s", roomID)
	}

	head := entries[0].Contribution
	playing := head.ID
	if st != nil && !st.IsIdle() {
		playing = st.Current()
	}
	if expectedID != "" && playing != expectedID {
		unlock()
		zlog.Debug().Msgf("track ended ignored, stale: room=%s expected=%s playing=%s", roomID, expectedID, playing)
		return nil
	}

	now := s.now()
	next := entries
	if playing == head.ID {
		next = arrangeWithHead(track.Contributions(entries[1:]))
		if err := s.store.PutQueue(ctx, roomID, next); err != nil {
			unlock()
			return errors.Wrapf(err, "failed to store queue: room=%s", roomID)
		}
		zlog.Info().Msgf("track ended: room=%s contribution=%s track=%s queue_len=%d", roomID, head.ID, head.CatalogID(), len(next))

		s.recordHistory(ctx, roomID, head, now)

		s.broadcaster.Broadcast(roomID, protocol.QueueUpdated{Tracks: next})
	} else {
		zlog.Info().Msgf("track ended, playing entry was removed: room=%s contribution=%s head=%s", roomID, playing, head.ID)
	}

	pst, cause := playback.Idle(now), appplayback.CauseQueueEmpty
	if len(next) > 0 {
		pst, cause = playback.AnchorAt(next[0].ID, now), appplayback.CauseTrackEnded
	}
	err = s.playback.Anchor(ctx, roomID, pst, cause)
	unlock()
	if err != nil {
		return errors.Wrapf(err, "failed to advance playback: room=%s", roomID)
	}

	s.export(ctx, roomID, accessToken, false)
	return nil
}

// recordHistory never fails the caller.
func (s *Service) recordHistory(ctx context.Context, roomID string, c track.Contribution, now time.Time) {
	if c.AddedBy == "" {
		return
	}
	if err := s.store.IncrPlayCount(ctx, roomID, c.AddedBy, c.CatalogID()); err != nil {
		zlog.Warn().Msgf("failed to count play: room=%s user=%s track=%s error=%v", roomID, c.AddedBy, c.CatalogID(), err)
	}
	e := history.NewEntry(c, roomID, now)
	if err := s.store.AppendHistory(ctx, roomID, c.AddedBy, e); err != nil {
		zlog.Warn().Msgf("failed to record history: room=%s user=%s track=%s error=%v", roomID, c.AddedBy, e.TrackID, err)
		return
	}
	zlog.Debug().Msgf("history recorded: room=%s user=%s track=%s weekday=%d hour=%d", roomID, c.AddedBy, e.TrackID, e.Weekday, e.Hour)
}

// arrangeWithHead promotes the first contribution to the playing slot and
// allocates the rest behind it.
func arrangeWithHead(pending []track.Contribution) []track.Entry {
	if len(pending) == 0 {
		return []track.Entry{}
	}
	return allocator.ArrangePinned(pending[0], pending[1:])
}

func indexOf(entries []track.Entry, contributionID string) int {
	for i, e := range entries {
		if e.ID == contributionID {
			return i
		}
	}
	return -1
}
