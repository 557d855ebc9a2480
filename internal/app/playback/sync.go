package playback

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/wejay/internal/app/protocol"
	"github.com/osa030/wejay/internal/domain/playback"
)

// Store persists playback records.
type Store interface {
	GetPlayback(ctx context.Context, roomID string) (*playback.State, error)
	PutPlayback(ctx context.Context, roomID string, s playback.State) error
}

// Broadcaster fans events out to a room.
type Broadcaster interface {
	Broadcast(roomID string, event protocol.Event, exceptIDs ...string)
}

// Sync owns the canonical playback state of every room.
// There are no sequence numbers; the latest write wins and joiners always
// receive a full snapshot.
type Sync struct {
	store       Store
	broadcaster Broadcaster
}

// NewSync creates a new playback synchronizer.
func NewSync(store Store, broadcaster Broadcaster) *Sync {
	return &Sync{store: store, broadcaster: broadcaster}
}

// Snapshot returns the stored playback state, or nil if none exists.
func (s *Sync) Snapshot(ctx context.Context, roomID string) (*playback.State, error) {
	st, err := s.store.GetPlayback(ctx, roomID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load playback: room=%s", roomID)
	}
	return st, nil
}

// Update stores a client-provided state and relays it to every other
// connection in the room. The originator already has it.
func (s *Sync) Update(ctx context.Context, roomID, originID string, st playback.State) error {
	if err := s.store.PutPlayback(ctx, roomID, st); err != nil {
		return errors.Wrapf(err, "failed to store playback: room=%s", roomID)
	}
	zlog.Debug().Msgf("playback updated: room=%s cause=%s state=%s track=%s position=%d",
		roomID, CauseClientUpdate, StateOf(&st), st.Current(), st.Position)

	s.broadcaster.Broadcast(roomID, protocol.PlaybackSync{PlaybackState: st}, originID)
	return nil
}

// Anchor stores a server-decided state and sends it to everyone in the room.
func (s *Sync) Anchor(ctx context.Context, roomID string, st playback.State, cause Cause) error {
	if err := s.store.PutPlayback(ctx, roomID, st); err != nil {
		return errors.Wrapf(err, "failed to store playback: room=%s", roomID)
	}
	zlog.Info().Msgf("playback anchored: room=%s cause=%s state=%s track=%s",
		roomID, cause, StateOf(&st), st.Current())

	s.broadcaster.Broadcast(roomID, protocol.PlaybackSync{PlaybackState: st})
	return nil
}
