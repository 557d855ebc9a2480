package queue

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/wejay/internal/app/protocol"
	"github.com/osa030/wejay/internal/domain/room"
	"github.com/osa030/wejay/internal/infra/store"
)

// ErrInvalidRoomName is returned when a name does not slugify to a valid
// room ID.
var ErrInvalidRoomName = errors.New("invalid room name")

// OpenRoom returns the room derived from name with userID as a member,
// creating it when missing. created reports whether a new room was stored.
func (s *Service) OpenRoom(ctx context.Context, name, userID string) (r *room.Room, created bool, err error) {
	id := room.Slugify(name)
	if !protocol.ValidID(id) {
		return nil, false, errors.Wrapf(ErrInvalidRoomName, "name=%q", name)
	}

	unlock := s.lock(id)
	defer unlock()

	r, err = s.store.GetRoom(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		r = room.New(name, userID, s.now())
		created = true
	case err != nil:
		return nil, false, errors.Wrapf(err, "failed to load room: room=%s", id)
	default:
		r.AddUser(userID)
	}

	if err := s.store.PutRoom(ctx, r); err != nil {
		return nil, false, errors.Wrapf(err, "failed to store room: room=%s", id)
	}
	if created {
		zlog.Info().Msgf("room created: room=%s name=%q by=%s", id, name, userID)
	}
	return r, created, nil
}

// JoinRoom adds userID to an existing room.
func (s *Service) JoinRoom(ctx context.Context, roomID, userID string) (*room.Room, error) {
	return s.updateRoom(ctx, roomID, func(r *room.Room) bool {
		return r.AddUser(userID)
	})
}

// LeaveRoom removes userID from the room. The room goes inactive when its
// last member leaves.
func (s *Service) LeaveRoom(ctx context.Context, roomID, userID string) (*room.Room, error) {
	return s.updateRoom(ctx, roomID, func(r *room.Room) bool {
		return r.RemoveUser(userID)
	})
}

func (s *Service) updateRoom(ctx context.Context, roomID string, fn func(*room.Room) bool) (*room.Room, error) {
	unlock := s.lock(roomID)
	defer unlock()

	r, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load room: room=%s", roomID)
	}
	wasActive := r.IsActive
	if !fn(r) && wasActive == r.IsActive {
		return r, nil
	}
	if err := s.store.PutRoom(ctx, r); err != nil {
		return nil, errors.Wrapf(err, "failed to store room: room=%s", roomID)
	}
	zlog.Debug().Msgf("room membership changed: room=%s users=%d active=%t", roomID, len(r.Users), r.IsActive)
	return r, nil
}
