package queue

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/wejay/internal/app/protocol"
	"github.com/osa030/wejay/internal/domain/room"
	"github.com/osa030/wejay/internal/domain/track"
	"github.com/osa030/wejay/internal/infra/store"
)

// ErrExportDisabled is returned when no exporter is configured.
var ErrExportDisabled = errors.New("playlist export disabled")

// CreatePlaylist links the room to a new playlist owned by the token's user
// and fills it with the current queue. A room that already has a playlist
// gets its link broadcast again.
func (s *Service) CreatePlaylist(ctx context.Context, roomID, accessToken string) (*room.Room, error) {
	if s.exporter == nil {
		return nil, ErrExportDisabled
	}
	if accessToken == "" {
		return nil, errors.New("access token is required")
	}

	r, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load room: room=%s", roomID)
	}
	if r.HasPlaylist() {
		s.broadcaster.Broadcast(roomID, protocol.PlaylistCreated{PlaylistID: r.SpotifyPlaylistID, PlaylistURL: r.SpotifyPlaylistURL})
		return r, nil
	}

	r, err = s.linkPlaylist(ctx, r, accessToken)
	if err != nil {
		return nil, err
	}

	entries, err := s.store.GetQueue(ctx, roomID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load queue: room=%s", roomID)
	}
	if len(entries) > 0 {
		if err := s.exporter.SyncTracks(ctx, accessToken, r.SpotifyPlaylistID, catalogIDs(entries)); err != nil {
			zlog.Warn().Msgf("failed to sync playlist: room=%s playlist=%s error=%v", roomID, r.SpotifyPlaylistID, err)
		}
	}
	return r, nil
}

// linkPlaylist creates the external playlist and stores its link on the room.
func (s *Service) linkPlaylist(ctx context.Context, r *room.Room, accessToken string) (*room.Room, error) {
	pl, err := s.exporter.CreatePlaylist(ctx, accessToken, r.Name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create playlist: room=%s", r.ID)
	}

	unlock := s.lock(r.ID)
	defer unlock()

	// reread so membership changes made meanwhile are kept
	current, err := s.store.GetRoom(ctx, r.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load room: room=%s", r.ID)
	}
	if current.HasPlaylist() {
		zlog.Warn().Msgf("playlist already linked, dropping new one: room=%s linked=%s created=%s", r.ID, current.SpotifyPlaylistID, pl.ID)
		return current, nil
	}
	current.LinkPlaylist(pl.ID, pl.URL)
	if err := s.store.PutRoom(ctx, current); err != nil {
		return nil, errors.Wrapf(err, "failed to store room: room=%s", r.ID)
	}
	zlog.Info().Msgf("playlist created: room=%s playlist=%s", r.ID, pl.ID)

	s.broadcaster.Broadcast(r.ID, protocol.PlaylistCreated{PlaylistID: pl.ID, PlaylistURL: pl.URL})
	return current, nil
}

// export mirrors the stored queue into the room's playlist. Exports of one
// room run one at a time and read the queue when their turn comes, so the
// last export always carries the latest queue. Failures are logged and never
// reach the caller.
func (s *Service) export(ctx context.Context, roomID, accessToken string, autoCreate bool) {
	if s.exporter == nil || accessToken == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ExportTimeout)
	defer cancel()

	unlock := s.exports.lock(roomID)
	defer unlock()

	r, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			zlog.Warn().Msgf("failed to load room for export: room=%s error=%v", roomID, err)
		}
		return
	}
	if !r.HasPlaylist() {
		if !autoCreate {
			return
		}
		if r, err = s.linkPlaylist(ctx, r, accessToken); err != nil {
			zlog.Warn().Msgf("failed to auto-create playlist: room=%s error=%v", roomID, err)
			return
		}
	}

	entries, err := s.store.GetQueue(ctx, roomID)
	if err != nil {
		zlog.Warn().Msgf("failed to load queue for export: room=%s error=%v", roomID, err)
		return
	}
	if err := s.exporter.SyncTracks(ctx, accessToken, r.SpotifyPlaylistID, catalogIDs(entries)); err != nil {
		zlog.Warn().Msgf("failed to sync playlist: room=%s playlist=%s error=%v", roomID, r.SpotifyPlaylistID, err)
		return
	}
	zlog.Debug().Msgf("playlist synced: room=%s playlist=%s tracks=%d", roomID, r.SpotifyPlaylistID, len(entries))
}

func catalogIDs(entries []track.Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.CatalogID()
	}
	return ids
}
