package rest

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/wejay/internal/domain/playback"
	"github.com/osa030/wejay/internal/domain/room"
	"github.com/osa030/wejay/internal/domain/track"
)

// RoomStatus is the admin view of a room.
type RoomStatus struct {
	Room        *room.Room      `json:"room"`
	QueueLength int             `json:"queueLength"`
	NowPlaying  *track.Entry    `json:"nowPlaying,omitempty"`
	Playback    *playback.State `json:"playback"`
	Connections int             `json:"connections"`
}

func (s *Server) roomStatus(ctx context.Context, rm *room.Room) (*RoomStatus, error) {
	entries, err := s.store.GetQueue(ctx, rm.ID)
	if err != nil {
		return nil, err
	}
	st, err := s.store.GetPlayback(ctx, rm.ID)
	if err != nil {
		return nil, err
	}

	status := &RoomStatus{
		Room:        rm,
		QueueLength: len(entries),
		Playback:    st,
	}
	if len(entries) > 0 {
		status.NowPlaying = &entries[0]
	}
	if s.subscribers != nil {
		status.Connections = s.subscribers.SubscriberCount(rm.ID)
	}
	return status, nil
}

func (s *Server) handleAdminListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.store.ListRooms(r.Context())
	if err != nil {
		zlog.Error().Msgf("failed to list rooms: error=%v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch rooms")
		return
	}

	out := make([]*RoomStatus, 0, len(rooms))
	for _, rm := range rooms {
		status, err := s.roomStatus(r.Context(), rm)
		if err != nil {
			zlog.Error().Msgf("failed to load room status: room=%s error=%v", rm.ID, err)
			writeError(w, http.StatusInternalServerError, "Failed to fetch rooms")
			return
		}
		out = append(out, status)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdminGetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	rm, err := s.store.GetRoom(r.Context(), roomID)
	if err != nil {
		writeRoomError(w, roomID, err)
		return
	}
	status, err := s.roomStatus(r.Context(), rm)
	if err != nil {
		writeRoomError(w, roomID, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleAdminSkip ends the playing entry as if its track had finished.
func (s *Server) handleAdminSkip(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	rm, err := s.store.GetRoom(r.Context(), roomID)
	if err != nil {
		writeRoomError(w, roomID, err)
		return
	}

	if err := s.queue.TrackEnded(r.Context(), roomID, "", ""); err != nil {
		writeRoomError(w, roomID, err)
		return
	}
	zlog.Info().Msgf("admin skipped track: room=%s", roomID)

	status, err := s.roomStatus(r.Context(), rm)
	if err != nil {
		writeRoomError(w, roomID, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
