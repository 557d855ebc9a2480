package rest

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/wejay/internal/app/queue"
	"github.com/osa030/wejay/internal/domain/history"
	"github.com/osa030/wejay/internal/domain/room"
	"github.com/osa030/wejay/internal/domain/track"
	"github.com/osa030/wejay/internal/infra/store"
)

type openRoomRequest struct {
	Name      string `json:"name" validate:"required,max=100"`
	CreatedBy string `json:"createdBy" validate:"required,slug"`
}

type membershipRequest struct {
	UserID string `json:"userId" validate:"required,slug"`
}

type createPlaylistRequest struct {
	AccessToken string `json:"accessToken"`
}

type createPlaylistResponse struct {
	PlaylistID  string `json:"playlistId"`
	PlaylistURL string `json:"playlistUrl"`
	Message     string `json:"message,omitempty"`
}

type moveTrackRequest struct {
	TrackID     string `json:"trackId" validate:"required"`
	UserID      string `json:"userId" validate:"required,slug"`
	Direction   string `json:"direction" validate:"required,oneof=up down"`
	AccessToken string `json:"accessToken,omitempty"`
}

type queueResponse struct {
	Tracks []track.Entry `json:"tracks"`
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.store.ListRooms(r.Context())
	if err != nil {
		zlog.Error().Msgf("failed to list rooms: error=%v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch rooms")
		return
	}
	if rooms == nil {
		rooms = []*room.Room{}
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (s *Server) handleOpenRoom(w http.ResponseWriter, r *http.Request) {
	var req openRoomRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Room name and creator are required")
		return
	}

	rm, created, err := s.queue.OpenRoom(r.Context(), req.Name, req.CreatedBy)
	switch {
	case errors.Is(err, queue.ErrInvalidRoomName):
		writeError(w, http.StatusBadRequest, "Invalid room name")
		return
	case err != nil:
		zlog.Error().Msgf("failed to open room: name=%q error=%v", req.Name, err)
		writeError(w, http.StatusInternalServerError, "Failed to create room")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, rm)
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	rm, err := s.store.GetRoom(r.Context(), roomID)
	if err != nil {
		writeRoomError(w, roomID, err)
		return
	}
	writeJSON(w, http.StatusOK, rm)
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	s.updateMembership(w, r, s.queue.JoinRoom)
}

func (s *Server) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	s.updateMembership(w, r, s.queue.LeaveRoom)
}

func (s *Server) updateMembership(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, roomID, userID string) (*room.Room, error)) {
	roomID := chi.URLParam(r, "roomId")
	var req membershipRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "User ID is required")
		return
	}

	rm, err := apply(r.Context(), roomID, req.UserID)
	if err != nil {
		writeRoomError(w, roomID, err)
		return
	}
	writeJSON(w, http.StatusOK, rm)
}

func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	var req createPlaylistRequest
	if err := s.decodeJSON(r, &req); err != nil || req.AccessToken == "" {
		writeError(w, http.StatusBadRequest, "Access token required")
		return
	}

	rm, err := s.store.GetRoom(r.Context(), roomID)
	if err != nil {
		writeRoomError(w, roomID, err)
		return
	}
	if rm.HasPlaylist() {
		writeJSON(w, http.StatusOK, createPlaylistResponse{
			PlaylistID:  rm.SpotifyPlaylistID,
			PlaylistURL: rm.SpotifyPlaylistURL,
			Message:     "Playlist already exists",
		})
		return
	}

	rm, err = s.queue.CreatePlaylist(r.Context(), roomID, req.AccessToken)
	switch {
	case errors.Is(err, queue.ErrExportDisabled):
		writeError(w, http.StatusServiceUnavailable, "Playlist export is disabled")
		return
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Room not found")
		return
	case err != nil:
		zlog.Error().Msgf("failed to create playlist: room=%s error=%v", roomID, err)
		writeError(w, http.StatusInternalServerError, "Failed to create Spotify playlist")
		return
	}
	writeJSON(w, http.StatusOK, createPlaylistResponse{
		PlaylistID:  rm.SpotifyPlaylistID,
		PlaylistURL: rm.SpotifyPlaylistURL,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	userID := chi.URLParam(r, "userId")

	entries, err := s.store.GetHistory(r.Context(), roomID, userID)
	if err != nil {
		zlog.Error().Msgf("failed to load history: room=%s user=%s error=%v", roomID, userID, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch history")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handlePlayCounts(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	userID := chi.URLParam(r, "userId")

	counts, err := s.store.GetPlayCounts(r.Context(), roomID, userID)
	if err != nil {
		zlog.Error().Msgf("failed to load play counts: room=%s user=%s error=%v", roomID, userID, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch play counts")
		return
	}
	out := make(map[string]int64, len(counts))
	for _, c := range counts {
		out[c.TrackID] = c.Count
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMoveTrack(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	var req moveTrackRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	err := s.queue.Move(r.Context(), roomID, req.UserID, req.TrackID, req.Direction, req.AccessToken)
	switch {
	case errors.Is(err, queue.ErrNotFound):
		writeError(w, http.StatusNotFound, "Track not found")
		return
	case errors.Is(err, queue.ErrNotOwner):
		writeError(w, http.StatusForbidden, "Can only move your own tracks")
		return
	case errors.Is(err, queue.ErrPlaying):
		writeError(w, http.StatusBadRequest, "Cannot move currently playing track")
		return
	case err != nil:
		zlog.Error().Msgf("failed to move track: room=%s track=%s error=%v", roomID, req.TrackID, err)
		writeError(w, http.StatusInternalServerError, "Failed to move track")
		return
	}

	entries, err := s.queue.Snapshot(r.Context(), roomID)
	if err != nil {
		zlog.Error().Msgf("failed to load queue: room=%s error=%v", roomID, err)
		writeError(w, http.StatusInternalServerError, "Failed to move track")
		return
	}
	if entries == nil {
		entries = []track.Entry{}
	}
	writeJSON(w, http.StatusOK, queueResponse{Tracks: entries})
}

func writeRoomError(w http.ResponseWriter, roomID string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Room not found")
		return
	}
	zlog.Error().Msgf("room request failed: room=%s error=%v", roomID, err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}
