// Package session provides the room session manager.
package session

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/wejay/internal/app/notification"
	appplayback "github.com/osa030/wejay/internal/app/playback"
	"github.com/osa030/wejay/internal/app/protocol"
	"github.com/osa030/wejay/internal/app/queue"
	"github.com/osa030/wejay/internal/app/session/registry"
	"github.com/osa030/wejay/internal/domain/room"
	"github.com/osa030/wejay/internal/infra/store"
)

// RoomReader loads room records.
type RoomReader interface {
	GetRoom(ctx context.Context, roomID string) (*room.Room, error)
}

// Manager maps connections to rooms and routes their intents.
type Manager struct {
	registry     *registry.ConnectionRegistry
	notification *notification.Manager
	queue        *queue.Service
	playback     *appplayback.Sync
	rooms        RoomReader
	messages     func(code string) string
}

// Option configures a Manager.
type Option func(*Manager)

// WithMessages sets the resolver for user-facing error messages.
func WithMessages(fn func(code string) string) Option {
	return func(m *Manager) { m.messages = fn }
}

// NewManager creates a new session manager.
func NewManager(
	notif *notification.Manager,
	queueSvc *queue.Service,
	pb *appplayback.Sync,
	rooms RoomReader,
	opts ...Option,
) *Manager {
	m := &Manager{
		registry:     registry.NewConnectionRegistry(),
		notification: notif,
		queue:        queueSvc,
		playback:     pb,
		rooms:        rooms,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect registers a new connection. accessToken is the fallback token for
// intents that do not carry their own.
func (m *Manager) Connect(accessToken string, stream notification.Stream) string {
	id := m.registry.Open(accessToken, stream)
	zlog.Debug().Msgf("connection opened: conn=%s connections=%d", id, m.registry.Count())
	return id
}

// Disconnect removes the connection. A connection that was still in a room
// leaves it.
func (m *Manager) Disconnect(connID string) {
	c, ok := m.registry.Close(connID)
	if !ok {
		return
	}
	m.notification.Unsubscribe(connID)
	if c.Joined() {
		m.announceLeave(c)
	}
	zlog.Debug().Msgf("connection closed: conn=%s connections=%d", connID, m.registry.Count())
}

// Dispatch handles an intent and reports failures to the sender as error
// events.
func (m *Manager) Dispatch(ctx context.Context, connID string, intent protocol.Intent) {
	err := m.Handle(ctx, connID, intent)
	if err == nil {
		return
	}
	if queue.IsIgnorable(err) {
		zlog.Debug().Msgf("intent ignored: conn=%s type=%s error=%v", connID, intent.Type(), err)
		return
	}

	var rejected *queue.RejectedError
	switch {
	case errors.As(err, &rejected):
		m.Reject(connID, protocol.CodeRejected, m.message(rejected.Code, rejected.Code))
	case errors.Is(err, registry.ErrNotJoined):
		m.Reject(connID, protocol.CodeNotJoined, m.message(protocol.CodeNotJoined, "join the room first"))
	case errors.Is(err, protocol.ErrInvalidPayload):
		m.Reject(connID, protocol.CodeInvalidMessage, err.Error())
	default:
		zlog.Error().Msgf("intent failed: conn=%s type=%s room=%s error=%v", connID, intent.Type(), intent.Room(), err)
		m.Reject(connID, protocol.CodeInternal, m.message(protocol.CodeInternal, "internal error"))
	}
}

func (m *Manager) message(code, fallback string) string {
	if m.messages == nil {
		return fallback
	}
	if msg := m.messages(code); msg != "" {
		return msg
	}
	return fallback
}

// Reject sends an error event to the connection only.
func (m *Manager) Reject(connID, code, message string) {
	m.send(connID, protocol.Error{Code: code, Message: message})
}

// Handle applies an intent on behalf of the connection.
func (m *Manager) Handle(ctx context.Context, connID string, intent protocol.Intent) error {
	switch in := intent.(type) {
	case protocol.JoinRoom:
		return m.join(ctx, connID, in)
	case protocol.LeaveRoom:
		return m.leave(connID, in)
	}

	c, err := m.registry.Get(connID)
	if err != nil {
		return err
	}
	if !c.Joined() || c.RoomID != intent.Room() {
		return errors.Wrapf(registry.ErrNotJoined, "room=%s", intent.Room())
	}

	switch in := intent.(type) {
	case protocol.AddTrack:
		_, err = m.queue.Add(ctx, c.RoomID, c.UserID, in.Track, token(in.AccessToken, c))
	case protocol.RemoveTrack:
		err = m.queue.Remove(ctx, c.RoomID, c.UserID, in.TrackID, token(in.AccessToken, c))
	case protocol.MoveTrack:
		if in.UserID != "" && in.UserID != c.UserID {
			zlog.Debug().Msgf("move ignored, user mismatch: conn=%s user=%s claimed=%s", connID, c.UserID, in.UserID)
			return nil
		}
		err = m.queue.Move(ctx, c.RoomID, c.UserID, in.TrackID, in.Direction, token(in.AccessToken, c))
	case protocol.UpdatePlayback:
		err = m.playback.Update(ctx, c.RoomID, connID, in.PlaybackState)
	case protocol.TrackEnded:
		err = m.queue.TrackEnded(ctx, c.RoomID, in.TrackID, token(in.AccessToken, c))
	case protocol.CreatePlaylist:
		_, err = m.queue.CreatePlaylist(ctx, c.RoomID, in.AccessToken)
	default:
		err = errors.Wrapf(protocol.ErrUnknownType, "type %q", intent.Type())
	}
	return err
}

func (m *Manager) join(ctx context.Context, connID string, in protocol.JoinRoom) error {
	prev, err := m.registry.Join(connID, in.RoomID, in.UserID)
	if err != nil {
		return err
	}
	rejoin := prev.Joined() && prev.RoomID == in.RoomID && prev.UserID == in.UserID
	if prev.Joined() && !rejoin {
		m.announceLeave(prev)
	}
	m.notification.Subscribe(connID, in.RoomID, prev.Stream)
	zlog.Info().Msgf("user joined: room=%s user=%s conn=%s members=%d", in.RoomID, in.UserID, connID, m.notification.SubscriberCount(in.RoomID))

	entries, err := m.queue.Snapshot(ctx, in.RoomID)
	if err != nil {
		return err
	}
	st, err := m.playback.Snapshot(ctx, in.RoomID)
	if err != nil {
		return err
	}
	m.send(connID, protocol.QueueState{Tracks: entries, PlaybackState: st})

	r, err := m.rooms.GetRoom(ctx, in.RoomID)
	switch {
	case err == nil && r.HasPlaylist():
		m.send(connID, protocol.PlaylistCreated{PlaylistID: r.SpotifyPlaylistID, PlaylistURL: r.SpotifyPlaylistURL})
	case err != nil && !errors.Is(err, store.ErrNotFound):
		zlog.Warn().Msgf("failed to load room on join: room=%s error=%v", in.RoomID, err)
	}

	if !rejoin {
		m.notification.Broadcast(in.RoomID, protocol.UserJoined{UserID: in.UserID}, connID)
	}
	return nil
}

func (m *Manager) leave(connID string, in protocol.LeaveRoom) error {
	c, err := m.registry.Get(connID)
	if err != nil {
		return err
	}
	if !c.Joined() || c.RoomID != in.RoomID {
		return errors.Wrapf(registry.ErrNotJoined, "room=%s", in.RoomID)
	}
	prev, err := m.registry.Leave(connID)
	if err != nil {
		return err
	}
	m.notification.Unsubscribe(connID)
	m.announceLeave(prev)
	return nil
}

func (m *Manager) announceLeave(c registry.Connection) {
	m.notification.Broadcast(c.RoomID, protocol.UserLeft{UserID: c.UserID}, c.ID)
	zlog.Info().Msgf("user left: room=%s user=%s conn=%s", c.RoomID, c.UserID, c.ID)
}

// send delivers to a joined connection in order with the room's broadcasts.
// Connections outside a room get the event directly.
func (m *Manager) send(connID string, event protocol.Event) {
	err := m.notification.Send(connID, event)
	if errors.Is(err, notification.ErrNotSubscribed) {
		c, gerr := m.registry.Get(connID)
		if gerr != nil || c.Stream == nil {
			return
		}
		err = c.Stream.Send(event)
	}
	if err != nil {
		zlog.Debug().Msgf("send failed: conn=%s type=%s error=%v", connID, event.Type(), err)
	}
}

func token(fromIntent string, c registry.Connection) string {
	if fromIntent != "" {
		return fromIntent
	}
	return c.AccessToken
}
