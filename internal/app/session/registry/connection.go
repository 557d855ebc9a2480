// Package registry tracks live client connections and the room each one
// has joined.
package registry

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/osa030/wejay/internal/app/notification"
)

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrNotJoined         = errors.New("connection has not joined a room")
)

// Phase represents the connection lifecycle phase.
type Phase int

const (
	PhaseConnected Phase = iota // Open, no room joined
	PhaseJoined                 // Attached to a room
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseConnected:
		return "connected"
	case PhaseJoined:
		return "joined"
	default:
		return "unknown"
	}
}

// Connection is a snapshot of one client connection.
type Connection struct {
	ID          string
	RoomID      string
	UserID      string
	AccessToken string
	Phase       Phase
	ConnectedAt time.Time
	Stream      notification.Stream
}

// Joined reports whether the connection is attached to a room.
func (c Connection) Joined() bool {
	return c.Phase == PhaseJoined
}

// ConnectionRegistry manages connections with thread-safe access.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewConnectionRegistry creates a new connection registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		conns: make(map[string]*Connection),
	}
}

// Open registers a new connection and returns its ID.
func (r *ConnectionRegistry) Open(accessToken string, stream notification.Stream) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New().String()
	r.conns[id] = &Connection{
		ID:          id,
		AccessToken: accessToken,
		Phase:       PhaseConnected,
		ConnectedAt: time.Now(),
		Stream:      stream,
	}
	return id
}

// Get retrieves a connection by ID.
func (r *ConnectionRegistry) Get(connID string) (Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[connID]
	if !ok {
		return Connection{}, ErrUnknownConnection
	}
	return *c, nil
}

// Join attaches the connection to a room as userID and returns the
// connection as it was before.
func (r *ConnectionRegistry) Join(connID, roomID, userID string) (Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return Connection{}, ErrUnknownConnection
	}
	prev := *c
	c.RoomID = roomID
	c.UserID = userID
	c.Phase = PhaseJoined
	return prev, nil
}

// Leave detaches the connection from its room and returns the connection as
// it was before.
func (r *ConnectionRegistry) Leave(connID string) (Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return Connection{}, ErrUnknownConnection
	}
	if c.Phase != PhaseJoined {
		return Connection{}, ErrNotJoined
	}
	prev := *c
	c.RoomID = ""
	c.UserID = ""
	c.Phase = PhaseConnected
	return prev, nil
}

// Close removes the connection and returns its state before removal.
func (r *ConnectionRegistry) Close(connID string) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return Connection{}, false
	}
	delete(r.conns, connID)
	return *c, true
}

// Count returns the number of open connections.
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
