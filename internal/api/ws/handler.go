// Package ws serves the realtime protocol over websocket.
package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/wejay/internal/app/protocol"
	"github.com/osa030/wejay/internal/app/session"
)

// TokenParam is the query parameter carrying the connection's fallback
// access token.
const TokenParam = "token"

// Handler upgrades HTTP requests and pumps frames between the socket and the
// session manager.
type Handler struct {
	sessions *session.Manager
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHandler creates a websocket handler. An empty allowedOrigins accepts any
// origin.
func NewHandler(sessions *session.Manager, allowedOrigins []string) *Handler {
	return &Handler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		clients: make(map[*client]struct{}),
	}
}

// Close sends a going-away close frame to every open connection and closes
// it. The read loops then disconnect their sessions.
func (h *Handler) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = c.conn.Close()
	}
	zlog.Info().Msgf("ws connections closed: count=%d", len(clients))
}

// Count returns the number of open connections.
func (h *Handler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeHTTP runs the read loop for the lifetime of the connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Warn().Msgf("ws upgrade failed: remote=%s error=%v", r.RemoteAddr, err)
		return
	}

	c := newClient(conn)
	c.id = h.sessions.Connect(r.URL.Query().Get(TokenParam), c)
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	zlog.Info().Msgf("ws connected: conn=%s remote=%s", c.id, r.RemoteAddr)

	go c.writePump()
	h.readPump(r, c)
}

func (h *Handler) readPump(r *http.Request, c *client) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		h.sessions.Disconnect(c.id)
		close(c.done)
		zlog.Info().Msgf("ws disconnected: conn=%s", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := r.Context()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zlog.Warn().Msgf("ws read failed: conn=%s error=%v", c.id, err)
			}
			return
		}

		intent, err := protocol.DecodeIntent(data)
		if err != nil {
			zlog.Debug().Msgf("ws invalid message: conn=%s error=%v", c.id, err)
			h.sessions.Reject(c.id, protocol.CodeInvalidMessage, err.Error())
			continue
		}
		h.sessions.Dispatch(ctx, c.id, intent)
	}
}
