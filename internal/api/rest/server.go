// Package rest serves the HTTP room, auth and admin API.
package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/osa030/wejay/internal/app/protocol"
	"github.com/osa030/wejay/internal/app/queue"
	"github.com/osa030/wejay/internal/app/verifier"
	"github.com/osa030/wejay/internal/domain/history"
	"github.com/osa030/wejay/internal/domain/playback"
	"github.com/osa030/wejay/internal/domain/room"
	"github.com/osa030/wejay/internal/domain/track"
	"github.com/osa030/wejay/internal/infra/spotify"
)

// Store reads the records served by the API.
type Store interface {
	GetRoom(ctx context.Context, roomID string) (*room.Room, error)
	ListRooms(ctx context.Context) ([]*room.Room, error)
	GetQueue(ctx context.Context, roomID string) ([]track.Entry, error)
	GetPlayback(ctx context.Context, roomID string) (*playback.State, error)
	GetHistory(ctx context.Context, roomID, userID string) ([]history.Entry, error)
	GetPlayCounts(ctx context.Context, roomID, userID string) ([]history.PlayCount, error)
}

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SubscriberCounter reports how many realtime connections a room has.
type SubscriberCounter interface {
	SubscriberCount(roomID string) int
}

// Config holds API configuration.
type Config struct {
	// AdminToken enables the admin routes. Empty leaves them unmounted.
	AdminToken string
	// CookieSecure marks the token cookies Secure.
	CookieSecure bool
}

// Server implements the HTTP handlers.
type Server struct {
	store       Store
	queue       *queue.Service
	verifiers   *verifier.Store
	auth        *spotify.Authenticator
	subscribers SubscriberCounter
	config      Config
	validate    *validator.Validate
	now         func() time.Time
}

// NewServer creates a new API server.
func NewServer(
	store Store,
	queueSvc *queue.Service,
	verifiers *verifier.Store,
	auth *spotify.Authenticator,
	subscribers SubscriberCounter,
	config Config,
) *Server {
	return &Server{
		store:       store,
		queue:       queueSvc,
		verifiers:   verifiers,
		auth:        auth,
		subscribers: subscribers,
		config:      config,
		validate:    newValidator(),
		now:         time.Now,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return protocol.ValidID(fl.Field().String())
	})
	return v
}

// Router builds the route tree. Extra routes such as the websocket endpoint
// can be added to the returned router.
func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api/rooms", func(r chi.Router) {
		r.Get("/", s.handleListRooms)
		r.Post("/", s.handleOpenRoom)

		r.Route("/{roomId}", func(r chi.Router) {
			r.Get("/", s.handleGetRoom)
			r.Post("/join", s.handleJoinRoom)
			r.Post("/leave", s.handleLeaveRoom)
			r.Post("/create-playlist", s.handleCreatePlaylist)
			r.Get("/history/{userId}", s.handleHistory)
			r.Get("/playcounts/{userId}", s.handlePlayCounts)
			r.Post("/queue/move", s.handleMoveTrack)
		})
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/store-verifier", s.handleStoreVerifier)
		r.Post("/exchange-token", s.handleExchangeToken)
		r.Get("/token", s.handleToken)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/logout", s.handleLogout)
	})

	if s.config.AdminToken != "" {
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(AdminAuth(s.config.AdminToken))
			r.Get("/rooms", s.handleAdminListRooms)
			r.Get("/rooms/{roomId}", s.handleAdminGetRoom)
			r.Post("/rooms/{roomId}/skip", s.handleAdminSkip)
		})
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "wejay",
	})
}
