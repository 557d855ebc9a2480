// Package verifier keeps PKCE code verifiers between the authorization
// redirect and the token exchange.
package verifier

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

var (
	// ErrNotFound is returned when no verifier is stored for the state.
	ErrNotFound = errors.New("verifier not found")
	// ErrExpired is returned when the verifier is older than the TTL.
	ErrExpired = errors.New("verifier expired")
	// ErrAlreadyUsed is returned when the verifier was already claimed.
	ErrAlreadyUsed = errors.New("verifier already used")
)

const (
	DefaultTTL       = 10 * time.Minute
	DefaultUsedGrace = time.Minute
)

type entry struct {
	verifier string
	storedAt time.Time
	usedAt   time.Time
}

func (e *entry) used() bool {
	return !e.usedAt.IsZero()
}

// Store is a process-scoped verifier store keyed by OAuth state.
type Store struct {
	mu        sync.Mutex
	entries   map[string]*entry
	ttl       time.Duration
	usedGrace time.Duration
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets how long an unused verifier stays valid.
func WithTTL(d time.Duration) Option {
	return func(s *Store) { s.ttl = d }
}

// WithUsedGrace sets how long a used verifier is kept for duplicate detection.
func WithUsedGrace(d time.Duration) Option {
	return func(s *Store) { s.usedGrace = d }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a new verifier store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries:   make(map[string]*entry),
		ttl:       DefaultTTL,
		usedGrace: DefaultUsedGrace,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put stores a verifier for the state, replacing any previous one.
func (s *Store) Put(state, verifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[state] = &entry{verifier: verifier, storedAt: s.now()}
	s.sweepLocked()
}

// Claim returns the verifier for the state and marks it used.
// A claimed verifier is kept for a grace period so that a duplicate exchange
// request gets ErrAlreadyUsed instead of ErrNotFound.
func (s *Store) Claim(state string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[state]
	if !ok {
		return "", ErrNotFound
	}
	if e.used() {
		return "", ErrAlreadyUsed
	}
	now := s.now()
	if now.Sub(e.storedAt) > s.ttl {
		delete(s.entries, state)
		return "", ErrExpired
	}

	e.usedAt = now
	return e.verifier, nil
}

// Len returns the number of stored verifiers.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes expired and used-past-grace entries.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked()
}

func (s *Store) sweepLocked() int {
	now := s.now()
	removed := 0
	for state, e := range s.entries {
		if (e.used() && now.Sub(e.usedAt) > s.usedGrace) || now.Sub(e.storedAt) > s.ttl {
			delete(s.entries, state)
			removed++
		}
	}
	return removed
}

// Run sweeps periodically until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				zlog.Debug().Msgf("verifier sweep: removed=%d", n)
			}
		}
	}
}
