// Package notification provides the per-room fan-out of protocol events.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/wejay/internal/app/protocol"
)

const sendTimeout = 500 * time.Millisecond

// ErrNotSubscribed is returned by Send for unknown subscriptions.
var ErrNotSubscribed = errors.New("not subscribed")

// Stream represents a subscriber's outbound channel, usually a connection.
type Stream interface {
	Send(protocol.Event) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	roomID string
	stream Stream

	mu   sync.Mutex
	last chan struct{} // closed when the latest queued send finished
}

// enqueue starts sending the event once every earlier send to the same
// subscriber has finished, so events arrive in broadcast order even when a
// previous send outlived its timeout.
func (s *subscription) enqueue(event protocol.Event) <-chan error {
	s.mu.Lock()
	prev := s.last
	done := make(chan struct{})
	s.last = done
	s.mu.Unlock()

	result := make(chan error, 1)
	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		result <- s.stream.Send(event)
	}()
	return result
}

// Manager manages room subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	rooms         map[string]map[string]*subscription
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
		rooms:         make(map[string]map[string]*subscription),
	}
}

// Subscribe attaches the stream to a room's broadcast group.
// A subscription belongs to at most one room; subscribing again moves it.
func (m *Manager) Subscribe(subscriptionID, roomID string, stream Stream) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub := &subscription{id: subscriptionID, roomID: roomID, stream: stream}
	if old, ok := m.subscriptions[subscriptionID]; ok {
		old.mu.Lock()
		sub.last = old.last
		old.mu.Unlock()
	}
	m.removeLocked(subscriptionID)

	m.subscriptions[subscriptionID] = sub
	if m.rooms[roomID] == nil {
		m.rooms[roomID] = make(map[string]*subscription)
	}
	m.rooms[roomID][subscriptionID] = sub
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(subscriptionID)
}

func (m *Manager) removeLocked(subscriptionID string) {
	sub, ok := m.subscriptions[subscriptionID]
	if !ok {
		return
	}
	delete(m.subscriptions, subscriptionID)
	if members := m.rooms[sub.roomID]; members != nil {
		delete(members, subscriptionID)
		if len(members) == 0 {
			delete(m.rooms, sub.roomID)
		}
	}
}

// Broadcast sends an event to every subscriber of the room except the given
// subscription IDs. Waiting for a subscriber is bounded by sendTimeout; the
// send itself stays queued behind earlier ones.
func (m *Manager) Broadcast(roomID string, event protocol.Event, exceptIDs ...string) {
	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during sends
	subs := make([]*subscription, 0, len(m.rooms[roomID]))
	for id, sub := range m.rooms[roomID] {
		if contains(exceptIDs, id) {
			continue
		}
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		done := sub.enqueue(event)
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Msgf("broadcast send failed: room=%s subscription=%s type=%s error=%v", roomID, s.id, event.Type(), err)
				}
			case <-ctx.Done():
				zlog.Warn().Msgf("broadcast send timed out: room=%s subscription=%s type=%s", roomID, s.id, event.Type())
			}
		}(sub)
	}

	wg.Wait()
}

// Send sends an event to one subscriber, after any broadcast already queued
// for it.
func (m *Manager) Send(subscriptionID string, event protocol.Event) error {
	m.mu.RLock()
	sub, ok := m.subscriptions[subscriptionID]
	m.mu.RUnlock()

	if !ok {
		return ErrNotSubscribed
	}
	return <-sub.enqueue(event)
}

// SubscriberCount returns the number of subscribers in the room.
func (m *Manager) SubscriberCount(roomID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms[roomID])
}

// Close closes the manager and removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
	m.rooms = make(map[string]map[string]*subscription)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
