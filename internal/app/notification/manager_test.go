package notification

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/wejay/internal/app/protocol"
)

type recordingStream struct {
	mu     sync.Mutex
	events []protocol.Event
	err    error
	block  chan struct{}
}

func (s *recordingStream) Send(e protocol.Event) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingStream) received() []protocol.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Event(nil), s.events...)
}

func TestManager_BroadcastIsRoomScoped(t *testing.T) {
	m := NewManager()
	a, b, c := &recordingStream{}, &recordingStream{}, &recordingStream{}
	m.Subscribe("a", "room1", a)
	m.Subscribe("b", "room1", b)
	m.Subscribe("c", "room2", c)

	m.Broadcast("room1", protocol.UserJoined{UserID: "x"})

	assert.Len(t, a.received(), 1)
	assert.Len(t, b.received(), 1)
	assert.Empty(t, c.received())
}

func TestManager_BroadcastExcept(t *testing.T) {
	m := NewManager()
	a, b := &recordingStream{}, &recordingStream{}
	m.Subscribe("a", "room1", a)
	m.Subscribe("b", "room1", b)

	m.Broadcast("room1", protocol.UserLeft{UserID: "x"}, "a")

	assert.Empty(t, a.received())
	assert.Equal(t, []protocol.Event{protocol.UserLeft{UserID: "x"}}, b.received())
}

func TestManager_BroadcastSurvivesFailingStreams(t *testing.T) {
	m := NewManager()
	failing := &recordingStream{err: errors.New("closed")}
	slow := &recordingStream{block: make(chan struct{})}
	ok := &recordingStream{}
	m.Subscribe("f", "room1", failing)
	m.Subscribe("s", "room1", slow)
	m.Subscribe("o", "room1", ok)

	start := time.Now()
	m.Broadcast("room1", protocol.UserJoined{UserID: "x"})
	close(slow.block)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Len(t, ok.received(), 1)
}

func TestManager_SubscribeMovesRooms(t *testing.T) {
	m := NewManager()
	a := &recordingStream{}
	m.Subscribe("a", "room1", a)
	m.Subscribe("a", "room2", a)

	assert.Equal(t, 0, m.SubscriberCount("room1"))
	assert.Equal(t, 1, m.SubscriberCount("room2"))

	m.Broadcast("room2", protocol.UserJoined{UserID: "x"})
	assert.Len(t, a.received(), 1)
}

func TestManager_SendAndUnsubscribe(t *testing.T) {
	m := NewManager()
	a := &recordingStream{}
	m.Subscribe("a", "room1", a)

	assert.NoError(t, m.Send("a", protocol.Error{Code: protocol.CodeRejected}))
	assert.Len(t, a.received(), 1)

	m.Unsubscribe("a")
	assert.ErrorIs(t, m.Send("a", protocol.Error{Code: protocol.CodeRejected}), ErrNotSubscribed)
	m.Broadcast("room1", protocol.UserJoined{UserID: "x"})
	assert.Len(t, a.received(), 1)
	assert.Equal(t, 0, m.SubscriberCount("room1"))
}

func TestManager_BroadcastKeepsOrderForSlowStreams(t *testing.T) {
	m := NewManager()
	slow := &recordingStream{block: make(chan struct{})}
	m.Subscribe("s", "room1", slow)

	// both broadcasts give up waiting while the stream is stuck
	m.Broadcast("room1", protocol.UserJoined{UserID: "first"})
	m.Broadcast("room1", protocol.UserJoined{UserID: "second"})
	close(slow.block)

	assert.Eventually(t, func() bool { return len(slow.received()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []protocol.Event{
		protocol.UserJoined{UserID: "first"},
		protocol.UserJoined{UserID: "second"},
	}, slow.received())
}

func TestManager_Close(t *testing.T) {
	m := NewManager()
	m.Subscribe("a", "room1", &recordingStream{})
	m.Close()
	assert.Equal(t, 0, m.SubscriberCount("room1"))
}
