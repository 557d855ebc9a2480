package verifier

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore() (*Store, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return NewStore(WithClock(clock.Now)), clock
}

func TestStore_Claim(t *testing.T) {
	s, _ := newTestStore()
	s.Put("state1", "verifier1")

	v, err := s.Claim("state1")
	require.NoError(t, err)
	assert.Equal(t, "verifier1", v)

	_, err = s.Claim("state1")
	assert.ErrorIs(t, err, ErrAlreadyUsed)

	_, err = s.Claim("unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Expired(t *testing.T) {
	s, clock := newTestStore()
	s.Put("state1", "verifier1")

	clock.Advance(DefaultTTL + time.Second)

	_, err := s.Claim("state1")
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, 0, s.Len())
}

func TestStore_Sweep(t *testing.T) {
	s, clock := newTestStore()
	s.Put("old", "v1")
	s.Put("used", "v2")
	_, err := s.Claim("used")
	require.NoError(t, err)

	clock.Advance(DefaultUsedGrace + time.Second)
	s.Put("fresh", "v3")

	assert.Equal(t, 2, s.Len(), "used verifier past its grace period is swept on put")

	clock.Advance(DefaultTTL)
	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 1, s.Len())

	v, err := s.Claim("fresh")
	require.NoError(t, err)
	assert.Equal(t, "v3", v)
}

func TestStore_Run(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	s := NewStore(WithClock(clock.Now), WithTTL(time.Minute))
	s.Put("state1", "v")
	clock.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 10*time.Millisecond)
	cancel()
	<-done
}
