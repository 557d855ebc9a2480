package allocator

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/wejay/internal/domain/track"
)

var base = time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)

func contrib(id, user string, minute int) track.Contribution {
	return track.Contribution{
		ID:      id,
		Track:   track.Track{SpotifyID: "sp-" + id, Name: id},
		AddedBy: user,
		AddedAt: base.Add(time.Duration(minute) * time.Minute),
	}
}

func TestArrange(t *testing.T) {
	tests := []struct {
		name     string
		pending  []track.Contribution
		expected []string
	}{
		{
			name:     "empty",
			pending:  nil,
			expected: []string{},
		},
		{
			name: "single contributor keeps input order",
			pending: []track.Contribution{
				contrib("a1", "alice", 1),
				contrib("a2", "alice", 2),
				contrib("a3", "alice", 3),
			},
			expected: []string{"a1", "a2", "a3"},
		},
		{
			name: "later contributor is interleaved",
			pending: []track.Contribution{
				contrib("a1", "alice", 1),
				contrib("a2", "alice", 2),
				contrib("b1", "bob", 3),
			},
			expected: []string{"a1", "b1", "a2"},
		},
		{
			name: "three contributors",
			pending: []track.Contribution{
				contrib("a1", "alice", 1),
				contrib("a2", "alice", 2),
				contrib("a3", "alice", 3),
				contrib("b1", "bob", 4),
				contrib("c1", "carol", 5),
				contrib("c2", "carol", 6),
			},
			expected: []string{"a1", "c1", "a2", "b1", "c2", "a3"},
		},
		{
			name: "tie goes to the earliest contributor",
			pending: []track.Contribution{
				contrib("b1", "bob", 5),
				contrib("a1", "alice", 1),
			},
			expected: []string{"a1", "b1"},
		},
		{
			name: "equal times fall back to input order",
			pending: []track.Contribution{
				contrib("b1", "bob", 1),
				contrib("a1", "alice", 1),
			},
			expected: []string{"b1", "a1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Arrange(tt.pending)
			assert.Equal(t, tt.expected, track.IDs(got))
			for i, e := range got {
				assert.Equal(t, i+1, e.Position, "positions are 1-indexed")
			}
		})
	}
}

func TestArrangePinned(t *testing.T) {
	t.Run("head counts as a served slot", func(t *testing.T) {
		got := ArrangePinned(
			contrib("a1", "alice", 1),
			[]track.Contribution{contrib("a2", "alice", 2), contrib("b1", "bob", 3)},
		)
		assert.Equal(t, []string{"a1", "b1", "a2"}, track.IDs(got))
	})

	t.Run("head stays first even when another lane is larger", func(t *testing.T) {
		got := ArrangePinned(
			contrib("b1", "bob", 9),
			[]track.Contribution{
				contrib("a1", "alice", 1),
				contrib("a2", "alice", 2),
				contrib("a3", "alice", 3),
			},
		)
		require.Len(t, got, 4)
		assert.Equal(t, "b1", got[0].ID)
		assert.Equal(t, 1, got[0].Position)
		assert.Equal(t, []string{"a1", "a2", "a3"}, track.IDs(got[1:]))
		assert.Equal(t, 4, got[3].Position)
	})

	t.Run("head alone", func(t *testing.T) {
		got := ArrangePinned(contrib("a1", "alice", 1), nil)
		assert.Equal(t, []string{"a1"}, track.IDs(got))
	})
}

func TestAllocate_SkipsEmptyLanes(t *testing.T) {
	got := Allocate([]Lane{
		{Contributor: "ghost"},
		{Contributor: "alice", Entries: []track.Contribution{contrib("a1", "alice", 1)}},
	})
	assert.Equal(t, []string{"a1"}, track.IDs(got))
}

func TestArrange_Deterministic(t *testing.T) {
	pending := []track.Contribution{
		contrib("a1", "alice", 1),
		contrib("b1", "bob", 2),
		contrib("a2", "alice", 3),
		contrib("c1", "carol", 4),
		contrib("b2", "bob", 5),
		contrib("a3", "alice", 6),
	}

	first := Arrange(pending)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Arrange(pending))
	}
}

func TestArrange_PlaysOldestFirst(t *testing.T) {
	pending := []track.Contribution{
		contrib("a2", "alice", 2),
		contrib("b2", "bob", 4),
		contrib("a1", "alice", 1),
		contrib("b1", "bob", 3),
		contrib("a3", "alice", 5),
	}

	got := Arrange(pending)

	var alice, bob []string
	for _, e := range got {
		if e.AddedBy == "alice" {
			alice = append(alice, e.ID)
		} else {
			bob = append(bob, e.ID)
		}
	}
	assert.Equal(t, []string{"a1", "a2", "a3"}, alice)
	assert.Equal(t, []string{"b1", "b2"}, bob)
}

func TestArrangePinned_KeepsLaneOrder(t *testing.T) {
	// a3 was moved ahead of a2
	got := ArrangePinned(
		contrib("a1", "alice", 1),
		[]track.Contribution{
			contrib("b1", "bob", 3),
			contrib("a3", "alice", 5),
			contrib("b2", "bob", 4),
			contrib("a2", "alice", 2),
		},
	)
	assert.Equal(t, []string{"a1", "b1", "a3", "b2", "a2"}, track.IDs(got))
}

func TestArrange_FairnessBound(t *testing.T) {
	for a := 1; a <= 12; a++ {
		for b := 1; b <= 12; b++ {
			if a == b {
				continue
			}
			t.Run(fmt.Sprintf("%d_vs_%d", a, b), func(t *testing.T) {
				var pending []track.Contribution
				for i := 0; i < a; i++ {
					pending = append(pending, contrib(fmt.Sprintf("a%d", i), "alice", i))
				}
				for i := 0; i < b; i++ {
					pending = append(pending, contrib(fmt.Sprintf("b%d", i), "bob", a+i))
				}

				got := Arrange(pending)
				require.Len(t, got, a+b)

				limit := int(math.Ceil(float64(max(a, b))/float64(min(a, b)))) + 1
				run := 1
				for i := 1; i < len(got); i++ {
					if got[i].AddedBy == got[i-1].AddedBy {
						run++
					} else {
						run = 1
					}
					assert.LessOrEqual(t, run, limit)
				}
			})
		}
	}
}
