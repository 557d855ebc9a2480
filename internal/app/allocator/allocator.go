// Package allocator orders pending contributions fairly across contributors
// using the D'Hondt highest averages method.
package allocator

import (
	"sort"
	"time"

	"github.com/osa030/wejay/internal/domain/track"
)

// Lane holds one contributor's pending contributions in play order.
type Lane struct {
	Contributor string
	Entries     []track.Contribution
	// Served is the number of slots already granted to the contributor
	// outside this allocation. The first divisor is Served+1.
	Served int
}

// Allocate interleaves the lanes into a single ordered queue.
//
// Each step picks the lane with the strictly greatest quotient
// remaining/divisor, so ties go to the lane listed first. The picked lane
// gives up its head and its divisor grows by one. Positions are 1-indexed.
func Allocate(lanes []Lane) []track.Entry {
	total := 0
	for _, l := range lanes {
		total += len(l.Entries)
	}
	if total == 0 {
		return []track.Entry{}
	}

	next := make([]int, len(lanes))
	divisor := make([]int, len(lanes))
	for i, l := range lanes {
		divisor[i] = l.Served + 1
	}

	out := make([]track.Entry, 0, total)
	for len(out) < total {
		best := -1
		var bestQ float64
		for i, l := range lanes {
			remaining := len(l.Entries) - next[i]
			if remaining == 0 {
				continue
			}
			q := float64(remaining) / float64(divisor[i])
			if best == -1 || q > bestQ {
				best = i
				bestQ = q
			}
		}

		out = append(out, track.Entry{
			Contribution: lanes[best].Entries[next[best]],
			Position:     len(out) + 1,
		})
		next[best]++
		divisor[best]++
	}
	return out
}

// Lanes groups contributions by contributor.
// Entries keep their relative input order within a lane. Lanes are ordered by
// the contributor's earliest contribution time, falling back to first
// appearance in the input.
func Lanes(pending []track.Contribution) []Lane {
	index := make(map[string]int)
	var lanes []Lane
	for _, c := range pending {
		i, ok := index[c.AddedBy]
		if !ok {
			i = len(lanes)
			index[c.AddedBy] = i
			lanes = append(lanes, Lane{Contributor: c.AddedBy})
		}
		lanes[i].Entries = append(lanes[i].Entries, c)
	}

	first := make(map[string]time.Time, len(lanes))
	for _, l := range lanes {
		first[l.Contributor] = earliest(l.Entries)
	}
	sort.SliceStable(lanes, func(i, j int) bool {
		return first[lanes[i].Contributor].Before(first[lanes[j].Contributor])
	})
	return lanes
}

// Arrange allocates the whole pending set.
//
// Each contributor's entries are played oldest first, whatever the order of
// pending.
func Arrange(pending []track.Contribution) []track.Entry {
	sorted := append([]track.Contribution(nil), pending...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].AddedAt.Before(sorted[j].AddedAt)
	})
	return Allocate(Lanes(sorted))
}

// ArrangePinned keeps head at position 1 and allocates the rest behind it.
// The head counts as one slot already served to its contributor.
//
// rest must already be in play order, as read from a stored queue: each
// contributor's entries keep their relative order in rest, which is how a
// moved entry keeps its new place.
func ArrangePinned(head track.Contribution, rest []track.Contribution) []track.Entry {
	all := make([]track.Contribution, 0, len(rest)+1)
	all = append(all, head)
	all = append(all, rest...)

	lanes := Lanes(all)
	for i := range lanes {
		if lanes[i].Contributor != head.AddedBy {
			continue
		}
		entries := lanes[i].Entries[:0:0]
		for _, c := range lanes[i].Entries {
			if c.ID != head.ID {
				entries = append(entries, c)
			}
		}
		lanes[i].Entries = entries
		lanes[i].Served = 1
	}

	allocated := Allocate(lanes)
	out := make([]track.Entry, 0, len(allocated)+1)
	out = append(out, track.Entry{Contribution: head, Position: 1})
	for _, e := range allocated {
		e.Position = len(out) + 1
		out = append(out, e)
	}
	return out
}

func earliest(entries []track.Contribution) time.Time {
	var t time.Time
	for i, c := range entries {
		if i == 0 || c.AddedAt.Before(t) {
			t = c.AddedAt
		}
	}
	return t
}
