package sim

import (
	"sort"
	"time"
)

// noTimeSentinel sorts drivers without a recorded lap behind everyone on the
// same lap count.
const noTimeSentinel = 999999.0

// ComputeStandings ranks driver states by laps completed (descending), then
// best lap time (ascending). Drivers with no recorded time yet sort last
// within their lap count. The sort is stable: exact ties keep their input
// order rather than reordering nondeterministically. Positions are assigned
// 1..N in sorted order.
//
// Pure function: the input states are read, never mutated. Callers apply the
// returned positions themselves.
func ComputeStandings(states []*DriverState) []StandingsEntry {
	entries := make([]StandingsEntry, 0, len(states))
	for _, ds := range states {
		entries = append(entries, StandingsEntry{
			DriverID: ds.Driver.ID,
			Name:     ds.Driver.Name,
			Team:     ds.Driver.Team,
			Laps:     ds.Laps,
			BestTime: ds.BestTime,
			LastTime: ds.LastTime,
			Finished: ds.Finished,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Laps != entries[j].Laps {
			return entries[i].Laps > entries[j].Laps
		}
		return sortableTime(entries[i].BestTime) < sortableTime(entries[j].BestTime)
	})

	for i := range entries {
		entries[i].Position = i + 1
	}
	return entries
}

func sortableTime(t float64) float64 {
	if t <= 0 {
		return noTimeSentinel
	}
	return t
}

// === Emission throttle ===

// throttle rate-limits outward notifications. It never gates state changes,
// only whether an already-applied change is worth announcing right now.
type throttle struct {
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

func newThrottle(interval time.Duration) *throttle {
	return &throttle{interval: interval, now: time.Now}
}

// Allow reports whether an emission may go out, and records the emission
// instant when it may. A zero interval allows everything.
func (t *throttle) Allow() bool {
	if t.interval <= 0 {
		return true
	}
	now := t.now()
	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}

// Force records an emission instant unconditionally. Used for the final
// standings emission at race finish, which bypasses the rate limit.
func (t *throttle) Force() {
	t.last = t.now()
}
