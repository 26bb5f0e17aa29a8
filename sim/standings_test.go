package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func driverState(id string, laps int, best float64) *DriverState {
	return &DriverState{Driver: Driver{ID: id, Name: id}, Laps: laps, BestTime: best}
}

func TestComputeStandings_LapsThenBestTime(t *testing.T) {
	// More laps wins; equal laps fall back to the faster best time.
	states := []*DriverState{
		driverState("a", 3, 92.5),
		driverState("b", 5, 95.0),
		driverState("c", 5, 91.2),
		driverState("d", 4, 90.0),
	}

	entries := ComputeStandings(states)

	order := make([]string, len(entries))
	for i, e := range entries {
		order[i] = e.DriverID
	}
	assert.Equal(t, []string{"c", "b", "d", "a"}, order)
}

func TestComputeStandings_PositionsContiguous(t *testing.T) {
	for _, n := range []int{0, 1, 2, 6, 20} {
		states := make([]*DriverState, n)
		for i := range states {
			states[i] = driverState(string(rune('a'+i)), i%3, 90+float64(i))
		}

		entries := ComputeStandings(states)

		if len(entries) != n {
			t.Fatalf("n=%d: got %d entries", n, len(entries))
		}
		for i, e := range entries {
			if e.Position != i+1 {
				t.Fatalf("n=%d: entry %d has position %d, want %d", n, i, e.Position, i+1)
			}
		}
	}
}

func TestComputeStandings_NoTimeSortsLast(t *testing.T) {
	// A driver without a recorded lap ranks behind everyone on the same lap
	// count, regardless of grid order.
	states := []*DriverState{
		driverState("no-time", 2, 0),
		driverState("timed", 2, 94.1),
	}

	entries := ComputeStandings(states)

	assert.Equal(t, "timed", entries[0].DriverID)
	assert.Equal(t, "no-time", entries[1].DriverID)
}

func TestComputeStandings_ExactTiesKeepInputOrder(t *testing.T) {
	// Identical laps and best times must not reorder: the sort is stable.
	states := []*DriverState{
		driverState("first", 3, 90.5),
		driverState("second", 3, 90.5),
		driverState("third", 3, 90.5),
	}

	entries := ComputeStandings(states)

	assert.Equal(t, "first", entries[0].DriverID)
	assert.Equal(t, "second", entries[1].DriverID)
	assert.Equal(t, "third", entries[2].DriverID)
}

func TestComputeStandings_IdempotentOnUnchangedInput(t *testing.T) {
	states := []*DriverState{
		driverState("a", 4, 91.0),
		driverState("b", 4, 92.0),
		driverState("c", 2, 0),
	}

	first := ComputeStandings(states)
	second := ComputeStandings(states)
	assert.Equal(t, first, second)
}

func TestComputeStandings_DoesNotMutateInput(t *testing.T) {
	ds := driverState("a", 4, 91.0)
	ds.Position = 7

	ComputeStandings([]*DriverState{ds})

	// Callers apply positions themselves; the pure function must not.
	assert.Equal(t, 7, ds.Position)
}

// === throttle tests ===

func TestThrottle_LimitsEmissionRate(t *testing.T) {
	now := time.Unix(0, 0)
	gate := newThrottle(time.Second)
	gate.now = func() time.Time { return now }

	if !gate.Allow() {
		t.Fatal("first emission must pass")
	}
	if gate.Allow() {
		t.Fatal("second emission inside the interval must be blocked")
	}

	now = now.Add(time.Second)
	if !gate.Allow() {
		t.Fatal("emission after the interval must pass")
	}
}

func TestThrottle_ZeroIntervalAllowsEverything(t *testing.T) {
	gate := newThrottle(0)
	for i := 0; i < 10; i++ {
		if !gate.Allow() {
			t.Fatal("zero interval must never block")
		}
	}
}

func TestThrottle_ForceRecordsEmission(t *testing.T) {
	now := time.Unix(0, 0)
	gate := newThrottle(time.Second)
	gate.now = func() time.Time { return now }

	gate.Force()
	if gate.Allow() {
		t.Fatal("Force must count as an emission for subsequent Allow calls")
	}
}
