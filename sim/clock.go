package sim

import (
	"math/rand"
	"sync"
	"time"
)

// timerHandle is the cancellation token for one armed timer.
type timerHandle interface {
	// Stop cancels the timer. Reports false if it already fired or was
	// already stopped.
	Stop() bool
}

// TimerFactory arms a one-shot timer that invokes fn after d on its own
// goroutine. The default is time.AfterFunc; tests substitute a manual
// implementation to drive callbacks deterministically.
type TimerFactory func(d time.Duration, fn func()) timerHandle

func afterFunc(d time.Duration, fn func()) timerHandle {
	return time.AfterFunc(d, fn)
}

// RaceClock schedules lap-completion timers, one per driver. The invariant it
// enforces is at-most-one outstanding timer per driver: re-arming cancels the
// previous timer first, and a fired timer is consumed (never auto-repeats).
type RaceClock struct {
	mu       sync.Mutex
	rng      *rand.Rand
	newTimer TimerFactory
	timers   map[string]timerHandle
}

// NewRaceClock builds a clock drawing delays from rng.
func NewRaceClock(rng *rand.Rand) *RaceClock {
	return &RaceClock{
		rng:      rng,
		newTimer: afterFunc,
		timers:   make(map[string]timerHandle),
	}
}

// ScheduleNext arms the next lap-completion timer for driverID, uniformly
// distributed in [minDelay, maxDelay). Any pending timer for the same driver
// is cancelled first.
func (c *RaceClock) ScheduleNext(driverID string, minDelay, maxDelay time.Duration, onFire func(driverID string)) {
	c.mu.Lock()
	delay := minDelay + time.Duration(c.rng.Int63n(int64(maxDelay-minDelay)))
	c.mu.Unlock()
	c.ScheduleIn(driverID, delay, onFire)
}

// ScheduleIn arms a timer for driverID after an explicit delay. Used by the
// engine for staggered first laps; otherwise identical to ScheduleNext.
func (c *RaceClock) ScheduleIn(driverID string, delay time.Duration, onFire func(driverID string)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.timers[driverID]; ok {
		old.Stop()
	}
	c.timers[driverID] = c.newTimer(delay, func() {
		c.consume(driverID)
		onFire(driverID)
	})
}

// consume forgets a fired timer so Pending stays accurate.
func (c *RaceClock) consume(driverID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.timers, driverID)
}

// Cancel stops any pending timer for driverID. No-op if none is armed.
func (c *RaceClock) Cancel(driverID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[driverID]; ok {
		t.Stop()
		delete(c.timers, driverID)
	}
}

// CancelAll stops every pending timer.
func (c *RaceClock) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}

// Pending returns the number of currently armed timers.
func (c *RaceClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}
