package sim

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingPositionSink records every accepted submission.
type countingPositionSink struct {
	mu       sync.Mutex
	submits  []DriverPosition
	failNext bool
}

func (s *countingPositionSink) SubmitPosition(_ context.Context, _ string, driverID string, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return errors.New("position backend down")
	}
	s.submits = append(s.submits, DriverPosition{DriverID: driverID, Position: position})
	return nil
}

func (s *countingPositionSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.submits)
}

func standingsSnapshot(positions map[string]int) []StandingsEntry {
	var entries []StandingsEntry
	for id, pos := range positions {
		entries = append(entries, StandingsEntry{DriverID: id, Position: pos})
	}
	return entries
}

func TestPositionBroadcaster_SendsOnlyChanges(t *testing.T) {
	sink := &countingPositionSink{}
	b := NewPositionBroadcaster(sink, "c1")

	b.Publish(standingsSnapshot(map[string]int{"d1": 1, "d2": 2}))
	assert.Equal(t, 2, sink.count(), "first publish sends everything")

	b.Publish(standingsSnapshot(map[string]int{"d1": 1, "d2": 2}))
	assert.Equal(t, 2, sink.count(), "unchanged positions are not resent")

	b.Publish(standingsSnapshot(map[string]int{"d1": 2, "d2": 2}))
	assert.Equal(t, 3, sink.count(), "only the changed position goes out")
}

func TestPositionBroadcaster_FailedSubmitIsRetriedNextPublish(t *testing.T) {
	sink := &countingPositionSink{failNext: true}
	b := NewPositionBroadcaster(sink, "c1")

	b.Publish([]StandingsEntry{{DriverID: "d1", Position: 1}})
	assert.Equal(t, 0, sink.count())

	// The failed position was never marked sent, so it goes out now.
	b.Publish([]StandingsEntry{{DriverID: "d1", Position: 1}})
	assert.Equal(t, 1, sink.count())
}

func TestPositionBroadcaster_ResetResendsEverything(t *testing.T) {
	sink := &countingPositionSink{}
	b := NewPositionBroadcaster(sink, "c1")

	b.Publish([]StandingsEntry{{DriverID: "d1", Position: 1}})
	b.Reset()
	b.Publish([]StandingsEntry{{DriverID: "d1", Position: 1}})

	assert.Equal(t, 2, sink.count())
}

func TestGridShuffler_PublishesContiguousPositions(t *testing.T) {
	sink := &countingPositionSink{}
	drivers := testDrivers(3)
	g := NewGridShuffler(sink, "c1", drivers, rand.New(rand.NewSource(4)), time.Minute)

	g.shuffleOnce()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.submits, 3)
	seenPos := make(map[int]bool)
	seenDriver := make(map[string]bool)
	for _, s := range sink.submits {
		seenPos[s.Position] = true
		seenDriver[s.DriverID] = true
	}
	for p := 1; p <= 3; p++ {
		assert.True(t, seenPos[p], "position %d missing", p)
	}
	for _, d := range drivers {
		assert.True(t, seenDriver[d.ID], "driver %s missing", d.ID)
	}
}

func TestGridShuffler_StartStopLifecycle(t *testing.T) {
	sink := &countingPositionSink{}
	g := NewGridShuffler(sink, "c1", testDrivers(2), rand.New(rand.NewSource(4)), time.Millisecond)

	g.Start()
	g.Start() // no-op while running
	assert.Eventually(t, func() bool { return sink.count() >= 2 }, time.Second, time.Millisecond)
	g.Stop()
	g.Stop() // idempotent
}

func TestNewPositionPoller_GatesOnPollNumber(t *testing.T) {
	circuit := testCircuit(3)
	drivers := testDrivers(2)
	backend := NewMemoryBackend(circuit, drivers)

	var updates []PositionPoll
	p := NewPositionPoller(DefaultConfig().Polling, backend, "c1", func(poll PositionPoll) {
		updates = append(updates, poll)
	})

	p.tick() // empty feed, poll number 0: nothing surfaces
	require.NoError(t, backend.SubmitPosition(context.Background(), "c1", "d1", 1))
	p.tick()
	p.tick() // unchanged: suppressed

	require.Len(t, updates, 1)
	assert.Equal(t, []DriverPosition{{DriverID: "d1", Position: 1}}, updates[0].Positions)
}
