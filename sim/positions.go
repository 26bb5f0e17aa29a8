package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DriverPosition is one row of the externally synchronized position feed.
type DriverPosition struct {
	DriverID string `json:"driver_id"`
	Position int    `json:"position"`
}

// PositionPoll is one response from a PositionSource fetch.
type PositionPoll struct {
	PollNumber int64            `json:"poll_number"`
	Positions  []DriverPosition `json:"positions"`
}

// NewPositionPoller builds the position-feed variant of the generic poller:
// onUpdate fires only when the feed's poll number advances.
func NewPositionPoller(cfg PollingConfig, source PositionSource, circuitID string, onUpdate func(PositionPoll)) *Poller[PositionPoll] {
	return NewPoller(
		fmt.Sprintf("positions[%s]", circuitID),
		PollerConfig{
			Delay:     cfg.PositionDelay(),
			MaxErrors: cfg.MaxConsecutiveErrors,
		},
		func() (int64, PositionPoll, error) {
			poll, err := source.FetchPositions(circuitID)
			return poll.PollNumber, poll, err
		},
		onUpdate,
	)
}

// PositionBroadcaster forwards standings positions to a PositionSink,
// sending only the positions that changed since the last publish. A failed
// submit is logged and retried implicitly on the next publish, since the
// position is then still recorded as unsent.
type PositionBroadcaster struct {
	sink      PositionSink
	circuitID string

	mu       sync.Mutex
	lastSent map[string]int
}

// NewPositionBroadcaster builds a broadcaster for one circuit.
func NewPositionBroadcaster(sink PositionSink, circuitID string) *PositionBroadcaster {
	return &PositionBroadcaster{
		sink:      sink,
		circuitID: circuitID,
		lastSent:  make(map[string]int),
	}
}

// Publish submits every changed position from the snapshot.
func (p *PositionBroadcaster) Publish(entries []StandingsEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range entries {
		if p.lastSent[e.DriverID] == e.Position {
			continue
		}
		if err := p.sink.SubmitPosition(context.Background(), p.circuitID, e.DriverID, e.Position); err != nil {
			logrus.Debugf("positions: submit for driver %s failed: %v", e.DriverID, err)
			continue
		}
		p.lastSent[e.DriverID] = e.Position
	}
}

// Reset forgets what has been sent, so the next Publish resends everything.
func (p *PositionBroadcaster) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSent = make(map[string]int)
}

// GridShuffler is the synthetic position generator: with no live engine
// feeding the position feed, it re-shuffles the grid at a fixed interval and
// publishes the changed positions. Demo-mode stand-in for real standings.
type GridShuffler struct {
	broadcaster *PositionBroadcaster
	drivers     []Driver
	rng         *rand.Rand
	interval    time.Duration

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewGridShuffler builds a shuffler publishing through sink every interval.
func NewGridShuffler(sink PositionSink, circuitID string, drivers []Driver, rng *rand.Rand, interval time.Duration) *GridShuffler {
	return &GridShuffler{
		broadcaster: NewPositionBroadcaster(sink, circuitID),
		drivers:     drivers,
		rng:         rng,
		interval:    interval,
	}
}

// Start publishes one shuffled order immediately, then keeps reshuffling at
// the configured interval. No-op if already running.
func (g *GridShuffler) Start() {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return
	}
	g.running = true
	g.done = make(chan struct{})
	done := g.done
	g.mu.Unlock()

	go func() {
		g.shuffleOnce()
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				g.shuffleOnce()
			}
		}
	}()
}

// Stop halts the shuffling loop. Idempotent.
func (g *GridShuffler) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return
	}
	g.running = false
	close(g.done)
}

func (g *GridShuffler) shuffleOnce() {
	ids := make([]string, len(g.drivers))
	for i, d := range g.drivers {
		ids[i] = d.ID
	}

	g.mu.Lock()
	Shuffle(g.rng, ids)
	g.mu.Unlock()

	entries := make([]StandingsEntry, len(ids))
	for i, id := range ids {
		entries[i] = StandingsEntry{DriverID: id, Position: i + 1}
	}
	g.broadcaster.Publish(entries)
}
