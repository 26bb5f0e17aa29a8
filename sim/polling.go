package sim

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// FetchFunc retrieves the current feed state: a monotonically increasing
// sequence number and the payload it covers.
type FetchFunc[T any] func() (pollNumber int64, payload T, err error)

// PollerConfig tunes one polling loop.
type PollerConfig struct {
	// Delay between consecutive fetches.
	Delay time.Duration
	// InitialDelay before the very first fetch. Zero fetches immediately.
	InitialDelay time.Duration
	// MaxErrors is the consecutive-failure count at which the poller doubles
	// its delay. Zero falls back to 3.
	MaxErrors int
}

// Poller is the generic short-polling primitive shared by the position,
// record and incident feeds. At a fixed delay it invokes fetch and surfaces
// the payload through onUpdate only when the feed's sequence number strictly
// increased, so duplicates and stale re-deliveries are suppressed.
//
// Fetch failures never stop the loop. After MaxErrors consecutive failures
// the delay doubles (and may double again after another streak); a success
// resets the failure streak.
type Poller[T any] struct {
	name     string
	cfg      PollerConfig
	fetch    FetchFunc[T]
	onUpdate func(T)

	mu       sync.Mutex
	running  bool
	done     chan struct{}
	delay    time.Duration
	lastSeen int64
	errRun   int
}

// NewPoller builds a poller; Start arms it.
func NewPoller[T any](name string, cfg PollerConfig, fetch FetchFunc[T], onUpdate func(T)) *Poller[T] {
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = 3
	}
	return &Poller[T]{
		name:     name,
		cfg:      cfg,
		fetch:    fetch,
		onUpdate: onUpdate,
		delay:    cfg.Delay,
	}
}

// Start launches the polling loop. No-op if already running. A stopped
// poller may be started again; sequence-number state carries over so a
// restart never re-announces old payloads.
func (p *Poller[T]) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	logrus.Debugf("poller %s: starting (delay=%s)", p.name, p.cfg.Delay)
	go p.loop(done)
}

// Stop halts the polling loop. Idempotent; safe to call while a fetch is in
// flight (its result is still gated by the sequence number as usual, but no
// further ticks occur).
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	close(p.done)
	logrus.Debugf("poller %s: stopped", p.name)
}

// Running reports whether the loop is active.
func (p *Poller[T]) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller[T]) loop(done chan struct{}) {
	if p.cfg.InitialDelay > 0 {
		select {
		case <-done:
			return
		case <-time.After(p.cfg.InitialDelay):
		}
	}

	for {
		p.tick()

		p.mu.Lock()
		delay := p.delay
		p.mu.Unlock()

		select {
		case <-done:
			return
		case <-time.After(delay):
		}
	}
}

// tick performs one fetch-and-compare cycle.
func (p *Poller[T]) tick() {
	pollNumber, payload, err := p.fetch()
	if err != nil {
		p.mu.Lock()
		p.errRun++
		streak := p.errRun
		if streak >= p.cfg.MaxErrors {
			p.delay *= 2
			p.errRun = 0
			logrus.Warnf("poller %s: %d consecutive fetch failures, backing off to %s", p.name, streak, p.delay)
		}
		p.mu.Unlock()
		logrus.Debugf("poller %s: fetch failed: %v", p.name, err)
		return
	}

	p.mu.Lock()
	p.errRun = 0
	fresh := pollNumber > p.lastSeen
	if fresh {
		p.lastSeen = pollNumber
	}
	p.mu.Unlock()

	if fresh && p.onUpdate != nil {
		p.onUpdate(payload)
	}
}
