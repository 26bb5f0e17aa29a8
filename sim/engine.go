package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EngineState is the engine's lifecycle state.
type EngineState int

const (
	// StateIdle: no run has started (or the last Start was rejected).
	StateIdle EngineState = iota
	// StateRunning: lap timers are armed and laps are being processed.
	StateRunning
	// StateFinished: a driver reached the lap target and a RaceResult exists.
	StateFinished
	// StateStopped: the run was halted externally before finishing.
	StateStopped
)

func (s EngineState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventSink is the closed set of events the engine emits upward. Nil
// callbacks are skipped. Callbacks run outside the engine lock, so they may
// call back into the engine freely.
type EventSink struct {
	OnLapTime      func(LapTime)
	OnStandings    func([]StandingsEntry)
	OnRaceFinished func(RaceResult)
}

// Engine drives one simulated race: it owns all per-driver state, arms one
// lap timer per driver through the RaceClock, turns fired timers into lap
// times, submits them to the LapTimeSink, and keeps standings, records and
// the finish condition current.
//
// Lifecycle: Idle → Running → (Finished | Stopped). Start re-enters Running
// from any terminal state; Stop is valid anywhere and idempotent. All
// internal state is guarded by one mutex, so lap processing has
// run-to-completion semantics per fired timer even though timers fire on
// independent goroutines.
type Engine struct {
	cfg EngineConfig

	clock    *RaceClock
	model    *LapTimeModel
	sink     LapTimeSink
	metrics  *Metrics
	detector *RecordDetector

	mu      sync.Mutex
	state   EngineState
	circuit Circuit
	drivers []Driver
	states  map[string]*DriverState
	order   []string // grid order, for stable standings input
	result  *RaceResult
	events  EventSink
	holdID  string // non-empty while an active incident forbids starting

	standingsGate *throttle
	lapGate       *throttle

	runCtx    context.Context
	runCancel context.CancelFunc
}

// NewEngine wires an engine from its collaborators. The RNG partitions keep
// lap times and timer delays on independent deterministic streams.
func NewEngine(cfg EngineConfig, ltCfg LapTimeConfig, rng *PartitionedRNG, sink LapTimeSink, metrics *Metrics) *Engine {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Engine{
		cfg:      cfg,
		clock:    NewRaceClock(rng.ForSubsystem(SubsystemClock)),
		model:    NewLapTimeModel(ltCfg, rng.ForSubsystem(SubsystemLapTime)),
		sink:     sink,
		metrics:  metrics,
		detector: NewRecordDetector(),
		state:    StateIdle,
	}
}

// Start begins a run: it clears all per-driver state, seeds the standings in
// grid order, and arms each driver's first lap timer with a staggered delay
// so the grid does not submit in one burst. A running engine is stopped and
// restarted. Invalid input leaves the engine Idle with no timers armed.
func (e *Engine) Start(circuit Circuit, drivers []Driver, events EventSink) error {
	e.mu.Lock()

	if e.holdID != "" {
		e.mu.Unlock()
		return fmt.Errorf("start: incident %s is active, clear it first", e.holdID)
	}
	if e.state == StateRunning {
		e.haltLocked(StateStopped)
	}
	if circuit.ID == "" {
		e.mu.Unlock()
		return fmt.Errorf("start: circuit id is empty")
	}
	if circuit.AvgLapTime <= 0 {
		e.mu.Unlock()
		return fmt.Errorf("start: circuit %s has no average lap time", circuit.ID)
	}
	if len(drivers) == 0 {
		e.mu.Unlock()
		return fmt.Errorf("start: no drivers to simulate on circuit %s", circuit.ID)
	}

	logrus.Infof("engine: starting race on %s (%s), %d drivers, target %d laps",
		circuit.Name, circuit.ID, len(drivers), circuit.MaxLaps)

	e.circuit = circuit
	e.drivers = drivers
	e.events = events
	e.result = nil
	e.detector = NewRecordDetector()
	e.standingsGate = newThrottle(e.cfg.StandingsInterval())
	e.lapGate = newThrottle(e.cfg.LapEventInterval())
	e.states = make(map[string]*DriverState, len(drivers))
	e.order = e.order[:0]
	for i, d := range drivers {
		e.states[d.ID] = &DriverState{Driver: d, Position: i + 1}
		e.order = append(e.order, d.ID)
	}
	e.runCtx, e.runCancel = context.WithCancel(context.Background())
	e.state = StateRunning

	// Initial standings in grid order, before any lap exists.
	emit := e.refreshStandingsLocked(true)

	for i, d := range drivers {
		stagger := time.Duration(i) * e.cfg.StartStagger()
		e.clock.ScheduleNext(d.ID, stagger+e.cfg.MinLapDelay(), stagger+e.cfg.MaxLapDelay(), e.onLapTimer)
	}
	e.mu.Unlock()

	if emit != nil {
		emit()
	}
	return nil
}

// Stop halts the run: every pending lap timer is cancelled and in-flight
// submissions are discarded on completion. Valid from any state, idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning {
		logrus.Info("engine: simulation stopped")
	}
	e.haltLocked(StateStopped)
}

// haltLocked cancels all timers and the run context, then enters state.
func (e *Engine) haltLocked(state EngineState) {
	e.clock.CancelAll()
	if e.runCancel != nil {
		e.runCancel()
		e.runCancel = nil
	}
	e.state = state
}

// IsRunning reports whether a run is in progress.
func (e *Engine) IsRunning() bool {
	return e.State() == StateRunning
}

// State returns the engine's lifecycle state.
func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Result returns the race result, or nil while no run has finished.
func (e *Engine) Result() *RaceResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return nil
	}
	r := *e.result
	return &r
}

// Standings returns the current classification snapshot.
func (e *Engine) Standings() []StandingsEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ComputeStandings(e.orderedStatesLocked())
}

// DriverLaps returns a driver's lap counter (0 for unknown drivers).
func (e *Engine) DriverLaps(driverID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ds, ok := e.states[driverID]; ok {
		return ds.Laps
	}
	return 0
}

// Hold stops the engine and forbids Start until Release is called. The
// incident monitor uses it to enforce the one-active-incident rule.
func (e *Engine) Hold(incidentID string) {
	e.mu.Lock()
	e.holdID = incidentID
	e.haltLocked(StateStopped)
	e.mu.Unlock()
	logrus.Warnf("engine: held for incident %s", incidentID)
}

// Release lifts an incident hold. The engine stays stopped; the operator
// decides whether to start a new run.
func (e *Engine) Release() {
	e.mu.Lock()
	e.holdID = ""
	e.mu.Unlock()
}

// onLapTimer handles one fired lap timer. This is the per-lap algorithm:
// count the lap, generate its time, submit it (with retries), fold the
// outcome into driver state, standings and records, then either finish the
// race or arm the next timer.
func (e *Engine) onLapTimer(driverID string) {
	e.mu.Lock()
	if e.state != StateRunning {
		// Late firing after stop/finish: discard, do not re-arm.
		e.mu.Unlock()
		return
	}
	ds, ok := e.states[driverID]
	if !ok || ds.Finished {
		e.mu.Unlock()
		return
	}

	ds.Laps++
	lap := LapTime{
		DriverID:  driverID,
		LapNumber: ds.Laps,
		Seconds:   e.model.NextLapTime(e.circuit.AvgLapTime),
	}
	circuitID := e.circuit.ID
	avg := e.circuit.AvgLapTime
	ctx := e.runCtx
	e.mu.Unlock()

	// The submit is the one suspension point: the engine lock is not held
	// while the sink round-trips.
	stored, err := e.submitWithRetry(ctx, circuitID, lap)

	var emits []func()
	e.mu.Lock()
	if e.state != StateRunning {
		// Stopped while the submission was in flight: the lap was already
		// counted, but nothing further may change.
		e.mu.Unlock()
		return
	}

	if err != nil {
		// Persistence failed for good; the lap still happened locally and
		// the driver must not stall.
		e.metrics.AddSubmitFailure()
		logrus.Warnf("engine: lap %d for driver %s not persisted: %v", lap.LapNumber, driverID, err)
	} else {
		ds.LastTime = lap.Seconds
		if ds.BestTime == 0 || lap.Seconds < ds.BestTime {
			ds.BestTime = lap.Seconds
		}
		e.metrics.AddLap()
		logrus.Debugf("engine: driver %s lap %d in %.3fs", driverID, lap.LapNumber, lap.Seconds)

		switch e.detector.Classify(driverID, lap.LapNumber, lap.Seconds, avg) {
		case RecordTrack:
			e.metrics.AddTrackRecord()
			logrus.Infof("engine: track record %.3fs by driver %s on lap %d", lap.Seconds, driverID, lap.LapNumber)
		case RecordPersonal:
			e.metrics.AddPersonalRecord()
			logrus.Infof("engine: personal record %.3fs by driver %s on lap %d", lap.Seconds, driverID, lap.LapNumber)
		}

		if e.events.OnLapTime != nil && e.lapGate.Allow() {
			out := stored
			emits = append(emits, func() { e.events.OnLapTime(out) })
		}
	}

	if se := e.refreshStandingsLocked(false); se != nil {
		emits = append(emits, se)
	}

	if e.circuit.MaxLaps > 0 && ds.Laps >= e.circuit.MaxLaps && e.result == nil {
		emits = append(emits, e.finishLocked(ds)...)
	} else {
		e.clock.ScheduleNext(driverID, e.cfg.MinLapDelay(), e.cfg.MaxLapDelay(), e.onLapTimer)
	}
	e.mu.Unlock()

	for _, emit := range emits {
		emit()
	}
}

// submitWithRetry submits a lap, retrying with linearly increasing backoff.
// After MaxRetries failed retries the last error is returned and the caller
// carries the lap locally.
func (e *Engine) submitWithRetry(ctx context.Context, circuitID string, lap LapTime) (LapTime, error) {
	for attempt := 0; ; attempt++ {
		stored, err := e.sink.SubmitLapTime(ctx, circuitID, lap)
		if err == nil {
			return stored, nil
		}
		if attempt >= e.cfg.MaxRetries {
			return lap, fmt.Errorf("after %d attempts: %w", attempt+1, err)
		}
		e.metrics.AddRetry()
		logrus.Debugf("engine: submit attempt %d for driver %s lap %d failed: %v", attempt+1, lap.DriverID, lap.LapNumber, err)

		backoff := e.cfg.RetryDelay() * time.Duration(attempt+1)
		select {
		case <-ctx.Done():
			return lap, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// finishLocked produces the single RaceResult for this run and shuts the
// race down: state becomes Finished, all timers are cancelled, and one final
// standings emission bypasses the throttle.
func (e *Engine) finishLocked(winner *DriverState) []func() {
	winner.Finished = true
	result := RaceResult{
		WinnerID:    winner.Driver.ID,
		WinnerName:  winner.Driver.Name,
		TotalLaps:   winner.Laps,
		DriverCount: len(e.drivers),
	}
	e.result = &result
	e.haltLocked(StateFinished)

	logrus.Infof("engine: race finished, %s wins after %d laps", result.WinnerName, result.TotalLaps)

	var emits []func()
	if se := e.refreshStandingsLocked(true); se != nil {
		emits = append(emits, se)
	}
	if e.events.OnRaceFinished != nil {
		emits = append(emits, func() { e.events.OnRaceFinished(result) })
	}
	return emits
}

// refreshStandingsLocked recomputes the classification, applies the new
// positions, and returns an emission closure when the snapshot should go out
// (positions changed and the throttle allows it, or forced). Positions are
// always applied; only the notification is rate-limited.
func (e *Engine) refreshStandingsLocked(forced bool) func() {
	entries := ComputeStandings(e.orderedStatesLocked())

	changed := false
	for _, entry := range entries {
		if ds, ok := e.states[entry.DriverID]; ok && ds.Position != entry.Position {
			ds.Position = entry.Position
			changed = true
		}
	}

	if e.events.OnStandings == nil {
		return nil
	}
	if forced {
		e.standingsGate.Force()
	} else if !changed || !e.standingsGate.Allow() {
		return nil
	}
	return func() { e.events.OnStandings(entries) }
}

// orderedStatesLocked returns driver states in grid order so the standings
// sort has a stable input.
func (e *Engine) orderedStatesLocked() []*DriverState {
	states := make([]*DriverState, 0, len(e.order))
	for _, id := range e.order {
		states = append(states, e.states[id])
	}
	return states
}
