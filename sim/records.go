package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// RecordClass is the outcome of classifying one lap time.
type RecordClass int

const (
	// RecordNone: not a record (or a duplicate delivery of a known lap).
	RecordNone RecordClass = iota
	// RecordPersonal: the driver's best lap so far, but not the track's.
	RecordPersonal
	// RecordTrack: the fastest lap ever seen on this circuit.
	RecordTrack
)

func (c RecordClass) String() string {
	switch c {
	case RecordPersonal:
		return "personal"
	case RecordTrack:
		return "track"
	default:
		return "none"
	}
}

// recordKey de-duplicates classification: each (driver, lap) pair is
// classified at most once, so redundant re-delivery of the same lap never
// re-announces a record.
type recordKey struct {
	driverID  string
	lapNumber int
}

// RecordDetector tracks the running track-wide best lap and each driver's
// personal best, classifying incoming laps against them. Bests only ever
// move downward.
//
// Not safe for concurrent use; the owning engine (or watcher) serializes
// calls.
type RecordDetector struct {
	trackBest float64 // 0 = unset
	personal  map[string]float64
	seen      map[recordKey]struct{}
}

// NewRecordDetector returns a detector with no history.
func NewRecordDetector() *RecordDetector {
	return &RecordDetector{
		personal: make(map[string]float64),
		seen:     make(map[recordKey]struct{}),
	}
}

// Classify judges one lap time and updates the running bests it beats.
//
// A lap is only eligible at all when it is faster than the circuit average:
// the lap-time model guarantees that is exactly its "exceptional" band, so no
// separate signal is needed. Among eligible laps, beating the track-wide best
// is a track record; beating only the driver's own best is a personal record,
// announced only when the driver already had a best to beat (a first-ever lap
// has nothing to improve on). Duplicate (driver, lap) deliveries return
// RecordNone without touching any state.
func (d *RecordDetector) Classify(driverID string, lapNumber int, lapTime, circuitAvg float64) RecordClass {
	key := recordKey{driverID: driverID, lapNumber: lapNumber}
	if _, dup := d.seen[key]; dup {
		return RecordNone
	}
	d.seen[key] = struct{}{}

	if lapTime >= circuitAvg {
		return RecordNone
	}

	if d.trackBest == 0 || lapTime < d.trackBest {
		d.trackBest = lapTime
		if prev, ok := d.personal[driverID]; !ok || lapTime < prev {
			d.personal[driverID] = lapTime
		}
		return RecordTrack
	}

	prev, had := d.personal[driverID]
	if !had || lapTime < prev {
		d.personal[driverID] = lapTime
		if !had {
			// First timed lap under the average: nothing to beat yet.
			return RecordNone
		}
		return RecordPersonal
	}
	return RecordNone
}

// TrackBest returns the fastest lap seen so far, or 0 if none.
func (d *RecordDetector) TrackBest() float64 {
	return d.trackBest
}

// PersonalBest returns driverID's fastest eligible lap, or 0 if none.
func (d *RecordDetector) PersonalBest(driverID string) float64 {
	return d.personal[driverID]
}

// === Record feed ===

// RecordNotice is the payload surfaced by the record feed: the record lap,
// the best it displaced, and the improvement.
type RecordNotice struct {
	ID           string  `json:"id"`
	CircuitID    string  `json:"circuit_id"`
	DriverID     string  `json:"driver_id"`
	DriverName   string  `json:"driver_name"`
	LapNumber    int     `json:"lap_number"`
	LapTime      float64 `json:"lap_time"`
	PreviousBest float64 `json:"previous_best,omitempty"`
	Delta        float64 `json:"delta,omitempty"`
}

// RecordPoll is one response from a RecordSource fetch.
type RecordPoll struct {
	PollNumber     int64         `json:"poll_number"`
	RecordDetected bool          `json:"record_detected"`
	Record         *RecordNotice `json:"record,omitempty"`
}

// RecordWatcher reconciles a remote record feed against what has already been
// announced. It wraps a Poller over a RecordSource and invokes its callback
// once per distinct record id.
type RecordWatcher struct {
	poller *Poller[RecordPoll]
	lastID string
}

// NewRecordWatcher polls source every cfg.RecordDelay for circuitID, calling
// onRecord for each newly detected record. Start/Stop delegate to the
// underlying poller.
func NewRecordWatcher(cfg PollingConfig, source RecordSource, circuitID string, onRecord func(RecordNotice)) *RecordWatcher {
	w := &RecordWatcher{}
	w.poller = NewPoller(
		fmt.Sprintf("records[%s]", circuitID),
		PollerConfig{
			Delay:        cfg.RecordDelay(),
			InitialDelay: cfg.InitialDelay(),
			MaxErrors:    cfg.MaxConsecutiveErrors,
		},
		func() (int64, RecordPoll, error) {
			poll, err := source.FetchRecords(circuitID)
			return poll.PollNumber, poll, err
		},
		func(poll RecordPoll) {
			if !poll.RecordDetected || poll.Record == nil {
				return
			}
			if poll.Record.ID == w.lastID {
				return
			}
			w.lastID = poll.Record.ID
			logrus.Infof("record feed: %s improves to %.3fs on lap %d", poll.Record.DriverName, poll.Record.LapTime, poll.Record.LapNumber)
			onRecord(*poll.Record)
		},
	)
	return w
}

// Start begins polling the record feed.
func (w *RecordWatcher) Start() { w.poller.Start() }

// Stop halts polling. Idempotent.
func (w *RecordWatcher) Stop() { w.poller.Stop() }
