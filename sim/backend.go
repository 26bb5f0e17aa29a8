package sim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// The engine and the polling feeds treat the backend as a handful of narrow
// capabilities. Two families implement them: MemoryBackend (synthetic, no
// server required) and HTTPBackend (REST). The engine never knows which one
// is wired in.

// LapTimeSink accepts one completed lap for persistence. Submit models an
// asynchronous remote call: it may be slow and it may fail.
type LapTimeSink interface {
	SubmitLapTime(ctx context.Context, circuitID string, lap LapTime) (LapTime, error)
}

// PositionSink accepts one driver's current race position.
type PositionSink interface {
	SubmitPosition(ctx context.Context, circuitID, driverID string, position int) error
}

// PositionSource is polled for the externally synchronized position feed.
type PositionSource interface {
	FetchPositions(circuitID string) (PositionPoll, error)
}

// RecordSource is polled for the lap-record feed.
type RecordSource interface {
	FetchRecords(circuitID string) (RecordPoll, error)
}

// IncidentSource is polled for new incidents. Implementations return every
// incident they currently know; consumers de-duplicate by incident id.
type IncidentSource interface {
	FetchIncidents(circuitID string) (pollNumber int64, incidents []Incident, err error)
}

// === MemoryBackend ===

// MemoryBackend is the synthetic, in-process backend: it stores everything
// it is given and derives its feeds from the submitted data, so a simulation
// run is fully self-consistent with no server at all.
type MemoryBackend struct {
	mu      sync.Mutex
	circuit Circuit

	laps      []LapTime
	positions map[string]int
	posPoll   int64

	trackBest  float64
	personal   map[string]float64
	lastRecord *RecordNotice
	recPoll    int64

	incidents []Incident
	incPoll   int64

	driverNames map[string]string
}

// NewMemoryBackend builds a backend scoped to one circuit. Driver names are
// only used to label record notices.
func NewMemoryBackend(circuit Circuit, drivers []Driver) *MemoryBackend {
	names := make(map[string]string, len(drivers))
	for _, d := range drivers {
		names[d.ID] = d.Name
	}
	return &MemoryBackend{
		circuit:     circuit,
		positions:   make(map[string]int),
		personal:    make(map[string]float64),
		driverNames: names,
	}
}

// SubmitLapTime stores the lap, assigns it an id, and feeds the derived
// record stream: a lap faster than both the circuit average and the stored
// track best becomes the next record notice.
func (b *MemoryBackend) SubmitLapTime(_ context.Context, circuitID string, lap LapTime) (LapTime, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	lap.ID = uuid.NewString()
	lap.RecordedAt = time.Now()
	b.laps = append(b.laps, lap)

	if lap.Seconds < b.circuit.AvgLapTime && (b.trackBest == 0 || lap.Seconds < b.trackBest) {
		prev := b.trackBest
		b.trackBest = lap.Seconds
		b.lastRecord = &RecordNotice{
			ID:           uuid.NewString(),
			CircuitID:    circuitID,
			DriverID:     lap.DriverID,
			DriverName:   b.driverNames[lap.DriverID],
			LapNumber:    lap.LapNumber,
			LapTime:      lap.Seconds,
			PreviousBest: prev,
		}
		if prev > 0 {
			b.lastRecord.Delta = roundMillis(prev - lap.Seconds)
		}
		b.recPoll++
	}
	if prev, ok := b.personal[lap.DriverID]; !ok || lap.Seconds < prev {
		b.personal[lap.DriverID] = lap.Seconds
	}
	return lap, nil
}

// LapCount returns how many laps have been accepted so far.
func (b *MemoryBackend) LapCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.laps)
}

// SubmitPosition records a driver's position; the feed's poll number only
// advances when a position actually changes.
func (b *MemoryBackend) SubmitPosition(_ context.Context, _ string, driverID string, position int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.positions[driverID] != position {
		b.positions[driverID] = position
		b.posPoll++
	}
	return nil
}

// FetchPositions returns the current position snapshot.
func (b *MemoryBackend) FetchPositions(_ string) (PositionPoll, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	poll := PositionPoll{PollNumber: b.posPoll}
	for id, pos := range b.positions {
		poll.Positions = append(poll.Positions, DriverPosition{DriverID: id, Position: pos})
	}
	return poll, nil
}

// FetchRecords returns the latest derived record notice, if any.
func (b *MemoryBackend) FetchRecords(_ string) (RecordPoll, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	poll := RecordPoll{PollNumber: b.recPoll}
	if b.lastRecord != nil {
		poll.RecordDetected = true
		rec := *b.lastRecord
		poll.Record = &rec
	}
	return poll, nil
}

// AddIncident appends an incident to the feed.
func (b *MemoryBackend) AddIncident(inc Incident) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.incidents = append(b.incidents, inc)
	b.incPoll++
}

// FetchIncidents returns every incident seen so far.
func (b *MemoryBackend) FetchIncidents(_ string) (int64, []Incident, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Incident, len(b.incidents))
	copy(out, b.incidents)
	return b.incPoll, out, nil
}

// === HTTPBackend ===

// HTTPBackend implements the backend capabilities against a REST server.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBackend builds a REST-backed implementation rooted at baseURL
// (e.g. "http://localhost:3000/api"). A nil client gets a 10s-timeout default.
func NewHTTPBackend(baseURL string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPBackend{baseURL: baseURL, client: client}
}

// incidentPoll is the wire shape of the incident feed.
type incidentPoll struct {
	PollNumber int64      `json:"poll_number"`
	Incidents  []Incident `json:"incidents"`
}

// SubmitLapTime POSTs the lap and returns the stored record (with server id).
func (b *HTTPBackend) SubmitLapTime(ctx context.Context, circuitID string, lap LapTime) (LapTime, error) {
	var stored LapTime
	url := fmt.Sprintf("%s/circuits/%s/laptimes", b.baseURL, circuitID)
	if err := b.do(ctx, http.MethodPost, url, lap, &stored); err != nil {
		return LapTime{}, fmt.Errorf("submit lap time: %w", err)
	}
	return stored, nil
}

// SubmitPosition PUTs one driver's position.
func (b *HTTPBackend) SubmitPosition(ctx context.Context, circuitID, driverID string, position int) error {
	url := fmt.Sprintf("%s/circuits/%s/positions/%s", b.baseURL, circuitID, driverID)
	body := struct {
		Position int `json:"position"`
	}{Position: position}
	if err := b.do(ctx, http.MethodPut, url, body, nil); err != nil {
		return fmt.Errorf("submit position: %w", err)
	}
	return nil
}

// FetchPositions GETs the position feed.
func (b *HTTPBackend) FetchPositions(circuitID string) (PositionPoll, error) {
	var poll PositionPoll
	url := fmt.Sprintf("%s/circuits/%s/positions", b.baseURL, circuitID)
	if err := b.do(context.Background(), http.MethodGet, url, nil, &poll); err != nil {
		return PositionPoll{}, fmt.Errorf("fetch positions: %w", err)
	}
	return poll, nil
}

// FetchRecords GETs the record feed.
func (b *HTTPBackend) FetchRecords(circuitID string) (RecordPoll, error) {
	var poll RecordPoll
	url := fmt.Sprintf("%s/circuits/%s/records", b.baseURL, circuitID)
	if err := b.do(context.Background(), http.MethodGet, url, nil, &poll); err != nil {
		return RecordPoll{}, fmt.Errorf("fetch records: %w", err)
	}
	return poll, nil
}

// FetchIncidents GETs the incident feed.
func (b *HTTPBackend) FetchIncidents(circuitID string) (int64, []Incident, error) {
	var poll incidentPoll
	url := fmt.Sprintf("%s/circuits/%s/incidents", b.baseURL, circuitID)
	if err := b.do(context.Background(), http.MethodGet, url, nil, &poll); err != nil {
		return 0, nil, fmt.Errorf("fetch incidents: %w", err)
	}
	return poll.PollNumber, poll.Incidents, nil
}

// do issues one JSON request and decodes the response into out (when non-nil).
func (b *HTTPBackend) do(ctx context.Context, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: unexpected status %d", method, url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
