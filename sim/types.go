package sim

import "time"

// Circuit describes the track a race is simulated on. It is read-only input
// to the engine and must not change for the duration of a run.
type Circuit struct {
	ID      string  `yaml:"id" json:"id"`
	Name    string  `yaml:"name" json:"name"`
	Country string  `yaml:"country" json:"country"`
	// MaxLaps is the lap target for the race. Zero means unbounded: the
	// simulation keeps producing laps until stopped.
	MaxLaps int `yaml:"max_laps" json:"max_laps"`
	// AvgLapTime is the reference lap duration in seconds. Every generated
	// lap time is sampled relative to it.
	AvgLapTime float64 `yaml:"avg_lap_time" json:"avg_lap_time"`
}

// Driver describes one race participant. The driver set for a run is fixed
// at Start and never mutated mid-run.
type Driver struct {
	ID        string `yaml:"id" json:"id"`
	Name      string `yaml:"name" json:"name"`
	Team      string `yaml:"team" json:"team"`
	CarNumber int    `yaml:"car_number" json:"car_number"`
}

// LapTime is one completed lap by one driver. Immutable once created.
// ID is assigned by the sink that accepted the lap.
type LapTime struct {
	ID         string    `json:"id,omitempty"`
	DriverID   string    `json:"driver_id"`
	LapNumber  int       `json:"lap_number"`
	Seconds    float64   `json:"time"`
	RecordedAt time.Time `json:"recorded_at,omitempty"`
}

// RaceResult is produced exactly once per run, when the first driver reaches
// the circuit's lap target. Immutable after creation.
type RaceResult struct {
	WinnerID    string `json:"winner_id"`
	WinnerName  string `json:"winner_name"`
	TotalLaps   int    `json:"total_laps"`
	DriverCount int    `json:"driver_count"`
}

// StandingsEntry is one row of the ranked driver classification at a point
// in time. Position is 1-based and contiguous across a snapshot.
type StandingsEntry struct {
	DriverID string  `json:"driver_id"`
	Name     string  `json:"name"`
	Team     string  `json:"team"`
	Position int     `json:"position"`
	Laps     int     `json:"laps"`
	BestTime float64 `json:"best_time"` // 0 until the driver records a lap
	LastTime float64 `json:"last_time"` // 0 until the driver records a lap
	Finished bool    `json:"finished"`
}

// IncidentType classifies a race incident.
type IncidentType string

const (
	IncidentYellowFlag IncidentType = "YELLOW_FLAG"
	IncidentRedFlag    IncidentType = "RED_FLAG"
	IncidentDebris     IncidentType = "DEBRIS"
	IncidentCollision  IncidentType = "COLLISION"
	IncidentMechanical IncidentType = "MECHANICAL_FAILURE"
)

// IncidentStatus is the lifecycle state of an incident.
type IncidentStatus string

const (
	IncidentActive  IncidentStatus = "ACTIVE"
	IncidentCleared IncidentStatus = "CLEARED"
)

// Incident is a race-stopping event, either track-wide or attached to a
// single driver.
type Incident struct {
	ID          string         `json:"id"`
	CircuitID   string         `json:"circuit_id"`
	Type        IncidentType   `json:"type"`
	Description string         `json:"description"`
	// DriverID is empty for track-wide incidents (debris, weather).
	DriverID  string         `json:"driver_id,omitempty"`
	Status    IncidentStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

// DriverState is the engine's mutable per-driver race state. It is created at
// Start, destroyed at Stop, and owned exclusively by the engine: no other
// component may mutate it.
type DriverState struct {
	Driver   Driver
	Laps     int     // monotonically non-decreasing
	BestTime float64 // 0 = no lap recorded yet
	LastTime float64 // 0 = no lap recorded yet
	Position int     // 1-based rank from the last standings computation
	Finished bool    // monotonic false → true
}
