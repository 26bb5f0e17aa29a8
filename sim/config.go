package sim

import (
	"fmt"
	"time"
)

// EngineConfig groups the engine's temporal tunables. All durations are in
// milliseconds so the struct round-trips cleanly through YAML and CLI flags.
type EngineConfig struct {
	// MinLapDelayMs/MaxLapDelayMs bound the uniform delay between a driver's
	// consecutive lap completions.
	MinLapDelayMs int64 `yaml:"min_lap_delay_ms"`
	MaxLapDelayMs int64 `yaml:"max_lap_delay_ms"`
	// StartStaggerMs spaces out the drivers' first laps so the grid does not
	// submit simultaneously (driver index × stagger).
	StartStaggerMs int64 `yaml:"start_stagger_ms"`
	// MaxRetries is the number of re-submissions attempted after a sink
	// failure before the lap is carried locally anyway.
	MaxRetries   int   `yaml:"max_retries"`
	RetryDelayMs int64 `yaml:"retry_delay_ms"`
	// StandingsIntervalMs throttles standings-changed emissions. The final
	// emission at race finish bypasses it.
	StandingsIntervalMs int64 `yaml:"standings_interval_ms"`
	// LapEventIntervalMs throttles new-lap-time emissions per driver.
	// Zero disables lap-event throttling (every accepted lap is emitted).
	LapEventIntervalMs int64 `yaml:"lap_event_interval_ms"`
}

// LapTimeConfig groups the lap-time model parameters.
type LapTimeConfig struct {
	// ExceptionalProbability is the chance a lap beats the circuit average.
	ExceptionalProbability float64 `yaml:"exceptional_probability"`
	// Exceptional laps sample from [ExceptionalMin, ExceptionalMax)·avg,
	// normal laps from [NormalMin, NormalMax)·avg. The bands must sit
	// strictly below and strictly above 1.0 respectively: the record
	// detector relies on exceptional laps being the only ones faster than
	// the circuit average.
	ExceptionalMin float64 `yaml:"exceptional_min"`
	ExceptionalMax float64 `yaml:"exceptional_max"`
	NormalMin      float64 `yaml:"normal_min"`
	NormalMax      float64 `yaml:"normal_max"`
}

// PollingConfig groups the short-polling feed tunables.
type PollingConfig struct {
	RecordDelayMs   int64 `yaml:"record_delay_ms"`
	PositionDelayMs int64 `yaml:"position_delay_ms"`
	IncidentDelayMs int64 `yaml:"incident_delay_ms"`
	// InitialDelayMs postpones the first fetch so a freshly started
	// simulation has data before anything polls it.
	InitialDelayMs int64 `yaml:"initial_delay_ms"`
	// MaxConsecutiveErrors is the failure count at which a poller doubles
	// its interval.
	MaxConsecutiveErrors int `yaml:"max_consecutive_errors"`
}

// IncidentConfig groups synthetic incident generation parameters.
type IncidentConfig struct {
	// Probability of yielding an incident on one generator tick.
	Probability float64 `yaml:"probability"`
	// DriverLinkedProbability is the chance a generated incident is pinned
	// to a specific driver rather than being track-wide.
	DriverLinkedProbability float64 `yaml:"driver_linked_probability"`
}

// Config is the full simulation configuration.
type Config struct {
	Seed     int64          `yaml:"seed"`
	Engine   EngineConfig   `yaml:"engine"`
	LapTime  LapTimeConfig  `yaml:"laptime"`
	Polling  PollingConfig  `yaml:"polling"`
	Incident IncidentConfig `yaml:"incident"`
}

// DefaultConfig returns the tunables the sampled production runs used.
func DefaultConfig() Config {
	return Config{
		Seed: 42,
		Engine: EngineConfig{
			MinLapDelayMs:       5000,
			MaxLapDelayMs:       10000,
			StartStaggerMs:      1000,
			MaxRetries:          3,
			RetryDelayMs:        1000,
			StandingsIntervalMs: 1000,
			LapEventIntervalMs:  0,
		},
		LapTime: LapTimeConfig{
			ExceptionalProbability: 0.05,
			ExceptionalMin:         0.98,
			ExceptionalMax:         0.999,
			NormalMin:              1.001,
			NormalMax:              1.10,
		},
		Polling: PollingConfig{
			RecordDelayMs:        5000,
			PositionDelayMs:      2000,
			IncidentDelayMs:      4000,
			InitialDelayMs:       2000,
			MaxConsecutiveErrors: 3,
		},
		Incident: IncidentConfig{
			Probability:             0.3,
			DriverLinkedProbability: 0.7,
		},
	}
}

// Validate reports the first configuration inconsistency found.
func (c Config) Validate() error {
	e := c.Engine
	if e.MinLapDelayMs <= 0 || e.MaxLapDelayMs <= e.MinLapDelayMs {
		return fmt.Errorf("engine: lap delay range [%d, %d) ms is invalid", e.MinLapDelayMs, e.MaxLapDelayMs)
	}
	if e.StartStaggerMs < 0 {
		return fmt.Errorf("engine: start stagger %d ms must not be negative", e.StartStaggerMs)
	}
	if e.MaxRetries < 0 {
		return fmt.Errorf("engine: max retries %d must not be negative", e.MaxRetries)
	}

	l := c.LapTime
	if l.ExceptionalProbability < 0 || l.ExceptionalProbability > 1 {
		return fmt.Errorf("laptime: exceptional probability %v outside [0, 1]", l.ExceptionalProbability)
	}
	if l.ExceptionalMin >= l.ExceptionalMax || l.ExceptionalMax >= 1 {
		return fmt.Errorf("laptime: exceptional band [%v, %v) must sit strictly below 1.0", l.ExceptionalMin, l.ExceptionalMax)
	}
	if l.NormalMin <= 1 || l.NormalMin >= l.NormalMax {
		return fmt.Errorf("laptime: normal band [%v, %v) must sit strictly above 1.0", l.NormalMin, l.NormalMax)
	}

	p := c.Polling
	if p.RecordDelayMs <= 0 || p.PositionDelayMs <= 0 || p.IncidentDelayMs <= 0 {
		return fmt.Errorf("polling: delays must be positive")
	}
	if p.MaxConsecutiveErrors <= 0 {
		return fmt.Errorf("polling: max consecutive errors %d must be positive", p.MaxConsecutiveErrors)
	}

	i := c.Incident
	if i.Probability < 0 || i.Probability > 1 {
		return fmt.Errorf("incident: probability %v outside [0, 1]", i.Probability)
	}
	if i.DriverLinkedProbability < 0 || i.DriverLinkedProbability > 1 {
		return fmt.Errorf("incident: driver-linked probability %v outside [0, 1]", i.DriverLinkedProbability)
	}
	return nil
}

// Duration helpers so components never multiply milliseconds by hand.

func (e EngineConfig) MinLapDelay() time.Duration  { return time.Duration(e.MinLapDelayMs) * time.Millisecond }
func (e EngineConfig) MaxLapDelay() time.Duration  { return time.Duration(e.MaxLapDelayMs) * time.Millisecond }
func (e EngineConfig) StartStagger() time.Duration { return time.Duration(e.StartStaggerMs) * time.Millisecond }
func (e EngineConfig) RetryDelay() time.Duration   { return time.Duration(e.RetryDelayMs) * time.Millisecond }
func (e EngineConfig) StandingsInterval() time.Duration {
	return time.Duration(e.StandingsIntervalMs) * time.Millisecond
}
func (e EngineConfig) LapEventInterval() time.Duration {
	return time.Duration(e.LapEventIntervalMs) * time.Millisecond
}

func (p PollingConfig) RecordDelay() time.Duration {
	return time.Duration(p.RecordDelayMs) * time.Millisecond
}
func (p PollingConfig) PositionDelay() time.Duration {
	return time.Duration(p.PositionDelayMs) * time.Millisecond
}
func (p PollingConfig) IncidentDelay() time.Duration {
	return time.Duration(p.IncidentDelayMs) * time.Millisecond
}
func (p PollingConfig) InitialDelay() time.Duration {
	return time.Duration(p.InitialDelayMs) * time.Millisecond
}
