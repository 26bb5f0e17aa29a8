package sim

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// incidentDescriptions holds the per-type description pools the synthetic
// source draws from.
var incidentDescriptions = map[IncidentType][]string{
	IncidentYellowFlag: {
		"Car off track at turn 3",
		"Spin at the chicane",
		"Slow car on the racing line",
	},
	IncidentRedFlag: {
		"Heavy crash on the main straight",
		"Extreme weather conditions",
		"Track blocked by multiple cars",
	},
	IncidentDebris: {
		"Debris on the main straight",
		"Front wing pieces on the racing line",
		"Loose tire in the braking zone",
	},
	IncidentCollision: {
		"Contact between two cars",
		"Car into the barriers",
		"Car rolled after contact",
	},
	IncidentMechanical: {
		"Engine failure, oil on track",
		"Tire blowout",
		"Brake failure, car off track",
	},
}

var incidentTypes = []IncidentType{
	IncidentYellowFlag,
	IncidentRedFlag,
	IncidentDebris,
	IncidentCollision,
	IncidentMechanical,
}

// trackWideTypes never carry a driver id regardless of the draw.
var trackWideTypes = map[IncidentType]bool{
	IncidentDebris: true,
}

// SyntheticIncidentSource fabricates incidents locally when no real incident
// feed exists. Each fetch is one tick: with the configured probability it
// yields exactly one new incident; otherwise nothing changes and the poll
// number stays put, so consumers gated on it see no update.
type SyntheticIncidentSource struct {
	cfg     IncidentConfig
	rng     *rand.Rand
	drivers []Driver

	mu         sync.Mutex
	pollNumber int64
	incidents  []Incident
}

// NewSyntheticIncidentSource builds a source that may pin incidents to the
// given drivers.
func NewSyntheticIncidentSource(cfg IncidentConfig, rng *rand.Rand, drivers []Driver) *SyntheticIncidentSource {
	return &SyntheticIncidentSource{cfg: cfg, rng: rng, drivers: drivers}
}

// FetchIncidents rolls the incident dice once and returns the full incident
// history with the current poll number.
func (s *SyntheticIncidentSource) FetchIncidents(circuitID string) (int64, []Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if Chance(s.rng, s.cfg.Probability) {
		inc := s.generate(circuitID)
		s.incidents = append(s.incidents, inc)
		s.pollNumber++
		logrus.Debugf("incidents: synthesized %s (%s)", inc.Type, inc.ID)
	}

	out := make([]Incident, len(s.incidents))
	copy(out, s.incidents)
	return s.pollNumber, out, nil
}

func (s *SyntheticIncidentSource) generate(circuitID string) Incident {
	typ := incidentTypes[s.rng.Intn(len(incidentTypes))]
	pool := incidentDescriptions[typ]

	inc := Incident{
		ID:          uuid.NewString(),
		CircuitID:   circuitID,
		Type:        typ,
		Description: pool[s.rng.Intn(len(pool))],
		Status:      IncidentActive,
		CreatedAt:   time.Now(),
	}
	if !trackWideTypes[typ] && len(s.drivers) > 0 && Chance(s.rng, s.cfg.DriverLinkedProbability) {
		inc.DriverID = s.drivers[s.rng.Intn(len(s.drivers))].ID
	}
	return inc
}

// === IncidentMonitor ===

// raceHolder is the slice of the engine the monitor needs: halt the race for
// an incident and allow it again once cleared.
type raceHolder interface {
	Hold(incidentID string)
	Release()
}

// IncidentMonitor polls an IncidentSource and enforces the incident rules:
// an incident id is never announced twice, and at most one incident occupies
// the active slot. While the slot is occupied the race engine is held
// stopped; further detections are suppressed (counted, logged, never
// surfaced) until the operator clears the active incident.
type IncidentMonitor struct {
	poller  *Poller[[]Incident]
	engine  raceHolder
	metrics *Metrics

	mu       sync.Mutex
	notified map[string]struct{}
	active   *Incident

	onIncident func(Incident)
}

// NewIncidentMonitor wires a monitor over source for circuitID. onIncident
// fires once per newly activated incident; engine and metrics may be nil.
func NewIncidentMonitor(cfg PollingConfig, source IncidentSource, circuitID string, engine raceHolder, metrics *Metrics, onIncident func(Incident)) *IncidentMonitor {
	m := &IncidentMonitor{
		engine:     engine,
		metrics:    metrics,
		notified:   make(map[string]struct{}),
		onIncident: onIncident,
	}
	m.poller = NewPoller(
		fmt.Sprintf("incidents[%s]", circuitID),
		PollerConfig{
			Delay:        cfg.IncidentDelay(),
			InitialDelay: cfg.InitialDelay(),
			MaxErrors:    cfg.MaxConsecutiveErrors,
		},
		func() (int64, []Incident, error) {
			return source.FetchIncidents(circuitID)
		},
		m.handle,
	)
	return m
}

// Start begins watching the incident feed.
func (m *IncidentMonitor) Start() { m.poller.Start() }

// Stop halts watching. Idempotent. The active slot survives a stop.
func (m *IncidentMonitor) Stop() { m.poller.Stop() }

// Active returns the incident currently occupying the active slot, or nil.
func (m *IncidentMonitor) Active() *Incident {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	inc := *m.active
	return &inc
}

// Clear empties the active slot and releases the engine hold. Already
// notified incident ids stay notified. No-op when nothing is active.
func (m *IncidentMonitor) Clear() {
	m.mu.Lock()
	if m.active == nil {
		m.mu.Unlock()
		return
	}
	id := m.active.ID
	m.active.Status = IncidentCleared
	m.active = nil
	m.mu.Unlock()

	logrus.Infof("incidents: %s cleared", id)
	if m.engine != nil {
		m.engine.Release()
	}
}

// handle processes one feed update.
func (m *IncidentMonitor) handle(incidents []Incident) {
	for _, inc := range incidents {
		m.mu.Lock()
		if _, seen := m.notified[inc.ID]; seen {
			m.mu.Unlock()
			continue
		}
		m.notified[inc.ID] = struct{}{}

		if m.active != nil {
			m.mu.Unlock()
			if m.metrics != nil {
				m.metrics.AddSuppressedIncident()
			}
			logrus.Warnf("incidents: %s detected while %s still active, suppressed", inc.ID, m.activeID())
			continue
		}
		activated := inc
		m.active = &activated
		m.mu.Unlock()

		if m.metrics != nil {
			m.metrics.AddIncident()
		}
		logrus.Warnf("incidents: %s on track (%s: %s)", inc.Type, inc.ID, inc.Description)
		if m.engine != nil {
			m.engine.Hold(inc.ID)
		}
		if m.onIncident != nil {
			m.onIncident(inc)
		}
	}
}

func (m *IncidentMonitor) activeID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ""
	}
	return m.active.ID
}
