// Tracks run-wide counters for final reporting.

package sim

import (
	"fmt"
	"sync"
)

// Metrics aggregates statistics about one simulation run. Counters are
// incremented from timer and poller goroutines, so access is locked.
type Metrics struct {
	mu sync.Mutex

	lapsRecorded        int // laps accepted by the sink
	submitFailures      int // laps carried locally after retries ran out
	retriesPerformed    int // individual re-submission attempts
	trackRecords        int
	personalRecords     int
	incidentsRaised     int
	incidentsSuppressed int // detected while another incident was active
}

// NewMetrics returns zeroed metrics.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) AddLap()                { m.mu.Lock(); m.lapsRecorded++; m.mu.Unlock() }
func (m *Metrics) AddSubmitFailure()      { m.mu.Lock(); m.submitFailures++; m.mu.Unlock() }
func (m *Metrics) AddRetry()              { m.mu.Lock(); m.retriesPerformed++; m.mu.Unlock() }
func (m *Metrics) AddTrackRecord()        { m.mu.Lock(); m.trackRecords++; m.mu.Unlock() }
func (m *Metrics) AddPersonalRecord()     { m.mu.Lock(); m.personalRecords++; m.mu.Unlock() }
func (m *Metrics) AddIncident()           { m.mu.Lock(); m.incidentsRaised++; m.mu.Unlock() }
func (m *Metrics) AddSuppressedIncident() { m.mu.Lock(); m.incidentsSuppressed++; m.mu.Unlock() }

// LapsRecorded returns the number of laps accepted so far.
func (m *Metrics) LapsRecorded() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lapsRecorded
}

// Print displays aggregated metrics at the end of the run, alongside the
// final classification.
func (m *Metrics) Print(standings []StandingsEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fmt.Println("=== Race Metrics ===")
	fmt.Printf("Laps recorded        : %d\n", m.lapsRecorded)
	fmt.Printf("Submit failures      : %d (retries performed: %d)\n", m.submitFailures, m.retriesPerformed)
	fmt.Printf("Track records        : %d\n", m.trackRecords)
	fmt.Printf("Personal records     : %d\n", m.personalRecords)
	fmt.Printf("Incidents            : %d raised, %d suppressed\n", m.incidentsRaised, m.incidentsSuppressed)

	if len(standings) == 0 {
		return
	}
	fmt.Println("=== Final Classification ===")
	for _, e := range standings {
		best := "--"
		if e.BestTime > 0 {
			best = fmt.Sprintf("%.3fs", e.BestTime)
		}
		fmt.Printf("P%-2d %-20s %-12s laps=%-3d best=%s\n", e.Position, e.Name, e.Team, e.Laps, best)
	}
}
