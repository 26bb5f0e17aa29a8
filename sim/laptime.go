package sim

import (
	"math"
	"math/rand"
)

// LapTimeModel generates plausible lap times relative to a circuit's average
// lap duration. With ExceptionalProbability a lap samples from the band just
// below the average; otherwise from the wider band just above it. The bands
// exclude 1.0·avg on both sides, so an exceptional lap is always strictly
// faster than the average and a normal lap strictly slower. The record
// detector leans on that: "faster than average" is exactly the set of laps
// the model marked exceptional.
type LapTimeModel struct {
	cfg LapTimeConfig
	rng *rand.Rand
}

// NewLapTimeModel builds a model drawing from rng with the given band config.
func NewLapTimeModel(cfg LapTimeConfig, rng *rand.Rand) *LapTimeModel {
	return &LapTimeModel{cfg: cfg, rng: rng}
}

// NextLapTime samples one lap time for a circuit with the given average lap
// duration (seconds). The result is truncated to millisecond precision.
func (m *LapTimeModel) NextLapTime(avgLapTime float64) float64 {
	var lo, hi float64
	if Chance(m.rng, m.cfg.ExceptionalProbability) {
		lo, hi = m.cfg.ExceptionalMin, m.cfg.ExceptionalMax
	} else {
		lo, hi = m.cfg.NormalMin, m.cfg.NormalMax
	}
	t := FloatInRange(m.rng, lo*avgLapTime, hi*avgLapTime)
	return roundMillis(t)
}

// roundMillis truncates a seconds value to 3 decimal places.
func roundMillis(t float64) float64 {
	return math.Round(t*1000) / 1000
}
