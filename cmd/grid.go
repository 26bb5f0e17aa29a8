package cmd

import (
	"fmt"

	"github.com/race-sim/race-sim/sim"
)

// sampleGrid is the demo roster used when no driver source is wired in.
var sampleGrid = []sim.Driver{
	{ID: "d-01", Name: "Max Verstappen", Team: "Red Bull", CarNumber: 1},
	{ID: "d-02", Name: "Lewis Hamilton", Team: "Ferrari", CarNumber: 44},
	{ID: "d-03", Name: "Charles Leclerc", Team: "Ferrari", CarNumber: 16},
	{ID: "d-04", Name: "Lando Norris", Team: "McLaren", CarNumber: 4},
	{ID: "d-05", Name: "Carlos Sainz", Team: "Williams", CarNumber: 55},
	{ID: "d-06", Name: "Fernando Alonso", Team: "Aston Martin", CarNumber: 14},
}

// SampleGrid returns the first n drivers of the sample roster.
func SampleGrid(n int) ([]sim.Driver, error) {
	if n <= 0 || n > len(sampleGrid) {
		return nil, fmt.Errorf("driver count must be in [1, %d], got %d", len(sampleGrid), n)
	}
	grid := make([]sim.Driver, n)
	copy(grid, sampleGrid)
	return grid, nil
}
