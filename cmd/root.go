package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/race-sim/race-sim/sim"
)

var (
	// CLI flags for the simulation run
	seed       int64  // Seed for all random generation
	logLevel   string // Log verbosity level
	configPath string // Optional YAML config overriding the default tunables

	// Circuit shape
	circuitID   string  // Circuit identifier
	circuitName string  // Circuit display name
	country     string  // Circuit country
	maxLaps     int     // Lap target (0 = unbounded)
	avgLapTime  float64 // Average lap duration in seconds

	// Grid and backend
	driverCount int    // Number of drivers from the sample grid
	backendURL  string // REST backend base URL; empty = synthetic in-memory backend
	noIncidents bool   // Disable the incident monitor
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "race-sim",
	Short: "Event-driven simulator for multi-driver races",
}

// runCmd executes one simulated race using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a race simulation",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg.Seed = seed
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}

		circuit := sim.Circuit{
			ID:         circuitID,
			Name:       circuitName,
			Country:    country,
			MaxLaps:    maxLaps,
			AvgLapTime: avgLapTime,
		}
		drivers, err := SampleGrid(driverCount)
		if err != nil {
			return err
		}

		logrus.Infof("Starting race on %s: %d drivers, %d laps, seed=%d", circuit.Name, len(drivers), circuit.MaxLaps, cfg.Seed)
		return runRace(cfg, circuit, drivers)
	},
}

// runRace wires the engine and its companion feeds and blocks until the race
// finishes, an incident halts it, or the process is signalled.
func runRace(cfg sim.Config, circuit sim.Circuit, drivers []sim.Driver) error {
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed))
	metrics := sim.NewMetrics()

	// Backend selection: a REST server when one is given, otherwise the
	// self-consistent in-memory backend.
	var (
		lapSink sim.LapTimeSink
		posSink sim.PositionSink
		records sim.RecordSource
		incSrc  sim.IncidentSource
	)
	if backendURL != "" {
		backend := sim.NewHTTPBackend(backendURL, nil)
		lapSink, posSink, records, incSrc = backend, backend, backend, backend
	} else {
		backend := sim.NewMemoryBackend(circuit, drivers)
		lapSink, posSink, records = backend, backend, backend
		incSrc = sim.NewSyntheticIncidentSource(cfg.Incident, rng.ForSubsystem(sim.SubsystemIncident), drivers)
	}

	engine := sim.NewEngine(cfg.Engine, cfg.LapTime, rng, lapSink, metrics)
	broadcaster := sim.NewPositionBroadcaster(posSink, circuit.ID)

	finished := make(chan sim.RaceResult, 1)
	incidents := make(chan sim.Incident, 1)

	watcher := sim.NewRecordWatcher(cfg.Polling, records, circuit.ID, func(rec sim.RecordNotice) {
		logrus.Warnf("NEW RECORD: %s in %.3fs (lap %d)", rec.DriverName, rec.LapTime, rec.LapNumber)
	})
	monitor := sim.NewIncidentMonitor(cfg.Polling, incSrc, circuit.ID, engine, metrics, func(inc sim.Incident) {
		select {
		case incidents <- inc:
		default:
		}
	})

	err := engine.Start(circuit, drivers, sim.EventSink{
		OnLapTime: func(lap sim.LapTime) {
			logrus.Infof("lap: driver %s completed lap %d in %.3fs", lap.DriverID, lap.LapNumber, lap.Seconds)
		},
		OnStandings: broadcaster.Publish,
		OnRaceFinished: func(r sim.RaceResult) {
			select {
			case finished <- r:
			default:
			}
		},
	})
	if err != nil {
		return err
	}
	watcher.Start()
	if !noIncidents {
		monitor.Start()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case result := <-finished:
			fmt.Printf("\n%s wins after %d laps (%d drivers)\n\n", result.WinnerName, result.TotalLaps, result.DriverCount)
			return nil
		case inc := <-incidents:
			fmt.Printf("\nRace halted: %s - %s\n\n", inc.Type, inc.Description)
			return nil
		case <-ctx.Done():
			logrus.Info("Interrupted, stopping simulation")
			return nil
		}
	})
	waitErr := g.Wait()

	monitor.Stop()
	watcher.Stop()
	engine.Stop()
	metrics.Print(engine.Standings())
	return waitErr
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for all random generation")
	runCmd.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().StringVar(&configPath, "config", "", "YAML config file overriding the default tunables")

	// Circuit configs
	runCmd.Flags().StringVar(&circuitID, "circuit-id", "monza", "Circuit identifier")
	runCmd.Flags().StringVar(&circuitName, "circuit-name", "Autodromo Nazionale Monza", "Circuit display name")
	runCmd.Flags().StringVar(&country, "country", "Italy", "Circuit country")
	runCmd.Flags().IntVar(&maxLaps, "max-laps", 10, "Lap target; 0 keeps simulating until interrupted")
	runCmd.Flags().Float64Var(&avgLapTime, "avg-lap-time", 90, "Average lap duration in seconds")

	// Grid and backend configs
	runCmd.Flags().IntVar(&driverCount, "drivers", 6, "Number of drivers from the sample grid")
	runCmd.Flags().StringVar(&backendURL, "backend-url", "", "REST backend base URL (empty = in-memory backend)")
	runCmd.Flags().BoolVar(&noIncidents, "no-incidents", false, "Disable the incident monitor")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
