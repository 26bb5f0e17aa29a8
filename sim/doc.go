// Package sim provides the race simulation engine and its companion feeds.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - types.go: Circuit, Driver, lap records, standings and incident values
//   - engine.go: The engine state machine (Idle → Running → Finished/Stopped)
//   - clock.go: Per-driver one-shot lap timers
//
// # Architecture
//
// The engine owns all per-driver race state and drives it from per-driver
// timers: each fired timer produces one lap time (laptime.go), submits it to
// the configured LapTimeSink (backend.go), reclassifies records (records.go)
// and recomputes standings (standings.go). Everything the engine learns flows
// upward through a small EventSink of named callbacks; nothing in this package
// renders or persists anything itself.
//
// Alongside the engine run the short-polling feeds built on the generic
// Poller (polling.go): a record watcher, a position feed and the incident
// monitor (incidents.go). The incident monitor enforces the
// at-most-one-active-incident rule and halts the engine while an incident
// is on track.
//
// # Key Interfaces
//
// The extension points are small interfaces over the external backend:
//   - LapTimeSink: persist one completed lap
//   - PositionSink / PositionSource: publish and poll the position feed
//   - RecordSource: poll the lap-record feed
//   - IncidentSource: poll for new incidents
//
// Synthetic in-memory implementations (MemoryBackend, SyntheticIncidentSource)
// make the whole simulation runnable with no server at all; HTTP
// implementations talk to a REST backend with the same shapes.
package sim
