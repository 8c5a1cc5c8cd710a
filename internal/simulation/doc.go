// Package simulation provides an end-to-end test harness for replaying
// synthetic driving logs through the kinematic engine.
//
// The harness exercises the real scenario files, kinematic Engine, replay
// Driver, SQLiteRunStore and TraceLogger, with no mocks. Scenarios are Go
// builders listing agent tracks; the runner writes them to disk, loads
// them the way the CLI does, replays one agent and persists the report.
//
// Each test gets an isolated data directory and SQLite database via
// t.TempDir() and a sandboxed HOME to prevent touching user data.
//
// Usage:
//
//	func TestArcReplay(t *testing.T) {
//	    r := simulation.NewRunner(t)
//	    result := r.Run(simulation.Scenario{
//	        Name:   "arc",
//	        Tracks: []scenario.Track{{ID: 0, Speed: 8, YawRate: 0.2}},
//	    })
//	    simulation.AssertConsistent(t, result)
//	    simulation.AssertSteps(t, result, 90)
//	}
package simulation
