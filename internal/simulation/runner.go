package simulation

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvandessel/simreplay/internal/constants"
	"github.com/nvandessel/simreplay/internal/engine"
	"github.com/nvandessel/simreplay/internal/logging"
	"github.com/nvandessel/simreplay/internal/scenario"
	"github.com/nvandessel/simreplay/internal/session"
	"github.com/nvandessel/simreplay/internal/store"
)

// Runner orchestrates replay experiments against the real kinematic engine
// and run store.
type Runner struct {
	t       *testing.T
	dir     string
	store   *store.SQLiteRunStore
	Timeout time.Duration
}

// NewRunner creates a simulation runner with an isolated SQLite store
// and sandboxed HOME directory.
func NewRunner(t *testing.T) *Runner {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	s, err := store.NewSQLiteRunStore(filepath.Join(tmpDir, "runs.db"))
	if err != nil {
		t.Fatalf("NewRunner: failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return &Runner{t: t, dir: tmpDir, store: s, Timeout: 30 * time.Second}
}

// Run writes the scenario to disk and replays the selected agent through a
// session, which builds the engine and saves the report. Replay failures
// are returned in the result, not reported as test failures.
func (r *Runner) Run(scn Scenario) Result {
	r.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()

	horizon := scn.Horizon
	if horizon == 0 {
		horizon = constants.DefaultHorizon
	}
	dt := scn.Timestep
	if dt == 0 {
		dt = constants.DefaultTimestep
	}
	worlds := scn.Worlds
	if worlds == 0 {
		worlds = 1
	}

	// Phase 1: Write the log where the engine will look for it.
	dataDir := filepath.Join(r.dir, "data", scn.Name)
	log := scenario.Build(scn.Name, horizon, dt, scn.Tracks...)
	if scn.Perturb != nil {
		scn.Perturb(log)
	}
	if err := scenario.Write(filepath.Join(dataDir, scn.Name+".json"), log); err != nil {
		r.t.Fatalf("Run: writing scenario %s: %v", scn.Name, err)
	}

	// Phase 2: Configure the engine.
	cfg := engine.DefaultConfig()
	cfg.DataPath = dataDir
	cfg.Horizon = horizon
	cfg.NumWorlds = worlds
	if scn.Configure != nil {
		scn.Configure(&cfg)
	}

	// Phase 3: Replay with tracing and persist the report.
	tl := logging.NewTraceLogger(filepath.Join(r.dir, "trace"), "trace")
	defer tl.Close()

	out, err := session.Run(ctx, session.Options{
		Engine:     cfg,
		World:      scn.World,
		Agent:      scn.Agent,
		Tolerances: scn.Tolerances,
		Logger:     logging.NewLogger("info", io.Discard),
		Trace:      tl,
		Store:      r.store,
	})
	if err != nil {
		r.t.Fatalf("Run: %v", err)
	}

	return Result{
		Replay:    out.Result,
		Err:       out.Err,
		Report:    out.Report,
		Store:     r.store,
		TracePath: out.TracePath,
	}
}
