package mcp

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/simreplay/internal/config"
	"github.com/nvandessel/simreplay/internal/constants"
	"github.com/nvandessel/simreplay/internal/export"
	"github.com/nvandessel/simreplay/internal/scenario"
	"github.com/nvandessel/simreplay/internal/store"
)

// setupTestServer returns a server with an in-memory run store, HOME
// isolated to a temp directory and one straight-line scenario in the data
// directory.
func setupTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", filepath.Join(tmpDir, "home"))

	dataDir := filepath.Join(tmpDir, "data")
	writeTestScenario(t, dataDir, "straight", false)

	app := config.Default()
	app.Engine.DataPath = dataDir
	app.Store.Backend = constants.BackendMemory

	server, err := NewServer(&Config{Name: "test-server", Version: "v1.0.0", App: app})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	return server, dataDir
}

func writeTestScenario(t *testing.T, dir, name string, perturb bool) string {
	t.Helper()
	s := scenario.Build(name, constants.DefaultHorizon, 0.1, scenario.Track{Start: [2]float64{1, 2}, Speed: 6})
	if perturb {
		s.Agents[0].Velocities[3][1] += 1
	}
	path := filepath.Join(dir, name+".json")
	if err := scenario.Write(path, s); err != nil {
		t.Fatalf("writing scenario: %v", err)
	}
	return path
}

func TestHandleReplayRun(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	result, out, err := server.handleReplayRun(ctx, nil, ReplayRunInput{})
	if err != nil {
		t.Fatalf("handleReplayRun failed: %v", err)
	}
	if result != nil {
		t.Error("Expected nil result (SDK auto-populates)")
	}
	if !out.Consistent || out.Status != string(store.StatusConsistent) {
		t.Errorf("status = %s (consistent %v), want consistent", out.Status, out.Consistent)
	}
	if out.Steps != 90 {
		t.Errorf("Steps = %d, want 90", out.Steps)
	}
	if out.Scenario != "straight" {
		t.Errorf("Scenario = %q, want straight", out.Scenario)
	}
	if !strings.Contains(out.Message, "consistent over 90 steps") {
		t.Errorf("Message = %q", out.Message)
	}

	saved, err := server.store.GetRun(ctx, out.RunID)
	if err != nil || saved == nil {
		t.Fatalf("GetRun(%s) = %v, %v; want stored run", out.RunID, saved, err)
	}
}

func TestHandleReplayRun_Mismatch(t *testing.T) {
	server, dataDir := setupTestServer(t)
	bad := writeTestScenario(t, dataDir, "bad", true)

	_, out, err := server.handleReplayRun(context.Background(), nil, ReplayRunInput{DataPath: bad})
	if err != nil {
		t.Fatalf("handleReplayRun failed: %v", err)
	}
	if out.Consistent {
		t.Fatal("perturbed log replayed consistently")
	}
	if out.Status != string(store.StatusMismatch) {
		t.Errorf("Status = %s, want mismatch", out.Status)
	}
	if out.Steps != 3 {
		t.Errorf("Steps = %d, want 3", out.Steps)
	}
	if !slices.Contains(out.Mismatches, "speed") {
		t.Errorf("Mismatches = %v, want speed", out.Mismatches)
	}
	if !strings.Contains(out.Message, "mismatch at step 3") {
		t.Errorf("Message = %q", out.Message)
	}
}

func TestHandleReplayRun_LooseTolerance(t *testing.T) {
	server, dataDir := setupTestServer(t)
	bad := writeTestScenario(t, dataDir, "bad", true)

	_, out, err := server.handleReplayRun(context.Background(), nil, ReplayRunInput{DataPath: bad, Tolerance: 2})
	if err != nil {
		t.Fatalf("handleReplayRun failed: %v", err)
	}
	if !out.Consistent {
		t.Errorf("replay with tolerance 2 failed: %s", out.Error)
	}
}

func TestHandleReplayRun_Outputs(t *testing.T) {
	server, dataDir := setupTestServer(t)
	exportPath := filepath.Join(dataDir, "out", "run.arrow")
	plotPath := filepath.Join(dataDir, "out", "deviation.png")

	_, out, err := server.handleReplayRun(context.Background(), nil, ReplayRunInput{
		ExportPath: exportPath,
		PlotPath:   plotPath,
	})
	if err != nil {
		t.Fatalf("handleReplayRun failed: %v", err)
	}
	if _, err := os.Stat(plotPath); err != nil {
		t.Errorf("plot not written: %v", err)
	}

	meta, records, err := export.ReadFile(out.ExportPath)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	if meta.RunID != out.RunID {
		t.Errorf("export run ID = %q, want %q", meta.RunID, out.RunID)
	}
	if len(records) != 91 {
		t.Errorf("exported %d records, want 91", len(records))
	}
}

func TestHandleReplayRun_Rejected(t *testing.T) {
	server, dataDir := setupTestServer(t)
	outside := writeTestScenario(t, t.TempDir(), "outside", false)

	tests := []struct {
		name        string
		in          ReplayRunInput
		errContains string
	}{
		{"data path outside roots", ReplayRunInput{DataPath: outside}, "outside allowed directories"},
		{"export path outside roots", ReplayRunInput{ExportPath: filepath.Join(filepath.Dir(outside), "x.arrow")}, "export path rejected"},
		{"negative tolerance", ReplayRunInput{Tolerance: -1}, "non-negative"},
		{"missing scenario", ReplayRunInput{DataPath: filepath.Join(dataDir, "missing.json")}, "replay failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := server.handleReplayRun(context.Background(), nil, tt.in)
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("error = %v, want containing %q", err, tt.errContains)
			}
		})
	}
}

func TestHandleReplayHistory(t *testing.T) {
	server, dataDir := setupTestServer(t)
	ctx := context.Background()
	bad := writeTestScenario(t, dataDir, "bad", true)

	_, good, err := server.handleReplayRun(ctx, nil, ReplayRunInput{DataPath: filepath.Join(dataDir, "straight.json")})
	if err != nil {
		t.Fatal(err)
	}
	_, failed, err := server.handleReplayRun(ctx, nil, ReplayRunInput{DataPath: bad})
	if err != nil {
		t.Fatal(err)
	}

	_, all, err := server.handleReplayHistory(ctx, nil, ReplayHistoryInput{})
	if err != nil {
		t.Fatalf("handleReplayHistory failed: %v", err)
	}
	if all.Count != 2 {
		t.Errorf("Count = %d, want 2", all.Count)
	}

	_, mismatches, err := server.handleReplayHistory(ctx, nil, ReplayHistoryInput{Status: string(store.StatusMismatch)})
	if err != nil {
		t.Fatal(err)
	}
	if mismatches.Count != 1 || mismatches.Runs[0].ID != failed.RunID {
		t.Errorf("mismatch runs = %+v, want only %s", mismatches.Runs, failed.RunID)
	}

	_, one, err := server.handleReplayHistory(ctx, nil, ReplayHistoryInput{ID: failed.RunID})
	if err != nil {
		t.Fatal(err)
	}
	if one.Failure == nil || one.Failure.Index != 3 || one.Failure.Consistent {
		t.Errorf("Failure = %+v, want inconsistent step 3", one.Failure)
	}

	_, ok, err := server.handleReplayHistory(ctx, nil, ReplayHistoryInput{ID: good.RunID})
	if err != nil {
		t.Fatal(err)
	}
	if ok.Failure != nil {
		t.Errorf("consistent run has Failure %+v", ok.Failure)
	}

	if _, _, err := server.handleReplayHistory(ctx, nil, ReplayHistoryInput{ID: "run-missing"}); err == nil {
		t.Error("expected error for unknown run ID")
	}
}

func TestHandleTrajectoryDecode(t *testing.T) {
	server, _ := setupTestServer(t)

	_, out, err := server.handleTrajectoryDecode(context.Background(), nil, TrajectoryDecodeInput{From: 0, To: 2})
	if err != nil {
		t.Fatalf("handleTrajectoryDecode failed: %v", err)
	}
	if out.Horizon != constants.DefaultHorizon {
		t.Errorf("Horizon = %d, want %d", out.Horizon, constants.DefaultHorizon)
	}
	if len(out.Steps) != 3 {
		t.Fatalf("got %d steps, want 3", len(out.Steps))
	}

	first := out.Steps[0]
	if first.Position != [2]float64{1, 2} {
		t.Errorf("Position[0] = %v, want [1 2]", first.Position)
	}
	if math.Abs(first.Speed-6) > 1e-9 {
		t.Errorf("Speed[0] = %v, want 6", first.Speed)
	}
	if math.Abs(first.Action[0]-0.6) > 1e-9 || math.Abs(first.Action[1]) > 1e-9 || math.Abs(first.Action[2]) > 1e-9 {
		t.Errorf("Action[0] = %v, want [0.6 0 0]", first.Action)
	}
	if out.Steps[2].Index != 2 {
		t.Errorf("last index = %d, want 2", out.Steps[2].Index)
	}

	_, full, err := server.handleTrajectoryDecode(context.Background(), nil, TrajectoryDecodeInput{})
	if err != nil {
		t.Fatal(err)
	}
	if len(full.Steps) != constants.DefaultHorizon {
		t.Errorf("default range has %d steps, want %d", len(full.Steps), constants.DefaultHorizon)
	}
	if full.Steps[len(full.Steps)-1].Action != [3]float64{} {
		t.Errorf("final action = %v, want zero", full.Steps[len(full.Steps)-1].Action)
	}
}

func TestHandleTrajectoryDecode_Errors(t *testing.T) {
	server, _ := setupTestServer(t)

	tests := []struct {
		name string
		in   TrajectoryDecodeInput
	}{
		{"from after to", TrajectoryDecodeInput{From: 5, To: 2}},
		{"to past horizon", TrajectoryDecodeInput{To: constants.DefaultHorizon}},
		{"negative from", TrajectoryDecodeInput{From: -1, To: 3}},
		{"agent out of range", TrajectoryDecodeInput{Agent: constants.DefaultMaxAgentCount}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := server.handleTrajectoryDecode(context.Background(), nil, tt.in); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHandleRecentRunsResource(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	res, err := server.handleRecentRunsResource(ctx, nil)
	if err != nil {
		t.Fatalf("handleRecentRunsResource failed: %v", err)
	}
	if !strings.Contains(res.Contents[0].Text, "No runs recorded yet") {
		t.Errorf("empty resource = %q", res.Contents[0].Text)
	}

	_, out, err := server.handleReplayRun(ctx, nil, ReplayRunInput{})
	if err != nil {
		t.Fatal(err)
	}
	res, err = server.handleRecentRunsResource(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	text := res.Contents[0].Text
	if !strings.Contains(text, out.RunID) || !strings.Contains(text, "consistent") {
		t.Errorf("resource does not list run %s:\n%s", out.RunID, text)
	}
	if res.Contents[0].URI != recentRunsURI {
		t.Errorf("URI = %q, want %q", res.Contents[0].URI, recentRunsURI)
	}
}

func TestHandleRecentRunsResource_SanitizesNames(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	rep := store.NewRunReport("evil|name\n# take over", nil, nil, time.Now(), time.Second)
	if err := server.store.SaveRun(ctx, rep); err != nil {
		t.Fatal(err)
	}
	res, err := server.handleRecentRunsResource(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	text := res.Contents[0].Text
	if !strings.Contains(text, "| evil/name # take over |") {
		t.Errorf("scenario cell not sanitized:\n%s", text)
	}
	if strings.Contains(text, "\n# take over") {
		t.Errorf("heading injected into resource:\n%s", text)
	}
}
