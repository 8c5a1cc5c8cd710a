package logging

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// readTrace parses every JSONL line of path.
func readTrace(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open trace: %v", err)
	}
	defer f.Close()

	var events []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev map[string]any
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("line %d: %v", len(events)+1, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestNewTraceLogger_InfoLevel(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "trace")
	tl := NewTraceLogger(dir, "info")
	if tl != nil {
		t.Fatal("expected nil TraceLogger at info level")
	}

	// A nil logger hands out nil traces, and both are safe to use.
	rt := tl.Start(RunInfo{Scenario: "x"})
	rt.Step(map[string]any{"event": "replay_step"})
	rt.End("run-1", "consistent", 0, nil)
	tl.Close()
	if rt.Path() != "" || tl.Dir() != "" || rt.Verbose() || tl.Verbose() {
		t.Error("nil trace reported state")
	}
	if _, err := os.Stat(dir); err == nil {
		t.Error("trace directory created at info level")
	}
}

func TestRunTrace_Lifecycle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "dir")
	tl := NewTraceLogger(dir, "debug")
	if tl == nil {
		t.Fatal("expected TraceLogger at debug level")
	}
	defer tl.Close()

	started := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	rt := tl.Start(RunInfo{Scenario: "left turn", World: 1, Agent: 2, Horizon: 91, Started: started})
	if rt == nil {
		t.Fatal("Start() = nil")
	}
	wantName := "leftturn-w1-a2-20260301T123000Z-1.jsonl"
	if got := filepath.Base(rt.Path()); got != wantName {
		t.Errorf("trace file = %q, want %q", got, wantName)
	}

	step := map[string]any{"event": "replay_step", "index": 0, "consistent": true}
	rt.Step(step)
	rt.Step(map[string]any{"event": "replay_step", "index": 1, "consistent": false})
	rt.End("run-abc", "mismatch", 1, errors.New("step 1: speed mismatch"))
	rt.Step(map[string]any{"event": "after_end"})

	if _, ok := step["elapsed_ms"]; ok {
		t.Error("Step() mutated the caller's map")
	}

	events := readTrace(t, rt.Path())
	if len(events) != 4 {
		t.Fatalf("trace has %d lines, want 4 (header, 2 steps, footer)", len(events))
	}
	head, foot := events[0], events[3]
	if head["event"] != "run_start" || head["scenario"] != "left turn" || head["agent"] != 2.0 || head["horizon"] != 91.0 {
		t.Errorf("header = %v", head)
	}
	if head["verbose"] != false {
		t.Errorf("header verbose = %v at debug level", head["verbose"])
	}
	if _, ok := events[1]["elapsed_ms"]; !ok {
		t.Error("step event missing elapsed_ms")
	}
	if foot["event"] != "run_end" || foot["id"] != "run-abc" || foot["status"] != "mismatch" {
		t.Errorf("footer = %v", foot)
	}
	if foot["traced"] != 2.0 || foot["inconsistent"] != 1.0 || foot["steps"] != 1.0 {
		t.Errorf("footer counts = traced %v inconsistent %v steps %v", foot["traced"], foot["inconsistent"], foot["steps"])
	}
	if !strings.Contains(foot["error"].(string), "speed mismatch") {
		t.Errorf("footer error = %v", foot["error"])
	}
}

func TestRunTrace_SeparateFilesPerRun(t *testing.T) {
	tl := NewTraceLogger(t.TempDir(), "trace")
	defer tl.Close()
	if !tl.Verbose() {
		t.Error("trace level logger should be verbose")
	}

	var wg sync.WaitGroup
	paths := make([]string, 4)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rt := tl.Start(RunInfo{Scenario: "same", Agent: 0})
			for j := 0; j < 10; j++ {
				rt.Step(map[string]any{"event": "replay_step", "index": j, "consistent": true})
			}
			paths[i] = rt.Path()
			rt.End("", "consistent", 9, nil)
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, p := range paths {
		if seen[p] {
			t.Fatalf("two runs share trace file %s", p)
		}
		seen[p] = true
		if n := len(readTrace(t, p)); n != 12 {
			t.Errorf("%s has %d lines, want 12", filepath.Base(p), n)
		}
	}
}

func TestTraceLogger_CloseEndsOpenRuns(t *testing.T) {
	tl := NewTraceLogger(t.TempDir(), "debug")
	rt := tl.Start(RunInfo{Scenario: "cancelled"})
	rt.Step(map[string]any{"event": "replay_step"})
	tl.Close()

	// Writes after Close are dropped.
	rt.Step(map[string]any{"event": "late"})
	if n := len(readTrace(t, rt.Path())); n != 2 {
		t.Errorf("trace has %d lines, want 2", n)
	}
}

func TestTraceLogger_FilePermissions(t *testing.T) {
	tl := NewTraceLogger(t.TempDir(), "debug")
	defer tl.Close()
	rt := tl.Start(RunInfo{Scenario: "perm"})
	rt.End("", "consistent", 0, nil)

	info, err := os.Stat(rt.Path())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}
