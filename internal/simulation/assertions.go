package simulation

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"slices"
	"testing"

	"github.com/nvandessel/simreplay/internal/replay"
	"github.com/nvandessel/simreplay/internal/store"
)

// AssertConsistent asserts that the replay finished without error.
func AssertConsistent(t *testing.T, result Result) {
	t.Helper()
	if result.Err != nil {
		t.Errorf("AssertConsistent: replay failed: %v", result.Err)
	}
	if result.Report != nil && result.Report.Status != store.StatusConsistent {
		t.Errorf("AssertConsistent: report status %q", result.Report.Status)
	}
}

// AssertSteps asserts the number of engine steps taken.
func AssertSteps(t *testing.T, result Result, want int) {
	t.Helper()
	if result.Replay == nil {
		t.Fatal("AssertSteps: no replay result")
	}
	if result.Replay.Steps != want {
		t.Errorf("AssertSteps: took %d steps, want %d", result.Replay.Steps, want)
	}
	if got := len(result.Replay.Records); got != result.Replay.Steps+1 {
		t.Errorf("AssertSteps: %d records for %d steps, want steps+1", got, result.Replay.Steps)
	}
}

// AssertMaxDeviationBelow asserts every quantity's largest deviation stayed
// at or under bound.
func AssertMaxDeviationBelow(t *testing.T, result Result, bound float64) {
	t.Helper()
	if result.Replay == nil {
		t.Fatal("AssertMaxDeviationBelow: no replay result")
	}
	m := result.Replay.Max
	worst := math.Max(math.Max(m.Position[0], m.Position[1]), math.Max(m.Heading, m.Speed))
	if worst > bound {
		t.Errorf("AssertMaxDeviationBelow: max deviation %.3g > %.3g (%+v)", worst, bound, m)
	}
}

// AssertHorizonExceeded asserts the replay stopped at the horizon.
func AssertHorizonExceeded(t *testing.T, result Result) {
	t.Helper()
	var he *replay.HorizonExceededError
	if !errors.As(result.Err, &he) {
		t.Fatalf("AssertHorizonExceeded: err = %v, want *HorizonExceededError", result.Err)
	}
	if he.Index != he.Horizon {
		t.Errorf("AssertHorizonExceeded: failed at index %d, want %d", he.Index, he.Horizon)
	}
}

// AssertMismatch asserts the replay failed at index naming field.
func AssertMismatch(t *testing.T, result Result, index int, field string) {
	t.Helper()
	var mm *replay.MismatchError
	if !errors.As(result.Err, &mm) {
		t.Fatalf("AssertMismatch: err = %v, want *MismatchError", result.Err)
	}
	if mm.Index != index {
		t.Errorf("AssertMismatch: failed at index %d, want %d", mm.Index, index)
	}
	if fields := replay.MismatchFields(result.Err); !slices.Contains(fields, field) {
		t.Errorf("AssertMismatch: fields %v do not include %q", fields, field)
	}
}

// AssertStored asserts the report was persisted with all its records.
func AssertStored(t *testing.T, result Result) {
	t.Helper()
	got, err := result.Store.GetRun(context.Background(), result.Report.ID)
	if err != nil {
		t.Fatalf("AssertStored: GetRun: %v", err)
	}
	if got == nil {
		t.Fatalf("AssertStored: run %s not found", result.Report.ID)
	}
	if got.Status != result.Report.Status {
		t.Errorf("AssertStored: status %q, want %q", got.Status, result.Report.Status)
	}
	if len(got.Records) != len(result.Report.Records) {
		t.Errorf("AssertStored: %d records, want %d", len(got.Records), len(result.Report.Records))
	}
}

// AssertTraced asserts the JSONL trace holds a run_start header, one
// replay_step line per record and a run_end footer naming the stored run.
func AssertTraced(t *testing.T, result Result) {
	t.Helper()
	f, err := os.Open(result.TracePath)
	if err != nil {
		t.Fatalf("AssertTraced: %v", err)
	}
	defer f.Close()

	var events []string
	var last map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev map[string]any
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("AssertTraced: line %d: %v", len(events)+1, err)
		}
		name, _ := ev["event"].(string)
		events = append(events, name)
		last = ev
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("AssertTraced: %v", err)
	}
	if want := len(result.Replay.Records) + 2; len(events) != want {
		t.Fatalf("AssertTraced: %d trace lines, want %d", len(events), want)
	}
	if events[0] != "run_start" {
		t.Errorf("AssertTraced: first event = %q, want run_start", events[0])
	}
	for i, name := range events[1 : len(events)-1] {
		if name != "replay_step" {
			t.Errorf("AssertTraced: line %d event = %q, want replay_step", i+2, name)
		}
	}
	if last["event"] != "run_end" || last["id"] != result.Report.ID {
		t.Errorf("AssertTraced: footer = %v, want run_end for %s", last, result.Report.ID)
	}
}
