package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/simreplay/internal/replay"
)

func TestWriteReadFile(t *testing.T) {
	meta := Meta{RunID: "run-0123456789abcdef", Scenario: "arc", World: 2, Agent: 1, Horizon: 91}
	records := []replay.StepRecord{
		{Index: 0, Position: [2]float64{10, 5}, ExpectedPosition: [2]float64{10, 5}, Heading: 0.3, ExpectedHeading: 0.3, Speed: 1, ExpectedSpeed: 1, Consistent: true},
		{
			Index: 1, Action: [3]float64{0.1, 0, 0.02},
			Position: [2]float64{10.0955, 5.0296}, ExpectedPosition: [2]float64{10.0955, 5.0297},
			Heading: 0.32, ExpectedHeading: 0.32, Speed: 1, ExpectedSpeed: 1.02,
			Deviation: replay.Deviation{Position: [2]float64{0, 0.0001}, Speed: 0.02},
		},
	}

	path := filepath.Join(t.TempDir(), "out", "run.arrow")
	if err := WriteFile(path, meta, records); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	gotMeta, got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if gotMeta != meta {
		t.Errorf("ReadFile() meta = %+v, want %+v", gotMeta, meta)
	}
	if len(got) != len(records) {
		t.Fatalf("ReadFile() returned %d records, want %d", len(got), len(records))
	}
	for i := range records {
		if got[i] != records[i] {
			t.Errorf("record %d = %+v, want %+v", i, got[i], records[i])
		}
	}
}

func TestWriteFile_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.arrow")
	if err := WriteFile(path, Meta{Scenario: "none"}, nil); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	m, got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if m.Scenario != "none" {
		t.Errorf("Scenario = %q, want none", m.Scenario)
	}
	if len(got) != 0 {
		t.Errorf("ReadFile() returned %d records, want 0", len(got))
	}
}

func TestSchema(t *testing.T) {
	s := Schema(Meta{World: 3})
	if s.NumFields() != len(columns) {
		t.Errorf("NumFields() = %d, want %d", s.NumFields(), len(columns))
	}
	var r replay.StepRecord
	if got, want := len(floatColumns(&r)), len(columns)-2; got != want {
		t.Errorf("float columns = %d, want %d", got, want)
	}
	md := s.Metadata()
	if i := md.FindKey(metaWorld); i < 0 || md.Values()[i] != "3" {
		t.Errorf("world metadata missing or wrong: %v", md)
	}
}

func TestReadFile_NotArrow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.arrow")
	if err := os.WriteFile(path, []byte("not an arrow file"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := ReadFile(path); err == nil {
		t.Error("ReadFile() error = nil, want error")
	}
}

func TestReadFile_Missing(t *testing.T) {
	_, _, err := ReadFile(filepath.Join(t.TempDir(), "missing.arrow"))
	if err == nil || !strings.Contains(err.Error(), "opening export file") {
		t.Errorf("ReadFile() error = %v, want opening error", err)
	}
}
