// Package export writes replay step records as Arrow IPC files so they can
// be loaded by columnar tooling, and reads them back.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/nvandessel/simreplay/internal/replay"
)

// Meta identifies the replay the records came from. It is stored as
// schema metadata.
type Meta struct {
	RunID    string
	Scenario string
	World    int
	Agent    int
	Horizon  int
}

const (
	metaRunID    = "simreplay.run_id"
	metaScenario = "simreplay.scenario"
	metaWorld    = "simreplay.world"
	metaAgent    = "simreplay.agent"
	metaHorizon  = "simreplay.horizon"
)

var f64 = arrow.PrimitiveTypes.Float64

// columns lists every exported column in order.
var columns = []arrow.Field{
	{Name: "index", Type: arrow.PrimitiveTypes.Int32},
	{Name: "action_dx", Type: f64},
	{Name: "action_dy", Type: f64},
	{Name: "action_dyaw", Type: f64},
	{Name: "position_x", Type: f64},
	{Name: "position_y", Type: f64},
	{Name: "expected_x", Type: f64},
	{Name: "expected_y", Type: f64},
	{Name: "heading", Type: f64},
	{Name: "expected_heading", Type: f64},
	{Name: "speed", Type: f64},
	{Name: "expected_speed", Type: f64},
	{Name: "dev_x", Type: f64},
	{Name: "dev_y", Type: f64},
	{Name: "dev_heading", Type: f64},
	{Name: "dev_speed", Type: f64},
	{Name: "consistent", Type: arrow.FixedWidthTypes.Boolean},
}

// floatColumns maps the float64 columns (by position in columns, minus the
// leading index column) to record fields.
func floatColumns(r *replay.StepRecord) []*float64 {
	return []*float64{
		&r.Action[0], &r.Action[1], &r.Action[2],
		&r.Position[0], &r.Position[1],
		&r.ExpectedPosition[0], &r.ExpectedPosition[1],
		&r.Heading, &r.ExpectedHeading,
		&r.Speed, &r.ExpectedSpeed,
		&r.Deviation.Position[0], &r.Deviation.Position[1],
		&r.Deviation.Heading, &r.Deviation.Speed,
	}
}

// Schema returns the Arrow schema for records described by m.
func Schema(m Meta) *arrow.Schema {
	md := arrow.NewMetadata(
		[]string{metaRunID, metaScenario, metaWorld, metaAgent, metaHorizon},
		[]string{m.RunID, m.Scenario, strconv.Itoa(m.World), strconv.Itoa(m.Agent), strconv.Itoa(m.Horizon)},
	)
	return arrow.NewSchema(columns, &md)
}

// Write encodes records as a single-batch Arrow IPC file.
func Write(w io.Writer, m Meta, records []replay.StepRecord) error {
	mem := memory.NewGoAllocator()
	schema := Schema(m)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for i := range records {
		r := records[i]
		b.Field(0).(*array.Int32Builder).Append(int32(r.Index))
		for j, v := range floatColumns(&r) {
			b.Field(j + 1).(*array.Float64Builder).Append(*v)
		}
		b.Field(len(columns) - 1).(*array.BooleanBuilder).Append(r.Consistent)
	}

	rec := b.NewRecord()
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("creating arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("writing arrow record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("closing arrow writer: %w", err)
	}
	return nil
}

// WriteFile writes records to path, creating parent directories.
func WriteFile(path string, m Meta, records []replay.StepRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	if err := Write(f, m, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile decodes an Arrow IPC file written by WriteFile.
func ReadFile(path string) (Meta, []replay.StepRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return Meta{}, nil, fmt.Errorf("opening export file: %w", err)
	}
	defer f.Close()

	mem := memory.NewGoAllocator()
	r, err := ipc.NewFileReader(f, ipc.WithAllocator(mem))
	if err != nil {
		return Meta{}, nil, fmt.Errorf("reading arrow file: %w", err)
	}
	defer r.Close()

	m, err := parseMeta(r.Schema().Metadata())
	if err != nil {
		return Meta{}, nil, err
	}
	if err := checkSchema(r.Schema()); err != nil {
		return Meta{}, nil, err
	}

	var records []replay.StepRecord
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			return Meta{}, nil, fmt.Errorf("reading batch %d: %w", i, err)
		}
		records = appendBatch(records, rec)
	}
	return m, records, nil
}

func checkSchema(s *arrow.Schema) error {
	if s.NumFields() != len(columns) {
		return fmt.Errorf("export has %d columns, want %d", s.NumFields(), len(columns))
	}
	for i, want := range columns {
		got := s.Field(i)
		if got.Name != want.Name || !arrow.TypeEqual(got.Type, want.Type) {
			return fmt.Errorf("column %d is %s %s, want %s %s", i, got.Name, got.Type, want.Name, want.Type)
		}
	}
	return nil
}

func appendBatch(out []replay.StepRecord, rec arrow.Record) []replay.StepRecord {
	n := int(rec.NumRows())
	idx := rec.Column(0).(*array.Int32)
	ok := rec.Column(len(columns) - 1).(*array.Boolean)
	floats := make([]*array.Float64, len(columns)-2)
	for j := range floats {
		floats[j] = rec.Column(j + 1).(*array.Float64)
	}

	for k := 0; k < n; k++ {
		var r replay.StepRecord
		r.Index = int(idx.Value(k))
		for j, dst := range floatColumns(&r) {
			*dst = floats[j].Value(k)
		}
		r.Consistent = ok.Value(k)
		out = append(out, r)
	}
	return out
}

func parseMeta(md arrow.Metadata) (Meta, error) {
	get := func(key string) string {
		if i := md.FindKey(key); i >= 0 {
			return md.Values()[i]
		}
		return ""
	}
	m := Meta{RunID: get(metaRunID), Scenario: get(metaScenario)}
	for _, f := range []struct {
		key string
		dst *int
	}{{metaWorld, &m.World}, {metaAgent, &m.Agent}, {metaHorizon, &m.Horizon}} {
		s := get(f.key)
		if s == "" {
			continue
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return Meta{}, fmt.Errorf("invalid %s metadata %q: %w", f.key, s, err)
		}
		*f.dst = v
	}
	return m, nil
}
