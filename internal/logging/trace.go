package logging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nvandessel/simreplay/internal/sanitize"
)

// traceStamp keeps trace file names sortable by start time.
const traceStamp = "20060102T150405Z"

// RunInfo identifies the replay a trace belongs to.
type RunInfo struct {
	Scenario string
	World    int
	Agent    int
	Horizon  int
	Started  time.Time
}

// TraceLogger writes replay traces under a directory, one JSONL file per
// run, so parallel replays never interleave. It is enabled only at debug
// or trace level. A nil TraceLogger is valid and traces nothing.
type TraceLogger struct {
	dir   string
	level slog.Level

	mu   sync.Mutex
	seq  int
	open map[*RunTrace]struct{}
}

// NewTraceLogger returns a trace logger rooted at dir, creating it if
// needed. At "info" level, or when dir cannot be created, it returns nil.
func NewTraceLogger(dir string, level string) *TraceLogger {
	lvl := ParseLevel(level)
	if lvl == slog.LevelInfo {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}
	return &TraceLogger{dir: dir, level: lvl, open: make(map[*RunTrace]struct{})}
}

// Dir returns the trace directory, or "" for a nil logger.
func (tl *TraceLogger) Dir() string {
	if tl == nil {
		return ""
	}
	return tl.dir
}

// Verbose reports whether full step content should be traced.
func (tl *TraceLogger) Verbose() bool {
	return tl != nil && tl.level <= LevelTrace
}

// Start creates the trace file for one run and writes its run_start
// header. The file is named <scenario>-w<world>-a<agent>-<start>-<n>.jsonl.
// It returns nil when tracing is off or the file cannot be created.
func (tl *TraceLogger) Start(run RunInfo) *RunTrace {
	if tl == nil {
		return nil
	}
	if run.Started.IsZero() {
		run.Started = time.Now()
	}

	tl.mu.Lock()
	tl.seq++
	seq := tl.seq
	tl.mu.Unlock()

	name := sanitize.Name(run.Scenario)
	if name == "" {
		name = "run"
	}
	path := filepath.Join(tl.dir, fmt.Sprintf("%s-w%d-a%d-%s-%d.jsonl",
		name, run.World, run.Agent, run.Started.UTC().Format(traceStamp), seq))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	rt := &RunTrace{owner: tl, file: f, path: path, started: run.Started, verbose: tl.Verbose()}
	rt.write(map[string]any{
		"event":      "run_start",
		"scenario":   run.Scenario,
		"world":      run.World,
		"agent":      run.Agent,
		"horizon":    run.Horizon,
		"started_at": run.Started.UTC().Format(time.RFC3339Nano),
		"verbose":    rt.verbose,
	})

	tl.mu.Lock()
	tl.open[rt] = struct{}{}
	tl.mu.Unlock()
	return rt
}

// Close closes every trace that was started but not ended. Safe to call
// on nil receiver.
func (tl *TraceLogger) Close() {
	if tl == nil {
		return
	}
	tl.mu.Lock()
	open := tl.open
	tl.open = make(map[*RunTrace]struct{})
	tl.mu.Unlock()

	for rt := range open {
		rt.close()
	}
}

// RunTrace is the trace file of a single replay. All methods are no-ops
// on a nil receiver.
type RunTrace struct {
	owner   *TraceLogger
	path    string
	started time.Time
	verbose bool

	mu           sync.Mutex
	file         *os.File
	steps        int
	inconsistent int
}

// Path returns the trace file, or "" for a nil trace.
func (rt *RunTrace) Path() string {
	if rt == nil {
		return ""
	}
	return rt.path
}

// Verbose reports whether step events should carry full state.
func (rt *RunTrace) Verbose() bool {
	return rt != nil && rt.verbose
}

// Step appends one step event, stamped with the time since the run
// started. The caller's map is not mutated.
func (rt *RunTrace) Step(event map[string]any) {
	if rt == nil {
		return
	}
	entry := make(map[string]any, len(event)+1)
	for k, v := range event {
		entry[k] = v
	}
	entry["elapsed_ms"] = time.Since(rt.started).Milliseconds()

	rt.mu.Lock()
	rt.steps++
	if ok, isBool := event["consistent"].(bool); isBool && !ok {
		rt.inconsistent++
	}
	rt.mu.Unlock()
	rt.write(entry)
}

// End writes the run_end footer with the stored run's id and status and
// closes the file.
func (rt *RunTrace) End(id, status string, steps int, runErr error) {
	if rt == nil {
		return
	}
	rt.mu.Lock()
	footer := map[string]any{
		"event":        "run_end",
		"id":           id,
		"status":       status,
		"steps":        steps,
		"traced":       rt.steps,
		"inconsistent": rt.inconsistent,
		"duration_ms":  time.Since(rt.started).Milliseconds(),
	}
	rt.mu.Unlock()
	if runErr != nil {
		footer["error"] = runErr.Error()
	}
	rt.write(footer)
	rt.close()

	rt.owner.mu.Lock()
	delete(rt.owner.open, rt)
	rt.owner.mu.Unlock()
}

func (rt *RunTrace) write(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.file == nil {
		return
	}
	_, _ = rt.file.Write(data)
}

func (rt *RunTrace) close() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.file != nil {
		rt.file.Close()
		rt.file = nil
	}
}
