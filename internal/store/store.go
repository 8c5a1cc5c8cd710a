// Package store defines the RunStore interface for persisting replay run
// reports, with SQLite and in-memory implementations.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/nvandessel/simreplay/internal/constants"
	"github.com/nvandessel/simreplay/internal/params"
	"github.com/nvandessel/simreplay/internal/replay"
	"github.com/nvandessel/simreplay/internal/trajectory"
)

// Status classifies how a replay ended.
type Status string

const (
	StatusConsistent      Status = "consistent"
	StatusMismatch        Status = "mismatch"
	StatusHorizonExceeded Status = "horizon_exceeded"
	StatusShape           Status = "shape_error"
	StatusConfiguration   Status = "configuration_error"
	StatusError           Status = "error"
)

// Classify maps a replay error to a Status.
func Classify(err error) Status {
	var (
		mm    *replay.MismatchError
		he    *replay.HorizonExceededError
		se    *trajectory.ShapeError
		cfgEr *params.ConfigurationError
	)
	switch {
	case err == nil:
		return StatusConsistent
	case errors.As(err, &mm):
		return StatusMismatch
	case errors.As(err, &he):
		return StatusHorizonExceeded
	case errors.As(err, &se):
		return StatusShape
	case errors.As(err, &cfgEr):
		return StatusConfiguration
	}
	return StatusError
}

// RunReport is the persisted outcome of one replay.
type RunReport struct {
	ID        string              `json:"id"`
	Scenario  string              `json:"scenario"`
	World     int                 `json:"world"`
	Agent     int                 `json:"agent"`
	Horizon   int                 `json:"horizon"`
	Steps     int                 `json:"steps"`
	Status    Status              `json:"status"`
	Error     string              `json:"error,omitempty"`
	Max       replay.Deviation    `json:"max_deviation"`
	StartedAt time.Time           `json:"started_at"`
	Duration  time.Duration       `json:"duration"`
	Records   []replay.StepRecord `json:"records,omitempty"`
}

// NewRunReport builds a report from a driver result and its error.
func NewRunReport(scenario string, res *replay.Result, runErr error, started time.Time, took time.Duration) *RunReport {
	r := &RunReport{
		Scenario:  scenario,
		Status:    Classify(runErr),
		StartedAt: started.UTC(),
		Duration:  took,
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	if res != nil {
		r.World, r.Agent, r.Horizon = res.World, res.Agent, res.Horizon
		r.Steps = res.Steps
		r.Max = res.Max
		r.Records = res.Records
	}
	r.ID = RunID(r)
	return r
}

// RunID derives a stable identifier from the run's target and start time.
func RunID(r *RunReport) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d|%d", r.Scenario, r.World, r.Agent, r.StartedAt.UnixNano())
	return "run-" + hex.EncodeToString(h.Sum(nil))[:16]
}

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	Scenario string
	Status   Status
	Limit    int
}

// RunStore persists replay reports.
type RunStore interface {
	// SaveRun inserts or replaces a report, including its step records.
	SaveRun(ctx context.Context, r *RunReport) error
	// GetRun returns the report with its records. Returns nil if not found.
	GetRun(ctx context.Context, id string) (*RunReport, error)
	// ListRuns returns matching reports, newest first, without records.
	ListRuns(ctx context.Context, f RunFilter) ([]RunReport, error)
	DeleteRun(ctx context.Context, id string) error
	Close() error
}

// Open returns the RunStore for backend. path is ignored for memory.
func Open(backend constants.StoreBackend, path string) (RunStore, error) {
	switch backend {
	case constants.BackendMemory:
		return NewMemoryRunStore(), nil
	case constants.BackendSQLite, "":
		return NewSQLiteRunStore(path)
	}
	return nil, fmt.Errorf("unknown store backend: %s", backend)
}

func matches(r *RunReport, f RunFilter) bool {
	if f.Scenario != "" && r.Scenario != f.Scenario {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}
