package mcp

import (
	"github.com/nvandessel/simreplay/internal/replay"
)

// ReplayRunInput defines the input for the replay_run tool.
type ReplayRunInput struct {
	DataPath   string  `json:"data_path,omitempty" jsonschema:"Scenario file or directory (default: configured data path)"`
	World      int     `json:"world,omitempty" jsonschema:"World index to replay (default: 0)"`
	Agent      int     `json:"agent,omitempty" jsonschema:"Agent index to replay (default: 0)"`
	Horizon    int     `json:"horizon,omitempty" jsonschema:"Expert trajectory length T (default: configured horizon)"`
	Tolerance  float64 `json:"tolerance,omitempty" jsonschema:"Positive tolerance applied to position, heading and speed; 0 or omitted keeps the configured tolerances (1e-2 unless configured)"`
	ExportPath string  `json:"export_path,omitempty" jsonschema:"Write step records to this Arrow IPC file"`
	PlotPath   string  `json:"plot_path,omitempty" jsonschema:"Render a deviation plot to this .png or .svg file"`
}

// ReplayRunOutput defines the output for the replay_run tool.
type ReplayRunOutput struct {
	RunID      string           `json:"run_id" jsonschema:"ID of the stored run report"`
	Scenario   string           `json:"scenario" jsonschema:"Scenario loaded into the world"`
	Status     string           `json:"status" jsonschema:"consistent, mismatch, horizon_exceeded, shape_error, configuration_error or error"`
	Consistent bool             `json:"consistent" jsonschema:"Whether every checked step matched the log"`
	Steps      int              `json:"steps" jsonschema:"Number of engine steps taken"`
	Horizon    int              `json:"horizon"`
	Max        replay.Deviation `json:"max_deviation" jsonschema:"Largest deviation per quantity"`
	Error      string           `json:"error,omitempty" jsonschema:"Replay failure, if any"`
	Mismatches []string         `json:"mismatches,omitempty" jsonschema:"Fields that exceeded tolerance"`
	ExportPath string           `json:"export_path,omitempty"`
	PlotPath   string           `json:"plot_path,omitempty"`
	Message    string           `json:"message" jsonschema:"Human-readable summary"`
}

// ReplayHistoryInput defines the input for the replay_history tool.
type ReplayHistoryInput struct {
	ID       string `json:"id,omitempty" jsonschema:"Show one run by ID, including its failing step"`
	Scenario string `json:"scenario,omitempty" jsonschema:"Only runs of this scenario"`
	Status   string `json:"status,omitempty" jsonschema:"Only runs with this status"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Maximum number of runs (default: 20)"`
}

// ReplayHistoryOutput defines the output for the replay_history tool.
type ReplayHistoryOutput struct {
	Runs  []RunSummary `json:"runs" jsonschema:"Runs, newest first"`
	Count int          `json:"count"`
	// Failure is the last record of the run selected by ID when it failed.
	Failure *replay.StepRecord `json:"failure,omitempty" jsonschema:"Last checked step of a failed run (ID lookups only)"`
}

// RunSummary is a list view of a stored run.
type RunSummary struct {
	ID        string           `json:"id"`
	Scenario  string           `json:"scenario"`
	World     int              `json:"world"`
	Agent     int              `json:"agent"`
	Steps     int              `json:"steps"`
	Status    string           `json:"status"`
	Error     string           `json:"error,omitempty"`
	Max       replay.Deviation `json:"max_deviation"`
	StartedAt string           `json:"started_at" jsonschema:"RFC 3339 start time"`
}

// TrajectoryDecodeInput defines the input for the trajectory_decode tool.
type TrajectoryDecodeInput struct {
	DataPath string `json:"data_path,omitempty" jsonschema:"Scenario file or directory (default: configured data path)"`
	World    int    `json:"world,omitempty" jsonschema:"World index (default: 0)"`
	Agent    int    `json:"agent,omitempty" jsonschema:"Agent index (default: 0)"`
	From     int    `json:"from,omitempty" jsonschema:"First timestep to return (default: 0)"`
	To       int    `json:"to,omitempty" jsonschema:"Last timestep to return, inclusive (default: horizon-1)"`
}

// TrajectoryDecodeOutput defines the output for the trajectory_decode tool.
type TrajectoryDecodeOutput struct {
	Scenario string          `json:"scenario"`
	Horizon  int             `json:"horizon"`
	Steps    []TrajectoryRow `json:"steps" jsonschema:"Decoded expert state and action per timestep"`
}

// TrajectoryRow is one timestep of a decoded expert trajectory.
type TrajectoryRow struct {
	Index    int        `json:"index"`
	Position [2]float64 `json:"position"`
	Velocity [2]float64 `json:"velocity"`
	Speed    float64    `json:"speed"`
	Heading  float64    `json:"heading"`
	Action   [3]float64 `json:"action"`
}
