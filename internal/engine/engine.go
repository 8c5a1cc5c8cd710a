// Package engine defines the tensor-exchange contract between the replay
// harness and a batched vehicle simulator.
//
// All tensors are indexed [world, agent, feature]. Tensors returned by an
// engine alias its internal buffers: values read from them are valid until
// the next Step, and writes to the action and reset tensors are consumed by
// the next Step.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/nvandessel/simreplay/internal/constants"
	"github.com/nvandessel/simreplay/internal/params"
	"github.com/nvandessel/simreplay/internal/tensor"
)

// Engine is a batched simulator stepped in lockstep across worlds.
type Engine interface {
	// Step advances every world by one timestep using the current action
	// tensor.
	Step(ctx context.Context) error

	// DoneTensor is [W, A, 1]; 1 marks an agent whose episode has ended.
	DoneTensor() *tensor.Tensor
	// ExpertTrajectoryTensor is [W, A, 9T] in the trajectory package layout.
	ExpertTrajectoryTensor() *tensor.Tensor
	// ActionTensor is [W, A, 3] holding (dx, dy, dyaw) in the agent frame.
	ActionTensor() *tensor.Tensor
	// SelfObservationTensor is [W, A, 6]; feature 0 is speed.
	SelfObservationTensor() *tensor.Tensor
	// AbsoluteSelfObservationTensor is [W, A, 10]; features 0-1 are the
	// world-frame position and feature 7 is heading.
	AbsoluteSelfObservationTensor() *tensor.Tensor
	RewardTensor() *tensor.Tensor
	// ResetTensor is [W, 1]; a non-zero entry resets that world on the
	// next Step.
	ResetTensor() *tensor.Tensor
	// ShapeTensor is [W, 2]: active agent count and road point count.
	ShapeTensor() *tensor.Tensor

	// Controlled reports whether the action tensor drives agent of world.
	// Actions written for any other slot are ignored by Step.
	Controlled(world, agent int) bool

	// TriggerReset restores a world to its initial state immediately.
	TriggerReset(world int) error
	Close() error
}

// ExecMode selects the execution backend.
type ExecMode int

const (
	CPU ExecMode = iota
	CUDA
)

func (m ExecMode) String() string {
	switch m {
	case CPU:
		return "cpu"
	case CUDA:
		return "cuda"
	}
	return fmt.Sprintf("ExecMode(%d)", int(m))
}

func (m ExecMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *ExecMode) UnmarshalText(text []byte) error {
	v, err := ParseExecMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseExecMode accepts "cpu" or "cuda" in any case.
func ParseExecMode(s string) (ExecMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpu":
		return CPU, nil
	case "cuda", "gpu":
		return CUDA, nil
	}
	return 0, &params.ConfigurationError{Field: "exec_mode", Value: s, Reason: "want cpu or cuda"}
}

// Config describes how to construct an engine.
type Config struct {
	ExecMode  ExecMode `json:"exec_mode" yaml:"exec_mode"`
	GPUID     int      `json:"gpu_id" yaml:"gpu_id"`
	NumWorlds int      `json:"num_worlds" yaml:"num_worlds"`
	AutoReset bool     `json:"auto_reset" yaml:"auto_reset"`
	// DataPath is a scenario file or a directory of scenario files.
	DataPath string `json:"data_path" yaml:"data_path"`
	// Seed drives scenario sampling for the random_n dataset option.
	Seed int64 `json:"seed" yaml:"seed"`
	// Horizon is T, the number of timesteps in the expert trajectory.
	Horizon int `json:"horizon" yaml:"horizon"`
	// EpisodeLength is the number of steps after which every agent in a
	// world is done. Zero means Horizon-1.
	EpisodeLength int `json:"episode_length" yaml:"episode_length"`
	// MaxAgentCount is the agent dimension A of every tensor.
	MaxAgentCount int `json:"max_agent_count" yaml:"max_agent_count"`
	// MaxRoadPoints bounds the reduced road geometry per world.
	MaxRoadPoints int `json:"max_road_points" yaml:"max_road_points"`

	Params params.Parameters `json:"params" yaml:"params"`
}

// DefaultConfig returns a single-world CPU configuration.
func DefaultConfig() Config {
	return Config{
		ExecMode:      CPU,
		NumWorlds:     1,
		Horizon:       constants.DefaultHorizon,
		MaxAgentCount: constants.DefaultMaxAgentCount,
		MaxRoadPoints: constants.DefaultMaxRoadPoints,
		Params:        params.Default(),
	}
}

// Steps returns the effective episode length.
func (c Config) Steps() int {
	if c.EpisodeLength > 0 {
		return c.EpisodeLength
	}
	return c.Horizon - 1
}

// Validate returns a *params.ConfigurationError for the first invalid field.
func (c Config) Validate() error {
	if c.ExecMode != CPU && c.ExecMode != CUDA {
		return &params.ConfigurationError{Field: "exec_mode", Value: c.ExecMode.String(), Reason: "want cpu or cuda"}
	}
	if c.GPUID < 0 {
		return &params.ConfigurationError{Field: "gpu_id", Value: fmt.Sprint(c.GPUID), Reason: "must be non-negative"}
	}
	if c.NumWorlds <= 0 {
		return &params.ConfigurationError{Field: "num_worlds", Value: fmt.Sprint(c.NumWorlds), Reason: "must be positive"}
	}
	if c.Horizon < 2 {
		return &params.ConfigurationError{Field: "horizon", Value: fmt.Sprint(c.Horizon), Reason: "must be at least 2"}
	}
	if c.EpisodeLength < 0 {
		return &params.ConfigurationError{Field: "episode_length", Value: fmt.Sprint(c.EpisodeLength), Reason: "must be non-negative"}
	}
	if c.MaxAgentCount <= 0 {
		return &params.ConfigurationError{Field: "max_agent_count", Value: fmt.Sprint(c.MaxAgentCount), Reason: "must be positive"}
	}
	if c.MaxRoadPoints < 0 {
		return &params.ConfigurationError{Field: "max_road_points", Value: fmt.Sprint(c.MaxRoadPoints), Reason: "must be non-negative"}
	}
	if c.Params.MaxNumControlledVehicles > c.MaxAgentCount {
		return &params.ConfigurationError{
			Field:  "max_num_controlled_vehicles",
			Value:  fmt.Sprint(c.Params.MaxNumControlledVehicles),
			Reason: fmt.Sprintf("exceeds max_agent_count %d", c.MaxAgentCount),
		}
	}
	return c.Params.Validate()
}
