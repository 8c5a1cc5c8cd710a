// Package constants provides named constants used throughout the simreplay codebase.
// This centralizes magic numbers for better maintainability and documentation.
package constants

// Trajectory geometry
const (
	// DefaultHorizon is T, the number of timesteps in a logged scenario.
	DefaultHorizon = 91

	// TrajectoryStride is the packed per-agent expert width in units of T:
	// position 2, velocity 2, heading 1, reserved 1, action 3.
	TrajectoryStride = 9

	// ActionWidth is the per-agent action vector length (dx, dy, dyaw).
	ActionWidth = 3
)

// Observation layout
const (
	// SelfObservationWidth is the per-agent self observation length.
	SelfObservationWidth = 6

	// SelfObsSpeed is the speed field of the self observation.
	SelfObsSpeed = 0

	// AbsoluteObservationWidth is the per-agent absolute self observation length.
	AbsoluteObservationWidth = 10

	// AbsObsPosX and AbsObsPosY are the world-frame position fields.
	AbsObsPosX = 0
	AbsObsPosY = 1

	// AbsObsHeading is the world-frame yaw field.
	AbsObsHeading = 7
)

// Replay tolerances
const (
	// DefaultPositionTolerance is the absolute per-component position tolerance.
	DefaultPositionTolerance = 1e-2

	// DefaultHeadingTolerance is the absolute heading tolerance in radians.
	DefaultHeadingTolerance = 1e-2

	// DefaultSpeedTolerance is the absolute speed tolerance.
	DefaultSpeedTolerance = 1e-2
)

// Engine sizing
const (
	// DefaultMaxAgentCount is the agent dimension of every engine tensor.
	DefaultMaxAgentCount = 32

	// DefaultMaxRoadPoints bounds the reduced road geometry per world.
	DefaultMaxRoadPoints = 4096

	// DefaultTimestep is the logged sampling interval in seconds.
	DefaultTimestep = 0.1
)
