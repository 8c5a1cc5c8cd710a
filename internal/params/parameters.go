package params

import "fmt"

// RewardParams configures the reward signal.
type RewardParams struct {
	RewardType                RewardType `json:"reward_type" yaml:"reward_type"`
	DistanceToGoalThreshold   float64    `json:"distance_to_goal_threshold" yaml:"distance_to_goal_threshold"`
	DistanceToExpertThreshold float64    `json:"distance_to_expert_threshold" yaml:"distance_to_expert_threshold"`
}

// Parameters is the full engine configuration record. Engines copy it at
// construction; later mutation by the caller has no effect on a running
// engine.
type Parameters struct {
	PolylineReductionThreshold float64            `json:"polyline_reduction_threshold" yaml:"polyline_reduction_threshold"`
	ObservationRadius          float64            `json:"observation_radius" yaml:"observation_radius"`
	CollisionBehaviour         CollisionBehaviour `json:"collision_behaviour" yaml:"collision_behaviour"`
	DatasetInitOptions         DatasetInitOptions `json:"dataset_init" yaml:"dataset_init"`
	RewardParams               RewardParams       `json:"reward" yaml:"reward"`
	MaxNumControlledVehicles   int                `json:"max_num_controlled_vehicles" yaml:"max_num_controlled_vehicles"`
	IgnoreNonVehicles          bool               `json:"ignore_non_vehicles" yaml:"ignore_non_vehicles"`
	// UseExpertModel makes uncontrolled agents follow their logged
	// trajectory instead of holding their initial pose.
	UseExpertModel bool `json:"use_expert_model" yaml:"use_expert_model"`
}

// Default returns the parameter set used by the replay consistency check.
func Default() Parameters {
	return Parameters{
		PolylineReductionThreshold: 0.5,
		ObservationRadius:          10.0,
		CollisionBehaviour:         AgentStop,
		DatasetInitOptions:         PadN,
		RewardParams: RewardParams{
			RewardType:                DistanceBased,
			DistanceToGoalThreshold:   1.0,
			DistanceToExpertThreshold: 1.0,
		},
		MaxNumControlledVehicles: 2,
		IgnoreNonVehicles:        true,
		UseExpertModel:           true,
	}
}

// Validate returns a *ConfigurationError for the first out-of-domain field.
func (p Parameters) Validate() error {
	if !p.RewardParams.RewardType.Valid() {
		return &ConfigurationError{Field: "reward_type", Value: fmt.Sprint(int(p.RewardParams.RewardType)), Reason: "unknown reward type"}
	}
	if !p.CollisionBehaviour.Valid() {
		return &ConfigurationError{Field: "collision_behaviour", Value: fmt.Sprint(int(p.CollisionBehaviour)), Reason: "unknown collision behaviour"}
	}
	if !p.DatasetInitOptions.Valid() {
		return &ConfigurationError{Field: "dataset_init", Value: fmt.Sprint(int(p.DatasetInitOptions)), Reason: "unknown dataset init option"}
	}
	if p.RewardParams.DistanceToGoalThreshold < 0 {
		return &ConfigurationError{Field: "distance_to_goal_threshold", Value: fmt.Sprint(p.RewardParams.DistanceToGoalThreshold), Reason: "must be non-negative"}
	}
	if p.RewardParams.DistanceToExpertThreshold < 0 {
		return &ConfigurationError{Field: "distance_to_expert_threshold", Value: fmt.Sprint(p.RewardParams.DistanceToExpertThreshold), Reason: "must be non-negative"}
	}
	if p.PolylineReductionThreshold < 0 {
		return &ConfigurationError{Field: "polyline_reduction_threshold", Value: fmt.Sprint(p.PolylineReductionThreshold), Reason: "must be non-negative"}
	}
	if p.ObservationRadius < 0 {
		return &ConfigurationError{Field: "observation_radius", Value: fmt.Sprint(p.ObservationRadius), Reason: "must be non-negative"}
	}
	if p.MaxNumControlledVehicles < 0 {
		return &ConfigurationError{Field: "max_num_controlled_vehicles", Value: fmt.Sprint(p.MaxNumControlledVehicles), Reason: "must be non-negative"}
	}
	return nil
}
