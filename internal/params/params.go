// Package params defines the engine-facing configuration model: the closed
// enums that select reward, collision and dataset-initialisation semantics,
// and the Parameters record passed by value into an engine at construction.
package params

import (
	"fmt"
	"strings"
)

// ConfigurationError reports an out-of-domain configuration value.
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// RewardType selects how per-agent reward is computed.
type RewardType int

const (
	DistanceBased RewardType = iota
	OnGoalAchieved
	Dense
)

var rewardTypeNames = []string{"distance_based", "on_goal_achieved", "dense"}

func (r RewardType) String() string {
	if r < 0 || int(r) >= len(rewardTypeNames) {
		return fmt.Sprintf("RewardType(%d)", int(r))
	}
	return rewardTypeNames[r]
}

// Valid reports whether r is one of the declared reward types.
func (r RewardType) Valid() bool {
	return r >= 0 && int(r) < len(rewardTypeNames)
}

func (r RewardType) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, &ConfigurationError{Field: "reward_type", Value: fmt.Sprint(int(r)), Reason: "unknown reward type"}
	}
	return []byte(r.String()), nil
}

func (r *RewardType) UnmarshalText(text []byte) error {
	v, err := ParseRewardType(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// ParseRewardType accepts the snake_case name or the CamelCase variant.
func ParseRewardType(s string) (RewardType, error) {
	i, ok := lookup(rewardTypeNames, s)
	if !ok {
		return 0, &ConfigurationError{Field: "reward_type", Value: s, Reason: "want one of " + strings.Join(rewardTypeNames, ", ")}
	}
	return RewardType(i), nil
}

// CollisionBehaviour selects what happens to an agent that collides.
type CollisionBehaviour int

const (
	AgentStop CollisionBehaviour = iota
	AgentRemoved
	Ignore
)

var collisionNames = []string{"agent_stop", "agent_removed", "ignore"}

func (c CollisionBehaviour) String() string {
	if c < 0 || int(c) >= len(collisionNames) {
		return fmt.Sprintf("CollisionBehaviour(%d)", int(c))
	}
	return collisionNames[c]
}

// Valid reports whether c is one of the declared behaviours.
func (c CollisionBehaviour) Valid() bool {
	return c >= 0 && int(c) < len(collisionNames)
}

func (c CollisionBehaviour) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, &ConfigurationError{Field: "collision_behaviour", Value: fmt.Sprint(int(c)), Reason: "unknown collision behaviour"}
	}
	return []byte(c.String()), nil
}

func (c *CollisionBehaviour) UnmarshalText(text []byte) error {
	v, err := ParseCollisionBehaviour(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseCollisionBehaviour accepts the snake_case name or the CamelCase variant.
func ParseCollisionBehaviour(s string) (CollisionBehaviour, error) {
	i, ok := lookup(collisionNames, s)
	if !ok {
		return 0, &ConfigurationError{Field: "collision_behaviour", Value: s, Reason: "want one of " + strings.Join(collisionNames, ", ")}
	}
	return CollisionBehaviour(i), nil
}

// DatasetInitOptions selects how scenario files are assigned to worlds.
type DatasetInitOptions int

const (
	// FirstN takes the first numWorlds scenarios in sorted order.
	FirstN DatasetInitOptions = iota
	// RandomN samples numWorlds scenarios with a seeded shuffle.
	RandomN
	// PadN cycles the available scenarios until every world has one.
	PadN
	// ExactN requires exactly numWorlds scenarios.
	ExactN
)

var datasetNames = []string{"first_n", "random_n", "pad_n", "exact_n"}

func (d DatasetInitOptions) String() string {
	if d < 0 || int(d) >= len(datasetNames) {
		return fmt.Sprintf("DatasetInitOptions(%d)", int(d))
	}
	return datasetNames[d]
}

// Valid reports whether d is one of the declared options.
func (d DatasetInitOptions) Valid() bool {
	return d >= 0 && int(d) < len(datasetNames)
}

func (d DatasetInitOptions) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, &ConfigurationError{Field: "dataset_init", Value: fmt.Sprint(int(d)), Reason: "unknown dataset init option"}
	}
	return []byte(d.String()), nil
}

func (d *DatasetInitOptions) UnmarshalText(text []byte) error {
	v, err := ParseDatasetInitOptions(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ParseDatasetInitOptions accepts the snake_case name or the CamelCase variant.
func ParseDatasetInitOptions(s string) (DatasetInitOptions, error) {
	i, ok := lookup(datasetNames, s)
	if !ok {
		return 0, &ConfigurationError{Field: "dataset_init", Value: s, Reason: "want one of " + strings.Join(datasetNames, ", ")}
	}
	return DatasetInitOptions(i), nil
}

// lookup matches s against names ignoring case and underscores, so
// "PadN", "pad_n" and "PADN" all resolve to the same entry.
func lookup(names []string, s string) (int, bool) {
	key := normalize(s)
	for i, n := range names {
		if normalize(n) == key {
			return i, true
		}
	}
	return 0, false
}

func normalize(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
}
