package params

import (
	"errors"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	p := Default()

	if p.RewardParams.RewardType != DistanceBased {
		t.Errorf("RewardType = %v, want %v", p.RewardParams.RewardType, DistanceBased)
	}
	if p.CollisionBehaviour != AgentStop {
		t.Errorf("CollisionBehaviour = %v, want %v", p.CollisionBehaviour, AgentStop)
	}
	if p.DatasetInitOptions != PadN {
		t.Errorf("DatasetInitOptions = %v, want %v", p.DatasetInitOptions, PadN)
	}
	if p.MaxNumControlledVehicles != 2 {
		t.Errorf("MaxNumControlledVehicles = %d, want 2", p.MaxNumControlledVehicles)
	}
	if !p.IgnoreNonVehicles || !p.UseExpertModel {
		t.Error("expected IgnoreNonVehicles and UseExpertModel to be enabled")
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestParseEnums(t *testing.T) {
	tests := []struct {
		name  string
		parse func(string) (int, error)
		in    string
		want  int
	}{
		{"reward snake", wrapReward, "on_goal_achieved", int(OnGoalAchieved)},
		{"reward camel", wrapReward, "DistanceBased", int(DistanceBased)},
		{"collision", wrapCollision, "AgentRemoved", int(AgentRemoved)},
		{"collision ignore", wrapCollision, "ignore", int(Ignore)},
		{"dataset pad", wrapDataset, "PadN", int(PadN)},
		{"dataset exact", wrapDataset, "exact_n", int(ExactN)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.parse(tt.in)
			if err != nil {
				t.Fatalf("parse(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parse(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func wrapReward(s string) (int, error) {
	v, err := ParseRewardType(s)
	return int(v), err
}

func wrapCollision(s string) (int, error) {
	v, err := ParseCollisionBehaviour(s)
	return int(v), err
}

func wrapDataset(s string) (int, error) {
	v, err := ParseDatasetInitOptions(s)
	return int(v), err
}

func TestParseUnknownIsConfigurationError(t *testing.T) {
	_, err := ParseCollisionBehaviour("bounce")
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigurationError, got %T", err)
	}
	if cfgErr.Field != "collision_behaviour" || cfgErr.Value != "bounce" {
		t.Errorf("got field=%q value=%q", cfgErr.Field, cfgErr.Value)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Parameters)
		field  string
	}{
		{"reward out of range", func(p *Parameters) { p.RewardParams.RewardType = 7 }, "reward_type"},
		{"collision out of range", func(p *Parameters) { p.CollisionBehaviour = -1 }, "collision_behaviour"},
		{"dataset out of range", func(p *Parameters) { p.DatasetInitOptions = 4 }, "dataset_init"},
		{"negative goal threshold", func(p *Parameters) { p.RewardParams.DistanceToGoalThreshold = -1 }, "distance_to_goal_threshold"},
		{"negative radius", func(p *Parameters) { p.ObservationRadius = -0.5 }, "observation_radius"},
		{"negative controlled", func(p *Parameters) { p.MaxNumControlledVehicles = -2 }, "max_num_controlled_vehicles"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Default()
			tt.mutate(&p)
			err := p.Validate()
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() = %v, want *ConfigurationError", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}

func TestParametersYAML(t *testing.T) {
	src := `
collision_behaviour: AgentRemoved
dataset_init: first_n
reward:
  reward_type: dense
  distance_to_expert_threshold: 2.5
max_num_controlled_vehicles: 4
`
	p := Default()
	if err := yaml.Unmarshal([]byte(src), &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if p.CollisionBehaviour != AgentRemoved {
		t.Errorf("CollisionBehaviour = %v, want agent_removed", p.CollisionBehaviour)
	}
	if p.DatasetInitOptions != FirstN {
		t.Errorf("DatasetInitOptions = %v, want first_n", p.DatasetInitOptions)
	}
	if p.RewardParams.RewardType != Dense || p.RewardParams.DistanceToExpertThreshold != 2.5 {
		t.Errorf("RewardParams = %+v", p.RewardParams)
	}
	// Unset fields keep their defaults.
	if p.RewardParams.DistanceToGoalThreshold != 1.0 {
		t.Errorf("DistanceToGoalThreshold = %v, want 1.0", p.RewardParams.DistanceToGoalThreshold)
	}

	out, err := yaml.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back Parameters
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("Unmarshal round trip: %v", err)
	}
	if back != p {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", back, p)
	}
}

func TestParametersYAMLRejectsUnknownEnum(t *testing.T) {
	p := Default()
	err := yaml.Unmarshal([]byte("collision_behaviour: bounce\n"), &p)
	if err == nil {
		t.Fatal("expected error for unknown collision behaviour")
	}
}
