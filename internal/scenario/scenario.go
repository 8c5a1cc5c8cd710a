// Package scenario reads and writes logged driving scenarios: per-agent
// kinematic tracks sampled at a fixed interval plus road polylines.
package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nvandessel/simreplay/internal/constants"
)

// AgentType classifies a logged road user.
type AgentType string

const (
	Vehicle    AgentType = "vehicle"
	Pedestrian AgentType = "pedestrian"
	Cyclist    AgentType = "cyclist"
)

// Agent is one logged track. All per-step slices share the same length.
type Agent struct {
	ID         int          `json:"id"`
	Type       AgentType    `json:"type"`
	Length     float64      `json:"length"`
	Width      float64      `json:"width"`
	Positions  [][2]float64 `json:"positions"`
	Velocities [][2]float64 `json:"velocities"`
	Headings   []float64    `json:"headings"`
	Valid      []bool       `json:"valid"`
	Goal       [2]float64   `json:"goal"`
}

// Steps is the number of logged timesteps.
func (a *Agent) Steps() int { return len(a.Positions) }

// ValidAt reports whether the track is valid at step t. A missing valid
// mask means every step is valid.
func (a *Agent) ValidAt(t int) bool {
	if len(a.Valid) == 0 {
		return t >= 0 && t < a.Steps()
	}
	return t >= 0 && t < len(a.Valid) && a.Valid[t]
}

// IsVehicle reports whether the agent is a vehicle. An empty type counts as
// a vehicle.
func (a *Agent) IsVehicle() bool {
	return a.Type == Vehicle || a.Type == ""
}

// Road is a polyline of map points.
type Road struct {
	Points [][2]float64 `json:"points"`
}

// Scenario is one logged episode.
type Scenario struct {
	Name string `json:"name"`
	// Timestep is the sampling interval in seconds.
	Timestep float64 `json:"dt"`
	Agents   []Agent `json:"agents"`
	Roads    []Road  `json:"roads,omitempty"`

	// Source is the file the scenario was loaded from.
	Source string `json:"-"`
}

// Dt returns the sampling interval, falling back to the default.
func (s *Scenario) Dt() float64 {
	if s.Timestep > 0 {
		return s.Timestep
	}
	return constants.DefaultTimestep
}

// Validate checks every agent carries at least horizon steps of data.
func (s *Scenario) Validate(horizon int) error {
	if len(s.Agents) == 0 {
		return fmt.Errorf("scenario %q has no agents", s.Name)
	}
	if s.Timestep < 0 {
		return fmt.Errorf("scenario %q: negative dt %v", s.Name, s.Timestep)
	}
	for i := range s.Agents {
		a := &s.Agents[i]
		n := a.Steps()
		if n < horizon {
			return fmt.Errorf("scenario %q agent %d: %d steps, need %d", s.Name, a.ID, n, horizon)
		}
		if len(a.Velocities) != n || len(a.Headings) != n {
			return fmt.Errorf("scenario %q agent %d: positions, velocities and headings differ in length", s.Name, a.ID)
		}
		if len(a.Valid) != 0 && len(a.Valid) != n {
			return fmt.Errorf("scenario %q agent %d: valid mask has %d entries, want %d", s.Name, a.ID, len(a.Valid), n)
		}
		if a.Length < 0 || a.Width < 0 {
			return fmt.Errorf("scenario %q agent %d: negative extent", s.Name, a.ID)
		}
	}
	return nil
}

// Load reads a single scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var s Scenario
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	s.Source = path
	return &s, nil
}

// Files lists the scenario files under path: path itself when it is a
// file, or every *.json file in it when it is a directory, in lexical order.
func Files(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("scenario path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		names = append(names, filepath.Join(path, e.Name()))
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, errors.New("no scenario files in " + path)
	}
	return names, nil
}

// LoadAll loads every file Files lists for path.
func LoadAll(path string) ([]*Scenario, error) {
	files, err := Files(path)
	if err != nil {
		return nil, err
	}
	out := make([]*Scenario, 0, len(files))
	for _, f := range files {
		s, err := Load(f)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Write stores s as indented JSON, creating parent directories.
func Write(path string, s *Scenario) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating scenario dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding scenario: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing scenario: %w", err)
	}
	return nil
}
