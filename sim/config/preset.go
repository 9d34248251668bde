package config

import (
	"fmt"

	"github.com/wricardo/robot-simulator/sim/engine"
)

// DefaultPresetName is the preset used when a session does not ask for one.
const DefaultPresetName = "classic"

// RandomRange bounds the number of obstacles drawn for a random layout.
type RandomRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// Preset is a named obstacle policy for new sessions. A preset either
// draws a random layout (RandomObstacles set) or uses a fixed one; a fixed
// preset with no obstacles is an empty grid.
type Preset struct {
	Name            string            `json:"name" yaml:"name"`
	Description     string            `json:"description,omitempty" yaml:"description,omitempty"`
	GridSize        int               `json:"grid_size,omitempty" yaml:"grid_size,omitempty"`
	MaxObstacles    int               `json:"max_obstacles,omitempty" yaml:"max_obstacles,omitempty"`
	RandomObstacles *RandomRange      `json:"random_obstacles,omitempty" yaml:"random_obstacles,omitempty"`
	Obstacles       []engine.Position `json:"obstacles,omitempty" yaml:"obstacles,omitempty"`
}

// PresetInfo describes a preset in listings.
type PresetInfo struct {
	Filename     string            `json:"filename"`
	PresetID     string            `json:"preset_id"` // identifier to pass when creating a session
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Policy       string            `json:"policy"`
	MinObstacles int               `json:"min_obstacles"`
	MaxObstacles int               `json:"max_obstacles"`
	Obstacles    []engine.Position `json:"obstacles,omitempty"`
}

// ClassicPreset is the built-in preset: 2 to 5 random obstacles.
func ClassicPreset() *Preset {
	return &Preset{
		Name:        DefaultPresetName,
		Description: "Random layout of 2-5 obstacles",
		RandomObstacles: &RandomRange{
			Min: engine.DefaultMinObstacles,
			Max: engine.DefaultMaxObstacles,
		},
	}
}

// Fixed reports whether the preset uses a fixed layout.
func (p *Preset) Fixed() bool {
	return p.RandomObstacles == nil
}

// Policy returns "fixed" or "random".
func (p *Preset) Policy() string {
	if p.Fixed() {
		return "fixed"
	}
	return "random"
}

// Layout returns the fixed layout of the preset.
func (p *Preset) Layout() (engine.ObstacleSet, error) {
	if !p.Fixed() {
		return engine.ObstacleSet{}, fmt.Errorf("preset %q has a random layout", p.Name)
	}
	return engine.NewObstacleSet(p.Obstacles...)
}

// NewGenerator returns a generator for a random preset drawing from rng.
// Fixed presets have no generator and return nil.
func (p *Preset) NewGenerator(rng engine.RandSource) (*engine.Generator, error) {
	if p.Fixed() {
		return nil, nil
	}
	return engine.NewGenerator(rng, p.RandomObstacles.Min, p.RandomObstacles.Max)
}

// NewEngine builds an interactive engine following the preset policy.
func (p *Preset) NewEngine(rng engine.RandSource) (*engine.RobotEngine, error) {
	if p.Fixed() {
		layout, err := p.Layout()
		if err != nil {
			return nil, err
		}
		return engine.NewEngine(layout, nil), nil
	}

	gen, err := p.NewGenerator(rng)
	if err != nil {
		return nil, err
	}
	return engine.NewRandomEngine(gen), nil
}

// ValidatePreset checks a preset against the grid rules.
func ValidatePreset(p *Preset) error {
	if p == nil {
		return fmt.Errorf("preset is nil")
	}
	if p.Name == "" {
		return fmt.Errorf("preset name is required")
	}
	if err := engine.ValidateGridSettings(p.GridSize, p.MaxObstacles); err != nil {
		return err
	}
	if p.RandomObstacles != nil {
		if len(p.Obstacles) > 0 {
			return fmt.Errorf("random_obstacles and obstacles cannot both be set")
		}
		return engine.ValidateGenerationRange(p.RandomObstacles.Min, p.RandomObstacles.Max)
	}
	if _, err := engine.NewObstacleSet(p.Obstacles...); err != nil {
		return fmt.Errorf("fixed layout: %w", err)
	}
	return nil
}

func (p *Preset) info(filename, id string) *PresetInfo {
	info := &PresetInfo{
		Filename:    filename,
		PresetID:    id,
		Name:        p.Name,
		Description: p.Description,
		Policy:      p.Policy(),
	}
	if p.Fixed() {
		info.MinObstacles = len(p.Obstacles)
		info.MaxObstacles = len(p.Obstacles)
		info.Obstacles = p.Obstacles
	} else {
		info.MinObstacles = p.RandomObstacles.Min
		info.MaxObstacles = p.RandomObstacles.Max
	}
	return info
}
