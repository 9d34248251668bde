// Package config provides preset management for the robot simulator.
//
// A preset decides the obstacle layout of new sessions: either a random
// layout drawn between a minimum and maximum count, or a fixed list of
// cells. Presets live as JSON or YAML files in the configs directory:
//
//	name: classic
//	description: Random layout of 2-5 obstacles
//	random_obstacles: {min: 2, max: 5}
//
//	{"name": "corridor", "obstacles": [{"x": 1, "y": 0}, {"x": 1, "y": 1}]}
//
// grid_size and max_obstacles may be given for documentation purposes but
// must match the fixed grid; presets cannot change the grid.
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	preset, err := manager.LoadPreset("corridor")
//	eng, err := preset.NewEngine(rng)
//
//	presets, err := manager.ListPresets()
//
// When no classic preset exists on disk the built-in one is used, so a
// server can start with an empty configs directory.
package config
