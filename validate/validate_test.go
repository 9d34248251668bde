package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wricardo/robot-simulator/sim/engine"
)

func writePreset(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write preset: %v", err)
	}
	return path
}

func containsLine(lines []string, substr string) bool {
	for _, line := range lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func TestValidateConfig(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name          string
		file          string
		content       string
		expectValid   bool
		expectMessage string
	}{
		{
			name: "Random preset",
			file: "classic.yaml",
			content: `name: classic
random_obstacles:
  min: 2
  max: 5
`,
			expectValid:   true,
			expectMessage: "Random obstacles: 2 to 5",
		},
		{
			name:          "Fixed JSON preset",
			file:          "corridor.json",
			content:       `{"name": "corridor", "obstacles": [{"x": 1, "y": 1}, {"x": 2, "y": 1}, {"x": 3, "y": 1}]}`,
			expectValid:   true,
			expectMessage: "Connectivity: all 22 free cells reachable",
		},
		{
			name:          "Empty fixed preset",
			file:          "open.yml",
			content:       "name: open\n",
			expectValid:   true,
			expectMessage: "^....",
		},
		{
			name: "Unreachable corner is only reported",
			file: "corner.yaml",
			content: `name: corner
obstacles:
  - {x: 3, y: 4}
  - {x: 4, y: 3}
`,
			expectValid:   true,
			expectMessage: "Unreachable: (4,4)",
		},
		{
			name: "Boxed in start",
			file: "boxed.yaml",
			content: `name: boxed
obstacles:
  - {x: 1, y: 0}
  - {x: 0, y: 1}
`,
			expectValid:   false,
			expectMessage: "cannot leave the start cell",
		},
		{
			name:          "Obstacle on start",
			file:          "start.json",
			content:       `{"name": "start", "obstacles": [{"x": 0, "y": 0}]}`,
			expectValid:   false,
			expectMessage: "fixed layout",
		},
		{
			name:          "Unknown field",
			file:          "speed.json",
			content:       `{"name": "speed", "max_speed": 10}`,
			expectValid:   false,
			expectMessage: "Invalid preset file",
		},
		{
			name:          "Both policies",
			file:          "both.json",
			content:       `{"name": "both", "random_obstacles": {"min": 1, "max": 2}, "obstacles": [{"x": 1, "y": 1}]}`,
			expectValid:   false,
			expectMessage: "cannot both be set",
		},
		{
			name:          "Name defaults to the file name",
			file:          "noname.json",
			content:       `{"obstacles": []}`,
			expectValid:   true,
			expectMessage: "Name: noname",
		},
		{
			name:          "Wrong grid size",
			file:          "big.json",
			content:       `{"name": "big", "grid_size": 10}`,
			expectValid:   false,
			expectMessage: "grid_size is fixed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validateConfig(writePreset(t, dir, tt.file, tt.content))

			if result.File != tt.file {
				t.Errorf("Expected file %s, got %s", tt.file, result.File)
			}
			if result.Valid != tt.expectValid {
				t.Errorf("Expected valid=%v, got %v: %v", tt.expectValid, result.Valid, result.Errors)
			}
			if !containsLine(result.Errors, tt.expectMessage) {
				t.Errorf("Expected a message containing %q, got %v", tt.expectMessage, result.Errors)
			}
		})
	}
}

func TestValidateConfig_MissingFile(t *testing.T) {
	result := validateConfig(filepath.Join(t.TempDir(), "missing.json"))
	if result.Valid {
		t.Error("Expected a missing file to be invalid")
	}
	if !containsLine(result.Errors, "Failed to read file") {
		t.Errorf("Expected a read error, got %v", result.Errors)
	}
}

func TestValidateConnectivity(t *testing.T) {
	tests := []struct {
		name        string
		layout      engine.ObstacleSet
		expectValid bool
		unreachable int
	}{
		{"Empty grid", engine.ObstacleSet{}, true, 0},
		{"Wall with a gap", engine.MustObstacleSet(
			engine.Position{X: 0, Y: 2}, engine.Position{X: 1, Y: 2}, engine.Position{X: 2, Y: 2}, engine.Position{X: 3, Y: 2},
		), true, 0},
		{"Closed wall", engine.MustObstacleSet(
			engine.Position{X: 0, Y: 2}, engine.Position{X: 1, Y: 2}, engine.Position{X: 2, Y: 2}, engine.Position{X: 3, Y: 2}, engine.Position{X: 4, Y: 2},
		), true, 10},
		{"Boxed in", engine.MustObstacleSet(engine.Position{X: 1, Y: 0}, engine.Position{X: 0, Y: 1}), false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validateConnectivity(tt.layout)
			if result.Valid != tt.expectValid {
				t.Fatalf("Expected valid=%v, got %v: %v", tt.expectValid, result.Valid, result.Errors)
			}

			count := 0
			for _, msg := range result.Errors {
				if strings.HasPrefix(msg, "⚠ Unreachable:") {
					count++
				}
			}
			if count != tt.unreachable {
				t.Errorf("Expected %d unreachable cells, got %d: %v", tt.unreachable, count, result.Errors)
			}
		})
	}
}

func TestPresetFiles(t *testing.T) {
	dir := t.TempDir()
	writePreset(t, dir, "a.json", "{}")
	writePreset(t, dir, "b.yaml", "")
	writePreset(t, dir, "c.yml", "")
	writePreset(t, dir, "notes.txt", "")

	files, err := presetFiles(dir)
	if err != nil {
		t.Fatalf("presetFiles failed: %v", err)
	}
	if len(files) != 3 {
		t.Errorf("Expected 3 preset files, got %v", files)
	}
}
