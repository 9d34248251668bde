// Command validate provides a small CLI that validates obstacle preset
// files (JSON or YAML) in the ../configs directory, or the directory given
// as the first argument. It checks:
//   - Structure, with unknown fields rejected
//   - Grid settings and the random obstacle range
//   - Fixed layouts: in bounds, no duplicates, start cell free
//   - Connectivity: the robot can leave the start cell, and which free
//     cells it can never reach
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wricardo/robot-simulator/sim/config"
	"github.com/wricardo/robot-simulator/sim/engine"
	"github.com/wricardo/robot-simulator/sim/render"
)

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
}

func (r *ValidationResult) fail(format string, args ...interface{}) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) note(format string, args ...interface{}) {
	r.Errors = append(r.Errors, "✓ "+fmt.Sprintf(format, args...))
}

// validateConfig loads and validates a single preset file.
func validateConfig(filePath string) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.fail("Failed to read file: %v", err)
		return result
	}

	preset, err := config.DecodePreset(filePath, data)
	if err != nil {
		result.fail("Invalid preset file: %v", err)
		return result
	}

	if preset.Name == "" {
		// The server names such presets after their file
		preset.Name = strings.TrimSuffix(result.File, filepath.Ext(result.File))
	}

	if err := config.ValidatePreset(preset); err != nil {
		result.fail("%v", err)
		return result
	}

	result.note("Name: %s", preset.Name)
	result.note("Policy: %s", preset.Policy())

	if !preset.Fixed() {
		result.note("Random obstacles: %d to %d", preset.RandomObstacles.Min, preset.RandomObstacles.Max)
		return result
	}

	layout, _ := preset.Layout()
	result.note("Obstacles: %d", layout.Len())

	connectivity := validateConnectivity(layout)
	if !connectivity.Valid {
		result.Valid = false
	}
	result.Errors = append(result.Errors, connectivity.Errors...)

	if result.Valid {
		for _, row := range render.Rows(engine.StartState(), layout) {
			result.note("%s", row)
		}
	}
	return result
}

// validateConnectivity flood-fills from the start cell. A robot that cannot
// leave the start cell is an error; free cells it can never reach are only
// reported.
func validateConnectivity(layout engine.ObstacleSet) ValidationResult {
	result := ValidationResult{
		Valid:  true,
		Errors: []string{},
	}

	free := engine.GridSize*engine.GridSize - layout.Len()
	reachable := engine.Reachable(layout)

	if len(reachable) == 1 && free > 1 {
		result.fail("Connectivity failure: robot cannot leave the start cell %s", engine.StartPosition)
		return result
	}

	if unreachable := free - len(reachable); unreachable > 0 {
		seen := make(map[engine.Position]bool, len(reachable))
		for _, p := range reachable {
			seen[p] = true
		}

		result.Errors = append(result.Errors, fmt.Sprintf("⚠ Connectivity: %d/%d free cells unreachable from start", unreachable, free))
		for y := 0; y < engine.GridSize; y++ {
			for x := 0; x < engine.GridSize; x++ {
				p := engine.Position{X: x, Y: y}
				if !seen[p] && !layout.Contains(p) {
					result.Errors = append(result.Errors, fmt.Sprintf("⚠ Unreachable: %s", p))
				}
			}
		}
		return result
	}

	result.note("Connectivity: all %d free cells reachable from start", free)
	return result
}

// presetFiles lists the preset files in dir.
func presetFiles(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.json", "*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	return files, nil
}

// main validates each preset file, printing a concise report and exiting
// with non-zero status if any are invalid.
func main() {
	configDir := "../configs"
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	files, err := presetFiles(configDir)
	if err != nil {
		fmt.Printf("Error finding preset files: %v\n", err)
		os.Exit(1)
	}

	allValid := true
	for _, file := range files {
		result := validateConfig(file)

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Errors {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Println("  ❌ " + err)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All presets are valid!")
	} else {
		fmt.Println("❌ Some presets have errors")
		os.Exit(1)
	}
}
