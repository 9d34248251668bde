package session

import (
	"os"
	"testing"

	"github.com/wricardo/robot-simulator/sim/config"
	"github.com/wricardo/robot-simulator/sim/engine"
	"github.com/wricardo/robot-simulator/sim/logging"
)

func TestMain(m *testing.M) {
	logging.Silence()
	os.Exit(m.Run())
}

// fixedSource always returns the same index.
type fixedSource struct{ n int }

func (s fixedSource) IntN(n int) int { return s.n % n }

func openPreset() *config.Preset {
	return &config.Preset{Name: "open", Description: "Empty grid"}
}

func wallPreset() *config.Preset {
	return &config.Preset{
		Name:      "wall",
		Obstacles: []engine.Position{{X: 1, Y: 0}, {X: 0, Y: 2}},
	}
}

// newPresetManager returns a preset manager over a temp dir holding the
// open and wall presets.
func newPresetManager(t *testing.T) *config.Manager {
	t.Helper()
	presets, err := config.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create preset manager: %v", err)
	}
	if err := presets.SavePreset("open", openPreset()); err != nil {
		t.Fatalf("Failed to save open preset: %v", err)
	}
	if err := presets.SavePreset("wall.yaml", wallPreset()); err != nil {
		t.Fatalf("Failed to save wall preset: %v", err)
	}
	return presets
}
