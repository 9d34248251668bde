package config

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/wricardo/robot-simulator/sim/engine"
)

func createValidPreset() *Preset {
	return &Preset{
		Name:        "Test Preset",
		Description: "Test preset",
		Obstacles:   []engine.Position{{X: 1, Y: 0}, {X: 2, Y: 2}},
	}
}

func writePresetFile(t *testing.T, dir, filename string, preset *Preset) {
	t.Helper()
	data, err := json.MarshalIndent(preset, "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal preset: %v", err)
	}
	if filepath.Ext(filename) == "" {
		filename += ".json"
	}
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0644); err != nil {
		t.Fatalf("Failed to write preset file: %v", err)
	}
}

func writeRawFile(t *testing.T, dir, filename, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", filename, err)
	}
}

func TestNewManager(t *testing.T) {
	t.Run("valid directory", func(t *testing.T) {
		dir := t.TempDir()
		writePresetFile(t, dir, "corridor", createValidPreset())

		manager, err := NewManager(dir)
		if err != nil {
			t.Fatalf("Failed to create manager: %v", err)
		}
		if manager == nil {
			t.Error("Expected manager to be non-nil")
		}
	})

	t.Run("non-existent directory", func(t *testing.T) {
		if _, err := NewManager("/non/existent/path"); err == nil {
			t.Error("Expected error for non-existent directory")
		}
	})

	t.Run("empty directory uses built-in classic", func(t *testing.T) {
		manager, err := NewManager(t.TempDir())
		if err != nil {
			t.Fatalf("NewManager should succeed without preset files, got: %v", err)
		}

		def := manager.GetDefault()
		if def == nil || def.Name != DefaultPresetName {
			t.Fatalf("Expected built-in classic default, got %+v", def)
		}
		if def.Fixed() {
			t.Error("Expected classic to use a random layout")
		}
		if def.RandomObstacles.Min != engine.DefaultMinObstacles || def.RandomObstacles.Max != engine.DefaultMaxObstacles {
			t.Errorf("Unexpected classic range %+v", def.RandomObstacles)
		}
	})
}

func TestManager_LoadPreset(t *testing.T) {
	dir := t.TempDir()
	writePresetFile(t, dir, "corridor", createValidPreset())
	writeRawFile(t, dir, "sparse.yaml", `
name: Sparse
description: One or two obstacles
random_obstacles:
  min: 1
  max: 2
`)
	writeRawFile(t, dir, "wall.yml", `
name: Wall
grid_size: 5
obstacles:
  - {x: 2, y: 0}
  - {x: 2, y: 1}
  - {x: 2, y: 2}
`)

	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	t.Run("load json", func(t *testing.T) {
		preset, err := manager.LoadPreset("corridor")
		if err != nil {
			t.Fatalf("Failed to load preset: %v", err)
		}
		if preset.Name != "Test Preset" || !preset.Fixed() {
			t.Errorf("Unexpected preset %+v", preset)
		}
	})

	t.Run("load with extension", func(t *testing.T) {
		preset, err := manager.LoadPreset("corridor.json")
		if err != nil {
			t.Fatalf("Failed to load preset with extension: %v", err)
		}
		if preset.Name != "Test Preset" {
			t.Errorf("Expected 'Test Preset', got '%s'", preset.Name)
		}
	})

	t.Run("load yaml random", func(t *testing.T) {
		preset, err := manager.LoadPreset("sparse")
		if err != nil {
			t.Fatalf("Failed to load YAML preset: %v", err)
		}
		if preset.Fixed() || preset.RandomObstacles.Min != 1 || preset.RandomObstacles.Max != 2 {
			t.Errorf("Unexpected preset %+v", preset)
		}
	})

	t.Run("load yml fixed", func(t *testing.T) {
		preset, err := manager.LoadPreset("wall")
		if err != nil {
			t.Fatalf("Failed to load YML preset: %v", err)
		}
		layout, err := preset.Layout()
		if err != nil {
			t.Fatalf("Failed to build layout: %v", err)
		}
		if layout.Len() != 3 || !layout.Contains(engine.Position{X: 2, Y: 1}) {
			t.Errorf("Unexpected layout %s", layout)
		}
	})

	t.Run("load from cache", func(t *testing.T) {
		first, _ := manager.LoadPreset("corridor")
		second, err := manager.LoadPreset("corridor")
		if err != nil {
			t.Fatalf("Failed to load preset from cache: %v", err)
		}
		if first != second {
			t.Error("Expected preset to be loaded from cache")
		}
	})

	t.Run("load non-existent preset", func(t *testing.T) {
		if _, err := manager.LoadPreset("non-existent"); !errors.Is(err, ErrPresetNotFound) {
			t.Errorf("Expected ErrPresetNotFound, got %v", err)
		}
	})

	invalid := []struct {
		name     string
		filename string
		content  string
	}{
		{"obstacle on start", "start.json", `{"name": "start", "obstacles": [{"x": 0, "y": 0}]}`},
		{"grid size drift", "big.yaml", "name: big\ngrid_size: 10\n"},
		{"max obstacles drift", "many.json", `{"name": "many", "max_obstacles": 8}`},
		{"range above capacity", "range.yaml", "name: range\nrandom_obstacles: {min: 2, max: 9}\n"},
		{"both policies", "both.json", `{"name": "both", "random_obstacles": {"min": 1, "max": 2}, "obstacles": [{"x": 1, "y": 1}]}`},
		{"too many obstacles", "crowded.json", `{"name": "crowded", "obstacles": [{"x":1,"y":0},{"x":2,"y":0},{"x":3,"y":0},{"x":4,"y":0},{"x":1,"y":1},{"x":2,"y":1}]}`},
	}

	for _, test := range invalid {
		t.Run(test.name, func(t *testing.T) {
			writeRawFile(t, dir, test.filename, test.content)
			if _, err := manager.LoadPreset(test.filename); !errors.Is(err, ErrInvalidPreset) {
				t.Errorf("Expected ErrInvalidPreset, got %v", err)
			}
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		writeRawFile(t, dir, "malformed.json", `{"name": "Malformed", invalid json}`)
		if _, err := manager.LoadPreset("malformed"); err == nil {
			t.Error("Expected error for malformed JSON")
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		writeRawFile(t, dir, "typo.yaml", "name: typo\nrandom_obstacle: {min: 1, max: 2}\n")
		if _, err := manager.LoadPreset("typo"); err == nil {
			t.Error("Expected error for unknown YAML field")
		}
	})
}

func TestManager_ListPresets(t *testing.T) {
	dir := t.TempDir()
	writePresetFile(t, dir, "corridor", createValidPreset())
	writeRawFile(t, dir, "sparse.yaml", "name: Sparse\nrandom_obstacles: {min: 1, max: 2}\n")
	writeRawFile(t, dir, "broken.json", `{"name": "broken", "grid_size": 7}`)
	writeRawFile(t, dir, "readme.txt", "readme")

	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	presets, err := manager.ListPresets()
	if err != nil {
		t.Fatalf("Failed to list presets: %v", err)
	}

	ids := make([]string, len(presets))
	for i, info := range presets {
		ids[i] = info.PresetID
	}
	expected := []string{"classic", "corridor", "sparse"}
	if len(ids) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, ids)
	}
	for i := range expected {
		if ids[i] != expected[i] {
			t.Errorf("Expected %v, got %v", expected, ids)
			break
		}
	}

	for _, info := range presets {
		switch info.PresetID {
		case "corridor":
			if info.Policy != "fixed" || info.MinObstacles != 2 || info.Filename != "corridor.json" {
				t.Errorf("Unexpected corridor info %+v", info)
			}
		case "sparse":
			if info.Policy != "random" || info.MinObstacles != 1 || info.MaxObstacles != 2 {
				t.Errorf("Unexpected sparse info %+v", info)
			}
		case "classic":
			if info.Filename != "" {
				t.Errorf("Expected built-in classic to have no file, got %q", info.Filename)
			}
		}
	}
}

func TestManager_SavePreset(t *testing.T) {
	dir := t.TempDir()
	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	t.Run("json by default", func(t *testing.T) {
		if err := manager.SavePreset("saved", createValidPreset()); err != nil {
			t.Fatalf("Failed to save preset: %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, "saved.json")); err != nil {
			t.Errorf("Expected saved.json on disk: %v", err)
		}
	})

	t.Run("yaml by extension", func(t *testing.T) {
		preset := &Preset{Name: "few", RandomObstacles: &RandomRange{Min: 0, Max: 1}}
		if err := manager.SavePreset("few.yaml", preset); err != nil {
			t.Fatalf("Failed to save YAML preset: %v", err)
		}

		fresh, err := NewManager(dir)
		if err != nil {
			t.Fatalf("Failed to create manager: %v", err)
		}
		loaded, err := fresh.LoadPreset("few")
		if err != nil {
			t.Fatalf("Failed to reload saved preset: %v", err)
		}
		if loaded.Fixed() || loaded.RandomObstacles.Max != 1 {
			t.Errorf("Unexpected reloaded preset %+v", loaded)
		}
	})

	t.Run("invalid preset rejected", func(t *testing.T) {
		bad := &Preset{Name: "bad", Obstacles: []engine.Position{{X: 9, Y: 9}}}
		if err := manager.SavePreset("bad", bad); !errors.Is(err, ErrInvalidPreset) {
			t.Errorf("Expected ErrInvalidPreset, got %v", err)
		}
	})

	t.Run("path names rejected", func(t *testing.T) {
		if err := manager.SavePreset("../escape", createValidPreset()); !errors.Is(err, ErrInvalidPreset) {
			t.Errorf("Expected ErrInvalidPreset, got %v", err)
		}
	})
}

func TestManager_ReloadPreset(t *testing.T) {
	dir := t.TempDir()
	preset := createValidPreset()
	writePresetFile(t, dir, "changeable", preset)

	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	loaded, _ := manager.LoadPreset("changeable")
	if len(loaded.Obstacles) != 2 {
		t.Errorf("Expected 2 obstacles, got %d", len(loaded.Obstacles))
	}

	preset.Obstacles = append(preset.Obstacles, engine.Position{X: 4, Y: 4})
	writePresetFile(t, dir, "changeable", preset)

	if err := manager.ReloadPreset("changeable"); err != nil {
		t.Fatalf("Failed to reload preset: %v", err)
	}

	reloaded, _ := manager.LoadPreset("changeable")
	if len(reloaded.Obstacles) != 3 {
		t.Errorf("Expected 3 obstacles after reload, got %d", len(reloaded.Obstacles))
	}
}

func TestPreset_NewEngine(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))

	t.Run("fixed layout", func(t *testing.T) {
		eng, err := createValidPreset().NewEngine(rng)
		if err != nil {
			t.Fatalf("Failed to create engine: %v", err)
		}
		if eng.Obstacles().Len() != 2 {
			t.Errorf("Expected fixed layout of 2, got %s", eng.Obstacles())
		}

		// Fixed presets keep their layout across resets.
		eng.Reset()
		if eng.Obstacles().Len() != 2 {
			t.Errorf("Expected layout kept after reset, got %s", eng.Obstacles())
		}
	})

	t.Run("random layout", func(t *testing.T) {
		preset := &Preset{Name: "three", RandomObstacles: &RandomRange{Min: 3, Max: 3}}
		eng, err := preset.NewEngine(rng)
		if err != nil {
			t.Fatalf("Failed to create engine: %v", err)
		}
		if eng.Obstacles().Len() != 3 {
			t.Errorf("Expected 3 random obstacles, got %s", eng.Obstacles())
		}
	})

	t.Run("random preset has no fixed layout", func(t *testing.T) {
		if _, err := ClassicPreset().Layout(); err == nil {
			t.Error("Expected error asking a random preset for its layout")
		}
	})
}

func TestManager_ConcurrentAccess(t *testing.T) {
	dir := t.TempDir()
	for i := 1; i <= 5; i++ {
		preset := createValidPreset()
		preset.Name = "Preset" + string(rune('0'+i))
		writePresetFile(t, dir, "preset"+string(rune('0'+i)), preset)
	}

	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 50)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			name := "preset" + string(rune('0'+((id%5)+1)))
			if _, err := manager.LoadPreset(name); err != nil {
				errs <- err
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Unexpected error during concurrent access: %v", err)
	}

	if manager.Count() < 5 {
		t.Errorf("Expected at least 5 presets in cache, got %d", manager.Count())
	}
}

// Test-only helpers

func (m *Manager) ReloadPreset(name string) error {
	m.mu.Lock()
	delete(m.presets, presetID(name))
	m.mu.Unlock()

	_, err := m.LoadPreset(name)
	return err
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.presets)
}

func TestShippedPresets(t *testing.T) {
	dir := filepath.Join("..", "..", "configs")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Skip("configs directory not found")
	}

	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	infos, err := manager.ListPresets()
	if err != nil {
		t.Fatalf("ListPresets failed: %v", err)
	}

	for _, info := range infos {
		t.Run(info.PresetID, func(t *testing.T) {
			preset, err := manager.LoadPreset(info.PresetID)
			if err != nil {
				t.Fatalf("LoadPreset failed: %v", err)
			}
			if _, err := preset.NewEngine(rand.New(rand.NewPCG(1, 2))); err != nil {
				t.Errorf("NewEngine failed: %v", err)
			}
		})
	}
}

func TestManager_DefaultAndRefresh(t *testing.T) {
	dir := t.TempDir()
	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if manager.GetDefault().Name != DefaultPresetName {
		t.Fatalf("Expected built-in default, got %q", manager.GetDefault().Name)
	}

	if err := manager.SavePreset("wall", createValidPreset()); err != nil {
		t.Fatalf("SavePreset failed: %v", err)
	}
	if err := manager.SetDefault("wall"); err != nil {
		t.Fatalf("SetDefault failed: %v", err)
	}
	if manager.GetDefault().Name != "Test Preset" {
		t.Errorf("Expected the wall preset as default, got %q", manager.GetDefault().Name)
	}
	if err := manager.SetDefault("missing"); !errors.Is(err, ErrPresetNotFound) {
		t.Errorf("Expected ErrPresetNotFound, got %v", err)
	}

	// Edit the file behind the cache
	edited := createValidPreset()
	edited.Obstacles = []engine.Position{{X: 4, Y: 4}}
	data, _ := json.Marshal(edited)
	if err := os.WriteFile(filepath.Join(dir, "wall.json"), data, 0644); err != nil {
		t.Fatalf("Failed to rewrite preset: %v", err)
	}

	cached, _ := manager.LoadPreset("wall")
	if len(cached.Obstacles) != 2 {
		t.Errorf("Expected the cached preset before refresh, got %v", cached.Obstacles)
	}

	if err := manager.RefreshCache(); err != nil {
		t.Fatalf("RefreshCache failed: %v", err)
	}
	fresh, _ := manager.LoadPreset("wall")
	if len(fresh.Obstacles) != 1 {
		t.Errorf("Expected the edited preset after refresh, got %v", fresh.Obstacles)
	}
}
