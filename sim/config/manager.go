package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	ErrPresetNotFound = errors.New("preset not found")
	ErrInvalidPreset  = errors.New("invalid preset")
)

// presetExtensions lists the supported file types in lookup order.
var presetExtensions = []string{".json", ".yaml", ".yml"}

// Manager handles preset loading and caching
type Manager struct {
	configDir     string
	defaultPreset *Preset
	presets       map[string]*Preset
	mu            sync.RWMutex
}

// NewManager creates a new preset manager
func NewManager(configDir string) (*Manager, error) {
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("config directory does not exist: %s", configDir)
	}

	m := &Manager{
		configDir: configDir,
		presets:   make(map[string]*Preset),
	}

	if err := m.loadDefaultPreset(); err != nil {
		return nil, fmt.Errorf("failed to load default preset: %w", err)
	}

	return m, nil
}

// LoadPreset loads a preset by name. The name may carry its file
// extension; without one, .json, .yaml and .yml are tried in that order.
// "classic" falls back to the built-in preset when no file defines it.
func (m *Manager) LoadPreset(name string) (*Preset, error) {
	id := presetID(name)

	m.mu.RLock()
	if preset, exists := m.presets[id]; exists {
		m.mu.RUnlock()
		return preset, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if preset, exists := m.presets[id]; exists {
		return preset, nil
	}

	path, err := m.resolve(name)
	if err != nil {
		if errors.Is(err, ErrPresetNotFound) && id == DefaultPresetName {
			preset := ClassicPreset()
			m.presets[id] = preset
			return preset, nil
		}
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read preset file: %w", err)
	}

	preset, err := DecodePreset(path, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse preset: %w", err)
	}
	if preset.Name == "" {
		preset.Name = id
	}

	if err := ValidatePreset(preset); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPreset, err)
	}

	m.presets[id] = preset
	return preset, nil
}

// ListPresets returns information about all valid presets on disk, plus the
// built-in classic preset when no file overrides it.
func (m *Manager) ListPresets() ([]*PresetInfo, error) {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	var presets []*PresetInfo
	seen := make(map[string]bool)

	for _, entry := range entries {
		if entry.IsDir() || !isPresetFile(entry.Name()) {
			continue
		}

		id := presetID(entry.Name())
		if seen[id] {
			continue
		}

		preset, err := m.LoadPreset(entry.Name())
		if err != nil {
			// Skip invalid presets
			continue
		}

		seen[id] = true
		presets = append(presets, preset.info(entry.Name(), id))
	}

	if !seen[DefaultPresetName] {
		presets = append(presets, ClassicPreset().info("", DefaultPresetName))
	}

	sort.Slice(presets, func(i, j int) bool {
		return presets[i].PresetID < presets[j].PresetID
	})
	return presets, nil
}

// GetDefault returns the default preset
func (m *Manager) GetDefault() *Preset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultPreset
}

// SetDefault sets the default preset by name
func (m *Manager) SetDefault(name string) error {
	preset, err := m.LoadPreset(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultPreset = preset
	return nil
}

// RefreshCache drops all cached presets and reloads the default
func (m *Manager) RefreshCache() error {
	m.mu.Lock()
	m.presets = make(map[string]*Preset)
	m.mu.Unlock()

	return m.loadDefaultPreset()
}

// SavePreset validates a preset and writes it to disk. Names ending in
// .yaml or .yml are written as YAML, anything else as JSON.
func (m *Manager) SavePreset(name string, preset *Preset) error {
	if err := ValidatePreset(preset); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPreset, err)
	}

	id := presetID(name)
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("%w: bad preset name %q", ErrInvalidPreset, name)
	}

	filename := name
	if !isPresetFile(filename) {
		filename = id + ".json"
	}

	var (
		data []byte
		err  error
	)
	if filepath.Ext(filename) == ".json" {
		data, err = json.MarshalIndent(preset, "", "  ")
	} else {
		data, err = yaml.Marshal(preset)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal preset: %w", err)
	}

	if err := os.WriteFile(filepath.Join(m.configDir, filename), data, 0644); err != nil {
		return fmt.Errorf("failed to write preset file: %w", err)
	}

	m.mu.Lock()
	m.presets[id] = preset
	m.mu.Unlock()

	return nil
}

// loadDefaultPreset loads classic, or the first preset on disk, or the
// built-in classic preset.
func (m *Manager) loadDefaultPreset() error {
	preset, err := m.LoadPreset(DefaultPresetName)
	if err != nil {
		infos, listErr := m.ListPresets()
		if listErr != nil || len(infos) == 0 {
			preset = ClassicPreset()
		} else if preset, err = m.LoadPreset(infos[0].PresetID); err != nil {
			preset = ClassicPreset()
		}
	}

	m.mu.Lock()
	m.defaultPreset = preset
	m.mu.Unlock()
	return nil
}

// resolve finds the file backing a preset name.
func (m *Manager) resolve(name string) (string, error) {
	candidates := []string{name}
	if !isPresetFile(name) {
		candidates = candidates[:0]
		for _, ext := range presetExtensions {
			candidates = append(candidates, name+ext)
		}
	}

	for _, candidate := range candidates {
		path := filepath.Join(m.configDir, candidate)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to stat preset file: %w", err)
		}
	}
	return "", ErrPresetNotFound
}

// DecodePreset decodes a preset file, JSON or YAML by extension. Unknown
// fields are rejected.
func DecodePreset(path string, data []byte) (*Preset, error) {
	var preset Preset
	if filepath.Ext(path) == ".json" {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&preset); err != nil {
			return nil, err
		}
		return &preset, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&preset); err != nil {
		return nil, err
	}
	return &preset, nil
}

func isPresetFile(name string) bool {
	ext := filepath.Ext(name)
	for _, e := range presetExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// presetID strips a known extension from a preset file name.
func presetID(name string) string {
	if isPresetFile(name) {
		return strings.TrimSuffix(name, filepath.Ext(name))
	}
	return name
}
