package session

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/wricardo/robot-simulator/sim/config"
	"github.com/wricardo/robot-simulator/sim/engine"
	"github.com/wricardo/robot-simulator/sim/service"
)

const sessionExt = ".json"

// FilePersistence keeps one JSON file per session in a directory. Files
// are named after the lower-cased session ID.
type FilePersistence struct {
	sessionsDir   string
	presetManager service.PresetManager
	newSource     func() engine.RandSource
}

var _ SessionPersistence = (*FilePersistence)(nil)

// NewFilePersistence creates sessionsDir if needed. Presets are resolved
// through presetManager when sessions are loaded.
func NewFilePersistence(sessionsDir string, presetManager service.PresetManager) (*FilePersistence, error) {
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	return &FilePersistence{
		sessionsDir:   sessionsDir,
		presetManager: presetManager,
		newSource:     randomSource,
	}, nil
}

// Save writes the session snapshot, replacing any previous file in one
// rename.
func (fp *FilePersistence) Save(session *service.Session) error {
	if session == nil {
		return fmt.Errorf("session cannot be nil")
	}

	presetID, err := fp.presetIDFor(session.Preset)
	if err != nil {
		return fmt.Errorf("failed to get preset ID: %w", err)
	}

	data, err := json.MarshalIndent(SessionFile{
		ID:             session.ID,
		PresetName:     presetID,
		CreatedAt:      session.CreatedAt,
		LastAccessedAt: session.LastAccessed(),
		Engine:         session.Engine.Snapshot(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}

	tmp, err := os.CreateTemp(fp.sessionsDir, ".session-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fp.path(session.ID)); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Load rebuilds a session from its file. The preset is reloaded so the
// session keeps its obstacle policy for later resets, and the engine
// replays the stored commands; a file whose counters disagree with the
// replay is rejected with engine.ErrInvalidSnapshot.
func (fp *FilePersistence) Load(id string) (*service.Session, error) {
	raw, err := os.ReadFile(fp.path(id))
	if os.IsNotExist(err) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var file SessionFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session data: %w", err)
	}

	preset, err := fp.presetManager.LoadPreset(file.PresetName)
	if err != nil {
		return nil, fmt.Errorf("failed to load preset '%s': %w", file.PresetName, err)
	}

	eng, err := preset.NewEngine(fp.newSource())
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	if err := eng.Restore(file.Engine); err != nil {
		return nil, fmt.Errorf("failed to restore engine: %w", err)
	}

	sess := &service.Session{
		ID:        file.ID,
		Engine:    eng,
		Preset:    preset,
		CreatedAt: file.CreatedAt,
	}
	sess.Touch(file.LastAccessedAt)
	return sess, nil
}

// Delete removes the session file.
func (fp *FilePersistence) Delete(id string) error {
	err := os.Remove(fp.path(id))
	if os.IsNotExist(err) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// ListAll returns the IDs of all session files. Temp files of interrupted
// saves are skipped.
func (fp *FilePersistence) ListAll() ([]string, error) {
	entries, err := os.ReadDir(fp.sessionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != sessionExt {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, sessionExt))
	}
	return ids, nil
}

// Exists reports whether a file exists for id.
func (fp *FilePersistence) Exists(id string) bool {
	_, err := os.Stat(fp.path(id))
	return err == nil
}

func (fp *FilePersistence) path(id string) string {
	return filepath.Join(fp.sessionsDir, key(id)+sessionExt)
}

// presetIDFor maps a preset back to the identifier it is loaded by. Presets
// not found on disk are stored under their name.
func (fp *FilePersistence) presetIDFor(preset *config.Preset) (string, error) {
	if preset == nil {
		return config.DefaultPresetName, nil
	}

	infos, err := fp.presetManager.ListPresets()
	if err != nil {
		return "", fmt.Errorf("failed to list presets: %w", err)
	}
	for _, info := range infos {
		if info.Name == preset.Name {
			return info.PresetID, nil
		}
	}
	return preset.Name, nil
}

func randomSource() engine.RandSource {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}
