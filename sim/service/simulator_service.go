package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wricardo/robot-simulator/sim/config"
	"github.com/wricardo/robot-simulator/sim/engine"
	"github.com/wricardo/robot-simulator/sim/records"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrTraceMismatch   = errors.New("interactive trace does not match batch replay")
	ErrResultMismatch  = errors.New("result does not match its replay")
)

// SimulatorService defines all simulator operations
type SimulatorService interface {
	// Session Management
	CreateSession(ctx context.Context, presetName string) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Interactive Driving
	PressKey(ctx context.Context, sessionID, key string) (*KeyResult, error)
	PressKeys(ctx context.Context, sessionID string, keys []string) (*CommandsResult, error)
	ApplyCommands(ctx context.Context, sessionID, commands string) (*CommandsResult, error)
	SetEditMode(ctx context.Context, sessionID string, enabled bool) (*StateView, error)
	ToggleObstacle(ctx context.Context, sessionID string, pos engine.Position) (*ToggleResult, error)
	Reset(ctx context.Context, sessionID string) (*StateView, error)

	// State
	GetState(ctx context.Context, sessionID string) (*StateView, error)
	GetTrace(ctx context.Context, sessionID string, opts HistoryOptions) (*TraceResponse, error)

	// Batch
	Simulate(ctx context.Context, req SimulateRequest) (*engine.SimulationResult, error)

	// Persistence
	SaveSimulation(ctx context.Context, userID, sessionID string) (*SaveResult, error)
	SaveResult(ctx context.Context, userID string, result engine.SimulationResult) (*SaveResult, error)
	History(ctx context.Context, userID string, limit int) ([]*records.Record, error)

	// Narration
	Narrate(ctx context.Context, sessionID, question string) (*NarrationResult, error)
	NarrationContext(ctx context.Context, sessionID string) (*NarrationContext, error)

	// Presets
	ListPresets(ctx context.Context) ([]*config.PresetInfo, error)
	LoadPreset(ctx context.Context, presetName string) (*config.Preset, error)
	SavePreset(ctx context.Context, presetName string, preset *config.Preset) error
}

// SessionManager defines session storage operations
type SessionManager interface {
	Create(id string, preset *config.Preset) (*Session, error)
	Get(id string) (*Session, error)
	GetOrCreate(id string, preset *config.Preset) (*Session, error)
	List() []*Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
	Save(id string) error
}

// PresetManager handles preset loading
type PresetManager interface {
	LoadPreset(name string) (*config.Preset, error)
	ListPresets() ([]*config.PresetInfo, error)
	GetDefault() *config.Preset
	SavePreset(name string, preset *config.Preset) error
}

// Session represents an active simulator session. The access time is
// guarded by its own lock; use Touch and LastAccessed.
type Session struct {
	ID        string
	Engine    *engine.RobotEngine
	Preset    *config.Preset
	CreatedAt time.Time

	accessMu     sync.Mutex
	lastAccessed time.Time
}

// Touch records t as the last access time.
func (s *Session) Touch(t time.Time) {
	s.accessMu.Lock()
	s.lastAccessed = t
	s.accessMu.Unlock()
}

// LastAccessed returns the last access time.
func (s *Session) LastAccessed() time.Time {
	s.accessMu.Lock()
	defer s.accessMu.Unlock()
	return s.lastAccessed
}
