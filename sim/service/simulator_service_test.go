package service_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wricardo/robot-simulator/sim/config"
	"github.com/wricardo/robot-simulator/sim/engine"
	"github.com/wricardo/robot-simulator/sim/logging"
	"github.com/wricardo/robot-simulator/sim/narrate"
	"github.com/wricardo/robot-simulator/sim/records"
	"github.com/wricardo/robot-simulator/sim/service"
	"github.com/wricardo/robot-simulator/sim/session"
)

func TestMain(m *testing.M) {
	logging.Silence()
	os.Exit(m.Run())
}

// firstIndex always picks index 0.
type firstIndex struct{}

func (firstIndex) IntN(int) int { return 0 }

// MockSessionManager implements service.SessionManager for testing
type MockSessionManager struct {
	sessions map[string]*service.Session
	saves    int
}

func NewMockSessionManager() *MockSessionManager {
	return &MockSessionManager{
		sessions: make(map[string]*service.Session),
	}
}

func (m *MockSessionManager) Create(id string, preset *config.Preset) (*service.Session, error) {
	// Generate ID if empty (mimics real session manager behavior)
	if id == "" {
		id = fmt.Sprintf("test_%d", len(m.sessions)+1)
	}

	if _, exists := m.sessions[id]; exists {
		return nil, errors.New("session already exists")
	}

	eng, err := preset.NewEngine(firstIndex{})
	if err != nil {
		return nil, err
	}

	session := &service.Session{
		ID:        id,
		Engine:    eng,
		Preset:    preset,
		CreatedAt: time.Now(),
	}
	session.Touch(time.Now())

	m.sessions[id] = session
	return session, nil
}

func (m *MockSessionManager) Get(id string) (*service.Session, error) {
	session, exists := m.sessions[id]
	if !exists {
		return nil, errors.New("session not found")
	}
	return session, nil
}

func (m *MockSessionManager) GetOrCreate(id string, preset *config.Preset) (*service.Session, error) {
	if session, err := m.Get(id); err == nil {
		return session, nil
	}
	return m.Create(id, preset)
}

func (m *MockSessionManager) List() []*service.Session {
	var result []*service.Session
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}

func (m *MockSessionManager) Delete(id string) error {
	if _, exists := m.sessions[id]; !exists {
		return errors.New("session not found")
	}
	delete(m.sessions, id)
	return nil
}

func (m *MockSessionManager) UpdateLastAccessed(id string) error {
	if session, exists := m.sessions[id]; exists {
		session.Touch(time.Now())
		return nil
	}
	return errors.New("session not found")
}

func (m *MockSessionManager) Save(id string) error {
	m.saves++
	return nil
}

// MockPresetManager implements service.PresetManager for testing
type MockPresetManager struct {
	presets map[string]*config.Preset
}

func NewMockPresetManager() *MockPresetManager {
	return &MockPresetManager{
		presets: map[string]*config.Preset{
			"open": {Name: "open"},
			"wall": {
				Name:      "wall",
				Obstacles: []engine.Position{{X: 1, Y: 0}, {X: 0, Y: 2}},
			},
			"scatter": {
				Name:            "scatter",
				RandomObstacles: &config.RandomRange{Min: 3, Max: 3},
			},
		},
	}
}

func (m *MockPresetManager) LoadPreset(name string) (*config.Preset, error) {
	if preset, ok := m.presets[name]; ok {
		return preset, nil
	}
	return nil, config.ErrPresetNotFound
}

func (m *MockPresetManager) ListPresets() ([]*config.PresetInfo, error) {
	var infos []*config.PresetInfo
	for id, preset := range m.presets {
		infos = append(infos, &config.PresetInfo{PresetID: id, Name: preset.Name, Policy: preset.Policy()})
	}
	return infos, nil
}

func (m *MockPresetManager) GetDefault() *config.Preset {
	return m.presets["open"]
}

func (m *MockPresetManager) SavePreset(name string, preset *config.Preset) error {
	if err := config.ValidatePreset(preset); err != nil {
		return err
	}
	m.presets[name] = preset
	return nil
}

// errStore fails every call.
type errStore struct{}

func (errStore) Save(context.Context, string, *records.Record) error {
	return errors.New("store offline")
}

func (errStore) Recent(context.Context, string, int) ([]*records.Record, error) {
	return nil, errors.New("store offline")
}

func newTestService() (service.SimulatorService, *MockSessionManager) {
	sessions := NewMockSessionManager()
	return service.NewSimulatorService(sessions, NewMockPresetManager(), nil, nil), sessions
}

func mustCreate(t *testing.T, svc service.SimulatorService, preset string) string {
	t.Helper()
	info, err := svc.CreateSession(context.Background(), preset)
	if err != nil {
		t.Fatalf("CreateSession(%q) failed: %v", preset, err)
	}
	return info.ID
}

func TestSimulatorService_CreateSession(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	tests := []struct {
		name          string
		presetName    string
		wantErr       bool
		wantObstacles int
	}{
		{name: "create with default preset", presetName: "", wantObstacles: 0},
		{name: "create with fixed preset", presetName: "wall", wantObstacles: 2},
		{name: "create with random preset", presetName: "scatter", wantObstacles: 3},
		{name: "create with unknown preset", presetName: "nonexistent", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := svc.CreateSession(ctx, tt.presetName)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CreateSession() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, config.ErrPresetNotFound) {
					t.Errorf("Expected ErrPresetNotFound, got %v", err)
				}
				if !strings.Contains(err.Error(), "Available presets") {
					t.Errorf("Expected available presets in error, got %v", err)
				}
				return
			}
			if info.State == nil {
				t.Fatal("Expected state in session info")
			}
			if info.State.Position != engine.StartPosition || info.State.Heading != engine.North {
				t.Errorf("Expected start state, got %s %s", info.State.Position, info.State.Heading)
			}
			if got := info.State.Obstacles.Len(); got != tt.wantObstacles {
				t.Errorf("Expected %d obstacles, got %d", tt.wantObstacles, got)
			}
		})
	}
}

func TestSimulatorService_PressKey(t *testing.T) {
	ctx := context.Background()
	svc, sessions := newTestService()
	id := mustCreate(t, svc, "wall")

	tests := []struct {
		key         string
		wantHandled bool
		wantSuccess bool
		wantPos     engine.Position
		wantHeading engine.Heading
	}{
		{key: "A", wantHandled: true, wantSuccess: false, wantPos: engine.Position{X: 0, Y: 0}, wantHeading: engine.North},
		{key: "ArrowRight", wantHandled: true, wantSuccess: true, wantPos: engine.Position{X: 0, Y: 0}, wantHeading: engine.East},
		{key: "w", wantHandled: true, wantSuccess: false, wantPos: engine.Position{X: 0, Y: 0}, wantHeading: engine.East},
		{key: "Shift", wantHandled: false, wantPos: engine.Position{X: 0, Y: 0}, wantHeading: engine.East},
		{key: "D", wantHandled: true, wantSuccess: true, wantPos: engine.Position{X: 0, Y: 0}, wantHeading: engine.South},
		{key: "A", wantHandled: true, wantSuccess: true, wantPos: engine.Position{X: 0, Y: 1}, wantHeading: engine.South},
	}

	for i, tt := range tests {
		t.Run(fmt.Sprintf("%d_%s", i, tt.key), func(t *testing.T) {
			res, err := svc.PressKey(ctx, id, tt.key)
			if err != nil {
				t.Fatalf("PressKey failed: %v", err)
			}
			if res.Handled != tt.wantHandled {
				t.Errorf("Expected handled=%v, got %v", tt.wantHandled, res.Handled)
			}
			if tt.wantHandled && res.Step.Succeeded != tt.wantSuccess {
				t.Errorf("Expected success=%v, got %v", tt.wantSuccess, res.Step.Succeeded)
			}
			if !tt.wantHandled && res.Step != nil {
				t.Error("Expected no step for an unbound key")
			}
			if res.State.Position != tt.wantPos || res.State.Heading != tt.wantHeading {
				t.Errorf("Expected %s %s, got %s %s", tt.wantPos, tt.wantHeading, res.State.Position, res.State.Heading)
			}
		})
	}

	state, _ := svc.GetState(ctx, id)
	if state.Commands != "ADADA" {
		t.Errorf("Expected history ADADA, got %q", state.Commands)
	}
	if state.Successes != 3 || state.Failures != 2 {
		t.Errorf("Expected 3/2, got %d/%d", state.Successes, state.Failures)
	}
	if sessions.saves != 5 {
		t.Errorf("Expected 5 auto-saves, got %d", sessions.saves)
	}

	if _, err := svc.PressKey(ctx, "missing", "A"); !errors.Is(err, service.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestSimulatorService_PressKeys(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	id := mustCreate(t, svc, "open")

	res, err := svc.PressKeys(ctx, id, []string{"D", "Tab", "A", "A", "Escape", "I"})
	if err != nil {
		t.Fatalf("PressKeys failed: %v", err)
	}
	if res.Requested != 6 || res.Executed != 4 {
		t.Errorf("Expected 6 requested and 4 executed, got %d and %d", res.Requested, res.Executed)
	}
	if len(res.Ignored) != 2 || res.Ignored[0] != "Tab" || res.Ignored[1] != "Escape" {
		t.Errorf("Expected Tab and Escape to be ignored, got %v", res.Ignored)
	}
	want := engine.RobotState{Position: engine.Position{X: 2, Y: 0}, Heading: engine.North}
	if res.EndState != want {
		t.Errorf("Expected end state %s, got %s", want, res.EndState)
	}
	if res.State.Commands != "DAAI" {
		t.Errorf("Expected history DAAI, got %q", res.State.Commands)
	}
}

func TestSimulatorService_ApplyCommands(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		preset        string
		commands      string
		wantState     engine.RobotState
		wantSuccesses int
		wantFailures  int
	}{
		{
			name:          "blocked by obstacle",
			preset:        "wall",
			commands:      "DA",
			wantState:     engine.RobotState{Position: engine.Position{X: 0, Y: 0}, Heading: engine.East},
			wantSuccesses: 1,
			wantFailures:  1,
		},
		{
			name:          "space counts as a failed step",
			preset:        "wall",
			commands:      "D A",
			wantState:     engine.RobotState{Position: engine.Position{X: 0, Y: 0}, Heading: engine.East},
			wantSuccesses: 1,
			wantFailures:  2,
		},
		{
			name:          "north edge",
			preset:        "open",
			commands:      "AAAA",
			wantState:     engine.StartState(),
			wantSuccesses: 0,
			wantFailures:  4,
		},
		{
			name:          "cross the top row",
			preset:        "open",
			commands:      "DAAAA",
			wantState:     engine.RobotState{Position: engine.Position{X: 4, Y: 0}, Heading: engine.East},
			wantSuccesses: 5,
			wantFailures:  0,
		},
		{
			name:          "lower case is accepted",
			preset:        "open",
			commands:      "daai",
			wantState:     engine.RobotState{Position: engine.Position{X: 2, Y: 0}, Heading: engine.North},
			wantSuccesses: 4,
			wantFailures:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService()
			id := mustCreate(t, svc, tt.preset)

			res, err := svc.ApplyCommands(ctx, id, tt.commands)
			if err != nil {
				t.Fatalf("ApplyCommands failed: %v", err)
			}
			if res.EndState != tt.wantState {
				t.Errorf("Expected %s, got %s", tt.wantState, res.EndState)
			}
			if res.Successes != tt.wantSuccesses || res.Failures != tt.wantFailures {
				t.Errorf("Expected %d/%d, got %d/%d", tt.wantSuccesses, tt.wantFailures, res.Successes, res.Failures)
			}
			if res.Executed != len(tt.commands) {
				t.Errorf("Expected %d steps, got %d", len(tt.commands), res.Executed)
			}

			// The interactive result must match a batch run over the same layout
			batch, err := svc.Simulate(ctx, service.SimulateRequest{Commands: res.State.Commands, SessionID: id})
			if err != nil {
				t.Fatalf("Simulate failed: %v", err)
			}
			if batch.FinalState() != res.EndState || batch.SuccessCount != res.State.Successes || batch.FailureCount != res.State.Failures {
				t.Errorf("Batch %s %d/%d differs from interactive %s %d/%d",
					batch.FinalState(), batch.SuccessCount, batch.FailureCount,
					res.EndState, res.State.Successes, res.State.Failures)
			}
		})
	}

	t.Run("too long", func(t *testing.T) {
		svc, _ := newTestService()
		id := mustCreate(t, svc, "open")
		_, err := svc.ApplyCommands(ctx, id, strings.Repeat("D", engine.MaxCommandLength+1))
		if !errors.Is(err, service.ErrInvalidRequest) || !errors.Is(err, engine.ErrCommandsTooLong) {
			t.Errorf("Expected ErrInvalidRequest wrapping ErrCommandsTooLong, got %v", err)
		}
	})
}

func TestSimulatorService_EditObstacles(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	id := mustCreate(t, svc, "wall")
	target := engine.Position{X: 2, Y: 2}

	t.Run("rejected outside edit mode", func(t *testing.T) {
		res, err := svc.ToggleObstacle(ctx, id, target)
		if err != nil {
			t.Fatalf("ToggleObstacle failed: %v", err)
		}
		if res.Applied || res.Reason == "" {
			t.Errorf("Expected rejection with a reason, got %+v", res)
		}
	})

	t.Run("edit mode blocks commands", func(t *testing.T) {
		view, err := svc.SetEditMode(ctx, id, true)
		if err != nil {
			t.Fatalf("SetEditMode failed: %v", err)
		}
		if !view.EditMode || !view.Editable {
			t.Errorf("Expected editable state, got %+v", view)
		}
		if _, err := svc.PressKey(ctx, id, "D"); !errors.Is(err, engine.ErrEditMode) {
			t.Errorf("Expected ErrEditMode, got %v", err)
		}
		if _, err := svc.PressKeys(ctx, id, []string{"D"}); !errors.Is(err, engine.ErrEditMode) {
			t.Errorf("Expected ErrEditMode, got %v", err)
		}
	})

	t.Run("toggle on and off", func(t *testing.T) {
		res, err := svc.ToggleObstacle(ctx, id, target)
		if err != nil {
			t.Fatalf("ToggleObstacle failed: %v", err)
		}
		if !res.Applied || !res.Present {
			t.Errorf("Expected obstacle to be added, got %+v", res)
		}
		res, _ = svc.ToggleObstacle(ctx, id, engine.Position{X: 1, Y: 0})
		if !res.Applied || res.Present {
			t.Errorf("Expected obstacle to be removed, got %+v", res)
		}
	})

	t.Run("invalid cells", func(t *testing.T) {
		for _, p := range []engine.Position{engine.StartPosition, {X: 5, Y: 0}, {X: -1, Y: 3}} {
			res, err := svc.ToggleObstacle(ctx, id, p)
			if err != nil {
				t.Fatalf("ToggleObstacle failed: %v", err)
			}
			if res.Applied || res.Reason == "" {
				t.Errorf("Expected %s to be rejected, got %+v", p, res)
			}
		}
	})

	t.Run("capacity", func(t *testing.T) {
		// Layout is now (0,2) and (2,2)
		for _, p := range []engine.Position{{X: 3, Y: 3}, {X: 4, Y: 4}, {X: 4, Y: 0}} {
			if res, _ := svc.ToggleObstacle(ctx, id, p); !res.Applied {
				t.Fatalf("Expected %s to be added: %s", p, res.Reason)
			}
		}
		res, _ := svc.ToggleObstacle(ctx, id, engine.Position{X: 1, Y: 1})
		if res.Applied || !strings.Contains(res.Reason, "at most") {
			t.Errorf("Expected capacity rejection, got %+v", res)
		}
	})

	t.Run("locked once the run starts", func(t *testing.T) {
		svc.SetEditMode(ctx, id, false)
		if _, err := svc.ApplyCommands(ctx, id, "D"); err != nil {
			t.Fatalf("ApplyCommands failed: %v", err)
		}
		svc.SetEditMode(ctx, id, true)
		res, _ := svc.ToggleObstacle(ctx, id, engine.Position{X: 3, Y: 3})
		if res.Applied || !strings.Contains(res.Reason, "reset") {
			t.Errorf("Expected rejection after the run started, got %+v", res)
		}
	})

	t.Run("reset keeps a fixed layout", func(t *testing.T) {
		before, _ := svc.GetState(ctx, id)
		view, err := svc.Reset(ctx, id)
		if err != nil {
			t.Fatalf("Reset failed: %v", err)
		}
		if view.EditMode || view.Commands != "" || view.Total != 0 {
			t.Errorf("Expected a clean run, got %+v", view)
		}
		if !view.Obstacles.Equal(before.Obstacles) {
			t.Errorf("Expected layout %s to be kept, got %s", before.Obstacles, view.Obstacles)
		}
	})
}

func TestSimulatorService_GetTrace(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	id := mustCreate(t, svc, "open")

	if _, err := svc.ApplyCommands(ctx, id, strings.Repeat("D", 25)); err != nil {
		t.Fatalf("ApplyCommands failed: %v", err)
	}

	tests := []struct {
		name         string
		opts         service.HistoryOptions
		wantCount    int
		wantFirstIdx int
		wantPages    int
		wantHasNext  bool
		wantHasPrev  bool
	}{
		{name: "defaults", opts: service.HistoryOptions{}, wantCount: 20, wantFirstIdx: 24, wantPages: 2, wantHasNext: true},
		{name: "second page", opts: service.HistoryOptions{Page: 2}, wantCount: 5, wantFirstIdx: 4, wantPages: 2, wantHasPrev: true},
		{name: "ascending", opts: service.HistoryOptions{Limit: 10, Order: "asc"}, wantCount: 10, wantFirstIdx: 0, wantPages: 3, wantHasNext: true},
		{name: "past the end", opts: service.HistoryOptions{Page: 9, Limit: 10}, wantCount: 0, wantPages: 3, wantHasPrev: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trace, err := svc.GetTrace(ctx, id, tt.opts)
			if err != nil {
				t.Fatalf("GetTrace failed: %v", err)
			}
			if len(trace.Steps) != tt.wantCount {
				t.Fatalf("Expected %d steps, got %d", tt.wantCount, len(trace.Steps))
			}
			if tt.wantCount > 0 && trace.Steps[0].Index != tt.wantFirstIdx {
				t.Errorf("Expected first index %d, got %d", tt.wantFirstIdx, trace.Steps[0].Index)
			}
			if trace.TotalSteps != 25 || trace.TotalPages != tt.wantPages {
				t.Errorf("Expected 25 steps over %d pages, got %d over %d", tt.wantPages, trace.TotalSteps, trace.TotalPages)
			}
			if trace.HasNext != tt.wantHasNext || trace.HasPrevious != tt.wantHasPrev {
				t.Errorf("Expected next=%v prev=%v, got next=%v prev=%v",
					tt.wantHasNext, tt.wantHasPrev, trace.HasNext, trace.HasPrevious)
			}
		})
	}
}

func TestSimulatorService_Simulate(t *testing.T) {
	ctx := context.Background()
	svc, sessions := newTestService()
	id := mustCreate(t, svc, "wall")

	t.Run("explicit obstacles", func(t *testing.T) {
		res, err := svc.Simulate(ctx, service.SimulateRequest{
			Commands:  "DA",
			Obstacles: []engine.Position{{X: 1, Y: 0}},
		})
		if err != nil {
			t.Fatalf("Simulate failed: %v", err)
		}
		if res.FinalPosition != engine.StartPosition || res.SuccessCount != 1 || res.FailureCount != 1 {
			t.Errorf("Unexpected result %+v", res)
		}
	})

	t.Run("empty grid", func(t *testing.T) {
		res, err := svc.Simulate(ctx, service.SimulateRequest{Commands: "DAAAA"})
		if err != nil {
			t.Fatalf("Simulate failed: %v", err)
		}
		if res.FinalPosition != (engine.Position{X: 4, Y: 0}) || res.SuccessCount != 5 {
			t.Errorf("Unexpected result %+v", res)
		}
	})

	t.Run("random preset records its layout", func(t *testing.T) {
		res, err := svc.Simulate(ctx, service.SimulateRequest{Commands: "DA", Preset: "scatter"})
		if err != nil {
			t.Fatalf("Simulate failed: %v", err)
		}
		if res.Obstacles.Len() != 3 {
			t.Errorf("Expected 3 drawn obstacles, got %s", res.Obstacles)
		}
	})

	t.Run("session layout", func(t *testing.T) {
		res, err := svc.Simulate(ctx, service.SimulateRequest{Commands: "DA", SessionID: id})
		if err != nil {
			t.Fatalf("Simulate failed: %v", err)
		}
		if res.FailureCount != 1 {
			t.Errorf("Expected the session obstacle to block, got %+v", res)
		}
		state, _ := svc.GetState(ctx, id)
		if state.Total != 0 {
			t.Error("Simulate must not touch the session")
		}
		if sessions.saves != 0 {
			t.Errorf("Expected no session saves, got %d", sessions.saves)
		}
	})

	errTests := []struct {
		name string
		req  service.SimulateRequest
		want error
	}{
		{"several sources", service.SimulateRequest{Commands: "A", Preset: "wall", SessionID: id}, service.ErrInvalidRequest},
		{"obstacle at start", service.SimulateRequest{Commands: "A", Obstacles: []engine.Position{{X: 0, Y: 0}}}, engine.ErrObstacleAtStart},
		{"out of bounds", service.SimulateRequest{Commands: "A", Obstacles: []engine.Position{{X: 5, Y: 5}}}, engine.ErrObstacleOutOfBounds},
		{"too many", service.SimulateRequest{Commands: "A", Obstacles: []engine.Position{{X: 1, Y: 0}, {X: 2, Y: 0}, {X: 3, Y: 0}, {X: 4, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 1}}}, engine.ErrTooManyObstacles},
		{"unknown preset", service.SimulateRequest{Commands: "A", Preset: "nope"}, config.ErrPresetNotFound},
		{"unknown session", service.SimulateRequest{Commands: "A", SessionID: "nope"}, service.ErrSessionNotFound},
		{"too long", service.SimulateRequest{Commands: strings.Repeat("A", engine.MaxCommandLength+1)}, engine.ErrCommandsTooLong},
	}
	for _, tt := range errTests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Simulate(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSimulatorService_SaveSimulation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	id := mustCreate(t, svc, "wall")

	if _, err := svc.ApplyCommands(ctx, id, "DADA"); err != nil {
		t.Fatalf("ApplyCommands failed: %v", err)
	}

	t.Run("unauthenticated still returns the result", func(t *testing.T) {
		saved, err := svc.SaveSimulation(ctx, "", id)
		if !errors.Is(err, records.ErrUnauthenticated) {
			t.Fatalf("Expected ErrUnauthenticated, got %v", err)
		}
		if saved == nil || saved.Saved || saved.Result.Commands != "DADA" {
			t.Errorf("Expected unsaved result for DADA, got %+v", saved)
		}
	})

	t.Run("saved and listed", func(t *testing.T) {
		saved, err := svc.SaveSimulation(ctx, "user-1", id)
		if err != nil {
			t.Fatalf("SaveSimulation failed: %v", err)
		}
		if !saved.Saved || saved.Record == nil {
			t.Fatalf("Expected a saved record, got %+v", saved)
		}
		if saved.Record.Successes != 3 || saved.Record.Failures != 1 {
			t.Errorf("Expected 3/1, got %d/%d", saved.Record.Successes, saved.Record.Failures)
		}

		history, err := svc.History(ctx, "user-1", 0)
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(history) != 1 || history[0].ID != saved.Record.ID {
			t.Errorf("Expected the saved record in history, got %v", history)
		}
		if other, _ := svc.History(ctx, "user-2", 0); len(other) != 0 {
			t.Errorf("Expected no records for another user, got %d", len(other))
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		if _, err := svc.SaveSimulation(ctx, "user-1", "nope"); !errors.Is(err, service.ErrSessionNotFound) {
			t.Errorf("Expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		failing := service.NewSimulatorService(NewMockSessionManager(), NewMockPresetManager(), errStore{}, nil)
		fid := mustCreate(t, failing, "open")
		saved, err := failing.SaveSimulation(ctx, "user-1", fid)
		if err == nil || saved == nil || saved.Saved {
			t.Errorf("Expected unsaved result with an error, got %+v, %v", saved, err)
		}
	})
}

func TestSimulatorService_SaveResult(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	result, err := svc.Simulate(ctx, service.SimulateRequest{Commands: "DAAD", Obstacles: []engine.Position{{X: 3, Y: 0}}})
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	saved, err := svc.SaveResult(ctx, "user-1", *result)
	if err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}
	if !saved.Saved {
		t.Error("Expected result to be saved")
	}

	forged := *result
	forged.SuccessCount++
	if _, err := svc.SaveResult(ctx, "user-1", forged); !errors.Is(err, service.ErrResultMismatch) {
		t.Errorf("Expected ErrResultMismatch, got %v", err)
	}

	history, _ := svc.History(ctx, "user-1", 10)
	if len(history) != 1 {
		t.Errorf("Expected only the honest result to be stored, got %d", len(history))
	}

	if _, err := svc.History(ctx, "", 10); !errors.Is(err, records.ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated, got %v", err)
	}
}

func TestSimulatorService_Narrate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	id := mustCreate(t, svc, "wall")

	res, err := svc.Narrate(ctx, id, "Where are you?")
	if err != nil {
		t.Fatalf("Narrate failed: %v", err)
	}
	if !strings.Contains(res.Answer, "(0,0)") {
		t.Errorf("Expected position in answer, got %q", res.Answer)
	}
	if len(res.Snapshot.Obstacles) != 2 {
		t.Errorf("Expected 2 obstacles in snapshot, got %d", len(res.Snapshot.Obstacles))
	}

	if _, err := svc.Narrate(ctx, id, "   "); !errors.Is(err, service.ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest for an empty question, got %v", err)
	}

	nc, err := svc.NarrationContext(ctx, id)
	if err != nil {
		t.Fatalf("NarrationContext failed: %v", err)
	}
	if nc.Greeting != narrate.Greeting || !strings.Contains(nc.Prompt, "Obstacle at (1, 0)") {
		t.Errorf("Unexpected narration context %+v", nc)
	}
}

func TestSimulatorService_Sessions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	a := mustCreate(t, svc, "open")
	mustCreate(t, svc, "wall")

	list, err := svc.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("Expected 2 sessions, got %d", len(list))
	}

	info, err := svc.GetSession(ctx, a)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if info.PresetName != "open" {
		t.Errorf("Expected preset open, got %q", info.PresetName)
	}

	if err := svc.DeleteSession(ctx, a); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if _, err := svc.GetSession(ctx, a); !errors.Is(err, service.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
	if err := svc.DeleteSession(ctx, a); !errors.Is(err, service.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

// Readers share the service lock while each lookup touches the session, so
// this test is meant to run under -race.
func TestSimulatorService_ConcurrentReads(t *testing.T) {
	ctx := context.Background()
	persistence, err := session.NewFilePersistence(t.TempDir(), NewMockPresetManager())
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}
	sessions := session.NewManagerWithPersistence(persistence)
	svc := service.NewSimulatorService(sessions, NewMockPresetManager(), nil, nil)
	id := mustCreate(t, svc, "wall")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				info, err := svc.GetSession(ctx, id)
				if err != nil {
					t.Errorf("GetSession failed: %v", err)
					return
				}
				if info.LastAccessedAt.IsZero() {
					t.Error("Expected an access time")
					return
				}
				if _, err := svc.ListSessions(ctx); err != nil {
					t.Errorf("ListSessions failed: %v", err)
					return
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 20; j++ {
			if err := sessions.SaveAllSessions(); err != nil {
				t.Errorf("SaveAllSessions failed: %v", err)
				return
			}
		}
	}()
	wg.Wait()
}

func TestSimulatorService_Presets(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	if err := svc.SavePreset(ctx, "diag", &config.Preset{Name: "diag", Obstacles: []engine.Position{{X: 1, Y: 1}}}); err != nil {
		t.Fatalf("SavePreset failed: %v", err)
	}
	preset, err := svc.LoadPreset(ctx, "diag")
	if err != nil {
		t.Fatalf("LoadPreset failed: %v", err)
	}
	if len(preset.Obstacles) != 1 {
		t.Errorf("Expected 1 obstacle, got %v", preset.Obstacles)
	}
	infos, _ := svc.ListPresets(ctx)
	if len(infos) != 4 {
		t.Errorf("Expected 4 presets, got %d", len(infos))
	}
	if err := svc.SavePreset(ctx, "bad", &config.Preset{Name: "bad", Obstacles: []engine.Position{{X: 0, Y: 0}}}); err == nil {
		t.Error("Expected invalid preset to be rejected")
	}
}
