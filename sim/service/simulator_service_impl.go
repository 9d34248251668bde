package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/inconshreveable/log15/v3"

	"github.com/wricardo/robot-simulator/sim/config"
	"github.com/wricardo/robot-simulator/sim/engine"
	"github.com/wricardo/robot-simulator/sim/logging"
	"github.com/wricardo/robot-simulator/sim/narrate"
	"github.com/wricardo/robot-simulator/sim/records"
	"github.com/wricardo/robot-simulator/sim/render"
)

const (
	defaultTracePageSize = 20
	maxTracePageSize     = 100
)

// simulatorServiceImpl implements the SimulatorService interface
type simulatorServiceImpl struct {
	sessions SessionManager
	presets  PresetManager
	store    records.Store
	narrator narrate.Narrator
	logger   log15.Logger
	now      func() time.Time
	mu       sync.RWMutex
}

// NewSimulatorService creates a new simulator service instance. A nil store
// keeps records in memory; a nil narrator answers locally.
func NewSimulatorService(sessions SessionManager, presets PresetManager, store records.Store, narrator narrate.Narrator) SimulatorService {
	if store == nil {
		store = records.NewMemoryStore()
	}
	if narrator == nil {
		narrator = narrate.LocalNarrator{}
	}
	return &simulatorServiceImpl{
		sessions: sessions,
		presets:  presets,
		store:    store,
		narrator: narrator,
		logger:   logging.New("service"),
		now:      time.Now,
	}
}

// presetID returns the preset_id for a preset display name, used for consistent API responses
func (s *simulatorServiceImpl) presetID(preset *config.Preset) string {
	if preset == nil {
		return config.DefaultPresetName
	}
	available, err := s.presets.ListPresets()
	if err == nil {
		for _, info := range available {
			if info.Name == preset.Name {
				return info.PresetID
			}
		}
	}
	return preset.Name
}

func (s *simulatorServiceImpl) sessionInfo(sess *Session) *SessionInfo {
	return &SessionInfo{
		ID:             sess.ID,
		PresetName:     s.presetID(sess.Preset),
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessed(),
		State:          buildStateView(sess),
	}
}

// getSession fetches a session and marks it accessed. Callers hold s.mu.
func (s *simulatorServiceImpl) getSession(sessionID string) (*Session, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSessionNotFound, sessionID, err)
	}
	s.sessions.UpdateLastAccessed(sessionID)
	return sess, nil
}

// persist auto-saves a session after a mutation
func (s *simulatorServiceImpl) persist(sessionID, op string) {
	if err := s.sessions.Save(sessionID); err != nil {
		s.logger.Warn("failed to persist session", "session", sessionID, "op", op, "err", err)
	}
}

// CreateSession creates a new simulator session
func (s *simulatorServiceImpl) CreateSession(ctx context.Context, presetName string) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var preset *config.Preset
	var err error
	if presetName != "" {
		preset, err = s.presets.LoadPreset(presetName)
		if err != nil {
			if errors.Is(err, config.ErrPresetNotFound) {
				available, listErr := s.presets.ListPresets()
				if listErr == nil && len(available) > 0 {
					var ids []string
					for _, info := range available {
						ids = append(ids, info.PresetID)
					}
					return nil, fmt.Errorf("%w: preset '%s' not found. Available presets: %v", err, presetName, ids)
				}
				return nil, fmt.Errorf("%w: preset '%s' not found. Use /api/presets to list available presets", err, presetName)
			}
			return nil, fmt.Errorf("failed to load preset %s: %w", presetName, err)
		}
	} else {
		preset = s.presets.GetDefault()
	}

	// Let session manager generate a proper 4-character ID
	sess, err := s.sessions.Create("", preset)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("session created", "session", sess.ID, "preset", preset.Name, "obstacles", sess.Engine.Obstacles().Len())

	info := s.sessionInfo(sess)
	if presetName != "" {
		info.PresetName = presetName
	}
	return info, nil
}

// GetSession retrieves session information
func (s *simulatorServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	return s.sessionInfo(sess), nil
}

// ListSessions returns all active sessions
func (s *simulatorServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, s.sessionInfo(sess))
	}
	return result, nil
}

// DeleteSession removes a session
func (s *simulatorServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sessions.Delete(sessionID); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSessionNotFound, sessionID, err)
	}
	return nil
}

// PressKey applies the command bound to a key. Unbound keys are reported
// with Handled=false and leave the session untouched.
func (s *simulatorServiceImpl) PressKey(ctx context.Context, sessionID, key string) (*KeyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	step, handled, err := sess.Engine.HandleKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	result := &KeyResult{Key: key, Handled: handled}
	if handled {
		result.Step = &step
		s.persist(sessionID, "key")
	}
	result.State = buildStateView(sess)
	return result, nil
}

// PressKeys applies several key presses in order
func (s *simulatorServiceImpl) PressKeys(ctx context.Context, sessionID string, keys []string) (*CommandsResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Engine.EditMode() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, engine.ErrEditMode)
	}

	var cmds []rune
	var ignored []string
	for _, key := range keys {
		cmd, ok := engine.KeyCommand(key)
		if !ok {
			ignored = append(ignored, key)
			continue
		}
		cmds = append(cmds, rune(cmd))
	}

	result, err := s.applyLocked(sess, string(cmds))
	if err != nil {
		return nil, err
	}
	result.Requested = len(keys)
	result.Ignored = ignored
	return result, nil
}

// ApplyCommands interprets a command string on the session, character by
// character. Unknown characters become failed steps.
func (s *simulatorServiceImpl) ApplyCommands(ctx context.Context, sessionID, commands string) (*CommandsResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	return s.applyLocked(sess, commands)
}

func (s *simulatorServiceImpl) applyLocked(sess *Session, commands string) (*CommandsResult, error) {
	start := sess.Engine.State()
	steps, err := sess.Engine.ApplyString(commands)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	result := &CommandsResult{
		Requested:  len([]rune(commands)),
		Executed:   len(steps),
		StartState: start,
		EndState:   sess.Engine.State(),
		Steps:      steps,
	}
	for _, step := range steps {
		if step.Succeeded {
			result.Successes++
		} else {
			result.Failures++
		}
	}

	if len(steps) > 0 {
		s.persist(sess.ID, "commands")
	}
	result.State = buildStateView(sess)
	return result, nil
}

// SetEditMode pauses or resumes interpretation for obstacle editing
func (s *simulatorServiceImpl) SetEditMode(ctx context.Context, sessionID string, enabled bool) (*StateView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	sess.Engine.SetEditMode(enabled)
	s.persist(sessionID, "edit")
	return buildStateView(sess), nil
}

// ToggleObstacle flips an obstacle cell. Edits the rules forbid are
// reported in the result, not as errors.
func (s *simulatorServiceImpl) ToggleObstacle(ctx context.Context, sessionID string, pos engine.Position) (*ToggleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	reason := toggleRejection(sess.Engine, pos)
	applied := false
	if reason == "" {
		applied = sess.Engine.ToggleObstacle(pos)
		if applied {
			s.persist(sessionID, "toggle")
		}
	}

	return &ToggleResult{
		Position: pos,
		Applied:  applied,
		Present:  sess.Engine.Obstacles().Contains(pos),
		Reason:   reason,
		State:    buildStateView(sess),
	}, nil
}

// toggleRejection explains why a toggle at p would be ignored, or returns "".
func toggleRejection(eng *engine.RobotEngine, p engine.Position) string {
	obstacles := eng.Obstacles()
	switch {
	case !eng.EditMode():
		return "edit mode is off"
	case len(eng.Steps()) > 0:
		return "the run has started; reset before editing obstacles"
	case !engine.InBounds(p):
		return "cell is outside the grid"
	case p == engine.StartPosition:
		return "the start cell cannot hold an obstacle"
	case !obstacles.Contains(p) && obstacles.Len() >= engine.MaxObstacles:
		return fmt.Sprintf("at most %d obstacles are allowed", engine.MaxObstacles)
	default:
		return ""
	}
}

// Reset returns the robot to the start with a fresh layout
func (s *simulatorServiceImpl) Reset(ctx context.Context, sessionID string) (*StateView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	sess.Engine.Reset()
	s.persist(sessionID, "reset")
	return buildStateView(sess), nil
}

// GetState retrieves the current session state
func (s *simulatorServiceImpl) GetState(ctx context.Context, sessionID string) (*StateView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	return buildStateView(sess), nil
}

// GetTrace returns the paginated step trace of the current run
func (s *simulatorServiceImpl) GetTrace(ctx context.Context, sessionID string, opts HistoryOptions) (*TraceResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	steps := sess.Engine.Steps()
	total := len(steps)

	// Apply defaults
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultTracePageSize
	}
	if opts.Limit > maxTracePageSize {
		opts.Limit = maxTracePageSize
	}
	if opts.Order == "" {
		opts.Order = "desc"
	}

	totalPages := (total + opts.Limit - 1) / opts.Limit
	if totalPages == 0 {
		totalPages = 1
	}

	start := (opts.Page - 1) * opts.Limit
	end := start + opts.Limit
	if end > total {
		end = total
	}

	page := []engine.StepRecord{}
	if start < total {
		if opts.Order == "desc" {
			// Most recent first
			for i := total - 1 - start; i >= total-end; i-- {
				page = append(page, steps[i])
			}
		} else {
			page = append(page, steps[start:end]...)
		}
	}

	return &TraceResponse{
		Steps:       page,
		TotalSteps:  total,
		Page:        opts.Page,
		PageSize:    opts.Limit,
		TotalPages:  totalPages,
		HasNext:     opts.Page < totalPages,
		HasPrevious: opts.Page > 1,
	}, nil
}

// Simulate runs a command string from the start state without touching
// any session.
func (s *simulatorServiceImpl) Simulate(ctx context.Context, req SimulateRequest) (*engine.SimulationResult, error) {
	if err := engine.ValidateCommands(req.Commands); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	obstacles, err := s.requestLayout(req)
	if err != nil {
		return nil, err
	}

	result := engine.RunFromStart(obstacles, req.Commands)
	s.logger.Debug("batch run", "commands", len(result.Steps), "successes", result.SuccessCount, "failures", result.FailureCount)
	return &result, nil
}

// requestLayout resolves the single obstacle source of a batch request.
func (s *simulatorServiceImpl) requestLayout(req SimulateRequest) (engine.ObstacleSet, error) {
	sources := 0
	for _, set := range []bool{req.Obstacles != nil, req.Preset != "", req.SessionID != ""} {
		if set {
			sources++
		}
	}
	if sources > 1 {
		return engine.ObstacleSet{}, fmt.Errorf("%w: give obstacles, preset or session_id, not several", ErrInvalidRequest)
	}

	switch {
	case req.Preset != "":
		preset, err := s.presets.LoadPreset(req.Preset)
		if err != nil {
			return engine.ObstacleSet{}, fmt.Errorf("failed to load preset %s: %w", req.Preset, err)
		}
		if preset.Fixed() {
			layout, err := preset.Layout()
			if err != nil {
				return engine.ObstacleSet{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
			}
			return layout, nil
		}
		gen, err := preset.NewGenerator(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
		if err != nil {
			return engine.ObstacleSet{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		return gen.Generate(), nil

	case req.SessionID != "":
		s.mu.RLock()
		defer s.mu.RUnlock()
		sess, err := s.getSession(req.SessionID)
		if err != nil {
			return engine.ObstacleSet{}, err
		}
		return sess.Engine.Obstacles(), nil

	default:
		layout, err := engine.NewObstacleSet(req.Obstacles...)
		if err != nil {
			return engine.ObstacleSet{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		return layout, nil
	}
}

// SaveSimulation replays the session's command history over the session's
// own layout, checks the replay against the live trace and stores it.
func (s *simulatorServiceImpl) SaveSimulation(ctx context.Context, userID, sessionID string) (*SaveResult, error) {
	s.mu.RLock()
	sess, err := s.getSession(sessionID)
	if err != nil {
		s.mu.RUnlock()
		return nil, err
	}
	live := sess.Engine.Result()
	s.mu.RUnlock()

	replay := engine.RunFromStart(live.Obstacles, live.Commands)
	if !engine.Equal(live, replay) {
		s.logger.Error("trace mismatch", "session", sessionID, "commands", live.Commands)
		return &SaveResult{Result: live}, ErrTraceMismatch
	}

	return s.saveRecord(ctx, userID, replay)
}

// SaveResult stores a batch result after checking it against its replay.
// Only the inputs and the summary are compared; steps are rebuilt.
func (s *simulatorServiceImpl) SaveResult(ctx context.Context, userID string, result engine.SimulationResult) (*SaveResult, error) {
	if err := engine.ValidateCommands(result.Commands); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	replay := engine.RunFromStart(result.Obstacles, result.Commands)
	if replay.FinalState() != result.FinalState() ||
		replay.SuccessCount != result.SuccessCount ||
		replay.FailureCount != result.FailureCount {
		return &SaveResult{Result: replay}, fmt.Errorf("%w: expected %s with %d/%d",
			ErrResultMismatch, replay.FinalState(), replay.SuccessCount, replay.FailureCount)
	}

	return s.saveRecord(ctx, userID, replay)
}

func (s *simulatorServiceImpl) saveRecord(ctx context.Context, userID string, result engine.SimulationResult) (*SaveResult, error) {
	out := &SaveResult{Result: result}
	if userID == "" {
		return out, records.ErrUnauthenticated
	}

	rec := records.NewRecord(userID, result, s.now())
	if err := s.store.Save(ctx, userID, rec); err != nil {
		return out, fmt.Errorf("failed to save simulation: %w", err)
	}

	s.logger.Info("simulation saved", "user", userID, "record", rec.ID, "commands", len(rec.Commands))
	out.Saved = true
	out.Record = rec
	return out, nil
}

// History returns the user's most recent saved simulations
func (s *simulatorServiceImpl) History(ctx context.Context, userID string, limit int) ([]*records.Record, error) {
	if userID == "" {
		return nil, records.ErrUnauthenticated
	}
	if limit <= 0 {
		limit = engine.DefaultHistoryLimit
	}
	return s.store.Recent(ctx, userID, limit)
}

// Narrate answers a question about a session. The narrator runs without
// holding the service lock.
func (s *simulatorServiceImpl) Narrate(ctx context.Context, sessionID, question string) (*NarrationResult, error) {
	s.mu.RLock()
	sess, err := s.getSession(sessionID)
	if err != nil {
		s.mu.RUnlock()
		return nil, err
	}
	snap := narrate.FromEngine(sess.Engine)
	s.mu.RUnlock()

	answer, err := s.narrator.Answer(ctx, snap, question)
	if err != nil {
		if errors.Is(err, narrate.ErrEmptyQuestion) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		return nil, fmt.Errorf("narration failed: %w", err)
	}

	return &NarrationResult{Question: question, Answer: answer, Snapshot: snap}, nil
}

// NarrationContext returns the snapshot and prompt an external assistant
// would be given for a session
func (s *simulatorServiceImpl) NarrationContext(ctx context.Context, sessionID string) (*NarrationContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	snap := narrate.FromEngine(sess.Engine)
	return &NarrationContext{
		Greeting: narrate.Greeting,
		Snapshot: snap,
		Prompt:   narrate.Prompt(snap, ""),
	}, nil
}

// ListPresets returns available presets
func (s *simulatorServiceImpl) ListPresets(ctx context.Context) ([]*config.PresetInfo, error) {
	return s.presets.ListPresets()
}

// LoadPreset loads a specific preset
func (s *simulatorServiceImpl) LoadPreset(ctx context.Context, presetName string) (*config.Preset, error) {
	return s.presets.LoadPreset(presetName)
}

// SavePreset saves a preset to disk
func (s *simulatorServiceImpl) SavePreset(ctx context.Context, presetName string, preset *config.Preset) error {
	return s.presets.SavePreset(presetName, preset)
}

// buildStateView assembles the client view of a session, including the
// decision aids.
func buildStateView(sess *Session) *StateView {
	eng := sess.Engine
	result := eng.Result()
	state := result.FinalState()
	_, ahead := engine.Ahead(state, result.Obstacles)

	return &StateView{
		SessionID:    sess.ID,
		Position:     state.Position,
		Heading:      state.Heading,
		Obstacles:    result.Obstacles,
		Commands:     result.Commands,
		Successes:    result.SuccessCount,
		Failures:     result.FailureCount,
		Total:        result.Total(),
		SuccessRate:  result.SuccessRate(),
		EditMode:     eng.EditMode(),
		Editable:     eng.EditMode() && len(result.Steps) == 0,
		GridSize:     engine.GridSize,
		MaxObstacles: engine.MaxObstacles,
		Ahead:        ahead,
		OpenHeadings: engine.OpenHeadings(state.Position, result.Obstacles),
		Grid:         render.Rows(state, result.Obstacles),
		LastStep:     result.LastStep(),
	}
}
