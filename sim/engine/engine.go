package engine

import (
	"fmt"
	"strings"
)

// Engine provides the main interface for interactive operations
type Engine interface {
	// State
	State() RobotState
	Obstacles() ObstacleSet
	Commands() string
	Steps() []StepRecord
	Counters() (successes, failures int)
	Result() SimulationResult

	// Commands
	Apply(cmd Command) (StepRecord, error)
	ApplyString(commands string) ([]StepRecord, error)
	HandleKey(key string) (StepRecord, bool, error)

	// Obstacle editing
	EditMode() bool
	SetEditMode(enabled bool)
	ToggleObstacle(p Position) bool

	// Lifecycle
	Reset()
	Snapshot() Snapshot
	Restore(snap Snapshot) error
}

// Snapshot is the persisted form of an interactive engine.
type Snapshot struct {
	State     RobotState  `json:"state"`
	Obstacles ObstacleSet `json:"obstacles"`
	Commands  string      `json:"commands"`
	Successes int         `json:"successes"`
	Failures  int         `json:"failures"`
	EditMode  bool        `json:"edit_mode"`
}

// RobotEngine is the interactive driver. One instance belongs to one
// session; it is not safe for concurrent use.
type RobotEngine struct {
	state     RobotState
	obstacles ObstacleSet
	generator *Generator

	commands  strings.Builder
	steps     []StepRecord
	successes int
	failures  int
	editMode  bool
}

var _ Engine = (*RobotEngine)(nil)

// NewEngine creates an engine at the start state over the given layout.
// gen may be nil, in which case Reset keeps the current layout.
func NewEngine(obstacles ObstacleSet, gen *Generator) *RobotEngine {
	return &RobotEngine{
		state:     StartState(),
		obstacles: obstacles,
		generator: gen,
		steps:     []StepRecord{},
	}
}

// NewRandomEngine creates an engine whose first layout comes from gen.
func NewRandomEngine(gen *Generator) *RobotEngine {
	return NewEngine(gen.Generate(), gen)
}

// State returns the current robot state
func (e *RobotEngine) State() RobotState {
	return e.state
}

// Obstacles returns the layout used for this run
func (e *RobotEngine) Obstacles() ObstacleSet {
	return e.obstacles
}

// Commands returns the command history of the current run
func (e *RobotEngine) Commands() string {
	return e.commands.String()
}

// Steps returns a copy of the step log of the current run
func (e *RobotEngine) Steps() []StepRecord {
	out := make([]StepRecord, len(e.steps))
	copy(out, e.steps)
	return out
}

// Counters returns the success and failure counts
func (e *RobotEngine) Counters() (successes, failures int) {
	return e.successes, e.failures
}

// Result assembles the current run into a SimulationResult.
func (e *RobotEngine) Result() SimulationResult {
	return SimulationResult{
		Commands:      e.Commands(),
		Obstacles:     e.obstacles,
		InitialState:  StartState(),
		FinalPosition: e.state.Position,
		FinalHeading:  e.state.Heading,
		SuccessCount:  e.successes,
		FailureCount:  e.failures,
		Steps:         e.Steps(),
	}
}

// Apply interprets one command against the current state.
func (e *RobotEngine) Apply(cmd Command) (StepRecord, error) {
	if e.editMode {
		return StepRecord{}, ErrEditMode
	}

	cmd = ParseCommand(rune(cmd))
	next, outcome := Step(e.state, e.obstacles, cmd)
	e.state = next
	if outcome.Succeeded() {
		e.successes++
	} else {
		e.failures++
	}

	record := StepRecord{
		Index:     len(e.steps),
		Command:   cmd,
		Position:  next.Position,
		Heading:   next.Heading,
		Succeeded: outcome.Succeeded(),
		Outcome:   outcome,
	}
	e.steps = append(e.steps, record)
	e.commands.WriteRune(rune(cmd))
	return record, nil
}

// ApplyString interprets each character of commands in order.
func (e *RobotEngine) ApplyString(commands string) ([]StepRecord, error) {
	if e.editMode {
		return nil, ErrEditMode
	}
	if err := ValidateCommands(e.Commands() + commands); err != nil {
		return nil, err
	}

	records := make([]StepRecord, 0, len(commands))
	for _, r := range commands {
		record, err := e.Apply(Command(r))
		if err != nil {
			return records, err
		}
		records = append(records, record)
	}
	return records, nil
}

// KeyCommand maps a key event name to a command. Besides the command
// letters, W/Q/E and the arrow keys are accepted.
func KeyCommand(key string) (Command, bool) {
	switch strings.ToUpper(strings.TrimSpace(key)) {
	case "A", "W", "ARROWUP", "UP":
		return Advance, true
	case "I", "Q", "ARROWLEFT", "LEFT":
		return TurnLeft, true
	case "D", "E", "ARROWRIGHT", "RIGHT":
		return TurnRight, true
	default:
		return 0, false
	}
}

// HandleKey applies the command bound to key. Unbound keys are ignored and
// reported with handled=false; they do not appear in the history.
func (e *RobotEngine) HandleKey(key string) (StepRecord, bool, error) {
	cmd, ok := KeyCommand(key)
	if !ok {
		return StepRecord{}, false, nil
	}
	if e.editMode {
		return StepRecord{}, false, ErrEditMode
	}
	record, err := e.Apply(cmd)
	if err != nil {
		return StepRecord{}, false, err
	}
	return record, true, nil
}

// EditMode reports whether interpretation is paused for editing
func (e *RobotEngine) EditMode() bool {
	return e.editMode
}

// SetEditMode pauses or resumes interpretation
func (e *RobotEngine) SetEditMode(enabled bool) {
	e.editMode = enabled
}

// ToggleObstacle flips the obstacle at p. The edit is silently rejected
// outside edit mode, once the current run has steps, or when the set
// constraints forbid it.
func (e *RobotEngine) ToggleObstacle(p Position) bool {
	if !e.editMode || len(e.steps) > 0 {
		return false
	}
	next, ok := e.obstacles.Toggle(p)
	if ok {
		e.obstacles = next
	}
	return ok
}

// Reset returns to the start state with a fresh layout and leaves edit mode
func (e *RobotEngine) Reset() {
	e.state = StartState()
	e.commands.Reset()
	e.steps = []StepRecord{}
	e.successes = 0
	e.failures = 0
	e.editMode = false
	if e.generator != nil {
		e.obstacles = e.generator.Generate()
	}
}

// Snapshot captures the engine for persistence
func (e *RobotEngine) Snapshot() Snapshot {
	return Snapshot{
		State:     e.state,
		Obstacles: e.obstacles,
		Commands:  e.Commands(),
		Successes: e.successes,
		Failures:  e.failures,
		EditMode:  e.editMode,
	}
}

// Restore rebuilds the engine from a snapshot by replaying its commands.
// Snapshots whose stored state disagrees with the replay are rejected.
func (e *RobotEngine) Restore(snap Snapshot) error {
	replay := RunFromStart(snap.Obstacles, snap.Commands)
	if replay.FinalState() != snap.State ||
		replay.SuccessCount != snap.Successes ||
		replay.FailureCount != snap.Failures {
		return fmt.Errorf("%w: stored state %s (%d/%d) does not match replay %s (%d/%d)",
			ErrInvalidSnapshot,
			snap.State, snap.Successes, snap.Failures,
			replay.FinalState(), replay.SuccessCount, replay.FailureCount)
	}

	e.state = replay.FinalState()
	e.obstacles = snap.Obstacles
	e.commands.Reset()
	e.commands.WriteString(replay.Commands)
	e.steps = replay.Steps
	e.successes = replay.SuccessCount
	e.failures = replay.FailureCount
	e.editMode = snap.EditMode
	return nil
}
