package narrate

import (
	"github.com/wricardo/robot-simulator/sim/engine"
)

// Snapshot is the read-only view of a robot handed to a narrator.
type Snapshot struct {
	Position  engine.Position   `json:"position"`
	Heading   engine.Heading    `json:"heading"`
	Obstacles []engine.Position `json:"obstacles"`
	History   string            `json:"command_history"`
	Successes int               `json:"successes"`
	Failures  int               `json:"failures"`
}

// FromEngine captures the current state of an interactive engine.
func FromEngine(e engine.Engine) Snapshot {
	state := e.State()
	successes, failures := e.Counters()
	return Snapshot{
		Position:  state.Position,
		Heading:   state.Heading,
		Obstacles: e.Obstacles().Positions(),
		History:   e.Commands(),
		Successes: successes,
		Failures:  failures,
	}
}

// FromResult captures the end state of a batch run.
func FromResult(r engine.SimulationResult) Snapshot {
	return Snapshot{
		Position:  r.FinalPosition,
		Heading:   r.FinalHeading,
		Obstacles: r.Obstacles.Positions(),
		History:   r.Commands,
		Successes: r.SuccessCount,
		Failures:  r.FailureCount,
	}
}

// State returns the robot state of the snapshot.
func (s Snapshot) State() engine.RobotState {
	return engine.RobotState{Position: s.Position, Heading: s.Heading}
}

// ObstacleSet rebuilds the layout of the snapshot.
func (s Snapshot) ObstacleSet() (engine.ObstacleSet, error) {
	return engine.NewObstacleSet(s.Obstacles...)
}
