package engine

// CanMoveTo checks if the robot may enter the cell at p.
func CanMoveTo(p Position, obstacles ObstacleSet) bool {
	return InBounds(p) && !obstacles.Contains(p)
}

// Step applies one command and reports the outcome. It is pure and total:
// unknown commands leave the state untouched and yield OutcomeInvalidCommand.
func Step(state RobotState, obstacles ObstacleSet, cmd Command) (RobotState, Outcome) {
	switch ParseCommand(rune(cmd)) {
	case Advance:
		next := state.Position.Add(state.Heading)
		if !InBounds(next) {
			return state, OutcomeBlockedBoundary
		}
		if obstacles.Contains(next) {
			return state, OutcomeBlockedObstacle
		}
		return RobotState{Position: next, Heading: state.Heading}, OutcomeOK

	case TurnLeft:
		return RobotState{Position: state.Position, Heading: state.Heading.Left()}, OutcomeOK

	case TurnRight:
		return RobotState{Position: state.Position, Heading: state.Heading.Right()}, OutcomeOK

	default:
		return state, OutcomeInvalidCommand
	}
}

// ApplyCommand applies one command to state and reports whether it succeeded.
func ApplyCommand(state RobotState, obstacles ObstacleSet, cmd Command) (RobotState, bool) {
	next, outcome := Step(state, obstacles, cmd)
	return next, outcome.Succeeded()
}

// Run replays commands from initial over obstacles. Every character of the
// upper-cased input produces exactly one StepRecord; failures never stop
// the run.
func Run(initial RobotState, obstacles ObstacleSet, commands string) SimulationResult {
	normalized := NormalizeCommands(commands)
	steps := make([]StepRecord, 0, len(normalized))

	state := initial
	successes, failures := 0, 0
	for _, r := range normalized {
		cmd := ParseCommand(r)

		var outcome Outcome
		state, outcome = Step(state, obstacles, cmd)
		if outcome.Succeeded() {
			successes++
		} else {
			failures++
		}

		steps = append(steps, StepRecord{
			Index:     len(steps),
			Command:   cmd,
			Position:  state.Position,
			Heading:   state.Heading,
			Succeeded: outcome.Succeeded(),
			Outcome:   outcome,
		})
	}

	return SimulationResult{
		Commands:      normalized,
		Obstacles:     obstacles,
		InitialState:  initial,
		FinalPosition: state.Position,
		FinalHeading:  state.Heading,
		SuccessCount:  successes,
		FailureCount:  failures,
		Steps:         steps,
	}
}

// RunFromStart replays commands from the canonical start state.
func RunFromStart(obstacles ObstacleSet, commands string) SimulationResult {
	return Run(StartState(), obstacles, commands)
}
