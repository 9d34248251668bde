package engine

// SimulationResult is the outcome of a batch run. Treat it as read-only
// once built.
type SimulationResult struct {
	Commands      string       `json:"commands"`
	Obstacles     ObstacleSet  `json:"obstacles"`
	InitialState  RobotState   `json:"initial_state"`
	FinalPosition Position     `json:"final_position"`
	FinalHeading  Heading      `json:"final_heading"`
	SuccessCount  int          `json:"success_count"`
	FailureCount  int          `json:"failure_count"`
	Steps         []StepRecord `json:"steps"`
}

// FinalState returns the robot state at the end of the run.
func (r SimulationResult) FinalState() RobotState {
	return RobotState{Position: r.FinalPosition, Heading: r.FinalHeading}
}

// Total returns the number of commands processed.
func (r SimulationResult) Total() int {
	return r.SuccessCount + r.FailureCount
}

// SuccessRate returns successes / total, or 0 when nothing ran.
func (r SimulationResult) SuccessRate() float64 {
	total := r.Total()
	if total == 0 {
		return 0
	}
	return float64(r.SuccessCount) / float64(total)
}

// LastStep returns the most recent step, or nil for an empty run.
func (r SimulationResult) LastStep() *StepRecord {
	if len(r.Steps) == 0 {
		return nil
	}
	step := r.Steps[len(r.Steps)-1]
	return &step
}

// Equal reports whether two results describe the same run.
func Equal(a, b SimulationResult) bool {
	if a.Commands != b.Commands ||
		a.InitialState != b.InitialState ||
		a.FinalPosition != b.FinalPosition ||
		a.FinalHeading != b.FinalHeading ||
		a.SuccessCount != b.SuccessCount ||
		a.FailureCount != b.FailureCount ||
		!a.Obstacles.Equal(b.Obstacles) ||
		len(a.Steps) != len(b.Steps) {
		return false
	}
	for i := range a.Steps {
		if a.Steps[i] != b.Steps[i] {
			return false
		}
	}
	return true
}
