// Package engine provides the core simulation logic for the robot simulator.
//
// The engine package implements:
//   - The command interpreter (A = advance, I = turn left, D = turn right)
//   - Grid bounds and obstacle collision rules on the fixed 5x5 grid
//   - Obstacle sets, toggling under the editor constraints, and random
//     layout generation behind an injectable random source
//   - Batch runs that produce a full step trace and counters
//   - The interactive engine used by sessions, with an edit mode
//
// Core Types:
//
// RobotState holds a Position and a Heading. Step and ApplyCommand apply a
// single command; Run folds a whole command string into a SimulationResult.
// Both are pure: the same start state, layout and commands always produce
// the same result. RobotEngine wraps the same functions for key-by-key use,
// so an interactive run and its batch replay are identical.
//
// Usage:
//
//	obstacles := engine.MustObstacleSet(engine.Position{X: 1, Y: 0})
//	result := engine.RunFromStart(obstacles, "DA")
//	fmt.Println(result.FinalState(), result.SuccessCount, result.FailureCount)
//
//	eng := engine.NewRandomEngine(engine.NewSeededGenerator(42))
//	step, handled, err := eng.HandleKey("ArrowUp")
//
// Rules:
//
// The robot starts at (0,0) facing North. North decreases y, East increases
// x. Advancing off the grid or into an obstacle fails and leaves the robot
// in place; unknown characters fail as no-ops. Failures are counted and the
// run continues.
package engine
