package scenario

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"go.uber.org/multierr"

	"github.com/wricardo/robot-simulator/sim/engine"
)

var (
	ErrSyntax            = errors.New("scenario syntax error")
	ErrExpectationFailed = errors.New("expectation failed")
)

type file struct {
	Clauses []*clause `parser:"@@*"`
}

type clause struct {
	Pos lexer.Position

	Obstacle *point       `parser:"  'obstacle' @@"`
	Commands *string      `parser:"| 'commands' @String"`
	Expect   *expectation `parser:"| 'expect' @@"`
}

type point struct {
	X int `parser:"'(' @Int ','"`
	Y int `parser:"@Int ')'"`
}

type expectation struct {
	At        *point  `parser:"  @@"`
	Heading   *string `parser:"  @('North' | 'East' | 'South' | 'West')?"`
	Successes *int    `parser:"| 'successes' @Int"`
	Failures  *int    `parser:"| 'failures' @Int"`
}

var parser = participle.MustBuild[file](participle.Unquote("String"))

// Expectation is one expect clause. Nil fields are not checked.
type Expectation struct {
	Line      int
	Position  *engine.Position
	Heading   *engine.Heading
	Successes *int
	Failures  *int
}

// Scenario is a parsed scenario file: a layout, a command string and the
// expected outcome of running it.
type Scenario struct {
	Name     string
	Cells    []engine.Position
	Commands string
	Expects  []Expectation
}

// Parse reads a scenario. Multiple commands clauses are concatenated in
// order.
func Parse(name, src string) (*Scenario, error) {
	ast, err := parser.ParseString(name, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSyntax, err)
	}

	sc := &Scenario{Name: name}
	for _, c := range ast.Clauses {
		switch {
		case c.Obstacle != nil:
			sc.Cells = append(sc.Cells, engine.Position{X: c.Obstacle.X, Y: c.Obstacle.Y})
		case c.Commands != nil:
			sc.Commands += *c.Commands
		case c.Expect != nil:
			exp, err := c.Expect.build(c.Pos.Line)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrSyntax, c.Pos, err)
			}
			sc.Expects = append(sc.Expects, exp)
		}
	}
	return sc, nil
}

// ParseFile reads and parses the scenario at path.
func ParseFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	return Parse(filepath.Base(path), string(data))
}

func (e *expectation) build(line int) (Expectation, error) {
	exp := Expectation{Line: line, Successes: e.Successes, Failures: e.Failures}
	if e.At != nil {
		exp.Position = &engine.Position{X: e.At.X, Y: e.At.Y}
	}
	if e.Heading != nil {
		h, err := engine.ParseHeading(*e.Heading)
		if err != nil {
			return Expectation{}, err
		}
		exp.Heading = &h
	}
	return exp, nil
}

// Obstacles validates the layout of the scenario.
func (s *Scenario) Obstacles() (engine.ObstacleSet, error) {
	return engine.NewObstacleSet(s.Cells...)
}

// Run executes the scenario from the start state.
func (s *Scenario) Run() (engine.SimulationResult, error) {
	obstacles, err := s.Obstacles()
	if err != nil {
		return engine.SimulationResult{}, fmt.Errorf("%s: %w", s.Name, err)
	}
	if err := engine.ValidateCommands(s.Commands); err != nil {
		return engine.SimulationResult{}, fmt.Errorf("%s: %w", s.Name, err)
	}
	return engine.RunFromStart(obstacles, s.Commands), nil
}

// Check compares a result against every expect clause and reports all
// mismatches together.
func (s *Scenario) Check(result engine.SimulationResult) error {
	var errs error
	for _, exp := range s.Expects {
		if exp.Position != nil && *exp.Position != result.FinalPosition {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s:%d: position %s, got %s",
				ErrExpectationFailed, s.Name, exp.Line, *exp.Position, result.FinalPosition))
		}
		if exp.Heading != nil && *exp.Heading != result.FinalHeading {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s:%d: heading %s, got %s",
				ErrExpectationFailed, s.Name, exp.Line, *exp.Heading, result.FinalHeading))
		}
		if exp.Successes != nil && *exp.Successes != result.SuccessCount {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s:%d: %d successes, got %d",
				ErrExpectationFailed, s.Name, exp.Line, *exp.Successes, result.SuccessCount))
		}
		if exp.Failures != nil && *exp.Failures != result.FailureCount {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s:%d: %d failures, got %d",
				ErrExpectationFailed, s.Name, exp.Line, *exp.Failures, result.FailureCount))
		}
	}
	return errs
}
