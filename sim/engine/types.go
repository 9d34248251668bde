package engine

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	// Grid and layout constants shared by the interactive and batch paths.
	GridSize            = 5
	MaxObstacles        = 5
	DefaultMinObstacles = 2
	DefaultMaxObstacles = 5
	DefaultHistoryLimit = 10
	MaxCommandLength    = 1000
)

// Position represents x,y coordinates. Y grows downward.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// StartPosition is where every run begins.
var StartPosition = Position{X: 0, Y: 0}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Add returns the neighbouring cell in the given heading.
func (p Position) Add(h Heading) Position {
	dx, dy := h.Delta()
	return Position{X: p.X + dx, Y: p.Y + dy}
}

// Heading is an index into the fixed cyclic order North, East, South, West.
type Heading int

const (
	North Heading = iota
	East
	South
	West
)

const headingCount = 4

var headingNames = [headingCount]string{"North", "East", "South", "West"}

// Names used by records written by the legacy web client.
var legacyHeadingNames = map[string]Heading{
	"norte": North,
	"este":  East,
	"sur":   South,
	"oeste": West,
}

// Valid reports whether h is one of the four headings.
func (h Heading) Valid() bool {
	return h >= North && h <= West
}

// Left returns the previous heading in the cycle.
func (h Heading) Left() Heading {
	return (h + headingCount - 1) % headingCount
}

// Right returns the next heading in the cycle.
func (h Heading) Right() Heading {
	return (h + 1) % headingCount
}

// Delta returns the unit vector applied by Advance.
func (h Heading) Delta() (dx, dy int) {
	switch h {
	case North:
		return 0, -1
	case East:
		return 1, 0
	case South:
		return 0, 1
	case West:
		return -1, 0
	}
	return 0, 0
}

func (h Heading) String() string {
	if !h.Valid() {
		return fmt.Sprintf("Heading(%d)", int(h))
	}
	return headingNames[h]
}

// MarshalText encodes the heading as its name.
func (h Heading) MarshalText() ([]byte, error) {
	if !h.Valid() {
		return nil, fmt.Errorf("invalid heading %d", int(h))
	}
	return []byte(headingNames[h]), nil
}

// UnmarshalText accepts any name understood by ParseHeading.
func (h *Heading) UnmarshalText(text []byte) error {
	parsed, err := ParseHeading(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHeading parses a heading name, case-insensitively. The Spanish names
// of the legacy web client are accepted as aliases.
func ParseHeading(name string) (Heading, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	for i, n := range headingNames {
		if strings.ToLower(n) == lower {
			return Heading(i), nil
		}
	}
	if h, ok := legacyHeadingNames[lower]; ok {
		return h, nil
	}
	return North, fmt.Errorf("%w: %q", ErrInvalidHeading, name)
}

// Command is one character of a command string, normalized to upper case.
type Command rune

const (
	Advance   Command = 'A'
	TurnLeft  Command = 'I'
	TurnRight Command = 'D'
)

// ParseCommand normalizes a single input character.
func ParseCommand(r rune) Command {
	return Command(unicode.ToUpper(r))
}

// Valid reports whether c belongs to the command alphabet.
func (c Command) Valid() bool {
	switch c {
	case Advance, TurnLeft, TurnRight:
		return true
	default:
		return false
	}
}

func (c Command) String() string {
	return string(rune(c))
}

// MarshalText encodes the command as its single character.
func (c Command) MarshalText() ([]byte, error) {
	return []byte(string(rune(c))), nil
}

// UnmarshalText decodes a single-character command.
func (c *Command) UnmarshalText(text []byte) error {
	runes := []rune(string(text))
	if len(runes) != 1 {
		return fmt.Errorf("command must be a single character, got %q", string(text))
	}
	*c = Command(runes[0])
	return nil
}

// Outcome says why a step succeeded or failed.
type Outcome string

const (
	OutcomeOK              Outcome = "ok"
	OutcomeBlockedBoundary Outcome = "blocked_boundary"
	OutcomeBlockedObstacle Outcome = "blocked_obstacle"
	OutcomeInvalidCommand  Outcome = "invalid_command"
)

// Succeeded reports whether the outcome counts as a success.
func (o Outcome) Succeeded() bool {
	return o == OutcomeOK
}

// RobotState is the robot's position and heading.
type RobotState struct {
	Position Position `json:"position"`
	Heading  Heading  `json:"heading"`
}

// StartState returns the canonical start state: (0,0) facing North.
func StartState() RobotState {
	return RobotState{Position: StartPosition, Heading: North}
}

func (s RobotState) String() string {
	return fmt.Sprintf("%s %s", s.Position, s.Heading)
}

// StepRecord is the result of applying one command character.
type StepRecord struct {
	Index     int      `json:"index"`
	Command   Command  `json:"command"`
	Position  Position `json:"position"`
	Heading   Heading  `json:"heading"`
	Succeeded bool     `json:"succeeded"`
	Outcome   Outcome  `json:"outcome"`
}

// State returns the robot state after the step.
func (r StepRecord) State() RobotState {
	return RobotState{Position: r.Position, Heading: r.Heading}
}
