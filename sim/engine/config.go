package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidHeading      = errors.New("invalid heading")
	ErrObstacleOutOfBounds = errors.New("obstacle outside the grid")
	ErrObstacleAtStart     = errors.New("obstacle on the start cell")
	ErrDuplicateObstacle   = errors.New("duplicate obstacle")
	ErrTooManyObstacles    = errors.New("too many obstacles")
	ErrCommandsTooLong     = errors.New("command string too long")
	ErrEditMode            = errors.New("engine is in edit mode")
	ErrInvalidSnapshot     = errors.New("invalid engine snapshot")
)

// InBounds reports whether p lies on the grid.
func InBounds(p Position) bool {
	return p.X >= 0 && p.X < GridSize && p.Y >= 0 && p.Y < GridSize
}

// ValidateGridSettings checks optional grid settings coming from a preset.
// Zero values mean "use the default"; anything else must match the
// constants, so both execution surfaces always agree.
func ValidateGridSettings(gridSize, maxObstacles int) error {
	if gridSize != 0 && gridSize != GridSize {
		return fmt.Errorf("grid validation: grid_size is fixed at %d, got %d", GridSize, gridSize)
	}
	if maxObstacles != 0 && maxObstacles != MaxObstacles {
		return fmt.Errorf("grid validation: max_obstacles is fixed at %d, got %d", MaxObstacles, maxObstacles)
	}
	return nil
}

// ValidateGenerationRange checks a random obstacle count range.
func ValidateGenerationRange(min, max int) error {
	if min < 0 {
		return fmt.Errorf("grid validation: min obstacles must be >= 0, got %d", min)
	}
	if max > MaxObstacles {
		return fmt.Errorf("grid validation: max obstacles must be <= %d, got %d", MaxObstacles, max)
	}
	if min > max {
		return fmt.Errorf("grid validation: min obstacles (%d) greater than max (%d)", min, max)
	}
	return nil
}

// ValidateCommands rejects command strings the server refuses to store.
// Characters outside the alphabet are fine; they become failed steps.
func ValidateCommands(commands string) error {
	if n := len([]rune(commands)); n > MaxCommandLength {
		return fmt.Errorf("%w: %d characters (max %d)", ErrCommandsTooLong, n, MaxCommandLength)
	}
	return nil
}

// NormalizeCommands upper-cases a command string.
func NormalizeCommands(commands string) string {
	return strings.ToUpper(commands)
}
