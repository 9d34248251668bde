package engine

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ObstacleSet is an immutable, sorted set of blocked cells. The zero value
// is an empty set. Methods that change membership return a new set.
type ObstacleSet struct {
	cells []Position
}

// NewObstacleSet validates cells and builds a set from them.
func NewObstacleSet(cells ...Position) (ObstacleSet, error) {
	if len(cells) > MaxObstacles {
		return ObstacleSet{}, fmt.Errorf("%w: %d (max %d)", ErrTooManyObstacles, len(cells), MaxObstacles)
	}

	seen := make(map[Position]bool, len(cells))
	out := make([]Position, 0, len(cells))
	for _, p := range cells {
		if !InBounds(p) {
			return ObstacleSet{}, fmt.Errorf("%w: %s", ErrObstacleOutOfBounds, p)
		}
		if p == StartPosition {
			return ObstacleSet{}, fmt.Errorf("%w: %s", ErrObstacleAtStart, p)
		}
		if seen[p] {
			return ObstacleSet{}, fmt.Errorf("%w: %s", ErrDuplicateObstacle, p)
		}
		seen[p] = true
		out = append(out, p)
	}

	sortPositions(out)
	return ObstacleSet{cells: out}, nil
}

// MustObstacleSet is like NewObstacleSet but panics on invalid input.
// Intended for fixed layouts and tests.
func MustObstacleSet(cells ...Position) ObstacleSet {
	set, err := NewObstacleSet(cells...)
	if err != nil {
		panic(err)
	}
	return set
}

// Contains reports whether p is blocked.
func (s ObstacleSet) Contains(p Position) bool {
	i := sort.Search(len(s.cells), func(i int) bool {
		return !positionLess(s.cells[i], p)
	})
	return i < len(s.cells) && s.cells[i] == p
}

// Len returns the number of obstacles.
func (s ObstacleSet) Len() int {
	return len(s.cells)
}

// Positions returns a copy of the blocked cells in row-major order.
func (s ObstacleSet) Positions() []Position {
	out := make([]Position, len(s.cells))
	copy(out, s.cells)
	return out
}

// Equal reports whether both sets hold the same cells.
func (s ObstacleSet) Equal(other ObstacleSet) bool {
	if len(s.cells) != len(other.cells) {
		return false
	}
	for i := range s.cells {
		if s.cells[i] != other.cells[i] {
			return false
		}
	}
	return true
}

// Toggle removes p if present, otherwise adds it. Adding is silently
// rejected (ok=false) for the start cell, off-grid cells, or a full set.
func (s ObstacleSet) Toggle(p Position) (ObstacleSet, bool) {
	if s.Contains(p) {
		out := make([]Position, 0, len(s.cells)-1)
		for _, c := range s.cells {
			if c != p {
				out = append(out, c)
			}
		}
		return ObstacleSet{cells: out}, true
	}

	if !InBounds(p) || p == StartPosition || len(s.cells) >= MaxObstacles {
		return s, false
	}

	out := make([]Position, 0, len(s.cells)+1)
	out = append(out, s.cells...)
	out = append(out, p)
	sortPositions(out)
	return ObstacleSet{cells: out}, true
}

func (s ObstacleSet) String() string {
	return fmt.Sprint(s.cells)
}

// MarshalJSON encodes the set as a list of positions.
func (s ObstacleSet) MarshalJSON() ([]byte, error) {
	if s.cells == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.cells)
}

// UnmarshalJSON decodes and validates a list of positions.
func (s *ObstacleSet) UnmarshalJSON(data []byte) error {
	var cells []Position
	if err := json.Unmarshal(data, &cells); err != nil {
		return err
	}
	set, err := NewObstacleSet(cells...)
	if err != nil {
		return err
	}
	*s = set
	return nil
}

func positionLess(a, b Position) bool {
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.X < b.X
}

func sortPositions(ps []Position) {
	sort.Slice(ps, func(i, j int) bool { return positionLess(ps[i], ps[j]) })
}
