package engine

import (
	"math/rand/v2"
)

// RandSource is the randomness the obstacle generator needs.
// *rand.Rand from math/rand/v2 satisfies it.
type RandSource interface {
	IntN(n int) int
}

// Generator draws random obstacle layouts. It is the only non-deterministic
// piece of the package and is never used by the interpreter itself.
type Generator struct {
	rng RandSource
	Min int
	Max int
}

// NewGenerator creates a generator drawing between min and max obstacles.
func NewGenerator(rng RandSource, min, max int) (*Generator, error) {
	if err := ValidateGenerationRange(min, max); err != nil {
		return nil, err
	}
	return &Generator{rng: rng, Min: min, Max: max}, nil
}

// NewSeededGenerator returns a reproducible generator with the default range.
func NewSeededGenerator(seed uint64) *Generator {
	return &Generator{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		Min: DefaultMinObstacles,
		Max: DefaultMaxObstacles,
	}
}

// Generate picks a count in [Min, Max], then that many distinct cells,
// never the start cell.
func (g *Generator) Generate() ObstacleSet {
	count := g.Min
	if g.Max > g.Min {
		count += g.rng.IntN(g.Max - g.Min + 1)
	}

	// Draw from the free cells directly so the loop always terminates.
	free := make([]Position, 0, GridSize*GridSize-1)
	for y := 0; y < GridSize; y++ {
		for x := 0; x < GridSize; x++ {
			p := Position{X: x, Y: y}
			if p != StartPosition {
				free = append(free, p)
			}
		}
	}

	cells := make([]Position, 0, count)
	for i := 0; i < count && len(free) > 0; i++ {
		j := g.rng.IntN(len(free))
		cells = append(cells, free[j])
		free[j] = free[len(free)-1]
		free = free[:len(free)-1]
	}

	sortPositions(cells)
	return ObstacleSet{cells: cells}
}
