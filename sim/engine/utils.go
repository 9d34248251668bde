package engine

// ManhattanDistance calculates the Manhattan distance between two positions
func ManhattanDistance(from, to Position) int {
	dx := from.X - to.X
	if dx < 0 {
		dx = -dx
	}
	dy := from.Y - to.Y
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

// Ahead returns the cell in front of the robot and the outcome an Advance
// would have right now.
func Ahead(state RobotState, obstacles ObstacleSet) (Position, Outcome) {
	_, outcome := Step(state, obstacles, Advance)
	return state.Position.Add(state.Heading), outcome
}

// ClearRun counts how many cells the robot could advance before being
// blocked.
func ClearRun(state RobotState, obstacles ObstacleSet) int {
	n := 0
	for {
		next, ok := ApplyCommand(state, obstacles, Advance)
		if !ok {
			return n
		}
		state = next
		n++
	}
}

// OpenHeadings lists the headings in which an Advance would succeed from p,
// in cyclic order starting at North.
func OpenHeadings(p Position, obstacles ObstacleSet) []Heading {
	var open []Heading
	for h := North; h <= West; h++ {
		if CanMoveTo(p.Add(h), obstacles) {
			open = append(open, h)
		}
	}
	return open
}

// TurnsTo returns the shortest command sequence ("", "D", "I" or "DD")
// that rotates from one heading to another.
func TurnsTo(from, to Heading) string {
	switch (to - from + headingCount) % headingCount {
	case 1:
		return TurnRight.String()
	case 2:
		return TurnRight.String() + TurnRight.String()
	case 3:
		return TurnLeft.String()
	default:
		return ""
	}
}

// NearestObstacle finds the closest obstacle to p by Manhattan distance.
func NearestObstacle(p Position, obstacles ObstacleSet) (Position, int, bool) {
	minDistance := -1
	var nearest Position
	for _, o := range obstacles.cells {
		d := ManhattanDistance(p, o)
		if minDistance == -1 || d < minDistance {
			minDistance = d
			nearest = o
		}
	}
	return nearest, minDistance, minDistance >= 0
}

// Reachable returns the free cells the robot can reach from the start
// position, in row-major order. The start cell is always included.
func Reachable(obstacles ObstacleSet) []Position {
	seen := map[Position]bool{StartPosition: true}
	queue := []Position{StartPosition}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for h := North; h <= West; h++ {
			next := p.Add(h)
			if seen[next] || !CanMoveTo(next, obstacles) {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}

	cells := make([]Position, 0, len(seen))
	for p := range seen {
		cells = append(cells, p)
	}
	sortPositions(cells)
	return cells
}
