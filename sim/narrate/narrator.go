package narrate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wricardo/robot-simulator/sim/engine"
)

var ErrEmptyQuestion = errors.New("question cannot be empty")

// Greeting is the first message shown when a conversation opens.
const Greeting = "Hi! I'm the robot assistant. Ask me about my position, the obstacles, or what to do next."

// Narrator answers free-form questions about a robot. Implementations only
// read the snapshot; they never drive the engine.
type Narrator interface {
	Answer(ctx context.Context, s Snapshot, question string) (string, error)
}

// LocalNarrator answers from the snapshot alone, without any remote model.
type LocalNarrator struct{}

var _ Narrator = LocalNarrator{}

type topic int

const (
	topicSummary topic = iota
	topicPosition
	topicAhead
	topicNext
	topicObstacles
	topicStats
)

var topicKeywords = []struct {
	topic    topic
	keywords []string
}{
	{topicNext, []string{"next", "suggest", "should", "help", "how do", "how can", "advice"}},
	{topicAhead, []string{"ahead", "front", "see", "facing"}},
	{topicObstacles, []string{"obstacle", "block", "wall"}},
	{topicStats, []string{"stat", "score", "success", "fail", "rate", "how many"}},
	{topicPosition, []string{"where", "position", "location", "heading", "direction"}},
}

func classify(question string) topic {
	q := strings.ToLower(question)
	for _, entry := range topicKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(q, kw) {
				return entry.topic
			}
		}
	}
	return topicSummary
}

// Answer implements Narrator.
func (LocalNarrator) Answer(ctx context.Context, s Snapshot, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(question) == "" {
		return "", ErrEmptyQuestion
	}

	obstacles, err := s.ObstacleSet()
	if err != nil {
		return "", fmt.Errorf("snapshot layout: %w", err)
	}
	state := s.State()

	switch classify(question) {
	case topicPosition:
		return describePosition(state), nil
	case topicAhead:
		return describeAhead(state, obstacles), nil
	case topicNext:
		return suggestNext(state, obstacles), nil
	case topicObstacles:
		return describeObstacles(state, obstacles), nil
	case topicStats:
		return describeStats(s), nil
	default:
		return strings.Join([]string{
			describePosition(state),
			describeAhead(state, obstacles),
			suggestNext(state, obstacles),
		}, "\n"), nil
	}
}

func describePosition(state engine.RobotState) string {
	return fmt.Sprintf("I'm at %s facing %s.", state.Position, state.Heading)
}

func describeAhead(state engine.RobotState, obstacles engine.ObstacleSet) string {
	cell, outcome := engine.Ahead(state, obstacles)
	switch outcome {
	case engine.OutcomeBlockedBoundary:
		return fmt.Sprintf("Ahead of me is the edge of the grid; advancing %s would fail.", state.Heading)
	case engine.OutcomeBlockedObstacle:
		return fmt.Sprintf("There is an obstacle right ahead at %s.", cell)
	default:
		n := engine.ClearRun(state, obstacles)
		return fmt.Sprintf("The way ahead is clear: I can advance %d cell(s) %s.", n, state.Heading)
	}
}

func suggestNext(state engine.RobotState, obstacles engine.ObstacleSet) string {
	if _, outcome := engine.Ahead(state, obstacles); outcome == engine.OutcomeOK {
		return "Try A to advance."
	}

	open := engine.OpenHeadings(state.Position, obstacles)
	if len(open) == 0 {
		return "I'm boxed in: every direction is blocked."
	}

	best := ""
	for _, h := range open {
		turns := engine.TurnsTo(state.Heading, h)
		if best == "" || len(turns) < len(best) {
			best = turns
		}
	}
	return fmt.Sprintf("Try %sA: turn first, then advance.", best)
}

func describeObstacles(state engine.RobotState, obstacles engine.ObstacleSet) string {
	if obstacles.Len() == 0 {
		return "There are no obstacles on the grid."
	}
	nearest, d, _ := engine.NearestObstacle(state.Position, obstacles)
	return fmt.Sprintf("There are %d obstacle(s): %s. The nearest is %s, %d cell(s) away.",
		obstacles.Len(), obstacles, nearest, d)
}

func describeStats(s Snapshot) string {
	total := s.Successes + s.Failures
	if total == 0 {
		return "No commands have run yet."
	}
	return fmt.Sprintf("%d command(s) run: %d succeeded, %d failed (%.0f%% success).",
		total, s.Successes, s.Failures, 100*float64(s.Successes)/float64(total))
}
