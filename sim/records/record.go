package records

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wricardo/robot-simulator/sim/engine"
)

var (
	ErrUnauthenticated = errors.New("user not authenticated")
	ErrCorruptRecord   = errors.New("stored record does not match its replay")
)

// Record is one saved simulation. The full trace is not stored; Result
// rebuilds it by replaying the commands over the stored layout.
type Record struct {
	ID            string             `json:"id"`
	UserID        string             `json:"user_id"`
	Commands      string             `json:"commands"`
	Obstacles     engine.ObstacleSet `json:"obstacles"`
	FinalPosition engine.Position    `json:"final_position"`
	FinalHeading  engine.Heading     `json:"final_heading"`
	Successes     int                `json:"successes"`
	Failures      int                `json:"failures"`
	CreatedAt     time.Time          `json:"created_at"`
}

// NewRecord builds a record for userID from a finished run.
func NewRecord(userID string, result engine.SimulationResult, now time.Time) *Record {
	return &Record{
		ID:            uuid.NewString(),
		UserID:        userID,
		Commands:      result.Commands,
		Obstacles:     result.Obstacles,
		FinalPosition: result.FinalPosition,
		FinalHeading:  result.FinalHeading,
		Successes:     result.SuccessCount,
		Failures:      result.FailureCount,
		CreatedAt:     now.UTC(),
	}
}

// Result replays the record into a full SimulationResult.
func (r *Record) Result() (engine.SimulationResult, error) {
	result := engine.RunFromStart(r.Obstacles, r.Commands)
	if result.FinalPosition != r.FinalPosition ||
		result.FinalHeading != r.FinalHeading ||
		result.SuccessCount != r.Successes ||
		result.FailureCount != r.Failures {
		return result, fmt.Errorf("%w: record %s", ErrCorruptRecord, r.ID)
	}
	return result, nil
}

func (r *Record) clone() *Record {
	c := *r
	return &c
}
