package service

import (
	"time"

	"github.com/wricardo/robot-simulator/sim/engine"
	"github.com/wricardo/robot-simulator/sim/narrate"
	"github.com/wricardo/robot-simulator/sim/records"
)

// SessionInfo provides information about a simulator session
type SessionInfo struct {
	ID             string     `json:"id"`
	PresetName     string     `json:"preset_name"`
	CreatedAt      time.Time  `json:"created_at"`
	LastAccessedAt time.Time  `json:"last_accessed_at"`
	State          *StateView `json:"state"`
}

// StateView is the full client-facing state of a session
type StateView struct {
	SessionID   string             `json:"session_id,omitempty"`
	Position    engine.Position    `json:"position"`
	Heading     engine.Heading     `json:"heading"`
	Obstacles   engine.ObstacleSet `json:"obstacles"`
	Commands    string             `json:"commands"`
	Successes   int                `json:"successes"`
	Failures    int                `json:"failures"`
	Total       int                `json:"total"`
	SuccessRate float64            `json:"success_rate"`
	EditMode    bool               `json:"edit_mode"`
	Editable    bool               `json:"editable"` // obstacles can be toggled right now

	// Decision aids
	GridSize     int                `json:"grid_size"`
	MaxObstacles int                `json:"max_obstacles"`
	Ahead        engine.Outcome     `json:"ahead"`
	OpenHeadings []engine.Heading   `json:"open_headings"`
	Grid         []string           `json:"grid"`
	LastStep     *engine.StepRecord `json:"last_step,omitempty"`
}

// KeyResult contains the result of a single key press
type KeyResult struct {
	Key     string             `json:"key"`
	Handled bool               `json:"handled"`
	Step    *engine.StepRecord `json:"step,omitempty"`
	State   *StateView         `json:"state"`
}

// CommandsResult contains the result of several commands or keys
type CommandsResult struct {
	Requested  int                 `json:"requested"`
	Executed   int                 `json:"executed"`
	Ignored    []string            `json:"ignored,omitempty"` // keys without a binding
	Successes  int                 `json:"successes"`
	Failures   int                 `json:"failures"`
	StartState engine.RobotState   `json:"start_state"`
	EndState   engine.RobotState   `json:"end_state"`
	Steps      []engine.StepRecord `json:"steps"`
	State      *StateView          `json:"state"`
}

// ToggleResult reports an obstacle edit. Rejected edits are not errors.
type ToggleResult struct {
	Position engine.Position `json:"position"`
	Applied  bool            `json:"applied"`
	Present  bool            `json:"present"` // obstacle at Position after the call
	Reason   string          `json:"reason,omitempty"`
	State    *StateView      `json:"state"`
}

// HistoryOptions configures step trace retrieval
type HistoryOptions struct {
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Order string `json:"order"` // "asc" or "desc"
}

// TraceResponse contains a paginated step trace
type TraceResponse struct {
	Steps       []engine.StepRecord `json:"steps"`
	TotalSteps  int                 `json:"total_steps"`
	Page        int                 `json:"page"`
	PageSize    int                 `json:"page_size"`
	TotalPages  int                 `json:"total_pages"`
	HasNext     bool                `json:"has_next"`
	HasPrevious bool                `json:"has_previous"`
}

// SimulateRequest describes a stateless batch run. The layout comes from
// exactly one of Obstacles, Preset or SessionID; none means an empty grid.
type SimulateRequest struct {
	Commands  string            `json:"commands"`
	Obstacles []engine.Position `json:"obstacles,omitempty"`
	Preset    string            `json:"preset,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
}

// SaveResult reports a persistence attempt. Result is always filled, even
// when saving failed.
type SaveResult struct {
	Saved  bool                    `json:"saved"`
	Record *records.Record         `json:"record,omitempty"`
	Result engine.SimulationResult `json:"result"`
}

// NarrationResult is an answer about a session
type NarrationResult struct {
	Question string           `json:"question"`
	Answer   string           `json:"answer"`
	Snapshot narrate.Snapshot `json:"snapshot"`
}

// NarrationContext is what an external assistant needs to answer
type NarrationContext struct {
	Greeting string           `json:"greeting"`
	Snapshot narrate.Snapshot `json:"snapshot"`
	Prompt   string           `json:"prompt"`
}
