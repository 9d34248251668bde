package session

import (
	"time"

	"github.com/wricardo/robot-simulator/sim/engine"
	"github.com/wricardo/robot-simulator/sim/service"
)

// SessionPersistence stores sessions outside the process so they survive
// restarts.
type SessionPersistence interface {
	Save(session *service.Session) error
	// Load rebuilds a session, replaying its command string.
	Load(id string) (*service.Session, error)
	Delete(id string) error
	// ListAll returns the stored session IDs.
	ListAll() ([]string, error)
	Exists(id string) bool
}

// SessionFile is the on-disk form of a session. The engine snapshot holds
// the layout and command string; positions are recomputed on load.
type SessionFile struct {
	ID             string          `json:"id"`
	PresetName     string          `json:"preset_name"`
	CreatedAt      time.Time       `json:"created_at"`
	LastAccessedAt time.Time       `json:"last_accessed_at"`
	Engine         engine.Snapshot `json:"engine"`
}
