package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/inconshreveable/log15/v3"
	"go.uber.org/multierr"

	"github.com/wricardo/robot-simulator/sim/config"
	"github.com/wricardo/robot-simulator/sim/engine"
	"github.com/wricardo/robot-simulator/sim/logging"
	"github.com/wricardo/robot-simulator/sim/service"
)

var (
	ErrSessionNotFound      = service.ErrSessionNotFound
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrInvalidSessionID     = errors.New("invalid session ID")
)

// idBytes random bytes make a 4 hex character session ID.
const idBytes = 2

// Manager owns the robot sessions of a server. Each session has a private
// engine; the manager only guards the index. IDs are case-insensitive.
type Manager struct {
	sessions    map[string]*service.Session
	persistence SessionPersistence
	newSource   func() engine.RandSource
	logger      log15.Logger
	mu          sync.RWMutex
}

var _ service.SessionManager = (*Manager)(nil)

// NewManager returns a manager that keeps sessions in memory only.
func NewManager() *Manager {
	return &Manager{
		sessions:  make(map[string]*service.Session),
		newSource: randomSource,
		logger:    logging.New("session"),
	}
}

// NewManagerWithPersistence returns a manager that writes every new session
// through persistence and falls back to it on lookup misses.
func NewManagerWithPersistence(persistence SessionPersistence) *Manager {
	m := NewManager()
	m.persistence = persistence
	return m
}

// SetRandSource replaces the factory of per-session random sources. Every
// new session gets its own source from fn.
func (m *Manager) SetRandSource(fn func() engine.RandSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.newSource = fn
}

func key(id string) string {
	return strings.ToLower(id)
}

func newSessionID() string {
	buf := make([]byte, idBytes)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}

// Create starts a robot session under id following the obstacle policy of
// preset. An empty id gets a generated one; a nil preset means classic.
func (m *Manager) Create(id string, preset *config.Preset) (*service.Session, error) {
	if strings.ContainsAny(id, `/\.`) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	if preset == nil {
		preset = config.ClassicPreset()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case id == "":
		for id = newSessionID(); m.has(id); id = newSessionID() {
		}
	case m.has(id):
		return nil, ErrSessionAlreadyExists
	}

	eng, err := preset.NewEngine(m.newSource())
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	now := time.Now()
	sess := &service.Session{
		ID:        id,
		Engine:    eng,
		Preset:    preset,
		CreatedAt: now,
	}
	sess.Touch(now)
	m.sessions[key(id)] = sess
	m.logger.Debug("session created", "session", id, "preset", preset.Name, "obstacles", eng.Obstacles())

	if m.persistence != nil {
		if err := m.persistence.Save(sess); err != nil {
			m.logger.Warn("failed to persist session", "session", id, "err", err)
		}
	}
	return sess, nil
}

// Get returns the session with id, loading it from persistence when it is
// not in memory.
func (m *Manager) Get(id string) (*service.Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[key(id)]
	m.mu.RUnlock()
	if ok {
		return sess, nil
	}

	if m.persistence == nil || !m.persistence.Exists(id) {
		return nil, ErrSessionNotFound
	}

	sess, err := m.persistence.Load(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted session: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cached, ok := m.sessions[key(id)]; ok {
		// Another caller loaded it first
		return cached, nil
	}
	m.sessions[key(id)] = sess
	return sess, nil
}

// GetOrCreate returns the session with id, creating it with preset when it
// does not exist anywhere.
func (m *Manager) GetOrCreate(id string, preset *config.Preset) (*service.Session, error) {
	sess, err := m.Get(id)
	if errors.Is(err, ErrSessionNotFound) {
		return m.Create(id, preset)
	}
	return sess, err
}

// List returns the sessions in memory, in no particular order.
func (m *Manager) List() []*service.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.all()
}

// Delete removes a session from memory and persistence.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, inMemory := m.sessions[key(id)]
	delete(m.sessions, key(id))

	if m.persistence != nil && m.persistence.Exists(id) {
		if err := m.persistence.Delete(id); err != nil {
			return fmt.Errorf("failed to delete persisted session: %w", err)
		}
		return nil
	}
	if !inMemory {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteFromMemory drops a session from memory and leaves its file alone.
func (m *Manager) DeleteFromMemory(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.has(id) {
		return ErrSessionNotFound
	}
	delete(m.sessions, key(id))
	return nil
}

// UpdateLastAccessed marks a session as used now.
func (m *Manager) UpdateLastAccessed(id string) error {
	m.mu.RLock()
	sess, ok := m.sessions[key(id)]
	m.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}
	sess.Touch(time.Now())
	return nil
}

// Save writes one session through persistence. Without persistence it does
// nothing.
func (m *Manager) Save(id string) error {
	if m.persistence == nil {
		return nil
	}

	m.mu.RLock()
	sess, ok := m.sessions[key(id)]
	m.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}
	return m.persistence.Save(sess)
}

// CleanupExpiredSessions drops sessions idle for longer than maxAge from
// memory and returns how many went. Persisted copies are kept.
func (m *Manager) CleanupExpiredSessions(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for k, sess := range m.sessions {
		if sess.LastAccessed().Before(cutoff) {
			delete(m.sessions, k)
			removed++
		}
	}

	if removed > 0 {
		m.logger.Info("expired sessions removed", "count", removed, "max_age", maxAge)
	}
	return removed
}

// Count returns the number of sessions in memory.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// has reports whether id is in memory. Callers hold the lock.
func (m *Manager) has(id string) bool {
	_, ok := m.sessions[key(id)]
	return ok
}

// all copies the session index. Callers hold the lock.
func (m *Manager) all() []*service.Session {
	out := make([]*service.Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess)
	}
	return out
}

// LoadPersistedSessions reads every persisted session that is not already
// in memory. Unreadable files are logged and skipped.
func (m *Manager) LoadPersistedSessions() error {
	if m.persistence == nil {
		return nil
	}

	ids, err := m.persistence.ListAll()
	if err != nil {
		return fmt.Errorf("failed to list persisted sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	loaded := 0
	for _, id := range ids {
		if m.has(id) {
			continue
		}
		sess, err := m.persistence.Load(id)
		if err != nil {
			m.logger.Warn("failed to load persisted session", "session", id, "err", err)
			continue
		}
		m.sessions[key(id)] = sess
		loaded++
	}

	if loaded > 0 {
		m.logger.Info("loaded persisted sessions", "count", loaded)
	}
	return nil
}

// SaveAllSessions writes every session in memory. Each one is attempted;
// the failures are combined into one error.
func (m *Manager) SaveAllSessions() error {
	if m.persistence == nil {
		return nil
	}

	m.mu.RLock()
	sessions := m.all()
	m.mu.RUnlock()

	var errs error
	for _, sess := range sessions {
		errs = multierr.Append(errs, m.wrapSave(sess))
	}

	if n := len(multierr.Errors(errs)); n > 0 {
		return fmt.Errorf("failed to save %d sessions: %w", n, errs)
	}
	return nil
}

func (m *Manager) wrapSave(sess *service.Session) error {
	if err := m.persistence.Save(sess); err != nil {
		return fmt.Errorf("session %s: %w", sess.ID, err)
	}
	return nil
}
