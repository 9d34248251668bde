package records

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wricardo/robot-simulator/sim/engine"
)

// Store persists simulation records per user.
type Store interface {
	// Save stores rec under userID. An empty userID is rejected with
	// ErrUnauthenticated.
	Save(ctx context.Context, userID string, rec *Record) error

	// Recent returns up to limit records of userID, newest first. A
	// non-positive limit means engine.DefaultHistoryLimit.
	Recent(ctx context.Context, userID string, limit int) ([]*Record, error)
}

// MemoryStore keeps records in memory
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]*Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]*Record)}
}

// Save stores a copy of rec
func (s *MemoryStore) Save(ctx context.Context, userID string, rec *Record) error {
	if err := checkSave(ctx, userID, rec); err != nil {
		return err
	}

	stored := rec.clone()
	stored.UserID = userID

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[userID] = append(s.records[userID], stored)
	return nil
}

// Recent returns the newest records of a user
func (s *MemoryStore) Recent(ctx context.Context, userID string, limit int) ([]*Record, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return newest(s.records[userID], limit), nil
}

func checkSave(ctx context.Context, userID string, rec *Record) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	return ctx.Err()
}

// newest returns copies of the last records in saved order, newest first.
func newest(saved []*Record, limit int) []*Record {
	if limit <= 0 {
		limit = engine.DefaultHistoryLimit
	}

	out := make([]*Record, 0, len(saved))
	for i := len(saved) - 1; i >= 0; i-- {
		out = append(out, saved[i].clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
