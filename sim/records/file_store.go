package records

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps one JSON file per user in a directory. Files are
// rewritten through a temporary file and a rename.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a file store rooted at dir, creating it if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create records directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save appends rec to the user's file
func (s *FileStore) Save(ctx context.Context, userID string, rec *Record) error {
	if err := checkSave(ctx, userID, rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved, err := s.load(userID)
	if err != nil {
		return err
	}

	stored := rec.clone()
	stored.UserID = userID
	saved = append(saved, stored)

	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".records-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write records: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(userID)); err != nil {
		return fmt.Errorf("failed to replace records file: %w", err)
	}
	return nil
}

// Recent returns the newest records of a user
func (s *FileStore) Recent(ctx context.Context, userID string, limit int) ([]*Record, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved, err := s.load(userID)
	if err != nil {
		return nil, err
	}
	return newest(saved, limit), nil
}

func (s *FileStore) load(userID string) ([]*Record, error) {
	data, err := os.ReadFile(s.path(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read records file: %w", err)
	}

	var saved []*Record
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("failed to unmarshal records: %w", err)
	}
	return saved, nil
}

// path maps a user ID to a file name that is safe for any ID.
func (s *FileStore) path(userID string) string {
	return filepath.Join(s.dir, base64.RawURLEncoding.EncodeToString([]byte(userID))+".json")
}
