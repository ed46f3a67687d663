// Package session persists the rider's identity between runs. Teardown order
// matters at logout: the availability cleanup runs first, the file is cleared
// last, so a crash mid-logout never loses an online session's identity.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/example/rider-agent/internal/models"
)

// ErrNoSession means no rider is logged in on this device.
var ErrNoSession = errors.New("no stored session")

type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Load() (models.Session, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.Session{}, ErrNoSession
		}
		return models.Session{}, fmt.Errorf("read session: %w", err)
	}
	var sess models.Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return models.Session{}, fmt.Errorf("decode session: %w", err)
	}
	if sess.RiderID == "" {
		return models.Session{}, ErrNoSession
	}
	return sess, nil
}

func (s *Store) Save(sess models.Session) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.WriteFile(s.path, b, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
