// Package auth persists the API token pair between runs.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/airwatch-iot/gasmon/internal/api"
)

type tokenFile struct {
	AccessToken  string `toml:"access_token"`
	RefreshToken string `toml:"refresh_token"`
	UserID       int64  `toml:"user_id,omitempty"`
}

// FileStore keeps the token pair in a TOML file readable only by the owner.
// Reads are served from memory after the first Load.
type FileStore struct {
	path string

	mu     sync.Mutex
	loaded bool
	tokens api.Tokens
}

var _ api.TokenStore = (*FileStore)(nil)

// NewFileStore returns a store backed by path. The file need not exist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Load returns the stored pair, or zero Tokens when the file is missing or
// unreadable.
func (s *FileStore) Load() api.Tokens {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.tokens
	}
	s.loaded = true

	data, err := os.ReadFile(s.path)
	if err != nil {
		return s.tokens
	}
	var raw tokenFile
	if err := toml.Unmarshal(data, &raw); err != nil {
		return s.tokens
	}
	s.tokens = api.Tokens{Access: raw.AccessToken, Refresh: raw.RefreshToken, UserID: raw.UserID}
	return s.tokens
}

// Save writes the pair with mode 0600.
func (s *FileStore) Save(t api.Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	data, err := toml.Marshal(tokenFile{AccessToken: t.Access, RefreshToken: t.Refresh, UserID: t.UserID})
	if err != nil {
		return fmt.Errorf("marshal tokens: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write tokens: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace tokens: %w", err)
	}
	s.tokens = t
	s.loaded = true
	return nil
}

// Clear forgets the pair and removes the file.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = api.Tokens{}
	s.loaded = true
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove tokens: %w", err)
	}
	return nil
}

// LoggedIn reports whether an access token is stored.
func (s *FileStore) LoggedIn() bool {
	return s.Load().Access != ""
}
