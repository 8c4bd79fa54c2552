// Package localstore persists the small client-local state that must survive
// restarts: the token pair, the signed-in username, and the theme preference.
// Everything lives in one JSON file under the user's config directory.
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoState indicates that no state file exists yet (first run, or after a
// logout wiped it).
var ErrNoState = errors.New("localstore: no saved state")

// defaultRelPath is the state file location relative to the user home.
const defaultRelPath = ".config/smartchat/state.json"

// State is everything SmartChat remembers between runs. All of it — tokens,
// username, and the theme preference — is discarded together on logout.
type State struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Username     string `json:"username,omitempty"`
	DarkMode     bool   `json:"dark_mode"`
}

// HasSession reports whether a token pair is present.
func (s *State) HasSession() bool {
	return s.AccessToken != ""
}

// Store manages state persistence.
type Store interface {
	// Load retrieves the saved state. Returns ErrNoState when none exists.
	Load() (*State, error)
	// Save persists the state.
	Save(state *State) error
	// ClearSession discards the entire saved state.
	ClearSession() error
	// Path returns the path to the state file.
	Path() string
}

// FileStore implements Store using a JSON file with user-only permissions.
type FileStore struct {
	path string
}

// NewFileStore creates a file-based store. If path is empty the default
// location under the user's home directory is used.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultPath()
	}
	return &FileStore{path: path}
}

// DefaultPath returns the default state file path.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultRelPath
	}
	return filepath.Join(home, defaultRelPath)
}

// Path returns the path to the state file.
func (s *FileStore) Path() string {
	return s.path
}

// Load retrieves the state from the JSON file.
func (s *FileStore) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoState
		}
		return nil, fmt.Errorf("localstore: read %s: %w", s.path, err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("localstore: parse %s: %w", s.path, err)
	}
	return &state, nil
}

// Save persists the state to the JSON file, creating the parent directory if
// needed. The write goes through a temp file and rename so a crash mid-write
// never leaves a truncated state file. The file is 0600 since it holds tokens.
func (s *FileStore) Save(state *State) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("localstore: create dir: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("localstore: marshal state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("localstore: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("localstore: rename %s: %w", tmp, err)
	}
	return nil
}

// ClearSession removes the state file outright. Logout discards everything,
// theme preference included; the next run starts from defaults.
func (s *FileStore) ClearSession() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("localstore: remove %s: %w", s.path, err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
