// Package userdata is the file-backed store behind the companion API: per-user
// logical records under <root>/users/<id>/ and editable profiles under
// <root>/profiles/<id>.json.
package userdata

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hazyhaar/sugarbuddy/guard"
	"github.com/hazyhaar/sugarbuddy/records"
)

// ErrNotFound is returned when a record, file or profile field is absent.
var ErrNotFound = errors.New("userdata: not found")

// ErrInvalidPath is returned for malformed dotted profile paths.
var ErrInvalidPath = errors.New("userdata: invalid path")

// Store reads and writes user data below a root directory.
type Store struct {
	root string
	now  func() time.Time

	// mu serializes profile read-modify-write cycles.
	mu sync.Mutex
}

// New creates a Store rooted at dir.
func New(dir string) *Store {
	return &Store{root: dir, now: time.Now}
}

// Root returns the data directory.
func (s *Store) Root() string { return s.root }

func (s *Store) userDir(userID string) (string, error) {
	if err := guard.ValidateIdentifier(userID); err != nil {
		return "", fmt.Errorf("userdata: user id: %w", err)
	}
	return filepath.Join(s.root, "users", userID), nil
}

// Files lists the logical records present on disk for userID, keyed by wire
// name with the filename as value.
func (s *Store) Files(userID string) (map[string]string, error) {
	dir, err := s.userDir(userID)
	if err != nil {
		return nil, err
	}
	files := map[string]string{}
	for _, n := range records.All {
		if _, err := os.Stat(filepath.Join(dir, n.DefaultFilename())); err == nil {
			files[n.String()] = n.DefaultFilename()
		}
	}
	return files, nil
}

// Record returns the raw JSON of one logical record.
func (s *Store) Record(userID string, name records.Name) (json.RawMessage, error) {
	dir, err := s.userDir(userID)
	if err != nil {
		return nil, err
	}
	return readJSON(filepath.Join(dir, name.DefaultFilename()))
}

// StaticFile returns the raw JSON of a file in the user's directory.
func (s *Store) StaticFile(userID, file string) (json.RawMessage, error) {
	dir, err := s.userDir(userID)
	if err != nil {
		return nil, err
	}
	if err := guard.ValidateIdentifier(file); err != nil {
		return nil, fmt.Errorf("userdata: file: %w", err)
	}
	path, err := guard.SafePath(dir, file)
	if err != nil {
		return nil, fmt.Errorf("userdata: file: %w", err)
	}
	return readJSON(path)
}

// SaveRecord writes one logical record, creating the user directory.
func (s *Store) SaveRecord(userID string, name records.Name, rec any) error {
	dir, err := s.userDir(userID)
	if err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, name.DefaultFilename()), rec)
}

func readJSON(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("userdata: read %s: %w", filepath.Base(path), err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("userdata: %s: invalid JSON", filepath.Base(path))
	}
	return data, nil
}

// writeJSON writes v atomically via a temp file and rename.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("userdata: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("userdata: encode: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("userdata: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("userdata: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("userdata: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("userdata: rename: %w", err)
	}
	return nil
}
