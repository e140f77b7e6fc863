package userdata

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/hazyhaar/sugarbuddy/guard"
)

func (s *Store) schedulePath(userID string) (string, error) {
	if err := guard.ValidateIdentifier(userID); err != nil {
		return "", fmt.Errorf("userdata: user id: %w", err)
	}
	return filepath.Join(s.root, "schedules", userID+".json"), nil
}

// Schedule returns the raw JSON of userID's daily schedule, or ErrNotFound.
func (s *Store) Schedule(userID string) (json.RawMessage, error) {
	path, err := s.schedulePath(userID)
	if err != nil {
		return nil, err
	}
	return readJSON(path)
}

// SaveSchedule replaces userID's schedule.
func (s *Store) SaveSchedule(userID string, sched any) error {
	path, err := s.schedulePath(userID)
	if err != nil {
		return err
	}
	return writeJSON(path, sched)
}
