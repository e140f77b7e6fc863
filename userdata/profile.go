package userdata

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hazyhaar/sugarbuddy/guard"
)

// Profile is an editable user profile. Leaves are Field wrappers.
type Profile = map[string]any

// Field wraps one profile value with its provenance.
type Field struct {
	Value      any     `json:"value"`
	Layer      string  `json:"layer"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
	UpdatedAt  string  `json:"updated_at"`
	Revoked    bool    `json:"revoked"`
}

// Patch describes a profile edit.
type Patch struct {
	Path       string  `json:"path"`
	Value      any     `json:"value"`
	Layer      string  `json:"layer"`      // default "confirmed"
	Source     string  `json:"source"`     // default "user_edit"
	Confidence float64 `json:"confidence"` // 0 means 1.0
}

var profileSections = []string{
	"medical", "glucose_preferences", "diet", "lifestyle", "personality", "interests", "assistant_prefs",
}

func (s *Store) profilePath(userID string) (string, error) {
	if err := guard.ValidateIdentifier(userID); err != nil {
		return "", fmt.Errorf("userdata: user id: %w", err)
	}
	return filepath.Join(s.root, "profiles", userID+".json"), nil
}

// Profile loads userID's profile, bootstrapping a minimal one on first use.
func (s *Store) Profile(userID string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadProfileLocked(userID)
}

func (s *Store) loadProfileLocked(userID string) (Profile, error) {
	path, err := s.profilePath(userID)
	if err != nil {
		return nil, err
	}
	raw, err := readJSON(path)
	if errors.Is(err, ErrNotFound) {
		p := Profile{"basic": map[string]any{"user_id": s.field(userID, "confirmed", "bootstrap", 1)}}
		for _, sec := range profileSections {
			p[sec] = map[string]any{}
		}
		if err := writeJSON(path, p); err != nil {
			return nil, err
		}
		return normalizeProfile(p)
	}
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil || p == nil {
		return nil, fmt.Errorf("userdata: profile %s is not an object", userID)
	}
	return p, nil
}

// normalizeProfile round-trips p through JSON so callers always see the
// decoded shape (Field structs become maps).
func normalizeProfile(p Profile) (Profile, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("userdata: encode profile: %w", err)
	}
	var out Profile
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("userdata: decode profile: %w", err)
	}
	return out, nil
}

// PatchProfile sets the field at a dotted path, creating intermediate
// objects, and returns the updated profile.
func (s *Store) PatchProfile(userID string, p Patch) (Profile, error) {
	if p.Layer == "" {
		p.Layer = "confirmed"
	}
	if p.Source == "" {
		p.Source = "user_edit"
	}
	if p.Confidence == 0 {
		p.Confidence = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prof, err := s.loadProfileLocked(userID)
	if err != nil {
		return nil, err
	}
	parent, leaf, err := walkToParent(prof, p.Path)
	if err != nil {
		return nil, err
	}
	parent[leaf] = s.field(p.Value, p.Layer, p.Source, p.Confidence)
	return s.saveProfileLocked(userID, prof)
}

// RevokeField marks the field at path revoked. ErrNotFound when absent.
func (s *Store) RevokeField(userID, path, reason string) (Profile, error) {
	if reason == "" {
		reason = "revoked"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prof, err := s.loadProfileLocked(userID)
	if err != nil {
		return nil, err
	}
	parent, leaf, err := walkToParent(prof, path)
	if err != nil {
		return nil, err
	}
	cur, ok := parent[leaf].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: field %q", ErrNotFound, path)
	}
	cur["revoked"] = true
	cur["source"] = reason
	cur["updated_at"] = s.now().UTC().Format(time.RFC3339Nano)
	return s.saveProfileLocked(userID, prof)
}

func (s *Store) saveProfileLocked(userID string, prof Profile) (Profile, error) {
	path, err := s.profilePath(userID)
	if err != nil {
		return nil, err
	}
	if err := writeJSON(path, prof); err != nil {
		return nil, err
	}
	return normalizeProfile(prof)
}

func (s *Store) field(v any, layer, source string, confidence float64) Field {
	return Field{
		Value:      v,
		Layer:      layer,
		Confidence: confidence,
		Source:     source,
		UpdatedAt:  s.now().UTC().Format(time.RFC3339Nano),
	}
}

// walkToParent resolves all but the last segment of a dotted path, replacing
// non-object intermediates with empty objects.
func walkToParent(prof Profile, path string) (map[string]any, string, error) {
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, "", fmt.Errorf("%w %q", ErrInvalidPath, path)
		}
	}
	node := map[string]any(prof)
	for _, part := range parts[:len(parts)-1] {
		next, ok := node[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[part] = next
		}
		node = next
	}
	return node, parts[len(parts)-1], nil
}
