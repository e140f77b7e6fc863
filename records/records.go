// Package records defines the six logical per-user records and the snapshot
// that holds them.
//
// A UserSnapshot has a single writer (the resolver) and many readers (the
// dashboard views). Two write paths exist and must stay distinct:
// ReplaceAll swaps all six records under one lock, Fill sets one record and
// is used only by the static-file tier.
package records

import (
	"fmt"
	"sync"
)

// Name identifies a logical record.
type Name int

const (
	ProfileStatic Name = iota
	Smalltalk
	HealthRecord
	Diet2W
	RecentEvents
	Habits

	count
)

// All lists the records in canonical order.
var All = [count]Name{ProfileStatic, Smalltalk, HealthRecord, Diet2W, RecentEvents, Habits}

var wireNames = [count]string{
	"profile_static",
	"smalltalk",
	"health_record",
	"diet_2w",
	"recent_events",
	"habits",
}

// String returns the wire name ("profile_static", "diet_2w", ...).
func (n Name) String() string {
	if n < 0 || n >= count {
		return fmt.Sprintf("records.Name(%d)", int(n))
	}
	return wireNames[n]
}

// DefaultFilename is the canonical static file for the record.
func (n Name) DefaultFilename() string { return n.String() + ".json" }

// Parse maps a wire name back to a Name.
func Parse(s string) (Name, bool) {
	for i, w := range wireNames {
		if w == s {
			return Name(i), true
		}
	}
	return 0, false
}

// Record is a decoded JSON object. nil means absent.
type Record = map[string]any

// Set holds one value per logical record, indexed by Name.
type Set [count]Record

// Any reports whether at least one record is present.
func (s Set) Any() bool {
	for _, r := range s {
		if r != nil {
			return true
		}
	}
	return false
}

// Present counts the non-nil records.
func (s Set) Present() int {
	n := 0
	for _, r := range s {
		if r != nil {
			n++
		}
	}
	return n
}

// UserSnapshot is the resolved view of one user's records.
type UserSnapshot struct {
	mu      sync.RWMutex
	userID  string
	records Set
}

// NewSnapshot creates an empty snapshot for userID.
func NewSnapshot(userID string) *UserSnapshot {
	return &UserSnapshot{userID: userID}
}

// UserID returns the identifier the snapshot was created for.
func (s *UserSnapshot) UserID() string { return s.userID }

// ReplaceAll swaps all six records in a single critical section.
func (s *UserSnapshot) ReplaceAll(set Set) {
	s.mu.Lock()
	s.records = set
	s.mu.Unlock()
}

// Fill sets one record, leaving the others untouched.
func (s *UserSnapshot) Fill(name Name, rec Record) {
	s.mu.Lock()
	s.records[name] = rec
	s.mu.Unlock()
}

// Get returns one record, nil when absent.
func (s *UserSnapshot) Get(name Name) Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[name]
}

// Copy returns a consistent copy of all six records. The records themselves
// are shared and must be treated as read-only.
func (s *UserSnapshot) Copy() Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records
}

// Map returns the records keyed by wire name, with nil for absent ones.
func (s Set) Map() map[string]any {
	out := make(map[string]any, len(s))
	for _, n := range All {
		if s[n] == nil {
			out[n.String()] = nil
		} else {
			out[n.String()] = s[n]
		}
	}
	return out
}
