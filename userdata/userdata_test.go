package userdata

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/sugarbuddy/guard"
	"github.com/hazyhaar/sugarbuddy/records"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s := New(t.TempDir())
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestRecords(t *testing.T) {
	s := newStore(t)
	if err := s.SaveRecord("u1", records.Diet2W, map[string]any{"weeks": []any{}}); err != nil {
		t.Fatal(err)
	}

	files, err := s.Files("u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files["diet_2w"] != "diet_2w.json" {
		t.Errorf("files: %v", files)
	}

	raw, err := s.Record("u1", records.Diet2W)
	if err != nil || string(raw) == "" {
		t.Fatalf("record: %s %v", raw, err)
	}
	if _, err := s.Record("u1", records.Habits); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing record: got %v", err)
	}
	if _, err := s.StaticFile("u1", "diet_2w.json"); err != nil {
		t.Errorf("static file: %v", err)
	}
}

func TestSafety(t *testing.T) {
	s := newStore(t)
	if _, err := s.Files("../etc"); !errors.Is(err, guard.ErrInvalidIdentifier) {
		t.Errorf("user id traversal: got %v", err)
	}
	if _, err := s.StaticFile("u1", ".."); !errors.Is(err, guard.ErrInvalidIdentifier) {
		t.Errorf("file traversal: got %v", err)
	}
	if _, err := s.StaticFile("u1", "a/b.json"); !errors.Is(err, guard.ErrInvalidIdentifier) {
		t.Errorf("nested path: got %v", err)
	}
}

func TestInvalidJSON(t *testing.T) {
	s := newStore(t)
	dir := filepath.Join(s.Root(), "users", "u1")
	os.MkdirAll(dir, 0o755)
	os.WriteFile(filepath.Join(dir, "habits.json"), []byte("{oops"), 0o644)
	if _, err := s.Record("u1", records.Habits); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("invalid JSON: got %v", err)
	}
}

func TestProfile_Bootstrap(t *testing.T) {
	s := newStore(t)
	p, err := s.Profile("u1")
	if err != nil {
		t.Fatal(err)
	}
	basic := p["basic"].(map[string]any)
	uid := basic["user_id"].(map[string]any)
	if uid["value"] != "u1" || uid["source"] != "bootstrap" || uid["revoked"] != false {
		t.Errorf("bootstrap field: %v", uid)
	}
	if _, ok := p["assistant_prefs"].(map[string]any); !ok {
		t.Error("sections missing")
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "profiles", "u1.json")); err != nil {
		t.Errorf("profile not persisted: %v", err)
	}
}

func TestPatchAndRevoke(t *testing.T) {
	s := newStore(t)
	p, err := s.PatchProfile("u1", Patch{Path: "diet.preferences.breakfast", Value: "燕麦"})
	if err != nil {
		t.Fatal(err)
	}
	f := p["diet"].(map[string]any)["preferences"].(map[string]any)["breakfast"].(map[string]any)
	if f["value"] != "燕麦" || f["layer"] != "confirmed" || f["source"] != "user_edit" || f["confidence"] != 1.0 {
		t.Errorf("patched field: %v", f)
	}
	if f["updated_at"] != "2026-03-01T12:00:00Z" {
		t.Errorf("updated_at: %v", f["updated_at"])
	}

	p, err = s.RevokeField("u1", "diet.preferences.breakfast", "user_revoked")
	if err != nil {
		t.Fatal(err)
	}
	f = p["diet"].(map[string]any)["preferences"].(map[string]any)["breakfast"].(map[string]any)
	if f["revoked"] != true || f["source"] != "user_revoked" {
		t.Errorf("revoked field: %v", f)
	}

	// WHAT: reload from disk sees the same state.
	again, err := s.Profile("u1")
	if err != nil {
		t.Fatal(err)
	}
	if again["diet"].(map[string]any)["preferences"].(map[string]any)["breakfast"].(map[string]any)["revoked"] != true {
		t.Error("revoke not persisted")
	}

	if _, err := s.RevokeField("u1", "diet.nothing", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("revoke missing: got %v", err)
	}
	if _, err := s.PatchProfile("u1", Patch{Path: "a..b", Value: 1}); err == nil {
		t.Error("empty path segment accepted")
	}
}

func TestSchedule(t *testing.T) {
	s := newStore(t)
	if _, err := s.Schedule("u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing schedule: got %v", err)
	}
	sched := map[string]any{"items": []any{map[string]any{"time": "07:30", "task": "空腹血糖"}}}
	if err := s.SaveSchedule("u1", sched); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "schedules", "u1.json")); err != nil {
		t.Fatalf("schedule file: %v", err)
	}
	raw, err := s.Schedule("u1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "空腹血糖") {
		t.Errorf("schedule: %s", raw)
	}
	if _, err := s.Schedule("../u1"); !errors.Is(err, guard.ErrInvalidIdentifier) {
		t.Errorf("traversal id: got %v", err)
	}
}
