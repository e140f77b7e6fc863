package records

import (
	"encoding/json"
	"sync"
	"testing"
)

func TestName_Wire(t *testing.T) {
	want := []string{"profile_static", "smalltalk", "health_record", "diet_2w", "recent_events", "habits"}
	for i, n := range All {
		if n.String() != want[i] {
			t.Errorf("%d: got %q, want %q", i, n.String(), want[i])
		}
		if n.DefaultFilename() != want[i]+".json" {
			t.Errorf("%d: filename %q", i, n.DefaultFilename())
		}
		back, ok := Parse(want[i])
		if !ok || back != n {
			t.Errorf("Parse(%q) = %v, %v", want[i], back, ok)
		}
	}
	if _, ok := Parse("diet"); ok {
		t.Error("Parse accepted an unknown name")
	}
}

func TestAccessors_EmptyDefaults(t *testing.T) {
	// WHAT: every accessor on an empty set returns a usable empty value.
	// WHY: views render "no data" placeholders from empty values, never from panics.
	var s Set
	if s.Basic() == nil || len(s.Basic()) != 0 {
		t.Error("Basic should be an empty map")
	}
	for name, got := range map[string][]any{
		"conditions": s.Conditions(), "labs": s.Labs(), "meds": s.Medications(),
		"weeks": s.DietWeeks(), "keywords": s.EventKeywords(), "clusters": s.EventClusters(),
		"items": s.EventItems(), "routines": s.Routines(), "rules": s.Rules(),
		"topics": s.SmalltalkTopics(), "tags": s.Tags(),
	} {
		if got == nil || len(got) != 0 {
			t.Errorf("%s: got %#v, want empty slice", name, got)
		}
	}
	if s.HealthSummary() != "" || s.EventDigest() != "" {
		t.Error("summaries should be empty")
	}
}

func TestAccessors_WrongShapes(t *testing.T) {
	var s Set
	s[HealthRecord] = Record{"conditions": "not a list", "labs": nil, "summary": 3.5}
	s[ProfileStatic] = Record{"basic": []any{1, 2}}

	if len(s.Conditions()) != 0 || len(s.Labs()) != 0 {
		t.Error("non-array values must read as empty")
	}
	if len(s.Basic()) != 0 {
		t.Error("non-object basic must read as empty")
	}
	if s.HealthSummary() != "3.5" {
		t.Errorf("numeric summary: got %q", s.HealthSummary())
	}
}

func TestAccessors_Values(t *testing.T) {
	var rec Record
	if err := json.Unmarshal([]byte(`{"basic":{"name":"小李"},"ai_inferred":{"tags":["控糖","夜宵"]}}`), &rec); err != nil {
		t.Fatal(err)
	}
	var s Set
	s[ProfileStatic] = rec
	s[Diet2W] = Record{"weeks": []any{map[string]any{"week": 1}}, "summary": "偏高碳水"}

	if String(s.Basic()["name"]) != "小李" {
		t.Errorf("basic name: %v", s.Basic())
	}
	if len(s.Tags()) != 2 {
		t.Errorf("tags: %v", s.Tags())
	}
	if len(s.DietWeeks()) != 1 || s.DietSummary() != "偏高碳水" {
		t.Errorf("diet: %v %q", s.DietWeeks(), s.DietSummary())
	}
	if Path(rec, "basic", "name", "deeper") != nil {
		t.Error("Path through a string must be nil")
	}
}

func TestSnapshot_ReplaceAllIsAtomic(t *testing.T) {
	// WHAT: concurrent readers never observe a mix of two group replacements.
	snap := NewSnapshot("u1")
	a, b := Set{}, Set{}
	for _, n := range All {
		a[n] = Record{"gen": "a"}
		b[n] = Record{"gen": "b"}
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			if i%2 == 0 {
				snap.ReplaceAll(a)
			} else {
				snap.ReplaceAll(b)
			}
		}
		close(stop)
	}()

	for {
		select {
		case <-stop:
			wg.Wait()
			return
		default:
		}
		cp := snap.Copy()
		if cp[0] == nil {
			continue
		}
		gen := cp[0]["gen"]
		for _, n := range All {
			if cp[n]["gen"] != gen {
				t.Fatalf("interleaved snapshot: %v", cp.Map())
			}
		}
	}
}

func TestSnapshot_Fill(t *testing.T) {
	snap := NewSnapshot("u1")
	snap.ReplaceAll(Set{Record{"x": 1.0}})
	snap.Fill(Habits, Record{"rules": []any{}})

	if snap.Get(ProfileStatic) == nil {
		t.Error("Fill must not clear other records")
	}
	if snap.Get(Habits) == nil {
		t.Error("Fill did not set the record")
	}
	if snap.Copy().Present() != 2 {
		t.Errorf("present: %d", snap.Copy().Present())
	}
}
