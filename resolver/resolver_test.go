package resolver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hazyhaar/sugarbuddy/kit"
	"github.com/hazyhaar/sugarbuddy/records"
)

// backend serves canned bodies by exact path; anything else is 404.
type backend struct {
	mu     sync.Mutex
	bodies map[string]string
	status map[string]int
	hits   map[string]int
}

func newBackend() *backend {
	return &backend{bodies: map[string]string{}, status: map[string]int{}, hits: map[string]int{}}
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.hits[r.URL.Path]++
	body, ok := b.bodies[r.URL.Path]
	code := b.status[r.URL.Path]
	b.mu.Unlock()
	if code != 0 {
		http.Error(w, "boom", code)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}

func (b *backend) start(t *testing.T) *Resolver {
	t.Helper()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Client: srv.Client()})
}

func TestManifest_URLFor(t *testing.T) {
	m := Manifest{
		Files: map[string]string{
			"profile_static": "p.json",
			"smalltalk":      "/abs/st.json",
			"health_record":  "https://cdn.example.com/hr.json",
		},
		BasePath: "/files/u1/",
	}
	cases := map[records.Name]string{
		records.ProfileStatic: "/files/u1/p.json",
		records.Smalltalk:     "/abs/st.json",
		records.HealthRecord:  "https://cdn.example.com/hr.json",
		records.Diet2W:        "/files/u1/diet_2w.json",
		records.Habits:        "/files/u1/habits.json",
	}
	for n, want := range cases {
		if got := m.URLFor(n, "u1"); got != want {
			t.Errorf("%s: got %q, want %q", n, got, want)
		}
	}

	// WHAT: without base_path the canonical per-user directory is used, id escaped.
	if got := (Manifest{}).URLFor(records.Habits, "a b"); got != "/data/users/a%20b/habits.json" {
		t.Errorf("default base: got %q", got)
	}
}

func TestResolve_ManifestTier(t *testing.T) {
	b := newBackend()
	b.bodies["/api/local/manifest/u1"] = `{"files":{"profile_static":"ps.json","habits":"/elsewhere/h.json"},"base_path":"/m/u1/"}`
	b.bodies["/m/u1/ps.json"] = `{"basic":{"name":"A"}}`
	b.bodies["/elsewhere/h.json"] = `{"rules":[1]}`
	b.bodies["/m/u1/smalltalk.json"] = `not json`
	b.status["/m/u1/health_record.json"] = 500
	r := b.start(t)

	snap := records.NewSnapshot("u1")
	if tier := r.Resolve(context.Background(), snap); tier != TierManifest {
		t.Fatalf("tier: got %v", tier)
	}
	got := snap.Copy()
	if got.Basic()["name"] != "A" || len(got.Rules()) != 1 {
		t.Errorf("resolved records wrong: %v", got.Map())
	}
	// WHAT: per-record failures are nil, not an aborted tier.
	if got[records.Smalltalk] != nil || got[records.HealthRecord] != nil || got[records.Diet2W] != nil {
		t.Errorf("failed records should be nil: %v", got.Map())
	}
	if b.hits["/api/local/profile_static/u1"] != 0 {
		t.Error("endpoint tier must not run after a manifest success")
	}
}

func TestResolve_ManifestFailureDiscardsTier(t *testing.T) {
	// WHAT: the manifest fetch fails while its would-be record URLs are live.
	// WHY: nothing from an abandoned tier may leak into the snapshot.
	b := newBackend()
	b.status["/api/local/manifest/u1"] = 503
	for _, n := range records.All {
		b.bodies["/data/users/u1/"+n.DefaultFilename()] = `{"src":"static"}`
	}
	b.bodies["/api/local/habits/u1"] = `{"src":"endpoint"}`
	r := b.start(t)

	snap := records.NewSnapshot("u1")
	snap.ReplaceAll(records.Set{records.Record{"src": "stale"}})

	if tier := r.Resolve(context.Background(), snap); tier != TierEndpoints {
		t.Fatalf("tier: got %v", tier)
	}
	got := snap.Copy()
	if got[records.Habits]["src"] != "endpoint" {
		t.Errorf("habits: %v", got[records.Habits])
	}
	for _, n := range records.All[:5] {
		if got[n] != nil {
			t.Errorf("%s should be nil after group replace, got %v", n, got[n])
		}
	}
}

func TestResolve_StaticTierFillsIndependently(t *testing.T) {
	b := newBackend()
	b.status["/api/local/manifest/u1"] = 404
	b.bodies["/api/local/profile_static/u1"] = `null`
	b.bodies["/data/users/u1/profile_static.json"] = `{"basic":{}}`
	b.bodies["/data/users/u1/diet_2w.json"] = `{"weeks":[{},{}]}`
	b.bodies["/data/users/u1/habits.json"] = `[1,2,3]`
	r := b.start(t)

	snap := records.NewSnapshot("u1")
	if tier := r.Resolve(context.Background(), snap); tier != TierStatic {
		t.Fatalf("tier: got %v", tier)
	}
	got := snap.Copy()
	if got[records.ProfileStatic] == nil || len(got.DietWeeks()) != 2 {
		t.Errorf("static records missing: %v", got.Map())
	}
	// WHAT: a top-level array is not a record.
	if got[records.Habits] != nil {
		t.Errorf("habits should be absent: %v", got[records.Habits])
	}
	if got.Present() != 2 {
		t.Errorf("present: got %d, want 2", got.Present())
	}
}

func TestResolve_NothingAnywhere(t *testing.T) {
	r := newBackend().start(t)
	snap := records.NewSnapshot("ghost")
	if tier := r.Resolve(context.Background(), snap); tier != TierStatic {
		t.Fatalf("tier: got %v", tier)
	}
	if snap.Copy().Any() {
		t.Error("snapshot should be empty")
	}
}

func TestResolve_CancelledContext(t *testing.T) {
	b := newBackend()
	b.bodies["/data/users/u1/habits.json"] = `{"rules":[]}`
	r := b.start(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap := records.NewSnapshot("u1")
	snap.ReplaceAll(records.Set{records.Record{"keep": true}})
	if tier := r.Resolve(ctx, snap); tier != TierNone {
		t.Fatalf("tier: got %v", tier)
	}
	if snap.Get(records.ProfileStatic)["keep"] != true {
		t.Error("cancelled resolve must leave the snapshot alone")
	}
}

func TestStatusError(t *testing.T) {
	b := newBackend()
	b.status["/x"] = 418
	r := b.start(t)

	var v any
	err := r.getJSON(context.Background(), "/x", &v)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != 418 {
		t.Fatalf("got %v, want StatusError 418", err)
	}
	if !strings.HasSuffix(se.URL, "/x") {
		t.Errorf("url: %q", se.URL)
	}
}

func TestRefresher_DropsConcurrentRefresh(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/local/manifest/u1" {
			if calls.Add(1) == 1 {
				close(started)
			}
			<-release
			w.Write([]byte(`{"files":{}}`))
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := NewRefresher(New(Config{BaseURL: srv.URL, Client: srv.Client()}))
	var notified atomic.Int32
	f.OnRefreshed = func(userID string, tier Tier, _ records.Set) {
		if userID == "u1" && tier == TierManifest {
			notified.Add(1)
		}
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.Refresh(context.Background(), "u1")
		done <- err
	}()
	<-started

	if _, err := f.Refresh(context.Background(), "u1"); !errors.Is(err, ErrRefreshInFlight) {
		t.Fatalf("second refresh: got %v, want ErrRefreshInFlight", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first refresh: %v", err)
	}

	if calls.Load() != 1 {
		t.Errorf("manifest fetched %d times, want 1", calls.Load())
	}
	if notified.Load() != 1 {
		t.Errorf("OnRefreshed calls: %d", notified.Load())
	}
	if f.LastTier("u1") != TierManifest {
		t.Errorf("last tier: %v", f.LastTier("u1"))
	}
	if f.Snapshot("u1").Copy().Present() != 6 {
		t.Errorf("snapshot not populated: %v", f.Snapshot("u1").Copy().Map())
	}

	// WHAT: once settled, a new refresh is accepted.
	if _, err := f.Refresh(context.Background(), "u1"); err != nil {
		t.Fatalf("refresh after settle: %v", err)
	}
}

func TestNew_TransportDefaults(t *testing.T) {
	// WHAT: no client timeout of our own; the caller's context bounds fetches.
	r := New(Config{})
	if r.client != http.DefaultClient {
		t.Fatalf("default client: %+v", r.client)
	}
	if r.client.Timeout != 0 {
		t.Errorf("timeout: %v", r.client.Timeout)
	}
}

func TestResolve_PropagatesRequestID(t *testing.T) {
	var mu sync.Mutex
	ids := map[string]bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ids[r.Header.Get("X-Request-ID")] = true
		mu.Unlock()
		http.NotFound(w, r)
	}))
	defer srv.Close()

	ctx := kit.WithRequestID(context.Background(), "req_snap")
	New(Config{BaseURL: srv.URL, Client: srv.Client()}).Resolve(ctx, records.NewSnapshot("u1"))

	mu.Lock()
	defer mu.Unlock()
	if len(ids) != 1 || !ids["req_snap"] {
		t.Errorf("request ids seen: %v", ids)
	}
}
