package shield

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/sugarbuddy/kit"
)

func TestDefaultStack_Headers(t *testing.T) {
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if kit.GetTraceID(r.Context()) == "" {
			t.Error("trace id missing from context")
		}
		if kit.GetUserID(r.Context()) != "u_demo" {
			t.Errorf("user id: got %q", kit.GetUserID(r.Context()))
		}
		if GetLogger(r.Context()) == nil {
			t.Error("logger missing")
		}
		w.WriteHeader(http.StatusOK)
	})
	stack := DefaultStack()
	for i := len(stack) - 1; i >= 0; i-- {
		h = stack[i](h)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/health?user_id=u_demo", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	for _, k := range []string{"X-Trace-ID", "Content-Security-Policy", "X-Frame-Options", "X-Content-Type-Options"} {
		if rec.Header().Get(k) == "" {
			t.Errorf("header %s missing", k)
		}
	}
}

func TestMaxJSONBody(t *testing.T) {
	h := MaxJSONBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		n, err := r.Body.Read(buf)
		for err == nil {
			var m int
			m, err = r.Body.Read(buf[n:])
			n += m
		}
		if n > 8 {
			t.Errorf("read %d bytes past the limit", n)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"text":"far too long"}`))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(httptest.NewRecorder(), req)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("1.2.3.4") || !rl.Allow("1.2.3.4") {
		t.Fatal("burst of 2 should pass")
	}
	if rl.Allow("1.2.3.4") {
		t.Fatal("third request should be limited")
	}
	if !rl.Allow("5.6.7.8") {
		t.Fatal("other clients are independent")
	}

	now = now.Add(31 * time.Second)
	if !rl.Allow("1.2.3.4") {
		t.Fatal("token should refill after window/n")
	}

	now = now.Add(10 * time.Minute)
	rl.GC(time.Minute)
	if len(rl.clients) != 0 {
		t.Fatalf("GC left %d clients", len(rl.clients))
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", nil)
		req.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("request %d: got %d, want %d", i, rec.Code, want)
		}
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		if !rl.Allow("x") {
			t.Fatal("disabled limiter must allow everything")
		}
	}
}

func TestTraceID_RequestIDAndClientIP(t *testing.T) {
	// WHAT: a valid incoming X-Request-ID is kept, anything else is replaced.
	// WHY: dashboard and API log lines for one chat turn share the id.
	var gotID, gotIP string
	h := TraceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = kit.GetRequestID(r.Context())
		gotIP = kit.GetClientIP(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "req_abc-1")
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if gotID != "req_abc-1" || rec.Header().Get("X-Request-ID") != "req_abc-1" {
		t.Errorf("request id: ctx %q header %q", gotID, rec.Header().Get("X-Request-ID"))
	}
	if gotIP != "203.0.113.7" {
		t.Errorf("client ip: %q", gotIP)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "bad id\n")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !strings.HasPrefix(gotID, "req_") || gotID == "req_abc-1" {
		t.Errorf("minted request id: %q", gotID)
	}
	if gotIP != "192.0.2.1" {
		t.Errorf("remote addr ip: %q", gotIP)
	}
}
